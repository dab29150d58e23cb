// Package runstate tracks the running cost of model calls: token and text counts for
// prompts and results, and the price paid for them.
package runstate

import (
	"github.com/casualjim/folio/expect"
)

// UsageCounts holds counts for one side of a call.
type UsageCounts struct {
	Tokens     int64 `json:"tokens"`
	Characters int64 `json:"characters"`
	Words      int64 `json:"words"`
	Sentences  int64 `json:"sentences"`
	Lines      int64 `json:"lines"`
	Paragraphs int64 `json:"paragraphs"`
	Pages      int64 `json:"pages"`
}

// Add sums other into u.
func (u *UsageCounts) Add(other UsageCounts) {
	u.Tokens += other.Tokens
	u.Characters += other.Characters
	u.Words += other.Words
	u.Sentences += other.Sentences
	u.Lines += other.Lines
	u.Paragraphs += other.Paragraphs
	u.Pages += other.Pages
}

// Usage is the cost of one or more model calls. The zero value is the identity of AddUsage.
type Usage struct {
	Price  Price       `json:"price"`
	Input  UsageCounts `json:"input"`
	Output UsageCounts `json:"output"`
}

// Price is an amount in USD. Uncertain is set when any summed price was estimated.
type Price struct {
	Value     float64 `json:"value"`
	Uncertain bool    `json:"uncertain,omitempty"`
}

// AddUsage sums other into u.
func (u *Usage) AddUsage(other *Usage) {
	if other == nil {
		return
	}
	u.Price.Value += other.Price.Value
	u.Price.Uncertain = u.Price.Uncertain || other.Price.Uncertain
	u.Input.Add(other.Input)
	u.Output.Add(other.Output)
}

// IsZero reports whether u is the zero usage.
func (u Usage) IsZero() bool {
	return u == Usage{}
}

// AddUsage returns the sum of all usages; with no arguments it returns the zero usage.
func AddUsage(usages ...Usage) Usage {
	var total Usage
	for i := range usages {
		total.AddUsage(&usages[i])
	}
	return total
}

// CountUsage derives the text counts of s. Tokens are left to the provider.
func CountUsage(s string) UsageCounts {
	return UsageCounts{
		Characters: int64(expect.CountCharacters(s)),
		Words:      int64(expect.CountWords(s)),
		Sentences:  int64(expect.CountSentences(s)),
		Lines:      int64(expect.CountLines(s)),
		Paragraphs: int64(expect.CountParagraphs(s)),
		Pages:      int64(expect.CountPages(s)),
	}
}
