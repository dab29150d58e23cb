package types

import (
	"maps"
	"regexp"
	"slices"

	"github.com/goccy/go-json"
)

// Parameters maps parameter names to their string values during a run.
//
// Parameters is a map and is not safe for concurrent modification; the executor
// clones it before handing it to concurrently running templates.
type Parameters map[string]string

// String returns the JSON representation of the parameters, or an empty string
// if they cannot be marshaled.
func (p Parameters) String() string {
	b, err := json.Marshal(p)
	if err != nil {
		return ""
	}
	return string(b)
}

// Clone returns a shallow copy.
func (p Parameters) Clone() Parameters {
	if p == nil {
		return Parameters{}
	}
	return maps.Clone(p)
}

// ReservedKnowledge is the parameter name under which prepared knowledge is exposed to templates.
const ReservedKnowledge = "knowledge"

var placeholder = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Placeholders returns the distinct parameter names referenced as {name} in text,
// in order of first appearance.
func Placeholders(text string) []string {
	var names []string
	for _, m := range placeholder.FindAllStringSubmatch(text, -1) {
		if !slices.Contains(names, m[1]) {
			names = append(names, m[1])
		}
	}
	return names
}

// Substitute replaces every {name} placeholder with its value. Placeholders without a
// value are left untouched and reported in missing.
func Substitute(text string, values Parameters) (result string, missing []string) {
	result = placeholder.ReplaceAllStringFunc(text, func(m string) string {
		name := m[1 : len(m)-1]
		if v, ok := values[name]; ok {
			return v
		}
		if !slices.Contains(missing, name) {
			missing = append(missing, name)
		}
		return m
	})
	return result, missing
}
