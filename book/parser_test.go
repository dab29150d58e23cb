package book

import (
	"testing"

	"github.com/casualjim/folio/expect"
	"github.com/casualjim/folio/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const poemBook = "# Write a poem\n" +
	"\n" +
	"Writes a short poem about a topic.\n" +
	"\n" +
	"- PIPELINE URL https://folio.example.com/books/poem.book.md\n" +
	"- BOOK VERSION 1.0.0\n" +
	"- INPUT PARAMETER {topic} The topic of the poem\n" +
	"- OUTPUT PARAMETER {poem} The poem\n" +
	"- MODEL VARIANT Chat\n" +
	"- MODEL NAME gpt-4o-mini\n" +
	"\n" +
	"## Draft the poem\n" +
	"\n" +
	"First pass.\n" +
	"\n" +
	"- MODEL TEMPERATURE 0.7\n" +
	"- EXPECT MIN 5 WORDS\n" +
	"- EXPECT MAX 2 PARAGRAPHS\n" +
	"- MAX ATTEMPTS 3\n" +
	"\n" +
	"```text\n" +
	"Write a poem about {topic}\n" +
	"```\n" +
	"\n" +
	"`-> {draft}`\n" +
	"\n" +
	"## Polish\n" +
	"\n" +
	"- SIMPLE TEMPLATE\n" +
	"\n" +
	"```\n" +
	"{draft}\n" +
	"```\n" +
	"\n" +
	"`-> {poem}`\n"

func TestCompile(t *testing.T) {
	doc, err := Compile(poemBook)
	require.NoError(t, err)

	assert.Equal(t, "Write a poem", doc.Title)
	assert.Equal(t, "Writes a short poem about a topic.", doc.Description)
	assert.Equal(t, "https://folio.example.com/books/poem.book.md", doc.PipelineURL)
	assert.Equal(t, "1.0.0", doc.BookVersion)
	assert.Equal(t, types.VariantChat, doc.DefaultModelRequirements.Variant)
	assert.Equal(t, "gpt-4o-mini", doc.DefaultModelRequirements.ModelName)

	assert.Equal(t, []Parameter{
		{Name: "topic", Description: "The topic of the poem", IsInput: true},
		{Name: "poem", Description: "The poem", IsOutput: true},
		{Name: "draft"},
	}, doc.Parameters)

	require.Len(t, doc.Templates, 2)

	draft := doc.Templates[0]
	assert.Equal(t, "draft-the-poem", draft.Name)
	assert.Equal(t, "Draft the poem", draft.Title)
	assert.Equal(t, "First pass.", draft.Description)
	assert.Equal(t, KindPrompt, draft.Kind)
	assert.Equal(t, "Write a poem about {topic}", draft.Content)
	assert.Equal(t, "text", draft.ContentLanguage)
	assert.Equal(t, "draft", draft.ResultParameter)
	assert.Equal(t, 3, draft.Attempts())
	require.NotNil(t, draft.ModelRequirements.Temperature)
	assert.InDelta(t, 0.7, *draft.ModelRequirements.Temperature, 1e-9)
	require.NotNil(t, draft.Expectations)
	assert.Equal(t, 5, *draft.Expectations.Counts[expect.Words].Min)
	assert.Equal(t, 2, *draft.Expectations.Counts[expect.Paragraphs].Max)

	polish := doc.Templates[1]
	assert.Equal(t, "polish", polish.Name)
	assert.Equal(t, KindSimple, polish.Kind)
	assert.Equal(t, "{draft}", polish.Content)
	assert.Empty(t, polish.ContentLanguage)
	assert.Equal(t, 1, polish.Attempts())

	assert.NoError(t, Validate(doc))
}

func TestCompile_Features(t *testing.T) {
	t.Run("implicit template", func(t *testing.T) {
		doc, err := Compile("# Quick\n\n- INPUT PARAMETER {q}\n\n```\nAnswer {q}\n```\n`-> {answer}`\n")
		require.NoError(t, err)
		require.Len(t, doc.Templates, 1)
		assert.Equal(t, "prompt", doc.Templates[0].Name)
		assert.Equal(t, ImplicitTemplateTitle, doc.Templates[0].Title)
		assert.Equal(t, "Answer {q}", doc.Templates[0].Content)
		assert.Equal(t, "answer", doc.Templates[0].ResultParameter)
	})

	t.Run("bare command lines", func(t *testing.T) {
		doc, err := Compile("# T\n\nINPUT PARAMETER {a} first\nPARAMETER {b}\nMODEL NAME gpt\n\n## S\n\nEXPECT EXACTLY 3 WORDS\nFORMAT JSON\n\n```\n{a}\n```\n")
		require.NoError(t, err)
		assert.Len(t, doc.Parameters, 2)
		assert.Equal(t, "gpt", doc.DefaultModelRequirements.ModelName)
		exp := doc.Templates[0].Expectations
		require.NotNil(t, exp)
		assert.Equal(t, 3, *exp.Counts[expect.Words].Min)
		assert.Equal(t, 3, *exp.Counts[expect.Words].Max)
		assert.Equal(t, expect.FormatJSON, exp.Format)
	})

	t.Run("prose starting with a keyword stays prose", func(t *testing.T) {
		doc, err := Compile("# T\n\nMODEL answers are reviewed.\n\n## S\n\n```\nx\n```\n")
		require.NoError(t, err)
		assert.Equal(t, "MODEL answers are reviewed.", doc.Description)
	})

	t.Run("longer fence keeps inner backticks", func(t *testing.T) {
		doc, err := Compile("## Code\n\n````md\n```go\nfmt.Println()\n```\n````\n")
		require.NoError(t, err)
		assert.Equal(t, "```go\nfmt.Println()\n```", doc.Templates[0].Content)
		assert.Equal(t, "md", doc.Templates[0].ContentLanguage)
	})

	t.Run("knowledge sources are named by content", func(t *testing.T) {
		doc, err := Compile("# T\n\n- KNOWLEDGE https://example.com/faq.md\n- KNOWLEDGE Folio is a book compiler\n")
		require.NoError(t, err)
		require.Len(t, doc.Knowledge, 2)
		assert.Equal(t, "https://example.com/faq.md", doc.Knowledge[0].Source)
		assert.Regexp(t, `^folio-is-a-book-comp-[0-9a-f]{8}$`, doc.Knowledge[1].Name)
	})

	t.Run("expect json in any case", func(t *testing.T) {
		for _, line := range []string{"- EXPECT JSON", "- EXPECT json", "EXPECT Json"} {
			doc, err := Compile("## S\n\n" + line + "\n\n```\nx\n```\n")
			require.NoError(t, err, line)
			require.NotNil(t, doc.Templates[0].Expectations, line)
			assert.Equal(t, expect.FormatJSON, doc.Templates[0].Expectations.Format, line)
		}
	})

	t.Run("lower case model key", func(t *testing.T) {
		doc, err := Compile("- MODEL system You are terse\n")
		require.NoError(t, err)
		assert.Equal(t, "You are terse", doc.DefaultModelRequirements.SystemMessage)
	})
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		line    int
		message string
		hint    string
	}{
		{name: "unknown command", source: "# T\n\n- PIPELNE URL https://x.com\n", line: 3, message: "unknown command", hint: "did you mean PIPELINE URL <url>?"},
		{name: "duplicate template", source: "## A b\n```\nx\n```\n## A-B\n```\ny\n```\n", line: 5, message: `duplicate template name "a-b"`},
		{name: "malformed url", source: "- PIPELINE URL ftp://x.com\n", line: 1, message: "invalid url"},
		{name: "url without host", source: "- PIPELINE URL https://\n", line: 1, message: "invalid url"},
		{name: "duplicate url", source: "- PIPELINE URL https://a.com\n- PIPELINE URL https://b.com\n", line: 2, message: "already set"},
		{name: "malformed version", source: "- BOOK VERSION one\n", line: 1, message: "invalid version"},
		{name: "duplicate parameter", source: "- INPUT PARAMETER {a}\n- PARAMETER {a}\n", line: 2, message: "declared more than once"},
		{name: "bad parameter syntax", source: "- INPUT PARAMETER a\n", line: 1, message: "expected {name}"},
		{name: "unclosed fence", source: "## A\n```\nx\n", line: 2, message: "unclosed code block"},
		{name: "missing content", source: "## A\n\nnothing here\n", line: 1, message: "has no content block"},
		{name: "two content blocks", source: "## A\n```\nx\n```\n```\ny\n```\n", line: 5, message: "more than one content block"},
		{name: "expect in head", source: "- EXPECT MIN 1 WORDS\n", line: 1, message: "inside a template section"},
		{name: "parameter in section", source: "## A\n- INPUT PARAMETER {a}\n```\nx\n```\n", line: 2, message: "head of the book"},
		{name: "invalid number", source: "## A\n- EXPECT MIN many WORDS\n```\nx\n```\n", line: 2, message: "invalid number"},
		{name: "unknown unit", source: "## A\n- EXPECT MIN 3 BYTES\n```\nx\n```\n", line: 2, message: "unknown unit"},
		{name: "bad attempts", source: "## A\n- MAX ATTEMPTS 0\n```\nx\n```\n", line: 2, message: "positive integer"},
		{name: "temperature out of range", source: "- MODEL TEMPERATURE 3\n", line: 1, message: "between 0 and 2"},
		{name: "unknown model key", source: "- MODEL TEMPERATUR 1\n", line: 1, message: "unknown model requirement", hint: "did you mean MODEL TEMPERATURE?"},
		{name: "two titles", source: "# A\n# B\n", line: 2, message: "more than one title"},
		{name: "two results", source: "## A\n```\nx\n```\n`-> {a}`\n`-> {b}`\n", line: 6, message: "already has a result parameter"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.source)
			require.Error(t, err)

			var perr *ParsingError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tt.line, perr.Line)
			assert.Contains(t, perr.Message, tt.message)
			if tt.hint != "" {
				assert.Equal(t, tt.hint, perr.Hint)
			}
		})
	}
}

func TestParsingError_Error(t *testing.T) {
	err := &ParsingError{Line: 4, Command: "PIPELNE", Message: "unknown command", Hint: "did you mean PIPELINE URL <url>?"}
	assert.Equal(t, "line 4: PIPELNE: unknown command (did you mean PIPELINE URL <url>?)", err.Error())
}

func TestMustCompile(t *testing.T) {
	assert.Panics(t, func() { MustCompile("- NOPE\n") })
	assert.NotPanics(t, func() { MustCompile(poemBook) })
}
