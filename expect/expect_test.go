package expect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(n int) *int { return &n }

func TestCount(t *testing.T) {
	text := "Hello there. How are you?\nFine!\n\nSecond paragraph"
	tests := []struct {
		unit Unit
		want int
	}{
		{Characters, 49},
		{Words, 8},
		{Sentences, 4},
		{Lines, 4},
		{Paragraphs, 2},
		{Pages, 1},
	}
	for _, tt := range tests {
		t.Run(string(tt.unit), func(t *testing.T) {
			assert.Equal(t, tt.want, Count(tt.unit, text))
		})
	}

	t.Run("empty text", func(t *testing.T) {
		for _, u := range Units {
			assert.Zero(t, Count(u, "   "), u)
		}
	})

	t.Run("pages round up", func(t *testing.T) {
		lines := make([]byte, 0, 2*45)
		for i := 0; i < 45; i++ {
			lines = append(lines, 'x', '\n')
		}
		assert.Equal(t, 2, CountPages(string(lines)))
	})
}

func TestParseUnit(t *testing.T) {
	for _, in := range []string{"word", "WORDS", "Words"} {
		u, err := ParseUnit(in)
		require.NoError(t, err)
		assert.Equal(t, Words, u)
	}
	_, err := ParseUnit("bytes")
	assert.Error(t, err)
}

func TestCheck(t *testing.T) {
	t.Run("no constraints always pass", func(t *testing.T) {
		assert.NoError(t, Check(nil, "anything"))
		assert.NoError(t, Check(&Expectations{}, ""))
		assert.True(t, IsPassing(&Expectations{}, ""))
	})

	t.Run("min words violated", func(t *testing.T) {
		e := &Expectations{}
		e.SetMin(Words, 5)
		err := Check(e, "hi")
		require.Error(t, err)

		var expectErr *ExpectError
		require.ErrorAs(t, err, &expectErr)
		assert.Equal(t, Words, expectErr.Unit)
		assert.Equal(t, 1, expectErr.Observed)
		assert.Equal(t, "expected at least 5 words but got 1", err.Error())
		assert.False(t, IsPassing(e, "hi"))
	})

	t.Run("max lines violated", func(t *testing.T) {
		e := &Expectations{Counts: map[Unit]Range{Lines: {Max: ptr(1)}}}
		err := Check(e, "a\nb")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "at most 1 lines but got 2")
	})

	t.Run("range satisfied", func(t *testing.T) {
		e := &Expectations{Counts: map[Unit]Range{Words: {Min: ptr(2), Max: ptr(3)}}}
		assert.True(t, IsPassing(e, "two words"))
	})

	t.Run("json format", func(t *testing.T) {
		e := &Expectations{Format: FormatJSON}
		assert.True(t, IsPassing(e, ` {"ok": true} `))
		err := Check(e, "not json")
		var expectErr *ExpectError
		require.ErrorAs(t, err, &expectErr)
		assert.Equal(t, FormatJSON, expectErr.Format)
	})
}

func TestValidate(t *testing.T) {
	t.Run("min greater than max", func(t *testing.T) {
		e := &Expectations{Counts: map[Unit]Range{Words: {Min: ptr(10), Max: ptr(5)}}}
		err := Validate(e)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "min 10 greater than max 5")
	})

	t.Run("negative bound", func(t *testing.T) {
		e := &Expectations{Counts: map[Unit]Range{Pages: {Min: ptr(-1)}}}
		assert.Error(t, Validate(e))
	})

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, Validate(nil))
		assert.NoError(t, Validate(&Expectations{Counts: map[Unit]Range{Words: {Min: ptr(5), Max: ptr(5)}}, Format: FormatJSON}))
	})

	t.Run("unknown format", func(t *testing.T) {
		assert.Error(t, Validate(&Expectations{Format: "XML"}))
	})
}
