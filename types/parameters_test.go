package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParameters_String(t *testing.T) {
	tests := []struct {
		name string
		p    Parameters
		want string
	}{
		{name: "empty map", p: Parameters{}, want: "{}"},
		{name: "simple key-value", p: Parameters{"topic": "cats"}, want: `{"topic":"cats"}`},
		{name: "sorted keys", p: Parameters{"b": "2", "a": "1"}, want: `{"a":"1","b":"2"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.p.String())
		})
	}
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, []string{"topic", "title"}, Placeholders("Write about {topic} titled {title}, {topic} again"))
	assert.Empty(t, Placeholders("no placeholders {} { x }"))
}

func TestSubstitute(t *testing.T) {
	t.Run("replaces known values", func(t *testing.T) {
		got, missing := Substitute("Hello {name}!", Parameters{"name": "world"})
		assert.Equal(t, "Hello world!", got)
		assert.Empty(t, missing)
	})

	t.Run("reports missing values once", func(t *testing.T) {
		got, missing := Substitute("{a} {b} {b}", Parameters{"a": "1"})
		assert.Equal(t, "1 {b} {b}", got)
		assert.Equal(t, []string{"b"}, missing)
	})
}

func TestParseVariant(t *testing.T) {
	v, err := ParseVariant("chat")
	assert.NoError(t, err)
	assert.Equal(t, VariantChat, v)

	_, err = ParseVariant("vision")
	assert.Error(t, err)
}

func TestModelRequirements_Merge(t *testing.T) {
	temp := 0.7
	defaults := ModelRequirements{Variant: VariantChat, ModelName: "gpt-4o-mini", Temperature: &temp, SystemMessage: "be brief"}

	t.Run("fills unset fields", func(t *testing.T) {
		got := ModelRequirements{ModelName: "other"}.Merge(defaults)
		assert.Equal(t, VariantChat, got.Variant)
		assert.Equal(t, "other", got.ModelName)
		assert.InDelta(t, 0.7, *got.Temperature, 1e-9)
		assert.Equal(t, "be brief", got.SystemMessage)
	})

	t.Run("does not alias the default temperature", func(t *testing.T) {
		got := ModelRequirements{}.Merge(defaults)
		*got.Temperature = 1.5
		assert.InDelta(t, 0.7, temp, 1e-9)
	})

	t.Run("zero detection", func(t *testing.T) {
		assert.True(t, ModelRequirements{}.IsZero())
		assert.False(t, defaults.IsZero())
	})
}
