package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecoverStrategies(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		strategy string
		docs     int
	}{
		{"valid object", `{"a":1}`, StrategyDirect, 1},
		{"valid array", `[{"a":1},{"b":2}]`, StrategyDirect, 1},
		{"nested data prefixes", `data: data: {"a":1}`, StrategyStrip, 1},
		{"trailing comma", `{"a":1},`, StrategyStrip, 1},
		{"leading comma", `,{"a":1}`, StrategyStrip, 1},
		{"comma before closers", `{"a":[1,2,],}`, StrategyStrip, 1},
		{"control characters", "{\"a\":\x01 1}", StrategyStrip, 1},
		{"trailing garbage", `{"a":1}garbage`, StrategyPrefix, 1},
		{"two concatenated objects", `{"a":1}{"b":2}`, StrategySplit, 2},
		{"objects with junk between", `{"a":1} junk {"b":2}`, StrategySplit, 2},
		{"truncated string", `{"a":{"b":"hel`, StrategyAutoClose, 1},
		{"truncated after comma", `{"a":1,`, StrategyAutoClose, 1},
		{"truncated after colon", `{"a":`, StrategyAutoClose, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs, strategy, ok := Recover(tt.line)
			require.True(t, ok)
			assert.Equal(t, tt.strategy, strategy)
			assert.Len(t, docs, tt.docs)
		})
	}
}

func TestRecoverUnrecoverable(t *testing.T) {
	for _, line := range []string{
		"not json at all",
		`{"a":1]`,
		"",
	} {
		_, _, ok := Recover(line)
		assert.False(t, ok, "line %q", line)
	}
}

func TestRecoverTruncatedEnvelopeKeepsText(t *testing.T) {
	docs, strategy, ok := Recover(`{"candidates":[{"content":{"parts":[{"text":"Hel`)
	require.True(t, ok)
	assert.Equal(t, StrategyAutoClose, strategy)
	assert.Equal(t, "Hel", docs[0].Get("candidates.0.content.parts.0.text").String())
}

func TestStripArtifacts(t *testing.T) {
	assert.Equal(t, `{"a":"x, }"}`, StripArtifacts(`data: {"a":"x, }"},`))
	assert.Equal(t, `[1,2]`, StripArtifacts("\ufeff[1,2,]"))
}

func TestBalancedPrefix(t *testing.T) {
	got, ok := BalancedPrefix(`xx{"a":"}"}tail`)
	require.True(t, ok)
	assert.Equal(t, `{"a":"}"}`, got)

	got, ok = BalancedPrefix(`{"a":1}{"b":2}`)
	require.True(t, ok)
	assert.Equal(t, `{"a":1}{"b":2}`, got, "longest balanced prefix")

	_, ok = BalancedPrefix(`{"a":1`)
	assert.False(t, ok)
}

func TestSplitObjects(t *testing.T) {
	assert.Equal(t,
		[]string{`{"a":1}`, `{"b":[2]}`},
		SplitObjects(`{"a":1},{"b":[2]}`))
	assert.Equal(t,
		[]string{`{"s":"{["}`},
		SplitObjects(`{"s":"{["}`))
	assert.Empty(t, SplitObjects(`no objects here`))
}

func TestAutoClose(t *testing.T) {
	got, ok := AutoClose(`{"a":[{"b":"x`)
	require.True(t, ok)
	assert.Equal(t, `{"a":[{"b":"x"}]}`, got)

	got, ok = AutoClose(`{"a":"x\`)
	require.True(t, ok)
	assert.Equal(t, `{"a":"x"}`, got)

	_, ok = AutoClose(`{"a":1}`)
	assert.False(t, ok, "nothing to close")

	_, ok = AutoClose(`{"a":[1}`)
	assert.False(t, ok, "mismatched closer")
}
