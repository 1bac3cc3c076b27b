package pipeline

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "ñañ", truncateRunes("ñañaña", 3))
	assert.Equal(t, "", truncateRunes("abc", 0))
	assert.Equal(t, "abc", truncateRunes("abc", 5))

	assert.Equal(t, "abcdefg", truncateString("abcdefg", 7))
	assert.Equal(t, "abc...", truncateString("abcdefg", 6))
	assert.Equal(t, "ab", truncateString("abcdefg", 2))
}

func TestUniqStrings(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, uniqStrings([]string{"a", "", "b", "a"}))
	assert.Empty(t, uniqStrings(nil))
}

func TestNormalizeWhitespace(t *testing.T) {
	assert.Equal(t, "a b c", normalizeWhitespace("  a\t b\n\nc "))
}

func TestJSONRoundTrip(t *testing.T) {
	res := RunResult{RunID: "r", Incidents: []Incident{sampleIncident()}}

	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, res))
	assert.Contains(t, buf.String(), `"duplicateOf": "A0000001"`)

	path := filepath.Join(t.TempDir(), "out.json")
	require.NoError(t, WriteJSONFile(path, res))
	var got RunResult
	require.NoError(t, ReadJSONFile(path, &got))
	assert.Equal(t, res.Incidents, got.Incidents)
}
