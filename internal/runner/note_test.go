package runner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lib2notes/internal/analyzer"
)

func TestRenderNote(t *testing.T) {
	body, err := renderNote("Deep Work", &analyzer.Analysis{
		Summary:   "A book about focus.",
		KeyPoints: []string{"Focus is rare", "Schedule depth"},
	})
	require.NoError(t, err)

	assert.Contains(t, body, "<h1>Summary: Deep Work</h1>")
	assert.Contains(t, body, "<p>A book about focus.</p>")
	assert.Contains(t, body, "<li>Focus is rare</li>")
	assert.Contains(t, body, "<li>Schedule depth</li>")
}

func TestRenderNoteEscapesMarkup(t *testing.T) {
	body, err := renderNote("<script>x</script>", &analyzer.Analysis{Summary: "s"})
	require.NoError(t, err)
	assert.NotContains(t, body, "<script>")
}

func TestRenderNoteWithoutKeyPoints(t *testing.T) {
	body, err := renderNote("Title", &analyzer.Analysis{Summary: "Just a summary."})
	require.NoError(t, err)
	assert.NotContains(t, body, "<h2>Key points</h2>")
}
