package export

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/models"
)

func TestConvertMarkdownToPDF(t *testing.T) {
	service := NewService(t.TempDir(), arbor.NewLogger())

	tests := []struct {
		name     string
		markdown string
	}{
		{
			name:     "Basic markdown",
			markdown: "# Title\n\nSome paragraph text.\n\n- Item 1\n- Item 2",
		},
		{
			name:     "Empty markdown",
			markdown: "",
		},
		{
			name:     "Bold and blockquote",
			markdown: "**@bob asked:**\n\n> what does this mean\n\nNormal text again.\n\n---\n\nnext section",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pdfBytes, err := service.ConvertMarkdownToPDF(tt.markdown, "Test Document")
			require.NoError(t, err)
			assert.NotEmpty(t, pdfBytes)
			assert.Equal(t, "%PDF", string(pdfBytes[:4]))
		})
	}
}

func TestExportAccount(t *testing.T) {
	dir := t.TempDir()
	service := NewService(dir, arbor.NewLogger())

	items := []Item{
		{Post: &models.Post{ID: "100", Username: "alice", Text: "a post worth exporting"}},
	}

	path, err := service.ExportAccount("alice", items)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "alice.pdf"), path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	md, err := os.ReadFile(filepath.Join(dir, "alice.md"))
	require.NoError(t, err)
	assert.Contains(t, string(md), "# @alice")
}
