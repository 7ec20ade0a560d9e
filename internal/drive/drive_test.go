package drive

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/liliang-cn/storerouter/internal/config"
	"github.com/liliang-cn/storerouter/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestParseLink(t *testing.T) {
	link, ok := ParseLink("https://docs.google.com/document/d/1AbC_d-9/edit?usp=sharing")
	require.True(t, ok)
	assert.Equal(t, "1AbC_d-9", link.ID)
	assert.Equal(t, domain.DriveDocument, link.Kind)

	link, ok = ParseLink("https://drive.google.com/open?id=XYZ")
	require.True(t, ok)
	assert.Equal(t, domain.DriveFile, link.Kind)

	link, ok = ParseLink("https://drive.google.com/drive/u/1/folders/F0LD")
	require.True(t, ok)
	assert.Equal(t, domain.DriveFolder, link.Kind)
	assert.Equal(t, "F0LD", link.ID)

	_, ok = ParseLink("https://example.com/file.pdf")
	assert.False(t, ok)
}

func TestExtractLinks(t *testing.T) {
	text := `Загрузи (https://docs.google.com/spreadsheets/d/S1/edit), и ещё
https://drive.google.com/file/d/F1/view?usp=sharing; повтор https://docs.google.com/spreadsheets/d/S1/
и https://example.com/x`

	links := ExtractLinks(text, 10)
	require.Len(t, links, 2)
	assert.Equal(t, "S1", links[0].ID)
	assert.Equal(t, domain.DriveSpreadsheet, links[0].Kind)
	assert.Equal(t, "https://docs.google.com/spreadsheets/d/S1/edit", links[0].URL)
	assert.Equal(t, "F1", links[1].ID)

	assert.Len(t, ExtractLinks(text, 1), 1)
}

func TestHasFolderLink(t *testing.T) {
	assert.True(t, HasFolderLink("вот папка https://drive.google.com/drive/folders/abc123"))
	assert.False(t, HasFolderLink("https://drive.google.com/file/d/abc/view"))
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "a_b_c_.pdf", SanitizeFilename(`a<b>c?.pdf`))
	assert.Equal(t, "file", SanitizeFilename("  "))
	assert.Len(t, []rune(SanitizeFilename(strings.Repeat("я", 300))), 200)
}

func TestFetchPublic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/doc/D1":
			w.Header().Set("Content-Type", "application/pdf")
			w.Header().Set("Content-Disposition", `attachment; filename*=UTF-8''%D0%A2%D0%97.pdf`)
			io.WriteString(w, "%PDF")
		case "/doc/PRIVATE":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			io.WriteString(w, "<html>sign in</html>")
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	f, err := New(context.Background(), config.DriveConfig{MaxURLs: 10}, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, f.Configured())
	f.publicURLs = map[domain.DriveLinkKind]string{domain.DriveDocument: srv.URL + "/doc/%s"}

	dir := t.TempDir()
	file, err := f.Fetch(context.Background(), domain.DriveLink{URL: "u", ID: "D1", Kind: domain.DriveDocument}, dir)
	require.NoError(t, err)
	assert.Equal(t, "ТЗ.pdf", file.Filename)
	assert.Equal(t, "u", file.SourceURL)
	data, err := os.ReadFile(file.Path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(data))

	_, err = f.Fetch(context.Background(), domain.DriveLink{ID: "PRIVATE", Kind: domain.DriveDocument}, dir)
	assert.Error(t, err)

	_, err = f.Fetch(context.Background(), domain.DriveLink{ID: "x", Kind: domain.DriveFolder}, dir)
	assert.Error(t, err)

	_, err = f.FetchFolder(context.Background(), "folder", dir)
	assert.ErrorIs(t, err, ErrNotConfigured)
}
