package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/liliang-cn/storerouter/internal/domain"
	"github.com/liliang-cn/storerouter/internal/drive"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeDrive struct {
	folderName  string
	folderFiles []string
	folderErr   error
	fetchErr    map[string]error
}

func (d *fakeDrive) ExtractLinks(text string) []domain.DriveLink {
	return drive.ExtractLinks(text, 10)
}

func (d *fakeDrive) Fetch(ctx context.Context, link domain.DriveLink, destDir string) (*domain.FetchedFile, error) {
	if err := d.fetchErr[link.ID]; err != nil {
		return nil, err
	}
	return writeFetched(destDir, link.ID+".pdf", link.URL)
}

func (d *fakeDrive) FolderName(ctx context.Context, folderID string) (string, error) {
	return d.folderName, nil
}

func (d *fakeDrive) FetchFolder(ctx context.Context, folderID, destDir string) ([]domain.FetchedFile, error) {
	var files []domain.FetchedFile
	for _, name := range d.folderFiles {
		f, err := writeFetched(destDir, name, "https://drive.google.com/file/d/"+name)
		if err != nil {
			return nil, err
		}
		files = append(files, *f)
	}
	return files, d.folderErr
}

func writeFetched(dir, name, url string) (*domain.FetchedFile, error) {
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("content"), 0644); err != nil {
		return nil, err
	}
	return &domain.FetchedFile{Path: path, Filename: name, Size: 7, SourceURL: url}, nil
}

func newTestIngest(t *testing.T, d DriveFetcher) (*IngestService, *harness) {
	t.Helper()
	h := newHarness(t)
	return NewIngestService(h.registry, d, h.cfg, zap.NewNop()), h
}

func TestUploadURLs(t *testing.T) {
	d := &fakeDrive{fetchErr: map[string]error{"bad": errors.New("access denied")}}
	ingest, h := newTestIngest(t, d)
	store := h.addStore(t, "Mitino", "")

	report, err := ingest.UploadURLs(context.Background(), store, []string{
		"https://drive.google.com/file/d/good/view",
		"https://drive.google.com/file/d/bad/view",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"good.pdf"}, report.Uploaded)
	require.Len(t, report.Failed, 1)
	assert.Contains(t, report.Failed[0], "access denied")

	got, err := h.registry.FindByID(context.Background(), store.ID)
	require.NoError(t, err)
	require.Len(t, got.Documents, 1)
	assert.Equal(t, domain.DocumentSourceURL, got.Documents[0].Source)
	assert.Equal(t, "https://drive.google.com/file/d/good/view", got.Documents[0].SourceURL)

	_, err = ingest.UploadURLs(context.Background(), store, []string{"https://example.com/file.pdf"})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestUploadURLsWithoutDrive(t *testing.T) {
	ingest, h := newTestIngest(t, nil)
	store := h.addStore(t, "Mitino", "")
	_, err := ingest.UploadURLs(context.Background(), store, []string{"https://drive.google.com/file/d/a"})
	assert.ErrorIs(t, err, domain.ErrBackendUnavailable)
}

func TestIngestFoldersCreatesStoreAndSync(t *testing.T) {
	partial := multierror.Append(nil, fmt.Errorf("broken.pdf: export failed"))
	d := &fakeDrive{folderName: "Tender Khimki", folderFiles: []string{"a.pdf", "b.docx", "c.exe"}, folderErr: partial}
	ingest, h := newTestIngest(t, d)
	ctx := context.Background()

	reports, err := ingest.IngestFolders(ctx, "take https://drive.google.com/drive/folders/F1 please")
	require.NoError(t, err)
	require.Len(t, reports, 1)

	r := reports[0]
	require.NoError(t, r.Err)
	assert.True(t, r.Created)
	assert.Equal(t, "Tender Khimki", r.StoreName)
	assert.Equal(t, []string{"a.pdf", "b.docx"}, r.Report.Uploaded)
	assert.Equal(t, []string{"broken.pdf: export failed", "c.exe: unsupported file type"}, r.Report.Failed)

	store, err := h.registry.FindByName(ctx, "Tender Khimki")
	require.NoError(t, err)
	require.NotNil(t, store)
	assert.Len(t, store.Documents, 2)
	assert.True(t, store.AutoSync)
	assert.Equal(t, []string{"https://drive.google.com/drive/folders/F1"}, store.SyncURLs)

	// A second run reuses the store
	reports, err = ingest.IngestFolders(ctx, "https://drive.google.com/drive/folders/F1")
	require.NoError(t, err)
	assert.False(t, reports[0].Created)
}

func TestSyncAll(t *testing.T) {
	d := &fakeDrive{}
	ingest, h := newTestIngest(t, d)
	ctx := context.Background()

	synced := h.addStore(t, "Synced", "")
	_, err := h.registry.SetSync(ctx, synced.ID, []string{"https://drive.google.com/file/d/doc1"}, true)
	require.NoError(t, err)
	h.addStore(t, "Manual", "")

	require.NoError(t, ingest.SyncAll(ctx))

	got, err := h.registry.FindByID(ctx, synced.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastSync)
	assert.Len(t, got.Documents, 1)
	assert.Len(t, h.backend.uploads, 1)
}

func TestDetectFileType(t *testing.T) {
	assert.Equal(t, "pdf", DetectFileType("Contract.PDF"))
	assert.Equal(t, "md", DetectFileType("notes.markdown"))
	assert.Equal(t, "html", DetectFileType("page.htm"))
	assert.Equal(t, "", DetectFileType("README"))
	assert.True(t, IsSupported("xlsx"))
	assert.False(t, IsSupported("exe"))
	assert.False(t, IsSupported(""))
}

func TestIngestReportSummary(t *testing.T) {
	r := &IngestReport{Uploaded: []string{"a.pdf"}, Failed: []string{"b.pdf: denied"}}
	assert.Equal(t, "Uploaded: 1\n  + a.pdf\nFailed: 1\n  - b.pdf: denied", r.Summary())
}
