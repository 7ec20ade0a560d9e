package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/liliang-cn/storerouter/internal/config"
	"github.com/liliang-cn/storerouter/internal/domain"
	"go.uber.org/zap"
)

// IngestService moves documents from uploads and drive links into stores
type IngestService struct {
	registry StoreRegistry
	drive    DriveFetcher
	cfg      *config.Config
	logger   *zap.Logger
}

// NewIngestService creates a new ingest service. drive may be nil.
func NewIngestService(
	registry StoreRegistry,
	drive DriveFetcher,
	cfg *config.Config,
	logger *zap.Logger,
) *IngestService {
	return &IngestService{
		registry: registry,
		drive:    drive,
		cfg:      cfg,
		logger:   logger.Named("ingest"),
	}
}

// FileType constants
const (
	FileTypePDF  = "pdf"
	FileTypeDOCX = "docx"
	FileTypeDOC  = "doc"
	FileTypeXLSX = "xlsx"
	FileTypeXLS  = "xls"
	FileTypePPTX = "pptx"
	FileTypeCSV  = "csv"
	FileTypeMD   = "md"
	FileTypeTXT  = "txt"
	FileTypeHTML = "html"
	FileTypeJSON = "json"
)

var supportedTypes = map[string]bool{
	FileTypePDF: true, FileTypeDOCX: true, FileTypeDOC: true, FileTypeXLSX: true,
	FileTypeXLS: true, FileTypePPTX: true, FileTypeCSV: true, FileTypeMD: true,
	FileTypeTXT: true, FileTypeHTML: true, FileTypeJSON: true,
}

// DetectFileType detects file type from filename
func DetectFileType(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".md", ".markdown":
		return FileTypeMD
	case ".html", ".htm":
		return FileTypeHTML
	case "":
		return ""
	default:
		return ext[1:]
	}
}

// IsSupported checks if file type is supported
func IsSupported(fileType string) bool {
	return supportedTypes[fileType]
}

// IngestReport lists the outcome of a batch upload
type IngestReport struct {
	Uploaded []string
	Failed   []string
}

// Summary renders the report for a chat reply
func (r *IngestReport) Summary() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Uploaded: %d", len(r.Uploaded))
	for _, name := range r.Uploaded {
		sb.WriteString("\n  + " + name)
	}
	if len(r.Failed) > 0 {
		fmt.Fprintf(&sb, "\nFailed: %d", len(r.Failed))
		for _, f := range r.Failed {
			sb.WriteString("\n  - " + f)
		}
	}
	return sb.String()
}

// FolderReport is the outcome of ingesting one drive folder
type FolderReport struct {
	StoreName string
	Created   bool
	Report    *IngestReport
	Err       error
}

// SaveUpload stores a multipart upload under the documents directory
func (s *IngestService) SaveUpload(storeID string, file *multipart.FileHeader) (*domain.FetchedFile, error) {
	fileType := DetectFileType(file.Filename)
	if !IsSupported(fileType) {
		return nil, fmt.Errorf("unsupported file type %q: %w", fileType, domain.ErrInvalidRequest)
	}

	// Create storage directory
	storageDir := filepath.Join(s.cfg.Storage.Documents, storeID)
	if err := os.MkdirAll(storageDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	storagePath := filepath.Join(storageDir, uuid.New().String()+filepath.Ext(file.Filename))

	// Save file
	src, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(storagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return nil, fmt.Errorf("failed to save file: %w", err)
	}

	return &domain.FetchedFile{
		Path:     storagePath,
		Filename: filepath.Base(file.Filename),
		Size:     file.Size,
	}, nil
}

// UploadLocal uploads a file already on disk into the store
func (s *IngestService) UploadLocal(ctx context.Context, store *domain.Store, file domain.FetchedFile) error {
	if fileType := DetectFileType(file.Filename); !IsSupported(fileType) {
		return fmt.Errorf("unsupported file type %q: %w", fileType, domain.ErrInvalidRequest)
	}
	return s.registry.UploadDocument(ctx, store, file, domain.DocumentSourceUpload)
}

// UploadURLs downloads every drive link found in urls and uploads the files into the store
func (s *IngestService) UploadURLs(ctx context.Context, store *domain.Store, urls []string) (*IngestReport, error) {
	if s.drive == nil {
		return nil, fmt.Errorf("drive access is not configured: %w", domain.ErrBackendUnavailable)
	}
	links := s.drive.ExtractLinks(strings.Join(urls, " "))
	if len(links) == 0 {
		return nil, fmt.Errorf("no drive links found: %w", domain.ErrInvalidRequest)
	}

	tmp, err := s.tempDir()
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tmp)

	report := &IngestReport{}
	for _, link := range links {
		if link.Kind == domain.DriveFolder {
			files, err := s.drive.FetchFolder(ctx, link.ID, tmp)
			if err != nil {
				report.Failed = append(report.Failed, s.failures(link.URL, err)...)
			}
			s.uploadAll(ctx, store, files, domain.DocumentSourceFolder, report)
			continue
		}

		file, err := s.drive.Fetch(ctx, link, tmp)
		if err != nil {
			report.Failed = append(report.Failed, fmt.Sprintf("%s: %v", link.URL, err))
			continue
		}
		s.uploadAll(ctx, store, []domain.FetchedFile{*file}, domain.DocumentSourceURL, report)
	}
	return report, nil
}

// IngestFolders creates or reuses one store per folder link in text and fills it with the folder's files
func (s *IngestService) IngestFolders(ctx context.Context, text string) ([]FolderReport, error) {
	if s.drive == nil {
		return nil, fmt.Errorf("drive access is not configured: %w", domain.ErrBackendUnavailable)
	}

	var reports []FolderReport
	for _, link := range s.drive.ExtractLinks(text) {
		if link.Kind != domain.DriveFolder {
			continue
		}
		reports = append(reports, s.ingestFolder(ctx, link))
	}
	return reports, nil
}

func (s *IngestService) ingestFolder(ctx context.Context, link domain.DriveLink) FolderReport {
	name, err := s.drive.FolderName(ctx, link.ID)
	if err != nil {
		return FolderReport{StoreName: link.URL, Err: err}
	}

	fr := FolderReport{StoreName: name}
	store, err := s.registry.FindByName(ctx, name)
	if err != nil {
		fr.Err = err
		return fr
	}
	if store == nil {
		store, err = s.registry.Create(ctx, name, "Imported from a drive folder")
		if err != nil {
			fr.Err = err
			return fr
		}
		fr.Created = true
	}

	tmp, err := s.tempDir()
	if err != nil {
		fr.Err = err
		return fr
	}
	defer os.RemoveAll(tmp)

	fr.Report = &IngestReport{}
	files, err := s.drive.FetchFolder(ctx, link.ID, tmp)
	if err != nil {
		fr.Report.Failed = append(fr.Report.Failed, s.failures(link.URL, err)...)
	}
	s.uploadAll(ctx, store, files, domain.DocumentSourceFolder, fr.Report)

	// Keep the folder as the store's sync source
	if _, err := s.registry.SetSync(ctx, store.ID, []string{link.URL}, true); err != nil {
		s.logger.Warn("failed to set folder sync", zap.String("store", name), zap.Error(err))
	}
	return fr
}

// SyncStore re-uploads everything behind the store's sync URLs
func (s *IngestService) SyncStore(ctx context.Context, store *domain.Store) (*IngestReport, error) {
	if len(store.SyncURLs) == 0 {
		return nil, fmt.Errorf("store %q has no sync URLs: %w", store.Name, domain.ErrInvalidRequest)
	}

	report, err := s.UploadURLs(ctx, store, store.SyncURLs)
	if err != nil {
		return nil, err
	}
	if len(report.Uploaded) > 0 {
		if err := s.registry.MarkSynced(ctx, store.ID, time.Now()); err != nil {
			return report, err
		}
	}

	s.logger.Info("store synced",
		zap.String("store", store.Name),
		zap.Int("uploaded", len(report.Uploaded)),
		zap.Int("failed", len(report.Failed)))
	return report, nil
}

// SyncAll syncs every store with auto sync enabled
func (s *IngestService) SyncAll(ctx context.Context) error {
	stores, err := s.registry.List(ctx)
	if err != nil {
		return err
	}

	var errs *multierror.Error
	for _, store := range stores {
		if !store.AutoSync || len(store.SyncURLs) == 0 {
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := s.SyncStore(ctx, store); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", store.Name, err))
		}
	}
	return errs.ErrorOrNil()
}

func (s *IngestService) uploadAll(ctx context.Context, store *domain.Store, files []domain.FetchedFile, source string, report *IngestReport) {
	for _, file := range files {
		if !IsSupported(DetectFileType(file.Filename)) {
			report.Failed = append(report.Failed, file.Filename+": unsupported file type")
			continue
		}
		if err := s.registry.UploadDocument(ctx, store, file, source); err != nil {
			report.Failed = append(report.Failed, fmt.Sprintf("%s: %v", file.Filename, err))
			continue
		}
		report.Uploaded = append(report.Uploaded, file.Filename)
	}
}

// failures flattens a multierror into one line per failed file
func (s *IngestService) failures(source string, err error) []string {
	var merr *multierror.Error
	if errors.As(err, &merr) {
		out := make([]string, 0, len(merr.Errors))
		for _, e := range merr.Errors {
			out = append(out, e.Error())
		}
		return out
	}
	return []string{fmt.Sprintf("%s: %v", source, err)}
}

func (s *IngestService) tempDir() (string, error) {
	if err := os.MkdirAll(s.cfg.Storage.Documents, 0755); err != nil {
		return "", fmt.Errorf("failed to create storage directory: %w", err)
	}
	dir, err := os.MkdirTemp(s.cfg.Storage.Documents, "fetch-")
	if err != nil {
		return "", fmt.Errorf("failed to create download directory: %w", err)
	}
	return dir, nil
}
