// Package drive downloads files and folders shared by cloud drive links.
//
// With a service account the drive v3 API is used; without one only files
// shared as "anyone with the link" can be fetched through public export URLs.
package drive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/hashicorp/go-multierror"
	"github.com/liliang-cn/storerouter/internal/config"
	"github.com/liliang-cn/storerouter/internal/domain"
	"go.uber.org/zap"
	drivev3 "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

const folderMimeType = "application/vnd.google-apps.folder"

type exportFormat struct {
	mimeType  string
	extension string
}

// native formats and what they are exported as
var nativeExports = map[string]exportFormat{
	"application/vnd.google-apps.document":     {"application/pdf", ".pdf"},
	"application/vnd.google-apps.spreadsheet":  {"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", ".xlsx"},
	"application/vnd.google-apps.presentation": {"application/pdf", ".pdf"},
	"application/vnd.google-apps.drawing":      {"application/pdf", ".pdf"},
}

var defaultPublicURLs = map[domain.DriveLinkKind]string{
	domain.DriveDocument:     "https://docs.google.com/document/d/%s/export?format=pdf",
	domain.DriveSpreadsheet:  "https://docs.google.com/spreadsheets/d/%s/export?format=xlsx",
	domain.DrivePresentation: "https://docs.google.com/presentation/d/%s/export/pdf",
	domain.DriveFile:         "https://drive.google.com/uc?export=download&id=%s",
}

var publicExtensions = map[domain.DriveLinkKind]string{
	domain.DriveDocument:     ".pdf",
	domain.DriveSpreadsheet:  ".xlsx",
	domain.DrivePresentation: ".pdf",
}

// ErrNotConfigured is returned for operations that need a service account
var ErrNotConfigured = errors.New("drive service account is not configured")

// Fetcher downloads drive files into local directories
type Fetcher struct {
	svc            *drivev3.Service
	httpClient     *http.Client
	publicURLs     map[domain.DriveLinkKind]string
	maxURLs        int
	maxFolderFiles int
	logger         *zap.Logger
}

// New creates a fetcher. A missing credentials file is not an error: the
// fetcher then works in public-link mode.
func New(ctx context.Context, cfg config.DriveConfig, logger *zap.Logger) (*Fetcher, error) {
	f := &Fetcher{
		httpClient:     &http.Client{Timeout: 60 * time.Second},
		publicURLs:     defaultPublicURLs,
		maxURLs:        cfg.MaxURLs,
		maxFolderFiles: cfg.MaxFolderFiles,
		logger:         logger.Named("drive"),
	}
	if f.maxFolderFiles <= 0 {
		f.maxFolderFiles = 50
	}

	if cfg.CredentialsFile == "" {
		return f, nil
	}
	if _, err := os.Stat(cfg.CredentialsFile); err != nil {
		f.logger.Warn("service account file not found, using public links only",
			zap.String("path", cfg.CredentialsFile))
		return f, nil
	}

	svc, err := drivev3.NewService(ctx,
		option.WithCredentialsFile(cfg.CredentialsFile),
		option.WithScopes(drivev3.DriveReadonlyScope),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}
	f.svc = svc
	f.logger.Info("drive API initialized")
	return f, nil
}

// Configured reports whether the drive API is available
func (f *Fetcher) Configured() bool {
	return f.svc != nil
}

// ExtractLinks finds drive links in text, capped at the configured maximum
func (f *Fetcher) ExtractLinks(text string) []domain.DriveLink {
	return ExtractLinks(text, f.maxURLs)
}

// Fetch downloads the file behind link into destDir
func (f *Fetcher) Fetch(ctx context.Context, link domain.DriveLink, destDir string) (*domain.FetchedFile, error) {
	if link.Kind == domain.DriveFolder {
		return nil, fmt.Errorf("%s is a folder", link.URL)
	}
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create download directory: %w", err)
	}

	var (
		file *domain.FetchedFile
		err  error
	)
	if f.svc != nil {
		file, err = f.fetchAPI(ctx, link.ID, destDir)
	} else {
		file, err = f.fetchPublic(ctx, link, destDir)
	}
	if err != nil {
		return nil, err
	}
	file.SourceURL = link.URL
	return file, nil
}

// FolderName returns the display name of a folder
func (f *Fetcher) FolderName(ctx context.Context, folderID string) (string, error) {
	if f.svc == nil {
		return "", ErrNotConfigured
	}
	info, err := f.svc.Files.Get(folderID).Fields("id", "name").SupportsAllDrives(true).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to read folder %s: %w", folderID, err)
	}
	return info.Name, nil
}

// FetchFolder downloads up to the configured number of files from a folder
// and its subfolders. Files that fail are reported in the returned error
// while the rest are still returned.
func (f *Fetcher) FetchFolder(ctx context.Context, folderID, destDir string) ([]domain.FetchedFile, error) {
	if f.svc == nil {
		return nil, ErrNotConfigured
	}
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create download directory: %w", err)
	}

	items, err := f.listFolder(ctx, folderID)
	if err != nil {
		return nil, err
	}

	var files []domain.FetchedFile
	var errs *multierror.Error
	for _, item := range items {
		file, err := f.fetchAPI(ctx, item.Id, destDir)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", item.Name, err))
			continue
		}
		file.SourceURL = "https://drive.google.com/file/d/" + item.Id
		files = append(files, *file)
	}
	return files, errs.ErrorOrNil()
}

func (f *Fetcher) listFolder(ctx context.Context, folderID string) ([]*drivev3.File, error) {
	var files []*drivev3.File
	queue := []string{folderID}

	for len(queue) > 0 && len(files) < f.maxFolderFiles {
		current := queue[0]
		queue = queue[1:]

		pageToken := ""
		for {
			call := f.svc.Files.List().
				Q(fmt.Sprintf("'%s' in parents and trashed = false", current)).
				Fields("nextPageToken, files(id, name, mimeType, size)").
				PageSize(100).
				SupportsAllDrives(true).
				IncludeItemsFromAllDrives(true).
				Context(ctx)
			if pageToken != "" {
				call = call.PageToken(pageToken)
			}
			resp, err := call.Do()
			if err != nil {
				return nil, fmt.Errorf("failed to list folder %s: %w", current, err)
			}

			for _, item := range resp.Files {
				if item.MimeType == folderMimeType {
					queue = append(queue, item.Id)
					continue
				}
				files = append(files, item)
				if len(files) >= f.maxFolderFiles {
					return files, nil
				}
			}

			pageToken = resp.NextPageToken
			if pageToken == "" {
				break
			}
		}
	}
	return files, nil
}

func (f *Fetcher) fetchAPI(ctx context.Context, fileID, destDir string) (*domain.FetchedFile, error) {
	info, err := f.svc.Files.Get(fileID).Fields("id", "name", "mimeType", "size").SupportsAllDrives(true).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to read file info %s: %w", fileID, err)
	}

	name := info.Name
	if name == "" {
		name = fileID
	}

	var resp *http.Response
	if export, ok := nativeExports[info.MimeType]; ok {
		if !strings.HasSuffix(strings.ToLower(name), export.extension) {
			name += export.extension
		}
		resp, err = f.svc.Files.Export(fileID, export.mimeType).Context(ctx).Download()
	} else {
		resp, err = f.svc.Files.Get(fileID).SupportsAllDrives(true).Context(ctx).Download()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", fileID, err)
	}
	defer resp.Body.Close()

	return save(resp.Body, destDir, name)
}

func (f *Fetcher) fetchPublic(ctx context.Context, link domain.DriveLink, destDir string) (*domain.FetchedFile, error) {
	tmpl, ok := f.publicURLs[link.Kind]
	if !ok {
		return nil, fmt.Errorf("unsupported link type for public download: %s", link.Kind)
	}
	u := fmt.Sprintf(tmpl, link.ID)

	var file *domain.FetchedFile
	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			resp, err := f.httpClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
				return fmt.Errorf("public download failed: HTTP %d", resp.StatusCode)
			}
			if resp.StatusCode != http.StatusOK {
				return retry.Unrecoverable(fmt.Errorf("public download failed: HTTP %d", resp.StatusCode))
			}
			// An HTML page instead of an export means the file is not shared publicly
			if strings.Contains(resp.Header.Get("Content-Type"), "text/html") && link.Kind != domain.DriveFile {
				return retry.Unrecoverable(fmt.Errorf("got an HTML page instead of a file, is the link public?"))
			}

			name := filenameFromDisposition(resp.Header.Get("Content-Disposition"))
			if name == "" {
				name = link.ID + publicExtensions[link.Kind]
			}
			file, err = save(resp.Body, destDir, name)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(2),
		retry.Delay(500*time.Millisecond),
		retry.MaxJitter(500*time.Millisecond),
		retry.DelayType(retry.CombineDelay(retry.FixedDelay, retry.RandomDelay)),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", link.ID, err)
	}

	f.logger.Info("downloaded public file", zap.String("id", link.ID), zap.String("file", file.Filename))
	return file, nil
}

func filenameFromDisposition(header string) string {
	if header == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	return params["filename"]
}

func save(r io.Reader, destDir, name string) (*domain.FetchedFile, error) {
	name = SanitizeFilename(name)
	path := filepath.Join(destDir, name)

	out, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer out.Close()

	n, err := io.Copy(out, r)
	if err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return &domain.FetchedFile{Path: path, Filename: name, Size: n}, nil
}
