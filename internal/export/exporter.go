// Package export renders answers into downloadable PDF and DOCX files.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/liliang-cn/storerouter/internal/domain"
	"go.uber.org/zap"
)

// Supported formats
const (
	FormatPDF  = "pdf"
	FormatDOCX = "docx"
)

// Document is the content of one export
type Document struct {
	Title     string
	Question  string
	StoreName string
	Content   string
	CreatedAt time.Time
}

// Exporter writes export files into a directory
type Exporter struct {
	dir      string
	fontPath string
	now      func() time.Time
	logger   *zap.Logger
}

// fallback fonts with Cyrillic coverage, tried when none is configured
var systemFonts = []string{
	"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/TTF/DejaVuSans.ttf",
	"/Library/Fonts/Arial Unicode.ttf",
}

// New creates an exporter writing into dir
func New(dir, fontPath string, logger *zap.Logger) *Exporter {
	if fontPath == "" {
		for _, p := range systemFonts {
			if _, err := os.Stat(p); err == nil {
				fontPath = p
				break
			}
		}
	}
	return &Exporter{dir: dir, fontPath: fontPath, now: time.Now, logger: logger.Named("export")}
}

// Render writes content in the requested format and returns the attachment
func (e *Exporter) Render(format, content, title, question, storeName string) (*domain.Attachment, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format != FormatPDF && format != FormatDOCX {
		return nil, fmt.Errorf("unsupported export format %q: %w", format, domain.ErrInvalidRequest)
	}
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("nothing to export: %w", domain.ErrInvalidRequest)
	}
	if err := os.MkdirAll(e.dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}

	doc := Document{
		Title:     title,
		Question:  question,
		StoreName: storeName,
		Content:   content,
		CreatedAt: e.now(),
	}
	name := FileName(title, format, doc.CreatedAt)
	path := filepath.Join(e.dir, name)

	var err error
	switch format {
	case FormatPDF:
		err = writePDF(path, e.fontPath, doc)
	case FormatDOCX:
		err = writeDOCX(path, doc)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to render %s: %w", format, err)
	}

	e.logger.Info("export rendered", zap.String("file", name), zap.String("store", storeName))
	return &domain.Attachment{Name: name, Path: path, Format: format}, nil
}

// Open returns the path of a previously rendered export, refusing names
// that would escape the export directory.
func (e *Exporter) Open(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", domain.ErrInvalidRequest
	}
	path := filepath.Join(e.dir, name)
	if _, err := os.Stat(path); err != nil {
		return "", domain.ErrNotFound
	}
	return path, nil
}

// Cleanup deletes exports older than maxAge and returns how many were removed
func (e *Exporter) Cleanup(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(e.dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	cutoff := e.now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(e.dir, entry.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}

// FileName builds "<title>_<YYYYMMDD_HHMMSS>.<ext>" from the first 30
// characters of the cleaned title.
func FileName(title, format string, at time.Time) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r == ' ' || r == '-':
			return '_'
		case r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z':
			return r
		case r >= 'а' && r <= 'я' || r >= 'А' && r <= 'Я' || r == 'ё' || r == 'Ё':
			return r
		}
		return -1
	}, strings.TrimSpace(title))
	if r := []rune(clean); len(r) > 30 {
		clean = string(r[:30])
	}
	clean = strings.Trim(clean, "_")
	if clean == "" {
		clean = "answer"
	}
	return fmt.Sprintf("%s_%s.%s", clean, at.Format("20060102_150405"), format)
}
