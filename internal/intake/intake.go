// Package intake validates uploaded procurement documents and stores them
// under the upload directory before a run is created.
package intake

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/spendshield/internal/config"
	"github.com/sells-group/spendshield/internal/model"
)

// DefaultMaxBytes is the upload size limit when none is configured.
const DefaultMaxBytes int64 = 10 * 1024 * 1024

// allowedTypes maps accepted extensions to the MIME type their content
// must sniff as.
var allowedTypes = map[string]string{
	".pdf":  "application/pdf",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
}

// ValidationError rejects an upload before a run exists.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid " + e.Field + ": " + e.Reason
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Upload is one submitted document.
type Upload struct {
	Filename   string
	Body       io.Reader
	Department string
	FiscalYear *int
}

// Intake validates and stores uploads.
type Intake struct {
	dir      string
	maxBytes int64
	newID    func() string
}

// New creates an Intake for the upload config.
func New(cfg config.UploadConfig) *Intake {
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	dir := cfg.Dir
	if dir == "" {
		dir = "uploads"
	}
	return &Intake{dir: dir, maxBytes: maxBytes, newID: uuid.NewString}
}

// Dir returns the upload directory.
func (in *Intake) Dir() string { return in.dir }

// MaxBytes returns the upload size limit.
func (in *Intake) MaxBytes() int64 { return in.maxBytes }

// Accept validates the upload, writes it to {dir}/{uuid}{ext} and returns
// the run input describing it. Validation problems are returned as
// *ValidationError and leave nothing on disk.
func (in *Intake) Accept(ctx context.Context, up Upload) (model.RunInput, error) {
	name := filepath.Base(strings.TrimSpace(up.Filename))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return model.RunInput{}, &ValidationError{Field: "file", Reason: "filename is required"}
	}
	ext := strings.ToLower(filepath.Ext(name))
	wantMIME, ok := allowedTypes[ext]
	if !ok {
		return model.RunInput{}, &ValidationError{Field: "file", Reason: "unsupported file type " + strconv.Quote(ext) + " (allowed: .pdf, .png, .jpg, .jpeg)"}
	}
	if up.Body == nil {
		return model.RunInput{}, &ValidationError{Field: "file", Reason: "file is required"}
	}
	if up.FiscalYear != nil {
		if err := checkFiscalYear(*up.FiscalYear); err != nil {
			return model.RunInput{}, err
		}
	}

	data, err := io.ReadAll(io.LimitReader(up.Body, in.maxBytes+1))
	if err != nil {
		return model.RunInput{}, eris.Wrap(err, "intake: read upload")
	}
	if len(data) == 0 {
		return model.RunInput{}, &ValidationError{Field: "file", Reason: "file is empty"}
	}
	if int64(len(data)) > in.maxBytes {
		return model.RunInput{}, &ValidationError{Field: "file", Reason: "file exceeds " + strconv.FormatInt(in.maxBytes/(1024*1024), 10) + "MB limit"}
	}
	if got := sniff(data); got != wantMIME {
		return model.RunInput{}, &ValidationError{Field: "file", Reason: "content is " + got + ", expected " + wantMIME}
	}

	if err := ctx.Err(); err != nil {
		return model.RunInput{}, err
	}
	if err := os.MkdirAll(in.dir, 0o755); err != nil {
		return model.RunInput{}, eris.Wrapf(err, "intake: create upload dir %s", in.dir)
	}

	id := in.newID()
	path := filepath.Join(in.dir, id+ext)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return model.RunInput{}, eris.Wrapf(err, "intake: write %s", path)
	}

	zap.L().Info("intake: upload stored",
		zap.String("file_id", id),
		zap.String("filename", name),
		zap.String("mime_type", wantMIME),
		zap.Int("size_bytes", len(data)),
	)

	return model.RunInput{
		Filename:   name,
		MIMEType:   wantMIME,
		SizeBytes:  int64(len(data)),
		StoredPath: path,
		Department: strings.TrimSpace(up.Department),
		FiscalYear: up.FiscalYear,
	}, nil
}

// Remove deletes a stored upload. Missing files are ignored.
func (in *Intake) Remove(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		zap.L().Warn("intake: remove upload", zap.String("path", path), zap.Error(err))
	}
}

// ParseFiscalYear parses the optional fiscal_year form field.
func ParseFiscalYear(s string) (*int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	fy, err := strconv.Atoi(s)
	if err != nil {
		return nil, &ValidationError{Field: "fiscal_year", Reason: "must be a year, got " + strconv.Quote(s)}
	}
	if err := checkFiscalYear(fy); err != nil {
		return nil, err
	}
	return &fy, nil
}

func checkFiscalYear(fy int) error {
	if fy < 1900 || fy > 2100 {
		return &ValidationError{Field: "fiscal_year", Reason: "must be between 1900 and 2100"}
	}
	return nil
}

// sniff returns the detected MIME type without parameters.
func sniff(data []byte) string {
	if bytes.HasPrefix(data, []byte("%PDF-")) {
		return "application/pdf"
	}
	ct := http.DetectContentType(data)
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.TrimSpace(ct)
}
