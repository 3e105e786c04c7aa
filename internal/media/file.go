package media

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const MaxUploadSizeBytes = 10 << 20

var (
	ErrNoFile       = errors.New("file is required")
	ErrEmptyFile    = errors.New("file is empty")
	ErrFileTooLarge = errors.New("file is too large")
	ErrNotImage     = errors.New("file must be an image")
)

// File is an uploaded image held in memory until it is sent to the asset
// store.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

func (f *File) DataURI() string {
	return fmt.Sprintf("data:%s;base64,%s", f.ContentType, base64.StdEncoding.EncodeToString(f.Data))
}

// ReadFormFile returns ErrNoFile when the field is absent, so callers can
// treat optional uploads as optional.
func ReadFormFile(r *http.Request, field string) (*File, error) {
	if r.MultipartForm == nil {
		if err := r.ParseMultipartForm(MaxUploadSizeBytes); err != nil {
			return nil, fmt.Errorf("parse multipart form: %w", err)
		}
	}

	file, header, err := r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, ErrNoFile
		}
		return nil, fmt.Errorf("open form file %s: %w", field, err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, MaxUploadSizeBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read form file %s: %w", field, err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}
	if len(data) > MaxUploadSizeBytes {
		return nil, ErrFileTooLarge
	}

	contentType := strings.TrimSpace(header.Header.Get("Content-Type"))
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	if !strings.HasPrefix(strings.ToLower(contentType), "image/") {
		return nil, ErrNotImage
	}

	return &File{Name: header.Filename, ContentType: contentType, Data: data}, nil
}
