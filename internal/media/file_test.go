package media

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func multipartRequest(t *testing.T, field, filename, contentType string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	require.NoError(t, writer.WriteField("username", "alice"))

	if field != "" {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+filename+`"`)
		if contentType != "" {
			h.Set("Content-Type", contentType)
		}
		part, err := writer.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPatch, "/users/me/avatar", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestReadFormFile(t *testing.T) {
	req := multipartRequest(t, "file", "a.png", "", pngHeader)

	f, err := ReadFormFile(req, "file")
	require.NoError(t, err)
	assert.Equal(t, "a.png", f.Name)
	assert.Equal(t, "image/png", f.ContentType)
	assert.Contains(t, f.DataURI(), "data:image/png;base64,")
}

func TestReadFormFile_Rejections(t *testing.T) {
	tests := []struct {
		name string
		req  *http.Request
		want error
	}{
		{"missing", multipartRequest(t, "", "", "", nil), ErrNoFile},
		{"empty", multipartRequest(t, "file", "a.png", "image/png", nil), ErrEmptyFile},
		{"not image", multipartRequest(t, "file", "a.txt", "text/plain", []byte("hello")), ErrNotImage},
		{"too large", multipartRequest(t, "file", "a.png", "image/png", make([]byte, MaxUploadSizeBytes+1)), ErrFileTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadFormFile(tt.req, "file")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestReadFormFile_NotMultipart(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")

	_, err := ReadFormFile(req, "file")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoFile)
}
