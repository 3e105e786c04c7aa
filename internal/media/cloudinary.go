package media

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

var ErrUploadDisabled = errors.New("image uploads are not configured")

// Uploader stores an image and returns its public URL. imageSource is
// anything the asset store accepts as a file, usually a data URI.
type Uploader interface {
	UploadImage(ctx context.Context, imageSource string) (string, error)
}

// Disabled rejects every upload. It stands in when CLOUDINARY_URL is unset.
type Disabled struct{}

func (Disabled) UploadImage(context.Context, string) (string, error) {
	return "", ErrUploadDisabled
}

type Cloudinary struct {
	apiKey     string
	apiSecret  string
	uploadURL  string
	folder     string
	httpClient *http.Client
	now        func() time.Time
}

type cloudinaryUploadResponse struct {
	SecureURL string `json:"secure_url"`
	Error     *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// NewCloudinary parses cloudinary://<api_key>:<api_secret>@<cloud_name>.
func NewCloudinary(rawURL, folder string) (*Cloudinary, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("parse cloudinary url: %w", err)
	}

	if parsed.Scheme != "cloudinary" {
		return nil, fmt.Errorf("invalid cloudinary scheme %q", parsed.Scheme)
	}

	apiKey := parsed.User.Username()
	apiSecret, _ := parsed.User.Password()
	cloudName := parsed.Hostname()
	if apiKey == "" || apiSecret == "" || cloudName == "" {
		return nil, errors.New("invalid cloudinary credentials")
	}

	return &Cloudinary{
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		uploadURL:  fmt.Sprintf("https://api.cloudinary.com/v1_1/%s/image/upload", cloudName),
		folder:     strings.Trim(strings.TrimSpace(folder), "/"),
		httpClient: &http.Client{Timeout: 20 * time.Second},
		now:        time.Now,
	}, nil
}

func (c *Cloudinary) UploadImage(ctx context.Context, imageSource string) (string, error) {
	imageSource = strings.TrimSpace(imageSource)
	if imageSource == "" {
		return "", errors.New("empty image source")
	}

	params := map[string]string{
		"timestamp": strconv.FormatInt(c.now().Unix(), 10),
	}
	if c.folder != "" {
		params["folder"] = c.folder
	}

	fields := make([][2]string, 0, len(params)+3)
	fields = append(fields, [2]string{"file", imageSource})
	for _, k := range sortedKeys(params) {
		fields = append(fields, [2]string{k, params[k]})
	}
	fields = append(fields,
		[2]string{"api_key", c.apiKey},
		[2]string{"signature", c.sign(params)},
	)

	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	go func() {
		for _, f := range fields {
			if err := writer.WriteField(f[0], f[1]); err != nil {
				_ = pw.CloseWithError(fmt.Errorf("write %s field: %w", f[0], err))
				return
			}
		}
		if err := writer.Close(); err != nil {
			_ = pw.CloseWithError(fmt.Errorf("close multipart writer: %w", err))
			return
		}
		_ = pw.Close()
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uploadURL, pr)
	if err != nil {
		_ = pr.Close()
		return "", fmt.Errorf("build cloudinary upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("cloudinary upload request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return "", fmt.Errorf("read cloudinary response: %w", err)
	}

	var parsedResp cloudinaryUploadResponse
	if err := json.Unmarshal(body, &parsedResp); err != nil {
		return "", fmt.Errorf("decode cloudinary response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if parsedResp.Error != nil && parsedResp.Error.Message != "" {
			return "", fmt.Errorf("cloudinary upload failed: %s", parsedResp.Error.Message)
		}
		return "", fmt.Errorf("cloudinary upload failed with status %d", resp.StatusCode)
	}

	if parsedResp.SecureURL == "" {
		return "", errors.New("cloudinary response missing secure_url")
	}

	return parsedResp.SecureURL, nil
}

// sign follows Cloudinary's scheme: signed params sorted by name, joined as
// a query string, with the API secret appended.
func (c *Cloudinary) sign(params map[string]string) string {
	pairs := make([]string, 0, len(params))
	for _, k := range sortedKeys(params) {
		pairs = append(pairs, k+"="+params[k])
	}

	h := sha1.New() // #nosec G401: cloudinary API signature requires SHA-1.
	_, _ = h.Write([]byte(strings.Join(pairs, "&") + c.apiSecret))
	return hex.EncodeToString(h.Sum(nil))
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
