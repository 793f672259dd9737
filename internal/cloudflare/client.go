// Package cloudflare is a small client for the Cloudflare Images API.
package cloudflare

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	cfierrors "github.com/investblog/cloudflare-images-sync/internal/errors"
	"github.com/tidwall/gjson"
)

// TransientError wraps an error that is likely temporary and safe to retry.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err (or any error in its chain) is a
// TransientError, meaning the caller should retry after a backoff.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// APIError is an unsuccessful API envelope. It matches
// errors.ErrRemoteAPI via errors.Is.
type APIError struct {
	HTTPStatus int
	Code       int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("cloudflare API error %d (HTTP %d): %s", e.Code, e.HTTPStatus, e.Message)
}

func (e *APIError) Unwrap() error { return cfierrors.ErrRemoteAPI }

const defaultBaseURL = "https://api.cloudflare.com/client/v4/accounts"

const (
	uploadTimeout = 60 * time.Second
	objectTimeout = 30 * time.Second
	listTimeout   = 15 * time.Second

	// maxAPIResponseBytes caps response body reads. Image API responses
	// are small JSON envelopes.
	maxAPIResponseBytes = 1024 * 1024
)

// Image is the subset of an image record the sync engine uses.
type Image struct {
	ID       string   `json:"id"`
	Filename string   `json:"filename"`
	Uploaded string   `json:"uploaded"`
	Variants []string `json:"variants"`
}

// Client talks to the Images API of one account. The token is sent as
// a bearer header and never appears in errors or logs.
type Client struct {
	httpClient *http.Client
	baseURL    string
	accountID  string
	token      string
}

// NewClient creates an API client. A nil httpClient gets a plain client;
// per-call deadlines are applied through the request context.
func NewClient(accountID, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    defaultBaseURL,
		accountID:  accountID,
		token:      token,
	}
}

func (c *Client) endpoint(path string) string {
	return c.baseURL + "/" + url.PathEscape(c.accountID) + path
}

// Upload sends a local image file. meta is attached as the image's JSON
// metadata when non-empty.
func (c *Client) Upload(ctx context.Context, path string, meta map[string]any) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", cfierrors.ErrFileNotFound, filepath.Base(path))
	}
	defer f.Close()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	name := filepath.Base(path)
	ctype := mime.TypeByExtension(filepath.Ext(name))
	if ctype == "" {
		ctype = "application/octet-stream"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
	h.Set("Content-Type", ctype)

	part, err := w.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("creating file part: %w", err)
	}

	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("%w: %v", cfierrors.ErrFileRead, err)
	}

	if err := writeMetadata(w, meta); err != nil {
		return nil, err
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("closing multipart body: %w", err)
	}

	return c.sendImage(ctx, &body, w.FormDataContentType())
}

// UploadFromURL asks the API to fetch the image from a public URL.
func (c *Client) UploadFromURL(ctx context.Context, imageURL string, meta map[string]any) (*Image, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	if err := w.WriteField("url", imageURL); err != nil {
		return nil, fmt.Errorf("writing url field: %w", err)
	}

	if err := writeMetadata(w, meta); err != nil {
		return nil, err
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("closing multipart body: %w", err)
	}

	return c.sendImage(ctx, &body, w.FormDataContentType())
}

func writeMetadata(w *multipart.Writer, meta map[string]any) error {
	if len(meta) == 0 {
		return nil
	}

	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="metadata"`)
	h.Set("Content-Type", "application/json")

	part, err := w.CreatePart(h)
	if err != nil {
		return fmt.Errorf("creating metadata part: %w", err)
	}

	_, err = part.Write(data)

	return err
}

func (c *Client) sendImage(ctx context.Context, body io.Reader, contentType string) (*Image, error) {
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	result, err := c.do(ctx, http.MethodPost, "/images/v1", body, contentType)
	if err != nil {
		return nil, fmt.Errorf("uploading image: %w", err)
	}

	return decodeImage(result)
}

// Delete removes an image by ID.
func (c *Client) Delete(ctx context.Context, imageID string) error {
	if imageID == "" {
		return cfierrors.ErrMissingImageID
	}

	ctx, cancel := context.WithTimeout(ctx, objectTimeout)
	defer cancel()

	if _, err := c.do(ctx, http.MethodDelete, "/images/v1/"+url.PathEscape(imageID), nil, ""); err != nil {
		return fmt.Errorf("deleting image %s: %w", imageID, err)
	}

	return nil
}

// Get fetches an image record by ID.
func (c *Client) Get(ctx context.Context, imageID string) (*Image, error) {
	if imageID == "" {
		return nil, cfierrors.ErrMissingImageID
	}

	ctx, cancel := context.WithTimeout(ctx, objectTimeout)
	defer cancel()

	result, err := c.do(ctx, http.MethodGet, "/images/v1/"+url.PathEscape(imageID), nil, "")
	if err != nil {
		return nil, fmt.Errorf("getting image %s: %w", imageID, err)
	}

	return decodeImage(result)
}

// ListImages returns up to perPage images from the v2 listing.
func (c *Client) ListImages(ctx context.Context, perPage int) ([]Image, error) {
	if perPage < 1 {
		perPage = 1
	}

	ctx, cancel := context.WithTimeout(ctx, listTimeout)
	defer cancel()

	result, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/images/v2?per_page=%d", perPage), nil, "")
	if err != nil {
		return nil, fmt.Errorf("listing images: %w", err)
	}

	var images []Image
	if raw := result.Get("images"); raw.Exists() {
		if err := json.Unmarshal([]byte(raw.Raw), &images); err != nil {
			return nil, fmt.Errorf("%w: %v", cfierrors.ErrRemoteResponse, err)
		}
	}

	return images, nil
}

// TestConnection lists a single image to prove the credentials work.
func (c *Client) TestConnection(ctx context.Context) error {
	_, err := c.ListImages(ctx, 1)
	return err
}

func decodeImage(result gjson.Result) (*Image, error) {
	var img Image
	if result.IsObject() {
		if err := json.Unmarshal([]byte(result.Raw), &img); err != nil {
			return nil, fmt.Errorf("%w: %v", cfierrors.ErrRemoteResponse, err)
		}
	}

	return &img, nil
}

// do sends one request and unwraps the {success, errors, result}
// envelope, returning the result member.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string) (gjson.Result, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), body)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Network errors (timeouts, connection refused, DNS failures)
		// are transient by nature.
		return gjson.Result{}, &TransientError{Err: fmt.Errorf("%w: %v", cfierrors.ErrRemoteHTTP, err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxAPIResponseBytes))
	if err != nil {
		return gjson.Result{}, &TransientError{Err: fmt.Errorf("%w: reading response: %v", cfierrors.ErrRemoteHTTP, err)}
	}

	return parseEnvelope(resp.StatusCode, respBody)
}

func parseEnvelope(status int, body []byte) (gjson.Result, error) {
	if !gjson.ValidBytes(body) || !gjson.ParseBytes(body).IsObject() {
		err := fmt.Errorf("%w (HTTP %d): %s", cfierrors.ErrRemoteResponse, status, sanitizeResponseBody(body))
		if isTransientStatus(status) {
			return gjson.Result{}, &TransientError{Err: err}
		}

		return gjson.Result{}, err
	}

	env := gjson.ParseBytes(body)
	if !env.Get("success").Bool() {
		apiErr := &APIError{
			HTTPStatus: status,
			Code:       status,
			Message:    "Cloudflare API error.",
		}

		if msg := env.Get("errors.0.message").String(); msg != "" {
			apiErr.Message = msg
		}

		if code := env.Get("errors.0.code"); code.Exists() {
			apiErr.Code = int(code.Int())
		}

		if isTransientStatus(status) {
			return gjson.Result{}, &TransientError{Err: apiErr}
		}

		return gjson.Result{}, apiErr
	}

	return env.Get("result"), nil
}

// isTransientStatus returns true for HTTP status codes that indicate a
// temporary server-side problem worth retrying.
func isTransientStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}

	return false
}

// sanitizeResponseBody truncates a response body to 256 bytes and
// replaces invalid UTF-8 and control characters for safe logging.
func sanitizeResponseBody(body []byte) string {
	const maxLen = 256
	if len(body) > maxLen {
		body = body[:maxLen]
	}

	var clean []byte

	for len(body) > 0 {
		r, size := utf8.DecodeRune(body)
		if r == utf8.RuneError && size <= 1 {
			clean = append(clean, '?')
			body = body[1:]

			continue
		}

		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			clean = append(clean, '?')
		} else {
			clean = append(clean, body[:size]...)
		}

		body = body[size:]
	}

	return string(clean)
}
