package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// ErrAPIUnavailable reports that no daemon answered at the configured bind.
var ErrAPIUnavailable = errors.New("trackbridge API unavailable")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api returned status %d", e.Code)
	}
	return fmt.Sprintf("api returned status %d: %s", e.Code, e.Message)
}

// IsNotFound reports whether err is a 404 from the daemon.
func IsNotFound(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound
}

// Client talks to a running daemon over HTTP.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
}

// NewClient builds a client for bind ("host:port" or a full URL). An empty
// bind yields a nil client.
func NewClient(bind, token string) (*Client, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, nil
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	base, err := url.Parse(bind)
	if err != nil {
		return nil, err
	}
	base.Path = ""
	base.RawQuery = ""
	base.Fragment = ""

	return &Client{
		base:  base,
		token: strings.TrimSpace(token),
		// No timeout: uploads and downloads may be large. Callers bound with ctx.
		http: &http.Client{},
	}, nil
}

// Upload streams the file at path to the daemon.
func (c *Client) Upload(ctx context.Context, path string) (UploadResponse, error) {
	if c == nil {
		return UploadResponse{}, ErrAPIUnavailable
	}
	file, err := os.Open(path)
	if err != nil {
		return UploadResponse{}, err
	}
	defer file.Close()

	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)
	go func() {
		part, err := form.CreateFormFile("file", filepath.Base(path))
		if err == nil {
			_, err = io.Copy(part, file)
		}
		if err == nil {
			err = form.Close()
		}
		pw.CloseWithError(err)
	}()

	var resp UploadResponse
	err = c.do(ctx, http.MethodPost, "/api/upload", form.FormDataContentType(), pr, &resp)
	return resp, err
}

// Convert requests a viewer for an upload.
func (c *Client) Convert(ctx context.Context, uploadID string, req ConvertRequest) (JobAcceptedResponse, error) {
	var resp JobAcceptedResponse
	err := c.doJSON(ctx, http.MethodPost, "/api/convert/"+url.PathEscape(uploadID), req, &resp)
	return resp, err
}

// Export requests a Blender export for an upload.
func (c *Client) Export(ctx context.Context, uploadID string, req ExportRequest) (JobAcceptedResponse, error) {
	var resp JobAcceptedResponse
	err := c.doJSON(ctx, http.MethodPost, "/api/export/"+url.PathEscape(uploadID), req, &resp)
	return resp, err
}

// Job fetches a single job.
func (c *Client) Job(ctx context.Context, jobID string) (Job, error) {
	var resp Job
	err := c.doJSON(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(jobID), nil, &resp)
	return resp, err
}

// Jobs lists every job, newest first.
func (c *Client) Jobs(ctx context.Context) ([]Job, error) {
	var resp JobListResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/jobs", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

// Status fetches daemon status.
func (c *Client) Status(ctx context.Context) (DaemonStatus, error) {
	var resp DaemonStatus
	err := c.doJSON(ctx, http.MethodGet, "/api/status", nil, &resp)
	return resp, err
}

// Download copies the export archive of jobID into w and returns the bytes written.
func (c *Client) Download(ctx context.Context, jobID string, w io.Writer) (int64, error) {
	return c.stream(ctx, "/api/export/"+url.PathEscape(jobID)+"/download", w)
}

// Viewer copies the viewer HTML of jobID into w.
func (c *Client) Viewer(ctx context.Context, jobID string, w io.Writer) (int64, error) {
	return c.stream(ctx, "/api/viewer/"+url.PathEscape(jobID), w)
}

func (c *Client) stream(ctx context.Context, path string, w io.Writer) (int64, error) {
	if c == nil {
		return 0, ErrAPIUnavailable
	}
	resp, err := c.send(ctx, http.MethodGet, path, "", nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return io.Copy(w, resp.Body)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	if c == nil {
		return ErrAPIUnavailable
	}
	var reader io.Reader
	contentType := ""
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
		contentType = "application/json"
	}
	return c.do(ctx, method, path, contentType, reader, out)
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	if c == nil {
		return ErrAPIUnavailable
	}
	resp, err := c.send(ctx, method, path, contentType, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) send(ctx context.Context, method, path, contentType string, body io.Reader) (*http.Response, error) {
	endpoint := c.base.ResolveReference(&url.URL{Path: path})
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		var payload ErrorResponse
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&payload)
		return nil, &StatusError{Code: resp.StatusCode, Message: payload.Error}
	}
	return resp, nil
}

// IsAPIUnavailable reports whether err means the daemon could not be reached.
func IsAPIUnavailable(err error) bool {
	if err == nil {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
	}
	var opErr *net.OpError
	return errors.Is(err, ErrAPIUnavailable) || errors.As(err, &opErr)
}
