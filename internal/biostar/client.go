// Package biostar is a session-based client for the access-control server's
// user CSV import: login, attachment upload, then csv_import.
package biostar

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
)

// SessionHeader carries the session id on every call after login.
const SessionHeader = "bs-session-id"

// Config configures a Client.
type Config struct {
	BaseURL     string
	LoginID     string
	Password    string
	Timeout     time.Duration
	RetryDelay  time.Duration
	MaxAttempts int
	InsecureTLS bool
}

// Client calls the access-control API.
type Client struct {
	BaseURL     string
	LoginID     string
	Password    string
	HTTP        *http.Client
	MaxAttempts int
	RetryDelay  time.Duration
	// Sleep waits between attempts; replaced in tests.
	Sleep func(ctx context.Context, d time.Duration) error

	cb *gobreaker.CircuitBreaker[*Result]
}

// New creates a client with a per-call timeout.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // self-signed appliance certificates
	}
	return &Client{
		BaseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		LoginID:     cfg.LoginID,
		Password:    cfg.Password,
		HTTP:        &http.Client{Timeout: cfg.Timeout, Transport: transport},
		MaxAttempts: cfg.MaxAttempts,
		RetryDelay:  cfg.RetryDelay,
		Sleep:       sleepContext,
		cb:          newBreaker(),
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Session is an authenticated API session.
type Session struct {
	ID string
}

// Login authenticates and returns the session id from the response header.
func (c *Client) Login(ctx context.Context) (Session, error) {
	body, _ := json.Marshal(map[string]any{
		"User": map[string]string{"login_id": c.LoginID, "password": c.Password},
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/login", bytes.NewReader(body))
	if err != nil {
		return Session{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(req)
	if err != nil {
		return Session{}, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	id := resp.Header.Get(SessionHeader)
	if id == "" {
		return Session{}, ErrNoSession
	}
	return Session{ID: id}, nil
}

// UploadAttachment sends the CSV as a multipart attachment and returns the
// server-side filename to reference in the import.
func (c *Client) UploadAttachment(ctx context.Context, s Session, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("biostar: read csv: %w", err)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("biostar: create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("biostar: write form file: %w", err)
	}
	w.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/attachments", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set(SessionHeader, s.ID)

	resp, err := c.do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out struct {
		Filename string `json:"filename"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("biostar: decode attachment response: %w", err)
	}
	if out.Filename == "" {
		return "", ErrNoAttachment
	}
	return out.Filename, nil
}

// ImportRequest is the csv_import body.
type ImportRequest struct {
	File      ImportFile  `json:"File"`
	CsvOption CsvOption   `json:"CsvOption"`
	Query     ImportQuery `json:"Query"`
}

type ImportFile struct {
	URI      string `json:"uri"`
	FileName string `json:"fileName"`
}

type CsvOption struct {
	Columns      []string `json:"columns"`
	Total        int      `json:"total"`
	Rows         int      `json:"rows"`
	Formats      []string `json:"formats"`
	StartLine    int      `json:"start_line"`
	ImportOption int      `json:"import_option"`
}

type ImportQuery struct {
	Headers []string `json:"headers"`
	Columns []string `json:"columns"`
}

// NewImportRequest derives the column and type map from the CSV header.
func NewImportRequest(filename string, header []string, rows int) ImportRequest {
	formats := make([]string, len(header))
	fields := make([]string, len(header))
	for i, h := range header {
		formats[i] = columnFormat(h)
		fields[i] = strings.ToLower(strings.ReplaceAll(strings.TrimSpace(h), " ", "_"))
	}
	return ImportRequest{
		File: ImportFile{URI: filename, FileName: filename},
		CsvOption: CsvOption{
			Columns:      header,
			Total:        len(header),
			Rows:         rows,
			Formats:      formats,
			StartLine:    2,
			ImportOption: 2,
		},
		Query: ImportQuery{Headers: header, Columns: fields},
	}
}

func columnFormat(header string) string {
	switch header {
	case "photo", "face_image_file1", "face_image_file2":
		return "image"
	case "start_datetime", "expiry_datetime":
		return "datetime"
	default:
		return "string"
	}
}

// ImportResponse is the decoded csv_import reply.
type ImportResponse struct {
	Response struct {
		Code    flexString `json:"code"`
		Message string     `json:"message"`
	} `json:"Response"`
	CsvRowCollection *struct {
		Rows []flexInt `json:"rows"`
	} `json:"CsvRowCollection,omitempty"`
	File *struct {
		URI string `json:"uri"`
	} `json:"File,omitempty"`
}

// ImportCSV triggers the import of a previously uploaded attachment.
// A non-zero response code is returned as *ImportError.
func (c *Client) ImportCSV(ctx context.Context, s Session, imp ImportRequest) (*ImportResponse, error) {
	body, err := json.Marshal(imp)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/users/csv_import", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SessionHeader, s.ID)

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out ImportResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("biostar: decode import response: %w", err)
	}
	code := strings.TrimSpace(string(out.Response.Code))
	if code == CodeSuccess {
		return &out, nil
	}
	ie := &ImportError{Code: code, Message: out.Response.Message}
	if out.CsvRowCollection != nil {
		for _, r := range out.CsvRowCollection.Rows {
			ie.FailedLines = append(ie.FailedLines, int(r))
		}
	}
	if out.File != nil {
		ie.ErrorFileURI = out.File.URI
	}
	return &out, ie
}

// Ping logs in to prove the credentials and endpoint work.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Login(ctx)
	return err
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("biostar request failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("biostar error %s %s: %s", req.URL.Path, resp.Status, strings.TrimSpace(string(bodyBytes)))
	}
	return resp, nil
}

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(strings.TrimSpace(string(b)))
	return nil
}

// flexInt accepts a JSON number or a numeric string.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("biostar: row number %q: %w", s, err)
	}
	*f = flexInt(n)
	return nil
}
