package biostar

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeServer struct {
	mu            sync.Mutex
	failLogins    int
	logins        int
	noSession     bool
	noFilename    bool
	importBody    string
	gotImport     ImportRequest
	gotAttachment string
}

func (f *fakeServer) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/login", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.logins++
		if f.logins <= f.failLogins {
			http.Error(w, "temporarily unavailable", http.StatusServiceUnavailable)
			return
		}
		if !f.noSession {
			w.Header().Set(SessionHeader, "sess-1")
		}
		_, _ = io.WriteString(w, `{"Response":{"code":"0"}}`)
	})
	mux.HandleFunc("/api/attachments", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "sess-1", r.Header.Get(SessionHeader))
		file, header, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(file)
		f.mu.Lock()
		f.gotAttachment = header.Filename + ":" + string(data)
		noName := f.noFilename
		f.mu.Unlock()
		if noName {
			_, _ = io.WriteString(w, `{}`)
			return
		}
		_, _ = io.WriteString(w, `{"filename":"upload-123.csv"}`)
	})
	mux.HandleFunc("/api/users/csv_import", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "sess-1", r.Header.Get(SessionHeader))
		f.mu.Lock()
		defer f.mu.Unlock()
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&f.gotImport))
		body := f.importBody
		if body == "" {
			body = `{"Response":{"code":"0","message":"Success"}}`
		}
		_, _ = io.WriteString(w, body)
	})
	return mux
}

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return nil
}

func newTestClient(t *testing.T, f *fakeServer) (*Client, *sleepRecorder) {
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	c := New(Config{BaseURL: srv.URL, LoginID: "admin", Password: "pw", RetryDelay: 5 * time.Second})
	rec := &sleepRecorder{}
	c.Sleep = rec.sleep
	return c, rec
}

func writeCSV(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "students.csv")
	content := "user_id,name,start_datetime\n1001,Alice,2016-01-01 00:00\n1002,Bob,2016-01-01 00:00\n1003,Carol,2016-01-01 00:00\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestUploadSuccess(t *testing.T) {
	f := &fakeServer{}
	c, rec := newTestClient(t, f)

	res, err := c.Upload(context.Background(), writeCSV(t))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, "upload-123.csv", res.Filename)
	assert.Equal(t, 3, res.Rows)
	assert.Empty(t, rec.delays)

	assert.Contains(t, f.gotAttachment, "students.csv:user_id,name")
	assert.Equal(t, "upload-123.csv", f.gotImport.File.URI)
	assert.Equal(t, []string{"user_id", "name", "start_datetime"}, f.gotImport.CsvOption.Columns)
	assert.Equal(t, []string{"string", "string", "datetime"}, f.gotImport.CsvOption.Formats)
	assert.Equal(t, 3, f.gotImport.CsvOption.Total)
	assert.Equal(t, 3, f.gotImport.CsvOption.Rows)
	assert.Equal(t, 2, f.gotImport.CsvOption.StartLine)
}

func TestUploadRetriesWholeSequence(t *testing.T) {
	f := &fakeServer{failLogins: 2}
	c, rec := newTestClient(t, f)

	res, err := c.Upload(context.Background(), writeCSV(t))
	require.NoError(t, err)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second}, rec.delays)
	assert.Equal(t, 3, f.logins)
}

func TestUploadExhaustsRetries(t *testing.T) {
	f := &fakeServer{noSession: true}
	c, rec := newTestClient(t, f)

	_, err := c.Upload(context.Background(), writeCSV(t))
	var re *RetryError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, 3, re.Attempts)
	assert.ErrorIs(t, err, ErrNoSession)
	assert.Len(t, rec.delays, 2)
}

func TestUploadMissingFilenameIsFatal(t *testing.T) {
	f := &fakeServer{noFilename: true}
	c, _ := newTestClient(t, f)

	_, err := c.Upload(context.Background(), writeCSV(t))
	assert.ErrorIs(t, err, ErrNoAttachment)
}

func TestUploadPartialImport(t *testing.T) {
	f := &fakeServer{importBody: `{"Response":{"code":"1","message":"partial"},"CsvRowCollection":{"rows":[3,"7"]},"File":{"uri":"error_123.csv"}}`}
	c, rec := newTestClient(t, f)

	_, err := c.Upload(context.Background(), writeCSV(t))
	var ie *ImportError
	require.ErrorAs(t, err, &ie)
	assert.True(t, ie.Partial())
	assert.Equal(t, []int{3, 7}, ie.FailedLines)
	assert.Equal(t, []string{"1002"}, ie.FailedUserIDs)
	assert.Contains(t, err.Error(), "2 rows failed to import")
	assert.Contains(t, err.Error(), "3, 7")
	assert.Contains(t, err.Error(), "error_123.csv")
	assert.Empty(t, rec.delays, "partial imports are not retried")
	assert.Equal(t, 1, f.logins)
}

func TestUploadKnownCodeMessages(t *testing.T) {
	cases := map[string]string{
		`{"Response":{"code":"20"}}`:  "permission denied",
		`{"Response":{"code":51}}`:    "field mapping",
		`{"Response":{"code":"31"}}`:  "invalid query parameters",
		`{"Response":{"code":"999"}}`: "CSV import failed",
	}
	for body, want := range cases {
		f := &fakeServer{importBody: body}
		c, rec := newTestClient(t, f)
		_, err := c.Upload(context.Background(), writeCSV(t))
		require.Error(t, err)
		assert.Contains(t, err.Error(), want)
		assert.Len(t, rec.delays, 2)

		var ie *ImportError
		require.True(t, errors.As(err, &ie))
		assert.False(t, ie.Partial())
	}
}

func TestUploadStopsWhenContextCancelled(t *testing.T) {
	f := &fakeServer{noSession: true}
	c, _ := newTestClient(t, f)
	c.Sleep = sleepContext
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Upload(ctx, writeCSV(t))
	var re *RetryError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, 1, re.Attempts)
}

func TestPing(t *testing.T) {
	c, _ := newTestClient(t, &fakeServer{})
	assert.NoError(t, c.Ping(context.Background()))

	c, _ = newTestClient(t, &fakeServer{noSession: true})
	assert.ErrorIs(t, c.Ping(context.Background()), ErrNoSession)
}
