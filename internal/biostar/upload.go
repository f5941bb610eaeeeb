package biostar

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"campusgate/internal/logging"
)

// Result describes a successful upload.
type Result struct {
	Attempts int
	Filename string
	Rows     int
}

func newBreaker() *gobreaker.CircuitBreaker[*Result] {
	return gobreaker.NewCircuitBreaker[*Result](gobreaker.Settings{
		Name:        "biostar-upload",
		MaxRequests: 1,
		Timeout:     10 * time.Minute,
		// Two consecutive jobs that exhausted every attempt.
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 6
		},
		// A partial import still proves the server is reachable.
		IsSuccessful: func(err error) bool {
			var ie *ImportError
			return err == nil || (errors.As(err, &ie) && ie.Partial())
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	})
}

// Upload runs login, attachment upload and import for the CSV at path.
// The whole sequence is retried up to MaxAttempts times with RetryDelay
// between attempts. A partial import is returned at once as *ImportError
// because retrying would re-import the rows that succeeded.
func (c *Client) Upload(ctx context.Context, path string) (*Result, error) {
	header, data, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	log := logging.With().Str("component", "biostar").Str("file", path).Logger()

	var last error
	for attempt := 1; attempt <= c.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := c.Sleep(ctx, c.RetryDelay); err != nil {
				return nil, &RetryError{Attempts: attempt - 1, Last: last}
			}
		}

		res, err := c.cb.Execute(func() (*Result, error) {
			return c.attempt(ctx, path, header, len(data))
		})
		if err == nil {
			res.Attempts = attempt
			log.Info().Int("attempt", attempt).Int("rows", res.Rows).Msg("csv import succeeded")
			return res, nil
		}

		var ie *ImportError
		if errors.As(err, &ie) && ie.Partial() {
			ie.FailedUserIDs = crossReference(ie.FailedLines, data)
			log.Warn().Ints("lines", ie.FailedLines).Strs("user_ids", ie.FailedUserIDs).Str("error_file", ie.ErrorFileURI).
				Msg("csv import partially failed")
			return nil, ie
		}
		last = err
		log.Warn().Err(err).Int("attempt", attempt).Int("max_attempts", c.MaxAttempts).Msg("upload attempt failed")
	}
	return nil, &RetryError{Attempts: c.MaxAttempts, Last: last}
}

func (c *Client) attempt(ctx context.Context, path string, header []string, rows int) (*Result, error) {
	session, err := c.Login(ctx)
	if err != nil {
		return nil, fmt.Errorf("authenticate: %w", err)
	}
	filename, err := c.UploadAttachment(ctx, session, path)
	if err != nil {
		return nil, fmt.Errorf("upload attachment: %w", err)
	}
	if _, err := c.ImportCSV(ctx, session, NewImportRequest(filename, header, rows)); err != nil {
		return nil, err
	}
	return &Result{Filename: filename, Rows: rows}, nil
}

func readCSV(path string) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("biostar: open csv: %w", err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("biostar: parse csv: %w", err)
	}
	if len(records) == 0 {
		return nil, nil, errors.New("biostar: csv has no header")
	}
	return records[0], records[1:], nil
}

// crossReference maps CSV line numbers (header is line 1) to user ids.
func crossReference(lines []int, data [][]string) []string {
	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		i := line - 2
		if i < 0 || i >= len(data) || len(data[i]) == 0 {
			continue
		}
		ids = append(ids, data[i][0])
	}
	return ids
}
