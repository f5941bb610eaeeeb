// Package audit writes the per-run skipped and synced record artifacts.
package audit

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"campusgate/internal/roster"
)

const (
	skippedPrefix = "skipped-records-"
	syncedPrefix  = "synced-records-"
	timeLayout    = "2006-01-02 15:04:05"
)

// Writer stores audit artifacts under one directory.
type Writer struct {
	dir    string
	now    func() time.Time
	create func(path string) (io.WriteCloser, error)
}

// NewWriter creates a writer rooted at dir.
func NewWriter(dir string) *Writer {
	return &Writer{dir: dir, now: time.Now, create: createFile}
}

func createFile(path string) (io.WriteCloser, error) {
	return os.Create(path)
}

// Dir returns the artifact directory.
func (w *Writer) Dir() string { return w.dir }

// SyncedRecord is the audit view of an exported row.
type SyncedRecord struct {
	UserID      string    `json:"user_id"`
	Name        string    `json:"name"`
	LivedName   string    `json:"lived_name"`
	Remarks     string    `json:"remarks"`
	CampusEntry string    `json:"campus_entry"`
	Expiry      time.Time `json:"expiry"`
	SyncedAt    time.Time `json:"synced_at"`
}

// WriteSkipped writes the rejected rows as JSON and CSV and returns both paths.
func (w *Writer) WriteSkipped(records []roster.SkippedRecord) ([]string, error) {
	rows := make([][]string, len(records))
	for i, r := range records {
		rows[i] = []string{r.StudentID, r.Name, r.LivedName, r.Remarks, r.CampusEntry,
			r.Expiry.Format(timeLayout), strings.Join(r.Reasons, "; "), r.SkippedAt.Format(timeLayout)}
	}
	header := []string{"student_id", "name", "lived_name", "remarks", "campus_entry", "expiry", "reasons", "skipped_at"}
	return w.write(skippedPrefix, records, header, rows)
}

// WriteSynced writes the exported rows, without photos, as JSON and CSV.
func (w *Writer) WriteSynced(records []roster.ExportRecord) ([]string, error) {
	at := w.now()
	view := make([]SyncedRecord, len(records))
	rows := make([][]string, len(records))
	for i, r := range records {
		view[i] = SyncedRecord{
			UserID:      r.UserID,
			Name:        r.Name,
			LivedName:   r.LivedName,
			Remarks:     r.Remarks,
			CampusEntry: r.CampusEntry,
			Expiry:      r.Expiry,
			SyncedAt:    at,
		}
		rows[i] = []string{r.UserID, r.Name, r.LivedName, r.Remarks, r.CampusEntry,
			r.Expiry.Format(timeLayout), at.Format(timeLayout)}
	}
	header := []string{"user_id", "name", "lived_name", "remarks", "campus_entry", "expiry", "synced_at"}
	return w.write(syncedPrefix, view, header, rows)
}

func (w *Writer) write(prefix string, payload any, header []string, rows [][]string) ([]string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return nil, fmt.Errorf("audit: create dir: %w", err)
	}
	base := filepath.Join(w.dir, prefix+w.now().Format("2006-01-02-150405"))

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("audit: encode json: %w", err)
	}
	if err := os.WriteFile(base+".json", data, 0o644); err != nil {
		return nil, fmt.Errorf("audit: write json: %w", err)
	}

	if err := w.writeCSV(base+".csv", header, rows); err != nil {
		return nil, err
	}
	return []string{base + ".json", base + ".csv"}, nil
}

func (w *Writer) writeCSV(path string, header []string, rows [][]string) (err error) {
	f, err := w.create(path)
	if err != nil {
		return fmt.Errorf("audit: create csv: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("audit: close csv: %w", cerr)
		}
	}()
	cw := csv.NewWriter(f)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("audit: write csv: %w", err)
	}
	// WriteAll flushes.
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("audit: write csv: %w", err)
	}
	return nil
}

// Cleanup deletes artifacts older than maxAge and returns how many went.
func (w *Writer) Cleanup(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(w.dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	cutoff := w.now().Add(-maxAge)
	removed := 0
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !(strings.HasPrefix(name, skippedPrefix) || strings.HasPrefix(name, syncedPrefix)) {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(w.dir, name)); err == nil {
			removed++
		}
	}
	return removed, nil
}
