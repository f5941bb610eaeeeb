package syncer

import (
	"context"
	"errors"
	"os"
	"sort"
	"sync"

	"campusgate/internal/biostar"
	"campusgate/internal/mirror"
	"campusgate/internal/roster"
)

type fakeSource struct {
	records  []roster.SourceRecord
	fetchErr error
	pingErr  error
	closed   bool
}

func (s *fakeSource) FetchAll(context.Context) ([]roster.SourceRecord, error) {
	return s.records, s.fetchErr
}

func (s *fakeSource) Ping(context.Context) error { return s.pingErr }

func (s *fakeSource) Close() error {
	s.closed = true
	return nil
}

type memMirror struct {
	mu       sync.Mutex
	rows     map[string]roster.MirrorRecord
	inserted []roster.MirrorRecord
	saved    []roster.MirrorRecord
	findErr  error
}

func newMemMirror(rows ...roster.MirrorRecord) *memMirror {
	m := &memMirror{rows: make(map[string]roster.MirrorRecord)}
	for _, r := range rows {
		m.rows[r.StudentID] = r
	}
	return m
}

func (m *memMirror) Find(_ context.Context, f mirror.Filter) ([]roster.MirrorRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	var out []roster.MirrorRecord
	for _, r := range m.rows {
		if f.ExcludeArchived && r.Archived {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	return out, nil
}

func (m *memMirror) Insert(_ context.Context, records []roster.MirrorRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		if _, ok := m.rows[r.StudentID]; ok {
			return errors.New("duplicate key " + r.StudentID)
		}
		m.rows[r.StudentID] = r
	}
	m.inserted = append(m.inserted, records...)
	return nil
}

func (m *memMirror) Save(_ context.Context, records []roster.MirrorRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		m.rows[r.StudentID] = r
	}
	m.saved = append(m.saved, records...)
	return nil
}

func (m *memMirror) Archive(_ context.Context, ids []string) ([]roster.MirrorRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []roster.MirrorRecord
	for _, id := range ids {
		r, ok := m.rows[id]
		if !ok {
			continue
		}
		r.Archived = true
		m.rows[id] = r
		out = append(out, r)
	}
	return out, nil
}

type fakeUploader struct {
	err     error
	pingErr error
	calls   int
	path    string
	content string
}

func (u *fakeUploader) Upload(_ context.Context, path string) (*biostar.Result, error) {
	u.calls++
	u.path = path
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	u.content = string(data)
	if u.err != nil {
		return nil, u.err
	}
	return &biostar.Result{Attempts: 1, Filename: "upload.csv"}, nil
}

func (u *fakeUploader) Ping(context.Context) error { return u.pingErr }

type fakeAudit struct {
	err     error
	skipped []roster.SkippedRecord
	synced  []roster.ExportRecord
}

func (a *fakeAudit) WriteSkipped(records []roster.SkippedRecord) ([]string, error) {
	if a.err != nil {
		return nil, a.err
	}
	a.skipped = append(a.skipped, records...)
	return []string{"skipped.json", "skipped.csv"}, nil
}

func (a *fakeAudit) WriteSynced(records []roster.ExportRecord) ([]string, error) {
	if a.err != nil {
		return nil, a.err
	}
	a.synced = append(a.synced, records...)
	return []string{"synced.json", "synced.csv"}, nil
}
