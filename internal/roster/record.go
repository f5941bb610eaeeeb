// Package roster holds the student roster types and the pure steps of a
// sync pass: photo normalization, validation into the access-control export
// format, and change detection against the local mirror.
package roster

import "time"

// SourceRecord is one student row read from the external roster.
// Photo is already normalized to base64 JPEG by the source connector.
type SourceRecord struct {
	StudentID   string
	CardID      string
	Name        string
	LivedName   string
	Remarks     string
	CampusEntry string
	Photo       string
}

// MirrorRecord is the locally persisted copy of a SourceRecord.
type MirrorRecord struct {
	StudentID   string    `json:"student_id"`
	CardID      string    `json:"card_id"`
	Name        string    `json:"name"`
	LivedName   string    `json:"lived_name"`
	Remarks     string    `json:"remarks"`
	CampusEntry string    `json:"campus_entry"`
	Photo       string    `json:"-"`
	Archived    bool      `json:"archived"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Mirror converts a source row into its unarchived mirror form.
func (r SourceRecord) Mirror(now time.Time) MirrorRecord {
	return MirrorRecord{
		StudentID:   r.StudentID,
		CardID:      r.CardID,
		Name:        r.Name,
		LivedName:   r.LivedName,
		Remarks:     r.Remarks,
		CampusEntry: r.CampusEntry,
		Photo:       r.Photo,
		UpdatedAt:   now,
	}
}

// Source converts a mirror row back into a source record, used when
// re-exporting mirrored students (bulk deactivation).
func (m MirrorRecord) Source() SourceRecord {
	return SourceRecord{
		StudentID:   m.StudentID,
		CardID:      m.CardID,
		Name:        m.Name,
		LivedName:   m.LivedName,
		Remarks:     m.Remarks,
		CampusEntry: m.CampusEntry,
		Photo:       m.Photo,
	}
}

// ExportRecord is a validated row in the access-control CSV format.
type ExportRecord struct {
	UserID      string
	Name        string
	Department  string
	UserTitle   string
	Phone       string
	Email       string
	UserGroup   string
	LivedName   string
	Remarks     string
	CSN         string
	Photo       string
	FaceImage1  string
	FaceImage2  string
	Start       time.Time
	Expiry      time.Time
	CampusEntry string
}

// SkippedRecord captures a row rejected by validation.
type SkippedRecord struct {
	StudentID   string    `json:"student_id"`
	Name        string    `json:"name"`
	LivedName   string    `json:"lived_name"`
	Remarks     string    `json:"remarks"`
	CampusEntry string    `json:"campus_entry"`
	Expiry      time.Time `json:"expiry"`
	Reasons     []string  `json:"reasons"`
	SkippedAt   time.Time `json:"skipped_at"`
}
