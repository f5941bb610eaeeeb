package roster

import (
	"fmt"
	"math/big"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

const (
	MaxIDLength    = 11
	MaxFieldLength = 48
)

// Transformer validates source rows and renders them as export rows.
type Transformer struct {
	Department string
	Title      string
	Group      string
	Photos     *PhotoNormalizer
	Now        func() time.Time
}

// NewTransformer builds a Transformer with wall-clock time.
func NewTransformer(department, title, group string, photos *PhotoNormalizer) *Transformer {
	return &Transformer{Department: department, Title: title, Group: group, Photos: photos, Now: time.Now}
}

// TransformAll validates every record, preserving input order in both outputs.
func (t *Transformer) TransformAll(records []SourceRecord) ([]ExportRecord, []SkippedRecord) {
	exports := make([]ExportRecord, 0, len(records))
	var skipped []SkippedRecord
	for _, rec := range records {
		exp, skip := t.Validate(rec)
		if skip != nil {
			skipped = append(skipped, *skip)
			continue
		}
		exports = append(exports, exp)
	}
	return exports, skipped
}

// Validate returns either an export row or a rejection listing every failed rule.
func (t *Transformer) Validate(rec SourceRecord) (ExportRecord, *SkippedRecord) {
	now := t.Now()
	start, expiry := ExpiryWindow(now, rec.CampusEntry)

	id := ResolveUserID(rec)
	name := SanitizeName(rec.Name)
	lived := strings.TrimSpace(rec.LivedName)
	remarks := strings.TrimSpace(rec.Remarks)

	var reasons []string
	switch n := utf8.RuneCountInString(id); {
	case n == 0:
		reasons = append(reasons, "ID is empty")
	case n > MaxIDLength:
		reasons = append(reasons, fmt.Sprintf("ID too long (%d characters, max %d)", n, MaxIDLength))
	}
	if name == "" {
		reasons = append(reasons, "Name is empty")
	}
	if utf8.RuneCountInString(name) > MaxFieldLength {
		reasons = append(reasons, fmt.Sprintf("Name exceeds %d characters", MaxFieldLength))
	}
	if utf8.RuneCountInString(lived) > MaxFieldLength {
		reasons = append(reasons, fmt.Sprintf("Lived name exceeds %d characters", MaxFieldLength))
	}
	if utf8.RuneCountInString(remarks) > MaxFieldLength {
		reasons = append(reasons, fmt.Sprintf("Remarks exceed %d characters", MaxFieldLength))
	}

	if len(reasons) > 0 {
		return ExportRecord{}, &SkippedRecord{
			StudentID:   rec.StudentID,
			Name:        rec.Name,
			LivedName:   rec.LivedName,
			Remarks:     rec.Remarks,
			CampusEntry: rec.CampusEntry,
			Expiry:      expiry,
			Reasons:     reasons,
			SkippedAt:   now,
		}
	}

	photo := rec.Photo
	if photo == "" && t.Photos != nil {
		photo = t.Photos.Default()
	}
	return ExportRecord{
		UserID:      id,
		Name:        name,
		Department:  t.Department,
		UserTitle:   t.Title,
		UserGroup:   t.Group,
		LivedName:   lived,
		Remarks:     remarks,
		CSN:         id,
		Photo:       photo,
		FaceImage1:  photo,
		FaceImage2:  photo,
		Start:       start,
		Expiry:      expiry,
		CampusEntry: rec.CampusEntry,
	}, nil
}

// ResolveUserID picks the card id over the student id, strips whitespace and
// rewrites legacy hex card numbers in decimal.
func ResolveUserID(rec SourceRecord) string {
	raw := rec.CardID
	if strings.TrimSpace(raw) == "" {
		raw = rec.StudentID
	}
	return NormalizeID(raw)
}

// NormalizeID removes whitespace and converts a hex value (digits 0-9a-f with
// at least one letter) to its decimal rendering. Decimal input is unchanged.
func NormalizeID(raw string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)
	if !isHexWithLetter(cleaned) {
		return cleaned
	}
	n, ok := new(big.Int).SetString(cleaned, 16)
	if !ok {
		return cleaned
	}
	return n.String()
}

func isHexWithLetter(s string) bool {
	if s == "" {
		return false
	}
	letter := false
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F'):
			letter = true
		default:
			return false
		}
	}
	return letter
}

// SanitizeName keeps ASCII letters, digits and whitespace.
func SanitizeName(name string) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case unicode.IsSpace(r):
			return ' '
		default:
			return -1
		}
	}, name)
	return strings.TrimSpace(clean)
}

// ExpiryWindow computes the access window. Start sits ten years in the past;
// entry "N" (any case) expires one month ago, which revokes access at once.
func ExpiryWindow(now time.Time, campusEntry string) (start, expiry time.Time) {
	start = now.AddDate(-10, 0, 0)
	if strings.EqualFold(strings.TrimSpace(campusEntry), "N") {
		return start, now.AddDate(0, -1, 0)
	}
	return start, start.AddDate(now.Year()-start.Year()+10, 0, 0)
}
