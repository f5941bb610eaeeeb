package syncer

import (
	"encoding/csv"
	"fmt"
	"os"

	"campusgate/internal/roster"
)

// ExportHeader is the column order of the upload CSV. The campus entry flag
// travels on ExportRecord for reporting only and is not written.
var ExportHeader = []string{
	"user_id", "name", "department", "user_title", "phone", "email", "user_group",
	"Lived Name", "Remarks", "csn", "photo", "face_image_file1", "face_image_file2",
	"start_datetime", "expiry_datetime",
}

const datetimeLayout = "2006-01-02 15:04"

// WriteExportCSV writes records to a new temp file in dir and returns its path.
// The caller removes the file.
func WriteExportCSV(dir, jobName string, records []roster.ExportRecord) (path string, err error) {
	f, err := os.CreateTemp(dir, "biostar-"+jobName+"-*.csv")
	if err != nil {
		return "", fmt.Errorf("create export csv: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close export csv: %w", cerr)
		}
		if err != nil {
			_ = os.Remove(f.Name())
			path = ""
		}
	}()

	w := csv.NewWriter(f)
	if err := w.Write(ExportHeader); err != nil {
		return "", fmt.Errorf("write export header: %w", err)
	}
	for _, r := range records {
		if err := w.Write(exportRow(r)); err != nil {
			return "", fmt.Errorf("write export row %s: %w", r.UserID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("flush export csv: %w", err)
	}
	return f.Name(), nil
}

func exportRow(r roster.ExportRecord) []string {
	return []string{
		r.UserID, r.Name, r.Department, r.UserTitle, r.Phone, r.Email, r.UserGroup,
		r.LivedName, r.Remarks, r.CSN, r.Photo, r.FaceImage1, r.FaceImage2,
		r.Start.Format(datetimeLayout), r.Expiry.Format(datetimeLayout),
	}
}
