package biostar

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrNoSession means the login response carried no session header.
	ErrNoSession = errors.New("biostar: login returned no session id")
	// ErrNoAttachment means the attachment response carried no filename.
	ErrNoAttachment = errors.New("biostar: attachment upload returned no filename")
)

// Import response codes.
const (
	CodeSuccess          = "0"
	CodePartial          = "1"
	CodePermissionDenied = "20"
	CodeInvalidQuery     = "31"
	CodeFieldMapping     = "51"
)

var codeMessages = map[string]string{
	CodePermissionDenied: "permission denied for CSV import",
	CodeInvalidQuery:     "invalid query parameters in CSV import request",
	CodeFieldMapping:     "CSV field mapping error",
}

// ImportError is a non-zero csv_import response.
type ImportError struct {
	Code          string
	Message       string
	FailedLines   []int
	FailedUserIDs []string
	ErrorFileURI  string
}

// Partial reports whether some rows were imported.
func (e *ImportError) Partial() bool {
	return e.Code == CodePartial
}

func (e *ImportError) Error() string {
	if !e.Partial() {
		msg, ok := codeMessages[e.Code]
		if !ok {
			msg = "CSV import failed"
		}
		if e.Message != "" {
			return fmt.Sprintf("biostar: %s (code %s): %s", msg, e.Code, e.Message)
		}
		return fmt.Sprintf("biostar: %s (code %s)", msg, e.Code)
	}

	lines := make([]string, len(e.FailedLines))
	for i, l := range e.FailedLines {
		lines[i] = strconv.Itoa(l)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "biostar: %d rows failed to import (lines %s)", len(e.FailedLines), strings.Join(lines, ", "))
	if len(e.FailedUserIDs) > 0 {
		fmt.Fprintf(&sb, "; user ids: %s", strings.Join(e.FailedUserIDs, ", "))
	}
	if e.ErrorFileURI != "" {
		fmt.Fprintf(&sb, "; error file: %s", e.ErrorFileURI)
	}
	return sb.String()
}

// RetryError is returned once every upload attempt has failed.
type RetryError struct {
	Attempts int
	Last     error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("biostar: upload failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *RetryError) Unwrap() error {
	return e.Last
}
