package cmm

import (
	"errors"
	"fmt"
)

// Report parsing errors. Only ErrUndecodable and read failures are returned
// to callers; an unsupported layout is reported through ParseResult.Diagnostic.
var (
	// ErrUndecodable is returned when no supported text encoding can decode the report.
	ErrUndecodable = errors.New("report bytes are not decodable text")

	// ErrUnsupportedFormat marks a report from which no rows could be extracted.
	ErrUnsupportedFormat = errors.New("unsupported report format")

	// ErrNoHeader is returned by row parsing when no header row maps to known columns.
	ErrNoHeader = errors.New("no recognizable header row")

	// ErrUnreadableSpreadsheet is returned when a spreadsheet report cannot be opened.
	ErrUnreadableSpreadsheet = errors.New("spreadsheet report could not be opened")
)

// ReportError wraps errors with the report operation that failed.
type ReportError struct {
	Op      string
	Err     error
	Details string
}

// Error implements the error interface.
func (e *ReportError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("cmm: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("cmm: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *ReportError) Unwrap() error {
	return e.Err
}

// Is implements error matching.
func (e *ReportError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// WrapReportError wraps err unless it already is a ReportError.
func WrapReportError(op string, err error, details string) error {
	if err == nil {
		return nil
	}
	var re *ReportError
	if errors.As(err, &re) {
		return err
	}
	return &ReportError{Op: op, Err: err, Details: details}
}
