package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ExamError is a classified failure raised while turning exam PDFs into
// dataset records. The Kind decides whether the caller degrades and continues
// or aborts the run.
type ExamError struct {
	Kind        Kind      `json:"kind"`
	Message     string    `json:"message"`
	Context     string    `json:"context,omitempty"`
	FilePath    string    `json:"file_path,omitempty"`
	PageNumber  int       `json:"page_number,omitempty"`
	Recoverable bool      `json:"recoverable"`
	Timestamp   time.Time `json:"timestamp"`
	Err         error     `json:"-"`
}

// Kind is the failure category.
type Kind int

const (
	KindUnknown Kind = iota
	KindUnreadableSource
	KindDegenerateGeometry
	KindRenderFailure
	KindOCRTransient
	KindStructuralValidation
	KindOverwriteProtection
	KindInvalidInput
)

// Severity indicates how far a failure propagates.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
	SeverityCritical
	SeverityFatal
)

// Error implements the error interface
func (e *ExamError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Kind.String(), e.Message)
	if e.Context != "" {
		msg += ": " + e.Context
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the underlying cause.
func (e *ExamError) Unwrap() error {
	return e.Err
}

// String returns a string representation of the Kind
func (k Kind) String() string {
	switch k {
	case KindUnreadableSource:
		return "UNREADABLE_SOURCE"
	case KindDegenerateGeometry:
		return "DEGENERATE_GEOMETRY"
	case KindRenderFailure:
		return "RENDER_FAILURE"
	case KindOCRTransient:
		return "OCR_TRANSIENT"
	case KindStructuralValidation:
		return "STRUCTURAL_VALIDATION"
	case KindOverwriteProtection:
		return "OVERWRITE_PROTECTION"
	case KindInvalidInput:
		return "INVALID_INPUT"
	default:
		return "UNKNOWN"
	}
}

// Severity returns the severity level for a given kind
func (k Kind) Severity() Severity {
	switch k {
	case KindStructuralValidation, KindOverwriteProtection:
		return SeverityFatal
	case KindUnreadableSource:
		return SeverityError
	case KindInvalidInput:
		return SeverityError
	case KindDegenerateGeometry, KindRenderFailure, KindOCRTransient:
		return SeverityWarning
	default:
		return SeverityError
	}
}

// IsRecoverable reports whether processing can continue past a failure of
// this kind at some enclosing scope (mask, question or exam).
func (k Kind) IsRecoverable() bool {
	switch k {
	case KindStructuralValidation, KindOverwriteProtection, KindInvalidInput:
		return false
	default:
		return true
	}
}

// New creates an ExamError of the given kind.
func New(kind Kind, message string) *ExamError {
	return &ExamError{
		Kind:        kind,
		Message:     message,
		Recoverable: kind.IsRecoverable(),
		Timestamp:   time.Now(),
	}
}

// Newf is New with a format string.
func Newf(kind Kind, format string, args ...any) *ExamError {
	return New(kind, fmt.Sprintf(format, args...))
}

// Wrap classifies an existing error.
func Wrap(kind Kind, message string, err error) *ExamError {
	e := New(kind, message)
	e.Err = err
	return e
}

// WithContext adds context to an existing ExamError
func (e *ExamError) WithContext(context string) *ExamError {
	e.Context = context
	return e
}

// WithFile adds file path information to an existing ExamError
func (e *ExamError) WithFile(filePath string) *ExamError {
	e.FilePath = filePath
	return e
}

// WithPage adds page number information to an existing ExamError
func (e *ExamError) WithPage(pageNumber int) *ExamError {
	e.PageNumber = pageNumber
	return e
}

// Severity returns the severity of this specific error
func (e *ExamError) Severity() Severity {
	return e.Kind.Severity()
}

// KindOf returns the kind of the first ExamError in err's chain, or
// KindUnknown.
func KindOf(err error) Kind {
	var ee *ExamError
	if stderrors.As(err, &ee) {
		return ee.Kind
	}
	return KindUnknown
}

// Is reports whether err carries an ExamError of the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsFatal reports whether err must terminate the whole process.
func IsFatal(err error) bool {
	var ee *ExamError
	if !stderrors.As(err, &ee) {
		return false
	}
	return ee.Severity() == SeverityFatal
}

// Collection gathers the non-fatal failures of one run.
type Collection struct {
	Errors   []*ExamError `json:"errors"`
	Warnings []*ExamError `json:"warnings"`
	FilePath string       `json:"file_path,omitempty"`
}

// NewCollection creates a new error collection
func NewCollection(filePath string) *Collection {
	return &Collection{
		Errors:   make([]*ExamError, 0),
		Warnings: make([]*ExamError, 0),
		FilePath: filePath,
	}
}

// Add adds an error to the appropriate list based on severity
func (c *Collection) Add(err *ExamError) {
	if err.FilePath == "" && c.FilePath != "" {
		err.FilePath = c.FilePath
	}

	severity := err.Severity()
	if severity == SeverityWarning || severity == SeverityInfo {
		c.Warnings = append(c.Warnings, err)
	} else {
		c.Errors = append(c.Errors, err)
	}
}

// Count returns the total number of errors and warnings
func (c *Collection) Count() (errors, warnings int) {
	return len(c.Errors), len(c.Warnings)
}

// Summary returns a text summary of all errors and warnings
func (c *Collection) Summary() string {
	errorCount, warningCount := c.Count()
	if errorCount == 0 && warningCount == 0 {
		return "No errors or warnings"
	}
	return fmt.Sprintf("Found %d error(s) and %d warning(s)", errorCount, warningCount)
}
