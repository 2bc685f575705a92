package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindClassification(t *testing.T) {
	tests := []struct {
		kind        Kind
		name        string
		severity    Severity
		recoverable bool
	}{
		{KindUnreadableSource, "UNREADABLE_SOURCE", SeverityError, true},
		{KindDegenerateGeometry, "DEGENERATE_GEOMETRY", SeverityWarning, true},
		{KindOCRTransient, "OCR_TRANSIENT", SeverityWarning, true},
		{KindStructuralValidation, "STRUCTURAL_VALIDATION", SeverityFatal, false},
		{KindOverwriteProtection, "OVERWRITE_PROTECTION", SeverityFatal, false},
		{KindUnknown, "UNKNOWN", SeverityError, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.kind.String())
			assert.Equal(t, tt.severity, tt.kind.Severity())
			assert.Equal(t, tt.recoverable, tt.kind.IsRecoverable())
		})
	}
}

func TestWrapAndUnwrap(t *testing.T) {
	cause := stderrors.New("permission denied")
	err := Wrap(KindUnreadableSource, "cannot open pdf", cause).WithFile("a.pdf").WithPage(3)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "[UNREADABLE_SOURCE] cannot open pdf")
	assert.Equal(t, 3, err.PageNumber)

	wrapped := fmt.Errorf("exam 24_56: %w", err)
	assert.Equal(t, KindUnreadableSource, KindOf(wrapped))
	assert.True(t, Is(wrapped, KindUnreadableSource))
	assert.False(t, IsFatal(wrapped))
	assert.True(t, IsFatal(fmt.Errorf("run: %w", New(KindOverwriteProtection, "exists"))))
	assert.False(t, IsFatal(stderrors.New("plain")))
}

func TestCollection(t *testing.T) {
	c := NewCollection("answers.pdf")
	assert.Equal(t, "No errors or warnings", c.Summary())

	c.Add(New(KindDegenerateGeometry, "zero-area mask"))
	c.Add(New(KindUnreadableSource, "broken page"))

	errs, warns := c.Count()
	require.Equal(t, 1, errs)
	require.Equal(t, 1, warns)
	assert.Equal(t, "answers.pdf", c.Warnings[0].FilePath)
	assert.Equal(t, "Found 1 error(s) and 1 warning(s)", c.Summary())
}
