package table

import (
	"errors"
	"fmt"
	"strings"
)

// ErrStructural is matched by every StructuralError.
var ErrStructural = errors.New("structural parse failure")

// ErrColumnNotFound is returned when a period column is absent from a table.
var ErrColumnNotFound = errors.New("column not found")

// StructuralError reports a source table whose layout does not match its
// description: header or category rows absent, or no usable column left.
// The dataset cannot be loaded.
type StructuralError struct {
	Dataset string
	Row     int // -1 when not tied to a row
	Column  int // -1 when not tied to a column
	Reason  string
}

func (e *StructuralError) Error() string {
	var b strings.Builder
	if e.Dataset != "" {
		fmt.Fprintf(&b, "dataset %s: ", e.Dataset)
	}
	if e.Row >= 0 {
		fmt.Fprintf(&b, "row %d: ", e.Row)
	}
	if e.Column >= 0 {
		fmt.Fprintf(&b, "column %d: ", e.Column)
	}
	b.WriteString(e.Reason)
	return b.String()
}

func (e *StructuralError) Unwrap() error { return ErrStructural }

func structural(dataset string, row, col int, format string, args ...any) error {
	return &StructuralError{Dataset: dataset, Row: row, Column: col, Reason: fmt.Sprintf(format, args...)}
}

// ColumnMismatchError reports period columns present in one gender variant
// of a table and absent from the reference variant, or the reverse.
type ColumnMismatchError struct {
	Variant Gender   `json:"variant"`
	Missing []string `json:"missing,omitempty"` // in the reference, absent from Variant
	Extra   []string `json:"extra,omitempty"`   // in Variant, absent from the reference
}

func (e *ColumnMismatchError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ", "))
	}
	if len(e.Extra) > 0 {
		parts = append(parts, "extra "+strings.Join(e.Extra, ", "))
	}
	return fmt.Sprintf("variant %s: column mismatch: %s", e.Variant, strings.Join(parts, "; "))
}
