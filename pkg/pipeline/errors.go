package pipeline

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/hazyhaar/padron/pkg/importer"
	"github.com/hazyhaar/padron/pkg/province"
	"github.com/hazyhaar/padron/pkg/table"
)

var (
	ErrUnknownDataset = errors.New("unknown dataset")
	ErrUnknownMeasure = errors.New("unknown measure")
	ErrNoVariant      = errors.New("gender variant not available")
	ErrWrongKind      = errors.New("dataset has another kind")
	ErrNoUnified      = errors.New("manifest has no unified section")
	ErrNoCategory     = errors.New("category not found")
)

// DatasetError is a hard failure that aborted one dataset. Err already
// names the dataset, and the row and column when the reshaper knows them.
type DatasetError struct {
	Dataset string
	File    string
	Err     error
}

func (e *DatasetError) Error() string {
	return fmt.Sprintf("%s: %v", e.File, e.Err)
}

func (e *DatasetError) Unwrap() error { return e.Err }

// Classify maps a load error to the status stored in the catalog.
func Classify(err error) string {
	switch {
	case err == nil:
		return importer.StatusOK
	case errors.Is(err, province.ErrUnknownProvince):
		return importer.StatusNormalization
	case errors.Is(err, table.ErrStructural):
		return importer.StatusStructural
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, fs.ErrPermission):
		return importer.StatusIO
	}
	var pe *fs.PathError
	if errors.As(err, &pe) {
		return importer.StatusIO
	}
	return importer.StatusStructural
}
