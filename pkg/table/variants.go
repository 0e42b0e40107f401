package table

import (
	"errors"
	"fmt"
)

// Gender selects one variant of a per-province dataset.
type Gender string

const (
	GenderTotal  Gender = "total"
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

// ParseGender accepts the English names and the Spanish labels used by INE.
func ParseGender(s string) (Gender, error) {
	switch s {
	case "", "total", "Total", "ambos sexos", "Ambos sexos":
		return GenderTotal, nil
	case "male", "hombres", "Hombres":
		return GenderMale, nil
	case "female", "mujeres", "Mujeres":
		return GenderFemale, nil
	}
	return "", fmt.Errorf("unknown gender %q", s)
}

// Variants groups the total, male and female tables of one measure.
type Variants struct {
	Total  *ProvincialTable `json:"total"`
	Male   *ProvincialTable `json:"male"`
	Female *ProvincialTable `json:"female"`
}

// Select returns the table for g.
func (v Variants) Select(g Gender) (*ProvincialTable, error) {
	var t *ProvincialTable
	switch g {
	case GenderTotal, "":
		t = v.Total
	case GenderMale:
		t = v.Male
	case GenderFemale:
		t = v.Female
	default:
		return nil, fmt.Errorf("unknown gender %q", g)
	}
	if t == nil {
		return nil, fmt.Errorf("variant %s not loaded", g)
	}
	return t, nil
}

// Mismatches compares the male and female column sets against the total,
// one *ColumnMismatchError per diverging variant.
func (v Variants) Mismatches() []*ColumnMismatchError {
	if v.Total == nil {
		return nil
	}
	var out []*ColumnMismatchError
	for _, c := range []struct {
		g Gender
		t *ProvincialTable
	}{{GenderMale, v.Male}, {GenderFemale, v.Female}} {
		if c.t == nil {
			continue
		}
		missing, extra := CompareColumns(v.Total, c.t)
		if len(missing) > 0 || len(extra) > 0 {
			out = append(out, &ColumnMismatchError{Variant: c.g, Missing: missing, Extra: extra})
		}
	}
	return out
}

// Check joins Mismatches into one error.
func (v Variants) Check() error {
	var errs []error
	for _, m := range v.Mismatches() {
		errs = append(errs, m)
	}
	return errors.Join(errs...)
}

// CompareColumns returns the columns of ref absent from other, and the
// columns of other absent from ref, each in header order.
func CompareColumns(ref, other *ProvincialTable) (missing, extra []string) {
	for _, c := range ref.columns {
		if !other.HasColumn(c) {
			missing = append(missing, c)
		}
	}
	for _, c := range other.columns {
		if !ref.HasColumn(c) {
			extra = append(extra, c)
		}
	}
	return missing, extra
}
