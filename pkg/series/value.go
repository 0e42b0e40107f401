package series

import (
	"encoding/json"
	"math"
	"strconv"
)

// Value is a number or an explicit missing marker. The zero Value is missing.
type Value struct {
	Float float64
	Valid bool
}

// Some returns a present value. NaN is treated as missing.
func Some(f float64) Value {
	if math.IsNaN(f) {
		return Value{}
	}
	return Value{Float: f, Valid: true}
}

// Missing is the explicit absent value.
var Missing = Value{}

// Or returns the number, or def if missing.
func (v Value) Or(def float64) float64 {
	if !v.Valid {
		return def
	}
	return v.Float
}

// Ptr returns nil for missing values; encoders render nil as an empty cell.
func (v Value) Ptr() *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float
	return &f
}

func (v Value) String() string {
	if !v.Valid {
		return "NA"
	}
	return strconv.FormatFloat(v.Float, 'f', -1, 64)
}

func (v Value) MarshalJSON() ([]byte, error) {
	if !v.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(v.Float)
}

func (v *Value) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*v = Value{}
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*v = Some(f)
	return nil
}
