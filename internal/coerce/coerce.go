// Package coerce turns raw text columns into typed values.
//
// Every Bronze column is a Raw: text that may be empty or malformed. Each
// accessor returns the parsed value, or the documented sentinel, and whether
// parsing succeeded. All fields of the same semantic type go through the
// same rule.
package coerce

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// Epoch is the sentinel substituted for unparsable timestamps.
var Epoch = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)

// truthy is the case-insensitive set of boolean-like spellings for true.
var truthy = map[string]struct{}{
	"1":    {},
	"true": {},
	"t":    {},
	"yes":  {},
}

// Raw is an unvalidated text column value.
type Raw string

// String returns the text unchanged.
func (r Raw) String() string { return string(r) }

// IsEmpty reports whether the value is missing (empty or blank).
func (r Raw) IsEmpty() bool { return strings.TrimSpace(string(r)) == "" }

func (r Raw) trimmed() string { return strings.TrimSpace(string(r)) }

// Timestamp parses the value with a best-effort parser. The result is UTC,
// truncated to whole seconds.
func (r Raw) Timestamp() (time.Time, bool) {
	s := r.trimmed()
	if s == "" {
		return Epoch, false
	}
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return Epoch, false
	}
	return t.UTC().Truncate(time.Second), true
}

// Int32 parses a base-10 signed integer.
func (r Raw) Int32() (int32, bool) {
	v, err := strconv.ParseInt(r.trimmed(), 10, 32)
	if err != nil {
		return 0, false
	}
	return int32(v), true
}

// Uint32 parses a base-10 unsigned integer that fits 32 bits.
func (r Raw) Uint32() (uint32, bool) {
	v, err := strconv.ParseUint(r.trimmed(), 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(v), true
}

// Uint64 parses a base-10 unsigned integer.
func (r Raw) Uint64() (uint64, bool) {
	v, err := strconv.ParseUint(r.trimmed(), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Float32 parses a finite floating point number. NaN and infinities are
// treated as unparsable.
func (r Raw) Float32() (float32, bool) {
	v, err := strconv.ParseFloat(r.trimmed(), 32)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return float32(v), true
}

// Bool reports membership in {"1","true","t","yes"}, ignoring case and
// surrounding blanks. Anything else, including "", is false.
func (r Raw) Bool() bool {
	_, ok := truthy[strings.ToLower(r.trimmed())]
	return ok
}

// Flag is Bool as 0/1.
func (r Raw) Flag() uint8 {
	if r.Bool() {
		return 1
	}
	return 0
}

// Of stringifies a decoded document value the way the raw layer stores it:
// nil becomes "", strings pass through, numbers use their shortest exact form
// and everything else uses fmt's default formatting.
func Of(v any) Raw {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return Raw(x)
	case bool:
		return Raw(strconv.FormatBool(x))
	case float64:
		return Raw(strconv.FormatFloat(x, 'f', -1, 64))
	case int:
		return Raw(strconv.Itoa(x))
	case int64:
		return Raw(strconv.FormatInt(x, 10))
	default:
		return Raw(fmt.Sprint(x))
	}
}
