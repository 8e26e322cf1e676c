// Package record holds the typed output of every source module: cell values,
// stats tables and match records.
package record

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
)

// Kind tags the variant a Value holds.
type Kind uint8

const (
	Null Kind = iota
	String
	Int
	Float
	Date
	Nested
)

func (k Kind) String() string {
	switch k {
	case String:
		return "string"
	case Int:
		return "int"
	case Float:
		return "float"
	case Date:
		return "date"
	case Nested:
		return "table"
	}
	return "null"
}

// Value is a single cell. Only the field matching Kind is meaningful.
type Value struct {
	Kind  Kind
	Str   string
	Int   int64
	Float float64
	Date  time.Time
	Table *StatsTable
}

func NullValue() Value { return Value{} }

func StringValue(s string) Value { return Value{Kind: String, Str: s} }

func IntValue(n int64) Value { return Value{Kind: Int, Int: n} }

func FloatValue(f float64) Value { return Value{Kind: Float, Float: f} }

func DateValue(d time.Time) Value { return Value{Kind: Date, Date: d} }

func TableValue(t *StatsTable) Value {
	if t == nil {
		return Value{}
	}
	return Value{Kind: Nested, Table: t}
}

var (
	intPattern   = regexp.MustCompile(`^[-+]?\d{1,3}(,\d{3})+$|^[-+]?\d+$`)
	floatPattern = regexp.MustCompile(`^[-+]?(\d{1,3}(,\d{3})+|\d*)\.\d+$`)
	datePattern  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

// Infer types a raw cell. Comma thousands separators are accepted for
// numbers; ISO dates become Date; blank cells are Null. Anything else stays
// a string, so player names like "1860 Munich" are not mangled unless they
// are entirely numeric.
func Infer(cell string) Value {
	s := strings.TrimSpace(cell)
	switch {
	case s == "":
		return NullValue()
	case intPattern.MatchString(s):
		n, err := strconv.ParseInt(strings.ReplaceAll(s, ",", ""), 10, 64)
		if err == nil {
			return IntValue(n)
		}
	case floatPattern.MatchString(s):
		f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
		if err == nil {
			return FloatValue(f)
		}
	case datePattern.MatchString(s):
		d, err := time.Parse(time.DateOnly, s)
		if err == nil {
			return DateValue(d)
		}
	}
	return StringValue(s)
}

func (v Value) IsNull() bool { return v.Kind == Null }

// AsFloat returns the numeric value of an Int or Float cell.
func (v Value) AsFloat() (float64, bool) {
	switch v.Kind {
	case Int:
		return float64(v.Int), true
	case Float:
		return v.Float, true
	}
	return 0, false
}

// AsInt returns the value of an Int cell, or of a Float cell with no
// fractional part.
func (v Value) AsInt() (int, bool) {
	switch v.Kind {
	case Int:
		return int(v.Int), true
	case Float:
		if v.Float == float64(int(v.Float)) {
			return int(v.Float), true
		}
	}
	return 0, false
}

func (v Value) String() string {
	switch v.Kind {
	case String:
		return v.Str
	case Int:
		return strconv.FormatInt(v.Int, 10)
	case Float:
		return strconv.FormatFloat(v.Float, 'f', -1, 64)
	case Date:
		return v.Date.Format(time.DateOnly)
	case Nested:
		return "<table>"
	}
	return ""
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case String:
		return sonic.Marshal(v.Str)
	case Int:
		return sonic.Marshal(v.Int)
	case Float:
		return sonic.Marshal(v.Float)
	case Date:
		return sonic.Marshal(v.Date.Format(time.DateOnly))
	case Nested:
		return sonic.Marshal(v.Table)
	}
	return []byte("null"), nil
}
