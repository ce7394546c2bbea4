package schema

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/spf13/cast"
)

// Scalar is a leaf value as the model produced it: a number, a string such as
// "R$ 1.234,56", a boolean or null. Coercion is left to the consumer.
type Scalar struct {
	v any
}

// NewScalar wraps a Go value. Intended for tests and fixtures.
func NewScalar(v any) Scalar {
	return Scalar{v: v}
}

// UnmarshalJSON keeps numbers as json.Number so no precision is lost before coercion.
func (s *Scalar) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return err
	}
	s.v = v
	return nil
}

func (s Scalar) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.v)
}

// Value returns the underlying value (nil, string, bool, json.Number or a Go number).
func (s Scalar) Value() any {
	return s.v
}

// IsNull reports whether the value is absent or JSON null.
func (s Scalar) IsNull() bool {
	return s.v == nil
}

// Text renders the value as text. Null renders as "".
func (s Scalar) Text() string {
	switch v := s.v.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return cast.ToString(v)
	}
}
