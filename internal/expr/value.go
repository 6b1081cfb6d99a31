package expr

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/weftdb/weft/internal/fault"
)

// Value is a sealed interface over the runtime value variants.
// Only Number, String, Bool, and Null implement it.
type Value interface {
	value() // Sealed - only these types implement it
}

// Number is an IEEE-754 double precision value.
type Number float64

func (Number) value() {}

// String is a UTF-8 string value.
type String string

func (String) value() {}

// Bool is a boolean value.
type Bool bool

func (Bool) value() {}

// Null is the explicit null value.
// Using a concrete type keeps nil out of the Value domain.
type Null struct{}

func (Null) value() {}

// Equal reports whether two values are the same variant with the same content.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case Number:
		bv, ok := b.(Number)
		return ok && av == bv
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case Null:
		_, ok := b.(Null)
		return ok
	default:
		return false
	}
}

// FormatValue renders a value the way the canonical expression text does.
// Numbers use the shortest representation that round-trips through float64.
func FormatValue(v Value) string {
	switch val := v.(type) {
	case Number:
		return strconv.FormatFloat(float64(val), 'g', -1, 64)
	case String:
		return strconv.Quote(string(val))
	case Bool:
		if val {
			return "true"
		}
		return "false"
	case Null:
		return "null"
	default:
		return fmt.Sprintf("<%T>", v)
	}
}

// MarshalValue serializes a value to JSON text.
func MarshalValue(v Value) ([]byte, error) {
	switch val := v.(type) {
	case Number:
		return json.Marshal(float64(val))
	case String:
		return json.Marshal(string(val))
	case Bool:
		return json.Marshal(bool(val))
	case Null:
		return []byte("null"), nil
	default:
		return nil, fault.Newf(fault.MappingError, "unknown value type %T", v)
	}
}

// UnmarshalValue parses JSON text into a value.
// Arrays and objects are rejected: the expression value model is scalar.
func UnmarshalValue(data []byte) (Value, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fault.Wrap(fault.InvalidData, "decode value", err)
	}
	return FromGo(raw)
}

// FromGo converts a decoded JSON value into a Value.
// Returns a MappingError for arrays, objects, and unsupported types.
func FromGo(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case bool:
		return Bool(val), nil
	case string:
		return String(val), nil
	case float64:
		return Number(val), nil
	case int:
		return Number(val), nil
	case int64:
		return Number(val), nil
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return nil, fault.Wrap(fault.MappingError, "number out of range", err)
		}
		return Number(f), nil
	default:
		return nil, fault.Newf(fault.MappingError, "cannot map %T into the value model", v)
	}
}

// ToGo converts a Value to its plain Go representation for JSON encoding
// and event payloads.
func ToGo(v Value) any {
	switch val := v.(type) {
	case Number:
		return float64(val)
	case String:
		return string(val)
	case Bool:
		return bool(val)
	default:
		return nil
	}
}
