package sharing

import "fmt"

// Kind enumerates the clear value types the codec can secret-share.
type Kind int

const (
	KindInt Kind = iota
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	default:
		return "unknown"
	}
}

// ClearValue is a typed clear (non-shared) value. It is the only
// representation of a secret that ever leaves the codec.
type ClearValue struct {
	Kind Kind
	Int  int64
	Bool bool
}

// IntValue wraps an int64 as a clear value.
func IntValue(v int64) ClearValue {
	return ClearValue{Kind: KindInt, Int: v}
}

// BoolValue wraps a bool as a clear value.
func BoolValue(v bool) ClearValue {
	return ClearValue{Kind: KindBool, Bool: v}
}

// Native returns the underlying Go value.
func (v ClearValue) Native() interface{} {
	if v.Kind == KindBool {
		return v.Bool
	}
	return v.Int
}

// CoerceClearValue converts a caller-supplied input value into a ClearValue.
// Secret inputs must be integer-like; anything else fails with EncodingError.
func CoerceClearValue(name string, value interface{}) (ClearValue, error) {
	switch v := value.(type) {
	case int:
		return IntValue(int64(v)), nil
	case int8:
		return IntValue(int64(v)), nil
	case int16:
		return IntValue(int64(v)), nil
	case int32:
		return IntValue(int64(v)), nil
	case int64:
		return IntValue(v), nil
	case uint:
		return IntValue(int64(v)), nil
	case uint8:
		return IntValue(int64(v)), nil
	case uint16:
		return IntValue(int64(v)), nil
	case uint32:
		return IntValue(int64(v)), nil
	case bool:
		return BoolValue(v), nil
	case ClearValue:
		return v, nil
	default:
		return ClearValue{}, &EncodingError{
			Input:  name,
			Reason: fmt.Sprintf("unsupported secret value type %T", value),
		}
	}
}
