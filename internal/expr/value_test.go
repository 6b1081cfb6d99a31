package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftdb/weft/internal/fault"
)

func TestEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b Value
		want bool
	}{
		{"equal numbers", Number(2), Number(2), true},
		{"unequal numbers", Number(2), Number(3), false},
		{"equal strings", String("a"), String("a"), true},
		{"number vs string", Number(2), String("2"), false},
		{"bools", Bool(true), Bool(true), true},
		{"nulls", Null{}, Null{}, true},
		{"null vs number", Null{}, Number(0), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Equal(tt.a, tt.b))
		})
	}
}

func TestMarshalValueRoundTrip(t *testing.T) {
	for _, v := range []Value{Number(2.5), String("hello"), Bool(true), Null{}} {
		data, err := MarshalValue(v)
		require.NoError(t, err)

		got, err := UnmarshalValue(data)
		require.NoError(t, err)
		assert.True(t, Equal(v, got), "round trip of %v", v)
	}
}

func TestUnmarshalValue_RejectsComposites(t *testing.T) {
	for _, data := range []string{`[1,2]`, `{"a":1}`} {
		_, err := UnmarshalValue([]byte(data))
		require.Error(t, err, "input %s", data)
		assert.Equal(t, fault.MappingError, fault.CodeOf(err))
	}
}

func TestFormatValue_NumberShortest(t *testing.T) {
	assert.Equal(t, "5", FormatValue(Number(5)))
	assert.Equal(t, "2.5", FormatValue(Number(2.5)))
	assert.Equal(t, "0.1", FormatValue(Number(0.1)))
}
