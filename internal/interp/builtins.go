package interp

import (
	"strings"

	"github.com/weftdb/weft/internal/expr"
)

// builtin is the signature shared by all built-in functions. The name is
// passed through for error messages.
type builtin func(name string, args []expr.Value) (expr.Value, error)

var builtins = map[string]builtin{
	"min":    builtinMin,
	"max":    builtinMax,
	"concat": builtinConcat,
}

func builtinMin(name string, args []expr.Value) (expr.Value, error) {
	nums, err := numericArgs(name, args)
	if err != nil {
		return nil, err
	}
	best := nums[0]
	for _, n := range nums[1:] {
		if n < best {
			best = n
		}
	}
	return best, nil
}

func builtinMax(name string, args []expr.Value) (expr.Value, error) {
	nums, err := numericArgs(name, args)
	if err != nil {
		return nil, err
	}
	best := nums[0]
	for _, n := range nums[1:] {
		if n > best {
			best = n
		}
	}
	return best, nil
}

func builtinConcat(name string, args []expr.Value) (expr.Value, error) {
	if len(args) == 0 {
		return nil, evalErrf("%s requires at least one argument", name)
	}
	var b strings.Builder
	for i, v := range args {
		s, ok := v.(expr.String)
		if !ok {
			return nil, evalErrf("%s argument %d is not a string: %s", name, i+1, expr.FormatValue(v))
		}
		b.WriteString(string(s))
	}
	return expr.String(b.String()), nil
}

func numericArgs(name string, args []expr.Value) ([]expr.Number, error) {
	if len(args) == 0 {
		return nil, evalErrf("%s requires at least one argument", name)
	}
	nums := make([]expr.Number, len(args))
	for i, v := range args {
		n, ok := v.(expr.Number)
		if !ok {
			return nil, evalErrf("%s argument %d is not a number: %s", name, i+1, expr.FormatValue(v))
		}
		nums[i] = n
	}
	return nums, nil
}
