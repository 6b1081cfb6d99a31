package schema

import (
	"fmt"
	"os"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/token"

	"github.com/weftdb/weft/internal/atom"
	"github.com/weftdb/weft/internal/transform"
)

// CompileError is a schema compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// CompileFile compiles every schema declared in a CUE file.
func CompileFile(path string) ([]Schema, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema file: %w", err)
	}
	return CompileString(string(src))
}

// CompileString compiles schema declarations from CUE source. The source
// declares schemas under a top-level "schema" struct:
//
//	schema: Pricing: {
//	    fields: {
//	        unit:  {type: "number"}
//	        tiers: {type: "number", variant: "range"}
//	    }
//	    transforms: {
//	        total: {
//	            logic:  "return (Pricing.unit * Inventory.count)"
//	            inputs: ["Pricing.unit", "Inventory.count"]
//	            output: "Pricing.total"
//	        }
//	    }
//	}
func CompileString(src string) ([]Schema, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src)
	if err := v.Err(); err != nil {
		return nil, &CompileError{Field: "schema", Message: err.Error(), Pos: v.Pos()}
	}

	root := v.LookupPath(cue.ParsePath("schema"))
	if !root.Exists() {
		return nil, &CompileError{Field: "schema", Message: "top-level schema struct is required", Pos: v.Pos()}
	}

	iter, err := root.Fields()
	if err != nil {
		return nil, &CompileError{Field: "schema", Message: err.Error(), Pos: root.Pos()}
	}

	var schemas []Schema
	for iter.Next() {
		s, err := compileSchema(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		schemas = append(schemas, s)
	}
	sort.Slice(schemas, func(i, j int) bool { return schemas[i].Name < schemas[j].Name })
	return schemas, nil
}

func compileSchema(name string, v cue.Value) (Schema, error) {
	s := Schema{Name: name}

	fieldsVal := v.LookupPath(cue.ParsePath("fields"))
	if !fieldsVal.Exists() {
		return Schema{}, &CompileError{Field: name + ".fields", Message: "fields struct is required", Pos: v.Pos()}
	}
	iter, err := fieldsVal.Fields()
	if err != nil {
		return Schema{}, &CompileError{Field: name + ".fields", Message: err.Error(), Pos: fieldsVal.Pos()}
	}
	for iter.Next() {
		f, err := compileField(name, iter.Label(), iter.Value())
		if err != nil {
			return Schema{}, err
		}
		s.Fields = append(s.Fields, f)
	}
	if len(s.Fields) == 0 {
		return Schema{}, &CompileError{Field: name + ".fields", Message: "at least one field is required", Pos: fieldsVal.Pos()}
	}

	transformsVal := v.LookupPath(cue.ParsePath("transforms"))
	if transformsVal.Exists() {
		tIter, err := transformsVal.Fields()
		if err != nil {
			return Schema{}, &CompileError{Field: name + ".transforms", Message: err.Error(), Pos: transformsVal.Pos()}
		}
		for tIter.Next() {
			d, err := compileTransform(name, tIter.Label(), tIter.Value())
			if err != nil {
				return Schema{}, err
			}
			s.Transforms = append(s.Transforms, d)
		}
	}
	return s, nil
}

func compileField(schemaName, fieldName string, v cue.Value) (Field, error) {
	label := schemaName + "." + fieldName

	typVal := v.LookupPath(cue.ParsePath("type"))
	if !typVal.Exists() {
		return Field{}, &CompileError{Field: label, Message: "type is required", Pos: v.Pos()}
	}
	typ, err := typVal.String()
	if err != nil {
		return Field{}, &CompileError{Field: label + ".type", Message: err.Error(), Pos: typVal.Pos()}
	}
	switch FieldType(typ) {
	case TypeNumber, TypeString, TypeBool:
	default:
		return Field{}, &CompileError{Field: label + ".type",
			Message: fmt.Sprintf("unknown type %q (want number, string, or bool)", typ), Pos: typVal.Pos()}
	}

	variant := atom.KindSingle
	variantVal := v.LookupPath(cue.ParsePath("variant"))
	if variantVal.Exists() {
		raw, err := variantVal.String()
		if err != nil {
			return Field{}, &CompileError{Field: label + ".variant", Message: err.Error(), Pos: variantVal.Pos()}
		}
		switch atom.RefKind(raw) {
		case atom.KindSingle, atom.KindCollection, atom.KindRange:
			variant = atom.RefKind(raw)
		default:
			return Field{}, &CompileError{Field: label + ".variant",
				Message: fmt.Sprintf("unknown variant %q (want single, collection, or range)", raw), Pos: variantVal.Pos()}
		}
	}

	return Field{Name: fieldName, Type: FieldType(typ), Variant: variant}, nil
}

func compileTransform(schemaName, transformName string, v cue.Value) (transform.Declaration, error) {
	label := schemaName + "." + transformName
	d := transform.Declaration{Name: transformName}

	logicVal := v.LookupPath(cue.ParsePath("logic"))
	if !logicVal.Exists() {
		return d, &CompileError{Field: label, Message: "logic is required", Pos: v.Pos()}
	}
	logic, err := logicVal.String()
	if err != nil {
		return d, &CompileError{Field: label + ".logic", Message: err.Error(), Pos: logicVal.Pos()}
	}
	d.Logic = logic

	outputVal := v.LookupPath(cue.ParsePath("output"))
	if !outputVal.Exists() {
		return d, &CompileError{Field: label, Message: "output is required", Pos: v.Pos()}
	}
	d.Output, err = outputVal.String()
	if err != nil {
		return d, &CompileError{Field: label + ".output", Message: err.Error(), Pos: outputVal.Pos()}
	}

	inputsVal := v.LookupPath(cue.ParsePath("inputs"))
	if inputsVal.Exists() {
		list, err := inputsVal.List()
		if err != nil {
			return d, &CompileError{Field: label + ".inputs", Message: err.Error(), Pos: inputsVal.Pos()}
		}
		for list.Next() {
			input, err := list.Value().String()
			if err != nil {
				return d, &CompileError{Field: label + ".inputs", Message: err.Error(), Pos: list.Value().Pos()}
			}
			d.Inputs = append(d.Inputs, input)
		}
	}

	reversibleVal := v.LookupPath(cue.ParsePath("reversible"))
	if reversibleVal.Exists() {
		d.Reversible, err = reversibleVal.Bool()
		if err != nil {
			return d, &CompileError{Field: label + ".reversible", Message: err.Error(), Pos: reversibleVal.Pos()}
		}
	}

	signatureVal := v.LookupPath(cue.ParsePath("signature"))
	if signatureVal.Exists() {
		d.Signature, err = signatureVal.String()
		if err != nil {
			return d, &CompileError{Field: label + ".signature", Message: err.Error(), Pos: signatureVal.Pos()}
		}
	}
	return d, nil
}
