// Package compiler turns CUE resource definitions into schema structs.
//
// Definitions live under a top-level "resource" struct, one field per
// resource:
//
//	resource: BlogPost: {
//	    table: "posts"
//	    attributes: {
//	        id:    {type: "uuid"}
//	        title: {type: "string"}
//	        views: {type: "int", allowNil: true}
//	    }
//	    primaryKey: ["id"]
//	}
//
// The compiler walks the value with the CUE Go API directly (not a CLI
// subprocess) and reports failures with source positions. Loading from
// disk lives with the caller; see the cli package's loader.
package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/stratumdb/stratum/internal/resource"
)

// Error is a definition-compile failure tied to a CUE source position.
type Error struct {
	Path    string // dotted path into the definition, e.g. "BlogPost.attributes.views"
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Path, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// CompileDefinitions compiles every resource declared under the value's
// top-level "resource" struct, in declaration order.
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`resource: BlogPost: { ... }`)
//	resources, err := CompileDefinitions(v)
func CompileDefinitions(v cue.Value) ([]*resource.Resource, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	root := v.LookupPath(cue.ParsePath("resource"))
	if !root.Exists() {
		return nil, &Error{
			Path:    "resource",
			Message: "no resource definitions found (want a top-level \"resource\" struct)",
			Pos:     v.Pos(),
		}
	}

	iter, err := root.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var resources []*resource.Resource
	for iter.Next() {
		res, err := CompileResource(iter.Value(), iter.Label())
		if err != nil {
			return nil, err
		}
		resources = append(resources, res)
	}
	if len(resources) == 0 {
		return nil, &Error{
			Path:    "resource",
			Message: "at least one resource is required",
			Pos:     root.Pos(),
		}
	}
	return resources, nil
}

// CompileResource compiles one resource body (the struct under
// "resource: <name>") into a validated schema.
func CompileResource(v cue.Value, name string) (*resource.Resource, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if name == "" {
		return nil, &Error{
			Path:    "resource",
			Message: "resource name is required",
			Pos:     v.Pos(),
		}
	}

	res := &resource.Resource{Name: name}

	// table is optional; empty means derive from the resource name.
	tableVal := v.LookupPath(cue.ParsePath("table"))
	if tableVal.Exists() {
		table, err := tableVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		res.Table = table
	}

	attrs, err := compileAttributes(v, name)
	if err != nil {
		return nil, err
	}
	res.Attributes = attrs

	pkey, err := compilePrimaryKey(v, name)
	if err != nil {
		return nil, err
	}
	res.PrimaryKey = pkey

	if err := res.Validate(); err != nil {
		return nil, &Error{
			Path:    name,
			Message: err.Error(),
			Pos:     v.Pos(),
		}
	}
	return res, nil
}

// compileAttributes walks the required "attributes" struct. CUE field
// iteration preserves declaration order, and so does the compiled schema.
func compileAttributes(v cue.Value, name string) ([]resource.Attribute, error) {
	attrsVal := v.LookupPath(cue.ParsePath("attributes"))
	if !attrsVal.Exists() {
		return nil, &Error{
			Path:    name + ".attributes",
			Message: "attributes are required",
			Pos:     v.Pos(),
		}
	}

	iter, err := attrsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var attrs []resource.Attribute
	for iter.Next() {
		attrName := iter.Label()
		attrVal := iter.Value()
		path := fmt.Sprintf("%s.attributes.%s", name, attrName)

		typeVal := attrVal.LookupPath(cue.ParsePath("type"))
		if !typeVal.Exists() {
			return nil, &Error{
				Path:    path,
				Message: "type is required",
				Pos:     attrVal.Pos(),
			}
		}
		typeName, err := typeVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		typ, err := resource.ParseType(typeName)
		if err != nil {
			return nil, &Error{
				Path:    path + ".type",
				Message: err.Error(),
				Pos:     typeVal.Pos(),
			}
		}

		attr := resource.Attribute{Name: attrName, Type: typ}

		allowNilVal := attrVal.LookupPath(cue.ParsePath("allowNil"))
		if allowNilVal.Exists() {
			allowNil, err := allowNilVal.Bool()
			if err != nil {
				return nil, formatCUEError(err)
			}
			attr.AllowNil = allowNil
		}

		attrs = append(attrs, attr)
	}
	return attrs, nil
}

// compilePrimaryKey reads the required "primaryKey" list of attribute
// names, order significant.
func compilePrimaryKey(v cue.Value, name string) ([]string, error) {
	keyVal := v.LookupPath(cue.ParsePath("primaryKey"))
	if !keyVal.Exists() {
		return nil, &Error{
			Path:    name + ".primaryKey",
			Message: "primaryKey is required",
			Pos:     v.Pos(),
		}
	}

	iter, err := keyVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var pkey []string
	for iter.Next() {
		attr, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		pkey = append(pkey, attr)
	}
	return pkey, nil
}

// formatCUEError extracts position info from CUE SDK errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		return &Error{
			Path:    "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
