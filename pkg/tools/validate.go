package tools

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/xeipuuv/gojsonschema"
)

// Type is a JSON schema primitive type.
type Type string

// Parameter types.
const (
	TypeString  Type = "string"
	TypeInteger Type = "integer"
	TypeNumber  Type = "number"
	TypeBoolean Type = "boolean"
	TypeArray   Type = "array"
	TypeObject  Type = "object"
)

// Param declares one tool parameter.
type Param struct {
	Name        string
	Type        Type
	Description string
	Required    bool
	// Default is applied when an optional parameter is omitted.
	Default any
	// Items is the element schema of an array parameter.
	Items map[string]any
	// AltTypes lists further JSON types the parameter accepts.
	AltTypes []Type
}

func (p Param) schema() map[string]any {
	s := map[string]any{}
	if len(p.AltTypes) == 0 {
		s["type"] = string(p.Type)
	} else {
		types := []string{string(p.Type)}
		for _, t := range p.AltTypes {
			types = append(types, string(t))
		}
		s["type"] = types
	}
	if p.Description != "" {
		s["description"] = p.Description
	}
	if p.Items != nil {
		s["items"] = p.Items
	}
	if p.Default != nil {
		s["default"] = p.Default
	}
	return s
}

// inputSchema builds the tool's input schema. Unknown arguments are rejected.
func inputSchema(params []Param) mcp.ToolInputSchema {
	props := make(map[string]any, len(params))
	var required []string
	for _, p := range params {
		props[p.Name] = p.schema()
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return mcp.ToolInputSchema{
		Type:                 "object",
		Properties:           props,
		Required:             required,
		AdditionalProperties: false,
	}
}

func compileSchema(s mcp.ToolInputSchema) (*gojsonschema.Schema, error) {
	doc := map[string]any{
		"type":                 s.Type,
		"properties":           s.Properties,
		"additionalProperties": false,
	}
	if len(s.Required) > 0 {
		doc["required"] = s.Required
	}
	return gojsonschema.NewSchema(gojsonschema.NewGoLoader(doc))
}

// errorRank orders schema failures so the most useful one is reported.
var errorRank = map[string]int{
	"required":                        0,
	"additional_property_not_allowed": 1,
	"invalid_type":                    2,
}

// validateArgs checks args against schema and reports the first failure as a
// *ValidationError naming the parameter.
func validateArgs(schema *gojsonschema.Schema, args map[string]any) error {
	result, err := schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return &ValidationError{Param: "arguments", Detail: err.Error(), Err: ErrInvalidParameterType}
	}
	if result.Valid() {
		return nil
	}

	errs := result.Errors()
	rank := func(e gojsonschema.ResultError) int {
		if r, ok := errorRank[e.Type()]; ok {
			return r
		}
		return len(errorRank)
	}
	best := slices.MinFunc(errs, func(a, b gojsonschema.ResultError) int {
		return cmp.Or(cmp.Compare(rank(a), rank(b)), cmp.Compare(paramOf(a), paramOf(b)))
	})

	param := paramOf(best)
	switch best.Type() {
	case "required":
		return &ValidationError{Param: param, Err: ErrMissingParameter}
	case "additional_property_not_allowed":
		return &ValidationError{Param: param, Err: ErrUnknownParameter}
	case "invalid_type":
		d := best.Details()
		detail := fmt.Sprintf("expected %v, got %v", d["expected"], d["given"])
		if f := best.Field(); f != param {
			detail = f + ": " + detail
		}
		return &ValidationError{Param: param, Detail: detail, Err: ErrInvalidParameterType}
	default:
		return &ValidationError{Param: param, Detail: best.Description(), Err: ErrInvalidParameter}
	}
}

// paramOf returns the top-level argument a schema error is about.
func paramOf(e gojsonschema.ResultError) string {
	if p, ok := e.Details()["property"].(string); ok && p != "" {
		return p
	}
	field, _, _ := strings.Cut(e.Field(), ".")
	return field
}

// withDefaults returns a copy of args with defaults filled in for omitted params.
func withDefaults(params []Param, args map[string]any) Args {
	out := make(Args, len(params))
	maps.Copy(out, args)
	for _, p := range params {
		if _, ok := out[p.Name]; !ok && p.Default != nil {
			out[p.Name] = p.Default
		}
	}
	return out
}
