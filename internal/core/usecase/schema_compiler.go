package usecase

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	santhosh "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/atvirokodosprendimai/pmsbridge/internal/core/domain"
)

const (
	integerStringPattern = `^\s*[+-]?[0-9]+\s*$`
	numberStringPattern  = `^\s*[+-]?([0-9]+\.?[0-9]*|\.[0-9]+)([eE][+-]?[0-9]+)?\s*$`
	flagStringPattern    = `^(?i)\s*(0|1|true|false|yes|no|on|off)\s*$`
	dateOnlyJSONPattern  = `^[0-9]{4}-[0-9]{2}-[0-9]{2}$`
	dateTimeJSONPattern  = `^[0-9]{4}-[0-9]{2}-[0-9]{2}T[0-9]{2}:[0-9]{2}:[0-9]{2}Z$`
)

// CompiledOperation pairs an operation with its advertised input schema and
// the compiled schema that guards what is sent upstream.
type CompiledOperation struct {
	Operation   domain.Operation
	InputSchema json.RawMessage

	input    *santhosh.Schema
	outbound *santhosh.Schema
}

// CompileOperation validates the declaration and compiles both schemas.
func CompileOperation(op domain.Operation) (CompiledOperation, error) {
	if err := op.Validate(); err != nil {
		return CompiledOperation{}, err
	}

	inputJSON, err := json.Marshal(InputSchema(op))
	if err != nil {
		return CompiledOperation{}, fmt.Errorf("encode input schema for %s: %w", op.Name, err)
	}
	input, err := compileSchema(op.Name+".input.json", inputJSON)
	if err != nil {
		return CompiledOperation{}, fmt.Errorf("compile input schema for %s: %w", op.Name, err)
	}

	outboundJSON, err := json.Marshal(OutboundSchema(op))
	if err != nil {
		return CompiledOperation{}, fmt.Errorf("encode outbound schema for %s: %w", op.Name, err)
	}
	outbound, err := compileSchema(op.Name+".outbound.json", outboundJSON)
	if err != nil {
		return CompiledOperation{}, fmt.Errorf("compile outbound schema for %s: %w", op.Name, err)
	}

	return CompiledOperation{Operation: op, InputSchema: inputJSON, input: input, outbound: outbound}, nil
}

// Normalize runs NormalizeAndValidate and then checks the built parameters
// against the outbound schema. An outbound mismatch means the declaration and
// the builder disagree; it is reported as a plain error, not a caller error.
func (c CompiledOperation) Normalize(raw map[string]any) (domain.Request, error) {
	req, err := NormalizeAndValidate(raw, c.Operation)
	if err != nil {
		return domain.Request{}, err
	}
	if err := runValidation(c.outbound, req.Params); err != nil {
		return domain.Request{}, fmt.Errorf("outbound parameters for %s: %w", c.Operation.Name, err)
	}
	return req, nil
}

// MatchesInputSchema reports whether raw conforms to the advertised input
// schema. The advertised schema is a hint for tool runtimes; it is looser than
// NormalizeAndValidate (no calendar or cross-field checks).
func (c CompiledOperation) MatchesInputSchema(raw map[string]any) error {
	return runValidation(c.input, raw)
}

// InputSchema renders the loose contract advertised to tool runtimes.
func InputSchema(op domain.Operation) map[string]any {
	props := make(map[string]any, len(op.Fields))
	required := make([]string, 0)
	for _, f := range op.Fields {
		props[f.Name] = inputProperty(f)
		if f.Required {
			required = append(required, f.Name)
		}
	}
	doc := map[string]any{
		"$schema":    "http://json-schema.org/draft-07/schema#",
		"title":      op.Name,
		"type":       "object",
		"properties": props,
	}
	if op.Description != "" {
		doc["description"] = op.Description
	}
	if len(required) > 0 {
		doc["required"] = required
	}
	return doc
}

func inputProperty(f domain.FieldSpec) map[string]any {
	var prop map[string]any
	switch f.Type {
	case domain.TypeInteger:
		num := withBounds(map[string]any{"type": "integer"}, f)
		prop = map[string]any{"anyOf": []any{num, map[string]any{"type": "string", "pattern": integerStringPattern}}}
	case domain.TypeFloat:
		num := withBounds(map[string]any{"type": "number"}, f)
		prop = map[string]any{"anyOf": []any{num, map[string]any{"type": "string", "pattern": numberStringPattern}}}
	case domain.TypeBinaryFlag:
		prop = map[string]any{"anyOf": []any{
			map[string]any{"type": "boolean"},
			map[string]any{"type": "integer", "enum": []any{0, 1}},
			map[string]any{"type": "string", "pattern": flagStringPattern},
		}}
	case domain.TypeDate:
		prop = map[string]any{"type": "string", "pattern": datePattern(f.DateFormat)}
	default:
		prop = map[string]any{"type": "string"}
		if f.AllowStringify {
			prop["type"] = []any{"string", "number", "boolean"}
		}
		if f.MaxLength > 0 {
			prop["maxLength"] = f.MaxLength
		}
	}
	if len(f.Enum) > 0 && !f.EnumFold && f.Type == domain.TypeString && !f.AllowStringify {
		prop["enum"] = stringsToAny(f.Enum)
	}
	if f.Description != "" {
		prop["description"] = f.Description
	}
	return prop
}

// OutboundSchema renders the strict shape of the parameters sent upstream,
// keyed by upstream name. Path fields are excluded.
func OutboundSchema(op domain.Operation) map[string]any {
	props := make(map[string]any, len(op.Fields))
	required := make([]string, 0)
	for _, f := range op.Fields {
		if op.Location(f) == domain.InPath {
			continue
		}
		var prop map[string]any
		switch f.Type {
		case domain.TypeInteger:
			prop = map[string]any{"type": "integer"}
		case domain.TypeFloat:
			prop = map[string]any{"type": "number"}
		case domain.TypeBinaryFlag:
			prop = map[string]any{"type": "integer", "enum": []any{0, 1}}
		case domain.TypeDate:
			prop = map[string]any{"type": "string", "pattern": datePattern(f.DateFormat)}
		default:
			prop = map[string]any{"type": "string"}
		}
		props[f.UpstreamName()] = prop
		if f.Required {
			required = append(required, f.UpstreamName())
		}
	}
	doc := map[string]any{
		"$schema":              "http://json-schema.org/draft-07/schema#",
		"type":                 "object",
		"properties":           props,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		doc["required"] = required
	}
	return doc
}

func withBounds(prop map[string]any, f domain.FieldSpec) map[string]any {
	if f.Min != nil {
		prop["minimum"] = *f.Min
	}
	if f.Max != nil {
		prop["maximum"] = *f.Max
	}
	return prop
}

func datePattern(format domain.DateFormat) string {
	switch format {
	case domain.DateOnly:
		return dateOnlyJSONPattern
	case domain.DateTimeUTC:
		return dateTimeJSONPattern
	}
	return "(" + dateOnlyJSONPattern + ")|(" + dateTimeJSONPattern + ")"
}

func stringsToAny(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

func compileSchema(name string, schemaJSON []byte) (*santhosh.Schema, error) {
	compiler := santhosh.NewCompiler()
	compiler.Draft = santhosh.Draft7
	if err := compiler.AddResource(name, bytes.NewReader(schemaJSON)); err != nil {
		return nil, err
	}
	return compiler.Compile(name)
}

// runValidation round-trips v through JSON so the validator sees the same
// number representation a wire payload would have.
func runValidation(sch *santhosh.Schema, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if err := sch.Validate(doc); err != nil {
		var ve *santhosh.ValidationError
		if errors.As(err, &ve) {
			return &SchemaMismatch{Causes: collectValidationErrors(ve)}
		}
		return err
	}
	return nil
}

// SchemaMismatch lists the leaf causes of a failed JSON Schema validation.
type SchemaMismatch struct {
	Causes []string
}

func (e *SchemaMismatch) Error() string {
	return fmt.Sprintf("schema mismatch: %v", e.Causes)
}

func collectValidationErrors(ve *santhosh.ValidationError) []string {
	var msgs []string
	for _, cause := range ve.Causes {
		msgs = append(msgs, collectValidationErrors(cause)...)
	}
	if len(ve.Causes) == 0 {
		msgs = append(msgs, ve.Error())
	}
	return msgs
}
