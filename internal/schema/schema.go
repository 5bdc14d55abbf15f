// Package schema holds the fixed log entry schema and checks documents
// against it in two passes: a structural pass (required fields, JSON types,
// numeric bounds) run by a JSON Schema engine, then an explicit pattern pass
// for the UUID and SHA-256 fields.
package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/yycnik/json-log-parser/internal/model"
)

// UUIDv4 matches a version 4 UUID in any letter case.
var UUIDv4 = regexp.MustCompile(`(?i)^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

// SHA256 matches a 64 digit hex digest, optionally prefixed with 0x.
var SHA256 = regexp.MustCompile(`(?i)^(0x)?[0-9a-f]{64}$`)

// Format is a named pattern a string field must match.
type Format struct {
	Name    string
	Pattern *regexp.Regexp
}

var (
	formatUUID   = &Format{Name: "UUID-v4", Pattern: UUIDv4}
	formatSHA256 = &Format{Name: "SHA-256", Pattern: SHA256}
)

// Field is the constraint set for one document field.
type Field struct {
	Name      string
	Type      string // JSON Schema type: number, integer or string
	Required  bool
	Minimum   *int64
	Maximum   *int64
	MinLength int
	Format    *Format
}

func bound(n int64) *int64 { return &n }

// fields is the log entry schema in reporting order.
var fields = []Field{
	{Name: model.FieldTimestamp, Type: "number", Required: true},
	{Name: model.FieldPT, Type: "integer", Required: true, Minimum: bound(0)},
	{Name: model.FieldSI, Type: "string", Required: true, Format: formatUUID},
	{Name: model.FieldUU, Type: "string", Required: true, Format: formatUUID},
	{Name: model.FieldBG, Type: "string", Required: true, Format: formatUUID},
	{Name: model.FieldSHA256, Type: "string", Required: true, Format: formatSHA256},
	{Name: model.FieldFilename, Type: "string", Required: true, MinLength: 1},
	{Name: model.FieldPath, Type: "string"},
	{Name: model.FieldDP, Type: "integer", Minimum: bound(1), Maximum: bound(3)},
}

// Fields returns a copy of the log entry schema.
func Fields() []Field {
	out := make([]Field, len(fields))
	copy(out, fields)
	return out
}

// Reason classifies a schema violation.
type Reason int

const (
	ReasonRequired Reason = iota + 1
	ReasonType
	ReasonRange
	ReasonPattern
)

func (r Reason) String() string {
	switch r {
	case ReasonRequired:
		return "required"
	case ReasonType:
		return "type"
	case ReasonRange:
		return "range"
	case ReasonPattern:
		return "pattern"
	default:
		return "unknown"
	}
}

// Violation describes the first schema rule a document breaks.
type Violation struct {
	Field   string // empty when the document itself is at fault
	Reason  Reason
	Message string
}

func (v *Violation) Error() string { return v.Message }

// Schema is the compiled log entry schema. It is safe for concurrent use.
type Schema struct {
	fields   []Field
	order    map[string]int
	compiled *jsonschema.Schema
	printer  *message.Printer
}

// New compiles the log entry schema.
func New() (*Schema, error) {
	raw, err := json.Marshal(document(fields))
	if err != nil {
		return nil, fmt.Errorf("encode schema: %w", err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("log-entry.json", doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	compiled, err := compiler.Compile("log-entry.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	order := make(map[string]int, len(fields))
	for i, f := range fields {
		order[f.Name] = i
	}

	return &Schema{
		fields:   fields,
		order:    order,
		compiled: compiled,
		printer:  message.NewPrinter(language.English),
	}, nil
}

// document renders the structural part of the field list as a JSON Schema.
// Patterns are left out; CheckFormats applies them.
func document(fs []Field) map[string]any {
	props := make(map[string]any, len(fs))
	var required []string
	for _, f := range fs {
		p := map[string]any{"type": f.Type}
		if f.Minimum != nil {
			p["minimum"] = *f.Minimum
		}
		if f.Maximum != nil {
			p["maximum"] = *f.Maximum
		}
		if f.MinLength > 0 {
			p["minLength"] = f.MinLength
		}
		props[f.Name] = p
		if f.Required {
			required = append(required, f.Name)
		}
	}
	return map[string]any{
		"$schema":    "https://json-schema.org/draft/2020-12/schema",
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

// Validate runs the structural pass and then the pattern pass.
func (s *Schema) Validate(doc any) error {
	doc = plain(doc)
	if err := s.CheckStructure(doc); err != nil {
		return err
	}
	return s.CheckFormats(doc.(map[string]any))
}

// CheckStructure verifies required fields, JSON types and numeric bounds.
// doc must be a value decoded with jsonschema.UnmarshalJSON or an
// equivalent encoding/json decode.
func (s *Schema) CheckStructure(doc any) error {
	err := s.compiled.Validate(plain(doc))
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return fmt.Errorf("schema validation: %w", err)
	}
	return s.first(leaves(ve, nil))
}

// CheckFormats verifies the UUID and SHA-256 fields against their patterns.
// Fields that are absent or not strings are left to CheckStructure.
func (s *Schema) CheckFormats(doc map[string]any) error {
	for _, f := range s.fields {
		if f.Format == nil {
			continue
		}
		v, ok := doc[f.Name].(string)
		if !ok {
			continue
		}
		if !f.Format.Pattern.MatchString(v) {
			return &Violation{
				Field:   f.Name,
				Reason:  ReasonPattern,
				Message: fmt.Sprintf("pattern mismatch: '%s' value %q does not match the %s pattern", f.Name, v, f.Format.Name),
			}
		}
	}
	return nil
}

// plain strips the model.Document name so the engine sees a JSON object.
func plain(doc any) any {
	if d, ok := doc.(model.Document); ok {
		return map[string]any(d)
	}
	return doc
}

func leaves(ve *jsonschema.ValidationError, acc []*jsonschema.ValidationError) []*jsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return append(acc, ve)
	}
	for _, c := range ve.Causes {
		acc = leaves(c, acc)
	}
	return acc
}

// first turns the engine's error leaves into a single violation: a broken
// document shape wins, then missing fields, then per-field errors in schema
// order.
func (s *Schema) first(errs []*jsonschema.ValidationError) *Violation {
	var best *Violation
	bestRank := len(s.fields) * 2
	for _, e := range errs {
		v, rank := s.violation(e)
		if best == nil || rank < bestRank {
			best, bestRank = v, rank
		}
	}
	if best == nil {
		return &Violation{Reason: ReasonType, Message: "document does not match the log entry schema"}
	}
	return best
}

func (s *Schema) violation(e *jsonschema.ValidationError) (*Violation, int) {
	field := strings.Join(e.InstanceLocation, "/")
	rank, known := s.order[field]
	if !known {
		rank = len(s.fields)
	}
	// Per-field errors rank after every missing field.
	rank += len(s.fields)

	switch k := e.ErrorKind.(type) {
	case *kind.Required:
		missing := append([]string(nil), k.Missing...)
		sort.Slice(missing, func(i, j int) bool { return s.order[missing[i]] < s.order[missing[j]] })
		name := ""
		if len(missing) > 0 {
			name = missing[0]
		}
		return &Violation{
			Field:   name,
			Reason:  ReasonRequired,
			Message: fmt.Sprintf("missing required field: '%s' is a required property", name),
		}, s.order[name]
	case *kind.Type:
		want := strings.Join(k.Want, " or ")
		if field == "" {
			return &Violation{
				Reason:  ReasonType,
				Message: fmt.Sprintf("wrong type: document is not of type '%s' (got %s)", want, k.Got),
			}, -1
		}
		return &Violation{
			Field:   field,
			Reason:  ReasonType,
			Message: fmt.Sprintf("wrong type: '%s' is not of type '%s' (got %s)", field, want, k.Got),
		}, rank
	default:
		return &Violation{
			Field:   field,
			Reason:  ReasonRange,
			Message: fmt.Sprintf("'%s' is out of range: %s", field, e.ErrorKind.LocalizedString(s.printer)),
		}, rank
	}
}
