package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/yycnik/json-log-parser/internal/model"
	"github.com/yycnik/json-log-parser/internal/schema"
)

// MaxPathLength is the longest accepted "ph" value, in characters.
const MaxPathLength = 4096

// Representable timestamps span 0001-01-01T00:00:00Z to 9999-12-31T23:59:59Z.
const (
	minUnixSeconds = -62135596800
	maxUnixSeconds = 253402300799
)

// Parser turns a raw log line into a validated Document.
type Parser struct {
	schema *schema.Schema
	now    func() time.Time
}

// Option configures a Parser.
type Option func(*Parser)

// WithClock sets the reference time used to reject future timestamps.
// The default is time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Parser) { p.now = now }
}

// New builds a Parser around the log entry schema.
func New(opts ...Option) (*Parser, error) {
	s, err := schema.New()
	if err != nil {
		return nil, err
	}
	p := &Parser{schema: s, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Parse decodes one line and validates it. Trailing line terminators are
// tolerated. On success the decoded document is returned untouched; on
// failure the error is an *Error.
func (p *Parser) Parse(raw string) (model.Document, error) {
	v, err := jsonschema.UnmarshalJSON(strings.NewReader(raw))
	if err != nil {
		return nil, &Error{Kind: KindJSONFormat, Message: "malformed JSON: " + err.Error(), Err: err}
	}
	if err := p.checkSchema(v); err != nil {
		return nil, err
	}
	doc := model.Document(v.(map[string]any))
	if err := p.checkSemantics(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Validate runs the schema and semantic checks on an already decoded document.
func (p *Parser) Validate(doc model.Document) error {
	if err := p.checkSchema(map[string]any(doc)); err != nil {
		return err
	}
	return p.checkSemantics(doc)
}

func (p *Parser) checkSchema(v any) error {
	err := p.schema.Validate(v)
	if err == nil {
		return nil
	}
	var sv *schema.Violation
	if errors.As(err, &sv) {
		return &Error{Kind: KindSchema, Message: sv.Message, Err: sv}
	}
	return &Error{Kind: KindSchema, Message: err.Error(), Err: err}
}

// checkSemantics covers what the schema cannot express. Order matters:
// timestamp, then path, then filename.
func (p *Parser) checkSemantics(doc model.Document) error {
	if err := checkTimestamp(doc[model.FieldTimestamp], p.now()); err != nil {
		return err
	}
	if ph, ok := doc.String(model.FieldPath); ok {
		if err := checkPath(ph); err != nil {
			return err
		}
	}
	return checkFilename(doc.Filename())
}

func checkTimestamp(v any, now time.Time) error {
	secs, err := seconds(v)
	if err != nil {
		return reject(KindTimestamp, err.Error())
	}
	ts, err := unixTime(secs)
	if err != nil {
		return reject(KindTimestamp, err.Error())
	}
	if ts.After(now) {
		return reject(KindTimestamp, "Timestamp is in the future")
	}
	return nil
}

func seconds(v any) (float64, error) {
	switch n := v.(type) {
	case json.Number:
		f, err := strconv.ParseFloat(string(n), 64)
		if err != nil {
			return 0, fmt.Errorf("timestamp out of range: %s", n)
		}
		return f, nil
	case float64:
		return n, nil
	case int64:
		return float64(n), nil
	case int:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("timestamp is not a number: %v", v)
	}
}

func unixTime(secs float64) (time.Time, error) {
	if math.IsNaN(secs) || secs < minUnixSeconds || secs > maxUnixSeconds {
		return time.Time{}, fmt.Errorf("timestamp out of range: %g", secs)
	}
	whole := math.Floor(secs)
	nsec := math.Round((secs - whole) * 1e9)
	if nsec >= 1e9 {
		whole++
		nsec -= 1e9
	}
	return time.Unix(int64(whole), int64(nsec)).UTC(), nil
}

func checkPath(ph string) error {
	if utf8.RuneCountInString(ph) > MaxPathLength {
		return reject(KindFilePath, fmt.Sprintf("File path is longer than %d characters", MaxPathLength))
	}
	if hasNullByte(ph) {
		return reject(KindFilePath, "File path contains null bytes")
	}
	return nil
}

func checkFilename(nm string) error {
	if strings.ContainsRune(nm, '/') {
		return reject(KindFilename, "Invalid character '/' in filename")
	}
	if hasNullByte(nm) {
		return reject(KindFilename, "Filename contains null bytes")
	}
	return nil
}

// hasNullByte looks at the UTF-8 bytes, not the characters.
func hasNullByte(s string) bool {
	return strings.IndexByte(s, 0) >= 0
}
