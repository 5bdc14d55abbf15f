package model

import (
	"sort"
	"time"
)

// Wire names of the log entry fields.
const (
	FieldTimestamp = "ts"
	FieldPT        = "pt"
	FieldSI        = "si"
	FieldUU        = "uu"
	FieldBG        = "bg"
	FieldSHA256    = "sha"
	FieldFilename  = "nm"
	FieldPath      = "ph"
	FieldDP        = "dp"
)

// NoExtension groups filenames that have no '.' in them.
const NoExtension = "no_extension"

// Document is one decoded log line. Numbers are kept as json.Number so a
// validated document is exactly what was read.
type Document map[string]any

// Filename returns the "nm" field, or "" when it is absent or not a string.
func (d Document) Filename() string {
	s, _ := d[FieldFilename].(string)
	return s
}

// String returns the named field as a string.
func (d Document) String(field string) (string, bool) {
	s, ok := d[field].(string)
	return s, ok
}

// ExtensionCounts maps an extension label to the number of unique files
// carrying it.
type ExtensionCounts map[string]int

// ExtensionCount is one row of a sorted report.
type ExtensionCount struct {
	Extension string `json:"extension"`
	Count     int    `json:"count"`
}

// Sorted returns the counts ordered by extension label, ascending.
func (c ExtensionCounts) Sorted() []ExtensionCount {
	rows := make([]ExtensionCount, 0, len(c))
	for ext, n := range c {
		rows = append(rows, ExtensionCount{Extension: ext, Count: n})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Extension < rows[j].Extension })
	return rows
}

// Total returns the sum of all counts.
func (c ExtensionCounts) Total() int {
	var n int
	for _, v := range c {
		n += v
	}
	return n
}

// Rejection counts lines rejected with the same kind and message.
type Rejection struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Count   int    `json:"count"`
}

// Report is the outcome of one pass over one or more inputs.
type Report struct {
	GeneratedAt  time.Time       `json:"generated_at"`
	Sources      []string        `json:"sources"`
	Extensions   ExtensionCounts `json:"extensions"`
	UniqueFiles  int             `json:"unique_files"`
	TotalLines   int             `json:"total_lines"`
	ValidLines   int             `json:"valid_lines"`
	InvalidLines int             `json:"invalid_lines"`
	Rejections   []Rejection     `json:"rejections,omitempty"`
}
