// Package aggregator builds the unique filename set from a stream of log
// lines and groups the result by file extension.
package aggregator

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/yycnik/json-log-parser/internal/model"
	"github.com/yycnik/json-log-parser/internal/parser"
)

// LineSource yields raw lines. *bufio.Scanner and *linesource.Source
// satisfy it.
type LineSource interface {
	Scan() bool
	Text() string
	Err() error
}

// Oversized is implemented by sources that skip lines longer than a limit
// instead of failing. *linesource.Source implements it.
type Oversized interface {
	Oversized() (limit int, over bool)
}

// Observer is told about every line as it is accepted or rejected. Line
// numbers start at 1 for each source.
type Observer interface {
	Accepted(line int, doc model.Document)
	Rejected(line int, err *parser.Error)
}

// ProcessingStats counts lines by outcome.
type ProcessingStats struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Fail    int `json:"fail"`
}

// ExceptionKey groups rejections that share a kind and message.
type ExceptionKey struct {
	Kind    parser.Kind
	Message string
}

func (k ExceptionKey) String() string { return k.Kind.String() + "-" + k.Message }

// ExceptionStats counts rejections per kind and message.
type ExceptionStats map[ExceptionKey]int

// Sorted returns the breakdown, most frequent first.
func (e ExceptionStats) Sorted() []model.Rejection {
	out := make([]model.Rejection, 0, len(e))
	for k, n := range e {
		out = append(out, model.Rejection{Kind: k.Kind.String(), Message: k.Message, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Message < out[j].Message
	})
	return out
}

// Aggregator accumulates one run. Several sources may be collected into the
// same unique set. It is not safe for concurrent use.
type Aggregator struct {
	parser     *parser.Parser
	observer   Observer
	files      FileSet
	stats      ProcessingStats
	exceptions ExceptionStats
}

// New creates an Aggregator. A nil observer is allowed.
func New(p *parser.Parser, obs Observer) *Aggregator {
	if obs == nil {
		obs = NopObserver{}
	}
	return &Aggregator{
		parser:     p,
		observer:   obs,
		files:      make(FileSet),
		exceptions: make(ExceptionStats),
	}
}

// Collect consumes src to the end. Rejected lines, including lines too long
// for src, are counted, never returned; only a failure of src itself is.
func (a *Aggregator) Collect(src LineSource) error {
	sized, _ := src.(Oversized)
	var n int
	for src.Scan() {
		n++
		if sized != nil {
			if limit, over := sized.Oversized(); over {
				a.stats.Total++
				a.reject(n, &parser.Error{
					Kind:    parser.KindJSONFormat,
					Message: fmt.Sprintf("line exceeds %d bytes", limit),
				})
				continue
			}
		}
		if err := a.record(n, src.Text()); err != nil {
			return err
		}
	}
	return src.Err()
}

// record processes one line.
func (a *Aggregator) record(n int, raw string) error {
	a.stats.Total++

	doc, err := a.parser.Parse(raw)
	if err == nil {
		a.files.Add(doc.Filename())
		a.stats.Success++
		a.observer.Accepted(n, doc)
		return nil
	}

	rej, ok := parser.AsError(err)
	if !ok {
		return fmt.Errorf("line %d: %w", n, err)
	}
	a.reject(n, rej)
	return nil
}

func (a *Aggregator) reject(n int, rej *parser.Error) {
	a.stats.Fail++
	a.exceptions[ExceptionKey{Kind: rej.Kind, Message: rej.Message}]++
	a.observer.Rejected(n, rej)
}

// Files returns the unique filename set collected so far.
func (a *Aggregator) Files() FileSet { return a.files }

// Stats returns the line counters.
func (a *Aggregator) Stats() ProcessingStats { return a.stats }

// Exceptions returns a copy of the rejection breakdown.
func (a *Aggregator) Exceptions() ExceptionStats {
	out := make(ExceptionStats, len(a.exceptions))
	for k, v := range a.exceptions {
		out[k] = v
	}
	return out
}

// Report snapshots the run.
func (a *Aggregator) Report(at time.Time, sources []string) model.Report {
	return model.Report{
		GeneratedAt:  at,
		Sources:      append([]string(nil), sources...),
		Extensions:   CountExtensions(a.files),
		UniqueFiles:  a.files.Len(),
		TotalLines:   a.stats.Total,
		ValidLines:   a.stats.Success,
		InvalidLines: a.stats.Fail,
		Rejections:   a.exceptions.Sorted(),
	}
}

// CollectUniqueFilenames runs one pass over src with p.
func CollectUniqueFilenames(src LineSource, p *parser.Parser, obs Observer) (FileSet, ProcessingStats, ExceptionStats, error) {
	a := New(p, obs)
	err := a.Collect(src)
	return a.files, a.stats, a.exceptions, err
}

// CountExtensions buckets every filename in files by Extension. A nil or
// empty set gives an empty map. Empty names are skipped.
func CountExtensions(files FileSet) model.ExtensionCounts {
	counts := make(model.ExtensionCounts)
	for name := range files {
		if name == "" {
			continue
		}
		counts[Extension(name)]++
	}
	return counts
}

// Extension returns the text after the last '.', or model.NoExtension when
// name has no '.'.
func Extension(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return model.NoExtension
	}
	return name[i+1:]
}

// NopObserver ignores everything.
type NopObserver struct{}

func (NopObserver) Accepted(int, model.Document) {}
func (NopObserver) Rejected(int, *parser.Error) {}

// Observers fans out to each observer in order.
type Observers []Observer

func (o Observers) Accepted(line int, doc model.Document) {
	for _, obs := range o {
		obs.Accepted(line, doc)
	}
}

func (o Observers) Rejected(line int, err *parser.Error) {
	for _, obs := range o {
		obs.Rejected(line, err)
	}
}
