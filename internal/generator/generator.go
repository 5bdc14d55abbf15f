// Package generator writes synthetic log files in which every line is valid.
package generator

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/yycnik/json-log-parser/internal/aggregator"
)

const (
	letters        = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	maxBaseLen     = 20
	maxExtLen      = 5
	maxAge         = 24 * time.Hour
	DefaultExtSize = 1000
)

// entry fixes the field order of generated lines.
type entry struct {
	TS  float64 `json:"ts"`
	PT  int     `json:"pt"`
	SI  string  `json:"si"`
	UU  string  `json:"uu"`
	BG  string  `json:"bg"`
	SHA string  `json:"sha"`
	NM  string  `json:"nm"`
	PH  string  `json:"ph"`
	DP  int     `json:"dp"`
}

// Generator produces log lines. It is not safe for concurrent use.
type Generator struct {
	rng        *rand.Rand
	now        func() time.Time
	progress   func()
	extensions []string
}

// Option configures a Generator.
type Option func(*Generator)

// WithSeed makes the output reproducible.
func WithSeed(seed int64) Option {
	return func(g *Generator) { g.rng = rand.New(rand.NewSource(seed)) }
}

// WithClock sets the time generated timestamps are relative to.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// WithProgress calls fn after every written line.
func WithProgress(fn func()) Option {
	return func(g *Generator) { g.progress = fn }
}

// New creates a Generator drawing filenames from extensions distinct
// random extensions. extensions <= 0 selects DefaultExtSize.
func New(extensions int, opts ...Option) *Generator {
	g := &Generator{
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		now:      time.Now,
		progress: func() {},
	}
	for _, opt := range opts {
		opt(g)
	}
	if extensions <= 0 {
		extensions = DefaultExtSize
	}

	seen := make(map[string]bool, extensions)
	for len(g.extensions) < extensions {
		ext := g.word(maxExtLen)
		if !seen[ext] {
			seen[ext] = true
			g.extensions = append(g.extensions, ext)
		}
	}
	return g
}

// Extensions returns the extensions filenames are drawn from.
func (g *Generator) Extensions() []string {
	return append([]string(nil), g.extensions...)
}

// Write writes lines log lines to w and returns the set of filenames used.
func (g *Generator) Write(w io.Writer, lines int) (aggregator.FileSet, error) {
	files := aggregator.NewFileSet()
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)

	for i := 0; i < lines; i++ {
		e, err := g.entry()
		if err != nil {
			return nil, err
		}
		if err := enc.Encode(e); err != nil {
			return nil, fmt.Errorf("encode line %d: %w", i+1, err)
		}
		files.Add(e.NM)
		g.progress()
	}
	if err := bw.Flush(); err != nil {
		return nil, fmt.Errorf("flush: %w", err)
	}
	return files, nil
}

func (g *Generator) entry() (entry, error) {
	ids := make([]string, 3)
	for i := range ids {
		id, err := uuid.NewRandomFromReader(g.rng)
		if err != nil {
			return entry{}, fmt.Errorf("generate uuid: %w", err)
		}
		ids[i] = id.String()
	}

	name := g.word(maxBaseLen) + "." + g.extensions[g.rng.Intn(len(g.extensions))]
	sum := sha256.Sum256([]byte(name))
	// At least a second old so float rounding never lands past now.
	age := time.Second + time.Duration(g.rng.Int63n(int64(maxAge)))
	ts := g.now().Add(-age)

	return entry{
		TS:  float64(ts.UnixMicro()) / 1e6,
		PT:  g.rng.Intn(100),
		SI:  ids[0],
		UU:  ids[1],
		BG:  ids[2],
		SHA: hex.EncodeToString(sum[:]),
		NM:  name,
		PH:  "this/is/my/valid/path/",
		DP:  1 + g.rng.Intn(3),
	}, nil
}

// word returns 1 to n random ASCII letters.
func (g *Generator) word(n int) string {
	b := make([]byte, 1+g.rng.Intn(n))
	for i := range b {
		b[i] = letters[g.rng.Intn(len(letters))]
	}
	return string(b)
}
