package aggregator

import "sort"

// FileSet is a set of filenames.
type FileSet map[string]struct{}

// NewFileSet returns a set holding names.
func NewFileSet(names ...string) FileSet {
	s := make(FileSet, len(names))
	for _, n := range names {
		s.Add(n)
	}
	return s
}

// Add inserts name; duplicates are ignored.
func (s FileSet) Add(name string) { s[name] = struct{}{} }

// Has reports whether name is in the set.
func (s FileSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Len returns the number of unique names.
func (s FileSet) Len() int { return len(s) }

// Names returns the members in sorted order.
func (s FileSet) Names() []string {
	out := make([]string, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
