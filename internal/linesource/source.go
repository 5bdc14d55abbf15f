// Package linesource reads an input log line by line after checking that it
// can be read at all.
package linesource

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"

	"github.com/spf13/afero"
)

// DefaultMaxLineBytes bounds a single line.
const DefaultMaxLineBytes = 1 << 20

// ErrInputAccess matches every *AccessError with errors.Is.
var ErrInputAccess = errors.New("input not accessible")

// AccessError reports an input that cannot be opened or read.
type AccessError struct {
	Name   string
	Reason string
	Err    error
}

func (e *AccessError) Error() string {
	if e.Name == "" {
		return "Filename " + e.Reason
	}
	return fmt.Sprintf("Filename '%s' %s", e.Name, e.Reason)
}

func (e *AccessError) Unwrap() error { return e.Err }

func (e *AccessError) Is(target error) bool { return target == ErrInputAccess }

// Check verifies that name is well formed and refers to a readable regular file.
func Check(fsys afero.Fs, name string) error {
	f, err := open(fsys, name)
	if err != nil {
		return err
	}
	return f.Close()
}

func open(fsys afero.Fs, name string) (afero.File, error) {
	if name == "" {
		return nil, &AccessError{Reason: "not provided"}
	}
	if strings.IndexByte(name, 0) >= 0 {
		return nil, &AccessError{Name: name, Reason: "contains null bytes"}
	}

	info, err := fsys.Stat(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &AccessError{Name: name, Reason: "does not exist", Err: err}
		}
		return nil, &AccessError{Name: name, Reason: "cannot be inspected", Err: err}
	}
	if !info.Mode().IsRegular() {
		return nil, &AccessError{Name: name, Reason: "is not a file"}
	}

	f, err := fsys.Open(name)
	if err != nil {
		return nil, &AccessError{Name: name, Reason: "is not readable", Err: err}
	}
	return f, nil
}

// Source yields the lines of one input. It satisfies the Scan/Text/Err
// contract of bufio.Scanner. A line longer than the limit does not stop the
// source: its bytes are skipped and Oversized reports it.
type Source struct {
	name      string
	closer    io.Closer
	reader    *bufio.Reader
	max       int
	line      []byte
	oversized bool
	done      bool
	err       error
}

// Open checks name and returns a Source positioned at its first line.
// maxLineBytes <= 0 selects DefaultMaxLineBytes.
func Open(fsys afero.Fs, name string, maxLineBytes int) (*Source, error) {
	f, err := open(fsys, name)
	if err != nil {
		return nil, err
	}
	src := FromReader(name, f, maxLineBytes)
	src.closer = f
	return src, nil
}

// FromReader wraps an already open stream, such as a request body. Close on
// the result does not close r.
func FromReader(name string, r io.Reader, maxLineBytes int) *Source {
	if maxLineBytes <= 0 {
		maxLineBytes = DefaultMaxLineBytes
	}
	return &Source{
		name:   name,
		reader: bufio.NewReaderSize(r, 64*1024),
		max:    maxLineBytes,
	}
}

// Name returns the input name given to Open.
func (s *Source) Name() string { return s.name }

// Scan advances to the next line.
func (s *Source) Scan() bool {
	if s.done {
		return false
	}
	s.line = s.line[:0]
	s.oversized = false

	var read int
	for {
		chunk, err := s.reader.ReadSlice('\n')
		read += len(chunk)
		if !s.oversized {
			s.line = append(s.line, chunk...)
			// Room for the "\r\n" terminator.
			if len(s.line) > s.max+2 {
				s.oversized = true
				s.line = s.line[:0]
			}
		}

		switch {
		case err == nil:
			s.trim()
			return true
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			s.done = true
			if read == 0 {
				return false
			}
			s.trim()
			return true
		default:
			s.done = true
			s.err = err
			return false
		}
	}
}

// trim drops the line terminator and applies the length limit.
func (s *Source) trim() {
	if s.oversized {
		return
	}
	n := len(s.line)
	if n > 0 && s.line[n-1] == '\n' {
		n--
	}
	if n > 0 && s.line[n-1] == '\r' {
		n--
	}
	s.line = s.line[:n]
	if n > s.max {
		s.oversized = true
		s.line = s.line[:0]
	}
}

// Text returns the current line without its terminator. It is empty for an
// oversized line.
func (s *Source) Text() string { return string(s.line) }

// Oversized reports whether the current line exceeded the limit, and the
// limit itself.
func (s *Source) Oversized() (limit int, over bool) { return s.max, s.oversized }

// Err returns the first read error, if any.
func (s *Source) Err() error {
	if s.err != nil {
		return fmt.Errorf("read %s: %w", s.name, s.err)
	}
	return nil
}

// Close releases the underlying file.
func (s *Source) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
