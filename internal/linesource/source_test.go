package linesource

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lockedFs stats files normally but refuses to open them.
type lockedFs struct{ afero.Fs }

func (l lockedFs) Open(name string) (afero.File, error) {
	return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrPermission}
}

func memFs(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()
	fsys := afero.NewMemMapFs()
	for name, content := range files {
		require.NoError(t, afero.WriteFile(fsys, name, []byte(content), 0o644))
	}
	return fsys
}

func readAll(t *testing.T, s *Source) []string {
	t.Helper()
	var lines []string
	for s.Scan() {
		lines = append(lines, s.Text())
	}
	require.NoError(t, s.Err())
	return lines
}

func TestOpenReadsEveryLine(t *testing.T) {
	fsys := memFs(t, map[string]string{"/logs/app.json": "{\"a\":1}\n{\"a\":2}\n{\"a\":3}"})

	s, err := Open(fsys, "/logs/app.json", 0)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, "/logs/app.json", s.Name())
	assert.Equal(t, []string{`{"a":1}`, `{"a":2}`, `{"a":3}`}, readAll(t, s))
}

func TestOpenOSFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file_reader_test.json")
	require.NoError(t, os.WriteFile(path, []byte("one\ntwo\nthree\n"), 0o644))

	s, err := Open(afero.NewOsFs(), path, 0)
	require.NoError(t, err)
	defer s.Close()

	assert.Len(t, readAll(t, s), 3)
}

func TestAccessErrors(t *testing.T) {
	fsys := memFs(t, map[string]string{"/logs/app.json": "{}\n"})
	require.NoError(t, fsys.Mkdir("/logs/dir", 0o755))

	tests := []struct {
		name  string
		fsys  afero.Fs
		input string
		want  string
	}{
		{"empty name", fsys, "", "Filename not provided"},
		{"null byte", fsys, "some\x00filename", "contains null bytes"},
		{"missing", fsys, "/path/to/file", "does not exist"},
		{"directory", fsys, "/logs/dir", "is not a file"},
		{"unreadable", lockedFs{fsys}, "/logs/app.json", "is not readable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Check(tt.fsys, tt.input)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInputAccess))
			assert.Contains(t, err.Error(), tt.want)

			_, err = Open(tt.fsys, tt.input, 0)
			assert.True(t, errors.Is(err, ErrInputAccess))
		})
	}
}

func TestMissingFileMessage(t *testing.T) {
	err := Check(afero.NewMemMapFs(), "file/does/not/exist")
	assert.EqualError(t, err, "Filename 'file/does/not/exist' does not exist")
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

type line struct {
	text string
	over bool
}

func scanAll(t *testing.T, s *Source) []line {
	t.Helper()
	var out []line
	for s.Scan() {
		_, over := s.Oversized()
		out = append(out, line{s.Text(), over})
	}
	require.NoError(t, s.Err())
	return out
}

func TestOversizedLineIsSkipped(t *testing.T) {
	fsys := memFs(t, map[string]string{
		"big.json": "first\n" + strings.Repeat("x", 128) + "\nlast\n",
	})

	s, err := Open(fsys, "big.json", 64)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, []line{{"first", false}, {"", true}, {"last", false}}, scanAll(t, s))
	limit, _ := s.Oversized()
	assert.Equal(t, 64, limit)
}

func TestOversizedLineBeyondReadBuffer(t *testing.T) {
	// Longer than the reader's internal buffer, so the line arrives in chunks.
	body := "a\n" + strings.Repeat("y", 200*1024) + "\r\nb"

	s := FromReader("stream", strings.NewReader(body), 1024)
	assert.Equal(t, []line{{"a", false}, {"", true}, {"b", false}}, scanAll(t, s))
}

func TestLineAtLimit(t *testing.T) {
	exact := strings.Repeat("z", 64)

	s := FromReader("stream", strings.NewReader(exact+"\r\n"+exact+"z"), 64)
	assert.Equal(t, []line{{exact, false}, {"", true}}, scanAll(t, s))
}

func TestLongLineUnderLimit(t *testing.T) {
	long := strings.Repeat("k", 300*1024)

	s := FromReader("stream", strings.NewReader(long+"\n"), 0)
	assert.Equal(t, []line{{long, false}}, scanAll(t, s))
}

func TestReadError(t *testing.T) {
	boom := errors.New("disk on fire")
	s := FromReader("broken", iotest.ErrReader(boom), 0)

	assert.False(t, s.Scan())
	err := s.Err()
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	assert.Contains(t, err.Error(), "read broken")
	assert.False(t, errors.Is(err, ErrInputAccess))
}

func TestFromReader(t *testing.T) {
	s := FromReader("request", strings.NewReader("a\r\nb\n\nc"), 0)
	assert.Equal(t, "request", s.Name())
	assert.Equal(t, []string{"a", "b", "", "c"}, readAll(t, s))
	assert.NoError(t, s.Close())
}
