package output

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yycnik/json-log-parser/internal/model"
)

func sampleReport() model.Report {
	return model.Report{
		GeneratedAt:  time.Date(2026, 2, 17, 12, 0, 0, 0, time.UTC),
		Sources:      []string{"/var/log/app.json"},
		Extensions:   model.ExtensionCounts{"txt": 1, "ext": 1, "pdf": 2, model.NoExtension: 3},
		UniqueFiles:  7,
		TotalLines:   9,
		ValidLines:   8,
		InvalidLines: 1,
		Rejections:   []model.Rejection{{Kind: "SchemaError", Message: "boom", Count: 1}},
	}
}

func TestTextRenderer(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, TextRenderer{}.Render(&buf, sampleReport()))
	assert.Equal(t, "ext: 1\nno_extension: 3\npdf: 2\ntxt: 1\n", buf.String())
}

func TestTextRendererEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, TextRenderer{}.Render(&buf, model.Report{}))
	assert.Empty(t, buf.String())
}

func TestJSONRenderer(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, JSONRenderer{}.Render(&buf, sampleReport()))

	var got model.Report
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got), "raw: %s", buf.String())
	assert.Equal(t, 2, got.Extensions["pdf"])
	assert.Equal(t, 7, got.UniqueFiles)
	assert.Equal(t, []string{"/var/log/app.json"}, got.Sources)
}

func TestTableRenderer(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, TableRenderer{}.Render(&buf, sampleReport()))

	out := buf.String()
	assert.Contains(t, out, "EXTENSION")
	assert.Contains(t, out, "no_extension")
	assert.Contains(t, out, "7 unique files, 8 of 9 lines valid")
	assert.Contains(t, out, "(1 rejected)")
}

func TestNew(t *testing.T) {
	for format, want := range map[string]Renderer{
		"":      TextRenderer{},
		"text":  TextRenderer{},
		"JSON":  JSONRenderer{},
		"table": TableRenderer{},
	} {
		r, err := New(format)
		require.NoError(t, err, format)
		assert.IsType(t, want, r, format)
	}

	_, err := New("xml")
	assert.Error(t, err)
}
