package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputFormatter_Error(t *testing.T) {
	details := map[string]string{"field": "joins[0].targets"}

	tests := []struct {
		name    string
		format  string
		verbose bool
		details any
		want    []string
		notWant []string
	}{
		{
			name:    "text",
			format:  "text",
			details: details,
			want:    []string{"Error [E204]: node index 5 out of range"},
			notWant: []string{"Details:"},
		},
		{
			name:    "text_verbose_shows_details",
			format:  "text",
			verbose: true,
			details: details,
			want:    []string{"Error [E204]", "Details: map[field:joins[0].targets]"},
		},
		{
			name:    "text_verbose_without_details",
			format:  "text",
			verbose: true,
			want:    []string{"Error [E204]"},
			notWant: []string{"Details:"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			f := &OutputFormatter{Format: tt.format, Writer: buf, Verbose: tt.verbose}

			require.NoError(t, f.Error("E204", "node index 5 out of range", tt.details))
			for _, w := range tt.want {
				assert.Contains(t, buf.String(), w)
			}
			for _, w := range tt.notWant {
				assert.NotContains(t, buf.String(), w)
			}
		})
	}
}

func TestOutputFormatter_JSONErrorEnvelope(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, f.Error("E208", "switch join requires a selector", []string{"joins[1].selector"}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Nil(t, resp.Data)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E208", resp.Error.Code)
	assert.Equal(t, "switch join requires a selector", resp.Error.Message)
	assert.Equal(t, []any{"joins[1].selector"}, resp.Error.Details)
}

func TestOutputFormatter_Emit(t *testing.T) {
	data := map[string]any{"graph": "sort-lines", "pending": 0}
	text := func(w io.Writer) { fmt.Fprintln(w, "sort-lines done") }

	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "text", Writer: buf}
	require.NoError(t, f.Emit(data, text))
	assert.Equal(t, "sort-lines done\n", buf.String())

	buf.Reset()
	f.Format = "json"
	require.NoError(t, f.Emit(data, text))
	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Nil(t, resp.Error)
	assert.Equal(t, map[string]any{"graph": "sort-lines", "pending": float64(0)}, resp.Data)
}

func TestOutputFormatter_Success(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, f.Success("sort-lines: 2 node(s)"))
	assert.Equal(t, "sort-lines: 2 node(s)\n", buf.String())
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	t.Run("quiet", func(t *testing.T) {
		buf := &bytes.Buffer{}
		f := &OutputFormatter{Format: "text", Writer: buf}
		f.VerboseLog("Built graph %s", "sort-lines")
		assert.Empty(t, buf.String())
	})

	t.Run("falls_back_to_writer", func(t *testing.T) {
		buf := &bytes.Buffer{}
		f := &OutputFormatter{Format: "text", Writer: buf, Verbose: true}
		f.VerboseLog("Built graph %s", "sort-lines")
		assert.Equal(t, "Built graph sort-lines\n", buf.String())
	})

	t.Run("keeps_json_clean", func(t *testing.T) {
		out := &bytes.Buffer{}
		errOut := &bytes.Buffer{}
		f := &OutputFormatter{Format: "json", Writer: out, ErrWriter: errOut, Verbose: true}
		f.VerboseLog("restored %d entries", 2)
		assert.Empty(t, out.String())
		assert.Equal(t, "restored 2 entries\n", errOut.String())
	})
}
