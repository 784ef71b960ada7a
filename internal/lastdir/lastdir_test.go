package lastdir

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_LoadDefaults(t *testing.T) {
	dir := t.TempDir()

	assert.Equal(t, ".", New(filepath.Join(dir, "missing.txt")).Load(), "missing file")

	blank := filepath.Join(dir, "blank.txt")
	require.NoError(t, os.WriteFile(blank, []byte("  \n"), 0o644))
	assert.Equal(t, ".", New(blank).Load(), "blank file")

	assert.Equal(t, DefaultFile, New("").Path)
}

func TestStore_SaveLoad(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), DefaultFile))
	require.NoError(t, s.Save("/books/incoming"))
	assert.Equal(t, "/books/incoming", s.Load())
}

func TestStore_SaveError(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "no", "such", "dir", DefaultFile))
	assert.Error(t, s.Save("/books"))
}

func TestStore_Prompt(t *testing.T) {
	tests := []struct {
		name  string
		saved string
		input string
		want  string
	}{
		{name: "answer replaces default", saved: "/old", input: "/new\n", want: "/new"},
		{name: "empty answer keeps default", saved: "/old", input: "\n", want: "/old"},
		{name: "end of input keeps default", saved: "/old", input: "", want: "/old"},
		{name: "answer without newline", input: "  /trimmed  ", want: "/trimmed"},
		{name: "nothing saved", input: "\n", want: "."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(filepath.Join(t.TempDir(), DefaultFile))
			if tt.saved != "" {
				require.NoError(t, s.Save(tt.saved))
			}

			var out bytes.Buffer
			got, err := s.Prompt(strings.NewReader(tt.input), &out)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.True(t, strings.HasPrefix(out.String(), "Input folder ("), "prompt output = %q", out.String())
			assert.Equal(t, tt.want, s.Load(), "saved folder")
		})
	}
}
