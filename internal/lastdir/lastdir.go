// Package lastdir remembers the folder most recently scanned.
package lastdir

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// DefaultFile is the file name used when none is configured.
const DefaultFile = ".last_folder.txt"

// Store persists one folder path in a plain text file.
type Store struct {
	Path string
}

// New returns a store backed by path, or DefaultFile when path is empty.
func New(path string) Store {
	if path == "" {
		path = DefaultFile
	}
	return Store{Path: path}
}

// Load returns the remembered folder, or "." when nothing usable is stored.
func (s Store) Load() string {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return "."
	}
	if folder := strings.TrimSpace(string(data)); folder != "" {
		return folder
	}
	return "."
}

// Save remembers folder.
func (s Store) Save(folder string) error {
	if err := os.WriteFile(s.Path, []byte(folder), 0o644); err != nil {
		return fmt.Errorf("failed to save last folder: %w", err)
	}
	return nil
}

// Prompt asks for a folder on w, offering the remembered one as default,
// and saves the answer. An empty answer or end of input picks the default.
func (s Store) Prompt(r io.Reader, w io.Writer) (string, error) {
	def := s.Load()
	fmt.Fprintf(w, "Input folder (%s): ", def)

	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read folder: %w", err)
	}
	folder := strings.TrimSpace(line)
	if folder == "" {
		folder = def
	}
	return folder, s.Save(folder)
}
