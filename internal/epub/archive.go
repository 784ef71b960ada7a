package epub

import (
	"archive/zip"
	"fmt"
	"io"
	"strings"
)

// maxEntrySize caps the decompressed size of a single entry read into memory.
const maxEntrySize int64 = 256 * 1024 * 1024

const expectedMimetype = "application/epub+zip"

// Archive provides access to the entries of an EPUB container.
// Distinct entries may be read concurrently.
type Archive struct {
	zipReader *zip.Reader
	closer    io.Closer
	files     map[string]*zip.File
	lower     map[string]*zip.File
	names     []string

	// Diagnostics collected while opening (mimetype problems and similar).
	Diagnostics []string
}

// Open opens an EPUB file from disk.
func Open(path string) (*Archive, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w: %v", path, ErrArchiveRead, err)
	}
	a := newArchive(&zr.Reader, zr)
	return a, nil
}

// OpenReader opens an EPUB held in r. Close releases nothing for such archives.
func OpenReader(r io.ReaderAt, size int64) (*Archive, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("failed to open zip: %w: %v", ErrArchiveRead, err)
	}
	return newArchive(zr, nil), nil
}

func newArchive(zr *zip.Reader, closer io.Closer) *Archive {
	a := &Archive{
		zipReader: zr,
		closer:    closer,
		files:     make(map[string]*zip.File, len(zr.File)),
		lower:     make(map[string]*zip.File, len(zr.File)),
	}

	for _, f := range zr.File {
		name := entryPath(f.Name)
		if _, dup := a.files[name]; dup {
			continue
		}
		a.files[name] = f
		a.names = append(a.names, name)
		if _, ok := a.lower[strings.ToLower(name)]; !ok {
			a.lower[strings.ToLower(name)] = f
		}
	}

	a.checkMimetype()
	return a
}

// Close closes the underlying file, if any.
func (a *Archive) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer.Close()
}

// Names returns the entry paths in archive order. A literal '%' or '#' in an
// entry name appears escaped, the same way Resolve returns it.
func (a *Archive) Names() []string {
	return a.names
}

// Has reports whether an entry exists (exact match, then case-insensitive).
func (a *Archive) Has(path string) bool {
	return a.lookup(path) != nil
}

// Size returns the uncompressed size of an entry without reading it.
func (a *Archive) Size(path string) (int64, bool) {
	f := a.lookup(path)
	if f == nil {
		return 0, false
	}
	return int64(f.UncompressedSize64), true
}

// ReadFile reads the contents of a file from the EPUB
func (a *Archive) ReadFile(path string) ([]byte, error) {
	f := a.lookup(path)
	if f == nil {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
	}
	return readEntry(f, maxEntrySize)
}

func (a *Archive) lookup(path string) *zip.File {
	path = strings.TrimPrefix(path, "./")
	if f, ok := a.files[path]; ok {
		return f
	}
	return a.lower[strings.ToLower(path)]
}

// readEntry reads a ZIP entry, refusing entries whose declared or actual
// decompressed size exceeds limit.
func readEntry(f *zip.File, limit int64) ([]byte, error) {
	if f.UncompressedSize64 > uint64(limit) {
		return nil, fmt.Errorf("%w: %s (%d bytes)", ErrEntryTooLarge, f.Name, f.UncompressedSize64)
	}

	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", f.Name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", f.Name, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: %s", ErrEntryTooLarge, f.Name)
	}
	return data, nil
}

// checkMimetype records deviations from the mimetype rules. Real-world files
// break these often enough that none of them is fatal.
func (a *Archive) checkMimetype() {
	f, ok := a.files["mimetype"]
	if !ok {
		a.Diagnostics = append(a.Diagnostics, "mimetype file not found")
		return
	}
	if f.Method != zip.Store {
		a.Diagnostics = append(a.Diagnostics, "mimetype is compressed")
	}
	content, err := readEntry(f, 1024)
	if err != nil {
		a.Diagnostics = append(a.Diagnostics, fmt.Sprintf("mimetype unreadable: %v", err))
		return
	}
	if strings.TrimSpace(string(content)) != expectedMimetype {
		a.Diagnostics = append(a.Diagnostics, fmt.Sprintf("unexpected mimetype %q", strings.TrimSpace(string(content))))
	}
}
