package export

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pierrec/lz4/v4"

	"github.com/Sumatoshi-tech/atomtable/pkg/atom"
)

// FormatVersion is written into every document.
const FormatVersion = 1

// Errors returned when a document cannot be turned back into a table.
var (
	ErrUnsupportedVersion = errors.New("unsupported snapshot version")
	ErrNonContiguous      = errors.New("snapshot ids are not contiguous from zero")
	ErrDigestMismatch     = errors.New("snapshot digest mismatch")
	ErrCountMismatch      = errors.New("snapshot count does not match its atoms")
)

// Document is the serialized form of a table snapshot.
type Document struct {
	Version int          `json:"version"          yaml:"version"`
	Count   int          `json:"count"            yaml:"count"`
	Digest  uint64       `json:"digest,omitempty" yaml:"digest,omitempty"`
	Atoms   []atom.Entry `json:"atoms"            yaml:"atoms"`
}

// NewDocument captures tbl's current contents.
func NewDocument(tbl *atom.Table) Document {
	entries := tbl.Snapshot()

	return Document{
		Version: FormatVersion,
		Count:   len(entries),
		Digest:  tbl.Digest(),
		Atoms:   entries,
	}
}

// Write encodes doc to w with codec, inside an lz4 frame when compress is set.
func Write(w io.Writer, doc Document, codec Codec, compress bool) error {
	if !compress {
		return codec.Encode(w, doc)
	}

	zw := lz4.NewWriter(w)

	if err := codec.Encode(zw, doc); err != nil {
		return err
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("lz4 close: %w", err)
	}

	return nil
}

// Read decodes a document written by Write with the same codec and compress setting.
func Read(r io.Reader, codec Codec, compressed bool) (Document, error) {
	if compressed {
		r = lz4.NewReader(r)
	}

	var doc Document

	if err := codec.Decode(r, &doc); err != nil {
		return Document{}, err
	}

	if doc.Version != FormatVersion {
		return Document{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, doc.Version)
	}

	if doc.Count != len(doc.Atoms) {
		return Document{}, fmt.Errorf("%w: count %d, atoms %d", ErrCountMismatch, doc.Count, len(doc.Atoms))
	}

	return doc, nil
}

// Restore rebuilds a table from doc. Because IDs are assigned in order of
// first sight, interning the atoms in ID order reproduces every ID exactly;
// this requires the IDs to run 0..n-1, which holds for any snapshot of a
// single table generation. When doc carries a digest it must match.
func Restore(doc Document, opts ...atom.Option) (*atom.Table, error) {
	for i, e := range doc.Atoms {
		if e.ID != atom.ID(i) {
			return nil, fmt.Errorf("%w: position %d holds id %d", ErrNonContiguous, i, e.ID)
		}
	}

	opts = append([]atom.Option{atom.WithCapacity(len(doc.Atoms))}, opts...)
	tbl := atom.New(opts...)
	h := tbl.Pin()

	for _, e := range doc.Atoms {
		if id := h.Intern(e.Text); id != e.ID {
			return nil, fmt.Errorf("%w: %q repeats as id %d", ErrNonContiguous, e.Text, e.ID)
		}
	}

	if doc.Digest != 0 && tbl.Digest() != doc.Digest {
		return nil, fmt.Errorf("%w: have %x, want %x", ErrDigestMismatch, tbl.Digest(), doc.Digest)
	}

	return tbl, nil
}

// FileName returns basename plus the codec extension, and ".lz4" when compressed.
func FileName(basename string, codec Codec, compress bool) string {
	name := basename + codec.Extension()
	if compress {
		name += lz4Extension
	}

	return name
}

// SaveFile writes doc to dir/FileName(basename, codec, compress) and returns the path.
func SaveFile(dir, basename string, doc Document, codec Codec, compress bool) (string, error) {
	path := filepath.Join(dir, FileName(basename, codec, compress))

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create snapshot file: %w", err)
	}

	writeErr := Write(file, doc, codec, compress)
	closeErr := file.Close()

	if writeErr != nil {
		return "", writeErr
	}

	if closeErr != nil {
		return "", fmt.Errorf("close snapshot file: %w", closeErr)
	}

	return path, nil
}

// LoadFile reads a document saved by SaveFile, choosing codec and
// decompression from the file name.
func LoadFile(path string) (Document, error) {
	name := filepath.Base(path)
	compressed := filepath.Ext(name) == lz4Extension

	if compressed {
		name = name[:len(name)-len(lz4Extension)]
	}

	codec, err := CodecFor(strings.TrimPrefix(filepath.Ext(name), "."))
	if err != nil {
		return Document{}, err
	}

	file, err := os.Open(path)
	if err != nil {
		return Document{}, fmt.Errorf("open snapshot file: %w", err)
	}
	defer file.Close()

	return Read(file, codec, compressed)
}
