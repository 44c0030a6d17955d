package export_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/atomtable/pkg/atom"
	"github.com/Sumatoshi-tech/atomtable/pkg/export"
)

// sampleWords covers empty text, non-ASCII and embedded newlines.
var sampleWords = []string{"", "hello", "héllo wörld", "line\nbreak", "tab\tsep", "🙂", "hello"}

func sampleTable() *atom.Table {
	tbl := atom.New()
	tbl.InternBatch(sampleWords)

	return tbl
}

func TestCodecFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		format string
		ext    string
	}{
		{"json", ".json"},
		{"yaml", ".yaml"},
		{"yml", ".yaml"},
	}

	for _, tt := range tests {
		codec, err := export.CodecFor(tt.format)
		require.NoError(t, err)
		assert.Equal(t, tt.ext, codec.Extension())
	}

	_, err := export.CodecFor("xml")
	require.ErrorIs(t, err, export.ErrUnknownFormat)
}

func TestWriteRead_RoundTrip(t *testing.T) {
	t.Parallel()

	tbl := sampleTable()
	doc := export.NewDocument(tbl)

	require.Equal(t, 6, doc.Count)
	require.Equal(t, tbl.Digest(), doc.Digest)

	for _, format := range []string{"json", "yaml"} {
		for _, compress := range []bool{false, true} {
			codec, err := export.CodecFor(format)
			require.NoError(t, err)

			var buf bytes.Buffer
			require.NoError(t, export.Write(&buf, doc, codec, compress))

			got, err := export.Read(&buf, codec, compress)
			require.NoError(t, err, "%s compress=%v", format, compress)
			assert.Equal(t, doc, got, "%s compress=%v", format, compress)
		}
	}
}

func TestWrite_CompressedIsLZ4Frame(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, export.Write(&buf, export.NewDocument(sampleTable()), export.NewJSONCodec(), true))

	// LZ4 frame magic number, little endian.
	assert.Equal(t, []byte{0x04, 0x22, 0x4d, 0x18}, buf.Bytes()[:4])
}

func TestJSONCodec_CompactNoIndent(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, (&export.JSONCodec{}).Encode(&buf, export.NewDocument(sampleTable())))

	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
}

func TestRead_RejectsBadDocuments(t *testing.T) {
	t.Parallel()

	codec := export.NewJSONCodec()

	_, err := export.Read(strings.NewReader(`{"version": 9, "count": 0, "atoms": []}`), codec, false)
	require.ErrorIs(t, err, export.ErrUnsupportedVersion)

	_, err = export.Read(strings.NewReader(`{"version": 1, "count": 2, "atoms": []}`), codec, false)
	require.ErrorIs(t, err, export.ErrCountMismatch)

	_, err = export.Read(strings.NewReader(`{"version":`), codec, false)
	require.Error(t, err)
}

func TestRestore_ReproducesTable(t *testing.T) {
	t.Parallel()

	tbl := sampleTable()

	restored, err := export.Restore(export.NewDocument(tbl), atom.WithShards(2))
	require.NoError(t, err)

	assert.Equal(t, tbl.Len(), restored.Len())
	assert.Equal(t, tbl.Digest(), restored.Digest())

	for _, w := range sampleWords {
		assert.Equal(t, tbl.LookupID(w), restored.LookupID(w))
	}
}

func TestRestore_Rejects(t *testing.T) {
	t.Parallel()

	gap := export.Document{Version: export.FormatVersion, Count: 1, Atoms: []atom.Entry{{ID: 1, Text: "a"}}}
	_, err := export.Restore(gap)
	require.ErrorIs(t, err, export.ErrNonContiguous)

	dup := export.Document{Version: export.FormatVersion, Count: 2, Atoms: []atom.Entry{{ID: 0, Text: "a"}, {ID: 1, Text: "a"}}}
	_, err = export.Restore(dup)
	require.ErrorIs(t, err, export.ErrNonContiguous)

	doc := export.NewDocument(sampleTable())
	doc.Digest++

	_, err = export.Restore(doc)
	require.ErrorIs(t, err, export.ErrDigestMismatch)
}

func TestSaveFileLoadFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	doc := export.NewDocument(sampleTable())

	path, err := export.SaveFile(dir, "atoms", doc, export.NewYAMLCodec(), true)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "atoms.yaml.lz4"), path)

	got, err := export.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, doc, got)

	path, err = export.SaveFile(dir, "atoms", doc, export.NewJSONCodec(), false)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "atoms.json"), path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"text": "héllo wörld"`)
}

func TestSaveFile_MissingDir(t *testing.T) {
	t.Parallel()

	_, err := export.SaveFile(filepath.Join(t.TempDir(), "absent"), "atoms", export.Document{}, export.NewJSONCodec(), false)
	require.Error(t, err)
}

func TestLoadFile_UnknownExtension(t *testing.T) {
	t.Parallel()

	_, err := export.LoadFile(filepath.Join(t.TempDir(), "atoms.txt"))
	require.ErrorIs(t, err, export.ErrUnknownFormat)
}
