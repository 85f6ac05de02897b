package archive

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := NewHeader("api-commit-abc123", "server-commit-def456", "my_database", 1_700_000_000_000, 3, 7)

	var buf bytes.Buffer
	n, err := h.WriteTo(&buf)
	require.NoError(t, err)
	require.Equal(t, int64(headerSize(len(h.ObjName))), n)

	got, err := ReadHeader(&buf)
	require.NoError(t, err)
	require.Equal(t, h, got)
}

func TestHeaderObjNameIsVariableLength(t *testing.T) {
	short := NewHeader("a", "b", "db", 0, 0, 0)
	long := NewHeader("a", "b", "a_much_longer_database_name", 0, 0, 0)

	var shortBuf, longBuf bytes.Buffer
	_, err := short.WriteTo(&shortBuf)
	require.NoError(t, err)
	_, err = long.WriteTo(&longBuf)
	require.NoError(t, err)

	// On-disk size tracks obj_name_len exactly, not a fixed 256-byte field.
	require.Equal(t, headerFixedSize+len(short.ObjName)+headerTailSize, shortBuf.Len())
	require.Equal(t, headerFixedSize+len(long.ObjName)+headerTailSize, longBuf.Len())
	require.NotEqual(t, shortBuf.Len(), longBuf.Len())

	// obj_name_len byte at offset 86, obj_name bytes starting at offset 87.
	raw := shortBuf.Bytes()
	require.Equal(t, byte(len(short.ObjName)), raw[headerFixedSize-1])
	require.Equal(t, []byte(short.ObjName), raw[headerFixedSize:headerFixedSize+len(short.ObjName)])

	got, err := ReadHeader(&longBuf)
	require.NoError(t, err)
	require.Equal(t, long, got)
}

func TestHeaderVersionIsLiteralOctal010(t *testing.T) {
	h := NewHeader("a", "b", "x", 0, 0, 0)
	require.Equal(t, uint16(8), h.Version)
}

func TestHeaderRejectsBadMagic(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(make([]byte, headerSize(0)))
	_, err := ReadHeader(&buf)
	require.Error(t, err)
}

func TestHeaderRejectsOversizedObjName(t *testing.T) {
	h := NewHeader("a", "b", string(make([]byte, objNameMaxLen+1)), 0, 0, 0)
	var buf bytes.Buffer
	_, err := h.WriteTo(&buf)
	require.Error(t, err)
}

func TestHeaderRejectsOversizedCommitID(t *testing.T) {
	h := NewHeader(string(make([]byte, commitIDSize+1)), "b", "x", 0, 0, 0)
	var buf bytes.Buffer
	_, err := h.WriteTo(&buf)
	require.Error(t, err)
}

func TestBlockWriterReaderRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	bw := NewBlockWriter(&buf)
	require.NoError(t, bw.WriteBlock(BlockMetadata, 1, []byte("metadata payload")))
	require.NoError(t, bw.WriteBlock(BlockData, 2, []byte("a batch of block bytes")))
	require.NoError(t, bw.WriteBlock(BlockEnd, 0, nil))

	br := NewBlockReader(&buf)
	b1, err := br.ReadBlock()
	require.NoError(t, err)
	require.Equal(t, BlockMetadata, b1.Type)
	require.Equal(t, []byte("metadata payload"), b1.Payload)

	b2, err := br.ReadBlock()
	require.NoError(t, err)
	require.Equal(t, BlockData, b2.Type)

	b3, err := br.ReadBlock()
	require.NoError(t, err)
	require.Equal(t, BlockEnd, b3.Type)
	require.Empty(t, b3.Payload)

	_, err = br.ReadBlock()
	require.ErrorIs(t, err, io.EOF)
}

func TestBlockReaderDetectsCorruption(t *testing.T) {
	var buf bytes.Buffer
	bw := NewBlockWriter(&buf)
	require.NoError(t, bw.WriteBlock(BlockData, 1, []byte("hello world")))

	raw := buf.Bytes()
	raw[len(raw)-1] ^= 0xFF // flip a trailer byte

	br := NewBlockReader(bytes.NewReader(raw))
	_, err := br.ReadBlock()
	require.Error(t, err)
}

func TestCompressDecompressRoundTrip(t *testing.T) {
	original := bytes.Repeat([]byte("incremental backup payload "), 200)
	compressed, err := compressBlock(original, 3)
	require.NoError(t, err)
	require.Less(t, len(compressed), len(original))

	got, err := decompressBlock(compressed)
	require.NoError(t, err)
	require.Equal(t, original, got)
}

func TestWriterReaderRoundTripUncompressed(t *testing.T) {
	h := NewHeader("api-1", "server-1", "db1", 1_700_000_000_000, 1, 1)
	var buf bytes.Buffer
	w, err := NewWriter(&buf, h, 0)
	require.NoError(t, err)
	require.NoError(t, w.WriteMetadata(1, []byte("metadata")))
	require.NoError(t, w.WriteData(2, []byte("block payload")))
	require.NoError(t, w.Close())

	r, err := NewReader(&buf)
	require.NoError(t, err)
	require.Equal(t, h, r.Header)

	b1, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, BlockMetadata, b1.Type)
	require.Equal(t, []byte("metadata"), b1.Payload)

	b2, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, BlockData, b2.Type)
	require.Equal(t, []byte("block payload"), b2.Payload)

	_, err = r.Next()
	require.ErrorIs(t, err, io.EOF)
}

func TestWriterReaderRoundTripCompressed(t *testing.T) {
	h := NewHeader("api-1", "server-1", "db1", 1_700_000_000_000, 1, 1)
	payload := bytes.Repeat([]byte("compress me please "), 100)

	var buf bytes.Buffer
	w, err := NewWriter(&buf, h, 2)
	require.NoError(t, err)
	require.NoError(t, w.WriteData(5, payload))
	require.NoError(t, w.Close())

	r, err := NewReader(&buf)
	require.NoError(t, err)
	b, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, uint16(5), b.MsgType)
	require.Equal(t, payload, b.Payload)
}
