package archive

import (
	"io"

	"github.com/taosdata/incbitmap/internal/errs"
)

// compressedMsgTypeFlag marks a body block's payload as zstd-compressed
// (compressBlock/decompressBlock), so Reader can decompress transparently
// without adding a field to the byte-exact TaosxBackupHeader layout.
const compressedMsgTypeFlag uint16 = 0x8000

// zstdLevels maps CompressionLevel 1-3 onto the zstd levels behind the
// fastest, balanced (zstd's default) and best-compression presets.
var zstdLevels = [...]int{1: 1, 2: 3, 3: 19}

// Writer produces a complete archive: one Header followed by framed body
// blocks, terminated by a BlockEnd marker (spec §6.3). CompressionLevel 0
// disables compression; 1-3 select zstd's fastest/balanced/best presets via
// compressBlock, matching backup.Config.CompressionLevel's own scale.
type Writer struct {
	bw               *BlockWriter
	compressionLevel int
	closed           bool
}

// NewWriter writes header to w and returns a Writer ready for body blocks.
func NewWriter(w io.Writer, header Header, compressionLevel int) (*Writer, error) {
	if _, err := header.WriteTo(w); err != nil {
		return nil, err
	}
	return &Writer{bw: NewBlockWriter(w), compressionLevel: compressionLevel}, nil
}

func (w *Writer) writeBlock(blockType BlockType, msgType uint16, payload []byte) error {
	if w.compressionLevel > 0 && len(payload) > 0 {
		level := w.compressionLevel
		if level < len(zstdLevels) {
			level = zstdLevels[level]
		}
		compressed, err := compressBlock(payload, level)
		if err != nil {
			return errs.Wrap(errs.InvalidParam, err, "archive: compressing block")
		}
		payload = compressed
		msgType |= compressedMsgTypeFlag
	}
	return w.bw.WriteBlock(blockType, msgType, payload)
}

// WriteMetadata appends a BlockMetadata block, typically a serialized
// backup.Metadata summary.
func (w *Writer) WriteMetadata(msgType uint16, payload []byte) error {
	return w.writeBlock(BlockMetadata, msgType, payload)
}

// WriteData appends a BlockData block carrying one backup.Block's payload.
func (w *Writer) WriteData(msgType uint16, payload []byte) error {
	return w.writeBlock(BlockData, msgType, payload)
}

// Close writes the terminating BlockEnd marker. The Writer must not be used
// afterward.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.bw.WriteBlock(BlockEnd, 0, nil)
}

// Reader reads a complete archive written by Writer: its Header followed by
// an iterator over body blocks, transparently decompressing any block
// Writer compressed.
type Reader struct {
	Header Header
	br     *BlockReader
}

// NewReader reads and validates the archive header from r.
func NewReader(r io.Reader) (*Reader, error) {
	header, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}
	return &Reader{Header: header, br: NewBlockReader(r)}, nil
}

// Next returns the next body block, decompressing its payload if Writer
// compressed it. Returns io.EOF once BlockEnd has been consumed.
func (r *Reader) Next() (Block, error) {
	b, err := r.br.ReadBlock()
	if err != nil {
		return Block{}, err
	}
	if b.Type == BlockEnd {
		return Block{}, io.EOF
	}
	if b.MsgType&compressedMsgTypeFlag != 0 {
		payload, err := decompressBlock(b.Payload)
		if err != nil {
			return Block{}, errs.Wrap(errs.DataCorruption, err, "archive: decompressing block")
		}
		b.Payload = payload
		b.MsgType &^= compressedMsgTypeFlag
	}
	return b, nil
}
