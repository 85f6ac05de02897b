// Package archive implements the incremental backup file format of
// spec.md §6.3 byte-for-byte: a fixed header followed by a sequence of
// CRC-32-framed body blocks. Grounded on
// original_source/.../backup_coordinator.h's TaosxBackupHeader layout, and
// on pebble's record package (framed, checksummed sub-streams within one
// file) and sstable/block/block.go's trailer-after-payload checksum layout
// for the body framing (DESIGN.md §I).
package archive

import (
	"encoding/binary"
	"io"

	"github.com/taosdata/incbitmap/internal/errs"
)

// magicBytes is the archive magic: conceptually the five characters
// "TAOSZ" (TAOSX_FILE_MAGIC), but TAOSX_FILE_MAGIC_LEN is 4 — only the
// first four bytes are significant on the wire. A deliberate quirk of the
// original format, not "fixed" here (spec §9).
var magicBytes = [4]byte{'T', 'A', 'O', 'S'}

// headerVersion is stored literally as octal 010 (decimal 8,
// TAOSX_HEADER_VERSION): the format's historical version marker, not
// rewritten to look like "1.0" (spec §9).
const headerVersion uint16 = 010

const (
	commitIDSize  = 40  // TAOSX_COMMIT_ID_LEN
	objNameMaxLen = 256 // TAOSX_OBJ_NAME_MAX_LEN
)

// headerFixedSize is the size of every header field up to and including
// obj_name_len: magic(4) + version(2) + api_commit_id(40) +
// server_commit_id(40) + obj_name_len(1) = 87. obj_name itself is
// variable-length (exactly obj_name_len bytes on the wire, not a fixed
// 256-byte field — the in-memory TaosxBackupHeader struct's 256-byte
// buffer in original_source/.../backup_coordinator.h is not the wire
// format; write_taosx_backup_header/read_taosx_backup_header write/read
// exactly header->obj_name_len bytes). headerTailSize covers the fields
// after obj_name: timestamp(8) + vg_id(1) + file_seq(4) = 13. Total
// on-disk size is headerFixedSize + len(ObjName) + headerTailSize.
const (
	headerFixedSize = 4 + 2 + commitIDSize + commitIDSize + 1
	headerTailSize  = 8 + 1 + 4
)

// headerSize returns the exact on-disk size of a header whose obj_name is
// objNameLen bytes long.
func headerSize(objNameLen int) int {
	return headerFixedSize + objNameLen + headerTailSize
}

// Header is the fixed preamble of an incremental backup archive (spec
// §6.3), matching TaosxBackupHeader field-for-field.
type Header struct {
	Version        uint16
	APICommitID    string // taosX commit id, NUL-padded to 40 bytes; longer ids are rejected
	ServerCommitID string // TDengine commit id, NUL-padded to 40 bytes; longer ids are rejected
	ObjName        string // backup object name, up to 255 bytes (obj_name_len is one byte)
	Timestamp      int64  // milliseconds
	VgID           int8
	FileSeq        uint32
}

// NewHeader returns a Header with Version already set to the format's
// literal version marker.
func NewHeader(apiCommitID, serverCommitID, objName string, timestampMs int64, vgID int8, fileSeq uint32) Header {
	return Header{
		Version:        headerVersion,
		APICommitID:    apiCommitID,
		ServerCommitID: serverCommitID,
		ObjName:        objName,
		Timestamp:      timestampMs,
		VgID:           vgID,
		FileSeq:        fileSeq,
	}
}

func putFixedString(dst []byte, s string) error {
	if len(s) > len(dst) {
		return errs.New(errs.InvalidParam, "archive: string %q exceeds %d bytes", s, len(dst))
	}
	copy(dst, s)
	return nil
}

func getFixedString(src []byte) string {
	end := len(src)
	for end > 0 && src[end-1] == 0 {
		end--
	}
	return string(src[:end])
}

// WriteTo serializes h to w in the exact §6.3 byte layout: obj_name is
// written as exactly len(h.ObjName) bytes, not padded to objNameMaxLen.
func (h Header) WriteTo(w io.Writer) (int64, error) {
	if len(h.ObjName) > objNameMaxLen {
		return 0, errs.New(errs.InvalidParam, "archive: obj_name exceeds %d bytes", objNameMaxLen)
	}
	if len(h.ObjName) > 0xFF {
		return 0, errs.New(errs.InvalidParam, "archive: obj_name length %d does not fit the one-byte obj_name_len field", len(h.ObjName))
	}

	buf := make([]byte, headerSize(len(h.ObjName)))
	off := 0
	copy(buf[off:off+4], magicBytes[:])
	off += 4
	binary.LittleEndian.PutUint16(buf[off:], h.Version)
	off += 2
	if err := putFixedString(buf[off:off+commitIDSize], h.APICommitID); err != nil {
		return 0, err
	}
	off += commitIDSize
	if err := putFixedString(buf[off:off+commitIDSize], h.ServerCommitID); err != nil {
		return 0, err
	}
	off += commitIDSize
	buf[off] = byte(len(h.ObjName))
	off++
	copy(buf[off:off+len(h.ObjName)], h.ObjName)
	off += len(h.ObjName)
	binary.LittleEndian.PutUint64(buf[off:], uint64(h.Timestamp))
	off += 8
	buf[off] = byte(h.VgID)
	off++
	binary.LittleEndian.PutUint32(buf[off:], h.FileSeq)
	off += 4

	n, err := w.Write(buf)
	if err != nil {
		return int64(n), errs.Wrap(errs.FileIO, err, "archive: writing header")
	}
	return int64(n), nil
}

// ReadHeader reads and validates a Header from r, rejecting a bad magic or
// truncated input as DataCorruption. obj_name is read as exactly
// obj_name_len bytes, mirroring read_taosx_backup_header's variable-length
// wire read rather than a fixed 256-byte field.
func ReadHeader(r io.Reader) (Header, error) {
	fixed := make([]byte, headerFixedSize)
	if _, err := io.ReadFull(r, fixed); err != nil {
		return Header{}, errs.Wrap(errs.DataCorruption, err, "archive: reading header")
	}

	off := 0
	var magic [4]byte
	copy(magic[:], fixed[off:off+4])
	off += 4
	if magic != magicBytes {
		return Header{}, errs.New(errs.DataCorruption, "archive: bad magic %q", magic[:])
	}

	var h Header
	h.Version = binary.LittleEndian.Uint16(fixed[off:])
	off += 2
	h.APICommitID = getFixedString(fixed[off : off+commitIDSize])
	off += commitIDSize
	h.ServerCommitID = getFixedString(fixed[off : off+commitIDSize])
	off += commitIDSize
	objNameLen := int(fixed[off])
	off++
	if objNameLen > objNameMaxLen {
		return Header{}, errs.New(errs.DataCorruption, "archive: obj_name_len %d exceeds %d", objNameLen, objNameMaxLen)
	}

	rest := make([]byte, objNameLen+headerTailSize)
	if _, err := io.ReadFull(r, rest); err != nil {
		return Header{}, errs.Wrap(errs.DataCorruption, err, "archive: reading header obj_name/tail")
	}
	h.ObjName = string(rest[:objNameLen])
	roff := objNameLen
	h.Timestamp = int64(binary.LittleEndian.Uint64(rest[roff:]))
	roff += 8
	h.VgID = int8(rest[roff])
	roff++
	h.FileSeq = binary.LittleEndian.Uint32(rest[roff:])
	roff += 4

	return h, nil
}
