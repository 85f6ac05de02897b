// Copyright and build-tag split grounded on
// _examples/cockroachdb-pebble/internal/compression/zstd_cgo.go (DESIGN.md
// §I): cgo builds get the DataDog/zstd binding to the reference C library.

//go:build cgo

package archive

import (
	"encoding/binary"

	"github.com/DataDog/zstd"
	"github.com/taosdata/incbitmap/internal/errs"
)

// compressBlock zstd-compresses b at level, prefixing the result with a
// varint-encoded original length so decompressBlock can size its output buffer.
func compressBlock(b []byte, level int) ([]byte, error) {
	prefix := make([]byte, binary.MaxVarintLen64)
	n := binary.PutUvarint(prefix, uint64(len(b)))
	out, err := zstd.CompressLevel(nil, b, level)
	if err != nil {
		return nil, errs.Wrap(errs.DataCorruption, err, "archive: zstd compress")
	}
	return append(prefix[:n], out...), nil
}

// decompressBlock reverses compressBlock.
func decompressBlock(src []byte) ([]byte, error) {
	decodedLen, prefixLen := binary.Uvarint(src)
	if prefixLen <= 0 {
		return nil, errs.New(errs.DataCorruption, "archive: invalid compressed block length prefix")
	}
	dst := make([]byte, decodedLen)
	out, err := zstd.Decompress(dst, src[prefixLen:])
	if err != nil {
		return nil, errs.Wrap(errs.DataCorruption, err, "archive: zstd decompress")
	}
	return out, nil
}
