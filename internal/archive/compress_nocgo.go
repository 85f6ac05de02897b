// Copyright and build-tag split grounded on
// _examples/cockroachdb-pebble/internal/compression/zstd_nocgo.go
// (DESIGN.md §I): non-cgo builds fall back to the pure-Go
// klauspost/compress/zstd implementation.

//go:build !cgo

package archive

import (
	"encoding/binary"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/taosdata/incbitmap/internal/errs"
)

var encoderOnce = newEncoderPool()

type encoderPool struct {
	mu       sync.Mutex
	encoders map[int]*zstd.Encoder
}

func newEncoderPool() *encoderPool { return &encoderPool{encoders: make(map[int]*zstd.Encoder)} }

func (p *encoderPool) get(level int) (*zstd.Encoder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if enc, ok := p.encoders[level]; ok {
		return enc, nil
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	if err != nil {
		return nil, err
	}
	p.encoders[level] = enc
	return enc, nil
}

// compressBlock zstd-compresses b at level, prefixing the result with a
// varint-encoded original length so decompressBlock can size its output buffer.
func compressBlock(b []byte, level int) ([]byte, error) {
	enc, err := encoderOnce.get(level)
	if err != nil {
		return nil, errs.Wrap(errs.DataCorruption, err, "archive: zstd encoder init")
	}
	prefix := make([]byte, binary.MaxVarintLen64)
	n := binary.PutUvarint(prefix, uint64(len(b)))
	out := enc.EncodeAll(b, prefix[:n])
	return out, nil
}

// decompressBlock reverses compressBlock.
func decompressBlock(src []byte) ([]byte, error) {
	decodedLen, prefixLen := binary.Uvarint(src)
	if prefixLen <= 0 {
		return nil, errs.New(errs.DataCorruption, "archive: invalid compressed block length prefix")
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, errs.Wrap(errs.DataCorruption, err, "archive: zstd decoder init")
	}
	defer dec.Close()
	out, err := dec.DecodeAll(src[prefixLen:], make([]byte, 0, decodedLen))
	if err != nil {
		return nil, errs.Wrap(errs.DataCorruption, err, "archive: zstd decompress")
	}
	return out, nil
}
