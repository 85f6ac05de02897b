package bitmap

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/taosdata/incbitmap/internal/errs"
)

// Wire format (little-endian, portable across machines of identical
// endianness per spec §4.A):
//
//	4 bytes   magic   "BMP1"
//	4 bytes   numChunks
//	per chunk, ascending by chunk key:
//	  8 bytes   chunk key
//	  1 byte    container kind (0 = array, 1 = bitset)
//	  4 bytes   element count
//	  array:    count * 2 bytes  (sorted uint16 low bits)
//	  bitset:   wordsPerChunk * 8 bytes
//	8 bytes   xxhash64 of everything above, for tamper detection on load
//	          (grounded on sstable/block's xxhash64 ChecksumType option).
var magic = [4]byte{'B', 'M', 'P', '1'}

const (
	headerSize     = 4 + 4
	chunkHeaderSize = 8 + 1 + 4
	trailerSize    = 8
)

// SerializedSize returns the exact number of bytes Serialize will produce.
func (s *Set) SerializedSize() int {
	n := headerSize
	for _, c := range s.containers {
		n += chunkHeaderSize
		switch c.kind() {
		case kindArray:
			n += c.cardinality() * 2
		case kindBitset:
			n += wordsPerChunk * 8
		}
	}
	return n + trailerSize
}

// Serialize writes the portable encoding of s.
func (s *Set) Serialize() []byte {
	buf := make([]byte, s.SerializedSize())
	off := 0
	copy(buf[off:], magic[:])
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(s.containers)))
	off += 4

	for _, hi := range s.sortedChunks() {
		c := s.containers[hi]
		binary.LittleEndian.PutUint64(buf[off:], hi)
		off += 8
		buf[off] = byte(c.kind())
		off++
		binary.LittleEndian.PutUint32(buf[off:], uint32(c.cardinality()))
		off += 4
		switch cc := c.(type) {
		case *arrayContainer:
			for _, v := range cc.vals {
				binary.LittleEndian.PutUint16(buf[off:], v)
				off += 2
			}
		case *bitsetContainer:
			for _, w := range cc.words {
				binary.LittleEndian.PutUint64(buf[off:], w)
				off += 8
			}
		}
	}

	sum := xxhash.Sum64(buf[:off])
	binary.LittleEndian.PutUint64(buf[off:], sum)
	off += 8
	return buf[:off]
}

// Deserialize parses the portable encoding produced by Serialize, verifying
// its integrity trailer.
func Deserialize(data []byte) (*Set, error) {
	if len(data) < headerSize+trailerSize {
		return nil, errShortBuffer
	}
	if [4]byte(data[0:4]) != magic {
		return nil, errs.New(errs.DataCorruption, "bitmap: bad magic")
	}
	payload := data[:len(data)-trailerSize]
	wantSum := binary.LittleEndian.Uint64(data[len(data)-trailerSize:])
	if xxhash.Sum64(payload) != wantSum {
		return nil, errs.New(errs.DataCorruption, "bitmap: checksum mismatch")
	}

	off := 4
	numChunks := binary.LittleEndian.Uint32(data[off:])
	off += 4

	out := New()
	for i := uint32(0); i < numChunks; i++ {
		if off+chunkHeaderSize > len(payload) {
			return nil, errShortBuffer
		}
		hi := binary.LittleEndian.Uint64(data[off:])
		off += 8
		kind := containerKind(data[off])
		off++
		count := binary.LittleEndian.Uint32(data[off:])
		off += 4

		switch kind {
		case kindArray:
			need := int(count) * 2
			if off+need > len(payload) {
				return nil, errShortBuffer
			}
			ac := newArrayContainer()
			ac.vals = make([]uint16, count)
			for j := uint32(0); j < count; j++ {
				ac.vals[j] = binary.LittleEndian.Uint16(data[off:])
				off += 2
			}
			out.containers[hi] = ac
		case kindBitset:
			need := wordsPerChunk * 8
			if off+need > len(payload) {
				return nil, errShortBuffer
			}
			bc := newBitsetContainer()
			for j := 0; j < wordsPerChunk; j++ {
				bc.words[j] = binary.LittleEndian.Uint64(data[off:])
				off += 8
			}
			bc.card = int(count)
			out.containers[hi] = bc
		default:
			return nil, errs.New(errs.DataCorruption, "bitmap: unknown container kind %d", kind)
		}
	}
	return out, nil
}
