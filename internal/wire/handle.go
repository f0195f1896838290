package wire

import "encoding/binary"

// Handle is the decoded form of a 21/22-byte wire tag handle: a slice of a
// tag described by byte offset, bit offset, element count, element size and
// element type. Source and destination handles in MAP_ADD carry one extra
// reserved/flags byte (22 bytes total) that group handles in GRP_ADD omit
// (21 bytes total, no per-member flags).
type Handle struct {
	Index uint32
	Byte  uint32
	Bit   uint8
	Count uint32
	Size  uint32
	Type  uint32
	Flags uint8
}

const (
	// HandleSize is the MAP_ADD wire size (with the flags byte).
	HandleSize = 22
	// GroupHandleSize is the GRP_ADD wire size (no flags byte).
	GroupHandleSize = 21
)

func (h Handle) encodeCommon(buf []byte) {
	binary.BigEndian.PutUint32(buf[0:4], h.Index)
	binary.BigEndian.PutUint32(buf[4:8], h.Byte)
	buf[8] = h.Bit
	binary.BigEndian.PutUint32(buf[9:13], h.Count)
	binary.BigEndian.PutUint32(buf[13:17], h.Size)
	binary.BigEndian.PutUint32(buf[17:21], h.Type)
}

// Encode writes the 22-byte MAP_ADD form.
func (h Handle) Encode() []byte {
	buf := make([]byte, HandleSize)
	h.encodeCommon(buf)
	buf[21] = h.Flags
	return buf
}

// DecodeHandle parses the 22-byte MAP_ADD form.
func DecodeHandle(buf []byte) (Handle, error) {
	if len(buf) < HandleSize {
		return Handle{}, New(ErrArg, "short tag handle")
	}
	h := decodeCommon(buf)
	h.Flags = buf[21]
	return h, nil
}

// EncodeGroupMember writes the 21-byte GRP_ADD form (no flags byte).
func (h Handle) EncodeGroupMember() []byte {
	buf := make([]byte, GroupHandleSize)
	h.encodeCommon(buf)
	return buf
}

// DecodeGroupMember parses the 21-byte GRP_ADD form.
func DecodeGroupMember(buf []byte) (Handle, error) {
	if len(buf) < GroupHandleSize {
		return Handle{}, New(ErrArg, "short group handle")
	}
	return decodeCommon(buf), nil
}

func decodeCommon(buf []byte) Handle {
	return Handle{
		Index: binary.BigEndian.Uint32(buf[0:4]),
		Byte:  binary.BigEndian.Uint32(buf[4:8]),
		Bit:   buf[8],
		Count: binary.BigEndian.Uint32(buf[9:13]),
		Size:  binary.BigEndian.Uint32(buf[13:17]),
		Type:  binary.BigEndian.Uint32(buf[17:21]),
	}
}

// ByteSize returns the number of whole bytes this handle's slice spans,
// rounding up bit-packed BOOL slices to a byte boundary.
func (h Handle) ByteSize() uint32 {
	if h.Size == 0 {
		return 0
	}
	totalBits := uint32(h.Bit) + h.Count*h.Size
	return (totalBits + 7) / 8
}
