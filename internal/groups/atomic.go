package groups

import (
	"encoding/binary"
	"math"

	"github.com/opendax/daxd/internal/cdt"
	"github.com/opendax/daxd/internal/tagstore"
	"github.com/opendax/daxd/internal/wire"
)

// Op is one of the nine atomic_op operations of section 4.6.
type Op uint16

const (
	OpInc Op = iota
	OpDec
	OpNot
	OpOr
	OpAnd
	OpNor
	OpNand
	OpXor
	OpXnor
)

func isBitwise(op Op) bool { return op != OpInc && op != OpDec }

// AtomicOp performs an in-place read-modify-write on h's raw bytes (it
// bypasses the override overlay: overrides shadow reads, they do not
// redefine what an atomic RMW operates on). After success the normal write
// path (hooks, retention, metrics) runs via Store.Write.
func AtomicOp(store *tagstore.Store, fd uint32, h tagstore.TagSlice, payload []byte, op Op) error {
	t, err := store.GetByIndex(h.Index)
	if err != nil {
		return err
	}
	if t.Type.IsCDT() {
		return wire.New(wire.ErrBadType, "atomic_op not supported on CDTs")
	}
	if isBitwise(op) {
		if t.Type.IsFloat() {
			return wire.New(wire.ErrBadType, "bitwise atomic ops not supported on REAL/LREAL")
		}
	} else {
		if t.Type.Base() == cdt.BOOL {
			return wire.New(wire.ErrBadType, "INC/DEC not supported on BOOL")
		}
		if h.Count != 1 {
			return wire.New(wire.ErrArg, "INC/DEC requires a single element")
		}
	}

	byteLen := h.ByteSize()
	if uint64(h.Byte)+uint64(byteLen) > uint64(len(t.Data)) {
		return wire.New(wire.Err2Big, "atomic op past end of tag")
	}
	cur := t.Data[h.Byte : h.Byte+byteLen]

	var result []byte
	if !isBitwise(op) {
		result, err = numericStep(cur, t.Type.IsFloat(), h.Size, op == OpInc)
		if err != nil {
			return err
		}
	} else {
		result = bitwiseApply(cur, payload, h.Bit, h.Count, op)
	}

	return store.Write(fd, h.Index, h.Byte, result)
}

// numericStep increments or decrements the size-bit integer or float at buf
// by one.
func numericStep(buf []byte, isFloat bool, size uint32, inc bool) ([]byte, error) {
	out := make([]byte, len(buf))
	delta := 1.0
	if !inc {
		delta = -1.0
	}
	switch size {
	case 8:
		out[0] = byte(int8(buf[0]) + int8(delta))
	case 16:
		v := int16(binary.NativeEndian.Uint16(buf))
		binary.NativeEndian.PutUint16(out, uint16(v+int16(delta)))
	case 32:
		if isFloat {
			v := math.Float32frombits(binary.NativeEndian.Uint32(buf))
			binary.NativeEndian.PutUint32(out, math.Float32bits(v+float32(delta)))
		} else {
			v := int32(binary.NativeEndian.Uint32(buf))
			binary.NativeEndian.PutUint32(out, uint32(v+int32(delta)))
		}
	case 64:
		if isFloat {
			v := math.Float64frombits(binary.NativeEndian.Uint64(buf))
			binary.NativeEndian.PutUint64(out, math.Float64bits(v+delta))
		} else {
			v := int64(binary.NativeEndian.Uint64(buf))
			binary.NativeEndian.PutUint64(out, uint64(v+int64(delta)))
		}
	default:
		return nil, wire.New(wire.ErrBadType, "unsupported element size for INC/DEC")
	}
	return out, nil
}

// bitwiseApply applies op bit by bit over [bit, bit+count) of cur against
// payload, leaving every bit outside that range untouched (the atomic
// bit-OR partial-byte law of section 8: the implementation conceptually
// shifts payload left by bit mod 8 and masks the high/low partial bytes;
// here the same effect is achieved per-bit, which is equivalent and easier
// to verify against the law directly).
func bitwiseApply(cur, payload []byte, bit uint8, count uint32, op Op) []byte {
	result := make([]byte, len(cur))
	copy(result, cur)

	for i := uint32(0); i < count; i++ {
		bitPos := int(bit) + int(i)
		byteIdx := bitPos / 8
		bitIdx := uint(bitPos % 8)
		curBit := (cur[byteIdx] >> bitIdx) & 1

		var payBit byte
		if op != OpNot && int(i/8) < len(payload) {
			payBit = (payload[i/8] >> uint(i%8)) & 1
		}

		var newBit byte
		switch op {
		case OpNot:
			newBit = curBit ^ 1
		case OpOr:
			newBit = curBit | payBit
		case OpAnd:
			newBit = curBit & payBit
		case OpXor:
			newBit = curBit ^ payBit
		case OpNor:
			newBit = (curBit | payBit) ^ 1
		case OpNand:
			newBit = (curBit & payBit) ^ 1
		case OpXnor:
			newBit = (curBit ^ payBit) ^ 1
		}

		if newBit == 1 {
			result[byteIdx] |= 1 << bitIdx
		} else {
			result[byteIdx] &^= 1 << bitIdx
		}
	}
	return result
}
