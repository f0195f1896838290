package dispatch

import (
	"github.com/opendax/daxd/internal/groups"
	"github.com/opendax/daxd/internal/tagstore"
	"github.com/opendax/daxd/internal/wire"
)

// handleGrpAdd decodes u8 member-count, u8 options (unused, reserved),
// followed by member-count 21-byte group handles, and returns u32
// group-id.
func (s *Server) handleGrpAdd(moduleID uint32, payload []byte) ([]byte, error) {
	if err := needLen(payload, 2); err != nil {
		return nil, err
	}
	count := int(payload[0])
	need := 2 + count*wire.GroupHandleSize
	if err := needLen(payload, need); err != nil {
		return nil, err
	}

	members := make([]tagstore.TagSlice, count)
	for i := 0; i < count; i++ {
		start := 2 + i*wire.GroupHandleSize
		h, err := wire.DecodeGroupMember(payload[start : start+wire.GroupHandleSize])
		if err != nil {
			return nil, err
		}
		members[i] = tagstore.TagSlice{Index: h.Index, Byte: h.Byte, Bit: h.Bit, Count: h.Count, Size: h.Size}
	}

	id, err := s.Groups.Add(moduleID, members)
	if err != nil {
		return nil, err
	}
	resp := make([]byte, 4)
	putU32(resp, 0, id)
	return resp, nil
}

// handleGrpDel decodes u32 group-id.
func (s *Server) handleGrpDel(moduleID uint32, payload []byte) ([]byte, error) {
	if err := needLen(payload, 4); err != nil {
		return nil, err
	}
	return nil, s.Groups.Del(moduleID, getU32(payload, 0))
}

// handleGrpRead decodes u32 group-id and returns the group's concatenated
// member bytes.
func (s *Server) handleGrpRead(moduleID uint32, payload []byte) ([]byte, error) {
	if err := needLen(payload, 4); err != nil {
		return nil, err
	}
	return s.Groups.Read(moduleID, getU32(payload, 0))
}

// handleGrpWrite decodes u32 group-id, data (rest).
func (s *Server) handleGrpWrite(moduleID uint32, payload []byte) ([]byte, error) {
	if err := needLen(payload, 4); err != nil {
		return nil, err
	}
	return nil, s.Groups.Write(moduleID, getU32(payload, 0), payload[4:])
}

// handleGrpMWrite decodes u32 group-id, u32 datalen, data, mask.
func (s *Server) handleGrpMWrite(moduleID uint32, payload []byte) ([]byte, error) {
	if err := needLen(payload, 8); err != nil {
		return nil, err
	}
	id := getU32(payload, 0)
	n := getU32(payload, 4)
	if err := needLen(payload, 8+int(2*n)); err != nil {
		return nil, err
	}
	data := payload[8 : 8+n]
	mask := payload[8+n : 8+2*n]
	return nil, s.Groups.MaskWrite(moduleID, id, data, mask)
}

// handleAtomicOp decodes a 22-byte tag handle, u16 opcode, operand bytes
// (rest).
func (s *Server) handleAtomicOp(moduleID uint32, payload []byte) ([]byte, error) {
	if err := needLen(payload, wire.HandleSize+2); err != nil {
		return nil, err
	}
	h, err := wire.DecodeHandle(payload[:wire.HandleSize])
	if err != nil {
		return nil, err
	}
	op := groups.Op(getU16(payload, wire.HandleSize))
	operand := payload[wire.HandleSize+2:]

	slice := tagstore.TagSlice{Index: h.Index, Byte: h.Byte, Bit: h.Bit, Count: h.Count, Size: h.Size}
	if err := groups.AtomicOp(s.Store, moduleID, slice, operand, op); err != nil {
		return nil, err
	}
	return nil, nil
}
