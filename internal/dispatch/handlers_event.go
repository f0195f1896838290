package dispatch

import (
	"github.com/opendax/daxd/internal/events"
	"github.com/opendax/daxd/internal/wire"
)

// handleEvntAdd decodes u32 index, u32 byte, u32 count, u32 dtype, u32
// kind, u32 size, u8 bit, u8 sendData, payload (rest) and returns u32
// event-id.
func (s *Server) handleEvntAdd(moduleID uint32, payload []byte) ([]byte, error) {
	if err := needLen(payload, 26); err != nil {
		return nil, err
	}
	index := getU32(payload, 0)
	byteOff := getU32(payload, 4)
	count := getU32(payload, 8)
	dtype := getU32(payload, 12)
	kind := getU32(payload, 16)
	size := getU32(payload, 20)
	bit := payload[24]
	sendData := payload[25] != 0
	rest := payload[26:]

	id, err := s.Events.Add(index, events.Kind(kind), byteOff, bit, count, size, dtype, rest, moduleID, events.Options{SendData: sendData})
	if err != nil {
		return nil, err
	}
	resp := make([]byte, 4)
	putU32(resp, 0, id)
	return resp, nil
}

// handleEvntDel decodes u32 index, u32 event-id.
func (s *Server) handleEvntDel(moduleID uint32, payload []byte) ([]byte, error) {
	if err := needLen(payload, 8); err != nil {
		return nil, err
	}
	index := getU32(payload, 0)
	id := getU32(payload, 4)
	if err := s.Events.Del(index, id, moduleID); err != nil {
		return nil, err
	}
	return nil, nil
}

// handleEvntGet decodes u32 index, u32 event-id and returns the
// subscription's declaration: u32 byte, u32 count, u32 dtype, u32 kind, u32
// size, u8 bit, u8 sendData - the fields EvntAdd accepted, read back the way
// handleTagGet reads back a tag's declaration.
func (s *Server) handleEvntGet(payload []byte) ([]byte, error) {
	if err := needLen(payload, 8); err != nil {
		return nil, err
	}
	index := getU32(payload, 0)
	id := getU32(payload, 4)

	ev, ok := s.Events.Get(index, id)
	if !ok {
		return nil, wire.New(wire.ErrNotFound, "no such event")
	}

	resp := make([]byte, 22)
	putU32(resp, 0, ev.Byte)
	putU32(resp, 4, ev.Count)
	putU32(resp, 8, ev.DType)
	putU32(resp, 12, uint32(ev.Kind))
	putU32(resp, 16, ev.Size)
	resp[20] = ev.Bit
	if ev.Options.SendData {
		resp[21] = 1
	}
	return resp, nil
}

// handleEvntOpt decodes u32 index, u32 event-id, u8 sendData.
func (s *Server) handleEvntOpt(payload []byte) ([]byte, error) {
	if err := needLen(payload, 9); err != nil {
		return nil, err
	}
	index := getU32(payload, 0)
	id := getU32(payload, 4)
	sendData := payload[8] != 0
	if err := s.Events.Opt(index, id, events.Options{SendData: sendData}); err != nil {
		return nil, err
	}
	return nil, nil
}
