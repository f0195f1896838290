package dispatch

import (
	"github.com/opendax/daxd/internal/tagstore"
	"github.com/opendax/daxd/internal/wire"
)

// handleMapAdd decodes a 22-byte source handle followed by a 22-byte
// destination handle and returns u32 map-id.
func (s *Server) handleMapAdd(payload []byte) ([]byte, error) {
	if err := needLen(payload, 2*wire.HandleSize); err != nil {
		return nil, err
	}
	srcH, err := wire.DecodeHandle(payload[:wire.HandleSize])
	if err != nil {
		return nil, err
	}
	dstH, err := wire.DecodeHandle(payload[wire.HandleSize : 2*wire.HandleSize])
	if err != nil {
		return nil, err
	}

	id, err := s.Mapping.Add(toSlice(srcH), toSlice(dstH))
	if err != nil {
		return nil, err
	}
	resp := make([]byte, 4)
	putU32(resp, 0, id)
	return resp, nil
}

// handleMapDel decodes u32 src-index, u32 map-id.
func (s *Server) handleMapDel(payload []byte) ([]byte, error) {
	if err := needLen(payload, 8); err != nil {
		return nil, err
	}
	src := getU32(payload, 0)
	id := getU32(payload, 4)
	if err := s.Mapping.Del(src, id); err != nil {
		return nil, err
	}
	return nil, nil
}

// handleMapGet decodes u32 src-index and returns u32 count followed by
// that many u32 map-ids rooted at src.
func (s *Server) handleMapGet(payload []byte) ([]byte, error) {
	if err := needLen(payload, 4); err != nil {
		return nil, err
	}
	src := getU32(payload, 0)
	ids := s.Mapping.Get(src)

	resp := make([]byte, 4+4*len(ids))
	putU32(resp, 0, uint32(len(ids)))
	for i, id := range ids {
		putU32(resp, 4+4*i, id)
	}
	return resp, nil
}

func toSlice(h wire.Handle) tagstore.TagSlice {
	return tagstore.TagSlice{Index: h.Index, Byte: h.Byte, Bit: h.Bit, Count: h.Count, Size: h.Size}
}
