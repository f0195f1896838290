package dispatch

// handleAddOvrd decodes u32 index, u32 offset, u32 datalen, data, mask.
func (s *Server) handleAddOvrd(payload []byte) ([]byte, error) {
	if err := needLen(payload, 12); err != nil {
		return nil, err
	}
	index := getU32(payload, 0)
	offset := getU32(payload, 4)
	n := getU32(payload, 8)
	if err := needLen(payload, 12+int(2*n)); err != nil {
		return nil, err
	}
	data := payload[12 : 12+n]
	mask := payload[12+n : 12+2*n]
	return nil, s.Store.OverrideAdd(index, offset, data, mask)
}

// handleDelOvrd decodes u32 index, u32 offset, u32 masklen, mask.
func (s *Server) handleDelOvrd(payload []byte) ([]byte, error) {
	if err := needLen(payload, 12); err != nil {
		return nil, err
	}
	index := getU32(payload, 0)
	offset := getU32(payload, 4)
	n := getU32(payload, 8)
	if err := needLen(payload, 12+int(n)); err != nil {
		return nil, err
	}
	mask := payload[12 : 12+n]
	return nil, s.Store.OverrideDel(index, offset, mask)
}

// handleGetOvrd decodes u32 index and returns u32 datalen, data, mask.
func (s *Server) handleGetOvrd(payload []byte) ([]byte, error) {
	if err := needLen(payload, 4); err != nil {
		return nil, err
	}
	index := getU32(payload, 0)
	data, mask, err := s.Store.OverrideGet(index)
	if err != nil {
		return nil, err
	}
	resp := make([]byte, 4+len(data)+len(mask))
	putU32(resp, 0, uint32(len(data)))
	copy(resp[4:], data)
	copy(resp[4+len(data):], mask)
	return resp, nil
}

// handleSetOvrd decodes u32 index, u8 active.
func (s *Server) handleSetOvrd(payload []byte) ([]byte, error) {
	if err := needLen(payload, 5); err != nil {
		return nil, err
	}
	index := getU32(payload, 0)
	active := payload[4] != 0
	return nil, s.Store.OverrideSet(index, active)
}
