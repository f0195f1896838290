package dispatch

import "github.com/opendax/daxd/internal/cdt"

// handleCdtCreate decodes the colon-separated spec string and returns u32
// type-id.
func (s *Server) handleCdtCreate(payload []byte) ([]byte, error) {
	spec, _ := readCString(payload)
	typ, err := s.CDTs.Create(spec)
	if err != nil {
		return nil, err
	}
	s.Retention.PersistCDT(spec[:cdtNameLen(spec)], spec)
	resp := make([]byte, 4)
	putU32(resp, 0, uint32(typ))
	return resp, nil
}

// cdtNameLen returns the length of spec's name segment (up to the first
// colon, or the whole string if there is none).
func cdtNameLen(spec string) int {
	for i, c := range spec {
		if c == ':' {
			return i
		}
	}
	return len(spec)
}

// handleCdtGet resolves a CDT either by name (subcmd 0, NUL-terminated name
// follows, returns u32 type) or by type (subcmd 1, u32 type follows,
// returns the spec string, NUL-terminated).
func (s *Server) handleCdtGet(payload []byte) ([]byte, error) {
	if err := needLen(payload, 1); err != nil {
		return nil, err
	}
	if payload[0] == 0 {
		name, _ := readCString(payload[1:])
		typ := s.CDTs.GetType(name)
		resp := make([]byte, 4)
		putU32(resp, 0, uint32(typ))
		return resp, nil
	}
	if err := needLen(payload, 5); err != nil {
		return nil, err
	}
	typ := cdt.Type(getU32(payload, 1))
	spec, err := s.CDTs.Serialize(typ)
	if err != nil {
		return nil, err
	}
	return append([]byte(spec), 0), nil
}
