package dispatch

import (
	"github.com/opendax/daxd/internal/cdt"
	"github.com/opendax/daxd/internal/tagstore"
	"github.com/opendax/daxd/internal/wire"
)

// handleTagAdd decodes u32 type, u32 count, u32 attr, name (rest) and
// returns u32 index.
func (s *Server) handleTagAdd(moduleID uint32, payload []byte) ([]byte, error) {
	if err := needLen(payload, 12); err != nil {
		return nil, err
	}
	typ := cdt.Type(getU32(payload, 0))
	count := getU32(payload, 4)
	attr := getU32(payload, 8)
	name, _ := readCString(payload[12:])

	idx, err := s.Store.Add(moduleID, name, typ, count, tagstore.Attr(attr))
	if err != nil {
		return nil, err
	}
	resp := make([]byte, 4)
	putU32(resp, 0, idx)
	return resp, nil
}

// handleTagDel decodes u32 index and returns it back on success.
func (s *Server) handleTagDel(payload []byte) ([]byte, error) {
	if err := needLen(payload, 4); err != nil {
		return nil, err
	}
	idx := getU32(payload, 0)
	if err := s.Store.Del(idx); err != nil {
		return nil, err
	}
	resp := make([]byte, 4)
	putU32(resp, 0, idx)
	return resp, nil
}

// handleTagGet resolves a tag either by name (subcmd 0, NUL-terminated name
// follows) or by index (subcmd 1, u32 index follows), and returns u32
// index, u32 type, u32 count, u16 attr, name (NUL-terminated).
func (s *Server) handleTagGet(payload []byte) ([]byte, error) {
	if err := needLen(payload, 1); err != nil {
		return nil, err
	}
	var t *tagView
	var err error
	if payload[0] == 0 {
		name, _ := readCString(payload[1:])
		t, err = s.lookupTag(name)
	} else {
		if err := needLen(payload, 5); err != nil {
			return nil, err
		}
		t, err = s.lookupTagByIndex(getU32(payload, 1))
	}
	if err != nil {
		return nil, err
	}
	return encodeTagGet(t), nil
}

// handleTagList returns u32 count followed by, per tag: u32 index, u32
// type, u32 count, u16 attr, u8 namelen, name bytes (no terminator).
func (s *Server) handleTagList() ([]byte, error) {
	tags := s.Store.List()
	resp := make([]byte, 4)
	putU32(resp, 0, uint32(len(tags)))
	for _, t := range tags {
		resp = append(resp, uint32Bytes(t.Index)...)
		resp = append(resp, uint32Bytes(uint32(t.Type))...)
		resp = append(resp, uint32Bytes(t.Count)...)
		attrBuf := make([]byte, 2)
		putU16(attrBuf, 0, uint16(t.Attr))
		resp = append(resp, attrBuf...)
		resp = append(resp, byte(len(t.Name)))
		resp = append(resp, []byte(t.Name)...)
	}
	return resp, nil
}

// handleTagRead decodes u32 index, u32 offset, u32 size and returns size
// bytes. _my_tagname is answered specially here, since it is the one
// virtual tag whose value depends on which module is asking.
func (s *Server) handleTagRead(moduleID uint32, payload []byte) ([]byte, error) {
	if err := needLen(payload, 12); err != nil {
		return nil, err
	}
	index := getU32(payload, 0)
	offset := getU32(payload, 4)
	size := getU32(payload, 8)

	if index == s.sys.myTagName {
		m, ok := s.modules[moduleID]
		if !ok {
			return nil, wire.New(wire.ErrNotFound, "calling module is not registered")
		}
		buf := make([]byte, 32)
		copy(buf, m.Name)
		if uint64(offset)+uint64(size) > uint64(len(buf)) {
			return nil, wire.New(wire.Err2Big, "read past end of tag")
		}
		return buf[offset : offset+size], nil
	}

	return s.Store.Read(moduleID, index, offset, size)
}

// handleTagWrite decodes u32 index, u32 offset, data (rest).
func (s *Server) handleTagWrite(moduleID uint32, payload []byte) ([]byte, error) {
	if err := needLen(payload, 8); err != nil {
		return nil, err
	}
	index := getU32(payload, 0)
	offset := getU32(payload, 4)
	data := payload[8:]
	if err := s.Store.Write(moduleID, index, offset, data); err != nil {
		return nil, err
	}
	return nil, nil
}

// handleTagMWrite decodes u32 index, u32 offset, u32 datalen, data
// (datalen bytes), mask (datalen bytes).
func (s *Server) handleTagMWrite(moduleID uint32, payload []byte) ([]byte, error) {
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
	if err := s.Store.MaskWrite(moduleID, index, offset, data, mask); err != nil {
		return nil, err
	}
	return nil, nil
}

// tagView and the two lookup helpers exist so handleTagGet can share one
// encoder regardless of whether the caller looked up by name or index.
type tagView struct {
	Index uint32
	Type  uint32
	Count uint32
	Attr  uint16
	Name  string
}

func toTagView(t *tagstore.Tag) *tagView {
	return &tagView{Index: t.Index, Type: uint32(t.Type), Count: t.Count, Attr: uint16(t.Attr), Name: t.Name}
}

func (s *Server) lookupTag(name string) (*tagView, error) {
	t, err := s.Store.GetByName(name)
	if err != nil {
		return nil, err
	}
	return toTagView(t), nil
}

func (s *Server) lookupTagByIndex(index uint32) (*tagView, error) {
	t, err := s.Store.GetByIndex(index)
	if err != nil {
		return nil, err
	}
	return toTagView(t), nil
}

func encodeTagGet(t *tagView) []byte {
	resp := make([]byte, 0, 4+4+4+2+len(t.Name)+1)
	resp = append(resp, uint32Bytes(t.Index)...)
	resp = append(resp, uint32Bytes(t.Type)...)
	resp = append(resp, uint32Bytes(t.Count)...)
	attrBuf := make([]byte, 2)
	putU16(attrBuf, 0, t.Attr)
	resp = append(resp, attrBuf...)
	resp = append(resp, []byte(t.Name)...)
	resp = append(resp, 0)
	return resp
}
