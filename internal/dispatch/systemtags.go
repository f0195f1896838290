package dispatch

import (
	"encoding/binary"
	"time"

	"github.com/opendax/daxd/internal/cdt"
	"github.com/opendax/daxd/internal/tagstore"
	"github.com/opendax/daxd/internal/wire"
)

// statusCDTSpec is the compound type behind every module's per-module
// status tag (section 3). It carries the fields a supervising module
// reads to monitor, and writes to control, another module's lifecycle.
const statusCDTSpec = "_module_status:starttime,TIME,1:id,DINT,1:running,BOOL,1:faulted,BOOL,1:status,CHAR,64:run,BOOL,1:stop,BOOL,1:reload,BOOL,1:kill,BOOL,1"

// systemTagSet holds the indices of the fixed system tags described in
// section 6, filled in once by installSystemTags.
type systemTagSet struct {
	tagCount           uint32
	lastIndex          uint32
	tagAdded           uint32
	tagDeleted         uint32
	dbSize             uint32
	startTime          uint32
	lastModule         uint32
	overridesInstalled uint32
	overridesSet       uint32
	timeTag            uint32
	myTagName          uint32

	statusCDT cdt.Type
}

// virtualReader implements tagstore.TagIo for a read-only computed tag: get
// renders the tag's full current value and Read copies out the requested
// sub-range. Writes are always refused.
type virtualReader struct {
	get func() []byte
}

func (v virtualReader) Read(offset uint32, buf []byte) error {
	full := v.get()
	if uint64(offset)+uint64(len(buf)) > uint64(len(full)) {
		return wire.New(wire.Err2Big, "read past end of virtual tag")
	}
	copy(buf, full[offset:])
	return nil
}

func (v virtualReader) Write(uint32, []byte) error {
	return wire.New(wire.ErrReadOnly, "system tag is read-only")
}

func uint32Bytes(v uint32) []byte {
	b := make([]byte, 4)
	binary.NativeEndian.PutUint32(b, v)
	return b
}

// installSystemTags creates every fixed system tag and the module status
// CDT. It runs before Store.SetHooks is wired in, so none of these adds
// trigger tag-added bookkeeping on themselves.
func (s *Server) installSystemTags() error {
	typ, err := s.CDTs.Create(statusCDTSpec)
	if err != nil {
		return err
	}
	s.sys.statusCDT = typ

	add := func(name string, t cdt.Type, count uint32, attr tagstore.Attr) (uint32, error) {
		return s.Store.Add(0, name, t, count, attr)
	}

	var idx uint32

	idx, err = add("_tagcount", cdt.UDINT, 1, tagstore.AttrVirtual|tagstore.AttrReadOnly)
	if err != nil {
		return err
	}
	s.sys.tagCount = idx
	s.attachVirtual(idx, func() []byte { return uint32Bytes(uint32(s.Store.Count())) })

	idx, err = add("_lastindex", cdt.UDINT, 1, tagstore.AttrVirtual|tagstore.AttrReadOnly)
	if err != nil {
		return err
	}
	s.sys.lastIndex = idx
	s.attachVirtual(idx, func() []byte { return uint32Bytes(s.Store.LastIndex()) })

	idx, err = add("_dbsize", cdt.UDINT, 1, tagstore.AttrVirtual|tagstore.AttrReadOnly)
	if err != nil {
		return err
	}
	s.sys.dbSize = idx
	s.attachVirtual(idx, func() []byte { return uint32Bytes(s.totalDataBytes()) })

	idx, err = add("_overrides_installed", cdt.UDINT, 1, tagstore.AttrVirtual|tagstore.AttrReadOnly)
	if err != nil {
		return err
	}
	s.sys.overridesInstalled = idx
	s.attachVirtual(idx, func() []byte { return uint32Bytes(s.countOverrides(tagstore.AttrOverride)) })

	idx, err = add("_overrides_set", cdt.UDINT, 1, tagstore.AttrVirtual|tagstore.AttrReadOnly)
	if err != nil {
		return err
	}
	s.sys.overridesSet = idx
	s.attachVirtual(idx, func() []byte { return uint32Bytes(s.countOverrides(tagstore.AttrOvrSet)) })

	idx, err = add("_time", cdt.UDINT, 1, tagstore.AttrVirtual|tagstore.AttrReadOnly)
	if err != nil {
		return err
	}
	s.sys.timeTag = idx
	s.attachVirtual(idx, func() []byte { return uint32Bytes(uint32(time.Now().Unix())) })

	// _my_tagname is answered specially by the TAG_READ handler, which knows
	// the calling module; its IO here only guards against a stray direct
	// read through a path that bypasses that special case.
	idx, err = add("_my_tagname", cdt.CHAR, tagstore.MaxNameLen, tagstore.AttrVirtual|tagstore.AttrReadOnly)
	if err != nil {
		return err
	}
	s.sys.myTagName = idx
	s.attachVirtual(idx, func() []byte { return make([]byte, tagstore.MaxNameLen) })

	idx, err = add("_starttime", cdt.TIME, 1, 0)
	if err != nil {
		return err
	}
	s.sys.startTime = idx
	if err := s.Store.WriteCascade(idx, 0, uint32Bytes(uint32(s.StartedAt.Unix()))); err != nil {
		return err
	}

	idx, err = add("_lastmodule", cdt.DINT, 1, 0)
	if err != nil {
		return err
	}
	s.sys.lastModule = idx

	recType, err := s.CDTs.Create("_tag_event:index,DINT,1:type,DWORD,1:count,DINT,1:attr,WORD,1:name,CHAR,32")
	if err != nil {
		return err
	}
	idx, err = add("_tag_added", recType, 1, 0)
	if err != nil {
		return err
	}
	s.sys.tagAdded = idx

	delRecType, err := s.CDTs.Create("_tag_del_event:index,DINT,1")
	if err != nil {
		return err
	}
	idx, err = add("_tag_deleted", delRecType, 1, 0)
	if err != nil {
		return err
	}
	s.sys.tagDeleted = idx

	return nil
}

func (s *Server) attachVirtual(index uint32, get func() []byte) {
	t, err := s.Store.GetByIndex(index)
	if err != nil {
		return
	}
	t.IO = virtualReader{get: get}
}

func (s *Server) totalDataBytes() uint32 {
	var n uint32
	for _, t := range s.Store.List() {
		n += uint32(len(t.Data))
	}
	return n
}

func (s *Server) countOverrides(want tagstore.Attr) uint32 {
	var n uint32
	for _, t := range s.Store.List() {
		if t.Attr&want != 0 {
			n++
		}
	}
	return n
}

// publishTagEvent writes a _tag_added/_tag_deleted record through the
// normal Store.Write path (not WriteCascade) so a module watching either
// tag with a WRITE event subscription is notified, matching the system
// tags' purpose in section 6.
func (s *Server) publishTagEvent(recordIndex, index uint32, typ cdt.Type, count uint32, attr tagstore.Attr, name string) {
	if recordIndex == 0 {
		return
	}
	if recordIndex == s.sys.tagDeleted {
		_ = s.Store.Write(0, recordIndex, 0, uint32Bytes(index))
		return
	}
	buf := make([]byte, 0, 4+4+4+2+32)
	buf = append(buf, uint32Bytes(index)...)
	buf = append(buf, uint32Bytes(uint32(typ))...)
	buf = append(buf, uint32Bytes(count)...)
	attrBuf := make([]byte, 2)
	binary.NativeEndian.PutUint16(attrBuf, uint16(attr))
	buf = append(buf, attrBuf...)
	nameBuf := make([]byte, 32)
	copy(nameBuf, name)
	buf = append(buf, nameBuf...)
	_ = s.Store.Write(0, recordIndex, 0, buf)
}

// recordLastModule writes the most recently registered module's id to
// _lastmodule through the normal write path.
func (s *Server) recordLastModule(id uint32) {
	_ = s.Store.Write(0, s.sys.lastModule, 0, uint32Bytes(id))
}
