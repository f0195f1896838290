package daxclient

import (
	"encoding/binary"
	"net"

	"github.com/opendax/daxd/internal/cdt"
	"github.com/opendax/daxd/internal/wire"
)

// Handle describes a slice of a tag: the element type/count/size the
// handle spans, plus a starting byte/bit offset within the tag's buffer.
// It mirrors wire.Handle without exposing the internal wire package.
type Handle struct {
	Index uint32
	Byte  uint32
	Bit   uint8
	Count uint32
	Size  uint32
	Type  cdt.Type
	Flags uint8
}

func (h Handle) wire() wire.Handle {
	return wire.Handle{Index: h.Index, Byte: h.Byte, Bit: h.Bit, Count: h.Count, Size: h.Size, Type: uint32(h.Type), Flags: h.Flags}
}

// --- Events ---

// EventOptions mirrors events.Options without importing the server's
// internal event engine package.
type EventOptions struct {
	SendData bool
}

// EventAdd subscribes to kind on the watched slice and returns an event id.
func (c *Client) EventAdd(index, byteOff, count, dtype, size uint32, bit uint8, kind uint32, predicate []byte, opts EventOptions) (uint32, error) {
	payload := make([]byte, 26+len(predicate))
	binary.NativeEndian.PutUint32(payload[0:4], index)
	binary.NativeEndian.PutUint32(payload[4:8], byteOff)
	binary.NativeEndian.PutUint32(payload[8:12], count)
	binary.NativeEndian.PutUint32(payload[12:16], dtype)
	binary.NativeEndian.PutUint32(payload[16:20], kind)
	binary.NativeEndian.PutUint32(payload[20:24], size)
	payload[24] = bit
	if opts.SendData {
		payload[25] = 1
	}
	copy(payload[26:], predicate)
	resp, err := c.roundTrip(wire.EvntAdd, payload)
	if err != nil {
		return 0, err
	}
	return binary.NativeEndian.Uint32(resp), nil
}

// EventInfo is the decoded form of an EVNT_GET response: an existing
// subscription's declaration, as EventAdd accepted it.
type EventInfo struct {
	Byte    uint32
	Count   uint32
	DType   uint32
	Kind    uint32
	Size    uint32
	Bit     uint8
	Options EventOptions
}

// EventGet reads back the declaration of a subscription previously created
// with EventAdd.
func (c *Client) EventGet(index, eventID uint32) (EventInfo, error) {
	payload := make([]byte, 8)
	binary.NativeEndian.PutUint32(payload[0:4], index)
	binary.NativeEndian.PutUint32(payload[4:8], eventID)
	resp, err := c.roundTrip(wire.EvntGet, payload)
	if err != nil {
		return EventInfo{}, err
	}
	if len(resp) < 22 {
		return EventInfo{}, wire.New(wire.ErrArg, "short EVNT_GET response")
	}
	return EventInfo{
		Byte:    binary.NativeEndian.Uint32(resp[0:4]),
		Count:   binary.NativeEndian.Uint32(resp[4:8]),
		DType:   binary.NativeEndian.Uint32(resp[8:12]),
		Kind:    binary.NativeEndian.Uint32(resp[12:16]),
		Size:    binary.NativeEndian.Uint32(resp[16:20]),
		Bit:     resp[20],
		Options: EventOptions{SendData: resp[21] != 0},
	}, nil
}

// EventDel removes a subscription previously created with EventAdd.
func (c *Client) EventDel(index, eventID uint32) error {
	payload := make([]byte, 8)
	binary.NativeEndian.PutUint32(payload[0:4], index)
	binary.NativeEndian.PutUint32(payload[4:8], eventID)
	_, err := c.roundTrip(wire.EvntDel, payload)
	return err
}

// EventOpt toggles the send-current-value option on an existing subscription.
func (c *Client) EventOpt(index, eventID uint32, opts EventOptions) error {
	payload := make([]byte, 9)
	binary.NativeEndian.PutUint32(payload[0:4], index)
	binary.NativeEndian.PutUint32(payload[4:8], eventID)
	if opts.SendData {
		payload[8] = 1
	}
	_, err := c.roundTrip(wire.EvntOpt, payload)
	return err
}

// --- Mapping ---

// MapAdd installs a propagation from src to dst and returns its id.
func (c *Client) MapAdd(src, dst Handle) (uint32, error) {
	payload := append(src.wire().Encode(), dst.wire().Encode()...)
	resp, err := c.roundTrip(wire.MapAdd, payload)
	if err != nil {
		return 0, err
	}
	return binary.NativeEndian.Uint32(resp), nil
}

// MapDel removes the mapping rooted at src with the given id.
func (c *Client) MapDel(src, id uint32) error {
	payload := make([]byte, 8)
	binary.NativeEndian.PutUint32(payload[0:4], src)
	binary.NativeEndian.PutUint32(payload[4:8], id)
	_, err := c.roundTrip(wire.MapDel, payload)
	return err
}

// MapGet lists the mapping ids currently rooted at src.
func (c *Client) MapGet(src uint32) ([]uint32, error) {
	payload := make([]byte, 4)
	binary.NativeEndian.PutUint32(payload, src)
	resp, err := c.roundTrip(wire.MapGet, payload)
	if err != nil {
		return nil, err
	}
	n := binary.NativeEndian.Uint32(resp[0:4])
	ids := make([]uint32, n)
	for i := range ids {
		ids[i] = binary.NativeEndian.Uint32(resp[4+4*i:])
	}
	return ids, nil
}

// --- Groups ---

// GroupAdd creates a group spanning members and returns its id.
func (c *Client) GroupAdd(members []Handle) (uint32, error) {
	payload := make([]byte, 2, 2+len(members)*wire.GroupHandleSize)
	payload[0] = byte(len(members))
	for _, m := range members {
		payload = append(payload, m.wire().EncodeGroupMember()...)
	}
	resp, err := c.roundTrip(wire.GrpAdd, payload)
	if err != nil {
		return 0, err
	}
	return binary.NativeEndian.Uint32(resp), nil
}

// GroupDel removes a group this client owns.
func (c *Client) GroupDel(id uint32) error {
	payload := make([]byte, 4)
	binary.NativeEndian.PutUint32(payload, id)
	_, err := c.roundTrip(wire.GrpDel, payload)
	return err
}

// GroupRead returns a group's concatenated member bytes.
func (c *Client) GroupRead(id uint32) ([]byte, error) {
	payload := make([]byte, 4)
	binary.NativeEndian.PutUint32(payload, id)
	return c.roundTrip(wire.GrpRead, payload)
}

// GroupWrite writes data across a group's members in order.
func (c *Client) GroupWrite(id uint32, data []byte) error {
	payload := make([]byte, 4+len(data))
	binary.NativeEndian.PutUint32(payload[0:4], id)
	copy(payload[4:], data)
	_, err := c.roundTrip(wire.GrpWrite, payload)
	return err
}

// GroupMaskWrite writes data across a group's members, only where mask is set.
func (c *Client) GroupMaskWrite(id uint32, data, mask []byte) error {
	payload := make([]byte, 8+2*len(data))
	binary.NativeEndian.PutUint32(payload[0:4], id)
	binary.NativeEndian.PutUint32(payload[4:8], uint32(len(data)))
	copy(payload[8:], data)
	copy(payload[8+len(data):], mask)
	_, err := c.roundTrip(wire.GrpMWrite, payload)
	return err
}

// Atomic op codes, mirroring internal/groups.Op's nine operations.
const (
	AtomicInc  uint16 = 0
	AtomicDec  uint16 = 1
	AtomicNot  uint16 = 2
	AtomicOr   uint16 = 3
	AtomicAnd  uint16 = 4
	AtomicNor  uint16 = 5
	AtomicNand uint16 = 6
	AtomicXor  uint16 = 7
	AtomicXnor uint16 = 8
)

// AtomicOp performs a read-modify-write on the slice h describes.
func (c *Client) AtomicOp(h Handle, op uint16, operand []byte) error {
	payload := make([]byte, wire.HandleSize+2+len(operand))
	copy(payload, h.wire().Encode())
	binary.NativeEndian.PutUint16(payload[wire.HandleSize:], op)
	copy(payload[wire.HandleSize+2:], operand)
	_, err := c.roundTrip(wire.AtomicOp, payload)
	return err
}

// --- Overrides ---

// OverrideAdd installs an override overlay on index at offset.
func (c *Client) OverrideAdd(index, offset uint32, data, mask []byte) error {
	if len(data) != len(mask) {
		return wire.New(wire.ErrArg, "override data/mask length mismatch")
	}
	payload := make([]byte, 12+2*len(data))
	binary.NativeEndian.PutUint32(payload[0:4], index)
	binary.NativeEndian.PutUint32(payload[4:8], offset)
	binary.NativeEndian.PutUint32(payload[8:12], uint32(len(data)))
	copy(payload[12:], data)
	copy(payload[12+len(data):], mask)
	_, err := c.roundTrip(wire.AddOvrd, payload)
	return err
}

// OverrideDel removes the override bits named by mask from index at offset.
func (c *Client) OverrideDel(index, offset uint32, mask []byte) error {
	payload := make([]byte, 12+len(mask))
	binary.NativeEndian.PutUint32(payload[0:4], index)
	binary.NativeEndian.PutUint32(payload[4:8], offset)
	binary.NativeEndian.PutUint32(payload[8:12], uint32(len(mask)))
	copy(payload[12:], mask)
	_, err := c.roundTrip(wire.DelOvrd, payload)
	return err
}

// OverrideGet returns an override's installed data and mask.
func (c *Client) OverrideGet(index uint32) (data, mask []byte, err error) {
	payload := make([]byte, 4)
	binary.NativeEndian.PutUint32(payload, index)
	resp, err := c.roundTrip(wire.GetOvrd, payload)
	if err != nil {
		return nil, nil, err
	}
	n := binary.NativeEndian.Uint32(resp[0:4])
	return resp[4 : 4+n], resp[4+n:], nil
}

// OverrideSet activates or deactivates an installed override.
func (c *Client) OverrideSet(index uint32, active bool) error {
	payload := make([]byte, 5)
	binary.NativeEndian.PutUint32(payload[0:4], index)
	if active {
		payload[4] = 1
	}
	_, err := c.roundTrip(wire.SetOvrd, payload)
	return err
}

// --- Asynchronous notifications ---

// Notification is one fired event delivered on a module's async socket.
type Notification struct {
	TagID   uint32
	EventID uint32
	Data    []byte
}

// EventClient is a module's asynchronous notification channel, opened via
// Client.OpenEvents after synchronous registration.
type EventClient struct {
	conn net.Conn
}

// Next blocks until the next notification arrives.
func (e *EventClient) Next() (Notification, error) {
	f, err := wire.ReadFrame(e.conn)
	if err != nil {
		return Notification{}, err
	}
	if len(f.Payload) < 12 {
		return Notification{}, wire.New(wire.ErrArg, "short notification")
	}
	n := Notification{
		TagID:   binary.NativeEndian.Uint32(f.Payload[0:4]),
		EventID: binary.NativeEndian.Uint32(f.Payload[4:8]),
	}
	dataLen := binary.NativeEndian.Uint32(f.Payload[8:12])
	if dataLen > 0 {
		n.Data = append([]byte(nil), f.Payload[12:12+dataLen]...)
	}
	return n, nil
}

// Close closes the asynchronous connection.
func (e *EventClient) Close() error { return e.conn.Close() }
