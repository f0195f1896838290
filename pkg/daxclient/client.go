// Package daxclient is a small Go client for the daxd wire protocol,
// grounded in the request/response shapes internal/dispatch implements on
// the server side. It exists so tests and admin tooling can drive a real
// daxd instance over its sockets without a C module library; it is not
// itself a protocol module and carries no Modbus/MQTT/PLC logic.
package daxclient

import (
	"encoding/binary"
	"fmt"
	"math"
	"net"
	"sync"
	"time"

	"github.com/opendax/daxd/internal/cdt"
	"github.com/opendax/daxd/internal/wire"
)

// RegInfo is the layout-declaration half of MOD_REG's sync response: the
// sentinel values a client compares against its own native encoding to
// detect an endian or float-representation mismatch (section 9).
type RegInfo struct {
	IntTest   uint16
	DIntTest  uint32
	LIntTest  uint64
	RealTest  float32
	LRealTest float64
}

// Mismatched reports whether any sentinel differs from the value this
// client's own encoding produces, i.e. whether the server is a different
// byte order or float representation than this process.
func (r RegInfo) Mismatched() bool {
	return r.IntTest != 0x1234 ||
		r.DIntTest != 0x12345678 ||
		r.LIntTest != 0x123456789ABCDEF0 ||
		r.RealTest != 3.14 ||
		r.LRealTest != 3.14159265358979
}

// Client is one module's synchronous command connection. It is safe for
// concurrent use by multiple goroutines: requests are serialized onto the
// wire one at a time, matching the server's one-request-at-a-time framing
// per connection.
type Client struct {
	mu       sync.Mutex
	conn     net.Conn
	moduleID uint32
	name     string
	reg      RegInfo
}

// Register dials addr on network ("unix" or "tcp") and performs the SYNC
// half of the MOD_REG handshake.
func Register(network, addr, name string, timeout time.Duration) (*Client, error) {
	conn, err := net.Dial(network, addr)
	if err != nil {
		return nil, fmt.Errorf("daxclient: dial %s: %w", addr, err)
	}
	c := &Client{conn: conn, name: name}

	payload := make([]byte, 8+len(name)+1)
	binary.NativeEndian.PutUint32(payload[0:4], uint32(timeout/time.Millisecond))
	binary.NativeEndian.PutUint32(payload[4:8], 1) // SYNC
	copy(payload[8:], name)

	resp, err := c.roundTrip(wire.ModReg, payload)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if len(resp) < 30 {
		conn.Close()
		return nil, fmt.Errorf("daxclient: short MOD_REG response")
	}
	c.moduleID = binary.NativeEndian.Uint32(resp[0:4])
	c.reg = RegInfo{
		IntTest:   binary.NativeEndian.Uint16(resp[4:6]),
		DIntTest:  binary.NativeEndian.Uint32(resp[6:10]),
		LIntTest:  binary.NativeEndian.Uint64(resp[10:18]),
		RealTest:  math.Float32frombits(binary.NativeEndian.Uint32(resp[18:22])),
		LRealTest: math.Float64frombits(binary.NativeEndian.Uint64(resp[22:30])),
	}
	return c, nil
}

// ModuleID returns the id the server assigned this module on registration.
func (c *Client) ModuleID() uint32 { return c.moduleID }

// RegInfo returns the endian/float sentinel values from registration.
func (c *Client) RegInfo() RegInfo { return c.reg }

// Close closes the synchronous connection. It does not close any
// EventClient opened from this Client.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Close()
}

// OpenEvents dials addr and completes the EVENT half of the MOD_REG
// handshake, returning a channel dedicated to asynchronous notifications.
func (c *Client) OpenEvents(network, addr string) (*EventClient, error) {
	conn, err := net.Dial(network, addr)
	if err != nil {
		return nil, fmt.Errorf("daxclient: dial %s: %w", addr, err)
	}
	payload := make([]byte, 8)
	binary.NativeEndian.PutUint32(payload[0:4], c.moduleID)
	binary.NativeEndian.PutUint32(payload[4:8], 2) // EVENT
	if err := wire.WriteFrame(conn, wire.Frame{Command: wire.ModReg, Payload: payload}); err != nil {
		conn.Close()
		return nil, err
	}
	resp, err := wire.ReadFrame(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if resp.IsError() {
		conn.Close()
		return nil, errFromFrame(resp)
	}
	return &EventClient{conn: conn}, nil
}

// roundTrip writes one frame and returns the payload of its response, or an
// error decoded from an error-flagged response.
func (c *Client) roundTrip(cmd wire.Command, payload []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := wire.WriteFrame(c.conn, wire.Frame{Command: cmd, Payload: payload}); err != nil {
		return nil, fmt.Errorf("daxclient: write: %w", err)
	}
	resp, err := wire.ReadFrame(c.conn)
	if err != nil {
		return nil, fmt.Errorf("daxclient: read: %w", err)
	}
	if resp.IsError() {
		return nil, errFromFrame(resp)
	}
	return resp.Payload, nil
}

func errFromFrame(f wire.Frame) error { return wire.New(f.ErrorCode(), "") }

// --- Module self-management ---

// SetTimeout updates this module's request timeout.
func (c *Client) SetTimeout(timeout time.Duration) error {
	payload := make([]byte, 4)
	binary.NativeEndian.PutUint32(payload, uint32(timeout/time.Millisecond))
	_, err := c.roundTrip(wire.ModSet, payload)
	return err
}

// --- Tags ---

// TagAdd creates a tag and returns its index.
func (c *Client) TagAdd(name string, typ cdt.Type, count, attr uint32) (uint32, error) {
	payload := make([]byte, 12+len(name)+1)
	binary.NativeEndian.PutUint32(payload[0:4], uint32(typ))
	binary.NativeEndian.PutUint32(payload[4:8], count)
	binary.NativeEndian.PutUint32(payload[8:12], attr)
	copy(payload[12:], name)
	resp, err := c.roundTrip(wire.TagAdd, payload)
	if err != nil {
		return 0, err
	}
	return binary.NativeEndian.Uint32(resp), nil
}

// TagDel deletes the tag at index.
func (c *Client) TagDel(index uint32) error {
	payload := make([]byte, 4)
	binary.NativeEndian.PutUint32(payload, index)
	_, err := c.roundTrip(wire.TagDel, payload)
	return err
}

// TagInfo is the decoded form of a TAG_GET / TAG_LIST entry.
type TagInfo struct {
	Index uint32
	Type  cdt.Type
	Count uint32
	Attr  uint16
	Name  string
}

// TagByName resolves a tag's metadata by name.
func (c *Client) TagByName(name string) (TagInfo, error) {
	payload := append([]byte{0}, append([]byte(name), 0)...)
	resp, err := c.roundTrip(wire.TagGet, payload)
	if err != nil {
		return TagInfo{}, err
	}
	return decodeTagInfo(resp), nil
}

// TagByIndex resolves a tag's metadata by index.
func (c *Client) TagByIndex(index uint32) (TagInfo, error) {
	payload := make([]byte, 5)
	payload[0] = 1
	binary.NativeEndian.PutUint32(payload[1:5], index)
	resp, err := c.roundTrip(wire.TagGet, payload)
	if err != nil {
		return TagInfo{}, err
	}
	return decodeTagInfo(resp), nil
}

func decodeTagInfo(resp []byte) TagInfo {
	name, _ := cstring(resp[14:])
	return TagInfo{
		Index: binary.NativeEndian.Uint32(resp[0:4]),
		Type:  cdt.Type(binary.NativeEndian.Uint32(resp[4:8])),
		Count: binary.NativeEndian.Uint32(resp[8:12]),
		Attr:  binary.NativeEndian.Uint16(resp[12:14]),
		Name:  name,
	}
}

// TagList returns metadata for every tag currently in the server.
func (c *Client) TagList() ([]TagInfo, error) {
	resp, err := c.roundTrip(wire.TagList, nil)
	if err != nil {
		return nil, err
	}
	n := binary.NativeEndian.Uint32(resp[0:4])
	out := make([]TagInfo, 0, n)
	off := 4
	for i := uint32(0); i < n; i++ {
		index := binary.NativeEndian.Uint32(resp[off:])
		typ := binary.NativeEndian.Uint32(resp[off+4:])
		count := binary.NativeEndian.Uint32(resp[off+8:])
		attr := binary.NativeEndian.Uint16(resp[off+12:])
		nameLen := int(resp[off+14])
		name := string(resp[off+15 : off+15+nameLen])
		out = append(out, TagInfo{Index: index, Type: cdt.Type(typ), Count: count, Attr: attr, Name: name})
		off += 15 + nameLen
	}
	return out, nil
}

// Read reads size bytes from index at offset.
func (c *Client) Read(index, offset, size uint32) ([]byte, error) {
	payload := make([]byte, 12)
	binary.NativeEndian.PutUint32(payload[0:4], index)
	binary.NativeEndian.PutUint32(payload[4:8], offset)
	binary.NativeEndian.PutUint32(payload[8:12], size)
	return c.roundTrip(wire.TagRead, payload)
}

// Write writes data to index at offset.
func (c *Client) Write(index, offset uint32, data []byte) error {
	payload := make([]byte, 8+len(data))
	binary.NativeEndian.PutUint32(payload[0:4], index)
	binary.NativeEndian.PutUint32(payload[4:8], offset)
	copy(payload[8:], data)
	_, err := c.roundTrip(wire.TagWrite, payload)
	return err
}

// MaskWrite writes data to index at offset, only where mask is set.
func (c *Client) MaskWrite(index, offset uint32, data, mask []byte) error {
	if len(data) != len(mask) {
		return fmt.Errorf("daxclient: mask write: data/mask length mismatch")
	}
	payload := make([]byte, 12+2*len(data))
	binary.NativeEndian.PutUint32(payload[0:4], index)
	binary.NativeEndian.PutUint32(payload[4:8], offset)
	binary.NativeEndian.PutUint32(payload[8:12], uint32(len(data)))
	copy(payload[12:], data)
	copy(payload[12+len(data):], mask)
	_, err := c.roundTrip(wire.TagMWrite, payload)
	return err
}

// --- Compound types ---

// CdtCreate submits a colon-separated CDT spec and returns its type id.
func (c *Client) CdtCreate(spec string) (cdt.Type, error) {
	payload := append([]byte(spec), 0)
	resp, err := c.roundTrip(wire.CdtCreate, payload)
	if err != nil {
		return 0, err
	}
	return cdt.Type(binary.NativeEndian.Uint32(resp)), nil
}

// CdtGetByName resolves a CDT's type id by name.
func (c *Client) CdtGetByName(name string) (cdt.Type, error) {
	payload := append([]byte{0}, append([]byte(name), 0)...)
	resp, err := c.roundTrip(wire.CdtGet, payload)
	if err != nil {
		return 0, err
	}
	return cdt.Type(binary.NativeEndian.Uint32(resp)), nil
}

// CdtGetSpec resolves a CDT's colon-separated spec string by type id.
func (c *Client) CdtGetSpec(typ cdt.Type) (string, error) {
	payload := make([]byte, 5)
	payload[0] = 1
	binary.NativeEndian.PutUint32(payload[1:5], uint32(typ))
	resp, err := c.roundTrip(wire.CdtGet, payload)
	if err != nil {
		return "", err
	}
	spec, _ := cstring(resp)
	return spec, nil
}

func cstring(buf []byte) (string, []byte) {
	for i, b := range buf {
		if b == 0 {
			return string(buf[:i]), buf[i+1:]
		}
	}
	return string(buf), nil
}
