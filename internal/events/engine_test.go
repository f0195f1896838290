package events

import (
	"testing"

	"github.com/opendax/daxd/internal/cdt"
	"github.com/opendax/daxd/internal/tagstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	notifications []Notification
}

func (p *recordingPublisher) Publish(n Notification) { p.notifications = append(p.notifications, n) }

func newRig() (*tagstore.Store, *Engine, *recordingPublisher) {
	reg := cdt.NewRegistry()
	store := tagstore.NewStore(reg)
	pub := &recordingPublisher{}
	eng := NewEngine(store, pub)
	store.SetHooks(hookAdapter{eng})
	return store, eng, pub
}

// hookAdapter wires tagstore.Hooks to the event engine for tests; the
// dispatcher's real Hooks implementation also chains mapping and retention.
type hookAdapter struct{ eng *Engine }

func (h hookAdapter) OnWrite(index uint32, offset, size uint32) { h.eng.Check(index, offset, size) }
func (h hookAdapter) OnTagAdded(uint32, cdt.Type, uint32, tagstore.Attr, string) {}
func (h hookAdapter) OnTagDeleted(uint32, string, tagstore.Attr) {}
func (h hookAdapter) OnRetainWrite(uint32) {}

// Scenario 4: CHANGE fires once across two identical writes.
func TestChangeFiresOnceOnRepeatedWrite(t *testing.T) {
	store, eng, pub := newRig()
	idx, err := store.Add(1, "t", cdt.DINT, 1, 0)
	require.NoError(t, err)

	_, err = eng.Add(idx, Change, 0, 0, 1, 32, uint32(cdt.DINT), nil, 99, Options{})
	require.NoError(t, err)

	require.NoError(t, store.Write(1, idx, 0, []byte{1, 0, 0, 0}))
	require.NoError(t, store.Write(1, idx, 0, []byte{1, 0, 0, 0}))

	assert.Len(t, pub.notifications, 1)
	assert.EqualValues(t, 99, pub.notifications[0].Module)
}

func TestWriteEventAlwaysFiresOnIntersection(t *testing.T) {
	store, eng, pub := newRig()
	idx, err := store.Add(1, "t", cdt.DINT, 1, 0)
	require.NoError(t, err)
	_, err = eng.Add(idx, Write, 0, 0, 1, 32, uint32(cdt.DINT), nil, 1, Options{})
	require.NoError(t, err)

	require.NoError(t, store.Write(1, idx, 0, []byte{1, 0, 0, 0}))
	require.NoError(t, store.Write(1, idx, 0, []byte{1, 0, 0, 0}))
	assert.Len(t, pub.notifications, 2)
}

func TestSetResetTransitions(t *testing.T) {
	store, eng, pub := newRig()
	idx, err := store.Add(1, "b", cdt.BOOL, 8, 0)
	require.NoError(t, err)

	_, err = eng.Add(idx, Set, 0, 0, 1, 1, uint32(cdt.BOOL), nil, 1, Options{})
	require.NoError(t, err)
	_, err = eng.Add(idx, Reset, 0, 0, 1, 1, uint32(cdt.BOOL), nil, 2, Options{})
	require.NoError(t, err)

	require.NoError(t, store.Write(1, idx, 0, []byte{0x01})) // 0->1: SET fires
	require.NoError(t, store.Write(1, idx, 0, []byte{0x00})) // 1->0: RESET fires

	require.Len(t, pub.notifications, 2)
	assert.EqualValues(t, 1, pub.notifications[0].Module)
	assert.EqualValues(t, 2, pub.notifications[1].Module)
}

func TestDeadbandFiresOnThresholdCross(t *testing.T) {
	store, eng, pub := newRig()
	idx, err := store.Add(1, "d", cdt.DINT, 1, 0)
	require.NoError(t, err)

	payload := make([]byte, 4)
	payload[0] = 5 // threshold 5
	_, err = eng.Add(idx, Deadband, 0, 0, 1, 32, uint32(cdt.DINT), payload, 1, Options{})
	require.NoError(t, err)

	require.NoError(t, store.Write(1, idx, 0, []byte{2, 0, 0, 0})) // |2-0| = 2 < 5
	assert.Len(t, pub.notifications, 0)

	require.NoError(t, store.Write(1, idx, 0, []byte{10, 0, 0, 0})) // |10-0| = 10 >= 5
	assert.Len(t, pub.notifications, 1)
}

func TestEventDelRemovesSubscription(t *testing.T) {
	store, eng, _ := newRig()
	idx, err := store.Add(1, "t", cdt.DINT, 1, 0)
	require.NoError(t, err)

	id, err := eng.Add(idx, Write, 0, 0, 1, 32, uint32(cdt.DINT), nil, 1, Options{})
	require.NoError(t, err)

	require.NoError(t, eng.Del(idx, id, 1))
	err = eng.Del(idx, id, 1)
	require.Error(t, err)
}

func TestTagDeleteTearsDownEvents(t *testing.T) {
	store, eng, _ := newRig()
	idx, err := store.Add(1, "t", cdt.DINT, 1, 0)
	require.NoError(t, err)
	_, err = eng.Add(idx, Write, 0, 0, 1, 32, uint32(cdt.DINT), nil, 1, Options{})
	require.NoError(t, err)

	require.NoError(t, store.Del(idx))
	assert.Empty(t, eng.byTag[idx])
}
