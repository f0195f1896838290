package bus

import (
	"testing"
	"time"

	"github.com/opendax/daxd/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotificationRoundTrip(t *testing.T) {
	n := events.Notification{Module: 3, TagID: 7, EventID: 2, Data: []byte{0xAA, 0xBB, 0xCC}}
	buf := marshalNotification(n)
	got, err := unmarshalNotification(buf)
	require.NoError(t, err)
	assert.Equal(t, n, got)
}

func TestNotificationRoundTripNoData(t *testing.T) {
	n := events.Notification{Module: 1, TagID: 1, EventID: 1}
	buf := marshalNotification(n)
	got, err := unmarshalNotification(buf)
	require.NoError(t, err)
	assert.Equal(t, n, got)
	assert.Empty(t, got.Data)
}

func TestUnmarshalRejectsShortPayload(t *testing.T) {
	_, err := unmarshalNotification([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestPublishSubscribe(t *testing.T) {
	b, err := Start(0)
	require.NoError(t, err)
	defer b.Close()

	received := make(chan events.Notification, 1)
	require.NoError(t, b.Subscribe(func(n events.Notification) { received <- n }))

	want := events.Notification{Module: 5, TagID: 9, EventID: 1, Data: []byte{1}}
	b.Publish(want)

	select {
	case got := <-received:
		assert.Equal(t, want, got)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notification")
	}
}
