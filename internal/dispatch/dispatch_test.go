package dispatch_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/opendax/daxd/internal/cdt"
	"github.com/opendax/daxd/internal/config"
	"github.com/opendax/daxd/internal/dispatch"
	"github.com/opendax/daxd/internal/events"
	"github.com/opendax/daxd/internal/retention"
	"github.com/opendax/daxd/internal/retention/flatfile"
	"github.com/opendax/daxd/pkg/daxclient"
)

// nullBus satisfies dispatch.Publisher without a live NATS connection;
// tests that need delivered notifications call srv.Notify directly instead
// of going through the bus, exercising the same core-loop path production
// traffic takes via WireBus.
type nullBus struct{}

func (nullBus) Publish(events.Notification) {}

// newTestServer brings up a Server listening on a unix socket under a fresh
// temp directory, returning the socket path and a stop func.
func newTestServer(t *testing.T) (sockPath string, srv *dispatch.Server, stop func()) {
	t.Helper()

	dir := t.TempDir()
	sockPath = filepath.Join(dir, "daxd.sock")

	ff, err := flatfile.Open(filepath.Join(dir, "retain.dat"))
	require.NoError(t, err)

	cfg := config.Default()
	cfg.SocketName = sockPath
	cfg.ServerIP = "127.0.0.1"
	cfg.ServerPort = 0

	ret := retention.NewEngine(retention.NewFlatfileBackend(ff))
	srv = dispatch.New(cfg, nullBus{}, ret, prometheus.NewRegistry())
	require.NoError(t, srv.Bootstrap())
	require.NoError(t, ret.Restore(srv.CDTs, srv.Store))

	listeners, err := srv.Listen()
	require.NoError(t, err)

	go srv.Run()
	go srv.Serve(listeners)

	stop = func() {
		listeners.Close()
		srv.Stop()
		ff.Close()
	}
	return sockPath, srv, stop
}

func dial(t *testing.T, sock, name string) *daxclient.Client {
	t.Helper()
	c, err := daxclient.Register("unix", sock, name, time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestRegisterAssignsModuleIDAndStatusTag(t *testing.T) {
	sock, srv, stop := newTestServer(t)
	defer stop()

	c := dial(t, sock, "plc1")
	require.NotZero(t, c.ModuleID())
	require.False(t, c.RegInfo().Mismatched())

	info, err := srv.Store.GetByName("_mplc1")
	require.NoError(t, err)
	require.Equal(t, c.ModuleID(), info.OwnerFD)
}

func TestTagAddReadWrite(t *testing.T) {
	sock, _, stop := newTestServer(t)
	defer stop()
	c := dial(t, sock, "writer")

	idx, err := c.TagAdd("temperature", cdt.DINT, 1, 0)
	require.NoError(t, err)
	require.NotZero(t, idx)

	require.NoError(t, c.Write(idx, 0, []byte{42, 0, 0, 0}))

	got, err := c.Read(idx, 0, 4)
	require.NoError(t, err)
	require.Equal(t, []byte{42, 0, 0, 0}, got)

	info, err := c.TagByIndex(idx)
	require.NoError(t, err)
	require.Equal(t, "temperature", info.Name)
	require.Equal(t, cdt.DINT, info.Type)
}

func TestTagAddDuplicateNameFails(t *testing.T) {
	sock, _, stop := newTestServer(t)
	defer stop()
	c := dial(t, sock, "writer")

	_, err := c.TagAdd("dup", cdt.BOOL, 1, 0)
	require.NoError(t, err)
	_, err = c.TagAdd("dup", cdt.BOOL, 1, 0)
	require.Error(t, err)
}

func TestTagDelThenReadFails(t *testing.T) {
	sock, _, stop := newTestServer(t)
	defer stop()
	c := dial(t, sock, "writer")

	idx, err := c.TagAdd("scratch", cdt.BYTE, 4, 0)
	require.NoError(t, err)
	require.NoError(t, c.TagDel(idx))

	_, err = c.Read(idx, 0, 1)
	require.Error(t, err)
}

func TestMaskWriteOnlyTouchesSetBits(t *testing.T) {
	sock, _, stop := newTestServer(t)
	defer stop()
	c := dial(t, sock, "writer")

	idx, err := c.TagAdd("flags", cdt.BYTE, 4, 0)
	require.NoError(t, err)
	require.NoError(t, c.Write(idx, 0, []byte{0xFF, 0xFF, 0xFF, 0xFF}))

	require.NoError(t, c.MaskWrite(idx, 0, []byte{0x00, 0x00, 0x00, 0x00}, []byte{0xFF, 0x00, 0x00, 0x00}))

	got, err := c.Read(idx, 0, 4)
	require.NoError(t, err)
	require.Equal(t, []byte{0x00, 0xFF, 0xFF, 0xFF}, got)
}

func TestTagListIncludesAddedTag(t *testing.T) {
	sock, _, stop := newTestServer(t)
	defer stop()
	c := dial(t, sock, "writer")

	_, err := c.TagAdd("listed", cdt.INT, 2, 0)
	require.NoError(t, err)

	tags, err := c.TagList()
	require.NoError(t, err)

	var found bool
	for _, tg := range tags {
		if tg.Name == "listed" {
			found = true
			require.Equal(t, cdt.INT, tg.Type)
			require.Equal(t, uint32(2), tg.Count)
		}
	}
	require.True(t, found)
}

func TestCdtCreateAndResolve(t *testing.T) {
	sock, _, stop := newTestServer(t)
	defer stop()
	c := dial(t, sock, "writer")

	typ, err := c.CdtCreate("point:x,DINT,1:y,DINT,1")
	require.NoError(t, err)
	require.True(t, typ.IsCDT())

	byName, err := c.CdtGetByName("point")
	require.NoError(t, err)
	require.Equal(t, typ, byName)

	spec, err := c.CdtGetSpec(typ)
	require.NoError(t, err)
	require.Equal(t, "point:x,DINT,1:y,DINT,1", spec)
}

func TestGroupReadWriteAndAtomicOp(t *testing.T) {
	sock, _, stop := newTestServer(t)
	defer stop()
	c := dial(t, sock, "writer")

	idxA, err := c.TagAdd("ga", cdt.DINT, 1, 0)
	require.NoError(t, err)
	idxB, err := c.TagAdd("gb", cdt.DINT, 1, 0)
	require.NoError(t, err)

	members := []daxclient.Handle{
		{Index: idxA, Count: 1, Size: 32, Type: cdt.DINT},
		{Index: idxB, Count: 1, Size: 32, Type: cdt.DINT},
	}
	gid, err := c.GroupAdd(members)
	require.NoError(t, err)

	require.NoError(t, c.GroupWrite(gid, []byte{1, 0, 0, 0, 2, 0, 0, 0}))

	got, err := c.GroupRead(gid)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 0, 0, 0, 2, 0, 0, 0}, got)

	require.NoError(t, c.AtomicOp(daxclient.Handle{Index: idxA, Count: 1, Size: 32, Type: cdt.DINT}, daxclient.AtomicInc, nil))
	v, err := c.Read(idxA, 0, 4)
	require.NoError(t, err)
	require.Equal(t, []byte{2, 0, 0, 0}, v)

	require.NoError(t, c.GroupDel(gid))
}

func TestOverrideSetActivatesValue(t *testing.T) {
	sock, _, stop := newTestServer(t)
	defer stop()
	c := dial(t, sock, "writer")

	idx, err := c.TagAdd("ovr", cdt.DINT, 1, 0)
	require.NoError(t, err)
	require.NoError(t, c.Write(idx, 0, []byte{1, 0, 0, 0}))

	require.NoError(t, c.OverrideAdd(idx, 0, []byte{9, 0, 0, 0}, []byte{0xFF, 0xFF, 0xFF, 0xFF}))
	require.NoError(t, c.OverrideSet(idx, true))

	got, err := c.Read(idx, 0, 4)
	require.NoError(t, err)
	require.Equal(t, []byte{9, 0, 0, 0}, got)

	data, mask, err := c.OverrideGet(idx)
	require.NoError(t, err)
	require.Equal(t, []byte{9, 0, 0, 0}, data)
	require.Equal(t, []byte{0xFF, 0xFF, 0xFF, 0xFF}, mask)

	require.NoError(t, c.OverrideSet(idx, false))
	got, err = c.Read(idx, 0, 4)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 0, 0, 0}, got)
}

func TestMappingPropagatesWrite(t *testing.T) {
	sock, _, stop := newTestServer(t)
	defer stop()
	c := dial(t, sock, "writer")

	src, err := c.TagAdd("src", cdt.DINT, 1, 0)
	require.NoError(t, err)
	dst, err := c.TagAdd("dst", cdt.DINT, 1, 0)
	require.NoError(t, err)

	_, err = c.MapAdd(
		daxclient.Handle{Index: src, Count: 1, Size: 32, Type: cdt.DINT},
		daxclient.Handle{Index: dst, Count: 1, Size: 32, Type: cdt.DINT},
	)
	require.NoError(t, err)

	require.NoError(t, c.Write(src, 0, []byte{7, 0, 0, 0}))

	got, err := c.Read(dst, 0, 4)
	require.NoError(t, err)
	require.Equal(t, []byte{7, 0, 0, 0}, got)
}

// TestAsyncNotificationDeliveredOnEvent exercises the whole event-to-socket
// path: a WRITE subscription fires on the core loop, srv.Notify re-enqueues
// it, and the core loop writes an EvntNotify frame on the module's async
// connection - the same path WireBus drives in production, minus the NATS
// hop.
func TestAsyncNotificationDeliveredOnEvent(t *testing.T) {
	sock, srv, stop := newTestServer(t)
	defer stop()

	c := dial(t, sock, "watcher")
	evConn, err := c.OpenEvents("unix", sock)
	require.NoError(t, err)
	defer evConn.Close()

	idx, err := c.TagAdd("watched", cdt.DINT, 1, 0)
	require.NoError(t, err)

	evID, err := c.EventAdd(idx, 0, 1, uint32(cdt.DINT), 32, 0, 0 /* events.Write */, nil, daxclient.EventOptions{SendData: true})
	require.NoError(t, err)
	require.NotZero(t, evID)

	info, err := c.EventGet(idx, evID)
	require.NoError(t, err)
	require.Equal(t, uint32(1), info.Count)
	require.Equal(t, uint32(32), info.Size)
	require.True(t, info.Options.SendData)

	writer := dial(t, sock, "writer")
	require.NoError(t, writer.Write(idx, 0, []byte{5, 0, 0, 0}))

	done := make(chan struct{})
	var gotNote daxclient.Notification
	var gotErr error
	go func() {
		gotNote, gotErr = evConn.Next()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for async notification")
	}

	require.NoError(t, gotErr)
	require.Equal(t, idx, gotNote.TagID)
	require.Equal(t, evID, gotNote.EventID)
	require.Equal(t, []byte{5, 0, 0, 0}, gotNote.Data)

	_ = srv // keep srv referenced for readability of future assertions
}

func TestModuleDisconnectClosesBothSockets(t *testing.T) {
	sock, srv, stop := newTestServer(t)
	defer stop()

	c := dial(t, sock, "dropper")
	id := c.ModuleID()

	evConn, err := c.OpenEvents("unix", sock)
	require.NoError(t, err)

	require.NoError(t, c.Close())

	// The async socket should observe EOF shortly after the sync socket's
	// disconnect propagates through the core loop and unregister() tears
	// down the whole module.
	errCh := make(chan error, 1)
	go func() {
		_, err := evConn.Next()
		errCh <- err
	}()

	select {
	case err := <-errCh:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("async socket was not closed after sync disconnect")
	}

	require.Eventually(t, func() bool {
		_, err := srv.Store.GetByName("_mdropper")
		return err != nil
	}, 2*time.Second, 10*time.Millisecond)

	_ = id
}
