package sync

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibevault/vibevault/pkg/auth"
	"github.com/vibevault/vibevault/pkg/ble"
	"github.com/vibevault/vibevault/pkg/store"
	"github.com/vibevault/vibevault/pkg/types"
	"github.com/vibevault/vibevault/pkg/vault"
)

type device struct {
	store    *store.Store
	sessions *auth.Manager
	vault    *vault.Service
	manager  *Manager
	token    string
}

func newDevice(t *testing.T, name string) *device {
	t.Helper()
	st, err := store.OpenPath(filepath.Join(t.TempDir(), name+".db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	sessions := auth.NewManager(st, auth.Options{})
	t.Cleanup(sessions.Stop)

	require.NoError(t, sessions.Register("user-"+name, "master password for "+name))
	token, err := sessions.Unlock("user-"+name, "master password for "+name)
	require.NoError(t, err)

	return &device{
		store:    st,
		sessions: sessions,
		vault:    vault.NewService(st, sessions),
		manager:  NewManager(Config{Store: st, Sessions: sessions, DeviceName: name}),
		token:    token,
	}
}

func strPtr(s string) *string { return &s }

// runSync drives a full peripheral/central session over the loopback
// transport. The peripheral is the sender when mode is push.
func runSync(t *testing.T, peripheral, central *device, mode byte, wrongCode bool) (Snapshot, Snapshot) {
	t.Helper()

	_, pEnd, cEnd := ble.NewLoopback(mode)

	pEngine, err := peripheral.manager.startWithEndpoint(peripheral.token, RolePeripheral, mode, pEnd)
	require.NoError(t, err)
	cEngine, err := central.manager.startWithEndpoint(central.token, RoleCentral, 0, cEnd)
	require.NoError(t, err)

	// Wait for the central to ask for the code, then transcribe it from
	// the peripheral's display.
	waitState(t, cEngine, StateAwaitingCode)
	code := waitPairingCode(t, pEngine)
	if wrongCode {
		code = wrongCodeFor(code)
	}
	require.NoError(t, central.manager.SubmitPairingCode(central.token, code))

	waitDone(t, pEngine)
	waitDone(t, cEngine)
	return pEngine.Snapshot(), cEngine.Snapshot()
}

func wrongCodeFor(code string) string {
	if code == "000000" {
		return "000001"
	}
	return "000000"
}

func waitState(t *testing.T, e *engine, want State) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		snap := e.Snapshot()
		if snap.State == want {
			return
		}
		if snap.State == StateError {
			t.Fatalf("engine reached error state %q while waiting for %q", snap.Error, want)
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("engine never reached state %q, stuck in %q", want, e.Snapshot().State)
}

func waitPairingCode(t *testing.T, e *engine) string {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if code := e.Snapshot().PairingCode; code != "" {
			return code
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("peripheral never displayed a pairing code")
	return ""
}

func waitDone(t *testing.T, e *engine) {
	t.Helper()
	select {
	case <-e.doneCh:
	case <-time.After(15 * time.Second):
		t.Fatalf("engine never finished, state %q", e.Snapshot().State)
	}
}

func TestSyncPushTransfersEntries(t *testing.T) {
	x := newDevice(t, "desktop")
	y := newDevice(t, "mobile")

	_, err := x.vault.Save(x.token, "github.com", types.EntryPayload{
		Username: strPtr("octocat"),
		Password: strPtr("hunter2"),
	}, nil)
	require.NoError(t, err)
	_, err = x.vault.Save(x.token, "mail.example", types.EntryPayload{Password: strPtr("s3cret")}, nil)
	require.NoError(t, err)

	pSnap, cSnap := runSync(t, x, y, ble.ModePush, false)

	assert.Equal(t, StateComplete, pSnap.State)
	assert.Equal(t, StateComplete, cSnap.State)
	assert.Equal(t, 2, pSnap.EntriesSent)
	assert.Equal(t, 2, cSnap.EntriesReceived)

	// The receiver decrypts the merged entries with its own vault key.
	views, err := y.vault.List(y.token)
	require.NoError(t, err)
	require.Len(t, views, 2)

	labels := map[string]bool{}
	for _, v := range views {
		labels[v.Label] = true
	}
	assert.True(t, labels["github.com"])
	assert.True(t, labels["mail.example"])

	// Sync history and pairing records exist on both ends.
	for _, d := range []*device{x, y} {
		history, err := d.store.GetSyncHistory()
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, types.SyncStatusSuccess, history[0].Status)

		devices, err := d.store.GetPairedDevices()
		require.NoError(t, err)
		assert.Len(t, devices, 1)
		require.NotNil(t, devices[0].LastSyncAt)
	}
}

func TestSyncSoftDeletePropagates(t *testing.T) {
	x := newDevice(t, "desktop")
	y := newDevice(t, "mobile")

	entryUUID, err := x.vault.Save(x.token, "doomed.example", types.EntryPayload{Password: strPtr("p")}, nil)
	require.NoError(t, err)

	// First sync replicates the live entry to Y.
	pSnap, cSnap := runSync(t, x, y, ble.ModePush, false)
	require.Equal(t, StateComplete, pSnap.State)
	require.Equal(t, StateComplete, cSnap.State)

	onY, err := y.store.GetEntryByUUID(entryUUID)
	require.NoError(t, err)
	require.False(t, onY.IsTombstone())

	// X deletes; the tombstone carries a higher version.
	onX, err := x.store.GetEntryByUUID(entryUUID)
	require.NoError(t, err)
	require.NoError(t, x.vault.Delete(x.token, onX.ID))

	pSnap, cSnap = runSync(t, x, y, ble.ModePush, false)
	require.Equal(t, StateComplete, pSnap.State)
	require.Equal(t, StateComplete, cSnap.State)

	onY, err = y.store.GetEntryByUUID(entryUUID)
	require.NoError(t, err)
	assert.True(t, onY.IsTombstone(), "tombstone overwrote the live copy")

	views, err := y.vault.List(y.token)
	require.NoError(t, err)
	assert.Empty(t, views)

	// Syncing back Y -> X with no changes leaves X untouched.
	beforeX, err := x.store.GetEntryByUUID(entryUUID)
	require.NoError(t, err)

	pSnap, cSnap = runSync(t, y, x, ble.ModePush, false)
	require.Equal(t, StateComplete, pSnap.State)
	require.Equal(t, StateComplete, cSnap.State)

	afterX, err := x.store.GetEntryByUUID(entryUUID)
	require.NoError(t, err)
	assert.Equal(t, beforeX.SyncVersion, afterX.SyncVersion)
	assert.True(t, afterX.IsTombstone())
}

func TestSyncPairingCodeMismatchAborts(t *testing.T) {
	x := newDevice(t, "desktop")
	y := newDevice(t, "mobile")

	_, err := x.vault.Save(x.token, "secret.example", types.EntryPayload{Password: strPtr("p")}, nil)
	require.NoError(t, err)

	pSnap, cSnap := runSync(t, x, y, ble.ModePush, true)

	assert.Equal(t, StateError, pSnap.State)
	assert.Equal(t, types.SyncCryptoMismatch, pSnap.ErrorKind)
	assert.Equal(t, StateError, cSnap.State)
	assert.Equal(t, types.SyncCryptoMismatch, cSnap.ErrorKind)

	// No data crossed the link.
	entries, err := y.store.GetAllEntriesSince(0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSyncChunkCorruptionFailsTransfer(t *testing.T) {
	x := newDevice(t, "desktop")
	y := newDevice(t, "mobile")

	// Enough payload to span several chunks.
	bigNotes := make([]byte, 4*ble.MaxChunkData)
	for i := range bigNotes {
		bigNotes[i] = byte('a' + i%26)
	}
	notes := string(bigNotes)
	_, err := x.vault.Save(x.token, "big.example", types.EntryPayload{Notes: &notes}, nil)
	require.NoError(t, err)

	link, pEnd, cEnd := ble.NewLoopback(ble.ModePush)
	link.Corrupt(func(chunkIndex int, chunk []byte) []byte {
		if chunkIndex == 3 && len(chunk) > 8 {
			chunk[8] ^= 0x01
		}
		return chunk
	})

	pEngine, err := x.manager.startWithEndpoint(x.token, RolePeripheral, ble.ModePush, pEnd)
	require.NoError(t, err)
	cEngine, err := y.manager.startWithEndpoint(y.token, RoleCentral, 0, cEnd)
	require.NoError(t, err)

	waitState(t, cEngine, StateAwaitingCode)
	require.NoError(t, y.manager.SubmitPairingCode(y.token, waitPairingCode(t, pEngine)))

	waitDone(t, pEngine)
	waitDone(t, cEngine)

	cSnap := cEngine.Snapshot()
	assert.Equal(t, StateError, cSnap.State)
	assert.Equal(t, types.SyncFramingError, cSnap.ErrorKind)

	pSnap := pEngine.Snapshot()
	assert.Equal(t, StateError, pSnap.State)

	// Both ends log the failed session.
	history, err := y.store.GetSyncHistory()
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, types.SyncStatusFailed, history[0].Status)
}

func TestSyncBusyGuard(t *testing.T) {
	x := newDevice(t, "desktop")
	y := newDevice(t, "mobile")

	_, pEnd, cEnd := ble.NewLoopback(ble.ModePush)
	_ = cEnd

	first, err := x.manager.startWithEndpoint(x.token, RolePeripheral, ble.ModePush, pEnd)
	require.NoError(t, err)

	_, otherEnd, _ := ble.NewLoopback(ble.ModePush)
	_, err = x.manager.startWithEndpoint(x.token, RolePeripheral, ble.ModePush, otherEnd)
	require.Error(t, err)
	kind, ok := types.SyncErrKind(err)
	require.True(t, ok)
	assert.Equal(t, types.SyncBusy, kind)

	// A second device is unaffected.
	require.NoError(t, y.manager.Cancel(y.token))

	first.cancel()
	waitDone(t, first)
}

func TestSyncCancel(t *testing.T) {
	x := newDevice(t, "desktop")

	_, pEnd, _ := ble.NewLoopback(ble.ModePush)
	eng, err := x.manager.startWithEndpoint(x.token, RolePeripheral, ble.ModePush, pEnd)
	require.NoError(t, err)

	waitState(t, eng, StateDisplayCode)
	require.NoError(t, x.manager.Cancel(x.token))
	waitDone(t, eng)

	snap := eng.Snapshot()
	assert.Equal(t, StateError, snap.State)
	assert.Equal(t, types.SyncCancelled, snap.ErrorKind)
}

func TestSyncPullDirection(t *testing.T) {
	x := newDevice(t, "desktop")
	y := newDevice(t, "mobile")

	// Pull mode: the peripheral receives, the central sends.
	_, err := y.vault.Save(y.token, "from-mobile.example", types.EntryPayload{Password: strPtr("p")}, nil)
	require.NoError(t, err)

	pSnap, cSnap := runSync(t, x, y, ble.ModePull, false)

	assert.Equal(t, StateComplete, pSnap.State)
	assert.Equal(t, StateComplete, cSnap.State)
	assert.Equal(t, types.SyncDirectionPull, pSnap.Direction)
	assert.Equal(t, types.SyncDirectionPush, cSnap.Direction)
	assert.Equal(t, 1, cSnap.EntriesSent)
	assert.Equal(t, 1, pSnap.EntriesReceived)

	views, err := x.vault.List(x.token)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "from-mobile.example", views[0].Label)
}
