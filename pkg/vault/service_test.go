package vault

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibevault/vibevault/pkg/auth"
	"github.com/vibevault/vibevault/pkg/store"
	"github.com/vibevault/vibevault/pkg/types"
)

func strPtr(s string) *string { return &s }

func newTestService(t *testing.T) (*Service, *store.Store, string) {
	t.Helper()
	st, err := store.OpenPath(filepath.Join(t.TempDir(), "vault.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	sessions := auth.NewManager(st, auth.Options{})
	t.Cleanup(sessions.Stop)

	require.NoError(t, sessions.Register("alice", "correct horse battery staple"))
	token, err := sessions.Unlock("alice", "correct horse battery staple")
	require.NoError(t, err)

	return NewService(st, sessions), st, token
}

func TestSaveListGetRoundTrip(t *testing.T) {
	svc, _, token := newTestService(t)

	payload := types.EntryPayload{
		Username:   strPtr("a"),
		Password:   strPtr("p"),
		TOTPSecret: nil,
		Notes:      strPtr(""),
	}

	entryUUID, err := svc.Save(token, "github.com", payload, nil)
	require.NoError(t, err)
	require.NotEqual(t, "00000000-0000-0000-0000-000000000000", entryUUID.String())

	views, err := svc.List(token)
	require.NoError(t, err)
	require.Len(t, views, 1)

	view := views[0]
	assert.Equal(t, "github.com", view.Label)
	assert.Equal(t, entryUUID, view.EntryUUID)
	require.NotNil(t, view.Payload.Username)
	assert.Equal(t, "a", *view.Payload.Username)
	require.NotNil(t, view.Payload.Password)
	assert.Equal(t, "p", *view.Payload.Password)
	assert.Nil(t, view.Payload.TOTPSecret)
	require.NotNil(t, view.Payload.Notes)
	assert.Equal(t, "", *view.Payload.Notes)

	got, err := svc.Get(token, view.ID)
	require.NoError(t, err)
	assert.Equal(t, view.Payload, got.Payload)
}

func TestSaveValidation(t *testing.T) {
	svc, _, token := newTestService(t)

	_, err := svc.Save(token, "   ", types.EntryPayload{}, nil)
	var verr *types.ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = svc.Save("bogus-token", "github.com", types.EntryPayload{}, nil)
	assert.ErrorIs(t, err, types.ErrSessionExpired)
}

func TestUpdateReencrypts(t *testing.T) {
	svc, st, token := newTestService(t)

	entryUUID, err := svc.Save(token, "github.com", types.EntryPayload{Password: strPtr("old")}, nil)
	require.NoError(t, err)

	before, err := st.GetEntryByUUID(entryUUID)
	require.NoError(t, err)

	require.NoError(t, svc.Update(token, before.ID, "github.com", types.EntryPayload{Password: strPtr("new")}))

	after, err := st.GetEntryByUUID(entryUUID)
	require.NoError(t, err)
	assert.NotEqual(t, before.Nonce, after.Nonce, "update must use a fresh nonce")
	assert.NotEqual(t, before.DataBlob, after.DataBlob)
	assert.Equal(t, before.SyncVersion+1, after.SyncVersion)

	view, err := svc.Get(token, after.ID)
	require.NoError(t, err)
	assert.Equal(t, "new", *view.Payload.Password)
}

func TestDeleteHidesEntry(t *testing.T) {
	svc, _, token := newTestService(t)

	_, err := svc.Save(token, "github.com", types.EntryPayload{}, nil)
	require.NoError(t, err)

	views, err := svc.List(token)
	require.NoError(t, err)
	require.Len(t, views, 1)
	entryID := views[0].ID

	require.NoError(t, svc.Delete(token, entryID))

	views, err = svc.List(token)
	require.NoError(t, err)
	assert.Empty(t, views)

	_, err = svc.Get(token, entryID)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestListDropsCorruptRows(t *testing.T) {
	svc, st, token := newTestService(t)

	_, err := svc.Save(token, "good.example", types.EntryPayload{Password: strPtr("ok")}, nil)
	require.NoError(t, err)
	badUUID, err := svc.Save(token, "bad.example", types.EntryPayload{Password: strPtr("doomed")}, nil)
	require.NoError(t, err)

	// Corrupt the second row's ciphertext behind the service's back.
	bad, err := st.GetEntryByUUID(badUUID)
	require.NoError(t, err)
	corrupted := append([]byte(nil), bad.DataBlob...)
	corrupted[0] ^= 0x01
	require.NoError(t, st.UpdateEntry(bad.ID, corrupted, bad.Nonce, bad.Label))

	views, err := svc.List(token)
	require.NoError(t, err, "a single corrupt row must not fail the listing")
	require.Len(t, views, 1)
	assert.Equal(t, "good.example", views[0].Label)
}

func TestListFailsWhenEveryRowCorrupt(t *testing.T) {
	svc, st, token := newTestService(t)

	entryUUID, err := svc.Save(token, "only.example", types.EntryPayload{}, nil)
	require.NoError(t, err)

	row, err := st.GetEntryByUUID(entryUUID)
	require.NoError(t, err)
	corrupted := append([]byte(nil), row.DataBlob...)
	corrupted[len(corrupted)-1] ^= 0x01
	require.NoError(t, st.UpdateEntry(row.ID, corrupted, row.Nonce, row.Label))

	_, err = svc.List(token)
	assert.ErrorIs(t, err, types.ErrDecrypt)
}

func TestProfileScoping(t *testing.T) {
	svc, _, token := newTestService(t)

	work, err := svc.CreateProfile(token, "Work")
	require.NoError(t, err)

	_, err = svc.Save(token, "corp.example", types.EntryPayload{}, &work.ID)
	require.NoError(t, err)

	// Active profile is still the default; the work entry is not listed.
	views, err := svc.List(token)
	require.NoError(t, err)
	assert.Empty(t, views)

	require.NoError(t, svc.SetActiveProfile(token, work.ID))
	views, err = svc.List(token)
	require.NoError(t, err)
	assert.Len(t, views, 1)

	active, err := svc.ActiveProfile(token)
	require.NoError(t, err)
	assert.Equal(t, work.ID, active.ID)
}
