package sync

import (
	"bytes"
	"errors"

	"github.com/rs/zerolog"

	"github.com/vibevault/vibevault/pkg/crypto"
	"github.com/vibevault/vibevault/pkg/log"
	"github.com/vibevault/vibevault/pkg/metrics"
	"github.com/vibevault/vibevault/pkg/store"
	"github.com/vibevault/vibevault/pkg/types"
)

// MergeResult describes what one inbound envelope did to the local store.
type MergeResult string

const (
	MergeInserted    MergeResult = "inserted"
	MergeOverwritten MergeResult = "overwritten"
	MergeIgnored     MergeResult = "ignored"
)

// Merger applies inbound envelopes with last-writer-wins conflict
// resolution on sync_version. Both ends of a sync run the identical rule,
// so the merged state converges regardless of direction.
type Merger struct {
	store     *store.Store
	profileID int64
	logger    zerolog.Logger
}

// NewMerger builds a merger ingesting into the given profile.
func NewMerger(st *store.Store, profileID int64) *Merger {
	return &Merger{
		store:     st,
		profileID: profileID,
		logger:    log.WithComponent("merge"),
	}
}

// Apply ingests one envelope: decrypt under the session key, re-encrypt
// under the local vault key with a fresh nonce, then upsert if the
// envelope wins. Each call is one store transaction; a failure leaves
// previously applied envelopes in place.
func (m *Merger) Apply(env *Envelope, sessionKey, vaultKey []byte) (MergeResult, error) {
	local, err := m.store.GetEntryByUUID(env.EntryUUID)
	switch {
	case errors.Is(err, types.ErrNotFound):
		local = nil
	case err != nil:
		return "", err
	}

	if local != nil && !Wins(env, local) {
		metrics.SyncMergeResults.WithLabelValues(string(MergeIgnored)).Inc()
		return MergeIgnored, nil
	}

	row := &types.VaultEntry{
		EntryUUID:   env.EntryUUID,
		Label:       env.Label,
		ProfileID:   m.profileID,
		UpdatedAt:   env.UpdatedAt,
		SyncVersion: env.SyncVersion,
	}
	if local != nil {
		row.ProfileID = local.ProfileID
	}

	if env.Tombstone {
		deletedAt := env.UpdatedAt
		row.DeletedAt = &deletedAt
	} else {
		plaintext, err := crypto.Decrypt(sessionKey, env.Nonce, env.Ciphertext)
		if err != nil {
			return "", types.NewSyncError(types.SyncCryptoMismatch, err)
		}

		ciphertext, nonce, err := crypto.Encrypt(vaultKey, plaintext)
		crypto.Zeroize(plaintext)
		if err != nil {
			return "", err
		}
		row.DataBlob = ciphertext
		row.Nonce = nonce
	}

	if err := m.store.UpsertByUUID(row); err != nil {
		return "", err
	}

	result := MergeInserted
	if local != nil {
		result = MergeOverwritten
	}
	metrics.SyncMergeResults.WithLabelValues(string(result)).Inc()
	m.logger.Debug().
		Str("entry_uuid", env.EntryUUID.String()).
		Uint64("sync_version", env.SyncVersion).
		Bool("tombstone", env.Tombstone).
		Str("result", string(result)).
		Msg("envelope merged")
	return result, nil
}

// Wins reports whether the inbound envelope overwrites the local row:
// strictly greater sync_version wins; equal versions tie-break on
// updated_at, then on the raw UUID bytes, which keeps the rule stable and
// symmetric on both ends. The incoming version and updated_at are written
// verbatim on a win; the receiver bumps neither.
func Wins(env *Envelope, local *types.VaultEntry) bool {
	if env.SyncVersion != local.SyncVersion {
		return env.SyncVersion > local.SyncVersion
	}

	envAt := env.UpdatedAt.UTC()
	localAt := local.UpdatedAt.UTC()
	if !envAt.Equal(localAt) {
		return envAt.After(localAt)
	}

	// Same version, same instant: the replicas are equivalent. The UUID
	// comparison keeps the decision identical on both ends.
	return bytes.Compare(env.EntryUUID[:], local.EntryUUID[:]) > 0
}
