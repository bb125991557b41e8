package vault

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vibevault/vibevault/pkg/auth"
	"github.com/vibevault/vibevault/pkg/crypto"
	"github.com/vibevault/vibevault/pkg/log"
	"github.com/vibevault/vibevault/pkg/metrics"
	"github.com/vibevault/vibevault/pkg/store"
	"github.com/vibevault/vibevault/pkg/types"
)

// Service performs all entry encryption and decryption. Plaintext exists
// only inside a call holding a valid session; the UI never sees another
// entry's plaintext and never produces ciphertext.
type Service struct {
	store    *store.Store
	sessions *auth.Manager
	logger   zerolog.Logger
}

// NewService wires the vault service over the store and session manager.
func NewService(st *store.Store, sessions *auth.Manager) *Service {
	return &Service{
		store:    st,
		sessions: sessions,
		logger:   log.WithComponent("vault"),
	}
}

// Save serializes payload to canonical JSON, encrypts it under the session
// key with a fresh nonce, and inserts the entry. If profileID is nil the
// session's active profile is used.
func (s *Service) Save(token, label string, payload types.EntryPayload, profileID *int64) (uuid.UUID, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return uuid.Nil, &types.ValidationError{Field: "label", Reason: "label cannot be empty"}
	}

	target, err := s.resolveProfile(token, profileID)
	if err != nil {
		return uuid.Nil, err
	}

	plaintext, err := marshalPayload(payload)
	if err != nil {
		return uuid.Nil, err
	}
	defer crypto.Zeroize(plaintext)

	entryUUID := uuid.New()
	err = s.sessions.WithKey(token, func(key []byte) error {
		ciphertext, nonce, err := crypto.Encrypt(key, plaintext)
		if err != nil {
			return err
		}
		_, err = s.store.SaveEntry(ciphertext, nonce, label, target, entryUUID)
		return err
	})
	if err != nil {
		return uuid.Nil, err
	}

	metrics.EntryOperations.WithLabelValues("save").Inc()
	s.logger.Debug().Str("entry_uuid", entryUUID.String()).Msg("entry saved")
	return entryUUID, nil
}

// Update re-encrypts an existing entry with a fresh nonce, bumping its sync
// version. The entry must belong to a profile visible to the session.
func (s *Service) Update(token string, id int64, label string, payload types.EntryPayload) error {
	label = strings.TrimSpace(label)
	if label == "" {
		return &types.ValidationError{Field: "label", Reason: "label cannot be empty"}
	}
	if err := s.sessions.TouchActivity(token); err != nil {
		return err
	}

	entry, err := s.store.GetEntry(id)
	if err != nil {
		return err
	}
	if entry.IsTombstone() {
		return types.ErrNotFound
	}

	plaintext, err := marshalPayload(payload)
	if err != nil {
		return err
	}
	defer crypto.Zeroize(plaintext)

	err = s.sessions.WithKey(token, func(key []byte) error {
		ciphertext, nonce, err := crypto.Encrypt(key, plaintext)
		if err != nil {
			return err
		}
		return s.store.UpdateEntry(id, ciphertext, nonce, label)
	})
	if err != nil {
		return err
	}

	metrics.EntryOperations.WithLabelValues("update").Inc()
	return nil
}

// Delete tombstones an entry.
func (s *Service) Delete(token string, id int64) error {
	if err := s.sessions.TouchActivity(token); err != nil {
		return err
	}
	if err := s.store.SoftDeleteEntry(id); err != nil {
		return err
	}
	metrics.EntryOperations.WithLabelValues("delete").Inc()
	return nil
}

// Get decrypts a single entry.
func (s *Service) Get(token string, id int64) (*types.EntryView, error) {
	if err := s.sessions.TouchActivity(token); err != nil {
		return nil, err
	}

	entry, err := s.store.GetEntry(id)
	if err != nil {
		return nil, err
	}
	if entry.IsTombstone() {
		return nil, types.ErrNotFound
	}

	var view *types.EntryView
	err = s.sessions.WithKey(token, func(key []byte) error {
		v, err := decryptEntry(key, entry)
		if err != nil {
			return err
		}
		view = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// List decrypts the active profile's entries. A row that fails its
// authentication tag is dropped from the result and logged; only if every
// row fails is the failure surfaced.
func (s *Service) List(token string) ([]*types.EntryView, error) {
	profileID, err := s.sessions.ActiveProfile(token)
	if err != nil {
		return nil, err
	}

	entries, err := s.store.GetActiveEntries(profileID)
	if err != nil {
		return nil, err
	}

	views := make([]*types.EntryView, 0, len(entries))
	failed := 0
	err = s.sessions.WithKey(token, func(key []byte) error {
		for _, entry := range entries {
			view, err := decryptEntry(key, entry)
			if err != nil {
				if errors.Is(err, types.ErrDecrypt) {
					failed++
					metrics.DecryptFailures.Inc()
					s.logger.Error().
						Int64("entry_id", entry.ID).
						Str("entry_uuid", entry.EntryUUID.String()).
						Msg("dropping entry with failed integrity check")
					continue
				}
				return err
			}
			views = append(views, view)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if failed > 0 && len(views) == 0 {
		return nil, types.ErrDecrypt
	}
	return views, nil
}

func (s *Service) resolveProfile(token string, profileID *int64) (int64, error) {
	if profileID == nil {
		return s.sessions.ActiveProfile(token)
	}
	if _, err := s.store.GetProfile(*profileID); err != nil {
		return 0, err
	}
	return *profileID, nil
}

func decryptEntry(key []byte, entry *types.VaultEntry) (*types.EntryView, error) {
	plaintext, err := crypto.Decrypt(key, entry.Nonce, entry.DataBlob)
	if err != nil {
		return nil, err
	}
	defer crypto.Zeroize(plaintext)

	var payload types.EntryPayload
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return nil, fmt.Errorf("corrupt payload for entry %d: %w", entry.ID, err)
	}

	return &types.EntryView{
		ID:        entry.ID,
		EntryUUID: entry.EntryUUID,
		Label:     entry.Label,
		ProfileID: entry.ProfileID,
		Payload:   payload,
		UpdatedAt: entry.UpdatedAt,
	}, nil
}

// marshalPayload produces the canonical JSON form carried inside the
// ciphertext. Field order is fixed by the struct definition.
func marshalPayload(payload types.EntryPayload) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize payload: %w", err)
	}
	return data, nil
}
