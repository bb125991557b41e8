package vault

import (
	"github.com/vibevault/vibevault/pkg/types"
)

// Profile operations are thin session-checked passthroughs to the store;
// the guards (unique names, no destroying populated or last profiles) live
// there.

// CreateProfile adds a profile.
func (s *Service) CreateProfile(token, name string) (*types.Profile, error) {
	if err := s.sessions.TouchActivity(token); err != nil {
		return nil, err
	}
	return s.store.CreateProfile(name)
}

// Profiles lists all profiles.
func (s *Service) Profiles(token string) ([]*types.Profile, error) {
	if err := s.sessions.TouchActivity(token); err != nil {
		return nil, err
	}
	return s.store.GetProfiles()
}

// RenameProfile renames a profile.
func (s *Service) RenameProfile(token string, id int64, name string) error {
	if err := s.sessions.TouchActivity(token); err != nil {
		return err
	}
	return s.store.RenameProfile(id, name)
}

// DeleteProfile destroys an empty, non-last profile.
func (s *Service) DeleteProfile(token string, id int64) error {
	if err := s.sessions.TouchActivity(token); err != nil {
		return err
	}
	if err := s.store.DeleteProfile(id); err != nil {
		return err
	}

	// If the destroyed profile was active, fall back to the default.
	active, err := s.sessions.ActiveProfile(token)
	if err != nil {
		return err
	}
	if active == id {
		fallback, err := s.store.EnsureDefaultProfile()
		if err != nil {
			return err
		}
		return s.sessions.SetActiveProfile(token, fallback.ID)
	}
	return nil
}

// ActiveProfile returns the session's active profile.
func (s *Service) ActiveProfile(token string) (*types.Profile, error) {
	id, err := s.sessions.ActiveProfile(token)
	if err != nil {
		return nil, err
	}
	return s.store.GetProfile(id)
}

// SetActiveProfile switches the session to another profile.
func (s *Service) SetActiveProfile(token string, id int64) error {
	return s.sessions.SetActiveProfile(token, id)
}
