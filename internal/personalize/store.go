package personalize

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/cinemind/cinemind/internal/logging"
)

const profileKeyPrefix = "profile:"

// Store persists preference profiles in BadgerDB. A user with no stored
// profile gets a fresh empty one; the zero profile is a valid no-op for
// boosting.
type Store struct {
	db *badger.DB
}

// OpenStore opens (creating if needed) the profile database.
func OpenStore(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).
		WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("personalize: opening profile store: %w", err)
	}
	logger := logging.Component("profiles")
	logger.Info().Str("dir", dir).Msg("profile store opened")
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get loads a user's profile, returning a fresh empty profile when none
// is stored yet.
func (s *Store) Get(userID string) (*Profile, error) {
	var profile *Profile
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(profileKeyPrefix + userID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var p Profile
			if err := json.Unmarshal(val, &p); err != nil {
				return fmt.Errorf("decoding profile: %w", err)
			}
			profile = &p
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("personalize: loading profile %s: %w", userID, err)
	}
	if profile == nil {
		return NewProfile(userID), nil
	}
	profile.ensureMaps()
	return profile, nil
}

// Put stores a profile.
func (s *Store) Put(profile *Profile) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("personalize: encoding profile %s: %w", profile.UserID, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(profileKeyPrefix+profile.UserID), data)
	})
	if err != nil {
		return fmt.Errorf("personalize: storing profile %s: %w", profile.UserID, err)
	}
	return nil
}

// Update loads a profile, applies fn and stores the result. Badger's
// transaction only covers the write; concurrent updates to the same user
// are last-writer-wins, acceptable for single-user preference data.
func (s *Store) Update(userID string, fn func(*Profile) error) (*Profile, error) {
	profile, err := s.Get(userID)
	if err != nil {
		return nil, err
	}
	if err := fn(profile); err != nil {
		return nil, err
	}
	if err := s.Put(profile); err != nil {
		return nil, err
	}
	return profile, nil
}
