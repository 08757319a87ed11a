// Package moderation holds the process-wide user moderation state: the admin
// set, the banned set, and the set of every user the bot has ever seen. The
// state is intentionally in-memory only and is lost on restart.
package moderation

import (
	"errors"
	"sort"
	"sync"
)

var (
	// ErrNotAdmin is returned when an admin-only operation is attempted by a
	// non-admin.
	ErrNotAdmin = errors.New("caller is not an admin")
	// ErrNotOwner is returned when an owner-only operation is attempted by a
	// non-owner.
	ErrNotOwner = errors.New("caller is not the owner")
	// ErrTargetOwner is returned when an operation targets the owner.
	ErrTargetOwner = errors.New("the owner cannot be targeted")
	// ErrTargetSelf is returned when a caller tries to ban themselves.
	ErrTargetSelf = errors.New("cannot target yourself")
)

// Stats is a snapshot of the moderation counters.
type Stats struct {
	Known  int
	Banned int
	Active int // known minus banned
}

// Store guards the three user sets behind a single lock. Writes are rare
// (admin commands), so coarse-grained locking is fine.
//
// Bans and admin rights are independent: banning an admin does not demote
// them, it just makes the ban gate swallow everything they send until they
// are unbanned.
type Store struct {
	mu      sync.RWMutex
	ownerID int64
	admins  map[int64]struct{}
	banned  map[int64]struct{}
	known   map[int64]struct{}
}

// NewStore creates a Store with the owner seeded as an admin. The owner can
// never be banned or lose admin rights.
func NewStore(ownerID int64) *Store {
	s := &Store{
		ownerID: ownerID,
		admins:  make(map[int64]struct{}),
		banned:  make(map[int64]struct{}),
		known:   make(map[int64]struct{}),
	}
	s.admins[ownerID] = struct{}{}
	return s
}

// OwnerID returns the configured owner.
func (s *Store) OwnerID() int64 {
	return s.ownerID
}

// Touch records that a user has interacted with the bot.
func (s *Store) Touch(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.known[userID] = struct{}{}
}

// IsAdmin reports whether the user is an admin.
func (s *Store) IsAdmin(userID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.admins[userID]
	return ok
}

// IsOwner reports whether the user is the owner.
func (s *Store) IsOwner(userID int64) bool {
	return userID == s.ownerID
}

// IsBanned reports whether the user is banned.
func (s *Store) IsBanned(userID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.banned[userID]
	return ok
}

// Ban adds target to the banned set. Only admins may ban; the owner and the
// caller themselves can never be targets.
func (s *Store) Ban(actor, target int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.admins[actor]; !ok {
		return ErrNotAdmin
	}
	if target == s.ownerID {
		return ErrTargetOwner
	}
	if target == actor {
		return ErrTargetSelf
	}
	s.banned[target] = struct{}{}
	return nil
}

// Unban removes target from the banned set. A no-op if the target was not
// banned.
func (s *Store) Unban(actor, target int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.admins[actor]; !ok {
		return ErrNotAdmin
	}
	delete(s.banned, target)
	return nil
}

// MakeAdmin grants admin rights to target. Owner only.
func (s *Store) MakeAdmin(actor, target int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if actor != s.ownerID {
		return ErrNotOwner
	}
	s.admins[target] = struct{}{}
	return nil
}

// RemoveAdmin revokes admin rights from target. Owner only; the owner's own
// admin rights are irrevocable.
func (s *Store) RemoveAdmin(actor, target int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if actor != s.ownerID {
		return ErrNotOwner
	}
	if target == s.ownerID {
		return ErrTargetOwner
	}
	delete(s.admins, target)
	return nil
}

// GetStats returns the moderation counters. Admin only.
func (s *Store) GetStats(actor int64) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.admins[actor]; !ok {
		return Stats{}, ErrNotAdmin
	}
	known := len(s.known)
	banned := len(s.banned)
	return Stats{Known: known, Banned: banned, Active: known - banned}, nil
}

// BroadcastTargets returns every known, non-banned user in ascending ID
// order. Admin only. The slice is a snapshot; later mutations of the store do
// not affect it.
func (s *Store) BroadcastTargets(actor int64) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.admins[actor]; !ok {
		return nil, ErrNotAdmin
	}
	targets := make([]int64, 0, len(s.known))
	for id := range s.known {
		if _, isBanned := s.banned[id]; !isBanned {
			targets = append(targets, id)
		}
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i] < targets[j] })
	return targets, nil
}
