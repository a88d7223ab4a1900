package bolt

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/omri0111-web/facepace-public/internal/database"
	"go.etcd.io/bbolt"
)

func readGroup(tx *bbolt.Tx, id string) (*database.Group, error) {
	data := tx.Bucket(bucketGroups).Get([]byte(id))
	if data == nil {
		return nil, nil
	}
	var rec groupRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode group %s: %w", id, err)
	}
	return &database.Group{
		ID:        id,
		Name:      rec.Name,
		GuideID:   rec.GuideID,
		Members:   groupMembers(tx, id),
		CreatedAt: rec.CreatedAt,
	}, nil
}

func groupMembers(tx *bbolt.Tx, groupID string) []string {
	prefix := prefixKey(groupID)
	members := []string{}
	for _, k := range keysWithPrefix(tx.Bucket(bucketMembers), prefix) {
		members = append(members, string(k[len(prefix):]))
	}
	return members
}

func putGroup(tx *bbolt.Tx, id string, rec groupRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketGroups).Put([]byte(id), data)
}

// GetGroup returns the group with its members, nil if not found
func (s *Store) GetGroup(_ context.Context, id string) (*database.Group, error) {
	var g *database.Group
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		g, err = readGroup(tx, id)
		return err
	})
	return g, err
}

// ListGroups returns all groups ordered by name
func (s *Store) ListGroups(_ context.Context) ([]database.Group, error) {
	var groups []database.Group
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketGroups).ForEach(func(k, _ []byte) error {
			g, err := readGroup(tx, string(k))
			if err != nil {
				return err
			}
			groups = append(groups, *g)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(groups, func(a, b database.Group) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	return groups, nil
}

// MembersOf returns the person ids in a group, ErrNotFound for an unknown group
func (s *Store) MembersOf(_ context.Context, groupID string) ([]string, error) {
	var members []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketGroups).Get([]byte(groupID)) == nil {
			return fmt.Errorf("group %s: %w", groupID, database.ErrNotFound)
		}
		members = groupMembers(tx, groupID)
		return nil
	})
	return members, err
}

// SaveGroup creates a group or replaces its name and guide
func (s *Store) SaveGroup(_ context.Context, g database.Group) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		rec := groupRecord{Name: g.Name, GuideID: g.GuideID, CreatedAt: time.Now().UTC()}
		if existing, err := readGroup(tx, g.ID); err == nil && existing != nil {
			rec.CreatedAt = existing.CreatedAt
		}
		return putGroup(tx, g.ID, rec)
	})
}

// UpdateGroup changes the non-nil fields of upd
func (s *Store) UpdateGroup(_ context.Context, id string, upd database.GroupUpdate) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		g, err := readGroup(tx, id)
		if err != nil {
			return err
		}
		if g == nil {
			return fmt.Errorf("group %s: %w", id, database.ErrNotFound)
		}
		rec := groupRecord{Name: g.Name, GuideID: g.GuideID, CreatedAt: g.CreatedAt}
		if upd.Name != nil {
			rec.Name = *upd.Name
		}
		if upd.GuideID != nil {
			rec.GuideID = *upd.GuideID
		}
		return putGroup(tx, id, rec)
	})
}

// DeleteGroup removes a group and its memberships
func (s *Store) DeleteGroup(_ context.Context, id string) (bool, error) {
	var existed bool
	err := s.db.Update(func(tx *bbolt.Tx) error {
		groups := tx.Bucket(bucketGroups)
		existed = groups.Get([]byte(id)) != nil
		if !existed {
			return nil
		}
		members := tx.Bucket(bucketMembers)
		if err := deleteKeys(members, keysWithPrefix(members, prefixKey(id))); err != nil {
			return err
		}
		return groups.Delete([]byte(id))
	})
	return existed, err
}

// AddMember adds a person to a group; adding an existing member is a no-op
func (s *Store) AddMember(_ context.Context, groupID, personID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketGroups).Get([]byte(groupID)) == nil {
			return fmt.Errorf("group %s: %w", groupID, database.ErrNotFound)
		}
		if tx.Bucket(bucketPersons).Get([]byte(personID)) == nil {
			return fmt.Errorf("person %s: %w", personID, database.ErrNotFound)
		}
		return tx.Bucket(bucketMembers).Put(compositeKey([]byte(groupID), []byte(personID)), present)
	})
}

// RemoveMember removes a person from a group, reporting whether they were a member
func (s *Store) RemoveMember(_ context.Context, groupID, personID string) (bool, error) {
	var existed bool
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketMembers)
		key := compositeKey([]byte(groupID), []byte(personID))
		existed = b.Get(key) != nil
		return b.Delete(key)
	})
	return existed, err
}
