// Package state keeps small client-side facts across restarts: the last room
// the player was placed in and named room bookmarks.
package state

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"strings"

	bbolt "go.etcd.io/bbolt"
)

var (
	bucketMeta      = []byte("meta")
	bucketBookmarks = []byte("bookmarks")

	keyLastRoom = []byte("last_room")
)

// ErrNoBookmark is returned for an unknown bookmark name.
var ErrNoBookmark = errors.New("no such bookmark")

// Bookmark names a room.
type Bookmark struct {
	Name   string `json:"name"`
	RoomID int    `json:"room_id"`
}

// Store wraps a bbolt database.
type Store struct {
	bolt *bbolt.DB
}

// Open opens or creates the state file and ensures its buckets exist.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("state: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketMeta, bucketBookmarks} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("state: create buckets: %w", err)
	}
	return &Store{bolt: db}, nil
}

func (s *Store) Close() error {
	if s.bolt != nil {
		return s.bolt.Close()
	}
	return nil
}

// LastRoom returns the last stored room, if any.
func (s *Store) LastRoom() (int, bool, error) {
	var (
		id int
		ok bool
	)
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketMeta).Get(keyLastRoom)
		if len(v) == 8 {
			id, ok = keyToID(v), true
		}
		return nil
	})
	return id, ok, err
}

func (s *Store) SetLastRoom(id int) error {
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketMeta).Put(keyLastRoom, idToKey(id))
	})
}

// PutBookmark stores or replaces a bookmark. Names are case-insensitive.
func (s *Store) PutBookmark(name string, roomID int) error {
	key := bookmarkKey(name)
	if key == "" {
		return fmt.Errorf("state: empty bookmark name")
	}
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketBookmarks).Put([]byte(key), idToKey(roomID))
	})
}

// Bookmark looks up a room by bookmark name.
func (s *Store) Bookmark(name string) (int, error) {
	var id int
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketBookmarks).Get([]byte(bookmarkKey(name)))
		if len(v) != 8 {
			return ErrNoBookmark
		}
		id = keyToID(v)
		return nil
	})
	return id, err
}

// Bookmarks lists every bookmark, sorted by name.
func (s *Store) Bookmarks() ([]Bookmark, error) {
	var out []Bookmark
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketBookmarks).ForEach(func(k, v []byte) error {
			if len(v) == 8 {
				out = append(out, Bookmark{Name: string(k), RoomID: keyToID(v)})
			}
			return nil
		})
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, err
}

func (s *Store) DeleteBookmark(name string) error {
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketBookmarks)
		key := []byte(bookmarkKey(name))
		if b.Get(key) == nil {
			return ErrNoBookmark
		}
		return b.Delete(key)
	})
}

func bookmarkKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// idToKey encodes a room id as 8 big-endian bytes.
func idToKey(id int) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(int64(id)))
	return buf
}

func keyToID(b []byte) int {
	return int(int64(binary.BigEndian.Uint64(b)))
}
