// Package identity persists the (peer id, token) pair a relay issued so a
// restarted client can reclaim the same peer id.
package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	logs "github.com/danmuck/xrsync/internal/logging"
	bolt "go.etcd.io/bbolt"
)

var (
	ErrNotFound = errors.New("identity: not found")
	ErrClosed   = errors.New("identity: store closed")
)

// Identity is this peer's durable handle at one relay.
type Identity struct {
	PeerID uint16 `json:"peerId"`
	Token  string `json:"token"`
}

// Known reports whether a relay has issued this identity.
func (i Identity) Known() bool {
	return strings.TrimSpace(i.Token) != ""
}

// Store persists identities keyed by namespace, normally the relay URL.
type Store interface {
	Load(namespace string) (Identity, error)
	Save(namespace string, id Identity) error
}

var identityBkt = []byte("identity")

type record struct {
	Identity
	SavedAt time.Time `json:"savedAt"`
}

// BoltStore keeps identities in a bbolt file.
type BoltStore struct {
	db *bolt.DB
}

var _ Store = (*BoltStore)(nil)

func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("identity: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(identityBkt)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("identity: init %s: %w", path, err)
	}
	logs.Debugf("identity.BoltStore.open path=%s", path)
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Load(namespace string) (Identity, error) {
	var rec record
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(identityBkt).Get([]byte(namespace))
		if raw == nil {
			return ErrNotFound
		}
		return json.Unmarshal(raw, &rec)
	})
	if err != nil {
		if errors.Is(err, bolt.ErrDatabaseNotOpen) {
			return Identity{}, ErrClosed
		}
		return Identity{}, err
	}
	return rec.Identity, nil
}

func (s *BoltStore) Save(namespace string, id Identity) error {
	raw, err := json.Marshal(record{Identity: id, SavedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(identityBkt).Put([]byte(namespace), raw)
	})
	if errors.Is(err, bolt.ErrDatabaseNotOpen) {
		return ErrClosed
	}
	return err
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

// MemoryStore is an in-process Store for tests and ephemeral clients.
type MemoryStore struct {
	mu  sync.Mutex
	ids map[string]Identity
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{ids: make(map[string]Identity)}
}

func (s *MemoryStore) Load(namespace string) (Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.ids[namespace]
	if !ok {
		return Identity{}, ErrNotFound
	}
	return id, nil
}

func (s *MemoryStore) Save(namespace string, id Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids[namespace] = id
	return nil
}
