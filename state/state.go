// Package state persists tokens in a bbolt database so a client can
// resume its session in a later process. It implements sugar.TokenStore.
package state

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/alexjbarnes/sugarapi/sugar"
	bolt "go.etcd.io/bbolt"
)

const (
	// stateDirPerm is the permission mode for the state directory.
	stateDirPerm = fs.FileMode(0o700)

	// stateFilePerm is the permission mode for the token database file.
	stateFilePerm = fs.FileMode(0o600)

	// stateOpenTimeout is the maximum time to wait for the bolt database lock.
	stateOpenTimeout = 5 * time.Second
)

var (
	tokensBucket = []byte("tokens")
	metaBucket   = []byte("meta")
	saltKey      = []byte("seal_salt")
)

// ErrSealed is returned when a sealed token is read from a State opened
// without a passphrase.
var ErrSealed = errors.New("stored token is sealed; a passphrase is required")

// State wraps a bbolt database holding one token per client_id.
type State struct {
	db     *bolt.DB
	sealer *sealer
}

var _ sugar.TokenStore = (*State)(nil)

type openOptions struct {
	passphrase string
}

// Option configures Open.
type Option func(*openOptions)

// WithPassphrase seals tokens at rest with a key derived from passphrase.
func WithPassphrase(passphrase string) Option {
	return func(o *openOptions) { o.passphrase = passphrase }
}

// DefaultPath returns ~/.sugarapi/tokens.db.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}

	return filepath.Join(home, ".sugarapi", "tokens.db"), nil
}

// Open opens the token database at path, creating it and its directory
// if needed.
func Open(path string, opts ...Option) (*State, error) {
	var o openOptions
	for _, opt := range opts {
		opt(&o)
	}

	if err := os.MkdirAll(filepath.Dir(path), stateDirPerm); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	db, err := bolt.Open(path, stateFilePerm, &bolt.Options{Timeout: stateOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}

	var salt []byte

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(tokensBucket); err != nil {
			return err
		}

		meta, err := tx.CreateBucketIfNotExists(metaBucket)
		if err != nil {
			return err
		}

		if o.passphrase == "" {
			return nil
		}

		if v := meta.Get(saltKey); v != nil {
			salt = append([]byte(nil), v...)
			return nil
		}

		salt = make([]byte, saltLen)
		if _, err := rand.Read(salt); err != nil {
			return fmt.Errorf("generating salt: %w", err)
		}

		return meta.Put(saltKey, salt)
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing state db: %w", err)
	}

	s := &State{db: db}

	if o.passphrase != "" {
		key, err := deriveKey(o.passphrase, salt)
		if err != nil {
			db.Close()
			return nil, err
		}

		s.sealer, err = newSealer(key)
		zeroKey(key)

		if err != nil {
			db.Close()
			return nil, err
		}
	}

	return s, nil
}

// Close closes the database.
func (s *State) Close() error {
	return s.db.Close()
}

// Retrieve returns the token stored for clientID, or nil when absent.
func (s *State) Retrieve(clientID string) (*sugar.Token, error) {
	var raw []byte

	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(tokensBucket).Get([]byte(clientID)); v != nil {
			raw = append([]byte(nil), v...)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading token: %w", err)
	}

	if raw == nil {
		return nil, nil
	}

	data, err := s.unseal(raw, clientID)
	if err != nil {
		return nil, err
	}

	var tok sugar.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("decoding token for %s: %w", clientID, err)
	}

	return &tok, nil
}

// Persist stores token under clientID, replacing any prior value.
func (s *State) Persist(token *sugar.Token, clientID string) error {
	if err := token.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("encoding token: %w", err)
	}

	if s.sealer != nil {
		data, err = s.sealer.seal(data, []byte(clientID))
		if err != nil {
			return err
		}
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(tokensBucket).Put([]byte(clientID), data)
	})
}

// Delete removes the token stored for clientID.
func (s *State) Delete(clientID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(tokensBucket).Delete([]byte(clientID))
	})
}

// ClientIDs returns the client ids with a stored token, sorted.
func (s *State) ClientIDs() ([]string, error) {
	var ids []string

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(tokensBucket).ForEach(func(k, _ []byte) error {
			ids = append(ids, string(k))
			return nil
		})
	})

	sort.Strings(ids)

	return ids, err
}

func (s *State) unseal(raw []byte, clientID string) ([]byte, error) {
	if !isSealed(raw) {
		return raw, nil
	}

	if s.sealer == nil {
		return nil, ErrSealed
	}

	return s.sealer.open(raw, []byte(clientID))
}
