// Package truststore holds the set of enclave keys a verifier is willing to trust.
package truststore

import (
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Entry is one trusted enclave identity. It names either a SEC1 public key or the EVM
// address derived from it; ImageIDs optionally restricts which enclave programs the key
// may vouch for.
type Entry struct {
	Name      string   `yaml:"name" json:"name"`
	PublicKey string   `yaml:"public_key,omitempty" json:"public_key,omitempty"`
	Address   string   `yaml:"address,omitempty" json:"address,omitempty"`
	ImageIDs  []string `yaml:"image_ids,omitempty" json:"image_ids,omitempty"`
}

// Store is a set of trusted entries indexed by public key and by address.
// Lookups may run concurrently with Add.
type Store struct {
	mu        sync.RWMutex
	entries   []Entry
	byKey     map[string]Entry
	byAddress map[common.Address]Entry
}

// New builds a store from entries, rejecting malformed or duplicate ones.
func New(entries ...Entry) (*Store, error) {
	s := &Store{
		byKey:     make(map[string]Entry),
		byAddress: make(map[common.Address]Entry),
	}
	for _, e := range entries {
		if err := s.Add(e); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Add inserts an entry. Public keys are normalized to compressed form so that compressed and
// uncompressed spellings of the same key collide.
func (s *Store) Add(e Entry) error {
	if e.Name == "" {
		return errors.New("trust store entry missing name")
	}
	if e.PublicKey == "" && e.Address == "" {
		return fmt.Errorf("trust store entry %s: public_key or address required", e.Name)
	}

	var keyID string
	if e.PublicKey != "" {
		keyBytes, err := hex.DecodeString(strings.TrimPrefix(e.PublicKey, "0x"))
		if err != nil {
			return fmt.Errorf("trust store entry %s: decode public key: %w", e.Name, err)
		}
		pubKey, err := secp256k1.ParsePubKey(keyBytes)
		if err != nil {
			return fmt.Errorf("trust store entry %s: parse public key: %w", e.Name, err)
		}
		keyID = keyIdentifier(pubKey)
	}

	var addr common.Address
	if e.Address != "" {
		if !common.IsHexAddress(e.Address) {
			return fmt.Errorf("trust store entry %s: invalid address %q", e.Name, e.Address)
		}
		addr = common.HexToAddress(e.Address)
	}

	e.ImageIDs = slices.Clone(e.ImageIDs)

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.entries {
		if existing.Name == e.Name {
			return fmt.Errorf("trust store entry %s: duplicate name", e.Name)
		}
	}
	if keyID != "" {
		if existing, dup := s.byKey[keyID]; dup {
			return fmt.Errorf("trust store entry %s: public key already trusted as %s", e.Name, existing.Name)
		}
	}
	if e.Address != "" {
		if existing, dup := s.byAddress[addr]; dup {
			return fmt.Errorf("trust store entry %s: address already trusted as %s", e.Name, existing.Name)
		}
	}

	if keyID != "" {
		s.byKey[keyID] = e
	}
	if e.Address != "" {
		s.byAddress[addr] = e
	}
	s.entries = append(s.entries, e)
	return nil
}

// Lookup finds the entry trusting pubKey, first by exact key and then by derived address.
func (s *Store) Lookup(pubKey *secp256k1.PublicKey) (Entry, bool) {
	if pubKey == nil {
		return Entry{}, false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if e, ok := s.byKey[keyIdentifier(pubKey)]; ok {
		return e, true
	}

	if len(s.byAddress) == 0 {
		return Entry{}, false
	}
	addr, err := AddressOf(pubKey)
	if err != nil {
		return Entry{}, false
	}
	e, ok := s.byAddress[addr]
	return e, ok
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Entries returns a copy of the entries sorted by name.
func (s *Store) Entries() []Entry {
	s.mu.RLock()
	entries := slices.Clone(s.entries)
	s.mu.RUnlock()

	for i := range entries {
		entries[i].ImageIDs = slices.Clone(entries[i].ImageIDs)
	}

	slices.SortFunc(entries, func(a, b Entry) int {
		return strings.Compare(a.Name, b.Name)
	})
	return entries
}

// AddressOf derives the EVM address (Keccak-256 of the uncompressed key) for an enclave key.
func AddressOf(pubKey *secp256k1.PublicKey) (common.Address, error) {
	ecdsaPub, err := crypto.UnmarshalPubkey(pubKey.SerializeUncompressed())
	if err != nil {
		return common.Address{}, fmt.Errorf("convert public key: %w", err)
	}
	return crypto.PubkeyToAddress(*ecdsaPub), nil
}

func keyIdentifier(pubKey *secp256k1.PublicKey) string {
	return hex.EncodeToString(pubKey.SerializeCompressed())
}
