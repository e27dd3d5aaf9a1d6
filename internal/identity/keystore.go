package identity

import (
	"crypto/ed25519"
	"fmt"
	"sort"
	"sync"

	"github.com/oktsec/signdata/internal/address"
)

// KeyStore holds known wallet public keys, by name and by account.
type KeyStore struct {
	mu        sync.RWMutex
	byName    map[string]*PublicKey
	byAccount map[string]ed25519.PublicKey
}

// NewKeyStore creates an empty key store.
func NewKeyStore() *KeyStore {
	return &KeyStore{
		byName:    make(map[string]*PublicKey),
		byAccount: make(map[string]ed25519.PublicKey),
	}
}

// LoadFromDir adds all .pub files from dir to the store.
func (ks *KeyStore) LoadFromDir(dir string) error {
	loaded, err := LoadPublicKeys(dir)
	if err != nil {
		return fmt.Errorf("loading keys from %s: %w", dir, err)
	}
	ks.mu.Lock()
	defer ks.mu.Unlock()
	for name, pk := range loaded {
		ks.add(name, pk)
	}
	return nil
}

// ReloadFromDir replaces the store contents with the .pub files in dir.
func (ks *KeyStore) ReloadFromDir(dir string) error {
	loaded, err := LoadPublicKeys(dir)
	if err != nil {
		return fmt.Errorf("reloading keys from %s: %w", dir, err)
	}
	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.byName = make(map[string]*PublicKey, len(loaded))
	ks.byAccount = make(map[string]ed25519.PublicKey, len(loaded))
	for name, pk := range loaded {
		ks.add(name, pk)
	}
	return nil
}

// add expects ks.mu to be held. Keys whose address header does not parse are
// still reachable by name.
func (ks *KeyStore) add(name string, pk *PublicKey) {
	ks.byName[name] = pk
	if pk.Address == "" {
		return
	}
	if acct, err := address.Parse(pk.Address); err == nil {
		ks.byAccount[acct.Raw()] = pk.Key
	}
}

// Get returns the public key registered under name.
func (ks *KeyStore) Get(name string) (ed25519.PublicKey, bool) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	pk, ok := ks.byName[name]
	if !ok {
		return nil, false
	}
	return pk.Key, true
}

// ForAddress returns the key bound to the account that addr denotes, in any
// of its spellings.
func (ks *KeyStore) ForAddress(addr string) (ed25519.PublicKey, bool) {
	acct, err := address.Parse(addr)
	if err != nil {
		return nil, false
	}
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	key, ok := ks.byAccount[acct.Raw()]
	return key, ok
}

// Count returns the number of loaded keys.
func (ks *KeyStore) Count() int {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	return len(ks.byName)
}

// Names returns the sorted names of all loaded keys.
func (ks *KeyStore) Names() []string {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	names := make([]string, 0, len(ks.byName))
	for name := range ks.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
