// Package identity manages the Ed25519 wallet keys used to produce and check
// sign-data signatures: generation, PEM persistence, and a lookup store.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/oktsec/signdata/internal/address"
	"github.com/oktsec/signdata/internal/safefile"
)

const (
	privateBlockType = "SIGNDATA ED25519 PRIVATE KEY"
	publicBlockType  = "SIGNDATA ED25519 PUBLIC KEY"
	addressHeader    = "Address"
)

// Keypair is a named wallet key, optionally bound to the account it controls.
type Keypair struct {
	Name       string
	Address    string
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
}

// GenerateKeypair creates a new Ed25519 key pair. addr may be empty; when set
// it must parse as an account address.
func GenerateKeypair(name, addr string) (*Keypair, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	if addr != "" {
		if _, err := address.Parse(addr); err != nil {
			return nil, err
		}
	}
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating keypair: %w", err)
	}
	return &Keypair{
		Name:       name,
		Address:    addr,
		PublicKey:  pub,
		PrivateKey: priv,
	}, nil
}

// Save writes <dir>/<name>.key (0600) and <dir>/<name>.pub (0644).
func (kp *Keypair) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating keys directory: %w", err)
	}

	var headers map[string]string
	if kp.Address != "" {
		headers = map[string]string{addressHeader: kp.Address}
	}

	privBlock := &pem.Block{Type: privateBlockType, Headers: headers, Bytes: kp.PrivateKey}
	if err := os.WriteFile(filepath.Join(dir, kp.Name+".key"), pem.EncodeToMemory(privBlock), 0o600); err != nil {
		return fmt.Errorf("writing private key: %w", err)
	}

	pubBlock := &pem.Block{Type: publicBlockType, Headers: headers, Bytes: kp.PublicKey}
	if err := os.WriteFile(filepath.Join(dir, kp.Name+".pub"), pem.EncodeToMemory(pubBlock), 0o644); err != nil {
		return fmt.Errorf("writing public key: %w", err)
	}
	return nil
}

// LoadKeypair loads <dir>/<name>.key. The public key is derived from the
// private key, so a missing .pub file is not an error.
func LoadKeypair(dir, name string) (*Keypair, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	block, err := readBlock(filepath.Join(dir, name+".key"), privateBlockType)
	if err != nil {
		return nil, fmt.Errorf("reading private key: %w", err)
	}
	if len(block.Bytes) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("private key for %s is %d bytes, want %d", name, len(block.Bytes), ed25519.PrivateKeySize)
	}
	priv := ed25519.PrivateKey(block.Bytes)

	return &Keypair{
		Name:       name,
		Address:    block.Headers[addressHeader],
		PublicKey:  priv.Public().(ed25519.PublicKey),
		PrivateKey: priv,
	}, nil
}

// PublicKey is a loaded .pub file.
type PublicKey struct {
	Name    string
	Address string
	Key     ed25519.PublicKey
}

// LoadPublicKey loads <dir>/<name>.pub.
func LoadPublicKey(dir, name string) (*PublicKey, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	block, err := readBlock(filepath.Join(dir, name+".pub"), publicBlockType)
	if err != nil {
		return nil, fmt.Errorf("reading public key: %w", err)
	}
	if len(block.Bytes) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("public key for %s is %d bytes, want %d", name, len(block.Bytes), ed25519.PublicKeySize)
	}
	return &PublicKey{
		Name:    name,
		Address: block.Headers[addressHeader],
		Key:     ed25519.PublicKey(block.Bytes),
	}, nil
}

// LoadPublicKeys loads every .pub file in dir, keyed by name. Symlinks and
// subdirectories are skipped.
func LoadPublicKeys(dir string) (map[string]*PublicKey, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading keys directory: %w", err)
	}

	keys := make(map[string]*PublicKey)
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".pub" {
			continue
		}
		if entry.Type()&os.ModeSymlink != 0 {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".pub")
		pub, err := LoadPublicKey(dir, name)
		if err != nil {
			return nil, fmt.Errorf("loading key for %s: %w", name, err)
		}
		keys[name] = pub
	}
	return keys, nil
}

// Fingerprint returns the SHA-256 hex fingerprint of a public key.
func Fingerprint(pub ed25519.PublicKey) string {
	h := sha256.Sum256(pub)
	return hex.EncodeToString(h[:])
}

func readBlock(path, wantType string) (*pem.Block, error) {
	data, err := safefile.ReadFileMax(path, safefile.MaxKeyFile)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("invalid PEM in %s", path)
	}
	if block.Type != wantType {
		return nil, fmt.Errorf("%s: unexpected PEM type %q", path, block.Type)
	}
	return block, nil
}

func validName(name string) error {
	if name == "" {
		return fmt.Errorf("key name is required")
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("invalid key name %q", name)
	}
	return nil
}
