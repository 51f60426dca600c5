package infra

import (
	"bufio"
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/eliteGoblin/focusd/privguard/internal/domain"
)

const (
	keyFileName   = "breachlog.key"
	keyFileHeader = "privguard-breachlog-key v1"
	keySize       = 32 // SQLCipher raw key
	checksumSize  = 4
)

// KeyFile stores the breach log key as three lines: a version header, the
// hex key and a short SHA-256 checksum of the key. A file that fails any
// check is reported as corrupt rather than replaced, since a new key would
// orphan the existing database.
type KeyFile struct {
	path string
}

// NewKeyFile returns the key file kept in dataDir.
func NewKeyFile(dataDir string) *KeyFile {
	return &KeyFile{path: filepath.Join(dataDir, keyFileName)}
}

// Path returns the key file location.
func (f *KeyFile) Path() string {
	return f.path
}

// Load reads and verifies the key.
func (f *KeyFile) Load() ([]byte, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return nil, errors.Wrap(domain.ErrKeyNotFound, f.path)
	}
	if err != nil {
		return nil, errors.Wrap(err, "read breach log key")
	}

	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) != 3 || lines[0] != keyFileHeader {
		return nil, errors.Wrapf(domain.ErrKeyCorrupt, "%s: unrecognized format", f.path)
	}

	key, err := hex.DecodeString(lines[1])
	if err != nil || len(key) != keySize {
		return nil, errors.Wrapf(domain.ErrKeyCorrupt, "%s: key is not %d hex bytes", f.path, keySize)
	}
	if lines[2] != keyChecksum(key) {
		return nil, errors.Wrapf(domain.ErrKeyCorrupt, "%s: checksum mismatch", f.path)
	}
	return key, nil
}

// Store writes the key atomically, readable by the owner only.
func (f *KeyFile) Store(key []byte) error {
	if len(key) != keySize {
		return errors.Errorf("breach log key must be %d bytes, got %d", keySize, len(key))
	}
	var buf bytes.Buffer
	buf.WriteString(keyFileHeader + "\n")
	buf.WriteString(hex.EncodeToString(key) + "\n")
	buf.WriteString(keyChecksum(key) + "\n")
	return errors.Wrap(WriteFileAtomic(f.path, buf.Bytes(), 0600), "write breach log key")
}

func keyChecksum(key []byte) string {
	sum := sha256.Sum256(key)
	return hex.EncodeToString(sum[:checksumSize])
}

// NewBreachKey returns a random key.
func NewBreachKey() ([]byte, error) {
	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, errors.Wrap(err, "generate breach log key")
	}
	return key, nil
}

// EnsureBreachKey returns the stored key, creating one only when none
// exists. A corrupt key is returned as an error.
func EnsureBreachKey(store domain.KeyStore) ([]byte, error) {
	key, err := store.Load()
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, domain.ErrKeyNotFound) {
		return nil, err
	}

	key, err = NewBreachKey()
	if err != nil {
		return nil, err
	}
	if err := store.Store(key); err != nil {
		return nil, err
	}
	return key, nil
}

var _ domain.KeyStore = (*KeyFile)(nil)
