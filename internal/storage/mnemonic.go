package storage

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/nymtech/nym-vpn-core-go/internal/core"
)

const mnemonicFilename = "mnemonic.json"

// ErrNoMnemonicStored is returned by Load when the mnemonic file has never
// been written (mirrors OnDiskMnemonicStorageError::NoMnemonicStored).
var ErrNoMnemonicStored = errors.New("no mnemonic stored")

type storedMnemonic struct {
	Mnemonic string `json:"mnemonic"`
}

// Mnemonic persists the account recovery phrase as mnemonic.json, mode
// 0600, create-new semantics (a second Store without a prior Remove
// fails, matching the Rust `OpenOptions::create_new`).
type Mnemonic struct {
	dir *core.DataDir
}

// NewMnemonic returns a handle over the given data directory.
func NewMnemonic(dir *core.DataDir) *Mnemonic {
	return &Mnemonic{dir: dir}
}

func (m *Mnemonic) path() string { return m.dir.Path(mnemonicFilename) }

// IsStored reports whether a mnemonic has already been written.
func (m *Mnemonic) IsStored() bool {
	_, err := os.Stat(m.path())
	return err == nil
}

// Store writes the mnemonic, failing if one is already stored (callers
// must Remove first to replace it — §4.3 "create-new semantics").
func (m *Mnemonic) Store(words string) error {
	f, err := os.OpenFile(m.path(), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		if os.IsExist(err) {
			return core.Wrap(core.KindCredentialAlreadyImported, fmt.Errorf("mnemonic already stored"))
		}
		return core.Wrap(core.KindStorageError, fmt.Errorf("create %s: %w", m.path(), err))
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(storedMnemonic{Mnemonic: words}); err != nil {
		return core.Wrap(core.KindStorageError, fmt.Errorf("write mnemonic: %w", err))
	}
	return nil
}

// Load reads the stored mnemonic, returning ErrNoMnemonicStored if the
// file is absent or holds an empty mnemonic, a DeserializationFailure if
// it cannot be parsed, or a StorageError on any other read failure.
func (m *Mnemonic) Load() (string, error) {
	raw, err := os.ReadFile(m.path())
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNoMnemonicStored
		}
		return "", core.Wrap(core.KindStorageError, fmt.Errorf("open %s: %w", m.path(), err))
	}

	var stored storedMnemonic
	if err := json.Unmarshal(raw, &stored); err != nil {
		return "", core.Wrap(core.KindDeserializationFailure, fmt.Errorf("decode mnemonic: %w", err))
	}
	if stored.Mnemonic == "" {
		return "", ErrNoMnemonicStored
	}
	return stored.Mnemonic, nil
}

// Remove deletes the stored mnemonic file, if any.
func (m *Mnemonic) Remove() error {
	if err := os.Remove(m.path()); err != nil && !os.IsNotExist(err) {
		return core.Wrap(core.KindStorageError, err)
	}
	return nil
}

// DeviceSeed derives deterministic 32-byte device-key entropy from the
// mnemonic's first 32 bytes of SHA-256 digest, so a restored mnemonic
// reproduces the same device keypair rather than minting a fresh one that
// the account API would then reject as unregistered.
func DeviceSeed(mnemonicWords string) []byte {
	sum := sha256.Sum256([]byte(mnemonicWords))
	return sum[:]
}
