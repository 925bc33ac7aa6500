// Package storage implements the on-disk persistence C3 and C1 rely on:
// device keys, the mnemonic file, the cached network directory and the
// local credential store (§6).
package storage

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"io"
	"os"

	"github.com/nymtech/nym-vpn-core-go/internal/core"
)

const (
	privateDeviceKeyFilename = "private_device.pem"
	publicDeviceKeyFilename  = "public_device.pem"

	pemPrivateKeyType = "ED25519 PRIVATE KEY"
	pemPublicKeyType  = "ED25519 PUBLIC KEY"
)

// DeviceKeys persists the device's long-lived Ed25519 keypair as a PEM
// pair, mirroring nym_pemstore's on-disk layout (private_device.pem /
// public_device.pem) under the data directory.
type DeviceKeys struct {
	dir *core.DataDir
}

// NewDeviceKeys returns a handle over the given data directory. Call
// Init once at startup to generate keys on first run.
func NewDeviceKeys(dir *core.DataDir) *DeviceKeys {
	return &DeviceKeys{dir: dir}
}

func (d *DeviceKeys) privatePath() string { return d.dir.Path(privateDeviceKeyFilename) }
func (d *DeviceKeys) publicPath() string  { return d.dir.Path(publicDeviceKeyFilename) }

// Exists reports whether a keypair has already been generated.
func (d *DeviceKeys) Exists() bool {
	_, err := os.Stat(d.privatePath())
	return err == nil
}

// Init generates a keypair if none exists yet; a no-op otherwise (mirrors
// the Rust on_disk.rs `init_keys`: "if there are no keys, generate them,
// otherwise do nothing"). seed, if non-nil, must be exactly 32 bytes and
// is used as deterministic entropy — tests only; production callers pass
// nil for crypto/rand.Reader entropy.
func (d *DeviceKeys) Init(seed []byte) error {
	if d.Exists() {
		return nil
	}
	return d.resetKeys(seed)
}

// ResetKeys generates a fresh keypair with fresh OS entropy and overwrites
// any existing one on disk, satisfying account.DeviceKeyStore (§4.3
// CmdResetDeviceIdentity).
func (d *DeviceKeys) ResetKeys() error {
	return d.resetKeys(nil)
}

// resetKeys generates a fresh keypair unconditionally and overwrites any
// existing one on disk (mirrors `reset_keys`).
func (d *DeviceKeys) resetKeys(seed []byte) error {
	var reader io.Reader = rand.Reader
	if seed != nil {
		if len(seed) != ed25519.SeedSize {
			return fmt.Errorf("device key seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
		}
		reader = deterministicReader{seed: seed}
	}

	pub, priv, err := ed25519.GenerateKey(reader)
	if err != nil {
		return core.Wrap(core.KindInternalError, fmt.Errorf("generate device keypair: %w", err))
	}

	if err := writePEM(d.privatePath(), pemPrivateKeyType, priv); err != nil {
		return err
	}
	if err := writePEM(d.publicPath(), pemPublicKeyType, pub); err != nil {
		return err
	}
	return nil
}

// RemoveKeys deletes both PEM files, matching the Rust on_disk.rs
// "reset then remove" shape so a half-written pair never lingers.
func (d *DeviceKeys) RemoveKeys() error {
	if err := d.resetKeys(nil); err != nil {
		core.Log.Warnf("storage", "reset device keys before removal: %v", err)
	}
	if err := os.Remove(d.privatePath()); err != nil && !os.IsNotExist(err) {
		return core.Wrap(core.KindStorageError, err)
	}
	if err := os.Remove(d.publicPath()); err != nil && !os.IsNotExist(err) {
		return core.Wrap(core.KindStorageError, err)
	}
	return nil
}

// PublicKey loads the current public key.
func (d *DeviceKeys) PublicKey() (ed25519.PublicKey, error) {
	raw, err := readPEM(d.publicPath(), pemPublicKeyType)
	if err != nil {
		return nil, err
	}
	return ed25519.PublicKey(raw), nil
}

// PrivateKey loads the current private key.
func (d *DeviceKeys) PrivateKey() (ed25519.PrivateKey, error) {
	raw, err := readPEM(d.privatePath(), pemPrivateKeyType)
	if err != nil {
		return nil, err
	}
	return ed25519.PrivateKey(raw), nil
}

// PublicKeyBase58 renders the public key the way the account API expects
// device_identity_key to be encoded (§4.3, same alphabet as gateway
// identities).
func (d *DeviceKeys) PublicKeyBase58() (string, error) {
	pub, err := d.PublicKey()
	if err != nil {
		return "", err
	}
	return core.Base58Encode(pub), nil
}

func writePEM(path, blockType string, raw []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return core.Wrap(core.KindStorageError, fmt.Errorf("create %s: %w", path, err))
	}
	defer f.Close()
	return pem.Encode(f, &pem.Block{Type: blockType, Bytes: raw})
}

func readPEM(path, wantType string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, core.Wrap(core.KindStorageError, fmt.Errorf("open %s: %w", path, err))
	}
	block, _ := pem.Decode(raw)
	if block == nil || block.Type != wantType {
		return nil, core.Wrap(core.KindDeserializationFailure, fmt.Errorf("%s: not a %s PEM block", path, wantType))
	}
	return block.Bytes, nil
}

// deterministicReader repeats a fixed seed, matching crypto/ed25519's
// expectation of a SeedSize-length deterministic entropy source.
type deterministicReader struct{ seed []byte }

func (r deterministicReader) Read(p []byte) (int, error) {
	n := copy(p, r.seed)
	return n, nil
}
