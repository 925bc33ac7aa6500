package storage

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nymtech/nym-vpn-core-go/internal/core"
)

const credentialsFilename = "credential.db"

// CredentialEnvelope is the opaque-to-us wrapper minting produces (§1:
// "does not specify credential minting, only credential use and
// lifecycle"). Expiry is nil for non-expiring (subscription-backed)
// credentials; Payload is forwarded to the mixnet/ECash layer untouched.
type CredentialEnvelope struct {
	Expiry  *time.Time `json:"expiry,omitempty"`
	Payload []byte     `json:"payload"`
}

// Credentials is the sqlite-backed opaque credential store (§6
// "credential.db — opaque credential storage (SQLite-shaped)").
type Credentials struct {
	db *sql.DB
}

// OpenCredentials opens (creating if necessary) credential.db under the
// data directory.
func OpenCredentials(dir *core.DataDir) (*Credentials, error) {
	db, err := sql.Open("sqlite", dir.Path(credentialsFilename))
	if err != nil {
		return nil, core.Wrap(core.KindStorageError, fmt.Errorf("open credential.db: %w", err))
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS credentials (
		digest     TEXT PRIMARY KEY,
		expiry     TIMESTAMP,
		payload    BLOB NOT NULL,
		imported_at TIMESTAMP NOT NULL
	)`); err != nil {
		db.Close()
		return nil, core.Wrap(core.KindStorageError, fmt.Errorf("init credential.db schema: %w", err))
	}
	return &Credentials{db: db}, nil
}

// Close releases the database handle.
func (c *Credentials) Close() error { return c.db.Close() }

func digestOf(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// ImportCredential decodes raw as a CredentialEnvelope and stores it,
// enforcing §3's invariants: a digest already present returns
// CredentialAlreadyImported without touching the store; an expired
// envelope returns CredentialExpired without touching the store either.
func (c *Credentials) ImportCredential(raw []byte) (*time.Time, error) {
	var env CredentialEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, core.Wrap(core.KindDeserializationFailure, fmt.Errorf("parse credential: %w", err)).
			WithData("reason", err.Error())
	}

	digest := digestOf(raw)

	var existing int
	row := c.db.QueryRow(`SELECT COUNT(*) FROM credentials WHERE digest = ?`, digest)
	if err := row.Scan(&existing); err != nil {
		return nil, core.Wrap(core.KindStorageError, fmt.Errorf("check existing credential: %w", err))
	}
	if existing > 0 {
		return nil, core.NewError(core.KindCredentialAlreadyImported)
	}

	if env.Expiry != nil && env.Expiry.Before(time.Now()) {
		return nil, core.NewError(core.KindCredentialExpired).
			WithData("expiry", env.Expiry.Format(time.RFC3339))
	}

	if _, err := c.db.Exec(
		`INSERT INTO credentials(digest, expiry, payload, imported_at) VALUES (?, ?, ?, ?)`,
		digest, env.Expiry, env.Payload, time.Now(),
	); err != nil {
		return nil, core.Wrap(core.KindStorageError, fmt.Errorf("store credential: %w", err))
	}

	return env.Expiry, nil
}

// ActivePayload returns one non-expired credential's opaque payload (most
// recently imported first), for the Wireguard branch's authenticator
// handshake (§4.7 step 1). Returns (nil, nil) when no credential is
// available; the caller treats a nil payload as "no credential required".
func (c *Credentials) ActivePayload() ([]byte, error) {
	row := c.db.QueryRow(`SELECT payload FROM credentials WHERE expiry IS NULL OR expiry > ? ORDER BY imported_at DESC LIMIT 1`, time.Now())
	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, core.Wrap(core.KindStorageError, err)
	}
	return payload, nil
}

// AvailableTickets reports how many non-expired credentials remain,
// backing CmdGetAvailableTickets (§4.3).
func (c *Credentials) AvailableTickets() (int, error) {
	row := c.db.QueryRow(`SELECT COUNT(*) FROM credentials WHERE expiry IS NULL OR expiry > ?`, time.Now())
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, core.Wrap(core.KindStorageError, err)
	}
	return n, nil
}
