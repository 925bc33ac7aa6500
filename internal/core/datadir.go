package core

import (
	"fmt"
	"os"
	"path/filepath"
)

// DataDir is the process-wide data directory handle acquired at init and
// released at shutdown (§3 "Ownership"). It is deliberately a thin,
// init-once configuration surface — not a general-purpose global — per
// the §9 design note on replacing ad hoc global mutable state.
type DataDir struct {
	root string
}

// OpenDataDir creates (if necessary) and returns a handle to the given
// directory, which backs device keys, the mnemonic file, the network
// cache and credential.db (§6).
func OpenDataDir(root string) (*DataDir, error) {
	if root == "" {
		return nil, fmt.Errorf("data directory path is empty")
	}
	if err := os.MkdirAll(root, 0700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return &DataDir{root: root}, nil
}

// Path joins the given path elements under the data directory root.
func (d *DataDir) Path(elem ...string) string {
	return filepath.Join(append([]string{d.root}, elem...)...)
}

// Root returns the data directory's root path.
func (d *DataDir) Root() string { return d.root }

// Close releases the handle. The directory itself is left on disk; this
// only exists to give callers a symmetric acquire/release lifecycle.
func (d *DataDir) Close() error { return nil }
