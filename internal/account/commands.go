package account

import (
	"github.com/google/uuid"
)

// CommandKind enumerates the mailbox commands (§4.3).
type CommandKind int

const (
	CmdSyncAccountState CommandKind = iota
	CmdSyncDeviceState
	CmdRegisterDevice
	CmdRequestZkNym
	CmdGetAvailableTickets
	CmdUpdateMnemonic
	CmdRemoveMnemonic
	CmdResetDeviceIdentity
)

// Command is a single mailbox entry. Reply receives one value, the
// handler's error (nil on success), when the command completes; a reply
// that cannot be delivered is logged as a non-fatal warning, never fatal
// (§4.3).
type Command struct {
	id       uuid.UUID
	Kind     CommandKind
	Mnemonic string // CmdUpdateMnemonic payload
	Reply    chan error
}

// newCommand assigns a fresh dedup ID, mirroring the Rust CommandHandler
// constructor inserting itself into pending_commands on creation.
func newCommand(kind CommandKind) *Command {
	return &Command{id: uuid.New(), Kind: kind, Reply: make(chan error, 1)}
}

// ZkNymResult reports per-ticket success/failure counts (§7
// RequestZkNym{successes, failures}); the ECash minting primitive itself
// is the assumed-correct black box (§1) — this just tallies outcomes.
type ZkNymResult struct {
	Successes int
	Failures  int
}
