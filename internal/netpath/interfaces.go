// Package netpath implements the Network-Path Observer (C10): a platform
// watcher that classifies the system's default route/interface state into
// one of four tokens and reports the interfaces/gateways it currently sees
// (§4.10). C9 never reconnects on its own account; a Satisfied observed
// after an Unsatisfied is forwarded to C7 so it can re-resolve its peer
// endpoints, nothing more.
package netpath

// Status is one of the four path-status tokens the observer emits.
type Status string

const (
	// Unsatisfied means no interface currently offers a usable default
	// path (no link, no gateway, no route).
	Unsatisfied Status = "Unsatisfied"
	// Satisfied means a default path is present and usable right now.
	Satisfied Status = "Satisfied"
	// Satisfiable means a path exists but isn't usable yet (e.g. a link is
	// up but still acquiring an address/gateway).
	Satisfiable Status = "Satisfiable"
	// Invalid means the observer itself failed to read the platform's
	// route table; the caller should treat this the same as Unsatisfied
	// for connectivity purposes but may want to log it distinctly.
	Invalid Status = "Invalid"
)

// Interface describes one network interface the observer considered when
// classifying the current path.
type Interface struct {
	Name    string
	Up      bool
	Gateway string // empty if none resolved
}

// Update is handed to the Handler on every evaluation.
type Update struct {
	Status     Status
	Interfaces []Interface
}

// Handler receives every Update the observer produces, from the observer's
// own goroutine. Handlers must not block.
type Handler func(Update)

// Observer watches the OS default route/interface table and evaluates it
// into Updates, debouncing bursts of route events into a single
// evaluation.
type Observer interface {
	Start() error
	Stop() error
}
