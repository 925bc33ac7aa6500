package gateway

import (
	"fmt"
	"math/rand"

	"github.com/nymtech/nym-vpn-core-go/internal/core"
)

// TunnelKind distinguishes the two tunnel types that drive gateway set
// selection (§4.1 step 1: "for Wireguard tunnels both sets are the
// Wireguard-capable list").
type TunnelKind int

const (
	TunnelMixnet TunnelKind = iota
	TunnelWireguard
)

// SelectedGateways is the outcome of gateway selection (§3). Invariant:
// Entry.Identity != Exit.Identity, enforced by RemoveGateway before the
// entry lookup (step 3).
type SelectedGateways struct {
	Entry Gateway
	Exit  Gateway
}

// SelectionError is returned when gateway selection fails to resolve an
// entry or exit point (§8 boundary behaviours).
type SelectionError struct {
	Kind            core.Kind
	RequestedLoc    string
	AvailableCodes  []string
}

func (e *SelectionError) Error() string {
	return fmt.Sprintf("%s: requested=%s available=%v", e.Kind, e.RequestedLoc, e.AvailableCodes)
}

// Selector resolves an (entry, exit) pair from a directory snapshot,
// mirroring the Rust gateway_selector.rs algorithm exactly: select the
// exit first, remove it from the entry candidate set, then select the
// entry, remapping NoMatchingEntryGatewayForLocation to
// SameEntryAndExitGatewayFromCountry when the countries coincide (§4.1
// step 5).
type Selector struct {
	Directory *Client
	Prober    *Prober // used only for EntryPoint RandomLowLatency
	rnd       func(n int) int
}

// NewSelector constructs a Selector backed by the given directory client.
func NewSelector(dir *Client, prober *Prober) *Selector {
	r := rand.New(rand.NewSource(1))
	return &Selector{
		Directory: dir,
		Prober:    prober,
		rnd:       func(n int) int { return r.Intn(n) },
	}
}

// Select resolves entry and exit gateways per §4.1's five-step policy.
func (s *Selector) Select(entry EntryPoint, exit ExitPoint, kind TunnelKind) (SelectedGateways, error) {
	exitKind, entryKind := KindMixnetExit, KindMixnetEntry
	if kind == TunnelWireguard {
		exitKind, entryKind = KindWireguard, KindWireguard
	}

	exitList, err := s.Directory.LookupGateways(exitKind, DefaultMinPerformance)
	if err != nil {
		return SelectedGateways{}, err
	}
	exitGW, err := s.resolveExit(exit, exitList)
	if err != nil {
		return SelectedGateways{}, err
	}

	entryList, err := s.Directory.LookupGateways(entryKind, DefaultMinPerformance)
	if err != nil {
		return SelectedGateways{}, err
	}
	entryList = entryList.RemoveGateway(exitGW.IdentityBase58())

	entryGW, err := s.resolveEntry(entry, entryList)
	if err != nil {
		var selErr *SelectionError
		if asSelectionError(err, &selErr) &&
			selErr.Kind == core.KindGatewayDirectory &&
			selErr.RequestedLoc == exitGW.ISOCode() {
			return SelectedGateways{}, &SelectionError{
				Kind:         core.KindGatewayDirectorySameEntryExitGw,
				RequestedLoc: selErr.RequestedLoc,
			}
		}
		return SelectedGateways{}, err
	}

	return SelectedGateways{Entry: entryGW, Exit: exitGW}, nil
}

func asSelectionError(err error, target **SelectionError) bool {
	se, ok := err.(*SelectionError)
	if ok {
		*target = se
	}
	return ok
}

func (s *Selector) resolveExit(exit ExitPoint, list *GatewayList) (Gateway, error) {
	switch exit.Kind {
	case PointAddress:
		g, ok := list.GatewayWithIdentity(core.Base58Encode(exit.Recipient.GatewayIdentity[:]))
		if !ok {
			return Gateway{}, &SelectionError{Kind: core.KindGatewayDirectory, RequestedLoc: exit.Recipient.String()}
		}
		return g, nil
	case PointGateway:
		g, ok := list.GatewayWithIdentity(exit.Identity)
		if !ok {
			return Gateway{}, &SelectionError{Kind: core.KindGatewayDirectory, RequestedLoc: exit.Identity}
		}
		return g, nil
	case PointLocation:
		g, ok := list.RandomGatewayLocatedAt(exit.ISOCode, s.rnd)
		if !ok {
			return Gateway{}, &SelectionError{
				Kind:           core.KindGatewayDirectory,
				RequestedLoc:   exit.ISOCode,
				AvailableCodes: list.AllISOCodes(),
			}
		}
		return g, nil
	case PointRandom:
		g, ok := list.RandomGateway(s.rnd)
		if !ok {
			return Gateway{}, &SelectionError{Kind: core.KindGatewayDirectory}
		}
		return g, nil
	default:
		// RandomLowLatency is not permitted for exit (§4.1).
		return Gateway{}, fmt.Errorf("RandomLowLatency is not a valid exit point")
	}
}

func (s *Selector) resolveEntry(entry EntryPoint, list *GatewayList) (Gateway, error) {
	switch entry.Kind {
	case PointGateway:
		g, ok := list.GatewayWithIdentity(entry.Identity)
		if !ok {
			return Gateway{}, &SelectionError{Kind: core.KindGatewayDirectory, RequestedLoc: entry.Identity}
		}
		return g, nil
	case PointLocation:
		g, ok := list.RandomGatewayLocatedAt(entry.ISOCode, s.rnd)
		if !ok {
			return Gateway{}, &SelectionError{
				Kind:           core.KindGatewayDirectory,
				RequestedLoc:   entry.ISOCode,
				AvailableCodes: list.AllISOCodes(),
			}
		}
		return g, nil
	case PointRandom:
		g, ok := list.RandomGateway(s.rnd)
		if !ok {
			return Gateway{}, &SelectionError{Kind: core.KindGatewayDirectory}
		}
		return g, nil
	case PointRandomLowLatency:
		if s.Prober == nil {
			return Gateway{}, fmt.Errorf("low-latency selection requires a prober")
		}
		return s.Prober.ChooseByLatency(list.All())
	default:
		return Gateway{}, fmt.Errorf("Address is not a valid entry point")
	}
}
