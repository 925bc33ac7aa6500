package core

import "fmt"

// Kind is a stable error classification carried across the RPC boundary
// (§7). Kinds are never renamed once shipped — frontends match on the
// string value.
type Kind string

// Account-domain kinds (C3).
const (
	KindNoMnemonicStored            Kind = "NoMnemonicStored"
	KindAccountNotSynced             Kind = "AccountNotSynced"
	KindAccountNotRegistered         Kind = "AccountNotRegistered"
	KindAccountNotActive             Kind = "AccountNotActive"
	KindNoActiveSubscription         Kind = "NoActiveSubscription"
	KindDeviceNotRegistered          Kind = "DeviceNotRegistered"
	KindDeviceNotActive              Kind = "DeviceNotActive"
	KindUpdateAccountEndpointFailure Kind = "UpdateAccountEndpointFailure"
	KindUpdateDeviceEndpointFailure  Kind = "UpdateDeviceEndpointFailure"
	KindDeviceRegistrationFailed     Kind = "DeviceRegistrationFailed"
	KindRequestZkNym                 Kind = "RequestZkNym"
)

// Credential-import kinds.
const (
	KindVpnRunning               Kind = "VpnRunning"
	KindCredentialAlreadyImported Kind = "CredentialAlreadyImported"
	KindStorageError             Kind = "StorageError"
	KindDeserializationFailure   Kind = "DeserializationFailure"
	KindCredentialExpired        Kind = "CredentialExpired"
)

// Connection kinds (C1, C4, C5, C7, C9).
const (
	KindNoValidCredentials               Kind = "NoValidCredentials"
	KindTimeout                          Kind = "Timeout"
	KindGatewayDirectory                 Kind = "GatewayDirectory"
	KindGatewayDirectorySameEntryExitGw  Kind = "GatewayDirectorySameEntryAndExitGw"
	KindOutOfBandwidth                   Kind = "OutOfBandwidth"
	KindAuthenticationNotPossible        Kind = "AuthenticationNotPossible"
	KindAuthenticatorAddressNotFound     Kind = "AuthenticatorAddressNotFound"
	KindNotEnoughBandwidthToSetupTunnel  Kind = "NotEnoughBandwidthToSetupTunnel"
	KindFailedToBringInterfaceUp         Kind = "FailedToBringInterfaceUp"
	KindFailedToLookupGatewayIp          Kind = "FailedToLookupGatewayIp"
)

// Directory-fetch kinds (C1).
const (
	KindDirectoryFetch Kind = "DirectoryFetch"
	KindDirectoryParse Kind = "DirectoryParse"
)

// Transport kinds (C11).
const (
	KindGrpcError         Kind = "GrpcError"
	KindNotConnectedDaemon Kind = "NotConnectedToDaemon"
)

// Internal catch-all.
const KindInternalError Kind = "InternalError"

// Error is the typed error carried across every component boundary named
// in §7. Lower-level errors are mapped into one of these at each boundary
// rather than forwarded verbatim — the mapping is total.
type Error struct {
	Kind Kind
	// Data carries supplementary fields for the RPC boundary (e.g.
	// requested_location, gateway_id, expiry), attached per error via
	// WithData.
	Data map[string]string
	// Err is the wrapped lower-level cause, if any.
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError constructs a Kind-only error with no wrapped cause or data.
func NewError(kind Kind) *Error {
	return &Error{Kind: kind}
}

// Wrap constructs a typed error wrapping a lower-level cause.
func Wrap(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// WithData attaches supplementary fields and returns the same error for
// chaining: core.Wrap(core.KindTimeout, err).WithData("gateway_id", id).
func (e *Error) WithData(key, value string) *Error {
	if e.Data == nil {
		e.Data = make(map[string]string, 1)
	}
	e.Data[key] = value
	return e
}

// KindOf extracts the Kind from an error, walking Unwrap chains, falling
// back to KindInternalError for untyped errors.
func KindOf(err error) Kind {
	for err != nil {
		if te, ok := err.(*Error); ok {
			return te.Kind
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return KindInternalError
}
