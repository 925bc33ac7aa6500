//go:build windows

package windows

import (
	"fmt"
	"net/netip"
	"os/exec"
	"runtime"
	"unsafe"

	"github.com/nymtech/nym-vpn-core-go/internal/core"

	"golang.org/x/sys/windows"
	"golang.zx2c4.com/wintun"
)

const (
	adapterName         = "nym-vpn"
	adapterType         = "Nym"
	ringCapacity        = 0x1000000 // 16 MiB ring buffer
	defaultTunPrefixLen = 24
	defaultTunMTU       = 1400
	tunMetric           = 5
)

// TUNAdapter wraps a WinTUN adapter with IP/MTU configuration, implementing
// platform.TUNAdapter for the Mixnet branch (§4.4) on Windows.
type TUNAdapter struct {
	wt       *wintun.Adapter
	session  wintun.Session
	readWait windows.Handle
	luid     uint64
	ifIndex  uint32
	ip       netip.Addr
	prefix   int
	mtu      int
}

// NewTUNAdapter creates a WinTUN adapter, assigns the first IPv4 address in
// addrs (falling back to 10.255.0.1/24 if none is given), applies mtu (or
// defaultTunMTU if mtu <= 0), and configures the given DNS servers.
func NewTUNAdapter(addrs []netip.Addr, dns []netip.Addr, mtu int) (*TUNAdapter, error) {
	// Fixed GUID for repeatable adapter identity.
	guid := windows.GUID{
		Data1: 0xABCD1234,
		Data2: 0x5678,
		Data3: 0x9ABC,
		Data4: [8]byte{0xDE, 0xF0, 0x12, 0x34, 0x56, 0x78, 0x9A, 0xBC},
	}

	wt, err := wintun.CreateAdapter(adapterName, adapterType, &guid)
	if err != nil {
		return nil, fmt.Errorf("create adapter: %w", err)
	}

	session, err := wt.StartSession(ringCapacity)
	if err != nil {
		wt.Close()
		return nil, fmt.Errorf("start session: %w", err)
	}

	ip := netip.MustParseAddr("10.255.0.1")
	for _, a := range addrs {
		if a.Is4() {
			ip = a
			break
		}
	}
	if mtu <= 0 {
		mtu = defaultTunMTU
	}

	a := &TUNAdapter{
		wt:       wt,
		session:  session,
		readWait: session.ReadWaitEvent(),
		luid:     wt.LUID(),
		ip:       ip,
		prefix:   defaultTunPrefixLen,
		mtu:      mtu,
	}

	if err := a.assignIP(); err != nil {
		session.End()
		wt.Close()
		return nil, fmt.Errorf("assign IP: %w", err)
	}
	if err := a.setMTU(); err != nil {
		core.Log.Warnf("tunnel", "set MTU on %s: %v", adapterName, err)
	}
	if len(dns) > 0 {
		if err := a.SetDNS(dns); err != nil {
			core.Log.Warnf("tunnel", "set dns on %s: %v", adapterName, err)
		}
	}

	core.Log.Infof("tunnel", "wintun adapter %q created (ip=%s, ifIndex=%d)", adapterName, a.ip, a.ifIndex)
	return a, nil
}

// LUID returns the adapter's locally unique identifier.
func (a *TUNAdapter) LUID() uint64 { return a.luid }

// InterfaceIndex returns the adapter's interface index.
func (a *TUNAdapter) InterfaceIndex() uint32 { return a.ifIndex }

// IP returns the adapter's assigned IP address.
func (a *TUNAdapter) IP() netip.Addr { return a.ip }

// ReadPacket reads one IP packet into buf, blocking until data is available
// or the session ends.
func (a *TUNAdapter) ReadPacket(buf []byte) (int, error) {
	for {
		pkt, err := a.session.ReceivePacket()
		if err == nil {
			n := copy(buf, pkt)
			a.session.ReleaseReceivePacket(pkt)
			return n, nil
		}
		if errno, ok := err.(windows.Errno); ok && errno == windows.ERROR_NO_MORE_ITEMS {
			r, _ := windows.WaitForSingleObject(a.readWait, windows.INFINITE)
			if r != windows.WAIT_OBJECT_0 {
				return 0, fmt.Errorf("wait failed: %d", r)
			}
			continue
		}
		return 0, fmt.Errorf("receive: %w", err)
	}
}

// WritePacket writes one IP packet to the TUN adapter, retrying once after
// a brief yield on ring buffer overflow.
func (a *TUNAdapter) WritePacket(pkt []byte) error {
	buf, err := a.session.AllocateSendPacket(len(pkt))
	if err != nil {
		runtime.Gosched()
		buf, err = a.session.AllocateSendPacket(len(pkt))
		if err != nil {
			return err
		}
	}
	copy(buf, pkt)
	a.session.SendPacket(buf)
	return nil
}

// Close tears down the adapter and session.
func (a *TUNAdapter) Close() error {
	a.session.End()
	a.wt.Close()
	core.Log.Infof("tunnel", "wintun adapter closed")
	return nil
}

// SetDNS configures DNS servers on the TUN adapter via netsh, and flushes
// the system resolver cache.
func (a *TUNAdapter) SetDNS(servers []netip.Addr) error {
	if len(servers) == 0 {
		return nil
	}

	out, err := exec.Command("netsh", "interface", "ipv4", "set", "dnsservers",
		fmt.Sprintf("name=%d", a.ifIndex), "static", servers[0].String(),
		"register=none", "validate=no",
	).CombinedOutput()
	if err != nil {
		return fmt.Errorf("set dns %s: %s: %w", servers[0], string(out), err)
	}

	for i := 1; i < len(servers); i++ {
		out, err := exec.Command("netsh", "interface", "ipv4", "add", "dnsservers",
			fmt.Sprintf("name=%d", a.ifIndex), servers[i].String(),
			fmt.Sprintf("index=%d", i+1), "validate=no",
		).CombinedOutput()
		if err != nil {
			core.Log.Warnf("tunnel", "add secondary dns %s: %s: %v", servers[i], string(out), err)
		}
	}

	exec.Command("ipconfig", "/flushdns").Run()
	return nil
}

// ---------------------------------------------------------------------------
// IP/MTU configuration via iphlpapi.dll
// ---------------------------------------------------------------------------

var (
	modIPHlpAPI = windows.NewLazySystemDLL("iphlpapi.dll")

	procInitializeUnicastIpAddressEntry = modIPHlpAPI.NewProc("InitializeUnicastIpAddressEntry")
	procCreateUnicastIpAddressEntry     = modIPHlpAPI.NewProc("CreateUnicastIpAddressEntry")
	procGetIpInterfaceEntry             = modIPHlpAPI.NewProc("GetIpInterfaceEntry")
	procSetIpInterfaceEntry             = modIPHlpAPI.NewProc("SetIpInterfaceEntry")
)

// MIB_UNICASTIPADDRESS_ROW (simplified for IPv4, 80 bytes on x64).
type mibUnicastIPAddressRow struct {
	data [80]byte
}

const (
	unicastAddrFamily     = 0
	unicastAddr           = 4
	unicastInterfaceLUID  = 32
	unicastInterfaceIndex = 40
	unicastPrefixOrigin   = 44
	unicastSuffixOrigin   = 48
	unicastOnLinkPrefix   = 60
	unicastDadState       = 64
)

func (a *TUNAdapter) assignIP() error {
	var row mibUnicastIPAddressRow
	procInitializeUnicastIpAddressEntry.Call(uintptr(unsafe.Pointer(&row)))

	*(*uint16)(unsafe.Pointer(&row.data[unicastAddrFamily])) = windows.AF_INET
	*(*uint16)(unsafe.Pointer(&row.data[unicastAddrFamily+2])) = 0

	ip4 := a.ip.As4()
	copy(row.data[unicastAddr:unicastAddr+4], ip4[:])

	*(*uint64)(unsafe.Pointer(&row.data[unicastInterfaceLUID])) = a.luid
	*(*int32)(unsafe.Pointer(&row.data[unicastPrefixOrigin])) = 1
	*(*int32)(unsafe.Pointer(&row.data[unicastSuffixOrigin])) = 1
	row.data[unicastOnLinkPrefix] = byte(a.prefix)
	*(*int32)(unsafe.Pointer(&row.data[unicastDadState])) = 4

	r, _, _ := procCreateUnicastIpAddressEntry.Call(uintptr(unsafe.Pointer(&row)))
	if r != 0 && r != 0x80071392 { // ERROR_OBJECT_ALREADY_EXISTS
		return fmt.Errorf("CreateUnicastIpAddressEntry failed: 0x%x", r)
	}

	a.ifIndex = a.lookupInterfaceIndex()
	return nil
}

// MIB_IPINTERFACE_ROW (x64, 256-byte buffer for forward compatibility).
type mibIPInterfaceRow struct {
	data [256]byte
}

const (
	ipIfFamily        = 0
	ipIfLUID          = 8
	ipIfIndex         = 16
	ipIfUseAutometric = 44
	ipIfMetric        = 148
	ipIfNlMtu         = 152
)

func (a *TUNAdapter) setMTU() error {
	var row mibIPInterfaceRow
	*(*uint16)(unsafe.Pointer(&row.data[ipIfFamily])) = windows.AF_INET
	*(*uint64)(unsafe.Pointer(&row.data[ipIfLUID])) = a.luid

	r, _, _ := procGetIpInterfaceEntry.Call(uintptr(unsafe.Pointer(&row)))
	if r != 0 {
		return fmt.Errorf("GetIpInterfaceEntry failed: 0x%x", r)
	}

	row.data[ipIfUseAutometric] = 0
	*(*uint32)(unsafe.Pointer(&row.data[ipIfMetric])) = tunMetric
	*(*uint32)(unsafe.Pointer(&row.data[ipIfNlMtu])) = uint32(a.mtu)

	r, _, _ = procSetIpInterfaceEntry.Call(uintptr(unsafe.Pointer(&row)))
	if r != 0 {
		return fmt.Errorf("SetIpInterfaceEntry failed: 0x%x", r)
	}
	return nil
}

func (a *TUNAdapter) lookupInterfaceIndex() uint32 {
	var row mibIPInterfaceRow
	*(*uint16)(unsafe.Pointer(&row.data[ipIfFamily])) = windows.AF_INET
	*(*uint64)(unsafe.Pointer(&row.data[ipIfLUID])) = a.luid

	r, _, _ := procGetIpInterfaceEntry.Call(uintptr(unsafe.Pointer(&row)))
	if r != 0 {
		return 0
	}
	return *(*uint32)(unsafe.Pointer(&row.data[ipIfIndex]))
}
