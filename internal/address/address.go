// Package address implements the value type used to name endpoints
// throughout netio: a network family, an IP, a port, and an optional
// multicast interface. It mirrors the semantics of roc_address from the
// original C implementation this package's behavior is modeled on
// (roc_address_init, roc_address_set_multicast_interface,
// roc_address_family, roc_address_multicast_interface), expressed with
// net/netip the way the rest of netio represents endpoints instead of
// as raw sockaddr bytes.
package address

import (
	"errors"
	"fmt"
	"net/netip"
)

// Family identifies which network family an Address belongs to.
type Family int

const (
	// Auto means the family is not pinned; Parse tries IPv4 first, then
	// IPv6. Once resolved, Family() on the result reports the concrete
	// family actually chosen, never Auto.
	Auto Family = iota
	IPv4
	IPv6
	// Invalid marks a zero-value or failed-construction Address.
	Invalid
)

func (f Family) String() string {
	switch f {
	case Auto:
		return "auto"
	case IPv4:
		return "ipv4"
	case IPv6:
		return "ipv6"
	default:
		return "invalid"
	}
}

// ErrInvalidAddress is returned when an Address cannot be constructed from
// the given family, host, and port.
var ErrInvalidAddress = errors.New("address: invalid address")

// ErrNotMulticast is returned by SetMulticastInterface when the address
// being configured is not itself in a multicast range.
var ErrNotMulticast = errors.New("address: not a multicast address")

// ErrFamilyMismatch is returned by SetMulticastInterface when the supplied
// interface address belongs to a different family than the address it is
// being attached to.
var ErrFamilyMismatch = errors.New("address: multicast interface family mismatch")

// Address is an immutable-by-convention endpoint: family, IP, port, and an
// optional multicast interface. The zero value is Invalid and carries no
// usable IP.
type Address struct {
	family   Family
	ip       netip.Addr
	port     uint16
	hasIface bool
	iface    netip.Addr
}

// Parse builds an Address from a family hint, a textual IP (e.g. "127.0.0.1"
// or "::1"), and a port. When family is Auto, it tries IPv4 first and falls
// back to IPv6, matching roc_address_init's ROC_AF_AUTO behavior of
// attempting set_ipv4 before set_ipv6.
func Parse(family Family, ip string, port int) (Address, error) {
	if ip == "" {
		return Address{}, fmt.Errorf("%w: empty host", ErrInvalidAddress)
	}
	if port < 0 || port > 65535 {
		return Address{}, fmt.Errorf("%w: port %d out of range", ErrInvalidAddress, port)
	}

	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	addr = addr.Unmap()

	if family == Auto || family == IPv4 {
		if addr.Is4() {
			return Address{family: IPv4, ip: addr, port: uint16(port)}, nil
		}
	}
	if family == Auto || family == IPv6 {
		if addr.Is6() {
			return Address{family: IPv6, ip: addr, port: uint16(port)}, nil
		}
	}

	return Address{}, fmt.Errorf("%w: %q does not match requested family %s", ErrInvalidAddress, ip, family)
}

// FromAddrPort builds an Address directly from a netip.AddrPort, the
// representation net.UDPConn/net.TCPConn hand back from ReadFromUDPAddrPort
// and friends.
func FromAddrPort(ap netip.AddrPort) Address {
	ip := ap.Addr().Unmap()
	fam := IPv6
	if ip.Is4() {
		fam = IPv4
	}
	return Address{family: fam, ip: ip, port: ap.Port()}
}

// Family reports the concrete family of a successfully constructed Address.
// It is never Auto.
func (a Address) Family() Family {
	if !a.ip.IsValid() {
		return Invalid
	}
	return a.family
}

// IP returns the address's IP value.
func (a Address) IP() netip.Addr {
	return a.ip
}

// Port returns the address's port.
func (a Address) Port() uint16 {
	return a.port
}

// IsValid reports whether the Address holds a usable IP.
func (a Address) IsValid() bool {
	return a.ip.IsValid()
}

// AddrPort returns the netip.AddrPort form, suitable for net.DialUDP,
// net.ListenUDP and friends via net.UDPAddrFromAddrPort.
func (a Address) AddrPort() netip.AddrPort {
	return netip.AddrPortFrom(a.ip, a.port)
}

// String formats the address as "ip:port", using brackets for IPv6 the same
// way net.JoinHostPort does.
func (a Address) String() string {
	if !a.ip.IsValid() {
		return "<invalid>"
	}
	return a.AddrPort().String()
}

// IsMulticast reports whether the address's IP falls in a multicast range,
// mirroring packet::Address::multicast() in the original implementation.
func (a Address) IsMulticast() bool {
	return a.ip.IsValid() && a.ip.IsMulticast()
}

// SetMulticastInterface attaches an outbound multicast interface address.
// It is only legal when the receiver is itself a multicast address
// (roc_address_set_multicast_interface returns -1 otherwise via
// pa.multicast()), and the interface's family must match the address's
// family (the original rejects a v4 interface resolving against a v6
// address and vice versa by checking pa.version() after set_multicast_iface_v4/v6).
func (a Address) SetMulticastInterface(iface string) (Address, error) {
	if !a.IsMulticast() {
		return a, ErrNotMulticast
	}

	ifaceAddr, err := netip.ParseAddr(iface)
	if err != nil {
		return a, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	ifaceAddr = ifaceAddr.Unmap()

	switch a.family {
	case IPv4:
		if !ifaceAddr.Is4() {
			return a, ErrFamilyMismatch
		}
	case IPv6:
		if !ifaceAddr.Is6() {
			return a, ErrFamilyMismatch
		}
	default:
		return a, ErrInvalidAddress
	}

	out := a
	out.hasIface = true
	out.iface = ifaceAddr
	return out, nil
}

// MulticastInterface returns the configured outbound interface address and
// whether one has been set, matching roc_address_multicast_interface's
// has_multicast_iface() guard.
func (a Address) MulticastInterface() (netip.Addr, bool) {
	if !a.hasIface {
		return netip.Addr{}, false
	}
	return a.iface, true
}
