// Package privacy reduces client identifiers to values that are safe to log.
package privacy

import "net/netip"

// Prefix lengths kept by AnonymizeIP.
const (
	IPv4Bits = 24
	IPv6Bits = 48
)

// AnonymizeIP masks an address to its network prefix: /24 for IPv4
// (including IPv4-mapped IPv6) and /48 for IPv6. Zones and ports are not
// accepted. Returns "unknown" for an empty value and "invalid" when the value
// does not parse.
func AnonymizeIP(ip string) string {
	if ip == "" || ip == "unknown" {
		return "unknown"
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil || addr.Zone() != "" {
		return "invalid"
	}
	bits := IPv6Bits
	if addr.Is4In6() {
		addr = addr.Unmap()
	}
	if addr.Is4() {
		bits = IPv4Bits
	}
	prefix, err := addr.Prefix(bits)
	if err != nil {
		return "invalid"
	}
	return prefix.Addr().String()
}
