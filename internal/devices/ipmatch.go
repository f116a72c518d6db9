package devices

import (
	"net/netip"
	"strings"
)

// ipAllowed reports whether sourceIP matches any entry in the
// comma-separated allow list. Entries are either CIDR prefixes or exact
// addresses. Parse failures and address-family mismatches fail closed:
// a malformed entry never grants access.
func ipAllowed(sourceIP, ranges string) bool {
	addr, err := netip.ParseAddr(sourceIP)
	if err != nil {
		return false
	}
	for _, entry := range strings.Split(ranges, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if matchEntry(addr, entry) {
			return true
		}
	}
	return false
}

func matchEntry(addr netip.Addr, entry string) bool {
	if strings.Contains(entry, "/") {
		prefix, err := netip.ParsePrefix(entry)
		if err != nil {
			return false
		}
		if prefix.Addr().Is4() != addr.Is4() {
			return false
		}
		return prefixBitsEqual(addr.AsSlice(), prefix.Addr().AsSlice(), prefix.Bits())
	}
	want, err := netip.ParseAddr(entry)
	if err != nil {
		return false
	}
	return addr == want
}

// prefixBitsEqual compares the first bits of two equal-length addresses,
// masking the partial last byte.
func prefixBitsEqual(a, b []byte, bits int) bool {
	full := bits / 8
	for i := 0; i < full; i++ {
		if a[i] != b[i] {
			return false
		}
	}
	if rem := bits % 8; rem > 0 {
		mask := byte(0xFF << (8 - rem))
		if a[full]&mask != b[full]&mask {
			return false
		}
	}
	return true
}
