package target

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/bits"
	"net/netip"
	"strconv"
	"strings"
)

var (
	// ErrInvalidTarget is wrapped by every validation failure.
	ErrInvalidTarget = errors.New("invalid target")

	ErrNotPrefix     = fmt.Errorf("%w: not a prefix (missing '/')", ErrInvalidTarget)
	ErrInvalidPrefix = fmt.Errorf("%w: not a valid network", ErrInvalidTarget)
	ErrHostBitsSet   = fmt.Errorf("%w: host bits set", ErrInvalidTarget)
)

// Validate checks that target is a BGP prefix and returns the parsed prefix.
// A ':' anywhere in the string selects IPv6, otherwise IPv4 is assumed. The
// length may be zero padded (/024), and an IPv4 prefix may also give it as a
// netmask (/255.255.255.0) or hostmask (/0.0.0.255). The address must be the
// network address of the prefix, so 193.0.14.129/24 is rejected in favour of
// 193.0.14.0/24.
func Validate(target string) (netip.Prefix, error) {
	addr, suffix, ok := cut(target)
	if !ok {
		return netip.Prefix{}, fmt.Errorf("%w: %q", ErrNotPrefix, target)
	}

	wantV6 := strings.Contains(target, ":")

	length, err := prefixLength(suffix, wantV6)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("%w: %q: %v", ErrInvalidPrefix, target, err)
	}

	prefix, err := netip.ParsePrefix(addr + "/" + strconv.Itoa(length))
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("%w: %q: %v", ErrInvalidPrefix, target, err)
	}
	if wantV6 != prefix.Addr().Is6() {
		family := "IPv4"
		if wantV6 {
			family = "IPv6"
		}
		return netip.Prefix{}, fmt.Errorf("%w: %q is not an %s network", ErrInvalidPrefix, target, family)
	}
	if prefix.Masked() != prefix {
		return netip.Prefix{}, fmt.Errorf("%w: %q (network is %s)", ErrHostBitsSet, target, prefix.Masked())
	}

	return prefix, nil
}

func cut(target string) (addr, suffix string, ok bool) {
	i := strings.LastIndexByte(target, '/')
	if i < 0 {
		return "", "", false
	}
	return target[:i], target[i+1:], true
}

// prefixLength reads the part after the '/' as a decimal length, or for IPv4
// as a netmask and then as a hostmask.
func prefixLength(suffix string, v6 bool) (int, error) {
	if isDigits(suffix) {
		n, err := strconv.Atoi(suffix)
		if err != nil {
			return 0, fmt.Errorf("invalid prefix length %q", suffix)
		}
		return n, nil
	}
	if v6 {
		return 0, fmt.Errorf("invalid prefix length %q", suffix)
	}

	mask, err := netip.ParseAddr(suffix)
	if err != nil || !mask.Is4() {
		return 0, fmt.Errorf("invalid prefix length or mask %q", suffix)
	}
	b := mask.As4()
	m := binary.BigEndian.Uint32(b[:])
	if n := bits.LeadingZeros32(^m); m == ^uint32(0)<<(32-n) {
		return n, nil
	}
	if n := bits.LeadingZeros32(m); ^m == ^uint32(0)<<(32-n) {
		return n, nil
	}
	return 0, fmt.Errorf("%q is neither a netmask nor a hostmask", suffix)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
