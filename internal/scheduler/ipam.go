package scheduler

import (
	"encoding/binary"
	"net/netip"

	"github.com/tphummel/rackops/internal/models"
)

// hostAddr returns the n-th address of an IPv4 prefix, or false if n falls
// outside it.
func hostAddr(prefix netip.Prefix, n int) (netip.Addr, bool) {
	base := prefix.Masked().Addr()
	if !base.Is4() || n < 0 {
		return netip.Addr{}, false
	}
	b := base.As4()
	v := binary.BigEndian.Uint32(b[:]) + uint32(n)
	binary.BigEndian.PutUint32(b[:], v)
	addr := netip.AddrFrom4(b)
	if !prefix.Contains(addr) {
		return netip.Addr{}, false
	}
	return addr, true
}

// hostIndex is the inverse of hostAddr.
func hostIndex(prefix netip.Prefix, s string) (int, bool) {
	addr, err := netip.ParseAddr(s)
	if err != nil || !prefix.Contains(addr) || !addr.Is4() {
		return 0, false
	}
	b := prefix.Masked().Addr().As4()
	a := addr.As4()
	return int(binary.BigEndian.Uint32(a[:]) - binary.BigEndian.Uint32(b[:])), true
}

// usedAddresses collects every address bound to a device or a queued task.
func usedAddresses(st *models.State) map[string]bool {
	used := make(map[string]bool)
	for _, slot := range st.Layout {
		for _, d := range slot.Contents {
			if d.InternalIP != "" {
				used[d.InternalIP] = true
			}
			if d.PublicIP != "" {
				used[d.PublicIP] = true
			}
		}
	}
	for _, ip := range st.Network.AssignedPublicIPs {
		used[ip] = true
	}
	for _, t := range st.Tasks {
		if t.IP != "" {
			used[t.IP] = true
		}
		if t.PublicIP != "" {
			used[t.PublicIP] = true
		}
	}
	return used
}

// nextInternalIP picks the first free address at or after the state counter.
func nextInternalIP(st *models.State, subnet netip.Prefix) (string, bool) {
	used := usedAddresses(st)
	for n := st.NextInternalIP; ; n++ {
		addr, ok := hostAddr(subnet, n)
		if !ok {
			return "", false
		}
		if !used[addr.String()] && !isBroadcast(subnet, n) {
			return addr.String(), true
		}
	}
}

// nextPublicIP picks the first free host address of the leased block.
func nextPublicIP(st *models.State) (string, bool) {
	block, err := netip.ParsePrefix(st.Network.PublicIPBlock)
	if err != nil {
		return "", false
	}
	used := usedAddresses(st)
	for n := 1; ; n++ {
		addr, ok := hostAddr(block, n)
		if !ok || isBroadcast(block, n) {
			return "", false
		}
		if !used[addr.String()] {
			return addr.String(), true
		}
	}
}

func isBroadcast(prefix netip.Prefix, n int) bool {
	bits := 32 - prefix.Bits()
	if bits <= 1 || bits >= 32 {
		return false
	}
	return n == (1<<bits)-1
}
