package baseline

import (
	"net"
	"strconv"
	"strings"
)

// Entry is a single expected-service rule used to build the map.
type Entry struct {
	Target string   // hostname, single IP, or CIDR
	Ports  []string // "22" or "8000-8010"
}

// owner links a port to the rule that expects it.
type owner struct {
	literal string
	ip      net.IP
	network *net.IPNet
}

// Map answers whether an open port was expected for a scan target. Open
// ports outside the map are counted as unexpected exposure in metrics; the
// scan result document itself is never altered.
type Map struct {
	portMap map[int][]*owner
}

// Build constructs the map from the entries. Invalid ports and ranges are
// skipped.
func Build(entries []Entry) *Map {
	m := &Map{portMap: make(map[int][]*owner)}
	for _, e := range entries {
		target := strings.TrimSpace(e.Target)
		if target == "" {
			continue
		}

		ow := &owner{literal: target}
		if ip := net.ParseIP(target); ip != nil {
			ow.ip = ip
		} else if _, nw, err := net.ParseCIDR(target); err == nil && nw != nil {
			ow.network = nw
		}

		for _, ps := range e.Ports {
			ps = strings.TrimSpace(ps)
			if ps == "" {
				continue
			}
			if strings.Contains(ps, "-") {
				parts := strings.SplitN(ps, "-", 2)
				a, errA := strconv.Atoi(parts[0])
				b, errB := strconv.Atoi(parts[1])
				if errA != nil || errB != nil || a < 1 || b < 1 || a > 65535 || b > 65535 || a > b {
					continue
				}
				for p := a; p <= b; p++ {
					m.portMap[p] = append(m.portMap[p], ow)
				}
			} else {
				p, err := strconv.Atoi(ps)
				if err != nil || p < 1 || p > 65535 {
					continue
				}
				m.portMap[p] = append(m.portMap[p], ow)
			}
		}
	}
	return m
}

// Expected reports whether target:port matches a rule. Targets match by
// exact configured string, by IP equality, or by CIDR containment when the
// scan target parses as an IP.
func (m *Map) Expected(target string, port int) bool {
	if m == nil {
		return false
	}
	owners, ok := m.portMap[port]
	if !ok || len(owners) == 0 {
		return false
	}
	target = strings.TrimSpace(target)
	tip := net.ParseIP(target)
	for _, ow := range owners {
		if ow.literal == target {
			return true
		}
		if tip == nil {
			continue
		}
		if (ow.ip != nil && ow.ip.Equal(tip)) || (ow.network != nil && ow.network.Contains(tip)) {
			return true
		}
	}
	return false
}
