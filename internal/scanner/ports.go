package scanner

import (
	"errors"
	"sort"
)

// InvalidArgumentError rejects a request before any probing begins. It is
// the only error a scan surfaces to the caller as a whole-call failure.
type InvalidArgumentError struct {
	msg string
}

func (e *InvalidArgumentError) Error() string { return e.msg }

// Validation failures returned by BuildPortSet. Transport layers reuse them
// for malformed shapes only they can see (e.g. a port_range pair of the
// wrong arity).
var (
	ErrNoPortSource = &InvalidArgumentError{msg: "either ports or port_range must be provided"}
	ErrBadPortRange = &InvalidArgumentError{msg: "invalid port_range; ports must be between 1 and 65535"}
	ErrBadPortList  = &InvalidArgumentError{msg: "invalid ports; ports must be between 1 and 65535"}
)

// IsInvalidArgument reports whether err is a request-validation failure.
func IsInvalidArgument(err error) bool {
	var ia *InvalidArgumentError
	return errors.As(err, &ia)
}

// PortRange is an inclusive port interval.
type PortRange struct {
	Start int
	End   int
}

// PortSpec is the caller's port selection. Explicit wins over Range when
// both are present; a non-nil empty Explicit list selects zero ports.
type PortSpec struct {
	Explicit []int
	Range    *PortRange
}

// BuildPortSet resolves spec into the sorted, deduplicated list of ports to
// probe. Explicit entries outside [1,65535] fail with ErrBadPortList; a
// malformed range fails with ErrBadPortRange; an empty spec fails with
// ErrNoPortSource.
func BuildPortSet(spec PortSpec) ([]int, error) {
	switch {
	case spec.Explicit != nil:
		seen := make(map[int]struct{}, len(spec.Explicit))
		ports := make([]int, 0, len(spec.Explicit))
		for _, p := range spec.Explicit {
			if p < 1 || p > 65535 {
				return nil, ErrBadPortList
			}
			if _, dup := seen[p]; dup {
				continue
			}
			seen[p] = struct{}{}
			ports = append(ports, p)
		}
		sort.Ints(ports)
		return ports, nil

	case spec.Range != nil:
		r := *spec.Range
		if r.Start < 1 || r.Start > 65535 || r.End < 1 || r.End > 65535 || r.Start > r.End {
			return nil, ErrBadPortRange
		}
		ports := make([]int, 0, r.End-r.Start+1)
		for p := r.Start; p <= r.End; p++ {
			ports = append(ports, p)
		}
		return ports, nil

	default:
		return nil, ErrNoPortSource
	}
}
