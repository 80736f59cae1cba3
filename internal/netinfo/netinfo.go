package netinfo

import (
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"runtime"
	"slices"

	psnet "github.com/shirou/gopsutil/v3/net"

	"github.com/beau-wood/Network-Ops-MCP/internal/metrics"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// ConfigReport is the pass-through document for the interface-listing
// command: raw stdout, no parsing.
type ConfigReport struct {
	Status         string `json:"status"`
	NetworkConfigs string `json:"network_configs"`
}

// Interface describes one local interface for the operational API.
type Interface struct {
	Name       string   `json:"name"`
	Index      int      `json:"index"`
	MTU        int      `json:"mtu"`
	MACAddress string   `json:"mac_address"`
	Flags      []string `json:"flags"`
	Addresses  []string `json:"addresses"`
	IsUp       bool     `json:"is_up"`
	IsLoopback bool     `json:"is_loopback"`
}

// interfaceCommand is a test seam; the default picks the platform command.
var interfaceCommand = defaultInterfaceCommand

func defaultInterfaceCommand() string {
	if runtime.GOOS == "windows" {
		return "ipconfig"
	}
	return "ifconfig"
}

type Service struct {
	logger *slog.Logger
	mc     *metrics.Collector
}

func NewService(logger *slog.Logger, mc *metrics.Collector) *Service {
	return &Service{logger: logger, mc: mc}
}

// NetworkConfigs runs the platform's interface-listing command and captures
// its stdout verbatim. The command's own exit status does not affect the
// outcome; only a failure to start it yields an error report.
func (s *Service) NetworkConfigs(ctx context.Context) ConfigReport {
	name := interfaceCommand()
	out, err := exec.CommandContext(ctx, name).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			s.mc.IncNetworkConfigRun(StatusError)
			s.logger.Warn("interface listing command failed to start", "command", name, "err", err)
			return ConfigReport{Status: StatusError, NetworkConfigs: err.Error()}
		}
	}
	s.mc.IncNetworkConfigRun(StatusSuccess)
	return ConfigReport{Status: StatusSuccess, NetworkConfigs: string(out)}
}

// Interfaces returns a structured view of the local interfaces, ordered by
// index.
func (s *Service) Interfaces(ctx context.Context) ([]Interface, error) {
	stats, err := psnet.InterfacesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Interface, 0, len(stats))
	for _, st := range stats {
		addrs := make([]string, 0, len(st.Addrs))
		for _, a := range st.Addrs {
			addrs = append(addrs, a.Addr)
		}
		out = append(out, Interface{
			Name:       st.Name,
			Index:      st.Index,
			MTU:        st.MTU,
			MACAddress: st.HardwareAddr,
			Flags:      st.Flags,
			Addresses:  addrs,
			IsUp:       slices.Contains(st.Flags, "up"),
			IsLoopback: slices.Contains(st.Flags, "loopback"),
		})
	}
	slices.SortFunc(out, func(a, b Interface) int { return a.Index - b.Index })
	return out, nil
}
