package netinfo

import (
	"context"
	"runtime"
	"strings"
	"testing"

	"github.com/beau-wood/Network-Ops-MCP/internal/metrics"
	"github.com/beau-wood/Network-Ops-MCP/internal/sloglogger"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	logger, _ := sloglogger.NewLogger("error", "text")
	return NewService(logger, metrics.NewMetricsCollector())
}

func TestNetworkConfigsCapturesStdout(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on a unix command")
	}
	old := interfaceCommand
	interfaceCommand = func() string { return "uname" }
	defer func() { interfaceCommand = old }()

	s := newTestService(t)
	rep := s.NetworkConfigs(context.Background())
	if rep.Status != StatusSuccess {
		t.Fatalf("expected success, got %+v", rep)
	}
	if strings.TrimSpace(rep.NetworkConfigs) == "" {
		t.Fatalf("expected captured stdout")
	}
}

func TestNetworkConfigsNonZeroExitIsStillSuccess(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on a unix command")
	}
	old := interfaceCommand
	interfaceCommand = func() string { return "false" }
	defer func() { interfaceCommand = old }()

	s := newTestService(t)
	rep := s.NetworkConfigs(context.Background())
	if rep.Status != StatusSuccess {
		t.Fatalf("non-zero exit must not fail the report, got %+v", rep)
	}
}

func TestNetworkConfigsStartFailure(t *testing.T) {
	old := interfaceCommand
	interfaceCommand = func() string { return "/nonexistent/interface-tool" }
	defer func() { interfaceCommand = old }()

	s := newTestService(t)
	rep := s.NetworkConfigs(context.Background())
	if rep.Status != StatusError {
		t.Fatalf("expected error status, got %+v", rep)
	}
	if rep.NetworkConfigs == "" {
		t.Fatalf("expected the failure reason in the payload")
	}
}

func TestInterfacesStructured(t *testing.T) {
	s := newTestService(t)
	ifaces, err := s.Interfaces(context.Background())
	if err != nil {
		t.Fatalf("interfaces: %v", err)
	}
	if len(ifaces) == 0 {
		t.Skip("no interfaces visible in this environment")
	}
	for i, it := range ifaces {
		if it.Name == "" {
			t.Fatalf("interface %d has no name: %+v", i, it)
		}
		if i > 0 && ifaces[i-1].Index > it.Index {
			t.Fatalf("interfaces not ordered by index")
		}
	}
}
