package mcpserver

import (
	"context"
	"encoding/json"
	"net"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	cfgpkg "github.com/beau-wood/Network-Ops-MCP/internal/config"
	netmetrics "github.com/beau-wood/Network-Ops-MCP/internal/metrics"
	"github.com/beau-wood/Network-Ops-MCP/internal/netinfo"
	"github.com/beau-wood/Network-Ops-MCP/internal/scanner"
	"github.com/beau-wood/Network-Ops-MCP/internal/sloglogger"
	trackerpkg "github.com/beau-wood/Network-Ops-MCP/internal/tracker"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	logger, _ := sloglogger.NewLogger("error", "text")
	mc := netmetrics.NewMetricsCollector()
	tr := trackerpkg.New()
	mgr := cfgpkg.NewManager(cfgpkg.Default(), "")
	sc := scanner.New(logger, mc, tr, mgr)
	ni := netinfo.NewService(logger, mc)
	return New(logger, mc, sc, ni, "test")
}

func toolRequest(name string, args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) == 0 {
		t.Fatalf("result has no content: %+v", res)
	}
	tc, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content is not text: %T", res.Content[0])
	}
	return tc.Text
}

func startListener(t *testing.T) (int, func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			_ = conn.Close()
		}
	}()
	return ln.Addr().(*net.TCPAddr).Port, func() { _ = ln.Close() }
}

func TestScanPortsToolValidation(t *testing.T) {
	s := newTestServer(t)

	cases := []struct {
		name    string
		args    map[string]any
		wantMsg string
	}{
		{"missing host", map[string]any{}, "host is required"},
		{"blank host", map[string]any{"host": "  "}, "host is required"},
		{"no port source", map[string]any{"host": "127.0.0.1"},
			"either ports or port_range must be provided"},
		{"range arity", map[string]any{"host": "127.0.0.1", "port_range": []any{float64(80)}},
			"invalid port_range; ports must be between 1 and 65535"},
		{"range bounds", map[string]any{"host": "127.0.0.1", "port_range": []any{float64(0), float64(80)}},
			"invalid port_range; ports must be between 1 and 65535"},
		{"bad port value", map[string]any{"host": "127.0.0.1", "ports": []any{float64(0)}},
			"invalid ports; ports must be between 1 and 65535"},
		{"fractional port", map[string]any{"host": "127.0.0.1", "ports": []any{80.5}},
			"invalid ports; ports must be between 1 and 65535"},
		{"non-numeric port", map[string]any{"host": "127.0.0.1", "ports": []any{"ssh"}},
			"invalid ports; ports must be between 1 and 65535"},
	}
	for _, tc := range cases {
		res, err := s.handleScanPorts(context.Background(), toolRequest("scan_ports", tc.args))
		if err != nil {
			t.Fatalf("%s: handler must not fail the call: %v", tc.name, err)
		}
		if !res.IsError {
			t.Fatalf("%s: expected error result, got %s", tc.name, resultText(t, res))
		}
		if got := resultText(t, res); got != tc.wantMsg {
			t.Fatalf("%s: expected %q, got %q", tc.name, tc.wantMsg, got)
		}
	}
}

func TestScanPortsToolScansListener(t *testing.T) {
	s := newTestServer(t)

	open, stop := startListener(t)
	defer stop()

	res, err := s.handleScanPorts(context.Background(), toolRequest("scan_ports", map[string]any{
		"host":            "127.0.0.1",
		"ports":           []any{float64(open)},
		"timeout_seconds": 2.0,
		"max_workers":     float64(10),
	}))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected error result: %s", resultText(t, res))
	}

	var sr scanner.Result
	if err := json.Unmarshal([]byte(resultText(t, res)), &sr); err != nil {
		t.Fatalf("decode result payload: %v", err)
	}
	if sr.Target != "127.0.0.1" {
		t.Fatalf("target wrong: %q", sr.Target)
	}
	if len(sr.OpenPorts) != 1 || sr.OpenPorts[0] != open {
		t.Fatalf("expected open=[%d], got %v", open, sr.OpenPorts)
	}
	if len(sr.Errors) != 0 {
		t.Fatalf("expected no errors, got %v", sr.Errors)
	}
}

func TestScanPortsToolEmptyList(t *testing.T) {
	s := newTestServer(t)

	res, err := s.handleScanPorts(context.Background(), toolRequest("scan_ports", map[string]any{
		"host":  "127.0.0.1",
		"ports": []any{},
	}))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected error result: %s", resultText(t, res))
	}
	want := `{"target":"127.0.0.1","open_ports":[],"closed_or_filtered":[],"errors":[]}`
	if got := resultText(t, res); got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestScanPortsToolExplicitWinsOverRange(t *testing.T) {
	s := newTestServer(t)

	open, stop := startListener(t)
	defer stop()

	// the range is huge but the explicit list limits the scan to one port
	res, err := s.handleScanPorts(context.Background(), toolRequest("scan_ports", map[string]any{
		"host":       "127.0.0.1",
		"ports":      []any{float64(open)},
		"port_range": []any{float64(1), float64(65535)},
	}))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected error result: %s", resultText(t, res))
	}
	var sr scanner.Result
	if err := json.Unmarshal([]byte(resultText(t, res)), &sr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(sr.OpenPorts)+len(sr.ClosedOrFiltered) != 1 {
		t.Fatalf("explicit list must win over range, got %+v", sr)
	}
}

func TestGetNetworkConfigsTool(t *testing.T) {
	s := newTestServer(t)

	res, err := s.handleGetNetworkConfigs(context.Background(), toolRequest("get_network_configs", nil))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected error result: %s", resultText(t, res))
	}

	var rep netinfo.ConfigReport
	if err := json.Unmarshal([]byte(resultText(t, res)), &rep); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if rep.Status != netinfo.StatusSuccess && rep.Status != netinfo.StatusError {
		t.Fatalf("status must always be set, got %+v", rep)
	}
	if !strings.Contains(resultText(t, res), "network_configs") {
		t.Fatalf("payload missing network_configs field")
	}
}
