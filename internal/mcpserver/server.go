// Package mcpserver exposes the scanner and network info services as tools
// over the Model Context Protocol. The transport is stdio: stdout carries
// protocol frames, so all logging must stay on stderr.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	netmetrics "github.com/beau-wood/Network-Ops-MCP/internal/metrics"
	"github.com/beau-wood/Network-Ops-MCP/internal/netinfo"
	"github.com/beau-wood/Network-Ops-MCP/internal/scanner"
)

const serverName = "network-ops-mcp"

// Server registers the tool set on an MCP server and serves it on stdio.
type Server struct {
	logger *slog.Logger
	mc     *netmetrics.Collector
	sc     *scanner.Scanner
	ni     *netinfo.Service
	mcp    *server.MCPServer
}

func New(logger *slog.Logger, mc *netmetrics.Collector, sc *scanner.Scanner, ni *netinfo.Service, version string) *Server {
	s := &Server{logger: logger, mc: mc, sc: sc, ni: ni}

	m := server.NewMCPServer(serverName, version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	m.AddTool(mcp.NewTool("scan_ports",
		mcp.WithDescription("Scan TCP ports on a target host and report which are open, which are closed or filtered, and any probe errors."),
		mcp.WithString("host",
			mcp.Required(),
			mcp.Description("Hostname or IP address to scan."),
		),
		mcp.WithArray("ports",
			mcp.Description("Explicit list of ports to scan. Takes precedence over port_range."),
			mcp.Items(map[string]any{"type": "integer"}),
		),
		mcp.WithArray("port_range",
			mcp.Description("Two-element [start, end] inclusive port range."),
			mcp.Items(map[string]any{"type": "integer"}),
		),
		mcp.WithNumber("timeout_seconds",
			mcp.DefaultNumber(0.5),
			mcp.Description("Per-connection timeout in seconds."),
		),
		mcp.WithNumber("max_workers",
			mcp.DefaultNumber(200),
			mcp.Description("Upper bound on concurrent connection attempts."),
		),
	), s.handleScanPorts)

	m.AddTool(mcp.NewTool("get_network_configs",
		mcp.WithDescription("Return the local machine's network interface configuration as reported by the system tool."),
	), s.handleGetNetworkConfigs)

	s.mcp = m
	return s
}

// ServeStdio blocks reading frames from stdin until EOF or ctx cancellation.
func (s *Server) ServeStdio(ctx context.Context) error {
	std := server.NewStdioServer(s.mcp)
	std.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn))
	return std.Listen(ctx, os.Stdin, os.Stdout)
}

func (s *Server) handleScanPorts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	start := time.Now()
	args := req.GetArguments()

	host, _ := args["host"].(string)
	if strings.TrimSpace(host) == "" {
		s.mc.IncToolCall("scan_ports", "invalid_argument")
		return mcp.NewToolResultError("host is required"), nil
	}

	var spec scanner.PortSpec
	if raw, present := args["ports"]; present && raw != nil {
		ports, ok := intSlice(raw)
		if !ok {
			s.mc.IncToolCall("scan_ports", "invalid_argument")
			return mcp.NewToolResultError(scanner.ErrBadPortList.Error()), nil
		}
		spec.Explicit = ports
	}
	if raw, present := args["port_range"]; present && raw != nil {
		pr, ok := intSlice(raw)
		if !ok || len(pr) != 2 {
			s.mc.IncToolCall("scan_ports", "invalid_argument")
			return mcp.NewToolResultError(scanner.ErrBadPortRange.Error()), nil
		}
		spec.Range = &scanner.PortRange{Start: pr[0], End: pr[1]}
	}

	res, err := s.sc.Run(ctx, scanner.Request{
		Host:       host,
		Ports:      spec,
		Timeout:    time.Duration(floatArg(args, "timeout_seconds") * float64(time.Second)),
		MaxWorkers: int(floatArg(args, "max_workers")),
		Surface:    "mcp",
	})
	if err != nil {
		if scanner.IsInvalidArgument(err) {
			s.mc.IncToolCall("scan_ports", "invalid_argument")
			return mcp.NewToolResultError(err.Error()), nil
		}
		s.mc.IncToolCall("scan_ports", "error")
		return nil, err
	}

	b, err := json.Marshal(res)
	if err != nil {
		s.mc.IncToolCall("scan_ports", "error")
		return nil, fmt.Errorf("encode scan result: %w", err)
	}
	s.mc.IncToolCall("scan_ports", "ok")
	s.mc.ObserveToolCallDuration("scan_ports", time.Since(start).Seconds())
	return mcp.NewToolResultText(string(b)), nil
}

func (s *Server) handleGetNetworkConfigs(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	start := time.Now()
	report := s.ni.NetworkConfigs(ctx)
	b, err := json.Marshal(report)
	if err != nil {
		s.mc.IncToolCall("get_network_configs", "error")
		return nil, fmt.Errorf("encode config report: %w", err)
	}
	s.mc.IncToolCall("get_network_configs", "ok")
	s.mc.ObserveToolCallDuration("get_network_configs", time.Since(start).Seconds())
	return mcp.NewToolResultText(string(b)), nil
}

// intSlice coerces a decoded JSON array into ints. JSON numbers arrive as
// float64; fractional values are rejected rather than truncated.
func intSlice(v any) ([]int, bool) {
	raw, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]int, 0, len(raw))
	for _, e := range raw {
		switch n := e.(type) {
		case float64:
			if n != math.Trunc(n) {
				return nil, false
			}
			out = append(out, int(n))
		case int:
			out = append(out, n)
		default:
			return nil, false
		}
	}
	return out, true
}

func floatArg(args map[string]any, key string) float64 {
	switch n := args[key].(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}
