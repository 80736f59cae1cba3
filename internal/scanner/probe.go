package scanner

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"syscall"
	"time"
)

// Dialer is the single seam the prober needs. *net.Dialer satisfies it;
// tests substitute fakes.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Probe outcome kinds, used for metrics only.
const (
	kindOpen       = "open"
	kindRefused    = "refused"
	kindTimeout    = "timeout"
	kindOther      = "other"
	kindUnexpected = "unexpected"
)

// Outcome is one port's probe result. Err carries the formatted diagnostic
// ("port N: reason") and is empty when the port is open.
type Outcome struct {
	Port int
	Open bool
	Err  string

	kind string
}

// probe attempts exactly one TCP connection to (host, port) within timeout.
// Every failure mode is folded into the outcome; probe never returns an
// error to its caller. A successful connection is closed immediately, no
// data is exchanged.
func probe(ctx context.Context, d Dialer, host string, port int, timeout time.Duration) Outcome {
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	conn, err := d.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return Outcome{
			Port: port,
			Err:  fmt.Sprintf("port %d: %v", port, err),
			kind: classifyDialError(err),
		}
	}
	_ = conn.Close()
	return Outcome{Port: port, Open: true, kind: kindOpen}
}

func classifyDialError(err error) string {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return kindTimeout
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return kindRefused
	}
	return kindOther
}
