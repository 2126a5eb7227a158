// Package events streams install pipeline transitions to a socket.io
// server, so a dashboard can follow long builds as they happen.
package events

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/specialistvlad/formulago/internal/build"
	"github.com/specialistvlad/formulago/internal/ctxlog"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// TransitionEvent is the socket.io event name carrying a Transition payload.
const TransitionEvent = "formulago:transition"

// DefaultConnectTimeout bounds the initial connection handshake.
const DefaultConnectTimeout = 15 * time.Second

// Transition is the payload emitted for every pipeline state change.
type Transition struct {
	Package        string  `json:"package"`
	Version        string  `json:"version"`
	From           string  `json:"from"`
	To             string  `json:"to"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	Error          string  `json:"error,omitempty"`
}

// Options configures a socket.io connection.
type Options struct {
	URL                string
	Namespace          string
	InsecureSkipVerify bool
	ConnectTimeout     time.Duration
}

// Publisher is a build.Observer that emits every transition as a
// TransitionEvent. It is safe for concurrent use.
type Publisher struct {
	pkg, version string

	mu    sync.Mutex
	emit  func(event string, payload any)
	close func()
}

var _ build.Observer = (*Publisher)(nil)

// newPublisher wires a Publisher to an arbitrary emit function.
func newPublisher(pkg, version string, emit func(string, any), closeFn func()) *Publisher {
	return &Publisher{pkg: pkg, version: version, emit: emit, close: closeFn}
}

// Connect dials the socket.io server at opts.URL and waits for the
// namespace to be joined. The URL path, if any, is the socket.io path.
func Connect(ctx context.Context, opts Options, pkg, version string) (*Publisher, error) {
	logger := ctxlog.FromContext(ctx).With("events_url", opts.URL)

	parsedURL, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse events URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("events URL %q must be absolute", opts.URL)
	}
	namespace := opts.Namespace
	if namespace == "" {
		namespace = "/"
	}
	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}

	sockOpts := socket.DefaultOptions()
	if parsedURL.Path != "" && parsedURL.Path != "/" {
		sockOpts.SetPath(parsedURL.Path)
	}
	if opts.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		sockOpts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	sockOpts.SetTransports(types.NewSet(transports.WebSocket))

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, sockOpts)
	io := manager.Socket(namespace, sockOpts)

	connected := make(chan error, 1)
	io.Once(types.EventName("connect"), func(...any) {
		select {
		case connected <- nil:
		default:
		}
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		err := errors.New("connect_error")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			}
		}
		select {
		case connected <- err:
		default:
		}
	})

	logger.Debug("Connecting to events server.", "namespace", namespace)
	io.Connect()

	select {
	case err := <-connected:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("context cancelled while waiting for socket.io connection: %w", ctx.Err())
	case <-time.After(timeout):
		io.Disconnect()
		return nil, fmt.Errorf("timed out after %s waiting for socket.io connection", timeout)
	}

	logger.Info("Connected to events server.", "sid", io.Id())
	return newPublisher(pkg, version,
		func(event string, payload any) { io.Emit(event, payload) },
		func() { io.Disconnect() },
	), nil
}

// Transition implements build.Observer.
func (p *Publisher) Transition(ctx context.Context, from, to build.State, elapsed time.Duration, err error) {
	payload := Transition{
		Package:        p.pkg,
		Version:        p.version,
		From:           string(from),
		To:             string(to),
		ElapsedSeconds: elapsed.Seconds(),
	}
	if err != nil {
		payload.Error = err.Error()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.emit == nil {
		return
	}
	ctxlog.FromContext(ctx).Debug("Emitting transition event.", "event", TransitionEvent, "to", to)
	p.emit(TransitionEvent, payload.asMap())
}

// Close disconnects from the server. Later transitions are dropped.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.close != nil {
		p.close()
	}
	p.emit, p.close = nil, nil
}

// asMap renders the payload the way socket.io parsers expect plain JSON
// objects.
func (t Transition) asMap() map[string]any {
	m := map[string]any{
		"package":         t.Package,
		"version":         t.Version,
		"from":            t.From,
		"to":              t.To,
		"elapsed_seconds": t.ElapsedSeconds,
	}
	if t.Error != "" {
		m["error"] = t.Error
	}
	return m
}
