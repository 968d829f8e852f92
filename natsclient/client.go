// Package natsclient provides a managed NATS connection with failure
// tracking for alert publishing and reading ingestion.
package natsclient

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360/agroflow/errors"
)

// ConnectionStatus represents the state of the NATS connection
type ConnectionStatus int32

// Possible connection statuses
const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
)

// String returns the string representation of ConnectionStatus
func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Options configures the client connection behavior
type Options struct {
	Name          string
	MaxReconnects int
	ReconnectWait time.Duration
	ConnectWait   time.Duration
}

// DefaultOptions returns sensible connection defaults
func DefaultOptions() Options {
	return Options{
		Name:          "agroflow",
		MaxReconnects: -1, // reconnect forever
		ReconnectWait: 2 * time.Second,
		ConnectWait:   5 * time.Second,
	}
}

// Client wraps a NATS connection with status and failure tracking.
type Client struct {
	url  string
	opts Options

	mu   sync.RWMutex
	conn *nats.Conn

	status   atomic.Int32
	failures atomic.Int32

	logger *slog.Logger
}

// NewClient creates an unconnected client for the given server URL.
func NewClient(url string, opts Options) *Client {
	if url == "" {
		url = nats.DefaultURL
	}
	return &Client{
		url:    url,
		opts:   opts,
		logger: slog.Default().With("component", "natsclient"),
	}
}

// Connect establishes the connection, honoring ctx for the initial dial.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil && c.conn.IsConnected() {
		return nil
	}

	c.status.Store(int32(StatusConnecting))

	natsOpts := []nats.Option{
		nats.Name(c.opts.Name),
		nats.MaxReconnects(c.opts.MaxReconnects),
		nats.ReconnectWait(c.opts.ReconnectWait),
		nats.Timeout(c.opts.ConnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			c.status.Store(int32(StatusReconnecting))
			c.failures.Add(1)
			c.logger.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			c.status.Store(int32(StatusConnected))
			c.logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			c.status.Store(int32(StatusDisconnected))
		}),
	}

	type dialResult struct {
		conn *nats.Conn
		err  error
	}
	resultCh := make(chan dialResult, 1)
	go func() {
		conn, err := nats.Connect(c.url, natsOpts...)
		resultCh <- dialResult{conn, err}
	}()

	select {
	case <-ctx.Done():
		c.status.Store(int32(StatusDisconnected))
		return errors.WrapTransient(ctx.Err(), "Client", "Connect", "dial NATS")
	case res := <-resultCh:
		if res.err != nil {
			c.status.Store(int32(StatusDisconnected))
			c.failures.Add(1)
			return errors.WrapTransient(res.err, "Client", "Connect", "dial NATS")
		}
		c.conn = res.conn
		c.status.Store(int32(StatusConnected))
		c.logger.Info("NATS connected", "url", res.conn.ConnectedUrl())
		return nil
	}
}

// Status returns the current connection status.
func (c *Client) Status() ConnectionStatus {
	return ConnectionStatus(c.status.Load())
}

// IsHealthy reports whether the connection is usable.
func (c *Client) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && c.conn.IsConnected()
}

// Failures returns the count of connection failures observed.
func (c *Client) Failures() int32 {
	return c.failures.Load()
}

// Publish sends data to a subject.
func (c *Client) Publish(_ context.Context, subject string, data []byte) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || !conn.IsConnected() {
		return errors.WrapTransient(errors.ErrNoConnection, "Client", "Publish", "check connection")
	}
	if err := conn.Publish(subject, data); err != nil {
		c.failures.Add(1)
		return errors.WrapTransient(err, "Client", "Publish", "publish to "+subject)
	}
	return nil
}

// Subscribe delivers messages on subject to handler until ctx is cancelled.
func (c *Client) Subscribe(ctx context.Context, subject string, handler func(context.Context, []byte)) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || !conn.IsConnected() {
		return errors.WrapTransient(errors.ErrNoConnection, "Client", "Subscribe", "check connection")
	}

	sub, err := conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(ctx, msg.Data)
	})
	if err != nil {
		return errors.WrapTransient(err, "Client", "Subscribe", "subscribe to "+subject)
	}

	go func() {
		<-ctx.Done()
		if err := sub.Unsubscribe(); err != nil {
			c.logger.Warn("Unsubscribe failed", "subject", subject, "error", err)
		}
	}()

	return nil
}

// Close drains and closes the connection.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() {
		done <- c.conn.Drain()
	}()

	select {
	case <-ctx.Done():
		c.conn.Close()
	case err := <-done:
		if err != nil {
			c.conn.Close()
		}
	}

	c.conn = nil
	c.status.Store(int32(StatusDisconnected))
	return nil
}
