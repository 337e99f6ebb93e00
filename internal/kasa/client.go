// Package kasa drives one TP-Link Kasa smart power strip over the local
// network using the legacy XOR protocol: a UDP probe for discovery, then a
// TCP session for reads and relay commands.
package kasa

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	apperrors "github.com/shizukutanaka/smartplug/internal/errors"
)

// Options bounds every network interaction with the device.
type Options struct {
	Port              int
	DiscoveryTimeout  time.Duration
	CommandTimeout    time.Duration
	SettleDelay       time.Duration
	RequestsPerSecond float64
}

// DefaultOptions returns the values used for unset fields.
func DefaultOptions() Options {
	return Options{
		Port:              DefaultPort,
		DiscoveryTimeout:  5 * time.Second,
		CommandTimeout:    5 * time.Second,
		SettleDelay:       500 * time.Millisecond,
		RequestsPerSecond: 4,
	}
}

// Client discovers strips and hands out Plug handles. It is safe for
// concurrent use; requests from all handles share one rate limiter.
type Client struct {
	logger  *zap.Logger
	limiter *rate.Limiter
	dialer  net.Dialer

	mu   sync.RWMutex
	opts Options
}

// NewClient creates a client. Zero option fields take DefaultOptions values.
func NewClient(logger *zap.Logger, opts Options) *Client {
	opts = withDefaults(opts)
	return &Client{
		logger:  logger.Named("kasa"),
		opts:    opts,
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1),
	}
}

// Reconfigure replaces the options. Sessions already open pick the new
// timeouts up on their next request.
func (c *Client) Reconfigure(opts Options) {
	opts = withDefaults(opts)
	c.mu.Lock()
	c.opts = opts
	c.mu.Unlock()
	c.limiter.SetLimit(rate.Limit(opts.RequestsPerSecond))
}

func (c *Client) options() Options {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.opts
}

func withDefaults(opts Options) Options {
	def := DefaultOptions()
	if opts.Port == 0 {
		opts.Port = def.Port
	}
	if opts.DiscoveryTimeout <= 0 {
		opts.DiscoveryTimeout = def.DiscoveryTimeout
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = def.CommandTimeout
	}
	if opts.SettleDelay < 0 {
		opts.SettleDelay = 0
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = def.RequestsPerSecond
	}
	return opts
}

// Discover probes ip, opens a session and reads the initial state. The whole
// exchange is bounded by the discovery timeout. Failures are classified as
// discovery errors and never retried here.
func (c *Client) Discover(ctx context.Context, ip string) (*Plug, error) {
	const op = "discover"

	if net.ParseIP(ip) == nil {
		return nil, apperrors.Wrapf(apperrors.KindConfiguration, op, "invalid ip address %q", ip)
	}
	opts := c.options()
	address := net.JoinHostPort(ip, strconv.Itoa(opts.Port))

	ctx, cancel := context.WithTimeout(ctx, opts.DiscoveryTimeout)
	defer cancel()

	info, err := c.probe(ctx, address)
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.KindDiscovery, op, "no reply from %s: %w", address, err)
	}
	c.logger.Debug("Probe answered",
		zap.String("address", address),
		zap.String("alias", info.Alias),
		zap.String("model", info.Model),
	)

	conn, err := c.dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.KindDiscovery, op, "connect %s: %w", address, err)
	}

	plug := newPlug(c, address, conn)
	if err := plug.Refresh(ctx); err != nil {
		plug.Close()
		return nil, apperrors.Wrapf(apperrors.KindDiscovery, op, "initial read from %s: %w", address, err)
	}

	c.logger.Info("Found device",
		zap.String("address", address),
		zap.String("alias", plug.Alias()),
		zap.Int("outlets", len(plug.Outlets())),
	)
	return plug, nil
}

// probe sends get_sysinfo as a single unframed datagram and waits for the
// answer.
func (c *Client) probe(ctx context.Context, address string) (*sysInfo, error) {
	conn, err := c.dialer.DialContext(ctx, "udp", address)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return nil, err
		}
	}
	// Unblock the read as soon as the caller gives up.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	payload, err := json.Marshal(getSysinfoRequest())
	if err != nil {
		return nil, err
	}
	if _, err := conn.Write(Encrypt(payload)); err != nil {
		return nil, err
	}

	buf := make([]byte, 64*1024)
	n, err := conn.Read(buf)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}

	var resp response
	if err := json.Unmarshal(Decrypt(buf[:n]), &resp); err != nil {
		return nil, fmt.Errorf("decode probe reply: %w", err)
	}
	if resp.System.GetSysinfo == nil {
		return nil, fmt.Errorf("probe reply without sysinfo")
	}
	return resp.System.GetSysinfo, nil
}

// wait blocks until the device may receive another request.
func (c *Client) wait(ctx context.Context) error {
	return c.limiter.Wait(ctx)
}
