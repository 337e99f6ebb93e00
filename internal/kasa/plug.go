package kasa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/shizukutanaka/smartplug/internal/errors"
)

var errHandleClosed = errors.New("handle closed")

// Outlet is one switchable socket of the strip as last read.
type Outlet struct {
	Index int
	ID    string
	Alias string
	On    bool
}

// Plug is a handle on one discovered strip. It owns a TCP session that must
// be released with Close. A handle whose session failed is stale: every
// later call fails with a stale-handle error and the strip has to be
// discovered again.
type Plug struct {
	client  *Client
	address string
	logger  *zap.Logger

	mu       sync.Mutex
	conn     net.Conn
	stale    bool
	alias    string
	deviceID string
	outlets  []Outlet
}

func newPlug(c *Client, address string, conn net.Conn) *Plug {
	return &Plug{
		client:  c,
		address: address,
		logger:  c.logger.With(zap.String("address", address)),
		conn:    conn,
	}
}

// Address returns host:port of the device.
func (p *Plug) Address() string {
	return p.address
}

// Alias returns the device name as last read.
func (p *Plug) Alias() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.alias
}

// Outlets returns a copy of the outlets as last read.
func (p *Plug) Outlets() []Outlet {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Outlet(nil), p.outlets...)
}

// Outlet returns the outlet at index as last read.
func (p *Plug) Outlet(index int) (Outlet, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outletLocked(index)
}

func (p *Plug) outletLocked(index int) (Outlet, error) {
	if len(p.outlets) == 0 {
		return Outlet{}, apperrors.New(apperrors.KindConfiguration, "outlet",
			"no child sockets detected, this may not be a power strip")
	}
	if index < 0 || index >= len(p.outlets) {
		return Outlet{}, apperrors.Wrapf(apperrors.KindConfiguration, "outlet",
			"outlet index %d out of range 0..%d", index, len(p.outlets)-1)
	}
	return p.outlets[index], nil
}

// Stale reports whether the handle can no longer be used.
func (p *Plug) Stale() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stale
}

// Refresh re-reads the live state. Any failure invalidates the handle.
func (p *Plug) Refresh(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refreshLocked(ctx)
}

func (p *Plug) refreshLocked(ctx context.Context) error {
	const op = "refresh"

	resp, err := p.roundTripLocked(ctx, getSysinfoRequest())
	if err != nil {
		p.invalidateLocked()
		return apperrors.Wrap(apperrors.KindStaleHandle, op, err)
	}
	info := resp.System.GetSysinfo
	if info == nil {
		p.invalidateLocked()
		return apperrors.New(apperrors.KindStaleHandle, op, "reply without sysinfo")
	}
	if info.ErrCode != 0 {
		p.invalidateLocked()
		return apperrors.Wrapf(apperrors.KindStaleHandle, op, "device error %d: %s", info.ErrCode, info.ErrMsg)
	}

	p.alias = info.Alias
	p.deviceID = info.DeviceID
	p.outlets = p.outlets[:0]
	for i, child := range info.Children {
		p.outlets = append(p.outlets, Outlet{
			Index: i,
			ID:    child.ID,
			Alias: child.Alias,
			On:    child.State == 1,
		})
	}
	return nil
}

// SetOutletPower switches one outlet, waits for the relay to settle and
// re-reads to confirm. A mismatch after the confirm read is reported as a
// command error and not retried.
func (p *Plug) SetOutletPower(ctx context.Context, index int, on bool) error {
	const op = "set_outlet_power"

	p.mu.Lock()
	defer p.mu.Unlock()

	outlet, err := p.outletLocked(index)
	if err != nil {
		return err
	}

	resp, err := p.roundTripLocked(ctx, setRelayStateRequest(p.childIDLocked(outlet), on))
	if err != nil {
		return apperrors.Wrapf(apperrors.KindCommand, op, "outlet %d: %w", index, err)
	}
	if ack := resp.System.SetRelayState; ack == nil || ack.ErrCode != 0 {
		code, msg := -1, "missing acknowledgement"
		if ack != nil {
			code, msg = ack.ErrCode, ack.ErrMsg
		}
		return apperrors.Wrapf(apperrors.KindCommand, op, "outlet %d: device error %d: %s", index, code, msg)
	}

	if delay := p.client.options().SettleDelay; delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return apperrors.Wrapf(apperrors.KindCommand, op, "outlet %d: unconfirmed: %w", index, ctx.Err())
		}
	}

	if err := p.refreshLocked(ctx); err != nil {
		return apperrors.Wrapf(apperrors.KindCommand, op, "outlet %d: confirm read: %w", index, err)
	}
	confirmed, err := p.outletLocked(index)
	if err != nil {
		return apperrors.Wrapf(apperrors.KindCommand, op, "outlet %d: confirm read: %w", index, err)
	}
	if confirmed.On != on {
		p.logger.Warn("Outlet state does not match request",
			zap.Int("outlet", index),
			zap.Bool("requested", on),
			zap.Bool("confirmed", confirmed.On),
		)
		return apperrors.Wrapf(apperrors.KindCommand, op,
			"outlet %d unconfirmed: requested %s, device reports %s", index, onOff(on), onOff(confirmed.On))
	}
	return nil
}

// Close releases the session. It is safe to call more than once.
func (p *Plug) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.conn = nil
	p.stale = true
	return err
}

func (p *Plug) invalidateLocked() {
	p.stale = true
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
}

// childIDLocked returns the id used in request contexts. Some firmware
// reports the short per-socket suffix only.
func (p *Plug) childIDLocked(o Outlet) string {
	if p.deviceID != "" && !strings.HasPrefix(o.ID, p.deviceID) {
		return p.deviceID + o.ID
	}
	return o.ID
}

func (p *Plug) roundTripLocked(ctx context.Context, req request) (*response, error) {
	if p.stale || p.conn == nil {
		return nil, apperrors.Wrap(apperrors.KindStaleHandle, "round_trip", errHandleClosed)
	}
	if err := p.client.wait(ctx); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(p.client.options().CommandTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := p.conn.SetDeadline(deadline); err != nil {
		p.invalidateLocked()
		return nil, err
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	if err := WriteFrame(p.conn, payload); err != nil {
		p.invalidateLocked()
		return nil, fmt.Errorf("write: %w", err)
	}
	reply, err := ReadFrame(p.conn)
	if err != nil {
		p.invalidateLocked()
		return nil, fmt.Errorf("read: %w", err)
	}

	var resp response
	if err := json.Unmarshal(reply, &resp); err != nil {
		p.invalidateLocked()
		return nil, fmt.Errorf("decode: %w", err)
	}
	return &resp, nil
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}
