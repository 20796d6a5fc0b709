// Package supervisor implements the Reconnect & Heartbeat Supervisor (C4):
// periodic liveness probing and capped-exponential-backoff reconnect with
// enable-state replay, per spec.md §4.4.
//
// Grounded on cenkalti/backoff/v4 (a grafana-k6 indirect dependency via
// OpenTelemetry's exporter retry logic) for the backoff sequence, and on
// _teacher/common/browser.go's reconnect-adjacent connect()/initEvents()
// pairing for the "reattach then replay subscriptions" shape, generalized
// here to spec.md's explicit heartbeat + capped-backoff policy, which the
// teacher's xk6-browser does not implement (k6 runs are short-lived and
// simply fail the run on disconnect).
package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ByteAshen/cdpgo/internal/xlog"
	"github.com/ByteAshen/cdpgo/session"
	"github.com/ByteAshen/cdpgo/wire"
)

// Dialer opens a fresh wire.Channel to the same endpoint, for use on
// reconnect attempts.
type Dialer func(ctx context.Context) (*wire.Channel, error)

// ReplayFunc re-applies whatever per-domain "enable" state the Command
// Surface (C5) recorded as having succeeded, so subscriptions the user
// registered continue to deliver events after a reconnect.
type ReplayFunc func(ctx context.Context) error

// PingFunc issues one cheap liveness probe (e.g. a version query) with the
// given timeout already applied by the caller.
type PingFunc func(ctx context.Context) error

// Config carries the options from spec.md §6 relevant to C4.
type Config struct {
	EnableHeartbeat   bool
	HeartbeatInterval time.Duration // default 15s, minimum 1s

	AutoReconnect              bool
	ReconnectDelay             time.Duration // default 1s
	ReconnectMaxDelay          time.Duration // default 30s
	ReconnectMaxAttempts       int           // 0 = unbounded
	ReconnectBackoffMultiplier float64       // default 2.0
}

// DefaultConfig returns spec.md §6's documented defaults.
func DefaultConfig() Config {
	return Config{
		EnableHeartbeat:            true,
		HeartbeatInterval:          15 * time.Second,
		AutoReconnect:              true,
		ReconnectDelay:             time.Second,
		ReconnectMaxDelay:          30 * time.Second,
		ReconnectMaxAttempts:       0,
		ReconnectBackoffMultiplier: 2.0,
	}
}

// Hooks are the observability callbacks spec.md §4.4 requires ("reconnect
// is observable: a hook fires on each disconnect and each successful
// reconnect").
type Hooks struct {
	OnDisconnect func(err error)
	OnReconnect  func()
	// OnGiveUp fires when ReconnectMaxAttempts is exhausted without success.
	OnGiveUp func(err error)
}

// Supervisor drives one session.Session's reconnect/heartbeat lifecycle.
type Supervisor struct {
	sess   *session.Session
	dial   Dialer
	replay ReplayFunc
	ping   PingFunc
	cfg    Config
	hooks  Hooks
	log    *xlog.Logger

	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New attaches a Supervisor to sess. It installs sess's disconnect hook, so
// constructing more than one Supervisor over the same Session is not
// supported (the later one wins).
func New(sess *session.Session, dial Dialer, ping PingFunc, replay ReplayFunc, cfg Config, hooks Hooks, log *xlog.Logger) *Supervisor {
	if log == nil {
		log = xlog.Null()
	}
	if cfg.HeartbeatInterval < time.Second {
		cfg.HeartbeatInterval = 15 * time.Second
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = time.Second
	}
	if cfg.ReconnectMaxDelay <= 0 {
		cfg.ReconnectMaxDelay = 30 * time.Second
	}
	if cfg.ReconnectBackoffMultiplier <= 0 {
		cfg.ReconnectBackoffMultiplier = 2.0
	}

	sv := &Supervisor{
		sess:   sess,
		dial:   dial,
		replay: replay,
		ping:   ping,
		cfg:    cfg,
		hooks:  hooks,
		log:    log.WithCategory("supervisor"),
		stopCh: make(chan struct{}),
	}

	sess.SetDisconnectHook(sv.handleDisconnect)

	if cfg.EnableHeartbeat && ping != nil {
		sv.wg.Add(1)
		go sv.heartbeatLoop()
	}
	return sv
}

// Close stops the heartbeat loop and any in-flight reconnect wait. It does
// not close the underlying Session.
func (sv *Supervisor) Close() {
	sv.closeOnce.Do(func() {
		close(sv.stopCh)
	})
	sv.wg.Wait()
}

func (sv *Supervisor) heartbeatLoop() {
	defer sv.wg.Done()

	ticker := time.NewTicker(sv.cfg.HeartbeatInterval)
	defer ticker.Stop()

	consecutiveFailures := 0
	for {
		select {
		case <-sv.stopCh:
			return
		case <-ticker.C:
			if sv.sess.State() != session.StateConnected {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), sv.cfg.HeartbeatInterval)
			err := sv.ping(ctx)
			cancel()

			if err == nil {
				consecutiveFailures = 0
				continue
			}
			consecutiveFailures++
			sv.log.Debugf("heartbeat failure %d: %v", consecutiveFailures, err)
			if consecutiveFailures >= 2 {
				sv.log.Warnf("heartbeat missed twice, forcing disconnect")
				consecutiveFailures = 0
				// Force the current generation's channel closed; the
				// session's receive loop will observe the error and invoke
				// handleDisconnect, which drives the reconnect below.
				_ = sv.sess.Channel().Close(1001, "heartbeat timeout")
			}
		}
	}
}

// handleDisconnect is installed as the Session's DisconnectFunc. It is
// invoked on the (now-dead) generation's receive-loop goroutine, so the
// actual reconnect wait runs on a separate goroutine to avoid blocking
// Session internals.
func (sv *Supervisor) handleDisconnect(err error) {
	if sv.hooks.OnDisconnect != nil {
		sv.hooks.OnDisconnect(err)
	}

	if !sv.cfg.AutoReconnect {
		_ = sv.sess.Close()
		return
	}

	sv.wg.Add(1)
	go sv.reconnectLoop(err)
}

func (sv *Supervisor) reconnectLoop(lastErr error) {
	defer sv.wg.Done()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = sv.cfg.ReconnectDelay
	bo.MaxInterval = sv.cfg.ReconnectMaxDelay
	bo.Multiplier = sv.cfg.ReconnectBackoffMultiplier
	// No jitter, so ReconnectMaxDelay is a hard cap on every delay.
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0 // attempts are bounded by ReconnectMaxAttempts, not elapsed time

	for attempt := 1; ; attempt++ {
		if sv.cfg.ReconnectMaxAttempts > 0 && attempt > sv.cfg.ReconnectMaxAttempts {
			sv.log.Errorf("giving up after %d reconnect attempts: %v", sv.cfg.ReconnectMaxAttempts, lastErr)
			_ = sv.sess.Close()
			if sv.hooks.OnGiveUp != nil {
				sv.hooks.OnGiveUp(lastErr)
			}
			return
		}

		delay := bo.NextBackOff()
		select {
		case <-time.After(delay):
		case <-sv.stopCh:
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), sv.cfg.ReconnectMaxDelay)
		ch, err := sv.dial(ctx)
		cancel()
		if err != nil {
			lastErr = err
			sv.log.Debugf("reconnect attempt %d failed: %v", attempt, err)
			continue
		}

		sv.sess.Reattach(ch)

		if sv.replay != nil {
			replayCtx, replayCancel := context.WithTimeout(context.Background(), sv.cfg.ReconnectMaxDelay)
			replayErr := sv.replay(replayCtx)
			replayCancel()
			if replayErr != nil {
				sv.log.Errorf("reconnected but failed to replay enable state: %v", replayErr)
			}
		}

		sv.log.Infof("reconnected after %d attempt(s)", attempt)
		if sv.hooks.OnReconnect != nil {
			sv.hooks.OnReconnect()
		}
		return
	}
}
