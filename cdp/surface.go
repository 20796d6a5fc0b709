// Package cdp is the Command Surface (C5): one small struct per protocol
// domain, each borrowing a *session.Session rather than owning a channel.
// Grounded on spec.md §4.5's calling convention and on
// _teacher/chromium's per-domain call wrappers (action.go, page.go) for the
// method-name/params/result shape, generalized away from a single engine's
// domain set.
package cdp

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/ByteAshen/cdpgo/errdefs"
	"github.com/ByteAshen/cdpgo/session"
)

type enableEntry struct {
	domain string
	replay func(ctx context.Context) error
}

// Surface is the shared plumbing every per-domain wrapper embeds: it
// marshals params, calls Session.Send, and unmarshals the result, and it
// records — in the order enable() calls first succeeded — which domains
// have a live enable in effect, so the reconnect supervisor can replay
// exactly that sequence after a reconnect (spec.md §4.4).
type Surface struct {
	sess    *session.Session
	timeout time.Duration

	mu      sync.Mutex
	enabled []enableEntry
}

// NewSurface builds a Surface over sess. timeout<=0 defers to the Session's
// own default.
func NewSurface(sess *session.Session, timeout time.Duration) *Surface {
	return &Surface{sess: sess, timeout: timeout}
}

// Call marshals params (nil allowed), sends method, and unmarshals the
// result into out (nil to discard it).
func (s *Surface) Call(ctx context.Context, method string, params, out interface{}) error {
	raw, err := s.sess.Send(ctx, method, params, s.timeout)
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &errdefs.ProtocolError{Code: 0, Message: err.Error()}
	}
	return nil
}

// On, Once and WaitFor pass straight through to the underlying Session;
// Surface adds no state to the event path (spec.md §4.5: "stateless beyond
// the enable-flag set").
func (s *Surface) On(event string, handler session.Handler) *session.Token {
	return s.sess.On(event, handler)
}

func (s *Surface) Once(event string) (<-chan session.Event, *session.Token) {
	return s.sess.Once(event)
}

func (s *Surface) WaitFor(ctx context.Context, event string, timeout time.Duration) (session.Event, error) {
	return s.sess.WaitFor(ctx, event, timeout)
}

// recordEnable appends domain to the replay sequence the first time it is
// enabled; re-enabling an already-recorded domain is a no-op so its
// original replay position is preserved.
func (s *Surface) recordEnable(domain string, replay func(ctx context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.enabled {
		if e.domain == domain {
			return
		}
	}
	s.enabled = append(s.enabled, enableEntry{domain: domain, replay: replay})
}

func (s *Surface) recordDisable(domain string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.enabled {
		if e.domain == domain {
			s.enabled = append(s.enabled[:i], s.enabled[i+1:]...)
			return
		}
	}
}

// IsEnabled reports whether domain's enable() last succeeded with no
// matching disable() since.
func (s *Surface) IsEnabled(domain string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.enabled {
		if e.domain == domain {
			return true
		}
	}
	return false
}

// Replay re-issues every recorded enable(), in the order each was first
// recorded. Suitable as a supervisor.ReplayFunc.
func (s *Surface) Replay(ctx context.Context) error {
	s.mu.Lock()
	entries := append([]enableEntry(nil), s.enabled...)
	s.mu.Unlock()

	for _, e := range entries {
		if err := e.replay(ctx); err != nil {
			return err
		}
	}
	return nil
}
