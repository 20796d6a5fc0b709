// Package session implements the Session Multiplexer (C3): request/response
// correlation, event fan-out, and the receive loop, on top of one wire.Channel.
//
// Grounded on _examples/other_examples (chromedp/chromedp's handler.go)
// for the id-counter + waiter-map + propagate-to-listeners shape, and on
// _teacher/common (event_emitter_test.go, session_test.go/connection_test.go)
// for the registration-order/context-scoped-token conventions this package
// generalizes from xk6-browser's single multiplexed connection to spec.md's
// one-Session-per-channel model.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ByteAshen/cdpgo/errdefs"
	"github.com/ByteAshen/cdpgo/internal/xlog"
	"github.com/ByteAshen/cdpgo/wire"
)

// State mirrors the Session state machine from spec.md §3/§4.3:
// Connecting → Connected → (Reconnecting ↔ Connected)* → Closed.
type State int32

const (
	StateConnecting State = iota
	StateConnected
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Envelope is the wire JSON shape from spec.md §3: request, response, and
// event all share one struct, distinguished by which fields are populated.
type Envelope struct {
	ID        uint64          `json:"id,omitempty"`
	Method    string          `json:"method,omitempty"`
	Params    json.RawMessage `json:"params,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *EnvelopeError  `json:"error,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
}

// EnvelopeError is an engine-returned error within a response envelope.
type EnvelopeError struct {
	Code    int32       `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Event is one dispatched event, handed to registered handlers.
type Event struct {
	Method    string
	Params    json.RawMessage
	SessionID string
}

// Handler is a registered event callback. Handlers for the same event fire
// in registration order, on the receive loop goroutine (spec.md §4.3).
type Handler func(Event)

type handlerEntry struct {
	id uuid.UUID
	fn Handler
}

type waiterSlot struct {
	deadline time.Time
	done     chan waiterResult
}

type waiterResult struct {
	raw json.RawMessage
	err error
}

// Token is the move-only handle returned by On: dropping it (calling
// Release) deregisters exactly the handler it was issued for. Per
// spec.md §9, it is an owning handle, not a raw subscription id the caller
// could accidentally reuse.
type Token struct {
	event   string
	id      uuid.UUID
	release func(event string, id uuid.UUID)
	once    sync.Once
}

// Release deregisters the handler. Safe to call multiple times or after the
// owning Session is already closed (a no-op in both cases).
func (t *Token) Release() {
	if t == nil {
		return
	}
	t.once.Do(func() {
		if t.release != nil {
			t.release(t.event, t.id)
		}
	})
}

// DisconnectFunc is invoked once per generation when the receive loop
// observes the channel go away. If the Session is meant to reconnect (the
// supervisor owns that policy), the caller should later invoke Reattach
// with a freshly dialed channel; otherwise it should call Close.
type DisconnectFunc func(err error)

// Session owns one wire.Channel plus its multiplexer state: the next-id
// counter, the waiter map, and the handler map. A Session outlives any
// single wire.Channel: Reattach swaps in a new channel after a reconnect
// without disturbing registered event handlers (only in-flight waiters are
// completed, per spec.md §4.4 — "outstanding waiters... are NOT replayed").
type Session struct {
	log *xlog.Logger

	defaultTimeout time.Duration
	sweepInterval  time.Duration

	onDisconnect atomic.Value // DisconnectFunc

	chMu sync.RWMutex
	ch   *wire.Channel

	nextID atomic.Uint64
	state  atomic.Int32

	waitersMu sync.Mutex
	waiters   map[uint64]*waiterSlot

	handlersMu sync.RWMutex
	handlers   map[string][]handlerEntry

	genMu     sync.Mutex
	genCancel context.CancelFunc
	genWG     sync.WaitGroup

	closeOnce sync.Once
}

// New wraps ch with multiplexer state and starts the receive loop and timer
// sweep. defaultTimeout is used by Send callers that pass timeout<=0.
func New(ch *wire.Channel, log *xlog.Logger, defaultTimeout time.Duration) *Session {
	if log == nil {
		log = xlog.Null()
	}
	if defaultTimeout <= 0 {
		defaultTimeout = 30 * time.Second
	}

	s := &Session{
		log:            log.WithCategory("session"),
		defaultTimeout: defaultTimeout,
		sweepInterval:  250 * time.Millisecond,
		waiters:        make(map[uint64]*waiterSlot),
		handlers:       make(map[string][]handlerEntry),
	}
	s.state.Store(int32(StateConnected))
	s.startGeneration(ch)
	return s
}

// SetDisconnectHook installs the callback invoked when the current
// generation's channel disconnects. Only the owning supervisor should call
// this; it replaces any previously installed hook.
func (s *Session) SetDisconnectHook(fn DisconnectFunc) {
	s.onDisconnect.Store(fn)
}

func (s *Session) startGeneration(ch *wire.Channel) {
	s.chMu.Lock()
	s.ch = ch
	s.chMu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	s.genMu.Lock()
	s.genCancel = cancel
	s.genMu.Unlock()

	s.genWG.Add(2)
	go func() {
		defer s.genWG.Done()
		s.receiveLoop(ch)
	}()
	go func() {
		defer s.genWG.Done()
		s.sweepLoop(ctx)
	}()
}

// Reattach splices in a freshly dialed channel after a reconnect, resuming
// event dispatch on the existing handler map. The caller (the supervisor)
// is responsible for replaying domain enables after this returns.
func (s *Session) Reattach(ch *wire.Channel) {
	s.genWG.Wait() // the previous generation's loops must have exited already
	s.state.Store(int32(StateConnected))
	s.startGeneration(ch)
}

// State returns the Session's current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) channel() *wire.Channel {
	s.chMu.RLock()
	defer s.chMu.RUnlock()
	return s.ch
}

// Send dispatches one request and blocks for its response, timeout, or
// session teardown — spec.md's "exactly one completion" invariant (I1).
func (s *Session) Send(ctx context.Context, method string, params interface{}, timeout time.Duration) (json.RawMessage, error) {
	if s.State() == StateClosed {
		return nil, fmt.Errorf("sending %s: %w", method, errdefs.ErrConnectionClosed)
	}
	if timeout <= 0 {
		timeout = s.defaultTimeout
	}

	var raw json.RawMessage
	var err error
	if params != nil {
		raw, err = json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshalling params for %s: %w", method, errdefs.ErrInvalidParams)
		}
	}

	id := s.nextID.Add(1)
	slot := &waiterSlot{deadline: time.Now().Add(timeout), done: make(chan waiterResult, 1)}
	s.waitersMu.Lock()
	s.waiters[id] = slot
	s.waitersMu.Unlock()

	env := Envelope{ID: id, Method: method, Params: raw}
	buf, err := json.Marshal(env)
	if err != nil {
		s.removeWaiter(id)
		return nil, fmt.Errorf("marshalling envelope for %s: %w", method, errdefs.ErrInvalidParams)
	}

	ch := s.channel()
	if ch == nil || ch.Send(wire.OpText, buf) != nil {
		s.removeWaiter(id)
		return nil, fmt.Errorf("sending %s: %w", method, errdefs.ErrConnectionClosed)
	}

	select {
	case res := <-slot.done:
		return res.raw, res.err
	case <-ctx.Done():
		s.removeWaiter(id)
		return nil, fmt.Errorf("%s: %w", method, errdefs.ErrCancelled)
	}
}

func (s *Session) removeWaiter(id uint64) *waiterSlot {
	s.waitersMu.Lock()
	defer s.waitersMu.Unlock()
	slot := s.waiters[id]
	delete(s.waiters, id)
	return slot
}

// On registers handler for the given event name, returning a Token whose
// Release deregisters it. Registration order is dispatch order (I7).
func (s *Session) On(event string, handler Handler) *Token {
	entry := handlerEntry{id: uuid.New(), fn: handler}
	s.handlersMu.Lock()
	s.handlers[event] = append(s.handlers[event], entry)
	s.handlersMu.Unlock()

	return &Token{event: event, id: entry.id, release: s.removeHandler}
}

// Once registers a one-shot handler and returns a future-like channel that
// receives exactly one Event, then auto-deregisters.
func (s *Session) Once(event string) (<-chan Event, *Token) {
	ch := make(chan Event, 1)
	var tok *Token
	tok = s.On(event, func(e Event) {
		select {
		case ch <- e:
		default:
		}
		tok.Release()
	})
	return ch, tok
}

// WaitFor blocks for up to timeout for the next occurrence of event.
func (s *Session) WaitFor(ctx context.Context, event string, timeout time.Duration) (Event, error) {
	ch, tok := s.Once(event)
	defer tok.Release()

	if timeout <= 0 {
		timeout = s.defaultTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case e := <-ch:
		return e, nil
	case <-timer.C:
		return Event{}, fmt.Errorf("waiting for %s: %w", event, errdefs.ErrWaitTimeout)
	case <-ctx.Done():
		return Event{}, fmt.Errorf("waiting for %s: %w", event, errdefs.ErrCancelled)
	}
}

func (s *Session) removeHandler(event string, id uuid.UUID) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	list := s.handlers[event]
	for i, e := range list {
		if e.id == id {
			s.handlers[event] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// receiveLoop is one generation's dedicated receive task. It exits as soon
// as the channel yields an error; the Session itself does not decide
// whether to reconnect — it only reports the disconnect upward.
func (s *Session) receiveLoop(ch *wire.Channel) {
	for {
		msg, err := ch.ReadMessage()
		if err != nil {
			s.onGenerationDisconnected(fmt.Errorf("receive loop: %w", errdefs.ErrConnectionClosed))
			return
		}

		var env Envelope
		if jsonErr := json.Unmarshal(msg.Data, &env); jsonErr != nil {
			s.log.Errorf("discarding malformed message: %v", jsonErr)
			continue
		}

		if env.ID != 0 {
			s.completeWaiter(env)
			continue
		}
		if env.Method != "" {
			s.dispatchEvent(Event{Method: env.Method, Params: env.Params, SessionID: env.SessionID})
			continue
		}
		s.log.Errorf("discarding envelope with neither id nor method")
	}
}

// onGenerationDisconnected completes outstanding waiters (never replayed,
// per spec.md §4.4) and reports the disconnect to the supervisor, if one is
// attached; otherwise the Session has no reconnect policy and is closed.
func (s *Session) onGenerationDisconnected(err error) {
	s.genMu.Lock()
	if s.genCancel != nil {
		s.genCancel()
	}
	s.genMu.Unlock()

	s.completeAllWaiters(err)

	hook, _ := s.onDisconnect.Load().(DisconnectFunc)
	if hook == nil {
		s.state.Store(int32(StateClosed))
		s.clearHandlers()
		return
	}
	s.state.Store(int32(StateReconnecting))
	hook(err)
}

func (s *Session) completeAllWaiters(err error) {
	s.waitersMu.Lock()
	waiters := s.waiters
	s.waiters = make(map[uint64]*waiterSlot)
	s.waitersMu.Unlock()

	for _, slot := range waiters {
		slot.done <- waiterResult{err: err}
	}
}

func (s *Session) clearHandlers() {
	s.handlersMu.Lock()
	s.handlers = make(map[string][]handlerEntry)
	s.handlersMu.Unlock()
}

func (s *Session) completeWaiter(env Envelope) {
	slot := s.removeWaiter(env.ID)
	if slot == nil {
		// Response arrived after its waiter expired/cancelled: dropped silently.
		return
	}
	if env.Error != nil {
		slot.done <- waiterResult{err: &errdefs.ProtocolError{Code: env.Error.Code, Message: env.Error.Message, Data: env.Error.Data}}
		return
	}
	slot.done <- waiterResult{raw: env.Result}
}

func (s *Session) dispatchEvent(e Event) {
	s.handlersMu.RLock()
	// Snapshot so concurrent On/Release during dispatch never disturbs this fan-out.
	list := append([]handlerEntry(nil), s.handlers[e.Method]...)
	s.handlersMu.RUnlock()

	for _, entry := range list {
		s.invokeHandler(entry, e)
	}
}

func (s *Session) invokeHandler(entry handlerEntry, e Event) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorf("event handler for %s panicked: %v", e.Method, r)
		}
	}()
	entry.fn(e)
}

func (s *Session) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.sweepExpired()
		case <-ctx.Done():
			return
		}
	}
}

func (s *Session) sweepExpired() {
	now := time.Now()
	var expired []*waiterSlot

	s.waitersMu.Lock()
	for id, slot := range s.waiters {
		if now.After(slot.deadline) {
			expired = append(expired, slot)
			delete(s.waiters, id)
		}
	}
	s.waitersMu.Unlock()

	for _, slot := range expired {
		slot.done <- waiterResult{err: errdefs.ErrCommandTimeout}
	}
}

// Close tears the Session down for good: stops the current generation's
// receive loop and timer sweep (bounded wait), completes every outstanding
// waiter with a "disconnected" error, drops every handler, and releases the
// underlying channel. Idempotent.
func (s *Session) Close() error {
	var closeErr error
	s.closeOnce.Do(func() {
		s.onDisconnect.Store(DisconnectFunc(nil))
		s.state.Store(int32(StateClosed))

		s.genMu.Lock()
		if s.genCancel != nil {
			s.genCancel()
		}
		s.genMu.Unlock()

		closeErr = s.channel().Close(1000, "session closed")
		drained := make(chan struct{})
		go func() {
			s.genWG.Wait()
			close(drained)
		}()
		select {
		case <-drained:
		case <-time.After(5 * time.Second):
			s.log.Warnf("receive loop did not drain within 5s; closing anyway")
		}

		s.completeAllWaiters(errdefs.ErrConnectionClosed)
		s.clearHandlers()
	})
	return closeErr
}

// Channel exposes the currently attached wire.Channel.
func (s *Session) Channel() *wire.Channel { return s.channel() }
