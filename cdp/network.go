package cdp

import (
	"context"

	"github.com/ByteAshen/cdpgo/session"
)

// Network wraps the Network domain's commands and events.
type Network struct {
	s *Surface
}

// NewNetwork binds a Network domain wrapper to s.
func NewNetwork(s *Surface) *Network { return &Network{s: s} }

// Enable turns on Network domain events.
func (n *Network) Enable(ctx context.Context) error {
	if err := n.s.Call(ctx, "Network.enable", nil, nil); err != nil {
		return err
	}
	n.s.recordEnable("Network.enable", func(ctx context.Context) error {
		return n.s.Call(ctx, "Network.enable", nil, nil)
	})
	return nil
}

// Disable turns off Network domain events.
func (n *Network) Disable(ctx context.Context) error {
	if err := n.s.Call(ctx, "Network.disable", nil, nil); err != nil {
		return err
	}
	n.s.recordDisable("Network.enable")
	return nil
}

// OnRequestWillBeSent registers a handler for Network.requestWillBeSent.
func (n *Network) OnRequestWillBeSent(handler session.Handler) *session.Token {
	return n.s.On("Network.requestWillBeSent", handler)
}

// OnResponseReceived registers a handler for Network.responseReceived.
func (n *Network) OnResponseReceived(handler session.Handler) *session.Token {
	return n.s.On("Network.responseReceived", handler)
}
