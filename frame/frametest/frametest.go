// Package frametest provides a scripted Frame for testing the engine without
// a real silent round trip.
package frametest

import (
	"context"
	"sync"

	"github.com/opwatch/sessioncheck-go/frame"
	"github.com/opwatch/sessioncheck-go/relay"
)

// Frame records navigations and lets tests deliver relay envelopes by hand.
type Frame struct {
	// OnNavigate, if set, observes each accepted navigation URL.
	OnNavigate func(rawURL string)

	origin string

	mu          sync.Mutex
	deliver     relay.MessageFunc
	navigations []string
	closed      bool
}

var _ frame.Frame = (*Frame)(nil)

// New creates a scripted frame claiming the given origin.
func New(origin string) *Frame {
	return &Frame{origin: origin}
}

// Bind attaches the engine's delivery func. Install it as the frame
// constructor override on the engine config.
func (f *Frame) Bind(deliver relay.MessageFunc) (frame.Frame, error) {
	f.mu.Lock()
	f.deliver = deliver
	f.mu.Unlock()
	return f, nil
}

func (f *Frame) Navigate(ctx context.Context, rawURL string) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.navigations = append(f.navigations, rawURL)
	hook := f.OnNavigate
	f.mu.Unlock()
	if hook != nil {
		hook(rawURL)
	}
	return nil
}

func (f *Frame) Origin() string { return f.origin }

func (f *Frame) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// Closed reports whether Close has been called.
func (f *Frame) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Navigations returns the URLs navigated to so far.
func (f *Frame) Navigations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.navigations...)
}

// Deliver sends an envelope to the bound engine unless the frame is closed.
func (f *Frame) Deliver(env relay.Envelope) {
	f.mu.Lock()
	deliver := f.deliver
	closed := f.closed
	f.mu.Unlock()
	if closed || deliver == nil {
		return
	}
	deliver(env)
}
