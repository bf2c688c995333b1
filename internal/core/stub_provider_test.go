package core

import (
	"context"
	"sync"
)

// stubProvider records every request and answers from reply/err. When gate
// is set, Generate blocks until a value is sent or the gate is closed.
type stubProvider struct {
	mu       sync.Mutex
	requests []Request
	reply    string
	err      error
	gate     chan struct{}
	started  chan struct{}
	panicker bool
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) Generate(ctx context.Context, req Request) (string, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	started := p.started
	gate := p.gate
	p.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if p.panicker {
		panic("provider exploded")
	}
	return p.reply, p.err
}

func (p *stubProvider) Requests() []Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Request(nil), p.requests...)
}
