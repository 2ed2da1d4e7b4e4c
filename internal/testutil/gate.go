package testutil

import (
	"context"
	"sync"

	"declutter-go/internal/declutter"
)

// StubGate allows every request unless a denial is set for its feature.
// Requests are recorded.
type StubGate struct {
	mu       sync.Mutex
	denials  map[string]*declutter.AccessDecision
	err      error
	requests []declutter.AccessRequest
}

var _ declutter.FeatureGate = (*StubGate)(nil)

func NewStubGate() *StubGate {
	return &StubGate{denials: make(map[string]*declutter.AccessDecision)}
}

// Deny makes requests for feature fail with reason.
func (g *StubGate) Deny(feature, reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.denials[feature] = &declutter.AccessDecision{Access: false, Reason: reason}
}

// Fail makes every request return err.
func (g *StubGate) Fail(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.err = err
}

func (g *StubGate) CheckAccess(_ context.Context, req declutter.AccessRequest) (*declutter.AccessDecision, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.err != nil {
		return nil, g.err
	}
	if d, ok := g.denials[req.Feature]; ok {
		out := *d
		return &out, nil
	}
	return &declutter.AccessDecision{Access: true}, nil
}

// Requests returns the recorded requests.
func (g *StubGate) Requests() []declutter.AccessRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]declutter.AccessRequest(nil), g.requests...)
}
