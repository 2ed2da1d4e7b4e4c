// Package gate implements the subscription feature gate: plan lookup,
// feature availability, usage limits and metering.
package gate

import (
	"context"
	"fmt"
	"sort"

	"declutter-go/internal/config"
	"declutter-go/internal/declutter"
)

// DefaultPlan is the plan of owners without a subscription.
const DefaultPlan = "free"

// UsageStore is the metering subset of the database.
type UsageStore interface {
	GetPlan(ctx context.Context, ownerID int64) (string, error)
	GetUsage(ctx context.Context, ownerID int64, feature string) (int64, error)
	IncrementUsage(ctx context.Context, ownerID int64, feature string) error
}

type limit struct {
	enabled bool
	max     int64 // 0 means unlimited
}

// PlanGate decides access from configured plans and recorded usage.
type PlanGate struct {
	plans map[string]map[string]limit
	store UsageStore
}

// NewPlanGate creates a gate over plans. Features a plan does not list are unavailable on it.
func NewPlanGate(plans []config.PlanConfig, store UsageStore) (*PlanGate, error) {
	g := &PlanGate{plans: make(map[string]map[string]limit, len(plans)), store: store}
	for _, p := range plans {
		if p.Name == "" {
			return nil, fmt.Errorf("plan without a name")
		}
		if _, dup := g.plans[p.Name]; dup {
			return nil, fmt.Errorf("duplicate plan: %s", p.Name)
		}
		features := make(map[string]limit, len(p.Features))
		for _, f := range p.Features {
			if f.Limit < 0 {
				return nil, fmt.Errorf("plan %s: negative limit for %s", p.Name, f.Feature)
			}
			features[f.Feature] = limit{enabled: f.Enabled, max: f.Limit}
		}
		g.plans[p.Name] = features
	}
	if _, ok := g.plans[DefaultPlan]; !ok {
		return nil, fmt.Errorf("plan %q must be configured", DefaultPlan)
	}
	return g, nil
}

// CheckAccess implements declutter.FeatureGate.
//
// When req.Increment is set and access is allowed, usage is incremented and
// the decision reports the usage read back after the increment.
func (g *PlanGate) CheckAccess(ctx context.Context, req declutter.AccessRequest) (*declutter.AccessDecision, error) {
	if req.ActorID != 0 && req.ActorID != req.OwnerID {
		return &declutter.AccessDecision{Reason: declutter.ReasonUnauthorized}, nil
	}

	plan, err := g.store.GetPlan(ctx, req.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("getting plan: %w", err)
	}
	if plan == "" {
		plan = DefaultPlan
	}
	features, ok := g.plans[plan]
	if !ok {
		return nil, fmt.Errorf("owner %d is on unknown plan %q", req.OwnerID, plan)
	}

	l := features[req.Feature]
	if !l.enabled {
		return &declutter.AccessDecision{Reason: declutter.ReasonFeatureNotAvailable}, nil
	}

	usage := req.Amount
	if usage == 0 {
		if usage, err = g.store.GetUsage(ctx, req.OwnerID, req.Feature); err != nil {
			return nil, fmt.Errorf("getting usage: %w", err)
		}
	}

	if l.max > 0 && exceeds(usage, l.max, req.Amount != 0) {
		return &declutter.AccessDecision{
			Reason: declutter.ReasonUsageLimitExceeded,
			Usage:  usage,
			Limit:  l.max,
		}, nil
	}

	if req.Increment {
		if err := g.store.IncrementUsage(ctx, req.OwnerID, req.Feature); err != nil {
			return nil, fmt.Errorf("incrementing usage: %w", err)
		}
		if usage, err = g.store.GetUsage(ctx, req.OwnerID, req.Feature); err != nil {
			return nil, fmt.Errorf("getting usage: %w", err)
		}
	}

	return &declutter.AccessDecision{Access: true, Usage: usage, Limit: l.max}, nil
}

// exceeds compares a counter (one more use must fit) or a volume (must fit).
func exceeds(usage, max int64, volume bool) bool {
	if volume {
		return usage > max
	}
	return usage >= max
}

// Plans returns the configured plan names, sorted.
func (g *PlanGate) Plans() []string {
	names := make([]string, 0, len(g.plans))
	for name := range g.plans {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasPlan reports whether name is a configured plan.
func (g *PlanGate) HasPlan(name string) bool {
	_, ok := g.plans[name]
	return ok
}

var _ declutter.FeatureGate = (*PlanGate)(nil)
