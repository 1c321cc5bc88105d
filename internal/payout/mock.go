package payout

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"salon-wallet/internal/util"
)

// MockConfig controls the simulated provider.
type MockConfig struct {
	// Latency is how long a payout stays PENDING after it was requested.
	Latency time.Duration
	// Outcome is the final status reported once Latency elapsed.
	// PENDING keeps payouts pending forever.
	Outcome Status
	// FailureReason is reported with a FAILED outcome.
	FailureReason string
	Plan          NumberPlan
}

type mockPayout struct {
	req         Request
	requestedAt time.Time
	outcome     Status
	reason      string
}

// MockGateway simulates a mobile-money provider in process.
type MockGateway struct {
	cfg MockConfig
	now func() time.Time

	mu      sync.Mutex
	payouts map[string]*mockPayout
}

// NewMockGateway creates a simulated provider. An empty Outcome means SUCCESSFUL
// and a zero Plan means MTNRwanda.
func NewMockGateway(cfg MockConfig) *MockGateway {
	if cfg.Outcome == "" {
		cfg.Outcome = StatusSuccessful
	}
	if cfg.Plan.CountryCode == "" {
		cfg.Plan = MTNRwanda
	}
	return &MockGateway{
		cfg:     cfg,
		now:     time.Now,
		payouts: make(map[string]*mockPayout),
	}
}

// Name implements Gateway.
func (g *MockGateway) Name() string { return "mock-momo" }

// ValidateNumber implements Gateway.
func (g *MockGateway) ValidateNumber(phoneNumber string) bool { return g.cfg.Plan.Validate(phoneNumber) }

// FormatNumber implements Gateway.
func (g *MockGateway) FormatNumber(phoneNumber string) string { return g.cfg.Plan.Format(phoneNumber) }

// RequestPayout records the payout and returns a fresh reference id.
func (g *MockGateway) RequestPayout(ctx context.Context, req Request) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrGateway, err)
	}
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", util.ErrGateway)
	}
	if !g.cfg.Plan.Validate(req.PhoneNumber) {
		return nil, fmt.Errorf("%w: invalid payee number %q", util.ErrGateway, req.PhoneNumber)
	}

	ref := uuid.NewString()
	g.mu.Lock()
	g.payouts[ref] = &mockPayout{
		req:         req,
		requestedAt: g.now(),
		outcome:     g.cfg.Outcome,
		reason:      g.cfg.FailureReason,
	}
	g.mu.Unlock()

	return &Receipt{ReferenceID: ref}, nil
}

// CheckPayoutStatus reports PENDING until the configured latency elapsed.
func (g *MockGateway) CheckPayoutStatus(ctx context.Context, referenceID string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrGateway, err)
	}

	g.mu.Lock()
	p, ok := g.payouts[referenceID]
	g.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: unknown reference %q", util.ErrGateway, referenceID)
	}

	if g.now().Sub(p.requestedAt) < g.cfg.Latency || p.outcome == StatusPending {
		return &Result{Status: StatusPending}, nil
	}
	if p.outcome == StatusFailed {
		return &Result{Status: StatusFailed, Reason: p.reason}, nil
	}
	return &Result{
		Status:                StatusSuccessful,
		ProviderTransactionID: "MOCK-" + strings.ToUpper(referenceID[:8]),
	}, nil
}

// SetOutcome overrides the final status of one payout.
func (g *MockGateway) SetOutcome(referenceID string, outcome Status, reason string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.payouts[referenceID]
	if !ok {
		return fmt.Errorf("%w: unknown reference %q", util.ErrGateway, referenceID)
	}
	p.outcome = outcome
	p.reason = reason
	return nil
}

// Requests returns the number of payouts requested so far.
func (g *MockGateway) Requests() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.payouts)
}
