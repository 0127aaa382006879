package gateway

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	mrand "math/rand"
	"sync"
	"time"

	"github.com/fjod/storefront/internal/gateway"
)

// Test payment methods with a fixed outcome.
const (
	MethodAlwaysSucceeds = "pm_card_visa"
	MethodAlwaysDeclines = "pm_card_chargeDeclined"
)

// declineReasons indexes outcomes 96..100 of a roll.
var declineReasons = map[int]gateway.DeclineError{
	1: {Code: "insufficient_funds", Message: "Your card has insufficient funds."},
	2: {Code: "card_declined", Message: "Your card was declined."},
	3: {Code: "expired_card", Message: "Your card has expired."},
	4: {Code: "incorrect_cvc", Message: "Your card's security code is incorrect."},
	5: {Code: "processing_error", Message: "An error occurred while processing your card. Try again in a little bit."},
}

// Roll returns a number in [0, 100].
type Roll func() int

func RandomRoll() int {
	return mrand.Intn(101) // 101 because Intn is exclusive of the upper bound
}

// outcome maps a roll to a result: below 95 the charge succeeds.
func outcome(roll int) *gateway.DeclineError {
	if roll < 95 {
		return nil
	}
	reason, ok := declineReasons[roll-95]
	if !ok {
		return &gateway.DeclineError{Code: "card_declined", Message: "Your card was declined for an unknown reason."}
	}
	return &reason
}

type sandboxIntent struct {
	intent    gateway.Intent
	confirmed *gateway.Confirmation
}

// Sandbox is an in-process gateway for local runs and demos. It keeps
// intents in memory and settles them by roll.
type Sandbox struct {
	mu       sync.Mutex
	intents  map[string]*sandboxIntent // intent ID -> intent
	byKey    map[string]string         // idempotency key -> intent ID
	roll     Roll
	validity time.Duration
	now      func() time.Time
}

func NewSandbox(roll Roll) *Sandbox {
	if roll == nil {
		roll = RandomRoll
	}
	return &Sandbox{
		intents:  make(map[string]*sandboxIntent),
		byKey:    make(map[string]string),
		roll:     roll,
		validity: 30 * time.Minute,
		now:      time.Now,
	}
}

func (s *Sandbox) CreateIntent(_ context.Context, req gateway.IntentRequest) (*gateway.Intent, error) {
	if req.AmountMinor <= 0 {
		return nil, &gateway.DeclineError{Code: "amount_too_small", Message: "Amount must be greater than zero."}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byKey[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		in := s.intents[id].intent
		return &in, nil
	}

	id := "pi_" + token(12)
	in := gateway.Intent{
		ID:           id,
		ClientSecret: fmt.Sprintf("%s_secret_%s", id, token(12)),
		AmountMinor:  req.AmountMinor,
		Currency:     req.Currency,
		ExpiresAt:    s.now().Add(s.validity),
	}
	s.intents[id] = &sandboxIntent{intent: in}
	if req.IdempotencyKey != "" {
		s.byKey[req.IdempotencyKey] = id
	}
	return &in, nil
}

func (s *Sandbox) Confirm(_ context.Context, req gateway.ConfirmRequest) (*gateway.Confirmation, error) {
	id, err := gateway.IntentIDFromSecret(req.ClientSecret)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	si, ok := s.intents[id]
	if !ok || si.intent.ClientSecret != req.ClientSecret {
		return nil, gateway.ErrInvalidClientSecret
	}
	if si.confirmed != nil {
		c := *si.confirmed
		return &c, nil
	}
	if !s.now().Before(si.intent.ExpiresAt) {
		return nil, gateway.ErrAuthorizationExpired
	}

	var decline *gateway.DeclineError
	switch req.PaymentMethod {
	case MethodAlwaysSucceeds:
	case MethodAlwaysDeclines:
		decline = &gateway.DeclineError{Code: "card_declined", Message: "Your card was declined."}
	default:
		decline = outcome(s.roll())
	}
	if decline != nil {
		return nil, decline
	}

	si.confirmed = &gateway.Confirmation{
		Status:           gateway.StatusSucceeded,
		PaymentReference: id,
		AmountMinor:      si.intent.AmountMinor,
	}
	c := *si.confirmed
	return &c, nil
}

func token(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)[:n]
}
