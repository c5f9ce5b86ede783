package game

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

const (
	EventMarketStable = "Market Stable"
	EventCarbonTax    = "The Carbon Tax"
	EventViralExpose  = "The Viral Expose"
	EventRecession    = "The Economic Recession"
	EventTechBoom     = "The Tech Breakthrough"
)

// RoundInput is what an event sees of one team. Supplier cost and debt were
// already charged at purchase, so outcomes only carry revenue and modifiers.
type RoundInput struct {
	Team        Team
	BaseRevenue int64
}

type Outcome struct {
	CashDelta int64
	DebtDelta int64
	Message   string
}

type EventFunc func(in RoundInput) Outcome

type EventRegistry struct {
	mu     sync.RWMutex
	events map[string]EventFunc
}

func NewEventRegistry() *EventRegistry {
	return &EventRegistry{events: make(map[string]EventFunc)}
}

// DefaultEvents returns a registry holding the classroom scenarios.
func DefaultEvents() *EventRegistry {
	r := NewEventRegistry()
	r.Register(EventMarketStable, marketStable)
	r.Register(EventCarbonTax, carbonTax)
	r.Register(EventViralExpose, viralExpose)
	r.Register(EventRecession, recession)
	r.Register(EventTechBoom, techBreakthrough)
	return r
}

func (r *EventRegistry) Register(name string, fn EventFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[strings.TrimSpace(name)] = fn
}

func (r *EventRegistry) Lookup(name string) (EventFunc, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.events[strings.TrimSpace(name)]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownEvent, name)
	}
	return fn, nil
}

func (r *EventRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.events))
	for name := range r.events {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func tierOf(choice string) string {
	for _, tier := range []string{"Tier A", "Tier B", "Tier C"} {
		if strings.Contains(choice, tier) {
			return tier
		}
	}
	return ""
}

func marketStable(in RoundInput) Outcome {
	return Outcome{
		CashDelta: in.BaseRevenue,
		Message:   fmt.Sprintf("Market stable. %s earned $%d.", in.Team.InventoryChoice, in.BaseRevenue),
	}
}

// carbonTax charges $100 per debt token. Negative debt is a credit that pays
// back at the same rate, and a ledger at or below zero also earns $200.
func carbonTax(in RoundInput) Outcome {
	fine := in.Team.CarbonDebt * 100
	if fine > 0 {
		return Outcome{
			CashDelta: in.BaseRevenue - fine,
			Message:   fmt.Sprintf("TAX: Paid $%d fine.", fine),
		}
	}
	msg := "TAX: No debt, $200 rebate."
	if fine < 0 {
		msg = fmt.Sprintf("TAX: No debt, $200 rebate plus $%d carbon credit.", -fine)
	}
	return Outcome{CashDelta: in.BaseRevenue + 200 - fine, Message: msg}
}

func viralExpose(in RoundInput) Outcome {
	switch tierOf(in.Team.InventoryChoice) {
	case "Tier C":
		return Outcome{CashDelta: in.BaseRevenue / 2, Message: "SCANDAL: Tier C boycotted. Revenue halved."}
	case "Tier A":
		return Outcome{CashDelta: in.BaseRevenue * 2, Message: "VIRAL FAME: Tier A demand doubled."}
	default:
		return Outcome{CashDelta: in.BaseRevenue, Message: "Expose passed you by. Revenue normal."}
	}
}

func recession(in RoundInput) Outcome {
	switch tierOf(in.Team.InventoryChoice) {
	case "Tier A", "Tier B":
		return Outcome{CashDelta: in.BaseRevenue / 2, Message: "RECESSION: Premium goods not selling. Revenue halved."}
	default:
		return Outcome{CashDelta: in.BaseRevenue, Message: "RECESSION: Cheap goods selling normally."}
	}
}

func techBreakthrough(in RoundInput) Outcome {
	if tierOf(in.Team.InventoryChoice) == "Tier A" {
		return Outcome{
			CashDelta: in.BaseRevenue + 300,
			DebtDelta: -1,
			Message:   "TECH: Tier A is $300 cheaper and cleaner.",
		}
	}
	return Outcome{CashDelta: in.BaseRevenue, Message: "TECH: No change for your tier."}
}
