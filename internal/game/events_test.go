package game

import (
	"errors"
	"testing"
)

func TestDefaultEventOutcomes(t *testing.T) {
	const revenue = 1000
	tests := []struct {
		event  string
		choice string
		debt   int64
		cash   int64
		debtD  int64
	}{
		{event: EventMarketStable, choice: "Tier B (Standard)", cash: 1000},
		{event: EventCarbonTax, choice: "Tier B (Standard)", debt: 0, cash: 1200},
		{event: EventCarbonTax, choice: "Tier A (Ethical)", debt: -1, cash: 1300},
		{event: EventCarbonTax, choice: "Tier A (Ethical)", debt: -3, cash: 1500},
		{event: EventCarbonTax, choice: "Tier C (Dirty)", debt: 3, cash: 700},
		{event: EventViralExpose, choice: "Tier C (Dirty)", cash: 500},
		{event: EventViralExpose, choice: "Tier A (Ethical)", cash: 2000},
		{event: EventViralExpose, choice: "Tier B (Standard)", cash: 1000},
		{event: EventRecession, choice: "Tier A (Ethical)", cash: 500},
		{event: EventRecession, choice: "Tier B (Standard)", cash: 500},
		{event: EventRecession, choice: "Tier C (Dirty)", cash: 1000},
		{event: EventTechBoom, choice: "Tier A (Ethical)", cash: 1300, debtD: -1},
		{event: EventTechBoom, choice: "Tier C (Dirty)", cash: 1000},
	}

	registry := DefaultEvents()
	for _, tc := range tests {
		fn, err := registry.Lookup(tc.event)
		if err != nil {
			t.Fatalf("lookup %q: %v", tc.event, err)
		}
		out := fn(RoundInput{Team: Team{InventoryChoice: tc.choice, CarbonDebt: tc.debt}, BaseRevenue: revenue})
		if out.CashDelta != tc.cash || out.DebtDelta != tc.debtD {
			t.Fatalf("%s/%s: got cash=%d debt=%d want cash=%d debt=%d", tc.event, tc.choice, out.CashDelta, out.DebtDelta, tc.cash, tc.debtD)
		}
		if out.Message == "" {
			t.Fatalf("%s/%s: expected a message", tc.event, tc.choice)
		}
	}
}

func TestLookupUnknownEvent(t *testing.T) {
	_, err := DefaultEvents().Lookup("Alien Invasion")
	if !errors.Is(err, ErrUnknownEvent) {
		t.Fatalf("expected unknown event, got %v", err)
	}
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected unknown event to be a validation error, got %v", err)
	}
}

func TestRegisterCustomEvent(t *testing.T) {
	r := NewEventRegistry()
	r.Register(" Audit ", func(in RoundInput) Outcome {
		return Outcome{CashDelta: -in.Team.CarbonDebt, Message: "audited"}
	})
	fn, err := r.Lookup("Audit")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if out := fn(RoundInput{Team: Team{CarbonDebt: 4}}); out.CashDelta != -4 {
		t.Fatalf("got %d want -4", out.CashDelta)
	}
	if names := r.Names(); len(names) != 1 || names[0] != "Audit" {
		t.Fatalf("names = %v", names)
	}
}
