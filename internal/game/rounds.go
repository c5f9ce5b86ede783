package game

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const releaseTimeout = 5 * time.Second

func (s *Service) Events() []string {
	return s.events.Names()
}

// CalculateRound applies eventName to every team holding a choice. Each team
// is updated under its own row lock with relative deltas, so purchases that
// commit while the calculation runs are never overwritten.
func (s *Service) CalculateRound(ctx context.Context, eventName string) (RoundResult, error) {
	eventName = strings.TrimSpace(eventName)
	apply, err := s.events.Lookup(eventName)
	if err != nil {
		return RoundResult{}, err
	}
	claim := newAudit(ActionRoundEvent, "", 0, 0, map[string]any{"event": eventName, "phase": "start"})
	state, err := s.store.ClaimRoundCalculation(ctx, eventName, claim)
	if err != nil {
		return RoundResult{}, err
	}
	s.log.Info("calculating round", "round", state.CurrentRound, "event", eventName)

	teams, err := s.store.Teams(ctx)
	if err != nil {
		return RoundResult{}, errors.Join(err, s.releaseRound(ctx, state.CurrentRound, eventName, err.Error()))
	}
	updated, logs, failures := s.fanOut(ctx, teams, func(ctx context.Context, snapshot Team) (bool, string, error) {
		if snapshot.InventoryChoice == NoChoice || snapshot.InventoryChoice == "" {
			return false, "", nil
		}
		applied := false
		var msg string
		_, err := s.store.MutateTeam(ctx, snapshot.Code, func(t *Team, _ GameState) ([]AuditEntry, error) {
			if t.InventoryChoice == NoChoice || t.InventoryChoice == "" {
				return nil, nil
			}
			out := apply(RoundInput{Team: *t, BaseRevenue: s.baseRevenue})
			t.adjust(out.CashDelta, out.DebtDelta)
			applied = true
			msg = fmt.Sprintf("%s: %s", t.Code, out.Message)
			return []AuditEntry{newAudit(ActionRoundEvent, t.Code, out.CashDelta, out.DebtDelta, map[string]any{
				"event":   eventName,
				"choice":  t.InventoryChoice,
				"message": out.Message,
			})}, nil
		})
		if err != nil {
			return false, "", err
		}
		return applied, msg, nil
	})

	if updated == 0 && len(failures) > 0 {
		// Nothing was applied, so the round stays open for a retry.
		if err := s.releaseRound(ctx, state.CurrentRound, eventName, "every team update failed"); err != nil {
			return RoundResult{}, err
		}
	}

	s.log.Info("round calculated", "round", state.CurrentRound, "event", eventName, "updated", updated, "failed", len(failures))
	s.publish(ctx, "round_calculated", "", state.CurrentRound)
	return RoundResult{
		Event:    eventName,
		Round:    state.CurrentRound,
		Updated:  updated,
		Logs:     logs,
		Failures: failures,
	}, nil
}

// releaseRound reopens a claimed round. It runs detached from ctx so a
// request that timed out still gives the claim back.
func (s *Service) releaseRound(ctx context.Context, round int, eventName, reason string) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	audit := newAudit(ActionRoundEvent, "", 0, 0, map[string]any{"event": eventName, "phase": "released", "reason": reason})
	if err := s.store.ReleaseRoundCalculation(ctx, round, audit); err != nil {
		s.log.Error("release round claim", "round", round, "event", eventName, "err", err)
		return fmt.Errorf("release round %d: %w", round, err)
	}
	s.log.Warn("round claim released", "round", round, "event", eventName, "reason", reason)
	return nil
}

// StartNewYear advances the round. Choices and lock overrides clear in the
// same transaction as the round bump, which unlocks every team.
func (s *Service) StartNewYear(ctx context.Context) (GameState, error) {
	state, err := s.store.AdvanceRound(ctx, newAudit(ActionNewYear, "", 0, 0, nil))
	if err != nil {
		return GameState{}, err
	}
	s.log.Info("new year started", "round", state.CurrentRound)
	s.publish(ctx, "new_year", "", state.CurrentRound)
	return state, nil
}
