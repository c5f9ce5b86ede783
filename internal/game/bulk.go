package game

import (
	"context"
	"strings"
)

func (s *Service) LockAll(ctx context.Context) (BulkResult, error) {
	return s.setLockAll(ctx, true)
}

func (s *Service) UnlockAll(ctx context.Context) (BulkResult, error) {
	return s.setLockAll(ctx, false)
}

func (s *Service) setLockAll(ctx context.Context, locked bool) (BulkResult, error) {
	teams, err := s.store.Teams(ctx)
	if err != nil {
		return BulkResult{}, err
	}
	updated, _, failures := s.fanOut(ctx, teams, func(ctx context.Context, snapshot Team) (bool, string, error) {
		_, err := s.store.MutateTeam(ctx, snapshot.Code, func(t *Team, _ GameState) ([]AuditEntry, error) {
			t.setLock(locked)
			return []AuditEntry{newAudit(ActionLockChanged, t.Code, 0, 0, map[string]any{"locked": locked, "bulk": true})}, nil
		})
		return err == nil, "", err
	})
	s.log.Info("bulk lock applied", "locked", locked, "updated", updated, "failed", len(failures))
	s.publishRound(ctx, "teams_updated")
	return BulkResult{Updated: updated, Failures: failures}, nil
}

// GlobalBonus credits amount to every team with one entry per team.
func (s *Service) GlobalBonus(ctx context.Context, amount int64) (BulkResult, error) {
	if amount == 0 {
		return BulkResult{}, validationf("amount must be non-zero")
	}
	teams, err := s.store.Teams(ctx)
	if err != nil {
		return BulkResult{}, err
	}
	updated, _, failures := s.fanOut(ctx, teams, func(ctx context.Context, snapshot Team) (bool, string, error) {
		_, err := s.store.MutateTeam(ctx, snapshot.Code, func(t *Team, _ GameState) ([]AuditEntry, error) {
			t.adjust(amount, 0)
			return []AuditEntry{newAudit(ActionGlobalBonus, t.Code, amount, 0, map[string]any{"amount": amount})}, nil
		})
		return err == nil, "", err
	})
	s.log.Info("global bonus applied", "amount", amount, "updated", updated, "failed", len(failures))
	s.publishRound(ctx, "teams_updated")
	return BulkResult{Updated: updated, Failures: failures}, nil
}

func (s *Service) Broadcast(ctx context.Context, message string) error {
	message = strings.TrimSpace(message)
	if message == "" {
		return validationf("message is required")
	}
	if len(message) > 500 {
		return validationf("message is too long")
	}
	audit := newAudit(ActionBroadcast, "", 0, 0, map[string]any{"message": message})
	if err := s.store.SetSystemMessage(ctx, message, audit); err != nil {
		return err
	}
	s.log.Info("message broadcast", "message", message)
	s.publish(ctx, "broadcast", "", 0)
	return nil
}

// ResetGame deletes every team and code and restores the default config.
// The audit log survives with a GAME_RESET marker.
func (s *Service) ResetGame(ctx context.Context) error {
	teams, err := s.store.Teams(ctx)
	if err != nil {
		return err
	}
	audit := newAudit(ActionGameReset, "", 0, 0, map[string]any{"teams_removed": len(teams)})
	if err := s.store.ResetGame(ctx, audit); err != nil {
		return err
	}
	s.log.Warn("game reset", "teams_removed", len(teams))
	s.publish(ctx, "game_reset", "", DefaultGameState().CurrentRound)
	return nil
}
