package game

import (
	"context"
	"errors"
	"strings"
)

func (t *Team) adjust(cashDelta, debtDelta int64) {
	t.Cash += cashDelta
	t.CarbonDebt += debtDelta
}

func (t *Team) setChoice(choice string, round int) {
	t.InventoryChoice = choice
	t.LastActionRound = round
	t.LockOverride = OverrideNone
}

func (t *Team) setLock(locked bool) {
	if locked {
		t.LockOverride = OverrideLocked
		return
	}
	t.LockOverride = OverrideUnlocked
}

func (t *Team) grantAsset(name string) {
	t.Assets = append(cloneStrings(t.Assets), name)
}

func (t *Team) revokeAsset(name string) error {
	next, ok := removeOne(t.Assets, name)
	if !ok {
		return ErrAssetNotFound
	}
	t.Assets = next
	return nil
}

// resetToDefaults returns the deltas it applied so the reset can be audited.
func (t *Team) resetToDefaults(startingCash int64) (int64, int64) {
	cashDelta := startingCash - t.Cash
	debtDelta := -t.CarbonDebt
	t.Cash = startingCash
	t.CarbonDebt = 0
	t.Assets = []string{}
	t.InventoryChoice = NoChoice
	t.LastActionRound = 0
	t.LockOverride = OverrideNone
	return cashDelta, debtDelta
}

func (s *Service) CreateTeam(ctx context.Context, in NewTeamInput) (TeamView, error) {
	code := strings.TrimSpace(in.Code)
	if err := ValidateTeamCode(code); err != nil {
		return TeamView{}, err
	}
	cash := s.startingCash
	if in.InitialCash != nil {
		cash = *in.InitialCash
	}
	t := Team{
		Code:            code,
		Cash:            cash,
		CarbonDebt:      in.InitialDebt,
		InventoryChoice: NoChoice,
		Assets:          []string{},
		Username:        strings.TrimSpace(in.Username),
		Password:        in.Password,
		Members:         strings.TrimSpace(in.Members),
	}
	audit := newAudit(ActionTeamCreated, code, cash, in.InitialDebt, map[string]any{
		"username": t.Username,
		"members":  t.Members,
	})
	if err := s.store.CreateTeam(ctx, t, audit); err != nil {
		return TeamView{}, err
	}
	s.log.Info("team created", "team", code, "cash", cash)
	created, err := s.store.Team(ctx, code)
	if err != nil {
		return TeamView{}, err
	}
	v, err := s.view(ctx, created)
	if err != nil {
		return TeamView{}, err
	}
	s.publish(ctx, "team_created", code, 0)
	return v, nil
}

func (s *Service) Team(ctx context.Context, code string) (TeamView, error) {
	t, err := s.store.Team(ctx, strings.TrimSpace(code))
	if err != nil {
		return TeamView{}, err
	}
	return s.view(ctx, t)
}

func (s *Service) Teams(ctx context.Context) ([]TeamView, error) {
	state, err := s.store.State(ctx)
	if err != nil {
		return nil, err
	}
	teams, err := s.store.Teams(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]TeamView, 0, len(teams))
	for _, t := range teams {
		out = append(out, NewTeamView(t, state.CurrentRound))
	}
	return out, nil
}

// Login is a plaintext credential match, not a security boundary.
func (s *Service) Login(ctx context.Context, username, password string) (TeamView, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return TeamView{}, ErrInvalidCredentials
	}
	t, err := s.store.TeamByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrTeamNotFound) {
			return TeamView{}, ErrInvalidCredentials
		}
		return TeamView{}, err
	}
	if t.Password != password {
		return TeamView{}, ErrInvalidCredentials
	}
	return s.view(ctx, t)
}

func (s *Service) RemoveTeam(ctx context.Context, code string) error {
	code = strings.TrimSpace(code)
	t, err := s.store.Team(ctx, code)
	if err != nil {
		return err
	}
	audit := newAudit(ActionTeamRemoved, code, -t.Cash, -t.CarbonDebt, map[string]any{
		"assets": cloneStrings(t.Assets),
	})
	if err := s.store.DeleteTeam(ctx, code, audit); err != nil {
		return err
	}
	s.log.Info("team removed", "team", code)
	s.publish(ctx, "team_removed", code, 0)
	return nil
}

func (s *Service) ResetTeam(ctx context.Context, code string) (TeamView, error) {
	var round int
	t, err := s.store.MutateTeam(ctx, strings.TrimSpace(code), func(t *Team, state GameState) ([]AuditEntry, error) {
		round = state.CurrentRound
		cashDelta, debtDelta := t.resetToDefaults(s.startingCash)
		return []AuditEntry{newAudit(ActionTeamReset, t.Code, cashDelta, debtDelta, nil)}, nil
	})
	if err != nil {
		return TeamView{}, err
	}
	s.log.Info("team reset", "team", t.Code)
	s.publish(ctx, "team_updated", t.Code, round)
	return NewTeamView(t, round), nil
}

// UpdateTeamInfo replaces the profile fields. An empty password keeps the current one.
func (s *Service) UpdateTeamInfo(ctx context.Context, code, username, password, members string) (TeamView, error) {
	var round int
	t, err := s.store.MutateTeam(ctx, strings.TrimSpace(code), func(t *Team, state GameState) ([]AuditEntry, error) {
		round = state.CurrentRound
		t.Username = strings.TrimSpace(username)
		if password != "" {
			t.Password = password
		}
		t.Members = strings.TrimSpace(members)
		return []AuditEntry{newAudit(ActionTeamInfoUpdated, t.Code, 0, 0, map[string]any{
			"username":         t.Username,
			"members":          t.Members,
			"password_changed": password != "",
		})}, nil
	})
	if err != nil {
		return TeamView{}, err
	}
	s.publish(ctx, "team_updated", t.Code, round)
	return NewTeamView(t, round), nil
}

// SetLock forces the lock state of one team until its next purchase or the next round.
func (s *Service) SetLock(ctx context.Context, code string, locked bool) (TeamView, error) {
	var round int
	t, err := s.store.MutateTeam(ctx, strings.TrimSpace(code), func(t *Team, state GameState) ([]AuditEntry, error) {
		round = state.CurrentRound
		t.setLock(locked)
		return []AuditEntry{newAudit(ActionLockChanged, t.Code, 0, 0, map[string]any{"locked": locked})}, nil
	})
	if err != nil {
		return TeamView{}, err
	}
	s.publish(ctx, "team_updated", t.Code, round)
	return NewTeamView(t, round), nil
}

func (s *Service) ToggleLock(ctx context.Context, code string) (TeamView, error) {
	var round int
	var locked bool
	t, err := s.store.MutateTeam(ctx, strings.TrimSpace(code), func(t *Team, state GameState) ([]AuditEntry, error) {
		round = state.CurrentRound
		locked = !IsLocked(*t, state.CurrentRound)
		t.setLock(locked)
		return []AuditEntry{newAudit(ActionLockChanged, t.Code, 0, 0, map[string]any{"locked": locked, "toggle": true})}, nil
	})
	if err != nil {
		return TeamView{}, err
	}
	s.publish(ctx, "team_updated", t.Code, round)
	return NewTeamView(t, round), nil
}
