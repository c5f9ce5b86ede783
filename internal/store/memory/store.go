// Package memory implements game.Store in process memory. One mutex
// serializes every operation; mutations run on a copy that is committed only
// when the mutation succeeds.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"greenledger/internal/game"
)

type Store struct {
	mu      sync.Mutex
	teams   map[string]game.Team
	codes   map[string]game.RedemptionCode
	catalog []game.CatalogItem
	state   game.GameState
	audit   []game.AuditEntry
	now     func() time.Time
}

func New() *Store {
	return &Store{
		teams: map[string]game.Team{},
		codes: map[string]game.RedemptionCode{},
		state: game.DefaultGameState(),
		now:   time.Now,
	}
}

var _ game.Store = (*Store)(nil)

func (s *Store) appendAudit(entries ...game.AuditEntry) {
	now := s.now()
	for _, e := range entries {
		s.audit = append(s.audit, game.StampAudit(e, s.state.CurrentRound, now))
	}
}

func withDetail(e game.AuditEntry, key string, value any) game.AuditEntry {
	details := make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	e.Details = details
	return e
}

func teamNotFound(code string) error {
	return fmt.Errorf("%w: %s", game.ErrTeamNotFound, code)
}

func (s *Store) CreateTeam(_ context.Context, t game.Team, audit game.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.teams[t.Code]; ok {
		return fmt.Errorf("%w: %s", game.ErrDuplicateTeam, t.Code)
	}
	now := s.now().UTC()
	t = t.Clone()
	t.CreatedAt = now
	t.UpdatedAt = now
	s.teams[t.Code] = t
	s.appendAudit(audit)
	return nil
}

func (s *Store) Team(_ context.Context, code string) (game.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.teams[code]
	if !ok {
		return game.Team{}, teamNotFound(code)
	}
	return t.Clone(), nil
}

func (s *Store) sortedTeams() []game.Team {
	out := make([]game.Team, 0, len(s.teams))
	for _, t := range s.teams {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

func (s *Store) Teams(_ context.Context) ([]game.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedTeams(), nil
}

func (s *Store) TeamByUsername(_ context.Context, username string) (game.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.sortedTeams() {
		if t.Username != "" && strings.EqualFold(t.Username, username) {
			return t, nil
		}
	}
	return game.Team{}, game.ErrTeamNotFound
}

func (s *Store) MutateTeam(_ context.Context, code string, fn game.TeamMutation) (game.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.teams[code]
	if !ok {
		return game.Team{}, teamNotFound(code)
	}
	next := current.Clone()
	entries, err := fn(&next, s.state)
	if err != nil {
		return game.Team{}, err
	}
	next.Code = current.Code
	next.CreatedAt = current.CreatedAt
	next.UpdatedAt = s.now().UTC()
	s.teams[code] = next
	s.appendAudit(entries...)
	return next.Clone(), nil
}

func (s *Store) DeleteTeam(_ context.Context, code string, audit game.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.teams[code]; !ok {
		return teamNotFound(code)
	}
	delete(s.teams, code)
	for k, c := range s.codes {
		if c.TeamCode == code {
			delete(s.codes, k)
		}
	}
	s.appendAudit(audit)
	return nil
}

func (s *Store) InsertCode(_ context.Context, c game.RedemptionCode, audit game.AuditEntry) (game.RedemptionCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.teams[c.TeamCode]; !ok {
		return game.RedemptionCode{}, teamNotFound(c.TeamCode)
	}
	if existing, ok := s.codes[c.Code]; ok && !existing.Consumed {
		return game.RedemptionCode{}, fmt.Errorf("%w: %s", game.ErrDuplicateCode, c.Code)
	}
	c.Consumed = false
	c.ConsumedAt = nil
	c.CreatedAt = s.now().UTC()
	s.codes[c.Code] = c
	s.appendAudit(audit)
	return c, nil
}

func (s *Store) RedeemCode(_ context.Context, code, teamCode string, fn game.RedeemMutation) (game.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rc, ok := s.codes[code]
	if !ok {
		return game.Team{}, game.ErrCodeNotFound
	}
	if rc.Consumed {
		return game.Team{}, game.ErrAlreadyConsumed
	}
	current, ok := s.teams[teamCode]
	if !ok {
		return game.Team{}, teamNotFound(teamCode)
	}
	next := current.Clone()
	entries, err := fn(&next, rc, s.state)
	if err != nil {
		return game.Team{}, err
	}
	now := s.now().UTC()
	next.Code = current.Code
	next.CreatedAt = current.CreatedAt
	next.UpdatedAt = now
	rc.Consumed = true
	rc.ConsumedAt = &now
	s.codes[code] = rc
	s.teams[teamCode] = next
	s.appendAudit(entries...)
	return next.Clone(), nil
}

func (s *Store) Codes(_ context.Context) ([]game.RedemptionCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]game.RedemptionCode, 0, len(s.codes))
	for _, c := range s.codes {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Code < out[j].Code
	})
	return out, nil
}

func (s *Store) Catalog(_ context.Context, category string) ([]game.CatalogItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []game.CatalogItem{}
	for _, item := range s.catalog {
		if category == "" || item.Category == category {
			out = append(out, item)
		}
	}
	return out, nil
}

func (s *Store) InsertCatalogItem(_ context.Context, item game.CatalogItem, audit game.AuditEntry) (game.CatalogItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.catalog {
		if existing.Category == item.Category && strings.EqualFold(existing.Name, item.Name) {
			return game.CatalogItem{}, fmt.Errorf("%w: %s %q already exists", game.ErrValidation, item.Category, item.Name)
		}
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	item.CreatedAt = s.now().UTC()
	s.catalog = append(s.catalog, item)
	s.appendAudit(withDetail(audit, "item_id", item.ID))
	return item, nil
}

func (s *Store) DeleteCatalogItem(_ context.Context, id string, audit game.AuditEntry) (game.CatalogItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, item := range s.catalog {
		if item.ID != id {
			continue
		}
		s.catalog = append(s.catalog[:i:i], s.catalog[i+1:]...)
		s.appendAudit(withDetail(audit, "name", item.Name))
		return item, nil
	}
	return game.CatalogItem{}, fmt.Errorf("%w: %s", game.ErrCatalogItemNotFound, id)
}

func (s *Store) State(_ context.Context) (game.GameState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, nil
}

func (s *Store) SetSystemMessage(_ context.Context, message string, audit game.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.SystemMessage = message
	s.appendAudit(audit)
	return nil
}

func (s *Store) ClaimRoundCalculation(_ context.Context, event string, audit game.AuditEntry) (game.GameState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.CalculatedRound == s.state.CurrentRound {
		return game.GameState{}, fmt.Errorf("%w: round %d", game.ErrRoundAlreadyCalculated, s.state.CurrentRound)
	}
	s.state.CalculatedRound = s.state.CurrentRound
	s.state.ActiveEvent = event
	s.appendAudit(audit)
	return s.state, nil
}

func (s *Store) ReleaseRoundCalculation(_ context.Context, round int, audit game.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.CurrentRound != round || s.state.CalculatedRound != round {
		return nil
	}
	s.state.CalculatedRound = round - 1
	s.state.ActiveEvent = game.NoEvent
	s.appendAudit(audit)
	return nil
}

func (s *Store) AdvanceRound(_ context.Context, audit game.AuditEntry) (game.GameState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	for code, t := range s.teams {
		t.InventoryChoice = game.NoChoice
		t.LockOverride = game.OverrideNone
		t.UpdatedAt = now
		s.teams[code] = t
	}
	s.state.CurrentRound++
	s.state.ActiveEvent = game.NoEvent
	s.appendAudit(audit)
	return s.state, nil
}

func (s *Store) ResetGame(_ context.Context, audit game.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendAudit(audit)
	s.teams = map[string]game.Team{}
	s.codes = map[string]game.RedemptionCode{}
	s.state = game.DefaultGameState()
	return nil
}

func (s *Store) AuditLog(_ context.Context, filter game.AuditFilter) ([]game.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []game.AuditEntry{}
	for i := len(s.audit) - 1; i >= 0; i-- {
		e := s.audit[i]
		if filter.TeamCode != "" && e.TeamCode != filter.TeamCode {
			continue
		}
		if filter.ActionType != "" && e.ActionType != filter.ActionType {
			continue
		}
		if filter.Round > 0 && e.Round != filter.Round {
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}
