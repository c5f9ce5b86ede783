package game

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

type Options struct {
	StartingCash    int64
	BaseRevenue     int64
	BulkConcurrency int
	Events          *EventRegistry
	Notifier        Notifier
}

type Service struct {
	store        Store
	log          *slog.Logger
	events       *EventRegistry
	notify       Notifier
	startingCash int64
	baseRevenue  int64
	bulkLimit    int
}

func NewService(store Store, logger *slog.Logger, opts Options) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.StartingCash <= 0 {
		opts.StartingCash = DefaultStartingCash
	}
	if opts.BaseRevenue <= 0 {
		opts.BaseRevenue = DefaultBaseRevenue
	}
	if opts.BulkConcurrency <= 0 {
		opts.BulkConcurrency = 8
	}
	if opts.Events == nil {
		opts.Events = DefaultEvents()
	}
	if opts.Notifier == nil {
		opts.Notifier = noopNotifier{}
	}
	return &Service{
		store:        store,
		log:          logger,
		events:       opts.Events,
		notify:       opts.Notifier,
		startingCash: opts.StartingCash,
		baseRevenue:  opts.BaseRevenue,
		bulkLimit:    opts.BulkConcurrency,
	}
}

func (s *Service) State(ctx context.Context) (GameState, error) {
	return s.store.State(ctx)
}

func newAudit(action ActionType, teamCode string, cashDelta, debtDelta int64, details map[string]any) AuditEntry {
	if details == nil {
		details = map[string]any{}
	}
	return AuditEntry{
		ActionType: action,
		TeamCode:   teamCode,
		CashDelta:  cashDelta,
		DebtDelta:  debtDelta,
		Details:    details,
	}
}

func (s *Service) publish(ctx context.Context, kind, teamCode string, round int) {
	s.notify.Publish(ctx, Change{
		Kind:     kind,
		TeamCode: teamCode,
		Round:    round,
		At:       time.Now().UTC(),
	})
}

// view attaches derived lock and score using the current round.
func (s *Service) view(ctx context.Context, t Team) (TeamView, error) {
	state, err := s.store.State(ctx)
	if err != nil {
		return TeamView{}, err
	}
	return NewTeamView(t, state.CurrentRound), nil
}

type teamOutcome struct {
	applied bool
	log     string
	err     error
}

// fanOut runs apply for every team with bounded concurrency. Failures are
// collected per team and never stop the remaining teams.
func (s *Service) fanOut(ctx context.Context, teams []Team, apply func(ctx context.Context, t Team) (bool, string, error)) (int, []string, []TeamFailure) {
	results := make([]teamOutcome, len(teams))
	var g errgroup.Group
	g.SetLimit(s.bulkLimit)
	for i, t := range teams {
		g.Go(func() error {
			applied, msg, err := apply(ctx, t)
			results[i] = teamOutcome{applied: applied, log: msg, err: err}
			return nil
		})
	}
	_ = g.Wait()

	updated := 0
	logs := []string{}
	failures := []TeamFailure{}
	for i, r := range results {
		if r.err != nil {
			s.log.Warn("team update failed", "team", teams[i].Code, "err", r.err)
			failures = append(failures, TeamFailure{TeamCode: teams[i].Code, Error: r.err.Error()})
			continue
		}
		if !r.applied {
			continue
		}
		updated++
		if r.log != "" {
			logs = append(logs, r.log)
		}
	}
	return updated, logs, failures
}

// publishRound is used after fan-outs, which touch many teams.
func (s *Service) publishRound(ctx context.Context, kind string) {
	round := 0
	if state, err := s.store.State(ctx); err == nil {
		round = state.CurrentRound
	}
	s.publish(ctx, kind, "", round)
}
