package game_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"greenledger/internal/game"
	"greenledger/internal/store/memory"
)

const (
	tierA = "Tier A (Ethical)"
	tierB = "Tier B (Standard)"
	tierC = "Tier C (Dirty)"
)

type recorder struct {
	mu      sync.Mutex
	changes []game.Change
}

func (r *recorder) Publish(_ context.Context, c game.Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
}

func (r *recorder) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.changes))
	for _, c := range r.changes {
		out = append(out, c.Kind)
	}
	return out
}

func newTestService(t *testing.T) (*game.Service, *recorder) {
	t.Helper()
	rec := &recorder{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := game.NewService(memory.New(), logger, game.Options{Notifier: rec})
	if err := svc.SeedCatalog(context.Background()); err != nil {
		t.Fatalf("seed catalog: %v", err)
	}
	return svc, rec
}

func mustCreateTeam(t *testing.T, svc *game.Service, code string, cash *int64) game.TeamView {
	t.Helper()
	v, err := svc.CreateTeam(context.Background(), game.NewTeamInput{Code: code, InitialCash: cash})
	if err != nil {
		t.Fatalf("create team %s: %v", code, err)
	}
	return v
}

func cash(v int64) *int64 { return &v }

func supplier(team, name string) game.BuySupplierInput {
	in := game.BuySupplierInput{TeamCode: team, ItemName: name}
	switch name {
	case tierA:
		in.Cost, in.DebtEffect = 1200, -1
	case tierB:
		in.Cost, in.DebtEffect = 800, 1
	case tierC:
		in.Cost, in.DebtEffect = 500, 3
	}
	return in
}

// assertReconciled checks that audit deltas since each team's creation sum to its state.
func assertReconciled(t *testing.T, svc *game.Service) {
	t.Helper()
	ctx := context.Background()
	teams, err := svc.Teams(ctx)
	if err != nil {
		t.Fatalf("teams: %v", err)
	}
	for _, team := range teams {
		entries, err := svc.Logs(ctx, game.AuditFilter{TeamCode: team.Code, Limit: game.MaxAuditLimit})
		if err != nil {
			t.Fatalf("logs: %v", err)
		}
		var sumCash, sumDebt int64
		for _, e := range entries {
			sumCash += e.CashDelta
			sumDebt += e.DebtDelta
			if e.ActionType == game.ActionTeamCreated {
				break
			}
		}
		if sumCash != team.Cash || sumDebt != team.CarbonDebt {
			t.Fatalf("team %s: audit sums cash=%d debt=%d, state cash=%d debt=%d", team.Code, sumCash, sumDebt, team.Cash, team.CarbonDebt)
		}
	}
}

func TestCreateTeamDefaults(t *testing.T) {
	svc, rec := newTestService(t)
	v := mustCreateTeam(t, svc, "T1", nil)
	if v.Cash != 1500 || v.CarbonDebt != 0 || v.InventoryChoice != game.NoChoice || v.Locked {
		t.Fatalf("unexpected new team: %+v", v)
	}
	if v.Assets == nil || len(v.Assets) != 0 {
		t.Fatalf("expected empty assets, got %v", v.Assets)
	}
	if _, err := svc.CreateTeam(context.Background(), game.NewTeamInput{Code: "T1"}); !errors.Is(err, game.ErrDuplicateTeam) {
		t.Fatalf("expected duplicate team, got %v", err)
	}
	if _, err := svc.CreateTeam(context.Background(), game.NewTeamInput{Code: "bad code"}); !errors.Is(err, game.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if got := rec.kinds(); len(got) == 0 || got[len(got)-1] != "team_created" {
		t.Fatalf("expected team_created change, got %v", got)
	}
}

func TestBuySupplierTierA(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	mustCreateTeam(t, svc, "T1", nil)

	v, err := svc.BuySupplier(ctx, supplier("T1", tierA))
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if v.Cash != 300 || v.CarbonDebt != -1 {
		t.Fatalf("got cash=%d debt=%d want 300/-1", v.Cash, v.CarbonDebt)
	}
	if v.InventoryChoice != tierA || v.LastActionRound != 1 || !v.Locked {
		t.Fatalf("unexpected team after buy: %+v", v)
	}
	assertReconciled(t, svc)
}

func TestBuySupplierLockedLeavesStateUnchanged(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	mustCreateTeam(t, svc, "T1", nil)
	if _, err := svc.BuySupplier(ctx, supplier("T1", tierC)); err != nil {
		t.Fatalf("first buy: %v", err)
	}
	before, _ := svc.Team(ctx, "T1")

	_, err := svc.BuySupplier(ctx, supplier("T1", tierC))
	if !errors.Is(err, game.ErrTeamLocked) {
		t.Fatalf("expected locked, got %v", err)
	}
	after, _ := svc.Team(ctx, "T1")
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("state changed on locked buy:\nbefore %+v\nafter  %+v", before, after)
	}

	if _, err := svc.SetLock(ctx, "T1", true); err != nil {
		t.Fatalf("set lock: %v", err)
	}
	mustCreateTeam(t, svc, "T2", nil)
	if _, err := svc.SetLock(ctx, "T2", true); err != nil {
		t.Fatalf("set lock: %v", err)
	}
	if _, err := svc.BuySupplier(ctx, supplier("T2", tierB)); !errors.Is(err, game.ErrTeamLocked) {
		t.Fatalf("expected admin lock to block purchase, got %v", err)
	}
}

func TestBuySupplierInsufficientFunds(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	mustCreateTeam(t, svc, "T1", cash(400))

	_, err := svc.BuySupplier(ctx, supplier("T1", tierC))
	if !errors.Is(err, game.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	v, _ := svc.Team(ctx, "T1")
	if v.Cash != 400 || v.CarbonDebt != 0 || v.InventoryChoice != game.NoChoice || v.Locked {
		t.Fatalf("state changed: %+v", v)
	}
}

func TestBuySupplierUsesRequestedTerms(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	mustCreateTeam(t, svc, "T1", nil)

	v, err := svc.BuySupplier(ctx, game.BuySupplierInput{TeamCode: "T1", ItemName: "Tier A", Cost: 1200, DebtEffect: -1})
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if v.Cash != 300 || v.CarbonDebt != -1 || v.InventoryChoice != "Tier A" || !v.Locked {
		t.Fatalf("unexpected team after buy: %+v", v)
	}
	assertReconciled(t, svc)

	tests := []struct {
		name string
		in   game.BuySupplierInput
		want error
	}{
		{name: "empty name", in: game.BuySupplierInput{TeamCode: "T2", Cost: 100}, want: game.ErrValidation},
		{name: "negative cost", in: game.BuySupplierInput{TeamCode: "T2", ItemName: "Solar Co", Cost: -1}, want: game.ErrValidation},
		{name: "unknown team", in: supplier("NOPE", tierA), want: game.ErrTeamNotFound},
	}
	mustCreateTeam(t, svc, "T2", nil)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.BuySupplier(ctx, tc.in); !errors.Is(err, tc.want) {
				t.Fatalf("got %v want %v", err, tc.want)
			}
		})
	}
}

func TestBuySupplierLockedAlwaysTeamLocked(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	mustCreateTeam(t, svc, "T1", nil)
	if _, err := svc.SetLock(ctx, "T1", true); err != nil {
		t.Fatalf("set lock: %v", err)
	}
	before, _ := svc.Team(ctx, "T1")

	requests := []game.BuySupplierInput{
		{TeamCode: "T1", ItemName: "Tier A", Cost: 1000, DebtEffect: -1},
		{TeamCode: "T1", ItemName: "Solar Co", Cost: 10},
		{TeamCode: "T1", ItemName: tierA, Cost: 99999},
		{TeamCode: "T1", ItemName: "", Cost: -5},
	}
	for _, in := range requests {
		if _, err := svc.BuySupplier(ctx, in); !errors.Is(err, game.ErrTeamLocked) {
			t.Fatalf("%+v: expected locked, got %v", in, err)
		}
	}
	after, _ := svc.Team(ctx, "T1")
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("state changed on locked buy:\nbefore %+v\nafter  %+v", before, after)
	}
}

func TestRedeemCodeScenario(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	mustCreateTeam(t, svc, "T1", cash(1000))
	mustCreateTeam(t, svc, "T2", nil)

	rc, err := svc.IssueCode(ctx, game.IssueCodeInput{Code: "lobby-1", TeamCode: "T1", ItemName: "Scrubber", Price: 700, DebtReduction: -5})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if rc.Code != "LOBBY-1" {
		t.Fatalf("expected normalized code, got %q", rc.Code)
	}

	v, err := svc.RedeemCode(ctx, "Lobby-1", "T1")
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if v.Cash != 300 || v.CarbonDebt != -5 || !reflect.DeepEqual(v.Assets, []string{"Scrubber"}) {
		t.Fatalf("unexpected team after redeem: %+v", v)
	}

	for _, team := range []string{"T1", "T2"} {
		if _, err := svc.RedeemCode(ctx, "LOBBY-1", team); !errors.Is(err, game.ErrAlreadyConsumed) {
			t.Fatalf("%s: expected already consumed, got %v", team, err)
		}
	}
	if _, err := svc.RedeemCode(ctx, "MISSING", "T1"); !errors.Is(err, game.ErrCodeNotFound) {
		t.Fatalf("expected code not found, got %v", err)
	}
	assertReconciled(t, svc)
}

func TestRedeemCodeFailuresKeepCodeRedeemable(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	mustCreateTeam(t, svc, "T1", cash(100))
	mustCreateTeam(t, svc, "T2", nil)
	if _, err := svc.IssueCode(ctx, game.IssueCodeInput{Code: "WIND", TeamCode: "T1", ItemName: "Turbine", Price: 500, DebtReduction: -2}); err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := svc.RedeemCode(ctx, "WIND", "T2"); !errors.Is(err, game.ErrCodeNotBoundToTeam) {
		t.Fatalf("expected not bound, got %v", err)
	}
	if _, err := svc.RedeemCode(ctx, "WIND", "T1"); !errors.Is(err, game.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	v, _ := svc.Team(ctx, "T1")
	if v.Cash != 100 || v.CarbonDebt != 0 || len(v.Assets) != 0 {
		t.Fatalf("state changed on failed redeem: %+v", v)
	}

	if _, err := svc.AdminAdjust(ctx, "T1", 400, 0); err != nil {
		t.Fatalf("adjust: %v", err)
	}
	v, err := svc.RedeemCode(ctx, "WIND", "T1")
	if err != nil {
		t.Fatalf("redeem after top-up: %v", err)
	}
	if v.Cash != 0 || v.CarbonDebt != -2 {
		t.Fatalf("got cash=%d debt=%d", v.Cash, v.CarbonDebt)
	}
}

func TestRedeemCodeConcurrentAtMostOnce(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	mustCreateTeam(t, svc, "T1", cash(1000))
	if _, err := svc.IssueCode(ctx, game.IssueCodeInput{Code: "RACE", TeamCode: "T1", ItemName: "Scrubber", Price: 100}); err != nil {
		t.Fatalf("issue: %v", err)
	}

	const attempts = 25
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.RedeemCode(ctx, "RACE", "T1")
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, game.ErrAlreadyConsumed):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if successes != 1 {
		t.Fatalf("got %d successful redemptions, want 1", successes)
	}
	v, _ := svc.Team(ctx, "T1")
	if v.Cash != 900 || len(v.Assets) != 1 {
		t.Fatalf("code applied more than once: %+v", v)
	}
}

func TestIssueCodeRules(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	mustCreateTeam(t, svc, "T1", nil)
	in := game.IssueCodeInput{Code: "SOLAR", TeamCode: "T1", ItemName: "Panel", Price: 100}

	if _, err := svc.IssueCode(ctx, in); err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := svc.IssueCode(ctx, in); !errors.Is(err, game.ErrDuplicateCode) {
		t.Fatalf("expected duplicate code, got %v", err)
	}
	if _, err := svc.RedeemCode(ctx, "SOLAR", "T1"); err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if _, err := svc.IssueCode(ctx, in); err != nil {
		t.Fatalf("reissue of spent code: %v", err)
	}

	bad := []game.IssueCodeInput{
		{Code: "", TeamCode: "T1", ItemName: "Panel"},
		{Code: "X", TeamCode: "T1", ItemName: ""},
		{Code: "X", TeamCode: "T1", ItemName: "Panel", Price: -1},
	}
	for _, b := range bad {
		if _, err := svc.IssueCode(ctx, b); !errors.Is(err, game.ErrValidation) {
			t.Fatalf("input %+v: expected validation error, got %v", b, err)
		}
	}
	if _, err := svc.IssueCode(ctx, game.IssueCodeInput{Code: "X", TeamCode: "GHOST", ItemName: "Panel"}); !errors.Is(err, game.ErrTeamNotFound) {
		t.Fatalf("expected team not found, got %v", err)
	}
}

func TestGlobalBonusTenTeams(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		mustCreateTeam(t, svc, fmt.Sprintf("T%d", i), nil)
	}

	res, err := svc.GlobalBonus(ctx, 500)
	if err != nil {
		t.Fatalf("bonus: %v", err)
	}
	if res.Updated != 10 || len(res.Failures) != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	teams, _ := svc.Teams(ctx)
	for _, team := range teams {
		if team.Cash != 2000 {
			t.Fatalf("team %s cash=%d want 2000", team.Code, team.Cash)
		}
	}
	entries, _ := svc.Logs(ctx, game.AuditFilter{ActionType: game.ActionGlobalBonus})
	if len(entries) != 10 {
		t.Fatalf("got %d bonus entries, want 10", len(entries))
	}
	if _, err := svc.GlobalBonus(ctx, 0); !errors.Is(err, game.ErrValidation) {
		t.Fatalf("expected zero bonus to fail, got %v", err)
	}
	assertReconciled(t, svc)
}

func TestLockAllUnlockAll(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	mustCreateTeam(t, svc, "T1", nil)
	mustCreateTeam(t, svc, "T2", nil)

	res, err := svc.LockAll(ctx)
	if err != nil || res.Updated != 2 {
		t.Fatalf("lock all: %+v %v", res, err)
	}
	if _, err := svc.BuySupplier(ctx, supplier("T1", tierB)); !errors.Is(err, game.ErrTeamLocked) {
		t.Fatalf("expected locked, got %v", err)
	}
	if res, err := svc.UnlockAll(ctx); err != nil || res.Updated != 2 {
		t.Fatalf("unlock all: %+v %v", res, err)
	}
	v, err := svc.BuySupplier(ctx, supplier("T1", tierB))
	if err != nil {
		t.Fatalf("buy after unlock: %v", err)
	}
	if !v.Locked {
		t.Fatalf("expected purchase to lock the team")
	}

	v, err = svc.ToggleLock(ctx, "T1")
	if err != nil || v.Locked {
		t.Fatalf("toggle should unlock: %+v %v", v, err)
	}
	v, err = svc.ToggleLock(ctx, "T1")
	if err != nil || !v.Locked {
		t.Fatalf("toggle should lock: %+v %v", v, err)
	}
}

func TestStartNewYearUnlocksEveryTeam(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	mustCreateTeam(t, svc, "T1", nil)
	mustCreateTeam(t, svc, "T2", nil)
	mustCreateTeam(t, svc, "T3", nil)
	if _, err := svc.BuySupplier(ctx, supplier("T1", tierA)); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if _, err := svc.SetLock(ctx, "T2", true); err != nil {
		t.Fatalf("lock: %v", err)
	}

	state, err := svc.StartNewYear(ctx)
	if err != nil {
		t.Fatalf("new year: %v", err)
	}
	if state.CurrentRound != 2 || state.ActiveEvent != game.NoEvent {
		t.Fatalf("unexpected state: %+v", state)
	}
	teams, _ := svc.Teams(ctx)
	for _, team := range teams {
		if team.Locked || team.InventoryChoice != game.NoChoice {
			t.Fatalf("team %s not reset for new year: %+v", team.Code, team)
		}
	}
}

// flakyStore fails Teams once and, while failMutate is set, every MutateTeam.
type flakyStore struct {
	game.Store
	failTeams  atomic.Bool
	failMutate atomic.Bool
}

var errConnReset = errors.New("connection reset")

func (f *flakyStore) Teams(ctx context.Context) ([]game.Team, error) {
	if f.failTeams.CompareAndSwap(true, false) {
		return nil, errConnReset
	}
	return f.Store.Teams(ctx)
}

func (f *flakyStore) MutateTeam(ctx context.Context, code string, fn game.TeamMutation) (game.Team, error) {
	if f.failMutate.Load() {
		return game.Team{}, errConnReset
	}
	return f.Store.MutateTeam(ctx, code, fn)
}

func TestCalculateRoundRetriesAfterFailure(t *testing.T) {
	tests := []struct {
		name    string
		arm     func(*flakyStore)
		disarm  func(*flakyStore)
		wantErr bool
	}{
		{
			name:    "team list fails",
			arm:     func(f *flakyStore) { f.failTeams.Store(true) },
			disarm:  func(*flakyStore) {},
			wantErr: true,
		},
		{
			name:   "every team update fails",
			arm:    func(f *flakyStore) { f.failMutate.Store(true) },
			disarm: func(f *flakyStore) { f.failMutate.Store(false) },
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := &flakyStore{Store: memory.New()}
			logger := slog.New(slog.NewTextHandler(io.Discard, nil))
			svc := game.NewService(store, logger, game.Options{BaseRevenue: 1000})
			ctx := context.Background()
			mustCreateTeam(t, svc, "T1", nil)
			if _, err := svc.BuySupplier(ctx, supplier("T1", tierB)); err != nil {
				t.Fatalf("buy: %v", err)
			}

			tc.arm(store)
			res, err := svc.CalculateRound(ctx, game.EventMarketStable)
			if tc.wantErr {
				if !errors.Is(err, errConnReset) {
					t.Fatalf("expected connection error, got %v", err)
				}
			} else if err != nil || res.Updated != 0 || len(res.Failures) != 1 {
				t.Fatalf("unexpected first result: %+v err=%v", res, err)
			}
			tc.disarm(store)

			res, err = svc.CalculateRound(ctx, game.EventMarketStable)
			if err != nil {
				t.Fatalf("retry: %v", err)
			}
			if res.Updated != 1 {
				t.Fatalf("retry updated %d teams", res.Updated)
			}
			v, _ := svc.Team(ctx, "T1")
			if v.Cash != 1700 {
				t.Fatalf("cash = %d want 1700", v.Cash)
			}
			if _, err := svc.CalculateRound(ctx, game.EventMarketStable); !errors.Is(err, game.ErrRoundAlreadyCalculated) {
				t.Fatalf("expected round closed after success, got %v", err)
			}
			assertReconciled(t, svc)
		})
	}
}

func TestCalculateRound(t *testing.T) {
	svc, rec := newTestService(t)
	ctx := context.Background()
	mustCreateTeam(t, svc, "T1", nil)
	mustCreateTeam(t, svc, "T2", nil)
	mustCreateTeam(t, svc, "IDLE", nil)
	if _, err := svc.BuySupplier(ctx, supplier("T1", tierA)); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if _, err := svc.BuySupplier(ctx, supplier("T2", tierC)); err != nil {
		t.Fatalf("buy: %v", err)
	}

	res, err := svc.CalculateRound(ctx, game.EventViralExpose)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if res.Updated != 2 || len(res.Logs) != 2 || len(res.Failures) != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	for _, line := range res.Logs {
		if !strings.HasPrefix(line, "T1: ") && !strings.HasPrefix(line, "T2: ") {
			t.Fatalf("unexpected log line %q", line)
		}
	}

	want := map[string]int64{"T1": 300 + 2000, "T2": 1000 + 500, "IDLE": 1500}
	for code, c := range want {
		v, _ := svc.Team(ctx, code)
		if v.Cash != c {
			t.Fatalf("team %s cash=%d want %d", code, v.Cash, c)
		}
	}
	state, _ := svc.State(ctx)
	if state.ActiveEvent != game.EventViralExpose {
		t.Fatalf("active event = %q", state.ActiveEvent)
	}

	if _, err := svc.CalculateRound(ctx, game.EventMarketStable); !errors.Is(err, game.ErrRoundAlreadyCalculated) {
		t.Fatalf("expected second calculation to fail, got %v", err)
	}
	if _, err := svc.StartNewYear(ctx); err != nil {
		t.Fatalf("new year: %v", err)
	}
	if _, err := svc.CalculateRound(ctx, "Meteor Strike"); !errors.Is(err, game.ErrUnknownEvent) {
		t.Fatalf("expected unknown event, got %v", err)
	}
	res, err = svc.CalculateRound(ctx, game.EventMarketStable)
	if err != nil || res.Updated != 0 {
		t.Fatalf("round with no choices: %+v %v", res, err)
	}

	found := false
	for _, k := range rec.kinds() {
		if k == "round_calculated" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected round_calculated change")
	}
	assertReconciled(t, svc)
}

func TestCalculateRoundRacingPurchasesLosesNoUpdate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	const n = 20
	for i := 0; i < n; i++ {
		mustCreateTeam(t, svc, fmt.Sprintf("T%02d", i), nil)
	}
	for i := 0; i < n; i += 2 {
		if _, err := svc.BuySupplier(ctx, supplier(fmt.Sprintf("T%02d", i), tierB)); err != nil {
			t.Fatalf("buy: %v", err)
		}
	}

	var wg sync.WaitGroup
	wg.Add(1)
	var roundErr error
	go func() {
		defer wg.Done()
		_, roundErr = svc.CalculateRound(ctx, game.EventMarketStable)
	}()
	for i := 1; i < n; i += 2 {
		wg.Add(1)
		go func(code string) {
			defer wg.Done()
			if _, err := svc.BuySupplier(ctx, supplier(code, tierB)); err != nil {
				t.Errorf("buy %s: %v", code, err)
			}
		}(fmt.Sprintf("T%02d", i))
	}
	wg.Wait()
	if roundErr != nil {
		t.Fatalf("calculate: %v", roundErr)
	}

	teams, _ := svc.Teams(ctx)
	for _, team := range teams {
		events, _ := svc.Logs(ctx, game.AuditFilter{TeamCode: team.Code, ActionType: game.ActionRoundEvent})
		want := int64(1500 - 800)
		want += int64(len(events)) * 1000
		if len(events) > 1 {
			t.Fatalf("team %s got %d round entries", team.Code, len(events))
		}
		if team.Cash != want || team.CarbonDebt != 1 {
			t.Fatalf("team %s cash=%d debt=%d want cash=%d debt=1", team.Code, team.Cash, team.CarbonDebt, want)
		}
	}
	assertReconciled(t, svc)
}

func TestRevokeAsset(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	mustCreateTeam(t, svc, "T1", nil)
	for i := 0; i < 2; i++ {
		if _, err := svc.GrantAuctionItem(ctx, "T1", "Scrubber", 100, -1); err != nil {
			t.Fatalf("grant: %v", err)
		}
	}
	v, err := svc.RevokeAsset(ctx, "T1", "Scrubber")
	if err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if !reflect.DeepEqual(v.Assets, []string{"Scrubber"}) {
		t.Fatalf("expected one remaining Scrubber, got %v", v.Assets)
	}
	if _, err := svc.RevokeAsset(ctx, "T1", "Turbine"); !errors.Is(err, game.ErrAssetNotFound) {
		t.Fatalf("expected asset not found, got %v", err)
	}
	if _, err := svc.GrantAuctionItem(ctx, "T1", "Yacht", 10_000, 0); !errors.Is(err, game.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
}

func TestAdminAdjustMayOverdraw(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	mustCreateTeam(t, svc, "T1", nil)
	v, err := svc.AdminAdjust(ctx, "T1", -2000, 4)
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if v.Cash != -500 || v.CarbonDebt != 4 {
		t.Fatalf("got cash=%d debt=%d", v.Cash, v.CarbonDebt)
	}
	assertReconciled(t, svc)
}

func TestResetTeamAndRemoveTeam(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	mustCreateTeam(t, svc, "T1", nil)
	if _, err := svc.BuySupplier(ctx, supplier("T1", tierC)); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if _, err := svc.GrantAuctionItem(ctx, "T1", "Scrubber", 100, -1); err != nil {
		t.Fatalf("grant: %v", err)
	}

	v, err := svc.ResetTeam(ctx, "T1")
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if v.Cash != 1500 || v.CarbonDebt != 0 || len(v.Assets) != 0 || v.InventoryChoice != game.NoChoice || v.Locked {
		t.Fatalf("team not reset: %+v", v)
	}
	assertReconciled(t, svc)

	if _, err := svc.IssueCode(ctx, game.IssueCodeInput{Code: "GONE", TeamCode: "T1", ItemName: "Panel", Price: 1}); err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := svc.RemoveTeam(ctx, "T1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := svc.Team(ctx, "T1"); !errors.Is(err, game.ErrTeamNotFound) {
		t.Fatalf("expected team not found, got %v", err)
	}
	codes, _ := svc.Codes(ctx)
	if len(codes) != 0 {
		t.Fatalf("expected codes removed with team, got %v", codes)
	}
	if err := svc.RemoveTeam(ctx, "T1"); !errors.Is(err, game.ErrTeamNotFound) {
		t.Fatalf("expected team not found on second remove, got %v", err)
	}
}

func TestLoginAndUpdateInfo(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	if _, err := svc.CreateTeam(ctx, game.NewTeamInput{Code: "T1", Username: "green", Password: "leaf"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	v, err := svc.Login(ctx, "GREEN", "leaf")
	if err != nil || v.Code != "T1" {
		t.Fatalf("login: %+v %v", v, err)
	}
	for _, c := range [][2]string{{"green", "wrong"}, {"nobody", "leaf"}, {"", ""}} {
		if _, err := svc.Login(ctx, c[0], c[1]); !errors.Is(err, game.ErrInvalidCredentials) {
			t.Fatalf("login %v: expected invalid credentials, got %v", c, err)
		}
	}

	if _, err := svc.UpdateTeamInfo(ctx, "T1", "forest", "moss", "Ana, Ben"); err != nil {
		t.Fatalf("update info: %v", err)
	}
	if _, err := svc.Login(ctx, "forest", "moss"); err != nil {
		t.Fatalf("login with new credentials: %v", err)
	}
}

func TestCatalogOperations(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	suppliers, err := svc.Catalog(ctx, game.CategorySupplier)
	if err != nil || len(suppliers) != 3 {
		t.Fatalf("expected 3 seeded suppliers, got %d %v", len(suppliers), err)
	}
	if err := svc.SeedCatalog(ctx); err != nil {
		t.Fatalf("reseed: %v", err)
	}
	all, _ := svc.Catalog(ctx, "")
	if len(all) != 3 {
		t.Fatalf("seed is not idempotent: %d items", len(all))
	}

	item, err := svc.AddCatalogItem(ctx, game.NewCatalogItemInput{Category: "auction", Name: "Carbon Scrubber", Cost: 999, DebtEffect: -5})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if item.Cost != 0 || item.ID == "" {
		t.Fatalf("auction item should be free with an id: %+v", item)
	}
	if _, err := svc.AddCatalogItem(ctx, game.NewCatalogItemInput{Category: "weapons", Name: "X"}); !errors.Is(err, game.ErrValidation) {
		t.Fatalf("expected bad category to fail, got %v", err)
	}
	if _, err := svc.Catalog(ctx, "weapons"); !errors.Is(err, game.ErrValidation) {
		t.Fatalf("expected bad category filter to fail, got %v", err)
	}
	if err := svc.DeleteCatalogItem(ctx, item.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := svc.DeleteCatalogItem(ctx, item.ID); !errors.Is(err, game.ErrCatalogItemNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestBroadcastAndResetGame(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	mustCreateTeam(t, svc, "T1", nil)
	if err := svc.Broadcast(ctx, "Auction opens in 5 minutes"); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	state, _ := svc.State(ctx)
	if state.SystemMessage != "Auction opens in 5 minutes" {
		t.Fatalf("system message = %q", state.SystemMessage)
	}
	if err := svc.Broadcast(ctx, "  "); !errors.Is(err, game.ErrValidation) {
		t.Fatalf("expected empty broadcast to fail, got %v", err)
	}
	if _, err := svc.StartNewYear(ctx); err != nil {
		t.Fatalf("new year: %v", err)
	}

	if err := svc.ResetGame(ctx); err != nil {
		t.Fatalf("reset game: %v", err)
	}
	teams, _ := svc.Teams(ctx)
	if len(teams) != 0 {
		t.Fatalf("expected no teams, got %d", len(teams))
	}
	state, _ = svc.State(ctx)
	if state != game.DefaultGameState() {
		t.Fatalf("state not reset: %+v", state)
	}
	entries, _ := svc.Logs(ctx, game.AuditFilter{Limit: 1})
	if len(entries) != 1 || entries[0].ActionType != game.ActionGameReset {
		t.Fatalf("expected GAME_RESET as newest entry, got %+v", entries)
	}
	catalog, _ := svc.Catalog(ctx, "")
	if len(catalog) != 3 {
		t.Fatalf("catalog should survive reset, got %d", len(catalog))
	}
}

func TestLogsFilterAndOrder(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	mustCreateTeam(t, svc, "T1", nil)
	mustCreateTeam(t, svc, "T2", nil)
	if _, err := svc.AdminAdjust(ctx, "T1", 10, 0); err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if _, err := svc.AdminAdjust(ctx, "T1", 20, 0); err != nil {
		t.Fatalf("adjust: %v", err)
	}

	entries, err := svc.Logs(ctx, game.AuditFilter{TeamCode: "T1", ActionType: "admin_edit"})
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if len(entries) != 2 || entries[0].CashDelta != 20 || entries[1].CashDelta != 10 {
		t.Fatalf("expected newest first, got %+v", entries)
	}
	for _, e := range entries {
		if e.ID == "" || e.CreatedAt.IsZero() || e.Round != 1 {
			t.Fatalf("entry missing store fields: %+v", e)
		}
	}
	if _, err := svc.Logs(ctx, game.AuditFilter{Round: -1}); !errors.Is(err, game.ErrValidation) {
		t.Fatalf("expected negative round to fail, got %v", err)
	}
}
