// Package postgres implements game.Store on PostgreSQL.
//
// Transactions run at READ COMMITTED. Team rows are locked FOR UPDATE and the
// config rows FOR SHARE, always in that order, so a mutation sees the round
// that is current when it commits. Serialization and deadlock failures are
// retried with backoff before surfacing game.ErrTxConflict.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"greenledger/internal/game"
)

const (
	maxAttempts    = 8
	firstRetry     = 75 * time.Millisecond
	maxRetryDelay  = 1200 * time.Millisecond
	teamColumns    = `code, cash, carbon_debt, inventory_choice, last_action_round, lock_override, assets, username, password, members, created_at, updated_at`
	catalogColumns = `id::text, category, name, description, cost, debt_effect, created_at`
	codeColumns    = `code, team_code, item_name, price, debt_reduction, consumed, consumed_at, created_at`
)

const (
	keyCurrentRound    = "current_round"
	keyActiveEvent     = "active_event"
	keySystemMessage   = "system_message"
	keyCalculatedRound = "calculated_round"
)

type Store struct {
	db  *pgxpool.Pool
	log *slog.Logger
}

func New(db *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, log: logger}
}

var _ game.Store = (*Store)(nil)

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// withTx runs fn in a transaction, retrying it on serialization and deadlock
// failures. fn must not have side effects outside tx.
func (s *Store) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	retryDelay := firstRetry
	for attempt := 0; attempt < maxAttempts; attempt++ {
		tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
		if err != nil {
			return err
		}
		err = func() error {
			defer tx.Rollback(ctx)
			if err := fn(tx); err != nil {
				return err
			}
			return tx.Commit(ctx)
		}()
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		s.log.Debug("retrying transaction", "attempt", attempt+1, "err", err)
		if attempt == maxAttempts-1 {
			return game.ErrTxConflict
		}
		if err := sleepWithContext(ctx, retryDelay); err != nil {
			return err
		}
		if retryDelay < maxRetryDelay {
			retryDelay *= 2
		}
	}
	return game.ErrTxConflict
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func teamNotFound(code string) error {
	return fmt.Errorf("%w: %s", game.ErrTeamNotFound, code)
}

func scanTeam(row pgx.Row) (game.Team, error) {
	var t game.Team
	var assets string
	err := row.Scan(&t.Code, &t.Cash, &t.CarbonDebt, &t.InventoryChoice, &t.LastActionRound, &t.LockOverride,
		&assets, &t.Username, &t.Password, &t.Members, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return game.Team{}, err
	}
	t.Assets = game.SplitAssets(assets)
	return t, nil
}

func scanCatalogItem(row pgx.Row) (game.CatalogItem, error) {
	var item game.CatalogItem
	err := row.Scan(&item.ID, &item.Category, &item.Name, &item.Description, &item.Cost, &item.DebtEffect, &item.CreatedAt)
	return item, err
}

func scanCode(row pgx.Row) (game.RedemptionCode, error) {
	var c game.RedemptionCode
	err := row.Scan(&c.Code, &c.TeamCode, &c.ItemName, &c.Price, &c.DebtReduction, &c.Consumed, &c.ConsumedAt, &c.CreatedAt)
	return c, err
}

// loadState reads the config rows. lock is appended to the query, e.g. "FOR SHARE".
func loadState(ctx context.Context, q querier, lock string) (game.GameState, error) {
	rows, err := q.Query(ctx, `SELECT key, value FROM config ORDER BY key `+lock)
	if err != nil {
		return game.GameState{}, err
	}
	defer rows.Close()

	state := game.DefaultGameState()
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return game.GameState{}, err
		}
		switch key {
		case keyCurrentRound:
			state.CurrentRound, err = strconv.Atoi(value)
		case keyCalculatedRound:
			state.CalculatedRound, err = strconv.Atoi(value)
		case keyActiveEvent:
			state.ActiveEvent = value
		case keySystemMessage:
			state.SystemMessage = value
		}
		if err != nil {
			return game.GameState{}, fmt.Errorf("config %s: %w", key, err)
		}
	}
	return state, rows.Err()
}

func writeConfig(ctx context.Context, tx pgx.Tx, values map[string]string) error {
	for key, value := range values {
		if _, err := tx.Exec(ctx, `
			INSERT INTO config (key, value) VALUES ($1, $2)
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
		`, key, value); err != nil {
			return err
		}
	}
	return nil
}

func insertAudit(ctx context.Context, tx pgx.Tx, round int, entries ...game.AuditEntry) error {
	now := time.Now()
	for _, e := range entries {
		e = game.StampAudit(e, round, now)
		var teamCode *string
		if e.TeamCode != "" {
			teamCode = &e.TeamCode
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO audit_log (id, created_at, round, team_code, action_type, cash_delta, debt_delta, details)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, e.ID, e.CreatedAt, e.Round, teamCode, string(e.ActionType), e.CashDelta, e.DebtDelta, e.Details); err != nil {
			return fmt.Errorf("append audit: %w", err)
		}
	}
	return nil
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

func (s *Store) CreateTeam(ctx context.Context, t game.Team, audit game.AuditEntry) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO teams (code, cash, carbon_debt, inventory_choice, last_action_round, lock_override, assets, username, password, members)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, t.Code, t.Cash, t.CarbonDebt, t.InventoryChoice, t.LastActionRound, t.LockOverride,
			game.JoinAssets(t.Assets), t.Username, t.Password, t.Members)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: %s", game.ErrDuplicateTeam, t.Code)
			}
			return err
		}
		state, err := loadState(ctx, tx, "FOR SHARE")
		if err != nil {
			return err
		}
		return insertAudit(ctx, tx, state.CurrentRound, audit)
	})
}

func (s *Store) Team(ctx context.Context, code string) (game.Team, error) {
	t, err := scanTeam(s.db.QueryRow(ctx, `SELECT `+teamColumns+` FROM teams WHERE code = $1`, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return game.Team{}, teamNotFound(code)
	}
	return t, err
}

func (s *Store) Teams(ctx context.Context) ([]game.Team, error) {
	rows, err := s.db.Query(ctx, `SELECT `+teamColumns+` FROM teams ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []game.Team{}
	for rows.Next() {
		t, err := scanTeam(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) TeamByUsername(ctx context.Context, username string) (game.Team, error) {
	t, err := scanTeam(s.db.QueryRow(ctx, `
		SELECT `+teamColumns+`
		FROM teams
		WHERE username <> '' AND lower(username) = lower($1)
		ORDER BY code
		LIMIT 1
	`, username))
	if errors.Is(err, pgx.ErrNoRows) {
		return game.Team{}, game.ErrTeamNotFound
	}
	return t, err
}

func updateTeam(ctx context.Context, tx pgx.Tx, t game.Team) (game.Team, error) {
	return scanTeam(tx.QueryRow(ctx, `
		UPDATE teams
		SET cash = $2, carbon_debt = $3, inventory_choice = $4, last_action_round = $5,
			lock_override = $6, assets = $7, username = $8, password = $9, members = $10,
			updated_at = now()
		WHERE code = $1
		RETURNING `+teamColumns,
		t.Code, t.Cash, t.CarbonDebt, t.InventoryChoice, t.LastActionRound, t.LockOverride,
		game.JoinAssets(t.Assets), t.Username, t.Password, t.Members))
}

func lockTeam(ctx context.Context, tx pgx.Tx, code string) (game.Team, error) {
	t, err := scanTeam(tx.QueryRow(ctx, `SELECT `+teamColumns+` FROM teams WHERE code = $1 FOR UPDATE`, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return game.Team{}, teamNotFound(code)
	}
	return t, err
}

func (s *Store) MutateTeam(ctx context.Context, code string, fn game.TeamMutation) (game.Team, error) {
	var out game.Team
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		t, err := lockTeam(ctx, tx, code)
		if err != nil {
			return err
		}
		state, err := loadState(ctx, tx, "FOR SHARE")
		if err != nil {
			return err
		}
		entries, err := fn(&t, state)
		if err != nil {
			return err
		}
		t.Code = code
		if out, err = updateTeam(ctx, tx, t); err != nil {
			return err
		}
		return insertAudit(ctx, tx, state.CurrentRound, entries...)
	})
	if err != nil {
		return game.Team{}, err
	}
	return out, nil
}

func (s *Store) DeleteTeam(ctx context.Context, code string, audit game.AuditEntry) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM teams WHERE code = $1`, code)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return teamNotFound(code)
		}
		state, err := loadState(ctx, tx, "FOR SHARE")
		if err != nil {
			return err
		}
		return insertAudit(ctx, tx, state.CurrentRound, audit)
	})
}

// InsertCode replaces a spent code with the same string but never an active one.
func (s *Store) InsertCode(ctx context.Context, c game.RedemptionCode, audit game.AuditEntry) (game.RedemptionCode, error) {
	var out game.RedemptionCode
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		var err error
		out, err = scanCode(tx.QueryRow(ctx, `
			INSERT INTO redemption_codes (code, team_code, item_name, price, debt_reduction)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (code) DO UPDATE
			SET team_code = EXCLUDED.team_code,
				item_name = EXCLUDED.item_name,
				price = EXCLUDED.price,
				debt_reduction = EXCLUDED.debt_reduction,
				consumed = false,
				consumed_at = NULL,
				created_at = now()
			WHERE redemption_codes.consumed
			RETURNING `+codeColumns,
			c.Code, c.TeamCode, c.ItemName, c.Price, c.DebtReduction))
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %s", game.ErrDuplicateCode, c.Code)
		}
		if err != nil {
			if isForeignKeyViolation(err) {
				return teamNotFound(c.TeamCode)
			}
			return err
		}
		state, err := loadState(ctx, tx, "FOR SHARE")
		if err != nil {
			return err
		}
		return insertAudit(ctx, tx, state.CurrentRound, audit)
	})
	if err != nil {
		return game.RedemptionCode{}, err
	}
	return out, nil
}

// RedeemCode claims the code with a conditional update. A concurrent
// redemption of the same code blocks on the row and then matches nothing.
func (s *Store) RedeemCode(ctx context.Context, code, teamCode string, fn game.RedeemMutation) (game.Team, error) {
	var out game.Team
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		rc, err := scanCode(tx.QueryRow(ctx, `
			UPDATE redemption_codes
			SET consumed = true, consumed_at = now()
			WHERE code = $1 AND NOT consumed
			RETURNING `+codeColumns, code))
		if errors.Is(err, pgx.ErrNoRows) {
			var consumed bool
			lookupErr := tx.QueryRow(ctx, `SELECT consumed FROM redemption_codes WHERE code = $1`, code).Scan(&consumed)
			if errors.Is(lookupErr, pgx.ErrNoRows) {
				return game.ErrCodeNotFound
			}
			if lookupErr != nil {
				return lookupErr
			}
			return game.ErrAlreadyConsumed
		}
		if err != nil {
			return err
		}

		t, err := lockTeam(ctx, tx, teamCode)
		if err != nil {
			return err
		}
		state, err := loadState(ctx, tx, "FOR SHARE")
		if err != nil {
			return err
		}
		entries, err := fn(&t, rc, state)
		if err != nil {
			return err
		}
		t.Code = teamCode
		if out, err = updateTeam(ctx, tx, t); err != nil {
			return err
		}
		return insertAudit(ctx, tx, state.CurrentRound, entries...)
	})
	if err != nil {
		return game.Team{}, err
	}
	return out, nil
}

func (s *Store) Codes(ctx context.Context) ([]game.RedemptionCode, error) {
	rows, err := s.db.Query(ctx, `SELECT `+codeColumns+` FROM redemption_codes ORDER BY created_at DESC, code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []game.RedemptionCode{}
	for rows.Next() {
		c, err := scanCode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) Catalog(ctx context.Context, category string) ([]game.CatalogItem, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+catalogColumns+`
		FROM catalog_items
		WHERE $1 = '' OR category = $1
		ORDER BY created_at, id
	`, category)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []game.CatalogItem{}
	for rows.Next() {
		item, err := scanCatalogItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (s *Store) InsertCatalogItem(ctx context.Context, item game.CatalogItem, audit game.AuditEntry) (game.CatalogItem, error) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	var out game.CatalogItem
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		var err error
		out, err = scanCatalogItem(tx.QueryRow(ctx, `
			INSERT INTO catalog_items (id, category, name, description, cost, debt_effect)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING `+catalogColumns,
			item.ID, item.Category, item.Name, item.Description, item.Cost, item.DebtEffect))
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: %s %q already exists", game.ErrValidation, item.Category, item.Name)
			}
			return err
		}
		state, err := loadState(ctx, tx, "FOR SHARE")
		if err != nil {
			return err
		}
		return insertAudit(ctx, tx, state.CurrentRound, withDetail(audit, "item_id", out.ID))
	})
	if err != nil {
		return game.CatalogItem{}, err
	}
	return out, nil
}

func (s *Store) DeleteCatalogItem(ctx context.Context, id string, audit game.AuditEntry) (game.CatalogItem, error) {
	if _, err := uuid.Parse(id); err != nil {
		return game.CatalogItem{}, fmt.Errorf("%w: %s", game.ErrCatalogItemNotFound, id)
	}
	var out game.CatalogItem
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		var err error
		out, err = scanCatalogItem(tx.QueryRow(ctx, `DELETE FROM catalog_items WHERE id = $1 RETURNING `+catalogColumns, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %s", game.ErrCatalogItemNotFound, id)
		}
		if err != nil {
			return err
		}
		state, err := loadState(ctx, tx, "FOR SHARE")
		if err != nil {
			return err
		}
		return insertAudit(ctx, tx, state.CurrentRound, withDetail(audit, "name", out.Name))
	})
	if err != nil {
		return game.CatalogItem{}, err
	}
	return out, nil
}

func (s *Store) State(ctx context.Context) (game.GameState, error) {
	return loadState(ctx, s.db, "")
}

func (s *Store) SetSystemMessage(ctx context.Context, message string, audit game.AuditEntry) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		state, err := loadState(ctx, tx, "FOR UPDATE")
		if err != nil {
			return err
		}
		if err := writeConfig(ctx, tx, map[string]string{keySystemMessage: message}); err != nil {
			return err
		}
		return insertAudit(ctx, tx, state.CurrentRound, audit)
	})
}

func (s *Store) ClaimRoundCalculation(ctx context.Context, event string, audit game.AuditEntry) (game.GameState, error) {
	var out game.GameState
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		state, err := loadState(ctx, tx, "FOR UPDATE")
		if err != nil {
			return err
		}
		if state.CalculatedRound == state.CurrentRound {
			return fmt.Errorf("%w: round %d", game.ErrRoundAlreadyCalculated, state.CurrentRound)
		}
		state.CalculatedRound = state.CurrentRound
		state.ActiveEvent = event
		if err := writeConfig(ctx, tx, map[string]string{
			keyCalculatedRound: strconv.Itoa(state.CalculatedRound),
			keyActiveEvent:     event,
		}); err != nil {
			return err
		}
		out = state
		return insertAudit(ctx, tx, state.CurrentRound, audit)
	})
	return out, err
}

func (s *Store) ReleaseRoundCalculation(ctx context.Context, round int, audit game.AuditEntry) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		state, err := loadState(ctx, tx, "FOR UPDATE")
		if err != nil {
			return err
		}
		if state.CurrentRound != round || state.CalculatedRound != round {
			return nil
		}
		if err := writeConfig(ctx, tx, map[string]string{
			keyCalculatedRound: strconv.Itoa(round - 1),
			keyActiveEvent:     game.NoEvent,
		}); err != nil {
			return err
		}
		return insertAudit(ctx, tx, state.CurrentRound, audit)
	})
}

// lockAllTeams takes every team row lock in code order before config is touched.
func lockAllTeams(ctx context.Context, tx pgx.Tx) error {
	rows, err := tx.Query(ctx, `SELECT code FROM teams ORDER BY code FOR UPDATE`)
	if err != nil {
		return err
	}
	rows.Close()
	return rows.Err()
}

func (s *Store) AdvanceRound(ctx context.Context, audit game.AuditEntry) (game.GameState, error) {
	var out game.GameState
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		if err := lockAllTeams(ctx, tx); err != nil {
			return err
		}
		state, err := loadState(ctx, tx, "FOR UPDATE")
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			UPDATE teams SET inventory_choice = $1, lock_override = '', updated_at = now()
		`, game.NoChoice); err != nil {
			return err
		}
		state.CurrentRound++
		state.ActiveEvent = game.NoEvent
		if err := writeConfig(ctx, tx, map[string]string{
			keyCurrentRound: strconv.Itoa(state.CurrentRound),
			keyActiveEvent:  game.NoEvent,
		}); err != nil {
			return err
		}
		out = state
		return insertAudit(ctx, tx, state.CurrentRound, audit)
	})
	return out, err
}

func (s *Store) ResetGame(ctx context.Context, audit game.AuditEntry) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		if err := lockAllTeams(ctx, tx); err != nil {
			return err
		}
		state, err := loadState(ctx, tx, "FOR UPDATE")
		if err != nil {
			return err
		}
		if err := insertAudit(ctx, tx, state.CurrentRound, audit); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM redemption_codes`); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM teams`); err != nil {
			return err
		}
		def := game.DefaultGameState()
		return writeConfig(ctx, tx, map[string]string{
			keyCurrentRound:    strconv.Itoa(def.CurrentRound),
			keyActiveEvent:     def.ActiveEvent,
			keySystemMessage:   def.SystemMessage,
			keyCalculatedRound: strconv.Itoa(def.CalculatedRound),
		})
	})
}

func (s *Store) AuditLog(ctx context.Context, filter game.AuditFilter) ([]game.AuditEntry, error) {
	var where []string
	var args []any
	if filter.TeamCode != "" {
		args = append(args, filter.TeamCode)
		where = append(where, fmt.Sprintf("team_code = $%d", len(args)))
	}
	if filter.ActionType != "" {
		args = append(args, string(filter.ActionType))
		where = append(where, fmt.Sprintf("action_type = $%d", len(args)))
	}
	if filter.Round > 0 {
		args = append(args, filter.Round)
		where = append(where, fmt.Sprintf("round = $%d", len(args)))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = game.DefaultAuditLimit
	}
	args = append(args, limit)

	query := `SELECT id::text, created_at, round, COALESCE(team_code, ''), action_type, cash_delta, debt_delta, details FROM audit_log`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(` ORDER BY seq DESC LIMIT $%d`, len(args))

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []game.AuditEntry{}
	for rows.Next() {
		var e game.AuditEntry
		var action string
		if err := rows.Scan(&e.ID, &e.CreatedAt, &e.Round, &e.TeamCode, &action, &e.CashDelta, &e.DebtDelta, &e.Details); err != nil {
			return nil, err
		}
		e.ActionType = game.ActionType(action)
		if e.Details == nil {
			e.Details = map[string]any{}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
