package game

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TeamMutation edits t in place. Returning an error discards every change,
// including the returned audit entries.
type TeamMutation func(t *Team, state GameState) ([]AuditEntry, error)

// RedeemMutation runs after the code has been claimed; an error releases the claim.
type RedeemMutation func(t *Team, code RedemptionCode, state GameState) ([]AuditEntry, error)

// Store is the authoritative table store. Every method is atomic and stamps
// audit entries with the round current inside its transaction.
type Store interface {
	CreateTeam(ctx context.Context, t Team, audit AuditEntry) error
	Team(ctx context.Context, code string) (Team, error)
	Teams(ctx context.Context) ([]Team, error)
	TeamByUsername(ctx context.Context, username string) (Team, error)
	MutateTeam(ctx context.Context, code string, fn TeamMutation) (Team, error)
	DeleteTeam(ctx context.Context, code string, audit AuditEntry) error

	InsertCode(ctx context.Context, c RedemptionCode, audit AuditEntry) (RedemptionCode, error)
	RedeemCode(ctx context.Context, code, teamCode string, fn RedeemMutation) (Team, error)
	Codes(ctx context.Context) ([]RedemptionCode, error)

	Catalog(ctx context.Context, category string) ([]CatalogItem, error)
	InsertCatalogItem(ctx context.Context, item CatalogItem, audit AuditEntry) (CatalogItem, error)
	DeleteCatalogItem(ctx context.Context, id string, audit AuditEntry) (CatalogItem, error)

	State(ctx context.Context) (GameState, error)
	SetSystemMessage(ctx context.Context, message string, audit AuditEntry) error
	ClaimRoundCalculation(ctx context.Context, event string, audit AuditEntry) (GameState, error)
	// ReleaseRoundCalculation undoes the claim on round so it can be
	// calculated again. It is a no-op once the round has moved on.
	ReleaseRoundCalculation(ctx context.Context, round int, audit AuditEntry) error
	AdvanceRound(ctx context.Context, audit AuditEntry) (GameState, error)
	ResetGame(ctx context.Context, audit AuditEntry) error

	AuditLog(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}

// Notifier receives committed changes. Implementations must not block.
type Notifier interface {
	Publish(ctx context.Context, c Change)
}

type noopNotifier struct{}

func (noopNotifier) Publish(context.Context, Change) {}

// StampAudit fills the store-owned fields of e: id, timestamp and round.
func StampAudit(e AuditEntry, round int, now time.Time) AuditEntry {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now.UTC()
	}
	if e.Details == nil {
		e.Details = map[string]any{}
	}
	e.Round = round
	return e
}
