package game

import (
	"context"
	"strings"
)

// Logs returns audit entries newest first.
func (s *Service) Logs(ctx context.Context, filter AuditFilter) ([]AuditEntry, error) {
	filter.TeamCode = strings.TrimSpace(filter.TeamCode)
	filter.ActionType = ActionType(strings.ToUpper(strings.TrimSpace(string(filter.ActionType))))
	if filter.Round < 0 {
		return nil, validationf("round must be >= 0")
	}
	switch {
	case filter.Limit <= 0:
		filter.Limit = DefaultAuditLimit
	case filter.Limit > MaxAuditLimit:
		filter.Limit = MaxAuditLimit
	}
	return s.store.AuditLog(ctx, filter)
}
