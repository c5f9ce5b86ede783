package game

import (
	"context"
	"fmt"
	"strings"
)

func (s *Service) IssueCode(ctx context.Context, in IssueCodeInput) (RedemptionCode, error) {
	code := NormalizeCode(in.Code)
	if code == "" {
		return RedemptionCode{}, validationf("code is required")
	}
	if len(code) > 64 {
		return RedemptionCode{}, validationf("code is too long")
	}
	teamCode := strings.TrimSpace(in.TeamCode)
	itemName := strings.TrimSpace(in.ItemName)
	if err := validateAssetName(itemName); err != nil {
		return RedemptionCode{}, err
	}
	if in.Price < 0 {
		return RedemptionCode{}, validationf("price must be >= 0")
	}
	if _, err := s.store.Team(ctx, teamCode); err != nil {
		return RedemptionCode{}, err
	}

	rc := RedemptionCode{
		Code:          code,
		TeamCode:      teamCode,
		ItemName:      itemName,
		Price:         in.Price,
		DebtReduction: in.DebtReduction,
	}
	audit := newAudit(ActionCodeIssued, teamCode, 0, 0, map[string]any{
		"code":           code,
		"item_name":      itemName,
		"price":          in.Price,
		"debt_reduction": in.DebtReduction,
	})
	issued, err := s.store.InsertCode(ctx, rc, audit)
	if err != nil {
		return RedemptionCode{}, err
	}
	s.log.Info("redemption code issued", "code", code, "team", teamCode, "item", itemName)
	return issued, nil
}

// RedeemCode consumes a code at most once. The claim and the team charge
// commit in one transaction, so a failed charge leaves the code redeemable.
func (s *Service) RedeemCode(ctx context.Context, code, teamCode string) (TeamView, error) {
	code = NormalizeCode(code)
	teamCode = strings.TrimSpace(teamCode)
	if code == "" {
		return TeamView{}, validationf("secret code is required")
	}
	if teamCode == "" {
		return TeamView{}, validationf("team code is required")
	}

	var round int
	t, err := s.store.RedeemCode(ctx, code, teamCode, func(t *Team, rc RedemptionCode, state GameState) ([]AuditEntry, error) {
		round = state.CurrentRound
		if rc.TeamCode != t.Code {
			return nil, ErrCodeNotBoundToTeam
		}
		if err := chargeForAsset(t, rc.ItemName, rc.Price, rc.DebtReduction); err != nil {
			return nil, err
		}
		return []AuditEntry{newAudit(ActionRedeemCode, t.Code, -rc.Price, rc.DebtReduction, map[string]any{
			"code":      rc.Code,
			"item_name": rc.ItemName,
			"price":     rc.Price,
		})}, nil
	})
	if err != nil {
		return TeamView{}, fmt.Errorf("redeem %s: %w", code, err)
	}
	s.log.Info("redemption code used", "code", code, "team", t.Code)
	s.publish(ctx, "team_updated", t.Code, round)
	return NewTeamView(t, round), nil
}

func (s *Service) Codes(ctx context.Context) ([]RedemptionCode, error) {
	return s.store.Codes(ctx)
}
