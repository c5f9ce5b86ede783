package game

import (
	"context"
	"fmt"
	"strings"
)

// BuySupplier commits the team's supplier choice for the current round at
// the cost and debt effect the client was shown. A locked team fails with
// ErrTeamLocked before anything about the request is inspected.
func (s *Service) BuySupplier(ctx context.Context, in BuySupplierInput) (TeamView, error) {
	in.TeamCode = strings.TrimSpace(in.TeamCode)
	in.ItemName = strings.TrimSpace(in.ItemName)

	var round int
	t, err := s.store.MutateTeam(ctx, in.TeamCode, func(t *Team, state GameState) ([]AuditEntry, error) {
		round = state.CurrentRound
		if IsLocked(*t, state.CurrentRound) {
			return nil, ErrTeamLocked
		}
		if err := validateItemName("item name", in.ItemName); err != nil {
			return nil, err
		}
		if in.Cost < 0 {
			return nil, validationf("cost must be >= 0")
		}
		if t.Cash < in.Cost {
			return nil, fmt.Errorf("%w: %s costs $%d, cash is $%d", ErrInsufficientFunds, in.ItemName, in.Cost, t.Cash)
		}
		t.adjust(-in.Cost, in.DebtEffect)
		t.setChoice(in.ItemName, state.CurrentRound)
		return []AuditEntry{newAudit(ActionBuySupplier, t.Code, -in.Cost, in.DebtEffect, map[string]any{
			"item_name":   in.ItemName,
			"cost":        in.Cost,
			"debt_effect": in.DebtEffect,
		})}, nil
	})
	if err != nil {
		return TeamView{}, err
	}
	s.log.Info("supplier bought", "team", t.Code, "item", in.ItemName, "cost", in.Cost, "round", round)
	s.publish(ctx, "team_updated", t.Code, round)
	return NewTeamView(t, round), nil
}

// AdminAdjust applies an unconditional manual correction. Cash may go negative.
func (s *Service) AdminAdjust(ctx context.Context, teamCode string, cashDelta, debtDelta int64) (TeamView, error) {
	var round int
	t, err := s.store.MutateTeam(ctx, strings.TrimSpace(teamCode), func(t *Team, state GameState) ([]AuditEntry, error) {
		round = state.CurrentRound
		t.adjust(cashDelta, debtDelta)
		return []AuditEntry{newAudit(ActionAdminEdit, t.Code, cashDelta, debtDelta, nil)}, nil
	})
	if err != nil {
		return TeamView{}, err
	}
	s.log.Info("team adjusted", "team", t.Code, "cash_delta", cashDelta, "debt_delta", debtDelta)
	s.publish(ctx, "team_updated", t.Code, round)
	return NewTeamView(t, round), nil
}

// GrantAuctionItem sells an auction item directly, without a redemption code.
func (s *Service) GrantAuctionItem(ctx context.Context, teamCode, itemName string, price, debtReduction int64) (TeamView, error) {
	itemName = strings.TrimSpace(itemName)
	if err := validateAssetName(itemName); err != nil {
		return TeamView{}, err
	}
	if price < 0 {
		return TeamView{}, validationf("price must be >= 0")
	}
	var round int
	t, err := s.store.MutateTeam(ctx, strings.TrimSpace(teamCode), func(t *Team, state GameState) ([]AuditEntry, error) {
		round = state.CurrentRound
		if err := chargeForAsset(t, itemName, price, debtReduction); err != nil {
			return nil, err
		}
		return []AuditEntry{newAudit(ActionGrantAuctionItem, t.Code, -price, debtReduction, map[string]any{
			"item_name": itemName,
			"price":     price,
		})}, nil
	})
	if err != nil {
		return TeamView{}, err
	}
	s.log.Info("auction item granted", "team", t.Code, "item", itemName, "price", price)
	s.publish(ctx, "team_updated", t.Code, round)
	return NewTeamView(t, round), nil
}

func (s *Service) RevokeAsset(ctx context.Context, teamCode, assetName string) (TeamView, error) {
	assetName = strings.TrimSpace(assetName)
	if assetName == "" {
		return TeamView{}, validationf("asset name is required")
	}
	var round int
	t, err := s.store.MutateTeam(ctx, strings.TrimSpace(teamCode), func(t *Team, state GameState) ([]AuditEntry, error) {
		round = state.CurrentRound
		if err := t.revokeAsset(assetName); err != nil {
			return nil, fmt.Errorf("%w: %q", err, assetName)
		}
		return []AuditEntry{newAudit(ActionRevokeAsset, t.Code, 0, 0, map[string]any{"asset_name": assetName})}, nil
	})
	if err != nil {
		return TeamView{}, err
	}
	s.publish(ctx, "team_updated", t.Code, round)
	return NewTeamView(t, round), nil
}

// chargeForAsset checks funds before touching the team.
func chargeForAsset(t *Team, itemName string, price, debtDelta int64) error {
	if t.Cash < price {
		return fmt.Errorf("%w: %s costs $%d, cash is $%d", ErrInsufficientFunds, itemName, price, t.Cash)
	}
	t.adjust(-price, debtDelta)
	t.grantAsset(itemName)
	return nil
}
