package game

import (
	"context"
	"strings"
)

var defaultSuppliers = []NewCatalogItemInput{
	{Category: CategorySupplier, Name: "Tier A (Ethical)", Description: "Certified clean supply chain.", Cost: 1200, DebtEffect: -1},
	{Category: CategorySupplier, Name: "Tier B (Standard)", Description: "Industry average sourcing.", Cost: 800, DebtEffect: 1},
	{Category: CategorySupplier, Name: "Tier C (Dirty)", Description: "Cheapest option, heavy emissions.", Cost: 500, DebtEffect: 3},
}

func (s *Service) Catalog(ctx context.Context, category string) ([]CatalogItem, error) {
	category = strings.ToLower(strings.TrimSpace(category))
	if category != "" {
		if err := validateCategory(category); err != nil {
			return nil, err
		}
	}
	return s.store.Catalog(ctx, category)
}

func (s *Service) AddCatalogItem(ctx context.Context, in NewCatalogItemInput) (CatalogItem, error) {
	category := strings.ToLower(strings.TrimSpace(in.Category))
	if err := validateCategory(category); err != nil {
		return CatalogItem{}, err
	}
	name := strings.TrimSpace(in.Name)
	if err := validateAssetName(name); err != nil {
		return CatalogItem{}, err
	}
	cost := in.Cost
	if category == CategoryAuction {
		cost = 0
	}
	if cost < 0 {
		return CatalogItem{}, validationf("cost must be >= 0")
	}
	item := CatalogItem{
		Category:    category,
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		Cost:        cost,
		DebtEffect:  in.DebtEffect,
	}
	audit := newAudit(ActionCatalogAdded, "", 0, 0, map[string]any{
		"category":    category,
		"name":        name,
		"cost":        cost,
		"debt_effect": in.DebtEffect,
	})
	created, err := s.store.InsertCatalogItem(ctx, item, audit)
	if err != nil {
		return CatalogItem{}, err
	}
	s.log.Info("catalog item added", "id", created.ID, "category", category, "name", name)
	s.publish(ctx, "catalog_changed", "", 0)
	return created, nil
}

func (s *Service) DeleteCatalogItem(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return validationf("item id is required")
	}
	audit := newAudit(ActionCatalogDeleted, "", 0, 0, map[string]any{"item_id": id})
	item, err := s.store.DeleteCatalogItem(ctx, id, audit)
	if err != nil {
		return err
	}
	s.log.Info("catalog item deleted", "id", id, "name", item.Name)
	s.publish(ctx, "catalog_changed", "", 0)
	return nil
}

// SeedCatalog installs the default supplier tiers into an empty catalog.
func (s *Service) SeedCatalog(ctx context.Context) error {
	existing, err := s.store.Catalog(ctx, "")
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	for _, in := range defaultSuppliers {
		if _, err := s.AddCatalogItem(ctx, in); err != nil {
			return err
		}
	}
	return nil
}
