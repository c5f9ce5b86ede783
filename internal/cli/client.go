package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"greenledger/internal/game"
)

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError is a non-2xx response from the engine.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api status %d: %s", e.Status, e.Detail)
}

func (c *Client) State(ctx context.Context) (game.GameState, error) {
	var out game.GameState
	err := c.jsonRequest(ctx, http.MethodGet, "/state", nil, &out)
	return out, err
}

func (c *Client) Events(ctx context.Context) ([]string, error) {
	var out struct {
		Events []string `json:"events"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/events", nil, &out)
	return out.Events, err
}

func (c *Client) Teams(ctx context.Context) ([]game.TeamView, error) {
	var out []game.TeamView
	err := c.jsonRequest(ctx, http.MethodGet, "/teams", nil, &out)
	return out, err
}

func (c *Client) Team(ctx context.Context, code string) (game.TeamView, error) {
	var out game.TeamView
	err := c.jsonRequest(ctx, http.MethodGet, "/teams/"+url.PathEscape(code), nil, &out)
	return out, err
}

func (c *Client) Login(ctx context.Context, username, password string) (game.TeamView, error) {
	var out game.TeamView
	err := c.jsonRequest(ctx, http.MethodPost, "/login", map[string]any{
		"username": username,
		"password": password,
	}, &out)
	return out, err
}

func (c *Client) Catalog(ctx context.Context, category string) ([]game.CatalogItem, error) {
	path := "/catalog"
	if category != "" {
		path += "?category=" + url.QueryEscape(category)
	}
	var out []game.CatalogItem
	err := c.jsonRequest(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *Client) BuySupplier(ctx context.Context, teamCode string, item game.CatalogItem) (game.TeamView, error) {
	var out game.TeamView
	err := c.jsonRequest(ctx, http.MethodPost, "/buy-supplier", map[string]any{
		"team_code":   teamCode,
		"item_name":   item.Name,
		"cost":        item.Cost,
		"debt_effect": item.DebtEffect,
	}, &out)
	return out, err
}

func (c *Client) RedeemCode(ctx context.Context, teamCode, secret string) (game.TeamView, error) {
	var out game.TeamView
	err := c.jsonRequest(ctx, http.MethodPost, "/redeem-code", map[string]any{
		"team_code":   teamCode,
		"secret_code": secret,
	}, &out)
	return out, err
}

func (c *Client) CalculateRound(ctx context.Context, event string) (game.RoundResult, error) {
	var out game.RoundResult
	err := c.jsonRequest(ctx, http.MethodPost, "/calculate-round", map[string]any{"event_name": event}, &out)
	return out, err
}

func (c *Client) StartNewYear(ctx context.Context) (game.GameState, error) {
	var out game.GameState
	err := c.jsonRequest(ctx, http.MethodPost, "/start-new-year", map[string]any{}, &out)
	return out, err
}

func (c *Client) AddTeam(ctx context.Context, code, username, password, members string) (game.TeamView, error) {
	var out game.TeamView
	err := c.jsonRequest(ctx, http.MethodPost, "/admin/add-team", map[string]any{
		"team_code": code,
		"username":  username,
		"password":  password,
		"members":   members,
	}, &out)
	return out, err
}

func (c *Client) RemoveTeam(ctx context.Context, code string) error {
	return c.jsonRequest(ctx, http.MethodPost, "/admin/remove-team", map[string]any{"team_code": code}, nil)
}

func (c *Client) ResetTeam(ctx context.Context, code string) (game.TeamView, error) {
	var out game.TeamView
	err := c.jsonRequest(ctx, http.MethodPost, "/admin/reset-single-team", map[string]any{"team_code": code}, &out)
	return out, err
}

func (c *Client) ToggleLock(ctx context.Context, code string) (bool, error) {
	var out struct {
		Locked bool `json:"locked"`
	}
	err := c.jsonRequest(ctx, http.MethodPost, "/admin/toggle-lock", map[string]any{"team_code": code}, &out)
	return out.Locked, err
}

func (c *Client) LockAll(ctx context.Context, locked bool) (game.BulkResult, error) {
	path := "/admin/unlock-all"
	if locked {
		path = "/admin/lock-all"
	}
	var out game.BulkResult
	err := c.jsonRequest(ctx, http.MethodPost, path, map[string]any{}, &out)
	return out, err
}

func (c *Client) GlobalBonus(ctx context.Context, amount int64) (game.BulkResult, error) {
	var out game.BulkResult
	err := c.jsonRequest(ctx, http.MethodPost, "/admin/global-bonus", map[string]any{"amount": amount}, &out)
	return out, err
}

func (c *Client) AdjustTeam(ctx context.Context, code string, cashChange, debtChange int64) (game.TeamView, error) {
	var out game.TeamView
	err := c.jsonRequest(ctx, http.MethodPost, "/admin/update-team-stats", map[string]any{
		"team_code":   code,
		"cash_change": cashChange,
		"debt_change": debtChange,
	}, &out)
	return out, err
}

func (c *Client) GrantAuctionItem(ctx context.Context, code, item string, price, debtReduction int64) (game.TeamView, error) {
	var out game.TeamView
	err := c.jsonRequest(ctx, http.MethodPost, "/admin/grant-auction-item", map[string]any{
		"team_code":      code,
		"item_name":      item,
		"price":          price,
		"debt_reduction": debtReduction,
	}, &out)
	return out, err
}

func (c *Client) RevokeAsset(ctx context.Context, code, asset string) (game.TeamView, error) {
	var out game.TeamView
	err := c.jsonRequest(ctx, http.MethodPost, "/admin/revoke-asset", map[string]any{
		"team_code":  code,
		"asset_name": asset,
	}, &out)
	return out, err
}

func (c *Client) CreateCode(ctx context.Context, in game.IssueCodeInput) (game.RedemptionCode, error) {
	var out game.RedemptionCode
	err := c.jsonRequest(ctx, http.MethodPost, "/admin/create-code", map[string]any{
		"code":           in.Code,
		"team_id":        in.TeamCode,
		"item_name":      in.ItemName,
		"price":          in.Price,
		"debt_reduction": in.DebtReduction,
	}, &out)
	return out, err
}

func (c *Client) Codes(ctx context.Context) ([]game.RedemptionCode, error) {
	var out []game.RedemptionCode
	err := c.jsonRequest(ctx, http.MethodGet, "/admin/codes", nil, &out)
	return out, err
}

func (c *Client) AddCatalogItem(ctx context.Context, in game.NewCatalogItemInput) (game.CatalogItem, error) {
	var out game.CatalogItem
	err := c.jsonRequest(ctx, http.MethodPost, "/admin/add-catalog-item", map[string]any{
		"category":    in.Category,
		"name":        in.Name,
		"description": in.Description,
		"cost":        in.Cost,
		"debt_effect": in.DebtEffect,
	}, &out)
	return out, err
}

func (c *Client) DeleteCatalogItem(ctx context.Context, id string) error {
	return c.jsonRequest(ctx, http.MethodPost, "/admin/delete-catalog-item", map[string]any{"item_id": id}, nil)
}

func (c *Client) Broadcast(ctx context.Context, message string) error {
	return c.jsonRequest(ctx, http.MethodPost, "/admin/broadcast", map[string]any{"message": message}, nil)
}

func (c *Client) ResetGame(ctx context.Context) error {
	return c.jsonRequest(ctx, http.MethodPost, "/admin/reset-game", map[string]any{}, nil)
}

type LogQuery struct {
	TeamCode   string
	ActionType string
	Round      int
	Limit      int
}

func (c *Client) Logs(ctx context.Context, q LogQuery) ([]game.AuditEntry, error) {
	v := url.Values{}
	if q.TeamCode != "" {
		v.Set("team_code", q.TeamCode)
	}
	if q.ActionType != "" {
		v.Set("action_type", q.ActionType)
	}
	if q.Round > 0 {
		v.Set("round", strconv.Itoa(q.Round))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	path := "/admin/logs"
	if enc := v.Encode(); enc != "" {
		path += "?" + enc
	}
	var out []game.AuditEntry
	err := c.jsonRequest(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *Client) jsonRequest(ctx context.Context, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		apiErr := &APIError{Status: resp.StatusCode, Detail: strings.TrimSpace(string(raw))}
		var payload struct {
			Detail string `json:"detail"`
		}
		if json.Unmarshal(raw, &payload) == nil && payload.Detail != "" {
			apiErr.Detail = payload.Detail
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
