package api

import (
	"net/http"
	"strings"

	"greenledger/internal/game"
)

type teamCodeRequest struct {
	TeamCode string `json:"team_code"`
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	round, err := queryInt(r, "round")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	q := r.URL.Query()
	out, err := s.game.Logs(r.Context(), game.AuditFilter{
		TeamCode:   q.Get("team_code"),
		ActionType: game.ActionType(q.Get("action_type")),
		Round:      round,
		Limit:      limit,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCodes(w http.ResponseWriter, r *http.Request) {
	out, err := s.game.Codes(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAddTeam(w http.ResponseWriter, r *http.Request) {
	var in struct {
		TeamCode    string `json:"team_code"`
		Username    string `json:"username"`
		Password    string `json:"password"`
		Members     string `json:"members"`
		InitialCash *int64 `json:"initial_cash"`
		InitialDebt int64  `json:"initial_debt"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.CreateTeam(r.Context(), game.NewTeamInput{
		Code:        in.TeamCode,
		InitialCash: in.InitialCash,
		InitialDebt: in.InitialDebt,
		Username:    in.Username,
		Password:    in.Password,
		Members:     in.Members,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRemoveTeam(w http.ResponseWriter, r *http.Request) {
	var in teamCodeRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.game.RemoveTeam(r.Context(), in.TeamCode); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeOK(w)
}

func (s *Server) handleResetTeam(w http.ResponseWriter, r *http.Request) {
	var in teamCodeRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.ResetTeam(r.Context(), in.TeamCode)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleToggleLock(w http.ResponseWriter, r *http.Request) {
	var in teamCodeRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.ToggleLock(r.Context(), in.TeamCode)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"team_code": out.Code,
		"locked":    out.Locked,
	})
}

func (s *Server) handleLockAll(w http.ResponseWriter, r *http.Request) {
	out, err := s.game.LockAll(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.metrics.observeFailures("lock_all", len(out.Failures))
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUnlockAll(w http.ResponseWriter, r *http.Request) {
	out, err := s.game.UnlockAll(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.metrics.observeFailures("unlock_all", len(out.Failures))
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGlobalBonus(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Amount int64 `json:"amount"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.GlobalBonus(r.Context(), in.Amount)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.metrics.observeFailures("global_bonus", len(out.Failures))
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUpdateTeamStats(w http.ResponseWriter, r *http.Request) {
	var in struct {
		TeamCode   string `json:"team_code"`
		CashChange int64  `json:"cash_change"`
		DebtChange int64  `json:"debt_change"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.AdminAdjust(r.Context(), in.TeamCode, in.CashChange, in.DebtChange)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUpdateTeamInfo(w http.ResponseWriter, r *http.Request) {
	var in struct {
		TeamCode string `json:"team_code"`
		Username string `json:"username"`
		Password string `json:"password"`
		Members  string `json:"members"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.UpdateTeamInfo(r.Context(), in.TeamCode, in.Username, in.Password, in.Members)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGrantAuctionItem(w http.ResponseWriter, r *http.Request) {
	var in struct {
		TeamCode      string `json:"team_code"`
		ItemName      string `json:"item_name"`
		Price         int64  `json:"price"`
		DebtReduction int64  `json:"debt_reduction"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.GrantAuctionItem(r.Context(), in.TeamCode, in.ItemName, in.Price, in.DebtReduction)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRevokeAsset(w http.ResponseWriter, r *http.Request) {
	var in struct {
		TeamCode  string `json:"team_code"`
		AssetName string `json:"asset_name"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.RevokeAsset(r.Context(), in.TeamCode, in.AssetName)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateCode(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Code          string `json:"code"`
		TeamID        string `json:"team_id"`
		ItemName      string `json:"item_name"`
		Price         int64  `json:"price"`
		DebtReduction int64  `json:"debt_reduction"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.IssueCode(r.Context(), game.IssueCodeInput{
		Code:          in.Code,
		TeamCode:      in.TeamID,
		ItemName:      in.ItemName,
		Price:         in.Price,
		DebtReduction: in.DebtReduction,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAddCatalogItem(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Category    string `json:"category"`
		Name        string `json:"name"`
		Description string `json:"description"`
		Cost        int64  `json:"cost"`
		DebtEffect  int64  `json:"debt_effect"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.AddCatalogItem(r.Context(), game.NewCatalogItemInput{
		Category:    in.Category,
		Name:        in.Name,
		Description: in.Description,
		Cost:        in.Cost,
		DebtEffect:  in.DebtEffect,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeleteCatalogItem(w http.ResponseWriter, r *http.Request) {
	var in struct {
		ItemID string `json:"item_id"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.game.DeleteCatalogItem(r.Context(), strings.TrimSpace(in.ItemID)); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeOK(w)
}

func (s *Server) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Message string `json:"message"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.game.Broadcast(r.Context(), in.Message); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeOK(w)
}

func (s *Server) handleResetGame(w http.ResponseWriter, r *http.Request) {
	if err := s.game.ResetGame(r.Context()); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeOK(w)
}
