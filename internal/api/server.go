package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"greenledger/internal/config"
	"greenledger/internal/game"
	"greenledger/internal/live"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type Server struct {
	cfg     config.APIConfig
	log     *slog.Logger
	game    *game.Service
	hub     *live.Hub
	metrics *Metrics
	mux     *chi.Mux
}

// New builds the router. hub may be nil, in which case /ws is not served.
func New(cfg config.APIConfig, logger *slog.Logger, gameSvc *game.Service, hub *live.Hub) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:     cfg,
		log:     logger,
		game:    gameSvc,
		hub:     hub,
		metrics: NewMetrics(),
		mux:     chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	timeout := s.cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	origins := s.cfg.CORSAllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))
	r.Use(s.metrics.Middleware)

	r.Get("/metrics", s.metrics.Handler().ServeHTTP)
	if s.hub != nil {
		r.Get("/ws", s.hub.ServeWS)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(timeout))

		r.Get("/", s.handleHealth)
		r.Get("/healthz", s.handleHealth)
		r.Get("/catalog", s.handleCatalog)
		r.Get("/events", s.handleEvents)
		r.Get("/state", s.handleState)
		r.Get("/teams", s.handleTeams)
		r.Get("/teams/{code}", s.handleTeam)
		r.Post("/login", s.handleLogin)

		r.Post("/buy-supplier", s.handleBuySupplier)
		r.Post("/redeem-code", s.handleRedeemCode)
		r.Post("/calculate-round", s.handleCalculateRound)
		r.Post("/start-new-year", s.handleStartNewYear)

		r.Route("/admin", func(r chi.Router) {
			r.Get("/logs", s.handleLogs)
			r.Get("/codes", s.handleCodes)

			r.Post("/add-team", s.handleAddTeam)
			r.Post("/remove-team", s.handleRemoveTeam)
			r.Post("/reset-single-team", s.handleResetTeam)
			r.Post("/toggle-lock", s.handleToggleLock)
			r.Post("/lock-all", s.handleLockAll)
			r.Post("/unlock-all", s.handleUnlockAll)
			r.Post("/global-bonus", s.handleGlobalBonus)
			r.Post("/update-team-stats", s.handleUpdateTeamStats)
			r.Post("/update-team", s.handleUpdateTeamStats)
			r.Post("/update-team-info", s.handleUpdateTeamInfo)
			r.Post("/grant-auction-item", s.handleGrantAuctionItem)
			r.Post("/revoke-asset", s.handleRevokeAsset)
			r.Post("/create-code", s.handleCreateCode)
			r.Post("/add-catalog-item", s.handleAddCatalogItem)
			r.Post("/delete-catalog-item", s.handleDeleteCatalogItem)
			r.Post("/broadcast", s.handleBroadcast)
			r.Post("/reset-game", s.handleResetGame)
		})
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "online"})
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	out, err := s.game.Catalog(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleEvents(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"events": s.game.Events()})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	out, err := s.game.State(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTeams(w http.ResponseWriter, r *http.Request) {
	out, err := s.game.Teams(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTeam(w http.ResponseWriter, r *http.Request) {
	out, err := s.game.Team(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.Login(r.Context(), in.Username, in.Password)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleBuySupplier(w http.ResponseWriter, r *http.Request) {
	var in struct {
		TeamCode   string `json:"team_code"`
		ItemName   string `json:"item_name"`
		Cost       int64  `json:"cost"`
		DebtEffect int64  `json:"debt_effect"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.BuySupplier(r.Context(), game.BuySupplierInput{
		TeamCode:   in.TeamCode,
		ItemName:   in.ItemName,
		Cost:       in.Cost,
		DebtEffect: in.DebtEffect,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRedeemCode(w http.ResponseWriter, r *http.Request) {
	var in struct {
		TeamCode   string `json:"team_code"`
		SecretCode string `json:"secret_code"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.RedeemCode(r.Context(), in.SecretCode, in.TeamCode)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCalculateRound(w http.ResponseWriter, r *http.Request) {
	var in struct {
		EventName string `json:"event_name"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.CalculateRound(r.Context(), in.EventName)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.metrics.observeFailures("calculate_round", len(out.Failures))
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleStartNewYear(w http.ResponseWriter, r *http.Request) {
	if err := decodeJSON(r, &struct{}{}); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	state, err := s.game.StartNewYear(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"current_round":  state.CurrentRound,
		"active_event":   state.ActiveEvent,
		"system_message": state.SystemMessage,
	})
}

func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	s.metrics.observeError(status)
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "err", err)
		writeError(w, status, "internal server error")
		return
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, game.ErrValidation), errors.Is(err, game.ErrInsufficientFunds):
		return http.StatusBadRequest
	case errors.Is(err, game.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, game.ErrTeamLocked), errors.Is(err, game.ErrCodeNotBoundToTeam):
		return http.StatusForbidden
	case errors.Is(err, game.ErrTeamNotFound), errors.Is(err, game.ErrCodeNotFound),
		errors.Is(err, game.ErrCatalogItemNotFound), errors.Is(err, game.ErrAssetNotFound):
		return http.StatusNotFound
	case errors.Is(err, game.ErrAlreadyConsumed), errors.Is(err, game.ErrDuplicateCode),
		errors.Is(err, game.ErrDuplicateTeam), errors.Is(err, game.ErrRoundAlreadyCalculated),
		errors.Is(err, game.ErrTxConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON accepts an empty body as an empty object.
func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError uses the detail key the dashboards read.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"detail": strings.TrimSpace(message)})
}

func writeOK(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func queryInt(r *http.Request, key string) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.New(key + " must be an integer")
	}
	return n, nil
}
