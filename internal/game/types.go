package game

import "time"

type ActionType string

const (
	ActionTeamCreated      ActionType = "TEAM_CREATED"
	ActionTeamRemoved      ActionType = "TEAM_REMOVED"
	ActionTeamReset        ActionType = "TEAM_RESET"
	ActionTeamInfoUpdated  ActionType = "TEAM_INFO_UPDATED"
	ActionLockChanged      ActionType = "LOCK_CHANGED"
	ActionBuySupplier      ActionType = "BUY_SUPPLIER"
	ActionRedeemCode       ActionType = "REDEEM_CODE"
	ActionGrantAuctionItem ActionType = "GRANT_AUCTION_ITEM"
	ActionRevokeAsset      ActionType = "REVOKE_ASSET"
	ActionAdminEdit        ActionType = "ADMIN_EDIT"
	ActionGlobalBonus      ActionType = "GLOBAL_BONUS"
	ActionRoundEvent       ActionType = "ROUND_EVENT"
	ActionNewYear          ActionType = "NEW_YEAR"
	ActionCodeIssued       ActionType = "CODE_ISSUED"
	ActionCatalogAdded     ActionType = "CATALOG_ADDED"
	ActionCatalogDeleted   ActionType = "CATALOG_DELETED"
	ActionBroadcast        ActionType = "BROADCAST"
	ActionGameReset        ActionType = "GAME_RESET"
)

type Team struct {
	Code            string    `json:"code"`
	Cash            int64     `json:"cash"`
	CarbonDebt      int64     `json:"carbon_debt"`
	InventoryChoice string    `json:"inventory_choice"`
	LastActionRound int       `json:"last_action_round"`
	LockOverride    string    `json:"lock_override"`
	Assets          []string  `json:"assets"`
	Username        string    `json:"username"`
	Password        string    `json:"-"`
	Members         string    `json:"members"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TeamView is a Team with the read-time derived fields.
type TeamView struct {
	Team
	Locked bool    `json:"locked"`
	Score  float64 `json:"score"`
}

func NewTeamView(t Team, currentRound int) TeamView {
	t.Assets = cloneStrings(t.Assets)
	return TeamView{
		Team:   t,
		Locked: IsLocked(t, currentRound),
		Score:  Score(t.Cash, t.CarbonDebt),
	}
}

type CatalogItem struct {
	ID          string    `json:"id"`
	Category    string    `json:"category"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Cost        int64     `json:"cost"`
	DebtEffect  int64     `json:"debt_effect"`
	CreatedAt   time.Time `json:"created_at"`
}

type RedemptionCode struct {
	Code          string     `json:"code"`
	TeamCode      string     `json:"team_code"`
	ItemName      string     `json:"item_name"`
	Price         int64      `json:"price"`
	DebtReduction int64      `json:"debt_reduction"`
	Consumed      bool       `json:"consumed"`
	ConsumedAt    *time.Time `json:"consumed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

type GameState struct {
	CurrentRound    int    `json:"current_round"`
	ActiveEvent     string `json:"active_event"`
	SystemMessage   string `json:"system_message"`
	CalculatedRound int    `json:"calculated_round"`
}

func DefaultGameState() GameState {
	return GameState{
		CurrentRound:    1,
		ActiveEvent:     NoEvent,
		SystemMessage:   DefaultSystemMessage,
		CalculatedRound: 0,
	}
}

type AuditEntry struct {
	ID         string         `json:"id"`
	CreatedAt  time.Time      `json:"timestamp"`
	Round      int            `json:"round"`
	TeamCode   string         `json:"team_code,omitempty"`
	ActionType ActionType     `json:"action_type"`
	CashDelta  int64          `json:"cash_delta"`
	DebtDelta  int64          `json:"debt_delta"`
	Details    map[string]any `json:"details"`
}

type AuditFilter struct {
	TeamCode   string
	ActionType ActionType
	Round      int
	Limit      int
}

const (
	DefaultAuditLimit = 200
	MaxAuditLimit     = 1000
)

type NewTeamInput struct {
	Code        string
	InitialCash *int64
	InitialDebt int64
	Username    string
	Password    string
	Members     string
}

type NewCatalogItemInput struct {
	Category    string
	Name        string
	Description string
	Cost        int64
	DebtEffect  int64
}

type IssueCodeInput struct {
	Code          string
	TeamCode      string
	ItemName      string
	Price         int64
	DebtReduction int64
}

type BuySupplierInput struct {
	TeamCode   string
	ItemName   string
	Cost       int64
	DebtEffect int64
}

type TeamFailure struct {
	TeamCode string `json:"team_code"`
	Error    string `json:"error"`
}

type BulkResult struct {
	Updated  int           `json:"updated"`
	Failures []TeamFailure `json:"failures"`
}

type RoundResult struct {
	Event    string        `json:"event"`
	Round    int           `json:"round"`
	Updated  int           `json:"updated"`
	Logs     []string      `json:"logs"`
	Failures []TeamFailure `json:"failures"`
}

// Change is published after a committed mutation so clients can refresh.
type Change struct {
	Kind     string    `json:"kind"`
	TeamCode string    `json:"team_code,omitempty"`
	Round    int       `json:"round"`
	At       time.Time `json:"at"`
}

// Clone returns a copy that shares no slices with t.
func (t Team) Clone() Team {
	t.Assets = cloneStrings(t.Assets)
	return t
}
