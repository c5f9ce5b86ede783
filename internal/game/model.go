package game

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
)

const (
	DefaultStartingCash = int64(1500)
	DefaultBaseRevenue  = int64(1000)

	NoChoice = "None"
	NoEvent  = "None"

	DefaultSystemMessage = "Welcome!"

	CategorySupplier = "supplier"
	CategoryAuction  = "auction"

	OverrideNone     = ""
	OverrideLocked   = "locked"
	OverrideUnlocked = "unlocked"

	maxNameLen = 120
)

var (
	ErrValidation             = errors.New("validation error")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrTeamLocked             = errors.New("team is locked for this round")
	ErrTeamNotFound           = errors.New("team not found")
	ErrDuplicateTeam          = errors.New("team already exists")
	ErrInvalidCredentials     = errors.New("invalid username or password")
	ErrCodeNotFound           = errors.New("redemption code not found")
	ErrCodeNotBoundToTeam     = errors.New("redemption code belongs to another team")
	ErrAlreadyConsumed        = errors.New("redemption code already used")
	ErrDuplicateCode          = errors.New("redemption code already active")
	ErrAssetNotFound          = errors.New("asset not found")
	ErrCatalogItemNotFound    = errors.New("catalog item not found")
	ErrUnknownEvent           = fmt.Errorf("%w: unknown event", ErrValidation)
	ErrRoundAlreadyCalculated = errors.New("round already calculated")
	ErrTxConflict             = errors.New("transaction conflict, try again")
)

var teamCodeRE = regexp.MustCompile(`^[A-Za-z0-9_-]{1,32}$`)

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func ValidateTeamCode(code string) error {
	if !teamCodeRE.MatchString(strings.TrimSpace(code)) {
		return validationf("team code must be 1-32 letters, digits, '-' or '_'")
	}
	return nil
}

// NormalizeCode upper-cases a redemption code so admin and team input compare equal.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func validateItemName(field, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return validationf("%s is required", field)
	}
	if len(name) > maxNameLen {
		return validationf("%s is too long", field)
	}
	return nil
}

// validateAssetName also rejects commas, which split assets in the stored column.
func validateAssetName(name string) error {
	if err := validateItemName("asset name", name); err != nil {
		return err
	}
	if strings.Contains(name, ",") {
		return validationf("asset name must not contain a comma")
	}
	return nil
}

func validateCategory(category string) error {
	switch category {
	case CategorySupplier, CategoryAuction:
		return nil
	default:
		return validationf("category must be %s or %s", CategorySupplier, CategoryAuction)
	}
}

func IsLocked(t Team, currentRound int) bool {
	switch t.LockOverride {
	case OverrideLocked:
		return true
	case OverrideUnlocked:
		return false
	default:
		return t.LastActionRound >= currentRound
	}
}

// Score is the leaderboard value: (cash * 0.6) + ((100 - debt) * 10), debt capped at 100.
func Score(cash, debt int64) float64 {
	effective := debt
	if effective > 100 {
		effective = 100
	}
	return math.Round((float64(cash)*0.6+float64(100-effective)*10)*100) / 100
}

// removeOne drops the first occurrence of name and reports whether it was present.
func removeOne(assets []string, name string) ([]string, bool) {
	for i, a := range assets {
		if a == name {
			out := make([]string, 0, len(assets)-1)
			out = append(out, assets[:i]...)
			return append(out, assets[i+1:]...), true
		}
	}
	return assets, false
}

func JoinAssets(assets []string) string {
	return strings.Join(assets, ",")
}

func SplitAssets(raw string) []string {
	out := []string{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
