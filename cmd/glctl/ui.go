package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"greenledger/internal/game"

	"github.com/fatih/color"
	"golang.org/x/term"
)

var (
	stdinReader = bufio.NewReader(os.Stdin)
	accent      = color.New(color.FgCyan, color.Bold)
	success     = color.New(color.FgGreen, color.Bold)
	warn        = color.New(color.FgYellow, color.Bold)
	danger      = color.New(color.FgRed, color.Bold)
	neutral     = color.New(color.FgHiWhite)
)

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printInfo(msg string) {
	neutral.Println(msg)
}

func promptRequired(label string) (string, error) {
	for {
		fmt.Printf("%s: ", label)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(text)
		if text != "" {
			return text, nil
		}
		printWarn(label + " is required.")
	}
}

// promptSecret hides input on a terminal and falls back to a plain read
// when stdin is piped.
func promptSecret(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return promptRequired(label)
	}
	for {
		fmt.Printf("%s: ", label)
		raw, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", err
		}
		if text := strings.TrimSpace(string(raw)); text != "" {
			return text, nil
		}
		printWarn(label + " is required.")
	}
}

func promptChoice(label string, options []string) (string, error) {
	for i, opt := range options {
		fmt.Printf("  %d) %s\n", i+1, opt)
	}
	for {
		text, err := promptRequired(label)
		if err != nil {
			return "", err
		}
		if n, err := strconv.Atoi(text); err == nil && n >= 1 && n <= len(options) {
			return options[n-1], nil
		}
		for _, opt := range options {
			if strings.EqualFold(opt, text) {
				return opt, nil
			}
		}
		printWarn("Invalid option. Pick a number or a listed name.")
	}
}

func confirm(label string) (bool, error) {
	fmt.Printf("%s [y/N]: ", label)
	text, err := stdinReader.ReadString('\n')
	if err != nil {
		return false, err
	}
	text = strings.ToLower(strings.TrimSpace(text))
	return text == "y" || text == "yes", nil
}

func renderTeam(t game.TeamView) {
	accent.Printf("\n== TEAM %s ==\n", t.Code)
	fmt.Printf("%-14s %s\n", "Cash", formatCash(t.Cash))
	fmt.Printf("%-14s %s\n", "Carbon debt", colorizeDebt(t.CarbonDebt))
	fmt.Printf("%-14s %.0f\n", "Score", t.Score)
	fmt.Printf("%-14s %s\n", "Supplier", t.InventoryChoice)
	fmt.Printf("%-14s %s\n", "Status", lockLabel(t.Locked))
	if len(t.Assets) > 0 {
		fmt.Printf("%-14s %s\n", "Assets", strings.Join(t.Assets, ", "))
	}
	if t.Members != "" {
		fmt.Printf("%-14s %s\n", "Members", t.Members)
	}
	fmt.Println()
}

func renderTeams(teams []game.TeamView) {
	accent.Println("\n== TEAMS ==")
	if len(teams) == 0 {
		printInfo("No teams yet.")
		return
	}
	fmt.Printf("%-10s %12s %6s %10s %-22s %-8s\n", "TEAM", "CASH", "DEBT", "SCORE", "SUPPLIER", "STATUS")
	for _, t := range teams {
		fmt.Printf("%-10s %12s %6d %10.0f %-22s %-8s\n",
			truncate(t.Code, 10),
			formatCash(t.Cash),
			t.CarbonDebt,
			t.Score,
			truncate(t.InventoryChoice, 22),
			lockLabel(t.Locked),
		)
	}
	fmt.Println()
}

func renderState(s game.GameState) {
	accent.Printf("\n== ROUND %d ==\n", s.CurrentRound)
	fmt.Printf("%-14s %s\n", "Last event", s.ActiveEvent)
	fmt.Printf("%-14s %s\n", "Message", s.SystemMessage)
	fmt.Println()
}

func renderCatalog(items []game.CatalogItem) {
	accent.Println("\n== CATALOG ==")
	if len(items) == 0 {
		printInfo("Catalog is empty.")
		return
	}
	fmt.Printf("%-36s %-9s %-24s %10s %6s\n", "ID", "CATEGORY", "NAME", "COST", "DEBT")
	for _, it := range items {
		fmt.Printf("%-36s %-9s %-24s %10s %+6d\n", it.ID, it.Category, truncate(it.Name, 24), formatCash(it.Cost), it.DebtEffect)
	}
	fmt.Println()
}

func renderCodes(codes []game.RedemptionCode) {
	accent.Println("\n== REDEMPTION CODES ==")
	if len(codes) == 0 {
		printInfo("No codes issued.")
		return
	}
	fmt.Printf("%-14s %-10s %-22s %10s %6s %-6s\n", "CODE", "TEAM", "ITEM", "PRICE", "DEBT", "USED")
	for _, c := range codes {
		used := success.Sprint("no")
		if c.Consumed {
			used = neutral.Sprint("yes")
		}
		fmt.Printf("%-14s %-10s %-22s %10s %+6d %-6s\n", c.Code, c.TeamCode, truncate(c.ItemName, 22), formatCash(c.Price), c.DebtReduction, used)
	}
	fmt.Println()
}

func renderRound(res game.RoundResult) {
	accent.Printf("\n== %s (round %d) ==\n", strings.ToUpper(res.Event), res.Round)
	for _, line := range res.Logs {
		fmt.Println(line)
	}
	printSuccess(fmt.Sprintf("%d teams updated.", res.Updated))
	renderFailures(res.Failures)
}

func renderBulk(res game.BulkResult, what string) {
	printSuccess(fmt.Sprintf("%s: %d teams updated.", what, res.Updated))
	renderFailures(res.Failures)
}

func renderFailures(failures []game.TeamFailure) {
	for _, f := range failures {
		danger.Printf("  %s: %s\n", f.TeamCode, f.Error)
	}
}

func renderLogs(entries []game.AuditEntry) {
	accent.Println("\n== AUDIT LOG ==")
	if len(entries) == 0 {
		printInfo("No entries.")
		return
	}
	fmt.Printf("%-20s %-5s %-10s %-20s %10s %6s\n", "TIME", "ROUND", "TEAM", "ACTION", "CASH", "DEBT")
	for _, e := range entries {
		fmt.Printf("%-20s %-5d %-10s %-20s %10s %+6d\n",
			e.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			e.Round,
			truncate(e.TeamCode, 10),
			e.ActionType,
			colorizeCash(e.CashDelta),
			e.DebtDelta,
		)
	}
	fmt.Println()
}

func lockLabel(locked bool) string {
	if locked {
		return "locked"
	}
	return "open"
}

func colorizeDebt(v int64) string {
	text := strconv.FormatInt(v, 10)
	switch {
	case v > 0:
		return danger.Sprint(text)
	case v < 0:
		return success.Sprint(text)
	default:
		return neutral.Sprint(text)
	}
}

func colorizeCash(v int64) string {
	text := formatCash(v)
	if v > 0 {
		text = "+" + text
	}
	switch {
	case v > 0:
		return success.Sprint(text)
	case v < 0:
		return danger.Sprint(text)
	default:
		return neutral.Sprint(text)
	}
}

func formatCash(v int64) string {
	if v < 0 {
		return "-$" + comma(-v)
	}
	return "$" + comma(v)
}

func comma(v int64) string {
	s := strconv.FormatInt(v, 10)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	pre := len(s) % 3
	if pre > 0 {
		b.WriteString(s[:pre])
	}
	for i := pre; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
