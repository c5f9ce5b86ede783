package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	cl "greenledger/internal/cli"
	"greenledger/internal/config"
	"greenledger/internal/game"

	"github.com/spf13/cobra"
)

const requestTimeout = 30 * time.Second

func main() {
	config.LoadDotEnv()
	cfg := config.LoadCLIFromEnv()
	apiBase := cfg.APIBaseURL

	root := &cobra.Command{
		Use:          "glctl",
		Short:        "Green Ledger classroom console",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&apiBase, "api", apiBase, "engine base url")

	root.AddCommand(
		newLoginCmd(&apiBase),
		newLogoutCmd(),
		newWhoamiCmd(&apiBase),
		newStateCmd(&apiBase),
		newBuyCmd(&apiBase),
		newRedeemCmd(&apiBase),
		newWatchCmd(&apiBase),
		newTeamsCmd(&apiBase),
		newCatalogCmd(&apiBase),
		newCodesCmd(&apiBase),
		newRoundCmd(&apiBase),
		newBulkCmd(&apiBase),
		newLogsCmd(&apiBase),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newClient(apiBase *string) *cl.Client {
	return cl.NewClient(strings.TrimRight(strings.TrimSpace(*apiBase), "/"))
}

func withTimeout(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), requestTimeout)
}

func newLoginCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Log in as a team",
		RunE: func(cmd *cobra.Command, args []string) error {
			username, err := promptRequired("Username")
			if err != nil {
				return err
			}
			password, err := promptSecret("Password")
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			team, err := newClient(apiBase).Login(ctx, username, password)
			if err != nil {
				return err
			}
			if err := cl.SaveSession(cl.Session{
				TeamCode:   team.Code,
				Username:   team.Username,
				APIBaseURL: *apiBase,
				LoggedInAt: time.Now().UTC(),
			}); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Logged in as team %s.", team.Code))
			return nil
		},
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved team",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cl.ClearSession(); err != nil {
				return err
			}
			printSuccess("Logged out.")
			return nil
		},
	}
}

func newWhoamiCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged in team",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.LoadSession()
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			team, err := newClient(apiBase).Team(ctx, sess.TeamCode)
			if err != nil {
				return err
			}
			renderTeam(team)
			return nil
		},
	}
}

func newStateCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Show the current round and broadcast",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			state, err := newClient(apiBase).State(ctx)
			if err != nil {
				return err
			}
			renderState(state)
			return nil
		},
	}
}

func newBuyCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "buy [supplier]",
		Short: "Pick this round's supplier for the logged in team",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.LoadSession()
			if err != nil {
				return err
			}
			client := newClient(apiBase)
			ctx, cancel := withTimeout(cmd)
			defer cancel()

			suppliers, err := client.Catalog(ctx, game.CategorySupplier)
			if err != nil {
				return err
			}
			if len(suppliers) == 0 {
				return fmt.Errorf("no suppliers in the catalog")
			}
			var name string
			if len(args) == 1 {
				name = args[0]
			} else {
				renderCatalog(suppliers)
				names := make([]string, 0, len(suppliers))
				for _, s := range suppliers {
					names = append(names, s.Name)
				}
				if name, err = promptChoice("Supplier", names); err != nil {
					return err
				}
			}
			item, ok := findItem(suppliers, name)
			if !ok {
				return fmt.Errorf("unknown supplier %q", name)
			}
			team, err := client.BuySupplier(ctx, sess.TeamCode, item)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Bought %s.", item.Name))
			renderTeam(team)
			return nil
		},
	}
}

func findItem(items []game.CatalogItem, name string) (game.CatalogItem, bool) {
	for _, it := range items {
		if strings.EqualFold(strings.TrimSpace(it.Name), strings.TrimSpace(name)) {
			return it, true
		}
	}
	return game.CatalogItem{}, false
}

func newRedeemCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "redeem <secret-code>",
		Short: "Redeem an auction code for the logged in team",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.LoadSession()
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			team, err := newClient(apiBase).RedeemCode(ctx, sess.TeamCode, args[0])
			if err != nil {
				return err
			}
			printSuccess("Code redeemed.")
			renderTeam(team)
			return nil
		},
	}
}
