package main

import (
	"fmt"
	"strconv"
	"strings"

	cl "greenledger/internal/cli"
	"greenledger/internal/game"

	"github.com/spf13/cobra"
)

func newTeamsCmd(apiBase *string) *cobra.Command {
	teams := &cobra.Command{
		Use:   "teams",
		Short: "List and manage teams",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			out, err := newClient(apiBase).Teams(ctx)
			if err != nil {
				return err
			}
			renderTeams(out)
			return nil
		},
	}

	teams.AddCommand(&cobra.Command{
		Use:   "show <code>",
		Short: "Show one team",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			out, err := newClient(apiBase).Team(ctx, args[0])
			if err != nil {
				return err
			}
			renderTeam(out)
			return nil
		},
	})

	var username, password, members string
	add := &cobra.Command{
		Use:   "add <code>",
		Short: "Register a team with the starting stake",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			out, err := newClient(apiBase).AddTeam(ctx, args[0], username, password, members)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Team %s registered.", out.Code))
			renderTeam(out)
			return nil
		},
	}
	add.Flags().StringVar(&username, "username", "", "login username")
	add.Flags().StringVar(&password, "password", "", "login password")
	add.Flags().StringVar(&members, "members", "", "member names")
	teams.AddCommand(add)

	teams.AddCommand(&cobra.Command{
		Use:   "remove <code>",
		Short: "Delete a team and its codes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, err := confirm(fmt.Sprintf("Remove team %s", args[0]))
			if err != nil || !ok {
				return err
			}
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			if err := newClient(apiBase).RemoveTeam(ctx, args[0]); err != nil {
				return err
			}
			printSuccess("Team removed.")
			return nil
		},
	})

	teams.AddCommand(&cobra.Command{
		Use:   "reset <code>",
		Short: "Restore a team to the starting stake",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			out, err := newClient(apiBase).ResetTeam(ctx, args[0])
			if err != nil {
				return err
			}
			renderTeam(out)
			return nil
		},
	})

	teams.AddCommand(&cobra.Command{
		Use:   "toggle-lock <code>",
		Short: "Flip a team's lock",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			locked, err := newClient(apiBase).ToggleLock(ctx, args[0])
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Team %s is now %s.", strings.ToUpper(args[0]), lockLabel(locked)))
			return nil
		},
	})

	var cashChange, debtChange int64
	adjust := &cobra.Command{
		Use:   "adjust <code>",
		Short: "Apply a manual cash and debt correction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			out, err := newClient(apiBase).AdjustTeam(ctx, args[0], cashChange, debtChange)
			if err != nil {
				return err
			}
			renderTeam(out)
			return nil
		},
	}
	adjust.Flags().Int64Var(&cashChange, "cash", 0, "cash delta")
	adjust.Flags().Int64Var(&debtChange, "debt", 0, "carbon debt delta")
	teams.AddCommand(adjust)

	var grantPrice, grantDebt int64
	grant := &cobra.Command{
		Use:   "grant <code> <item>",
		Short: "Award an auction item",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			out, err := newClient(apiBase).GrantAuctionItem(ctx, args[0], args[1], grantPrice, grantDebt)
			if err != nil {
				return err
			}
			renderTeam(out)
			return nil
		},
	}
	grant.Flags().Int64Var(&grantPrice, "price", 0, "winning bid")
	grant.Flags().Int64Var(&grantDebt, "debt", 0, "carbon debt delta, negative reduces debt")
	teams.AddCommand(grant)

	teams.AddCommand(&cobra.Command{
		Use:   "revoke <code> <asset>",
		Short: "Remove one asset without a refund",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			out, err := newClient(apiBase).RevokeAsset(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			renderTeam(out)
			return nil
		},
	})
	return teams
}

func newCatalogCmd(apiBase *string) *cobra.Command {
	var category string
	catalog := &cobra.Command{
		Use:   "catalog",
		Short: "List and manage catalog items",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			out, err := newClient(apiBase).Catalog(ctx, category)
			if err != nil {
				return err
			}
			renderCatalog(out)
			return nil
		},
	}
	catalog.Flags().StringVar(&category, "category", "", "supplier or auction")

	var in game.NewCatalogItemInput
	add := &cobra.Command{
		Use:   "add <category> <name>",
		Short: "Add a catalog item",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Category, in.Name = args[0], args[1]
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			out, err := newClient(apiBase).AddCatalogItem(ctx, in)
			if err != nil {
				return err
			}
			renderCatalog([]game.CatalogItem{out})
			return nil
		},
	}
	add.Flags().StringVar(&in.Description, "description", "", "item description")
	add.Flags().Int64Var(&in.Cost, "cost", 0, "price (ignored for auction items)")
	add.Flags().Int64Var(&in.DebtEffect, "debt", 0, "carbon debt effect")
	catalog.AddCommand(add)

	catalog.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a catalog item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			if err := newClient(apiBase).DeleteCatalogItem(ctx, args[0]); err != nil {
				return err
			}
			printSuccess("Catalog item deleted.")
			return nil
		},
	})
	return catalog
}

func newCodesCmd(apiBase *string) *cobra.Command {
	codes := &cobra.Command{
		Use:   "codes",
		Short: "List and issue redemption codes",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			out, err := newClient(apiBase).Codes(ctx)
			if err != nil {
				return err
			}
			renderCodes(out)
			return nil
		},
	}

	var in game.IssueCodeInput
	create := &cobra.Command{
		Use:   "create <code> <team> <item>",
		Short: "Issue a single-use code bound to a team",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Code, in.TeamCode, in.ItemName = args[0], args[1], args[2]
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			out, err := newClient(apiBase).CreateCode(ctx, in)
			if err != nil {
				return err
			}
			renderCodes([]game.RedemptionCode{out})
			return nil
		},
	}
	create.Flags().Int64Var(&in.Price, "price", 0, "price charged on redeem")
	create.Flags().Int64Var(&in.DebtReduction, "debt", 0, "carbon debt delta, negative reduces debt")
	codes.AddCommand(create)
	return codes
}

func newRoundCmd(apiBase *string) *cobra.Command {
	round := &cobra.Command{
		Use:   "round",
		Short: "Run round events",
	}
	round.AddCommand(&cobra.Command{
		Use:   "events",
		Short: "List the available events",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			events, err := newClient(apiBase).Events(ctx)
			if err != nil {
				return err
			}
			for _, e := range events {
				fmt.Println(e)
			}
			return nil
		},
	})
	round.AddCommand(&cobra.Command{
		Use:   "calculate [event]",
		Short: "Apply an event to every team that picked a supplier",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient(apiBase)
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			var event string
			if len(args) == 1 {
				event = args[0]
			} else {
				events, err := client.Events(ctx)
				if err != nil {
					return err
				}
				if event, err = promptChoice("Event", events); err != nil {
					return err
				}
			}
			res, err := client.CalculateRound(ctx, event)
			if err != nil {
				return err
			}
			renderRound(res)
			return nil
		},
	})
	round.AddCommand(&cobra.Command{
		Use:   "new-year",
		Short: "Advance to the next round and unlock every team",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			state, err := newClient(apiBase).StartNewYear(ctx)
			if err != nil {
				return err
			}
			renderState(state)
			return nil
		},
	})
	return round
}

func newBulkCmd(apiBase *string) *cobra.Command {
	bulk := &cobra.Command{
		Use:   "bulk",
		Short: "Class-wide operations",
	}
	bulk.AddCommand(&cobra.Command{
		Use:   "lock-all",
		Short: "Lock every team",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			res, err := newClient(apiBase).LockAll(ctx, true)
			if err != nil {
				return err
			}
			renderBulk(res, "Locked")
			return nil
		},
	})
	bulk.AddCommand(&cobra.Command{
		Use:   "unlock-all",
		Short: "Unlock every team",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			res, err := newClient(apiBase).LockAll(ctx, false)
			if err != nil {
				return err
			}
			renderBulk(res, "Unlocked")
			return nil
		},
	})
	bulk.AddCommand(&cobra.Command{
		Use:   "bonus <amount>",
		Short: "Add cash to every team",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("amount must be an integer")
			}
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			res, err := newClient(apiBase).GlobalBonus(ctx, amount)
			if err != nil {
				return err
			}
			renderBulk(res, "Bonus applied")
			return nil
		},
	})
	bulk.AddCommand(&cobra.Command{
		Use:   "broadcast <message>",
		Short: "Set the message shown on every dashboard",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			if err := newClient(apiBase).Broadcast(ctx, strings.Join(args, " ")); err != nil {
				return err
			}
			printSuccess("Broadcast sent.")
			return nil
		},
	})
	bulk.AddCommand(&cobra.Command{
		Use:   "reset-game",
		Short: "Delete every team and code and return to round 1",
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, err := confirm("This removes all teams. Continue")
			if err != nil || !ok {
				return err
			}
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			if err := newClient(apiBase).ResetGame(ctx); err != nil {
				return err
			}
			printSuccess("Game reset.")
			return nil
		},
	})
	return bulk
}

func newLogsCmd(apiBase *string) *cobra.Command {
	var q cl.LogQuery
	logs := &cobra.Command{
		Use:   "logs",
		Short: "Show the audit log, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			out, err := newClient(apiBase).Logs(ctx, q)
			if err != nil {
				return err
			}
			renderLogs(out)
			return nil
		},
	}
	logs.Flags().StringVar(&q.TeamCode, "team", "", "filter by team code")
	logs.Flags().StringVar(&q.ActionType, "action", "", "filter by action type")
	logs.Flags().IntVar(&q.Round, "round", 0, "filter by round")
	logs.Flags().IntVar(&q.Limit, "limit", 0, "max entries")
	return logs
}
