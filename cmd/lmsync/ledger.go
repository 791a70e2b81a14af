package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newLedgerCommand(rootOpts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect or clear sync bookkeeping",
	}
	cmd.AddCommand(newLedgerShowCommand(rootOpts))
	cmd.AddCommand(newLedgerInvalidateCommand(rootOpts))
	cmd.AddCommand(newLedgerResetCommand(rootOpts))
	return cmd
}

func newLedgerShowCommand(rootOpts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <cache-key>",
		Short: "Show when a cache key last synced",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, rootOpts, false)
			if err != nil {
				return err
			}
			defer a.Shutdown()

			rec, ok, err := a.Ledger.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%s has never synced", args[0])
			}
			p := newPrinter(rootOpts, cmd.OutOrStdout())
			if p.json() {
				return p.writeJSON(rec)
			}
			fmt.Fprintf(p.w, "%s  synced %s (%s ago)\n", rec.Key, rec.LastSyncedAt.Format(time.RFC3339),
				time.Since(rec.LastSyncedAt).Round(time.Second))
			if rec.HasNext() {
				fmt.Fprintf(p.w, "  next page: %s\n", rec.Cursor)
			}
			return nil
		},
	}
}

func newLedgerInvalidateCommand(rootOpts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "invalidate <cache-key>",
		Short: "Forget a cache key so its next sync fetches",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, rootOpts, false)
			if err != nil {
				return err
			}
			defer a.Shutdown()
			return a.Ledger.Invalidate(cmd.Context(), args[0])
		},
	}
}

func newLedgerResetCommand(rootOpts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Log out: clear the ledger and every locally stored record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, rootOpts, false)
			if err != nil {
				return err
			}
			defer a.Shutdown()
			if err := a.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "local data cleared")
			return nil
		},
	}
}
