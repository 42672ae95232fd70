package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/soyeahso/tagstream/internal/failover"
)

func newFailoverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "failover",
		Short: "Inspect or reset credential and model rotation state",
	}
	cmd.AddCommand(newFailoverStatusCmd())
	cmd.AddCommand(newFailoverResetCmd())
	return cmd
}

func newFailoverStatusCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the active credential and model and every block",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), cfg, paths, log)
			if err != nil {
				return err
			}
			defer a.Close()

			snap := a.failover.Snapshot()
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(snap)
			}
			printSnapshot(cmd.OutOrStdout(), snap)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw snapshot as JSON")
	return cmd
}

func newFailoverResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Clear every block and return to the first credential and model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), cfg, paths, log)
			if err != nil {
				return err
			}
			defer a.Close()

			a.failover.Reset()
			fmt.Fprintln(cmd.OutOrStdout(), "failover state reset")
			return nil
		},
	}
}

func printSnapshot(w io.Writer, snap failover.Snapshot) {
	now := snap.TakenAt
	fmt.Fprintln(w, "Credentials:")
	for i, c := range snap.Credentials {
		fmt.Fprintf(w, "  %s %s  %s\n", marker(i == snap.CredentialIndex), c.ID, blockState(c.Blocked(now), c.Permanent, c.BlockedUntil, now, c.FailureCount))
	}
	fmt.Fprintln(w, "Models:")
	for i, m := range snap.Models {
		fmt.Fprintf(w, "  %s %s  %s\n", marker(i == snap.ModelIndex), m.ID, blockState(m.Blocked(now), false, m.BlockedUntil, now, 0))
	}
}

func marker(active bool) string {
	if active {
		return "*"
	}
	return " "
}

func blockState(blocked, permanent bool, until, now time.Time, failures int) string {
	switch {
	case !blocked:
		return "available"
	case permanent:
		return "refused (permission denied)"
	default:
		s := fmt.Sprintf("blocked for %s", until.Sub(now).Round(time.Second))
		if failures > 0 {
			s += fmt.Sprintf(" (%d failure(s))", failures)
		}
		return s
	}
}
