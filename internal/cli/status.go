package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/soyeahso/tagstream/internal/config"
	"github.com/soyeahso/tagstream/internal/failover"
	"github.com/soyeahso/tagstream/internal/gateway"
	"github.com/soyeahso/tagstream/internal/store"
	"github.com/soyeahso/tagstream/internal/version"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show paths and a configuration summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "tagstream %s (commit %s)\n\n", version.Version, version.Commit)

			fmt.Fprintf(w, "Config:   %s\n", paths.Config)
			fmt.Fprintf(w, "Data:     %s\n", paths.Data)
			fmt.Fprintf(w, "Logs:     %s\n\n", paths.Logs)

			fmt.Fprintf(w, "Provider: %s", cfg.Provider.Backend)
			if cfg.Provider.BaseURL != "" {
				fmt.Fprintf(w, " (%s)", cfg.Provider.BaseURL)
			}
			fmt.Fprintln(w)

			ids := make([]string, len(cfg.Failover.Credentials))
			for i, secret := range cfg.Failover.Credentials {
				ids[i] = failover.CredentialID(secret)
			}
			fmt.Fprintf(w, "Keys:     %d [%s]\n", len(ids), strings.Join(ids, ", "))
			fmt.Fprintf(w, "Models:   %s\n", strings.Join(cfg.Failover.Models, " > "))

			storePath := store.Memory
			if cfg.Store.Driver == "sqlite" {
				storePath = paths.StorePath(cfg.Store)
			}
			fmt.Fprintf(w, "Store:    %s %s\n", cfg.Store.Driver, storePath)
			fmt.Fprintf(w, "Gateway:  %s auth=%v\n", gateway.ResolveBindAddr(cfg.Gateway), cfg.Gateway.Auth.Token != "")

			if irc := cfg.Channels.IRC; irc != nil {
				fmt.Fprintf(w, "IRC:      %s:%d nick=%s channels=%s tls=%v scope=%s\n",
					irc.Server, irc.Port, irc.Nick, strings.Join(irc.Channels, ","), irc.UseTLS, irc.Scope)
			} else {
				fmt.Fprintln(w, "IRC:      (not configured)")
			}

			hm := newHooks(cfg.Hooks, log)
			if events := hm.Events(); len(events) > 0 {
				parts := make([]string, len(events))
				for i, ev := range events {
					parts[i] = fmt.Sprintf("%s(%d)", ev, hm.Count(ev))
				}
				fmt.Fprintf(w, "Hooks:    %s\n", strings.Join(parts, " "))
			} else {
				fmt.Fprintln(w, "Hooks:    (none)")
			}

			if issues := config.Validate(&cfg); len(issues) > 0 {
				fmt.Fprintf(w, "\nValidation issues (%d):\n", len(issues))
				for _, issue := range issues {
					fmt.Fprintf(w, "  - %s: %s\n", issue.Path, issue.Message)
				}
			}
			return nil
		},
	}
}
