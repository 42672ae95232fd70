package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/soyeahso/tagstream/internal/channel"
	"github.com/soyeahso/tagstream/internal/channel/irc"
	"github.com/soyeahso/tagstream/internal/gateway"
	"github.com/soyeahso/tagstream/internal/routing"
)

func newServeCmd() *cobra.Command {
	var (
		port int
		bind string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway and the configured chat channels",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := cfg
			if port != 0 {
				c.Gateway.Port = port
			}
			if bind != "" {
				c.Gateway.Bind = bind
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := paths.EnsureDirs(); err != nil {
				return err
			}
			a, err := openApp(ctx, c, paths, log)
			if err != nil {
				return err
			}
			defer a.Close()

			channels := channel.NewRegistry(log)
			if c.Channels.IRC != nil {
				channels.Register(irc.New(*c.Channels.IRC, log))
			}

			srv := gateway.New(c.Gateway, log,
				gateway.WithGenerator(a.runner),
				gateway.WithFailover(a.failover),
				gateway.WithBlocks(a.fstore),
				gateway.WithThreads(a.threads),
				gateway.WithChannels(channels),
				gateway.WithHooks(a.hooks),
			)

			if channels.Count() > 0 {
				channels.StartAll(ctx)
				defer channels.StopAll(context.WithoutCancel(ctx))

				irccfg := c.Channels.IRC
				router := routing.NewRouter(channels, a.runner, routing.NewHistory(irccfg.HistoryLimit), irccfg.Scope, log)
				router.Wire(ctx)
				defer router.Wait()

				log.Info().
					Int("channels", channels.Count()).
					Str("scope", irccfg.Scope).
					Msg("message routing active")
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override gateway port")
	cmd.Flags().StringVar(&bind, "bind", "", "override bind mode (loopback, lan, custom)")

	return cmd
}
