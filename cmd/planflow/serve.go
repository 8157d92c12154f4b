package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rahul/planflow/internal/agent"
	"github.com/rahul/planflow/internal/gateway"
	"github.com/rahul/planflow/internal/observability"
)

// NewServeCommand runs the chat gateways and the recovery sweeper until
// interrupted.
func NewServeCommand(flags *globalFlags) *cobra.Command {
	var noRecovery bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the workflow over the enabled chat gateways",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(flags)
			if err != nil {
				return err
			}
			defer a.close()

			engine, err := a.newEngine()
			if err != nil {
				return err
			}

			router := gateway.Router{}
			if gw, ok := a.cfg.GetGateway("telegram"); ok {
				tg, err := gateway.NewTelegramGateway(gw.Token, engine)
				if err != nil {
					return fmt.Errorf("telegram: %w", err)
				}
				router["telegram"] = tg
			}
			if gw, ok := a.cfg.GetGateway("discord"); ok {
				dg, err := gateway.NewDiscordGateway(gw.Token, engine)
				if err != nil {
					return fmt.Errorf("discord: %w", err)
				}
				router["discord"] = dg
			}
			if len(router) == 0 {
				return fmt.Errorf("no gateway is enabled; set gateways.telegram or gateways.discord in %s", flags.configPath)
			}

			observability.PrintBanner(cmd.OutOrStdout(), Version)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			g, ctx := errgroup.WithContext(ctx)
			for name, m := range router {
				g.Go(func() error {
					log.Printf("Starting %s gateway", name)
					if err := m.Start(ctx); err != nil {
						return fmt.Errorf("%s gateway: %w", name, err)
					}
					return nil
				})
			}

			if !noRecovery {
				recovery := agent.NewRecovery(engine, router.Notify)
				g.Go(func() error {
					recovery.Start(ctx)
					return nil
				})
			}

			g.Go(func() error {
				heartbeat(ctx, 30*time.Second)
				return nil
			})

			err = g.Wait()
			for _, m := range router {
				_ = m.Stop()
			}
			log.Println("Shutting down gracefully")
			return err
		},
	}

	cmd.Flags().BoolVar(&noRecovery, "no-recovery", false, "do not continue interrupted runs in the background")
	return cmd
}

func heartbeat(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			observability.Heartbeat()
		}
	}
}
