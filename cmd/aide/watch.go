package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"aide/internal/gateway"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the skill watcher until interrupted",
	Long: `Starts the gateway state layer with skill hot reload enabled and logs
command registry changes as skill files are added, edited, or removed.
Stops cleanly on SIGINT or SIGTERM.`,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return err
	}
	defer gw.Stop()

	gw.Commands().OnUpdate(func() error {
		names := gw.Commands().CommandNames()
		logger.Info("command registry updated",
			zap.Int("count", len(names)), zap.Strings("commands", names))
		return nil
	})

	if err := gw.Start(ctx); err != nil {
		return err
	}
	fmt.Printf("watching skills under %s (ctrl-c to stop)\n", cfg.WorkspaceSkillsDir())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-ctx.Done()
		return nil
	})
	g.Go(func() error {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				logger.Debug("watcher alive",
					zap.Int("skills", len(gw.Skills().AllSkills())),
					zap.Int("commands", gw.Commands().Len()))
			}
		}
	})
	return g.Wait()
}
