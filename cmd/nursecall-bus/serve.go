package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sua-org/nursecall-bus/internal/config"
)

var serviceAction string

// program adapta o app ao ciclo de vida do kardianos/service.
type program struct {
	cfg    *config.Config
	logger *zap.Logger

	cancel context.CancelFunc
	done   chan error
}

func (p *program) Start(s service.Service) error {
	ctx, cancel := context.WithCancel(context.Background())
	a, err := newApp(ctx, p.cfg, p.logger)
	if err != nil {
		cancel()
		return err
	}
	p.cancel = cancel
	p.done = make(chan error, 1)
	// Start não pode bloquear
	go func() {
		p.done <- a.Run(ctx)
	}()
	return nil
}

func (p *program) Stop(s service.Service) error {
	p.logger.Info("stopping service")
	if p.cancel == nil {
		return nil
	}
	p.cancel()
	return <-p.done
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the collector (UDP ingest, camera streams, HTTP API)",
	Long: `Runs the collector in the foreground. With --service it instead
controls the OS service (install, uninstall, start, stop, run).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadRuntime()
		if err != nil {
			return err
		}

		if serviceAction != "" {
			return controlService(cfg, logger)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		logger.Info("collector started",
			zap.String("udp", cfg.UDP.Addr()),
			zap.String("http", cfg.HTTP.Addr),
			zap.Bool("mqtt", cfg.MQTT.Enabled),
			zap.Bool("simulate_cameras", cfg.Camera.Simulate),
		)
		err = a.Run(ctx)
		logger.Info("collector stopped")
		return err
	},
}

func controlService(cfg *config.Config, logger *zap.Logger) error {
	args := []string{"serve", "--service", "run"}
	if cfgFile != "" {
		args = append(args, "--config", cfgFile)
	}
	svcConfig := &service.Config{
		Name:        serviceName,
		DisplayName: "Nurse Call Bus",
		Description: "Collects nurse-call events and serves the live feed and room cameras",
		Arguments:   args,
	}

	s, err := service.New(&program{cfg: cfg, logger: logger}, svcConfig)
	if err != nil {
		return err
	}
	if serviceAction == "run" {
		return s.Run()
	}
	if err := service.Control(s, serviceAction); err != nil {
		return fmt.Errorf("service %s: %w", serviceAction, err)
	}
	fmt.Printf("Service action '%s' completed successfully.\n", serviceAction)
	return nil
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serviceAction, "service", "", "service action: install, uninstall, start, stop, run")
}
