package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v3"

	"github.com/wlwd13303/panda-quantflow/internal/config"
	"github.com/wlwd13303/panda-quantflow/internal/logger"
	"github.com/wlwd13303/panda-quantflow/internal/version"
	"github.com/wlwd13303/panda-quantflow/internal/workspace"
	"github.com/wlwd13303/panda-quantflow/pkg/api"
)

// workspaceAction loads the configuration, connects the backend client and
// runs the Bubble Tea workspace until the user quits.
func workspaceAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	appLogger := logger.NewNopLogger()
	if logPath := cmd.String("log-file"); logPath != "" {
		appLogger, err = logger.NewFileLogger(logPath)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
	}
	defer appLogger.Sync()

	client, err := api.NewClient(api.Config{
		BaseURL: cfg.ServerURL,
		Timeout: cfg.Timeout(),
	})
	if err != nil {
		return err
	}

	manager := workspace.NewManager(client, appLogger,
		workspace.WithPollInterval(cfg.PollInterval()))
	defer manager.Close()

	model := NewModel(manager, cfg.Backtest)
	program := tea.NewProgram(model, tea.WithAltScreen())

	// Poll updates arrive on poller goroutines; forward them into the
	// Bubble Tea event loop.
	manager.SetUpdateHandler(func(update workspace.Update) {
		program.Send(runUpdateMsg{Update: update})
	})

	if _, err := program.Run(); err != nil {
		return fmt.Errorf("workspace exited with error: %w", err)
	}

	return nil
}

// loadConfig resolves the effective configuration from the optional config
// file and the command line flags. Flags win over the file.
func loadConfig(cmd *cli.Command) (config.Config, error) {
	cfg := config.DefaultConfig()

	if path := cmd.String("config"); path != "" {
		loaded, err := config.LoadConfig(path)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}

	if server := cmd.String("server"); server != "" {
		cfg.ServerURL = server
	}

	if interval := cmd.Duration("interval"); interval > 0 {
		cfg.PollIntervalMs = int(interval / time.Millisecond)
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}

	return cfg, nil
}

func main() {
	cmd := &cli.Command{
		Name:    "workspace",
		Usage:   "Interactive strategy and backtest workspace for a QuantFlow backend",
		Version: version.GetVersion(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "server",
				Aliases:  []string{"s"},
				Usage:    "Backend server URL, e.g. http://localhost:8000",
				Required: false,
			},
			&cli.StringFlag{
				Name:     "config",
				Aliases:  []string{"c"},
				Usage:    "Path to a YAML configuration file",
				Required: false,
			},
			&cli.DurationFlag{
				Name:     "interval",
				Aliases:  []string{"i"},
				Usage:    "Backtest progress poll interval, e.g. 2s",
				Required: false,
			},
			&cli.StringFlag{
				Name:     "log-file",
				Usage:    "Append JSON logs to this file instead of discarding them",
				Required: false,
			},
		},
		Action: workspaceAction,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
