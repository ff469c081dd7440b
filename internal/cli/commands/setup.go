package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/dumpimport/internal/cli/config"
	"github.com/leapstack-labs/dumpimport/internal/progress"
	"github.com/leapstack-labs/dumpimport/internal/sink"
	"github.com/leapstack-labs/dumpimport/internal/state"
	"github.com/spf13/cobra"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Client   *sink.Client
	Store    *state.SQLiteStore
	Progress *progress.Registry
}

// NewCommandContext validates the configuration and connects the sink and the
// checkpoint store. Returns the context and a cleanup function that must be
// called (typically via defer).
func NewCommandContext(cmd *cobra.Command) (*CommandContext, func(), error) {
	cfg := config.GetConfig(cmd.Context())
	logger := config.GetLogger(cmd.Context())

	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	client, err := sink.New(cfg.SinkConfig(), logger)
	if err != nil {
		return nil, nil, err
	}

	store, err := openStore(cfg.StatePath, logger)
	if err != nil {
		return nil, nil, err
	}

	reg := progress.New(cmd.ErrOrStderr())
	reg.Start(cmd.Context(), progress.DefaultInterval)

	cleanup := func() {
		reg.Stop()
		if store != nil {
			_ = store.Close()
		}
	}

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Client:   client,
		Store:    store,
		Progress: reg,
	}, cleanup, nil
}

// openStore opens and migrates the checkpoint store. An empty path disables
// checkpointing.
func openStore(path string, logger *slog.Logger) (*state.SQLiteStore, error) {
	if path == "" {
		return nil, nil
	}

	stateDir := filepath.Dir(path)
	if stateDir != "." && stateDir != "" {
		if err := os.MkdirAll(stateDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	store := state.NewSQLiteStore(logger)
	if err := store.Open(path); err != nil {
		return nil, err
	}
	if err := store.Migrate(); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// sourceKey identifies a dump loaded into one namespace and database for
// checkpointing.
func sourceKey(path string, cfg *config.Config) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = filepath.Clean(path)
	}
	return fmt.Sprintf("%s@%s/%s", abs, cfg.Namespace, cfg.Database)
}

// finishRun records the outcome of a run; failures to do so are only logged.
func (c *CommandContext) finishRun(ctx context.Context, run *state.Run, runErr error) {
	if c.Store == nil || run == nil {
		return
	}
	status, msg := state.RunStatusCompleted, ""
	if runErr != nil {
		status, msg = state.RunStatusFailed, runErr.Error()
	}
	if err := c.Store.FinishRun(context.WithoutCancel(ctx), run.ID, status, msg); err != nil {
		c.Logger.Warn("failed to record run status", "error", err)
	}
}
