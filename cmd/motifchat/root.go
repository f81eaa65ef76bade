package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/nstogner/motifchat/pkg/bridge"
	"github.com/nstogner/motifchat/pkg/chat"
	"github.com/nstogner/motifchat/pkg/config"
	"github.com/nstogner/motifchat/pkg/models"
	"github.com/nstogner/motifchat/pkg/models/gemini"
	"github.com/nstogner/motifchat/pkg/models/openai"
	"github.com/nstogner/motifchat/pkg/store/memory"
	"github.com/nstogner/motifchat/pkg/tui"
)

var (
	configPath   string
	flagProvider string
	flagModel    string
)

var rootCmd = &cobra.Command{
	Use:           "motifchat",
	Short:         "Chat with a streaming LLM from the terminal",
	RunE:          runTUI,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config.toml (default $XDG_CONFIG_HOME/motifchat/config.toml)")
	rootCmd.PersistentFlags().StringVar(&flagProvider, "provider", "", "Provider: gemini or openai")
	rootCmd.PersistentFlags().StringVar(&flagModel, "model", "", "Model name")
	rootCmd.AddCommand(serveCmd)
}

// loadConfig reads the config and applies flag overrides.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}
	if flagProvider != "" && flagProvider != cfg.Provider {
		cfg.Provider = flagProvider
		// The key variable depends on the provider.
		cfg.APIKey = os.Getenv(apiKeyVar(cfg.Provider))
	}
	if flagModel != "" {
		cfg.Model = flagModel
	}
	return cfg, cfg.Validate()
}

func apiKeyVar(provider string) string {
	if provider == config.ProviderOpenAI {
		return "OPENAI_API_KEY"
	}
	return "GEMINI_API_KEY"
}

// setupLogging writes logs to the configured file so they stay out of the
// terminal UI. It returns a closer for the file.
func setupLogging(cfg config.Config) (*slog.Logger, io.Closer, error) {
	level, err := config.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}
	var (
		w      io.Writer = io.Discard
		closer io.Closer = io.NopCloser(nil)
	)
	if cfg.Log.File != "" {
		f, err := os.OpenFile(cfg.Log.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		w, closer = f, f
	}
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	logger.Info("Logging initialized", "level", level)
	return logger, closer, nil
}

func newProvider(ctx context.Context, cfg config.Config, logger *slog.Logger) (models.Provider, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		return gemini.New(ctx, gemini.Options{APIKey: cfg.APIKey, Endpoint: cfg.BaseURL, Logger: logger})
	case config.ProviderOpenAI:
		return openai.New(openai.Options{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, Logger: logger}), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

// newSession builds a session with its own provider, history and bridge.
func newSession(ctx context.Context, cfg config.Config, logger *slog.Logger) (*chat.Session, error) {
	p, err := newProvider(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return chat.New(chat.Options{
		Settings: chat.Settings{
			Model:         cfg.Model,
			Temperature:   cfg.Temperature,
			MaxTokens:     cfg.MaxTokens,
			CancelOnClear: cfg.CancelOnClear,
			MaxReplyBytes: cfg.MaxReplyBytes,
		},
		History:   memory.New(cfg.HistoryLimit, logger),
		Providers: models.NewSwitch(p, logger),
		Bridge: bridge.New(bridge.Options{
			Capacity:    cfg.Bridge.Capacity,
			SendTimeout: cfg.Bridge.SendTimeout.Duration,
			Logger:      logger,
		}),
		Logger: logger,
	}), nil
}

func names(cfg config.Config) chat.Names {
	return chat.Names{User: cfg.Names.User, Assistant: cfg.Names.Assistant}
}

func runTUI(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logger, closer, err := setupLogging(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	session, err := newSession(cmd.Context(), cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing %s provider: %w", cfg.Provider, err)
	}
	defer session.Close()

	m := tui.New(session, tui.Options{
		Names:         names(cfg),
		Markdown:      cfg.Markdown,
		DesktopAlerts: cfg.DesktopNotifications,
		Logger:        logger,
	})
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		return fmt.Errorf("error running app: %w", err)
	}
	return nil
}
