// interviewd serves the chatbot interview step of the learner-centered
// collaboration study: a streaming chat endpoint orchestrating the
// interviewer, moderator, and summarizer agents over a participant's
// network map.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/phlu-lernkoop/interviewd/internal/chat"
	"github.com/phlu-lernkoop/interviewd/internal/httpapi"
	"github.com/phlu-lernkoop/interviewd/internal/store"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	defaults := defaultConfig()

	cmd := &cobra.Command{
		Use:           "interviewd",
		Short:         "Chatbot interview service for the learner-centered collaboration study",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := configFromViper(v)
			if cfg.APIKey == "" {
				cfg.APIKey = os.Getenv("OPENAI_API_KEY")
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.String("addr", defaults.Addr, "HTTP listen address")
	flags.String("data-dir", defaults.DataDir, "Directory for file-backed stores (empty = in-memory)")
	flags.String("api-key", "", "OpenAI API key (overrides OPENAI_API_KEY env var)")
	flags.String("interviewer-model", defaults.InterviewerModel, "Model for the user-facing interviewer agent")
	flags.String("agent-model", defaults.AgentModel, "Model for the moderator and summarizer agents")
	flags.Duration("request-timeout", defaults.RequestTimeout, "Hard ceiling per chat request")
	flags.Duration("interview-budget", defaults.InterviewBudget, "Wall-clock interview budget per session")
	flags.Int("keep-last", defaults.KeepLast, "Turns kept in the active context window before summarization")
	flags.Int("validate-after", defaults.ValidateAfter, "Minimum turn count before moderation runs")
	flags.Int("retry-max", defaults.RetryMax, "Additional attempts after a rate-limited model call")
	flags.Duration("retry-backoff", defaults.RetryBackoff, "Fixed wait between rate-limit retries")
	flags.String("log-level", defaults.LogLevel, "Log level (debug, info, warn, error)")

	if err := v.BindPFlags(flags); err != nil {
		panic(err)
	}
	v.SetEnvPrefix("INTERVIEWD")
	v.AutomaticEnv()

	return cmd
}

func run(ctx context.Context, cfg Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := newLogger(cfg.LogLevel)

	sessions, transcripts, maps, users, err := buildStores(cfg)
	if err != nil {
		return err
	}
	mapCache := store.NewMapCache(maps)

	api := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	model := chat.NewModelClient(api, chat.RetryPolicy{
		MaxRetries: cfg.RetryMax,
		Backoff:    cfg.RetryBackoff,
		Logger:     logger,
	})

	orchestrator := &chat.Orchestrator{
		Sessions:    sessions,
		Transcripts: transcripts,
		Maps:        mapCache,
		Users:       users,
		Moderator:   &chat.Moderator{Model: model, Name: cfg.AgentModel, Logger: logger},
		Summarizer:  &chat.Summarizer{Model: model, Name: cfg.AgentModel},
		Interviewer: &chat.Interviewer{Model: model, Name: cfg.InterviewerModel, Users: users, Logger: logger},
		Logger:      logger,

		KeepLast:      cfg.KeepLast,
		ValidateAfter: cfg.ValidateAfter,
		Budget:        cfg.InterviewBudget,
	}

	handler := &httpapi.Handler{
		Orchestrator:   orchestrator,
		Transcripts:    transcripts,
		Maps:           mapCache,
		Logger:         logger,
		RequestTimeout: cfg.RequestTimeout,
	}

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.NewRouter(handler),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("interviewd listening", "addr", cfg.Addr, "data_dir", cfg.DataDir)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// buildStores picks file-backed stores when a data dir is configured, else
// in-memory ones.
func buildStores(cfg Config) (chat.SessionStore, store.TranscriptStore, store.NetworkMapStore, chat.UserFlags, error) {
	if cfg.DataDir == "" {
		m := store.NewMemory()
		return m, m, m, m, nil
	}
	f, err := store.NewFile(cfg.DataDir)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return f, f, f, f, nil
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: l}))
}
