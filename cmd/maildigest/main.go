// Command maildigest watches an IMAP folder and delivers LLM-assisted
// digests of new mail to a Telegram chat on a weekday schedule.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/avolkov/maildigest/internal/credential"
	"github.com/avolkov/maildigest/internal/model"
	"github.com/avolkov/maildigest/internal/notify/telegram"
	"github.com/avolkov/maildigest/internal/pipeline"
	"github.com/avolkov/maildigest/internal/schedule"
	"github.com/avolkov/maildigest/internal/source/mailbox"
	"github.com/avolkov/maildigest/internal/store"
	"github.com/avolkov/maildigest/internal/summary"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "maildigest",
		Short: "Mailbox digest daemon: scheduled runs plus Telegram commands",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(configPath)
		},
	}
	rootCmd.PersistentFlags().StringVarP(
		&configPath, "config", "c", model.DefaultConfigPath(),
		"path to the YAML configuration file",
	)

	digestCmd := &cobra.Command{
		Use:   "digest",
		Short: "Run a single digest batch and print it to stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(configPath)
		},
	}

	credCmd := &cobra.Command{
		Use:   "set-credential <key>",
		Short: "Store a secret in the system keyring",
		Long: "Reads the secret value from stdin and stores it under <key>.\n" +
			"Known keys: imap-password, llm-api-key, telegram-bot-token.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return setCredential(args[0])
		},
	}

	rootCmd.AddCommand(digestCmd, credCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func runDaemon(configPath string) error {
	cfg, err := model.LoadConfig(configPath)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	d, err := buildDaemon(cfg, logger)
	if err != nil {
		return err
	}
	defer d.store.Close()

	ctx, stop := signal.NotifyContext(
		context.Background(), os.Interrupt, syscall.SIGTERM,
	)
	defer stop()

	logger.Info("starting maildigest",
		"folder", cfg.IMAP.Folder,
		"hours", cfg.Schedule.Hours,
		"timezone", cfg.Schedule.Timezone,
	)

	trigger := make(chan struct{}, 1)
	bot := telegram.NewBot(
		d.telegram, cfg.Telegram.ChatID, cfg.IMAP.Folder, d.store, trigger, logger,
	)
	sched := schedule.New(
		d.runAndDeliver, cfg.Schedule.Hours, d.location, d.store, trigger, logger,
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return bot.Run(ctx) })
	g.Go(func() error { return sched.Run(ctx) })

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		logger.Info("shutting down")
		return nil
	}
	return err
}

func runOnce(configPath string) error {
	cfg, err := model.LoadConfig(configPath)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	d, err := buildDaemon(cfg, logger)
	if err != nil {
		return err
	}
	defer d.store.Close()

	res, err := d.pipeline.Run(context.Background())
	if err != nil {
		return err
	}
	for _, chunk := range res.Chunks {
		fmt.Println(chunk)
	}
	return nil
}

// daemon holds the wired components shared by the daemon and the
// one-shot digest command.
type daemon struct {
	store    *store.SQLiteStore
	pipeline *pipeline.Pipeline
	telegram *telegram.Client
	location *time.Location
	chatID   int64
}

func buildDaemon(cfg *model.AppConfig, logger *slog.Logger) (*daemon, error) {
	imapPassword, err := credential.Get(credential.KeyIMAPPassword)
	if err != nil {
		return nil, fmt.Errorf("imap password: %w", err)
	}
	llmKey, err := credential.Get(credential.KeyLLMAPIKey)
	if err != nil {
		return nil, fmt.Errorf("llm api key: %w", err)
	}
	botToken, err := credential.Get(credential.KeyTelegramToken)
	if err != nil {
		return nil, fmt.Errorf("telegram bot token: %w", err)
	}

	loc, err := time.LoadLocation(cfg.Schedule.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %s: %w", cfg.Schedule.Timezone, err)
	}

	s, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	mb := mailbox.New(cfg.IMAP.Host, cfg.IMAP.Port, cfg.IMAP.User, imapPassword)
	sum := summary.New(cfg.LLM.BaseURL, llmKey, cfg.LLM.Model, cfg.LLM.MaxTokens)

	p := pipeline.New(s, mb, sum, pipeline.Options{
		Folder:        cfg.IMAP.Folder,
		MaxPerRun:     cfg.Limits.MaxPerRun,
		MaxBodyChars:  cfg.Limits.MaxBodyChars,
		SynopsisChars: cfg.Limits.SynopsisChars,
		ChunkSize:     cfg.Limits.ChunkSize,
	}, logger)

	d := &daemon{
		store:    s,
		pipeline: p,
		telegram: telegram.NewClient(botToken),
		location: loc,
	}
	d.chatID = cfg.Telegram.ChatID
	return d, nil
}

// runAndDeliver executes one digest batch and sends the chunks to the
// owner chat.
func (d *daemon) runAndDeliver(ctx context.Context) error {
	res, err := d.pipeline.Run(ctx)
	if err != nil {
		return err
	}
	return d.telegram.SendChunks(ctx, d.chatID, res.Chunks)
}

func setCredential(key string) error {
	fmt.Fprintf(os.Stderr, "Enter value for %s: ", key)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return fmt.Errorf("reading value: %w", err)
	}
	value := strings.TrimSpace(line)
	if value == "" {
		return fmt.Errorf("empty value for %s", key)
	}
	if err := credential.Set(key, value); err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, "Stored.")
	return nil
}

func setupLogger(level string) *slog.Logger {
	lv := new(slog.LevelVar)
	switch level {
	case "debug":
		lv.Set(slog.LevelDebug)
	case "warn":
		lv.Set(slog.LevelWarn)
	case "error":
		lv.Set(slog.LevelError)
	default:
		lv.Set(slog.LevelInfo)
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lv})
	return slog.New(handler)
}
