// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/threadlens/pkg/logging"
	"github.com/AleutianAI/threadlens/services/classify"
	"github.com/AleutianAI/threadlens/services/feed"
	"github.com/AleutianAI/threadlens/services/filter"
	"github.com/AleutianAI/threadlens/services/orchestrator"
	"github.com/AleutianAI/threadlens/services/store"
	"github.com/AleutianAI/threadlens/services/thread"
)

var (
	configPath string
	config     Config

	rootCmd = &cobra.Command{
		Use:   "threadlens",
		Short: "Incremental content filtering for threaded discussions",
		Long: `ThreadLens watches a host application's discussion threads, classifies
item text by language, and hides items that do not match the user's
filter settings. Classification results are cached; settings changes
re-decide visibility without re-classifying.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			config, err = LoadConfig(configPath)
			return err
		},
	}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run the filtering engine and its control-plane API",
		RunE:  runEngine,
	}

	checkCmd = &cobra.Command{
		Use:   "check [text]",
		Short: "Classify a piece of text and show the filter decision",
		Long: `Classifies the given text (or stdin when piped) with the configured
oracle and prints the distribution plus the hide verdict under the
stored settings.`,
		RunE: runCheck,
	}

	settingsCmd = &cobra.Command{
		Use:   "settings",
		Short: "Inspect and manage stored filter settings",
	}

	settingsShowCmd = &cobra.Command{
		Use:   "show",
		Short: "Print the stored settings record",
		RunE:  runSettingsShow,
	}

	settingsInitCmd = &cobra.Command{
		Use:   "init",
		Short: "Write a default settings record to the store",
		RunE:  runSettingsInit,
	}

	settingsSetCmd = &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Update one field of the stored settings record",
		Long: `Loads the stored settings, applies one change and saves the result.

Keys:
  enabled, language-filter, word-filter, block-mode, select-unknown,
  regex, filter-replies   true|false
  threshold               0..100
  select, deselect        a listed language code
  words                   comma-separated word list`,
		Args: cobra.ExactArgs(2),
		RunE: runSettingsSet,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "threadlens.yaml",
		"path to the YAML configuration file")
	rootCmd.AddCommand(runCmd, checkCmd, settingsCmd)
	settingsCmd.AddCommand(settingsShowCmd, settingsInitCmd, settingsSetCmd)
}

func newLogger() *logging.Logger {
	level := logging.LevelInfo
	switch config.Log.Level {
	case "debug":
		level = logging.LevelDebug
	case "warn":
		level = logging.LevelWarn
	case "error":
		level = logging.LevelError
	}
	if config.Debug {
		level = logging.LevelDebug
	}
	// Pipes and service managers get JSON; interactive terminals get text.
	jsonOut := config.Log.JSON ||
		(!isatty.IsTerminal(os.Stderr.Fd()) && !isatty.IsCygwinTerminal(os.Stderr.Fd()))
	return logging.New(logging.Config{
		Level:   level,
		LogDir:  config.Log.Dir,
		Service: "threadlens",
		JSON:    jsonOut,
	})
}

func newStore(logger *logging.Logger) (store.Store, error) {
	switch config.Store.Backend {
	case "", "file":
		return store.NewFileStore(config.Store.Path, logger.Slog())
	case "badger":
		cfg := store.DefaultBadgerConfig(config.Store.Path)
		cfg.Logger = logger.Slog()
		return store.NewBadgerStore(cfg)
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", config.Store.Backend)
	}
}

func newOracle() (classify.Oracle, error) {
	switch config.Oracle.Backend {
	case "", "lingua":
		return classify.NewLinguaOracle(), nil
	case "openai":
		key := os.Getenv("OPENAI_API_KEY")
		if key == "" {
			return nil, errors.New("OPENAI_API_KEY is required for the openai oracle")
		}
		return classify.NewOpenAIOracle(key, config.Oracle.Model), nil
	default:
		return nil, fmt.Errorf("unknown oracle backend %q", config.Oracle.Backend)
	}
}

func runEngine(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	defer logger.Close()
	log := logger.Slog()

	oracle, err := newOracle()
	if err != nil {
		return err
	}
	st, err := newStore(logger)
	if err != nil {
		return err
	}

	o, err := orchestrator.New(orchestrator.Options{
		Oracle:        oracle,
		Store:         st,
		CacheCapacity: config.CacheCapacity,
		Logger:        log,
		Thread: thread.Options{
			SettleDelay: config.SettleDelay(),
			Logger:      log,
			Debug:       config.Debug,
		},
	})
	if err != nil {
		return err
	}
	defer o.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	o.LoadSettings(ctx)
	if st != nil {
		go func() {
			if err := o.WatchStore(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Warn("settings watch stopped", "error", err)
			}
		}()
	}

	if config.Feed.URL != "" {
		// The callbacks fire only inside Run, which starts after doc
		// is assigned.
		var doc *feed.Document
		client, err := feed.Dial(ctx, feed.ClientConfig{
			URL:    config.Feed.URL,
			Logger: log,
			OnThreadAdded: func(id string) {
				go o.AddThread(ctx, doc.Anchor(id), doc)
			},
			OnThreadRemoved: o.RemoveThreadByAnchor,
		})
		if err != nil {
			return err
		}
		doc = client.Document()
		go func() {
			if err := client.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("feed connection lost", "error", err)
				stop()
			}
		}()
	}

	srv := &http.Server{
		Addr:              config.Listen,
		Handler:           orchestrator.NewRouter(o),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info("engine started", "listen", config.Listen,
		"oracle", config.Oracle.Backend, "store", config.Store.Backend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	text := strings.Join(args, " ")
	if text == "" {
		if isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd()) {
			return errors.New("no text given; pass it as arguments or pipe it on stdin")
		}
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		text = string(data)
	}
	text = filter.NormalizeWhitespace(text)

	oracle, err := newOracle()
	if err != nil {
		return err
	}
	settings, err := loadStoredSettings()
	if err != nil {
		return err
	}

	result, err := oracle.Classify(cmd.Context(), text)
	if err != nil {
		return fmt.Errorf("classify: %w", err)
	}

	out := struct {
		Text       string           `json:"text"`
		Result     *classify.Result `json:"result"`
		HideByLang bool             `json:"hideByLanguage"`
		HideByWord bool             `json:"hideByWord"`
	}{
		Text:       text,
		Result:     result,
		HideByLang: settings.ShouldFilterByLanguage(result),
		HideByWord: settings.ShouldFilterByWord(text),
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func runSettingsShow(cmd *cobra.Command, args []string) error {
	settings, err := loadStoredSettings()
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(settings.ToRecord())
}

func runSettingsInit(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	defer logger.Close()
	st, err := newStore(logger)
	if err != nil {
		return err
	}
	if st == nil {
		return errors.New("store backend is none; nothing to initialize")
	}
	defer st.Close()

	rec := filter.NewSettings().ToRecord()
	if err := st.Save(cmd.Context(), &rec); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "settings record written")
	return nil
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	defer logger.Close()
	st, err := newStore(logger)
	if err != nil {
		return err
	}
	if st == nil {
		return errors.New("store backend is none; nothing to update")
	}
	defer st.Close()

	settings := filter.NewSettings()
	if rec, err := st.Load(cmd.Context()); err == nil {
		if settings, err = filter.FromRecord(*rec); err != nil {
			return err
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	key, value := args[0], args[1]
	if err := applySettingsChange(settings, key, value); err != nil {
		return err
	}

	rec := settings.ToRecord()
	if err := st.Save(cmd.Context(), &rec); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s updated\n", key)
	return nil
}

func applySettingsChange(settings *filter.Settings, key, value string) error {
	boolKeys := map[string]func(bool) *filter.Settings{
		"enabled":         settings.SetEnabledByDefault,
		"language-filter": settings.SetLanguageFilterEnabled,
		"word-filter":     settings.SetWordFilterEnabled,
		"block-mode":      settings.SetBlockListMode,
		"select-unknown":  settings.SetSelectUnknown,
		"regex":           settings.SetRegexEnabled,
		"filter-replies":  settings.SetFilterReplies,
	}
	if set, ok := boolKeys[key]; ok {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s expects true or false: %w", key, err)
		}
		set(b)
		return nil
	}
	switch key {
	case "threshold":
		pct, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("threshold expects a number: %w", err)
		}
		if pct < 0 || pct > 100 {
			return fmt.Errorf("threshold %v is outside 0..100", pct)
		}
		settings.SetPercentageThreshold(pct)
		return nil
	case "select":
		return settings.SetLanguageSelected(value, true)
	case "deselect":
		return settings.SetLanguageSelected(value, false)
	case "words":
		var words []string
		for _, w := range strings.Split(value, ",") {
			if w = strings.TrimSpace(w); w != "" {
				words = append(words, w)
			}
		}
		settings.SetBlockedWords(words)
		return nil
	default:
		return fmt.Errorf("unknown settings key %q", key)
	}
}

// loadStoredSettings reads the record from the configured store,
// falling back to defaults when there is no store or no record yet.
func loadStoredSettings() (*filter.Settings, error) {
	logger := newLogger()
	defer logger.Close()
	st, err := newStore(logger)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return filter.NewSettings(), nil
	}
	defer st.Close()

	rec, err := st.Load(context.Background())
	if errors.Is(err, store.ErrNotFound) {
		return filter.NewSettings(), nil
	}
	if err != nil {
		return nil, err
	}
	return filter.FromRecord(*rec)
}
