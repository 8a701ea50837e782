// Package main is the entry point for the DailyOS daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/dailyos/dailyos/internal/aicompletion"
	"github.com/dailyos/dailyos/internal/buildinfo"
	"github.com/dailyos/dailyos/internal/calendarsync"
	"github.com/dailyos/dailyos/internal/config"
	"github.com/dailyos/dailyos/internal/detectors"
	"github.com/dailyos/dailyos/internal/embeddings"
	"github.com/dailyos/dailyos/internal/events"
	"github.com/dailyos/dailyos/internal/executor"
	"github.com/dailyos/dailyos/internal/fileio"
	"github.com/dailyos/dailyos/internal/gmailsync"
	"github.com/dailyos/dailyos/internal/hygiene"
	"github.com/dailyos/dailyos/internal/llm"
	"github.com/dailyos/dailyos/internal/oauthtoken"
	"github.com/dailyos/dailyos/internal/quill"
	"github.com/dailyos/dailyos/internal/quillprovider"
	"github.com/dailyos/dailyos/internal/resolver"
	"github.com/dailyos/dailyos/internal/scheduler"
	"github.com/dailyos/dailyos/internal/signalbus"
	"github.com/dailyos/dailyos/internal/store"
	"github.com/dailyos/dailyos/internal/workflow"
	"github.com/google/uuid"

	_ "github.com/mattn/go-sqlite3"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	devMode := flag.Bool("dev", false, "use the dev-mode database (dailyos-dev.db)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(buildinfo.String())
		for k, v := range buildinfo.BuildInfo() {
			fmt.Printf("  %-12s %s\n", k+":", v)
		}
		return
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	run(logger, *configPath, *devMode)
}

func run(logger *slog.Logger, configPath string, devMode bool) {
	logger.Info("starting DailyOS", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "built", buildinfo.BuildTime)

	cfgPath, err := config.FindConfig(configPath)
	if err != nil {
		logger.Error("config", "error", err)
		os.Exit(1)
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "path", cfgPath, "error", err)
		os.Exit(1)
	}
	cfg.DevMode = cfg.DevMode || devMode

	if cfg.LogLevel != "" {
		level, err := config.ParseLogLevel(cfg.LogLevel)
		if err != nil {
			logger.Error("invalid log_level", "error", err)
			os.Exit(1)
		}
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level:       level,
			ReplaceAttr: config.ReplaceLogLevelNames,
		}))
	}
	logger.Info("config loaded", "path", cfgPath, "workspace", cfg.Workspace.Path, "dev_mode", cfg.DevMode)

	dataDir := config.ExpandPath(cfg.DataDir)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		logger.Error("failed to create data directory", "path", dataDir, "error", err)
		os.Exit(1)
	}

	// A prior release named the store actions.db; rename it in DataDir
	// to dailyos.db (the production name, whatever DevMode says) before
	// anything opens a handle.
	if err := store.RenameLegacyDatabase(dataDir); err != nil {
		logger.Warn("legacy database rename failed", "error", err)
	}

	store.SetDevMode(cfg.DevMode)
	db, err := store.Open(cfg.DBPath(), logger)
	if err != nil {
		logger.Error("failed to open entity store", "path", cfg.DBPath(), "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("entity store opened", "path", cfg.DBPath())

	eventBus := events.New()
	signalBus := signalbus.New(db)
	ws := fileio.New(config.ExpandPath(cfg.Workspace.Path))

	var embedder *embeddings.Client
	if cfg.Embeddings.Enabled {
		embedder = embeddings.New(embeddings.Config{BaseURL: cfg.Embeddings.BaseURL, Model: cfg.Embeddings.Model})
		logger.Info("embeddings enabled", "model", cfg.Embeddings.Model, "url", cfg.Embeddings.BaseURL)
	}

	tokenProvider := buildTokenProvider(cfg)
	llmClient := buildLLMClient(cfg, logger)
	completer := aicompletion.NewLLMCompleter(llmClient, cfg.AI.ExtractionModel, cfg.AI.SynthesisModel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup

	if cfg.Calendar.Configured() {
		calSyncer := calendarsync.New(db, calendarsync.NewGoogleFetcher(), tokenProvider, signalBus, eventBus, ws, calendarsync.Config{
			UserDomains:          cfg.Workspace.UserDomains,
			PersonalEmailDomains: cfg.Workspace.PersonalEmailDomains,
			MaxAllHandsAttendees: cfg.Calendar.MaxAllHandsAttendees,
		}, logger)
		startPoll(ctx, &wg, "calendarsync", time.Duration(cfg.Calendar.PollIntervalMin)*time.Minute, logger, func(now time.Time) error {
			if !cfg.InWorkHours(now.Local().Format("15:04")) {
				return nil
			}
			return calSyncer.Poll(ctx, now)
		})
	} else {
		logger.Info("calendar sync disabled")
	}

	if cfg.Gmail.Configured() {
		gmailSyncer := gmailsync.New(db, gmailsync.NewIMAPFetcher(cfg.Gmail.IMAPHost, cfg.Gmail.IMAPPort, cfg.Gmail.Account), tokenProvider, eventBus, gmailsync.Config{
			Account: "gmail",
		}, logger)
		startPoll(ctx, &wg, "gmailsync", time.Duration(cfg.Gmail.PollIntervalMin)*time.Minute, logger, func(now time.Time) error {
			if !cfg.InWorkHours(now.Local().Format("15:04")) {
				return nil
			}
			return gmailSyncer.Poll(ctx, now)
		})
	} else {
		logger.Info("gmail sync disabled")
	}

	if cfg.Quill.Enabled {
		provider := quillprovider.New(quillprovider.Config{BaseURL: cfg.Quill.BaseURL, APIKey: cfg.Quill.APIKey})
		sync := quill.New(db, provider, quill.Config{
			MaxAttempts:          cfg.Quill.MaxAttempts,
			BackfillDays:         cfg.Quill.BackfillDays,
			AbandonedRetryMinAge: cfg.Quill.AbandonedRetryMinAge,
			AbandonedRetryMaxAge: cfg.Quill.AbandonedRetryMaxAge,
		}, logger)
		startPoll(ctx, &wg, "quill", time.Minute, logger, func(now time.Time) error {
			return runQuillTick(ctx, db, sync, cfg, now, logger)
		})
	} else {
		logger.Info("quill sync disabled")
	}

	startPoll(ctx, &wg, "detectors", 15*time.Minute, logger, func(now time.Time) error {
		return runDetectors(db, now, logger)
	})
	startPoll(ctx, &wg, "hygiene", 30*time.Minute, logger, func(now time.Time) error {
		return runHygiene(db, now, logger)
	})
	startPoll(ctx, &wg, "inbox_batch_scan", 2*time.Minute, logger, func(now time.Time) error {
		return workflow.RunInboxBatch(ctx, db, ws, eventBus, logger, completer, cfg.Inbox.Dir, newExecutionID(logger), workflow.TriggerScheduled, now)
	})

	exec := executor.New(db, executor.Config{
		Workspace: ws,
		InboxDir:  cfg.Inbox.Dir,
		Completer: completer,
		Bus:       eventBus,
		Freeze:    db.FreezePrep,
		Logger:    logger,
		Embedder:  embedderOrNil(embedder),
		Signals:   signalBus,
	})

	schedStore, err := scheduler.NewStore(filepath.Join(dataDir, "scheduler.db"))
	if err != nil {
		logger.Error("failed to open scheduler database", "error", err)
		os.Exit(1)
	}
	defer schedStore.Close()

	msgCh := make(chan executor.SchedulerMessage, 8)
	executeTask := func(ctx context.Context, task *scheduler.Task, execution *scheduler.Execution) error {
		wf, ok := workflowForPayload(task.Payload.Kind)
		if !ok {
			return fmt.Errorf("unknown scheduled payload kind %q", task.Payload.Kind)
		}
		select {
		case msgCh <- executor.SchedulerMessage{Workflow: wf, Trigger: workflow.TriggerScheduled}:
		case <-ctx.Done():
		}
		return nil
	}

	sched := scheduler.New(logger, schedStore, executeTask)
	if err := ensureScheduledTasks(schedStore, cfg, time.Now()); err != nil {
		logger.Error("failed to seed scheduled tasks", "error", err)
		os.Exit(1)
	}
	if err := sched.Start(ctx); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}
	defer sched.Stop()

	wg.Add(1)
	go func() {
		defer wg.Done()
		exec.Run(ctx, msgCh)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown signal received")
	cancel()
	wg.Wait()
	logger.Info("DailyOS stopped")
}

// embedderOrNil returns nil interface when embedder is nil, avoiding a
// non-nil interface wrapping a nil *embeddings.Client (resolver treats
// a nil Embedder as "skip the title-similarity signal").
func embedderOrNil(c *embeddings.Client) resolver.Embedder {
	if c == nil {
		return nil
	}
	return c
}

// buildTokenProvider returns a GoogleProvider built from configured
// refresh-token credentials, or an empty StaticProvider (every
// AccessToken call returns ErrExpired) when none are configured — sync
// loops then treat the account as permanently unauthenticated rather
// than crashing the process.
func buildTokenProvider(cfg *config.Config) oauthtoken.Provider {
	accounts := map[string]oauthtoken.GoogleCredentials{}
	if cfg.Google.Calendar.RefreshToken != "" {
		accounts["calendar"] = oauthtoken.GoogleCredentials{
			ClientID:     cfg.Google.Calendar.ClientID,
			ClientSecret: cfg.Google.Calendar.ClientSecret,
			RefreshToken: cfg.Google.Calendar.RefreshToken,
		}
	}
	if cfg.Google.Gmail.RefreshToken != "" {
		accounts["gmail"] = oauthtoken.GoogleCredentials{
			ClientID:     cfg.Google.Gmail.ClientID,
			ClientSecret: cfg.Google.Gmail.ClientSecret,
			RefreshToken: cfg.Google.Gmail.RefreshToken,
		}
	}
	if len(accounts) == 0 {
		return oauthtoken.StaticProvider{}
	}
	return oauthtoken.NewGoogleProvider(context.Background(), accounts)
}

// buildLLMClient wires Ollama as the always-available provider and
// Anthropic on top when an API key is configured, routing each model
// name via AddModel.
func buildLLMClient(cfg *config.Config, logger *slog.Logger) llm.Client {
	ollama := llm.NewOllamaClient(cfg.AI.OllamaURL, logger)
	multi := llm.NewMultiClient(ollama)
	multi.AddProvider("ollama", ollama)

	if cfg.AI.AnthropicAPIKey != "" {
		anthropic := llm.NewAnthropicClient(cfg.AI.AnthropicAPIKey, logger)
		multi.AddProvider("anthropic", anthropic)
		multi.AddModel(cfg.AI.ExtractionModel, "anthropic")
		multi.AddModel(cfg.AI.SynthesisModel, "anthropic")
		logger.Info("anthropic provider configured")
	}
	return multi
}

// startPoll runs fn once immediately and then every interval until ctx
// is cancelled, logging a failure without stopping the loop — matching
// the "log and retry on next tick" poller discipline each sync package
// already follows internally.
func startPoll(ctx context.Context, wg *sync.WaitGroup, name string, interval time.Duration, logger *slog.Logger, fn func(now time.Time) error) {
	if interval <= 0 {
		interval = time.Minute
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		run := func() {
			if err := fn(time.Now().UTC()); err != nil {
				logger.Warn(name+": tick failed", "error", err)
			}
		}
		run()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				run()
			}
		}
	}()
}

func runQuillTick(ctx context.Context, db *store.Store, sync *quill.Sync, cfg *config.Config, now time.Time, logger *slog.Logger) error {
	pending, err := db.PendingQuillSyncDue(now)
	if err != nil {
		return fmt.Errorf("list pending quill sync: %w", err)
	}
	sync.TickDue(ctx, pending, now)

	if n, err := sync.Backfill(now); err != nil {
		logger.Warn("quill backfill failed", "error", err)
	} else if n > 0 {
		logger.Info("quill backfill enqueued", "count", n)
	}

	if n, err := sync.RetryAbandoned(now); err != nil {
		logger.Warn("quill abandoned retry failed", "error", err)
	} else if n > 0 {
		logger.Info("quill abandoned rows retried", "count", n)
	}
	return nil
}

// runDetectors scans all nine proactive detectors and logs what
// surfaced. Delivery/dedup into a review surface is a UI-layer concern
// out of scope here (spec §1); the daemon's job ends at "ran and found".
func runDetectors(db *store.Store, now time.Time, logger *slog.Logger) error {
	insights, errs := detectors.Run(db, detectors.Context{Now: now})
	for _, err := range errs {
		logger.Warn("detector failed", "error", err)
	}
	if len(insights) > 0 {
		logger.Info("proactive detectors found insights", "count", len(insights))
	}
	return nil
}

func runHygiene(db *store.Store, now time.Time, logger *slog.Logger) error {
	report, err := hygiene.Scan(db)
	if err != nil {
		return fmt.Errorf("hygiene scan: %w", err)
	}
	if report.TotalGaps() > 0 {
		logger.Info("hygiene gaps found", "total", report.TotalGaps())
	}

	refreshes, err := hygiene.ScheduleRefresh(db, now, 30*time.Minute, 24*time.Hour)
	if err != nil {
		return fmt.Errorf("hygiene refresh scheduling: %w", err)
	}
	if len(refreshes) > 0 {
		logger.Info("pre-meeting intelligence refresh queued", "count", len(refreshes))
	}
	return nil
}

func newExecutionID(logger *slog.Logger) string {
	id, err := uuid.NewV7()
	if err != nil {
		logger.Warn("uuid generation failed, falling back to timestamp", "error", err)
		return "exec-" + strconv.FormatInt(time.Now().UnixNano(), 10)
	}
	return id.String()
}

func workflowForPayload(kind scheduler.PayloadKind) (executor.Workflow, bool) {
	switch kind {
	case scheduler.PayloadToday:
		return executor.WorkflowToday, true
	case scheduler.PayloadWeek:
		return executor.WorkflowWeek, true
	case scheduler.PayloadArchive:
		return executor.WorkflowArchive, true
	case scheduler.PayloadInboxBatch:
		return executor.WorkflowInboxBatch, true
	default:
		return "", false
	}
}

// ensureScheduledTasks creates the Today/Archive/Week scheduler tasks
// on first run, idempotently (by name), anchored so NextRun's
// ScheduleEvery arithmetic reproduces the configured daily/weekly
// clock time (spec §4.6, §6). The scheduler's cron kind is not
// implemented (internal/scheduler/types.go NextRun TODO), so a daily
// or weekly cadence is expressed as an "every" interval anchored to
// the first occurrence of the configured time.
func ensureScheduledTasks(schedStore *scheduler.Store, cfg *config.Config, now time.Time) error {
	tasks := []struct {
		name     string
		kind     scheduler.PayloadKind
		anchor   time.Time
		interval time.Duration
	}{
		{"today", scheduler.PayloadToday, nextDailyAt(cfg.Schedule.TodayAt, now), 24 * time.Hour},
		{"archive", scheduler.PayloadArchive, nextDailyAt(cfg.Schedule.ArchiveAt, now), 24 * time.Hour},
		{"week", scheduler.PayloadWeek, nextWeeklyAt(cfg.Schedule.WeekAt, now), 7 * 24 * time.Hour},
	}

	for _, t := range tasks {
		if existing, err := schedStore.GetTaskByName(t.name); err == nil && existing != nil {
			continue
		}
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generate task id: %w", err)
		}
		task := &scheduler.Task{
			ID:   id.String(),
			Name: t.name,
			Schedule: scheduler.Schedule{
				Kind:  scheduler.ScheduleEvery,
				Every: &scheduler.Duration{Duration: t.interval},
			},
			Payload:   scheduler.Payload{Kind: t.kind},
			Enabled:   true,
			CreatedAt: t.anchor,
			CreatedBy: "dailyos",
			UpdatedAt: t.anchor,
		}
		if err := schedStore.CreateTask(task); err != nil {
			return fmt.Errorf("create %s task: %w", t.name, err)
		}
	}
	return nil
}

// nextDailyAt returns the next occurrence of "HH:MM" local time at or
// after now. An unparseable hhmm falls back to now (fires immediately,
// then every 24h from there).
func nextDailyAt(hhmm string, now time.Time) time.Time {
	h, m, ok := parseHHMM(hhmm)
	if !ok {
		return now
	}
	at := time.Date(now.Year(), now.Month(), now.Day(), h, m, 0, 0, now.Location())
	if at.Before(now) {
		at = at.AddDate(0, 0, 1)
	}
	return at
}

// nextWeeklyAt parses "Mon 06:30"-style config values into the next
// occurrence of that weekday and time.
func nextWeeklyAt(spec string, now time.Time) time.Time {
	fields := strings.Fields(spec)
	if len(fields) != 2 {
		return now
	}
	wantDay, ok := parseWeekday(fields[0])
	if !ok {
		return now
	}
	h, m, ok := parseHHMM(fields[1])
	if !ok {
		return now
	}
	at := time.Date(now.Year(), now.Month(), now.Day(), h, m, 0, 0, now.Location())
	for at.Weekday() != wantDay || at.Before(now) {
		at = at.AddDate(0, 0, 1)
	}
	return at
}

func parseHHMM(s string) (hour, min int, ok bool) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, false
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, 0, false
	}
	return h, m, true
}

func parseWeekday(s string) (time.Weekday, bool) {
	days := map[string]time.Weekday{
		"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday,
		"wed": time.Wednesday, "thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
	}
	d, ok := days[strings.ToLower(s[:min(3, len(s))])]
	return d, ok
}
