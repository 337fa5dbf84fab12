package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/a-marczewski/faultline/internal/analytics"
	"github.com/a-marczewski/faultline/internal/config"
	"github.com/a-marczewski/faultline/internal/fallback"
	"github.com/a-marczewski/faultline/internal/history"
	"github.com/a-marczewski/faultline/internal/knowledge"
	"github.com/a-marczewski/faultline/internal/llm"
	"github.com/a-marczewski/faultline/internal/logging"
	"github.com/a-marczewski/faultline/internal/proposal"
	"github.com/a-marczewski/faultline/internal/recommend"
	"github.com/a-marczewski/faultline/internal/storage"
	"github.com/a-marczewski/faultline/internal/workflow"
	"go.uber.org/zap"
)

// NewApp loads configuration, opens the logger and database and wires every
// component.
func NewApp(ctx context.Context) (*App, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logFile := cfg.LogFile
	if logFile == "" {
		logFile = filepath.Join(cfg.DataDir, "logs", fmt.Sprintf("faultline-%s.log", time.Now().Format("2006-01-02")))
	}
	if err := os.MkdirAll(filepath.Dir(logFile), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", filepath.Dir(logFile), err)
	}

	logger, err := logging.NewLoggerWithStderr(cfg.LogLevel, logFile, false)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return Build(ctx, cfg, logger, llm.NewRegistry())
}

// Build wires an App from an already loaded configuration. The LLM provider
// is resolved from registry once, here.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger, registry *llm.Registry) (*App, error) {
	logger = logging.OrNop(logger)

	db, err := storage.NewDB(cfg)
	if err != nil {
		logger.Error("Failed to initialize database", zap.Error(err))
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	conn := db.GetConnection()

	library := knowledge.NewSQLiteStore(conn)
	cached, err := knowledge.NewCachedStore(library, cfg.KnowledgeCacheSize, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create knowledge cache: %w", err)
	}

	timeout := time.Duration(cfg.LLMTimeoutSeconds) * time.Second
	completer, err := registry.Resolve(ctx, cfg.LLMProvider, llm.Settings{
		BaseURL: cfg.LLMBaseURL,
		APIKey:  cfg.LLMAPIKey,
		Model:   cfg.LLMModel,
		Timeout: timeout,
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	stats := llm.NewStatsTracker()
	completer = llm.Instrument(completer, stats)

	signatures := recommend.DefaultSignatures()
	if cfg.SignaturesFile != "" {
		signatures, err = recommend.LoadSignatures(cfg.SignaturesFile)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to load fault signatures: %w", err)
		}
	}
	engine := recommend.NewEngine(signatures,
		recommend.WithCompleter(completer, timeout),
		recommend.WithLogger(logger),
	)

	patterns := history.NewSQLiteStore(conn)
	matcher := history.NewMatcher(patterns,
		history.WithMaxBoost(cfg.HistoryMaxBoost),
		history.WithMatcherLogger(logger),
	)
	proposals := proposal.NewSQLiteStore(conn, library, logger)
	tickets := fallback.NewTicketStore(conn)

	var metrics *workflow.MetricsWriter
	if cfg.MetricsEnabled {
		metrics = workflow.NewMetricsWriter(conn, logger)
	}

	orchestrator := workflow.New(workflow.Dependencies{
		Knowledge:   cached,
		Matcher:     knowledge.KeywordOverlap{},
		Recommender: engine,
		History:     matcher,
		Proposals:   proposals,
		Escalations: tickets,
		Metrics:     metrics,
		Logger:      logger,
	}, workflow.Thresholds{
		EvidenceAdequacy: cfg.EvidenceAdequacyThreshold,
		Fallback:         cfg.FallbackThreshold,
	})

	appCtx, cancel := context.WithCancel(ctx)

	logger.Info("faultline initialized",
		zap.String("db_path", cfg.DBPath),
		zap.String("llm_provider", cfg.LLMProvider),
		zap.Int("signatures", len(signatures)),
		zap.Bool("metrics", metrics != nil),
	)

	return &App{
		Core: CoreModule{
			Config: cfg,
			Logger: logger,
			DB:     db,
		},
		Knowledge: KnowledgeModule{
			Store:  library,
			Cached: cached,
		},
		AI: AIModule{
			Provider:  cfg.LLMProvider,
			Completer: completer,
			Stats:     stats,
		},
		Engine:       engine,
		History:      matcher,
		Patterns:     patterns,
		Proposals:    proposals,
		Tickets:      tickets,
		Metrics:      metrics,
		Analytics:    analytics.NewRunAnalytics(conn),
		Orchestrator: orchestrator,
		Ctx:          appCtx,
		Cancel:       cancel,
	}, nil
}

// ImportRecords loads records into the evidence library and drops cached
// lookups.
func (a *App) ImportRecords(ctx context.Context, records []knowledge.FailureModeRecord) (int, error) {
	n, err := a.Knowledge.Store.Import(ctx, records)
	if err != nil {
		return n, err
	}
	a.Knowledge.Cached.Purge()
	a.Core.Logger.Info("Evidence library records imported", zap.Int("records", n))
	return n, nil
}

// ReviewProposal approves or rejects a proposal. Approval edits the library,
// so cached lookups are dropped.
func (a *App) ReviewProposal(ctx context.Context, id string, decision proposal.Decision, reviewer string) (proposal.Proposal, error) {
	p, err := a.Proposals.Review(ctx, id, decision, reviewer)
	if err != nil {
		return p, err
	}
	if p.Status == proposal.StatusApproved {
		a.Knowledge.Cached.Purge()
	}
	return p, nil
}

// Close gracefully shuts down the application resources.
func (a *App) Close() {
	if a.Cancel != nil {
		a.Cancel()
	}

	a.Metrics.Close()

	if a.Core.DB != nil {
		if err := a.Core.DB.Close(); err != nil {
			a.Core.Logger.Error("Failed to close database connection", zap.Error(err))
		} else {
			a.Core.Logger.Debug("Database connection closed")
		}
	}
	if a.Core.Logger != nil {
		if err := a.Core.Logger.Sync(); err != nil {
			if !strings.Contains(err.Error(), "sync /dev/stderr: invalid argument") &&
				!strings.Contains(err.Error(), "sync <file descriptor>: bad file descriptor") &&
				!strings.Contains(err.Error(), "sync /dev/stderr: inappropriate ioctl for device") {
				fmt.Fprintf(os.Stderr, "Error syncing logger: %v\n", err)
			}
		}
	}
}

// ContextWithLogger returns ctx carrying the application logger annotated
// with fields. The orchestrator logs through it for runs started with ctx.
func (a *App) ContextWithLogger(ctx context.Context, fields ...zap.Field) context.Context {
	return logging.ContextWithLogger(ctx, a.Core.Logger.With(fields...))
}
