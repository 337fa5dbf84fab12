package app

import (
	"context"

	"github.com/a-marczewski/faultline/internal/analytics"
	"github.com/a-marczewski/faultline/internal/config"
	"github.com/a-marczewski/faultline/internal/fallback"
	"github.com/a-marczewski/faultline/internal/history"
	"github.com/a-marczewski/faultline/internal/knowledge"
	"github.com/a-marczewski/faultline/internal/llm"
	"github.com/a-marczewski/faultline/internal/proposal"
	"github.com/a-marczewski/faultline/internal/recommend"
	"github.com/a-marczewski/faultline/internal/storage"
	"github.com/a-marczewski/faultline/internal/workflow"
	"go.uber.org/zap"
)

// CoreModule holds the core application components
type CoreModule struct {
	Config *config.Config
	Logger *zap.Logger
	DB     *storage.DB
}

// KnowledgeModule holds the evidence library and its cache
type KnowledgeModule struct {
	Store  *knowledge.SQLiteStore
	Cached *knowledge.CachedStore
}

// AIModule holds the completer resolved at startup
type AIModule struct {
	Provider  string
	Completer llm.Completer
	Stats     *llm.StatsTracker
}

// App holds the core components of the application with better separation of concerns.
type App struct {
	Core         CoreModule
	Knowledge    KnowledgeModule
	AI           AIModule
	Engine       *recommend.Engine
	History      *history.Matcher
	Patterns     *history.SQLiteStore
	Proposals    *proposal.SQLiteStore
	Tickets      *fallback.TicketStore
	Metrics      *workflow.MetricsWriter
	Analytics    *analytics.RunAnalytics
	Orchestrator *workflow.Orchestrator
	Ctx          context.Context
	Cancel       context.CancelFunc
}
