package container

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"sheetlens/adapters/excel"
	"sheetlens/adapters/llm"
	"sheetlens/adapters/memory"
	"sheetlens/adapters/postgres"
	"sheetlens/ai"
	"sheetlens/internal"
	"sheetlens/internal/api"
	"sheetlens/internal/config"
	"sheetlens/internal/dataset"
	"sheetlens/ports"
)

// Container holds all application dependencies and manages their lifecycle
type Container struct {
	Config *config.Config
	Logger *internal.Logger

	// Infrastructure
	DB      *sqlx.DB
	Storage dataset.FileStorage
	Tasks   *dataset.TaskRunner

	// Repositories (data access layer)
	UploadRepo ports.UploadRepository

	// Pipeline components
	Parser    *excel.Parser
	Providers []ports.InsightProvider
	Analyzer  *ai.InsightAnalyzer
	Processor *dataset.Processor

	// Delivery
	SSEHub *api.SSEHub
	Router *gin.Engine
}

// New creates a new dependency injection container
func New(cfg *config.Config, logger *internal.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		logger = internal.DefaultLogger
	}

	return &Container{
		Config: cfg,
		Logger: logger,
	}, nil
}

// InitWithDatabase attaches a database before Init. A nil db keeps records in memory.
func (c *Container) InitWithDatabase(db *sqlx.DB) error {
	if db != nil {
		if err := db.Ping(); err != nil {
			return fmt.Errorf("database connection test failed: %w", err)
		}
	}
	c.DB = db
	return c.Init()
}

// Init builds every component from the configuration
func (c *Container) Init() error {
	if err := c.initRepositories(); err != nil {
		return fmt.Errorf("failed to initialize repositories: %w", err)
	}

	if err := c.initPipeline(); err != nil {
		return fmt.Errorf("failed to initialize pipeline: %w", err)
	}

	c.initDelivery()

	c.Logger.Info("[Container] Initialized (repository=%s, providers configured=%d)", c.repositoryKind(), c.configuredProviders())
	return nil
}

// initRepositories initializes data access repositories
func (c *Container) initRepositories() error {
	if c.DB != nil {
		c.UploadRepo = postgres.NewUploadRepository(c.DB)
		return nil
	}
	c.Logger.Warn("[Container] DATABASE_URL not set, upload records will not survive a restart")
	c.UploadRepo = memory.NewUploadRepository()
	return nil
}

func (c *Container) initPipeline() error {
	c.Storage = dataset.NewLocalFileStorage(c.Config.Upload.Dir)
	c.Tasks = dataset.NewTaskRunner(c.Config.Pipeline.Concurrency, c.Logger)
	c.Parser = excel.NewParser(c.Logger)

	c.Providers = llm.NewProviders(c.Config.AI, &http.Client{})
	c.Analyzer = ai.NewInsightAnalyzer(c.Providers, ai.NewPromptManager(c.Config.AI.PromptsDir), c.Config.Pipeline.PromptRows, c.Logger)

	processorConfig := dataset.DefaultProcessorConfig()
	processorConfig.MaxFileSize = c.Config.Upload.MaxFileSize
	processorConfig.SampleRows = c.Config.Pipeline.SampleRows

	c.Processor = dataset.NewProcessor(c.UploadRepo, c.Storage, c.Parser, c.Analyzer, c.Tasks, processorConfig, c.Logger)
	if c.Processor == nil {
		return fmt.Errorf("failed to create processor")
	}
	return nil
}

func (c *Container) initDelivery() {
	c.SSEHub = api.NewSSEHub(c.Logger)
	c.Processor.SetEventPublisher(api.NewLoggingPublisher(c.SSEHub, c.Logger))

	c.Router = api.NewRouter(api.RouterConfig{
		Processor:   c.Processor,
		Hub:         c.SSEHub,
		MaxFileSize: c.Config.Upload.MaxFileSize,
		GinMode:     c.Config.Server.GinMode,
		Logger:      c.Logger,
	})
}

func (c *Container) repositoryKind() string {
	if c.DB != nil {
		return "postgres"
	}
	return "memory"
}

func (c *Container) configuredProviders() int {
	n := 0
	for _, p := range c.Providers {
		if p.Configured() {
			n++
		}
	}
	return n
}

// Shutdown drains in-flight pipelines, then releases the hub and database
func (c *Container) Shutdown(ctx context.Context) error {
	var shutdownErr error
	if c.Tasks != nil {
		if err := c.Tasks.Shutdown(ctx); err != nil {
			c.Logger.Warn("[Container] Pipelines still running at shutdown: %v", err)
			shutdownErr = err
		}
	}

	if c.SSEHub != nil {
		c.SSEHub.Close()
	}

	// Close database connection
	if c.DB != nil {
		if err := c.DB.Close(); err != nil && shutdownErr == nil {
			shutdownErr = err
		}
	}
	return shutdownErr
}
