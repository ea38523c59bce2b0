package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/askbase/askbase/internal/ai"
	"github.com/askbase/askbase/internal/bot"
	"github.com/askbase/askbase/internal/config"
	"github.com/askbase/askbase/internal/db"
	"github.com/askbase/askbase/internal/engine"
	"github.com/askbase/askbase/internal/filestore"
	"github.com/askbase/askbase/internal/fleet"
	"github.com/askbase/askbase/internal/handler"
	"github.com/askbase/askbase/internal/index"
	"github.com/askbase/askbase/internal/ingest"
	"github.com/askbase/askbase/internal/job"
	"github.com/askbase/askbase/internal/middleware"
	"github.com/askbase/askbase/internal/model"
	"github.com/askbase/askbase/internal/repo"
	"github.com/askbase/askbase/internal/schedule"
	"github.com/askbase/askbase/internal/service"
	"github.com/askbase/askbase/internal/session"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "askbase",
		Short: "askbase knowledge-base bot platform",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run askbase server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return fmt.Errorf("--config is required")
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger.Init(
				cfg.LogConfig.File,
				cfg.LogConfig.Level,
				int(cfg.LogConfig.FileCount),
				int(cfg.LogConfig.FileSize),
				int(cfg.LogConfig.KeepDays),
				cfg.LogConfig.Console,
			)
			logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))

			database, err := db.Open(cfg.Database)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			if err := db.ApplyMigrations(database); err != nil {
				return fmt.Errorf("migrations: %w", err)
			}
			return runServer(cfg, database)
		},
	}

	runCmd.Flags().StringVar(&configPath, "config", "", "path to config.json")
	rootCmd.AddCommand(runCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func buildAIManager(cfg config.AIConfig) (*ai.Manager, error) {
	var gens []ai.IGenProvider
	var embeds []ai.IEmbedProvider
	for _, pc := range cfg.Providers {
		gen, err := ai.NewGenProvider(pc.Name, pc.Data)
		if err != nil {
			return nil, fmt.Errorf("init gen provider %s: %w", pc.Name, err)
		}
		gens = append(gens, gen)
		embed, err := ai.NewEmbedProvider(pc.Name, pc.Data)
		if err != nil {
			return nil, fmt.Errorf("init embed provider %s: %w", pc.Name, err)
		}
		embeds = append(embeds, embed)
	}
	return ai.NewManager(
		ai.NewGroupGenProvider(gens),
		ai.NewGroupEmbedProvider(embeds),
		ai.ManagerConfig{
			EmbedModel:     cfg.EmbedModel,
			Timeout:        time.Duration(cfg.TimeoutSeconds) * time.Second,
			EmbedCacheSize: cfg.EmbedCacheSize,
		},
	), nil
}

func runServer(cfg *config.Config, database *sql.DB) error {
	logutil.GetLogger(context.Background()).Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("file_store", cfg.FileStore.Type),
	)

	projectRepo := repo.NewProjectRepo(database)
	documentRepo := repo.NewDocumentRepo(database)
	subscriberRepo := repo.NewSubscriberRepo(database)
	settingsRepo := repo.NewSettingsRepo(database)

	store, err := filestore.New(cfg.FileStore)
	if err != nil {
		return fmt.Errorf("init file store: %w", err)
	}
	aiManager, err := buildAIManager(cfg.AI)
	if err != nil {
		return err
	}
	pgIndex := index.NewPGIndex(database)
	chunker := ingest.NewChunker(cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap)
	processor := ingest.NewProcessor(documentRepo, store, pgIndex, aiManager, chunker, ingest.ProcessorConfig{
		Workers:   cfg.Ingest.Workers,
		QueueSize: cfg.Ingest.QueueSize,
	})
	defer processor.Close()

	answerEngine := engine.New(aiManager, aiManager, pgIndex, engine.Config{
		TopK:     cfg.Retrieval.TopK,
		MinScore: cfg.Retrieval.MinScore,
	})

	settingsService := service.NewSettingsService(settingsRepo)
	projectService := service.NewProjectService(projectRepo, documentRepo, subscriberRepo, pgIndex, store)
	documentService := service.NewDocumentService(projectRepo, documentRepo, store, pgIndex, processor)
	subscriberService := service.NewSubscriberService(subscriberRepo)
	diagnoseService := service.NewDiagnoseService(projectRepo, settingsService, answerEngine)
	authService := service.NewAuthService(cfg.Admin, []byte(cfg.JWTSecret), time.Hour*time.Duration(cfg.JWTTTLHours))

	sessionCfg := session.Config{
		HistorySize:    cfg.Session.HistorySize,
		TTL:            time.Duration(cfg.Session.TTLMinutes) * time.Minute,
		MaxAttempts:    cfg.Session.PasswordMaxAttempts,
		AttemptsWindow: time.Duration(cfg.Session.PasswordWindowMinutes) * time.Minute,
	}
	workerCfg := bot.Config{
		StopGrace: time.Duration(cfg.Fleet.StopGraceSeconds) * time.Second,
	}
	factory := func(project *model.Project) fleet.Runner {
		return bot.NewWorker(
			project,
			bot.NewTelegramPlatform(project.BotToken),
			answerEngine,
			session.NewStore(project.ID, sessionCfg),
			subscriberRepo,
			projectRepo,
			settingsService,
			workerCfg,
		)
	}
	fleetManager := fleet.NewManager(projectRepo, factory,
		time.Duration(cfg.Fleet.ReconcileIntervalSeconds)*time.Second)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		fleetManager.Run(ctx)
	}()

	scheduler := schedule.NewCronScheduler()
	cleanupSpec := fmt.Sprintf("*/%d * * * *", cfg.Session.CleanupIntervalMinutes)
	if err := scheduler.AddJob(job.NewSessionCleanupJob(fleetManager), cleanupSpec); err != nil {
		return err
	}
	if err := scheduler.AddJob(job.NewIngestRequeueJob(documentRepo, processor, 10*time.Minute), "*/10 * * * *"); err != nil {
		return err
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	deps := handler.RouterDeps{
		Auth:        handler.NewAuthHandler(authService),
		Projects:    handler.NewProjectHandler(projectService, diagnoseService),
		Documents:   handler.NewDocumentHandler(documentService),
		Subscribers: handler.NewSubscriberHandler(subscriberService),
		Settings:    handler.NewSettingsHandler(settingsService),
		Fleet:       handler.NewFleetHandler(fleetManager),
		JWTSecret:   []byte(cfg.JWTSecret),
	}

	webEngine, err := webapi.NewEngine(
		"/api/v1",
		fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.CORS(nil),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}
	logutil.GetLogger(ctx).Info("http server listening", zap.String("addr", fmt.Sprintf("0.0.0.0:%d", cfg.Port)))

	go func() {
		if err := webEngine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	wg.Wait()
	return nil
}
