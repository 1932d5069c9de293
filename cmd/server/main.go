package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/hakola/stageflow/internal"
	"github.com/hakola/stageflow/internal/handler"
	"github.com/hakola/stageflow/internal/security"
	"github.com/hakola/stageflow/internal/service"
	"github.com/hakola/stageflow/internal/settings"
	"github.com/hakola/stageflow/internal/store"
	"github.com/hakola/stageflow/internal/util"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	_ "modernc.org/sqlite"
)

const cacheRetention = 14 * 24 * time.Hour

func main() {
	internal.InitializeConfiguration()
	if exists, _ := util.PathExists(internal.DotEnvPath); exists {
		settings.ReadDotenv(internal.DotEnvPath)
	}
	settings.Settings = settings.NewSettings()

	rdb := store.InitDatabase(true)
	defer rdb.Close()
	rwdb := store.InitDatabase(false)
	defer rwdb.Close()
	store.RunMigrations(rwdb, internal.MigrationsDir)

	scheduler := service.NewScheduler()
	defer scheduler.Shutdown()

	agentStore := store.NewAgentSQLiteStore(rdb, rwdb)
	pipelineStore := store.NewPipelineSQLiteStore(rdb, rwdb)
	runStore := store.NewRunSQLiteStore(rdb, rwdb)
	stageStore := store.NewStageSQLiteStore(rdb, rwdb)
	secretStore := store.NewSecretSQLiteStore(rdb, rwdb)
	cacheStore := store.NewCacheSQLiteStore(rdb, rwdb)
	aesEncrypter := security.NewAESEncrypter([]byte(os.Getenv("STAGEFLOW_HASH_KEY")))

	secretSvc := service.NewSecretService(secretStore, aesEncrypter)
	agentSvc := service.NewAgentService(agentStore, aesEncrypter)
	executors := service.NewSSHExecutorProvider(agentStore, aesEncrypter)
	cacheSvc := service.NewCacheService(cacheStore)

	coverage := service.NewHTTPCoverageClient(
		settings.Settings.CoverageURL, settings.Settings.CoverageToken)
	trigger := service.NewHTTPTriggerClient(
		settings.Settings.TriggerURL, settings.Settings.TriggerToken)
	index := service.NewHTTPIndexClient(
		settings.Settings.IndexURL, settings.Settings.IndexToken)

	var artifacts service.ArtifactStore
	if settings.Settings.ArtifactEndpoint != "" {
		minioStore, err := service.NewMinioArtifactStore(
			settings.Settings.ArtifactEndpoint,
			settings.Settings.ArtifactAccessKey,
			settings.Settings.ArtifactSecretKey,
			settings.Settings.ArtifactBucket,
		)
		if err != nil {
			log.Fatal("err initializing artifact store: ", err)
		}
		if err := minioStore.EnsureBucket(context.Background()); err != nil {
			log.Fatal("err ensuring artifact bucket: ", err)
		}
		artifacts = minioStore
	}

	orchestrator := service.NewOrchestrator(
		executors,
		stageStore,
		cacheSvc,
		coverage,
		trigger,
		index,
		artifacts,
	)

	pipelineSvc := service.NewPipelineService(
		pipelineStore,
		runStore,
		executors,
		orchestrator,
		secretSvc,
		scheduler,
		settings.Settings.E2EWorkers,
		settings.Settings.ForceColor,
	)
	if err := pipelineSvc.InitializeRunQueues(context.Background()); err != nil {
		log.Fatal(err)
	}
	defer pipelineSvc.ShutdownAll()
	if err := pipelineSvc.ResumeSchedules(context.Background()); err != nil {
		log.Fatal(err)
	}

	if _, err := scheduler.NewJob(
		gocron.CronJob(internal.DailySchedule, false),
		gocron.NewTask(func() {
			if n, err := cacheSvc.Prune(context.Background(), cacheRetention); err != nil {
				log.Println("err pruning cache entries:", err)
			} else if n > 0 {
				log.Printf("pruned %d cache entries\n", n)
			}
		}),
	); err != nil {
		log.Fatal(err)
	}
	scheduler.Start()

	e := setupEcho()
	g := e.Group("/api")
	handler.SetupPipelineRoutes(g, pipelineSvc, stageStore)
	handler.SetupAgentRoutes(g, agentSvc)
	handler.SetupSecretRoutes(g, secretSvc)
	g.GET("/config", handler.GetConfig)
	g.POST("/config", handler.PostConfig)

	internal.GracefulShutdown(e, settings.Settings.Port)
}

func setupEcho() *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = handler.ErrorHandler
	e.Use(
		middleware.CORSWithConfig(internal.GetCORSConfig()),
		middleware.RateLimiterWithConfig(internal.GetRateLimiterConfig()),
	)
	return e
}
