package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"radiance/radiance/config"
	"radiance/radiance/controllers"
	"radiance/radiance/pipeline"
	"radiance/radiance/routes"
	"radiance/radiance/services/llm"
	"radiance/radiance/sources/psql"
	"radiance/radiance/sources/psql/dao"
	"radiance/radiance/sources/storage"
	"radiance/radiance/utils/logging"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

func main() {
	logging.InitLogger()
	cfg := config.LoadConfig()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// The pipeline is expected to survive persistence outages, so the
	// database is optional at startup: sessions just stay in memory.
	var store pipeline.SessionStore
	var userDAO *dao.UserDAO
	var pingDB func(ctx context.Context) error
	db, err := psql.NewDatabase(ctx, cfg)
	if err != nil {
		logging.ErrorLogger.Error("database connection failed; running without persistence", zap.Error(err))
	} else {
		defer db.Close()
		if err := psql.Migrate(ctx, db.DB); err != nil {
			logging.ErrorLogger.Error("database migration error", zap.Error(err))
			os.Exit(1)
		}
		userDAO = dao.NewUserDAO(db.DB)
		sessionDAO := dao.NewDiagnosisSessionDAO(db.DB)
		pingDB = func(ctx context.Context) error {
			// A ping re-establishes broken pooled connections; the store also
			// uses it as its reauth hook before retrying a rejected update.
			sqlDB, err := db.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}
		store = pipeline.NewDBStore(sessionDAO, pingDB)
	}

	models, err := config.LoadStageModels(cfg.ModelsFile)
	if err != nil {
		logging.ErrorLogger.Error("stage model config error", zap.Error(err))
		os.Exit(1)
	}

	client := llm.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey)
	orchestrator := pipeline.NewOrchestrator(client, store, models,
		time.Duration(cfg.StageTimeoutSeconds)*time.Second)

	var reports *storage.ReportStore
	if cfg.MinIOEndpoint != "" {
		reports, err = storage.NewReportStore(cfg)
		if err != nil {
			logging.ErrorLogger.Error("report store connection error", zap.Error(err))
			os.Exit(1)
		}
	}

	diagCtrl := controllers.NewDiagnosisController(orchestrator, reports)
	healthCtrl := controllers.NewHealthController(pingDB)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))

	r.Mount("/health", routes.HealthRoutes(healthCtrl))
	r.Mount("/diagnosis", routes.DiagnosisRoutes(diagCtrl, cfg))
	if userDAO != nil {
		authCtrl := controllers.NewAuthController(userDAO, cfg)
		r.Mount("/auth", routes.AuthRoutes(authCtrl))
	}

	srv := &http.Server{
		Addr:    ":8000",
		Handler: r,
	}
	go func() {
		logging.AppLogger.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.ErrorLogger.Error("server listen error", zap.Error(err))
		}
	}()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.ErrorLogger.Error("server shutdown error", zap.Error(err))
	}
	logging.AppLogger.Info("server shutdown complete")
}
