package scheduling

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/carelink/homecare-scheduler/internal/availability"
	"github.com/carelink/homecare-scheduler/internal/conflict"
	"github.com/carelink/homecare-scheduler/internal/matching"
	"github.com/carelink/homecare-scheduler/internal/store"
	"github.com/carelink/homecare-scheduler/pkg/auth"
	"github.com/carelink/homecare-scheduler/pkg/config"
	"github.com/carelink/homecare-scheduler/pkg/database"
	"github.com/carelink/homecare-scheduler/pkg/interfaces"
	"github.com/carelink/homecare-scheduler/pkg/logger"
	"github.com/carelink/homecare-scheduler/pkg/monitoring"
)

// Service wires the scheduling core behind an HTTP server
type Service struct {
	config     *config.Config
	logger     *logger.Logger
	repository interfaces.CareRepository
	db         *database.DB
	resolver   interfaces.AvailabilityResolver
	matcher    interfaces.MatchingService
	conflicts  interfaces.ConflictService
	scanner    *conflict.Scanner
	verifier   *auth.Verifier
	health     *monitoring.HealthManager
	server     *http.Server
}

// New creates a fully wired scheduling service
func New(cfg *config.Config, log *logger.Logger) (*Service, error) {
	var repo interfaces.CareRepository
	var db *database.DB

	switch cfg.Database.Backend {
	case "memory":
		repo = store.NewMemory()
		log.Info("Using in-memory store")
	default:
		var err error
		db, err = database.NewConnection(&cfg.Database, log)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := db.CreateSchema(context.Background()); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
		repo = store.NewPostgres(db.DB, log)
	}

	clock := interfaces.SystemClock{}
	notifier := NewLogSink(log)

	resolver := availability.NewResolver(repo, log)
	scorer := matching.NewScorer(resolver, clock, log)
	orchestrator := matching.NewOrchestrator(repo, scorer, notifier, clock, log)

	detector := conflict.NewDetector(conflict.DetectorConfig{
		TravelBufferMinutes: cfg.Conflict.TravelBufferMinutes,
		MinutesPerMile:      cfg.Conflict.MinutesPerMile,
	}, clock.Now, log)
	conflictService := conflict.NewService(repo, detector, resolver, scorer,
		cfg.Matching.DefaultCriteria(), notifier, clock, log)

	s := &Service{
		config:     cfg,
		logger:     log,
		repository: repo,
		db:         db,
		resolver:   resolver,
		matcher:    orchestrator,
		conflicts:  conflictService,
		verifier:   auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer),
		health:     monitoring.NewHealthManager("scheduler-service"),
	}

	if cfg.Conflict.AutoScanEnabled {
		s.scanner = conflict.NewScanner(conflictService, cfg.Conflict.ScanInterval(), log)
	}

	s.health.Register(monitoring.CheckFunc{
		CheckName: "store",
		Fn: func(ctx context.Context) error {
			if s.db != nil {
				return s.db.Health()
			}
			return nil
		},
	})

	return s, nil
}

// Start runs the HTTP server until it is stopped
func (s *Service) Start() error {
	router := mux.NewRouter()
	s.setupRoutes(router)

	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  time.Duration(s.config.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(s.config.Server.IdleTimeout) * time.Second,
	}

	if s.scanner != nil {
		s.scanner.Start()
	}

	s.logger.WithField("addr", addr).Info("Starting scheduler service")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop shuts the service down gracefully
func (s *Service) Stop(ctx context.Context) error {
	if s.scanner != nil {
		s.scanner.Stop()
	}
	if s.server != nil {
		s.logger.Info("Stopping scheduler service")
		if err := s.server.Shutdown(ctx); err != nil {
			return err
		}
	}
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
