package main

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"

	"github.com/codeowl/platform/internal/app"
	"github.com/codeowl/platform/internal/common/handlers"
	"github.com/codeowl/platform/internal/common/health"
	"github.com/codeowl/platform/internal/common/middleware"
	leaguehandlers "github.com/codeowl/platform/internal/league/handlers"
	"github.com/codeowl/platform/internal/lesson/coderunner"
	"github.com/codeowl/platform/internal/lesson/engine"
	lessonhandlers "github.com/codeowl/platform/internal/lesson/handlers"
	lessonrepo "github.com/codeowl/platform/internal/lesson/repository"
	lessonservices "github.com/codeowl/platform/internal/lesson/services"
	profilehandlers "github.com/codeowl/platform/internal/profile/handlers"
	profilerepo "github.com/codeowl/platform/internal/profile/repository"
	profileservices "github.com/codeowl/platform/internal/profile/services"
	"github.com/codeowl/platform/internal/realtime"
	"github.com/codeowl/platform/internal/session"
	sessionhandlers "github.com/codeowl/platform/internal/session/handlers"
)

// services groups what main needs to run and stop.
type services struct {
	sessions *session.Manager
	profiles *profileservices.ProfileService
	runner   *lessonservices.Runner
	hub      *realtime.Hub
}

func setupServices(c *app.Container) *services {
	cfg := c.Config

	profileRepo := profilerepo.NewProfileRepository(c.DB)
	profiles := profileservices.NewProfileService(profileRepo, cfg.Economy, c.Metrics)

	hub := realtime.NewHub(c.Metrics)
	profiles.SetNotifier(hub)
	c.Leagues.SetNotifier(hub)

	sandbox := coderunner.NewClient(cfg.Functions.ExecuteCodeURL, cfg.Functions.ServiceKey, cfg.Functions.ForwardTimeout)
	grader := engine.NewGrader(sandbox, cfg.Functions.ExecTimeout)
	runner := lessonservices.NewRunner(
		c.DB,
		lessonrepo.NewLessonRepository(c.DB),
		profileRepo,
		profiles,
		grader,
		cfg.Economy,
		c.Metrics,
	)

	sessions := session.NewManager(session.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer), cfg.Auth.SessionTTL)
	sessions.OnEnd(runner.EndSession)

	return &services{sessions: sessions, profiles: profiles, runner: runner, hub: hub}
}

func setupRouter(c *app.Container, svc *services) http.Handler {
	cfg := c.Config
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.LoggerMiddleware(c.Metrics))

	checker := health.NewHealthChecker(c.DB, app.Version)
	checker.AddProbe("realtime", func(ctx context.Context) health.ComponentHealth {
		return health.ComponentHealth{Healthy: true, Details: gin.H{"clients": svc.hub.ClientCount()}}
	})
	checker.AddProbe("sessions", func(ctx context.Context) health.ComponentHealth {
		return health.ComponentHealth{Healthy: true, Details: gin.H{"active": svc.sessions.Count()}}
	})
	handlers.NewHealthHandler(checker).Register(router)
	router.GET("/metrics", gin.WrapH(c.Metrics.Handler()))

	v1 := router.Group("/api/v1")
	sessionHandler := sessionhandlers.NewSessionHandler(svc.sessions, svc.profiles)
	sessionHandler.RegisterPublic(v1)
	realtime.NewHandler(svc.hub, svc.sessions, cfg.Server.AllowedOrigins).Register(v1)

	protected := v1.Group("")
	protected.Use(middleware.SessionRequired(svc.sessions))
	sessionHandler.Register(protected)
	lessonhandlers.NewLessonHandler(
		lessonservices.NewCatalogService(lessonrepo.NewLessonRepository(c.DB)),
		svc.runner,
	).Register(protected)
	profilehandlers.NewProfileHandler(svc.profiles).Register(protected)
	leaguehandlers.NewLeagueHandler(c.Leagues, cfg.Auth.AdminSecret).Register(protected)

	return cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", middleware.SessionHeader, middleware.AdminHeader},
		AllowCredentials: true,
	}).Handler(router)
}
