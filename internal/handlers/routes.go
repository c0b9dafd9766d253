package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/qatrack/internal/auth"
	"github.com/localnerve/qatrack/internal/config"
	"github.com/localnerve/qatrack/internal/evidence"
	"github.com/localnerve/qatrack/internal/middleware"
	"github.com/localnerve/qatrack/internal/models"
	"github.com/localnerve/qatrack/internal/services"
	"gorm.io/gorm"
)

// Dependencies carries everything the route handlers share
type Dependencies struct {
	Config      *config.Config
	DB          *gorm.DB
	Issuer      *auth.Issuer
	Audit       *services.Recorder
	Evidence    *evidence.Store
	Mailer      *services.Mailer
	Email       *services.Dispatcher
	Defaults    services.EmailSettings
	LoginLimits *middleware.RateLimiter
}

// RegisterRoutes mounts the API on the given router, normally the /api group
func RegisterRoutes(api fiber.Router, d Dependencies) {
	authn := middleware.Authenticate(d.Issuer, d.DB)
	writers := middleware.RequireRoles(models.RoleAdmin, models.RoleQA)
	admin := middleware.RequireRoles(models.RoleAdmin)

	limiter := d.LoginLimits
	if limiter == nil {
		limiter = middleware.NewRateLimiter(d.Config.LoginRatePerMinute)
	}

	health := &HealthHandler{Config: d.Config, DB: d.DB, Mailer: d.Mailer}
	api.Get("/health", health.Get)

	// Auth routes
	authHandler := &AuthHandler{
		DB:          d.DB,
		Issuer:      d.Issuer,
		Email:       d.Email,
		Audit:       d.Audit,
		FrontendURL: d.Config.FrontendURL,
	}
	authGroup := api.Group("/auth")
	authGroup.Post("/login", limiter.Handler(), authHandler.Login)
	authGroup.Post("/forgot-password", limiter.Handler(), authHandler.ForgotPassword)
	authGroup.Get("/validate-reset-token/:token", authHandler.ValidateResetToken)
	authGroup.Post("/reset-password", authHandler.ResetPassword)
	authGroup.Get("/me", authn, authHandler.Me)
	authGroup.Post("/register", authn, writers, authHandler.Register)

	// Evidence files accept the token as a query parameter so they can be linked directly
	demands := &DemandHandler{DB: d.DB, Audit: d.Audit, Evidence: d.Evidence}
	api.Get("/demandas/:id/evidence/:evidenceId/file", authn, demands.ServeEvidence)

	// Everything below requires a signed-in user
	protected := api.Group("", authn)

	projects := &ProjectHandler{DB: d.DB, Audit: d.Audit, Evidence: d.Evidence}
	protected.Get("/projects", projects.List)
	protected.Get("/projects/:id", projects.Get)
	protected.Post("/projects", writers, projects.Create)
	protected.Put("/projects/:id", writers, projects.Update)
	protected.Delete("/projects/:id", writers, projects.Delete)

	protected.Get("/demandas", demands.List)
	protected.Get("/demandas/:id", demands.Get)
	protected.Post("/demandas", writers, demands.Create)
	protected.Put("/demandas/:id", writers, demands.Update)
	protected.Delete("/demandas/:id", writers, demands.Delete)
	protected.Post("/demandas/:id/evidence", writers, demands.UploadEvidence)
	protected.Delete("/demandas/:id/evidence/:evidenceId", writers, demands.DeleteEvidence)

	scenarios := &ScenarioHandler{DB: d.DB, Audit: d.Audit}
	protected.Get("/scenarios", scenarios.List)
	protected.Get("/scenarios/:id", scenarios.Get)
	protected.Post("/scenarios", writers, scenarios.Create)
	protected.Put("/scenarios/:id", writers, scenarios.Update)
	protected.Patch("/scenarios/:id/status", writers, scenarios.UpdateStatus)
	protected.Delete("/scenarios/:id", writers, scenarios.Delete)

	registerVocab(protected.Group("/tags"), writers,
		&VocabHandler[models.Tag, *models.Tag]{DB: d.DB, Audit: d.Audit, Menu: services.MenuTags})
	registerVocab(protected.Group("/responsaveis"), writers,
		&VocabHandler[models.Responsible, *models.Responsible]{DB: d.DB, Audit: d.Audit, Menu: services.MenuResponsibles})
	registerVocab(protected.Group("/versions"), writers,
		&VocabHandler[models.Version, *models.Version]{DB: d.DB, Audit: d.Audit, Menu: services.MenuVersions})
	registerVocab(protected.Group("/servers"), writers,
		&VocabHandler[models.Server, *models.Server]{DB: d.DB, Audit: d.Audit, Menu: services.MenuServers})

	stats := &StatsHandler{DB: d.DB}
	protected.Get("/stats", stats.Get)

	// Admin routes
	users := &UserHandler{DB: d.DB, Audit: d.Audit}
	protected.Get("/users", admin, users.List)
	protected.Post("/users/import", admin, users.Import)
	protected.Get("/users/:id", admin, users.Get)
	protected.Put("/users/:id", admin, users.Update)
	protected.Delete("/users/:id", admin, users.Delete)

	audit := &AuditHandler{DB: d.DB}
	protected.Get("/audit", admin, audit.List)

	cfgHandler := &ConfigHandler{
		DB:       d.DB,
		Audit:    d.Audit,
		Mailer:   d.Mailer,
		Email:    d.Email,
		Defaults: d.Defaults,
	}
	protected.Get("/config/email", admin, cfgHandler.GetEmail)
	protected.Put("/config/email", admin, cfgHandler.PutEmail)
	protected.Post("/config/email/test", admin, cfgHandler.TestEmail)
}

func registerVocab[T services.Vocab, PT services.Named[T]](r fiber.Router, writers fiber.Handler, h *VocabHandler[T, PT]) {
	r.Get("", h.List)
	r.Post("", writers, h.Create)
	r.Put("/:id", writers, h.Update)
	r.Delete("/:id", writers, h.Delete)
}
