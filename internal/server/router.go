package server

import (
	"github.com/abduss/benefits/internal/audit"
	"github.com/abduss/benefits/internal/auth"
	"github.com/abduss/benefits/internal/benefit"
	"github.com/abduss/benefits/internal/config"
	"github.com/abduss/benefits/internal/document"
	"github.com/abduss/benefits/internal/logger"
	"github.com/abduss/benefits/internal/metrics"
	"github.com/abduss/benefits/internal/request"
	"github.com/gin-gonic/gin"
)

// Dependencies groups the services required by the HTTP router.
type Dependencies struct {
	Config      config.Config
	DB          Pinger
	ObjectStore BucketChecker
	AuthService *auth.Service
	Benefits    *benefit.Service
	Requests    *request.Service
	AuditLog    *audit.Repository
	Documents   DocumentServices
}

// DocumentServices bundles the upload, attach and retrieval components.
type DocumentServices struct {
	Supervisor *document.Supervisor
	Binder     *document.Binder
	Gateway    *document.Gateway
	Metrics    *document.Metrics
}

func (d DocumentServices) complete() bool {
	return d.Supervisor != nil && d.Binder != nil && d.Gateway != nil
}

// NewRouter builds a Gin engine with foundational middleware and routes.
func NewRouter(deps Dependencies) *gin.Engine {
	metrics.InitMetrics()

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logger.Middleware())
	router.Use(metrics.Middleware())

	registerHealthRoutes(router, deps)
	metrics.Register(router, deps.Config.Metrics.PrometheusPath)

	api := router.Group("/v1")
	if deps.AuthService != nil {
		auth.RegisterRoutes(api, deps.AuthService)

		protected := api.Group("/")
		protected.Use(auth.AuthMiddleware(deps.AuthService))

		if deps.Benefits != nil {
			benefit.RegisterRoutes(protected, deps.Benefits)
		}
		if deps.Requests != nil {
			request.RegisterRoutes(protected, deps.Requests)
		}
		if deps.Documents.complete() {
			document.RegisterRoutes(protected,
				deps.Documents.Supervisor,
				deps.Documents.Binder,
				deps.Documents.Gateway,
				deps.Documents.Metrics,
			)
		}
		if deps.AuditLog != nil {
			audit.RegisterRoutes(protected, deps.AuditLog)
		}
	}

	return router
}
