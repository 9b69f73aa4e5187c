package handlers

import (
	"fmt"
	"net/http"
	"time"

	"genalixir-backend/pkg/config"
	"genalixir-backend/pkg/database"
	"genalixir-backend/pkg/mailer"
	"genalixir-backend/pkg/metrics"
	customMiddleware "genalixir-backend/pkg/middleware"
	"genalixir-backend/pkg/services"
	"genalixir-backend/pkg/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// requestTimeout 留5秒缓冲（Vercel函数有时间限制）
const requestTimeout = 25 * time.Second

// NewRouter 组装所有服务与路由（单体路由模式）
func NewRouter(cfg *config.Config, db database.DatabaseInterface, mail mailer.Mailer) http.Handler {
	tokens := utils.NewJWTService(cfg.JWTSecret, time.Duration(cfg.TokenTTLHours)*time.Hour)
	creds := services.NewCredentialIssuer(tokens, cfg.BcryptCost)

	router := chi.NewRouter()
	setupMiddleware(router, cfg)
	setupRoutes(router, cfg, db, mail, creds)
	return router
}

// setupMiddleware 设置全局中间件
func setupMiddleware(router *chi.Mux, cfg *config.Config) {
	// 基础中间件
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	// Normalize path and restore scheme/host before logging and routing
	router.Use(customMiddleware.Normalize())
	router.Use(customMiddleware.Logger())
	router.Use(customMiddleware.Recovery(cfg))
	router.Use(metrics.InstrumentHandler)

	// CORS中间件
	router.Use(customMiddleware.CORS(cfg))

	router.Use(middleware.Timeout(requestTimeout))

	// 压缩中间件
	router.Use(middleware.Compress(5))

	// 开发环境额外中间件
	if cfg.IsDevelopment() {
		router.Use(middleware.Heartbeat("/ping"))
	}
}

// setupRoutes 设置所有API路由
func setupRoutes(router *chi.Mux, cfg *config.Config, db database.DatabaseInterface, mail mailer.Mailer, creds *services.CredentialIssuer) {
	membership := services.NewMembershipService(db, creds, mail, cfg.RegistrationMode)
	profiles := services.NewProfileService(db)
	projects := services.NewProjectService(db)

	authHandler := NewAuthHandler(cfg, services.NewAuthService(db, creds, cfg.AdminAccounts), membership)
	adhesionHandler := NewAdhesionHandler(cfg, membership)
	memberHandler := NewMemberHandler(cfg, profiles)
	projectHandler := NewProjectHandler(cfg, projects)
	adminHandler := NewAdminHandler(cfg, db, services.NewAdminService(db, mail))

	loginLimiter := customMiddleware.NewRateLimiter(cfg.LoginPerMinute)
	submitLimiter := customMiddleware.NewRateLimiter(cfg.LoginPerMinute)

	// 健康检查端点
	router.Get("/", adminHandler.HealthCheck)
	router.Handle("/metrics", metrics.Handler())

	// API路由组
	router.Route("/api", func(r chi.Router) {
		r.Use(customMiddleware.ContentTypeJSON)

		// 公开路由（不需要认证）
		r.Group(func(r chi.Router) {
			r.Use(customMiddleware.MaxBodySize(customMiddleware.DefaultMaxBody))

			r.With(submitLimiter.Handler).Post("/auth/register", authHandler.Register)
			r.With(loginLimiter.Handler).Post("/auth/login", authHandler.Login)
			r.With(loginLimiter.Handler).Post("/admin/login", authHandler.AdminLogin)
			r.With(submitLimiter.Handler).Post("/adhesions", adhesionHandler.Submit)

			r.Get("/projects", projectHandler.ListProjects)
			r.Get("/projects/{id}", projectHandler.GetProject)
			r.Get("/projects/{id}/members", projectHandler.ListMembers)
		})

		// 成员路由
		r.Group(func(r chi.Router) {
			r.Use(customMiddleware.RequireMember(creds))
			r.Use(customMiddleware.MaxBodySize(customMiddleware.DefaultMaxBody))

			r.Get("/auth/me", authHandler.Me)
			r.Put("/profile", memberHandler.UpdateProfile)
			r.Post("/members/{id}/auras/verify", memberHandler.VerifyAura)

			r.Post("/projects", projectHandler.CreateProject)
			r.Put("/projects/{id}", projectHandler.UpdateProject)
			r.Delete("/projects/{id}", projectHandler.DeleteProject)
			r.Post("/projects/{id}/join", projectHandler.JoinProject)
			r.Post("/projects/{id}/leave", projectHandler.LeaveProject)

			r.Put("/moderation/projects/{id}", projectHandler.ModerateProject)
		})

		// 管理员路由
		r.Group(func(r chi.Router) {
			r.Use(customMiddleware.RequireAdmin(creds))

			r.Group(func(r chi.Router) {
				r.Use(customMiddleware.MaxBodySize(customMiddleware.DefaultMaxBody))

				r.Get("/admin/adhesions", adhesionHandler.List)
				r.Get("/admin/adhesions/{id}", adhesionHandler.Get)
				r.Post("/admin/adhesions/{id}/validate", adhesionHandler.Validate)
				r.Post("/admin/adhesions/{id}/reject", adhesionHandler.Reject)

				r.Get("/admin/members", memberHandler.ListMembers)
				r.Put("/admin/members/{id}/role", memberHandler.SetRole)
				r.Put("/admin/projects/{id}", projectHandler.AdminUpdateProject)

				r.Get("/admin/stats", adminHandler.Stats)
			})

			// 合同PDF以base64传输，单独放宽请求体上限
			r.With(customMiddleware.MaxBodySize(customMiddleware.ContractMaxBody)).
				Post("/admin/contracts/send", adminHandler.SendContract)
		})
	})

	// 404处理
	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		utils.WriteNotFoundResponse(w, fmt.Sprintf("Route not found: %s %s", r.Method, r.URL.Path))
	})

	// 405处理
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		utils.WriteErrorResponseWithCode(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
			fmt.Sprintf("Method %s not allowed for %s", r.Method, r.URL.Path), "")
	})
}

// memberID 令牌中的成员ID（路由已保证为成员令牌）
func memberID(r *http.Request) string {
	claims, _ := customMiddleware.GetClaimsFromContext(r.Context())
	if claims == nil {
		return ""
	}
	return claims.MemberID
}

// adminEmail 令牌中的管理员邮箱
func adminEmail(r *http.Request) string {
	claims, _ := customMiddleware.GetClaimsFromContext(r.Context())
	if claims == nil {
		return ""
	}
	return claims.Email
}
