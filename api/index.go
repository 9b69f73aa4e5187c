package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"genalixir-backend/pkg/config"
	"genalixir-backend/pkg/database"
	"genalixir-backend/pkg/handlers"
	"genalixir-backend/pkg/logging"
	"genalixir-backend/pkg/mailer"
	"genalixir-backend/pkg/utils"
)

var (
	router   http.Handler
	routerMu sync.Mutex
)

// Handler 是Vercel函数的入口点
// 这个函数实现了"单体路由模式"，将所有API端点集中在一个Chi路由器中管理；
// 路由器与数据库实例在冷启动时创建一次，之后的热调用复用
func Handler(w http.ResponseWriter, r *http.Request) {
	h, err := getRouter(r.Context())
	if err != nil {
		logging.FromContext(r.Context()).WithError(err).Error("❌ Failed to initialise service")
		utils.WriteInternalServerErrorResponse(w, "Service unavailable: configuration error")
		return
	}
	h.ServeHTTP(w, r)
}

// getRouter 构建失败时不缓存，下次请求重试
func getRouter(ctx context.Context) (http.Handler, error) {
	routerMu.Lock()
	defer routerMu.Unlock()

	if router != nil {
		return router, nil
	}

	cfg := config.GetCached()
	logging.Setup(cfg.Environment, cfg.LogLevel)

	// 验证配置
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	initCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	db, err := database.GetDatabase(initCtx, database.DatabaseConfig{
		UseLocalDB:   cfg.UseLocalDB,
		LocalDataDir: cfg.LocalDataDir,
		PostgresDSN:  cfg.PostgresDSN,
		SupabaseURL:  cfg.SupabaseURL,
		SupabaseKey:  cfg.SupabaseKey,
		Debug:        cfg.Debug,
	})
	if err != nil {
		return nil, err
	}

	mail := mailer.New(mailer.Config{
		BaseURL: cfg.MailAPIURL,
		APIKey:  cfg.MailAPIKey,
		From:    cfg.MailFrom,
	})

	router = handlers.NewRouter(cfg, db, mail)
	logging.WithComponent("api").
		WithField("environment", cfg.Environment).
		WithField("registration_mode", cfg.RegistrationMode).
		Info("🚀 GEN ALIXIR API ready")
	return router, nil
}
