package database

import (
	"context"
	"sync"
	"time"

	"genalixir-backend/pkg/logging"
)

// DatabasePool 进程级共享的数据库实例
type DatabasePool struct {
	instance DatabaseInterface
	config   DatabaseConfig
	mu       sync.RWMutex
	lastUsed time.Time
}

var (
	globalPool *DatabasePool
	poolMutex  sync.Mutex
)

// GetDatabase 获取数据库连接（单例模式）
// The instance is created once per process and recreated only when the
// configuration changes or the health check fails.
func GetDatabase(ctx context.Context, config DatabaseConfig) (DatabaseInterface, error) {
	poolMutex.Lock()
	defer poolMutex.Unlock()

	log := logging.WithComponent("database")

	if globalPool != nil && !shouldRecreateConnection(ctx, globalPool, config) {
		globalPool.mu.Lock()
		if config.Debug {
			log.WithField("idle", time.Since(globalPool.lastUsed).String()).Debug("♻️  Reusing database instance")
		}
		globalPool.lastUsed = time.Now()
		globalPool.mu.Unlock()
		return globalPool.instance, nil
	}

	log.Info("🔄 Creating database instance")
	if globalPool != nil && globalPool.instance != nil {
		_ = globalPool.instance.Close()
	}

	instance, err := NewDatabase(config)
	if err != nil {
		globalPool = nil
		return nil, err
	}
	globalPool = &DatabasePool{
		instance: instance,
		config:   config,
		lastUsed: time.Now(),
	}
	return instance, nil
}

// shouldRecreateConnection 判断是否需要重新创建连接
func shouldRecreateConnection(ctx context.Context, pool *DatabasePool, newConfig DatabaseConfig) bool {
	if pool == nil || pool.instance == nil {
		return true
	}

	log := logging.WithComponent("database")

	if !configEquals(pool.config, newConfig) {
		log.Info("🔄 Database configuration changed, recreating connection")
		return true
	}

	// 空闲超过30分钟时做一次健康检查
	pool.mu.RLock()
	idle := time.Since(pool.lastUsed) > 30*time.Minute
	pool.mu.RUnlock()
	if !idle {
		return false
	}

	hctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.instance.HealthCheck(hctx); err != nil {
		log.WithError(err).Warn("❌ Database health check failed, recreating")
		return true
	}
	return false
}

// configEquals 比较两个数据库配置是否相等
func configEquals(a, b DatabaseConfig) bool {
	return a.UseLocalDB == b.UseLocalDB &&
		a.LocalDataDir == b.LocalDataDir &&
		a.PostgresDSN == b.PostgresDSN &&
		a.SupabaseURL == b.SupabaseURL &&
		a.SupabaseKey == b.SupabaseKey
}

// CloseDatabase 关闭共享实例（进程退出时调用）
func CloseDatabase() error {
	poolMutex.Lock()
	defer poolMutex.Unlock()

	if globalPool == nil || globalPool.instance == nil {
		return nil
	}
	err := globalPool.instance.Close()
	globalPool = nil
	return err
}

// GetConnectionStats 获取连接池统计信息
func GetConnectionStats() map[string]interface{} {
	poolMutex.Lock()
	defer poolMutex.Unlock()

	if globalPool == nil {
		return map[string]interface{}{
			"status":    "no_connection",
			"last_used": nil,
		}
	}

	globalPool.mu.RLock()
	lastUsed := globalPool.lastUsed
	globalPool.mu.RUnlock()

	return map[string]interface{}{
		"status":    "connected",
		"last_used": lastUsed.Format(time.RFC3339),
		"age":       time.Since(lastUsed).String(),
		"config": map[string]interface{}{
			"use_local_db": globalPool.config.UseLocalDB,
			"has_postgres": globalPool.config.PostgresDSN != "",
			"has_supabase": globalPool.config.SupabaseURL != "",
		},
	}
}
