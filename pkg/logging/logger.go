// Package logging wraps logrus with the service defaults.
package logging

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

var (
	std     = logrus.New()
	setupMu sync.Mutex
)

// Setup 配置全局日志：生产环境使用JSON格式，其他环境使用文本格式
func Setup(environment, level string) {
	setupMu.Lock()
	defer setupMu.Unlock()

	if environment == "production" {
		std.SetFormatter(&logrus.JSONFormatter{})
	} else {
		std.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	std.SetLevel(lvl)
	std.SetOutput(os.Stdout)
}

// SetOutput redirects log output (used by tests).
func SetOutput(w io.Writer) {
	std.SetOutput(w)
}

// Logger returns the process-wide logger.
func Logger() *logrus.Logger {
	return std
}

// FromContext 返回带 request_id 的日志条目
func FromContext(ctx context.Context) *logrus.Entry {
	entry := logrus.NewEntry(std)
	if ctx == nil {
		return entry
	}
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		entry = entry.WithField("request_id", reqID)
	}
	return entry
}

// WithComponent tags log lines with a component name.
func WithComponent(component string) *logrus.Entry {
	return std.WithField("component", component)
}
