package middleware

import (
	"context"
	"net/http"
	"time"

	"genalixir-backend/pkg/logging"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

const identityContextKey ContextKey = "identity"

// requestIdentity is filled in by the auth middleware further down the chain.
type requestIdentity struct {
	caller string
}

func setCaller(ctx context.Context, caller string) {
	if id, ok := ctx.Value(identityContextKey).(*requestIdentity); ok {
		id.caller = caller
	}
}

// Logger 请求日志中间件：方法、路径、状态码、耗时、调用者与客户端IP
func Logger() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			identity := &requestIdentity{caller: "anonymous"}
			ctx := context.WithValue(r.Context(), identityContextKey, identity)

			// 创建响应写入器包装器来捕获状态码
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			entry := logging.FromContext(ctx).WithFields(logrus.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      status,
				"duration_ms": time.Since(start).Milliseconds(),
				"bytes":       ww.BytesWritten(),
				"caller":      identity.caller,
				"ip":          r.RemoteAddr,
				"user_agent":  r.UserAgent(),
			})

			switch {
			case status >= 500:
				entry.Error("💥 request failed")
			case status >= 400:
				entry.Warn("⚠️  request rejected")
			default:
				entry.Info("✅ request served")
			}
		})
	}
}
