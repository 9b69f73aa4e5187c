package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"genalixir-backend/pkg/config"
	"genalixir-backend/pkg/logging"
	"genalixir-backend/pkg/utils"
)

// Recovery 恢复中间件，记录 panic 并返回统一的错误信封
func Recovery(cfg *config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rvr := recover()
				if rvr == nil {
					return
				}
				if rvr == http.ErrAbortHandler {
					panic(rvr)
				}

				stack := debug.Stack()
				logging.FromContext(r.Context()).
					WithField("panic", fmt.Sprint(rvr)).
					WithField("path", r.URL.Path).
					WithField("stack", string(stack)).
					Error("❌ PANIC recovered")

				if cfg.IsDevelopment() {
					// 开发环境：显示详细错误信息
					utils.WriteErrorResponseWithCode(w, http.StatusInternalServerError,
						"INTERNAL_SERVER_ERROR",
						fmt.Sprintf("Internal server error: %v", rvr),
						string(stack))
					return
				}
				utils.WriteInternalServerErrorResponse(w, "Internal server error occurred")
			}()

			next.ServeHTTP(w, r)
		})
	}
}
