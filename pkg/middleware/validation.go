package middleware

import (
	"net/http"
	"strings"

	"genalixir-backend/pkg/utils"
)

// Body size caps
const (
	DefaultMaxBody  = 1 << 20
	ContractMaxBody = 6 << 20
)

// ContentTypeJSON 验证带请求体的请求 Content-Type 为 application/json
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			contentType := r.Header.Get("Content-Type")
			// 没有请求体的 POST（如 join/leave）不需要 Content-Type
			if contentType == "" && r.ContentLength <= 0 {
				next.ServeHTTP(w, r)
				return
			}
			if !strings.HasPrefix(strings.ToLower(contentType), "application/json") {
				utils.WriteErrorResponseWithCode(w, http.StatusUnsupportedMediaType,
					"VALIDATION_ERROR", "Content-Type must be application/json", "")
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

// MaxBodySize 限制请求体大小
func MaxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				utils.WriteErrorResponseWithCode(w, http.StatusRequestEntityTooLarge,
					"VALIDATION_ERROR", "request body too large", "")
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
