package middleware

import (
	"context"
	"net/http"
	"strings"

	"genalixir-backend/pkg/logging"
	"genalixir-backend/pkg/models"
	"genalixir-backend/pkg/utils"
)

// ContextKey 用于在context中存储认证信息的键
type ContextKey string

const (
	ClaimsContextKey ContextKey = "claims"
)

// TokenVerifier 校验 bearer 令牌
type TokenVerifier interface {
	VerifyToken(token string) (*models.TokenClaims, error)
}

// RequireMember 要求成员令牌
func RequireMember(verifier TokenVerifier) func(http.Handler) http.Handler {
	return requireTokenType(verifier, models.TokenTypeMember)
}

// RequireAdmin 要求管理员令牌
func RequireAdmin(verifier TokenVerifier) func(http.Handler) http.Handler {
	return requireTokenType(verifier, models.TokenTypeAdmin)
}

func requireTokenType(verifier TokenVerifier, tokenType string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log := logging.FromContext(r.Context())

			tokenString, ok := bearerToken(r)
			if !ok {
				log.WithField("path", r.URL.Path).Debug("❌ Auth middleware: missing bearer token")
				utils.WriteUnauthorizedResponse(w, "Missing or malformed authorization header")
				return
			}

			claims, err := verifier.VerifyToken(tokenString)
			if err != nil {
				log.WithField("path", r.URL.Path).Debug("❌ Auth middleware: token rejected")
				utils.WriteUnauthorizedResponse(w, "Invalid or expired token")
				return
			}

			if claims.Type != tokenType {
				log.WithField("token_type", claims.Type).WithField("required", tokenType).Warn("⛔ Auth middleware: wrong token type")
				utils.WriteForbiddenResponse(w, "This endpoint requires a "+tokenType+" token")
				return
			}

			ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
			setCaller(ctx, callerIdentity(ctx))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}
	const prefix = "bearer "
	if len(authHeader) <= len(prefix) || !strings.EqualFold(authHeader[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(authHeader[len(prefix):])
	return token, token != ""
}

// GetClaimsFromContext 从context中获取令牌信息
func GetClaimsFromContext(ctx context.Context) (*models.TokenClaims, bool) {
	claims, ok := ctx.Value(ClaimsContextKey).(*models.TokenClaims)
	return claims, ok && claims != nil
}

// callerIdentity 日志中使用的调用者标识
func callerIdentity(ctx context.Context) string {
	claims, ok := GetClaimsFromContext(ctx)
	if !ok {
		return "anonymous"
	}
	if claims.IsAdmin() {
		return "admin:" + claims.Email
	}
	return "member:" + claims.MemberID
}
