package auth

import (
	"context"
	"net/http"

	"github.com/xela07ax/opswatch/internal/domain"
	"go.uber.org/zap"
)

// TokenValidator — интерфейс проверки операторских токенов
type TokenValidator interface {
	VerifyToken(tokenStr string) (*domain.CustomClaims, error)
}

// SecurityRecorder принимает security-события от самого сервиса:
// неудачные попытки входа в операторский API тоже кормят движок.
type SecurityRecorder interface {
	RecordEvent(category, actor, endpoint string, details map[string]interface{}, sourceIP string)
}

func NewMiddleware(v TokenValidator, rec SecurityRecorder, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				recordFailure(rec, r, "missing_token")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := v.VerifyToken(authHeader)
			if err != nil {
				logger.Warn("auth failure", zap.Error(err))
				recordFailure(rec, r, "invalid_token")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			// Прокидываем данные в контекст
			ctx := context.WithValue(r.Context(), "user_scopes", claims.Scopes)
			ctx = context.WithValue(ctx, "user_id", claims.UserID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func recordFailure(rec SecurityRecorder, r *http.Request, reason string) {
	if rec == nil {
		return
	}
	rec.RecordEvent(domain.CategoryAuthFailures, "", r.URL.Path,
		map[string]interface{}{"reason": reason}, r.RemoteAddr)
}
