package httpapi

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/learnonline/commerce/internal/domain"
)

type contextKey string

const ownerKeyContextKey contextKey = "owner_key"

const sessionCookieName = "cart_session"

// sessionMiddleware определяет владельца корзины. Аутентифицированный
// пользователь приходит в заголовке X-User-ID (проставляется внешним
// auth-слоем платформы); иначе используется анонимная cookie-сессия,
// выдаваемая при первом обращении.
func (s *Server) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ownerKey string

		if userID := strings.TrimSpace(r.Header.Get("X-User-ID")); userID != "" {
			ownerKey = domain.UserOwnerKey(userID)
		} else {
			sessionID := ""
			if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
				sessionID = cookie.Value
			}
			if sessionID == "" {
				sessionID = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     sessionCookieName,
					Value:    sessionID,
					Path:     "/",
					HttpOnly: true,
					SameSite: http.SameSiteLaxMode,
				})
			}
			ownerKey = domain.AnonOwnerKey(sessionID)
		}

		ctx := context.WithValue(r.Context(), ownerKeyContextKey, ownerKey)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ownerKeyFromContext возвращает ключ владельца, установленный session middleware.
func ownerKeyFromContext(ctx context.Context) string {
	if ownerKey, ok := ctx.Value(ownerKeyContextKey).(string); ok {
		return ownerKey
	}
	return ""
}

// adminMiddleware проверяет bearer-токен административных маршрутов.
// Реальная аутентификация живёт во внешнем слое платформы.
func (s *Server) adminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.adminToken == "" {
			respondError(w, http.StatusServiceUnavailable, "admin_disabled", "admin API is not configured")
			return
		}

		auth := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.adminToken)) != 1 {
			respondError(w, http.StatusUnauthorized, "unauthorized", "invalid admin token")
			return
		}

		next.ServeHTTP(w, r)
	})
}
