// auth.go — JWT middleware для опциональной идентификации пользователя.
// Использует RS256 + JWKS для валидации токенов от основного API Uni-Verse.
//
// В отличие от классического auth middleware идентификация ОПЦИОНАЛЬНА:
// fingerprint-поиск доступен анонимно, поэтому отсутствующий или невалидный
// токен не приводит к 401 — запрос продолжается без автора. Валидный токен
// помещает sub (UUID пользователя) в контекст запроса.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// contextKey — тип для ключей контекста (избегаем коллизий).
type contextKey string

// ContextKeyAuthorID — ключ для идентификатора пользователя в контексте запроса.
const ContextKeyAuthorID contextKey = "author_id"

// accessTokenCookie — имя cookie с JWT, выставляемой основным API при логине.
const accessTokenCookie = "access_token"

// OptionalAuth — middleware опциональной JWT-идентификации через JWKS.
type OptionalAuth struct {
	jwks      keyfunc.Keyfunc
	jwtLeeway time.Duration
	logger    *slog.Logger
}

// NewOptionalAuth создаёт middleware с JWKS из указанного URL.
// NoErrorReturnFirstHTTPReq позволяет стартовать даже если JWKS endpoint
// ещё недоступен (например, при одновременном запуске pod-ов).
func NewOptionalAuth(jwksURL string, refreshInterval time.Duration, logger *slog.Logger) (*OptionalAuth, error) {
	storage, err := jwkset.NewStorageFromHTTP(jwksURL, jwkset.HTTPClientStorageOptions{
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           refreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("Ошибка обновления JWKS",
				slog.String("error", err.Error()),
				slog.String("url", jwksURL),
			)
		},
	})
	if err != nil {
		return nil, err
	}

	k, err := keyfunc.New(keyfunc.Options{
		Storage: storage,
	})
	if err != nil {
		return nil, err
	}

	return &OptionalAuth{
		jwks:      k,
		jwtLeeway: 30 * time.Second,
		logger:    logger.With(slog.String("component", "auth")),
	}, nil
}

// NewOptionalAuthWithKeyfunc создаёт middleware с предоставленной keyfunc.
// Используется в тестах для подстановки mock JWKS.
func NewOptionalAuthWithKeyfunc(kf keyfunc.Keyfunc, jwtLeeway time.Duration, logger *slog.Logger) *OptionalAuth {
	return &OptionalAuth{
		jwks:      kf,
		jwtLeeway: jwtLeeway,
		logger:    logger.With(slog.String("component", "auth")),
	}
}

// Middleware возвращает HTTP middleware опциональной идентификации.
// Токен ищется в заголовке Authorization (Bearer) и в cookie access_token.
// Валидный токен с sub-UUID помещает идентификатор автора в контекст;
// во всех остальных случаях запрос продолжается анонимно.
func (a *OptionalAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := extractToken(r)
			if tokenString == "" {
				next.ServeHTTP(w, r)
				return
			}

			claims := &jwt.RegisteredClaims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, a.jwks.KeyfuncCtx(r.Context()),
				jwt.WithValidMethods([]string{"RS256"}),
				jwt.WithExpirationRequired(),
				jwt.WithLeeway(a.jwtLeeway),
			)
			if err != nil || !token.Valid {
				a.logger.Debug("JWT валидация не пройдена, запрос продолжается анонимно",
					slog.String("remote_addr", r.RemoteAddr),
				)
				next.ServeHTTP(w, r)
				return
			}

			subject, err := claims.GetSubject()
			if err != nil || subject == "" {
				next.ServeHTTP(w, r)
				return
			}

			// sub обязан быть UUID пользователя — иначе автор не определим
			if _, err := uuid.Parse(subject); err != nil {
				a.logger.Debug("sub токена не является UUID, запрос продолжается анонимно",
					slog.String("sub", subject),
				)
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyAuthorID, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractToken извлекает JWT из заголовка Authorization или cookie access_token.
func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
	}

	if cookie, err := r.Cookie(accessTokenCookie); err == nil {
		return cookie.Value
	}

	return ""
}

// AuthorIDFromContext извлекает идентификатор автора из контекста запроса.
// Возвращает пустую строку для анонимных запросов.
func AuthorIDFromContext(ctx context.Context) string {
	authorID, _ := ctx.Value(ContextKeyAuthorID).(string)
	return authorID
}
