// auth.go — JWT middleware для аутентификации пользователей File Service.
// Проверяет ID-токены провайдера (Firebase: RS256, ключи из JWKS Google),
// issuer и audience, помещает subject в контекст запроса.
// Subject используется как owner_id загрузок.
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	apierrors "github.com/propimentel/flr-wb/internal/api/errors"
	"github.com/propimentel/flr-wb/internal/domain/model"
)

// contextKey — тип для ключей контекста (избегаем коллизий).
type contextKey string

const (
	// ContextKeyClaims — извлечённые claims в контексте запроса.
	ContextKeyClaims contextKey = "jwt_claims"
)

// AuthClaims — проверенные claims пользователя.
type AuthClaims struct {
	// Subject — sub из JWT, идентификатор пользователя.
	Subject string
	// Email — email из JWT, если есть.
	Email string
	// ExpiresAt — срок действия токена.
	ExpiresAt time.Time
}

// idTokenClaims — raw claims ID-токена.
type idTokenClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	// UserID — дублирует sub в токенах Firebase.
	UserID string `json:"user_id,omitempty"`
}

// JWTAuth — middleware для JWT-аутентификации через JWKS.
type JWTAuth struct {
	jwks      keyfunc.Keyfunc
	issuer    string
	audience  string
	jwtLeeway time.Duration
	logger    *slog.Logger
}

// NewJWTAuth создаёт JWT middleware с JWKS по URL.
// issuer и audience могут быть пустыми — тогда не проверяются.
func NewJWTAuth(
	jwksURL string,
	issuer string,
	audience string,
	jwksClientTimeout time.Duration,
	jwksRefreshInterval time.Duration,
	jwtLeeway time.Duration,
	logger *slog.Logger,
) (*JWTAuth, error) {
	httpClient := &http.Client{Timeout: jwksClientTimeout}

	// JWKS Storage с фоновым обновлением.
	// NoErrorReturnFirstHTTPReq — стартуем даже если JWKS ещё недоступен.
	storage, err := jwkset.NewStorageFromHTTP(jwksURL, jwkset.HTTPClientStorageOptions{
		Client:                    httpClient,
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           jwksRefreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("Ошибка обновления JWKS",
				slog.String("error", err.Error()),
				slog.String("url", jwksURL),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("создание JWKS storage: %w", err)
	}

	k, err := keyfunc.New(keyfunc.Options{
		Storage: storage,
	})
	if err != nil {
		return nil, fmt.Errorf("создание keyfunc: %w", err)
	}

	return NewJWTAuthWithKeyfunc(k, issuer, audience, jwtLeeway, logger), nil
}

// NewJWTAuthWithKeyfunc создаёт middleware с готовым keyfunc.
// Используется в тестах с JWKS из JSON.
func NewJWTAuthWithKeyfunc(
	kf keyfunc.Keyfunc,
	issuer string,
	audience string,
	jwtLeeway time.Duration,
	logger *slog.Logger,
) *JWTAuth {
	return &JWTAuth{
		jwks:      kf,
		issuer:    issuer,
		audience:  audience,
		jwtLeeway: jwtLeeway,
		logger:    logger.With(slog.String("component", "jwt_auth")),
	}
}

// Middleware возвращает HTTP middleware для JWT-аутентификации.
// Извлекает Bearer token, валидирует подпись (RS256), срок действия,
// issuer и audience, помещает AuthClaims в контекст.
func (j *JWTAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, msg := bearerToken(r)
			if msg != "" {
				apierrors.Unauthorized(w, msg)
				return
			}

			claims, err := j.verify(r.Context(), tokenString)
			if err != nil {
				j.logger.Debug("JWT валидация не пройдена",
					slog.String("error", err.Error()),
					slog.String("remote_addr", r.RemoteAddr),
				)
				apierrors.Unauthorized(w, "Невалидный или просроченный токен")
				return
			}

			recordSubject(r.Context(), claims.Subject)
			ctx := context.WithValue(r.Context(), ContextKeyClaims, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// verify проверяет токен и возвращает claims.
func (j *JWTAuth) verify(ctx context.Context, tokenString string) (*AuthClaims, error) {
	raw := &idTokenClaims{}
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(j.jwtLeeway),
	}
	if j.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(j.issuer))
	}
	if j.audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(j.audience))
	}

	token, err := jwt.ParseWithClaims(tokenString, raw, j.jwks.KeyfuncCtx(ctx), parserOpts...)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("невалидный токен")
	}

	subject, err := raw.GetSubject()
	if err != nil {
		return nil, err
	}
	// sub становится частью ключа объекта, поэтому проверяется как owner_id
	if !model.ValidOwnerID(subject) || len(subject) > 128 {
		return nil, fmt.Errorf("недопустимый sub %q", subject)
	}

	claims := &AuthClaims{
		Subject: subject,
		Email:   raw.Email,
	}
	if raw.ExpiresAt != nil {
		claims.ExpiresAt = raw.ExpiresAt.Time
	}
	return claims, nil
}

// bearerToken извлекает токен из заголовка Authorization.
// Вторым значением возвращается сообщение об ошибке для клиента.
func bearerToken(r *http.Request) (string, string) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", "Отсутствует заголовок Authorization"
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", "Неверный формат Authorization: ожидается Bearer <token>"
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", "Пустой Bearer token"
	}
	return token, ""
}

// --- Context helpers ---

// ClaimsFromContext извлекает AuthClaims из контекста запроса.
// Возвращает nil, если claims не найдены.
func ClaimsFromContext(ctx context.Context) *AuthClaims {
	claims, _ := ctx.Value(ContextKeyClaims).(*AuthClaims)
	return claims
}

// SubjectFromContext извлекает sub из контекста запроса.
// Возвращает пустую строку, если claims не найдены.
func SubjectFromContext(ctx context.Context) string {
	claims := ClaimsFromContext(ctx)
	if claims == nil {
		return ""
	}
	return claims.Subject
}

// WithClaims помещает claims в контекст. Используется в тестах handlers.
func WithClaims(ctx context.Context, claims *AuthClaims) context.Context {
	return context.WithValue(ctx, ContextKeyClaims, claims)
}
