// auth — проверка access-токенов (HS256), выпущенных auth-сервисом,
// и получение из них актора.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/pribylovaa/listing-conversations/internal/config"
	"github.com/pribylovaa/listing-conversations/internal/models"
)

var (
	// ErrInvalidToken — подпись, формат или claims не прошли проверку.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired — срок действия токена истёк.
	ErrTokenExpired = errors.New("token expired")
)

type accessClaims struct {
	UserID string `json:"uid"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// Verifier проверяет access-токены.
type Verifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewVerifier создаёт проверяющего по конфигурации auth.
func NewVerifier(cfg config.AuthConfig) *Verifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(cfg.Leeway),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if len(cfg.Audience) > 0 {
		opts = append(opts, jwt.WithAudience(cfg.Audience...))
	}

	return &Verifier{secret: []byte(cfg.JWTSecret), parser: jwt.NewParser(opts...)}
}

// Verify валидирует токен и возвращает актора.
func (v *Verifier) Verify(tokenStr string) (models.Actor, error) {
	const op = "auth/Verify"

	token, err := v.parser.ParseWithClaims(tokenStr, &accessClaims{},
		func(t *jwt.Token) (interface{}, error) {
			if t.Method != jwt.SigningMethodHS256 {
				return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
			}

			return v.secret, nil
		},
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return models.Actor{}, fmt.Errorf("%s: %w", op, ErrTokenExpired)
		}

		return models.Actor{}, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	claims, ok := token.Claims.(*accessClaims)
	if !ok || !token.Valid {
		return models.Actor{}, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	uid, err := uuid.Parse(claims.UserID)
	if err != nil || uid == uuid.Nil {
		return models.Actor{}, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	return models.Actor{ID: uid}, nil
}

// Issue подписывает access-токен. Используется в тестах и локальных стендах.
func Issue(cfg config.AuthConfig, userID uuid.UUID, ttl time.Duration, now time.Time) (string, error) {
	claims := accessClaims{
		UserID: userID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    cfg.Issuer,
			Subject:   userID.String(),
			Audience:  jwt.ClaimStrings(cfg.Audience),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.JWTSecret))
}
