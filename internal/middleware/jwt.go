package middleware

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/arturoeanton/gitsum/internal/domain"
)

// UserLocalsKey is the fiber locals key holding the authenticated *domain.UserContext.
const UserLocalsKey = "user"

const defaultTokenTTL = 24 * time.Hour

var (
	ErrTokenMissing = errors.New("missing authorization")
	ErrTokenInvalid = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// JWTConfig holds JWT middleware configuration.
type JWTConfig struct {
	Secret    string
	Issuer    string
	ExpiresIn time.Duration
}

// JWTMiddleware verifies HS256 bearer tokens and stores the caller's
// UserContext in the request locals. Tokens are issued elsewhere; this
// middleware only checks them.
func JWTMiddleware(cfg JWTConfig) fiber.Handler {
	return func(c fiber.Ctx) error {
		token := bearerToken(c)
		if token == "" {
			return unauthorized(c, ErrTokenMissing)
		}

		claims, err := parseToken(token, cfg, time.Now())
		if err != nil {
			return unauthorized(c, err)
		}

		c.Locals(UserLocalsKey, claims.user())
		return c.Next()
	}
}

// GetUserContext extracts the UserContext from Fiber locals.
func GetUserContext(c fiber.Ctx) *domain.UserContext {
	u, ok := c.Locals(UserLocalsKey).(*domain.UserContext)
	if !ok {
		return nil
	}
	return u
}

// bearerToken reads the Authorization header, falling back to ?token= for
// EventSource clients that cannot set headers.
func bearerToken(c fiber.Ctx) string {
	if scheme, token, ok := strings.Cut(c.Get("Authorization"), " "); ok && strings.EqualFold(scheme, "bearer") {
		return strings.TrimSpace(token)
	}
	return c.Query("token")
}

func unauthorized(c fiber.Ctx, err error) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error": err.Error(),
		"kind":  "Unauthorized",
	})
}

// Claims represents the JWT payload.
type Claims struct {
	Subject   string `json:"sub"`
	Email     string `json:"email,omitempty"`
	Name      string `json:"name,omitempty"`
	Role      string `json:"role,omitempty"`
	Issuer    string `json:"iss"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

func (cl *Claims) user() *domain.UserContext {
	return &domain.UserContext{
		UserID: cl.Subject,
		Email:  cl.Email,
		Name:   cl.Name,
		Role:   cl.Role,
	}
}

var tokenHeader = segment([]byte(`{"alg":"HS256","typ":"JWT"}`))

// GenerateJWT signs a token for user. It exists for the CLI and tests; the
// server never issues tokens.
func GenerateJWT(user domain.UserContext, cfg JWTConfig) (string, error) {
	if user.UserID == "" {
		return "", errors.New("user id is required")
	}
	ttl := cfg.ExpiresIn
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}

	now := time.Now()
	payload, err := json.Marshal(Claims{
		Subject:   user.UserID,
		Email:     user.Email,
		Name:      user.Name,
		Role:      user.Role,
		Issuer:    cfg.Issuer,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(ttl).Unix(),
	})
	if err != nil {
		return "", err
	}

	signed := tokenHeader + "." + segment(payload)
	return signed + "." + signature(signed, cfg.Secret), nil
}

// parseToken checks signature, expiry, issuer and subject, in that order.
func parseToken(token string, cfg JWTConfig, now time.Time) (*Claims, error) {
	head, sig, ok := cutLast(token)
	if !ok || strings.Count(head, ".") != 1 {
		return nil, ErrTokenInvalid
	}
	if !hmac.Equal([]byte(sig), []byte(signature(head, cfg.Secret))) {
		return nil, ErrTokenInvalid
	}

	_, body, _ := strings.Cut(head, ".")
	raw, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return nil, ErrTokenInvalid
	}
	var claims Claims
	if err := json.Unmarshal(raw, &claims); err != nil {
		return nil, ErrTokenInvalid
	}

	switch {
	case now.Unix() > claims.ExpiresAt:
		return nil, ErrTokenExpired
	case claims.Issuer != cfg.Issuer, claims.Subject == "":
		return nil, ErrTokenInvalid
	}
	return &claims, nil
}

func cutLast(token string) (string, string, bool) {
	i := strings.LastIndexByte(token, '.')
	if i < 0 {
		return "", "", false
	}
	return token[:i], token[i+1:], true
}

func segment(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

func signature(input, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(input))
	return segment(mac.Sum(nil))
}
