package middleware

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pkgerrors "codepractice/pkg/errors"
	"codepractice/pkg/utils/contextkey"
	"codepractice/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	userIDHeader        = "X-User-Id"
	userIDContextKey    = "user_id"
	authorizationHeader = "Authorization"
)

// IdentityConfig controls how the caller identity is resolved.
type IdentityConfig struct {
	// JWTSecret enables HS256 bearer tokens; the subject claim is the user id.
	JWTSecret string `yaml:"jwtSecret"`
	JWTIssuer string `yaml:"jwtIssuer"`
	// TrustUserIDHeader accepts X-User-Id as set by a fronting gateway.
	TrustUserIDHeader bool `yaml:"trustUserIdHeader"`
}

// IdentityResolver turns request credentials into a user id.
type IdentityResolver struct {
	secret      []byte
	issuer      string
	trustHeader bool
}

func NewIdentityResolver(cfg IdentityConfig) *IdentityResolver {
	return &IdentityResolver{
		secret:      []byte(cfg.JWTSecret),
		issuer:      cfg.JWTIssuer,
		trustHeader: cfg.TrustUserIDHeader,
	}
}

// Resolve returns the caller id, "" when no credential was presented,
// or an error when a presented token is invalid.
func (r *IdentityResolver) Resolve(authHeader, userHeader string) (string, error) {
	if token := extractBearerToken(authHeader); token != "" {
		return r.parseToken(token)
	}
	if r.trustHeader {
		return strings.TrimSpace(userHeader), nil
	}
	return "", nil
}

func (r *IdentityResolver) parseToken(raw string) (string, error) {
	if len(r.secret) == 0 {
		return "", pkgerrors.New(pkgerrors.TokenInvalid).WithMessage("bearer tokens are not accepted")
	}
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return r.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", pkgerrors.New(pkgerrors.TokenExpired)
		}
		return "", pkgerrors.New(pkgerrors.TokenInvalid)
	}
	if !parsed.Valid {
		return "", pkgerrors.New(pkgerrors.TokenInvalid)
	}
	if r.issuer != "" && claims.Issuer != r.issuer {
		return "", pkgerrors.New(pkgerrors.TokenInvalid)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", pkgerrors.New(pkgerrors.TokenInvalid)
	}
	return claims.Subject, nil
}

// IdentityMiddleware attaches the caller identity when one is presented.
// Invalid tokens are rejected; anonymous requests pass through.
func IdentityMiddleware(resolver *IdentityResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := resolver.Resolve(c.GetHeader(authorizationHeader), c.GetHeader(userIDHeader))
		if err != nil {
			response.AbortWithError(c, err)
			return
		}
		if userID != "" {
			c.Set(userIDContextKey, userID)
			ctx := context.WithValue(c.Request.Context(), contextkey.UserID, userID)
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}

// RequireIdentity rejects requests without a resolved caller.
func RequireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if contextkey.UserIDFrom(c.Request.Context()) == "" {
			response.AbortWithError(c, pkgerrors.New(pkgerrors.IdentityMissing))
			return
		}
		c.Next()
	}
}

func extractBearerToken(authHeader string) string {
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
