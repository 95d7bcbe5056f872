package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/videoweave/api/pkg/response"
)

// KeyVerifier checks a presented API key. Implemented by service.APIKeyStore.
type KeyVerifier interface {
	Verify(ctx context.Context, key string) bool
}

// AuthMiddleware accepts two credential forms on the Authorization header:
// a registered API key, or a signed JWT. Either way the resolved owner id
// lands in c.Locals("owner") and scopes every job operation downstream.
type AuthMiddleware struct {
	jwtSecret string
	apiKeys   KeyVerifier
}

type UserClaims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

func NewAuthMiddleware(jwtSecret string, apiKeys KeyVerifier) *AuthMiddleware {
	return &AuthMiddleware{jwtSecret: jwtSecret, apiKeys: apiKeys}
}

// Authenticate validates the Authorization header
func (m *AuthMiddleware) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return response.Unauthorized(c, "Missing authorization header")
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			return response.Unauthorized(c, "Invalid authorization header format")
		}
		credential := parts[1]

		if m.apiKeys != nil && m.apiKeys.Verify(c.Context(), credential) {
			c.Locals("owner", credential)
			return c.Next()
		}

		token, err := jwt.ParseWithClaims(credential, &UserClaims{}, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(m.jwtSecret), nil
		})
		if err != nil {
			return response.Unauthorized(c, "Invalid API key or token")
		}

		claims, ok := token.Claims.(*UserClaims)
		if !ok || !token.Valid {
			return response.Unauthorized(c, "Invalid token claims")
		}

		owner := claims.UserID
		if owner == "" {
			owner = claims.Subject
		}
		if owner == "" {
			return response.Unauthorized(c, "Token carries no user identity")
		}

		c.Locals("owner", owner)
		c.Locals("claims", claims)
		return c.Next()
	}
}

// GetOwner extracts the authenticated owner id from context
func GetOwner(c *fiber.Ctx) string {
	if owner, ok := c.Locals("owner").(string); ok {
		return owner
	}
	return ""
}

// GenerateToken creates a new JWT token (useful for testing)
func (m *AuthMiddleware) GenerateToken(userID string) (string, error) {
	claims := UserClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:  "videoweave-api",
			Subject: userID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(m.jwtSecret))
}
