package stubserver

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

// Claims carries the authenticated stub user through request handling.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// GenerateToken mints an HS256 access token for the user.
func GenerateToken(secret, userID string) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "credits-stub",
			Subject:   userID,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// AuthMiddleware validates bearer tokens and stores the user id in request
// locals.
func AuthMiddleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return respondError(c, fiber.StatusUnauthorized, "missing authorization header")
		}
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return respondError(c, fiber.StatusUnauthorized, "invalid authorization format")
		}
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")

		token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			log.Debug().Err(err).Msg("token validation failed")
			return respondError(c, fiber.StatusUnauthorized, "unauthorized")
		}

		claims, ok := token.Claims.(*Claims)
		if !ok || claims.UserID == "" {
			return respondError(c, fiber.StatusUnauthorized, "unauthorized")
		}

		c.Locals("userID", claims.UserID)
		return c.Next()
	}
}
