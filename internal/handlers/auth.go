package handlers

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	userIDLocal = "userID"
	// DevUserHeader carries the user id when no JWT secret is configured
	DevUserHeader = "X-User-ID"

	msgUnauthorized = "Não autorizado."
)

// RequireUser authenticates the caller and stores the user id in the request
// locals. With a secret it verifies an HS256 bearer token and reads the user
// from the sub claim; without one it trusts DevUserHeader.
func RequireUser(jwtSecret string) fiber.Handler {
	key := []byte(jwtSecret)

	return func(c *fiber.Ctx) error {
		var subject string

		if jwtSecret == "" {
			subject = c.Get(DevUserHeader)
		} else {
			raw, ok := bearerToken(c.Get(fiber.HeaderAuthorization))
			if !ok {
				return unauthorized(c)
			}

			claims := &jwt.RegisteredClaims{}
			tkn, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
				return key, nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
			if err != nil || !tkn.Valid {
				return unauthorized(c)
			}
			subject = claims.Subject
		}

		id, err := uuid.Parse(strings.TrimSpace(subject))
		if err != nil {
			return unauthorized(c)
		}

		c.Locals(userIDLocal, id.String())
		return c.Next()
	}
}

// RequireSecret checks a shared bearer secret, as sent by cron providers
func RequireSecret(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if secret == "" {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"success": false,
				"error":   "cron secret not configured",
			})
		}

		raw, ok := bearerToken(c.Get(fiber.HeaderAuthorization))
		if !ok || subtle.ConstantTimeCompare([]byte(raw), []byte(secret)) != 1 {
			return unauthorized(c)
		}

		return c.Next()
	}
}

// UserID returns the authenticated user id set by RequireUser
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals(userIDLocal).(string)
	return id
}

func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(prefix):]), true
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"success": false,
		"error":   msgUnauthorized,
	})
}
