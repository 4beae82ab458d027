package daemon

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"scribeq/internal/api"
)

// submitterKey holds the authenticated JWT subject in the gin context.
const submitterKey = "submitter"

// authMiddleware validates bearer credentials. With neither token nor
// secret configured every request passes. A request matching the static
// token is accepted as-is; otherwise it must carry an HS256 JWT signed with
// jwtSecret, whose sub claim becomes the submitter identity.
func authMiddleware(token, jwtSecret string) gin.HandlerFunc {
	if token == "" && jwtSecret == "" {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		bearer := extractBearer(c.GetHeader("Authorization"))
		if bearer == "" {
			unauthorized(c, "authorization token is required")
			return
		}
		if token != "" && bearer == token {
			c.Next()
			return
		}
		if jwtSecret == "" {
			unauthorized(c, "invalid token")
			return
		}
		subject, err := parseSubject(bearer, jwtSecret)
		if err != nil {
			unauthorized(c, "invalid token")
			return
		}
		c.Set(submitterKey, subject)
		c.Next()
	}
}

func extractBearer(header string) string {
	parts := strings.Fields(header)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return parts[1]
	}
	return ""
}

func parseSubject(tokenString, secret string) (string, error) {
	parsed, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	if !parsed.Valid {
		return "", errors.New("token is not valid")
	}
	subject, err := parsed.Claims.GetSubject()
	if err != nil {
		return "", err
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", errors.New("token has no subject")
	}
	return subject, nil
}

func submitterFromContext(c *gin.Context) string {
	return c.GetString(submitterKey)
}

func unauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, api.ErrorResponse{Error: message, Kind: "unauthorized"})
}
