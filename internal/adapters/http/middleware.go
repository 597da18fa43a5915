package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/dkeye/Chat/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const (
	identityKey     = "identity"
	sessionTokenKey = "access_token"
)

// TokenFromRequest looks for a bearer token in the Authorization header,
// then the token query parameter, then the cookie session.
func TokenFromRequest(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(tok)
		}
	}
	if tok := c.Query("token"); tok != "" {
		return tok
	}
	if tok, ok := sessions.Default(c).Get(sessionTokenKey).(string); ok {
		return tok
	}
	return ""
}

func AuthMiddleware(svc AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ident, err := svc.ValidateToken(c.Request.Context(), TokenFromRequest(c))
		if err != nil {
			writeError(c, err)
			c.Abort()
			return
		}
		c.Set(identityKey, ident)
		c.Next()
	}
}

func identityFrom(c *gin.Context) domain.Identity {
	v, _ := c.Get(identityKey)
	ident, _ := v.(domain.Identity)
	return ident
}

// RequestLogger is gin.Logger on zerolog.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("module", "adapters.http").
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("client", c.ClientIP()).
			Msg("request")
	}
}

func statusOf(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindAuthentication:
		return http.StatusUnauthorized
	case domain.KindAuthorization:
		return http.StatusForbidden
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindResourceExhausted:
		return http.StatusServiceUnavailable
	case domain.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	kind := domain.KindOf(err)
	status := statusOf(kind)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("module", "adapters.http").Str("path", c.Request.URL.Path).Msg("request failed")
		msg = "internal error"
	}
	c.JSON(status, gin.H{"error": msg, "code": kind.String()})
}
