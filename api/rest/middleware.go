package rest

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/zlnvch/easel/api/response"
	"github.com/zlnvch/easel/logutils"
	"github.com/zlnvch/easel/metrics"
	"github.com/zlnvch/easel/models"
	"github.com/zlnvch/easel/service"
)

const userContextKey = "easel-user"

// Authenticate resolves the bearer token to a user and stores it in the gin
// context for the handlers behind it.
func Authenticate(svc *service.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			response.UnauthorizedError(c, "missing bearer token")
			return
		}

		user, err := svc.AuthenticateToken(c.Request.Context(), token)
		if err != nil {
			logutils.Log.WithError(err).Debug("rejected bearer token")
			response.HTTPError(c, http.StatusUnauthorized, "invalid token", response.InvalidToken)
			return
		}

		c.Set(userContextKey, user)
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// currentUser must only be called behind Authenticate.
func currentUser(c *gin.Context) models.User {
	return c.MustGet(userContextKey).(models.User)
}

// RequestLogger logs every request once it has been handled and reports it
// to the recorder, labelled by route template rather than raw path.
func RequestLogger(recorder metrics.Recorder) gin.HandlerFunc {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		recorder.RecordHTTPRequest(c.Request.Method, route, status, duration)

		fields := logutils.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     status,
			"durationMs": float64(duration.Microseconds()) / 1000,
		}
		if value, ok := c.Get(userContextKey); ok {
			fields["userId"] = value.(models.User).Id
		}

		level := logrus.InfoLevel
		if status >= http.StatusInternalServerError {
			level = logrus.ErrorLevel
		} else if status >= http.StatusBadRequest {
			level = logrus.WarnLevel
		}
		logutils.Log.WithFields(fields).Log(level, "http request")
	}
}

// CORS answers preflight requests with 204. An empty origin allows any.
func CORS(allowedOrigin string) gin.HandlerFunc {
	if allowedOrigin == "" {
		allowedOrigin = "*"
	}
	return func(c *gin.Context) {
		header := c.Writer.Header()
		header.Set("Access-Control-Allow-Origin", allowedOrigin)
		header.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		header.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		if allowedOrigin != "*" {
			header.Set("Access-Control-Allow-Credentials", "true")
			header.Add("Vary", "Origin")
		}
		header.Set("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// Recovery turns a panic into the standard 500 envelope.
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logutils.Log.WithFields(logutils.Fields{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"panic":  recovered,
		}).Error("recovered from panic")
		response.InternalServerError(c)
	})
}
