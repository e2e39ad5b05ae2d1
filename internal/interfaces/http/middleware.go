package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"krishibondhu/internal/entities"
	"krishibondhu/internal/infrastructure"
	"krishibondhu/internal/usecases"
)

const (
	HeaderRequestID = "X-Request-ID"

	ctxUserKey      = "user"
	ctxRequestIDKey = "request_id"

	maxRequestIDLength = 64
)

// BaaSClaims are the access-token claims issued by the auth backend. The marketplace role
// lives in user_metadata; app_role and role are older locations.
type BaaSClaims struct {
	jwt.RegisteredClaims
	Email        string `json:"email"`
	Role         string `json:"role"`
	AppRole      string `json:"app_role"`
	UserMetadata struct {
		Role string `json:"role"`
	} `json:"user_metadata"`
}

// UserRole resolves the marketplace role from the claims.
func (c *BaaSClaims) UserRole() entities.UserRole {
	for _, r := range []string{c.UserMetadata.Role, c.AppRole, c.Role} {
		if r != "" {
			return entities.ParseUserRole(r)
		}
	}
	return entities.UserRoleCustomer
}

type Middleware struct {
	jwtSecret []byte
	limiter   *infrastructure.KeyedLimiter
	quota     *usecases.UsageUsecase
	logger    *zap.Logger
}

func NewMiddleware(secret string, limiter *infrastructure.KeyedLimiter, quota *usecases.UsageUsecase, logger *zap.Logger) *Middleware {
	return &Middleware{
		jwtSecret: []byte(secret),
		limiter:   limiter,
		quota:     quota,
		logger:    logger,
	}
}

func (m *Middleware) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}
		tokenString, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Bearer token required"})
			return
		}

		claims := &BaaSClaims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
			return m.jwtSecret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid || claims.Subject == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		user := entities.User{ID: claims.Subject, Email: claims.Email, Role: claims.UserRole()}
		c.Set(ctxUserKey, user)
		c.Request = c.Request.WithContext(usecases.WithUserID(c.Request.Context(), user.ID))

		c.Next()
	}
}

// RoleRequired allows only the listed roles (must follow AuthRequired)
func (m *Middleware) RoleRequired(roles ...entities.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		for _, r := range roles {
			if user.Role == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "This advisory is not available for your role"})
	}
}

// RateLimitPerUser limits requests per authenticated user (must follow AuthRequired)
func (m *Middleware) RateLimitPerUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "User identity not found for rate limiting"})
			return
		}

		if !m.limiter.Allow(user.ID) {
			wait := m.limiter.WaitTime(user.ID)
			c.Header("Retry-After", strconv.Itoa(int(wait/time.Second)+1))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			return
		}

		c.Next()
	}
}

// QuotaRequired rejects callers who spent their daily advisory quota. A failing usage
// store does not block requests.
func (m *Middleware) QuotaRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		err := m.quota.CheckQuota(c.Request.Context(), user.ID)
		switch {
		case err == nil:
		case errors.Is(err, usecases.ErrQuotaExceeded):
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Daily advisory limit reached"})
			return
		default:
			m.logger.Warn("quota check failed, allowing request",
				zap.String("user_id", user.ID), zap.String("request_id", c.GetString(ctxRequestIDKey)), zap.Error(err))
		}

		c.Next()
	}
}

// RequestID tags every request with an ID, reusing the caller's X-Request-ID when sane.
func (m *Middleware) RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" || len(id) > maxRequestIDLength || !ValidRequestID(id) {
			id = uuid.NewString()
		}
		c.Set(ctxRequestIDKey, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// AccessLog writes one structured line per request.
func (m *Middleware) AccessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", c.GetString(ctxRequestIDKey)),
		}
		if user, ok := currentUser(c); ok {
			fields = append(fields, zap.String("user_id", user.ID), zap.String("role", string(user.Role)))
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			m.logger.Error("request", fields...)
			return
		}
		m.logger.Info("request", fields...)
	}
}

// CORSMiddleware allows Cross-Origin requests
func (m *Middleware) CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "X-Request-ID, Retry-After")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// SecurityHeaders adds security headers to prevent common attacks
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("X-Content-Type-Options", "nosniff")
		c.Writer.Header().Set("X-Frame-Options", "DENY")
		c.Writer.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Writer.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		c.Writer.Header().Set("Cache-Control", "no-store")

		c.Next()
	}
}

// RequestSizeLimiter limits request body size to prevent DoS
func RequestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

func currentUser(c *gin.Context) (entities.User, bool) {
	v, ok := c.Get(ctxUserKey)
	if !ok {
		return entities.User{}, false
	}
	user, ok := v.(entities.User)
	return user, ok
}
