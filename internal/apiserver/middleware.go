package apiserver

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
)

const (
	authorizationHeaderKey  = "authorization"
	authorizationTypeBearer = "bearer"
)

// limiters holds one rate.Limiter per authenticated user, matching the
// teacher's api/backtest.go per-user limiter map.
var (
	limitersMu sync.Mutex
	limiters   = map[string]*rate.Limiter{}
)

func limiterFor(userID string) *rate.Limiter {
	limitersMu.Lock()
	defer limitersMu.Unlock()
	l, ok := limiters[userID]
	if !ok {
		l = rate.NewLimiter(rate.Every(time.Second), 5)
		limiters[userID] = l
	}
	return l
}

// authentication validates a "bearer <username>.<secret>" API key: the
// username half is a non-secret lookup token (bcrypt hashes are salted,
// so they cannot be looked up by equality), the secret half is verified
// against the user's bcrypt hash, then the request is rate-limited.
// Matches the teacher's api/middleware.go prefix-lookup + bcrypt-compare +
// per-user limiter pattern.
func (server *Server) authentication(c *gin.Context) {
	header := c.GetHeader(authorizationHeaderKey)
	if len(header) == 0 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse(errors.New("authorization header is not provided")))
		return
	}
	fields := strings.Fields(header)
	if len(fields) < 2 || strings.ToLower(fields[0]) != authorizationTypeBearer {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse(errors.New("invalid authorization header format")))
		return
	}
	apiKey := fields[1]
	username, secret, ok := strings.Cut(apiKey, ".")
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse(errors.New("please input a valid API key")))
		return
	}

	user, err := server.store.GetUserByUsername(c, username)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse(errors.New("invalid API key")))
		return
	}
	if !VerifyAPIKey(user.APIKeyHash, secret) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse(errors.New("invalid API key")))
		return
	}

	if !limiterFor(user.Username).Allow() {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
		return
	}

	c.Set("username", user.Username)
	c.Next()
}

// HashAPIKey bcrypt-hashes a raw API key for storage, matching the
// teacher's api/middleware.go bcrypt usage.
func HashAPIKey(apiKey string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(apiKey), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyAPIKey reports whether apiKey matches hash.
func VerifyAPIKey(hash, apiKey string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(apiKey)) == nil
}
