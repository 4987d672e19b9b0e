package v1

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/hrygo/vectorwave/ai/observability/logging"
)

const (
	issuer   = "vectorwave"
	ownerKey = "owner"
)

var errUnauthenticated = errors.New("missing or invalid bearer token")

// MintToken signs an HS256 token whose subject is the owner id.
func MintToken(secret, owner string, ttl time.Duration) (string, error) {
	if owner == "" {
		return "", errors.New("owner must not be empty")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   owner,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// Authenticator validates bearer tokens.
type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// Authenticate returns the owner named by the Authorization header.
func (a *Authenticator) Authenticate(authHeader string) (string, error) {
	token, ok := strings.CutPrefix(authHeader, "Bearer ")
	if !ok || token == "" {
		return "", errUnauthenticated
	}
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(issuer), jwt.WithExpirationRequired())
	if err != nil {
		return "", errors.Wrap(errUnauthenticated, err.Error())
	}
	if claims.Subject == "" {
		return "", errUnauthenticated
	}
	return claims.Subject, nil
}

// Middleware rejects unauthenticated requests and stores the owner on the
// echo context and in the request logger.
func (a *Authenticator) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			owner, err := a.Authenticate(c.Request().Header.Get(echo.HeaderAuthorization))
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, errUnauthenticated.Error()).SetInternal(err)
			}
			c.Set(ownerKey, owner)
			req := c.Request()
			c.SetRequest(req.WithContext(logging.With(req.Context(), "user_id", owner)))
			return next(c)
		}
	}
}

func ownerOf(c echo.Context) string {
	owner, _ := c.Get(ownerKey).(string)
	return owner
}
