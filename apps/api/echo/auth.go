package echoapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/examreg/core"
)

const (
	contextClaimsKey = "claims"
	tokenAudience    = "examreg"
)

var (
	errMissingToken = echo.NewHTTPError(http.StatusUnauthorized, "missing or malformed jwt")
	errInvalidToken = echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired jwt")
	errUnauthorized = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errForbidden    = echo.NewHTTPError(http.StatusForbidden, "permission denied")
)

// Claims represents the authorization claims transmitted via a JWT.
// School users carry their school's ID; admins may act on any school.
type Claims struct {
	jwt.RegisteredClaims
	SchoolID string `json:"school_id,omitempty"`
	IsAdmin  bool   `json:"is_admin,omitempty"`
}

func NewClaims(issuer, subject, schoolID string, isAdmin bool, ttl time.Duration) *Claims {
	now := time.Now()
	return &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{tokenAudience},
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		SchoolID: schoolID,
		IsAdmin:  isAdmin,
	}
}

// GenerateToken signs claims with HS256.
func GenerateToken(claims *Claims, secretKey string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	ss, err := token.SignedString([]byte(secretKey))
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

// jwtMiddleware verifies the bearer token and stores its claims in the context.
func jwtMiddleware(secretKey string) echo.MiddlewareFunc {
	key := []byte(secretKey)
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(tokenAudience),
		jwt.WithExpirationRequired(),
	)
	keyFunc := func(*jwt.Token) (interface{}, error) { return key, nil }

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			auth := ctx.Request().Header.Get(echo.HeaderAuthorization)
			raw, ok := strings.CutPrefix(auth, "Bearer ")
			if !ok || strings.TrimSpace(raw) == "" {
				return errMissingToken
			}
			claims := new(Claims)
			if _, err := parser.ParseWithClaims(strings.TrimSpace(raw), claims, keyFunc); err != nil {
				return errInvalidToken
			}
			ctx.Set(contextClaimsKey, claims)
			return next(ctx)
		}
	}
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if claims, ok := ctx.Get(contextClaimsKey).(*Claims); ok {
		return *claims, nil
	}
	return Claims{}, errUnauthorized
}

func adminMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if claims.IsAdmin {
				return next(ctx)
			}
			return errForbidden
		}
	}
}

// contextPerson identifies the caller in log entries.
func contextPerson(ctx echo.Context) core.Person {
	var p core.Person
	if claims, err := getContextClaims(ctx); err == nil {
		p.ID = claims.Subject
		p.Username = claims.SchoolID
	}
	return p
}
