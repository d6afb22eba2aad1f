package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"
)

const RoleAdmin = "admin"

// OperatorClaims identify a staff caller. TenantID scopes the token to one
// tenant; an admin role carries platform-wide authority.
type OperatorClaims struct {
	Role     string `json:"role"`
	TenantID string `json:"tenant_id"`
	jwt.RegisteredClaims
}

func OperatorClaimsFromToken(tokenStr string, secret []byte) (*OperatorClaims, error) {
	var claims OperatorClaims
	tkn, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errors.New("unexpected sign method")
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !tkn.Valid {
		return nil, errors.New("invalid token")
	}
	return &claims, nil
}

type OperatorAuth struct {
	JWTSecret []byte
}

func (m *OperatorAuth) RequireOperator(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get("Authorization")
		tokenStr := strings.TrimPrefix(header, "Bearer ")
		if tokenStr == "" || tokenStr == header {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
		}

		claims, err := OperatorClaimsFromToken(tokenStr, m.JWTSecret)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
		}

		c.Set("operator_id", claims.Subject)
		c.Set("operator_role", claims.Role)
		c.Set("operator_tenant", claims.TenantID)

		return next(c)
	}
}

// OperatorMayAct reports whether the caller holds authority over the tenant:
// either a token scoped to that tenant or a platform admin.
func OperatorMayAct(c echo.Context, tenantID string) bool {
	if role, _ := c.Get("operator_role").(string); role == RoleAdmin {
		return true
	}
	scoped, _ := c.Get("operator_tenant").(string)
	return scoped != "" && scoped == tenantID
}

// HashPIN prepares a kitchen PIN for storage. The cleartext value is never
// persisted or logged.
func HashPIN(pin string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func CheckPIN(hash, presented string) bool {
	if hash == "" || presented == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(presented)) == nil
}
