package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-bot/internal/config"
	apperrors "github.com/spec-kit/helpdesk-bot/pkg/util/errorutil"
)

const principalKey = "auth_principal"

// Principal represents the authenticated caller.
type Principal struct {
	StaffID string
	Name    string
}

// Middleware validates bearer tokens against the staff allow-list.
type Middleware struct {
	tokens *TokenManager
	staff  config.StaffConfig
}

// NewMiddleware constructs middleware.
func NewMiddleware(tokens *TokenManager, staff config.StaffConfig) *Middleware {
	return &Middleware{tokens: tokens, staff: staff}
}

// Handle enforces authentication for protected routes.
func (m *Middleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(parts[1])
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}
	// allow-list membership is re-checked on every request
	if !m.staff.IsStaff(claims.StaffID) {
		return apperrors.NewForbidden("staff member is no longer allowed")
	}

	c.Locals(principalKey, &Principal{StaffID: claims.StaffID, Name: m.staff.Names[claims.StaffID]})
	return c.Next()
}

// PrincipalFromContext retrieves the authenticated entity.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}
