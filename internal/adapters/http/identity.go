package http

import (
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"github.com/classmeet/server/internal/adapters/signal"
	"github.com/classmeet/server/internal/domain"
)

// IdentityMiddleware turns the session the auth flow populated into a
// verified identity for the signaling core. Credential validation is
// not this server's job: by the time uid/name/role sit in the session
// the token has already been checked upstream.
func IdentityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		s := sessions.Default(c)

		uid, _ := s.Get("uid").(string)
		name, _ := s.Get("name").(string)
		role, _ := s.Get("role").(string)

		if name == "" {
			name = domain.NewGuestName()
		}
		identity, err := domain.NewIdentity(domain.UserID(uid), name, domain.Role(role))
		if err != nil {
			identity = domain.Identity{DisplayName: domain.NewGuestName(), Role: domain.RoleGuest}
		}

		c.Set(signal.IdentityKey, identity)
		c.Next()
	}
}
