package server

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	obscontext "github.com/smallbiznis/sponsornet/internal/observability/context"
)

const (
	contextUserIDKey = "user_id"
	contextRoleKey   = "role"

	RoleAdmin  = "admin"
	RoleMember = "member"
)

// Claims is the bearer token body. Subject carries the user id.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// JWTAuthRequired validates an HS256 bearer token and records the caller as
// the request actor.
func (s *Server) JWTAuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" || len(s.jwtSecret) == 0 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		claims, err := parseToken(strings.TrimSpace(raw), s.jwtSecret)
		if err != nil {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		userID, err := snowflake.ParseString(claims.Subject)
		if err != nil || userID <= 0 {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		role := strings.ToLower(strings.TrimSpace(claims.Role))
		if role != RoleAdmin {
			role = RoleMember
		}

		actorType := "user"
		if role == RoleAdmin {
			actorType = "admin"
		}
		ctx := obscontext.WithActor(c.Request.Context(), actorType, userID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Set(contextUserIDKey, userID)
		c.Set(contextRoleKey, role)
		c.Next()
	}
}

func parseToken(raw string, secret []byte) (*Claims, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrUnauthorized
	}
	return claims, nil
}

func userIDFromContext(c *gin.Context) (snowflake.ID, bool) {
	value, ok := c.Get(contextUserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := value.(snowflake.ID)
	return id, ok && id > 0
}

func isAdmin(c *gin.Context) bool {
	return c.GetString(contextRoleKey) == RoleAdmin
}
