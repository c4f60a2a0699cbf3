package auth

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/MikaelConecto/services-splitted-stacks/misc"
)

const ctxUserKey = "authUser"

// Middleware resolves the bearer token and rejects inactive users before
// any handler runs; no mutation happens for an inactive caller.
func Middleware(p Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if token == "" {
			c.AbortWithStatusJSON(401, misc.StatusErr(ErrInvalidToken.Error()))
			return
		}

		u, err := p.UserByToken(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(401, misc.StatusErr(ErrInvalidToken.Error()))
			return
		}
		if !u.IsActive {
			c.AbortWithStatusJSON(401, misc.StatusErr(ErrUserInactive.Error()))
			return
		}

		c.Set(ctxUserKey, u)
		c.Next()
	}
}

func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if u := GetUser(c); u == nil || !u.IsAdmin {
			c.AbortWithStatusJSON(401, misc.StatusErr("unauthorized"))
			return
		}
		c.Next()
	}
}

func GetUser(c *gin.Context) *User {
	if v, ok := c.Get(ctxUserKey); ok {
		if u, ok := v.(*User); ok {
			return u
		}
	}
	return nil
}
