// auth.go
//
// Authentication and role gates for qatrack
// Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC
//
// This file is part of qatrack.
// qatrack is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published by the Free Software
// Foundation, either version 3 of the License, or (at your option) any later version.
// qatrack is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY;
// without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
// See the GNU Affero General Public License for more details.
// You should have received a copy of the GNU Affero General Public License along with qatrack.
// If not, see <https://www.gnu.org/licenses/>.
// Additional terms under GNU AGPL version 3 section 7:
// a) The reasonable legal notice of original copyright and author attribution must be preserved
//    by including the string: "Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC"
//    in this material, copies, or source code of derived works.

package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/qatrack/internal/auth"
	"github.com/localnerve/qatrack/internal/models"
	"github.com/localnerve/qatrack/internal/types"
	"gorm.io/gorm"
)

const userKey = "user"

// Authenticate validates the bearer token and loads the calling user.
// The token may also come from the token query parameter so links to
// evidence files work from the browser.
func Authenticate(issuer *auth.Issuer, db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := bearerToken(c)
		if token == "" {
			return types.NewError(fiber.StatusUnauthorized, "Authentication required", "auth.missing")
		}

		claims, err := issuer.Parse(token)
		if err != nil {
			return types.NewError(fiber.StatusUnauthorized, "Invalid or expired token", "auth.invalid")
		}

		// The stored role wins over the token claim, so role changes apply at once
		var user models.User
		if err := db.Where("id = ?", claims.Subject).First(&user).Error; err != nil {
			return types.NewError(fiber.StatusUnauthorized, "User no longer exists", "auth.invalid")
		}

		c.Locals(userKey, &user)
		return c.Next()
	}
}

func bearerToken(c *fiber.Ctx) string {
	header := c.Get(fiber.HeaderAuthorization)
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return strings.TrimSpace(c.Query("token"))
}

// RequireRoles allows the request through only for the given roles.
func RequireRoles(roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := CurrentUser(c)
		if user == nil {
			return types.NewError(fiber.StatusUnauthorized, "Authentication required", "auth.missing")
		}
		for _, role := range roles {
			if user.Role == role {
				return c.Next()
			}
		}
		return types.NewError(fiber.StatusForbidden, "Insufficient permissions", "auth.role")
	}
}

// CurrentUser returns the authenticated user, or nil.
func CurrentUser(c *fiber.Ctx) *models.User {
	user, _ := c.Locals(userKey).(*models.User)
	return user
}

// CurrentUserID returns the authenticated user's id, or "".
func CurrentUserID(c *fiber.Ctx) string {
	if user := CurrentUser(c); user != nil {
		return user.ID
	}
	return ""
}
