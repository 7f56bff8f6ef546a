package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
)

// actorFromCtx reads the authenticated user id and role placed in Locals
// by the auth middleware.
func actorFromCtx(c *fiber.Ctx) (int64, string, error) {
	userIDStr, ok := c.Locals("user_id").(string)
	if !ok {
		return 0, "", strconv.ErrSyntax
	}
	role, ok := c.Locals("role").(string)
	if !ok {
		return 0, "", strconv.ErrSyntax
	}
	userID, err := strconv.ParseInt(userIDStr, 10, 64)
	if err != nil {
		return 0, "", err
	}
	return userID, role, nil
}

func parsePathID(c *fiber.Ctx, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Params(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, strconv.ErrSyntax
	}
	return id, nil
}
