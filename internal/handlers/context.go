package handlers

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

func parseIntQuery(c *gin.Context, name string, fallback int) int {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}

// accountParam extracts the account address from the route.
func accountParam(c *gin.Context) string {
	return strings.TrimSpace(c.Param("account"))
}
