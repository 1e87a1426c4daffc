package api

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

func intQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

// joinRawJSON splices pre-encoded JSON documents into an array body.
func joinRawJSON(docs []string) string {
	return strings.Join(docs, ",")
}
