package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// errorMapping translates one service sentinel into an HTTP response.
type errorMapping struct {
	sentinel error
	status   int
	message  string
}

// respondMapped writes the response for the first mapping whose sentinel
// matches err via errors.Is, so wrapped sentinels resolve too. Unmatched
// errors become a 500 carrying the fallback message; internal error text
// never reaches the client.
func respondMapped(c *gin.Context, err error, mappings []errorMapping, fallback string) {
	if err == nil {
		c.Status(http.StatusOK)
		return
	}

	for _, m := range mappings {
		if m.sentinel != nil && errors.Is(err, m.sentinel) {
			c.JSON(m.status, NewErrorResponse(c, m.message))
			return
		}
	}

	c.JSON(http.StatusInternalServerError, NewErrorResponse(c, fallback))
}
