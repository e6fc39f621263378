// README: HTTP helper utilities for error mapping.
package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"primetransportes/internal/modules/corrida"
)

func writeCorridaError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, corrida.ErrBadRequest), errors.Is(err, corrida.ErrInvalidStatus):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, corrida.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, corrida.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, corrida.ErrInvalidTransition), errors.Is(err, corrida.ErrOSAssigned):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
