package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

func jsonError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error": gin.H{
			"code":    strconv.Itoa(status),
			"message": message,
		},
	})
}
