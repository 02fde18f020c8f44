package utils

import "github.com/gin-gonic/gin"

// Success writes a success JSON response.
func Success(c *gin.Context, data interface{}) {
	c.JSON(200, gin.H{
		"code": 0,
		"msg":  "ok",
		"data": data,
	})
}

// SuccessStatus writes a success JSON response with an explicit HTTP status.
func SuccessStatus(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{
		"code": 0,
		"msg":  "ok",
		"data": data,
	})
}

// Fail writes an error JSON response.
func Fail(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{
		"code": -1,
		"msg":  err.Error(),
	})
}

// FailData writes an error JSON response carrying a data payload, used when
// a refusal still describes an existing resource.
func FailData(c *gin.Context, status int, msg string, data interface{}) {
	c.JSON(status, gin.H{
		"code": -1,
		"msg":  msg,
		"data": data,
	})
}
