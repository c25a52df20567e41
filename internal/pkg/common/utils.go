package common

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// GenerateUUID 生成 UUID
func GenerateUUID() string {
	return uuid.New().String()
}

// WriteError 依 CustomError 的狀態碼寫入錯誤響應，debug 模式附上原始錯誤
func WriteError(c *gin.Context, err error) {
	ce := AsCustomError(err)
	resp := ErrorResponse{
		Error: ce.Message,
		Code:  ce.Code,
	}
	if ce.Err != nil && gin.Mode() == gin.DebugMode {
		resp.Details = ce.Err.Error()
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(ce.Status, resp)
}
