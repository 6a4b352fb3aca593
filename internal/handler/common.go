package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// UserIDHeader 呼叫者身分，由上游 gateway 驗證後帶入
const UserIDHeader = "X-User-ID"

func BindJson(c *gin.Context, obj interface{}) error {
	if err := c.ShouldBindJSON(obj); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request format",
		})
		return err
	}
	return nil
}

// BindOptionalJson body 可省略；沒有 body 或內容為空 (含 chunked) 時 obj 保持零值
func BindOptionalJson(c *gin.Context, obj interface{}) error {
	if c.Request.Body == nil || c.Request.Body == http.NoBody {
		return nil
	}
	if err := c.ShouldBindJSON(obj); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request format",
		})
		return err
	}
	return nil
}

// ParseIDParam 路徑參數必須是正整數
func ParseIDParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid " + name,
		})
		return 0, false
	}
	return id, true
}

// ActorID 讀取 X-User-ID，缺少或格式錯誤回 401
func ActorID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.GetHeader(UserIDHeader), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "Missing or invalid " + UserIDHeader,
		})
		return 0, false
	}
	return id, true
}
