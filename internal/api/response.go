package api

import (
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/fiberspec/internal/errors"
	"github.com/wfunc/fiberspec/internal/middleware"
)

// SuccessResponse 成功响应
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// PageResponse 分页响应
type PageResponse struct {
	Items    interface{} `json:"items"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
	Total    int64       `json:"total"`
}

// renderError 按错误码输出错误响应
func renderError(c *gin.Context, err error) {
	var appErr *errors.AppError
	if !stderrors.As(err, &appErr) {
		appErr = errors.Wrap(err, errors.ErrUnknown)
	}
	c.JSON(appErr.HTTPStatus(), errors.NewErrorResponse(appErr, c.GetHeader(middleware.RequestIDHeader)))
}

func badRequest(c *gin.Context, err error) {
	appErr := errors.Wrap(err, errors.ErrInvalidParam)
	c.JSON(http.StatusBadRequest, errors.NewErrorResponse(appErr, c.GetHeader(middleware.RequestIDHeader)))
}
