// internal/errors/errors.go
package errors

import (
	"errors"
	"fmt"
)

// ErrorType 定义错误类型
type ErrorType string

const (
	// 各操作对应的错误类型
	ErrorTypeValidation      ErrorType = "validation_error"
	ErrorTypeParse           ErrorType = "parse_error"
	ErrorTypeRequest         ErrorType = "request_error"
	ErrorTypeImageGeneration ErrorType = "image_generation_error"
	ErrorTypeChat            ErrorType = "chat_error"
	ErrorTypeConflict        ErrorType = "conflict"
)

// AppError 应用程序错误结构
type AppError struct {
	Type    ErrorType
	Message string // 面向用户的提示文本
	Err     error
	Code    string
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap 实现错误链接
func (e *AppError) Unwrap() error {
	return e.Err
}

// UserMessage 返回适合直接展示给用户的文本
func (e *AppError) UserMessage() string {
	return e.Message
}

// NewAppError 创建新的 AppError
func NewAppError(errType ErrorType, message string, originalError error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Err:     originalError,
		Code:    generateErrorCode(errType),
	}
}

// NewValidationError 创建输入校验错误（可通过修正输入恢复）
func NewValidationError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeValidation, message, originalError)
}

// NewParseError 创建结构化回复解析错误
func NewParseError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeParse, message, originalError)
}

// NewRequestError 创建远程服务请求错误（网络/鉴权/服务异常）
func NewRequestError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeRequest, message, originalError)
}

// NewImageGenerationError 创建图像生成错误（仅影响单个场景）
func NewImageGenerationError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeImageGeneration, message, originalError)
}

// NewChatError 创建聊天错误（仅影响单次交流，会话保持可用）
func NewChatError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeChat, message, originalError)
}

// NewConflictError 创建冲突错误（例如重复提交）
func NewConflictError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeConflict, message, originalError)
}

// IsValidationError 检查是否为输入校验错误
func IsValidationError(err error) bool {
	return isType(err, ErrorTypeValidation)
}

// IsParseError 检查是否为解析错误
func IsParseError(err error) bool {
	return isType(err, ErrorTypeParse)
}

// IsRequestError 检查是否为请求错误
func IsRequestError(err error) bool {
	return isType(err, ErrorTypeRequest)
}

// IsImageGenerationError 检查是否为图像生成错误
func IsImageGenerationError(err error) bool {
	return isType(err, ErrorTypeImageGeneration)
}

// IsChatError 检查是否为聊天错误
func IsChatError(err error) bool {
	return isType(err, ErrorTypeChat)
}

// IsConflictError 检查是否为冲突错误
func IsConflictError(err error) bool {
	return isType(err, ErrorTypeConflict)
}

func isType(err error, errType ErrorType) bool {
	var appError *AppError
	if errors.As(err, &appError) {
		return appError.Type == errType
	}
	return false
}

// generateErrorCode 根据错误类型生成错误代码
func generateErrorCode(errType ErrorType) string {
	switch errType {
	case ErrorTypeValidation:
		return "VALIDATION_ERROR"
	case ErrorTypeParse:
		return "PARSE_ERROR"
	case ErrorTypeRequest:
		return "REQUEST_ERROR"
	case ErrorTypeImageGeneration:
		return "IMAGE_GENERATION_ERROR"
	case ErrorTypeChat:
		return "CHAT_ERROR"
	case ErrorTypeConflict:
		return "CONFLICT"
	default:
		return "UNKNOWN_ERROR"
	}
}

// WrapError 包装现有错误
func WrapError(err error, message string, errType ErrorType) error {
	if err == nil {
		return nil
	}

	var appError *AppError
	if errors.As(err, &appError) {
		// 已经是 AppError 时只追加消息，保留原有类型
		return &AppError{
			Type:    appError.Type,
			Message: fmt.Sprintf("%s: %s", message, appError.Message),
			Err:     appError,
			Code:    appError.Code,
		}
	}

	return NewAppError(errType, message, err)
}
