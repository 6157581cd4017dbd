// internal/api/error_codes.go
package api

// API错误代码常量
const (
	// 通用错误
	ErrorBadRequest    = "BAD_REQUEST"
	ErrorNotFound      = "NOT_FOUND"
	ErrorInternalError = "INTERNAL_ERROR"
	ErrorConflict      = "CONFLICT"

	// 脚本生成相关错误
	ErrorScriptRequestFailed = "SCRIPT_REQUEST_FAILED"
	ErrorScriptParseFailed   = "SCRIPT_PARSE_FAILED"
	ErrorGenerationPending   = "GENERATION_PENDING"

	// 图像相关错误
	ErrorImageGenerationFailed = "IMAGE_GENERATION_FAILED"

	// 聊天相关错误
	ErrorChatFailed = "CHAT_FAILED"

	// 导出相关错误
	ErrorExportFailed   = "EXPORT_FAILED"
	ErrorExportNotReady = "EXPORT_NOT_READY"
	ErrorExportEmpty    = "EXPORT_DATA_EMPTY"

	// LLM服务相关错误
	ErrorLLMServiceUnavailable = "LLM_SERVICE_UNAVAILABLE"
	ErrorAPIKeyMissing         = "API_KEY_MISSING"
)
