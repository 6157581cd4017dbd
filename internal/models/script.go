// internal/models/script.go
package models

// Scene 视频脚本中的一个场景，由脚本生成返回后不再修改
type Scene struct {
	Title        string `json:"title"`
	Script       string `json:"script"`
	VisualPrompt string `json:"visual_prompt"`
}

// ScriptData 一次脚本生成的完整结果，新结果整体替换旧值
type ScriptData struct {
	Title  string  `json:"title"`
	Scenes []Scene `json:"scenes"`
}

// GroundingChunkWeb 搜索增强返回的网页引用
type GroundingChunkWeb struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

// GroundingChunk 引用元数据，展示前需过滤出带 web 的条目
type GroundingChunk struct {
	Web *GroundingChunkWeb `json:"web,omitempty"`
}

// GenerationStatus 脚本生成操作的状态
type GenerationStatus string

const (
	GenerationIdle    GenerationStatus = "idle"
	GenerationPending GenerationStatus = "pending"
	GenerationReady   GenerationStatus = "ready"
	GenerationFailed  GenerationStatus = "failed"
)

// GenerationSnapshot 控制器状态的一个只读快照，供前端轮询/刷新
type GenerationSnapshot struct {
	GenerationID    string           `json:"generation_id"`
	Status          GenerationStatus `json:"status"`
	Script          *ScriptData      `json:"script,omitempty"`
	Citations       []GroundingChunk `json:"citations,omitempty"`
	Images          map[int]string   `json:"images"`
	ImageErrors     map[int]string   `json:"image_errors"`
	EligibleScenes  int              `json:"eligible_scenes"`
	CompletedImages int              `json:"completed_images"`
	ExportReady     bool             `json:"export_ready"`
	Error           string           `json:"error,omitempty"`
}
