// internal/models/export.go
package models

import "time"

// ExportResult 导出文档的结果
type ExportResult struct {
	Title       string    `json:"title"`
	Filename    string    `json:"filename"`
	Content     string    `json:"content"`
	GeneratedAt time.Time `json:"generated_at"`
	FilePath    string    `json:"file_path,omitempty"`
	FileSize    int64     `json:"file_size,omitempty"`
}
