// internal/services/export_service.go
package services

import (
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/amukhametyanov/youtube-scripter-and-visualizer/internal/models"
	"github.com/amukhametyanov/youtube-scripter-and-visualizer/internal/utils"
)

// 导出文档中没有图像的场景使用的占位块
const exportVisualPlaceholder = "<p><i>Visual not available.</i></p>"

// 文件名中保留字母数字，其余字符替换为下划线
var filenameSlugPattern = regexp.MustCompile(`[^a-zA-Z0-9]`)

// ExportStorage 导出文件的持久化操作
type ExportStorage interface {
	SaveTextFile(dirPath, filename string, content []byte) error
}

// ExportService 把当前脚本和已生成的图像组装成单个自包含的HTML文档。
// 图像以数据URI内联，导出文件离线打开时完整可用。
type ExportService struct {
	studio    *StudioService
	storage   ExportStorage
	exportDir string
}

// NewExportService 创建导出服务
func NewExportService(studio *StudioService, storage ExportStorage, exportDir string) *ExportService {
	return &ExportService{
		studio:    studio,
		storage:   storage,
		exportDir: exportDir,
	}
}

// BuildExport 生成当前脚本的HTML导出。
// 仅在所有符合条件的场景都完成图像尝试后可用；缺图的场景
// 渲染占位文本，不阻塞导出。
func (s *ExportService) BuildExport() (*models.ExportResult, error) {
	script, images, err := s.studio.ExportState()
	if err != nil {
		return nil, err
	}

	content := s.renderHTML(script, images)
	filename := SlugifyTitle(script.Title) + ".html"

	result := &models.ExportResult{
		Title:       script.Title,
		Filename:    filename,
		Content:     content,
		GeneratedAt: time.Now(),
		FileSize:    int64(len(content)),
	}

	if s.storage != nil {
		if err := s.storage.SaveTextFile(s.exportDir, filename, []byte(content)); err != nil {
			// 持久化失败不阻断下载，文件内容仍然返回给页面
			utils.GetLogger().Warn("导出文件保存失败", map[string]interface{}{
				"filename": filename,
				"err":      err.Error(),
			})
		} else {
			result.FilePath = s.exportDir + "/" + filename
		}
	}

	utils.GetMetricsCollector().IncrementCounter("exports_generated")
	return result, nil
}

// renderHTML 拼装导出文档
func (s *ExportService) renderHTML(script *models.ScriptData, images map[int]string) string {
	var sb strings.Builder

	sb.WriteString("<!DOCTYPE html>\n")
	sb.WriteString("<html lang=\"en\">\n<head>\n")
	sb.WriteString("<meta charset=\"UTF-8\">\n")
	sb.WriteString("<meta name=\"viewport\" content=\"width=device-width, initial-scale=1.0\">\n")
	sb.WriteString(fmt.Sprintf("<title>%s</title>\n", html.EscapeString(script.Title)))
	sb.WriteString("<style>\n")
	sb.WriteString("body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Helvetica, Arial, sans-serif; line-height: 1.6; padding: 20px; background-color: #111827; color: #d1d5db; }\n")
	sb.WriteString(".container { max-width: 800px; margin: auto; }\n")
	sb.WriteString("h1 { color: #60a5fa; text-align: center; }\n")
	sb.WriteString("h2 { color: #3b82f6; border-bottom: 1px solid #374151; padding-bottom: 5px; }\n")
	sb.WriteString("h3 { color: #9ca3af; margin-top: 10px; margin-bottom: 20px; font-weight: 500;}\n")
	sb.WriteString("p { white-space: pre-wrap; }\n")
	sb.WriteString("img { max-width: 100%; height: auto; border-radius: 8px; margin-top: 15px; }\n")
	sb.WriteString(".scene { background-color: #1f2937; padding: 20px; border-radius: 8px; margin-bottom: 20px; border: 1px solid #374151;}\n")
	sb.WriteString("</style>\n</head>\n<body>\n")
	sb.WriteString("<div class=\"container\">\n")
	sb.WriteString(fmt.Sprintf("<h1>%s</h1>\n", html.EscapeString(script.Title)))

	for i, scene := range script.Scenes {
		sb.WriteString("<div class=\"scene\">\n")
		sb.WriteString(fmt.Sprintf("<h2>Scene %d</h2>\n", i+1))
		sb.WriteString(fmt.Sprintf("<h3>%s</h3>\n", html.EscapeString(scene.Title)))
		sb.WriteString(fmt.Sprintf("<p>%s</p>\n", html.EscapeString(scene.Script)))
		if url, ok := images[i]; ok && url != "" {
			sb.WriteString(fmt.Sprintf("<img src=\"%s\" alt=\"%s\">\n", url, html.EscapeString(scene.VisualPrompt)))
		} else {
			sb.WriteString(exportVisualPlaceholder + "\n")
		}
		sb.WriteString("</div>\n")
	}

	sb.WriteString("</div>\n</body>\n</html>\n")
	return sb.String()
}

// SlugifyTitle 把标题转成安全的文件名主体：
// 非字母数字字符替换为下划线，整体转小写
func SlugifyTitle(title string) string {
	return strings.ToLower(filenameSlugPattern.ReplaceAllString(title, "_"))
}
