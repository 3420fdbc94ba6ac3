package handler

import (
	"io"
	"net/http"

	"ecoadvisor-go/internal/model"
	"ecoadvisor-go/internal/service"
	"ecoadvisor-go/pkg/ecoapi"
	"ecoadvisor-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// UploadHandler 负责处理所有与文件上传相关的 API 请求。
type UploadHandler struct {
	uploadService service.UploadService
}

// NewUploadHandler 创建一个新的 UploadHandler 实例。
func NewUploadHandler(uploadService service.UploadService) *UploadHandler {
	return &UploadHandler{uploadService: uploadService}
}

func (h *UploadHandler) state() gin.H {
	return gin.H{
		"files": h.uploadService.Entries(),
		"ready": h.uploadService.Ready(),
	}
}

// ListFiles 返回已选择的文件和知识库状态。
func (h *UploadHandler) ListFiles(c *gin.Context) {
	respondOK(c, h.state())
}

// SelectFiles 接收 multipart 表单中的 files 字段，登记为待上传文件。
func (h *UploadHandler) SelectFiles(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的 multipart 请求")
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		respondErr(c, service.ErrNoFiles)
		return
	}

	selected := make([]model.FileUploadEntry, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			respondErr(c, ecoapi.NewFileReadError(fh.Filename, err))
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			respondErr(c, ecoapi.NewFileReadError(fh.Filename, err))
			return
		}
		selected = append(selected, h.uploadService.Select(fh.Filename, model.BytesSource(data)))
	}
	log.Infof("SelectFiles: 已选择 %d 个文件", len(selected))
	respondOK(c, h.state())
}

// RemoveFile 移除一个已选择的文件。
func (h *UploadHandler) RemoveFile(c *gin.Context) {
	if err := h.uploadService.Remove(c.Param("id")); err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, h.state())
}

// UploadAll 上传所有未上传的文件。
func (h *UploadHandler) UploadAll(c *gin.Context) {
	uploaded, err := h.uploadService.UploadAll(c.Request.Context())
	if err != nil {
		log.Error("UploadAll: 上传失败", err)
		respondErr(c, err)
		return
	}
	state := h.state()
	state["uploaded"] = uploaded
	respondOK(c, state)
}

// Process 触发知识库处理。
func (h *UploadHandler) Process(c *gin.Context) {
	names, err := h.uploadService.Process(c.Request.Context())
	if err != nil {
		log.Error("Process: 知识库处理失败", err)
		respondErr(c, err)
		return
	}
	state := h.state()
	state["processed"] = names
	respondOK(c, state)
}
