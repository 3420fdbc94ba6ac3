package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sync"
	"time"

	"ecoadvisor-go/internal/config"
	"ecoadvisor-go/internal/model"
	"ecoadvisor-go/pkg/ecoapi"
	"ecoadvisor-go/pkg/log"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrNoFiles 表示没有待上传的文件。
	ErrNoFiles = errors.New("no files selected for upload")
	// ErrNothingUploaded 表示还没有成功上传的文件，无法触发知识库处理。
	ErrNothingUploaded = errors.New("no uploaded files to process")
	// ErrUploadEntryNotFound 表示要移除的条目不存在。
	ErrUploadEntryNotFound = errors.New("upload entry not found")
	// ErrUploadInProgress 表示已有一批文件正在上传或处理。
	ErrUploadInProgress = errors.New("upload already in progress")
	// ErrFileTooLarge 表示文件超过 upload.max_file_bytes。
	ErrFileTooLarge = errors.New("file exceeds size limit")
)

// FileUploader 是上传协调器依赖的远端接口，由 *ecoapi.Client 实现。
type FileUploader interface {
	UploadFile(ctx context.Context, name string, data []byte) error
}

// KnowledgeBaseAPI 在 FileUploader 之上增加知识库处理。
type KnowledgeBaseAPI interface {
	FileUploader
	ProcessFiles(ctx context.Context, names []string) error
}

// UploadService 管理用户选中的文件，并批量上传、触发知识库处理。
type UploadService interface {
	Select(name string, source model.FileSource) model.FileUploadEntry
	Remove(id string) error
	Entries() []model.FileUploadEntry
	UploadAll(ctx context.Context) ([]model.FileUploadEntry, error)
	Process(ctx context.Context) ([]string, error)
	Ready() bool
}

type uploadService struct {
	api          KnowledgeBaseAPI
	limit        int
	maxFileBytes int64

	mu      sync.Mutex
	entries []*model.FileUploadEntry
	busy    bool
	ready   bool
}

// NewUploadService 创建一个新的 UploadService 实例。
func NewUploadService(api KnowledgeBaseAPI, cfg config.UploadConfig) UploadService {
	return &uploadService{
		api:          api,
		limit:        cfg.MaxConcurrency,
		maxFileBytes: cfg.MaxFileBytes,
	}
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// newEntryID 由文件名、纳秒时间和随机后缀组成，允许同名文件并存。
func newEntryID(name string) string {
	return fmt.Sprintf("%s-%d-%s", unsafeNameChars.ReplaceAllString(name, "_"), time.Now().UnixNano(), uuid.NewString()[:8])
}

// Select 登记一个待上传文件。
func (s *uploadService) Select(name string, source model.FileSource) model.FileUploadEntry {
	entry := &model.FileUploadEntry{
		ID:         newEntryID(name),
		Name:       name,
		Source:     source,
		SelectedAt: model.LocalTime(time.Now()),
	}
	s.mu.Lock()
	s.entries = append(s.entries, entry)
	s.mu.Unlock()
	log.Infof("[Upload] 已选择文件: %s (%s)", name, entry.ID)
	return *entry
}

// Remove 移除一个条目，已上传的条目也可以移除。
func (s *uploadService) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.entries {
		if e.ID == id {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return nil
		}
	}
	return ErrUploadEntryNotFound
}

// Entries 按选择顺序返回所有条目的副本。
func (s *uploadService) Entries() []model.FileUploadEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.FileUploadEntry, len(s.entries))
	for i, e := range s.entries {
		out[i] = *e
	}
	return out
}

// Ready 返回知识库是否已完成一次处理。
func (s *uploadService) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

func (s *uploadService) acquire() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return ErrUploadInProgress
	}
	s.busy = true
	return nil
}

func (s *uploadService) release() {
	s.mu.Lock()
	s.busy = false
	s.mu.Unlock()
}

// UploadAll 并发上传所有未上传的条目。任一文件失败则整批失败，不标记任何条目。
func (s *uploadService) UploadAll(ctx context.Context) ([]model.FileUploadEntry, error) {
	if err := s.acquire(); err != nil {
		return nil, err
	}
	defer s.release()

	s.mu.Lock()
	var batch []model.FileUploadEntry
	for _, e := range s.entries {
		if !e.Uploaded {
			batch = append(batch, *e)
		}
	}
	s.mu.Unlock()

	if len(batch) == 0 {
		return nil, ErrNoFiles
	}

	log.Infof("[UploadAll] 开始上传 %d 个文件", len(batch))
	if err := uploadBatch(ctx, s.api, batch, s.limit, s.maxFileBytes); err != nil {
		log.Errorw("[UploadAll] 批量上传失败", "error", err)
		return nil, err
	}

	uploaded := make(map[string]bool, len(batch))
	for _, e := range batch {
		uploaded[e.ID] = true
	}
	s.mu.Lock()
	for _, e := range s.entries {
		if uploaded[e.ID] {
			e.Uploaded = true
		}
	}
	s.mu.Unlock()

	for i := range batch {
		batch[i].Uploaded = true
	}
	log.Infof("[UploadAll] %d 个文件上传成功", len(batch))
	return batch, nil
}

// Process 请求远端用已上传的文件更新知识库，成功后移除这些条目。
func (s *uploadService) Process(ctx context.Context) ([]string, error) {
	if err := s.acquire(); err != nil {
		return nil, err
	}
	defer s.release()

	s.mu.Lock()
	var names []string
	ids := make(map[string]bool)
	for _, e := range s.entries {
		if e.Uploaded {
			names = append(names, e.Name)
			ids[e.ID] = true
		}
	}
	s.mu.Unlock()

	if len(names) == 0 {
		return nil, ErrNothingUploaded
	}

	if err := s.api.ProcessFiles(ctx, names); err != nil {
		log.Errorw("[Process] 知识库处理失败", "files", names, "error", err)
		return nil, err
	}

	s.mu.Lock()
	remaining := s.entries[:0]
	for _, e := range s.entries {
		if !ids[e.ID] {
			remaining = append(remaining, e)
		}
	}
	s.entries = remaining
	s.ready = true
	s.mu.Unlock()

	log.Infof("[Process] 知识库已更新，文件: %v", names)
	return names, nil
}

// UploadBatch 读取并上传一批文件，全部成功才返回 nil。
// 第一个错误会取消其余上传；已到达服务端的文件不会回滚。limit <= 0 表示不限制并发。
func UploadBatch(ctx context.Context, uploader FileUploader, entries []model.FileUploadEntry, limit int) error {
	return uploadBatch(ctx, uploader, entries, limit, 0)
}

// uploadBatch 同 UploadBatch，maxBytes > 0 时单个文件最多读取 maxBytes 字节。
func uploadBatch(ctx context.Context, uploader FileUploader, entries []model.FileUploadEntry, limit int, maxBytes int64) error {
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for _, entry := range entries {
		entry := entry
		g.Go(func() error {
			data, err := readSource(entry, maxBytes)
			if err != nil {
				return ecoapi.NewFileReadError(entry.Name, err)
			}
			return uploader.UploadFile(gctx, entry.Name, data)
		})
	}
	return g.Wait()
}

// readSource 读取文件内容；超过 maxBytes 时只读到 maxBytes+1 字节就停止。
func readSource(entry model.FileUploadEntry, maxBytes int64) ([]byte, error) {
	if entry.Source == nil {
		return nil, errors.New("no file content")
	}
	rc, err := entry.Source.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	if maxBytes <= 0 {
		return io.ReadAll(rc)
	}
	data, err := io.ReadAll(io.LimitReader(rc, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrFileTooLarge, maxBytes)
	}
	return data, nil
}
