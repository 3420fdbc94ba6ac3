package model

import (
	"bytes"
	"io"
	"os"
)

// FileSource 是待上传文件内容的句柄。
type FileSource interface {
	Open() (io.ReadCloser, error)
}

// BytesSource 持有已读入内存的文件内容（例如浏览器 multipart 上传）。
type BytesSource []byte

// Open 实现 FileSource。
func (b BytesSource) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b)), nil
}

// PathSource 指向本地磁盘上的文件。
type PathSource string

// Open 实现 FileSource。
func (p PathSource) Open() (io.ReadCloser, error) {
	return os.Open(string(p))
}

// FileUploadEntry 代表用户选中、等待上传到远端知识库的文件。不做持久化。
type FileUploadEntry struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Source     FileSource `json:"-"`
	Uploaded   bool       `json:"uploaded"`
	SelectedAt LocalTime  `json:"selectedAt"`
}
