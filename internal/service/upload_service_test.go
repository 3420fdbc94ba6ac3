package service

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"ecoadvisor-go/internal/config"
	"ecoadvisor-go/internal/model"
	"ecoadvisor-go/pkg/ecoapi"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingSource struct{}

func (failingSource) Open() (io.ReadCloser, error) {
	return nil, os.ErrPermission
}

// endlessSource 永远读不完，用来确认大小限制不会把整个文件读进内存。
type endlessSource struct{ read *int64 }

func (s endlessSource) Open() (io.ReadCloser, error) {
	return io.NopCloser(&countingZeros{read: s.read}), nil
}

type countingZeros struct{ read *int64 }

func (z *countingZeros) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	*z.read += int64(len(p))
	return len(p), nil
}

func newUploadFixture() (*fakeRemote, UploadService) {
	remote := newFakeRemote()
	return remote, NewUploadService(remote, config.UploadConfig{MaxConcurrency: 2})
}

func TestUploadAllFailsWholeBatchWhenOneFileFails(t *testing.T) {
	remote, svc := newUploadFixture()
	svc.Select("a.pdf", model.BytesSource("a"))
	svc.Select("b.pdf", model.BytesSource("b"))
	svc.Select("c.pdf", model.BytesSource("c"))
	remote.uploadErr["b.pdf"] = &ecoapi.Error{Kind: ecoapi.KindServer, Message: "server error"}

	_, err := svc.UploadAll(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ecoapi.ErrServer))

	for _, e := range svc.Entries() {
		assert.False(t, e.Uploaded, e.Name)
	}
	_, err = svc.Process(context.Background())
	assert.True(t, errors.Is(err, ErrNothingUploaded))
}

func TestUploadAllMarksEveryEntryAndEnablesProcess(t *testing.T) {
	remote, svc := newUploadFixture()
	svc.Select("a.pdf", model.BytesSource("a"))
	svc.Select("b.pdf", model.BytesSource("b"))
	svc.Select("c.pdf", model.BytesSource("c"))

	uploaded, err := svc.UploadAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, uploaded, 3)
	assert.ElementsMatch(t, []string{"a.pdf", "b.pdf", "c.pdf"}, remote.uploaded)
	for _, e := range svc.Entries() {
		assert.True(t, e.Uploaded, e.Name)
	}

	names, err := svc.Process(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a.pdf", "b.pdf", "c.pdf"}, names)
	assert.True(t, svc.Ready())
	assert.Empty(t, svc.Entries())
}

func TestUploadAllWithoutFiles(t *testing.T) {
	_, svc := newUploadFixture()
	_, err := svc.UploadAll(context.Background())
	assert.True(t, errors.Is(err, ErrNoFiles))
}

func TestUploadAllSkipsAlreadyUploaded(t *testing.T) {
	remote, svc := newUploadFixture()
	svc.Select("a.pdf", model.BytesSource("a"))
	_, err := svc.UploadAll(context.Background())
	require.NoError(t, err)

	svc.Select("b.pdf", model.BytesSource("b"))
	uploaded, err := svc.UploadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, uploaded, 1)
	assert.Equal(t, "b.pdf", uploaded[0].Name)
	assert.Equal(t, []string{"a.pdf", "b.pdf"}, remote.uploaded)
}

func TestUploadAllReadFailureIsFileReadError(t *testing.T) {
	remote, svc := newUploadFixture()
	svc.Select("broken.pdf", failingSource{})

	_, err := svc.UploadAll(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ecoapi.ErrFileRead))
	assert.True(t, errors.Is(err, os.ErrPermission))
	assert.Empty(t, remote.uploaded)
}

func TestUploadAllRejectsOversizedFile(t *testing.T) {
	remote := newFakeRemote()
	svc := NewUploadService(remote, config.UploadConfig{MaxFileBytes: 4})
	svc.Select("big.pdf", model.BytesSource("too large"))

	_, err := svc.UploadAll(context.Background())
	assert.True(t, errors.Is(err, ErrFileTooLarge))
	assert.Empty(t, remote.uploaded)
}

func TestUploadAllStopsReadingAtSizeLimit(t *testing.T) {
	remote := newFakeRemote()
	svc := NewUploadService(remote, config.UploadConfig{MaxFileBytes: 1024})
	var read int64
	svc.Select("stream.bin", endlessSource{read: &read})

	_, err := svc.UploadAll(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFileTooLarge))
	assert.True(t, errors.Is(err, ecoapi.ErrFileRead))
	assert.Equal(t, int64(1025), read)
	assert.Empty(t, remote.uploaded)
	for _, e := range svc.Entries() {
		assert.False(t, e.Uploaded)
	}
}

func TestUploadAllAcceptsFileAtSizeLimit(t *testing.T) {
	remote := newFakeRemote()
	svc := NewUploadService(remote, config.UploadConfig{MaxFileBytes: 4})
	svc.Select("four.txt", model.BytesSource("four"))

	_, err := svc.UploadAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"four.txt"}, remote.uploaded)
}

func TestUploadAllReadsPathSource(t *testing.T) {
	remote, svc := newUploadFixture()
	path := filepath.Join(t.TempDir(), "policy.txt")
	require.NoError(t, os.WriteFile(path, []byte("net zero by 2040"), 0o644))
	svc.Select("policy.txt", model.PathSource(path))

	_, err := svc.UploadAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"policy.txt"}, remote.uploaded)
}

func TestSelectAllowsDuplicateNames(t *testing.T) {
	_, svc := newUploadFixture()
	a := svc.Select("same name.pdf", model.BytesSource("1"))
	b := svc.Select("same name.pdf", model.BytesSource("2"))
	assert.NotEqual(t, a.ID, b.ID)
	assert.Contains(t, a.ID, "same_name.pdf")
	assert.Len(t, svc.Entries(), 2)
}

func TestRemoveEntry(t *testing.T) {
	_, svc := newUploadFixture()
	a := svc.Select("a.pdf", model.BytesSource("a"))
	svc.Select("b.pdf", model.BytesSource("b"))

	require.NoError(t, svc.Remove(a.ID))
	entries := svc.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "b.pdf", entries[0].Name)

	assert.True(t, errors.Is(svc.Remove(a.ID), ErrUploadEntryNotFound))
}

func TestProcessFailureKeepsEntries(t *testing.T) {
	remote, svc := newUploadFixture()
	svc.Select("a.pdf", model.BytesSource("a"))
	_, err := svc.UploadAll(context.Background())
	require.NoError(t, err)

	remote.procErr = &ecoapi.Error{Kind: ecoapi.KindServer, Message: "server error"}
	_, err = svc.Process(context.Background())
	require.Error(t, err)
	assert.False(t, svc.Ready())
	require.Len(t, svc.Entries(), 1)
	assert.True(t, svc.Entries()[0].Uploaded)
}

func TestUploadBatchIsAllOrNothing(t *testing.T) {
	remote := newFakeRemote()
	remote.uploadErr["x"] = errors.New("boom")
	entries := []model.FileUploadEntry{
		{ID: "1", Name: "x", Source: model.BytesSource("x")},
		{ID: "2", Name: "y", Source: model.BytesSource("y")},
	}
	err := UploadBatch(context.Background(), remote, entries, 0)
	assert.EqualError(t, err, "boom")
	for _, e := range entries {
		assert.False(t, e.Uploaded)
	}
}
