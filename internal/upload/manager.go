// Package upload assembles chunked uploads in the background.
package upload

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/klauspost/pgzip"
	"github.com/olx-analyzer/backend/internal/models"
)

// Status represents the upload processing status.
type Status string

const (
	StatusProcessing    Status = "processing"
	StatusAssembling    Status = "assembling"
	StatusDecompressing Status = "decompressing"
	StatusComplete      Status = "complete"
	StatusError         Status = "error"
)

// ErrNotGzip is returned when a chunked upload announced gzip encoding but
// the assembled file does not start with the gzip magic.
var ErrNotGzip = errors.New("not a gzip file")

// Job represents an async upload processing job.
type Job struct {
	ID             string           `json:"id"`
	UploadID       string           `json:"uploadId"`
	FileName       string           `json:"fileName"`
	TotalChunks    int              `json:"totalChunks"`
	OriginalSize   int64            `json:"originalSize"`
	CompressedSize int64            `json:"compressedSize"`
	Encoding       string           `json:"encoding"`
	Status         Status           `json:"status"`
	Progress       float64          `json:"progress"`
	Stage          string           `json:"stage"`
	StageProgress  float64          `json:"stageProgress"`
	FileInfo       *models.FileInfo `json:"fileInfo,omitempty"`
	Error          string           `json:"error,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
	CompletedAt    *time.Time       `json:"completedAt,omitempty"`
}

// Request describes a finished chunk transfer.
type Request struct {
	UploadID       string
	FileName       string
	TotalChunks    int
	OriginalSize   int64
	CompressedSize int64
	// Encoding is "gzip" when the client compressed the file for transfer.
	Encoding string
}

// Store defines the interface needed from storage layer.
type Store interface {
	CompleteChunkedUpload(uploadID string, name string, totalChunks int) (*models.FileInfo, error)
	GetFilePath(id string) (string, error)
	Refresh(id string) (*models.FileInfo, error)
}

// Manager handles async upload processing.
type Manager struct {
	jobs  map[string]*Job
	mu    sync.RWMutex
	store Store
}

// NewManager creates a new upload processing manager.
func NewManager(store Store) *Manager {
	return &Manager{
		jobs:  make(map[string]*Job),
		store: store,
	}
}

// StartJob begins async processing of an upload.
func (m *Manager) StartJob(req Request) *Job {
	job := &Job{
		ID:             uuid.New().String(),
		UploadID:       req.UploadID,
		FileName:       req.FileName,
		TotalChunks:    req.TotalChunks,
		OriginalSize:   req.OriginalSize,
		CompressedSize: req.CompressedSize,
		Encoding:       req.Encoding,
		Status:         StatusProcessing,
		Stage:          "preparing",
		CreatedAt:      time.Now(),
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	go m.processJob(job)

	return job.snapshot(&m.mu)
}

// GetJob returns a copy of the job so callers can read it without locking.
func (m *Manager) GetJob(id string) (*Job, bool) {
	m.mu.RLock()
	job, ok := m.jobs[id]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return job.snapshot(&m.mu), true
}

func (j *Job) snapshot(mu *sync.RWMutex) *Job {
	mu.RLock()
	defer mu.RUnlock()
	cp := *j
	return &cp
}

func (m *Manager) processJob(job *Job) {
	tag := job.ID[:8]
	glog.Infof("[UploadJob %s] Starting processing: %s", tag, job.FileName)

	m.updateJobStatus(job, StatusAssembling, "assembling chunks", 0)
	info, err := m.store.CompleteChunkedUpload(job.UploadID, job.FileName, job.TotalChunks)
	if err != nil {
		m.markJobError(job, fmt.Sprintf("failed to assemble chunks: %v", err))
		return
	}
	m.updateJobStatus(job, StatusAssembling, "assembling chunks", 100)
	glog.V(1).Infof("[UploadJob %s] Chunks assembled: %s (%d bytes)", tag, info.ID, info.Size)

	if job.Encoding == "gzip" || job.Encoding == "binary-gzip" {
		m.updateJobStatus(job, StatusDecompressing, "decompressing file", 0)
		if err := m.decompress(job, info.ID); err != nil {
			// The parser reads gzip input directly, so the file stays usable.
			glog.Warningf("[UploadJob %s] keeping compressed file %s: %v", tag, info.ID, err)
		} else if refreshed, err := m.store.Refresh(info.ID); err == nil {
			info = refreshed
		}
		m.updateJobStatus(job, StatusDecompressing, "decompressing file", 100)
	}

	if info.Kind == models.KindUnknown {
		glog.Warningf("[UploadJob %s] %s is neither a case nor a diff", tag, job.FileName)
	}
	m.markJobComplete(job, info)
	glog.Infof("[UploadJob %s] Processing complete: %s (%s, %d bytes)", tag, info.ID, info.Kind, info.Size)
}

// decompress replaces the stored file with its gunzipped content.
func (m *Manager) decompress(job *Job, fileID string) error {
	path, err := m.store.GetFilePath(fileID)
	if err != nil {
		return err
	}
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()

	br := bufio.NewReader(in)
	if magic, _ := br.Peek(2); len(magic) < 2 || magic[0] != 0x1f || magic[1] != 0x8b {
		return ErrNotGzip
	}
	gz, err := pgzip.NewReader(br)
	if err != nil {
		return err
	}
	defer gz.Close()

	tempPath := path + ".decompressing"
	out, err := os.Create(tempPath)
	if err != nil {
		return err
	}

	pw := &progressWriter{w: out, onProgress: func(written int64) {
		if job.OriginalSize > 0 {
			m.updateJobStatus(job, StatusDecompressing, "decompressing file",
				min(float64(written)/float64(job.OriginalSize)*100, 99))
		}
	}}
	written, err := io.Copy(pw, gz)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err == nil && job.OriginalSize > 0 && written != job.OriginalSize {
		err = fmt.Errorf("decompressed size mismatch: got %d bytes, expected %d bytes", written, job.OriginalSize)
	}
	if err != nil {
		os.Remove(tempPath)
		return err
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return err
	}
	return nil
}

// progressWriter reports the running byte count at most every 100ms.
type progressWriter struct {
	w          io.Writer
	written    int64
	last       time.Time
	onProgress func(int64)
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.written += int64(n)
	if time.Since(p.last) > 100*time.Millisecond {
		p.onProgress(p.written)
		p.last = time.Now()
	}
	return n, err
}

// updateJobStatus updates job progress (thread-safe).
func (m *Manager) updateJobStatus(job *Job, status Status, stage string, stageProgress float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job.Status = status
	job.Stage = stage
	job.StageProgress = stageProgress

	// Assembling: 0-40%, Decompressing: 40-90%, Finalizing: 90-100%
	switch status {
	case StatusAssembling:
		job.Progress = stageProgress * 0.4
	case StatusDecompressing:
		job.Progress = 40 + stageProgress*0.5
	}
}

func (m *Manager) markJobComplete(job *Job, info *models.FileInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job.FileInfo = info
	job.Status = StatusComplete
	job.Progress = 100
	now := time.Now()
	job.CompletedAt = &now
}

func (m *Manager) markJobError(job *Job, errMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job.Status = StatusError
	job.Error = errMsg
	now := time.Now()
	job.CompletedAt = &now
	glog.Errorf("[UploadJob %s] Error: %s", job.ID[:8], errMsg)
}

// CleanupOldJobs removes finished jobs older than maxAge.
func (m *Manager) CleanupOldJobs(maxAge time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	for id, job := range m.jobs {
		if job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(m.jobs, id)
		}
	}
}

// Wait polls until the job finishes or timeout elapses.
func (m *Manager) Wait(id string, timeout time.Duration) (*Job, bool) {
	deadline := time.Now().Add(timeout)
	for {
		job, ok := m.GetJob(id)
		if !ok {
			return nil, false
		}
		if job.Status == StatusComplete || job.Status == StatusError {
			return job, true
		}
		if time.Now().After(deadline) {
			return job, false
		}
		time.Sleep(10 * time.Millisecond)
	}
}
