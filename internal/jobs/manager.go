package jobs

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/d60-Lab/tieba-pipeline/pkg/logger"
)

// 任务状态流转：queued -> running -> succeeded | failed
const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Job 一次后台管线调用的可观测记录。只存内存，进程重启即回收
type Job struct {
	ID         string     `json:"job_id"`
	Kind       string     `json:"job_type"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Error      string     `json:"error,omitempty"`
	Result     any        `json:"result,omitempty"`
}

// Fn 被跟踪的长任务。返回值存入 Job.Result
type Fn func(ctx context.Context) (any, error)

// Manager 进程内后台任务跟踪器。
// 状态与时间戳在锁内一并更新，读方拿到的永远是完整快照。
// 单进程部署使用；多副本时各进程只见自己的任务
type Manager struct {
	mu   sync.Mutex
	jobs map[string]*Job
}

func NewManager() *Manager {
	return &Manager{jobs: make(map[string]*Job)}
}

// Submit 提交任务并立即返回快照，不阻塞调用方。
// 取消是协作式的：fn 须在逻辑步骤间检查 ctx
func (m *Manager) Submit(kind string, fn Fn) Job {
	job := &Job{
		ID:        uuid.New().String(),
		Kind:      kind,
		Status:    StatusQueued,
		CreatedAt: time.Now(),
	}
	m.mu.Lock()
	m.jobs[job.ID] = job
	snapshot := *job
	m.mu.Unlock()

	go m.run(job, fn)
	return snapshot
}

func (m *Manager) run(job *Job, fn Fn) {
	now := time.Now()
	m.mu.Lock()
	job.Status = StatusRunning
	job.StartedAt = &now
	m.mu.Unlock()

	result, err := m.invoke(fn)

	done := time.Now()
	m.mu.Lock()
	job.FinishedAt = &done
	if err != nil {
		job.Status = StatusFailed
		job.Error = err.Error()
	} else {
		job.Status = StatusSucceeded
		job.Result = result
	}
	m.mu.Unlock()

	if err != nil {
		logger.Error("job failed", zap.String("job_id", job.ID), zap.String("kind", job.Kind), zap.Error(err))
		if sentry.CurrentHub().Client() != nil {
			sentry.WithScope(func(scope *sentry.Scope) {
				scope.SetTag("job_kind", job.Kind)
				scope.SetExtra("job_id", job.ID)
				sentry.CaptureException(err)
			})
		}
	} else {
		logger.Info("job succeeded", zap.String("job_id", job.ID), zap.String("kind", job.Kind))
	}
}

// invoke 收敛 panic 为结构化失败，不让单个任务拖垮进程
func (m *Manager) invoke(fn Fn) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return fn(context.Background())
}

// Get 按 ID 取快照；不存在返回 false
func (m *Manager) Get(id string) (Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// List 新创建在前，最多 limit 条
func (m *Manager) List(limit int) []Job {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	m.mu.Lock()
	out := make([]Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, *j)
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
