package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"festcache/pkg/config"
)

// Job 表示一个已注册的维护任务
type Job struct {
	ID         string
	Config     config.JobConfig
	EntryID    cron.EntryID
	Status     JobStatus
	LastRun    *time.Time
	NextRun    *time.Time
	RunCount   int64
	ErrorCount int64
	LastError  error
}

// JobStatus 任务生命周期状态
type JobStatus string

const (
	JobStatusPending  JobStatus = "pending"
	JobStatusRunning  JobStatus = "running"
	JobStatusError    JobStatus = "error"
	JobStatusDisabled JobStatus = "disabled"
)

// JobExecutor 按任务类型执行具体维护动作
type JobExecutor interface {
	Execute(ctx context.Context, job *Job) error
}

// JobScheduler 管理维护任务的注册、调度和手动触发
type JobScheduler interface {
	LoadJobs(jobs []config.JobConfig) error
	Start() error
	// Stop 等待进行中的任务结束
	Stop() error
	AddJob(jobConfig config.JobConfig) error
	RemoveJob(jobName string) error
	GetJob(jobName string) (*Job, error)
	GetAllJobs() []*Job
	// RunJob 同步执行一次，返回执行器的错误
	RunJob(ctx context.Context, jobName string) error
	SetExecutor(executor JobExecutor)
}
