package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"festcache/pkg/config"
	"festcache/pkg/logger"
)

const (
	jobTimeout  = time.Minute
	stopTimeout = 30 * time.Second
)

// ErrJobRunning 任务仍在运行时手动触发
var ErrJobRunning = errors.New("job is already running")

var errNoExecutor = errors.New("scheduler: executor not set")

// 六段表达式，首段为秒
var scheduleParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

func unknownJob(name string) error {
	return fmt.Errorf("job %s: not found", name)
}

var _ JobScheduler = (*MaintenanceScheduler)(nil)

// MaintenanceScheduler 按 cron 表达式驱动缓存维护任务
type MaintenanceScheduler struct {
	cron     *cron.Cron
	jobs     map[string]*Job
	executor JobExecutor
	mu       sync.RWMutex
	logger   *logrus.Entry
	ctx      context.Context
	cancel   context.CancelFunc
	running  sync.WaitGroup
}

// NewMaintenanceScheduler 创建维护任务调度器
func NewMaintenanceScheduler() *MaintenanceScheduler {
	ctx, cancel := context.WithCancel(context.Background())
	log := logger.WithComponent("scheduler")
	cl := cronLogger{log: log}

	return &MaintenanceScheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		jobs:   make(map[string]*Job),
		logger: log,
		ctx:    ctx,
		cancel: cancel,
	}
}

// LoadJobs 注册配置中的任务，无效任务记录日志后跳过
func (s *MaintenanceScheduler) LoadJobs(jobs []config.JobConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, jobConfig := range jobs {
		if err := validateJobConfig(jobConfig); err != nil {
			s.logger.WithError(err).WithField("job", jobConfig.Name).Warn("维护任务配置无效，已忽略")
			continue
		}

		if err := s.addJobInternal(jobConfig); err != nil {
			s.logger.WithError(err).WithField("job", jobConfig.Name).Error("维护任务注册失败")
			continue
		}
	}

	s.logger.WithField("count", len(s.jobs)).Info("维护任务加载完成")
	return nil
}

// Start 开始按计划触发维护任务
func (s *MaintenanceScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.executor == nil {
		return errNoExecutor
	}

	s.cron.Start()
	s.logger.Info("维护调度器开始运行")

	s.updateNextRunTimes()
	return nil
}

// Stop 停止触发并等待进行中的任务结束
func (s *MaintenanceScheduler) Stop() error {
	s.cancel()
	ctx := s.cron.Stop()

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		s.running.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("维护调度器已退出")
		return nil
	case <-time.After(stopTimeout):
		s.logger.Warn("等待维护任务结束超时")
		return fmt.Errorf("scheduler: stop timed out after %s", stopTimeout)
	}
}

// AddJob 注册单个维护任务
func (s *MaintenanceScheduler) AddJob(jobConfig config.JobConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := validateJobConfig(jobConfig); err != nil {
		return err
	}

	if err := s.addJobInternal(jobConfig); err != nil {
		return err
	}
	s.updateNextRunTimes()
	return nil
}

// RemoveJob 注销维护任务
func (s *MaintenanceScheduler) RemoveJob(jobName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[jobName]
	if !exists {
		return unknownJob(jobName)
	}

	if job.EntryID != 0 {
		s.cron.Remove(job.EntryID)
	}
	delete(s.jobs, jobName)

	s.logger.WithField("job", jobName).Info("维护任务已注销")
	return nil
}

// GetJob 返回任务状态快照
func (s *MaintenanceScheduler) GetJob(jobName string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobs[jobName]
	if !exists {
		return nil, unknownJob(jobName)
	}

	snapshot := *job
	return &snapshot, nil
}

// GetAllJobs 返回全部任务快照，按名称排序
func (s *MaintenanceScheduler) GetAllJobs() []*Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]*Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		snapshot := *job
		jobs = append(jobs, &snapshot)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Config.Name < jobs[j].Config.Name })

	return jobs
}

// RunJob 立即执行一次任务并返回执行结果，禁用的任务也可以手动执行
func (s *MaintenanceScheduler) RunJob(ctx context.Context, jobName string) error {
	s.mu.RLock()
	job, exists := s.jobs[jobName]
	executor := s.executor
	s.mu.RUnlock()

	if !exists {
		return unknownJob(jobName)
	}
	if executor == nil {
		return errNoExecutor
	}

	return s.executeJob(ctx, job)
}

// SetExecutor 绑定任务执行器
func (s *MaintenanceScheduler) SetExecutor(executor JobExecutor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executor = executor
}

// validateJobConfig 检查名称、类型以及启用任务的调度表达式
func validateJobConfig(jobConfig config.JobConfig) error {
	if jobConfig.Name == "" {
		return errors.New("job name is required")
	}

	switch jobConfig.Type {
	case config.JobStatsReport, config.JobMetricsExport, config.JobSweep:
	default:
		return fmt.Errorf("job %s: unknown type %q", jobConfig.Name, jobConfig.Type)
	}

	if !jobConfig.Enabled {
		return nil
	}

	if jobConfig.Schedule == "" {
		return fmt.Errorf("job %s: schedule is required", jobConfig.Name)
	}

	if _, err := scheduleParser.Parse(jobConfig.Schedule); err != nil {
		return fmt.Errorf("job %s: bad schedule %q: %w", jobConfig.Name, jobConfig.Schedule, err)
	}

	return nil
}

// addJobInternal 调用方持有 s.mu
func (s *MaintenanceScheduler) addJobInternal(jobConfig config.JobConfig) error {
	if _, exists := s.jobs[jobConfig.Name]; exists {
		return fmt.Errorf("job %s: already registered", jobConfig.Name)
	}

	job := &Job{
		ID:     uuid.New().String(),
		Config: jobConfig,
		Status: JobStatusPending,
	}

	if !jobConfig.Enabled {
		job.Status = JobStatusDisabled
		s.jobs[jobConfig.Name] = job
		s.logger.WithField("job", jobConfig.Name).Info("维护任务已注册，未启用")
		return nil
	}

	entryID, err := s.cron.AddFunc(jobConfig.Schedule, func() {
		s.executeJob(s.ctx, job)
	})
	if err != nil {
		return fmt.Errorf("job %s: schedule: %w", jobConfig.Name, err)
	}

	job.EntryID = entryID
	s.jobs[jobConfig.Name] = job

	s.logger.WithFields(logrus.Fields{"job": jobConfig.Name, "schedule": jobConfig.Schedule}).Info("维护任务已注册")
	return nil
}

// executeJob 执行任务；同一任务的定时触发和手动触发不会重叠
func (s *MaintenanceScheduler) executeJob(ctx context.Context, job *Job) error {
	s.mu.Lock()
	if job.Status == JobStatusRunning {
		s.mu.Unlock()
		s.logger.WithField("job", job.Config.Name).Warn("上一次执行尚未结束，本次跳过")
		return ErrJobRunning
	}
	job.Status = JobStatusRunning
	now := time.Now()
	job.LastRun = &now
	job.RunCount++
	executor := s.executor
	s.running.Add(1)
	s.mu.Unlock()
	defer s.running.Done()

	log := s.logger.WithFields(logrus.Fields{"job": job.Config.Name, "type": job.Config.Type})
	log.Debug("维护任务开始")

	ctx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	err := invoke(ctx, executor, job)

	s.mu.Lock()
	if err != nil {
		job.Status = JobStatusError
		job.LastError = err
		job.ErrorCount++
		log.WithError(err).Error("维护任务失败")
	} else {
		job.Status = JobStatusPending
		job.LastError = nil
		log.WithField("elapsed", time.Since(now)).Debug("维护任务完成")
	}
	s.updateNextRunTimes()
	s.mu.Unlock()

	return err
}

// invoke 执行器 panic 时转换为错误，保证任务状态能从 running 恢复
func invoke(ctx context.Context, executor JobExecutor, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s: panic: %v", job.Config.Name, r)
		}
	}()
	return executor.Execute(ctx, job)
}

// updateNextRunTimes 从 cron 条目同步 NextRun，调用方持有 s.mu
func (s *MaintenanceScheduler) updateNextRunTimes() {
	next := make(map[cron.EntryID]time.Time)
	for _, entry := range s.cron.Entries() {
		if !entry.Next.IsZero() {
			next[entry.ID] = entry.Next
		}
	}
	for _, job := range s.jobs {
		if at, ok := next[job.EntryID]; ok {
			job.NextRun = &at
		}
	}
}

// cronLogger 把 cron 内部日志转发到 logrus
type cronLogger struct {
	log *logrus.Entry
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.WithFields(kvFields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.WithError(err).WithFields(kvFields(keysAndValues)).Error(msg)
}

func kvFields(keysAndValues []interface{}) logrus.Fields {
	fields := make(logrus.Fields, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return fields
}
