package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"festcache/pkg/config"
)

// MockJobExecutor 模拟任务执行器
type MockJobExecutor struct {
	mu           sync.Mutex
	executedJobs []string
	err          error
	block        chan struct{}
}

func (m *MockJobExecutor) Execute(ctx context.Context, job *Job) error {
	m.mu.Lock()
	m.executedJobs = append(m.executedJobs, job.Config.Name)
	block := m.block
	m.mu.Unlock()

	if block != nil {
		<-block
	}
	return m.err
}

func (m *MockJobExecutor) executed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.executedJobs...)
}

func sweepJob(name string) config.JobConfig {
	return config.JobConfig{Name: name, Schedule: "*/1 * * * * *", Type: config.JobSweep, Enabled: true}
}

func TestNewMaintenanceScheduler(t *testing.T) {
	scheduler := NewMaintenanceScheduler()

	assert.NotNil(t, scheduler)
	assert.NotNil(t, scheduler.cron)
	assert.NotNil(t, scheduler.jobs)
	assert.NotNil(t, scheduler.logger)
	assert.NotNil(t, scheduler.ctx)
}

func TestJobScheduler_LoadJobs(t *testing.T) {
	tests := []struct {
		name       string
		jobs       []config.JobConfig
		expectJobs int
	}{
		{
			name: "有效配置",
			jobs: []config.JobConfig{
				sweepJob("sweep"),
				{Name: "report", Schedule: "0 * * * * *", Type: config.JobStatsReport},
			},
			expectJobs: 2,
		},
		{
			name:       "无效的 cron 表达式",
			jobs:       []config.JobConfig{{Name: "bad", Schedule: "invalid-cron", Type: config.JobSweep, Enabled: true}},
			expectJobs: 0, // 无效任务会被跳过，不会导致整体失败
		},
		{
			name:       "缺少名称",
			jobs:       []config.JobConfig{{Schedule: "* * * * * *", Type: config.JobSweep, Enabled: true}},
			expectJobs: 0,
		},
		{
			name:       "重复名称",
			jobs:       []config.JobConfig{sweepJob("a"), sweepJob("a")},
			expectJobs: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scheduler := NewMaintenanceScheduler()
			require.NoError(t, scheduler.LoadJobs(tt.jobs))
			assert.Len(t, scheduler.jobs, tt.expectJobs)
		})
	}
}

func TestJobScheduler_AddJob(t *testing.T) {
	scheduler := NewMaintenanceScheduler()

	require.NoError(t, scheduler.AddJob(sweepJob("sweep")))

	job, err := scheduler.GetJob("sweep")
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, JobStatusPending, job.Status)
	assert.NotZero(t, job.EntryID)

	assert.Error(t, scheduler.AddJob(sweepJob("sweep")), "重复添加应该失败")

	disabled := sweepJob("disabled")
	disabled.Enabled = false
	require.NoError(t, scheduler.AddJob(disabled))
	job, err = scheduler.GetJob("disabled")
	require.NoError(t, err)
	assert.Equal(t, JobStatusDisabled, job.Status)
	assert.Zero(t, job.EntryID)
}

func TestJobScheduler_RemoveJob(t *testing.T) {
	scheduler := NewMaintenanceScheduler()
	require.NoError(t, scheduler.AddJob(sweepJob("sweep")))

	require.NoError(t, scheduler.RemoveJob("sweep"))
	_, err := scheduler.GetJob("sweep")
	assert.Error(t, err)
	assert.Empty(t, scheduler.cron.Entries())

	assert.Error(t, scheduler.RemoveJob("missing"))
}

func TestJobScheduler_GetAllJobs(t *testing.T) {
	scheduler := NewMaintenanceScheduler()
	require.NoError(t, scheduler.AddJob(sweepJob("b")))
	require.NoError(t, scheduler.AddJob(sweepJob("a")))

	jobs := scheduler.GetAllJobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, "a", jobs[0].Config.Name)
	assert.Equal(t, "b", jobs[1].Config.Name)
	assert.NotEqual(t, jobs[0].ID, jobs[1].ID)
}

func TestJobScheduler_RunJob(t *testing.T) {
	scheduler := NewMaintenanceScheduler()
	ctx := context.Background()
	require.NoError(t, scheduler.AddJob(sweepJob("sweep")))

	assert.Error(t, scheduler.RunJob(ctx, "sweep"), "未设置执行器时应该失败")

	executor := &MockJobExecutor{}
	scheduler.SetExecutor(executor)

	require.NoError(t, scheduler.RunJob(ctx, "sweep"))
	assert.Equal(t, []string{"sweep"}, executor.executed())

	job, err := scheduler.GetJob("sweep")
	require.NoError(t, err)
	assert.Equal(t, int64(1), job.RunCount)
	assert.NotNil(t, job.LastRun)
	assert.Equal(t, JobStatusPending, job.Status)

	assert.Error(t, scheduler.RunJob(ctx, "missing"))
}

func TestJobScheduler_RunJobError(t *testing.T) {
	scheduler := NewMaintenanceScheduler()
	executor := &MockJobExecutor{err: errors.New("boom")}
	scheduler.SetExecutor(executor)
	require.NoError(t, scheduler.AddJob(sweepJob("sweep")))

	err := scheduler.RunJob(context.Background(), "sweep")
	assert.EqualError(t, err, "boom")

	job, _ := scheduler.GetJob("sweep")
	assert.Equal(t, JobStatusError, job.Status)
	assert.Equal(t, int64(1), job.ErrorCount)
	assert.EqualError(t, job.LastError, "boom")
}

type panicExecutor struct{}

func (panicExecutor) Execute(ctx context.Context, job *Job) error {
	panic("sweep exploded")
}

func TestJobScheduler_RunJobPanic(t *testing.T) {
	scheduler := NewMaintenanceScheduler()
	scheduler.SetExecutor(panicExecutor{})
	require.NoError(t, scheduler.AddJob(sweepJob("sweep")))

	err := scheduler.RunJob(context.Background(), "sweep")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sweep exploded")

	job, _ := scheduler.GetJob("sweep")
	assert.Equal(t, JobStatusError, job.Status, "panic 后不能停留在 running")
	assert.Equal(t, int64(1), job.ErrorCount)

	err = scheduler.RunJob(context.Background(), "sweep")
	assert.NotErrorIs(t, err, ErrJobRunning)

	scheduler.SetExecutor(&MockJobExecutor{})
	require.NoError(t, scheduler.RunJob(context.Background(), "sweep"))
	job, _ = scheduler.GetJob("sweep")
	assert.Equal(t, JobStatusPending, job.Status)
	assert.Equal(t, int64(3), job.RunCount)
}

func TestJobScheduler_RunJobNoOverlap(t *testing.T) {
	scheduler := NewMaintenanceScheduler()
	executor := &MockJobExecutor{block: make(chan struct{})}
	scheduler.SetExecutor(executor)
	require.NoError(t, scheduler.AddJob(sweepJob("sweep")))

	var first atomic.Value
	done := make(chan struct{})
	go func() {
		if err := scheduler.RunJob(context.Background(), "sweep"); err != nil {
			first.Store(err)
		}
		close(done)
	}()

	require.Eventually(t, func() bool { return len(executor.executed()) == 1 }, time.Second, 5*time.Millisecond)

	err := scheduler.RunJob(context.Background(), "sweep")
	assert.ErrorIs(t, err, ErrJobRunning)

	close(executor.block)
	<-done
	assert.Nil(t, first.Load())
}

func TestJobScheduler_StartStop(t *testing.T) {
	scheduler := NewMaintenanceScheduler()
	assert.Error(t, scheduler.Start(), "未设置执行器时应该启动失败")

	scheduler.SetExecutor(&MockJobExecutor{})
	require.NoError(t, scheduler.AddJob(sweepJob("sweep")))
	require.NoError(t, scheduler.Start())

	job, err := scheduler.GetJob("sweep")
	require.NoError(t, err)
	assert.NotNil(t, job.NextRun)

	assert.NoError(t, scheduler.Stop())
}

func TestJobScheduler_validateJobConfig(t *testing.T) {
	tests := []struct {
		name    string
		config  config.JobConfig
		wantErr bool
	}{
		{name: "有效配置", config: sweepJob("ok")},
		{name: "描述符", config: config.JobConfig{Name: "d", Schedule: "@every 10s", Type: config.JobStatsReport, Enabled: true}},
		{name: "缺少名称", config: config.JobConfig{Schedule: "* * * * * *", Type: config.JobSweep, Enabled: true}, wantErr: true},
		{name: "未知类型", config: config.JobConfig{Name: "x", Schedule: "* * * * * *", Type: "backup", Enabled: true}, wantErr: true},
		{name: "缺少调度", config: config.JobConfig{Name: "x", Type: config.JobSweep, Enabled: true}, wantErr: true},
		{name: "五段表达式", config: config.JobConfig{Name: "x", Schedule: "* * * * *", Type: config.JobSweep, Enabled: true}, wantErr: true},
		{name: "禁用任务不检查调度", config: config.JobConfig{Name: "x", Type: config.JobSweep}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateJobConfig(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// TestJobScheduler_Integration 测试定时触发
func TestJobScheduler_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("跳过耗时测试")
	}

	scheduler := NewMaintenanceScheduler()
	executor := &MockJobExecutor{}
	scheduler.SetExecutor(executor)
	require.NoError(t, scheduler.AddJob(sweepJob("sweep")))
	require.NoError(t, scheduler.Start())

	time.Sleep(2500 * time.Millisecond)
	require.NoError(t, scheduler.Stop())

	assert.GreaterOrEqual(t, len(executor.executed()), 2)
	job, _ := scheduler.GetJob("sweep")
	assert.GreaterOrEqual(t, job.RunCount, int64(2))
}

func TestKvFields(t *testing.T) {
	fields := kvFields([]interface{}{"entry", 1, "next", "soon", "dangling"})
	assert.Equal(t, 1, fields["entry"])
	assert.Equal(t, "soon", fields["next"])
	assert.Len(t, fields, 2)
}
