package task_test

import (
	"testing"
	"time"

	"github.com/italolelis/cloudleecher/internal/engine"
	"github.com/italolelis/cloudleecher/internal/task"
	"github.com/stretchr/testify/assert"
)

func TestPhaseFromStatus(t *testing.T) {
	tests := []struct {
		name        string
		status      string
		totalLength int64
		want        task.Phase
	}{
		{"active with unknown size is resolving", engine.StatusActive, 0, task.PhaseResolving},
		{"active with known size", engine.StatusActive, 100, task.PhaseActive},
		{"waiting", engine.StatusWaiting, 0, task.PhaseWaiting},
		{"paused", engine.StatusPaused, 100, task.PhasePaused},
		{"complete maps to moving", engine.StatusComplete, 100, task.PhaseMoving},
		{"moving", engine.StatusMoving, 100, task.PhaseMoving},
		{"saved", engine.StatusSaved, 100, task.PhaseSaved},
		{"removed", engine.StatusRemoved, 100, task.PhaseRemoved},
		{"error", engine.StatusError, 100, task.PhaseError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, task.PhaseFromStatus(tt.status, tt.totalLength))
		})
	}
}

func TestPhase_IsLive(t *testing.T) {
	assert.True(t, task.PhaseResolving.IsLive())
	assert.True(t, task.PhaseWaiting.IsLive())
	assert.True(t, task.PhaseActive.IsLive())
	assert.False(t, task.PhasePaused.IsLive())
	assert.False(t, task.PhaseSaved.IsLive())
}

func TestApply_PreservesCreatedAt(t *testing.T) {
	created := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	later := created.Add(time.Minute)

	tk := task.New(engine.Status{GID: "aaa", Status: engine.StatusActive}, created)
	tk.Apply(engine.Status{GID: "aaa", Status: engine.StatusActive, TotalLength: 100}, later)

	assert.Equal(t, created, tk.CreatedAt)
	assert.Equal(t, later, tk.UpdatedAt)
	assert.Equal(t, task.PhaseActive, tk.Phase)
}

func TestAdopt(t *testing.T) {
	now := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)

	tk := task.New(engine.Status{
		GID:             "meta1",
		Status:          engine.StatusActive,
		TotalLength:     1000,
		CompletedLength: 600,
	}, now)

	tk.Adopt(engine.Status{
		GID:             "content1",
		Status:          engine.StatusActive,
		TotalLength:     1000,
		CompletedLength: 50, // successor restarted its counter
	}, now.Add(time.Second))

	assert.Equal(t, "content1", tk.GID)
	assert.Equal(t, []string{"meta1"}, tk.Lineage)

	// Progress never goes backwards across a handoff.
	assert.Equal(t, int64(600), tk.CompletedLength)
	assert.Equal(t, now, tk.CreatedAt)
}

func TestAdopt_SuccessorAhead(t *testing.T) {
	now := time.Now()

	tk := task.New(engine.Status{GID: "a", Status: engine.StatusActive, TotalLength: 100, CompletedLength: 10}, now)
	tk.Adopt(engine.Status{GID: "b", Status: engine.StatusActive, TotalLength: 100, CompletedLength: 90}, now)

	assert.Equal(t, int64(90), tk.CompletedLength)
}
