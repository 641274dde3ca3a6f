// Package reminder implements the multi-stage follow-up pipeline: a
// scheduler that queues future-dated tasks at lead intake and a worker that
// drains due tasks through the notification dispatcher.
package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jmcalloway/studiobook/internal/model"
)

// Follow-up offsets relative to lead intake. Monotonically increasing.
var sequenceOffsets = []struct {
	Type   string
	Offset time.Duration
}{
	{model.SequenceDay1, 1 * time.Hour},
	{model.SequenceDay3, 3 * 24 * time.Hour},
	{model.SequenceDay7, 7 * 24 * time.Hour},
}

type TaskWriter interface {
	CreateBatch(ctx context.Context, tasks []model.FollowUpTask) error
}

// Scheduler enqueues the fixed follow-up sequence for a lead. It performs
// no sending itself.
type Scheduler struct {
	tasks TaskWriter
	now   func() time.Time
}

func NewScheduler(tasks TaskWriter) *Scheduler {
	return &Scheduler{tasks: tasks, now: time.Now}
}

func (s *Scheduler) Schedule(ctx context.Context, leadID string) ([]model.FollowUpTask, error) {
	now := s.now().UTC()
	tasks := make([]model.FollowUpTask, 0, len(sequenceOffsets))
	for _, seq := range sequenceOffsets {
		tasks = append(tasks, model.FollowUpTask{
			ID:           uuid.NewString(),
			LeadID:       leadID,
			SequenceType: seq.Type,
			ScheduledFor: now.Add(seq.Offset),
			Status:       model.TaskPending,
		})
	}
	if err := s.tasks.CreateBatch(ctx, tasks); err != nil {
		return nil, fmt.Errorf("queue follow-ups: %w", err)
	}
	return tasks, nil
}
