// Package analytics aggregates read-only statistics over finished workflow
// instances. It never mutates engine state.
package analytics

import (
	"context"
	"sort"
	"time"

	"github.com/skein-dev/skein/pkg/models"
	"github.com/skein-dev/skein/pkg/persistence"
)

// InstanceStats summarizes workflow instance outcomes.
type InstanceStats struct {
	Total           int            `json:"total"`
	ByStatus        map[string]int `json:"by_status"`
	SuccessRate     float64        `json:"success_rate"`
	AverageDuration time.Duration  `json:"average_duration"`
}

// TaskStats summarizes executions of one task definition across instances.
type TaskStats struct {
	TaskID          string        `json:"task_id"`
	Executions      int           `json:"executions"`
	Successes       int           `json:"successes"`
	Failures        int           `json:"failures"`
	AverageDuration time.Duration `json:"average_duration"`
}

// Service computes statistics from the instance repository.
type Service struct {
	instances persistence.InstanceRepository
}

func NewService(instances persistence.InstanceRepository) *Service {
	return &Service{instances: instances}
}

// InstanceStats reports the success rate over all instances and the average
// duration over completed instances only.
func (s *Service) InstanceStats(ctx context.Context) (*InstanceStats, error) {
	instances, err := s.instances.List(ctx)
	if err != nil {
		return nil, err
	}

	stats := &InstanceStats{
		Total:    len(instances),
		ByStatus: make(map[string]int),
	}

	completed := 0

	var totalDuration time.Duration

	for _, instance := range instances {
		stats.ByStatus[string(instance.Status)]++

		if instance.Status == models.InstanceStatusCompleted {
			completed++
			totalDuration += instance.Duration()
		}
	}

	if stats.Total > 0 {
		stats.SuccessRate = float64(completed) / float64(stats.Total)
	}

	if completed > 0 {
		stats.AverageDuration = totalDuration / time.Duration(completed)
	}

	return stats, nil
}

// TaskStats reports per-task execution counts and the average duration over
// successful executions, sorted by task id for stable output.
func (s *Service) TaskStats(ctx context.Context) ([]*TaskStats, error) {
	instances, err := s.instances.List(ctx)
	if err != nil {
		return nil, err
	}

	byTask := make(map[string]*TaskStats)
	durations := make(map[string]time.Duration)

	for _, instance := range instances {
		for _, task := range instance.Tasks {
			stats := byTask[task.TaskID]
			if stats == nil {
				stats = &TaskStats{TaskID: task.TaskID}
				byTask[task.TaskID] = stats
			}

			stats.Executions++

			switch task.Status {
			case models.TaskStatusCompleted:
				stats.Successes++
				durations[task.TaskID] += task.Duration()
			case models.TaskStatusFailed:
				stats.Failures++
			}
		}
	}

	out := make([]*TaskStats, 0, len(byTask))

	for id, stats := range byTask {
		if stats.Successes > 0 {
			stats.AverageDuration = durations[id] / time.Duration(stats.Successes)
		}

		out = append(out, stats)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].TaskID < out[j].TaskID })

	return out, nil
}
