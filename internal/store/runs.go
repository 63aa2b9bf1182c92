package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/bruno-portfolio/basismind/internal/market"
)

// Run statuses.
const (
	RunSuccess = "success"
	RunFailed  = "failed"
	RunSkipped = "skipped"
)

// PipelineRun is one daily pipeline execution.
type PipelineRun struct {
	ID        string        `json:"id"`
	Date      string        `json:"date"`
	Source    string        `json:"source"`
	Status    string        `json:"status"`
	Records   int           `json:"records"`
	Issues    int           `json:"issues"`
	Error     string        `json:"error,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`
}

// LogIssues records data quality findings for a date.
func (s *Store) LogIssues(ctx context.Context, date time.Time, issues []market.Issue) error {
	if len(issues) == 0 {
		return nil
	}
	now := time.Now().Unix()
	d := market.Day(date).Format(market.DateLayout)
	models := make([]qualityIssueModel, 0, len(issues))
	for _, is := range issues {
		models = append(models, qualityIssueModel{
			Date:          d,
			Column:        is.Column,
			Type:          string(is.Type),
			Value:         is.Value,
			Expected:      is.Expected,
			Severity:      string(is.Severity),
			Message:       is.Message,
			CreatedAtUnix: now,
		})
	}
	return s.db.WithContext(ctx).Create(&models).Error
}

// Issues returns the findings logged for a date in insertion order.
func (s *Store) Issues(ctx context.Context, date time.Time) ([]market.Issue, error) {
	var models []qualityIssueModel
	err := s.db.WithContext(ctx).
		Where("date = ?", market.Day(date).Format(market.DateLayout)).
		Order("id ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]market.Issue, 0, len(models))
	for _, m := range models {
		out = append(out, market.Issue{
			Column:   m.Column,
			Type:     market.IssueType(m.Type),
			Value:    m.Value,
			Expected: m.Expected,
			Severity: market.Severity(m.Severity),
			Message:  m.Message,
		})
	}
	return out, nil
}

// LogRun stores a pipeline run, assigning an id when empty.
func (s *Store) LogRun(ctx context.Context, run PipelineRun) (string, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	m := pipelineRunModel{
		ID:            run.ID,
		Date:          run.Date,
		Source:        run.Source,
		Status:        run.Status,
		Records:       run.Records,
		Issues:        run.Issues,
		Error:         run.Error,
		StartedAtUnix: run.StartedAt.Unix(),
		DurationMs:    run.Duration.Milliseconds(),
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return "", err
	}
	return run.ID, nil
}

// Runs returns the most recent pipeline runs, newest first.
func (s *Store) Runs(ctx context.Context, limit int) ([]PipelineRun, error) {
	if limit <= 0 {
		limit = 20
	}
	var models []pipelineRunModel
	if err := s.db.WithContext(ctx).Order("started_at DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]PipelineRun, 0, len(models))
	for _, m := range models {
		out = append(out, PipelineRun{
			ID:        m.ID,
			Date:      m.Date,
			Source:    m.Source,
			Status:    m.Status,
			Records:   m.Records,
			Issues:    m.Issues,
			Error:     m.Error,
			StartedAt: time.Unix(m.StartedAtUnix, 0).UTC(),
			Duration:  time.Duration(m.DurationMs) * time.Millisecond,
		})
	}
	return out, nil
}
