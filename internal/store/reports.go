package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bruno-portfolio/basismind/internal/decision"
	"github.com/bruno-portfolio/basismind/internal/market"
)

// StoredReport is a persisted decision report with its summary columns.
type StoredReport struct {
	ID             string          `json:"id"`
	Date           string          `json:"reference_date"`
	AggregateScore float64         `json:"aggregate_score"`
	Classification string          `json:"classification"`
	HedgeIndex     float64         `json:"hedge_index"`
	PhysicalAction string          `json:"physical_action"`
	HedgeAction    string          `json:"hedge_action"`
	Dominant       string          `json:"dominant_override,omitempty"`
	Urgent         bool            `json:"urgent"`
	Inputs         json.RawMessage `json:"inputs,omitempty"`
	Report         json.RawMessage `json:"report"`
	CreatedAt      time.Time       `json:"created_at"`
}

func (m reportModel) stored() StoredReport {
	return StoredReport{
		ID:             m.ID,
		Date:           m.Date,
		AggregateScore: m.AggregateScore,
		Classification: m.Classification,
		HedgeIndex:     m.HedgeIndex,
		PhysicalAction: m.PhysicalAction,
		HedgeAction:    m.HedgeAction,
		Dominant:       m.Dominant,
		Urgent:         m.Urgent,
		Inputs:         json.RawMessage(m.InputsJSON),
		Report:         json.RawMessage(m.ReportJSON),
		CreatedAt:      time.Unix(m.CreatedAtUnix, 0).UTC(),
	}
}

// SaveReport stores the report for its reference date, replacing an earlier run for the same
// date. It returns the row id.
func (s *Store) SaveReport(ctx context.Context, rep decision.DecisionReport, in decision.MarketInputs) (string, error) {
	reportJSON, err := json.Marshal(rep)
	if err != nil {
		return "", fmt.Errorf("store: marshal report: %w", err)
	}
	inputsJSON, err := json.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("store: marshal inputs: %w", err)
	}
	m := reportModel{
		ID:             uuid.NewString(),
		Date:           rep.ReferenceDate.Format(market.DateLayout),
		AggregateScore: rep.AggregateScore,
		Classification: rep.Classification.String(),
		HedgeIndex:     rep.HedgeIndex,
		PhysicalAction: rep.Physical.Action.String(),
		HedgeAction:    rep.Hedge.Action.String(),
		Urgent:         rep.Physical.Urgent,
		InputsJSON:     datatypes.JSON(inputsJSON),
		ReportJSON:     datatypes.JSON(reportJSON),
		CreatedAtUnix:  time.Now().Unix(),
	}
	if rep.DominantOverride != nil {
		m.Dominant = string(rep.DominantOverride.ID)
	}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "reference_date"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"aggregate_score", "classification", "hedge_index", "physical_action",
				"hedge_action", "dominant_override", "urgent", "inputs_json", "report_json", "created_at",
			}),
		}).
		Create(&m).Error
	if err != nil {
		return "", fmt.Errorf("store: save report %s: %w", m.Date, err)
	}
	// on conflict the original id is kept
	var saved reportModel
	if err := s.db.WithContext(ctx).Select("id").Where("reference_date = ?", m.Date).First(&saved).Error; err != nil {
		return "", err
	}
	return saved.ID, nil
}

// Report returns the stored report for a reference date.
func (s *Store) Report(ctx context.Context, date time.Time) (StoredReport, error) {
	var m reportModel
	err := s.db.WithContext(ctx).Where("reference_date = ?", market.Day(date).Format(market.DateLayout)).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return StoredReport{}, ErrNotFound
	}
	if err != nil {
		return StoredReport{}, err
	}
	return m.stored(), nil
}

// ListReports returns up to limit reports, newest reference date first.
func (s *Store) ListReports(ctx context.Context, limit int) ([]StoredReport, error) {
	if limit <= 0 {
		limit = 30
	}
	var models []reportModel
	if err := s.db.WithContext(ctx).Order("reference_date DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]StoredReport, 0, len(models))
	for _, m := range models {
		out = append(out, m.stored())
	}
	return out, nil
}
