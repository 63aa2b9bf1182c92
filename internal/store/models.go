package store

import (
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type marketRowModel struct {
	Date               string              `gorm:"column:date;primaryKey"`
	PremiumParanagua   decimal.NullDecimal `gorm:"column:premium_paranagua;type:TEXT"`
	ChicagoFront       decimal.NullDecimal `gorm:"column:chicago_front;type:TEXT"`
	USDBRL             decimal.NullDecimal `gorm:"column:usd_brl;type:TEXT"`
	FOBParanagua       decimal.NullDecimal `gorm:"column:fob_paranagua;type:TEXT"`
	FOBUSGulf          decimal.NullDecimal `gorm:"column:fob_us_gulf;type:TEXT"`
	LineupGross        *int                `gorm:"column:lineup_bruto"`
	LineupNet          *int                `gorm:"column:lineup_liquido"`
	Cancellations7d    *int                `gorm:"column:cancelamentos_7d"`
	ExportsWeeklyTons  decimal.NullDecimal `gorm:"column:exports_weekly_tons;type:TEXT"`
	ShipWaitDays       *float64            `gorm:"column:ship_wait_days"`
	WaitWeeksAbove     int                 `gorm:"column:wait_weeks_above"`
	LoadingRate        *float64            `gorm:"column:loading_rate"`
	ManualEvent        string              `gorm:"column:manual_event"`
	NarrativeConfirmed bool                `gorm:"column:narrative_confirmed"`
	Source             string              `gorm:"column:source"`
	UpdatedAtUnix      int64               `gorm:"column:updated_at"`
}

func (marketRowModel) TableName() string { return "market_data" }

type reportModel struct {
	ID             string         `gorm:"column:id;primaryKey"`
	Date           string         `gorm:"column:reference_date;uniqueIndex"`
	AggregateScore float64        `gorm:"column:aggregate_score"`
	Classification string         `gorm:"column:classification"`
	HedgeIndex     float64        `gorm:"column:hedge_index"`
	PhysicalAction string         `gorm:"column:physical_action"`
	HedgeAction    string         `gorm:"column:hedge_action"`
	Dominant       string         `gorm:"column:dominant_override"`
	Urgent         bool           `gorm:"column:urgent"`
	InputsJSON     datatypes.JSON `gorm:"column:inputs_json;type:TEXT"`
	ReportJSON     datatypes.JSON `gorm:"column:report_json;type:TEXT"`
	CreatedAtUnix  int64          `gorm:"column:created_at"`
}

func (reportModel) TableName() string { return "decision_reports" }

type qualityIssueModel struct {
	ID            int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Date          string `gorm:"column:date;index"`
	Column        string `gorm:"column:column_name"`
	Type          string `gorm:"column:issue_type"`
	Value         string `gorm:"column:value"`
	Expected      string `gorm:"column:expected"`
	Severity      string `gorm:"column:severity"`
	Message       string `gorm:"column:message"`
	CreatedAtUnix int64  `gorm:"column:created_at"`
}

func (qualityIssueModel) TableName() string { return "data_quality_log" }

type pipelineRunModel struct {
	ID            string `gorm:"column:id;primaryKey"`
	Date          string `gorm:"column:date;index"`
	Source        string `gorm:"column:source"`
	Status        string `gorm:"column:status"`
	Records       int    `gorm:"column:records"`
	Issues        int    `gorm:"column:issues"`
	Error         string `gorm:"column:error"`
	StartedAtUnix int64  `gorm:"column:started_at"`
	DurationMs    int64  `gorm:"column:duration_ms"`
}

func (pipelineRunModel) TableName() string { return "pipeline_runs" }
