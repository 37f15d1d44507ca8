package models

// Requests for the dashboard HTTP endpoints. Bound by echo, defaulted by
// creasty/defaults and validated by go-playground/validator.

type RangeQuery struct {
	Start string `query:"start" json:"start" validate:"omitempty,datetime=2006-01-02"`
	End   string `query:"end" json:"end" validate:"omitempty,datetime=2006-01-02"`
	Range string `query:"range" json:"range" validate:"omitempty,oneof=7d 1m 3m 6m 1y all"`
}

type SeriesRequest struct {
	RangeQuery
	Coins string `query:"coins" json:"coins"`
}

type CoinsRequest struct {
	Scope string `query:"scope" json:"scope" default:"current" validate:"oneof=current all"`
}

type StatsRequest struct {
	SeriesRequest
	Type string `query:"type" json:"type" default:"prices" validate:"oneof=prices market-caps volumes"`
}

type IndicatorRequest struct {
	SeriesRequest
	Name string `param:"name" json:"-" validate:"required,max=64"`
}

type CreateMetricRequest struct {
	Name        string `json:"name" validate:"required,max=64"`
	Formula     string `json:"formula" validate:"required,max=1024"`
	Description string `json:"description" validate:"max=512"`
}

// MetricIDRequest addresses one saved metric by path id.
type MetricIDRequest struct {
	ID string `param:"id" validate:"required"`
}

type InlineFormula struct {
	Name    string `json:"name" validate:"required,max=64"`
	Formula string `json:"formula" validate:"required,max=1024"`
}

type EvaluateRequest struct {
	RangeQuery
	Coins    []string        `json:"coins" validate:"omitempty,max=50,dive,required,max=16"`
	Metrics  []string        `json:"metrics" validate:"omitempty,dive,required"`
	Formulas []InlineFormula `json:"formulas" validate:"omitempty,max=10,dive"`
}

type PreviewRequest struct {
	RangeQuery
	Formula string `json:"formula" validate:"required,max=1024"`
	Coin    string `json:"coin" default:"BTC" validate:"required,max=16"`
}
