package models

// CoinScope selects which coin list to return.
type CoinScope string

const (
	ScopeCurrent CoinScope = "current"
	ScopeAll     CoinScope = "all"
)

// DateRange is an inclusive [Start, End] window of YYYY-MM-DD dates.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// CoinStats summarises one coin over a series window.
type CoinStats struct {
	Symbol        string  `json:"symbol"`
	Current       float64 `json:"current"`
	First         float64 `json:"first"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"changePercent"`
	IsPositive    bool    `json:"isPositive"`
	IsNegative    bool    `json:"isNegative"`
}

// IndicatorCatalog lists what the latest indicator snapshot contains.
type IndicatorCatalog struct {
	Indicators   []string               `json:"indicators"`
	Coins        []string               `json:"coins"`
	Combinations []IndicatorCombination `json:"availableCombinations"`
}

type IndicatorCombination struct {
	Coin       string   `json:"coin"`
	Indicators []string `json:"indicators"`
}

// PreviewPoint is one date of a formula preview.
type PreviewPoint struct {
	Date  string   `json:"date"`
	Value *float64 `json:"value"`
}

// PreviewResult is the builder preview of an unsaved formula.
type PreviewResult struct {
	Coin   string         `json:"coin"`
	Points []PreviewPoint `json:"points"`
	Error  string         `json:"error,omitempty"`
}

// EvaluationResult maps metric name to chart rows.
type EvaluationResult struct {
	Range   DateRange             `json:"range"`
	Symbols []string              `json:"symbols"`
	Metrics map[string][]ChartRow `json:"metrics"`
	Errors  map[string]string     `json:"errors,omitempty"`
}
