package models

import (
	"strings"
	"time"
)

// MetricDefinition is a user-authored named formula.
type MetricDefinition struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Formula     string    `json:"formula"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// CustomVariablePrefix prefixes the variable a saved metric is bound to.
const CustomVariablePrefix = "custom_"

// Variable returns the identifier other formulas use to reference this metric.
func (m MetricDefinition) Variable() string {
	return CustomVariable(m.Name)
}

// CustomVariable derives "custom_<slug>" from a metric name. Every rune outside
// [A-Za-z0-9_] becomes '_'.
func CustomVariable(name string) string {
	var b strings.Builder
	b.Grow(len(CustomVariablePrefix) + len(name))
	b.WriteString(CustomVariablePrefix)
	for _, r := range strings.TrimSpace(name) {
		switch {
		case r == '_', r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// MetricEventType names a change to the saved metric set.
type MetricEventType string

const (
	MetricCreated MetricEventType = "created"
	MetricDeleted MetricEventType = "deleted"
)

// MetricEvent is published whenever the saved metric set changes.
type MetricEvent struct {
	Type   MetricEventType  `json:"type"`
	Metric MetricDefinition `json:"metric"`
	At     time.Time        `json:"at"`
}
