package repository

import "errors"

var (
	ErrNoData              = errors.New("no data found")
	ErrMetricNotFound      = errors.New("metric not found")
	ErrDuplicateMetricName = errors.New("metric name already exists")
	ErrMetricInUse         = errors.New("metric is referenced by other metrics")
	ErrInvalidFormula      = errors.New("invalid formula")
	ErrInvalidMetric       = errors.New("invalid metric")
	ErrInvalidRange        = errors.New("invalid date range")
	ErrIndicatorNotFound   = errors.New("indicator not found")
	ErrTooManyCoins        = errors.New("too many coins requested")
	ErrUpstream            = errors.New("upstream store error")
)
