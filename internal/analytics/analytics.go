// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package analytics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/jeranaias/cortexpipe/internal/config"
	"github.com/jeranaias/cortexpipe/internal/util"
	"github.com/jeranaias/cortexpipe/internal/warehouse"
)

// ErrInvalidWindow is returned for non-positive lookback windows.
var ErrInvalidWindow = errors.New("lookback window must be at least one hour")

// MaxErrorDetails is the number of error groups reported in detail.
const MaxErrorDetails = 10

// =============================================================================
// REPORT TYPES
// =============================================================================

// OperationMetrics aggregates one (operation type, model) group. Latency,
// token and cost averages cover successful operations only.
type OperationMetrics struct {
	OperationType        string  `json:"operation_type"`
	ModelName            string  `json:"model_name"`
	TotalOperations      int     `json:"total_operations"`
	SuccessfulOperations int     `json:"successful_operations"`
	SuccessRate          float64 `json:"success_rate"`
	AvgLatencyMs         float64 `json:"avg_latency_ms"`
	P95LatencyMs         float64 `json:"p95_latency_ms"`
	AvgInputTokens       float64 `json:"avg_input_tokens"`
	AvgOutputTokens      float64 `json:"avg_output_tokens"`
	TotalCostUSD         float64 `json:"total_cost_usd"`
	AvgCostPerOperation  float64 `json:"avg_cost_per_operation"`
}

// Summary rolls every group into one line, weighting rates and latencies
// by operation count.
type Summary struct {
	TotalOperations    int     `json:"total_operations"`
	OverallSuccessRate float64 `json:"overall_success_rate"`
	AverageLatencyMs   float64 `json:"average_latency_ms"`
	TotalCostUSD       float64 `json:"total_cost_usd"`
	CostPerOperation   float64 `json:"cost_per_operation"`
}

// PerformanceReport is the result of Performance.
type PerformanceReport struct {
	TimeWindowHours int                `json:"time_window_hours"`
	Operations      []OperationMetrics `json:"metrics_by_operation"`
	Summary         Summary            `json:"summary"`
}

// ErrorGroup counts identical failures.
type ErrorGroup struct {
	OperationType   string    `json:"operation_type"`
	ModelName       string    `json:"model_name"`
	ErrorMessage    string    `json:"error_message"`
	ErrorCount      int       `json:"error_count"`
	FirstOccurrence time.Time `json:"first_occurrence"`
	LastOccurrence  time.Time `json:"last_occurrence"`
}

// ErrorReport is the result of Errors. Details holds at most
// MaxErrorDetails groups; the totals cover every group.
type ErrorReport struct {
	TimeWindowHours  int          `json:"time_window_hours"`
	TotalErrors      int          `json:"total_errors"`
	UniqueErrorTypes int          `json:"unique_error_types"`
	Details          []ErrorGroup `json:"error_details"`
}

// Share returns a group's percentage of all reported errors.
func (r *ErrorReport) Share(g ErrorGroup) float64 {
	if r.TotalErrors == 0 {
		return 0
	}
	return util.Round(float64(g.ErrorCount)/float64(r.TotalErrors)*100, 2)
}

// CostItem is the spend of one (operation type, model) group.
type CostItem struct {
	OperationType        string  `json:"operation_type"`
	ModelName            string  `json:"model_name"`
	TotalCostUSD         float64 `json:"total_cost_usd"`
	SuccessfulOperations int     `json:"successful_operations"`
	TotalInputTokens     int64   `json:"total_input_tokens"`
	TotalOutputTokens    int64   `json:"total_output_tokens"`
	AvgCostPerOperation  float64 `json:"avg_cost_per_operation"`
	CostPercentage       float64 `json:"cost_percentage"`
}

// OperationsPerDollar is the efficiency figure shown on the costs tab. A
// zero cost counts as one dollar.
func (c CostItem) OperationsPerDollar() float64 {
	cost := c.TotalCostUSD
	if cost <= 0 {
		cost = 1
	}
	return float64(c.SuccessfulOperations) / cost
}

// CostReport is the result of Costs.
type CostReport struct {
	TimeWindowHours int        `json:"time_window_hours"`
	TotalCostUSD    float64    `json:"total_cost_usd"`
	Items           []CostItem `json:"cost_by_operation"`
}

// =============================================================================
// ANALYZER
// =============================================================================

// Analyzer runs read-side aggregations over the telemetry table.
type Analyzer struct {
	sess  *warehouse.Session
	table string
}

// New returns an Analyzer reading table.
func New(sess *warehouse.Session, table string) (*Analyzer, error) {
	if !config.IsIdentifier(table) {
		return nil, fmt.Errorf("invalid telemetry table name %q", table)
	}
	return &Analyzer{sess: sess, table: table}, nil
}

// Performance aggregates the last hours of telemetry per operation type and
// model, ordered by operation count.
func (a *Analyzer) Performance(ctx context.Context, hours int) (*PerformanceReport, error) {
	if hours < 1 {
		return nil, ErrInvalidWindow
	}
	d := a.sess.Dialect()

	p95 := "NULL"
	if d.SupportsPercentile() {
		p95 = "PERCENTILE_CONT(0.95) WITHIN GROUP (ORDER BY CASE WHEN success_flag THEN latency_ms END)"
	}

	query := fmt.Sprintf(`SELECT
    operation_type,
    model_name,
    COUNT(*) AS total_operations,
    COUNT(CASE WHEN success_flag THEN 1 END) AS successful_operations,
    AVG(CASE WHEN success_flag THEN latency_ms END) AS avg_latency_ms,
    %s AS p95_latency_ms,
    AVG(CASE WHEN success_flag THEN input_tokens END) AS avg_input_tokens,
    AVG(CASE WHEN success_flag THEN output_tokens END) AS avg_output_tokens,
    SUM(CASE WHEN success_flag THEN cost_usd ELSE 0 END) AS total_cost_usd,
    AVG(CASE WHEN success_flag THEN cost_usd END) AS avg_cost_per_operation
FROM %s
WHERE %s
GROUP BY operation_type, model_name
ORDER BY total_operations DESC, operation_type`, p95, a.table, d.SinceHours("timestamp", hours))

	rows, err := a.sess.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query performance metrics: %w", err)
	}
	defer rows.Close()

	report := &PerformanceReport{TimeWindowHours: hours, Operations: []OperationMetrics{}}
	for rows.Next() {
		var (
			kind                                      string
			model                                     sql.NullString
			total, succ                               int
			avgLat, p95Lat, avgIn, avgOut, sum, avgCo sql.NullFloat64
		)
		if err := rows.Scan(&kind, &model, &total, &succ, &avgLat, &p95Lat, &avgIn, &avgOut, &sum, &avgCo); err != nil {
			return nil, fmt.Errorf("failed to scan performance row: %w", err)
		}

		m := OperationMetrics{
			OperationType:        kind,
			ModelName:            model.String,
			TotalOperations:      total,
			SuccessfulOperations: succ,
			AvgLatencyMs:         util.Round(avgLat.Float64, 2),
			P95LatencyMs:         util.Round(p95Lat.Float64, 2),
			AvgInputTokens:       util.Round(avgIn.Float64, 0),
			AvgOutputTokens:      util.Round(avgOut.Float64, 0),
			TotalCostUSD:         util.Round(sum.Float64, 4),
			AvgCostPerOperation:  util.Round(avgCo.Float64, 6),
		}
		if total > 0 {
			m.SuccessRate = util.Round(float64(succ)/float64(total)*100, 2)
		}
		report.Operations = append(report.Operations, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read performance metrics: %w", err)
	}
	// Release the connection before the second query.
	rows.Close()

	if !d.SupportsPercentile() {
		if err := a.fillP95(ctx, hours, report.Operations); err != nil {
			return nil, err
		}
	}

	report.Summary = Summarize(report.Operations)
	return report, nil
}

// fillP95 computes the success latency percentile in Go for dialects
// without PERCENTILE_CONT.
func (a *Analyzer) fillP95(ctx context.Context, hours int, ops []OperationMetrics) error {
	query := fmt.Sprintf(`SELECT operation_type, COALESCE(model_name, ''), latency_ms
FROM %s
WHERE success_flag AND latency_ms IS NOT NULL AND %s`, a.table, a.sess.Dialect().SinceHours("timestamp", hours))

	rows, err := a.sess.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to query latencies: %w", err)
	}
	defer rows.Close()

	latencies := make(map[[2]string][]float64)
	for rows.Next() {
		var kind, model string
		var latency float64
		if err := rows.Scan(&kind, &model, &latency); err != nil {
			return fmt.Errorf("failed to scan latency row: %w", err)
		}
		key := [2]string{kind, model}
		latencies[key] = append(latencies[key], latency)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read latencies: %w", err)
	}

	for i := range ops {
		values := latencies[[2]string{ops[i].OperationType, ops[i].ModelName}]
		ops[i].P95LatencyMs = util.Round(PercentileCont(values, 0.95), 2)
	}
	return nil
}

// PercentileCont returns the p-th percentile of values using linear
// interpolation between closest ranks, matching SQL PERCENTILE_CONT. It
// returns 0 for no values.
func PercentileCont(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	pos := p * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (sorted[hi]-sorted[lo])*(pos-float64(lo))
}

// Summarize rolls groups into a Summary. The rate and latency are weighted
// by each group's operation count. No groups yield a zero Summary.
func Summarize(ops []OperationMetrics) Summary {
	var (
		total                     int
		cost, rateSum, latencySum float64
	)
	for _, m := range ops {
		total += m.TotalOperations
		cost += m.TotalCostUSD
		rateSum += m.SuccessRate * float64(m.TotalOperations)
		latencySum += m.AvgLatencyMs * float64(m.TotalOperations)
	}
	if total == 0 {
		return Summary{}
	}

	return Summary{
		TotalOperations:    total,
		OverallSuccessRate: util.Round(rateSum/float64(total), 2),
		AverageLatencyMs:   util.Round(latencySum/float64(total), 2),
		TotalCostUSD:       util.Round(cost, 4),
		CostPerOperation:   util.Round(cost/float64(total), 6),
	}
}

// Errors groups failed operations with a message by operation type, model
// and message, most frequent first.
func (a *Analyzer) Errors(ctx context.Context, hours int) (*ErrorReport, error) {
	if hours < 1 {
		return nil, ErrInvalidWindow
	}

	query := fmt.Sprintf(`SELECT
    operation_type,
    model_name,
    error_message,
    COUNT(*) AS error_count,
    MIN(timestamp) AS first_occurrence,
    MAX(timestamp) AS last_occurrence
FROM %s
WHERE success_flag = FALSE
    AND %s
    AND error_message IS NOT NULL
GROUP BY operation_type, model_name, error_message
ORDER BY error_count DESC, operation_type`, a.table, a.sess.Dialect().SinceHours("timestamp", hours))

	rows, err := a.sess.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query errors: %w", err)
	}
	defer rows.Close()

	report := &ErrorReport{TimeWindowHours: hours, Details: []ErrorGroup{}}
	for rows.Next() {
		var (
			g           ErrorGroup
			model       sql.NullString
			first, last any
		)
		if err := rows.Scan(&g.OperationType, &model, &g.ErrorMessage, &g.ErrorCount, &first, &last); err != nil {
			return nil, fmt.Errorf("failed to scan error row: %w", err)
		}
		g.ModelName = model.String
		g.FirstOccurrence = warehouse.AsTime(first)
		g.LastOccurrence = warehouse.AsTime(last)

		report.TotalErrors += g.ErrorCount
		report.UniqueErrorTypes++
		if len(report.Details) < MaxErrorDetails {
			report.Details = append(report.Details, g)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read errors: %w", err)
	}
	return report, nil
}

// Costs breaks spend down per operation type and model, most expensive
// first. Groups without spend are omitted.
func (a *Analyzer) Costs(ctx context.Context, hours int) (*CostReport, error) {
	if hours < 1 {
		return nil, ErrInvalidWindow
	}

	query := fmt.Sprintf(`SELECT
    operation_type,
    model_name,
    SUM(CASE WHEN success_flag THEN cost_usd ELSE 0 END) AS total_cost,
    COUNT(CASE WHEN success_flag THEN 1 END) AS successful_ops,
    SUM(CASE WHEN success_flag THEN input_tokens ELSE 0 END) AS total_input_tokens,
    SUM(CASE WHEN success_flag THEN output_tokens ELSE 0 END) AS total_output_tokens,
    AVG(CASE WHEN success_flag THEN cost_usd END) AS avg_cost_per_op
FROM %s
WHERE %s
GROUP BY operation_type, model_name
HAVING SUM(CASE WHEN success_flag THEN cost_usd ELSE 0 END) > 0
ORDER BY total_cost DESC, operation_type`, a.table, a.sess.Dialect().SinceHours("timestamp", hours))

	rows, err := a.sess.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query costs: %w", err)
	}
	defer rows.Close()

	report := &CostReport{TimeWindowHours: hours, Items: []CostItem{}}
	var total float64
	for rows.Next() {
		var (
			item          CostItem
			model         sql.NullString
			cost, avg     sql.NullFloat64
			tokIn, tokOut sql.NullInt64
		)
		if err := rows.Scan(&item.OperationType, &model, &cost, &item.SuccessfulOperations, &tokIn, &tokOut, &avg); err != nil {
			return nil, fmt.Errorf("failed to scan cost row: %w", err)
		}
		total += cost.Float64

		item.ModelName = model.String
		item.TotalCostUSD = util.Round(cost.Float64, 4)
		item.TotalInputTokens = tokIn.Int64
		item.TotalOutputTokens = tokOut.Int64
		item.AvgCostPerOperation = util.Round(avg.Float64, 6)
		report.Items = append(report.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read costs: %w", err)
	}

	report.TotalCostUSD = util.Round(total, 4)
	for i := range report.Items {
		if total > 0 {
			report.Items[i].CostPercentage = util.Round(report.Items[i].TotalCostUSD/total*100, 2)
		}
	}
	return report, nil
}
