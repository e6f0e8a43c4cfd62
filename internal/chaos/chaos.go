// Package chaos runs fault-injection experiments against a library and checks
// that the books and rentals documents stay consistent.
package chaos

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"libradoc/internal/library"
)

// ErrSteadyStateInvalid aborts an experiment that starts from a broken state.
var ErrSteadyStateInvalid = errors.New("steady state invalid - aborting experiment")

// Experiment defines a chaos engineering test.
type Experiment struct {
	Name        string
	Hypothesis  string
	SteadyState []Metric
	Method      []Action
	Rollback    []Action
	Validation  []Assertion

	// Samples is how many times the steady-state metrics are read while the
	// fault is active. Interval separates the samples.
	Samples  int
	Interval time.Duration
}

// Metric defines a measurable system property.
type Metric struct {
	Name      string
	Query     func(context.Context) (float64, error)
	Threshold Threshold
}

type Threshold struct {
	Operator string // >, <, >=, <=, ==
	Value    float64
}

// Action is a fault injection or recovery step.
type Action struct {
	Type    string
	Target  string
	Execute func(context.Context) error
}

// Assertion validates the experiment outcome against the last observation
// of Metric.
type Assertion struct {
	Metric    string
	Condition func(float64) bool
	Message   string
}

// ExperimentResult captures experiment execution data.
type ExperimentResult struct {
	ExperimentName   string                 `json:"experiment_name"`
	StartTime        time.Time              `json:"start_time"`
	EndTime          time.Time              `json:"end_time"`
	Duration         time.Duration          `json:"duration"`
	HypothesisHeld   bool                   `json:"hypothesis_held"`
	SteadyStateValid bool                   `json:"steady_state_valid"`
	Violations       []MetricViolation      `json:"violations"`
	Observations     map[string][]DataPoint `json:"observations"`
	ErrorEvents      []ErrorEvent           `json:"error_events"`
	FailedAssertions []string               `json:"failed_assertions,omitempty"`
	MTTR             *time.Duration         `json:"mttr,omitempty"`
}

type MetricViolation struct {
	MetricName string    `json:"metric_name"`
	Expected   float64   `json:"expected"`
	Actual     float64   `json:"actual"`
	Timestamp  time.Time `json:"timestamp"`
}

type DataPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

type ErrorEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error"`
	Component string    `json:"component"`
}

// Engine orchestrates chaos experiments against one library.
type Engine struct {
	tracer trace.Tracer
	lib    *library.Library
	faults *Faults
	logger *slog.Logger
	out    io.Writer

	experiments []Experiment
	results     []ExperimentResult
	mu          sync.Mutex
}

// NewEngine returns an engine for lib. faults must be the switchboard
// installed in lib's stores.
func NewEngine(lib *library.Library, faults *Faults, out io.Writer) *Engine {
	return &Engine{
		tracer: otel.Tracer("libradoc/chaos"),
		lib:    lib,
		faults: faults,
		logger: slog.Default(),
		out:    out,
	}
}

// RegisterExperiment adds an experiment to the suite.
func (e *Engine) RegisterExperiment(exp Experiment) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.experiments = append(e.experiments, exp)
}

// Experiments returns the registered experiments.
func (e *Engine) Experiments() []Experiment {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Experiment(nil), e.experiments...)
}

// Results returns every completed experiment result.
func (e *Engine) Results() []ExperimentResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]ExperimentResult(nil), e.results...)
}

// RunExperiment executes a single chaos experiment. The steady-state metrics
// are sampled while the fault is active and once more after the rollback;
// assertions look at that final sample.
func (e *Engine) RunExperiment(ctx context.Context, exp Experiment) (*ExperimentResult, error) {
	ctx, span := e.tracer.Start(ctx, "chaos.run_experiment",
		trace.WithAttributes(attribute.String("experiment.name", exp.Name)),
	)
	defer span.End()

	result := &ExperimentResult{
		ExperimentName: exp.Name,
		StartTime:      time.Now(),
		Violations:     []MetricViolation{},
		Observations:   make(map[string][]DataPoint),
		ErrorEvents:    []ErrorEvent{},
	}

	// Phase 1: Validate steady state
	span.AddEvent("validating_steady_state")
	if violations := e.validateSteadyState(ctx, exp.SteadyState); len(violations) > 0 {
		result.Violations = violations
		return result, ErrSteadyStateInvalid
	}
	result.SteadyStateValid = true

	// Phase 2: Inject chaos
	span.AddEvent("injecting_chaos")
	e.runActions(ctx, span, exp.Method, result)

	// Phase 3: Observe system behavior
	span.AddEvent("observing_system")
	tracker := &recovery{}
	samples := max(exp.Samples, 1)
	for i := 0; i < samples; i++ {
		if i > 0 && exp.Interval > 0 {
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-time.After(exp.Interval):
			}
		}
		e.observe(ctx, exp.SteadyState, result, tracker)
	}

	// Phase 4: Rollback chaos injection
	span.AddEvent("rolling_back")
	e.runActions(ctx, span, exp.Rollback, result)
	e.faults.Clear()
	e.observe(ctx, exp.SteadyState, result, tracker)

	// Phase 5: Validate assertions
	span.AddEvent("validating_assertions")
	result.FailedAssertions = validateAssertions(exp.Validation, result)
	result.HypothesisHeld = len(result.FailedAssertions) == 0
	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)

	e.mu.Lock()
	e.results = append(e.results, *result)
	e.mu.Unlock()

	span.SetAttributes(
		attribute.Bool("hypothesis_held", result.HypothesisHeld),
		attribute.Int("violations", len(result.Violations)),
	)
	e.logger.Info("chaos experiment finished",
		"experiment", exp.Name, "hypothesis_held", result.HypothesisHeld, "violations", len(result.Violations))

	return result, nil
}

func (e *Engine) runActions(ctx context.Context, span trace.Span, actions []Action, result *ExperimentResult) {
	for _, action := range actions {
		if err := action.Execute(ctx); err != nil {
			result.ErrorEvents = append(result.ErrorEvents, ErrorEvent{
				Timestamp: time.Now(),
				Error:     err.Error(),
				Component: action.Target,
			})
			span.RecordError(err)
		}
	}
}

// recovery tracks the first violation and the first sample after it that
// is back within threshold.
type recovery struct {
	start     time.Time
	recovered bool
}

func (e *Engine) observe(ctx context.Context, metrics []Metric, result *ExperimentResult, tracker *recovery) {
	for _, metric := range metrics {
		value, err := metric.Query(ctx)
		if err != nil {
			result.ErrorEvents = append(result.ErrorEvents, ErrorEvent{
				Timestamp: time.Now(),
				Error:     err.Error(),
				Component: metric.Name,
			})
			continue
		}

		now := time.Now()
		result.Observations[metric.Name] = append(result.Observations[metric.Name], DataPoint{Timestamp: now, Value: value})

		if !evaluateThreshold(value, metric.Threshold) {
			if tracker.start.IsZero() {
				tracker.start = now
			}
			result.Violations = append(result.Violations, MetricViolation{
				MetricName: metric.Name,
				Expected:   metric.Threshold.Value,
				Actual:     value,
				Timestamp:  now,
			})
		} else if !tracker.start.IsZero() && !tracker.recovered {
			mttr := now.Sub(tracker.start)
			result.MTTR = &mttr
			tracker.recovered = true
		}
	}
}

func (e *Engine) validateSteadyState(ctx context.Context, metrics []Metric) []MetricViolation {
	var violations []MetricViolation

	for _, metric := range metrics {
		value, err := metric.Query(ctx)
		if err != nil {
			value = -1
		}
		if err != nil || !evaluateThreshold(value, metric.Threshold) {
			violations = append(violations, MetricViolation{
				MetricName: metric.Name,
				Expected:   metric.Threshold.Value,
				Actual:     value,
				Timestamp:  time.Now(),
			})
		}
	}

	return violations
}

func evaluateThreshold(value float64, threshold Threshold) bool {
	switch threshold.Operator {
	case ">":
		return value > threshold.Value
	case "<":
		return value < threshold.Value
	case ">=":
		return value >= threshold.Value
	case "<=":
		return value <= threshold.Value
	case "==":
		return value == threshold.Value
	default:
		return false
	}
}

func validateAssertions(assertions []Assertion, result *ExperimentResult) []string {
	var failed []string
	for _, assertion := range assertions {
		observations := result.Observations[assertion.Metric]
		if len(observations) == 0 || !assertion.Condition(observations[len(observations)-1].Value) {
			failed = append(failed, assertion.Message)
		}
	}
	return failed
}

// GameDay is a named series of experiments.
type GameDay struct {
	Name      string
	Date      time.Time
	Scenarios []Experiment
	// Pause separates consecutive experiments.
	Pause time.Duration
}

// ExecuteGameDay runs every scenario and reports whether all hypotheses held.
func (e *Engine) ExecuteGameDay(ctx context.Context, gameDay GameDay) (bool, error) {
	ctx, span := e.tracer.Start(ctx, "chaos.game_day",
		trace.WithAttributes(attribute.String("gameday.name", gameDay.Name)),
	)
	defer span.End()

	fmt.Fprintf(e.out, "Starting game day: %s\n", gameDay.Name)
	fmt.Fprintf(e.out, "Date: %s\n", gameDay.Date.Format(time.RFC3339))

	allHeld := true
	for i, scenario := range gameDay.Scenarios {
		if i > 0 && gameDay.Pause > 0 {
			select {
			case <-ctx.Done():
				return false, ctx.Err()
			case <-time.After(gameDay.Pause):
			}
		}

		fmt.Fprintf(e.out, "\nExperiment %d/%d: %s\n", i+1, len(gameDay.Scenarios), scenario.Name)
		fmt.Fprintf(e.out, "Hypothesis: %s\n", scenario.Hypothesis)

		result, err := e.RunExperiment(ctx, scenario)
		if err != nil {
			allHeld = false
			fmt.Fprintf(e.out, "Experiment failed: %v\n", err)
			continue
		}

		e.printExperimentResult(result)
		allHeld = allHeld && result.HypothesisHeld
	}

	span.SetAttributes(attribute.Bool("gameday.passed", allHeld))
	return allHeld, nil
}

func (e *Engine) printExperimentResult(result *ExperimentResult) {
	if result.HypothesisHeld {
		fmt.Fprintln(e.out, "Hypothesis held - system behaved as expected")
	} else {
		fmt.Fprintln(e.out, "Hypothesis violated - unexpected behavior observed")
		for _, msg := range result.FailedAssertions {
			fmt.Fprintf(e.out, "   - %s\n", msg)
		}
	}

	if len(result.Violations) > 0 {
		fmt.Fprintf(e.out, "Violations detected: %d\n", len(result.Violations))
		for _, v := range result.Violations {
			fmt.Fprintf(e.out, "   - %s: expected %.2f, got %.2f\n", v.MetricName, v.Expected, v.Actual)
		}
	}

	if result.MTTR != nil {
		fmt.Fprintf(e.out, "MTTR: %s\n", *result.MTTR)
	}
	fmt.Fprintf(e.out, "Duration: %s\n", result.Duration)
}
