package chaos

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libradoc/internal/catalog"
	"libradoc/internal/config"
	"libradoc/internal/docstore"
	"libradoc/internal/library"
	"libradoc/internal/repository"
)

func newTestEngine(t *testing.T, mode repository.Mode) (*Engine, *bytes.Buffer) {
	t.Helper()

	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.DataDir = dir
	cfg.BooksPath = filepath.Join(dir, "books.json")
	cfg.UsersPath = filepath.Join(dir, "users.json")
	cfg.RentalsPath = filepath.Join(dir, "rentals.json")
	cfg.AuthRatePerMinute = 0
	cfg.WriteRetryDelay = time.Millisecond
	cfg.Mode = mode

	faults := NewFaults()
	lib, err := library.New(cfg, library.WithStoreOptions(docstore.WithRenameFunc(faults.Rename)))
	require.NoError(t, err)

	var out bytes.Buffer
	return NewEngine(lib, faults, &out), &out
}

func TestPredefinedExperimentsHold(t *testing.T) {
	for _, mode := range []repository.Mode{repository.ModeLocked, repository.ModeOptimistic} {
		t.Run(mode.String(), func(t *testing.T) {
			engine, _ := newTestEngine(t, mode)
			engine.RegisterExperiments()

			for _, exp := range engine.Experiments() {
				result, err := engine.RunExperiment(context.Background(), exp)
				require.NoError(t, err, exp.Name)
				assert.True(t, result.SteadyStateValid, exp.Name)
				assert.Empty(t, result.ErrorEvents, exp.Name)
				assert.Empty(t, result.FailedAssertions, exp.Name)
				assert.True(t, result.HypothesisHeld, exp.Name)
			}
			assert.Len(t, engine.Results(), 4)
		})
	}
}

func TestCorruptedRentalsExperimentRecoversAfterReconcile(t *testing.T) {
	engine, _ := newTestEngine(t, repository.ModeLocked)

	result, err := engine.RunExperiment(context.Background(), engine.CorruptedRentalsExperiment())
	require.NoError(t, err)

	require.NotEmpty(t, result.Violations, "the lost rental should be visible while the fault is active")
	assert.Equal(t, "consistency_issues", result.Violations[0].MetricName)
	require.NotNil(t, result.MTTR)
	assert.True(t, result.HypothesisHeld)

	observations := result.Observations["consistency_issues"]
	require.Len(t, observations, 2)
	assert.Equal(t, float64(1), observations[0].Value)
	assert.Equal(t, float64(0), observations[1].Value)
}

func TestRentalWriteFailureExperimentCompensates(t *testing.T) {
	engine, _ := newTestEngine(t, repository.ModeLocked)

	result, err := engine.RunExperiment(context.Background(), engine.RentalWriteFailureExperiment())
	require.NoError(t, err)
	assert.Empty(t, result.Violations)
	assert.Nil(t, result.MTTR)
	assert.True(t, result.HypothesisHeld)

	active, err := engine.lib.Circulation.GetAllActiveRentals(context.Background())
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestRunExperimentAbortsOnBrokenSteadyState(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t, repository.ModeLocked)

	_, err := engine.lib.Catalog.AddBook(ctx, "Orphaned", "Nobody", nil)
	require.NoError(t, err)
	require.NoError(t, engine.lib.Books.Mutate(ctx, func(books []catalog.Book) ([]catalog.Book, error) {
		books[0].Status = catalog.StatusRented
		return books, nil
	}))

	executed := false
	result, err := engine.RunExperiment(ctx, Experiment{
		Name:        "never-runs",
		SteadyState: []Metric{engine.consistencyMetric()},
		Method: []Action{{Execute: func(context.Context) error {
			executed = true
			return nil
		}}},
	})
	require.ErrorIs(t, err, ErrSteadyStateInvalid)
	assert.False(t, result.SteadyStateValid)
	assert.Len(t, result.Violations, 1)
	assert.False(t, executed)
}

func TestFailedAssertionsAreReported(t *testing.T) {
	engine, _ := newTestEngine(t, repository.ModeLocked)

	result, err := engine.RunExperiment(context.Background(), Experiment{
		Name: "always-false",
		SteadyState: []Metric{{
			Name:      "constant",
			Query:     func(context.Context) (float64, error) { return 3, nil },
			Threshold: Threshold{Operator: ">", Value: 0},
		}},
		Validation: []Assertion{
			{Metric: "constant", Condition: func(v float64) bool { return v == 4 }, Message: "constant should be 4"},
			{Metric: "missing", Condition: func(float64) bool { return true }, Message: "missing metric"},
		},
		Samples: 3,
	})
	require.NoError(t, err)
	assert.False(t, result.HypothesisHeld)
	assert.Equal(t, []string{"constant should be 4", "missing metric"}, result.FailedAssertions)
	assert.Len(t, result.Observations["constant"], 4)
}

func TestExecuteGameDay(t *testing.T) {
	engine, out := newTestEngine(t, repository.ModeLocked)
	engine.RegisterExperiments()

	passed, err := engine.ExecuteGameDay(context.Background(), GameDay{
		Name:      "unit game day",
		Date:      time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
		Scenarios: engine.Experiments(),
	})
	require.NoError(t, err)
	assert.True(t, passed)
	assert.Contains(t, out.String(), "Starting game day: unit game day")
	assert.Contains(t, out.String(), "Experiment 4/4: corrupted-rentals-document")
	assert.NotContains(t, out.String(), "Hypothesis violated")
}

func TestFaultsFailNamedDocumentOnly(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "tmp")
	books := filepath.Join(dir, "books.json")
	rentals := filepath.Join(dir, "rentals.json")

	faults := NewFaults()
	faults.FailRenames("books.json", 1)

	require.NoError(t, os.WriteFile(src, []byte("[]"), 0o644))
	assert.ErrorIs(t, faults.Rename(src, books), ErrInjectedFault)
	require.NoError(t, faults.Rename(src, books))

	faults.FailRenames("rentals.json", -1)
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(src, []byte("[]"), 0o644))
		assert.ErrorIs(t, faults.Rename(src, rentals), ErrInjectedFault)
	}

	faults.Clear()
	require.NoError(t, faults.Rename(src, rentals))
}

func TestEvaluateThreshold(t *testing.T) {
	tests := []struct {
		op    string
		value float64
		want  bool
	}{
		{">", 2, true},
		{">", 1, false},
		{"<", 0, true},
		{">=", 1, true},
		{"<=", 2, false},
		{"==", 1, true},
		{"!=", 1, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, evaluateThreshold(tt.value, Threshold{Operator: tt.op, Value: 1}), "%v %s 1", tt.value, tt.op)
	}
}
