package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/config"
	"fintrack/internal/core"
	"fintrack/internal/events"
	"fintrack/internal/log"
	"fintrack/internal/services"
	"fintrack/internal/storage/memory"
)

const masterYAML = `
debtors:
  - id: d1
    name: Alice
    subscriptions:
      - id: d1-gym
        description: Gym
        fee: "10.00"
      - id: d1-pool
        description: Pool
        fee: "15,00"
  - id: d2
    active: false
rules:
  - account_id: acc-1
    description: Rent
    amount: "900.00"
    kind: expense
    category_id: housing
    scope: family
    frequency: monthly
    start_date: "2024-01-31"
`

func testConfig() *config.Config {
	return &config.Config{
		AggregationAccountID:  "acc-1",
		AggregationCategoryID: "fees",
		DueSoonDays:           7,
		LogLevel:              "info",
		LogFormat:             "text",
	}
}

// testEnv runs commands against one shared memory store.
func testEnv(t *testing.T, now time.Time) (*env, *App, *bytes.Buffer) {
	t.Helper()
	out := &bytes.Buffer{}
	app := NewApp(testConfig(), log.Discard(), memory.New(), &events.Recorder{},
		services.WithClock(func() time.Time { return now }))
	e := &env{
		cfg:    app.Config,
		logger: log.Discard(),
		out:    out,
		open: func(context.Context, *config.Config, *log.Logger) (*App, error) {
			return app, nil
		},
	}
	return e, app, out
}

func run(t *testing.T, e *env, args ...string) error {
	t.Helper()
	cmd := newRootCmd(e)
	cmd.SetArgs(args)
	cmd.SetErr(&bytes.Buffer{})
	return cmd.ExecuteContext(context.Background())
}

func TestLoadAndApplySeed(t *testing.T) {
	ctx := context.Background()
	_, app, _ := testEnv(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))

	s, err := loadSeed(strings.NewReader(masterYAML))
	require.NoError(t, err)
	require.Len(t, s.Debtors, 2)

	res, err := applySeed(ctx, app, s)
	require.NoError(t, err)
	assert.Equal(t, seedResult{Debtors: 2, Subscriptions: 2, RulesCreated: 1}, res)

	fees, err := app.Store.Debtors().ActiveFeeTotal(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, core.NewMoney(2500), fees)

	active, err := app.Store.Debtors().ListActiveDebtors(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "Alice", active[0].Name)

	again, err := applySeed(ctx, app, s)
	require.NoError(t, err)
	assert.Equal(t, 0, again.RulesCreated)
	assert.Equal(t, 1, again.RulesSkipped)
}

func TestLoadSeed_RejectsUnknownFields(t *testing.T) {
	_, err := loadSeed(strings.NewReader("debtors:\n  - id: d1\n    nickname: x\n"))
	require.Error(t, err)
}

func TestApplySeed_BadFeeRollsBack(t *testing.T) {
	ctx := context.Background()
	_, app, _ := testEnv(t, time.Now())

	s, err := loadSeed(strings.NewReader(`
debtors:
  - id: d1
    subscriptions:
      - id: d1-a
        fee: "abc"
`))
	require.NoError(t, err)

	_, err = applySeed(ctx, app, s)
	require.Error(t, err)
	assert.True(t, core.IsValidation(err))

	_, err = app.Store.Debtors().GetDebtor(ctx, "d1")
	assert.True(t, core.IsNotFound(err))
}

func TestExportEntriesCSV(t *testing.T) {
	ctx := context.Background()
	e, app, out := testEnv(t, time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC))

	_, err := app.Ledger.Create(ctx, core.LedgerEntry{
		AccountID: "acc-1", Description: "Groceries", Amount: core.NewMoney(4250),
		Kind: core.Expense, CategoryID: "food", Scope: core.Family, Date: core.NewDate(2024, 3, 10),
	}, nil, []string{"weekly"})
	require.NoError(t, err)
	_, err = app.Ledger.Create(ctx, core.LedgerEntry{
		AccountID: "acc-1", Description: "Dinner", Amount: core.NewMoney(3000),
		Kind: core.Expense, CategoryID: "food", Scope: core.Family, Date: core.NewDate(2024, 3, 12), IsSplit: true,
	}, []core.Split{
		{Amount: core.NewMoney(2000), CategoryID: "food", Scope: core.Family},
		{Amount: core.NewMoney(1000), CategoryID: "fun", Scope: core.Personal, Note: "drinks"},
	}, nil)
	require.NoError(t, err)

	require.NoError(t, run(t, e, "export", "entries", "--account", "acc-1"))

	var rows []entryRow
	require.NoError(t, gocsv.UnmarshalString(out.String(), &rows))
	require.Len(t, rows, 3)
	assert.Equal(t, "Dinner", rows[0].Description)
	assert.Equal(t, "fun", rows[1].CategoryID)
	assert.Equal(t, "10.00", rows[1].SplitAmount)
	assert.Equal(t, "Groceries", rows[2].Description)
	assert.Equal(t, "42.50", rows[2].Amount)
	assert.Equal(t, "weekly", rows[2].Tags)
}

func TestAggregateCommand(t *testing.T) {
	ctx := context.Background()
	e, app, out := testEnv(t, time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC))

	s, err := loadSeed(strings.NewReader(masterYAML))
	require.NoError(t, err)
	_, err = applySeed(ctx, app, s)
	require.NoError(t, err)
	_, err = app.Obligations.RecordPayment(ctx, services.PaymentRequest{
		DebtorID: "d1", Period: core.NewPeriod(3, 2024), Amount: core.NewMoney(2500),
	})
	require.NoError(t, err)

	require.NoError(t, run(t, e, "aggregate", "--period", "03/2024"))
	var res services.AggregationResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.Equal(t, services.OutcomeAggregated, res.Outcome)
	require.NotNil(t, res.Receipt)
	assert.Equal(t, 1, res.Receipt.PaymentCount)

	err = run(t, e, "aggregate")
	require.Error(t, err, "one of --period or --auto is required")

	err = run(t, e, "aggregate", "--period", "13/2024")
	require.Error(t, err)
	assert.True(t, core.IsValidation(err))
	assert.True(t, strings.HasPrefix(describe(err), "invalid input: "))
}

func TestRecurringAndObligationCommands(t *testing.T) {
	ctx := context.Background()
	e, app, out := testEnv(t, time.Date(2024, 3, 31, 9, 0, 0, 0, time.UTC))

	s, err := loadSeed(strings.NewReader(masterYAML))
	require.NoError(t, err)
	_, err = applySeed(ctx, app, s)
	require.NoError(t, err)

	require.NoError(t, run(t, e, "recurring", "process", "--date", "2024-03-31"))
	var processed services.ProcessResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &processed))
	assert.Equal(t, 3, processed.EntriesMade)

	out.Reset()
	require.NoError(t, run(t, e, "obligations", "generate", "--period", "2024-04"))
	var gen services.GenerationResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &gen))
	assert.Equal(t, []string{"d1"}, gen.Created)

	out.Reset()
	require.NoError(t, run(t, e, "recurring", "sweep", "--date", "2024-03-31"))
	assert.JSONEq(t, `{"deleted":0}`, out.String())
}

func TestRunMaintenance(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)
	_, app, _ := testEnv(t, now)

	s, err := loadSeed(strings.NewReader(masterYAML))
	require.NoError(t, err)
	_, err = applySeed(ctx, app, s)
	require.NoError(t, err)
	_, err = app.Obligations.RecordPayment(ctx, services.PaymentRequest{
		DebtorID: "d1", Period: core.NewPeriod(3, 2024), Amount: core.NewMoney(2500),
	})
	require.NoError(t, err)

	runMaintenance(ctx, app, now)

	receipts, err := app.Aggregation.History(ctx)
	require.NoError(t, err)
	require.Len(t, receipts, 1)
	assert.Equal(t, core.NewPeriod(3, 2024), receipts[0].Period)

	april, err := app.Obligations.ListObligations(ctx, core.ObligationFilter{DebtorID: "d1"})
	require.NoError(t, err)
	assert.Len(t, april, 2)

	rent, err := app.Ledger.List(ctx, "acc-1", core.EntryFilter{CategoryIDs: []string{"housing"}})
	require.NoError(t, err)
	assert.Len(t, rent, 3)
}
