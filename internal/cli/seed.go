package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/storage"
)

// seedFile is the master data document read by `fintrack seed`.
type seedFile struct {
	Debtors []seedDebtor `yaml:"debtors"`
	Rules   []seedRule   `yaml:"rules"`
}

type seedDebtor struct {
	ID            string             `yaml:"id"`
	Name          string             `yaml:"name"`
	Active        *bool              `yaml:"active"`
	Subscriptions []seedSubscription `yaml:"subscriptions"`
}

type seedSubscription struct {
	ID          string `yaml:"id"`
	Description string `yaml:"description"`
	Fee         string `yaml:"fee"`
	Active      *bool  `yaml:"active"`
}

type seedRule struct {
	AccountID   string `yaml:"account_id"`
	Description string `yaml:"description"`
	Amount      string `yaml:"amount"`
	Kind        string `yaml:"kind"`
	CategoryID  string `yaml:"category_id"`
	Scope       string `yaml:"scope"`
	Frequency   string `yaml:"frequency"`
	StartDate   string `yaml:"start_date"`
	EndDate     string `yaml:"end_date"`
}

type seedResult struct {
	Debtors       int `json:"debtors"`
	Subscriptions int `json:"subscriptions"`
	RulesCreated  int `json:"rules_created"`
	RulesSkipped  int `json:"rules_skipped"`
}

func activeOrDefault(b *bool) bool {
	return b == nil || *b
}

func loadSeed(r io.Reader) (seedFile, error) {
	var s seedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && err != io.EOF {
		return seedFile{}, fmt.Errorf("parse seed file: %w", err)
	}
	return s, nil
}

func (r seedRule) toRule() (core.RecurrenceRule, error) {
	amount, err := core.ParseMoney(r.Amount)
	if err != nil {
		return core.RecurrenceRule{}, core.NewValidationError("amount", err, r.Amount)
	}
	start, err := core.ParseDate(r.StartDate)
	if err != nil {
		return core.RecurrenceRule{}, err
	}
	end, err := core.ParseDate(r.EndDate)
	if err != nil {
		return core.RecurrenceRule{}, err
	}
	return core.RecurrenceRule{
		AccountID:   r.AccountID,
		Description: r.Description,
		Amount:      amount,
		Kind:        core.Kind(r.Kind),
		CategoryID:  r.CategoryID,
		Scope:       core.Scope(r.Scope),
		Frequency:   core.Frequency(r.Frequency),
		StartDate:   start,
		EndDate:     end,
	}, nil
}

// applySeed upserts debtors and subscriptions in one transaction, then
// creates every rule the account does not already have. A rule counts as
// present when description and start date match, so seeding twice is
// harmless.
func applySeed(ctx context.Context, app *App, s seedFile) (seedResult, error) {
	var res seedResult

	err := app.Store.WithinTx(ctx, func(tx storage.Repos) error {
		for _, d := range s.Debtors {
			if d.ID == "" {
				return core.NewValidationError("debtors.id", nil, "required")
			}
			name := d.Name
			if name == "" {
				name = d.ID
			}
			if err := tx.Debtors().UpsertDebtor(ctx, core.Debtor{ID: d.ID, Name: name, Active: activeOrDefault(d.Active)}); err != nil {
				return err
			}
			res.Debtors++
			for _, sub := range d.Subscriptions {
				fee, err := core.ParseMoney(sub.Fee)
				if err != nil {
					return core.NewValidationError("subscriptions.fee", err, fmt.Sprintf("debtor %s: %q", d.ID, sub.Fee))
				}
				if sub.ID == "" {
					return core.NewValidationError("subscriptions.id", nil, "debtor "+d.ID+": required")
				}
				if err := tx.Debtors().UpsertSubscription(ctx, core.Subscription{
					ID:          sub.ID,
					DebtorID:    d.ID,
					Description: sub.Description,
					Fee:         fee,
					Active:      activeOrDefault(sub.Active),
				}); err != nil {
					return err
				}
				res.Subscriptions++
			}
		}
		return nil
	})
	if err != nil {
		return seedResult{}, fmt.Errorf("seed debtors: %w", err)
	}

	for _, sr := range s.Rules {
		rule, err := sr.toRule()
		if err != nil {
			return res, err
		}
		existing, err := app.Recurrence.ListRules(ctx, rule.AccountID)
		if err != nil {
			return res, err
		}
		if hasRule(existing, rule) {
			res.RulesSkipped++
			continue
		}
		if _, err := app.Recurrence.CreateRule(ctx, rule); err != nil {
			return res, fmt.Errorf("seed rule %q: %w", rule.Description, err)
		}
		res.RulesCreated++
	}
	return res, nil
}

func hasRule(rules []core.RecurrenceRule, r core.RecurrenceRule) bool {
	for _, x := range rules {
		if x.Description == r.Description && x.StartDate.Equal(r.StartDate) {
			return true
		}
	}
	return false
}

func newSeedCmd(e *env) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load debtors, subscriptions and rules from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("open seed file: %w", err)
			}
			defer f.Close()
			s, err := loadSeed(f)
			if err != nil {
				return err
			}
			return e.withApp(cmd.Context(), func(app *App) error {
				res, err := applySeed(cmd.Context(), app, s)
				if err != nil {
					return err
				}
				e.logger.Info("Seed applied", "file", file, log.FieldCount, res.Debtors)
				return e.printJSON(res)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "master.yaml", "seed file")
	return cmd
}
