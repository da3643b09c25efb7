package cli

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/spf13/cobra"

	"fintrack/internal/core"
)

// entryRow is one CSV line of an entry export. Split entries produce one
// row per split, sharing the header columns.
type entryRow struct {
	ID          string `csv:"id"`
	Date        string `csv:"date"`
	Description string `csv:"description"`
	Kind        string `csv:"kind"`
	Amount      string `csv:"amount"`
	CategoryID  string `csv:"category"`
	Scope       string `csv:"scope"`
	Tags        string `csv:"tags"`
	SplitAmount string `csv:"split_amount"`
	SplitNote   string `csv:"split_note"`
}

func entryRows(entries []core.LedgerEntry) []entryRow {
	rows := make([]entryRow, 0, len(entries))
	for _, e := range entries {
		base := entryRow{
			ID:          e.ID,
			Date:        e.Date.String(),
			Description: e.Description,
			Kind:        string(e.Kind),
			Amount:      e.Amount.String(),
			CategoryID:  e.CategoryID,
			Scope:       string(e.Scope),
			Tags:        strings.Join(e.Tags, ";"),
		}
		if len(e.Splits) == 0 {
			rows = append(rows, base)
			continue
		}
		for _, s := range e.Splits {
			row := base
			row.CategoryID = s.CategoryID
			row.Scope = string(s.Scope)
			row.SplitAmount = s.Amount.String()
			row.SplitNote = s.Note
			rows = append(rows, row)
		}
	}
	return rows
}

// writeEntriesCSV writes the account's entries matching f to w.
func writeEntriesCSV(ctx context.Context, app *App, accountID string, f core.EntryFilter, w io.Writer) (int, error) {
	entries, err := app.Ledger.List(ctx, accountID, f)
	if err != nil {
		return 0, err
	}
	rows := entryRows(entries)
	if err := gocsv.MarshalCSV(rows, gocsv.NewSafeCSVWriter(csv.NewWriter(w))); err != nil {
		return 0, fmt.Errorf("write entries csv: %w", err)
	}
	return len(entries), nil
}

func newExportCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export ledger data",
	}

	var (
		accountID string
		out       string
		from, to  string
	)
	entries := &cobra.Command{
		Use:   "entries",
		Short: "Write an account's entries as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			var f core.EntryFilter
			var err error
			if f.From, err = core.ParseDate(from); err != nil {
				return err
			}
			if f.To, err = core.ParseDate(to); err != nil {
				return err
			}

			w := e.out
			if out != "" && out != "-" {
				file, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("create %s: %w", out, err)
				}
				defer file.Close()
				w = file
			}

			return e.withApp(cmd.Context(), func(app *App) error {
				n, err := writeEntriesCSV(cmd.Context(), app, accountID, f, w)
				if err != nil {
					return err
				}
				e.logger.Info("Entries exported", "account_id", accountID, "count", n, "file", out)
				return nil
			})
		},
	}
	entries.Flags().StringVar(&accountID, "account", "", "account id")
	entries.Flags().StringVarP(&out, "out", "o", "-", "output file, - for stdout")
	entries.Flags().StringVar(&from, "from", "", "first date (YYYY-MM-DD)")
	entries.Flags().StringVar(&to, "to", "", "last date (YYYY-MM-DD)")
	_ = entries.MarkFlagRequired("account")

	cmd.AddCommand(entries)
	return cmd
}
