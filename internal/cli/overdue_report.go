package cli

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mrlokans/lending/internal/config"
	"github.com/mrlokans/lending/internal/database/loans"
)

// OverdueReportCommand prints open loans past due with the fine each would
// owe if returned at the report time.
type OverdueReportCommand struct {
	AsOf         time.Time
	DatabasePath string
	JSON         bool

	Out io.Writer
}

// OverdueLine is one row of the report.
type OverdueLine struct {
	LoanID          uint            `json:"loan_id"`
	UserID          uint            `json:"user_id"`
	BookID          uint            `json:"book_id"`
	Title           string          `json:"title"`
	DueDate         time.Time       `json:"due_date"`
	DaysLate        int             `json:"days_late"`
	ProvisionalFine decimal.Decimal `json:"provisional_fine"`
	Currency        string          `json:"currency"`
}

func NewOverdueReportCommand() *OverdueReportCommand {
	return &OverdueReportCommand{Out: os.Stdout}
}

func (cmd *OverdueReportCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("overdue-report", flag.ContinueOnError)

	var asOf string
	fs.StringVar(&asOf, "as-of", "", "Report time, YYYY-MM-DD or RFC3339 (default: now)")
	fs.StringVar(&cmd.DatabasePath, "db", "", "SQLite database path (defaults to DATABASE_PATH)")
	fs.BoolVar(&cmd.JSON, "json", false, "Print JSON instead of a table")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s overdue-report [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "List open loans past their due date with provisional fines.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	cmd.AsOf = time.Now().UTC()
	if asOf != "" {
		t, err := parseAsOf(asOf)
		if err != nil {
			return err
		}
		cmd.AsOf = t
	}
	return nil
}

func parseAsOf(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid -as-of %q: use YYYY-MM-DD or RFC3339", raw)
	}
	return t.UTC(), nil
}

func (cmd *OverdueReportCommand) Run(cfg *config.Config) error {
	db, err := openDatabase(cfg.Database, cmd.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()

	ledger, err := loans.NewLedgerFromConfig(db.DB, cfg.Lending)
	if err != nil {
		return err
	}

	lines, err := BuildOverdueReport(context.Background(), ledger, cmd.AsOf)
	if err != nil {
		return err
	}

	if cmd.JSON {
		enc := json.NewEncoder(cmd.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(lines)
	}
	return writeOverdueTable(cmd.Out, lines, cmd.AsOf)
}

// BuildOverdueReport prices every overdue open loan as of asOf.
func BuildOverdueReport(ctx context.Context, ledger *loans.Ledger, asOf time.Time) ([]OverdueLine, error) {
	overdue, err := ledger.ListOverdue(ctx, asOf)
	if err != nil {
		return nil, err
	}

	currency := ledger.Policy().Currency
	lines := make([]OverdueLine, 0, len(overdue))
	for _, loan := range overdue {
		a := ledger.ProvisionalFine(loan, asOf)
		line := OverdueLine{
			LoanID:          loan.ID,
			UserID:          loan.UserID,
			BookID:          loan.BookID,
			DueDate:         loan.DueDate,
			DaysLate:        a.DaysLate,
			ProvisionalFine: a.Amount,
			Currency:        currency,
		}
		if loan.Book != nil {
			line.Title = loan.Book.Title
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func writeOverdueTable(out io.Writer, lines []OverdueLine, asOf time.Time) error {
	fmt.Fprintf(out, "Overdue loans as of %s\n", asOf.Format(time.RFC3339))
	if len(lines) == 0 {
		fmt.Fprintln(out, "None.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "LOAN\tUSER\tBOOK\tDUE\tDAYS LATE\tFINE")
	total := decimal.Zero
	for _, l := range lines {
		fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%d\t%s %s\n",
			l.LoanID, l.UserID, l.Title, l.DueDate.Format(time.DateOnly), l.DaysLate, l.ProvisionalFine.StringFixed(2), l.Currency)
		total = total.Add(l.ProvisionalFine)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "%d loan(s), %s %s accrued\n", len(lines), total.StringFixed(2), lines[0].Currency)
	return nil
}
