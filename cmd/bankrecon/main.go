package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rumor-ml/commons.systems/bankrecon/internal/classify"
	"github.com/rumor-ml/commons.systems/bankrecon/internal/dateparse"
	"github.com/rumor-ml/commons.systems/bankrecon/internal/diag"
	"github.com/rumor-ml/commons.systems/bankrecon/internal/domain"
	"github.com/rumor-ml/commons.systems/bankrecon/internal/ledger"
	"github.com/rumor-ml/commons.systems/bankrecon/internal/ledger/sqlite"
	"github.com/rumor-ml/commons.systems/bankrecon/internal/statement"
	"github.com/rumor-ml/commons.systems/bankrecon/internal/table"
	"github.com/rumor-ml/commons.systems/bankrecon/internal/ui"
)

const version = "0.1.0"

func usage() {
	fmt.Fprint(os.Stderr, `bankrecon - Bank statement ingestion and ledger reconciliation

Usage:
  bankrecon <command> [flags]

Commands:
  parse        Parse a statement file and show what the heuristics decided
  import       Parse a statement and commit it to the ledger as one batch
  rollback     Undo an import batch completely
  recalc       Recalculate every checkpoint for an account
  checkpoints  List an account's balance checkpoints
  investigate  Explain a checkpoint's adjustment day by day
  version      Show version

Run 'bankrecon <command> -h' for command flags.

Examples:
  # Preview a statement without touching the ledger
  bankrecon parse -file statement.xlsx

  # Import with an explicit column mapping and date format
  bankrecon import -db ledger.db -account acb-checking \
      -file jan.csv -map "Ref=reference" -date-format dd/mm/yyyy

  # Undo it
  bankrecon rollback -db ledger.db -batch <batch-id>
`)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "parse":
		err = cmdParse(os.Args[2:])
	case "import":
		err = cmdImport(os.Args[2:])
	case "rollback":
		err = cmdRollback(os.Args[2:])
	case "recalc":
		err = cmdRecalc(os.Args[2:])
	case "checkpoints":
		err = cmdCheckpoints(os.Args[2:])
	case "investigate":
		err = cmdInvestigate(os.Args[2:])
	case "version", "-version", "--version":
		fmt.Printf("bankrecon version %s\n", version)
	case "-h", "-help", "--help", "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", os.Args[1])
		usage()
		os.Exit(2)
	}
	if err != nil {
		ui.Error(err.Error())
		os.Exit(1)
	}
}

// parseFlags are shared by the parse and import commands.
type parseFlags struct {
	file       string
	sheet      string
	dateFormat string
	mapping    string
	keywords   string
}

func registerParseFlags(fs *flag.FlagSet, pf *parseFlags) {
	fs.StringVar(&pf.file, "file", "", "Statement file, .csv or .xlsx (required)")
	fs.StringVar(&pf.sheet, "sheet", "", "Worksheet name (default: first sheet)")
	fs.StringVar(&pf.dateFormat, "date-format", "", "Force the date format (e.g. dd/mm/yyyy) instead of detecting it")
	fs.StringVar(&pf.mapping, "map", "", "Manual column overrides as Header=role pairs, comma separated")
	fs.StringVar(&pf.keywords, "keywords", "", "Custom keyword file (default: embedded keyword sets)")
}

func (pf *parseFlags) run(ctx context.Context) (*statement.Result, error) {
	if pf.file == "" {
		return nil, errors.New("-file flag is required")
	}

	var kind table.Kind
	switch strings.ToLower(filepath.Ext(pf.file)) {
	case ".csv":
		kind = table.KindCSV
	case ".xlsx":
		kind = table.KindXLSX
	default:
		return nil, fmt.Errorf("unsupported file extension %q (expected .csv or .xlsx)", filepath.Ext(pf.file))
	}

	data, err := os.ReadFile(pf.file)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", pf.file, err)
	}

	opts := statement.Options{
		Sheet:      pf.sheet,
		DateFormat: dateparse.Tag(pf.dateFormat),
	}
	if pf.mapping != "" {
		opts.Overrides, err = parseMapping(pf.mapping)
		if err != nil {
			return nil, err
		}
	}
	if pf.keywords != "" {
		opts.Classifier, err = classify.LoadFromFile(pf.keywords)
		if err != nil {
			return nil, err
		}
	}

	return statement.Parse(ctx, data, kind, opts)
}

// parseMapping turns "Ngay GD=date,Ref=reference" into role overrides.
func parseMapping(s string) (map[string]classify.Role, error) {
	overrides := make(map[string]classify.Role)
	for _, pair := range strings.Split(s, ",") {
		header, role, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid -map entry %q (expected Header=role)", pair)
		}
		r := classify.Role(strings.TrimSpace(role))
		if !classify.ValidRole(r) {
			return nil, fmt.Errorf("unknown role %q in -map entry %q", role, pair)
		}
		overrides[strings.TrimSpace(header)] = r
	}
	return overrides, nil
}

func cmdParse(args []string) error {
	fs := flag.NewFlagSet("parse", flag.ExitOnError)
	var pf parseFlags
	registerParseFlags(fs, &pf)
	verbose := fs.Bool("verbose", false, "Show per-row details and diagnostics")
	fs.Parse(args)

	ui.Header("Statement Preview")
	res, err := pf.run(context.Background())
	if err != nil {
		return err
	}

	ui.Success(fmt.Sprintf("Parsed %s: header row %d, %d data rows",
		filepath.Base(pf.file), res.Table.HeaderRowIndex, len(res.Table.Rows)))

	fmt.Printf("\nColumns:\n")
	for _, c := range res.Columns {
		mark := ""
		if c.NeedsReview {
			mark = "  (needs review)"
		}
		fmt.Printf("  %-28s %-12s %.0f%%  %s%s\n",
			c.Header, c.Role, c.Confidence*100, c.Justification, mark)
	}
	if res.DateFormat.Format != "" {
		fmt.Printf("\nDate format: %s (%.0f%% of samples)\n",
			res.DateFormat.Format, res.DateFormat.Confidence*100)
	}

	committable, flagged := splitCandidates(res.Candidates)
	fmt.Printf("\nRows: %d committable, %d flagged\n", len(committable), len(flagged))
	if *verbose {
		for _, c := range res.Candidates {
			printCandidate(&c)
		}
	} else {
		for _, c := range flagged {
			ui.Warning(fmt.Sprintf("row %d: %s", c.RowIndex, strings.Join(c.Problems, "; ")))
		}
	}

	if date, declared, ok := res.Metadata.SuggestedCheckpoint(); ok {
		fmt.Printf("\nSuggested checkpoint: %s declared at %s\n",
			declared, date.Format("2006-01-02"))
	}

	printDiagnostics(res.Diagnostics, *verbose)
	return nil
}

func cmdImport(args []string) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	var pf parseFlags
	registerParseFlags(fs, &pf)
	dbPath := fs.String("db", "ledger.db", "Ledger database file")
	account := fs.String("account", "", "Account ID to import into (required)")
	noCheckpoint := fs.Bool("no-checkpoint", false, "Skip the statement's suggested ending-balance checkpoint")
	skipFlagged := fs.Bool("skip-flagged", false, "Quarantine flagged rows and import the rest")
	fs.Parse(args)

	if *account == "" {
		return errors.New("-account flag is required")
	}

	ctx := context.Background()
	ui.Header("Statement Import")
	ui.Step(1, 3, "Parsing statement")
	res, err := pf.run(ctx)
	if err != nil {
		return err
	}

	committable, flagged := splitCandidates(res.Candidates)
	if len(flagged) > 0 {
		for _, c := range flagged {
			ui.Warning(fmt.Sprintf("row %d: %s", c.RowIndex, strings.Join(c.Problems, "; ")))
		}
		if !*skipFlagged {
			return fmt.Errorf("%d row(s) flagged; fix the source, add -map overrides, or pass -skip-flagged to quarantine them", len(flagged))
		}
		ui.Info(fmt.Sprintf("Quarantining %d flagged row(s)", len(flagged)))
	}
	if len(committable) == 0 {
		return errors.New("no committable rows to import")
	}

	var draft *ledger.CheckpointDraft
	if !*noCheckpoint {
		if date, declared, ok := res.Metadata.SuggestedCheckpoint(); ok {
			draft = &ledger.CheckpointDraft{
				Date:            date,
				DeclaredBalance: declared,
				Note:            fmt.Sprintf("ending balance from %s", filepath.Base(pf.file)),
			}
		} else {
			ui.Info("Statement carries no usable ending balance; importing without a checkpoint")
		}
	}

	ui.Step(2, 3, "Opening ledger")
	store, err := sqlite.Open(*dbPath)
	if err != nil {
		return err
	}
	defer store.Close()
	svc := ledger.NewService(store)

	ui.Step(3, 3, "Committing batch")
	result, err := svc.CommitImport(ctx, *account, filepath.Base(pf.file), committable, draft, time.Now())
	if err != nil {
		return err
	}

	ui.Success(fmt.Sprintf("Imported %d transaction(s) as batch %s", result.Batch.TransactionCount, result.Batch.ID))
	if result.Checkpoint != nil {
		reportCheckpoint(result.Checkpoint)
	}
	fmt.Printf("\nTo undo: bankrecon rollback -db %s -batch %s\n", *dbPath, result.Batch.ID)
	return nil
}

func cmdRollback(args []string) error {
	fs := flag.NewFlagSet("rollback", flag.ExitOnError)
	dbPath := fs.String("db", "ledger.db", "Ledger database file")
	batchID := fs.String("batch", "", "Import batch ID to roll back (required)")
	fs.Parse(args)

	if *batchID == "" {
		return errors.New("-batch flag is required")
	}

	store, err := sqlite.Open(*dbPath)
	if err != nil {
		return err
	}
	defer store.Close()
	svc := ledger.NewService(store)

	res, err := svc.RollbackImport(context.Background(), *batchID)
	if err != nil {
		return err
	}

	ui.Success(fmt.Sprintf("Rolled back batch %s: deleted %d transaction(s)", res.BatchID, res.DeletedTransactions))
	if res.CheckpointRemoved {
		ui.Info("Removed the batch's checkpoint")
	}
	printCheckpointChain(res.Checkpoints)
	return nil
}

func cmdRecalc(args []string) error {
	fs := flag.NewFlagSet("recalc", flag.ExitOnError)
	dbPath := fs.String("db", "ledger.db", "Ledger database file")
	account := fs.String("account", "", "Account ID (required)")
	fs.Parse(args)

	if *account == "" {
		return errors.New("-account flag is required")
	}

	store, err := sqlite.Open(*dbPath)
	if err != nil {
		return err
	}
	defer store.Close()
	svc := ledger.NewService(store)

	cps, err := svc.Recalculate(context.Background(), *account)
	if err != nil {
		return err
	}
	ui.Success(fmt.Sprintf("Recalculated %d checkpoint(s)", len(cps)))
	printCheckpointChain(cps)
	return nil
}

func cmdCheckpoints(args []string) error {
	fs := flag.NewFlagSet("checkpoints", flag.ExitOnError)
	dbPath := fs.String("db", "ledger.db", "Ledger database file")
	account := fs.String("account", "", "Account ID (required)")
	fs.Parse(args)

	if *account == "" {
		return errors.New("-account flag is required")
	}

	store, err := sqlite.Open(*dbPath)
	if err != nil {
		return err
	}
	defer store.Close()
	svc := ledger.NewService(store)

	cps, err := svc.Checkpoints(context.Background(), *account)
	if err != nil {
		return err
	}
	if len(cps) == 0 {
		ui.Info("No checkpoints for this account")
		return nil
	}
	printCheckpointChain(cps)
	return nil
}

func cmdInvestigate(args []string) error {
	fs := flag.NewFlagSet("investigate", flag.ExitOnError)
	dbPath := fs.String("db", "ledger.db", "Ledger database file")
	account := fs.String("account", "", "Account ID (required)")
	checkpointID := fs.String("checkpoint", "", "Checkpoint ID to investigate (required)")
	fs.Parse(args)

	if *account == "" || *checkpointID == "" {
		return errors.New("-account and -checkpoint flags are required")
	}

	store, err := sqlite.Open(*dbPath)
	if err != nil {
		return err
	}
	defer store.Close()
	svc := ledger.NewService(store)

	inv, err := svc.Investigate(context.Background(), *account, *checkpointID)
	if err != nil {
		return err
	}

	ui.Header("Discrepancy Investigation")
	cp := inv.Checkpoint
	fmt.Printf("Checkpoint %s on %s\n", cp.ID, cp.Date.Format("2006-01-02"))
	if inv.PeriodStart != nil {
		fmt.Printf("Period:    after %s, balance %s\n",
			inv.PeriodStart.Format("2006-01-02"), inv.PeriodStartBalance)
	} else {
		fmt.Printf("Period:    account opening, balance %s\n", inv.PeriodStartBalance)
	}
	fmt.Printf("Declared:  %s\n", cp.DeclaredBalance)
	fmt.Printf("Credits:   %s\n", inv.TotalCredits)
	fmt.Printf("Debits:    %s\n", inv.TotalDebits)
	fmt.Printf("Expected change: %s\n", inv.ExpectedChange)
	fmt.Printf("Actual change:   %s\n", inv.ActualChange)
	if inv.Difference.IsZero() {
		ui.Success("Fully explained: no unattributed difference")
	} else {
		ui.Warning(fmt.Sprintf("Unexplained difference: %s", inv.Difference))
	}

	for _, d := range inv.Days {
		fmt.Printf("\n%s  net %s, running %s\n",
			d.Date.Format("2006-01-02"), d.NetChange, d.RunningTotal)
		for _, t := range d.Transactions {
			fmt.Printf("  %-7s %12s  %s\n", t.Direction, t.Amount, t.Description)
		}
	}
	return nil
}

func splitCandidates(all []domain.CandidateTransaction) (committable, flagged []domain.CandidateTransaction) {
	for _, c := range all {
		if c.Committable() {
			committable = append(committable, c)
		} else {
			flagged = append(flagged, c)
		}
	}
	return committable, flagged
}

func printCandidate(c *domain.CandidateTransaction) {
	date := "??"
	if !c.Date.IsZero() {
		date = c.Date.Format("2006-01-02")
	}
	amt, dir, ok := c.Amount()
	amount := "??"
	if ok {
		amount = fmt.Sprintf("%s %s", dir, amt)
	}
	fmt.Printf("  row %-4d %s  %-20s %s\n", c.RowIndex, date, amount, c.Description)
	for _, p := range c.Problems {
		ui.Warning(fmt.Sprintf("    %s", p))
	}
}

func reportCheckpoint(cp *domain.Checkpoint) {
	if cp.IsReconciled {
		ui.Success(fmt.Sprintf("Checkpoint %s reconciled: declared %s matches calculated balance",
			cp.Date.Format("2006-01-02"), cp.DeclaredBalance))
		return
	}
	ui.Warning(fmt.Sprintf("Checkpoint %s: declared %s, calculated %s, adjustment %s",
		cp.Date.Format("2006-01-02"), cp.DeclaredBalance, cp.CalculatedBalance, cp.AdjustmentAmount))
	ui.Info("Run 'bankrecon investigate' to break the difference down by day")
}

func printCheckpointChain(cps []domain.Checkpoint) {
	if len(cps) == 0 {
		return
	}
	fmt.Printf("\n%-36s %-12s %14s %14s %12s  %s\n",
		"ID", "Date", "Declared", "Calculated", "Adjustment", "Status")
	for _, cp := range cps {
		status := ui.YellowText("discrepancy")
		if cp.IsReconciled {
			status = "reconciled"
		}
		owner := ""
		if cp.ImportOwned() {
			owner = "  [import]"
		}
		fmt.Printf("%-36s %-12s %14s %14s %12s  %s%s\n",
			cp.ID, cp.Date.Format("2006-01-02"),
			cp.DeclaredBalance, cp.CalculatedBalance, cp.AdjustmentAmount,
			status, owner)
	}
}

func printDiagnostics(entries []diag.Entry, verbose bool) {
	if len(entries) == 0 {
		return
	}
	fmt.Printf("\n")
	for _, e := range entries {
		switch e.Severity {
		case diag.SeverityWarning:
			ui.Warning(fmt.Sprintf("[%s] %s", e.Stage, e.Message))
		case diag.SeverityError:
			ui.Error(fmt.Sprintf("[%s] %s", e.Stage, e.Message))
		default:
			if verbose {
				ui.Info(fmt.Sprintf("[%s] %s", e.Stage, e.Message))
			}
		}
	}
}
