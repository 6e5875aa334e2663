package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"

	"github.com/dvloznov/piggyflow/internal/app"
	"github.com/dvloznov/piggyflow/internal/config"
	"github.com/dvloznov/piggyflow/internal/domain"
	"github.com/dvloznov/piggyflow/internal/logger"
	"github.com/dvloznov/piggyflow/internal/store"
)

type command struct {
	run  func(log zerolog.Logger, args []string)
	help string
}

var commands = map[string]command{
	"add":           {runAdd, "Record an expense or income"},
	"edit":          {runEdit, "Change amount, note or date of a transaction"},
	"rm":            {runRemove, "Delete a transaction"},
	"list":          {runList, "List transactions"},
	"categories":    {runCategories, "List categories"},
	"category-add":  {runCategoryAdd, "Create a custom category"},
	"category-rm":   {runCategoryRemove, "Delete a custom category"},
	"summary":       {runSummary, "Show totals for a month"},
	"backup":        {runBackup, "Upload the local database to the remote backup"},
	"restore":       {runRestore, "Replace the local database with the remote backup"},
	"backup-info":   {runBackupInfo, "Show the remote backup"},
	"backup-delete": {runBackupDelete, "Delete the remote backup"},
	"export":        {runExport, "Stream transactions to BigQuery"},
}

var commandOrder = []string{
	"add", "edit", "rm", "list", "categories", "category-add", "category-rm",
	"summary", "backup", "restore", "backup-info", "backup-delete", "export",
}

func main() {
	log := logger.New(logger.Options{Level: os.Getenv("LOG_LEVEL"), Format: "console"})

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch name := os.Args[1]; name {
	case "help", "-h", "--help":
		printUsage()
	default:
		cmd, ok := commands[name]
		if !ok {
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", name)
			printUsage()
			os.Exit(1)
		}
		cmd.run(log, os.Args[2:])
	}
}

func printUsage() {
	fmt.Println("PiggyFlow CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  piggyflow <command> [options]")
	fmt.Println("\nCommands:")
	for _, name := range commandOrder {
		fmt.Printf("  %-14s%s\n", name, commands[name].help)
	}
	fmt.Println("  help          Show this help message")
	fmt.Println("\nRun 'piggyflow <command> -h' for more information on a command.")
}

// session is one CLI invocation's application and context.
type session struct {
	ctx    context.Context
	cancel context.CancelFunc
	app    *app.App
	log    zerolog.Logger
}

func (s *session) Close() {
	if err := s.app.Close(); err != nil {
		s.log.Error().Err(err).Msg("Failed to close application")
	}
	s.cancel()
}

// newFlagSet adds the -config flag every command accepts.
func newFlagSet(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file (or set CONFIG_PATH env)")
	return fs, configPath
}

func open(log zerolog.Logger, configPath string, timeout time.Duration) *session {
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if os.Getenv("LOG_LEVEL") == "" {
		log = log.Level(logger.ParseLevel(cfg.Log.Level))
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	ctx = logger.WithContext(ctx, log)

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		cancel()
		log.Fatal().Err(err).Msg("Failed to initialize application")
	}
	return &session{ctx: ctx, cancel: cancel, app: a, log: log}
}

func parseKind(log zerolog.Logger, s string) domain.Kind {
	kind, err := domain.ParseKind(s)
	if err != nil {
		log.Fatal().Err(err).Msg("Error: -kind must be expense or income")
	}
	return kind
}

func parseDateFlag(log zerolog.Logger, name, s string) civil.Date {
	if s == "" {
		return civil.Date{}
	}
	d, err := domain.ParseDate(s)
	if err != nil {
		log.Fatal().Err(err).Msgf("Error: -%s must be YYYY-MM-DD", name)
	}
	return d
}

func printTransaction(tx domain.Transaction) {
	fmt.Printf("%-8s #%-5d %s  %12s  %s %s", tx.Kind, tx.ID, tx.Date, tx.Amount.StringFixed(2), tx.CategoryEmoji, tx.CategoryName)
	if tx.Note != "" {
		fmt.Printf("  (%s)", tx.Note)
	}
	fmt.Println()
}

func runAdd(log zerolog.Logger, args []string) {
	fs, configPath := newFlagSet("add")
	kind := fs.String("kind", "expense", "expense or income")
	amount := fs.String("amount", "", "Amount, e.g. 12.50")
	date := fs.String("date", "", "Date YYYY-MM-DD (defaults to today)")
	note := fs.String("note", "", "Optional note")
	categoryKey := fs.String("category", "", "Built-in category key, e.g. food")
	categoryID := fs.Int64("category-id", 0, "Custom category id")
	fs.Parse(args)

	if *amount == "" || (*categoryKey == "" && *categoryID == 0) {
		log.Fatal().Msg("Usage: piggyflow add -amount N (-category KEY | -category-id ID) [-kind income] [-date YYYY-MM-DD] [-note TEXT]")
	}

	amt, err := domain.ParseAmount(*amount)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid amount")
	}
	day := parseDateFlag(log, "date", *date)
	if !day.IsValid() {
		day = civil.DateOf(time.Now())
	}

	s := open(log, *configPath, time.Minute)
	defer s.Close()

	tx, err := s.app.Ledger.Record(s.ctx, domain.NewTransaction{
		Kind:     parseKind(log, *kind),
		Amount:   amt,
		Note:     *note,
		Date:     day,
		Category: domain.CategoryRef{Key: *categoryKey, ID: *categoryID},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to record transaction")
	}
	printTransaction(tx)
}

func runEdit(log zerolog.Logger, args []string) {
	fs, configPath := newFlagSet("edit")
	kind := fs.String("kind", "expense", "expense or income")
	id := fs.Int64("id", 0, "Transaction id")
	amount := fs.String("amount", "", "New amount")
	date := fs.String("date", "", "New date YYYY-MM-DD")
	note := fs.String("note", "", "New note")
	clearNote := fs.Bool("clear-note", false, "Remove the note")
	fs.Parse(args)

	if *id <= 0 {
		log.Fatal().Msg("Error: -id is required")
	}
	k := parseKind(log, *kind)

	s := open(log, *configPath, time.Minute)
	defer s.Close()

	cur, err := s.app.Ledger.Get(s.ctx, k, *id)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load transaction")
	}

	edit := domain.TransactionEdit{Amount: cur.Amount, Note: cur.Note, Date: cur.Date}
	if *amount != "" {
		if edit.Amount, err = domain.ParseAmount(*amount); err != nil {
			log.Fatal().Err(err).Msg("Invalid amount")
		}
	}
	if *date != "" {
		edit.Date = parseDateFlag(log, "date", *date)
	}
	if *note != "" || *clearNote {
		edit.Note = *note
	}

	tx, err := s.app.Ledger.Edit(s.ctx, k, *id, edit)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to update transaction")
	}
	printTransaction(tx)
}

func runRemove(log zerolog.Logger, args []string) {
	fs, configPath := newFlagSet("rm")
	kind := fs.String("kind", "expense", "expense or income")
	id := fs.Int64("id", 0, "Transaction id")
	fs.Parse(args)

	if *id <= 0 {
		log.Fatal().Msg("Error: -id is required")
	}
	k := parseKind(log, *kind)

	s := open(log, *configPath, time.Minute)
	defer s.Close()

	if err := s.app.Ledger.Remove(s.ctx, k, *id); err != nil {
		log.Fatal().Err(err).Msg("Failed to delete transaction")
	}
	fmt.Printf("Deleted %s #%d\n", k, *id)
}

func runList(log zerolog.Logger, args []string) {
	fs, configPath := newFlagSet("list")
	kind := fs.String("kind", "", "expense or income (default both)")
	from := fs.String("from", "", "First date YYYY-MM-DD")
	to := fs.String("to", "", "Last date YYYY-MM-DD")
	limit := fs.Int("limit", 50, "Maximum rows, 0 for all")
	fs.Parse(args)

	f := domain.TransactionFilter{
		From:  parseDateFlag(log, "from", *from),
		To:    parseDateFlag(log, "to", *to),
		Limit: *limit,
	}
	if *kind != "" {
		f.Kind = parseKind(log, *kind)
	}

	s := open(log, *configPath, time.Minute)
	defer s.Close()

	txs, err := s.app.Ledger.List(s.ctx, f)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list transactions")
	}

	fmt.Printf("\n=== Transactions (%d) ===\n", len(txs))
	for _, tx := range txs {
		printTransaction(tx)
	}
}

func runCategories(log zerolog.Logger, args []string) {
	fs, configPath := newFlagSet("categories")
	kind := fs.String("kind", "", "expense or income (default all)")
	fs.Parse(args)

	var k domain.Kind
	if *kind != "" {
		k = parseKind(log, *kind)
	}

	s := open(log, *configPath, time.Minute)
	defer s.Close()

	cats, err := s.app.Ledger.Categories(s.ctx, k)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list categories")
	}

	for _, c := range cats {
		if c.Builtin {
			fmt.Printf("  %-14s %s %s\n", c.Key, c.Emoji, c.Name)
		} else {
			fmt.Printf("  #%-13d %s %s\n", c.ID, c.Emoji, c.Name)
		}
	}
}

func runCategoryAdd(log zerolog.Logger, args []string) {
	fs, configPath := newFlagSet("category-add")
	name := fs.String("name", "", "Category name")
	emoji := fs.String("emoji", "", "Category emoji")
	fs.Parse(args)

	s := open(log, *configPath, time.Minute)
	defer s.Close()

	cat, err := s.app.Ledger.CreateCategory(s.ctx, domain.NewCategory{Name: *name, Emoji: *emoji})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create category")
	}
	fmt.Printf("Created category #%d %s %s\n", cat.ID, cat.Emoji, cat.Name)
}

func runCategoryRemove(log zerolog.Logger, args []string) {
	fs, configPath := newFlagSet("category-rm")
	id := fs.Int64("id", 0, "Custom category id")
	fs.Parse(args)

	if *id <= 0 {
		log.Fatal().Msg("Error: -id is required")
	}

	s := open(log, *configPath, time.Minute)
	defer s.Close()

	if err := s.app.Ledger.DeleteCategory(s.ctx, *id); err != nil {
		log.Fatal().Err(err).Msg("Failed to delete category")
	}
	fmt.Printf("Deleted category #%d\n", *id)
}

func runSummary(log zerolog.Logger, args []string) {
	fs, configPath := newFlagSet("summary")
	month := fs.String("month", time.Now().Format("2006-01"), "Month YYYY-MM")
	fs.Parse(args)

	p, err := domain.MonthPeriod(*month)
	if err != nil {
		log.Fatal().Err(err).Msg("Error: -month must be YYYY-MM")
	}

	s := open(log, *configPath, time.Minute)
	defer s.Close()

	sum, err := s.app.Ledger.Summary(s.ctx, p)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to compute summary")
	}

	fmt.Printf("\n=== %s ===\n", *month)
	fmt.Printf("Income:   %12s (%d)\n", sum.TotalIncome.StringFixed(2), sum.IncomeCount)
	fmt.Printf("Expenses: %12s (%d)\n", sum.TotalExpense.StringFixed(2), sum.ExpenseCount)
	fmt.Printf("Balance:  %12s\n", sum.Balance.StringFixed(2))

	if len(sum.Expenses) > 0 {
		fmt.Println("\nExpenses by category:")
		for _, c := range sum.Expenses {
			fmt.Printf("  %s %-16s %12s  %5s%%\n", c.Emoji, c.Name, c.Total.StringFixed(2), c.Share.StringFixed(1))
		}
	}
	if len(sum.Income) > 0 {
		fmt.Println("\nIncome by category:")
		for _, c := range sum.Income {
			fmt.Printf("  %s %-16s %12s  %5s%%\n", c.Emoji, c.Name, c.Total.StringFixed(2), c.Share.StringFixed(1))
		}
	}
}

func runBackup(log zerolog.Logger, args []string) {
	fs, configPath := newFlagSet("backup")
	fs.Parse(args)

	s := open(log, *configPath, 10*time.Minute)
	defer s.Close()

	entry, err := s.app.Coordinator.Backup(s.ctx)
	reportStatus(s.app.Coordinator.Status())
	if err != nil {
		s.Close()
		os.Exit(1)
	}
	fmt.Printf("Remote: %s (%d bytes, modified %s)\n", entry.Name, entry.Size, entry.Modified.Format(time.RFC3339))
}

func runRestore(log zerolog.Logger, args []string) {
	fs, configPath := newFlagSet("restore")
	fs.Parse(args)

	s := open(log, *configPath, 10*time.Minute)
	defer s.Close()

	_, err := s.app.Coordinator.Restore(s.ctx)
	reportStatus(s.app.Coordinator.Status())
	if err != nil {
		s.Close()
		os.Exit(1)
	}
}

func runBackupInfo(log zerolog.Logger, args []string) {
	fs, configPath := newFlagSet("backup-info")
	fs.Parse(args)

	s := open(log, *configPath, time.Minute)
	defer s.Close()

	info, err := s.app.Coordinator.RefreshRemote(s.ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to check remote backup")
	}
	if !info.Present {
		fmt.Println("No remote backup.")
		return
	}
	fmt.Printf("Name:     %s\n", info.Entry.Name)
	fmt.Printf("ID:       %s\n", info.Entry.ID)
	fmt.Printf("Size:     %d bytes\n", info.Entry.Size)
	fmt.Printf("Modified: %s\n", info.Entry.Modified.Format(time.RFC3339))
}

func runBackupDelete(log zerolog.Logger, args []string) {
	fs, configPath := newFlagSet("backup-delete")
	fs.Parse(args)

	s := open(log, *configPath, time.Minute)
	defer s.Close()

	err := s.app.Coordinator.DeleteBackup(s.ctx)
	reportStatus(s.app.Coordinator.Status())
	if err != nil {
		s.Close()
		os.Exit(1)
	}
}

func reportStatus(st store.Status) {
	if st.State == store.StateFailed {
		fmt.Fprintf(os.Stderr, "%s failed (%s): %s\n", st.Operation, st.Failure, st.Message)
		return
	}
	fmt.Printf("%s %s: %s\n", st.Operation, st.State, st.Message)
}

func runExport(log zerolog.Logger, args []string) {
	fs, configPath := newFlagSet("export")
	from := fs.String("from", "", "First date YYYY-MM-DD")
	to := fs.String("to", "", "Last date YYYY-MM-DD")
	fs.Parse(args)

	s := open(log, *configPath, 10*time.Minute)
	defer s.Close()

	txs, err := s.app.Ledger.List(s.ctx, domain.TransactionFilter{
		From: parseDateFlag(log, "from", *from),
		To:   parseDateFlag(log, "to", *to),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list transactions")
	}

	exporter, err := s.app.NewExporter(s.ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create exporter")
	}
	defer exporter.Close()

	if err := exporter.EnsureTable(s.ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to prepare export table")
	}

	n, err := exporter.ExportTransactions(s.ctx, txs)
	if err != nil {
		log.Fatal().Err(err).Int("exported", n).Msg("Export failed")
	}
	fmt.Printf("Exported %d transactions.\n", n)
}
