package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/pavelanni/examreport/internal/llm"
	"github.com/pavelanni/examreport/internal/llm/prompts"
	"github.com/pavelanni/examreport/internal/model"
	"github.com/pavelanni/examreport/internal/notify"
	"github.com/pavelanni/examreport/internal/report"
	"github.com/pavelanni/examreport/internal/scale"
	"github.com/pavelanni/examreport/internal/sheet"
	"github.com/pavelanni/examreport/internal/store"
)

func convertCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "convert [flags] FILE...",
		Short: "Build a report from quiz export files",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runConvert,
	}
	f := cmd.Flags()
	f.StringP("date", "d", "", "Upload date in YYYY-MM-DD format (default today)")
	f.StringP("output", "o", "-", "Output CSV path (- for stdout)")
	f.Int("preview", 10, "Rows to show in the preview table (0 to disable)")
	f.Bool("save", false, "Also store the report in the database")
	addStoreFlags(f)
	addTableFlags(f)
	addLogFlags(f)
	return cmd
}

func tableCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "table [SUBJECT...]",
		Short: "Print the loaded score tables",
		RunE:  runTable,
	}
	f := cmd.Flags()
	addTableFlags(f)
	addLogFlags(f)
	return cmd
}

func syncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Push a stored report to a sheet",
		RunE:  runSync,
	}
	f := cmd.Flags()
	f.String("report", "", "Report ID (required)")
	f.String("sheet", "", "Sync target: a sheet name in the database, or a path ending in .csv (required)")
	addStoreFlags(f)
	addLogFlags(f)
	_ = cmd.MarkFlagRequired("report")
	_ = cmd.MarkFlagRequired("sheet")
	return cmd
}

func contactsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contacts",
		Short: "Manage guardian contacts",
	}
	imp := &cobra.Command{
		Use:   "import FILE",
		Short: "Import guardian contacts from a CSV file",
		Args:  cobra.ExactArgs(1),
		RunE:  runContactsImport,
	}
	addStoreFlags(imp.Flags())
	addLogFlags(imp.Flags())
	cmd.AddCommand(imp)
	return cmd
}

func notifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Send score notices for a stored report to guardians",
		RunE:  runNotify,
	}
	f := cmd.Flags()
	f.String("report", "", "Report ID (required)")
	f.String("outbox", "", "Write notices as .eml files to this directory (log only if empty)")
	f.String("from", "", "From address for outbox messages")
	f.String("school", "", "School name used in notices")
	f.String("language", "", "Language for LLM-drafted notices (default English)")
	f.String("tone", string(prompts.ToneStandard), "Notice tone (formal, standard, brief)")
	f.String("llm-url", "", "OpenAI-compatible API base URL; notices use templates if empty")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	addStoreFlags(f)
	addTableFlags(f)
	addLogFlags(f)
	_ = cmd.MarkFlagRequired("report")
	return cmd
}

func runConvert(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	date := v.GetString("date")
	if date == "" {
		date = time.Now().Format(model.DateLayout)
	}
	date, err := report.ParseDate(date)
	if err != nil {
		return err
	}

	tables, err := loadTables(v)
	if err != nil {
		return err
	}
	asm, err := report.NewAssembler(tables, columnsFrom(v))
	if err != nil {
		return err
	}

	inputs := make([]report.Input, 0, len(args))
	for _, path := range args {
		data, err := os.ReadFile(path)
		inputs = append(inputs, report.Input{Name: filepath.Base(path), Data: data, Err: err})
	}
	rep := asm.Build(inputs, date)

	printInputs(os.Stderr, rep)
	if n := v.GetInt("preview"); n > 0 {
		printPreview(os.Stderr, rep.Records, n)
	}

	if err := writeOutput(v.GetString("output"), rep.Records); err != nil {
		return err
	}

	if v.GetBool("save") {
		db, err := store.New(v.GetString("db"))
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()
		if err := db.SaveReport(rep); err != nil {
			return fmt.Errorf("save report: %w", err)
		}
		color.New(color.FgGreen).Fprintf(os.Stderr, "Saved report %s\n", rep.ID)
	}

	if len(rep.Failures()) == len(rep.Inputs) {
		return errors.New("no input could be processed")
	}
	return nil
}

func writeOutput(path string, records []model.Record) error {
	var w io.Writer = os.Stdout
	if path != "" && path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}
	if err := report.WriteCSV(w, records); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// printInputs lists each input with its outcome, failures in red.
func printInputs(w io.Writer, rep model.Report) {
	ok := color.New(color.FgGreen)
	bad := color.New(color.FgRed)
	for _, in := range rep.Inputs {
		if in.Error != "" {
			bad.Fprintf(w, "FAIL %s: %s\n", in.Name, in.Error)
			continue
		}
		ok.Fprintf(w, "OK   %s (%s, %d rows)\n", in.Name, in.Subject, in.Rows)
	}
	fmt.Fprintf(w, "%d records from %d of %d inputs\n",
		rep.RecordCount, len(rep.Inputs)-len(rep.Failures()), len(rep.Inputs))
}

func printPreview(w io.Writer, records []model.Record, limit int) {
	table := tablewriter.NewWriter(w)
	table.SetHeader(append([]string{"Subject"}, report.Headers...))
	for i, r := range records {
		if i == limit {
			break
		}
		table.Append(append([]string{string(r.Subject)}, report.Row(r)...))
	}
	table.Render()
	if len(records) > limit {
		fmt.Fprintf(w, "... %d more\n", len(records)-limit)
	}
}

func runTable(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	tables, err := loadTables(v)
	if err != nil {
		return err
	}
	selected := tables.All()
	if len(args) > 0 {
		selected = selected[:0:0]
		for _, a := range args {
			t, ok := tables.Get(model.Subject(a))
			if !ok {
				return fmt.Errorf("unknown subject %q (have %v)", a, tables.Subjects())
			}
			selected = append(selected, t)
		}
	}
	for _, t := range selected {
		printTable(os.Stdout, t)
	}
	return nil
}

func printTable(w io.Writer, t *scale.Table) {
	color.New(color.FgYellow).Fprintf(w, "\n%s %s\n", t.Subject, t.Name)
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Correct (at least)", "Scaled score"})
	for _, s := range t.Steps() {
		table.Append([]string{strconv.Itoa(s.Correct), strconv.Itoa(s.Score)})
	}
	table.Render()
}

func runSync(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	sink, err := sheet.Open(v.GetString("sheet"), db)
	if err != nil {
		return fmt.Errorf("open sheet: %w", err)
	}
	rep, err := db.GetReport(v.GetString("report"))
	if err != nil {
		return fmt.Errorf("load report: %w", err)
	}

	res, err := sink.Sync(context.Background(), report.Headers, rep.Records)
	if err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	if err := db.MarkSynced(rep.ID, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark synced: %w", err)
	}
	color.Green("Synced report %s: %d appended, %d updated", rep.ID, res.Appended, res.Updated)
	return nil
}

func runContactsImport(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	n, err := notify.ImportContacts(f, db)
	if err != nil {
		return fmt.Errorf("import %s: %w", args[0], err)
	}
	total, err := db.ContactCount()
	if err != nil {
		return err
	}
	color.Green("Imported %d contacts (%d stored)", n, total)
	return nil
}

func runNotify(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	tone := v.GetString("tone")
	if !prompts.IsValidTone(tone) {
		return fmt.Errorf("invalid tone %q", tone)
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	tables, err := loadTables(v)
	if err != nil {
		return err
	}
	rep, err := db.GetReport(v.GetString("report"))
	if err != nil {
		return fmt.Errorf("load report: %w", err)
	}

	svc := &notify.Service{
		Contacts: db,
		Mailer:   notify.LogMailer{},
		Names:    subjectNamer(tables),
		Tone:     prompts.Tone(tone),
		School:   v.GetString("school"),
		Language: v.GetString("language"),
	}
	if dir := v.GetString("outbox"); dir != "" {
		svc.Mailer = &notify.Outbox{Dir: dir, From: v.GetString("from")}
	}

	ctx := context.Background()
	if url := v.GetString("llm-url"); url != "" {
		client, err := llm.New(url, v.GetString("llm-key"), v.GetString("llm-model"), tone)
		if err != nil {
			return fmt.Errorf("create LLM client: %w", err)
		}
		if err := client.Ping(ctx); err != nil {
			return fmt.Errorf("LLM health check: %w", err)
		}
		slog.Info("LLM endpoint OK", "url", url, "model", v.GetString("llm-model"))
		svc.Drafter = client
	}

	sum, err := svc.Notify(ctx, rep.Records)
	if err != nil {
		return err
	}
	color.Green("Sent %d notices (%d drafted), skipped %d students without contacts", sum.Sent, sum.Drafted, sum.Skipped)
	if sum.Failed > 0 {
		color.Red("%d notices failed", sum.Failed)
		return fmt.Errorf("%d notices failed", sum.Failed)
	}
	return nil
}

// subjectNamer shows a table's display name when it has one.
func subjectNamer(tables *scale.Tables) notify.SubjectNamer {
	return func(s model.Subject) string {
		if t, ok := tables.Get(s); ok && t.Name != "" {
			return t.Name
		}
		return string(s)
	}
}
