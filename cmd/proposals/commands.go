package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/c360studio/proposals/catalog"
	"github.com/c360studio/proposals/config"
	"github.com/c360studio/proposals/export"
	"github.com/c360studio/proposals/proposal"
	"github.com/c360studio/proposals/recorder"
	"github.com/c360studio/proposals/storage"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

func recordCmd(flags *globalFlags) *cobra.Command {
	var (
		source   string
		template string
		tag      string
		strict   bool
	)

	cmd := &cobra.Command{
		Use:   "record <input|glob>...",
		Short: "Record proposal input files into the Proposals tree",
		Long: `Record reads each YAML or JSON input file and writes it to
<root>/<Year><SemesterCode>/<Version>/input.json. Glob patterns (including **)
are expanded. Each input is copied next to its input.json unless --source names
a different provenance file.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := flags.setup(cmd)
			if err != nil {
				return err
			}

			inputs, err := expandInputs(args)
			if err != nil {
				return err
			}

			app := NewApp(cfg, logger, strict)
			if err := app.Start(cmd.Context()); err != nil {
				return err
			}
			defer app.Shutdown(shutdownTimeout)

			var errs []error
			for _, input := range inputs {
				prov := recorder.Provenance{SourcePath: input, Template: template, Tag: tag}
				if source != "" {
					prov.SourcePath = source
				}
				if err := recordFile(cmd.Context(), app.Recorder(), cmd.OutOrStdout(), input, prov); err != nil {
					errs = append(errs, err)
				}
			}
			return errors.Join(errs...)
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "File copied next to input.json instead of each input")
	cmd.Flags().StringVar(&template, "template", "", "Template identifier stored in provenance.json")
	cmd.Flags().StringVar(&tag, "tag", "", "Version tag stored in provenance.json")
	cmd.Flags().BoolVar(&strict, "strict", false, "Reject records with missing keys or a non-numeric Version")

	return cmd
}

// recordFile records one input and prints the confirmation line.
func recordFile(ctx context.Context, rec *recorder.Recorder, out io.Writer, input string, prov recorder.Provenance) error {
	r, err := proposal.Load(input)
	if err != nil {
		return err
	}
	res, err := rec.Record(ctx, r, prov)
	if err != nil {
		return fmt.Errorf("%s: %w", input, err)
	}
	fmt.Fprintf(out, "Data saved to %s%c\n", res.Dir, filepath.Separator)
	return nil
}

// expandInputs resolves glob arguments to record files. Plain paths are
// passed through untouched so a missing file reports its own error.
func expandInputs(args []string) ([]string, error) {
	var inputs []string
	seen := make(map[string]bool)
	for _, arg := range args {
		if !strings.ContainsAny(arg, "*?[{") {
			if !seen[arg] {
				seen[arg] = true
				inputs = append(inputs, arg)
			}
			continue
		}

		matches, err := doublestar.FilepathGlob(arg)
		if err != nil {
			return nil, fmt.Errorf("resolve pattern %q: %w", arg, err)
		}
		found := false
		for _, m := range matches {
			if !proposal.IsRecordFile(m) || seen[m] {
				continue
			}
			if info, err := os.Stat(m); err != nil || info.IsDir() {
				continue
			}
			seen[m] = true
			found = true
			inputs = append(inputs, m)
		}
		if !found {
			return nil, fmt.Errorf("pattern %q matched no input files", arg)
		}
	}
	return inputs, nil
}

// listRow is one line of the list table.
type listRow struct {
	Term       string
	Version    string
	Project    string
	ProposedBy string
}

func listCmd(flags *globalFlags) *cobra.Command {
	var fromIndex bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded proposals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := flags.setup(cmd)
			if err != nil {
				return err
			}

			var rows []listRow
			source := cfg.Output.Root
			if fromIndex {
				idx, closeIndex, err := openIndex(cmd.Context(), cfg, logger)
				if err != nil {
					return err
				}
				defer closeIndex()
				source = "index " + cfg.NATS.Bucket
				rows, err = indexRows(cmd.Context(), idx)
				if err != nil {
					return err
				}
			} else {
				rows, err = catalogRows(cfg.Output.Root, logger)
				if err != nil {
					return err
				}
			}

			if len(rows) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No proposals recorded under %s\n", source)
				return nil
			}
			return writeRows(cmd.OutOrStdout(), rows)
		},
	}

	cmd.Flags().BoolVar(&fromIndex, "index", false, "Read from the NATS KV index instead of the Proposals tree")
	return cmd
}

func catalogRows(root string, logger *slog.Logger) ([]listRow, error) {
	entries, problems, err := catalog.Scan(root)
	if err != nil {
		return nil, err
	}
	for _, p := range problems {
		logger.Warn("Skipping unreadable proposal", "error", p)
	}

	rows := make([]listRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, listRow{
			Term:       e.Term,
			Version:    e.Version,
			Project:    e.Record.ProjectName(),
			ProposedBy: e.Record.Value(proposal.KeyProposedBy),
		})
	}
	return rows, nil
}

func indexRows(ctx context.Context, idx *storage.Index) ([]listRow, error) {
	entries, err := idx.List(ctx)
	if err != nil {
		return nil, err
	}

	rows := make([]listRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, listRow{
			Term:       e.Term,
			Version:    e.Version,
			Project:    e.Record.ProjectName(),
			ProposedBy: e.Record.Value(proposal.KeyProposedBy),
		})
	}
	return rows, nil
}

func writeRows(w io.Writer, rows []listRow) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TERM\tVERSION\tPROJECT\tPROPOSED BY")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Term, r.Version, r.Project, r.ProposedBy)
	}
	return tw.Flush()
}

// openIndex connects to the configured KV index and returns its close func.
func openIndex(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*storage.Index, func(), error) {
	app := NewApp(cfg, logger, false)
	if err := app.Start(ctx); err != nil {
		return nil, nil, err
	}
	if app.index == nil {
		app.Shutdown(shutdownTimeout)
		return nil, nil, errors.New("proposal index unavailable: set nats.url and nats.bucket to a reachable JetStream server")
	}
	return app.index, func() { app.Shutdown(shutdownTimeout) }, nil
}

// indexRecord looks up one proposal in the KV index.
func indexRecord(ctx context.Context, idx *storage.Index, year, semester, version string) (*proposal.Record, error) {
	code, err := proposal.SemesterCode(semester)
	if err != nil {
		return nil, err
	}
	loc := proposal.Location{Year: year, Code: code, Version: version}
	if err := loc.Validate(); err != nil {
		return nil, err
	}

	e, err := idx.Get(ctx, loc.Key())
	if err != nil {
		return nil, fmt.Errorf("index lookup %s: %w", loc.Key(), err)
	}
	if e.Record == nil {
		return nil, fmt.Errorf("index lookup %s: %w", loc.Key(), storage.ErrNotFound)
	}
	return e.Record, nil
}

func showCmd(flags *globalFlags) *cobra.Command {
	var (
		format    string
		fromIndex bool
	)

	cmd := &cobra.Command{
		Use:   "show <year> <semester> <version>",
		Short: "Show a recorded proposal",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := flags.setup(cmd)
			if err != nil {
				return err
			}
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}

			var rec *proposal.Record
			if fromIndex {
				idx, closeIndex, err := openIndex(cmd.Context(), cfg, logger)
				if err != nil {
					return err
				}
				defer closeIndex()
				rec, err = indexRecord(cmd.Context(), idx, args[0], args[1], args[2])
				if err != nil {
					return err
				}
			} else {
				entry, err := catalog.Find(cfg.Output.Root, args[0], args[1], args[2])
				if err != nil {
					return err
				}
				rec = entry.Record
			}
			return export.NewExporter().Export(cmd.OutOrStdout(), f, rec)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", string(export.FormatJSON),
		"Output format ("+strings.Join(export.FormatNames(), ", ")+")")
	cmd.Flags().BoolVar(&fromIndex, "index", false, "Read from the NATS KV index instead of the Proposals tree")
	return cmd
}

func exportCmd(flags *globalFlags) *cobra.Command {
	var (
		format string
		output string
	)

	cmd := &cobra.Command{
		Use:   "export <input>",
		Short: "Convert an input file without recording it",
		Long: `Export converts an input file to another format without recording it.
With --output naming a directory, the file is written there as <input name><format extension>.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, _, err := flags.setup(cmd); err != nil {
				return err
			}
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}

			r, err := proposal.Load(args[0])
			if err != nil {
				return err
			}
			if output == "" {
				return export.NewExporter().Export(cmd.OutOrStdout(), f, r)
			}

			path := exportPath(output, args[0], f)
			file, err := os.Create(path)
			if err != nil {
				return fmt.Errorf("create export file: %w", err)
			}
			if err := export.NewExporter().Export(file, f, r); err != nil {
				_ = file.Close()
				return err
			}
			if err := file.Close(); err != nil {
				return fmt.Errorf("close export file: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", string(export.FormatMarkdown),
		"Output format ("+strings.Join(export.FormatNames(), ", ")+")")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to this file or directory instead of stdout")
	return cmd
}

// exportPath resolves --output. A directory gets the input's base name with
// the format's extension.
func exportPath(output, input string, format export.Format) string {
	info, err := os.Stat(output)
	if err != nil || !info.IsDir() {
		return output
	}
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	if fi, ok := export.GetFormatInfo(format); ok {
		base += fi.Extension
	}
	return filepath.Join(output, base)
}

func semestersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "semesters",
		Short: "List accepted semester names and their codes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tCODE")
			for _, s := range proposal.Semesters() {
				fmt.Fprintf(tw, "%s\t%s\n", s.Name, s.Code)
			}
			return tw.Flush()
		},
	}
}

func configCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration files",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write the default user config if none exists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(cmd.ErrOrStderr(), flags.logLevel)
			path, created, err := config.NewLoader(logger).EnsureUserConfig()
			if err != nil {
				return fmt.Errorf("init user config: %w", err)
			}
			if created {
				fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", path)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s already exists\n", path)
			}
			return nil
		},
	})
	return cmd
}
