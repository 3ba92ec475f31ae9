package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/sentientsergio/synthgen/internal/backend"
	"github.com/sentientsergio/synthgen/internal/config"
	"github.com/sentientsergio/synthgen/internal/driver"
	"github.com/sentientsergio/synthgen/internal/logging"
	"github.com/sentientsergio/synthgen/internal/planner"
	"github.com/sentientsergio/synthgen/internal/refdata"
	"github.com/sentientsergio/synthgen/internal/schema"
	"github.com/sentientsergio/synthgen/internal/sink"
	"github.com/sentientsergio/synthgen/internal/tui"
)

var (
	genSchema  string
	genRefdata string
	genOutput  string
	genSeed    int64
	genTUI     bool
	genReport  string
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate synthetic data for a schema",
	Long: `Run a full generation pass: plan the table order, invoke the
generation backend per table, validate and repair rows, and write each
completed table to the output.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}

		log, err := logging.Setup(cfg.Logging.Level, cfg.Logging.Directory)
		if err != nil {
			return fmt.Errorf("initializing logging: %w", err)
		}

		s, err := schema.LoadYAML(genSchema)
		if err != nil {
			return err
		}
		if err := s.Validate(); err != nil {
			return fmt.Errorf("schema validation: %w", err)
		}

		index := refdata.NewIndex()
		if genRefdata != "" {
			data, err := refdata.LoadDir(genRefdata)
			if err != nil {
				return fmt.Errorf("loading reference data: %w", err)
			}
			index, err = refdata.Merge(s, data)
			if err != nil {
				return fmt.Errorf("merging reference data: %w", err)
			}
		}

		outDir := genOutput
		if outDir == "" {
			outDir = cfg.Output.Directory
		}

		var out sink.Sink
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if cfg.Output.ConnectionString != "" {
			out, err = sink.NewMongoSink(ctx, cfg.Output.ConnectionString, cfg.Output.Database)
			if err != nil {
				return fmt.Errorf("connecting to output database: %w", err)
			}
		} else {
			out, err = sink.NewDirSink(outDir)
			if err != nil {
				return err
			}
		}
		defer out.Close(context.Background())

		seed := genSeed
		if seed == 0 {
			seed = cfg.Seed
		}
		if seed == 0 {
			seed = time.Now().UnixNano()
		}

		opts := driver.Options{
			Schema:      s,
			Index:       index,
			Backend:     backend.NewHTTPGenerator(cfg.Backend.Endpoint, cfg.Backend.APIKey),
			Sink:        out,
			Logger:      log,
			Seed:        seed,
			RowCounts:   cfg.Rows.PerTable,
			DefaultRows: cfg.Rows.Default,
			Retry: driver.RetryPolicy{
				MaxAttempts: cfg.Retry.MaxAttempts,
				BaseDelay:   time.Duration(cfg.Retry.BaseDelay),
				Multiplier:  cfg.Retry.Multiplier,
			},
			Timeout:      time.Duration(cfg.Backend.Timeout),
			MaxRepairs:   cfg.Backend.MaxRepairs,
			FKSampleSize: cfg.Backend.FKSampleSize,
		}

		var report *driver.Report
		if genTUI {
			report, err = runWithTUI(ctx, s, opts)
		} else {
			report, err = driver.New(opts).Run(ctx)
		}
		if err != nil {
			return err
		}

		fmt.Print(report.Summary())

		reportPath := genReport
		if reportPath == "" {
			reportPath = filepath.Join(outDir, "run-report.yaml")
		}
		if err := report.WriteYAML(reportPath); err != nil {
			return err
		}
		fmt.Printf("Run report written to %s\n", reportPath)

		return nil
	},
}

// runWithTUI runs the driver in the background and streams its progress
// events into a bubbletea program.
func runWithTUI(ctx context.Context, s *schema.Schema, opts driver.Options) (*driver.Report, error) {
	order, err := planner.Plan(s)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(tui.NewModel(order))

	type outcome struct {
		report *driver.Report
		err    error
	}
	done := make(chan outcome, 1)

	opts.Progress = func(ev driver.Event) { p.Send(ev) }

	go func() {
		report, err := driver.New(opts).Run(runCtx)
		done <- outcome{report, err}
		p.Send(tui.DoneMsg{Err: err})
	}()

	final, err := p.Run()
	if err != nil {
		cancel()
		<-done
		return nil, fmt.Errorf("running progress display: %w", err)
	}

	if m, ok := final.(tui.Model); ok && m.Quit() {
		cancel()
	}

	res := <-done
	return res.report, res.err
}

func init() {
	generateCmd.Flags().StringVarP(&genSchema, "schema", "s", "schema.yaml", "schema definition file")
	generateCmd.Flags().StringVarP(&genRefdata, "refdata", "r", "", "reference data directory")
	generateCmd.Flags().StringVarP(&genOutput, "output", "o", "", "output directory (default from config)")
	generateCmd.Flags().Int64Var(&genSeed, "seed", 0, "random seed (0 picks one from the clock)")
	generateCmd.Flags().BoolVar(&genTUI, "tui", false, "show live progress display")
	generateCmd.Flags().StringVar(&genReport, "report", "", "run report path (default: <output>/run-report.yaml)")
	_ = generateCmd.MarkFlagRequired("schema")
	rootCmd.AddCommand(generateCmd)
}
