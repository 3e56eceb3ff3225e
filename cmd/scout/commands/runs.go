package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/hirewire/scout/errors"
	"github.com/hirewire/scout/extract"
)

// RunsCmd lists past extraction runs from the local database.
var RunsCmd = &cobra.Command{
	Use:     "runs",
	Aliases: []string{"ls"},
	Short:   "List past extraction runs",
	RunE:    listRuns,
}

// ExportCmd writes a stored run's results as JSON.
var ExportCmd = &cobra.Command{
	Use:   "export <run-id>",
	Short: "Export a stored run's results as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  exportRun,
}

var (
	runsLimit    int
	exportOutput string
)

func init() {
	RunsCmd.Flags().IntVar(&runsLimit, "limit", 20, "Maximum runs to list")
	ExportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Write to this file instead of stdout")
}

func listRuns(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	conn, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	runs, err := extract.NewStore(conn).ListRuns(runsLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		pterm.Println("No extraction runs recorded")
		return nil
	}

	rows := pterm.TableData{{"RUN", "JOB", "PHASE", "CURSOR", "STARTED", "DURATION"}}
	for _, run := range runs {
		duration := "-"
		if run.EndTime != nil {
			duration = run.EndTime.Sub(run.StartTime).Round(time.Second).String()
		}
		rows = append(rows, []string{
			shortID(run.ID),
			run.Target.JobID,
			string(run.Phase),
			fmt.Sprintf("%d/%d", run.Cursor, run.TotalItems),
			run.StartTime.Local().Format("2006-01-02 15:04:05"),
			duration,
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
}

func exportRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	conn, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	snap, err := extract.NewStore(conn).GetRun(args[0])
	if err != nil {
		return err
	}

	out := os.Stdout
	if exportOutput != "" {
		f, err := os.Create(exportOutput)
		if err != nil {
			return errors.Wrap(err, "failed to create output file")
		}
		defer f.Close()
		out = f
	}
	return extract.WriteResults(out, *snap)
}

func shortID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}
