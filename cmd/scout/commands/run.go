package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/hirewire/scout/display"
	"github.com/hirewire/scout/errors"
	"github.com/hirewire/scout/extract"
	"github.com/hirewire/scout/logger"
)

// RunCmd runs an extraction for a job and streams progress to the terminal.
var RunCmd = &cobra.Command{
	Use:   "run <job-id>",
	Short: "Run a batch extraction for a job",
	Long: `Run a batch extraction for the given job.

Applicants come from the configured roster file; profiles and CVs are
fetched over HTTP in fixed-size batches with cooldowns between them.
Ctrl-C requests cancellation: the item in flight finishes, partial
results are preserved and exported.`,
	Args: cobra.ExactArgs(1),
	RunE: runExtraction,
}

var (
	runViewID      string
	runMaxItems    int
	runBatchSize   int
	runCooldownMs  int
	runDownloadCVs bool
	runOutput      string
)

func init() {
	RunCmd.Flags().StringVar(&runViewID, "view", "", "Applicant view to extract (default: all applicants)")
	RunCmd.Flags().IntVar(&runMaxItems, "max-items", -1, "Cap on applicants this run (default: from config)")
	RunCmd.Flags().IntVar(&runBatchSize, "batch-size", 0, "Applicants per batch (default: from config)")
	RunCmd.Flags().IntVar(&runCooldownMs, "cooldown-ms", -1, "Cooldown between batches in ms (default: from config)")
	RunCmd.Flags().BoolVar(&runDownloadCVs, "download-cvs", false, "Also download CV documents")
	RunCmd.Flags().StringVarP(&runOutput, "output", "o", "", "Write results JSON to this file")
}

func runExtraction(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	conn, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	store := extract.NewStore(conn)
	orch := buildOrchestrator(cfg, store, runDownloadCVs || cfg.Extract.DownloadCVs)

	verbose, _ := cmd.Flags().GetBool("verbose")
	renderer := display.NewRenderer(verbose)
	unsub := orch.Events().SubscribeAll(renderer.Handle)
	defer unsub()

	runID, err := orch.Start(runConfigFromFlags(cfg, args[0], runViewID,
		runMaxItems, runBatchSize, runCooldownMs))
	if err != nil {
		return err
	}

	// First Ctrl-C cancels cooperatively; a second one force-exits.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		pterm.Println("\nCancelling (current item will finish)...")
		if err := orch.Cancel(); err != nil {
			logger.Warnw("Cancel request failed", "error", err)
		}
		<-sigCh
		pterm.Println("Force exit")
		os.Exit(1)
	}()

	if err := orch.Wait(context.Background()); err != nil {
		return err
	}

	snap := orch.Snapshot()
	if runOutput != "" {
		f, err := os.Create(runOutput)
		if err != nil {
			return errors.Wrap(err, "failed to create output file")
		}
		defer f.Close()
		if err := orch.ExportResults(f); err != nil {
			return err
		}
		pterm.Printf("Results written to %s\n", runOutput)
	}

	logger.Infow("Run finished", "run_id", runID, "phase", snap.Phase)
	if snap.Phase == extract.PhaseError {
		return errors.Newf("extraction failed: %s", snap.Err)
	}
	return nil
}
