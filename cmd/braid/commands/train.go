package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/braidml/braid/internal/baseline"
	"github.com/braidml/braid/internal/pipeline"
	"github.com/braidml/braid/internal/printer"
	"github.com/braidml/braid/internal/runconfig"
	"github.com/braidml/braid/internal/taskdef"
)

var (
	trainConfigPath   string
	trainTaskDefsPath string
	trainDataDir      string
	trainOutputDir    string
	trainEpochs       int
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Run multi-task training and evaluation",
	Long: `Run the full pipeline: register the configured train tasks, derive their
decoding and loss configuration, train over the interleaved multi-task batch
stream, then evaluate every test dataset and write score artifacts.

The run is driven by two YAML files:
  • the run config (schedule, cadences, dataset lists, directories)
  • the task definitions (per-prefix task type, label count, losses, labels)

Training uses the built-in baseline model; checkpoints and score files are
written to the configured output directory.`,
	RunE: runTrain,
}

func init() {
	trainCmd.Flags().StringVarP(&trainConfigPath, "config", "c", "braid.yml", "Path to the run config YAML")
	trainCmd.Flags().StringVar(&trainTaskDefsPath, "task-defs", "task_defs.yml", "Path to the task definitions YAML")
	trainCmd.Flags().StringVar(&trainDataDir, "data-dir", "", "Override the configured data directory")
	trainCmd.Flags().StringVar(&trainOutputDir, "output-dir", "", "Override the configured output directory")
	trainCmd.Flags().IntVar(&trainEpochs, "epochs", 0, "Override the configured epoch count")
	rootCmd.AddCommand(trainCmd)
}

func runTrain(cmd *cobra.Command, args []string) error {
	// Cancel the run cleanly on Ctrl-C / SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := runconfig.Load(trainConfigPath)
	if err != nil {
		return printer.Error("Failed to load run config", err.Error())
	}
	if trainDataDir != "" {
		cfg.DataDir = trainDataDir
	}
	if trainOutputDir != "" {
		cfg.OutputDir = trainOutputDir
	}
	if trainEpochs > 0 {
		cfg.Epochs = trainEpochs
	}

	defs, err := taskdef.Load(trainTaskDefsPath)
	if err != nil {
		return printer.Error("Failed to load task definitions", err.Error())
	}

	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return printer.Error("Failed to create output directory", err.Error())
	}

	printer.Step("Registering %d train task(s)\n", len(cfg.TrainDatasets))

	model := baseline.New(cfg.GradAccumulationStep)
	p, err := pipeline.New(cfg, defs, model)
	if err != nil {
		return printer.Error("Pipeline setup failed", err.Error())
	}
	defer p.Close()

	printer.Step("Training for %d epoch(s) over %d task(s)\n", cfg.Epochs, p.Registry().Len())

	if err := p.Run(ctx); err != nil {
		return printer.Error("Run failed", err.Error())
	}

	printer.Success("Run complete; artifacts written to %s\n", cfg.OutputDir)
	return nil
}
