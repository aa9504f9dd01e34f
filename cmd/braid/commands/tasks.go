package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/braidml/braid/internal/printer"
	"github.com/braidml/braid/internal/registry"
	"github.com/braidml/braid/internal/runconfig"
	"github.com/braidml/braid/internal/taskdef"
)

var (
	tasksConfigPath   string
	tasksTaskDefsPath string
	tasksJSON         bool
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Show the resolved task registration table",
	Long: `Register the configured train tasks without touching any data files and
print the resolved table: ids, sharing slots, decoder options, losses and
dropout. Useful to verify a run config before training.

Use --json for machine-readable output.`,
	RunE: runTasks,
}

func init() {
	tasksCmd.Flags().StringVarP(&tasksConfigPath, "config", "c", "braid.yml", "Path to the run config YAML")
	tasksCmd.Flags().StringVar(&tasksTaskDefsPath, "task-defs", "task_defs.yml", "Path to the task definitions YAML")
	tasksCmd.Flags().BoolVar(&tasksJSON, "json", false, "Output in JSON format")
	rootCmd.AddCommand(tasksCmd)
}

func runTasks(cmd *cobra.Command, args []string) error {
	cfg, err := runconfig.Load(tasksConfigPath)
	if err != nil {
		return printer.Error("Failed to load run config", err.Error())
	}
	defs, err := taskdef.Load(tasksTaskDefsPath)
	if err != nil {
		return printer.Error("Failed to load task definitions", err.Error())
	}
	if len(cfg.TrainDatasets) == 0 {
		return printer.Error("No train datasets configured",
			"Add a train_datasets list to the run config.")
	}

	reg := registry.New(defs, registry.Options{
		ClassSharing:   cfg.ClassSharing,
		AnswerOpt:      cfg.AnswerOpt,
		DefaultDropout: cfg.DropoutP,
	})
	for _, datasetID := range cfg.TrainDatasets {
		if _, err := reg.Register(datasetID); err != nil {
			return printer.Error("Task registration failed", err.Error())
		}
	}
	if _, err := reg.Finalize(); err != nil {
		return printer.Error("Task registration failed", err.Error())
	}

	if tasksJSON {
		return writeTasksJSON(os.Stdout, reg.Tasks())
	}
	formatTaskTable(os.Stdout, reg.Tasks())
	return nil
}

// formatTaskTable writes the registered tasks as a formatted table.
func formatTaskTable(w io.Writer, tasks []*registry.Task) {
	fmt.Fprintf(w, "%-12s %-4s %-4s %-18s %-7s %-5s %-7s %s\n",
		"PREFIX", "ID", "SLOT", "TYPE", "CLASSES", "DOPT", "DROPOUT", "LOSS")
	fmt.Fprintf(w, "%-12s %-4s %-4s %-18s %-7s %-5s %-7s %s\n",
		"------------", "----", "----", "------------------", "-------", "-----", "-------", "----------------")

	for _, t := range tasks {
		fmt.Fprintf(w, "%-12s %-4d %-4d %-18s %-7d %-5d %-7.2f %s\n",
			t.Prefix, t.TaskID, t.ConfigID, t.Type, t.NClass, t.DecoderOpt, t.DropoutP, t.Loss)
	}

	taskWord := "task"
	if len(tasks) != 1 {
		taskWord = "tasks"
	}
	fmt.Fprintf(w, "\n%d %s registered\n", len(tasks), taskWord)
}

type taskJSON struct {
	Prefix     string           `json:"prefix"`
	TaskID     int              `json:"task_id"`
	ConfigID   int              `json:"config_id"`
	Type       taskdef.TaskType `json:"task_type"`
	NClass     int              `json:"n_class"`
	DecoderOpt int              `json:"decoder_opt"`
	DropoutP   float64          `json:"dropout_p"`
	Loss       taskdef.LossType `json:"loss"`
	KDLoss     taskdef.LossType `json:"kd_loss"`
	Pairwise   bool             `json:"pairwise"`
}

// writeTasksJSON writes tasks as line-delimited JSON, one task per line.
func writeTasksJSON(w io.Writer, tasks []*registry.Task) error {
	for _, t := range tasks {
		data, err := json.Marshal(taskJSON{
			Prefix:     t.Prefix,
			TaskID:     t.TaskID,
			ConfigID:   t.ConfigID,
			Type:       t.Type,
			NClass:     t.NClass,
			DecoderOpt: t.DecoderOpt,
			DropoutP:   t.DropoutP,
			Loss:       t.Loss,
			KDLoss:     t.KDLoss,
			Pairwise:   t.Pairwise,
		})
		if err != nil {
			return fmt.Errorf("failed to marshal task to JSON: %w", err)
		}
		if _, err := fmt.Fprintf(w, "%s\n", string(data)); err != nil {
			return fmt.Errorf("failed to write JSON output: %w", err)
		}
	}
	return nil
}
