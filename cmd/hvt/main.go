package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"hvt/internal/builtins"
	"hvt/internal/calibration"
	"hvt/internal/config"
	"hvt/internal/container"
	"hvt/internal/eval"
	"hvt/internal/synlogic"
	"hvt/ports"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// globalFlags override the environment configuration when set
type globalFlags struct {
	cacheDir    string
	useBuiltins bool
	tasksFile   string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:           "hvt",
		Short:         "Hybrid verification of model outputs with rules, judges and calibration",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&flags.cacheDir, "cache-dir", "", "Result cache directory (overrides HVT_CACHE_DIR)")
	rootCmd.PersistentFlags().BoolVar(&flags.useBuiltins, "use-builtins", true, "Register the built-in tasks")
	rootCmd.PersistentFlags().StringVar(&flags.tasksFile, "tasks-file", "", "YAML task file (overrides HVT_TASKS_FILE)")

	rootCmd.AddCommand(
		newVerifyCmd(flags),
		newEvalCmd(flags),
		newFalsePositivesCmd(flags),
		newSynthesizeCmd(flags),
		newCalibrateCmd(),
		newTasksCmd(flags),
	)

	return rootCmd
}

// bootstrap loads configuration, applies flag overrides and builds the container
func bootstrap(cmd *cobra.Command, flags *globalFlags) (*container.Container, error) {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("cache-dir") {
		cfg.Cache.Dir = flags.cacheDir
	}
	if cmd.Flags().Changed("use-builtins") {
		cfg.Tasks.UseBuiltins = flags.useBuiltins
	}
	if cmd.Flags().Changed("tasks-file") {
		cfg.Tasks.File = flags.tasksFile
	}

	return container.Bootstrap(cmd.Context(), cfg, nil)
}

func newVerifyCmd(flags *globalFlags) *cobra.Command {
	var task, prompt, candidate, metadataFile string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify one candidate answer",
		Long: `Verify one candidate and print the verification result as JSON.

Example: hvt verify --task gsm8k_builtin --prompt "What is 5+7?" --candidate 12 --metadata-file ref.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			metadata, err := readMetadata(metadataFile)
			if err != nil {
				return err
			}

			c, err := bootstrap(cmd, flags)
			if err != nil {
				return err
			}
			defer c.Close()

			result, err := c.Service.Verify(cmd.Context(), task, prompt, candidate, metadata)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().StringVar(&task, "task", "", "Registered task name")
	cmd.Flags().StringVar(&prompt, "prompt", "", "Prompt the candidate answers")
	cmd.Flags().StringVar(&candidate, "candidate", "", "Candidate answer")
	cmd.Flags().StringVar(&metadataFile, "metadata-file", "", "JSON object with task metadata")
	cmd.MarkFlagRequired("task")

	return cmd
}

func newEvalCmd(flags *globalFlags) *cobra.Command {
	var task, dataset, reportPath string

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Evaluate a task against a labelled dataset (.jsonl or .xlsx)",
		RunE: func(cmd *cobra.Command, args []string) error {
			examples, err := eval.LoadDataset(dataset)
			if err != nil {
				return err
			}

			c, err := bootstrap(cmd, flags)
			if err != nil {
				return err
			}
			defer c.Close()

			verifier, err := c.Service.Verifier(task)
			if err != nil {
				return err
			}
			report, err := eval.Run(cmd.Context(), task, verifier, examples)
			if err != nil {
				return err
			}

			if reportPath != "" {
				if err := writeReport(report, reportPath); err != nil {
					return err
				}
			}
			return writeJSON(cmd.OutOrStdout(), report)
		},
	}

	cmd.Flags().StringVar(&task, "task", "", "Registered task name")
	cmd.Flags().StringVar(&dataset, "dataset", "", "Labelled dataset path")
	cmd.Flags().StringVar(&reportPath, "report", "", "Write a markdown report, or HTML when the path ends in .html")
	cmd.MarkFlagRequired("task")
	cmd.MarkFlagRequired("dataset")

	return cmd
}

func newFalsePositivesCmd(flags *globalFlags) *cobra.Command {
	var task, prompt, candidatesFile, metadataFile string

	cmd := &cobra.Command{
		Use:   "false-positives",
		Short: "Measure how many known-wrong candidates a task accepts",
		Long: `Verify every line of --candidates-file against one prompt. Each line is a
known-wrong answer, so any PASS is a false positive.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			metadata, err := readMetadata(metadataFile)
			if err != nil {
				return err
			}
			candidates, err := readLines(candidatesFile)
			if err != nil {
				return err
			}

			c, err := bootstrap(cmd, flags)
			if err != nil {
				return err
			}
			defer c.Close()

			verifier, err := c.Service.Verifier(task)
			if err != nil {
				return err
			}
			report, err := eval.RunFalsePositiveSuite(cmd.Context(), verifier, prompt, candidates, metadata)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), report)
		},
	}

	cmd.Flags().StringVar(&task, "task", "", "Registered task name")
	cmd.Flags().StringVar(&prompt, "prompt", "", "Prompt shared by all candidates")
	cmd.Flags().StringVar(&candidatesFile, "candidates-file", "", "File with one adversarial candidate per line")
	cmd.Flags().StringVar(&metadataFile, "metadata-file", "", "JSON object with task metadata")
	cmd.MarkFlagRequired("task")
	cmd.MarkFlagRequired("candidates-file")

	return cmd
}

func newSynthesizeCmd(flags *globalFlags) *cobra.Command {
	var output string
	var count int
	var seed uint64
	var taskNames []string

	cmd := &cobra.Command{
		Use:   "synthesize",
		Short: "Generate verified SynLogic-style examples as JSONL",
		RunE: func(cmd *cobra.Command, args []string) error {
			if count <= 0 {
				return fmt.Errorf("--count must be positive, got %d", count)
			}
			tasks, err := synlogic.TasksByName(taskNames)
			if err != nil {
				return err
			}

			c, err := bootstrap(cmd, flags)
			if err != nil {
				return err
			}
			defer c.Close()

			if err := builtins.RegisterBuiltinTasks(c.Registry, ""); err != nil {
				return err
			}
			lookup := make(map[string]ports.Verifier, len(builtins.TaskNames))
			for _, name := range builtins.TaskNames {
				v, err := c.Service.Verifier(name)
				if err != nil {
					return err
				}
				lookup[name] = v
			}

			dataset, err := synlogic.Synthesize(cmd.Context(), tasks, lookup, count, seed)
			if err != nil {
				return err
			}
			if err := synlogic.ExportJSONL(dataset, output); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d examples to %s\n", len(dataset), output)
			return nil
		},
	}

	cmd.Flags().StringVar(&output, "output", filepath.Join("data", "synlogic.jsonl"), "Output JSONL path")
	cmd.Flags().IntVar(&count, "count", 5, "Examples per task")
	cmd.Flags().Uint64Var(&seed, "seed", 42, "Random seed")
	cmd.Flags().StringSliceVar(&taskNames, "tasks", nil, "Generators to run (default all)")

	return cmd
}

func newCalibrateCmd() *cobra.Command {
	var examplesPath, output string
	var l2 float64

	cmd := &cobra.Command{
		Use:   "calibrate",
		Short: "Fit a calibration model from labelled judge scores",
		RunE: func(cmd *cobra.Command, args []string) error {
			examples, err := calibration.LoadExamples(examplesPath)
			if err != nil {
				return err
			}
			model, err := calibration.Fit(examples, calibration.WithL2(l2))
			if err != nil {
				return err
			}
			report, err := model.Evaluate(examples)
			if err != nil {
				return err
			}
			if err := model.Save(output); err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), report)
		},
	}

	cmd.Flags().StringVar(&examplesPath, "examples", "", "JSON array of {judge_score, human_score, features}")
	cmd.Flags().StringVar(&output, "output", "calibration.json", "Where to write the fitted model")
	cmd.Flags().Float64Var(&l2, "l2", calibration.DefaultL2, "Ridge penalty")
	cmd.MarkFlagRequired("examples")

	return cmd
}

func newTasksCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "tasks",
		Short: "List registered tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := bootstrap(cmd, flags)
			if err != nil {
				return err
			}
			defer c.Close()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tRULE\tJUDGE\tCALIBRATED\tJUDGE_MIN")
			for _, t := range c.Service.Tasks() {
				judge := t.Judge
				if judge == "" {
					judge = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%.2f\n", t.Name, t.Rule, judge, t.Calibrated, t.JudgeMin)
			}
			return w.Flush()
		},
	}
}

func writeReport(report *eval.Report, path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create report directory: %w", err)
		}
	}
	var data []byte
	if strings.EqualFold(filepath.Ext(path), ".html") {
		data = eval.RenderHTML(report)
	} else {
		data = []byte(eval.RenderReport(report))
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write report %s: %w", path, err)
	}
	return nil
}

func readMetadata(path string) (map[string]any, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read metadata %s: %w", path, err)
	}
	var metadata map[string]any
	if err := json.Unmarshal(data, &metadata); err != nil {
		return nil, fmt.Errorf("metadata %s must be a JSON object: %w", path, err)
	}
	return metadata, nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
