package builtins

import (
	"fmt"
	"maps"
	"os"
	"strings"
	"time"

	"hvt/adapters/judges"
	"hvt/internal/calibration"
	"hvt/internal/registry"
	"hvt/ports"

	"gopkg.in/yaml.v3"
)

// JudgeSpec describes a judge in a task file
type JudgeSpec struct {
	Kind       string  `yaml:"kind"`
	Confidence float64 `yaml:"confidence"`
	Verdict    *bool   `yaml:"verdict,omitempty"`
	Pattern    string  `yaml:"pattern"`
	Weight     float64 `yaml:"weight"`
	Model      string  `yaml:"model"`
	BaseURL    string  `yaml:"base_url"`
}

// TaskSpec is one entry of a task file
type TaskSpec struct {
	Name             string             `yaml:"name"`
	Rule             string             `yaml:"rule"`
	Judge            *JudgeSpec         `yaml:"judge,omitempty"`
	CalibrationModel string             `yaml:"calibration_model"`
	Thresholds       map[string]float64 `yaml:"thresholds"`
	CacheDir         string             `yaml:"cache_dir"`
}

// TaskFile is the document layout of HVT_TASKS_FILE
type TaskFile struct {
	Tasks []TaskSpec `yaml:"tasks"`
}

// JudgeDefaults fills remote judge settings a task file leaves out
type JudgeDefaults struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// LoadOptions carries the process-level defaults for LoadTaskFile
type LoadOptions struct {
	CacheDir string
	Judge    JudgeDefaults

	// JudgeMin applies to tasks without a judge_min threshold; 0 keeps the registry default
	JudgeMin float64
}

// ParseTaskFile decodes a task file without registering anything
func ParseTaskFile(path string) (*TaskFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read task file: %w", err)
	}
	var file TaskFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse task file %s: %w", path, err)
	}
	return &file, nil
}

// LoadTaskFile registers every task in the YAML file at path and returns
// their names. Nothing is registered when any entry is invalid.
func LoadTaskFile(reg *registry.Registry, path string, opts LoadOptions) ([]string, error) {
	file, err := ParseTaskFile(path)
	if err != nil {
		return nil, err
	}

	type pending struct {
		name string
		rule ports.Rule
		opts []registry.Option
	}
	var tasks []pending
	for i, spec := range file.Tasks {
		name := strings.TrimSpace(spec.Name)
		if name == "" {
			return nil, fmt.Errorf("task file %s: entry %d has no name", path, i)
		}
		rule, err := RuleByName(spec.Rule)
		if err != nil {
			return nil, fmt.Errorf("task %s: %w", name, err)
		}
		taskOpts, err := taskOptions(spec, opts)
		if err != nil {
			return nil, fmt.Errorf("task %s: %w", name, err)
		}
		tasks = append(tasks, pending{name: name, rule: rule, opts: taskOpts})
	}

	names := make([]string, 0, len(tasks))
	for _, t := range tasks {
		if err := reg.Register(t.name, t.rule, t.opts...); err != nil {
			return names, fmt.Errorf("register %s: %w", t.name, err)
		}
		names = append(names, t.name)
	}
	return names, nil
}

func taskOptions(spec TaskSpec, opts LoadOptions) ([]registry.Option, error) {
	var out []registry.Option

	if spec.Judge != nil {
		judge, err := JudgeFromSpec(*spec.Judge, opts.Judge)
		if err != nil {
			return nil, err
		}
		out = append(out, registry.WithJudge(judge))
	}

	if spec.CalibrationModel != "" {
		model, err := calibration.Load(spec.CalibrationModel)
		if err != nil {
			return nil, err
		}
		out = append(out, registry.WithCalibrator(model))
	}

	thresholds := maps.Clone(spec.Thresholds)
	if _, ok := thresholds[registry.ThresholdJudgeMin]; !ok && opts.JudgeMin > 0 {
		if thresholds == nil {
			thresholds = make(map[string]float64)
		}
		thresholds[registry.ThresholdJudgeMin] = opts.JudgeMin
	}
	if len(thresholds) > 0 {
		out = append(out, registry.WithThresholds(thresholds))
	}

	cacheDir := spec.CacheDir
	if cacheDir == "" {
		cacheDir = opts.CacheDir
	}
	if cacheDir != "" {
		out = append(out, registry.WithCacheDir(cacheDir))
	}
	return out, nil
}

// JudgeFromSpec builds a judge of the given kind: static, regex or openai
func JudgeFromSpec(spec JudgeSpec, defaults JudgeDefaults) (ports.Judge, error) {
	switch strings.ToLower(strings.TrimSpace(spec.Kind)) {
	case "static", "mock":
		j := judges.NewStaticJudge(spec.Confidence)
		if spec.Verdict != nil {
			j.Verdict = *spec.Verdict
		}
		if spec.Model != "" {
			j.ModelName = spec.Model
		}
		return j, nil

	case "regex":
		if spec.Pattern == "" {
			return nil, fmt.Errorf("regex judge requires a pattern")
		}
		weight := spec.Weight
		if weight == 0 {
			weight = judges.DefaultRegexWeight
		}
		j, err := judges.NewRegexJudge(spec.Pattern, weight)
		if err != nil {
			return nil, err
		}
		if spec.Model != "" {
			j.ModelName = spec.Model
		}
		return j, nil

	case "openai", "llm", "litellm":
		cfg := judges.OpenAIConfig{
			APIKey:  defaults.APIKey,
			Model:   defaults.Model,
			BaseURL: defaults.BaseURL,
			Timeout: defaults.Timeout,
		}
		if spec.Model != "" {
			cfg.Model = spec.Model
		}
		if spec.BaseURL != "" {
			cfg.BaseURL = spec.BaseURL
		}
		return judges.NewOpenAIJudge(cfg)

	default:
		return nil, fmt.Errorf("unknown judge kind: %q", spec.Kind)
	}
}
