// Package config resolves chartex settings from a YAML file,
// environment variables, and CLI flags, recording where each value
// came from so `chartex config` can explain the effective setup.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type ValueSource string

const (
	SourceUnknown ValueSource = "unknown"
	SourceConfig  ValueSource = "config"
	SourceEnv     ValueSource = "env"
	SourceCLI     ValueSource = "cli"
	SourceDefault ValueSource = "default"
)

type ResolvedValue struct {
	Value  string      `json:"value"`
	Source ValueSource `json:"source"`
	From   string      `json:"from,omitempty"`
}

type ResolveOptions struct {
	ConfigPath   string
	CLIDBPath    string
	CLIIndexPath string
	CLISourceDir string
	CLILLM       string
}

// CategorySpec binds one record category to its section heading
// labels and whether its records are forwarded to the search index.
type CategorySpec struct {
	Name    string   `yaml:"name" json:"name"`
	Labels  []string `yaml:"labels" json:"labels"`
	Indexed bool     `yaml:"indexed" json:"indexed"`
}

type ResolvedConfig struct {
	ConfigPath string `json:"config_path"`

	DBPath      ResolvedValue `json:"db_path"`
	IndexDBPath ResolvedValue `json:"index_db_path"`
	SourceDir   ResolvedValue `json:"source_dir"`

	LLMProvider ResolvedValue `json:"llm_provider"`
	LLMModel    ResolvedValue `json:"llm_model"`
	LLMAPIKey   ResolvedValue `json:"llm_api_key"`

	FrequencyThreshold int `json:"frequency_threshold"`
	MaxLinesAfterDate  int `json:"max_lines_after_date"`

	Categories []CategorySpec `json:"categories"`
}

type fileConfig struct {
	DBPath      string `yaml:"db_path"`
	IndexDBPath string `yaml:"index_db_path"`
	SourceDir   string `yaml:"source_dir"`
	LLM         struct {
		Provider string `yaml:"provider"`
		Model    string `yaml:"model"`
		APIKey   string `yaml:"api_key"`
	} `yaml:"llm"`
	Segmenter struct {
		FrequencyThreshold int `yaml:"frequency_threshold"`
		MaxLinesAfterDate  int `yaml:"max_lines_after_date"`
	} `yaml:"segmenter"`
	Categories []CategorySpec `yaml:"categories"`
}

func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".chartex", "config.yaml")
}

// DefaultCategories are used when the config file declares none.
func DefaultCategories() []CategorySpec {
	return []CategorySpec{
		{Name: "medication", Labels: []string{"Medication Record", "Medication", "Current Medication"}, Indexed: true},
		{Name: "clinical-note", Labels: []string{"Clinical Note", "Progress Note", "Office Visit Note"}, Indexed: true},
	}
}

func Resolve(opts ResolveOptions) (ResolvedConfig, error) {
	path := strings.TrimSpace(opts.ConfigPath)
	if path == "" {
		path = DefaultConfigPath()
	}

	out := ResolvedConfig{ConfigPath: path}

	cfg, err := loadConfig(path)
	if err != nil {
		return out, err
	}

	if cfg != nil {
		apply(&out.DBPath, cfg.DBPath, SourceConfig, path)
		apply(&out.IndexDBPath, cfg.IndexDBPath, SourceConfig, path)
		apply(&out.SourceDir, cfg.SourceDir, SourceConfig, path)
		apply(&out.LLMProvider, cfg.LLM.Provider, SourceConfig, path)
		apply(&out.LLMModel, cfg.LLM.Model, SourceConfig, path)
		apply(&out.LLMAPIKey, cfg.LLM.APIKey, SourceConfig, path)
		out.FrequencyThreshold = cfg.Segmenter.FrequencyThreshold
		out.MaxLinesAfterDate = cfg.Segmenter.MaxLinesAfterDate
		out.Categories = cfg.Categories
	}

	applyEnv(&out.DBPath, "CHARTEX_DB")
	applyEnv(&out.DBPath, "CHARTEX_DB_PATH")
	applyEnv(&out.IndexDBPath, "CHARTEX_INDEX_DB")
	applyEnv(&out.SourceDir, "CHARTEX_SOURCE_DIR")
	applyEnv(&out.LLMProvider, "CHARTEX_LLM")
	applyEnv(&out.LLMModel, "CHARTEX_LLM_MODEL")

	for _, env := range []string{"OPENROUTER_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY"} {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" && out.LLMAPIKey.Value == "" {
			out.LLMAPIKey = ResolvedValue{Value: v, Source: SourceEnv, From: env}
		}
	}

	apply(&out.DBPath, opts.CLIDBPath, SourceCLI, "--db")
	apply(&out.IndexDBPath, opts.CLIIndexPath, SourceCLI, "--index-db")
	apply(&out.SourceDir, opts.CLISourceDir, SourceCLI, "--source-dir")
	apply(&out.LLMProvider, opts.CLILLM, SourceCLI, "--llm")

	if out.DBPath.Value != "" {
		out.DBPath.Value = expandUserPath(out.DBPath.Value)
	}
	if out.IndexDBPath.Value != "" {
		out.IndexDBPath.Value = expandUserPath(out.IndexDBPath.Value)
	}
	if len(out.Categories) == 0 {
		out.Categories = DefaultCategories()
	}

	return out, nil
}

// CategoryByName finds the spec for a category name, nil when unknown.
func (r ResolvedConfig) CategoryByName(name string) *CategorySpec {
	for i := range r.Categories {
		if strings.EqualFold(r.Categories[i].Name, name) {
			return &r.Categories[i]
		}
	}
	return nil
}

func apply(dst *ResolvedValue, raw string, source ValueSource, from string) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return
	}
	*dst = ResolvedValue{Value: v, Source: source, From: from}
}

func applyEnv(dst *ResolvedValue, envKey string) {
	if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
		*dst = ResolvedValue{Value: v, Source: SourceEnv, From: envKey}
	}
}

func loadConfig(path string) (*fileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &cfg, nil
}

func expandUserPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
