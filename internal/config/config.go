// Package config layers the runtime configuration: defaults, an optional
// YAML file, DOCFLOW_* environment variables, then CLI flags on top.
// Validation fails fast before any input file is touched.
package config

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sammcj/docflow/internal/docproc"
	"github.com/sammcj/docflow/internal/output"
)

// OCR engine selection
const (
	EngineGutenOCR  = "gutenocr"
	EngineTesseract = "tesseract"
)

// Config is the full runtime configuration for one process
type Config struct {
	InputDir  string `yaml:"input_dir"`
	OutputDir string `yaml:"output_dir"`
	Recursive bool   `yaml:"recursive"`

	Mode         docproc.Mode  `yaml:"mode"`
	OutputFormat output.Format `yaml:"output_format"`
	Individual   bool          `yaml:"individual"` // Also write per-file artifacts

	TaskType         docproc.TaskType  `yaml:"task_type"`
	OCRFormat        docproc.OCRFormat `yaml:"ocr_format"`
	ExtractStructure bool              `yaml:"extract_structure"`
	ExtractTables    bool              `yaml:"extract_tables"`
	MaxTokens        int               `yaml:"max_tokens"`
	Languages        []string          `yaml:"languages"`

	Engine         string `yaml:"engine"` // gutenocr or tesseract
	Model          string `yaml:"model"`
	PythonPath     string `yaml:"python_path"`
	GutenOCRScript string `yaml:"gutenocr_script"`
	DoclingScript  string `yaml:"docling_script"`
	TimeoutSeconds int    `yaml:"timeout"` // Per collaborator call

	Concurrency   int     `yaml:"concurrency"`
	RatePerSecond float64 `yaml:"rate_per_second"` // 0 = unlimited
	Watch         bool    `yaml:"watch"`
}

// DefaultConfig returns the built-in defaults. The OCR defaults mirror the
// model's combined-processing recommendation: reading task, layout-aware
// TEXT2D output.
func DefaultConfig() *Config {
	return &Config{
		InputDir:         "./input",
		OutputDir:        "./output",
		Recursive:        true,
		Mode:             docproc.ModeCombined,
		OutputFormat:     output.FormatJSON,
		TaskType:         docproc.TaskReading,
		OCRFormat:        docproc.OCRFormatText2D,
		ExtractStructure: true,
		ExtractTables:    true,
		MaxTokens:        4096,
		Languages:        []string{"en"},
		Engine:           EngineGutenOCR,
		Model:            "rootsautomation/GutenOCR-3B",
		PythonPath:       detectPythonPath(),
		GutenOCRScript:   "scripts/gutenocr_wrapper.py",
		DoclingScript:    "scripts/docling_wrapper.py",
		TimeoutSeconds:   300,
		Concurrency:      1,
	}
}

// Load builds the configuration from defaults, the optional YAML file, and
// environment overrides, in that order.
func Load(file string) (*Config, error) {
	cfg := DefaultConfig()

	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", file, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("DOCFLOW_INPUT_DIR"); v != "" {
		c.InputDir = v
	}
	if v := os.Getenv("DOCFLOW_OUTPUT_DIR"); v != "" {
		c.OutputDir = v
	}
	if v := os.Getenv("DOCFLOW_MODE"); v != "" {
		c.Mode = docproc.Mode(v)
	}
	if v := os.Getenv("DOCFLOW_OUTPUT_FORMAT"); v != "" {
		c.OutputFormat = output.Format(strings.ToLower(v))
	}
	if v := os.Getenv("DOCFLOW_TASK_TYPE"); v != "" {
		c.TaskType = docproc.TaskType(v)
	}
	if v := os.Getenv("DOCFLOW_OCR_FORMAT"); v != "" {
		c.OCRFormat = docproc.OCRFormat(strings.ToUpper(v))
	}
	if v := os.Getenv("DOCFLOW_ENGINE"); v != "" {
		c.Engine = strings.ToLower(v)
	}
	if v := os.Getenv("DOCFLOW_MODEL"); v != "" {
		c.Model = v
	}
	if v := os.Getenv("DOCFLOW_PYTHON_PATH"); v != "" {
		c.PythonPath = v
	}
	if v := os.Getenv("DOCFLOW_GUTENOCR_SCRIPT"); v != "" {
		c.GutenOCRScript = v
	}
	if v := os.Getenv("DOCFLOW_DOCLING_SCRIPT"); v != "" {
		c.DoclingScript = v
	}
	if v := os.Getenv("DOCFLOW_RECURSIVE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Recursive = b
		}
	}
	if v := os.Getenv("DOCFLOW_TIMEOUT"); v != "" {
		if t, err := strconv.Atoi(v); err == nil && t > 0 {
			c.TimeoutSeconds = t
		}
	}
	if v := os.Getenv("DOCFLOW_MAX_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.MaxTokens = n
		}
	}
	if v := os.Getenv("DOCFLOW_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Concurrency = n
		}
	}
	if v := os.Getenv("DOCFLOW_RATE_PER_SECOND"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			c.RatePerSecond = f
		}
	}
	if v := os.Getenv("DOCFLOW_LANGUAGES"); v != "" {
		var langs []string
		for _, lang := range strings.Split(v, ",") {
			if lang = strings.TrimSpace(lang); lang != "" {
				langs = append(langs, lang)
			}
		}
		if len(langs) > 0 {
			c.Languages = langs
		}
	}
}

// Request derives the per-file processing request applied uniformly across
// the batch.
func (c *Config) Request() docproc.Request {
	return docproc.Request{
		Mode:             c.Mode,
		TaskType:         c.TaskType,
		OCRFormat:        c.OCRFormat,
		ExtractStructure: c.ExtractStructure,
		ExtractTables:    c.ExtractTables,
		MaxTokens:        c.MaxTokens,
		Languages:        c.Languages,
	}
}

// Validate rejects invalid configuration before any file is touched
func (c *Config) Validate() error {
	if err := docproc.ValidateRequest(c.Request()); err != nil {
		return err
	}
	if !output.ValidFormats[c.OutputFormat] {
		return &docproc.ConfigError{Field: "output_format", Value: string(c.OutputFormat),
			Msg: "must be one of json, csv, text"}
	}
	if c.Engine != EngineGutenOCR && c.Engine != EngineTesseract {
		return &docproc.ConfigError{Field: "engine", Value: c.Engine,
			Msg: "must be gutenocr or tesseract"}
	}
	if c.Concurrency < 1 {
		return &docproc.ConfigError{Field: "concurrency", Value: strconv.Itoa(c.Concurrency),
			Msg: "must be at least 1"}
	}
	return nil
}

// detectPythonPath finds a Python interpreter, preferring an active virtual
// environment over the system installation.
func detectPythonPath() string {
	if venv := os.Getenv("VIRTUAL_ENV"); venv != "" {
		candidate := filepath.Join(venv, "bin", "python")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	for _, name := range []string{"python3", "python"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	return ""
}
