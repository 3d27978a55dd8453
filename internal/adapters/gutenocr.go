package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sammcj/docflow/internal/docproc"
)

// GutenOCR runs text extraction through the GutenOCR vision model via a
// Python wrapper script. The model is loaded by the wrapper; from this side
// the collaborator is a stateless subprocess call per file.
type GutenOCR struct {
	pythonPath string
	scriptPath string
	model      string
	timeout    time.Duration
	available  bool
	logger     *logrus.Logger
}

// NewGutenOCR constructs the OCR adapter and probes the Python environment
// once. A missing interpreter, wrapper script or model stack marks the
// adapter unavailable for the life of the process.
func NewGutenOCR(pythonPath, scriptPath, model string, timeout time.Duration, logger *logrus.Logger) *GutenOCR {
	g := &GutenOCR{
		pythonPath: pythonPath,
		scriptPath: scriptPath,
		model:      model,
		timeout:    timeout,
		logger:     logger,
	}
	g.available = g.probe()
	return g
}

func (g *GutenOCR) Name() string         { return "gutenocr" }
func (g *GutenOCR) Stage() docproc.Stage { return docproc.StageOCR }
func (g *GutenOCR) Available() bool      { return g.available }

func (g *GutenOCR) probe() bool {
	if g.pythonPath == "" {
		return false
	}
	if _, err := os.Stat(g.scriptPath); err != nil {
		g.logger.WithError(err).WithField("script", g.scriptPath).Debug("GutenOCR wrapper script not found")
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, g.pythonPath, "-c", "import torch, transformers")
	if err := cmd.Run(); err != nil {
		g.logger.WithError(err).Debug("GutenOCR model stack not importable")
		return false
	}
	return true
}

// gutenocrOutput mirrors the wrapper script's JSON result
type gutenocrOutput struct {
	Success    bool             `json:"success"`
	Text       string           `json:"text"`
	Regions    []gutenocrRegion `json:"regions"`
	Confidence float64          `json:"confidence"`
	Error      string           `json:"error"`
}

type gutenocrRegion struct {
	Text       string     `json:"text"`
	Page       int        `json:"page"`
	Box        [4]float64 `json:"box"`
	Confidence float64    `json:"confidence"`
}

// Analyze performs one OCR call. The task type and output format were
// validated before the batch started; they are passed through verbatim.
func (g *GutenOCR) Analyze(ctx context.Context, file docproc.InputFile, req docproc.Request) docproc.StageResult {
	start := time.Now()

	args := []string{
		g.scriptPath,
		"process",
		file.Path,
		"--task", string(req.TaskType),
		"--format", string(req.OCRFormat),
	}
	if req.MaxTokens > 0 {
		args = append(args, "--max-new-tokens", strconv.Itoa(req.MaxTokens))
	}
	if g.model != "" {
		args = append(args, "--model", g.model)
	}
	if len(req.Languages) > 0 {
		args = append(args, "--languages")
		args = append(args, req.Languages...)
	}

	runCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, g.pythonPath, args...)
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return docproc.Failed(docproc.StageOCR,
				fmt.Errorf("ocr timeout after %s", g.timeout), time.Since(start))
		}
		return docproc.Failed(docproc.StageOCR,
			fmt.Errorf("gutenocr wrapper failed: %w, stderr: %s", err, truncate(stderr.String(), 512)),
			time.Since(start))
	}

	var out gutenocrOutput
	if err := json.Unmarshal([]byte(stdout.String()), &out); err != nil {
		return docproc.Failed(docproc.StageOCR,
			fmt.Errorf("parse gutenocr output: %w", err), time.Since(start))
	}
	if !out.Success {
		msg := out.Error
		if msg == "" {
			msg = "unknown error"
		}
		return docproc.Failed(docproc.StageOCR, fmt.Errorf("gutenocr: %s", msg), time.Since(start))
	}

	payload := &docproc.OCRPayload{
		Text:       out.Text,
		Confidence: out.Confidence,
		TaskType:   req.TaskType,
		Format:     req.OCRFormat,
	}
	for _, r := range out.Regions {
		payload.Regions = append(payload.Regions, docproc.Region{
			Text:       r.Text,
			Page:       r.Page,
			Box:        r.Box,
			Confidence: r.Confidence,
		})
	}

	g.logger.WithFields(logrus.Fields{
		"file":    file.Path,
		"task":    req.TaskType,
		"format":  req.OCRFormat,
		"elapsed": time.Since(start),
	}).Debug("GutenOCR call complete")

	return docproc.StageResult{
		Stage:     docproc.StageOCR,
		Status:    docproc.StageSuccess,
		ElapsedMS: time.Since(start).Milliseconds(),
		OCR:       payload,
	}
}
