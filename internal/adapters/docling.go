package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/sirupsen/logrus"

	"github.com/sammcj/docflow/internal/docproc"
)

// markupExtensions are handled natively without the Python collaborator;
// Docling itself is only consulted for binary document and image formats.
var markupExtensions = map[string]bool{
	".html":     true,
	".htm":      true,
	".md":       true,
	".markdown": true,
}

// Docling extracts document structure and tables through the Docling
// converter via a Python wrapper script. Markup inputs take a native
// conversion path that avoids the subprocess entirely.
type Docling struct {
	pythonPath string
	scriptPath string
	timeout    time.Duration
	available  bool
	logger     *logrus.Logger
}

// NewDocling constructs the structure adapter and probes the Python
// environment once.
func NewDocling(pythonPath, scriptPath string, timeout time.Duration, logger *logrus.Logger) *Docling {
	d := &Docling{
		pythonPath: pythonPath,
		scriptPath: scriptPath,
		timeout:    timeout,
		logger:     logger,
	}
	d.available = d.probe()
	return d
}

func (d *Docling) Name() string         { return "docling" }
func (d *Docling) Stage() docproc.Stage { return docproc.StageStructure }
func (d *Docling) Available() bool      { return d.available }

// AvailableFor keeps markup inputs processable when the Python stack is
// missing: they take the native conversion path and never touch the
// collaborator, so the availability probe does not apply to them.
func (d *Docling) AvailableFor(file docproc.InputFile) bool {
	return d.available || markupExtensions[file.Ext]
}

func (d *Docling) probe() bool {
	if d.pythonPath == "" {
		return false
	}
	if _, err := os.Stat(d.scriptPath); err != nil {
		d.logger.WithError(err).WithField("script", d.scriptPath).Debug("Docling wrapper script not found")
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, d.pythonPath, "-c", "import docling")
	if err := cmd.Run(); err != nil {
		d.logger.WithError(err).Debug("Docling not importable")
		return false
	}
	return true
}

// doclingOutput mirrors the wrapper script's JSON result
type doclingOutput struct {
	Success   bool              `json:"success"`
	Markdown  string            `json:"markdown"`
	Sections  []docproc.Section `json:"sections"`
	Tables    []docproc.Table   `json:"tables"`
	PageCount int               `json:"page_count"`
	Metadata  map[string]string `json:"metadata"`
	Error     string            `json:"error"`
}

// Analyze performs one structure extraction call
func (d *Docling) Analyze(ctx context.Context, file docproc.InputFile, req docproc.Request) docproc.StageResult {
	start := time.Now()

	if markupExtensions[file.Ext] {
		payload, err := convertMarkup(file)
		if err != nil {
			return docproc.Failed(docproc.StageStructure, err, time.Since(start))
		}
		if !req.ExtractTables {
			payload.Tables = nil
		}
		return docproc.StageResult{
			Stage:     docproc.StageStructure,
			Status:    docproc.StageSuccess,
			ElapsedMS: time.Since(start).Milliseconds(),
			Structure: payload,
		}
	}

	args := []string{
		d.scriptPath,
		"convert",
		file.Path,
	}
	if req.ExtractStructure {
		args = append(args, "--extract-structure")
	}
	if req.ExtractTables {
		args = append(args, "--extract-tables")
	} else {
		args = append(args, "--no-tables")
	}

	runCtx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, d.pythonPath, args...)
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return docproc.Failed(docproc.StageStructure,
				fmt.Errorf("structure extraction timeout after %s", d.timeout), time.Since(start))
		}
		return docproc.Failed(docproc.StageStructure,
			fmt.Errorf("docling wrapper failed: %w, stderr: %s", err, truncate(stderr.String(), 512)),
			time.Since(start))
	}

	var out doclingOutput
	if err := json.Unmarshal([]byte(stdout.String()), &out); err != nil {
		return docproc.Failed(docproc.StageStructure,
			fmt.Errorf("parse docling output: %w", err), time.Since(start))
	}
	if !out.Success {
		msg := out.Error
		if msg == "" {
			msg = "unknown error"
		}
		return docproc.Failed(docproc.StageStructure, fmt.Errorf("docling: %s", msg), time.Since(start))
	}

	payload := &docproc.StructurePayload{
		Markdown:  out.Markdown,
		Sections:  out.Sections,
		Tables:    out.Tables,
		PageCount: out.PageCount,
		Metadata:  out.Metadata,
	}
	if payload.PageCount == 0 && file.Ext == ".pdf" {
		payload.PageCount = pdfPageCount(file.Path)
	}

	d.logger.WithFields(logrus.Fields{
		"file":    file.Path,
		"pages":   payload.PageCount,
		"tables":  len(payload.Tables),
		"elapsed": time.Since(start),
	}).Debug("Docling call complete")

	return docproc.StageResult{
		Stage:     docproc.StageStructure,
		Status:    docproc.StageSuccess,
		ElapsedMS: time.Since(start).Milliseconds(),
		Structure: payload,
	}
}

// pdfPageCount probes the page count directly from the PDF when the
// collaborator did not report one. Best effort: 0 on any parse failure.
func pdfPageCount(path string) int {
	count, err := api.PageCountFile(path)
	if err != nil {
		return 0
	}
	return count
}
