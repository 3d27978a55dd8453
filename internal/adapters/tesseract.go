package adapters

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/otiai10/gosseract/v2"
	"github.com/sirupsen/logrus"

	"github.com/sammcj/docflow/internal/docproc"
)

// imageExtensions are the formats the Tesseract engine accepts directly
var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".tiff": true,
	".tif":  true,
	".bmp":  true,
	".gif":  true,
	".webp": true,
}

// Tesseract is a native OCR engine on the local tesseract library. It covers
// image inputs where the GutenOCR Python stack is not installed; region
// output comes from word-level bounding boxes.
type Tesseract struct {
	available bool
	logger    *logrus.Logger
}

// NewTesseract constructs the engine, probing for the tesseract binary once
func NewTesseract(logger *logrus.Logger) *Tesseract {
	t := &Tesseract{logger: logger}
	if _, err := exec.LookPath("tesseract"); err == nil {
		t.available = true
	} else {
		logger.WithError(err).Debug("tesseract binary not found")
	}
	return t
}

func (t *Tesseract) Name() string         { return "tesseract" }
func (t *Tesseract) Stage() docproc.Stage { return docproc.StageOCR }
func (t *Tesseract) Available() bool      { return t.available }

// Analyze performs one recognition call. A fresh client per call keeps the
// adapter stateless; the library amortises its own model data.
func (t *Tesseract) Analyze(ctx context.Context, file docproc.InputFile, req docproc.Request) docproc.StageResult {
	start := time.Now()

	if !imageExtensions[file.Ext] {
		return docproc.Failed(docproc.StageOCR,
			fmt.Errorf("tesseract engine does not support %s inputs", file.Ext), time.Since(start))
	}
	if req.TaskType != docproc.TaskReading && req.TaskType != docproc.TaskDetection {
		return docproc.Failed(docproc.StageOCR,
			fmt.Errorf("tesseract engine does not support task %s", req.TaskType), time.Since(start))
	}
	if err := ctx.Err(); err != nil {
		return docproc.Failed(docproc.StageOCR, err, time.Since(start))
	}

	client := gosseract.NewClient()
	defer func() { _ = client.Close() }()

	if err := client.SetImage(file.Path); err != nil {
		return docproc.Failed(docproc.StageOCR, fmt.Errorf("set image: %w", err), time.Since(start))
	}
	if len(req.Languages) > 0 {
		if err := client.SetLanguage(req.Languages...); err != nil {
			return docproc.Failed(docproc.StageOCR, fmt.Errorf("set languages: %w", err), time.Since(start))
		}
	}

	text, err := client.Text()
	if err != nil {
		return docproc.Failed(docproc.StageOCR, fmt.Errorf("recognize text: %w", err), time.Since(start))
	}

	regions, confidence := t.wordRegions(client)

	payload := &docproc.OCRPayload{
		Confidence: confidence,
		TaskType:   req.TaskType,
		Format:     req.OCRFormat,
		Regions:    regions,
	}
	// Detection tasks report boxes only, matching the BOX output format
	if req.TaskType == docproc.TaskReading {
		payload.Text = text
	}

	t.logger.WithFields(logrus.Fields{
		"file":    file.Path,
		"words":   len(regions),
		"elapsed": time.Since(start),
	}).Debug("Tesseract call complete")

	return docproc.StageResult{
		Stage:     docproc.StageOCR,
		Status:    docproc.StageSuccess,
		ElapsedMS: time.Since(start).Milliseconds(),
		OCR:       payload,
	}
}

func (t *Tesseract) wordRegions(client *gosseract.Client) ([]docproc.Region, float64) {
	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		return nil, 0
	}

	regions := make([]docproc.Region, 0, len(boxes))
	var sum float64
	for _, b := range boxes {
		conf := b.Confidence / 100.0
		sum += conf
		regions = append(regions, docproc.Region{
			Text: b.Word,
			Box: [4]float64{
				float64(b.Box.Min.X), float64(b.Box.Min.Y),
				float64(b.Box.Max.X), float64(b.Box.Max.Y),
			},
			Confidence: conf,
		})
	}
	return regions, sum / float64(len(regions))
}
