package docproc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRequest(t *testing.T) {
	tests := []struct {
		name      string
		req       Request
		wantErr   bool
		wantField string
	}{
		{
			name: "valid combined request",
			req: Request{
				Mode:      ModeCombined,
				TaskType:  TaskReading,
				OCRFormat: OCRFormatText2D,
			},
		},
		{
			name: "valid structure-only request ignores ocr settings",
			req:  Request{Mode: ModeStructureOnly},
		},
		{
			name:      "unknown mode",
			req:       Request{Mode: "turbo"},
			wantErr:   true,
			wantField: "mode",
		},
		{
			name: "unknown task type",
			req: Request{
				Mode:      ModeOCROnly,
				TaskType:  "translation",
				OCRFormat: OCRFormatText,
			},
			wantErr:   true,
			wantField: "task_type",
		},
		{
			name: "unknown ocr format",
			req: Request{
				Mode:      ModeOCROnly,
				TaskType:  TaskReading,
				OCRFormat: "XML",
			},
			wantErr:   true,
			wantField: "ocr_format",
		},
		{
			name: "detection task rejects text output",
			req: Request{
				Mode:      ModeOCROnly,
				TaskType:  TaskDetection,
				OCRFormat: OCRFormatText,
			},
			wantErr:   true,
			wantField: "ocr_format",
		},
		{
			name: "negative max tokens",
			req: Request{
				Mode:      ModeCombined,
				TaskType:  TaskReading,
				OCRFormat: OCRFormatText,
				MaxTokens: -1,
			},
			wantErr:   true,
			wantField: "max_tokens",
		},
		{
			name: "bad ocr settings are irrelevant without ocr",
			req: Request{
				Mode:      ModeStructureOnly,
				TaskType:  "translation",
				OCRFormat: "XML",
				MaxTokens: -1,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRequest(tt.req)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.wantField, cfgErr.Field)
		})
	}
}

func TestValidateRequestEnforcesTaskFormatPairs(t *testing.T) {
	tests := []struct {
		task   TaskType
		format OCRFormat
		ok     bool
	}{
		{TaskReading, OCRFormatText2D, true},
		{TaskReading, OCRFormatLatex, true},
		{TaskReading, OCRFormatBox, false},
		{TaskDetection, OCRFormatBox, true},
		{TaskDetection, OCRFormatText, false},
		{TaskLocalizedReading, OCRFormatText, true},
		{TaskLocalizedReading, OCRFormatText2D, false},
		{TaskConditionalDetection, OCRFormatBox, true},
		{TaskConditionalDetection, OCRFormatWords, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.task)+"/"+string(tt.format), func(t *testing.T) {
			err := ValidateRequest(Request{
				Mode:      ModeOCROnly,
				TaskType:  tt.task,
				OCRFormat: tt.format,
			})
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, "ocr_format", cfgErr.Field)
			assert.Contains(t, cfgErr.Msg, string(tt.task))
		})
	}
}

func TestTaskFormatsCoverAllTasks(t *testing.T) {
	for task := range ValidTaskTypes {
		formats, ok := TaskFormats[task]
		require.True(t, ok, "task %s has no format mapping", task)
		assert.NotEmpty(t, formats)
		for _, format := range formats {
			assert.True(t, ValidOCRFormats[format], "task %s maps to unknown format %s", task, format)
		}
	}
}

func TestRequestStageSelection(t *testing.T) {
	tests := []struct {
		mode          Mode
		wantStructure bool
		wantOCR       bool
	}{
		{ModeCombined, true, true},
		{ModeStructureOnly, true, false},
		{ModeOCROnly, false, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			req := Request{Mode: tt.mode}
			assert.Equal(t, tt.wantStructure, req.WantsStructure())
			assert.Equal(t, tt.wantOCR, req.WantsOCR())
		})
	}
}
