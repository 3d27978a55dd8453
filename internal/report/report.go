// Package report derives aggregate statistics from a batch's results and
// renders the human-readable summary. Both operations are pure: statistics
// are recomputed on demand from the records and the text rendering embeds
// the already-computed figures without re-deriving any value.
package report

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sammcj/docflow/internal/docproc"
)

// StageStats aggregates one stage across the batch
type StageStats struct {
	Requested   int     `json:"requested"`
	Succeeded   int     `json:"succeeded"`
	Failed      int     `json:"failed"`
	Skipped     int     `json:"skipped"`
	SuccessRate float64 `json:"success_rate"` // Succeeded over executed (succeeded+failed)
	MinMS       int64   `json:"min_ms"`
	MaxMS       int64   `json:"max_ms"`
	MeanMS      float64 `json:"mean_ms"`
}

// TaskStats aggregates one OCR task type across the batch
type TaskStats struct {
	Count       int     `json:"count"`
	Succeeded   int     `json:"succeeded"`
	SuccessRate float64 `json:"success_rate"`
}

// BatchStatistics are the aggregate counters for one batch, derived strictly
// from the results list.
type BatchStatistics struct {
	TotalFiles     int                              `json:"total_files"`
	Succeeded      int                              `json:"succeeded"`
	Partial        int                              `json:"partial"`
	Failed         int                              `json:"failed"`
	SuccessRate    float64                          `json:"success_rate"`
	TotalChars     int                              `json:"total_characters"`
	AvgChars       float64                          `json:"average_characters_per_file"`
	TotalElapsedMS int64                            `json:"total_elapsed_ms"`
	MinElapsedMS   int64                            `json:"min_elapsed_ms"`
	MaxElapsedMS   int64                            `json:"max_elapsed_ms"`
	MeanElapsedMS  float64                          `json:"mean_elapsed_ms"`
	Stages         map[docproc.Stage]StageStats     `json:"stages"`
	Tasks          map[docproc.TaskType]TaskStats   `json:"tasks,omitempty"`
}

// BatchReport is the on-disk artifact: results, statistics and a textual
// summary embedding the same figures. Never mutated after creation.
type BatchReport struct {
	Records     []docproc.MergedRecord `json:"records"`
	Statistics  BatchStatistics        `json:"statistics"`
	Summary     string                 `json:"summary"`
	GeneratedAt time.Time              `json:"generated_at"`
}

// Summarize computes batch statistics from the results list. Pure and
// idempotent: calling it twice on the same list yields identical values.
func Summarize(records []docproc.MergedRecord) BatchStatistics {
	stats := BatchStatistics{
		TotalFiles: len(records),
		Stages:     make(map[docproc.Stage]StageStats),
	}

	for _, record := range records {
		switch record.Status {
		case docproc.StatusSuccess:
			stats.Succeeded++
		case docproc.StatusPartial:
			stats.Partial++
		default:
			stats.Failed++
		}

		elapsed := record.ElapsedMS()
		stats.TotalElapsedMS += elapsed
		if stats.MinElapsedMS == 0 || elapsed < stats.MinElapsedMS {
			stats.MinElapsedMS = elapsed
		}
		if elapsed > stats.MaxElapsedMS {
			stats.MaxElapsedMS = elapsed
		}

		if record.Status != docproc.StatusFailure {
			stats.TotalChars += len(record.Content)
		}

		for stage, res := range record.Stages {
			stats.Stages[stage] = accumulateStage(stats.Stages[stage], res)
		}
		if ocrRes, ok := record.StageFor(docproc.StageOCR); ok && ocrRes.OCR != nil {
			stats.Tasks = accumulateTask(stats.Tasks, ocrRes)
		}
	}

	if stats.TotalFiles > 0 {
		stats.MeanElapsedMS = float64(stats.TotalElapsedMS) / float64(stats.TotalFiles)
		stats.SuccessRate = float64(stats.Succeeded) / float64(stats.TotalFiles)
	}
	successful := stats.Succeeded + stats.Partial
	if successful > 0 {
		stats.AvgChars = float64(stats.TotalChars) / float64(successful)
	}

	for stage, s := range stats.Stages {
		executed := s.Succeeded + s.Failed
		if executed > 0 {
			s.SuccessRate = float64(s.Succeeded) / float64(executed)
			s.MeanMS = s.MeanMS / float64(executed)
		}
		stats.Stages[stage] = s
	}
	for task, t := range stats.Tasks {
		if t.Count > 0 {
			t.SuccessRate = float64(t.Succeeded) / float64(t.Count)
		}
		stats.Tasks[task] = t
	}

	return stats
}

func accumulateStage(s StageStats, res docproc.StageResult) StageStats {
	switch res.Status {
	case docproc.StageSuccess:
		s.Requested++
		s.Succeeded++
	case docproc.StageFailure:
		s.Requested++
		s.Failed++
	case docproc.StageSkipped:
		s.Requested++
		s.Skipped++
	default:
		return s
	}

	if res.Status == docproc.StageSuccess || res.Status == docproc.StageFailure {
		if s.MinMS == 0 || res.ElapsedMS < s.MinMS {
			s.MinMS = res.ElapsedMS
		}
		if res.ElapsedMS > s.MaxMS {
			s.MaxMS = res.ElapsedMS
		}
		// MeanMS carries the running sum until Summarize divides it
		s.MeanMS += float64(res.ElapsedMS)
	}
	return s
}

func accumulateTask(tasks map[docproc.TaskType]TaskStats, res docproc.StageResult) map[docproc.TaskType]TaskStats {
	if tasks == nil {
		tasks = make(map[docproc.TaskType]TaskStats)
	}
	t := tasks[res.OCR.TaskType]
	t.Count++
	if res.Status == docproc.StageSuccess {
		t.Succeeded++
	}
	tasks[res.OCR.TaskType] = t
	return tasks
}

// Build renders the report around already-computed statistics. The summary
// text embeds the figures verbatim so the two representations cannot drift.
func Build(records []docproc.MergedRecord, stats BatchStatistics) BatchReport {
	return BatchReport{
		Records:     records,
		Statistics:  stats,
		Summary:     renderSummary(records, stats),
		GeneratedAt: time.Now().UTC(),
	}
}

const rule = "================================================================================"

func renderSummary(records []docproc.MergedRecord, stats BatchStatistics) string {
	var b strings.Builder

	b.WriteString(rule + "\n")
	b.WriteString("Document Processing Summary Report\n")
	b.WriteString(rule + "\n\n")

	b.WriteString("Statistics:\n")
	b.WriteString(strings.Repeat("-", 40) + "\n")
	fmt.Fprintf(&b, "Total Files: %d\n", stats.TotalFiles)
	fmt.Fprintf(&b, "Succeeded: %d\n", stats.Succeeded)
	fmt.Fprintf(&b, "Partial: %d\n", stats.Partial)
	fmt.Fprintf(&b, "Failed: %d\n", stats.Failed)
	fmt.Fprintf(&b, "Success Rate: %.2f%%\n", stats.SuccessRate*100)
	fmt.Fprintf(&b, "Total Characters: %d\n", stats.TotalChars)
	fmt.Fprintf(&b, "Average Characters Per File: %.2f\n", stats.AvgChars)
	fmt.Fprintf(&b, "Total Elapsed: %dms\n", stats.TotalElapsedMS)
	fmt.Fprintf(&b, "Per File Elapsed: min %dms / mean %.2fms / max %dms\n",
		stats.MinElapsedMS, stats.MeanElapsedMS, stats.MaxElapsedMS)

	for _, stage := range sortedStages(stats.Stages) {
		s := stats.Stages[stage]
		fmt.Fprintf(&b, "Stage %s: %d requested, %d succeeded, %d failed, %d skipped (%.2f%% success)\n",
			stage, s.Requested, s.Succeeded, s.Failed, s.Skipped, s.SuccessRate*100)
	}
	for _, task := range sortedTasks(stats.Tasks) {
		t := stats.Tasks[task]
		fmt.Fprintf(&b, "Task %s: %d files (%.2f%% success)\n", task, t.Count, t.SuccessRate*100)
	}

	b.WriteString("\n" + rule + "\n")
	b.WriteString("Detailed Results:\n")
	b.WriteString(rule + "\n\n")

	for i, record := range records {
		fmt.Fprintf(&b, "%d. %s\n", i+1, filepath.Base(record.Source))
		mark := "✓"
		if record.Status != docproc.StatusSuccess {
			mark = "✗"
		}
		fmt.Fprintf(&b, "   Status: %s %s\n", mark, record.Status)
		for _, stage := range sortedStages(nil) {
			res, ok := record.StageFor(stage)
			if !ok || res.Status == docproc.StageNotRequested {
				continue
			}
			if res.Error != "" {
				fmt.Fprintf(&b, "   %s: %s (%s)\n", stage, res.Status, res.Error)
			}
		}
		b.WriteString("\n")
	}

	return b.String()
}

// sortedStages returns the stage keys in a fixed order. A nil map yields the
// canonical full order for per-record iteration.
func sortedStages(stages map[docproc.Stage]StageStats) []docproc.Stage {
	if stages == nil {
		return []docproc.Stage{docproc.StageStructure, docproc.StageOCR}
	}
	keys := make([]docproc.Stage, 0, len(stages))
	for stage := range stages {
		keys = append(keys, stage)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func sortedTasks(tasks map[docproc.TaskType]TaskStats) []docproc.TaskType {
	keys := make([]docproc.TaskType, 0, len(tasks))
	for task := range tasks {
		keys = append(keys, task)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
