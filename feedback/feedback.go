// Package feedback closes the confidence loop: every terminal execution
// nudges its workflow's confidence and, on failure, classifies the error
// into an advisory suggestion. Suggestions are never applied to the
// workflow's actions; a person reviews them.
package feedback

import (
	"fmt"
	"strings"

	"github.com/recurhq/recur/logger"
	"github.com/recurhq/recur/model"
	"github.com/recurhq/recur/persistence"
	"go.uber.org/zap"
)

const (
	// successGain moves confidence a tenth of the remaining headroom per
	// success; failures cut a quarter of what has been earned. Failing is
	// deliberately more expensive than succeeding.
	successGain    = 0.10
	failurePenalty = 0.25

	// failureStreakThreshold is how many consecutive failures trigger a
	// review suggestion.
	failureStreakThreshold = 3

	streakScanDepth = 10
)

type Model struct {
	storage persistence.Storage
}

func New(storage persistence.Storage) *Model {
	return &Model{storage: storage}
}

// Record folds one terminal execution into its workflow. Stopped and
// interrupted runs say nothing about workflow quality and are ignored.
func (m *Model) Record(execution *model.Execution) error {
	if execution.State != model.EXECUTION_COMPLETED && execution.State != model.EXECUTION_FAILED {
		return nil
	}
	wf, err := m.storage.Workflows().Get(execution.WorkflowId)
	if err != nil {
		if _, ok := err.(persistence.NotFoundError); ok {
			// Workflow deleted while the execution ran; nothing to update.
			return nil
		}
		return err
	}

	before := wf.Confidence
	if execution.State == model.EXECUTION_COMPLETED {
		wf.Confidence += successGain * (1 - wf.Confidence)
	} else {
		wf.Confidence -= failurePenalty * wf.Confidence
		m.suggest(wf, execution)
		if err := m.checkStreak(wf, execution.Id); err != nil {
			return err
		}
	}
	wf.Confidence = clamp(wf.Confidence)

	if err := m.storage.Workflows().Save(wf); err != nil {
		return err
	}

	execution.ConfidenceDelta = wf.Confidence - before
	if err := m.storage.Executions().Save(execution); err != nil {
		return err
	}
	logger.Info("confidence updated",
		zap.String("workflowId", wf.Id),
		zap.Float64("confidence", wf.Confidence),
		zap.Float64("delta", execution.ConfidenceDelta))
	return nil
}

type failureClass string

const (
	failureTiming     failureClass = "timing"
	failureCoordinate failureClass = "coordinate"
	failureSelector   failureClass = "selector"
	failureValidation failureClass = "validation"
	failureUnknown    failureClass = "unknown"
)

// classify buckets a failure by its error text. Crude, but the buckets
// only feed advisory suggestions.
func classify(message string) failureClass {
	msg := strings.ToLower(message)
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		return failureTiming
	case strings.Contains(msg, "coordinates") || strings.Contains(msg, "outside screen"):
		return failureCoordinate
	case strings.Contains(msg, "selector") || strings.Contains(msg, "not found") || strings.Contains(msg, "not visible"):
		return failureSelector
	case strings.Contains(msg, "validation") || strings.Contains(msg, "parameter"):
		return failureValidation
	default:
		return failureUnknown
	}
}

var suggestionByClass = map[failureClass]string{
	failureTiming:     "actions may be racing the interface; consider adding wait steps before the failing action",
	failureCoordinate: "screen layout may have changed; re-record the coordinate targets",
	failureSelector:   "page structure may have changed; review the element selectors",
	failureValidation: "parameter values were rejected; review the parameter schema",
	failureUnknown:    "execution failed for an unrecognized reason; review the action log",
}

func (m *Model) suggest(wf *model.Workflow, execution *model.Execution) {
	message := execution.Error
	if n := len(execution.Log); n > 0 && execution.Log[n-1].Error != "" {
		message = execution.Log[n-1].Error
	}
	class := classify(message)
	suggestion := suggestionByClass[class]
	for _, s := range wf.Suggestions {
		if s == suggestion {
			return
		}
	}
	wf.Suggestions = append(wf.Suggestions, suggestion)
	logger.Info("failure classified",
		zap.String("workflowId", wf.Id),
		zap.String("class", string(class)))
}

// checkStreak flags workflows whose recent runs failed back to back.
// The workflow stays enabled; the streak only produces a suggestion.
func (m *Model) checkStreak(wf *model.Workflow, currentId string) error {
	recent, err := m.storage.Executions().ByWorkflow(wf.Id, streakScanDepth)
	if err != nil {
		return err
	}
	streak := 1 // the failure being recorded
	for i := len(recent) - 1; i >= 0; i-- {
		if recent[i].Id == currentId || !recent[i].State.Terminal() {
			continue
		}
		if recent[i].State != model.EXECUTION_FAILED {
			break
		}
		streak++
	}
	if streak >= failureStreakThreshold {
		suggestion := fmt.Sprintf("workflow failed %d times in a row; review before running again", streak)
		wf.Suggestions = append(wf.Suggestions, suggestion)
		logger.Warn("failure streak detected",
			zap.String("workflowId", wf.Id),
			zap.Int("streak", streak))
	}
	return nil
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
