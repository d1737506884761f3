// Package detector mines the recent action log for repeated sequences and
// promotes them to workflows. Detection runs over a sliding window, matching
// actions by a normalized signature so that small pointer jitter and varying
// typed values do not break a repetition.
package detector

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/recurhq/recur/logger"
	"github.com/recurhq/recur/model"
	"github.com/recurhq/recur/persistence"
	"go.uber.org/zap"
)

const (
	// minPatternLen is the shortest sequence worth promoting; single
	// actions are not workflows.
	minPatternLen = 2

	// frequencyThreshold is the number of non-overlapping occurrences a
	// sequence needs inside the window before it becomes a workflow.
	frequencyThreshold = 3

	// coordinateBucket collapses pointer positions onto a 10px grid so
	// near-identical clicks share a signature.
	coordinateBucket = 10

	// maxInitialConfidence caps detector-assigned confidence; only the
	// feedback model can push a workflow above this.
	maxInitialConfidence = 0.75

	sigSeparator = "\x1f"
)

type Detector struct {
	storage persistence.Storage
	window  int
}

func NewDetector(storage persistence.Storage, window int) *Detector {
	return &Detector{storage: storage, window: window}
}

// Detect scans the window once and returns every workflow it created or
// refreshed, already persisted.
func (d *Detector) Detect() ([]*model.Workflow, error) {
	actions, err := d.storage.Actions().Recent(d.window)
	if err != nil {
		return nil, err
	}
	if len(actions) < minPatternLen*frequencyThreshold {
		return nil, nil
	}

	sigs := make([]string, len(actions))
	for i, a := range actions {
		sigs[i] = Signature(a)
	}

	candidates := d.mine(sigs)
	if len(candidates) == 0 {
		return nil, nil
	}

	stored, err := d.storage.Workflows().List()
	if err != nil {
		return nil, err
	}
	byKey := make(map[string]*model.Workflow, len(stored))
	for _, wf := range stored {
		byKey[templatesKey(wf.Actions)] = wf
	}

	var out []*model.Workflow
	for _, c := range candidates {
		templates := buildTemplates(actions, c.starts, c.length)
		key := templatesKey(templates)
		lastSeen := actions[c.starts[len(c.starts)-1]+c.length-1].ObservedAt
		if lastSeen.IsZero() {
			lastSeen = time.Now()
		}

		if existing, ok := byKey[key]; ok {
			merged := d.merge(existing, templates, len(c.starts), lastSeen)
			if err := d.storage.Workflows().Save(merged); err != nil {
				return nil, err
			}
			out = append(out, merged)
			continue
		}

		freq := len(c.starts)
		wf := &model.Workflow{
			Id:         uuid.NewString(),
			Name:       workflowName(templates),
			Actions:    templates,
			Frequency:  freq,
			Confidence: initialConfidence(freq, templates),
			CreatedAt:  time.Now(),
			LastSeen:   lastSeen,
		}
		if err := d.storage.Workflows().Save(wf); err != nil {
			return nil, err
		}
		byKey[key] = wf
		logger.Info("workflow detected",
			zap.String("workflowId", wf.Id),
			zap.String("name", wf.Name),
			zap.Int("frequency", wf.Frequency))
		out = append(out, wf)
	}
	return out, nil
}

type candidate struct {
	starts []int
	length int
}

// mine finds repeated subsequences longest-first. A shorter sequence is
// dropped only when every one of its occurrences lies inside positions
// already claimed by an accepted longer sequence.
func (d *Detector) mine(sigs []string) []candidate {
	maxLen := len(sigs) / frequencyThreshold
	if m := d.window / 3; maxLen > m {
		maxLen = m
	}
	covered := make([]bool, len(sigs))
	var accepted []candidate

	for length := maxLen; length >= minPatternLen; length-- {
		starts := map[string][]int{}
		for i := 0; i+length <= len(sigs); i++ {
			key := strings.Join(sigs[i:i+length], sigSeparator)
			prev := starts[key]
			if len(prev) > 0 && i < prev[len(prev)-1]+length {
				continue
			}
			starts[key] = append(prev, i)
		}

		var found []candidate
		for _, occ := range starts {
			if len(occ) < frequencyThreshold {
				continue
			}
			if allCovered(occ, length, covered) {
				continue
			}
			found = append(found, candidate{starts: occ, length: length})
		}
		sort.Slice(found, func(i, j int) bool {
			return found[i].starts[0] < found[j].starts[0]
		})
		for _, c := range found {
			for _, s := range c.starts {
				for p := s; p < s+c.length; p++ {
					covered[p] = true
				}
			}
			accepted = append(accepted, c)
		}
	}
	return accepted
}

func allCovered(starts []int, length int, covered []bool) bool {
	for _, s := range starts {
		for p := s; p < s+length; p++ {
			if !covered[p] {
				return false
			}
		}
	}
	return true
}

// buildTemplates collapses the occurrences of one pattern into templates.
// A payload slot whose values differ across occurrences is marked variable
// and keeps the distinct samples in observation order.
func buildTemplates(actions []model.Action, starts []int, length int) []model.ActionTemplate {
	templates := make([]model.ActionTemplate, length)
	for pos := 0; pos < length; pos++ {
		first := actions[starts[0]+pos]
		t := model.ActionTemplate{
			Kind:    first.Kind,
			Surface: first.Surface,
			Target:  first.Target,
			Payload: first.Payload,
		}
		var confSum float64
		var samples []string
		seen := map[string]bool{}
		for _, s := range starts {
			a := actions[s+pos]
			confSum += actionConfidence(a)
			if !seen[a.Payload] {
				seen[a.Payload] = true
				samples = append(samples, a.Payload)
			}
		}
		t.Confidence = confSum / float64(len(starts))
		if len(samples) > 1 {
			t.Variable = true
			t.Samples = samples
		}
		templates[pos] = t
	}
	return templates
}

// merge refreshes a stored workflow from a fresh detection of the same
// sequence. Identity, confidence and schema are preserved; frequency only
// ever grows.
func (d *Detector) merge(existing *model.Workflow, templates []model.ActionTemplate, freq int, lastSeen time.Time) *model.Workflow {
	if freq > existing.Frequency {
		existing.Frequency = freq
	}
	if lastSeen.After(existing.LastSeen) {
		existing.LastSeen = lastSeen
	}
	for i := range existing.Actions {
		if i >= len(templates) {
			break
		}
		fresh := templates[i]
		if !fresh.Variable {
			continue
		}
		slot := &existing.Actions[i]
		slot.Variable = true
		seen := map[string]bool{}
		for _, s := range slot.Samples {
			seen[s] = true
		}
		for _, s := range fresh.Samples {
			if !seen[s] {
				seen[s] = true
				slot.Samples = append(slot.Samples, s)
			}
		}
	}
	return existing
}

func initialConfidence(freq int, templates []model.ActionTemplate) float64 {
	var sum float64
	for _, t := range templates {
		sum += t.Confidence
	}
	mean := sum / float64(len(templates))
	c := (0.30 + 0.05*float64(freq)) * mean
	if c > maxInitialConfidence {
		c = maxInitialConfidence
	}
	return c
}

func actionConfidence(a model.Action) float64 {
	if a.Confidence == 0 {
		return 1.0
	}
	return a.Confidence
}

func workflowName(templates []model.ActionTemplate) string {
	kinds := make([]string, 0, 3)
	for _, t := range templates {
		kinds = append(kinds, strings.ReplaceAll(string(t.Kind), "_", " "))
		if len(kinds) == 3 {
			break
		}
	}
	name := strings.Join(kinds, ", ")
	if len(templates) > 3 {
		name = fmt.Sprintf("%s… (%d steps)", name, len(templates))
	}
	return name
}

// Signature normalizes an action for sequence matching: pointer
// coordinates are bucketed and typed payloads are reduced to their value
// class so repetitions with different concrete values still line up.
func Signature(a model.Action) string {
	var b strings.Builder
	b.WriteString(string(a.Kind))
	b.WriteByte('|')
	b.WriteString(string(a.Surface))
	b.WriteByte('|')
	b.WriteString(targetSig(a.Kind, a.Target))
	b.WriteByte('|')
	if payloadClassKinds[a.Kind] {
		b.WriteString(ClassifyPayload(a.Payload))
	} else {
		b.WriteString(a.Payload)
	}
	return b.String()
}

func targetSig(k model.ActionKind, t model.Target) string {
	if k.CoordinateKind() {
		return fmt.Sprintf("@%d,%d", t.X/coordinateBucket, t.Y/coordinateBucket)
	}
	parts := []string{t.Selector, t.Url, t.Sheet, t.Cell, t.Path, t.Dest}
	return strings.Join(parts, ";")
}

// templatesKey derives the sequence identity of a stored workflow. A
// variable slot signs with its first sample, not its payload: once the
// parameterizer rewrites the payload to a placeholder the literal no
// longer classifies like the observed values.
func templatesKey(templates []model.ActionTemplate) string {
	sigs := make([]string, len(templates))
	for i, t := range templates {
		a := t.Concrete()
		if t.Variable && len(t.Samples) > 0 {
			a.Payload = t.Samples[0]
		}
		sigs[i] = Signature(a)
	}
	return strings.Join(sigs, sigSeparator)
}

// payloadClassKinds are the kinds whose payload carries user data and is
// therefore matched by class, not literal value.
var payloadClassKinds = map[model.ActionKind]bool{
	model.KIND_TYPE:         true,
	model.KIND_BROWSER_TYPE: true,
	model.KIND_BROWSER_FILL: true,
	model.KIND_CELL_WRITE:   true,
	model.KIND_RANGE_WRITE:  true,
}

// Payload value classes, shared with the parameterizer for type inference.
const (
	CLASS_EMAIL  = "email"
	CLASS_URL    = "url"
	CLASS_PATH   = "path"
	CLASS_DATE   = "date"
	CLASS_NUMBER = "number"
	CLASS_TEXT   = "text"
)

var (
	emailRe  = regexp.MustCompile(`^[\w.+-]+@[\w-]+\.[\w.-]+$`)
	urlRe    = regexp.MustCompile(`^https?://\S+$`)
	pathRe   = regexp.MustCompile(`^(?:[A-Za-z]:[\\/]|[\\/~]|\.{1,2}[\\/])\S*$`)
	dateRe   = regexp.MustCompile(`^(?:\d{4}-\d{2}-\d{2}|\d{1,2}/\d{1,2}/\d{2,4})$`)
	numberRe = regexp.MustCompile(`^-?\d+(?:\.\d+)?$`)
)

// ClassifyPayload maps a payload value onto its class. The order matters:
// a date also matches the number-ish shapes, so it is checked first.
func ClassifyPayload(value string) string {
	v := strings.TrimSpace(value)
	switch {
	case emailRe.MatchString(v):
		return CLASS_EMAIL
	case urlRe.MatchString(v):
		return CLASS_URL
	case dateRe.MatchString(v):
		return CLASS_DATE
	case numberRe.MatchString(v):
		return CLASS_NUMBER
	case pathRe.MatchString(v):
		return CLASS_PATH
	default:
		return CLASS_TEXT
	}
}
