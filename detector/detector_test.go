package detector

import (
	"testing"
	"time"

	"github.com/recurhq/recur/model"
	"github.com/recurhq/recur/persistence/inmem"
	"github.com/stretchr/testify/assert"
)

func recordSequence(t *testing.T, storage *inmem.Storage, base time.Time, email string) {
	t.Helper()
	actions := []model.Action{
		{Kind: model.KIND_CLICK, Surface: model.SURFACE_DESKTOP, Target: model.Target{X: 100, Y: 200}},
		{Kind: model.KIND_TYPE, Surface: model.SURFACE_DESKTOP, Payload: email},
		{Kind: model.KIND_CLICK, Surface: model.SURFACE_DESKTOP, Target: model.Target{X: 300, Y: 400}},
		{Kind: model.KIND_KEY_PRESS, Surface: model.SURFACE_DESKTOP, Payload: "enter"},
	}
	for i, a := range actions {
		a.ObservedAt = base.Add(time.Duration(i) * time.Second)
		err := storage.Actions().Append(a)
		assert.NoError(t, err)
	}
}

func TestDetectPromotesRepeatedSequence(t *testing.T) {
	storage := inmem.NewStorage()
	base := time.Now()
	for i, email := range []string{"alice@example.com", "bob@example.com", "carol@example.com"} {
		recordSequence(t, storage, base.Add(time.Duration(i)*time.Minute), email)
	}

	detector := NewDetector(storage, 50)
	workflows, err := detector.Detect()
	assert.NoError(t, err)
	assert.Len(t, workflows, 1)

	wf := workflows[0]
	assert.Equal(t, 3, wf.Frequency)
	assert.Len(t, wf.Actions, 4)
	assert.NotEmpty(t, wf.Id)
	assert.NotEmpty(t, wf.Name)
	assert.Less(t, wf.Confidence, 0.8)

	typed := wf.Actions[1]
	assert.True(t, typed.Variable)
	assert.ElementsMatch(t, []string{"alice@example.com", "bob@example.com", "carol@example.com"}, typed.Samples)
	for i, slot := range wf.Actions {
		if i != 1 {
			assert.False(t, slot.Variable)
		}
	}

	stored, err := storage.Workflows().Get(wf.Id)
	assert.NoError(t, err)
	assert.Equal(t, wf.Frequency, stored.Frequency)
}

func TestDetectBelowThreshold(t *testing.T) {
	storage := inmem.NewStorage()
	base := time.Now()
	recordSequence(t, storage, base, "alice@example.com")
	recordSequence(t, storage, base.Add(time.Minute), "bob@example.com")

	detector := NewDetector(storage, 50)
	workflows, err := detector.Detect()
	assert.NoError(t, err)
	assert.Empty(t, workflows)
}

func TestDetectMergeKeepsIdentity(t *testing.T) {
	storage := inmem.NewStorage()
	base := time.Now()
	for i := 0; i < 3; i++ {
		recordSequence(t, storage, base.Add(time.Duration(i)*time.Minute), "alice@example.com")
	}

	detector := NewDetector(storage, 50)
	first, err := detector.Detect()
	assert.NoError(t, err)
	assert.Len(t, first, 1)

	recordSequence(t, storage, base.Add(3*time.Minute), "dave@example.com")
	second, err := detector.Detect()
	assert.NoError(t, err)
	assert.Len(t, second, 1)

	assert.Equal(t, first[0].Id, second[0].Id)
	assert.Equal(t, 4, second[0].Frequency)
	assert.Equal(t, first[0].Confidence, second[0].Confidence)
	assert.True(t, second[0].Actions[1].Variable)
	assert.Contains(t, second[0].Actions[1].Samples, "dave@example.com")
}

func TestSignatureCoordinateBucketing(t *testing.T) {
	near := model.Action{Kind: model.KIND_CLICK, Surface: model.SURFACE_DESKTOP, Target: model.Target{X: 100, Y: 200}}
	jitter := model.Action{Kind: model.KIND_CLICK, Surface: model.SURFACE_DESKTOP, Target: model.Target{X: 104, Y: 207}}
	far := model.Action{Kind: model.KIND_CLICK, Surface: model.SURFACE_DESKTOP, Target: model.Target{X: 150, Y: 200}}

	assert.Equal(t, Signature(near), Signature(jitter))
	assert.NotEqual(t, Signature(near), Signature(far))
}

func TestSignatureTypedPayloadByClass(t *testing.T) {
	a := model.Action{Kind: model.KIND_TYPE, Surface: model.SURFACE_DESKTOP, Payload: "alice@example.com"}
	b := model.Action{Kind: model.KIND_TYPE, Surface: model.SURFACE_DESKTOP, Payload: "bob@example.com"}
	c := model.Action{Kind: model.KIND_TYPE, Surface: model.SURFACE_DESKTOP, Payload: "42"}

	assert.Equal(t, Signature(a), Signature(b))
	assert.NotEqual(t, Signature(a), Signature(c))
}

func TestClassifyPayload(t *testing.T) {
	scenarios := map[string]string{
		"alice@example.com":       CLASS_EMAIL,
		"https://example.com/a":   CLASS_URL,
		"2024-03-15":              CLASS_DATE,
		"3/15/2024":               CLASS_DATE,
		"42":                      CLASS_NUMBER,
		"-3.14":                   CLASS_NUMBER,
		"/home/user/report.xlsx":  CLASS_PATH,
		`C:\Users\user\file.xlsx`: CLASS_PATH,
		"quarterly report":        CLASS_TEXT,
	}
	for value, expected := range scenarios {
		assert.Equal(t, expected, ClassifyPayload(value), value)
	}
}
