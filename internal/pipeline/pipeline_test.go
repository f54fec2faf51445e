package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lookbook-ai/internal/analysis"
	"lookbook-ai/internal/preset"
	"lookbook-ai/internal/prompt"
	"lookbook-ai/internal/scenario"
)

type captureSink struct {
	mu       sync.Mutex
	reports  []ValidationReport
	prepared []Prepared
}

func (c *captureSink) RecordValidation(_ context.Context, r ValidationReport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reports = append(c.reports, r)
}

func (c *captureSink) ObservePrepare(p Prepared) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prepared = append(c.prepared, p)
}

var person = analysis.Input{
	Person:  analysis.Person{FaceShape: "round", SkinTone: "deep brown", HairColor: "black", HairStyle: "braids", Build: "average", Pose: "standing"},
	Garment: analysis.Garment{Type: "t-shirt", Color: "navy", Pattern: "plain", Texture: "cotton"},
}

const testCatalog = `
version: pipeline-test
presets:
  - id: calm
    name: Calm
    category: studio
    deviation: 0.1
    positive: ["soft window light"]
    scenarios:
      - id: calm-1
        background: white wall
      - id: calm-2
        background: linen curtain
  - id: bad
    category: street
    positive: ["alter face for impact"]
`

func newService(t *testing.T, judge scenario.Judge, sinks ...Sink) *Service {
	t.Helper()
	c, err := preset.Load([]byte(testCatalog))
	require.NoError(t, err)
	svc, err := New(Options{
		Catalog:       c,
		Selector:      scenario.New(judge, scenario.Options{}),
		Sinks:         sinks,
		MaxConcurrent: 3,
		Now:           func() time.Time { return time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	return svc
}

func TestNewRequiresCatalog(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestPrepareWithJudge(t *testing.T) {
	judge := scenario.JudgeFunc(func(ctx context.Context, req scenario.Request) (scenario.Verdict, error) {
		return scenario.Verdict{ScenarioID: "calm-2", GarmentDescription: "navy cotton crew-neck t-shirt"}, nil
	})
	sink := &captureSink{}
	svc := newService(t, judge, sink)

	got, err := svc.Prepare(context.Background(), PrepareRequest{PresetID: "calm", Analysis: person})
	require.NoError(t, err)

	assert.NotEmpty(t, got.RequestID)
	assert.Equal(t, "calm-2", got.Selection.Scenario.ID)
	require.NotNil(t, got.Assembly.PresetUsed)
	assert.Equal(t, "calm", got.Assembly.PresetUsed.ID)
	assert.Contains(t, got.Assembly.FinalPrompt, "linen curtain")
	assert.Contains(t, got.Assembly.FinalPrompt, "navy cotton crew-neck t-shirt")
	assert.Contains(t, got.Assembly.FinalPrompt, prompt.PriorityRule)
	require.Len(t, sink.prepared, 1)
	assert.Equal(t, got.RequestID, sink.prepared[0].RequestID)
}

func TestPrepareExplicitClothingWins(t *testing.T) {
	judge := scenario.JudgeFunc(func(ctx context.Context, req scenario.Request) (scenario.Verdict, error) {
		return scenario.Verdict{ScenarioID: "1", GarmentDescription: "judge text"}, nil
	})
	svc := newService(t, judge)

	got, err := svc.Prepare(context.Background(), PrepareRequest{
		RequestID:           "req-1",
		PresetID:            "calm",
		Analysis:            person,
		ClothingDescription: "navy cotton t-shirt",
	})
	require.NoError(t, err)
	assert.Equal(t, "req-1", got.RequestID)
	assert.Contains(t, got.Assembly.FinalPrompt, "navy cotton t-shirt")
	assert.NotContains(t, got.Assembly.FinalPrompt, "judge text")
}

func TestPrepareUnknownAndRejectedPresets(t *testing.T) {
	svc := newService(t, nil)

	unknown, err := svc.Prepare(context.Background(), PrepareRequest{PresetID: "nope", Analysis: person})
	require.NoError(t, err)
	require.NotNil(t, unknown.Assembly.PresetUsed)
	assert.Equal(t, preset.NeutralID, unknown.Assembly.PresetUsed.ID)
	assert.Contains(t, unknown.Assembly.Warnings[0], "not found")
	assert.True(t, unknown.Selection.Fallback)

	bad, err := svc.Prepare(context.Background(), PrepareRequest{PresetID: "bad", Analysis: person})
	require.NoError(t, err)
	assert.Nil(t, bad.Assembly.PresetUsed)
	assert.Contains(t, bad.Assembly.Warnings[0], "rejected")
	assert.NotContains(t, strings.ToLower(bad.Assembly.FinalPrompt), "alter face")
	assert.Contains(t, bad.Assembly.FinalPrompt, preset.Neutral().PositiveModifiers[0])
}

func TestPrepareInvalidRequest(t *testing.T) {
	svc := newService(t, nil)
	_, err := svc.Prepare(context.Background(), PrepareRequest{PresetID: "calm"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidRequest))
}

func TestPrepareBatchKeepsOrder(t *testing.T) {
	svc := newService(t, nil)

	var reqs []PrepareRequest
	for i := 0; i < 8; i++ {
		reqs = append(reqs, PrepareRequest{RequestID: fmt.Sprintf("r%d", i), PresetID: "calm", Analysis: person})
	}
	reqs[3] = PrepareRequest{RequestID: "r3"}

	items := svc.PrepareBatch(context.Background(), reqs)
	require.Len(t, items, 8)
	for i, item := range items {
		if i == 3 {
			assert.Contains(t, item.Error, "invalid request")
			continue
		}
		assert.Empty(t, item.Error)
		assert.Equal(t, fmt.Sprintf("r%d", i), item.Prepared.RequestID)
	}
}

func TestPrepareBatchCancelled(t *testing.T) {
	svc := newService(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	items := svc.PrepareBatch(ctx, []PrepareRequest{{PresetID: "calm", Analysis: person}})
	require.Len(t, items, 1)
	assert.Contains(t, items[0].Error, "context canceled")
}

func TestValidateFeedsSinks(t *testing.T) {
	sink := &captureSink{}
	svc := newService(t, nil, sink)

	prepared, err := svc.Prepare(context.Background(), PrepareRequest{RequestID: "r1", PresetID: "calm", Analysis: person})
	require.NoError(t, err)

	res := svc.Validate(context.Background(), ValidateRequest{
		RequestID:   "r1",
		Analysis:    person,
		PresetID:    prepared.Assembly.PresetUsed.ID,
		FinalPrompt: prepared.Assembly.FinalPrompt,
	})
	assert.True(t, res.Passed, res.Checks)

	require.Len(t, sink.reports, 1)
	r := sink.reports[0]
	assert.Equal(t, "r1", r.RequestID)
	assert.Equal(t, "calm", r.PresetID)
	assert.Equal(t, time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC), r.At)
	assert.True(t, r.Result.Passed)
}

func TestValidateMalformedPrompt(t *testing.T) {
	svc := newService(t, nil)
	res := svc.Validate(context.Background(), ValidateRequest{Analysis: person, FinalPrompt: ""})
	assert.False(t, res.Passed)
	assert.NotEmpty(t, res.Errors)
}
