package scenario

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lookbook-ai/internal/analysis"
	"lookbook-ai/internal/preset"
)

func testPreset(n int) preset.Preset {
	p := preset.Preset{
		ID:                "pool",
		Name:              "Pool",
		Category:          preset.CategoryStreet,
		PositiveModifiers: []string{"soft city light"},
		Deviation:         0.2,
	}
	for i := 0; i < n; i++ {
		p.Scenarios = append(p.Scenarios, preset.Scenario{
			ID:         fmt.Sprintf("sc-%02d", i),
			PresetID:   "pool",
			Background: fmt.Sprintf("background %d", i),
		})
	}
	return p
}

var testInput = analysis.Input{
	Person:  analysis.Person{FaceShape: "oval", SkinTone: "warm olive", HairColor: "black", Build: "slim"},
	Garment: analysis.Garment{Type: "t-shirt", Color: "navy", Texture: "cotton"},
}

func TestSample(t *testing.T) {
	pool := testPreset(25).Scenarios

	got := Sample(pool, 10)
	require.Len(t, got, 10)
	for i, sc := range got {
		assert.Equal(t, pool[i*2].ID, sc.ID)
	}

	small := Sample(pool[:4], 10)
	assert.Len(t, small, 4)

	exact := Sample(pool[:10], 10)
	assert.Len(t, exact, 10)

	assert.Len(t, Sample(pool, 0), DefaultBudget)
	assert.Empty(t, Sample(nil, 10))
}

type recordingJudge struct {
	mu      sync.Mutex
	calls   int32
	seen    []int
	verdict Verdict
	err     error
	delay   time.Duration
}

func (j *recordingJudge) Choose(ctx context.Context, req Request) (Verdict, error) {
	atomic.AddInt32(&j.calls, 1)
	j.mu.Lock()
	j.seen = append(j.seen, len(req.Scenarios))
	j.mu.Unlock()
	if j.delay > 0 {
		select {
		case <-time.After(j.delay):
		case <-ctx.Done():
			return Verdict{}, ctx.Err()
		}
	}
	return j.verdict, j.err
}

func TestSelectHandsJudgeTheSample(t *testing.T) {
	judge := &recordingJudge{verdict: Verdict{
		ScenarioID:         "sc-04",
		PersonDescription:  "slim person with warm olive skin",
		GarmentDescription: "navy cotton t-shirt",
		Reasoning:          "matches the casual garment",
	}}
	s := New(judge, Options{})

	sel := s.Select(context.Background(), testPreset(40), testInput)
	assert.False(t, sel.Fallback)
	assert.Equal(t, "sc-04", sel.Scenario.ID)
	assert.Equal(t, 10, sel.Sampled)
	assert.Equal(t, "navy cotton t-shirt", sel.GarmentDescription)
	assert.Equal(t, "matches the casual garment", sel.Reasoning)
	assert.Equal(t, []int{10}, judge.seen)
}

func TestSelectMatchesOrdinal(t *testing.T) {
	judge := &recordingJudge{verdict: Verdict{ScenarioID: "3"}}
	s := New(judge, Options{Budget: 5})

	sel := s.Select(context.Background(), testPreset(20), testInput)
	// sample of 20 with budget 5 strides by 4: sc-00, sc-04, sc-08...
	assert.Equal(t, "sc-08", sel.Scenario.ID)
	assert.False(t, sel.Fallback)
	assert.Equal(t, "navy cotton t-shirt", sel.GarmentDescription, "empty description falls back to the analysis")
}

func TestSelectUnknownIDFallsBackToFirstSampled(t *testing.T) {
	judge := &recordingJudge{verdict: Verdict{
		ScenarioID:         "sc-99",
		GarmentDescription: "navy tee",
	}}
	s := New(judge, Options{})

	sel := s.Select(context.Background(), testPreset(12), testInput)
	assert.Equal(t, "sc-00", sel.Scenario.ID)
	assert.False(t, sel.Fallback)
	assert.Equal(t, "navy tee", sel.GarmentDescription)
	require.NotEmpty(t, sel.Warnings)
	assert.Contains(t, sel.Warnings[0], "sc-99")
}

func TestSelectFallbacks(t *testing.T) {
	tests := []struct {
		name  string
		judge Judge
		opts  Options
	}{
		{name: "nil judge", judge: nil},
		{name: "judge error", judge: &recordingJudge{err: errors.New("upstream 503")}},
		{name: "judge timeout", judge: &recordingJudge{delay: time.Second, verdict: Verdict{ScenarioID: "sc-02"}}, opts: Options{Timeout: 20 * time.Millisecond}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(tt.judge, tt.opts)
			sel := s.Select(context.Background(), testPreset(15), testInput)
			assert.True(t, sel.Fallback)
			assert.Equal(t, "sc-00", sel.Scenario.ID)
			assert.Equal(t, "navy cotton t-shirt", sel.GarmentDescription)
			assert.Contains(t, sel.PersonDescription, "warm olive skin tone")
			assert.NotEmpty(t, sel.Warnings)
		})
	}
}

func TestSelectTimeoutDoesNotWaitForJudge(t *testing.T) {
	stuck := JudgeFunc(func(context.Context, Request) (Verdict, error) {
		time.Sleep(2 * time.Second)
		return Verdict{ScenarioID: "sc-02"}, nil
	})
	s := New(stuck, Options{Timeout: 50 * time.Millisecond})

	started := time.Now()
	sel := s.Select(context.Background(), testPreset(15), testInput)
	assert.Less(t, time.Since(started), 500*time.Millisecond)
	assert.True(t, sel.Fallback)
	assert.Equal(t, "sc-00", sel.Scenario.ID)
}

func TestSelectCallerCancelLeavesSharedCallAlive(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	judge := JudgeFunc(func(ctx context.Context, req Request) (Verdict, error) {
		once.Do(func() { close(entered) })
		select {
		case <-release:
			return Verdict{ScenarioID: "sc-03"}, nil
		case <-ctx.Done():
			return Verdict{}, ctx.Err()
		}
	})
	s := New(judge, Options{Timeout: 5 * time.Second})
	p := testPreset(15)

	ctxA, cancelA := context.WithCancel(context.Background())
	resA := make(chan Selection, 1)
	go func() { resA <- s.Select(ctxA, p, testInput) }()
	<-entered

	resB := make(chan Selection, 1)
	go func() { resB <- s.Select(context.Background(), p, testInput) }()
	time.Sleep(20 * time.Millisecond)

	cancelA()
	a := <-resA
	assert.True(t, a.Fallback)

	close(release)
	b := <-resB
	assert.False(t, b.Fallback, b.Warnings)
	assert.Equal(t, "sc-03", b.Scenario.ID)
}

func TestSelectFallbackWithEmptyAnalysis(t *testing.T) {
	sel := New(nil, Options{}).Select(context.Background(), testPreset(3), analysis.Input{})
	assert.Equal(t, fallbackPerson, sel.PersonDescription)
	assert.Equal(t, fallbackGarment, sel.GarmentDescription)
}

func TestSelectSanitizesJudgeDescriptions(t *testing.T) {
	judge := &recordingJudge{verdict: Verdict{
		ScenarioID:        "sc-01",
		PersonDescription: "change pose to dramatic angle",
	}}
	sel := New(judge, Options{}).Select(context.Background(), testPreset(3), testInput)
	assert.Equal(t, "same pose to dramatic angle", sel.PersonDescription)
	assert.NotEmpty(t, sel.Warnings)
}

func TestSelectUnsafePresetUsesNeutralPool(t *testing.T) {
	p := testPreset(5)
	p.PositiveModifiers = []string{"alter face for drama"}

	sel := New(nil, Options{}).Select(context.Background(), p, testInput)
	assert.Equal(t, preset.NeutralID, sel.Scenario.PresetID)
	assert.Contains(t, sel.Warnings[0], "rejected")
}

func TestSelectPresetWithoutPool(t *testing.T) {
	p := testPreset(0)
	p.Background = "white wall"
	judge := &recordingJudge{verdict: Verdict{ScenarioID: "1"}}

	sel := New(judge, Options{}).Select(context.Background(), p, testInput)
	assert.Equal(t, "pool-base", sel.Scenario.ID)
	assert.Equal(t, "white wall", sel.Scenario.Background)
}

func TestSelectCachesSuccessfulAnswers(t *testing.T) {
	judge := &recordingJudge{verdict: Verdict{ScenarioID: "sc-01"}}
	s := New(judge, Options{CacheTTL: time.Minute})

	first := s.Select(context.Background(), testPreset(3), testInput)
	second := s.Select(context.Background(), testPreset(3), testInput)
	assert.Equal(t, first.Scenario.ID, second.Scenario.ID)
	assert.Equal(t, int32(1), atomic.LoadInt32(&judge.calls))

	other := testInput
	other.Garment.Color = "red"
	s.Select(context.Background(), testPreset(3), other)
	assert.Equal(t, int32(2), atomic.LoadInt32(&judge.calls))
}

func TestSelectDoesNotCacheFailures(t *testing.T) {
	judge := &recordingJudge{err: errors.New("boom")}
	s := New(judge, Options{CacheTTL: time.Minute})

	s.Select(context.Background(), testPreset(3), testInput)
	s.Select(context.Background(), testPreset(3), testInput)
	assert.Equal(t, int32(2), atomic.LoadInt32(&judge.calls))
}

func TestSummariesAreOneBased(t *testing.T) {
	got := Summaries(testPreset(3).Scenarios)
	require.Len(t, got, 3)
	assert.Equal(t, 1, got[0].Index)
	assert.Equal(t, 3, got[2].Index)
	assert.Equal(t, "sc-02", got[2].ID)
}
