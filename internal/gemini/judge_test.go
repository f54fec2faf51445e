package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lookbook-ai/internal/analysis"
	"lookbook-ai/internal/scenario"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func textResponse(text string) *http.Response {
	body, _ := json.Marshal(generateContentResponse{
		Candidates: []candidate{{Content: content{Parts: []part{{Text: text}}}}},
	})
	return &http.Response{
		StatusCode: http.StatusOK,
		Status:     "200 OK",
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(string(body))),
	}
}

func fakeClient(fn roundTripFunc) *Client {
	return New(Options{APIKey: "test-key", HTTPClient: &http.Client{Transport: fn}})
}

var judgeRequest = scenario.Request{
	PresetID: "street-city",
	Scenarios: []scenario.Summary{
		{Index: 1, ID: "street-crosswalk", Background: "crosswalk"},
		{Index: 2, ID: "street-brick-wall", Background: "brick wall"},
	},
	Analysis: analysis.Input{Garment: analysis.Garment{Type: "t-shirt", Color: "navy"}},
}

func TestJudgeChooseParsesVerdict(t *testing.T) {
	tests := []struct {
		name   string
		output string
		wantID string
	}{
		{
			name:   "plain json",
			output: `{"scenario_id":"street-brick-wall","person_description":"slim person","garment_description":"navy t-shirt","reasoning":"casual"}`,
			wantID: "street-brick-wall",
		},
		{
			name:   "code fence",
			output: "```json\n{\"scenario_id\":\"street-crosswalk\",\"garment_description\":\"navy t-shirt\"}\n```",
			wantID: "street-crosswalk",
		},
		{
			name:   "numeric ordinal",
			output: `Here you go: {"scenario_id": 2, "garment_description": "navy t-shirt"}`,
			wantID: "2",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			judge := NewJudge(fakeClient(func(r *http.Request) (*http.Response, error) {
				return textResponse(tt.output), nil
			}))
			v, err := judge.Choose(context.Background(), judgeRequest)
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, v.ScenarioID)
			assert.Equal(t, "navy t-shirt", v.GarmentDescription)
		})
	}
}

func TestJudgeChooseErrors(t *testing.T) {
	tests := []struct {
		name string
		rt   roundTripFunc
	}{
		{name: "transport", rt: func(*http.Request) (*http.Response, error) { return nil, errors.New("boom") }},
		{name: "not json", rt: func(*http.Request) (*http.Response, error) { return textResponse("I like the second one"), nil }},
		{name: "missing id", rt: func(*http.Request) (*http.Response, error) { return textResponse(`{"reasoning":"?"}`), nil }},
		{name: "fractional id", rt: func(*http.Request) (*http.Response, error) { return textResponse(`{"scenario_id":1.5}`), nil }},
		{name: "empty candidates", rt: func(*http.Request) (*http.Response, error) {
			return &http.Response{StatusCode: 200, Body: io.NopCloser(strings.NewReader(`{"candidates":[]}`))}, nil
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewJudge(fakeClient(tt.rt)).Choose(context.Background(), judgeRequest)
			assert.Error(t, err)
		})
	}

	_, err := NewJudge(nil).Choose(context.Background(), judgeRequest)
	assert.Error(t, err)
	_, err = NewJudge(fakeClient(nil)).Choose(context.Background(), scenario.Request{})
	assert.Error(t, err)
}

func TestGenerateJSONRequestShape(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "/v1beta/models/judge-model:generateContent", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-goog-api-key"))

		var req generateContentRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "application/json", req.GenerationConfig.ResponseMimeType)
		assert.NotNil(t, req.SystemInstruction)
		if assert.Len(t, req.Contents, 1) && assert.NotEmpty(t, req.Contents[0].Parts) {
			assert.Contains(t, req.Contents[0].Parts[0].Text, "street-brick-wall")
		}

		_ = json.NewEncoder(w).Encode(generateContentResponse{
			Candidates: []candidate{{Content: content{Parts: []part{{Text: `{"scenario_id":"street-brick-wall"}`}}}}},
		})
	}))
	defer srv.Close()

	client := New(Options{APIKey: "secret", BaseURL: srv.URL + "/", Model: "judge-model", HTTPClient: srv.Client()})
	v, err := NewJudge(client).Choose(context.Background(), judgeRequest)
	require.NoError(t, err)
	assert.Equal(t, "street-brick-wall", v.ScenarioID)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGenerateJSONRetriesWithoutMimeType(t *testing.T) {
	var calls int32
	client := fakeClient(func(r *http.Request) (*http.Response, error) {
		n := atomic.AddInt32(&calls, 1)
		var req generateContentRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.GenerationConfig.ResponseMimeType != "" {
			return &http.Response{
				StatusCode: http.StatusBadRequest,
				Status:     "400 Bad Request",
				Body:       io.NopCloser(strings.NewReader(`Invalid JSON payload received. Unknown name "responseMimeType"`)),
			}, nil
		}
		assert.Equal(t, int32(2), n)
		return textResponse(`{"ok":true}`), nil
	})

	out, err := client.GenerateJSON(context.Background(), "", "hello")
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, out)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestGenerateJSONStatusError(t *testing.T) {
	client := fakeClient(func(r *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusTooManyRequests,
			Status:     "429 Too Many Requests",
			Body:       io.NopCloser(strings.NewReader("quota")),
		}, nil
	})
	_, err := client.GenerateJSON(context.Background(), "", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")

	_, err = client.GenerateJSON(context.Background(), "", "  ")
	assert.Error(t, err)
}

func TestJudgeSatisfiesSelector(t *testing.T) {
	var _ scenario.Judge = (*Judge)(nil)
}
