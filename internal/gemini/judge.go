package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"lookbook-ai/internal/scenario"
)

const judgeInstruction = `You match a person and a garment to the best fitting photo scenario.
You only read text descriptions. Never suggest changing the person.
Respond strictly with JSON matching this schema:
{"scenario_id":string,"person_description":string,"garment_description":string,"reasoning":string}
scenario_id is the id of one listed scenario (or its index number).
person_description is a short neutral description of the person as given.
garment_description is a short precise description of the garment: type, color, pattern, texture.`

// Judge asks Gemini to pick a scenario. It satisfies scenario.Judge.
type Judge struct {
	client *Client
}

func NewJudge(client *Client) *Judge {
	return &Judge{client: client}
}

type judgeInput struct {
	Person    any                `json:"person"`
	Garment   any                `json:"garment"`
	Scenarios []scenario.Summary `json:"scenarios"`
}

type verdictPayload struct {
	ScenarioID         flexibleID `json:"scenario_id"`
	PersonDescription  string     `json:"person_description"`
	GarmentDescription string     `json:"garment_description"`
	Reasoning          string     `json:"reasoning"`
}

func (j *Judge) Choose(ctx context.Context, req scenario.Request) (scenario.Verdict, error) {
	if j == nil || j.client == nil {
		return scenario.Verdict{}, errors.New("gemini judge is not configured")
	}
	if len(req.Scenarios) == 0 {
		return scenario.Verdict{}, errors.New("no scenarios to judge")
	}

	input, err := json.Marshal(judgeInput{
		Person:    req.Analysis.Person,
		Garment:   req.Analysis.Garment,
		Scenarios: req.Scenarios,
	})
	if err != nil {
		return scenario.Verdict{}, fmt.Errorf("marshal judge input: %w", err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Preset: %s\n", req.PresetID)
	sb.WriteString("Pick the single scenario whose background, light and mood best suit this person and garment.\n")
	sb.WriteString("Input:\n")
	sb.Write(input)

	raw, err := j.client.GenerateJSON(ctx, judgeInstruction, sb.String())
	if err != nil {
		return scenario.Verdict{}, err
	}

	payload, err := parseModelPayload[verdictPayload](raw)
	if err != nil {
		return scenario.Verdict{}, fmt.Errorf("decode judge verdict: %w", err)
	}
	if payload.ScenarioID == "" {
		return scenario.Verdict{}, errors.New("judge verdict has no scenario_id")
	}

	return scenario.Verdict{
		ScenarioID:         string(payload.ScenarioID),
		PersonDescription:  strings.TrimSpace(payload.PersonDescription),
		GarmentDescription: strings.TrimSpace(payload.GarmentDescription),
		Reasoning:          strings.TrimSpace(payload.Reasoning),
	}, nil
}

// flexibleID accepts both "3" and 3.
type flexibleID string

func (f *flexibleID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexibleID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("scenario_id: %w", err)
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return fmt.Errorf("scenario_id: not an integer: %s", n)
	}
	*f = flexibleID(n.String())
	return nil
}

func parseModelPayload[T any](raw string) (T, error) {
	var zero T
	cleaned := extractJSONFragment(raw)
	if cleaned == "" {
		return zero, errors.New("empty payload")
	}
	var decoded T
	if err := json.Unmarshal([]byte(cleaned), &decoded); err != nil {
		return zero, err
	}
	return decoded, nil
}

func extractJSONFragment(raw string) string {
	text := trimCodeFence(strings.TrimSpace(raw))
	if text == "" {
		return ""
	}
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start >= 0 && end >= start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}

func trimCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```JSON")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}
