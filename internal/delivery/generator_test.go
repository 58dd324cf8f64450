package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baselhussain/ketoplan-backend/internal/preferences"
	pkgerrors "github.com/baselhussain/ketoplan-backend/pkg/errors"
	"github.com/baselhussain/ketoplan-backend/pkg/openai"
)

type fakeCompleter struct {
	response json.RawMessage
	err      error
	prompt   string
}

func (f *fakeCompleter) GenerateJSON(ctx context.Context, params openai.GenerateJSONParams) (json.RawMessage, error) {
	f.prompt = params.Prompt
	if f.err != nil {
		return nil, f.err
	}
	return f.response, nil
}

func (f *fakeCompleter) Model() string { return "gpt-test" }

func planJSON(days int) json.RawMessage {
	plan := map[string]any{
		"title":          "Keto Week",
		"calorie_target": 1700,
		"days":           []map[string]any{},
	}
	dayList := make([]map[string]any, 0, days)
	for i := 0; i < days; i++ {
		dayList = append(dayList, map[string]any{
			"label": fmt.Sprintf("Day %d", i+1),
			"meals": []map[string]any{
				{"name": "Omelette", "description": "Eggs and butter", "calories": 550},
			},
		})
	}
	plan["days"] = dayList
	raw, _ := json.Marshal(plan)
	return raw
}

func TestGenerateValidPlan(t *testing.T) {
	completer := &fakeCompleter{response: planJSON(7)}
	gen := NewGenerator(completer)

	plan, err := gen.Generate(context.Background(), preferences.Summary{
		PreferredProteins:   []string{"chicken", "salmon"},
		Excluded:            []string{"pork"},
		FreeTextConstraints: "no dairy after noon",
	}, 1700)

	require.NoError(t, err)
	assert.Equal(t, "Keto Week", plan.Title)
	assert.Len(t, plan.Days, 7)
	assert.Contains(t, completer.prompt, "chicken, salmon")
	assert.Contains(t, completer.prompt, "pork")
	assert.Contains(t, completer.prompt, "no dairy after noon")
	assert.Contains(t, completer.prompt, "1700")
}

func TestGenerateRejectsWrongDayCount(t *testing.T) {
	gen := NewGenerator(&fakeCompleter{response: planJSON(6)})

	_, err := gen.Generate(context.Background(), preferences.Summary{}, 1800)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestGenerateRejectsEmptyMeals(t *testing.T) {
	raw, _ := json.Marshal(map[string]any{
		"title": "Bad Plan",
		"days": []map[string]any{
			{"label": "Day 1", "meals": []map[string]any{}},
			{"label": "Day 2"}, {"label": "Day 3"}, {"label": "Day 4"},
			{"label": "Day 5"}, {"label": "Day 6"}, {"label": "Day 7"},
		},
	})
	gen := NewGenerator(&fakeCompleter{response: raw})

	_, err := gen.Generate(context.Background(), preferences.Summary{}, 1800)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestGenerateRejectsMalformedJSON(t *testing.T) {
	gen := NewGenerator(&fakeCompleter{response: json.RawMessage(`"just a string"`)})

	_, err := gen.Generate(context.Background(), preferences.Summary{}, 1800)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestGeneratePassesThroughTransportError(t *testing.T) {
	gen := NewGenerator(&fakeCompleter{err: pkgerrors.New(pkgerrors.CodeDependency, "openai unavailable")})

	_, err := gen.Generate(context.Background(), preferences.Summary{}, 1800)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}

func TestGenerateFillsDefaults(t *testing.T) {
	raw := planJSON(7)
	var plan map[string]any
	require.NoError(t, json.Unmarshal(raw, &plan))
	delete(plan, "title")
	delete(plan, "calorie_target")
	modified, _ := json.Marshal(plan)

	gen := NewGenerator(&fakeCompleter{response: modified})
	result, err := gen.Generate(context.Background(), preferences.Summary{}, 2000)

	require.NoError(t, err)
	assert.Equal(t, "Your 7-Day Keto Meal Plan", result.Title)
	assert.Equal(t, 2000, result.CalorieTarget)
}
