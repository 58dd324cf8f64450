package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/baselhussain/ketoplan-backend/internal/preferences"
	pkgerrors "github.com/baselhussain/ketoplan-backend/pkg/errors"
	"github.com/baselhussain/ketoplan-backend/pkg/openai"
)

const planDays = 7

// Plan is the validated 7-day meal plan produced by the generation
// collaborator.
type Plan struct {
	Title         string    `json:"title"`
	CalorieTarget int       `json:"calorie_target"`
	Days          []PlanDay `json:"days"`
	Notes         string    `json:"notes"`
}

type PlanDay struct {
	Label string     `json:"label"`
	Meals []PlanMeal `json:"meals"`
}

type PlanMeal struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Calories    int    `json:"calories"`
}

// jsonCompleter is the structured-generation surface of pkg/openai.
type jsonCompleter interface {
	GenerateJSON(ctx context.Context, params openai.GenerateJSONParams) (json.RawMessage, error)
	Model() string
}

const systemPrompt = `You are a ketogenic nutrition planner. Respond with a single JSON object matching this schema exactly:
{"title": string, "calorie_target": number, "days": [{"label": string, "meals": [{"name": string, "description": string, "calories": number}]}], "notes": string}
The "days" array must contain exactly 7 entries, each with 3 or 4 meals. Keep every meal strictly ketogenic.`

// Generator invokes the model and validates its output into a Plan. Each call
// is a fresh invocation; the orchestrator owns the retry bound.
type Generator struct {
	completer jsonCompleter
}

// NewGenerator wraps the completion client.
func NewGenerator(completer jsonCompleter) *Generator {
	return &Generator{completer: completer}
}

// Model reports the generation-model identifier recorded on the plan row.
func (g *Generator) Model() string {
	return g.completer.Model()
}

// Generate produces one candidate plan. Invalid model output maps to
// CodeValidation so the caller retries; transport failures keep the
// CodeDependency the client assigned.
func (g *Generator) Generate(ctx context.Context, prefs preferences.Summary, calorieTarget int) (*Plan, error) {
	raw, err := g.completer.GenerateJSON(ctx, openai.GenerateJSONParams{
		System: systemPrompt,
		Prompt: buildPrompt(prefs, calorieTarget),
	})
	if err != nil {
		return nil, err
	}

	var plan Plan
	if err := json.Unmarshal(raw, &plan); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode generated plan")
	}
	if err := validatePlan(&plan); err != nil {
		return nil, err
	}
	if plan.CalorieTarget == 0 {
		plan.CalorieTarget = calorieTarget
	}
	return &plan, nil
}

func buildPrompt(prefs preferences.Summary, calorieTarget int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Create a personalized 7-day keto meal plan with a daily target of %d kcal.\n", calorieTarget)
	if len(prefs.PreferredProteins) > 0 {
		fmt.Fprintf(&b, "Preferred proteins: %s.\n", strings.Join(prefs.PreferredProteins, ", "))
	}
	if len(prefs.Excluded) > 0 {
		fmt.Fprintf(&b, "Never use these ingredients: %s.\n", strings.Join(prefs.Excluded, ", "))
	}
	if prefs.FreeTextConstraints != "" {
		fmt.Fprintf(&b, "Additional constraints from the customer: %s\n", prefs.FreeTextConstraints)
	}
	return b.String()
}

func validatePlan(plan *Plan) error {
	if len(plan.Days) != planDays {
		return pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("generated plan has %d days, want %d", len(plan.Days), planDays))
	}
	for i, day := range plan.Days {
		if len(day.Meals) == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("generated plan day %d has no meals", i+1))
		}
		for _, meal := range day.Meals {
			if strings.TrimSpace(meal.Name) == "" {
				return pkgerrors.New(pkgerrors.CodeValidation,
					fmt.Sprintf("generated plan day %d has an unnamed meal", i+1))
			}
		}
	}
	if strings.TrimSpace(plan.Title) == "" {
		plan.Title = "Your 7-Day Keto Meal Plan"
	}
	return nil
}
