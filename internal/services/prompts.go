package services

import (
	"fmt"
	"strings"
)

// buildFullAnalysisPrompt is the expensive prediction-path prompt. It is the
// only prompt that asks for dish predictions; every refinement reuses the
// predictions cached at iteration 1.
func buildFullAnalysisPrompt() string {
	return `You are a nutrition analysis assistant. Analyze the dish in the attached photo.

Identify the most likely dishes and the major nutrition components visible on the plate.

IMPORTANT: Return ONLY valid JSON in the exact format specified below. Do not include any explanatory text, introductions, or markdown formatting.

Required JSON format:
{
  "predictions": [
    {
      "name": "Most likely dish name",
      "confidence": 0.95,
      "servingSizeOptions": ["1 plate", "1 bowl", "100 g"]
    }
  ],
  "components": [
    {
      "name": "Component name",
      "servingSize": "1 piece",
      "caloriesKcal": 250,
      "proteinG": 20,
      "carbsG": 10,
      "fatG": 12,
      "fiberG": 2,
      "healthinessScore": 7,
      "scoreRationale": "Why this score (1 sentence)",
      "micronutrients": ["iron", "vitamin B12"]
    }
  ]
}

List 2-5 predictions ordered from most to least likely, with confidence between 0 and 1. Return ONLY the JSON object, nothing else.`
}

// buildBriefAnalysisPrompt is the cheap refinement-path prompt. It carries
// the user-confirmed dish and metadata as context and never asks for
// predictions.
func buildBriefAnalysisPrompt(actx AnalyzerContext) string {
	var context []string
	if actx.DishName != "" {
		context = append(context, fmt.Sprintf("Dish: %s", actx.DishName))
	}
	if actx.ServingSize != "" {
		context = append(context, fmt.Sprintf("Serving size: %s", actx.ServingSize))
	}
	if actx.Servings > 0 {
		context = append(context, fmt.Sprintf("Number of servings consumed: %.1f", actx.Servings))
	}
	for _, c := range actx.Components {
		context = append(context, fmt.Sprintf("Component: %s, serving size %s, servings %.1f", c.Name, c.ServingSize, c.Servings))
	}
	if actx.Feedback != "" {
		context = append(context, fmt.Sprintf("User feedback: %s", actx.Feedback))
	}

	return fmt.Sprintf(`You are a nutrition analysis assistant. Re-estimate the nutrition and healthiness of the dish in the attached photo using the confirmed information below. Do NOT suggest alternative dishes.

CONFIRMED INFORMATION:
%s

IMPORTANT: Return ONLY valid JSON in the exact format specified below. Do not include any explanatory text, introductions, or markdown formatting.

Required JSON format:
{
  "estimate": {
    "name": "Dish name",
    "servingSize": "1 plate",
    "caloriesKcal": 520,
    "proteinG": 35,
    "carbsG": 40,
    "fatG": 22,
    "fiberG": 5,
    "healthinessScore": 6,
    "scoreRationale": "Why this score (1 sentence)",
    "micronutrients": ["iron", "vitamin C"]
  }
}

Scale all values to the stated number of servings. Return ONLY the JSON object, nothing else.`, strings.Join(context, "\n"))
}
