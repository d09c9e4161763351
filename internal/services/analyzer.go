package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platewise/backend/internal/analysis"
	"github.com/platewise/backend/internal/logger"
)

// ConfirmedComponent is one user-confirmed dish component passed as context
// to a brief analyzer invocation.
type ConfirmedComponent struct {
	Name        string  `json:"componentName"`
	ServingSize string  `json:"selectedServingSize"`
	Servings    float64 `json:"numberOfServings"`
}

// AnalyzerContext carries the user-supplied context for an invocation. Empty
// for the initial full analysis; populated from confirmed components or
// staged metadata for brief refinements.
type AnalyzerContext struct {
	DishName    string
	ServingSize string
	Servings    float64
	Components  []ConfirmedComponent
	Feedback    string
}

// Analyzer is the external inference collaborator. The schema kind is the
// only thing that selects between the expensive prediction path and the
// cheap refinement path; invocation must honor the context deadline.
type Analyzer interface {
	Invoke(ctx context.Context, image []byte, kind analysis.SchemaKind, actx AnalyzerContext) (analysis.Result, error)
	CheckHealth(ctx context.Context) error
}

// AnalyzerClient talks to an Ollama-compatible vision model endpoint.
type AnalyzerClient struct {
	baseURL string
	model   string
	client  *http.Client
}

type generateRequest struct {
	Model  string   `json:"model"`
	Prompt string   `json:"prompt"`
	Images []string `json:"images,omitempty"`
	Stream bool     `json:"stream"`
	Format string   `json:"format,omitempty"`
}

type generateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Wire shape of a full analysis returned by the model.
type fullAnalysisPayload struct {
	Predictions []struct {
		Name               string   `json:"name"`
		Confidence         float64  `json:"confidence"`
		ServingSizeOptions []string `json:"servingSizeOptions"`
	} `json:"predictions"`
	Components []componentPayload `json:"components"`
}

// Wire shape of a brief re-estimate returned by the model.
type briefAnalysisPayload struct {
	Estimate componentPayload `json:"estimate"`
}

type componentPayload struct {
	Name             string   `json:"name"`
	ServingSize      string   `json:"servingSize"`
	CaloriesKcal     int      `json:"caloriesKcal"`
	ProteinG         int      `json:"proteinG"`
	CarbsG           int      `json:"carbsG"`
	FatG             int      `json:"fatG"`
	FiberG           int      `json:"fiberG"`
	HealthinessScore int      `json:"healthinessScore"`
	ScoreRationale   string   `json:"scoreRationale"`
	Micronutrients   []string `json:"micronutrients"`
}

func NewAnalyzerClient(baseURL, model string) *AnalyzerClient {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "llava:13b"
	}

	timeoutStr := os.Getenv("ANALYZER_TIMEOUT_SECONDS")
	timeout := 60
	if timeoutStr != "" {
		if t, err := strconv.Atoi(timeoutStr); err == nil && t > 0 {
			timeout = t
		}
	}

	return &AnalyzerClient{
		baseURL: baseURL,
		model:   model,
		client: &http.Client{
			Timeout: time.Duration(timeout) * time.Second,
		},
	}
}

// CheckHealth verifies the inference endpoint is reachable before an
// analysis phase consumes an attempt.
func (a *AnalyzerClient) CheckHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("failed to build health request: %w", err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("analyzer endpoint unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("analyzer endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// Invoke runs one analysis call. The context deadline set by the caller is
// the cancellation boundary: a timed-out call returns an error and is never
// left pending.
func (a *AnalyzerClient) Invoke(ctx context.Context, image []byte, kind analysis.SchemaKind, actx AnalyzerContext) (analysis.Result, error) {
	var prompt string
	switch kind {
	case analysis.SchemaFull:
		prompt = buildFullAnalysisPrompt()
	case analysis.SchemaBrief:
		prompt = buildBriefAnalysisPrompt(actx)
	default:
		return analysis.Result{}, fmt.Errorf("unknown schema kind %q", kind)
	}

	payload := generateRequest{
		Model:  a.model,
		Prompt: prompt,
		Images: []string{base64.StdEncoding.EncodeToString(image)},
		Stream: false,
		Format: "json",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return analysis.Result{}, fmt.Errorf("failed to marshal analyzer request: %w", err)
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return analysis.Result{}, fmt.Errorf("failed to build analyzer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return analysis.Result{}, fmt.Errorf("analyzer request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return analysis.Result{}, fmt.Errorf("failed to read analyzer response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return analysis.Result{}, fmt.Errorf("analyzer returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var gen generateResponse
	if err := json.Unmarshal(respBody, &gen); err != nil {
		return analysis.Result{}, fmt.Errorf("failed to decode analyzer response: %w", err)
	}

	logger.WithAnalyzer(a.model, string(kind)).
		WithField("duration", time.Since(start).String()).
		Debug("Analyzer call completed")

	return parseAnalyzerResponse(gen.Response, kind)
}

// parseAnalyzerResponse turns raw model output into a validated result.
func parseAnalyzerResponse(response string, kind analysis.SchemaKind) (analysis.Result, error) {
	clean := extractJSONFromResponse(response)

	switch kind {
	case analysis.SchemaFull:
		var payload fullAnalysisPayload
		if err := json.Unmarshal([]byte(clean), &payload); err != nil {
			return analysis.Result{}, fmt.Errorf("failed to parse full analysis: %w", err)
		}
		if len(payload.Components) == 0 {
			return analysis.Result{}, fmt.Errorf("full analysis returned no components")
		}
		predictions := make([]analysis.DishPrediction, 0, len(payload.Predictions))
		for _, p := range payload.Predictions {
			predictions = append(predictions, analysis.DishPrediction{
				Name:               p.Name,
				Confidence:         p.Confidence,
				ServingSizeOptions: p.ServingSizeOptions,
			})
		}
		components := make([]analysis.ComponentEstimate, 0, len(payload.Components))
		for _, c := range payload.Components {
			components = append(components, c.toEstimate())
		}
		return analysis.NewFullResult(predictions, components)

	case analysis.SchemaBrief:
		var payload briefAnalysisPayload
		if err := json.Unmarshal([]byte(clean), &payload); err != nil {
			return analysis.Result{}, fmt.Errorf("failed to parse brief analysis: %w", err)
		}
		if payload.Estimate.Name == "" && payload.Estimate.CaloriesKcal == 0 {
			return analysis.Result{}, fmt.Errorf("brief analysis returned an empty estimate")
		}
		return analysis.NewBriefResult(payload.Estimate.toEstimate()), nil
	}
	return analysis.Result{}, fmt.Errorf("unknown schema kind %q", kind)
}

func (c componentPayload) toEstimate() analysis.ComponentEstimate {
	return analysis.ComponentEstimate{
		Name:             c.Name,
		ServingSize:      c.ServingSize,
		CaloriesKcal:     c.CaloriesKcal,
		ProteinG:         c.ProteinG,
		CarbsG:           c.CarbsG,
		FatG:             c.FatG,
		FiberG:           c.FiberG,
		HealthinessScore: c.HealthinessScore,
		ScoreRationale:   c.ScoreRationale,
		Micronutrients:   c.Micronutrients,
	}
}

// extractJSONFromResponse strips explanatory text and markdown fences that
// models wrap around their JSON.
func extractJSONFromResponse(response string) string {
	response = strings.TrimSpace(response)

	if strings.Contains(response, "```json") {
		start := strings.Index(response, "```json")
		end := strings.LastIndex(response, "```")
		if start != -1 && end != -1 && end > start {
			response = response[start+7 : end]
		}
	} else if strings.Contains(response, "```") {
		start := strings.Index(response, "```")
		end := strings.LastIndex(response, "```")
		if start != -1 && end != -1 && end > start {
			response = response[start+3 : end]
		}
	}

	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start != -1 && end != -1 && end > start {
		response = response[start : end+1]
	}

	return strings.TrimSpace(response)
}
