// Package narrator asks a Gemini model to explain evaluation results in
// plain language.
package narrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/dvloznov/fraud-detection/internal/evaluate"
	"github.com/dvloznov/fraud-detection/internal/report"
	"google.golang.org/genai"
)

// DefaultLocation is the Vertex AI region used when a project is given.
const DefaultLocation = "us-central1"

// Narrator turns metrics into a short human-readable summary.
type Narrator interface {
	Narrate(ctx context.Context, trainer string, m evaluate.Metrics) (string, error)
}

// GeminiNarrator implements Narrator with the GenAI SDK.
type GeminiNarrator struct {
	client *genai.Client
	model  string
}

// NewGeminiNarrator creates a client for model. With an empty project the
// SDK falls back to its GOOGLE_* environment configuration.
func NewGeminiNarrator(ctx context.Context, project, model string) (*GeminiNarrator, error) {
	cfg := &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	}
	if project != "" {
		cfg.Project = project
		cfg.Location = DefaultLocation
		cfg.Backend = genai.BackendVertexAI
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("NewGeminiNarrator: create genai client: %w", err)
	}
	return &GeminiNarrator{client: client, model: model}, nil
}

// Narrate implements Narrator.
func (g *GeminiNarrator) Narrate(ctx context.Context, trainer string, m evaluate.Metrics) (string, error) {
	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: buildPrompt(trainer, m)}},
		},
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("Narrate: generate content: %w", err)
	}
	text := cleanNarration(resp.Text())
	if text == "" {
		return "", fmt.Errorf("Narrate: empty response from model")
	}
	return text, nil
}

func buildPrompt(trainer string, m evaluate.Metrics) string {
	var b strings.Builder
	b.WriteString("You are reviewing a credit-card fraud detection model trained on synthetic transactions.\n")
	fmt.Fprintf(&b, "Trainer: %s\n\n", trainer)
	b.WriteString("Evaluation on the held-out test split:\n")
	for _, kv := range []struct {
		name string
		v    float64
	}{
		{"accuracy", m.Accuracy},
		{"AUC", m.AUC},
		{"AUPRC", m.AUPRC},
		{"F1", m.F1},
		{"positive precision", m.PositivePrecision},
		{"positive recall", m.PositiveRecall},
		{"negative precision", m.NegativePrecision},
		{"negative recall", m.NegativeRecall},
		{"log-loss", m.LogLoss},
	} {
		fmt.Fprintf(&b, "- %s: %s\n", kv.name, report.Num(kv.v))
	}
	c := m.Confusion
	fmt.Fprintf(&b, "- confusion: TP=%d FP=%d TN=%d FN=%d\n\n",
		c.TruePositives, c.FalsePositives, c.TrueNegatives, c.FalseNegatives)

	b.WriteString("Rules:\n" +
		"- Summarize in at most five sentences for an engineer.\n" +
		"- Fraud is rare: weigh AUPRC and recall above accuracy.\n" +
		"- NaN means the metric is undefined for this test set; say why instead of guessing a value.\n" +
		"- Plain text only, no Markdown.\n")
	return b.String()
}

// cleanNarration drops code fences the model may add despite instructions.
func cleanNarration(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return ""
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
