package generate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"shorts-studio/types"
)

const scriptSystemPrompt = `You are a professional YouTube Shorts scriptwriter for product videos.
Write punchy scripts that fit in under 60 seconds when read aloud.

You MUST respond with ONLY valid JSON with exactly these fields:
- "hook": one attention-grabbing opening line (max 15 words)
- "body": 2-4 sentences on why the product is worth it
- "cta": one closing call to action`

var scriptSchema = map[string]any{
	"type": "OBJECT",
	"properties": map[string]any{
		"hook": map[string]any{"type": "STRING"},
		"body": map[string]any{"type": "STRING"},
		"cta":  map[string]any{"type": "STRING"},
	},
	"required":         []string{"hook", "body", "cta"},
	"propertyOrdering": []string{"hook", "body", "cta"},
}

// GenerateScript turns product info into a hook/body/cta script in lang
func (c *Client) GenerateScript(ctx context.Context, productInfo string, lang types.Language) (types.Script, error) {
	const op = "generate script"
	c.logger.Info("writing script", "language", lang)

	resp, err := c.generateContent(ctx, op, c.cfg.TextModel, contentRequest{
		SystemInstruction: &content{Parts: []part{{Text: scriptSystemPrompt}}},
		Contents:          userText(buildScriptPrompt(productInfo, lang)),
		GenerationConfig: &generationConfig{
			ResponseMimeType: "application/json",
			ResponseSchema:   scriptSchema,
		},
	})
	if err != nil {
		return types.Script{}, err
	}

	raw := cleanJSON(resp.text())
	var script types.Script
	if err := json.Unmarshal([]byte(raw), &script); err != nil {
		return types.Script{}, Wrap(ErrMalformedResponse, op, fmt.Sprintf("raw content: %s", truncate(raw, 200)), err)
	}
	script.Hook = strings.TrimSpace(script.Hook)
	script.Body = strings.TrimSpace(script.Body)
	script.CTA = strings.TrimSpace(script.CTA)
	if !script.Complete() {
		return types.Script{}, Wrap(ErrMalformedResponse, op, "hook, body and cta are all required", nil)
	}

	c.logger.Info("✅ script ready", "words", len(strings.Fields(script.FullText())))
	return script, nil
}

func buildScriptPrompt(productInfo string, lang types.Language) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Write a YouTube Shorts script in %s about this product.\n\n", languageName(lang)))
	sb.WriteString(fmt.Sprintf("PRODUCT INFO:\n%s\n\n", productInfo))
	sb.WriteString("Respond ONLY with valid JSON. No markdown. No explanation.")
	return sb.String()
}

func languageName(lang types.Language) string {
	if lang == types.LanguageSecondary {
		return "Hindi"
	}
	return "English"
}

// cleanJSON strips markdown fences if the model wraps its answer in ```json ... ```
func cleanJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
