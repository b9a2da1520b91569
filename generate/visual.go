package generate

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
)

// AspectRatio of every generated still
const AspectRatio = "9:16"

// Image is a generated still with its reported MIME type
type Image struct {
	Data     []byte
	MimeType string
}

// GenerateVisual renders a vertical product shot for query.
// The first inline image part wins; ErrEmptyResult when there is none.
func (c *Client) GenerateVisual(ctx context.Context, query string) (Image, error) {
	const op = "generate visual"
	prompt := enhancePrompt(query)
	c.logger.Info("generating image", "prompt", truncate(prompt, 60))

	resp, err := c.generateContent(ctx, op, c.cfg.ImageModel, contentRequest{
		Contents: userText(prompt),
		GenerationConfig: &generationConfig{
			ResponseModalities: []string{"IMAGE"},
			ImageConfig:        &imageConfig{AspectRatio: AspectRatio},
		},
	})
	if err != nil {
		return Image{}, err
	}

	for _, p := range resp.parts() {
		if p.InlineData == nil || p.InlineData.Data == "" {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
		if err != nil {
			return Image{}, Wrap(ErrMalformedResponse, op, "decode image payload", err)
		}
		mime := p.InlineData.MimeType
		if mime == "" {
			mime = "image/png"
		}
		c.logger.Info("✅ image ready", "bytes", len(data), "mime", mime)
		return Image{Data: data, MimeType: mime}, nil
	}
	return Image{}, Wrap(ErrEmptyResult, op, "no image in response", nil)
}

// enhancePrompt adds the short-form product aesthetic to the base query
func enhancePrompt(query string) string {
	style := "professional product photography, vertical 9:16 composition, studio lighting, vibrant, high detail"
	safety := "no text, no watermark, no logos other than the product's own"
	return fmt.Sprintf("%s, %s, %s", strings.TrimSpace(query), style, safety)
}
