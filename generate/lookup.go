package generate

import (
	"context"
	"fmt"
	"strings"
)

const lookupPrompt = `Find details about the product %q.
Summarize what it is, who makes it, its key features, price range and what makes it stand out.
Answer in plain prose, no markdown, under 200 words.`

// LookupProduct researches the query with search grounding and returns descriptive text.
// ErrEmptyResult means the backend answered without usable text.
func (c *Client) LookupProduct(ctx context.Context, query string) (string, error) {
	const op = "lookup product"
	query = strings.TrimSpace(query)
	c.logger.Info("researching product", "query", query)

	resp, err := c.generateContent(ctx, op, c.cfg.TextModel, contentRequest{
		Contents: userText(fmt.Sprintf(lookupPrompt, query)),
		Tools:    []map[string]any{{"googleSearch": map[string]any{}}},
	})
	if err != nil {
		return "", err
	}

	info := resp.text()
	if info == "" {
		return "", Wrap(ErrEmptyResult, op, fmt.Sprintf("no information found for %q", query), nil)
	}
	c.logger.Info("✅ product info ready", "chars", len(info))
	return info, nil
}
