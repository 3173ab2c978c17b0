// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package capability

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/pdiddy/brain-engine/pkg/types"
)

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// chatComplete runs one chat completion against the configured model and
// returns the assistant message content.
func (c *Client) chatComplete(ctx context.Context, capability, model, system string, content any) (string, error) {
	req := chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: content},
		},
	}
	var resp chatResponse
	if err := c.postJSON(ctx, capability, c.cfg.BaseURL+"/chat/completions", req, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", &types.CapabilityError{
			Capability: capability,
			Err:        fmt.Errorf("response contained no choices"),
		}
	}
	return resp.Choices[0].Message.Content, nil
}

// Annotation is the summary and tag set the summarization capability
// produces for a chunk.
type Annotation struct {
	Summary string   `json:"summary"`
	Tags    []string `json:"tags"`
}

const summarizeSystem = `Summarize the given text concisely and produce 3-5
keyword tags. Return valid JSON only: {"summary": "...", "tags": ["..."]}`

// Summarize produces a summary and tags for one chunk of text.
func (c *Client) Summarize(ctx context.Context, text string) (Annotation, error) {
	raw, err := c.chatComplete(ctx, "summarize", c.cfg.ChatModel, summarizeSystem, text)
	if err != nil {
		return Annotation{}, err
	}

	var ann Annotation
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &ann); err != nil {
		return Annotation{}, &types.CapabilityError{
			Capability: "summarize",
			Err:        fmt.Errorf("parsing response: %w", err),
		}
	}
	return ann, nil
}

// ExtractedEntity is one entity mention from the extraction capability.
type ExtractedEntity struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// ExtractedRelation is one relation from the extraction capability,
// referencing entities by name.
type ExtractedRelation struct {
	Source     string  `json:"source"`
	Target     string  `json:"target"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

// Extraction is the full result of entity extraction over one text.
type Extraction struct {
	Entities  []ExtractedEntity   `json:"entities"`
	Relations []ExtractedRelation `json:"relations"`
}

const extractSystem = `Extract entities (name, type) and relations
(source, target, type, confidence 0-1) from the text. Entity types:
person, project, location, technology, organization, concept.
Return valid JSON only: {"entities": [...], "relations": [...]}`

// ExtractEntities asks the extraction capability for entities and
// relations mentioned in text.
func (c *Client) ExtractEntities(ctx context.Context, text string) (Extraction, error) {
	raw, err := c.chatComplete(ctx, "extract_entities", c.cfg.ChatModel, extractSystem, text)
	if err != nil {
		return Extraction{}, err
	}

	var ex Extraction
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &ex); err != nil {
		return Extraction{}, &types.CapabilityError{
			Capability: "extract_entities",
			Err:        fmt.Errorf("parsing response: %w", err),
		}
	}
	return ex, nil
}

// DescribeImage sends image bytes to the vision model and returns a
// textual description including any visible text. This doubles as OCR for
// document pages rendered as images.
func (c *Client) DescribeImage(ctx context.Context, data []byte, mimeType string) (string, error) {
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	content := []contentPart{
		{Type: "text", Text: "Describe this image in detail and extract any visible text."},
		{Type: "image_url", ImageURL: &imageURL{
			URL: fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data)),
		}},
	}
	return c.chatComplete(ctx, "ocr", c.cfg.VisionModel, "You are a precise OCR and image description assistant.", content)
}

const subordinateSystem = `You judge document structure. Given a parent
section heading and a child section, answer whether the child is a
subordinate note or aside that belongs inside the parent rather than
standing alone. Answer with exactly "yes" or "no".`

// ClassifySubordinate asks whether a child section is subordinate to its
// structural parent (e.g. a "notes" subsection). The chunker merges such
// children into the parent chunk.
func (c *Client) ClassifySubordinate(ctx context.Context, parentHeading, childHeading, childText string) (bool, error) {
	prompt := fmt.Sprintf("Parent heading: %s\nChild heading: %s\nChild text:\n%s",
		parentHeading, childHeading, childText)
	raw, err := c.chatComplete(ctx, "classify_section", c.cfg.ChatModel, subordinateSystem, prompt)
	if err != nil {
		return false, err
	}
	return stripCodeFence(raw) == "yes", nil
}

// Intent is the coarse classification of a conversational turn.
type Intent string

const (
	IntentWrite  Intent = "write"
	IntentSearch Intent = "search"
	IntentBoth   Intent = "both"
)

const intentSystem = `Classify the user's message: does it record new
information ("write"), ask to retrieve information ("search"), or do both
("both")? Answer with exactly one word.`

// ClassifyIntent classifies a conversational turn as write, search, or
// both.
func (c *Client) ClassifyIntent(ctx context.Context, text string) (Intent, error) {
	raw, err := c.chatComplete(ctx, "classify_intent", c.cfg.ChatModel, intentSystem, text)
	if err != nil {
		return "", err
	}
	switch Intent(stripCodeFence(raw)) {
	case IntentWrite:
		return IntentWrite, nil
	case IntentSearch:
		return IntentSearch, nil
	case IntentBoth:
		return IntentBoth, nil
	}
	return "", &types.CapabilityError{
		Capability: "classify_intent",
		Err:        fmt.Errorf("unrecognized intent %q", raw),
	}
}
