// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package capability

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/pdiddy/brain-engine/internal/httputil"
	"github.com/pdiddy/brain-engine/pkg/types"
)

type transcriptionResponse struct {
	Text string `json:"text"`
}

// Transcribe sends audio bytes to the transcription endpoint and returns
// the recognized text. The upload uses the OpenAI-compatible multipart
// form contract.
func (c *Client) Transcribe(ctx context.Context, data []byte, filename string) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	if err := mw.WriteField("model", c.cfg.TranscribeModel); err != nil {
		return "", &types.CapabilityError{Capability: "transcribe", Err: err}
	}
	if filename == "" {
		filename = "audio"
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", &types.CapabilityError{Capability: "transcribe", Err: err}
	}
	if _, err := fw.Write(data); err != nil {
		return "", &types.CapabilityError{Capability: "transcribe", Err: err}
	}
	if err := mw.Close(); err != nil {
		return "", &types.CapabilityError{Capability: "transcribe", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/audio/transcriptions", bytes.NewReader(buf.Bytes()))
	if err != nil {
		return "", &types.CapabilityError{Capability: "transcribe", Err: err}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := httputil.DoWithRetry(ctx, c.http, req, c.cfg.MaxRetries)
	if err != nil {
		return "", &types.CapabilityError{Capability: "transcribe", Transient: true, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", &types.CapabilityError{
			Capability: "transcribe",
			Transient:  httputil.Retryable(resp.StatusCode),
			Err:        fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))),
		}
	}

	var tr transcriptionResponse
	if err := decodeJSON(resp.Body, &tr); err != nil {
		return "", &types.CapabilityError{Capability: "transcribe", Err: err}
	}
	return tr.Text, nil
}
