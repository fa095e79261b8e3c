package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"time"

	"voxkey/encoder"
)

const (
	openaiAPIURL       = "https://api.openai.com/v1/audio/transcriptions"
	openaiDefaultModel = "gpt-4o-mini-transcribe"
)

type OpenAI struct {
	baseTranscriber
	apiKey string
}

func NewOpenAI(apiKey, model, lang string) *OpenAI {
	if model == "" {
		model = openaiDefaultModel
	}
	return &OpenAI{
		baseTranscriber: baseTranscriber{
			client: NewTracedClient(openaiAPIURL),
			apiURL: openaiAPIURL,
			model:  model,
			lang:   lang,
		},
		apiKey: apiKey,
	}
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Transcribe(ctx context.Context, pcm []int16) (*Result, error) {
	start := time.Now()
	flac, encodeTime, err := encoder.EncodeFLAC(pcm)
	if err != nil {
		return nil, wrapErr(o.Name(), err)
	}

	fields := map[string]string{"model": o.model, "response_format": "json"}
	if o.lang != "" {
		fields["language"] = o.lang
	}
	req, err := newAudioUpload(ctx, o.apiURL, o.apiKey, flac, fields)
	if err != nil {
		return nil, wrapErr(o.Name(), err)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, wrapErr(o.Name(), err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, wrapErr(o.Name(), fmt.Errorf("API error %d: %s", resp.StatusCode, string(resp.Body)))
	}

	var oResp struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(resp.Body, &oResp); err != nil {
		return nil, wrapErr(o.Name(), fmt.Errorf("response parse error: %w", err))
	}

	remaining := firstNonEmpty(resp.Header, "x-ratelimit-remaining-requests")
	limit := firstNonEmpty(resp.Header, "x-ratelimit-limit-requests")

	return &Result{
		Text:       oResp.Text,
		Metrics:    resp.Metrics,
		RateLimit:  remaining + "/" + limit,
		AudioS:     audioSeconds(pcm),
		EncodeTime: encodeTime,
		Elapsed:    time.Since(start),
	}, nil
}

// newAudioUpload builds the multipart request shared by the
// OpenAI-compatible transcription endpoints.
func newAudioUpload(ctx context.Context, url, apiKey string, flac []byte, fields map[string]string) (*http.Request, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", "audio.flac")
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(flac); err != nil {
		return nil, err
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return nil, err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req, nil
}
