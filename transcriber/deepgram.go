package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"voxkey/encoder"
)

const (
	deepgramAPIURL       = "https://api.deepgram.com/v1/listen"
	deepgramDefaultModel = "nova-3"
)

type Deepgram struct {
	baseTranscriber
	apiKey string
}

func NewDeepgram(apiKey, model, lang string) *Deepgram {
	if model == "" {
		model = deepgramDefaultModel
	}
	return &Deepgram{
		baseTranscriber: baseTranscriber{
			client: NewTracedClient("https://api.deepgram.com"),
			apiURL: deepgramAPIURL,
			model:  model,
			lang:   lang,
		},
		apiKey: apiKey,
	}
}

func (d *Deepgram) Name() string { return "deepgram" }

type deepgramResponse struct {
	Metadata struct {
		Duration float64 `json:"duration"`
	} `json:"metadata"`
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

func (d *Deepgram) endpoint() string {
	q := url.Values{}
	q.Set("model", d.model)
	q.Set("smart_format", "true")
	if d.lang != "" {
		q.Set("language", d.lang)
	}
	return d.apiURL + "?" + q.Encode()
}

func (d *Deepgram) Transcribe(ctx context.Context, pcm []int16) (*Result, error) {
	start := time.Now()
	flac, encodeTime, err := encoder.EncodeFLAC(pcm)
	if err != nil {
		return nil, wrapErr(d.Name(), err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint(), bytes.NewReader(flac))
	if err != nil {
		return nil, wrapErr(d.Name(), err)
	}
	req.Header.Set("Authorization", "Token "+d.apiKey)
	req.Header.Set("Content-Type", "audio/flac")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, wrapErr(d.Name(), err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, wrapErr(d.Name(), fmt.Errorf("API error %d: %s", resp.StatusCode, string(resp.Body)))
	}

	var dgResp deepgramResponse
	if err := json.Unmarshal(resp.Body, &dgResp); err != nil {
		return nil, wrapErr(d.Name(), fmt.Errorf("response parse error: %w", err))
	}

	var text string
	var confidence float64
	if len(dgResp.Results.Channels) > 0 && len(dgResp.Results.Channels[0].Alternatives) > 0 {
		alt := dgResp.Results.Channels[0].Alternatives[0]
		text = alt.Transcript
		confidence = alt.Confidence
	}

	remaining := firstNonEmpty(resp.Header,
		"x-dg-ratelimit-remaining", "x-ratelimit-remaining", "ratelimit-remaining")
	limit := firstNonEmpty(resp.Header,
		"x-dg-ratelimit-limit", "x-ratelimit-limit", "ratelimit-limit")

	return &Result{
		Text:       text,
		Metrics:    resp.Metrics,
		RateLimit:  remaining + "/" + limit,
		Confidence: confidence,
		AudioS:     dgResp.Metadata.Duration,
		EncodeTime: encodeTime,
		Elapsed:    time.Since(start),
	}, nil
}
