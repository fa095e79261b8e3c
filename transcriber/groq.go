package transcriber

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"voxkey/encoder"
)

const (
	groqAPIURL       = "https://api.groq.com/openai/v1/audio/transcriptions"
	groqDefaultModel = "whisper-large-v3-turbo"
)

type Groq struct {
	baseTranscriber
	apiKey string
}

func NewGroq(apiKey, model, lang string) *Groq {
	if model == "" {
		model = groqDefaultModel
	}
	return &Groq{
		baseTranscriber: baseTranscriber{
			client: NewTracedClient(groqAPIURL),
			apiURL: groqAPIURL,
			model:  model,
			lang:   lang,
		},
		apiKey: apiKey,
	}
}

func (g *Groq) Name() string { return "groq" }

type groqResponse struct {
	Text     string  `json:"text"`
	Duration float64 `json:"duration"`
	Segments []struct {
		NoSpeechProb float64 `json:"no_speech_prob"`
		AvgLogProb   float64 `json:"avg_logprob"`
	} `json:"segments"`
}

func (g *Groq) Transcribe(ctx context.Context, pcm []int16) (*Result, error) {
	start := time.Now()
	flac, encodeTime, err := encoder.EncodeFLAC(pcm)
	if err != nil {
		return nil, wrapErr(g.Name(), err)
	}

	fields := map[string]string{"model": g.model, "response_format": "verbose_json"}
	if g.lang != "" {
		fields["language"] = g.lang
	}
	req, err := newAudioUpload(ctx, g.apiURL, g.apiKey, flac, fields)
	if err != nil {
		return nil, wrapErr(g.Name(), err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, wrapErr(g.Name(), err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, wrapErr(g.Name(), fmt.Errorf("API error %d: %s", resp.StatusCode, string(resp.Body)))
	}

	var gResp groqResponse
	if err := json.Unmarshal(resp.Body, &gResp); err != nil {
		return nil, wrapErr(g.Name(), fmt.Errorf("response parse error: %w", err))
	}

	var noSpeechProb, avgLogProb float64
	if len(gResp.Segments) > 0 {
		var logProbSum float64
		for _, seg := range gResp.Segments {
			noSpeechProb = max(noSpeechProb, seg.NoSpeechProb)
			logProbSum += seg.AvgLogProb
		}
		avgLogProb = logProbSum / float64(len(gResp.Segments))
	}

	remaining := firstNonEmpty(resp.Header, "x-ratelimit-remaining-requests")
	limit := firstNonEmpty(resp.Header, "x-ratelimit-limit-requests")

	audioS := gResp.Duration
	if audioS == 0 {
		audioS = audioSeconds(pcm)
	}
	return &Result{
		Text:         gResp.Text,
		Metrics:      resp.Metrics,
		RateLimit:    remaining + "/" + limit,
		NoSpeechProb: noSpeechProb,
		AvgLogProb:   avgLogProb,
		AudioS:       audioS,
		EncodeTime:   encodeTime,
		Elapsed:      time.Since(start),
	}, nil
}
