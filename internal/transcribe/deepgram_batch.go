package transcribe

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	prerecorded "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/rest"
	restapi "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/rest/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
)

const batchAlternatives = 3

// DeepgramBatch transcribes complete recordings through Deepgram's
// prerecorded endpoint.
type DeepgramBatch struct {
	rest *prerecorded.Client
}

// NewDeepgramBatch returns a batch client. host overrides the API endpoint
// and may be empty.
func NewDeepgramBatch(apiKey, host string) (*DeepgramBatch, error) {
	initDeepgramLib()
	c := client.NewREST(apiKey, &interfaces.ClientOptions{Host: host})
	if c == nil {
		return nil, errors.New("create deepgram rest client: invalid options")
	}
	return &DeepgramBatch{rest: prerecorded.New(c)}, nil
}

func (d *DeepgramBatch) Transcribe(ctx context.Context, audio []byte, cfg Config) (Result, error) {
	resp, err := d.rest.FromStream(ctx, bytes.NewReader(audio), &interfaces.PreRecordedTranscriptionOptions{
		Model:        cfg.Model,
		Language:     cfg.LanguageCode,
		Punctuate:    cfg.Punctuate,
		SmartFormat:  cfg.Punctuate,
		Encoding:     "linear16",
		SampleRate:   cfg.SampleRate,
		Channels:     1,
		Alternatives: batchAlternatives,
	})
	if err != nil {
		return Result{}, fmt.Errorf("deepgram prerecorded: %w", err)
	}
	return deepgramResult(resp), nil
}

// deepgramResult maps the first channel. No speech gives an empty result.
func deepgramResult(resp *restapi.PreRecordedResponse) Result {
	result := Result{Alternatives: []Alternative{}, Words: []Word{}}
	if resp == nil || resp.Results == nil || len(resp.Results.Channels) == 0 {
		return result
	}
	alts := resp.Results.Channels[0].Alternatives
	if len(alts) == 0 {
		return result
	}

	result.Transcript = alts[0].Transcript
	result.Confidence = alts[0].Confidence
	for _, alt := range alts {
		result.Alternatives = append(result.Alternatives, Alternative{Transcript: alt.Transcript, Confidence: alt.Confidence})
	}
	for _, w := range alts[0].Words {
		text := w.PunctuatedWord
		if text == "" {
			text = w.Word
		}
		result.Words = append(result.Words, Word{Word: text, StartTime: w.Start, EndTime: w.End})
	}
	return result
}
