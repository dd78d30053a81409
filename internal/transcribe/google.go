package transcribe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"github.com/sjawhar/interview-ai/internal/logging"
)

const defaultGoogleModel = "latest_long"

// Google streams audio to Cloud Speech-to-Text. It also implements
// BatchTranscriber through the synchronous Recognize call.
type Google struct {
	client *speech.Client
	logger zerolog.Logger
}

// NewGoogle dials Cloud Speech. An empty credentialsFile uses application
// default credentials.
func NewGoogle(ctx context.Context, credentialsFile string) (*Google, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	c, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create speech client: %w", err)
	}
	return &Google{client: c, logger: logging.WithComponent("transcribe.google")}, nil
}

func (g *Google) Close() error {
	return g.client.Close()
}

func recognitionConfig(cfg Config, alternatives int32) *speechpb.RecognitionConfig {
	model := cfg.Model
	// Deepgram model names are not valid here.
	if model == "" || strings.HasPrefix(model, "nova") {
		model = defaultGoogleModel
	}
	return &speechpb.RecognitionConfig{
		Encoding:                   speechpb.RecognitionConfig_LINEAR16,
		SampleRateHertz:            int32(cfg.SampleRate),
		LanguageCode:               cfg.LanguageCode,
		EnableAutomaticPunctuation: cfg.Punctuate,
		EnableWordTimeOffsets:      cfg.WordOffsets,
		MaxAlternatives:            alternatives,
		Model:                      model,
		UseEnhanced:                true,
	}
}

func (g *Google) Start(ctx context.Context, cfg Config) (Stream, error) {
	sctx, cancel := context.WithCancel(ctx)
	client, err := g.client.StreamingRecognize(sctx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("open streaming recognize: %w", err)
	}

	err = client.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config:         recognitionConfig(cfg, 1),
				InterimResults: cfg.InterimResults,
			},
		},
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("send streaming config: %w", err)
	}

	s := &googleStream{
		ctx:      sctx,
		cancel:   cancel,
		client:   client,
		emitter:  newEmitter(),
		recvDone: make(chan struct{}),
		logger:   g.logger,
	}
	go s.receive()
	return s, nil
}

type googleStream struct {
	ctx    context.Context
	cancel context.CancelFunc
	client speechpb.Speech_StreamingRecognizeClient
	*emitter
	recvDone chan struct{}
	logger   zerolog.Logger

	sendMu     sync.Mutex
	sendClosed bool
}

func (s *googleStream) Events() <-chan Event { return s.events }

func (s *googleStream) Send(chunk []byte) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if s.sendClosed || s.finished() {
		return ErrStreamClosed
	}
	err := s.client.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{AudioContent: chunk},
	})
	if err != nil {
		return fmt.Errorf("send audio: %w", err)
	}
	return nil
}

func (s *googleStream) CloseSend() error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if s.sendClosed {
		return nil
	}
	s.sendClosed = true
	return s.client.CloseSend()
}

func (s *googleStream) Close() error {
	s.cancel()
	<-s.recvDone
	return nil
}

func (s *googleStream) receive() {
	defer close(s.recvDone)
	for {
		resp, err := s.client.Recv()
		if errors.Is(err, io.EOF) || s.ctx.Err() != nil {
			s.finish(s.ctx, nil)
			return
		}
		if err != nil {
			s.logger.Warn().Err(err).Msg("streaming recognize failed")
			s.finish(s.ctx, fmt.Errorf("google speech: %w", err))
			return
		}
		if st := resp.GetError(); st != nil {
			s.finish(s.ctx, fmt.Errorf("google speech: code %d: %s", st.GetCode(), st.GetMessage()))
			return
		}

		for _, r := range resp.GetResults() {
			alts := r.GetAlternatives()
			if len(alts) == 0 {
				continue
			}
			ev := Event{Text: alts[0].GetTranscript(), IsFinal: r.GetIsFinal()}
			if c := alts[0].GetConfidence(); c > 0 || r.GetIsFinal() {
				ev.Confidence = confidenceOf(float64(c))
			}
			if !s.emit(s.ctx, ev) {
				return
			}
		}
	}
}

func (g *Google) Transcribe(ctx context.Context, audio []byte, cfg Config) (Result, error) {
	resp, err := g.client.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: recognitionConfig(cfg, 3),
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio},
		},
	})
	if err != nil {
		return Result{}, fmt.Errorf("recognize: %w", err)
	}

	result := Result{Alternatives: []Alternative{}, Words: []Word{}}
	results := resp.GetResults()
	if len(results) == 0 || len(results[0].GetAlternatives()) == 0 {
		return result, nil
	}

	alts := results[0].GetAlternatives()
	result.Transcript = alts[0].GetTranscript()
	result.Confidence = float64(alts[0].GetConfidence())
	for _, alt := range alts {
		result.Alternatives = append(result.Alternatives, Alternative{
			Transcript: alt.GetTranscript(),
			Confidence: float64(alt.GetConfidence()),
		})
	}
	for _, w := range alts[0].GetWords() {
		result.Words = append(result.Words, Word{
			Word:      w.GetWord(),
			StartTime: w.GetStartTime().AsDuration().Seconds(),
			EndTime:   w.GetEndTime().AsDuration().Seconds(),
		})
	}
	return result, nil
}
