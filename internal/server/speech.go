package server

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/sjawhar/interview-ai/internal/audio"
	"github.com/sjawhar/interview-ai/internal/transcribe"
)

const maxAudioSize = 32 << 20

func registerSpeechRoutes(mux *http.ServeMux, s *server) {
	mux.HandleFunc("POST /api/v1/transcribe", s.transcribeAudio)
	mux.HandleFunc("POST /api/v1/transcribe/quality", s.audioQuality)
	mux.HandleFunc("GET /api/v1/transcribe/languages", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"languages": transcribe.SupportedLanguages()})
	})
}

// transcribeAudio runs batch recognition over a WAV or raw LINEAR16 body.
func (s *server) transcribeAudio(w http.ResponseWriter, r *http.Request) {
	if s.deps.Batch == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "batch transcription is not configured")
		return
	}
	pcm, rate, ok := readAudioBody(w, r, s.opts.Interview.Transcription.SampleRate)
	if !ok {
		return
	}

	cfg := s.opts.Interview.Transcription
	cfg.SampleRate = rate
	if lang := r.URL.Query().Get("language"); lang != "" {
		if !transcribe.IsSupported(lang) {
			writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("unsupported language %q", lang))
			return
		}
		cfg.LanguageCode = lang
	}

	result, err := s.deps.Batch.Transcribe(r.Context(), pcm, cfg)
	if err != nil {
		s.deps.Metrics.BackendError("transcription")
		s.logger.Warn().Err(err).Msg("batch transcription")
		writeJSONError(w, http.StatusBadGateway, fmt.Sprintf("transcribe audio: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *server) audioQuality(w http.ResponseWriter, r *http.Request) {
	pcm, rate, ok := readAudioBody(w, r, s.opts.Interview.Transcription.SampleRate)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, transcribe.AnalyzeQuality(pcm, rate))
}

// readAudioBody returns PCM samples and their rate. WAV bodies carry their
// own rate; raw bodies use ?sample_rate= or fallbackRate.
func readAudioBody(w http.ResponseWriter, r *http.Request, fallbackRate int) ([]byte, int, bool) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxAudioSize))
	if err != nil {
		writeJSONError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("read audio: %v", err))
		return nil, 0, false
	}
	if len(data) == 0 {
		writeJSONError(w, http.StatusBadRequest, "audio body is empty")
		return nil, 0, false
	}

	if bytes.HasPrefix(data, []byte("RIFF")) {
		pcm, rate, err := audio.DecodeWAV(data)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return nil, 0, false
		}
		return pcm, rate, true
	}

	rate := fallbackRate
	if raw := r.URL.Query().Get("sample_rate"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSONError(w, http.StatusBadRequest, "sample_rate must be a positive integer")
			return nil, 0, false
		}
		rate = n
	}
	if rate <= 0 {
		rate = audio.DefaultSampleRate
	}
	return data, rate, true
}
