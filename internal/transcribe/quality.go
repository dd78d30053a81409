package transcribe

import (
	"encoding/binary"
	"math"
)

// Quality is a coarse assessment of a LINEAR16 buffer before recognition.
type Quality struct {
	Score           int      `json:"quality_score"`
	DurationSeconds float64  `json:"duration_seconds"`
	SizeBytes       int      `json:"file_size_bytes"`
	SampleRate      int      `json:"sample_rate"`
	PeakAmplitude   int      `json:"peak_amplitude"`
	Issues          []string `json:"issues"`
	Recommendations []string `json:"recommendations"`
}

const (
	lowAmplitude   = 1000
	minDuration    = 1.0
	maxDuration    = 300.0
	qualityWindow  = 32000
	bytesPerSample = 2
)

// AnalyzeQuality scores audio by duration and peak amplitude of its opening
// second.
func AnalyzeQuality(audio []byte, sampleRate int) Quality {
	if sampleRate <= 0 {
		sampleRate = 16000
	}

	q := Quality{
		Score:           100,
		SizeBytes:       len(audio),
		SampleRate:      sampleRate,
		DurationSeconds: float64(len(audio)) / float64(sampleRate*bytesPerSample),
		Issues:          []string{},
		Recommendations: []string{
			"Speak clearly and at moderate volume",
			"Minimize background noise",
			"Keep responses concise but complete",
		},
	}

	window := len(audio)
	if window > qualityWindow {
		window = qualityWindow
	}
	for i := 0; i+1 < window; i += bytesPerSample {
		sample := int(int16(binary.LittleEndian.Uint16(audio[i:])))
		if a := int(math.Abs(float64(sample))); a > q.PeakAmplitude {
			q.PeakAmplitude = a
		}
	}

	if q.DurationSeconds < minDuration {
		q.Score -= 30
		q.Issues = append(q.Issues, "Audio too short")
	}
	if q.PeakAmplitude < lowAmplitude {
		q.Score -= 40
		q.Issues = append(q.Issues, "Audio volume too low")
	}
	if q.DurationSeconds > maxDuration {
		q.Score -= 20
		q.Issues = append(q.Issues, "Audio too long for optimal processing")
	}
	if q.Score < 0 {
		q.Score = 0
	}
	return q
}
