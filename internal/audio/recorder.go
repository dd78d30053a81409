// Package audio records received interview audio as WAV files.
package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const (
	DefaultSampleRate = 16000
	pcmChannels       = 1
	pcmBitDepth       = 16
	wavHeaderSize     = 44
)

// Recorder writes the PCM of one interview at a time to
// <dir>/<session_id>.wav. It is safe for concurrent use.
type Recorder struct {
	dir string

	mu         sync.Mutex
	sessionID  string
	path       string
	file       *os.File
	sampleRate int
	written    int
}

func NewRecorder(dir string) *Recorder {
	if dir == "" {
		dir = filepath.Join("data", "audio")
	}
	return &Recorder{dir: dir}
}

// Start opens a recording for sessionID, finishing any recording in progress.
func (r *Recorder) Start(sessionID string, sampleRate int) error {
	if _, err := r.Stop(); err != nil {
		return err
	}
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("create audio directory: %w", err)
	}

	path := filepath.Join(r.dir, sessionID+".wav")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("open wav file: %w", err)
	}

	// Placeholder header; sizes are patched in Stop.
	header, err := wavHeader(0, sampleRate, pcmChannels, pcmBitDepth)
	if err == nil {
		_, err = file.Write(header)
	}
	if err != nil {
		_ = file.Close()
		return fmt.Errorf("write wav header: %w", err)
	}

	r.sessionID = sessionID
	r.path = path
	r.file = file
	r.sampleRate = sampleRate
	r.written = 0
	return nil
}

// Write appends PCM bytes. Without an open recording it is a no-op.
func (r *Recorder) Write(data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return nil
	}
	n, err := r.file.Write(data)
	r.written += n
	if err != nil {
		return fmt.Errorf("write pcm bytes: %w", err)
	}
	return nil
}

// Stop finalizes the header and returns the file path. It returns "" when no
// recording is open.
func (r *Recorder) Stop() (string, error) {
	r.mu.Lock()
	file, path := r.file, r.path
	written, sampleRate := r.written, r.sampleRate
	r.file, r.path, r.sessionID = nil, "", ""
	r.written = 0
	r.mu.Unlock()

	if file == nil {
		return "", nil
	}

	header, err := wavHeader(written, sampleRate, pcmChannels, pcmBitDepth)
	if err == nil {
		_, err = file.WriteAt(header, 0)
	}
	if err != nil {
		_ = file.Close()
		return "", fmt.Errorf("patch wav header: %w", err)
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("close wav file: %w", err)
	}
	return path, nil
}

// SessionID returns the session currently being recorded.
func (r *Recorder) SessionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessionID
}
