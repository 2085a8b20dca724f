package lyricsource

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/satindergrewal/lyricvid/internal/errs"
	"github.com/satindergrewal/lyricvid/internal/llm"
)

var errNoSpeech = errors.New("no lyrics were recognised in the audio")

// NewTranscriber returns the backend named by kind: "openai" or "whisper-cli".
func NewTranscriber(kind, baseURL, apiKey, model, bin string) (Transcriber, error) {
	switch kind {
	case "openai", "":
		if apiKey == "" {
			return nil, fmt.Errorf("openai transcriber requires OPENAI_API_KEY")
		}
		return NewOpenAITranscriber(baseURL, apiKey, model), nil
	case "whisper-cli", "whisper":
		return &WhisperCLI{Bin: bin, Model: model}, nil
	}
	return nil, fmt.Errorf("unknown transcriber %q", kind)
}

// OpenAITranscriber calls an OpenAI-compatible /v1/audio/transcriptions endpoint.
type OpenAITranscriber struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
}

// NewOpenAITranscriber creates a transcription client. An empty baseURL
// uses the public OpenAI API.
func NewOpenAITranscriber(baseURL, apiKey, model string) *OpenAITranscriber {
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	if model == "" {
		model = "whisper-1"
	}
	return &OpenAITranscriber{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		http:    &http.Client{Timeout: 10 * time.Minute},
	}
}

type verboseTranscription struct {
	Text     string    `json:"text"`
	Language string    `json:"language"`
	Segments []Segment `json:"segments"`
}

// Transcribe implements Transcriber.
func (c *OpenAITranscriber) Transcribe(ctx context.Context, audioPath string) ([]Segment, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, errs.Asset("open audio", err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, errs.Asset("read audio", err)
	}
	mw.WriteField("model", c.model)
	mw.WriteField("response_format", "verbose_json")
	mw.WriteField("timestamp_granularities[]", "segment")
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v1/audio/transcriptions", &body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errs.Collaborator("transcribe", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Collaborator("transcribe", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errs.Collaborator("transcribe", fmt.Errorf("status %d: %s", resp.StatusCode, llm.Truncate(string(raw), 300)))
	}

	var result verboseTranscription
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, errs.Collaborator("transcribe", fmt.Errorf("decode response: %w", err))
	}
	segs := DropEmpty(result.Segments)
	log.Printf("Transcribed %s: %d segments (%s) in %s", filepath.Base(audioPath), len(segs), result.Language, time.Since(start).Round(time.Millisecond))
	return segs, nil
}

// WhisperCLI runs the local openai-whisper command.
type WhisperCLI struct {
	Bin   string // default "whisper"
	Model string // default "base"
}

// Transcribe implements Transcriber. Output goes to a temporary directory
// that is removed afterwards.
func (w *WhisperCLI) Transcribe(ctx context.Context, audioPath string) ([]Segment, error) {
	bin, model := w.Bin, w.Model
	if bin == "" {
		bin = "whisper"
	}
	if model == "" || model == "whisper-1" {
		model = "base"
	}

	outDir, err := os.MkdirTemp("", "lyricvid-whisper-")
	if err != nil {
		return nil, fmt.Errorf("temp dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	cmd := exec.CommandContext(ctx, bin,
		audioPath,
		"--model", model,
		"--output_format", "json",
		"--output_dir", outDir,
	)
	start := time.Now()
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, errs.Collaborator("whisper", fmt.Errorf("%w: %s", err, llm.Truncate(string(out), 300)))
	}

	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	data, err := os.ReadFile(filepath.Join(outDir, base+".json"))
	if err != nil {
		return nil, errs.Collaborator("whisper", fmt.Errorf("read output: %w", err))
	}
	var result verboseTranscription
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, errs.Collaborator("whisper", fmt.Errorf("decode output: %w", err))
	}
	segs := DropEmpty(result.Segments)
	log.Printf("Whisper transcribed %s: %d segments in %s", filepath.Base(audioPath), len(segs), time.Since(start).Round(time.Millisecond))
	return segs, nil
}
