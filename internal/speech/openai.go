package speech

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

type transcriptionClient interface {
	CreateTranscription(ctx context.Context, request openai.AudioRequest) (openai.AudioResponse, error)
}

type speechClient interface {
	CreateSpeech(ctx context.Context, request openai.CreateSpeechRequest) (openai.RawResponse, error)
}

// NewOpenAIClient builds a client for an OpenAI-compatible endpoint.
func NewOpenAIClient(apiKey, baseURL string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(cfg)
}

// OpenAITranscriber uses the hosted audio transcription endpoint.
type OpenAITranscriber struct {
	client transcriptionClient
	model  string
}

func NewOpenAITranscriber(client transcriptionClient, model string) *OpenAITranscriber {
	if model == "" {
		model = openai.Whisper1
	}
	return &OpenAITranscriber{client: client, model: model}
}

func (t *OpenAITranscriber) Transcribe(ctx context.Context, wavPath string) (text string, err error) {
	start := time.Now()
	defer func() { observe("stt", start, err) }()

	if fi, statErr := os.Stat(wavPath); statErr != nil || fi.Size() == 0 {
		return "", ErrNoAudio
	}
	resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    t.model,
		FilePath: wavPath,
	})
	if err != nil {
		return "", fmt.Errorf("speech: openai transcription: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

// OpenAISynthesizer uses the hosted speech endpoint with wav output.
type OpenAISynthesizer struct {
	client   speechClient
	model    string
	voice    string
	minBytes int64
}

func NewOpenAISynthesizer(client speechClient, model, voice string, minBytes int64) *OpenAISynthesizer {
	if model == "" {
		model = string(openai.TTSModel1)
	}
	if voice == "" {
		voice = string(openai.VoiceAlloy)
	}
	return &OpenAISynthesizer{client: client, model: model, voice: voice, minBytes: minBytes}
}

func (s *OpenAISynthesizer) Synthesize(ctx context.Context, text, outPath string) (n int64, err error) {
	start := time.Now()
	defer func() { observe("tts", start, err) }()

	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(s.model),
		Input:          text,
		Voice:          openai.SpeechVoice(s.voice),
		ResponseFormat: openai.SpeechResponseFormatWav,
	})
	if err != nil {
		return 0, fmt.Errorf("speech: openai synthesis: %w", err)
	}
	defer resp.Close()

	f, err := os.Create(outPath)
	if err != nil {
		return 0, fmt.Errorf("speech: create output: %w", err)
	}
	if _, err := io.Copy(f, resp); err != nil {
		_ = f.Close()
		_ = os.Remove(outPath)
		return 0, fmt.Errorf("speech: write output: %w", err)
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("speech: close output: %w", err)
	}
	return checkOutput(outPath, s.minBytes)
}
