// Package config loads runtime settings from the environment and an
// optional lyricvid.yaml.
package config

import (
	"errors"
	"log"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all runtime configuration.
type Config struct {
	// Lyric structuring
	LLMProvider  string // gemini or ollama
	GeminiAPIKey string
	GeminiModel  string
	OllamaURL    string
	OllamaModel  string

	// Transcription and reconciliation
	Transcriber   string // openai or whisper-cli
	OpenAIAPIKey  string
	OpenAIBaseURL string
	WhisperModel  string
	WhisperBin    string
	Reconciler    string // llm or align

	// Rendering
	FFTSize      int
	FontPath     string
	PreviewScale float64 // fraction of the export resolution
	ParticleSeed int64   // 0 seeds from the clock

	// Export
	ExportFPS      int
	ExportFormat   string // webm or mp4
	ExportRealtime bool   // pace capture at playback speed
	ExportDir      string // ffmpeg work files
	FFmpegPath     string

	// Artifact storage
	StorageProvider string // local or s3
	StorageDir      string
	S3Bucket        string
	S3Region        string
	S3Endpoint      string
	S3KeyID         string
	S3Secret        string

	// Local API, empty disables it
	APIAddr string
}

var defaults = map[string]any{
	"llm_provider":      "gemini",
	"gemini_model":      "gemini-2.5-flash",
	"ollama_url":        "http://localhost:11434",
	"ollama_model":      "llama3.1:8b",
	"transcriber":       "openai",
	"whisper_model":     "whisper-1",
	"whisper_bin":       "whisper",
	"reconciler":        "llm",
	"analyzer_fft_size": 256,
	"preview_scale":     0.5,
	"particle_seed":     0,
	"export_fps":        30,
	"export_format":     "webm",
	"export_realtime":   true,
	"export_dir":        "",
	"ffmpeg_path":       "ffmpeg",
	"storage_provider":  "local",
	"storage_dir":       "exports",
	"s3_region":         "us-east-1",
	"api_addr":          "127.0.0.1:8090",
}

// Load reads configuration from environment variables, then lyricvid.yaml
// in the working directory if present, with sane defaults.
func Load() Config {
	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.AutomaticEnv()
	v.SetConfigName("lyricvid")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.Printf("Ignoring lyricvid.yaml: %v", err)
		}
	} else {
		log.Printf("Loaded config from %s", v.ConfigFileUsed())
	}

	return Config{
		LLMProvider:  strings.ToLower(v.GetString("llm_provider")),
		GeminiAPIKey: v.GetString("gemini_api_key"),
		GeminiModel:  v.GetString("gemini_model"),
		OllamaURL:    v.GetString("ollama_url"),
		OllamaModel:  v.GetString("ollama_model"),

		Transcriber:   strings.ToLower(v.GetString("transcriber")),
		OpenAIAPIKey:  v.GetString("openai_api_key"),
		OpenAIBaseURL: v.GetString("openai_base_url"),
		WhisperModel:  v.GetString("whisper_model"),
		WhisperBin:    v.GetString("whisper_bin"),
		Reconciler:    strings.ToLower(v.GetString("reconciler")),

		FFTSize:      fftSize(v),
		FontPath:     v.GetString("font_path"),
		PreviewScale: getFloat(v, "preview_scale"),
		ParticleSeed: int64(getInt(v, "particle_seed")),

		ExportFPS:      getInt(v, "export_fps"),
		ExportFormat:   strings.ToLower(v.GetString("export_format")),
		ExportRealtime: getBool(v, "export_realtime"),
		ExportDir:      v.GetString("export_dir"),
		FFmpegPath:     v.GetString("ffmpeg_path"),

		StorageProvider: strings.ToLower(v.GetString("storage_provider")),
		StorageDir:      v.GetString("storage_dir"),
		S3Bucket:        v.GetString("s3_bucket"),
		S3Region:        v.GetString("s3_region"),
		S3Endpoint:      v.GetString("s3_endpoint"),
		S3KeyID:         v.GetString("s3_key_id"),
		S3Secret:        v.GetString("s3_secret"),

		APIAddr: v.GetString("api_addr"),
	}
}

// fftSize reads the analyzer size, which must be a power of two in
// [32, 32768].
func fftSize(v *viper.Viper) int {
	n := getInt(v, "analyzer_fft_size")
	if n < 32 || n > 32768 || n&(n-1) != 0 {
		log.Printf("Invalid ANALYZER_FFT_SIZE=%d (want a power of two in [32, 32768]), using %v", n, defaults["analyzer_fft_size"])
		return defaults["analyzer_fft_size"].(int)
	}
	return n
}

// getInt parses key strictly, falling back to its default on bad input.
func getInt(v *viper.Viper, key string) int {
	s := strings.TrimSpace(v.GetString(key))
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	log.Printf("Invalid %s=%q, using %v", strings.ToUpper(key), s, defaults[key])
	return defaults[key].(int)
}

func getFloat(v *viper.Viper, key string) float64 {
	s := strings.TrimSpace(v.GetString(key))
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	log.Printf("Invalid %s=%q, using %v", strings.ToUpper(key), s, defaults[key])
	return defaults[key].(float64)
}

func getBool(v *viper.Viper, key string) bool {
	s := strings.TrimSpace(v.GetString(key))
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	log.Printf("Invalid %s=%q, using %v", strings.ToUpper(key), s, defaults[key])
	return defaults[key].(bool)
}
