package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the namespace prefix for all Interview AI environment variables.
const EnvPrefix = "INTERVIEW_AI_"

// DotEnvFile is loaded before any other source. Variables already present in
// the process environment win over the file.
var DotEnvFile = ".env"

// Config holds all application configuration. Secrets (API keys) are loaded
// exclusively from environment variables and never appear in the config file.
type Config struct {
	ListenAddr            string        `yaml:"listen_addr"`
	DBPath                string        `yaml:"db_path"`
	AudioDir              string        `yaml:"audio_dir"`
	ArchiveDir            string        `yaml:"archive_dir"`
	LogLevel              string        `yaml:"log_level"`
	LogFormat             string        `yaml:"log_format"`
	AllowedOrigins        []string      `yaml:"allowed_origins"`
	GDriveFolderID        string        `yaml:"gdrive_folder_id"`
	GoogleCredentialsFile string        `yaml:"google_credentials_file"`
	Transcription         Transcription `yaml:"transcription"`
	Suggestion            Suggestion    `yaml:"suggestion"`
	Events                Events        `yaml:"events"`

	// Secrets: env vars only, never serialized to YAML.
	DeepgramAPIKey  string `yaml:"-"`
	GoogleAPIKey    string `yaml:"-"`
	OpenAIAPIKey    string `yaml:"-"`
	AnthropicAPIKey string `yaml:"-"`
	// SpeechCredentialsFile comes from the standard GOOGLE_APPLICATION_CREDENTIALS.
	SpeechCredentialsFile string `yaml:"-"`
}

type Transcription struct {
	Provider     string `yaml:"provider"`
	Model        string `yaml:"model"`
	LanguageCode string `yaml:"language_code"`
	SampleRate   int    `yaml:"sample_rate"`
	Punctuate    bool   `yaml:"punctuate"`
	WordOffsets  bool   `yaml:"word_offsets"`
}

type Suggestion struct {
	// Model is provider/model_name, e.g. gemini/gemini-1.5-flash.
	Model           string `yaml:"model"`
	Timeout         string `yaml:"timeout"`
	RecentResponses int    `yaml:"recent_responses"`
}

type Events struct {
	KafkaBrokers []string `yaml:"kafka_brokers"`
	KafkaTopic   string   `yaml:"kafka_topic"`
}

const defaultSuggestionTimeout = 20 * time.Second

func defaults() Config {
	return Config{
		ListenAddr: ":8000",
		DBPath:     "data/interview-ai.db",
		ArchiveDir: "data/transcripts",
		LogLevel:   "info",
		LogFormat:  "json",
		Transcription: Transcription{
			Provider:     "deepgram",
			Model:        "nova-2",
			LanguageCode: "en-US",
			SampleRate:   16000,
			Punctuate:    true,
			WordOffsets:  true,
		},
		Suggestion: Suggestion{
			Model:           "gemini/gemini-1.5-flash",
			Timeout:         "20s",
			RecentResponses: 5,
		},
		Events: Events{
			KafkaTopic: "interview-events",
		},
	}
}

// Load reads configuration from the .env file and a YAML file (if they
// exist), applies environment variable overrides, loads secrets, and
// validates the result. It returns the config, any validation warnings, and
// an error if a file exists but cannot be read or parsed.
func Load(path string) (Config, []string, error) {
	cfg := defaults()

	if err := godotenv.Load(DotEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, nil, fmt.Errorf("load %s: %w", DotEnvFile, err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, nil, fmt.Errorf("read config file: %w", err)
			}
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	applyEnvOverrides(&cfg)
	loadSecrets(&cfg)

	warnings := validate(&cfg)
	return cfg, warnings, nil
}

// ParsedSuggestionTimeout returns Suggestion.Timeout as a time.Duration,
// falling back to 20s if the value is invalid or not positive.
func (c *Config) ParsedSuggestionTimeout() time.Duration {
	d, err := time.ParseDuration(c.Suggestion.Timeout)
	if err != nil || d <= 0 {
		return defaultSuggestionTimeout
	}
	return d
}

// APIKeyFor returns the credential for an LLM provider name.
func (c *Config) APIKeyFor(provider string) string {
	switch provider {
	case "gemini":
		return c.GoogleAPIKey
	case "openai":
		return c.OpenAIAPIKey
	case "anthropic":
		return c.AnthropicAPIKey
	default:
		return ""
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvPrefix + "LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(EnvPrefix + "DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(EnvPrefix + "AUDIO_DIR"); v != "" {
		cfg.AudioDir = v
	}
	if v := os.Getenv(EnvPrefix + "ARCHIVE_DIR"); v != "" {
		cfg.ArchiveDir = v
	}
	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v := os.Getenv(EnvPrefix + "LOG_FORMAT"); v != "" {
		cfg.LogFormat = strings.ToLower(v)
	}
	if v := os.Getenv(EnvPrefix + "ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitList(v)
	}
	if v := os.Getenv(EnvPrefix + "GDRIVE_FOLDER_ID"); v != "" {
		cfg.GDriveFolderID = v
	}
	if v := os.Getenv(EnvPrefix + "GOOGLE_CREDENTIALS_FILE"); v != "" {
		cfg.GoogleCredentialsFile = v
	}
	if v := os.Getenv(EnvPrefix + "TRANSCRIPTION_PROVIDER"); v != "" {
		cfg.Transcription.Provider = strings.ToLower(v)
	}
	if v := os.Getenv(EnvPrefix + "TRANSCRIPTION_MODEL"); v != "" {
		cfg.Transcription.Model = v
	}
	if v := os.Getenv(EnvPrefix + "LANGUAGE_CODE"); v != "" {
		cfg.Transcription.LanguageCode = v
	}
	if v := os.Getenv(EnvPrefix + "SAMPLE_RATE"); v != "" {
		if rate, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && rate > 0 {
			cfg.Transcription.SampleRate = rate
		}
	}
	if v := os.Getenv(EnvPrefix + "SUGGESTION_MODEL"); v != "" {
		cfg.Suggestion.Model = v
	}
	if v := os.Getenv(EnvPrefix + "SUGGESTION_TIMEOUT"); v != "" {
		cfg.Suggestion.Timeout = v
	}
	if v := os.Getenv(EnvPrefix + "RECENT_RESPONSES"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			cfg.Suggestion.RecentResponses = n
		}
	}
	if v := os.Getenv(EnvPrefix + "KAFKA_BROKERS"); v != "" {
		cfg.Events.KafkaBrokers = splitList(v)
	}
	if v := os.Getenv(EnvPrefix + "KAFKA_TOPIC"); v != "" {
		cfg.Events.KafkaTopic = v
	}
}

func loadSecrets(cfg *Config) {
	cfg.DeepgramAPIKey = os.Getenv(EnvPrefix + "DEEPGRAM_API_KEY")
	cfg.GoogleAPIKey = os.Getenv(EnvPrefix + "GOOGLE_API_KEY")
	cfg.OpenAIAPIKey = os.Getenv(EnvPrefix + "OPENAI_API_KEY")
	cfg.AnthropicAPIKey = os.Getenv(EnvPrefix + "ANTHROPIC_API_KEY")
	cfg.SpeechCredentialsFile = os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")
}

func validate(cfg *Config) []string {
	var warnings []string

	switch cfg.Transcription.Provider {
	case "deepgram":
		if cfg.DeepgramAPIKey == "" {
			warnings = append(warnings, "Deepgram API key not configured; using the stub transcriber. Set "+EnvPrefix+"DEEPGRAM_API_KEY.")
		}
	case "google", "stub":
	default:
		warnings = append(warnings, fmt.Sprintf("Unknown transcription provider %q; using the stub transcriber.", cfg.Transcription.Provider))
	}

	provider, _, ok := strings.Cut(cfg.Suggestion.Model, "/")
	if !ok {
		warnings = append(warnings, fmt.Sprintf("Invalid suggestion model %q: expected provider/model_name; using the stub generator.", cfg.Suggestion.Model))
	} else if cfg.APIKeyFor(provider) == "" {
		warnings = append(warnings, fmt.Sprintf("No API key for suggestion provider %q; using the stub generator. Set %s%s_API_KEY.", provider, EnvPrefix, envKeyName(provider)))
	}

	if d, err := time.ParseDuration(cfg.Suggestion.Timeout); err != nil || d <= 0 {
		warnings = append(warnings, fmt.Sprintf("Invalid suggestion timeout %q; using default 20s.", cfg.Suggestion.Timeout))
	}
	if cfg.Transcription.SampleRate <= 0 {
		warnings = append(warnings, fmt.Sprintf("Invalid sample_rate %d; using 16000.", cfg.Transcription.SampleRate))
		cfg.Transcription.SampleRate = 16000
	}
	if cfg.Suggestion.RecentResponses <= 0 {
		cfg.Suggestion.RecentResponses = 5
	}

	return warnings
}

func envKeyName(provider string) string {
	if provider == "gemini" {
		return "GOOGLE"
	}
	return strings.ToUpper(provider)
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
