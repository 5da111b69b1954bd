package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server     ServerConfig
	Redis      RedisConfig
	JWT        JWTConfig
	RateLimit  RateLimitConfig
	Ragic      RagicConfig
	ElevenLabs ElevenLabsConfig
	AssemblyAI AssemblyAIConfig
	OpenAI     OpenAIConfig
	Groq       GroqConfig
	Gemini     GeminiConfig
	Archive    ArchiveConfig
	Webhook    WebhookConfig
}

type ServerConfig struct {
	Port      string
	Env       string
	LogLevel  string
	ApiDomain string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration int // hours
}

type RateLimitConfig struct {
	CreatePerMin  int
	ControlPerMin int
}

// RagicConfig points at the record store holding song and voice sheets.
// FormPath is the account-relative path of the sheet, e.g. "soultalk/1".
type RagicConfig struct {
	BaseURL  string
	APIKey   string
	FormPath string
	Timeout  int // seconds
}

type ElevenLabsConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type AssemblyAIConfig struct {
	APIKey  string
	BaseURL string
}

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type GroqConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type GeminiConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type ArchiveConfig struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

type WebhookConfig struct {
	URL     string
	Token   string
	Timeout int // seconds
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("RAGIC_API_KEY")
	readSecret("ELEVENLABS_API_KEY")
	readSecret("ASSEMBLYAI_API_KEY")
	readSecret("OPENAI_API_KEY")
	readSecret("GROQ_API_KEY")
	readSecret("GEMINI_API_KEY")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")
	readSecret("WEBHOOK_TOKEN")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("server.api_domain", "API_DOMAIN")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("jwt.secret", "JWT_SECRET")
	_ = viper.BindEnv("jwt.expiration", "JWT_EXPIRATION")
	_ = viper.BindEnv("ragic.base_url", "RAGIC_BASE_URL")
	_ = viper.BindEnv("ragic.api_key", "RAGIC_API_KEY")
	_ = viper.BindEnv("ragic.form_path", "RAGIC_FORM_PATH")
	_ = viper.BindEnv("ragic.timeout", "RAGIC_TIMEOUT")
	_ = viper.BindEnv("elevenlabs.api_key", "ELEVENLABS_API_KEY")
	_ = viper.BindEnv("elevenlabs.base_url", "ELEVENLABS_BASE_URL")
	_ = viper.BindEnv("elevenlabs.model", "ELEVENLABS_MODEL")
	_ = viper.BindEnv("assemblyai.api_key", "ASSEMBLYAI_API_KEY")
	_ = viper.BindEnv("assemblyai.base_url", "ASSEMBLYAI_BASE_URL")
	_ = viper.BindEnv("openai.api_key", "OPENAI_API_KEY")
	_ = viper.BindEnv("openai.base_url", "OPENAI_BASE_URL")
	_ = viper.BindEnv("openai.model", "OPENAI_MODEL")
	_ = viper.BindEnv("groq.api_key", "GROQ_API_KEY")
	_ = viper.BindEnv("groq.base_url", "GROQ_BASE_URL")
	_ = viper.BindEnv("groq.model", "GROQ_MODEL")
	_ = viper.BindEnv("gemini.api_key", "GEMINI_API_KEY")
	_ = viper.BindEnv("gemini.base_url", "GEMINI_BASE_URL")
	_ = viper.BindEnv("gemini.model", "GEMINI_MODEL")
	_ = viper.BindEnv("archive.account_id", "R2_ACCOUNT_ID")
	_ = viper.BindEnv("archive.access_key_id", "R2_ACCESS_KEY_ID")
	_ = viper.BindEnv("archive.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("archive.bucket_name", "R2_BUCKET_NAME")
	_ = viper.BindEnv("archive.public_url", "R2_PUBLIC_URL")
	_ = viper.BindEnv("webhook.url", "WEBHOOK_URL")
	_ = viper.BindEnv("webhook.token", "WEBHOOK_TOKEN")
	_ = viper.BindEnv("webhook.timeout", "WEBHOOK_TIMEOUT")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.expiration", 24)
	viper.SetDefault("ratelimit.create_per_min", 10)
	viper.SetDefault("ratelimit.control_per_min", 60)

	// Ragic defaults
	viper.SetDefault("ragic.base_url", "https://www.ragic.com")
	viper.SetDefault("ragic.timeout", 30)

	// ElevenLabs defaults
	viper.SetDefault("elevenlabs.base_url", "https://api.elevenlabs.io")
	viper.SetDefault("elevenlabs.model", "scribe_v1")

	// AssemblyAI defaults
	viper.SetDefault("assemblyai.base_url", "https://api.assemblyai.com")

	// OpenAI defaults
	viper.SetDefault("openai.base_url", "https://api.openai.com/v1")
	viper.SetDefault("openai.model", "gpt-4o")

	// Groq defaults
	viper.SetDefault("groq.base_url", "https://api.groq.com/openai/v1")
	viper.SetDefault("groq.model", "llama-3.3-70b-versatile")

	// Gemini defaults
	viper.SetDefault("gemini.base_url", "https://generativelanguage.googleapis.com")
	viper.SetDefault("gemini.model", "gemini-2.0-flash")

	// Webhook defaults
	viper.SetDefault("webhook.timeout", 10)

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:      viper.GetString("server.port"),
			Env:       viper.GetString("server.env"),
			LogLevel:  viper.GetString("server.log_level"),
			ApiDomain: viper.GetString("server.api_domain"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:     viper.GetString("jwt.secret"),
			Expiration: viper.GetInt("jwt.expiration"),
		},
		RateLimit: RateLimitConfig{
			CreatePerMin:  viper.GetInt("ratelimit.create_per_min"),
			ControlPerMin: viper.GetInt("ratelimit.control_per_min"),
		},
		Ragic: RagicConfig{
			BaseURL:  viper.GetString("ragic.base_url"),
			APIKey:   viper.GetString("ragic.api_key"),
			FormPath: viper.GetString("ragic.form_path"),
			Timeout:  viper.GetInt("ragic.timeout"),
		},
		ElevenLabs: ElevenLabsConfig{
			APIKey:  viper.GetString("elevenlabs.api_key"),
			BaseURL: viper.GetString("elevenlabs.base_url"),
			Model:   viper.GetString("elevenlabs.model"),
		},
		AssemblyAI: AssemblyAIConfig{
			APIKey:  viper.GetString("assemblyai.api_key"),
			BaseURL: viper.GetString("assemblyai.base_url"),
		},
		OpenAI: OpenAIConfig{
			APIKey:  viper.GetString("openai.api_key"),
			BaseURL: viper.GetString("openai.base_url"),
			Model:   viper.GetString("openai.model"),
		},
		Groq: GroqConfig{
			APIKey:  viper.GetString("groq.api_key"),
			BaseURL: viper.GetString("groq.base_url"),
			Model:   viper.GetString("groq.model"),
		},
		Gemini: GeminiConfig{
			APIKey:  viper.GetString("gemini.api_key"),
			BaseURL: viper.GetString("gemini.base_url"),
			Model:   viper.GetString("gemini.model"),
		},
		Archive: ArchiveConfig{
			AccountID:       viper.GetString("archive.account_id"),
			AccessKeyID:     viper.GetString("archive.access_key_id"),
			SecretAccessKey: viper.GetString("archive.secret_access_key"),
			BucketName:      viper.GetString("archive.bucket_name"),
			PublicURL:       viper.GetString("archive.public_url"),
		},
		Webhook: WebhookConfig{
			URL:     viper.GetString("webhook.url"),
			Token:   viper.GetString("webhook.token"),
			Timeout: viper.GetInt("webhook.timeout"),
		},
	}

	return cfg, nil
}
