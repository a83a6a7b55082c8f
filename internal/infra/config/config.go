package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v9"
	"golang.org/x/crypto/argon2"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	LLM        LLMConfig        `yaml:"llm"`
	Store      StoreConfig      `yaml:"store"`
	Redis      RedisConfig      `yaml:"redis"`
	Auth       AuthConfig       `yaml:"auth"`
	OTP        OTPConfig        `yaml:"otp"`
	SMTP       SMTPConfig       `yaml:"smtp"`
	Transcribe TranscribeConfig `yaml:"transcribe"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Logger     LoggerConfig     `yaml:"logger"`
	Tracer     TracerConfig     `yaml:"tracer"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Addr              string        `yaml:"addr"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ReadTimeout       time.Duration `yaml:"read_timeout"`
	// WriteTimeout bounds non-streaming responses only; SSE responses clear
	// their write deadline once the stream opens.
	WriteTimeout time.Duration `yaml:"write_timeout"`
	// ExposeErrorDetails includes upstream error text in JSON error bodies.
	// Keep false in production.
	ExposeErrorDetails bool     `yaml:"expose_error_details"`
	TrustedProxies     []string `yaml:"trusted_proxies"`
	MaxAudioBytes      int64    `yaml:"max_audio_bytes"`
}

// LLMConfig holds LLM provider settings.
type LLMConfig struct {
	DefaultProvider string               `yaml:"default_provider"`
	Providers       []ProviderConfig     `yaml:"providers"`
	CircuitBreaker  CircuitBreakerConfig `yaml:"circuit_breaker"`
	Title           TitleConfig          `yaml:"title"`
}

// TitleConfig controls background conversation-title generation.
type TitleConfig struct {
	// Provider overrides the provider used for titles; empty means the
	// provider that served the chat turn.
	Provider  string        `yaml:"provider"`
	Fallbacks []string      `yaml:"fallbacks"`
	Timeout   time.Duration `yaml:"timeout"`
}

// CircuitBreakerConfig holds circuit breaker settings for LLM providers.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// PoolConfig holds HTTP connection pool settings for LLM providers.
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// ProviderConfig holds settings for a single LLM provider.
type ProviderConfig struct {
	Name        string        `yaml:"name"`
	Type        string        `yaml:"type"` // gemini, deepseek, groq
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	ConnTimeout time.Duration `yaml:"conn_timeout"`
	RespTimeout time.Duration `yaml:"resp_timeout"`
	Pool        PoolConfig    `yaml:"pool"`
}

// StoreConfig locates the SQLite database.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// RedisConfig holds the OTP cache connection.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// AuthConfig holds session-token settings.
type AuthConfig struct {
	Secret   string        `yaml:"secret"`
	TokenTTL time.Duration `yaml:"token_ttl"`
}

// OTPConfig holds one-time-passcode settings.
type OTPConfig struct {
	TTL      time.Duration `yaml:"ttl"`
	Length   int           `yaml:"length"`
	HashCost int           `yaml:"hash_cost"`

	// MaxAttempts wrong guesses invalidate a code.
	MaxAttempts int `yaml:"max_attempts"`
}

// SMTPConfig holds outgoing mail settings. An empty Host disables SMTP and
// passcodes are only logged.
type SMTPConfig struct {
	Host        string        `yaml:"host"`
	Port        int           `yaml:"port"`
	Secure      bool          `yaml:"secure"` // implicit TLS, usually port 465
	Username    string        `yaml:"username"`
	Password    string        `yaml:"password"`
	FromName    string        `yaml:"from_name"`
	FromAddress string        `yaml:"from_address"` // defaults to Username
	Timeout     time.Duration `yaml:"timeout"`
}

// TranscribeConfig holds Whisper settings.
type TranscribeConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// RateLimitConfig holds per-IP request budgets.
type RateLimitConfig struct {
	ChatPerMin   int `yaml:"chat_per_min"`
	ChatBurst    int `yaml:"chat_burst"`
	GlobalPerMin int `yaml:"global_per_min"`
	GlobalBurst  int `yaml:"global_burst"`
}

// SchedulerConfig holds recurring job settings.
type SchedulerConfig struct {
	QuickPrompts QuickPromptJobConfig `yaml:"quick_prompts"`
}

// QuickPromptJobConfig controls the quick-prompt refresh job.
type QuickPromptJobConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule"` // cron expression or duration
	Provider string `yaml:"provider"` // empty means llm.default_provider
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:              ":3000",
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       60 * time.Second,
			WriteTimeout:      120 * time.Second,
			MaxAudioBytes:     25 << 20,
		},
		LLM: LLMConfig{
			DefaultProvider: "deepseek",
			Providers: []ProviderConfig{
				{Name: "gemini", Type: "gemini", Model: "gemini-2.0-flash"},
				{Name: "deepseek", Type: "deepseek", Model: "deepseek-chat"},
				{Name: "groq", Type: "groq", Model: "llama3-70b-8192"},
			},
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:     true,
				MaxFailures: 5,
				Timeout:     30 * time.Second,
				Interval:    60 * time.Second,
			},
			Title: TitleConfig{Timeout: 30 * time.Second},
		},
		Store: StoreConfig{Path: "./data/egyptoai.db"},
		Redis: RedisConfig{URL: "redis://localhost:6379"},
		Auth:  AuthConfig{TokenTTL: 7 * 24 * time.Hour},
		OTP: OTPConfig{
			TTL:         10 * time.Minute,
			Length:      6,
			HashCost:    10,
			MaxAttempts: 5,
		},
		SMTP: SMTPConfig{
			Port:     587,
			FromName: "EgyptoAI",
			Timeout:  15 * time.Second,
		},
		Transcribe: TranscribeConfig{Model: "whisper-1"},
		RateLimit: RateLimitConfig{
			ChatPerMin:   5,
			ChatBurst:    5,
			GlobalPerMin: 100,
			GlobalBurst:  20,
		},
		Scheduler: SchedulerConfig{
			QuickPrompts: QuickPromptJobConfig{Enabled: true, Schedule: "0 */12 * * *"},
		},
		Logger: LoggerConfig{Level: "info", Format: "json", Output: "stderr"},
		Tracer: TracerConfig{Exporter: "noop"},
	}
}

// Load reads a YAML config file, applies env var overrides, and decrypts secrets.
// A missing file is not an error: defaults plus environment are used.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("resolve config path: %w", err)
		}
		if err := validatePermissions(absPath); err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := ApplyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if passphrase := os.Getenv("EGYPTOAI_CONFIG_KEY"); passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envOverrides lists every environment variable that can override the file.
// The provider key names match the ones the mobile backend has always used.
type envOverrides struct {
	Addr            string `env:"EGYPTOAI_SERVER_ADDR"`
	ExposeDetails   string `env:"EGYPTOAI_EXPOSE_ERROR_DETAILS"`
	DefaultProvider string `env:"EGYPTOAI_LLM_DEFAULT_PROVIDER"`
	StorePath       string `env:"EGYPTOAI_STORE_PATH"`
	RedisURL        string `env:"REDIS_URL"`
	AuthSecret      string `env:"EGYPTOAI_AUTH_SECRET"`
	LoggerLevel     string `env:"EGYPTOAI_LOGGER_LEVEL"`
	LoggerFormat    string `env:"EGYPTOAI_LOGGER_FORMAT"`
	TracerEnabled   string `env:"EGYPTOAI_TRACER_ENABLED"`
	TracerExporter  string `env:"EGYPTOAI_TRACER_EXPORTER"`
	GeminiKey       string `env:"GEMINI_API_KEY"`
	DeepSeekKey     string `env:"DEEPSEEK_API_KEY"`
	GroqKey         string `env:"GROQ_API_KEY"`
	OpenAIKey       string `env:"OPENAI_API_KEY"`
	SMTPHost        string `env:"SMTP_HOST"`
	SMTPPort        int    `env:"SMTP_PORT"`
	SMTPSecure      string `env:"SMTP_SECURE"`
	SMTPUser        string `env:"SMTP_USER"`
	SMTPPass        string `env:"SMTP_PASS"`
	EmailFromName   string `env:"EMAIL_FROM_NAME"`
	EmailFromAddr   string `env:"EMAIL_FROM_ADDRESS"`
}

// ApplyEnvOverrides maps environment variables onto cfg. Empty variables
// leave the file value untouched.
func ApplyEnvOverrides(cfg *Config) error {
	var ov envOverrides
	if err := env.Parse(&ov); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	setIf := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	setIf(&cfg.Server.Addr, ov.Addr)
	setIf(&cfg.LLM.DefaultProvider, ov.DefaultProvider)
	setIf(&cfg.Store.Path, ov.StorePath)
	setIf(&cfg.Redis.URL, ov.RedisURL)
	setIf(&cfg.Auth.Secret, ov.AuthSecret)
	setIf(&cfg.Logger.Level, ov.LoggerLevel)
	setIf(&cfg.Logger.Format, ov.LoggerFormat)
	setIf(&cfg.Tracer.Exporter, ov.TracerExporter)
	setIf(&cfg.Transcribe.APIKey, ov.OpenAIKey)
	setIf(&cfg.SMTP.Host, ov.SMTPHost)
	setIf(&cfg.SMTP.Username, ov.SMTPUser)
	setIf(&cfg.SMTP.Password, ov.SMTPPass)
	setIf(&cfg.SMTP.FromName, ov.EmailFromName)
	setIf(&cfg.SMTP.FromAddress, ov.EmailFromAddr)
	if ov.SMTPPort != 0 {
		cfg.SMTP.Port = ov.SMTPPort
	}
	if ov.SMTPSecure != "" {
		cfg.SMTP.Secure = ov.SMTPSecure == "true"
	}
	if ov.ExposeDetails == "true" {
		cfg.Server.ExposeErrorDetails = true
	}
	if ov.TracerEnabled == "true" {
		cfg.Tracer.Enabled = true
	}

	keys := map[string]string{
		"gemini":   ov.GeminiKey,
		"deepseek": ov.DeepSeekKey,
		"groq":     ov.GroqKey,
	}
	for i := range cfg.LLM.Providers {
		p := &cfg.LLM.Providers[i]
		if p.APIKey != "" {
			continue
		}
		if v := os.Getenv("EGYPTOAI_LLM_PROVIDER_" + strings.ToUpper(p.Name) + "_API_KEY"); v != "" {
			p.APIKey = v
			continue
		}
		setIf(&p.APIKey, keys[p.Type])
	}
	return nil
}

// secretFields returns pointers to every config value that may carry an
// "enc:" prefix.
func secretFields(cfg *Config) map[string]*string {
	fields := map[string]*string{
		"auth.secret":        &cfg.Auth.Secret,
		"transcribe.api_key": &cfg.Transcribe.APIKey,
		"redis.url":          &cfg.Redis.URL,
		"smtp.password":      &cfg.SMTP.Password,
	}
	for i := range cfg.LLM.Providers {
		fields["llm.providers."+cfg.LLM.Providers[i].Name+".api_key"] = &cfg.LLM.Providers[i].APIKey
	}
	return fields
}

// decryptSecrets finds "enc:..." values and decrypts them in place.
func decryptSecrets(cfg *Config, passphrase string) error {
	for name, fp := range secretFields(cfg) {
		if !strings.HasPrefix(*fp, "enc:") {
			continue
		}
		decrypted, err := DecryptValue(strings.TrimPrefix(*fp, "enc:"), passphrase)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*fp = decrypted
	}
	return nil
}

// EncryptValue encrypts a plaintext value with AES-256-GCM using a passphrase.
func EncryptValue(plaintext, passphrase string) (string, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	// Format: hex(salt) + ":" + hex(nonce+ciphertext)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(ciphertext), nil
}

// DecryptValue decrypts an AES-256-GCM encrypted value.
func DecryptValue(encrypted, passphrase string) (string, error) {
	saltHex, dataHex, ok := strings.Cut(encrypted, ":")
	if !ok {
		return "", fmt.Errorf("invalid encrypted format")
	}

	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return "", fmt.Errorf("decode salt: %w", err)
	}
	data, err := hex.DecodeString(dataHex)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plaintext), nil
}

func newGCM(passphrase string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(deriveKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}

// deriveKey uses Argon2id to derive a 32-byte key from passphrase + salt.
func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, 32)
}

// validatePermissions checks the config file has restrictive permissions.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	// Allow 0600 and 0644 (readable by others but not writable)
	if mode&0o077 > 0o044 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
