package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

// Config holds all configuration required by the agent process.
// All values must come from env (or env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App        AppConfig
	DB         DBConfig
	Redis      RedisConfig
	Auth       AuthConfig
	ARI        ARIConfig
	LLM        LLMConfig
	STT        STTConfig
	TTS        TTSConfig
	SMTP       SMTPConfig
	Session    SessionConfig
	Scheduling SchedulingConfig
	Dialer     DialerConfig
	Paths      PathsConfig
}

type AppConfig struct {
	Env      string
	Port     int
	LogLevel string
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host string
	Port int
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// OperatorKey is exchanged for an operator token on POST /v1/auth/token.
	OperatorKey string
}

// ARIConfig points at the Asterisk REST Interface.
type ARIConfig struct {
	URL          string
	WebsocketURL string
	Username     string
	Password     string
	Application  string

	// Trunks is a comma-separated list of "endpoint-template:weight" pairs,
	// e.g. "PJSIP/%s@trunk-a:3,PJSIP/%s@trunk-b:1".
	Trunks        string
	CallerID      string
	DialTimeout   time.Duration
	SoundURIBase  string
	AckMedia      string
	FallbackMedia string
}

type LLMConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
}

// STTConfig selects the transcription backend: "websocket" or "openai".
type STTConfig struct {
	Provider string
	URL      string
	// PoolSize bounds the websocket connections kept idle between requests.
	PoolSize int
	Model    string
}

// TTSConfig selects the synthesis backend: "piper" or "openai".
type TTSConfig struct {
	Provider   string
	PiperPath  string
	PiperModel string
	Model      string
	Voice      string
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	TeamTo   string
}

type SessionConfig struct {
	// AgentName and Company are how the agent introduces itself.
	AgentName string
	Company   string

	OpTimeout          time.Duration
	MaxCallDuration    time.Duration
	WatchdogInterval   time.Duration
	SilenceDuration    time.Duration
	MaxListen          time.Duration
	MinRecordingBytes  int64
	MinTranscriptChars int
	ArtifactRetention  time.Duration
	JanitorInterval    time.Duration
}

type SchedulingConfig struct {
	ReferenceZone string
	OpenHour      int
	CloseHour     int
	Buffer        time.Duration
	SweepInterval time.Duration
}

type DialerConfig struct {
	Concurrency int
	// GlobalCap bounds in-flight originations across processes via Redis; 0 disables it.
	GlobalCap int
}

type PathsConfig struct {
	RecordingDir string
	SoundsDir    string
	KnowledgeDir string
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	c.App.LogLevel = strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	// Duration env vars are optional; defaults applied in Validate().
	c.Auth.AccessTokenTTL = mustDuration("JWT_ACCESS_TTL")
	c.Auth.RefreshTokenTTL = mustDuration("JWT_REFRESH_TTL")
	c.Auth.OperatorKey = os.Getenv("OPERATOR_KEY")

	c.ARI.URL = strings.TrimSpace(os.Getenv("ARI_URL"))
	c.ARI.WebsocketURL = strings.TrimSpace(os.Getenv("ARI_WS_URL"))
	c.ARI.Username = strings.TrimSpace(os.Getenv("ARI_USER"))
	c.ARI.Password = os.Getenv("ARI_PASSWORD")
	c.ARI.Application = strings.TrimSpace(os.Getenv("ARI_APP"))
	c.ARI.Trunks = strings.TrimSpace(os.Getenv("ARI_TRUNKS"))
	c.ARI.CallerID = strings.TrimSpace(os.Getenv("ARI_CALLER_ID"))
	c.ARI.DialTimeout = mustDuration("ARI_DIAL_TIMEOUT")
	c.ARI.SoundURIBase = strings.TrimSpace(os.Getenv("ARI_SOUND_URI_BASE"))
	c.ARI.AckMedia = strings.TrimSpace(os.Getenv("ARI_ACK_MEDIA"))
	c.ARI.FallbackMedia = strings.TrimSpace(os.Getenv("ARI_FALLBACK_MEDIA"))

	c.LLM.BaseURL = strings.TrimSpace(os.Getenv("LLM_BASE_URL"))
	c.LLM.APIKey = os.Getenv("LLM_API_KEY")
	c.LLM.Model = strings.TrimSpace(os.Getenv("LLM_MODEL"))
	c.LLM.Temperature = optionalFloat("LLM_TEMPERATURE")
	c.LLM.MaxTokens = optionalInt("LLM_MAX_TOKENS")

	c.STT.Provider = strings.TrimSpace(os.Getenv("STT_PROVIDER"))
	c.STT.URL = strings.TrimSpace(os.Getenv("STT_URL"))
	c.STT.PoolSize = optionalInt("STT_POOL_SIZE")
	c.STT.Model = strings.TrimSpace(os.Getenv("STT_MODEL"))

	c.TTS.Provider = strings.TrimSpace(os.Getenv("TTS_PROVIDER"))
	c.TTS.PiperPath = strings.TrimSpace(os.Getenv("PIPER_PATH"))
	c.TTS.PiperModel = strings.TrimSpace(os.Getenv("PIPER_MODEL"))
	c.TTS.Model = strings.TrimSpace(os.Getenv("TTS_MODEL"))
	c.TTS.Voice = strings.TrimSpace(os.Getenv("TTS_VOICE"))

	c.SMTP.Host = strings.TrimSpace(os.Getenv("SMTP_HOST"))
	c.SMTP.Port = optionalInt("SMTP_PORT")
	c.SMTP.Username = strings.TrimSpace(os.Getenv("SMTP_USER"))
	c.SMTP.Password = os.Getenv("SMTP_PASSWORD")
	c.SMTP.From = strings.TrimSpace(os.Getenv("SMTP_FROM"))
	c.SMTP.TeamTo = strings.TrimSpace(os.Getenv("SMTP_TEAM_TO"))

	c.Session.AgentName = strings.TrimSpace(os.Getenv("AGENT_NAME"))
	c.Session.Company = strings.TrimSpace(os.Getenv("COMPANY_NAME"))
	c.Session.OpTimeout = mustDuration("SESSION_OP_TIMEOUT")
	c.Session.MaxCallDuration = mustDuration("SESSION_MAX_DURATION")
	c.Session.WatchdogInterval = mustDuration("SESSION_WATCHDOG_INTERVAL")
	c.Session.SilenceDuration = mustDuration("SILENCE_DURATION")
	c.Session.MaxListen = mustDuration("LISTEN_MAX")
	c.Session.MinRecordingBytes = int64(optionalInt("MIN_RECORDING_BYTES"))
	c.Session.MinTranscriptChars = optionalInt("MIN_TRANSCRIPT_CHARS")
	c.Session.ArtifactRetention = mustDuration("ARTIFACT_RETENTION")
	c.Session.JanitorInterval = mustDuration("JANITOR_INTERVAL")

	c.Scheduling.ReferenceZone = strings.TrimSpace(os.Getenv("REFERENCE_TZ"))
	c.Scheduling.OpenHour = optionalInt("BUSINESS_OPEN_HOUR")
	c.Scheduling.CloseHour = optionalInt("BUSINESS_CLOSE_HOUR")
	c.Scheduling.Buffer = mustDuration("BOOKING_BUFFER")
	c.Scheduling.SweepInterval = mustDuration("CALLBACK_SWEEP_INTERVAL")

	c.Dialer.Concurrency = optionalInt("DIALER_CONCURRENCY")
	c.Dialer.GlobalCap = optionalInt("DIALER_GLOBAL_CAP")

	c.Paths.RecordingDir = strings.TrimSpace(os.Getenv("RECORDING_DIR"))
	c.Paths.SoundsDir = strings.TrimSpace(os.Getenv("SOUNDS_DIR"))
	c.Paths.KnowledgeDir = strings.TrimSpace(os.Getenv("KNOWLEDGE_DIR"))

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate applies defaults in place and reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if strings.TrimSpace(c.DB.SSLMode) == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
		if c.Auth.OperatorKey == "" {
			errs = append(errs, errors.New("OPERATOR_KEY is required in production"))
		}
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}

	if c.ARI.URL == "" {
		errs = append(errs, errors.New("ARI_URL is required"))
	}
	if c.ARI.WebsocketURL == "" {
		errs = append(errs, errors.New("ARI_WS_URL is required"))
	}
	if c.ARI.Username == "" {
		errs = append(errs, errors.New("ARI_USER is required"))
	}
	if c.ARI.Application == "" {
		c.ARI.Application = "voice-agent"
	}
	if c.ARI.Trunks == "" {
		errs = append(errs, errors.New("ARI_TRUNKS is required"))
	}
	if c.ARI.DialTimeout <= 0 {
		c.ARI.DialTimeout = 45 * time.Second
	}
	if c.ARI.SoundURIBase == "" {
		c.ARI.SoundURIBase = "sound:agent/"
	}

	if c.LLM.BaseURL == "" {
		errs = append(errs, errors.New("LLM_BASE_URL is required"))
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "llama3.1"
	}
	if c.LLM.Temperature <= 0 {
		c.LLM.Temperature = 0.5
	}
	if c.LLM.MaxTokens <= 0 {
		c.LLM.MaxTokens = 80
	}

	switch c.STT.Provider {
	case "":
		c.STT.Provider = "websocket"
		fallthrough
	case "websocket":
		if c.STT.URL == "" {
			errs = append(errs, errors.New("STT_URL is required for the websocket provider"))
		}
	case "openai":
		if c.STT.Model == "" {
			c.STT.Model = "whisper-1"
		}
	default:
		errs = append(errs, fmt.Errorf("STT_PROVIDER must be one of websocket, openai, got %q", c.STT.Provider))
	}
	if c.STT.PoolSize <= 0 {
		c.STT.PoolSize = 4
	}

	switch c.TTS.Provider {
	case "":
		c.TTS.Provider = "piper"
		fallthrough
	case "piper":
		if c.TTS.PiperModel == "" {
			errs = append(errs, errors.New("PIPER_MODEL is required for the piper provider"))
		}
		if c.TTS.PiperPath == "" {
			c.TTS.PiperPath = "piper"
		}
	case "openai":
		if c.TTS.Model == "" {
			c.TTS.Model = "tts-1"
		}
		if c.TTS.Voice == "" {
			c.TTS.Voice = "alloy"
		}
	default:
		errs = append(errs, fmt.Errorf("TTS_PROVIDER must be one of piper, openai, got %q", c.TTS.Provider))
	}

	if c.SMTP.Host != "" {
		if c.SMTP.Port <= 0 {
			c.SMTP.Port = 587
		}
		if c.SMTP.From == "" {
			errs = append(errs, errors.New("SMTP_FROM is required when SMTP_HOST is set"))
		}
	}

	if c.Session.AgentName == "" {
		c.Session.AgentName = "Sam"
	}
	if c.Session.Company == "" {
		c.Session.Company = "SusaLabs"
	}
	if c.Session.OpTimeout <= 0 {
		c.Session.OpTimeout = 45 * time.Second
	}
	if c.Session.MaxCallDuration <= 0 {
		c.Session.MaxCallDuration = 30 * time.Minute
	}
	if c.Session.WatchdogInterval <= 0 {
		c.Session.WatchdogInterval = 5 * time.Minute
	}
	if c.Session.SilenceDuration <= 0 {
		c.Session.SilenceDuration = 1500 * time.Millisecond
	}
	if c.Session.MaxListen <= 0 {
		c.Session.MaxListen = 10 * time.Second
	}
	if c.Session.MinRecordingBytes <= 0 {
		c.Session.MinRecordingBytes = 1000
	}
	if c.Session.MinTranscriptChars <= 0 {
		c.Session.MinTranscriptChars = 2
	}
	if c.Session.ArtifactRetention <= 0 {
		c.Session.ArtifactRetention = time.Hour
	}
	if c.Session.JanitorInterval <= 0 {
		c.Session.JanitorInterval = time.Hour
	}

	if c.Scheduling.ReferenceZone == "" {
		c.Scheduling.ReferenceZone = "Asia/Kolkata"
	}
	if _, err := time.LoadLocation(c.Scheduling.ReferenceZone); err != nil {
		errs = append(errs, fmt.Errorf("REFERENCE_TZ must be an IANA zone, got %q", c.Scheduling.ReferenceZone))
	}
	if c.Scheduling.OpenHour == 0 && c.Scheduling.CloseHour == 0 {
		c.Scheduling.OpenHour, c.Scheduling.CloseHour = 9, 21
	}
	if c.Scheduling.OpenHour < 0 || c.Scheduling.CloseHour > 24 || c.Scheduling.OpenHour >= c.Scheduling.CloseHour {
		errs = append(errs, fmt.Errorf("BUSINESS_OPEN_HOUR/BUSINESS_CLOSE_HOUR must form a window within a day, got %d-%d", c.Scheduling.OpenHour, c.Scheduling.CloseHour))
	}
	if c.Scheduling.Buffer <= 0 {
		c.Scheduling.Buffer = 15 * time.Minute
	}
	if c.Scheduling.SweepInterval <= 0 {
		c.Scheduling.SweepInterval = time.Minute
	}

	if c.Dialer.Concurrency <= 0 {
		c.Dialer.Concurrency = 10
	}
	if c.Dialer.GlobalCap < 0 {
		errs = append(errs, fmt.Errorf("DIALER_GLOBAL_CAP must be >= 0, got %d", c.Dialer.GlobalCap))
	}

	if c.Paths.RecordingDir == "" {
		c.Paths.RecordingDir = "/var/spool/asterisk/recording"
	}
	if c.Paths.SoundsDir == "" {
		c.Paths.SoundsDir = "/var/lib/asterisk/sounds/agent"
	}
	if c.Paths.KnowledgeDir == "" {
		c.Paths.KnowledgeDir = "knowledge"
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func (c Config) SMTPAddr() string {
	return fmt.Sprintf("%s:%d", c.SMTP.Host, c.SMTP.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

// optionalInt returns 0 when unset or malformed; Validate supplies the default.
func optionalInt(key string) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func optionalFloat(key string) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return f
}

func mustDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
