package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// App is the process configuration read from the environment.
type App struct {
	Port     string
	LogLevel string

	GeminiAPIKey    string
	GeminiModel     string
	GeminiProjectID string
	GeminiLocation  string
	// GoogleCredentialsFile is passed to the Vertex, Speech and Storage clients.
	GoogleCredentialsFile string

	HistoryWindow      int
	DocCharBudget      int
	MinAnswerBytes     int
	MinTranscriptChars int
	CodeMinChars       int
	AnalysisWorkers    int
	DrainTimeout       time.Duration
	FrameMaxWidth      int
	SpeechCheck        bool
	SpeechLanguage     string

	// Optional infrastructure, skipped when empty.
	RedisAddr      string
	MongoURI       string
	MongoDB        string
	PostgresURI    string
	GCSBucket      string
	ReportCacheTTL time.Duration

	JWTSecret   string
	JWTIssuer   string
	JWTAudience string
	DevUserID   string
}

// Load reads .env when present and then the environment.
func Load() (App, error) {
	_ = godotenv.Load()

	p := parser{}
	cfg := App{
		Port:     str("PORT", "8080"),
		LogLevel: str("LOG_LEVEL", "info"),

		GeminiAPIKey:          os.Getenv("GEMINI_API_KEY"),
		GeminiModel:           str("GEMINI_MODEL", "gemini-2.5-flash"),
		GeminiProjectID:       os.Getenv("GEMINI_PROJECT_ID"),
		GeminiLocation:        str("GEMINI_LOCATION", "us-central1"),
		GoogleCredentialsFile: os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),

		HistoryWindow:      p.num("HISTORY_WINDOW", 3),
		DocCharBudget:      p.num("DOC_CHAR_BUDGET", 30000),
		MinAnswerBytes:     p.num("MIN_ANSWER_BYTES", 1000),
		MinTranscriptChars: p.num("MIN_TRANSCRIPT_CHARS", 3),
		CodeMinChars:       p.num("CODE_MIN_CHARS", 20),
		AnalysisWorkers:    p.num("ANALYSIS_WORKERS", 4),
		DrainTimeout:       p.dur("PHASE2_DRAIN_TIMEOUT", 20*time.Second),
		FrameMaxWidth:      p.num("FRAME_MAX_WIDTH", 640),
		SpeechCheck:        p.flag("SPEECH_CHECK", false),
		SpeechLanguage:     str("SPEECH_LANGUAGE", "en-US"),

		RedisAddr:      firstEnv("REDIS_ADDR", "REDIS_URI", "REDIS_URL"),
		MongoURI:       os.Getenv("MONGO_URI"),
		MongoDB:        str("MONGO_DB", "yoointerview"),
		PostgresURI:    os.Getenv("POSTGRES_URI"),
		GCSBucket:      os.Getenv("GCS_BUCKET"),
		ReportCacheTTL: p.dur("REPORT_CACHE_TTL", 24*time.Hour),

		JWTSecret:   os.Getenv("SUPABASE_JWT_SECRET"),
		JWTIssuer:   os.Getenv("SUPABASE_JWT_ISSUER"),
		JWTAudience: os.Getenv("SUPABASE_JWT_AUDIENCE"),
		DevUserID:   os.Getenv("AUTH_DEV_USER"),
	}
	if p.err != nil {
		return App{}, p.err
	}
	if cfg.GeminiAPIKey == "" && cfg.GeminiProjectID == "" {
		return App{}, fmt.Errorf("GEMINI_API_KEY or GEMINI_PROJECT_ID must be set")
	}
	if cfg.JWTSecret == "" && cfg.DevUserID == "" {
		return App{}, fmt.Errorf("SUPABASE_JWT_SECRET is not set")
	}
	return cfg, nil
}

// UseVertex reports whether the model is reached through Vertex AI.
func (a App) UseVertex() bool { return a.GeminiProjectID != "" }

func str(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

// parser keeps the first malformed value it sees.
type parser struct{ err error }

func (p *parser) fail(key, v string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s=%q: %w", key, v, err)
	}
}

func (p *parser) num(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	if n <= 0 {
		p.fail(key, v, fmt.Errorf("must be positive"))
		return def
	}
	return n
}

func (p *parser) flag(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return b
}

func (p *parser) dur(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return d
}
