package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	DBPath    string
	OutputDir string

	LogLevel string
	LogFile  string

	InlinerCSS            []string
	InlinerExtractHTMLCSS bool
	InlinerRemoveHTMLCSS  bool
	InlinerEmailListener  bool

	CSSHTTPTimeoutMs int
	CSSCacheEnabled  bool
	CSSCacheTTLSec   int
	CSSRateLimitRPS  int

	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string

	GmailClientID     string
	GmailClientSecret string
	GmailRedirectURI  string
	GmailRefreshToken string

	IMAPHost     string
	IMAPPort     int
	IMAPSecure   bool
	IMAPUser     string
	IMAPPassword string

	DraftsProvider    string
	DraftsMailbox     string
	DraftsIntervalSec int
	DraftsFetchMax    int
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DBPath:    getEnv("DB_PATH", filepath.Join(cwd, "data", "mailcss.db")),
		OutputDir: getEnv("OUTPUT_DIR", filepath.Join(cwd, "out")),

		LogLevel: getEnv("LOG_LEVEL", "normal"),
		LogFile:  getEnv("LOG_FILE", ""),

		InlinerCSS:            getEnvList("INLINER_CSS"),
		InlinerExtractHTMLCSS: getEnvBool("INLINER_EXTRACT_HTML_CSS", false),
		InlinerRemoveHTMLCSS:  getEnvBool("INLINER_REMOVE_HTML_CSS", false),
		InlinerEmailListener:  getEnvBool("INLINER_EMAIL_LISTENER", true),

		CSSHTTPTimeoutMs: getEnvInt("CSS_HTTP_TIMEOUT_MS", 15000),
		CSSCacheEnabled:  getEnvBool("CSS_CACHE_ENABLED", false),
		CSSCacheTTLSec:   getEnvInt("CSS_CACHE_TTL_SEC", 3600),
		CSSRateLimitRPS:  getEnvInt("CSS_RATE_LIMIT_RPS", 5),

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnvInt("SMTP_PORT", 587),
		SMTPUser:     getEnv("SMTP_USER", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),

		GmailClientID:     getEnv("GMAIL_CLIENT_ID", ""),
		GmailClientSecret: getEnv("GMAIL_CLIENT_SECRET", ""),
		GmailRedirectURI:  getEnv("GMAIL_REDIRECT_URI", "https://developers.google.com/oauthplayground"),
		GmailRefreshToken: getEnv("GMAIL_REFRESH_TOKEN", ""),

		IMAPHost:     getEnv("IMAP_HOST", ""),
		IMAPPort:     getEnvInt("IMAP_PORT", 993),
		IMAPSecure:   getEnvBool("IMAP_SECURE", true),
		IMAPUser:     getEnv("IMAP_USER", ""),
		IMAPPassword: getEnv("IMAP_PASSWORD", ""),

		DraftsProvider:    getEnv("DRAFTS_PROVIDER", "imap"),
		DraftsMailbox:     getEnv("DRAFTS_MAILBOX", "Drafts"),
		DraftsIntervalSec: getEnvInt("DRAFTS_INTERVAL_SEC", 30),
		DraftsFetchMax:    getEnvInt("DRAFTS_FETCH_MAX", 20),
	}

	return cfg, nil
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// getEnvList splits a comma separated value, dropping blanks. Entries that
// contain commas themselves (raw CSS) belong in a file instead.
func getEnvList(key string) []string {
	value := getEnv(key, "")
	if strings.TrimSpace(value) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	if value == "" {
		return fallback
	}
	if value == "1" || value == "true" || value == "yes" || value == "on" {
		return true
	}
	if value == "0" || value == "false" || value == "no" || value == "off" {
		return false
	}
	return fallback
}
