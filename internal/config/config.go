package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every setting the gateway reads. It is resolved once in main
// and injected; nothing else touches the environment after startup.
type Config struct {
	Port string

	// Backend base URLs. GraphQLURL is required; AuthURL and StorageURL
	// should be set explicitly but can be derived from a sibling Nhost URL
	// as a degraded-mode fallback (see deriveServiceURL).
	GraphQLURL string
	AuthURL    string
	StorageURL string

	// AdminSecret authenticates service-level calls to the auth admin API,
	// the storage API, and elevated GraphQL retries.
	AdminSecret string

	// JWTSecret verifies caller bearer tokens (HS256).
	JWTSecret string

	// Nhost project coordinates, used only by the URL fallback.
	Subdomain string
	Region    string

	ProofBucket  string
	MaxUploadMB  int64
	BodyLimit    int64
	RedisAddr    string
	OTLPEndpoint string
	TracingOn    bool

	LookupPollInterval time.Duration
	LookupPollAttempts int
	DomainRetryDelay   time.Duration
}

// Load reads configuration from the environment (and an optional .env file)
// and validates it. A missing required value is fatal: failing at startup
// beats a config error in the middle of a provisioning flow.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file, using system environment")
	}

	cfg := &Config{
		Port:        getEnv("HTTP_PORT", "8080"),
		GraphQLURL:  strings.TrimRight(os.Getenv("NHOST_GRAPHQL_URL"), "/"),
		AuthURL:     strings.TrimRight(os.Getenv("NHOST_AUTH_URL"), "/"),
		StorageURL:  strings.TrimRight(os.Getenv("NHOST_STORAGE_URL"), "/"),
		AdminSecret: firstEnv("NHOST_ADMIN_SECRET", "HASURA_GRAPHQL_ADMIN_SECRET"),
		JWTSecret:   os.Getenv("NHOST_JWT_SECRET"),
		Subdomain:   os.Getenv("NHOST_SUBDOMAIN"),
		Region:      os.Getenv("NHOST_REGION"),

		ProofBucket:  getEnv("PROOF_BUCKET", "subscription-proofs"),
		MaxUploadMB:  getEnvInt64("MAX_UPLOAD_MB", 10),
		BodyLimit:    getEnvInt64("REQUEST_BODY_MAX_SIZE", 16<<20),
		RedisAddr:    os.Getenv("REDIS_ADDR"),
		OTLPEndpoint: os.Getenv("OTLP_ENDPOINT"),
		TracingOn:    getEnv("TRACING_ENABLED", "false") == "true",

		LookupPollInterval: getEnvDuration("LOOKUP_POLL_INTERVAL", 500*time.Millisecond),
		LookupPollAttempts: int(getEnvInt64("LOOKUP_POLL_ATTEMPTS", 6)),
		DomainRetryDelay:   getEnvDuration("DOMAIN_RETRY_DELAY", 700*time.Millisecond),
	}

	if cfg.AuthURL == "" {
		cfg.AuthURL = deriveServiceURL(cfg.GraphQLURL, "auth", cfg.Subdomain, cfg.Region)
	}
	if cfg.StorageURL == "" {
		cfg.StorageURL = deriveServiceURL(cfg.GraphQLURL, "storage", cfg.Subdomain, cfg.Region)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first missing required setting.
func (c *Config) Validate() error {
	switch {
	case c.GraphQLURL == "":
		return fmt.Errorf("config: NHOST_GRAPHQL_URL is required")
	case c.AuthURL == "":
		return fmt.Errorf("config: NHOST_AUTH_URL is required (and could not be derived)")
	case c.StorageURL == "":
		return fmt.Errorf("config: NHOST_STORAGE_URL is required (and could not be derived)")
	case c.AdminSecret == "":
		return fmt.Errorf("config: NHOST_ADMIN_SECRET or HASURA_GRAPHQL_ADMIN_SECRET is required")
	case c.JWTSecret == "":
		return fmt.Errorf("config: NHOST_JWT_SECRET is required")
	}
	return nil
}

// deriveServiceURL guesses a sibling Nhost service URL from a known one.
// Degraded-mode default for deployments that only export the GraphQL URL;
// explicit NHOST_AUTH_URL / NHOST_STORAGE_URL always win.
func deriveServiceURL(known, service, subdomain, region string) string {
	if known != "" && strings.Contains(known, "nhost.run") {
		url := strings.TrimRight(known, "/")
		replaced := false
		for _, svc := range []string{".graphql.", ".functions.", ".auth.", ".storage."} {
			if strings.Contains(url, svc) {
				url = strings.Replace(url, svc, "."+service+".", 1)
				replaced = true
				break
			}
		}
		if replaced {
			url = strings.TrimSuffix(url, "/v1/graphql")
			url = strings.TrimSuffix(url, "/graphql")
			url = strings.TrimSuffix(url, "/v1")
			return url + "/v1"
		}
	}
	if subdomain != "" && region != "" {
		return fmt.Sprintf("https://%s.%s.%s.nhost.run/v1", subdomain, service, region)
	}
	return ""
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func getEnvInt64(key string, fallback int64) int64 {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}
