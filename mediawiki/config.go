package mediawiki

import (
	"os"
	"strconv"
	"time"
)

// Defaults point at the public Memory Tau deployment.
const (
	DefaultAPIURL    = "https://www.mysidia.org/trek/api.php"
	DefaultTimeout   = 3 * time.Second
	DefaultUserAgent = "MemoryTauAPI/1.0 (https://github.com/Idran/MemoryTauAPI)"
)

// Config holds connection settings for a MediaWiki-style API endpoint.
// Values are fixed once the Config is handed to NewClient.
type Config struct {
	// APIURL is the api.php endpoint.
	APIURL string

	// UserAgent identifies the client to the wiki.
	UserAgent string

	// Timeout for API requests.
	Timeout time.Duration

	// RateLimit is the minimum delay between outbound requests.
	// Zero disables rate limiting.
	RateLimit time.Duration
}

// DefaultConfig returns a Config for the default endpoint with no rate limit.
func DefaultConfig() *Config {
	return &Config{
		APIURL:    DefaultAPIURL,
		UserAgent: DefaultUserAgent,
		Timeout:   DefaultTimeout,
	}
}

// LoadConfig builds a Config from environment variables, falling back to
// defaults for anything unset. MEDIAWIKI_RATE_LIMIT accepts either a Go
// duration ("50ms") or a bare number of milliseconds.
func LoadConfig() *Config {
	config := DefaultConfig()

	if u := os.Getenv("MEDIAWIKI_URL"); u != "" {
		config.APIURL = u
	}

	if ua := os.Getenv("MEDIAWIKI_USER_AGENT"); ua != "" {
		config.UserAgent = ua
	}

	if t := os.Getenv("MEDIAWIKI_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			config.Timeout = d
		}
	}

	if r := os.Getenv("MEDIAWIKI_RATE_LIMIT"); r != "" {
		if d, err := time.ParseDuration(r); err == nil && d >= 0 {
			config.RateLimit = d
		} else if ms, err := strconv.Atoi(r); err == nil && ms >= 0 {
			config.RateLimit = time.Duration(ms) * time.Millisecond
		}
	}

	return config
}
