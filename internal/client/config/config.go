// Package config holds runtime settings for the cellar client.
//
// Sources are applied in order, later ones winning: built-in defaults, a
// .env file / environment variables, a JSON file (-c/-config), and finally
// command-line flags.
package config

import "time"

type Config struct {
	// ServerEndpointAddr is the base URL of the backend REST API.
	ServerEndpointAddr string

	// APIToken is the opaque bearer token attached to backend requests.
	APIToken string

	// DatabasePath is the SQLite file holding the local store and outboxes.
	DatabasePath string

	// PhotoBucket is the object-store bucket photo binaries land in.
	PhotoBucket string

	// S3Endpoint etc. configure the photo bucket connection. An empty
	// endpoint means plain AWS.
	S3Endpoint  string
	S3Region    string
	S3AccessKey string
	S3SecretKey string

	// OnlineCheckInterval is how often the monitor probes reachability.
	OnlineCheckInterval time.Duration

	// RequestTimeout bounds every backend call, including the
	// remote-attempt-before-fallback on the direct-write path.
	RequestTimeout time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "http://127.0.0.1:8080"
	c.DatabasePath = "cellar.db"
	c.PhotoBucket = "cellar-photos"
	c.S3Region = "us-east-1"
	c.OnlineCheckInterval = 15 * time.Second
	c.RequestTimeout = 10 * time.Second
}

// LoadConfig constructs a Config from all sources.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseEnv(cfg)
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
