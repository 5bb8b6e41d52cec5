package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

// parseEnv overlays Config with environment variables, loading a .env file
// first if one exists. A missing .env is not an error.
func parseEnv(cfg *Config) {
	_ = godotenv.Load()

	setString(&cfg.ServerEndpointAddr, "CELLAR_SERVER_ADDR")
	setString(&cfg.APIToken, "CELLAR_API_TOKEN")
	setString(&cfg.DatabasePath, "CELLAR_DB_PATH")
	setString(&cfg.PhotoBucket, "CELLAR_PHOTO_BUCKET")
	setString(&cfg.S3Endpoint, "CELLAR_S3_ENDPOINT")
	setString(&cfg.S3Region, "CELLAR_S3_REGION")
	setString(&cfg.S3AccessKey, "CELLAR_S3_ACCESS_KEY")
	setString(&cfg.S3SecretKey, "CELLAR_S3_SECRET_KEY")
	setDuration(&cfg.OnlineCheckInterval, "CELLAR_ONLINE_CHECK_INTERVAL")
	setDuration(&cfg.RequestTimeout, "CELLAR_REQUEST_TIMEOUT")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
