package config

import (
	"encoding/json"
	"os"

	"github.com/mlukins/cellar/internal/flagx"
	"github.com/mlukins/cellar/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Durations may
// be given either as strings like "15s" or as integer nanoseconds.
type JsonConfig struct {
	ServerEndpointAddr  *string         `json:"server_endpoint_addr"`
	APIToken            *string         `json:"api_token"`
	DatabasePath        *string         `json:"database_path"`
	PhotoBucket         *string         `json:"photo_bucket"`
	S3Endpoint          *string         `json:"s3_endpoint"`
	S3Region            *string         `json:"s3_region"`
	S3AccessKey         *string         `json:"s3_access_key"`
	S3SecretKey         *string         `json:"s3_secret_key"`
	OnlineCheckInterval *timex.Duration `json:"online_check_interval"`
	RequestTimeout      *timex.Duration `json:"request_timeout"`
}

// parseJson overlays Config with values from the JSON file named by the
// -c/-config flag. No flag, no file, no overlay.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	overlayString(&cfg.ServerEndpointAddr, jc.ServerEndpointAddr)
	overlayString(&cfg.APIToken, jc.APIToken)
	overlayString(&cfg.DatabasePath, jc.DatabasePath)
	overlayString(&cfg.PhotoBucket, jc.PhotoBucket)
	overlayString(&cfg.S3Endpoint, jc.S3Endpoint)
	overlayString(&cfg.S3Region, jc.S3Region)
	overlayString(&cfg.S3AccessKey, jc.S3AccessKey)
	overlayString(&cfg.S3SecretKey, jc.S3SecretKey)
	if jc.OnlineCheckInterval != nil {
		cfg.OnlineCheckInterval = jc.OnlineCheckInterval.Duration
	}
	if jc.RequestTimeout != nil {
		cfg.RequestTimeout = jc.RequestTimeout.Duration
	}
}

func overlayString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}
