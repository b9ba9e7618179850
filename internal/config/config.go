// Package config loads daemon configuration from environment variables.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds everything the relay needs to run.
type Config struct {
	// Backend
	APIURL string
	WSURL  string

	// Local state
	DBPath          string
	StatePassphrase string
	ReadRetention   time.Duration

	// Local daemon surface
	ListenAddr string
	LogLevel   string

	// Push registration + local delivery
	PushEnabled     bool
	PhysicalDevice  bool
	PushProjectID   string
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	AlertCommand    string

	// State backup
	S3Endpoint      string
	S3Bucket        string
	S3Region        string
	S3AccessKey     string
	S3SecretKey     string
	BackupInterval  time.Duration
	BackupRetention int
}

// Load reads configuration from the environment, applying defaults.
func Load() Config {
	return Config{
		APIURL: getEnv("SHOPNET_API_URL", "https://api.shopnet.cm"),
		WSURL:  getEnv("SHOPNET_WS_URL", "wss://api.shopnet.cm/ws"),

		DBPath:          getEnv("SHOPNET_DB_PATH", "shopnet-relay.db"),
		StatePassphrase: getEnv("SHOPNET_STATE_PASSPHRASE", ""),
		ReadRetention:   time.Duration(getEnvInt("SHOPNET_READ_RETENTION_DAYS", 90)) * 24 * time.Hour,

		ListenAddr: getEnv("SHOPNET_LISTEN_ADDR", "127.0.0.1:8790"),
		LogLevel:   getEnv("SHOPNET_LOG_LEVEL", "info"),

		PushEnabled:     getEnvBool("SHOPNET_PUSH_ENABLED", true),
		PhysicalDevice:  getEnvBool("SHOPNET_PHYSICAL_DEVICE", true),
		PushProjectID:   getEnv("SHOPNET_PUSH_PROJECT_ID", "shopnet-relay"),
		VAPIDPublicKey:  getEnv("SHOPNET_VAPID_PUBLIC_KEY", ""),
		VAPIDPrivateKey: getEnv("SHOPNET_VAPID_PRIVATE_KEY", ""),
		AlertCommand:    getEnv("SHOPNET_ALERT_COMMAND", ""),

		S3Endpoint:      getEnv("SHOPNET_S3_ENDPOINT", ""),
		S3Bucket:        getEnv("SHOPNET_S3_BUCKET", ""),
		S3Region:        getEnv("SHOPNET_S3_REGION", "auto"),
		S3AccessKey:     getEnv("SHOPNET_S3_ACCESS_KEY", ""),
		S3SecretKey:     getEnv("SHOPNET_S3_SECRET_KEY", ""),
		BackupInterval:  time.Duration(getEnvInt("SHOPNET_BACKUP_INTERVAL_HOURS", 24)) * time.Hour,
		BackupRetention: getEnvInt("SHOPNET_BACKUP_RETENTION_DAYS", 30),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
