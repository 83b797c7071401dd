package config

import (
	"os"
	"strconv"
)

type Config struct {
	ServerPort string

	DatabaseDriver string
	DatabaseURL    string

	// TransportKind selects the delivery strategy: "fcm" sends directly
	// to device tokens, "onesignal" broadcasts through route tags.
	TransportKind string

	FirebaseDatabaseURL string
	FirebaseCredentials string

	OneSignalAppID  string
	OneSignalAPIKey string

	BatchSize      int
	SenderCount    int
	ValidatorCount int

	CleanupIntervalHours int
}

func Load() *Config {
	return &Config{
		ServerPort:           getEnv("SERVER_PORT", "8080"),
		DatabaseDriver:       getEnv("DATABASE_DRIVER", "sqlite"),
		DatabaseURL:          getEnv("DATABASE_URL", "./rutalert.db"),
		TransportKind:        getEnv("TRANSPORT_KIND", "fcm"),
		FirebaseDatabaseURL:  getEnv("FIREBASE_DATABASE_URL", ""),
		FirebaseCredentials:  getEnv("FIREBASE_CREDENTIALS", "keys/service-account.json"),
		OneSignalAppID:       getEnv("ONESIGNAL_APP_ID", ""),
		OneSignalAPIKey:      getEnv("ONESIGNAL_API_KEY", ""),
		BatchSize:            getIntEnv("BATCH_SIZE", 500),
		SenderCount:          getIntEnv("SENDER_COUNT", 10),
		ValidatorCount:       getIntEnv("VALIDATOR_COUNT", 10),
		CleanupIntervalHours: getIntEnv("CLEANUP_INTERVAL_HOURS", 24),
	}
}

func getEnv(key, defaultVal string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultVal
}

func getIntEnv(key string, defaultVal int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultVal
}
