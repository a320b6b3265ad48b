package config

import "os"

// Environment variables that override file-provided secrets so deployments
// can keep credentials out of the config file. A .env file loaded before
// startup feeds these as well.
const (
	EnvAPIToken         = "MONTAGE_API_TOKEN"
	EnvStorageAccessKey = "MONTAGE_S3_ACCESS_KEY"
	EnvStorageSecretKey = "MONTAGE_S3_SECRET_KEY"
	EnvMotionAPIKey     = "MONTAGE_MOTION_API_KEY"
	EnvAMQPURL          = "MONTAGE_AMQP_URL"
)

func (c *Config) applyEnv() {
	if value := os.Getenv(EnvAPIToken); value != "" {
		c.Paths.APIToken = value
	}
	if value := os.Getenv(EnvStorageAccessKey); value != "" {
		c.Storage.AccessKey = value
	}
	if value := os.Getenv(EnvStorageSecretKey); value != "" {
		c.Storage.SecretKey = value
	}
	if value := os.Getenv(EnvMotionAPIKey); value != "" {
		c.Motion.APIKey = value
	}
	if value := os.Getenv(EnvAMQPURL); value != "" {
		c.Queue.AMQPURL = value
	}
}
