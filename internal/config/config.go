package config

import (
	"crypto/rand"
	"encoding/hex"
	"log"
	"os"
	"strconv"
)

type Config struct {
	// Database
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string

	// Redis
	RedisHost     string
	RedisPort     int
	RedisPassword string

	// Token signing
	JWTSecret string

	// Admin credential. AdminSecretHash, when set, takes precedence over the
	// plain AdminSecret and is compared with bcrypt. AdminTOTPSecret enables
	// one-time codes on destructive admin routes.
	AdminSecret     string
	AdminSecretHash string
	AdminTOTPSecret string

	// API
	APIPort int

	// Cloud backup storage
	BackupStorageDir string

	// Scheduled export backups (optional FTP offsite copy)
	BackupIntervalHours int
	FTPHost             string
	FTPPort             int
	FTPUser             string
	FTPPassword         string
	FTPPath             string
}

// generateSecureSecret generates a cryptographically secure random secret
func generateSecureSecret(length int) string {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to a timestamp-based approach if crypto/rand fails
		return hex.EncodeToString([]byte(os.Getenv("HOSTNAME") + string(rune(length))))
	}
	return hex.EncodeToString(bytes)
}

func Load() *Config {
	// JWT Secret - generate random if not provided
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = generateSecureSecret(32) // 64 character hex string
		log.Println("WARNING: JWT_SECRET not set - generated random secret. Issued tokens will not survive restarts.")
	}

	// Admin secret - warn if missing entirely
	adminSecret := getEnv("ADMIN_SECRET", "")
	adminSecretHash := getEnv("ADMIN_SECRET_HASH", "")
	if adminSecret == "" && adminSecretHash == "" {
		log.Println("WARNING: ADMIN_SECRET not set - admin routes are locked out!")
	}

	// Database password - warn if using default
	dbPassword := getEnv("DB_PASSWORD", "")
	if dbPassword == "" {
		log.Println("WARNING: DB_PASSWORD not set - this is insecure for production!")
		dbPassword = "changeme"
	}

	// Redis password - warn if using default
	redisPassword := getEnv("REDIS_PASSWORD", "")
	if redisPassword == "" {
		log.Println("WARNING: REDIS_PASSWORD not set - Redis is not secured!")
	}

	return &Config{
		// Database
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnvInt("DB_PORT", 5432),
		DBUser:     getEnv("DB_USER", "license"),
		DBPassword: dbPassword,
		DBName:     getEnv("DB_NAME", "license"),

		// Redis
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnvInt("REDIS_PORT", 6379),
		RedisPassword: redisPassword,

		// Token signing
		JWTSecret: jwtSecret,

		// Admin
		AdminSecret:     adminSecret,
		AdminSecretHash: adminSecretHash,
		AdminTOTPSecret: getEnv("ADMIN_TOTP_SECRET", ""),

		// API
		APIPort: getEnvInt("API_PORT", 8080),

		// Cloud backup storage
		BackupStorageDir: getEnv("CLOUD_BACKUP_STORAGE_DIR", "/opt/license-server/cloud-backups"),

		// Scheduled export backups
		BackupIntervalHours: getEnvInt("BACKUP_INTERVAL_HOURS", 0),
		FTPHost:             getEnv("BACKUP_FTP_HOST", ""),
		FTPPort:             getEnvInt("BACKUP_FTP_PORT", 21),
		FTPUser:             getEnv("BACKUP_FTP_USER", ""),
		FTPPassword:         getEnv("BACKUP_FTP_PASSWORD", ""),
		FTPPath:             getEnv("BACKUP_FTP_PATH", "/"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
