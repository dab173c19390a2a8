package config

import (
	"fmt"
	"net/url"
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	Env        string
	ServerPort int

	// SiteURL is the public origin used to build activation links.
	SiteURL string

	Database DatabaseConfig
	SMTP     SMTPConfig
}

type DatabaseConfig struct {
	Host          string
	Port          int
	User          string
	Password      string
	DBName        string
	UseSSL        bool
	MigrationsDir string
}

type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Sender   string
}

// Production reports whether the server runs in a production-like
// environment. Session cookies are marked Secure only then.
func (c Config) Production() bool {
	return c.Env == "production"
}

// URL builds the postgres connection string.
func (d DatabaseConfig) URL() string {
	sslmode := "disable"
	if d.UseSSL {
		sslmode = "require"
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		User:   url.UserPassword(d.User, d.Password),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", sslmode)
	u.RawQuery = q.Encode()
	return u.String()
}

func LoadConfig() Config {
	if os.Getenv("ENV") == "dev" {
		godotenv.Load()
	}

	dbConfig := DatabaseConfig{
		Host:          getEnv("DB_HOST", "localhost"),
		Port:          getEnvInt("DB_PORT", 5432),
		User:          getEnv("DB_USER", "devsys"),
		Password:      getEnv("DB_PASSWORD", "password"),
		DBName:        getEnv("DB_NAME", "devsys_db"),
		UseSSL:        getEnvBool("DB_USE_SSL", false),
		MigrationsDir: getEnv("DB_MIGRATIONS_DIR", "internal/db/migrations"),
	}

	smtpConfig := SMTPConfig{
		Host:     getEnv("EMAIL_SMTP_HOST", "localhost"),
		Port:     getEnvInt("EMAIL_SMTP_PORT", 1025),
		User:     getEnv("EMAIL_SMTP_USER", ""),
		Password: getEnv("EMAIL_SMTP_PASSWORD", ""),
		Sender:   getEnv("EMAIL_SENDER", "contact@devsys.dev"),
	}

	return Config{
		Env:        getEnv("ENV", "dev"),
		ServerPort: getEnvInt("SERVER_PORT", 8080),
		SiteURL:    getEnv("SITE_URL", "http://localhost:8080"),
		Database:   dbConfig,
		SMTP:       smtpConfig,
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		var value int
		fmt.Sscanf(valueStr, "%d", &value)
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(key); exists {
		return valueStr == "true" || valueStr == "1"
	}
	return defaultValue
}
