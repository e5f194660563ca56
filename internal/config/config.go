package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Store backends accepted by STORE_BACKEND.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
)

type DB struct {
	DbHOST     string
	DbPORT     string
	DbUSER     string
	DbPASSWORD string
	DbNAME     string
	DbSSLMODE  string
}

type Mongo struct {
	URI      string
	Database string
}

type MinIO struct {
	Endpoint   string
	AccessKey  string
	SecretKey  string
	BucketName string
	UseSSL     bool
	Region     string
	PublicURL  string
}

type OAuth struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// AuthURL, TokenURL and UserInfoURL override the Google endpoints when set.
	AuthURL     string
	TokenURL    string
	UserInfoURL string
}

type Cache struct {
	PageSize        int
	RevalidateAfter time.Duration
	KeepUnusedFor   time.Duration
	MaxEntries      int
}

type Logger struct {
	Level  string
	Format string
}

type Config struct {
	ServerPort      int
	StoreBackend    string
	MigrationsPath  string
	DB              DB
	Mongo           Mongo
	MinIO           MinIO
	OAuth           OAuth
	Cache           Cache
	Logger          Logger
	JWTSecretKey    string
	SessionDuration time.Duration
	CookieSecure    bool
	MaxUploadSize   int64
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return fallback
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	duration, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return duration
}

func LoadDB() DB {
	return DB{
		DbHOST:     getEnv("DB_HOST", "localhost"),
		DbPORT:     getEnv("DB_PORT", "5432"),
		DbUSER:     getEnv("DB_USER", "postgres"),
		DbPASSWORD: getEnv("DB_PASSWORD", "password"),
		DbNAME:     getEnv("DB_NAME", "blog"),
		DbSSLMODE:  getEnv("DB_SSLMODE", "disable"),
	}
}

func LoadMongo() Mongo {
	return Mongo{
		URI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
		Database: getEnv("MONGO_DATABASE", "blog"),
	}
}

func LoadMinIO() MinIO {
	return MinIO{
		Endpoint:   getEnv("MINIO_ENDPOINT", "localhost:9000"),
		AccessKey:  getEnv("MINIO_ACCESS_KEY", "minioadmin"),
		SecretKey:  getEnv("MINIO_SECRET_KEY", "minioadmin"),
		BucketName: getEnv("MINIO_BUCKET_NAME", "images"),
		UseSSL:     getEnvBool("MINIO_USE_SSL", false),
		Region:     getEnv("MINIO_REGION", "us-east-1"),
		PublicURL:  getEnv("MINIO_PUBLIC_URL", "http://localhost:9000"),
	}
}

func LoadOAuth() OAuth {
	return OAuth{
		ClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		ClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		RedirectURL:  getEnv("GOOGLE_REDIRECT_URL", "http://localhost:8080/api/auth/callback"),
		AuthURL:      getEnv("OAUTH_AUTH_URL", ""),
		TokenURL:     getEnv("OAUTH_TOKEN_URL", ""),
		UserInfoURL:  getEnv("OAUTH_USERINFO_URL", ""),
	}
}

func LoadCache() Cache {
	return Cache{
		PageSize:        getEnvAsInt("POSTS_PER_PAGE", 6),
		RevalidateAfter: parseDuration(getEnv("CACHE_REVALIDATE_AFTER", "60s"), 60*time.Second),
		KeepUnusedFor:   parseDuration(getEnv("CACHE_KEEP_UNUSED_FOR", "60s"), 60*time.Second),
		MaxEntries:      getEnvAsInt("CACHE_MAX_ENTRIES", 1000),
	}
}

func LoadLogger() Logger {
	return Logger{
		Level:  getEnv("LOG_LEVEL", "info"),
		Format: getEnv("LOG_FORMAT", "text"),
	}
}

func LoadConfig() *Config {
	err := godotenv.Load()
	if err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	return &Config{
		ServerPort:      getEnvAsInt("SERVER_PORT", 8080),
		StoreBackend:    getEnv("STORE_BACKEND", BackendPostgres),
		MigrationsPath:  getEnv("MIGRATIONS_PATH", "migrations/001_create_tables.sql"),
		DB:              LoadDB(),
		Mongo:           LoadMongo(),
		MinIO:           LoadMinIO(),
		OAuth:           LoadOAuth(),
		Cache:           LoadCache(),
		Logger:          LoadLogger(),
		JWTSecretKey:    getEnv("JWT_SECRET_KEY", ""),
		SessionDuration: parseDuration(getEnv("SESSION_DURATION", "168h"), 168*time.Hour),
		CookieSecure:    getEnvBool("COOKIE_SECURE", false),
		MaxUploadSize:   parseMaxUploadSize(getEnv("MAX_UPLOAD_SIZE", "10485760")),
	}
}

func parseMaxUploadSize(value string) int64 {
	size, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 10 * 1024 * 1024
	}
	return size
}
