package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	JWTSecret   string
	SkipAuth    bool
	Environment string
	AppId       string
	CORSOrigins string

	CatalogDriver string // postgres, mysql, sqlite, mongo
	DatabaseURL   string
	MongoURI      string
	DBName        string
	LogToDB       bool

	UploadDir       string // Physical root of the storage tree
	UploadURLPrefix string // URL path prefix mirroring the storage tree
	MaxUploadFiles  int
	MaxFileSize     int64
	UploadWorkers   int

	ProcessTimeout        time.Duration
	FFProbePath           string
	FFmpegPath            string
	ThumbnailSize         int
	OptimizedWidth        int
	OptimizedHeight       int
	ThumbnailQuality      int
	OptimizedQuality      int
	VideoThumbnailPercent int
	MaxImagePixels        int64

	AllowAnonymousUpload bool
	ElevatedRoles        []string

	ReconcileSchedule string
	ReconcileGrace    time.Duration
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	} else {
		log.Println("Loaded .env file successfully")
	}

	return &Config{
		Port:        getEnv("PORT", "8080"),
		JWTSecret:   getEnv("JWT_SECRET", "secret"),
		SkipAuth:    getEnv("SKIP_AUTH", "false") == "true",
		Environment: getEnv("ENVIRONMENT", "development"),
		AppId:       getEnv("APP_ID", "parish-media"),
		CORSOrigins: getEnv("CORS_ORIGINS", "http://localhost:3000"),

		CatalogDriver: strings.ToLower(getEnv("CATALOG_DRIVER", "postgres")),
		DatabaseURL:   getEnv("DATABASE_URL", "postgres://localhost:5432/parish?sslmode=disable"),
		MongoURI:      getEnv("MONGO_URI", ""),
		DBName:        getEnv("DB_NAME", "parish"),
		LogToDB:       getEnv("LOG_TO_DB", "false") == "true",

		UploadDir:       getEnv("UPLOAD_DIR", "./uploads"),
		UploadURLPrefix: strings.TrimRight(getEnv("UPLOAD_URL_PREFIX", "/uploads"), "/"),
		MaxUploadFiles:  getEnvInt("MAX_UPLOAD_FILES", 10),
		MaxFileSize:     int64(getEnvInt("MAX_FILE_SIZE_MB", 50)) << 20,
		UploadWorkers:   getEnvInt("UPLOAD_WORKERS", 4),

		ProcessTimeout:        getEnvDuration("PROCESS_TIMEOUT", 60*time.Second),
		FFProbePath:           getEnv("FFPROBE_PATH", "ffprobe"),
		FFmpegPath:            getEnv("FFMPEG_PATH", "ffmpeg"),
		ThumbnailSize:         getEnvInt("THUMBNAIL_SIZE", 300),
		OptimizedWidth:        getEnvInt("OPTIMIZED_WIDTH", 1920),
		OptimizedHeight:       getEnvInt("OPTIMIZED_HEIGHT", 1080),
		ThumbnailQuality:      getEnvInt("THUMBNAIL_QUALITY", 80),
		OptimizedQuality:      getEnvInt("OPTIMIZED_QUALITY", 85),
		VideoThumbnailPercent: getEnvInt("VIDEO_THUMBNAIL_PERCENT", 10),
		MaxImagePixels:        int64(getEnvInt("MAX_IMAGE_PIXELS", 50_000_000)),

		AllowAnonymousUpload: getEnv("ALLOW_ANONYMOUS_UPLOAD", "false") == "true",
		ElevatedRoles:        splitList(getEnv("ELEVATED_ROLES", "admin,editor")),

		ReconcileSchedule: getEnv("RECONCILE_SCHEDULE", "@every 6h"),
		ReconcileGrace:    getEnvDuration("RECONCILE_GRACE", time.Hour),
	}, nil
}

// MongoEnabled reports whether a Mongo connection is needed at all.
func (c *Config) MongoEnabled() bool {
	return c.CatalogDriver == "mongo" || (c.MongoURI != "" && c.LogToDB)
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v, err := strconv.Atoi(getEnv(key, ""))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(getEnv(key, ""))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, strings.ToLower(part))
		}
	}
	return out
}
