package config

import (
	"bufio"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port            string
	Environment     string
	DatabasePath    string
	JWTSecret       string
	CORSOrigins     string
	MaxUploadSize   int64
	FileStoragePath string
	VAPIDPublicKey  string
	VAPIDPrivateKey string
}

// Load reads configuration from the environment. If SHAYARIGRAM_ENV_FILE
// points at a KEY=VALUE file, its entries are used as fallbacks; real
// environment variables always win.
func Load() *Config {
	fileVars := loadEnvFile(os.Getenv("SHAYARIGRAM_ENV_FILE"))

	get := func(key, defaultValue string) string {
		if value, exists := os.LookupEnv(key); exists {
			return value
		}
		if value, ok := fileVars[key]; ok {
			return value
		}
		return defaultValue
	}

	return &Config{
		Port:            get("PORT", "8080"),
		Environment:     get("ENVIRONMENT", "development"),
		DatabasePath:    get("DATABASE_PATH", "./data/shayarigram.db"),
		JWTSecret:       get("JWT_SECRET", "your-secret-key-change-in-production"),
		CORSOrigins:     get("CORS_ORIGINS", "*"),
		MaxUploadSize:   parseInt64(get("MAX_UPLOAD_SIZE", "10485760")), // 10MB default
		FileStoragePath: get("FILE_STORAGE_PATH", "./data/uploads"),
		VAPIDPublicKey:  get("VAPID_PUBLIC_KEY", ""),
		VAPIDPrivateKey: get("VAPID_PRIVATE_KEY", ""),
	}
}

func loadEnvFile(path string) map[string]string {
	vars := map[string]string{}
	if path == "" {
		return vars
	}

	f, err := os.Open(path)
	if err != nil {
		return vars
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		vars[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return vars
}

func parseInt64(s string) int64 {
	val, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 10485760 // 10MB default
	}
	return val
}
