package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config хранит все конфигурационные параметры приложения.
type Config struct {
	DatabaseURL  string
	JWTSecretKey string
	ServerPort   int
}

// Load загружает конфигурацию из переменных окружения.
// Опционально подгружает .env файл (полезно для локальной разработки).
func Load() (*Config, error) {
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}

	jwtKey := os.Getenv("JWT_SECRET_KEY")
	if jwtKey == "" {
		return nil, fmt.Errorf("JWT_SECRET_KEY environment variable is not set")
	}

	portStr := os.Getenv("SERVER_PORT")
	if portStr == "" {
		portStr = "8080"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT environment variable: %w", err)
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", port)
	}

	return &Config{
		DatabaseURL:  dbURL,
		JWTSecretKey: jwtKey,
		ServerPort:   port,
	}, nil
}

// ClientConfig настраивает CLI-клиент и его локальное хранилище.
type ClientConfig struct {
	ServerURL string
	AuthToken string
	StorePath string
	UserID    string
}

// LoadClient собирает конфигурацию клиента из окружения с разумными
// значениями по умолчанию.
func LoadClient() (*ClientConfig, error) {
	_ = godotenv.Load()

	serverURL := os.Getenv("RESULTS_SERVER_URL")
	if serverURL == "" {
		serverURL = "http://localhost:8080"
	}
	storePath := os.Getenv("RESULTS_STORE_PATH")
	if storePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve home directory: %w", err)
		}
		storePath = home + "/.results-engine/local.db"
	}
	userID := os.Getenv("RESULTS_USER_ID")
	if userID == "" {
		return nil, fmt.Errorf("RESULTS_USER_ID environment variable is not set")
	}

	return &ClientConfig{
		ServerURL: serverURL,
		AuthToken: os.Getenv("RESULTS_AUTH_TOKEN"),
		StorePath: storePath,
		UserID:    userID,
	}, nil
}
