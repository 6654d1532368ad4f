package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	// Application
	Version  string
	WorkerID string
	Port     int
	LogLevel string

	// Camera
	CameraIndex    int
	CameraWidth    int
	CameraHeight   int
	CameraWarmup   time.Duration
	CaptureTimeout time.Duration
	LockDir        string

	// Zones
	ZonesConfigPath string
	CanonicalZones  []string

	// Detector
	ModelPath           string
	ModelConfigPath     string
	InferenceSize       int
	ConfidenceThreshold float32
	NMSThreshold        float32
	PersonClassID       int
	PersonLabel         string
	DetectTimeout       time.Duration

	// Remote controller
	ControllerURL       string
	ControllerTransport string // "websocket" or "nats"
	RequestEvent        string
	AnswerEvent         string
	ConnectTimeout      time.Duration
	ReconnectInterval   time.Duration

	// Persisted artifacts
	OriginalImagePath string
	ResultImagePath   string
	HistoryDBPath     string

	// Modes
	SingleShot bool

	// Graceful Shutdown
	ShutdownTimeout time.Duration
}

func Load() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("No .env file found, using environment variables and defaults")
	} else {
		log.Info().Msg("Loaded configuration from .env file")
	}

	return &Config{
		// Application
		Version:  getEnv("VERSION", "1.0.0"),
		WorkerID: getEnv("WORKER_ID", "occupancy-1"),
		Port:     getEnvInt("PORT", 8000),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Camera
		CameraIndex:    getEnvInt("CAMERA_INDEX", 0),
		CameraWidth:    getEnvInt("CAMERA_WIDTH", 3840),
		CameraHeight:   getEnvInt("CAMERA_HEIGHT", 2160),
		CameraWarmup:   getEnvDuration("CAMERA_WARMUP", 50*time.Millisecond),
		CaptureTimeout: getEnvDuration("CAPTURE_TIMEOUT", 10*time.Second),
		LockDir:        getEnv("CAMERA_LOCK_DIR", "/tmp"),

		// Zones
		ZonesConfigPath: getEnv("ZONES_CONFIG_PATH", "zones_config.json"),
		CanonicalZones:  getEnvList("CANONICAL_ZONES", "A,B,C"),

		// Detector
		ModelPath:           getEnv("MODEL_PATH", "models/person-detector.pb"),
		ModelConfigPath:     getEnv("MODEL_CONFIG_PATH", "models/person-detector.pbtxt"),
		InferenceSize:       getEnvInt("INFERENCE_SIZE", 300),
		ConfidenceThreshold: getEnvFloat32("CONFIDENCE_THRESHOLD", 0.2),
		NMSThreshold:        getEnvFloat32("NMS_THRESHOLD", 0.2),
		PersonClassID:       getEnvInt("PERSON_CLASS_ID", 1),
		PersonLabel:         getEnv("PERSON_LABEL", "person"),
		DetectTimeout:       getEnvDuration("DETECT_TIMEOUT", 30*time.Second),

		// Remote controller
		ControllerURL:       getEnv("CONTROLLER_URL", "ws://192.168.137.199/socket"),
		ControllerTransport: getEnv("CONTROLLER_TRANSPORT", "websocket"),
		RequestEvent:        getEnv("REQUEST_EVENT", "count_people_event"),
		AnswerEvent:         getEnv("ANSWER_EVENT", "count_people_answer"),
		ConnectTimeout:      getEnvDuration("CONNECT_TIMEOUT", 10*time.Second),
		ReconnectInterval:   getEnvDuration("RECONNECT_INTERVAL", 5*time.Second),

		// Persisted artifacts
		OriginalImagePath: getEnv("ORIGINAL_IMAGE_PATH", "images/original/original.jpg"),
		ResultImagePath:   getEnv("RESULT_IMAGE_PATH", "images/result/result.jpg"),
		HistoryDBPath:     getEnv("HISTORY_DB_PATH", "occupancy-history.db"),

		// Modes
		SingleShot: getEnvBool("SINGLE_SHOT", false),

		// Graceful Shutdown
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
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
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(parsed)
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvList(key, defaultValue string) []string {
	raw := getEnv(key, defaultValue)
	parts := strings.Split(raw, ",")
	list := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			list = append(list, trimmed)
		}
	}
	return list
}
