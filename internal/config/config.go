package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	APIPort  string
	LogLevel string

	StoragePath   string
	MaxFileSizeMB int64

	OCRLanguage  string
	TesseractBin string
	PdftoppmBin  string
	OCRDPI       int

	LLMAPIURL           string
	LLMAPIKey           string
	LLMModel            string
	LLMTimeout          time.Duration
	LLMMaxRetries       int
	LLMRetryBaseBackoff time.Duration
	LLMRetryMaxBackoff  time.Duration
	LLMRateRPS          float64
	LLMPromptMaxChars   int

	EnableTabular     bool
	EnablePDF         bool
	EnableAdvancedPDF bool
	EnableOCR         bool
	EnableVision      bool

	PDFNativeTextThreshold   int
	OCRMinTextChars          int
	OCRLowConfidence         float64
	VisionOverrideConfidence float64
	HeuristicConfidence      float64

	NATSURL     string
	NATSSubject string
}

func Load() Config {
	return Config{
		APIPort:  mustEnv("API_PORT", "8080"),
		LogLevel: mustEnv("LOG_LEVEL", "info"),

		StoragePath:   mustEnv("STORAGE_PATH", "./data/tmp"),
		MaxFileSizeMB: int64(mustEnvInt("MAX_FILE_SIZE_MB", 10)),

		OCRLanguage:  mustEnv("OCR_LANGUAGE", "ita+eng"),
		TesseractBin: mustEnv("TESSERACT_BIN", "tesseract"),
		PdftoppmBin:  mustEnv("PDFTOPPM_BIN", "pdftoppm"),
		OCRDPI:       mustEnvInt("OCR_DPI", 300),

		LLMAPIURL:           mustEnv("LLM_API_URL", "https://openrouter.ai/api/v1"),
		LLMAPIKey:           mustEnv("LLM_API_KEY", ""),
		LLMModel:            mustEnv("LLM_MODEL", "mistralai/mistral-small-3.1-24b-instruct"),
		LLMTimeout:          mustEnvDuration("LLM_TIMEOUT_SECONDS", 60*time.Second),
		LLMMaxRetries:       mustEnvInt("LLM_MAX_RETRIES", 3),
		LLMRetryBaseBackoff: mustEnvDuration("LLM_RETRY_BASE_BACKOFF", 2*time.Second),
		LLMRetryMaxBackoff:  mustEnvDuration("LLM_RETRY_MAX_BACKOFF", 10*time.Second),
		LLMRateRPS:          mustEnvFloat("LLM_RATE_RPS", 2),
		LLMPromptMaxChars:   mustEnvInt("LLM_PROMPT_MAX_CHARS", 8000),

		EnableTabular:     mustEnvBool("ENABLE_TABULAR_PROCESSING", true),
		EnablePDF:         mustEnvBool("ENABLE_PDF_PROCESSING", true),
		EnableAdvancedPDF: mustEnvBool("ENABLE_ADVANCED_PDF", false),
		EnableOCR:         mustEnvBool("ENABLE_OCR", true),
		EnableVision:      mustEnvBool("ENABLE_VISION", true),

		PDFNativeTextThreshold:   mustEnvInt("PDF_NATIVE_TEXT_THRESHOLD", 50),
		OCRMinTextChars:          mustEnvInt("OCR_MIN_TEXT_CHARS", 200),
		OCRLowConfidence:         mustEnvFloat("OCR_LOW_CONFIDENCE", 70),
		VisionOverrideConfidence: mustEnvFloat("VISION_OVERRIDE_CONFIDENCE", 0.7),
		HeuristicConfidence:      mustEnvFloat("HEURISTIC_CONFIDENCE", 0.5),

		NATSURL:     mustEnv("NATS_URL", ""),
		NATSSubject: mustEnv("NATS_SUBJECT", "documents.processed"),
	}
}

func (c Config) MaxFileSizeBytes() int64 {
	return c.MaxFileSizeMB * 1024 * 1024
}

func mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func mustEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func mustEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return fallback
	}
	return time.Duration(secs) * time.Second
}
