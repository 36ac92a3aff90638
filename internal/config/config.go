package config

import (
	"os"
	"strconv"
)

// Config holds application configuration
type Config struct {
	Port           string
	Env            string
	LogLevel       string
	UseMemoryQueue bool
	WorkerCount    int
	DatabaseURL    string

	// Messenger page integration
	MessengerAppSecret   string
	MessengerVerifyToken string
	MessengerPageToken   string

	// Scheduling
	BusinessName    string
	BusinessTZ      string
	OwnerEmail      string
	SearchLeadDays  int
	PriceText       string
	ServiceDesc     string
	InclusionsText  string
	AddOnsText      string
	ServiceAreaText string
	DurationText    string

	// Google Calendar
	GoogleCalendarID        string
	GoogleCredentialsFile   string
	GoogleOAuthClientID     string
	GoogleOAuthClientSecret string
	GoogleOAuthRefreshToken string

	AdminJWTSecret string

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	InboundQueueURL     string
	LeadsTable          string
	BedrockModelID      string
	GeminiAPIKey        string
	GeminiModelID       string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Email
	EmailProvider     string
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	SESFromEmail      string
	SESFromName       string

	CORSAllowedOrigins string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8080"),
		Env:            getEnv("ENV", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		UseMemoryQueue: getEnvAsBool("USE_MEMORY_QUEUE", false),
		WorkerCount:    getEnvAsInt("WORKER_COUNT", 2),
		DatabaseURL:    getEnv("DATABASE_URL", ""),

		MessengerAppSecret:   getEnv("MESSENGER_APP_SECRET", ""),
		MessengerVerifyToken: getEnv("MESSENGER_VERIFY_TOKEN", ""),
		MessengerPageToken:   getEnv("MESSENGER_PAGE_TOKEN", ""),

		BusinessName:    getEnv("BUSINESS_NAME", "AutoBot Detailing"),
		BusinessTZ:      getEnv("BUSINESS_TZ", "America/Chicago"),
		OwnerEmail:      getEnv("OWNER_EMAIL", ""),
		SearchLeadDays:  getEnvAsInt("SEARCH_LEAD_DAYS", 3),
		PriceText:       getEnv("PRICE_TEXT", "$199 flat"),
		ServiceDesc:     getEnv("SERVICE_DESCRIPTION", "full interior + exterior detail"),
		InclusionsText:  getEnv("INCLUSIONS_TEXT", "hand wash, clay bar, interior vacuum and shampoo, windows, tire shine"),
		AddOnsText:      getEnv("ADDONS_TEXT", "engine bay, headlight restoration, pet hair removal"),
		ServiceAreaText: getEnv("SERVICE_AREA_TEXT", "We cover the Dallas-Fort Worth metro."),
		DurationText:    getEnv("DURATION_TEXT", "about 3 hours"),

		GoogleCalendarID:        getEnv("GOOGLE_CALENDAR_ID", ""),
		GoogleCredentialsFile:   getEnv("GOOGLE_CREDENTIALS_FILE", ""),
		GoogleOAuthClientID:     getEnv("GOOGLE_OAUTH_CLIENT_ID", ""),
		GoogleOAuthClientSecret: getEnv("GOOGLE_OAUTH_CLIENT_SECRET", ""),
		GoogleOAuthRefreshToken: getEnv("GOOGLE_OAUTH_REFRESH_TOKEN", ""),

		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		InboundQueueURL:     getEnv("INBOUND_QUEUE_URL", ""),
		LeadsTable:          getEnv("LEADS_TABLE", "leads"),
		BedrockModelID:      getEnv("BEDROCK_MODEL_ID", ""),
		GeminiAPIKey:        getEnv("GEMINI_API_KEY", ""),
		GeminiModelID:       getEnv("GEMINI_MODEL_ID", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		EmailProvider:     getEnv("EMAIL_PROVIDER", "ses"),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "AutoBot Detailing"),
		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),
		SESFromName:       getEnv("SES_FROM_NAME", "AutoBot Detailing"),

		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", ""),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}
