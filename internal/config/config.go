package config

import (
	"fmt"
	"log"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/AniruddhAgrahari/smartstock/internal/settings"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	App       AppConfig
	Cache     CacheConfig
	Storage   StorageConfig
	Drive     DriveConfig
	Telemetry TelemetryConfig
	Engine    EngineConfig
}

type ServerConfig struct {
	Port           string
	MetricsPort    string
	Mode           string
	ReadTimeout    int
	WriteTimeout   int
	AllowedOrigins []string
	RateLimitRPS   float64
	RateLimitBurst int
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DSN returns the lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

type AppConfig struct {
	DataDir string
}

type CacheConfig struct {
	Enabled            bool
	RedisURL           string
	RedisHost          string
	RedisPort          string
	RedisPassword      string
	RedisDB            int
	ForecastTTLSeconds int
	LocalSize          int
}

type StorageConfig struct {
	Enabled   bool
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	Prefix    string
}

type DriveConfig struct {
	CredentialsFile string
	DownloadDir     string
}

type TelemetryConfig struct {
	Enabled     bool
	Endpoint    string
	ServiceName string
	Environment string
	SampleRate  float64
}

// EngineConfig is the environment form of settings.Settings.
type EngineConfig struct {
	Frequency            string
	MinHistory           int
	ZeroFillGaps         bool
	OutlierThreshold     float64
	CapOutliers          bool
	ValidationWindow     int
	ErrorMetric          string
	SeasonLength         int
	Models               []string
	TieTolerance         float64
	IntervalLevel        float64
	ARIMAOrder           []int
	DefaultServiceLevel  float64
	HoldingRate          float64
	DefaultOrderingCost  float64
	DefaultOrderMultiple float64
	SolverBackend        string
	SolverTimeLimit      time.Duration
	MaxNodes             int
	IntegerOrders        bool
	SnapTolerance        float64
	Workers              int
}

var (
	once     sync.Once
	instance *Config
)

func Load() *Config {
	once.Do(func() {
		// Load .env file if it exists
		_ = godotenv.Load()

		setDefaults()

		// Read from environment variables
		viper.AutomaticEnv()

		ensureDir(viper.GetString("APP_DATA_DIR"))

		instance = fromViper()
	})

	return instance
}

func setDefaults() {
	d := settings.Default()

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("METRICS_PORT", "9090")
	viper.SetDefault("SERVER_MODE", "debug")
	viper.SetDefault("SERVER_READ_TIMEOUT", 30)
	viper.SetDefault("SERVER_WRITE_TIMEOUT", 60)
	viper.SetDefault("SERVER_ALLOWED_ORIGINS", []string{"*"})
	viper.SetDefault("RATE_LIMIT_RPS", 20.0)
	viper.SetDefault("RATE_LIMIT_BURST", 40)
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_USER", "postgres")
	viper.SetDefault("DB_PASSWORD", "postgres")
	viper.SetDefault("DB_NAME", "smartstock")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("APP_DATA_DIR", "./data/output")
	viper.SetDefault("CACHE_ENABLED", false)
	viper.SetDefault("REDIS_URL", "")
	viper.SetDefault("REDIS_HOST", "127.0.0.1")
	viper.SetDefault("REDIS_PORT", "6379")
	viper.SetDefault("REDIS_PASSWORD", "")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("CACHE_FORECAST_TTL_SECONDS", 3600)
	viper.SetDefault("CACHE_LOCAL_SIZE", 1024)
	viper.SetDefault("STORAGE_ENABLED", false)
	viper.SetDefault("STORAGE_ENDPOINT", "localhost:9000")
	viper.SetDefault("STORAGE_BUCKET", "smartstock-plans")
	viper.SetDefault("STORAGE_REGION", "us-east-1")
	viper.SetDefault("STORAGE_USE_SSL", false)
	viper.SetDefault("STORAGE_PREFIX", "plans")
	viper.SetDefault("GOOGLE_APPLICATION_CREDENTIALS", "")
	viper.SetDefault("DRIVE_DOWNLOAD_DIR", "./data/drive")
	viper.SetDefault("OTEL_ENABLED", false)
	viper.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")
	viper.SetDefault("OTEL_SERVICE_NAME", "smartstock")
	viper.SetDefault("OTEL_ENVIRONMENT", "development")
	viper.SetDefault("OTEL_SAMPLE_RATE", 1.0)

	viper.SetDefault("ENGINE_FREQUENCY", string(d.Frequency))
	viper.SetDefault("ENGINE_MIN_HISTORY", d.MinHistory)
	viper.SetDefault("ENGINE_ZERO_FILL_GAPS", d.ZeroFillGaps)
	viper.SetDefault("ENGINE_OUTLIER_THRESHOLD", d.OutlierThreshold)
	viper.SetDefault("ENGINE_CAP_OUTLIERS", d.CapOutliers)
	viper.SetDefault("ENGINE_VALIDATION_WINDOW", d.ValidationWindow)
	viper.SetDefault("ENGINE_ERROR_METRIC", d.ErrorMetric)
	viper.SetDefault("ENGINE_SEASON_LENGTH", d.SeasonLength)
	viper.SetDefault("ENGINE_MODELS", strings.Join(d.Models, ","))
	viper.SetDefault("ENGINE_TIE_TOLERANCE", d.TieTolerance)
	viper.SetDefault("ENGINE_INTERVAL_LEVEL", d.IntervalLevel)
	viper.SetDefault("ENGINE_ARIMA_ORDER", fmt.Sprintf("%d,%d,%d", d.ARIMAOrder[0], d.ARIMAOrder[1], d.ARIMAOrder[2]))
	viper.SetDefault("ENGINE_SERVICE_LEVEL", d.DefaultServiceLevel)
	viper.SetDefault("ENGINE_HOLDING_RATE", d.HoldingRate)
	viper.SetDefault("ENGINE_ORDERING_COST", d.DefaultOrderingCost)
	viper.SetDefault("ENGINE_ORDER_MULTIPLE", d.DefaultOrderMultiple)
	viper.SetDefault("ENGINE_SOLVER_BACKEND", d.SolverBackend)
	viper.SetDefault("ENGINE_SOLVER_TIME_LIMIT", "10s")
	viper.SetDefault("ENGINE_MAX_NODES", d.MaxNodes)
	viper.SetDefault("ENGINE_INTEGER_ORDERS", d.IntegerOrders)
	viper.SetDefault("ENGINE_SNAP_TOLERANCE", d.SnapTolerance)
	viper.SetDefault("ENGINE_WORKERS", runtime.NumCPU())
}

func fromViper() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           viper.GetString("SERVER_PORT"),
			MetricsPort:    viper.GetString("METRICS_PORT"),
			Mode:           viper.GetString("SERVER_MODE"),
			ReadTimeout:    viper.GetInt("SERVER_READ_TIMEOUT"),
			WriteTimeout:   viper.GetInt("SERVER_WRITE_TIMEOUT"),
			AllowedOrigins: viper.GetStringSlice("SERVER_ALLOWED_ORIGINS"),
			RateLimitRPS:   viper.GetFloat64("RATE_LIMIT_RPS"),
			RateLimitBurst: viper.GetInt("RATE_LIMIT_BURST"),
		},
		Database: DatabaseConfig{
			Host:     viper.GetString("DB_HOST"),
			Port:     viper.GetString("DB_PORT"),
			User:     viper.GetString("DB_USER"),
			Password: viper.GetString("DB_PASSWORD"),
			DBName:   viper.GetString("DB_NAME"),
			SSLMode:  viper.GetString("DB_SSLMODE"),
		},
		App: AppConfig{
			DataDir: viper.GetString("APP_DATA_DIR"),
		},
		Cache: CacheConfig{
			Enabled:            viper.GetBool("CACHE_ENABLED"),
			RedisURL:           viper.GetString("REDIS_URL"),
			RedisHost:          viper.GetString("REDIS_HOST"),
			RedisPort:          viper.GetString("REDIS_PORT"),
			RedisPassword:      viper.GetString("REDIS_PASSWORD"),
			RedisDB:            viper.GetInt("REDIS_DB"),
			ForecastTTLSeconds: viper.GetInt("CACHE_FORECAST_TTL_SECONDS"),
			LocalSize:          viper.GetInt("CACHE_LOCAL_SIZE"),
		},
		Storage: StorageConfig{
			Enabled:   viper.GetBool("STORAGE_ENABLED"),
			Endpoint:  viper.GetString("STORAGE_ENDPOINT"),
			AccessKey: viper.GetString("STORAGE_ACCESS_KEY"),
			SecretKey: viper.GetString("STORAGE_SECRET_KEY"),
			Bucket:    viper.GetString("STORAGE_BUCKET"),
			Region:    viper.GetString("STORAGE_REGION"),
			UseSSL:    viper.GetBool("STORAGE_USE_SSL"),
			Prefix:    viper.GetString("STORAGE_PREFIX"),
		},
		Drive: DriveConfig{
			CredentialsFile: viper.GetString("GOOGLE_APPLICATION_CREDENTIALS"),
			DownloadDir:     viper.GetString("DRIVE_DOWNLOAD_DIR"),
		},
		Telemetry: TelemetryConfig{
			Enabled:     viper.GetBool("OTEL_ENABLED"),
			Endpoint:    viper.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
			ServiceName: viper.GetString("OTEL_SERVICE_NAME"),
			Environment: viper.GetString("OTEL_ENVIRONMENT"),
			SampleRate:  viper.GetFloat64("OTEL_SAMPLE_RATE"),
		},
		Engine: EngineConfig{
			Frequency:            viper.GetString("ENGINE_FREQUENCY"),
			MinHistory:           viper.GetInt("ENGINE_MIN_HISTORY"),
			ZeroFillGaps:         viper.GetBool("ENGINE_ZERO_FILL_GAPS"),
			OutlierThreshold:     viper.GetFloat64("ENGINE_OUTLIER_THRESHOLD"),
			CapOutliers:          viper.GetBool("ENGINE_CAP_OUTLIERS"),
			ValidationWindow:     viper.GetInt("ENGINE_VALIDATION_WINDOW"),
			ErrorMetric:          viper.GetString("ENGINE_ERROR_METRIC"),
			SeasonLength:         viper.GetInt("ENGINE_SEASON_LENGTH"),
			Models:               splitList(viper.GetString("ENGINE_MODELS")),
			TieTolerance:         viper.GetFloat64("ENGINE_TIE_TOLERANCE"),
			IntervalLevel:        viper.GetFloat64("ENGINE_INTERVAL_LEVEL"),
			ARIMAOrder:           parseOrder(viper.GetString("ENGINE_ARIMA_ORDER")),
			DefaultServiceLevel:  viper.GetFloat64("ENGINE_SERVICE_LEVEL"),
			HoldingRate:          viper.GetFloat64("ENGINE_HOLDING_RATE"),
			DefaultOrderingCost:  viper.GetFloat64("ENGINE_ORDERING_COST"),
			DefaultOrderMultiple: viper.GetFloat64("ENGINE_ORDER_MULTIPLE"),
			SolverBackend:        viper.GetString("ENGINE_SOLVER_BACKEND"),
			SolverTimeLimit:      viper.GetDuration("ENGINE_SOLVER_TIME_LIMIT"),
			MaxNodes:             viper.GetInt("ENGINE_MAX_NODES"),
			IntegerOrders:        viper.GetBool("ENGINE_INTEGER_ORDERS"),
			SnapTolerance:        viper.GetFloat64("ENGINE_SNAP_TOLERANCE"),
			Workers:              viper.GetInt("ENGINE_WORKERS"),
		},
	}
}

// Settings maps the engine section onto validated run settings.
func (c EngineConfig) Settings() (settings.Settings, error) {
	s := settings.Default()
	s.Frequency = settings.Frequency(strings.ToLower(c.Frequency))
	s.MinHistory = c.MinHistory
	s.ZeroFillGaps = c.ZeroFillGaps
	s.OutlierThreshold = c.OutlierThreshold
	s.CapOutliers = c.CapOutliers
	s.ValidationWindow = c.ValidationWindow
	s.ErrorMetric = strings.ToLower(c.ErrorMetric)
	s.SeasonLength = c.SeasonLength
	if len(c.Models) > 0 {
		s.Models = append([]string(nil), c.Models...)
	}
	s.TieTolerance = c.TieTolerance
	s.IntervalLevel = c.IntervalLevel
	if len(c.ARIMAOrder) == 3 {
		copy(s.ARIMAOrder[:], c.ARIMAOrder)
	}
	s.DefaultServiceLevel = c.DefaultServiceLevel
	s.HoldingRate = c.HoldingRate
	s.DefaultOrderingCost = c.DefaultOrderingCost
	s.DefaultOrderMultiple = c.DefaultOrderMultiple
	s.SolverBackend = strings.ToLower(c.SolverBackend)
	s.SolverTimeLimit = c.SolverTimeLimit
	s.MaxNodes = c.MaxNodes
	s.IntegerOrders = c.IntegerOrders
	s.SnapTolerance = c.SnapTolerance
	if c.Workers > 0 {
		s.Workers = c.Workers
	}

	if err := s.Validate(); err != nil {
		return settings.Settings{}, fmt.Errorf("engine config: %w", err)
	}
	return s, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseOrder(v string) []int {
	parts := splitList(v)
	if len(parts) != 3 {
		return nil
	}
	out := make([]int, 3)
	for i, p := range parts {
		if _, err := fmt.Sscanf(p, "%d", &out[i]); err != nil {
			return nil
		}
	}
	return out
}

func ensureDir(dir string) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("Failed to create directory %s: %v", dir, err)
		}
	}
}
