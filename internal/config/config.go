package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

// RatingConfig holds the league rating policy. The numbers define how the
// league is run, so every one of them can be overridden from the
// environment.
type RatingConfig struct {
	InitialRating        float64
	MinRating            float64
	MaxRating            float64
	EloKFactor           float64
	RatingScalingFactor  float64
	AttendanceBonus      float64
	ThirdTimeBonus       float64
	NonAttendancePenalty float64
	MinMatchesForRating  int
	RatingWindowSize     int
}

// PointsConfig holds the leaderboard points policy.
type PointsConfig struct {
	MatchAttendance int
	Win             int
	Draw            int
	Loss            int
	ThirdTime       int
}

type Config struct {
	DBPath     string
	ServerPort string
	LogLevel   string
	Rating     RatingConfig
	Points     PointsConfig
}

func Load(logger zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg(".env file not found, using environment variables or defaults")
	}

	cfg := &Config{
		DBPath:     getEnv("DB_PATH", "futsal.db"),
		ServerPort: getEnv("SERVER_PORT", "8080"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		Rating: RatingConfig{
			InitialRating:        getEnvFloat("RATING_INITIAL", 3.0),
			MinRating:            getEnvFloat("RATING_MIN", 1.0),
			MaxRating:            getEnvFloat("RATING_MAX", 5.0),
			EloKFactor:           getEnvFloat("RATING_ELO_K_FACTOR", 0.5),
			RatingScalingFactor:  getEnvFloat("RATING_SCALING_FACTOR", 2.0),
			AttendanceBonus:      getEnvFloat("RATING_ATTENDANCE_BONUS", 0.1),
			ThirdTimeBonus:       getEnvFloat("RATING_THIRD_TIME_BONUS", 0.05),
			NonAttendancePenalty: getEnvFloat("RATING_NON_ATTENDANCE_PENALTY", -0.2),
			MinMatchesForRating:  getEnvInt("RATING_MIN_MATCHES", 3),
			RatingWindowSize:     getEnvInt("RATING_WINDOW_SIZE", 3),
		},
		Points: PointsConfig{
			MatchAttendance: getEnvInt("POINTS_MATCH_ATTENDANCE", 1),
			Win:             getEnvInt("POINTS_WIN", 3),
			Draw:            getEnvInt("POINTS_DRAW", 1),
			Loss:            getEnvInt("POINTS_LOSS", 0),
			ThirdTime:       getEnvInt("POINTS_THIRD_TIME", 1),
		},
	}

	if err := cfg.Rating.validate(); err != nil {
		return nil, err
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		logger.Warn().Str("log_level", cfg.LogLevel).Msg("unknown log level, keeping info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	logger.Info().
		Str("db_path", cfg.DBPath).
		Str("server_port", cfg.ServerPort).
		Str("log_level", cfg.LogLevel).
		Float64("initial_rating", cfg.Rating.InitialRating).
		Int("warmup_matches", cfg.Rating.MinMatchesForRating).
		Int("rating_window", cfg.Rating.RatingWindowSize).
		Msg("configuration loaded")

	return cfg, nil
}

func (rc RatingConfig) validate() error {
	if rc.MinRating >= rc.MaxRating {
		return fmt.Errorf("RATING_MIN (%v) must be below RATING_MAX (%v)", rc.MinRating, rc.MaxRating)
	}
	if rc.InitialRating < rc.MinRating || rc.InitialRating > rc.MaxRating {
		return fmt.Errorf("RATING_INITIAL (%v) must be within [%v, %v]", rc.InitialRating, rc.MinRating, rc.MaxRating)
	}
	if rc.RatingWindowSize < 1 {
		return fmt.Errorf("RATING_WINDOW_SIZE must be at least 1, got %d", rc.RatingWindowSize)
	}
	if rc.RatingScalingFactor == 0 {
		return fmt.Errorf("RATING_SCALING_FACTOR must be non-zero")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

var Module = fx.Provide(Load)
