/**
 * @description
 * This package handles configuration for the matching and settlement engine.
 * It uses Viper to read environment variables (with an optional .env file),
 * applies defaults, and sanitizes product-configuration values such as the
 * per-point platform fee and the payout stage plan.
 *
 * @dependencies
 * - github.com/spf13/viper: Configuration management.
 * - internal/domain: For parsing the payout stage plan.
 */

package config

import (
	"log"
	"strings"

	"github.com/spf13/viper"

	"github.com/Startups-dev/Pixiedvc-sub000/internal/domain"
)

// Config holds all configuration for the engine, loaded from environment
// variables.
type Config struct {
	ServerPort string `mapstructure:"SERVER_PORT"`

	DatabaseURL string `mapstructure:"DATABASE_URL"`
	RabbitMQURL string `mapstructure:"RABBITMQ_URL"`
	RedisURL    string `mapstructure:"REDIS_URL"`

	InternalAPIKey string `mapstructure:"INTERNAL_API_KEY"`

	PointChartAPIBaseURL string `mapstructure:"POINT_CHART_API_BASE_URL"`

	// Matching
	MatchOfferWindowHours  int    `mapstructure:"MATCH_OFFER_WINDOW_HOURS"`
	MatcherBatchLimit      int    `mapstructure:"MATCHER_BATCH_LIMIT"`
	MatcherSweepSchedule   string `mapstructure:"MATCHER_SWEEP_SCHEDULE"`
	ExpirySweepSchedule    string `mapstructure:"EXPIRY_SWEEP_SCHEDULE"`
	MatchExpiringSoonHours int    `mapstructure:"MATCH_EXPIRING_SOON_HOURS"`

	// Settlement. The per-point platform fee and the payout stage plan are
	// product configuration, not code constants.
	PlatformFeeCentsPerPoint    int64  `mapstructure:"PLATFORM_FEE_CENTS_PER_POINT"`
	DepositBps                  int64  `mapstructure:"DEPOSIT_BPS"`
	BalanceDueDaysBeforeCheckIn int    `mapstructure:"BALANCE_DUE_DAYS_BEFORE_CHECKIN"`
	PayoutStagePlan             string `mapstructure:"PAYOUT_STAGE_PLAN"`

	// Parsed form of PayoutStagePlan, populated by LoadConfig.
	PayoutStages []domain.PayoutStageDef `mapstructure:"-"`
}

const defaultPayoutStagePlan = "5000:payment_verified,owner_booking_confirmed;5000:transfer_completed"

// LoadConfig reads configuration from environment variables from the given
// path, applying defaults and validating product-configuration values.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("MATCH_OFFER_WINDOW_HOURS", 72)
	viper.SetDefault("MATCHER_BATCH_LIMIT", 100)
	viper.SetDefault("MATCHER_SWEEP_SCHEDULE", "*/10 * * * *")
	viper.SetDefault("EXPIRY_SWEEP_SCHEDULE", "*/5 * * * *")
	viper.SetDefault("MATCH_EXPIRING_SOON_HOURS", 12)
	viper.SetDefault("PLATFORM_FEE_CENTS_PER_POINT", 0)
	viper.SetDefault("DEPOSIT_BPS", 2500)
	viper.SetDefault("BALANCE_DUE_DAYS_BEFORE_CHECKIN", 60)
	viper.SetDefault("PAYOUT_STAGE_PLAN", defaultPayoutStagePlan)

	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("INTERNAL_API_KEY")
	_ = viper.BindEnv("POINT_CHART_API_BASE_URL")
	_ = viper.BindEnv("MATCH_OFFER_WINDOW_HOURS")
	_ = viper.BindEnv("MATCHER_BATCH_LIMIT")
	_ = viper.BindEnv("MATCHER_SWEEP_SCHEDULE")
	_ = viper.BindEnv("EXPIRY_SWEEP_SCHEDULE")
	_ = viper.BindEnv("MATCH_EXPIRING_SOON_HOURS")
	_ = viper.BindEnv("PLATFORM_FEE_CENTS_PER_POINT")
	_ = viper.BindEnv("DEPOSIT_BPS")
	_ = viper.BindEnv("BALANCE_DUE_DAYS_BEFORE_CHECKIN")
	_ = viper.BindEnv("PAYOUT_STAGE_PLAN")

	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
		err = nil
	}

	if err = viper.Unmarshal(&config); err != nil {
		return
	}

	if config.MatchOfferWindowHours <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive offer window; using default\" hours=%d", config.MatchOfferWindowHours)
		config.MatchOfferWindowHours = 72
	}
	if config.MatcherBatchLimit <= 0 {
		config.MatcherBatchLimit = 100
	}
	if config.MatchExpiringSoonHours <= 0 {
		config.MatchExpiringSoonHours = 12
	}

	if config.PlatformFeeCentsPerPoint < 0 {
		log.Printf("level=warn component=config msg=\"negative platform fee configured; coercing to zero\" cents_per_point=%d", config.PlatformFeeCentsPerPoint)
		config.PlatformFeeCentsPerPoint = 0
	}
	if config.PlatformFeeCentsPerPoint == 0 {
		log.Println("level=warn component=config msg=\"platform fee per point unset; owner receivable will equal guest total\" env=PLATFORM_FEE_CENTS_PER_POINT")
	}

	if config.DepositBps <= 0 || config.DepositBps > 10000 {
		log.Printf("level=warn component=config msg=\"deposit bps out of range; using default\" bps=%d", config.DepositBps)
		config.DepositBps = 2500
	}
	if config.BalanceDueDaysBeforeCheckIn < 0 {
		config.BalanceDueDaysBeforeCheckIn = 60
	}

	stages, parseErr := domain.ParsePayoutStagePlan(config.PayoutStagePlan)
	if parseErr != nil {
		log.Printf("level=warn component=config msg=\"invalid payout stage plan; using default\" plan=%q err=%v", config.PayoutStagePlan, parseErr)
		stages, _ = domain.ParsePayoutStagePlan(defaultPayoutStagePlan)
	}
	config.PayoutStages = stages

	return
}
