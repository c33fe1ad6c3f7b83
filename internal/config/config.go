package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	AppPort string

	MySQLHost string
	MySQLPort string
	MySQLDB   string
	MySQLUser string
	MySQLPass string

	RedisAddr string
	RedisDB   int

	IdempTTLSecs int

	// Engine parameters. Amounts in smallest units, rates in basis points.
	MinRepaymentUnits      int64
	OverpayToleranceBps    int64
	ProtocolFeeBps         int64
	PenaltyRateMonthlyBps  int64
	PenaltyCapBps          int64
	GracePeriodDays        int64
	HealthRatioThreshold   decimal.Decimal
	MinOracleConfidence    decimal.Decimal
	EarlyRepayTermFraction decimal.Decimal
	EarlyRepayDiscountBps  int64
	OracleCacheTTLSecs     int

	LiquidationWallet string
	AttestationKeyHex string

	RegistryBaseURL string
	OracleBaseURL   string
	RailBaseURL     string
	TreasuryBaseURL string

	// MonitorIntervalSecs of 0 disables the automatic liquidation sweep.
	MonitorIntervalSecs   int
	ReconcileIntervalSecs int
	ReconcileMaxAttempts  int
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func getint(k string, d int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return d
}

func getint64(k string, d int64) int64 {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return d
}

func getdec(k, d string) decimal.Decimal {
	if v := os.Getenv(k); v != "" {
		if n, err := decimal.NewFromString(v); err == nil {
			return n
		}
	}
	out, _ := decimal.NewFromString(d)
	return out
}

func Load() *Config {
	// .env is a developer convenience; absent in deployment.
	_ = godotenv.Load()

	return &Config{
		AppPort:   getenv("APP_PORT", "8080"),
		MySQLHost: getenv("MYSQL_HOST", "mysql"),
		MySQLPort: getenv("MYSQL_PORT", "3306"),
		MySQLDB:   getenv("MYSQL_DB", "agrilend"),
		MySQLUser: getenv("MYSQL_USER", "agrilend"),
		MySQLPass: getenv("MYSQL_PASS", "agrilend"),

		RedisAddr: getenv("REDIS_ADDR", "redis:6379"),
		RedisDB:   getint("REDIS_DB", 0),

		IdempTTLSecs: getint("IDEMPOTENCY_TTL_SECONDS", 300),

		MinRepaymentUnits:      getint64("MIN_REPAYMENT_UNITS", 1000),
		OverpayToleranceBps:    getint64("OVERPAY_TOLERANCE_BPS", 50),
		ProtocolFeeBps:         getint64("PROTOCOL_FEE_BPS", 1000),
		PenaltyRateMonthlyBps:  getint64("PENALTY_RATE_MONTHLY_BPS", 200),
		PenaltyCapBps:          getint64("PENALTY_CAP_BPS", 2000),
		GracePeriodDays:        getint64("GRACE_PERIOD_DAYS", 30),
		HealthRatioThreshold:   getdec("HEALTH_RATIO_THRESHOLD", "1.2"),
		MinOracleConfidence:    getdec("MIN_ORACLE_CONFIDENCE", "0.8"),
		EarlyRepayTermFraction: getdec("EARLY_REPAY_TERM_FRACTION", "0.5"),
		EarlyRepayDiscountBps:  getint64("EARLY_REPAY_DISCOUNT_BPS", 2000),
		OracleCacheTTLSecs:     getint("ORACLE_CACHE_TTL_SECONDS", 30),

		LiquidationWallet: getenv("LIQUIDATION_WALLET", ""),
		AttestationKeyHex: getenv("ATTESTATION_KEY_HEX", ""),

		RegistryBaseURL: getenv("REGISTRY_BASE_URL", "http://registry:8080"),
		OracleBaseURL:   getenv("ORACLE_BASE_URL", "http://oracle:8080"),
		RailBaseURL:     getenv("RAIL_BASE_URL", "http://rail:8080"),
		TreasuryBaseURL: getenv("TREASURY_BASE_URL", "http://treasury:8080"),

		MonitorIntervalSecs:   getint("MONITOR_INTERVAL_SECONDS", 300),
		ReconcileIntervalSecs: getint("RECONCILE_INTERVAL_SECONDS", 60),
		ReconcileMaxAttempts:  getint("RECONCILE_MAX_ATTEMPTS", 10),
	}
}

func (c *Config) Validate() error {
	if c.MySQLHost == "" || c.MySQLPort == "" || c.MySQLDB == "" || c.MySQLUser == "" {
		return errors.New("missing MySQL config (MYSQL_HOST/PORT/DB/USER)")
	}
	if _, err := net.LookupPort("tcp", c.MySQLPort); err != nil {
		return fmt.Errorf("invalid MYSQL_PORT %q: %w", c.MySQLPort, err)
	}
	if c.AppPort == "" {
		return errors.New("missing APP_PORT")
	}
	if c.LiquidationWallet == "" {
		return errors.New("missing LIQUIDATION_WALLET")
	}
	if c.AttestationKeyHex == "" {
		return errors.New("missing ATTESTATION_KEY_HEX")
	}
	if c.HealthRatioThreshold.IsNegative() || c.MinOracleConfidence.IsNegative() {
		return errors.New("thresholds must be non-negative")
	}
	if c.ReconcileMaxAttempts <= 0 {
		return errors.New("RECONCILE_MAX_ATTEMPTS must be positive")
	}
	return nil
}

func (c *Config) mysqlAddr() string { return net.JoinHostPort(c.MySQLHost, c.MySQLPort) }

func (c *Config) MySQLDSN() string {
	// parseTime needed for DATETIME columns; multiStatements for migrations.
	return fmt.Sprintf("%s:%s@tcp(%s)/%s?multiStatements=true&parseTime=true&charset=utf8mb4,utf8",
		c.MySQLUser, c.MySQLPass, c.mysqlAddr(), c.MySQLDB)
}
