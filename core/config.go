package core

import (
	"log"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Address            string
		Host               string
		DebugHost          string
		ShutdownTimeout    time.Duration
		JWTExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		URI     string
		Name    string
		Timeout time.Duration
	}

	RedisConfig struct {
		Address  string
		Password string
		DB       int
		LockTTL  time.Duration
	}

	EmailConfig struct {
		DefaultFrom    mail.Address
		SendgridAPIKey string
	}

	BillingConfig struct {
		Schedule string // cron spec; empty disables automatic generation
	}

	// MessConfig holds the values a fresh Settings document is created with.
	MessConfig struct {
		Name             string
		Address          string
		ContactEmail     string
		ContactPhone     string
		BreakfastRate    decimal.Decimal
		LunchRate        decimal.Decimal
		DinnerRate       decimal.Decimal
		CutoffTime       string
		CutoffDaysBefore int
	}

	Config struct {
		AppName      string
		Env          string
		Build        string
		Debug        bool
		TestMode     bool
		SecretKey    string
		RollbarToken string
		Location     *time.Location
		Server       ServerConfig
		Database     DatabaseConfig
		Redis        RedisConfig
		Email        EmailConfig
		Billing      BillingConfig
		Mess         MessConfig
	}
)

func setDefaults(v *viper.Viper) {
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("appName", "Hostel Mess")
	v.SetDefault("build", "dev")
	v.SetDefault("secretKey", "x7#k2-mess)9q$+hv=pl&w3jd(e!u)#*r4(#zt^$bnc8a")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("timeZone", "UTC")

	v.SetDefault("serverAddress", ":8000")
	v.SetDefault("serverHost", "localhost")
	v.SetDefault("serverDebugHost", ":4000")
	v.SetDefault("serverShutdownTimeout", 10*time.Second)
	v.SetDefault("jwtExpirationDelta", 7*24*time.Hour)

	v.SetDefault("databaseURI", "mongodb://localhost:27017")
	v.SetDefault("databaseName", "hostelmess")
	v.SetDefault("databaseTimeout", 10*time.Second)

	v.SetDefault("redisAddress", "")
	v.SetDefault("redisPassword", "")
	v.SetDefault("redisDB", 0)
	v.SetDefault("redisLockTTL", 2*time.Minute)

	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("defaultFromName", "Hostel Mess")
	v.SetDefault("sendgridApiKey", "")

	v.SetDefault("billingSchedule", "")

	v.SetDefault("messName", "Hostel Mess")
	v.SetDefault("messAddress", "")
	v.SetDefault("messContactEmail", "")
	v.SetDefault("messContactPhone", "")
	v.SetDefault("breakfastRate", "30")
	v.SetDefault("lunchRate", "50")
	v.SetDefault("dinnerRate", "50")
	v.SetDefault("cutoffTime", "20:00")
	v.SetDefault("cutoffDaysBefore", 1)
}

// NewConfig loads the application Config from the environment.
// Variables are prefixed with the current ENV (DEV by default), e.g. DEV_DATABASEURI.
// LoadLocation loads a named IANA zone. "Local" is resolved through TZ since
// stores bucketing dates need the zone name; an empty name means UTC.
func LoadLocation(name string) (*time.Location, error) {
	if name == "Local" {
		name = strings.TrimPrefix(os.Getenv("TZ"), ":")
		if name == "" || name == "Local" {
			return nil, errors.New(`"Local" time zone has no name, set TZ or timeZone to an IANA zone`)
		}
	}
	return time.LoadLocation(name)
}

func NewConfig() *Config {
	v := viper.New()
	setDefaults(v)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	if env == "" {
		env = "DEV"
	}
	if env == "TEST" {
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	loadDotEnv(env)
	v.AutomaticEnv()

	loc, err := LoadLocation(v.GetString("timeZone"))
	if err != nil {
		log.Fatalf("config.LoadLocation(%s): %v", v.GetString("timeZone"), err)
	}

	return &Config{
		AppName:      v.GetString("appName"),
		Env:          env,
		Build:        v.GetString("build"),
		Debug:        v.GetBool("debug"),
		TestMode:     v.GetBool("testMode"),
		SecretKey:    v.GetString("secretKey"),
		RollbarToken: v.GetString("rollbarToken"),
		Location:     loc,
		Server: ServerConfig{
			Address:            v.GetString("serverAddress"),
			Host:               v.GetString("serverHost"),
			DebugHost:          v.GetString("serverDebugHost"),
			ShutdownTimeout:    v.GetDuration("serverShutdownTimeout"),
			JWTExpirationDelta: v.GetDuration("jwtExpirationDelta"),
		},
		Database: DatabaseConfig{
			URI:     v.GetString("databaseURI"),
			Name:    v.GetString("databaseName"),
			Timeout: v.GetDuration("databaseTimeout"),
		},
		Redis: RedisConfig{
			Address:  v.GetString("redisAddress"),
			Password: v.GetString("redisPassword"),
			DB:       v.GetInt("redisDB"),
			LockTTL:  v.GetDuration("redisLockTTL"),
		},
		Email: EmailConfig{
			DefaultFrom:    mail.Address{Name: v.GetString("defaultFromName"), Address: v.GetString("defaultFromEmail")},
			SendgridAPIKey: v.GetString("sendgridApiKey"),
		},
		Billing: BillingConfig{
			Schedule: v.GetString("billingSchedule"),
		},
		Mess: MessConfig{
			Name:             v.GetString("messName"),
			Address:          v.GetString("messAddress"),
			ContactEmail:     v.GetString("messContactEmail"),
			ContactPhone:     v.GetString("messContactPhone"),
			BreakfastRate:    mustDecimal("breakfastRate", v.GetString("breakfastRate")),
			LunchRate:        mustDecimal("lunchRate", v.GetString("lunchRate")),
			DinnerRate:       mustDecimal("dinnerRate", v.GetString("dinnerRate")),
			CutoffTime:       v.GetString("cutoffTime"),
			CutoffDaysBefore: v.GetInt("cutoffDaysBefore"),
		},
	}
}

// NewTestConfig returns the default Config without reading the environment.
func NewTestConfig() *Config {
	v := viper.New()
	setDefaults(v)
	v.Set("testMode", true)
	v.Set("debug", false)

	return &Config{
		AppName:   v.GetString("appName"),
		Env:       "TEST",
		Build:     v.GetString("build"),
		TestMode:  true,
		SecretKey: v.GetString("secretKey"),
		Location:  time.UTC,
		Server: ServerConfig{
			Address:            v.GetString("serverAddress"),
			ShutdownTimeout:    v.GetDuration("serverShutdownTimeout"),
			JWTExpirationDelta: v.GetDuration("jwtExpirationDelta"),
		},
		Database: DatabaseConfig{
			URI:     v.GetString("databaseURI"),
			Name:    v.GetString("databaseName") + "_test",
			Timeout: v.GetDuration("databaseTimeout"),
		},
		Redis: RedisConfig{LockTTL: v.GetDuration("redisLockTTL")},
		Email: EmailConfig{
			DefaultFrom: mail.Address{Name: v.GetString("defaultFromName"), Address: v.GetString("defaultFromEmail")},
		},
		Mess: MessConfig{
			Name:             v.GetString("messName"),
			BreakfastRate:    decimal.NewFromInt(30),
			LunchRate:        decimal.NewFromInt(50),
			DinnerRate:       decimal.NewFromInt(50),
			CutoffTime:       v.GetString("cutoffTime"),
			CutoffDaysBefore: v.GetInt("cutoffDaysBefore"),
		},
	}
}

// loadDotEnv loads config/.env.<env> if it exists (ignored if it does not).
func loadDotEnv(env string) {
	root, ok := projectRoot()
	if !ok {
		return
	}
	dotEnvPath := filepath.Join(root, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
}

// projectRoot walks up from the working directory until it finds the go.mod file.
// go test runs from the package directory, so the root can't be assumed to be the cwd.
func projectRoot() (string, bool) {
	currDir, err := os.Getwd()
	if err != nil {
		return "", false
	}
	for {
		if _, err := os.Stat(filepath.Join(currDir, "go.mod")); err == nil {
			return currDir, true
		}
		newDir := filepath.Dir(currDir)
		if newDir == currDir {
			return "", false
		}
		currDir = newDir
	}
}

func mustDecimal(key, val string) decimal.Decimal {
	d, err := decimal.NewFromString(val)
	if err != nil {
		log.Fatalf("config.%s: invalid decimal %q", key, val)
	}
	return d
}
