package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		Debug            bool
		TestMode         bool
		AppName          string
		Env              string // DEV (local; default), TEST, QA, PROD
		Build            string
		WorkDir          string
		FrontendBaseURL  string
		RollbarToken     string
		SendgridApiKey   string
		defaultFromEmail string

		Server   ServerConfig
		Database DatabaseConfig
		Redis    RedisConfig
		Treasury TreasuryConfig
	}

	ServerConfig struct {
		Host            string
		DebugHost       string
		ReadTimeout     time.Duration
		WriteTimeout    time.Duration
		ShutdownTimeout time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
		InMemory      bool
	}

	RedisConfig struct {
		Addr     string
		Password string
		DB       int
	}

	// TreasuryConfig holds the school policy knobs of the reconciliation engine.
	TreasuryConfig struct {
		SchoolYear           int
		DueDay               int
		InstallmentCount     int
		GraduatingCount      int
		GraduatingPrefix     string
		DiscrepancyTolerance int64
		ImportWorkers        int
		UFValue              string // CLP per UF; empty until published in March
	}
)

func (c *Config) DefaultFromEmail() mail.Address {
	addr, err := mail.ParseAddress(c.defaultFromEmail)
	if err != nil {
		return mail.Address{Name: c.AppName, Address: c.defaultFromEmail}
	}
	if addr.Name == "" {
		addr.Name = c.AppName
	}
	return *addr
}

func (db DatabaseConfig) Address() string {
	return net.JoinHostPort(db.Host, strconv.Itoa(db.Port))
}

// NewConfig reads the configuration from the environment.
// `ENV` selects the prefix of the variables (eg. DEV_DATABASE_HOST) and the optional
// `config/.env.<env>` file loaded beforehand.
func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("appName", "Tesorería")
	v.SetDefault("build", "develop")
	v.SetDefault("frontendBaseURL", "http://localhost:8080")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("sendgridApiKey", "")

	v.SetDefault("server_host", ":8000")
	v.SetDefault("server_debugHost", ":4000")
	v.SetDefault("server_readTimeout", 5*time.Second)
	v.SetDefault("server_writeTimeout", 10*time.Second)
	v.SetDefault("server_shutdownTimeout", 5*time.Second)

	v.SetDefault("database_engine", "postgres")
	v.SetDefault("database_host", "localhost")
	v.SetDefault("database_port", 5432)
	v.SetDefault("database_name", "tesoreria")
	v.SetDefault("database_user", "tesoreria")
	v.SetDefault("database_password", "")
	v.SetDefault("database_adminUser", "postgres")
	v.SetDefault("database_adminPassword", "")
	v.SetDefault("database_disableTLS", true)
	v.SetDefault("database_inMemory", true)

	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)

	v.SetDefault("treasury_schoolYear", time.Now().Year())
	v.SetDefault("treasury_dueDay", 5)
	v.SetDefault("treasury_installmentCount", 10)
	v.SetDefault("treasury_graduatingCount", 9)
	v.SetDefault("treasury_graduatingPrefix", "4 MEDIO")
	v.SetDefault("treasury_discrepancyTolerance", 1)
	v.SetDefault("treasury_importWorkers", 4)
	v.SetDefault("treasury_ufValue", "")

	env := strings.ToUpper(os.Getenv("ENV"))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)

	workDir := Getwd()

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(workDir, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return &Config{
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		AppName:          v.GetString("appName"),
		Env:              env,
		Build:            v.GetString("build"),
		WorkDir:          workDir,
		FrontendBaseURL:  v.GetString("frontendBaseURL"),
		RollbarToken:     v.GetString("rollbarToken"),
		SendgridApiKey:   v.GetString("sendgridApiKey"),
		defaultFromEmail: v.GetString("defaultFromEmail"),
		Server: ServerConfig{
			Host:            v.GetString("server_host"),
			DebugHost:       v.GetString("server_debugHost"),
			ReadTimeout:     v.GetDuration("server_readTimeout"),
			WriteTimeout:    v.GetDuration("server_writeTimeout"),
			ShutdownTimeout: v.GetDuration("server_shutdownTimeout"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database_engine"),
			Host:          v.GetString("database_host"),
			Port:          v.GetInt("database_port"),
			Name:          v.GetString("database_name"),
			User:          v.GetString("database_user"),
			Password:      v.GetString("database_password"),
			AdminUser:     v.GetString("database_adminUser"),
			AdminPassword: v.GetString("database_adminPassword"),
			DisableTLS:    v.GetBool("database_disableTLS"),
			InMemory:      v.GetBool("database_inMemory"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis_addr"),
			Password: v.GetString("redis_password"),
			DB:       v.GetInt("redis_db"),
		},
		Treasury: TreasuryConfig{
			SchoolYear:           v.GetInt("treasury_schoolYear"),
			DueDay:               v.GetInt("treasury_dueDay"),
			InstallmentCount:     v.GetInt("treasury_installmentCount"),
			GraduatingCount:      v.GetInt("treasury_graduatingCount"),
			GraduatingPrefix:     v.GetString("treasury_graduatingPrefix"),
			DiscrepancyTolerance: v.GetInt64("treasury_discrepancyTolerance"),
			ImportWorkers:        v.GetInt("treasury_importWorkers"),
			UFValue:              v.GetString("treasury_ufValue"),
		},
	}
}

// NewTestConfig returns a Config suitable for tests; it never touches the environment.
func NewTestConfig() *Config {
	return &Config{
		Debug:            false,
		TestMode:         true,
		AppName:          "Tesorería",
		Env:              "TEST",
		Build:            "test",
		FrontendBaseURL:  "http://localhost:8080",
		defaultFromEmail: "noreply@localhost",
		Server: ServerConfig{
			Host:            ":0",
			ShutdownTimeout: time.Second,
		},
		Database: DatabaseConfig{InMemory: true},
		Treasury: TreasuryConfig{
			SchoolYear:           2025,
			DueDay:               5,
			InstallmentCount:     10,
			GraduatingCount:      9,
			GraduatingPrefix:     "4 MEDIO",
			DiscrepancyTolerance: 1,
			ImportWorkers:        2,
		},
	}
}
