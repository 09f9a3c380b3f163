package core

import (
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DBEnginePostgres = "postgres"
	DBEngineSQLite   = "sqlite"
)

type (
	Config struct {
		AppName      string
		Env          string
		Build        string
		Debug        bool
		TestMode     bool
		SecretKey    string
		RollbarToken string

		Server   ServerConfig
		Database DatabaseConfig
		Redis    RedisConfig
		Ingest   IngestConfig
		Export   ExportConfig
		Metrics  MetricsConfig
	}

	ServerConfig struct {
		Address         string
		Host            string
		DebugHost       string
		ReadTimeout     time.Duration
		WriteTimeout    time.Duration
		ShutdownTimeout time.Duration
		DisableReqLogs  bool
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
		Path          string // sqlite only, without the .sqlite suffix
	}

	RedisConfig struct {
		Address  string
		Password string
		DB       int
	}

	IngestConfig struct {
		ChunkSize        int
		ProgressEvery    int
		ValidationWindow int
		ReplaceMaxWait   time.Duration
		ReplaceTimeout   time.Duration
		MaxUploadSize    int64
		MaxDisplayErrors int
	}

	ExportConfig struct {
		ChunkSize  int
		CodeMapTTL time.Duration
	}

	MetricsConfig struct {
		Enabled bool
	}
)

func (dbc DatabaseConfig) Address() string {
	return net.JoinHostPort(dbc.Host, dbc.Port)
}

// NewConfig loads the app configuration from defaults, the optional `config/.env.<env>` file and the environment.
// Env vars are prefixed by the uppercase env name, e.g. DEV_DATABASE_HOST.
func NewConfig() *Config {
	v := viper.New()
	v.SetTypeByDefaultValue(true)
	setDefaults(v)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(Getwd(), "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	conf := &Config{
		AppName:      v.GetString("appName"),
		Env:          env,
		Build:        v.GetString("build"),
		Debug:        v.GetBool("debug"),
		TestMode:     v.GetBool("testMode"),
		SecretKey:    v.GetString("secretKey"),
		RollbarToken: v.GetString("rollbarToken"),
		Server: ServerConfig{
			Address:         v.GetString("server.address"),
			Host:            v.GetString("server.host"),
			DebugHost:       v.GetString("server.debugHost"),
			ReadTimeout:     v.GetDuration("server.readTimeout"),
			WriteTimeout:    v.GetDuration("server.writeTimeout"),
			ShutdownTimeout: v.GetDuration("server.shutdownTimeout"),
			DisableReqLogs:  v.GetBool("server.disableReqLogs"),
		},
		Database: DatabaseConfig{
			Engine:        strings.ToLower(v.GetString("database.engine")),
			Host:          v.GetString("database.host"),
			Port:          v.GetString("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
			Path:          v.GetString("database.path"),
		},
		Redis: RedisConfig{
			Address:  v.GetString("redis.address"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Ingest: IngestConfig{
			ChunkSize:        v.GetInt("ingest.chunkSize"),
			ProgressEvery:    v.GetInt("ingest.progressEvery"),
			ValidationWindow: v.GetInt("ingest.validationWindow"),
			ReplaceMaxWait:   v.GetDuration("ingest.replaceMaxWait"),
			ReplaceTimeout:   v.GetDuration("ingest.replaceTimeout"),
			MaxUploadSize:    v.GetInt64("ingest.maxUploadSize"),
			MaxDisplayErrors: v.GetInt("ingest.maxDisplayErrors"),
		},
		Export: ExportConfig{
			ChunkSize:  v.GetInt("export.chunkSize"),
			CodeMapTTL: v.GetDuration("export.codeMapTTL"),
		},
		Metrics: MetricsConfig{
			Enabled: v.GetBool("metrics.enabled"),
		},
	}
	conf.clamp()
	return conf
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("debug", true)
	v.SetDefault("appName", "ExamReg")
	v.SetDefault("build", "develop")
	v.SetDefault("secretKey", "poq5-wer)enb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy")
	v.SetDefault("rollbarToken", "")

	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.readTimeout", 5*time.Minute)
	v.SetDefault("server.writeTimeout", 0) // streamed exports can run for minutes
	v.SetDefault("server.shutdownTimeout", 10*time.Second)
	v.SetDefault("server.disableReqLogs", false)

	v.SetDefault("database.engine", DBEnginePostgres)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "examreg")
	v.SetDefault("database.user", "examreg")
	v.SetDefault("database.password", "examreg")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.disableTLS", true)
	v.SetDefault("database.path", "data/examreg")

	v.SetDefault("redis.address", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("ingest.chunkSize", 50)
	v.SetDefault("ingest.progressEvery", 50)
	v.SetDefault("ingest.validationWindow", 500)
	v.SetDefault("ingest.replaceMaxWait", 20*time.Second)
	v.SetDefault("ingest.replaceTimeout", 30*time.Second)
	v.SetDefault("ingest.maxUploadSize", int64(32<<20))
	v.SetDefault("ingest.maxDisplayErrors", 5)

	v.SetDefault("export.chunkSize", 5000)
	v.SetDefault("export.codeMapTTL", time.Duration(0))

	v.SetDefault("metrics.enabled", true)
}

func (conf *Config) clamp() {
	conf.Ingest.ChunkSize = clampInt(conf.Ingest.ChunkSize, 1, 1000)
	conf.Ingest.ProgressEvery = clampInt(conf.Ingest.ProgressEvery, 1, 10000)
	conf.Ingest.ValidationWindow = clampInt(conf.Ingest.ValidationWindow, 1, 5000)
	conf.Ingest.MaxDisplayErrors = clampInt(conf.Ingest.MaxDisplayErrors, 1, 100)
	conf.Export.ChunkSize = clampInt(conf.Export.ChunkSize, 1, 20000)
	if conf.Ingest.MaxUploadSize <= 0 {
		conf.Ingest.MaxUploadSize = 32 << 20
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// NewTestConfig returns the config used by tests: sqlite engine, small chunks and no external services.
func NewTestConfig() *Config {
	conf := &Config{
		AppName:   "ExamReg",
		Env:       "TEST",
		Build:     "test",
		Debug:     false,
		TestMode:  true,
		SecretKey: "test-secret",
		Server: ServerConfig{
			Address:         ":0",
			ShutdownTimeout: time.Second,
			DisableReqLogs:  true,
		},
		Database: DatabaseConfig{Engine: DBEngineSQLite},
		Ingest: IngestConfig{
			ChunkSize:        50,
			ProgressEvery:    50,
			ValidationWindow: 500,
			ReplaceMaxWait:   time.Second,
			ReplaceTimeout:   5 * time.Second,
			MaxUploadSize:    1 << 20,
			MaxDisplayErrors: 5,
		},
		Export: ExportConfig{ChunkSize: 5000},
	}
	return conf
}

func (conf *Config) String() string {
	return fmt.Sprintf("%s[%s@%s db=%s]", conf.AppName, conf.Env, conf.Build, conf.Database.Engine)
}
