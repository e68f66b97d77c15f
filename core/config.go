package core

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Store engines
const (
	StoreMemory   = "memory"
	StoreBolt     = "bolt"
	StorePostgres = "postgres"
)

// Blob engines
const (
	BlobLocal = "local"
	BlobB2    = "b2"
)

type (
	Config struct {
		Debug        bool
		TestMode     bool
		AppName      string
		SecretKey    string
		Env          string
		Build        string
		RollbarToken string
		Server       ServerConfig
		Store        StoreConfig
		Database     DatabaseConfig
		Blob         BlobConfig
		Report       ReportConfig
	}

	ServerConfig struct {
		Host                      string
		Address                   string
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
	}

	StoreConfig struct {
		Engine   string
		BoltPath string
	}

	DatabaseConfig struct {
		Engine     string
		Host       string
		Port       int
		Name       string
		User       string
		Password   string
		DisableTLS bool
	}

	BlobConfig struct {
		Engine     string
		LocalDir   string
		BaseURL    string
		B2Account  string
		B2Key      string
		B2Bucket   string
	}

	ReportConfig struct {
		Timeout time.Duration
	}
)

func (db DatabaseConfig) Address() string {
	return fmt.Sprintf("%s:%d", db.Host, db.Port)
}

// NewConfig loads the configuration from the environment (and the optional `config/.env.<env>` file).
func NewConfig() *Config {
	conf := viper.New()

	// defaults
	conf.SetTypeByDefaultValue(true)
	conf.SetDefault("debug", true)
	conf.SetDefault("testMode", false)
	conf.SetDefault("appName", "Academy")
	conf.SetDefault("secretKey", "s9c%v0n&lq2+x!e8w@t4ks#7f_0zo-1r(m$3u)b6dhy*pj5ga")
	conf.SetDefault("build", "dev")
	conf.SetDefault("rollbarToken", "")

	conf.SetDefault("serverHost", "localhost")
	conf.SetDefault("serverAddress", ":8000")
	conf.SetDefault("serverDebugHost", ":4000")
	conf.SetDefault("serverShutdownTimeout", 5*time.Second)
	conf.SetDefault("jwtExpirationDelta", 7*24*time.Hour)
	conf.SetDefault("jwtRefreshExpirationDelta", 4*time.Hour)

	conf.SetDefault("storeEngine", StoreBolt)
	conf.SetDefault("storeBoltPath", "academy.db")

	conf.SetDefault("dbEngine", "postgres")
	conf.SetDefault("dbHost", "localhost")
	conf.SetDefault("dbPort", 5432)
	conf.SetDefault("dbName", "academy")
	conf.SetDefault("dbUser", "academy")
	conf.SetDefault("dbPassword", "")
	conf.SetDefault("dbDisableTLS", true)

	conf.SetDefault("blobEngine", BlobLocal)
	conf.SetDefault("blobLocalDir", "uploads")
	conf.SetDefault("blobBaseURL", "http://localhost:8000/uploads")
	conf.SetDefault("blobB2Account", "")
	conf.SetDefault("blobB2Key", "")
	conf.SetDefault("blobB2Bucket", "")

	conf.SetDefault("reportTimeout", 30*time.Second)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		conf.SetDefault("testMode", true)
	}
	conf.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	if root, err := ProjectRoot(); err == nil {
		dotEnvPath := filepath.Join(root, "config", ".env."+strings.ToLower(env))
		if _, err := os.Stat(dotEnvPath); err == nil {
			if err := godotenv.Load(dotEnvPath); err != nil {
				log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
			}
		} else if !os.IsNotExist(err) {
			log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
		}
	}
	conf.AutomaticEnv()

	return &Config{
		Debug:        conf.GetBool("debug"),
		TestMode:     conf.GetBool("testMode"),
		AppName:      conf.GetString("appName"),
		SecretKey:    conf.GetString("secretKey"),
		Env:          env,
		Build:        conf.GetString("build"),
		RollbarToken: conf.GetString("rollbarToken"),
		Server: ServerConfig{
			Host:                      conf.GetString("serverHost"),
			Address:                   conf.GetString("serverAddress"),
			DebugHost:                 conf.GetString("serverDebugHost"),
			ShutdownTimeout:           conf.GetDuration("serverShutdownTimeout"),
			JWTExpirationDelta:        conf.GetDuration("jwtExpirationDelta"),
			JWTRefreshExpirationDelta: conf.GetDuration("jwtRefreshExpirationDelta"),
		},
		Store: StoreConfig{
			Engine:   strings.ToLower(conf.GetString("storeEngine")),
			BoltPath: conf.GetString("storeBoltPath"),
		},
		Database: DatabaseConfig{
			Engine:     conf.GetString("dbEngine"),
			Host:       conf.GetString("dbHost"),
			Port:       conf.GetInt("dbPort"),
			Name:       conf.GetString("dbName"),
			User:       conf.GetString("dbUser"),
			Password:   conf.GetString("dbPassword"),
			DisableTLS: conf.GetBool("dbDisableTLS"),
		},
		Blob: BlobConfig{
			Engine:    strings.ToLower(conf.GetString("blobEngine")),
			LocalDir:  conf.GetString("blobLocalDir"),
			BaseURL:   strings.TrimSuffix(conf.GetString("blobBaseURL"), "/"),
			B2Account: conf.GetString("blobB2Account"),
			B2Key:     conf.GetString("blobB2Key"),
			B2Bucket:  conf.GetString("blobB2Bucket"),
		},
		Report: ReportConfig{
			Timeout: conf.GetDuration("reportTimeout"),
		},
	}
}

// NewTestConfig returns a Config suited for tests: in-memory store, debug off.
func NewTestConfig() *Config {
	conf := NewConfig()
	conf.Debug = false
	conf.TestMode = true
	conf.Store.Engine = StoreMemory
	conf.Blob.Engine = BlobLocal
	conf.Blob.LocalDir = os.TempDir()
	return conf
}
