package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	serverConfig struct {
		Host                      string
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
		RateLimit                 float64 // requests per second, per client IP
		RateBurst                 int
	}

	databaseConfig struct {
		Engine        string // postgres | sqlite
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		Host          string
		Port          string
		Name          string
		DisableTLS    bool
		Path          string // sqlite only
	}

	realtimeConfig struct {
		Broker        string // memory | redis | mqtt
		RedisAddr     string
		RedisPassword string
		RedisDB       int
		MQTTBroker    string
		MQTTClientID  string
	}

	messagesConfig struct {
		Store         string // sql | mongo
		MongoURI      string
		MongoDatabase string
	}

	openAIConfig struct {
		APIKey  string
		BaseURL string
		Model   string
		Timeout time.Duration
	}

	Config struct {
		Debug                     bool
		TestMode                  bool
		AppName                   string
		SecretKey                 string
		Env                       string
		Build                     string
		FrontendBaseURL           string
		WorkDir                   string
		RollbarToken              string
		SendgridApiKey            string
		DefaultFromEmail          mail.Address
		AdminEmail                mail.Address
		PasswordResetTimeoutDelta time.Duration
		Timezone                  string // calendar days (goals, streaks) are computed in this zone

		Server   serverConfig
		Database databaseConfig
		Realtime realtimeConfig
		Messages messagesConfig
		OpenAI   openAIConfig
	}
)

func (dbConf databaseConfig) Address() string {
	return net.JoinHostPort(dbConf.Host, dbConf.Port)
}

// NewConfig loads the configuration from defaults, `config/.env.<env>` and environment variables (in that order).
// Environment variables are prefixed with the upper-cased ENV, e.g. DEV_SECRETKEY or PROD_DATABASE_NAME.
func NewConfig() *Config {
	conf := viper.New()

	wd, err := os.Getwd()
	if err != nil {
		log.Fatalf("config.os.Getwd(): %v", err)
	}

	// defaults
	conf.SetTypeByDefaultValue(true)
	conf.SetDefault("debug", true)
	conf.SetDefault("testMode", false)
	conf.SetDefault("appName", "ExamTrack")
	conf.SetDefault("secretKey", "x!c7-mq2&vbd=+4k(0e_wfz9t$nh#u8p1y^j)sa3lgro5*i6")
	conf.SetDefault("build", "develop")
	conf.SetDefault("frontendBaseURL", "http://localhost:3000")
	conf.SetDefault("workDir", wd)
	conf.SetDefault("rollbarToken", "")
	conf.SetDefault("sendgridApiKey", "")
	conf.SetDefault("defaultFromEmail", "noreply@localhost")
	conf.SetDefault("adminEmail", "admin@localhost")
	conf.SetDefault("passwordResetTimeoutDelta", 3*24*time.Hour)
	conf.SetDefault("timezone", "Asia/Kolkata")

	conf.SetDefault("server.host", "0.0.0.0:8000")
	conf.SetDefault("server.debugHost", "0.0.0.0:4000")
	conf.SetDefault("server.shutdownTimeout", 5*time.Second)
	conf.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)
	conf.SetDefault("server.jwtRefreshExpirationDelta", 4*time.Hour)
	conf.SetDefault("server.rateLimit", 1.0)
	conf.SetDefault("server.rateBurst", 5)

	conf.SetDefault("database.engine", "postgres")
	conf.SetDefault("database.user", "examtrack")
	conf.SetDefault("database.password", "examtrack")
	conf.SetDefault("database.adminUser", "postgres")
	conf.SetDefault("database.adminPassword", "postgres")
	conf.SetDefault("database.host", "localhost")
	conf.SetDefault("database.port", "5432")
	conf.SetDefault("database.name", "examtrack")
	conf.SetDefault("database.disableTLS", true)
	conf.SetDefault("database.path", "examtrack.db")

	conf.SetDefault("realtime.broker", "memory")
	conf.SetDefault("realtime.redisAddr", "localhost:6379")
	conf.SetDefault("realtime.redisPassword", "")
	conf.SetDefault("realtime.redisDB", 0)
	conf.SetDefault("realtime.mqttBroker", "tcp://localhost:1883")
	conf.SetDefault("realtime.mqttClientID", "examtrack-api")

	conf.SetDefault("messages.store", "sql")
	conf.SetDefault("messages.mongoURI", "mongodb://localhost:27017")
	conf.SetDefault("messages.mongoDatabase", "examtrack")

	conf.SetDefault("openai.apiKey", "")
	conf.SetDefault("openai.baseURL", "")
	conf.SetDefault("openai.model", "gpt-4o-mini")
	conf.SetDefault("openai.timeout", 60*time.Second)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		conf.SetDefault("testMode", true)
	}
	conf.SetEnvPrefix(env)
	conf.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	conf.AutomaticEnv()

	return &Config{
		Debug:                     conf.GetBool("debug"),
		TestMode:                  conf.GetBool("testMode"),
		AppName:                   conf.GetString("appName"),
		SecretKey:                 conf.GetString("secretKey"),
		Env:                       env,
		Build:                     conf.GetString("build"),
		FrontendBaseURL:           conf.GetString("frontendBaseURL"),
		WorkDir:                   conf.GetString("workDir"),
		RollbarToken:              conf.GetString("rollbarToken"),
		SendgridApiKey:            conf.GetString("sendgridApiKey"),
		DefaultFromEmail:          parseAddress(conf.GetString("defaultFromEmail"), conf.GetString("appName")),
		AdminEmail:                parseAddress(conf.GetString("adminEmail"), conf.GetString("appName")+" Admin"),
		PasswordResetTimeoutDelta: conf.GetDuration("passwordResetTimeoutDelta"),
		Timezone:                  conf.GetString("timezone"),
		Server: serverConfig{
			Host:                      conf.GetString("server.host"),
			DebugHost:                 conf.GetString("server.debugHost"),
			ShutdownTimeout:           conf.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta:        conf.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: conf.GetDuration("server.jwtRefreshExpirationDelta"),
			RateLimit:                 conf.GetFloat64("server.rateLimit"),
			RateBurst:                 conf.GetInt("server.rateBurst"),
		},
		Database: databaseConfig{
			Engine:        conf.GetString("database.engine"),
			User:          conf.GetString("database.user"),
			Password:      conf.GetString("database.password"),
			AdminUser:     conf.GetString("database.adminUser"),
			AdminPassword: conf.GetString("database.adminPassword"),
			Host:          conf.GetString("database.host"),
			Port:          conf.GetString("database.port"),
			Name:          conf.GetString("database.name"),
			DisableTLS:    conf.GetBool("database.disableTLS"),
			Path:          conf.GetString("database.path"),
		},
		Realtime: realtimeConfig{
			Broker:        conf.GetString("realtime.broker"),
			RedisAddr:     conf.GetString("realtime.redisAddr"),
			RedisPassword: conf.GetString("realtime.redisPassword"),
			RedisDB:       conf.GetInt("realtime.redisDB"),
			MQTTBroker:    conf.GetString("realtime.mqttBroker"),
			MQTTClientID:  conf.GetString("realtime.mqttClientID"),
		},
		Messages: messagesConfig{
			Store:         conf.GetString("messages.store"),
			MongoURI:      conf.GetString("messages.mongoURI"),
			MongoDatabase: conf.GetString("messages.mongoDatabase"),
		},
		OpenAI: openAIConfig{
			APIKey:  conf.GetString("openai.apiKey"),
			BaseURL: conf.GetString("openai.baseURL"),
			Model:   conf.GetString("openai.model"),
			Timeout: conf.GetDuration("openai.timeout"),
		},
	}
}

// Location returns the time.Location used for calendar days. Falls back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func parseAddress(s, defaultName string) mail.Address {
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return mail.Address{Name: defaultName, Address: s}
	}
	if addr.Name == "" {
		addr.Name = defaultName
	}
	return *addr
}
