// Package config loads the gateway's runtime configuration from
// environment variables, following the same getEnvOrDefault idiom the
// rest of this codebase's teacher uses for its Profile type.
package config

import (
	"os"
	"strconv"

	"github.com/pkg/errors"
)

// Config is the bootstrap configuration for the gateway process.
type Config struct {
	APIToken  string // *_API_TOKEN, unset from env after FromEnv reads it
	APISecret string // *_API_SECRET, unset from env after FromEnv reads it

	HookURL  string
	HookPath string

	BotID   int64
	OwnerID int64

	ListenHost string
	ListenPort int

	WorkerThreadsNum int
	WorkerJobsMin    int
	WorkerJobsMax    int

	DBFile  string
	CmdPath string

	ImportSysEnv bool
}

const (
	envAPIToken   = "KVRT_API_TOKEN"
	envAPISecret  = "KVRT_API_SECRET"
	envHookURL    = "KVRT_HOOK_URL"
	envHookPath   = "KVRT_HOOK_PATH"
	envBotID      = "KVRT_BOT_ID"
	envOwnerID    = "KVRT_OWNER_ID"
	envListenHost = "KVRT_LISTEN_HOST"
	envListenPort = "KVRT_LISTEN_PORT"
	envWorkerNum  = "KVRT_WORKER_THREADS_NUM"
	envWorkerMin  = "KVRT_WORKER_JOBS_MIN"
	envWorkerMax  = "KVRT_WORKER_JOBS_MAX"
	envDBFile     = "KVRT_DB_FILE"
	envCmdPath    = "KVRT_CMD_PATH"
	envImportEnv  = "KVRT_IMPORT_SYS_ENV"
)

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvOrDefaultInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvOrDefaultInt64(key string, defaultValue int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvOrDefaultBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

// FromEnv loads configuration from environment variables, applying the
// defaults named in spec.md §6. APIToken and APISecret are unset from the
// process environment once read, so a later child-process spawn (or a
// leaked environment dump) cannot surface them via os.Environ.
func FromEnv() (*Config, error) {
	c := &Config{
		APIToken:         os.Getenv(envAPIToken),
		APISecret:        os.Getenv(envAPISecret),
		HookURL:          os.Getenv(envHookURL),
		HookPath:         getEnvOrDefault(envHookPath, "/hook"),
		BotID:            getEnvOrDefaultInt64(envBotID, 0),
		OwnerID:          getEnvOrDefaultInt64(envOwnerID, 0),
		ListenHost:       getEnvOrDefault(envListenHost, "127.0.0.1"),
		ListenPort:       getEnvOrDefaultInt(envListenPort, 22224),
		WorkerThreadsNum: getEnvOrDefaultInt(envWorkerNum, 4),
		WorkerJobsMin:    getEnvOrDefaultInt(envWorkerMin, 8),
		WorkerJobsMax:    getEnvOrDefaultInt(envWorkerMax, 32),
		DBFile:           getEnvOrDefault(envDBFile, "./db.sqlite"),
		CmdPath:          getEnvOrDefault(envCmdPath, "./extern"),
		ImportSysEnv:     getEnvOrDefaultBool(envImportEnv, false),
	}

	os.Unsetenv(envAPIToken)
	os.Unsetenv(envAPISecret)

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the invariants spec.md §6 requires before the server
// can start; failure here is a Fatal-class error per §7.
func (c *Config) Validate() error {
	if c.APIToken == "" {
		return errors.New("config: KVRT_API_TOKEN is required")
	}
	if c.APISecret == "" {
		return errors.New("config: KVRT_API_SECRET is required")
	}
	if c.HookURL == "" {
		return errors.New("config: KVRT_HOOK_URL is required")
	}
	if c.BotID == 0 {
		return errors.New("config: KVRT_BOT_ID must be non-zero")
	}
	if c.OwnerID == 0 {
		return errors.New("config: KVRT_OWNER_ID must be non-zero")
	}
	if c.WorkerThreadsNum <= 0 {
		return errors.New("config: KVRT_WORKER_THREADS_NUM must be positive")
	}
	if c.WorkerJobsMax < c.WorkerJobsMin {
		return errors.New("config: KVRT_WORKER_JOBS_MAX must be >= KVRT_WORKER_JOBS_MIN")
	}
	return nil
}

// Addr is the host:port the ingress server listens on.
func (c *Config) Addr() string {
	return c.ListenHost + ":" + strconv.Itoa(c.ListenPort)
}
