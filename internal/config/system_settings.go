package config

import (
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

const DATABASE_TYPE = "GFLOW_DATABASE_TYPE"
const DATABASE_URL = "GFLOW_DATABASE_URL"
const DATABASE_SQLLITE_FILE_NAME = "GFLOW_DATABASE_SQLLITE_FILE_NAME"
const ENGINE_SERVER_WEB_PORT = "GFLOW_ENGINE_SERVER_WEB_PORT"
const ENGINE_DEFINITION_CACHE_TTL = "GFLOW_ENGINE_DEFINITION_CACHE_TTL" //how long resolved definitions are served from memory
const ENGINE_CONFLICT_RETRIES = "GFLOW_ENGINE_CONFLICT_RETRIES"         //read-modify-write attempts on a version conflict
const ENGINE_SLA_CHECK_INTERVAL = "GFLOW_ENGINE_SLA_CHECK_INTERVAL"
const ENGINE_SLA_BATCH_SIZE = "GFLOW_ENGINE_SLA_BATCH_SIZE" //number of active instances inspected per SLA tick
const INTEGRATION_DMS_URL = "GFLOW_INTEGRATION_DMS_URL"     //document management service, log only when empty
const INTEGRATION_HTTP_TIMEOUT = "GFLOW_INTEGRATION_HTTP_TIMEOUT"
const WEB_SESSION_EXPIRY_HOURS = "GFLOW_WEB_SESSION_EXPIRY_HOURS"
const WEB_INSTANCE_PAGE_SIZE = "GFLOW_WEB_INSTANCE_PAGE_SIZE" //instances returned by a list call without a limit
const LOG_LEVEL = "GFLOW_LOG_LEVEL"

const DATABASE_TYPE_POSTGRES = "POSTGRES"
const DATABASE_TYPE_MYSQL = "MYSQL"
const DATABASE_TYPE_SQLLITE = "SQLLITE"

const envPrefix = "GFLOW"

var (
	mu       sync.RWMutex
	settings = newSettings()
)

func newSettings() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault(key(ENGINE_SERVER_WEB_PORT), "8080")
	v.SetDefault(key(ENGINE_DEFINITION_CACHE_TTL), "5m")
	v.SetDefault(key(ENGINE_CONFLICT_RETRIES), 3)
	v.SetDefault(key(ENGINE_SLA_CHECK_INTERVAL), "60s")
	v.SetDefault(key(ENGINE_SLA_BATCH_SIZE), 500)
	v.SetDefault(key(INTEGRATION_HTTP_TIMEOUT), "10s")
	v.SetDefault(key(WEB_SESSION_EXPIRY_HOURS), 1)
	v.SetDefault(key(WEB_INSTANCE_PAGE_SIZE), 100)
	v.SetDefault(key(DATABASE_SQLLITE_FILE_NAME), "./govflow.db")
	v.SetDefault(key(LOG_LEVEL), "info")
	return v
}

// key maps GFLOW_DATABASE_TYPE to the viper key database_type, which is also
// the key used in a YAML config file.
func key(settingKey string) string {
	return strings.ToLower(strings.TrimPrefix(settingKey, envPrefix+"_"))
}

// LoadFile merges a YAML config file into the settings. Environment variables keep precedence.
func LoadFile(path string) error {
	if path == "" {
		return nil
	}
	mu.Lock()
	defer mu.Unlock()
	settings.SetConfigFile(path)
	settings.SetConfigType("yaml")
	return settings.ReadInConfig()
}

// Reset discards loaded files and overrides.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	settings = newSettings()
}

// Set overrides a setting in process, used by the CLI flags and tests.
func Set(settingKey string, value any) {
	mu.Lock()
	defer mu.Unlock()
	settings.Set(key(settingKey), value)
}

func GetSystemSettingInteger(settingKey string) int {
	mu.RLock()
	defer mu.RUnlock()
	return settings.GetInt(key(settingKey))
}

func GetSystemSettingString(settingKey string) string {
	mu.RLock()
	defer mu.RUnlock()
	return settings.GetString(key(settingKey))
}

// GetSystemSettingDuration parses values like "5m" or "30s"; invalid values yield fallback.
func GetSystemSettingDuration(settingKey string, fallback time.Duration) time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	d := settings.GetDuration(key(settingKey))
	if d <= 0 {
		return fallback
	}
	return d
}
