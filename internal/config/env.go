package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads KEY=VALUE files into the process environment without
// overriding variables that are already set. With no paths it reads ./.env
// and a missing file is not an error.
func LoadDotEnv(paths ...string) error {
	err := godotenv.Load(paths...)
	if err != nil && len(paths) == 0 && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// ApplyEnv overrides c from ROUTINE_* and TELEGRAM_* variables.
func ApplyEnv(c *Config) error {
	if v := os.Getenv("ROUTINE_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("ROUTINE_STORE_DRIVER"); v != "" {
		c.Store.Driver = v
	}
	if v := os.Getenv("ROUTINE_STORE_DSN"); v != "" {
		c.Store.DSN = v
	}
	if val := getEnvInt("ROUTINE_HORIZON_DAYS"); val > 0 {
		c.Scheduler.HorizonDays = val
	}
	if val := getEnvInt("ROUTINE_RESYNC_MINUTES"); val > 0 {
		c.Scheduler.ResyncMinutes = val
	}
	if v := os.Getenv("ROUTINE_EXACT_ALARMS"); v != "" {
		exact, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("ROUTINE_EXACT_ALARMS: %w", err)
		}
		c.Scheduler.Exact = &exact
	}
	if v := os.Getenv("ROUTINE_HTTP_ADDR"); v != "" {
		c.HTTP.Addr = v
	}
	if v := os.Getenv("ROUTINE_API_TOKEN"); v != "" {
		c.HTTP.Token = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.Token = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("TELEGRAM_CHAT_ID: %w", err)
		}
		c.Telegram.ChatID = id
	}
	return nil
}

func getEnvInt(key string) int {
	val := os.Getenv(key)
	if val == "" {
		return 0
	}
	num, err := strconv.Atoi(val)
	if err != nil {
		return 0
	}
	return num
}
