package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/bargom/modelrepo/pkg/database"
	"github.com/bargom/modelrepo/pkg/logging"
)

// settings is the resolved configuration of one CLI invocation.
type settings struct {
	Database    database.Config
	Log         logging.Config
	MetricsFile string
}

// loadSettings resolves configuration with the precedence
// flags > MODELREPO_* environment > config file > dotenv file > defaults.
// The dotenv file feeds the DB_* and LOG_* variables read for the defaults.
func loadSettings(cmd *cobra.Command) (settings, error) {
	if err := loadEnvFile(envFile); err != nil {
		return settings{}, err
	}

	dbDefaults := database.ConfigFromEnv()
	logDefaults := logging.ConfigFromEnv()

	v := viper.New()
	v.SetDefault("driver", dbDefaults.Driver)
	v.SetDefault("dsn", dbDefaults.DSN)
	v.SetDefault("max-open-conns", dbDefaults.MaxOpenConns)
	v.SetDefault("max-idle-conns", dbDefaults.MaxIdleConns)
	v.SetDefault("conn-max-lifetime", dbDefaults.ConnMaxLifetime)
	v.SetDefault("conn-max-idle-time", dbDefaults.ConnMaxIdleTime)
	v.SetDefault("log-level", defaultLogLevel(logDefaults))
	v.SetDefault("log-format", "text")
	v.SetDefault("slow-query", logDefaults.SlowQueryThreshold)
	v.SetDefault("metrics-file", "")

	v.SetEnvPrefix("MODELREPO")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return settings{}, fmt.Errorf("reading config file: %w", err)
		}
	}

	if err := bindFlags(v, cmd.Root().PersistentFlags(), "driver", "dsn", "log-level", "metrics-file"); err != nil {
		return settings{}, err
	}

	s := settings{
		Database: database.Config{
			Driver:          database.ParseDriver(v.GetString("driver")),
			DSN:             v.GetString("dsn"),
			MaxOpenConns:    v.GetInt("max-open-conns"),
			MaxIdleConns:    v.GetInt("max-idle-conns"),
			ConnMaxLifetime: v.GetDuration("conn-max-lifetime"),
			ConnMaxIdleTime: v.GetDuration("conn-max-idle-time"),
		},
		Log:         logDefaults,
		MetricsFile: v.GetString("metrics-file"),
	}
	s.Log.Level = v.GetString("log-level")
	s.Log.Format = v.GetString("log-format")
	s.Log.SlowQueryThreshold = v.GetDuration("slow-query")

	if err := s.Database.Validate(); err != nil {
		return settings{}, err
	}
	return s, nil
}

// bindFlags binds each named flag to the viper key of the same name, so a
// flag set on the command line wins over every other source.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet, names ...string) error {
	for _, name := range names {
		f := flags.Lookup(name)
		if f == nil {
			return fmt.Errorf("unknown flag %q", name)
		}
		if err := v.BindPFlag(name, f); err != nil {
			return fmt.Errorf("binding flag %s: %w", name, err)
		}
	}
	return nil
}

// the CLI stays quiet unless asked otherwise
func defaultLogLevel(cfg logging.Config) string {
	if os.Getenv("LOG_LEVEL") == "" {
		return "warn"
	}
	return cfg.Level
}

func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading env file %s: %w", path, err)
	}
	return nil
}
