package config

import (
	"strings"

	"github.com/spf13/viper"
)

// NewViper returns a viper instance reading APPDIR_* environment variables,
// with dots in keys mapped to underscores (index.url → APPDIR_INDEX_URL).
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}
