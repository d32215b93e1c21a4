package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v2"
)

var validate = validator.New()

// LoadYAMLConfig load config from filename in YAML format
func LoadYAMLConfig(filename string, cfg interface{}) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("ReadFile: %w", err)
	}
	return yaml.Unmarshal(data, cfg)
}

// InitConfig overlays configPath on the defaults. A missing file is only
// tolerated when allowMissing is set, so an explicit --config must exist.
func InitConfig(configPath string, allowMissing bool) (*Config, error) {
	conf := DefaultConfig()

	if configPath != "" {
		err := LoadYAMLConfig(configPath, conf)
		if err != nil && !(allowMissing && errors.Is(err, fs.ErrNotExist)) {
			return nil, err
		}
	}

	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
