package internal

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/mitchellh/go-homedir"
	"github.com/volo-project/volo/internal/api"
	"github.com/volo-project/volo/internal/cache"
	"github.com/volo-project/volo/internal/download"
	"github.com/volo-project/volo/internal/engine"
)

// VoloConfig is the struct used to contain the various user config
// supplied by file or environment.
type VoloConfig struct {
	API       api.RestConfig  `yaml:"api"`
	Downloads download.Config `yaml:"downloads"`
	Engine    engine.Config   `yaml:"engine"`
	Cache     cache.Config    `yaml:"cache"`
}

// LoadFromFile loads a YAML configuration file into a VoloConfig,
// with environment variables taking precedence over file values.
func (config *VoloConfig) LoadFromFile(configPath string) error {
	if err := cleanenv.ReadConfig(configPath, config); err != nil {
		return fmt.Errorf("failed to load configuration - %v", err.Error())
	}

	return config.expandPaths()
}

// LoadFromEnv populates the config from environment variables and
// defaults alone, for deployments that carry no config file.
func (config *VoloConfig) LoadFromEnv() error {
	if err := cleanenv.ReadEnv(config); err != nil {
		return fmt.Errorf("failed to load configuration from environment - %v", err.Error())
	}

	return config.expandPaths()
}

// expandPaths resolves a leading '~' in the user-supplied paths so the
// rest of the system only ever sees real filesystem locations.
func (config *VoloConfig) expandPaths() error {
	outputDir, err := homedir.Expand(config.Downloads.OutputDir)
	if err != nil {
		return fmt.Errorf("failed to expand output dir: %w", err)
	}
	config.Downloads.OutputDir = outputDir

	cookiesFile, err := homedir.Expand(config.Engine.CookiesFile)
	if err != nil {
		return fmt.Errorf("failed to expand cookies file path: %w", err)
	}
	config.Engine.CookiesFile = cookiesFile

	return nil
}
