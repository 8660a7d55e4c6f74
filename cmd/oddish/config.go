package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the CLI configuration, loaded from oddish.yaml with environment
// overrides (ODDISH_* variables, typically via a .env file).
type Config struct {
	ExportDir        string `yaml:"export_dir"`        // Apple Health export folder
	CacheDir         string `yaml:"cache_dir"`         // gob cache location
	PolygonDir       string `yaml:"polygon_dir"`       // city-region-section CSV folder
	ExploreDir       string `yaml:"explore_dir"`       // rendered map output folder
	BrowserBin       string `yaml:"browser_bin"`       // Chrome/Chromium binary path
	OverpassEndpoint string `yaml:"overpass_endpoint"` // Overpass interpreter URL
}

func defaultCLIConfig() Config {
	return Config{
		ExportDir:  "apple_health_export",
		CacheDir:   "oddish-cache",
		PolygonDir: "data/polygons",
		ExploreDir: "data/explore",
	}
}

// loadConfig reads the YAML config file when present and applies environment
// overrides. A missing file is fine; missing explicit --config is not.
func loadConfig(path string, explicit bool) (Config, error) {
	cfg := defaultCLIConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if explicit || !os.IsNotExist(err) {
			return cfg, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	overrides := map[string]*string{
		"ODDISH_EXPORT_DIR":        &cfg.ExportDir,
		"ODDISH_CACHE_DIR":         &cfg.CacheDir,
		"ODDISH_POLYGON_DIR":       &cfg.PolygonDir,
		"ODDISH_EXPLORE_DIR":       &cfg.ExploreDir,
		"ODDISH_BROWSER_BIN":       &cfg.BrowserBin,
		"ODDISH_OVERPASS_ENDPOINT": &cfg.OverpassEndpoint,
	}
	for key, target := range overrides {
		if v := os.Getenv(key); v != "" {
			*target = v
		}
	}
	return cfg, nil
}
