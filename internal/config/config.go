// Package config loads service configuration and builds the per-export
// options value that is threaded through the export pipeline.
package config

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// DefaultLinkDepth bounds how many show-widget links the exporter follows
// from a page's root widget.
const DefaultLinkDepth = 5

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Model    ModelConfig    `yaml:"model"`
	Assets   AssetsConfig   `yaml:"assets"`
	Export   ExportConfig   `yaml:"export"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// ModelConfig points at the CUE package holding apps and pages.
type ModelConfig struct {
	Dir string `yaml:"dir"`
}

// AssetsConfig describes where vendored libraries live on disk and how
// generated controllers refer to them.
type AssetsConfig struct {
	VendorRoot  string `yaml:"vendor_root"`
	VendorURL   string `yaml:"vendor_url"`
	FacadePath  string `yaml:"facade_path"`
	UI5Resource string `yaml:"ui5_resources"`
}

type ExportConfig struct {
	BaseDir        string `yaml:"base_dir"`
	// LinkDepth is a pointer so an explicit 0 (export the root page only)
	// survives defaulting.
	LinkDepth      *int   `yaml:"link_depth"`
	ServerAdapter  string `yaml:"server_adapter"`
	ODataAdapter   string `yaml:"odata_adapter"`
	ShortWidgetIDs bool   `yaml:"short_widget_ids"`
	// GlobalActions are the actions every page toolbar gets in the live
	// facade. Exports always clear them.
	GlobalActions []string `yaml:"global_actions"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Load reads a YAML config file. A missing file yields defaults. Environment
// overrides are applied last.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, err
			}
		}
	}

	setDefaults(&cfg)
	applyEnv(&cfg)

	return &cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "file:fioriexport.db?_pragma=foreign_keys(1)"
	}
	if cfg.Model.Dir == "" {
		cfg.Model.Dir = "./model"
	}
	if cfg.Assets.VendorRoot == "" {
		cfg.Assets.VendorRoot = "./vendor"
	}
	if cfg.Assets.VendorURL == "" {
		cfg.Assets.VendorURL = "vendor/"
	}
	if cfg.Assets.FacadePath == "" {
		cfg.Assets.FacadePath = "exface/ui5facade"
	}
	if cfg.Assets.UI5Resource == "" {
		cfg.Assets.UI5Resource = "https://openui5.hana.ondemand.com/resources/sap-ui-core.js"
	}
	if cfg.Export.BaseDir == "" {
		cfg.Export.BaseDir = "./exports"
	}
	if cfg.Export.LinkDepth == nil || *cfg.Export.LinkDepth < 0 {
		depth := DefaultLinkDepth
		cfg.Export.LinkDepth = &depth
	}
	if cfg.Export.ServerAdapter == "" {
		cfg.Export.ServerAdapter = "ODataServerAdapter"
	}
	if cfg.Export.ODataAdapter == "" {
		cfg.Export.ODataAdapter = "OData2ServerAdapter"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}
	if v := os.Getenv("FIORIEXPORT_MODEL_DIR"); v != "" {
		cfg.Model.Dir = v
	}
	if v := os.Getenv("FIORIEXPORT_VENDOR_ROOT"); v != "" {
		cfg.Assets.VendorRoot = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

// ExportOptions is the facade configuration as seen by one export run. It is
// built once per export and passed explicitly to every component that needs
// it; nothing in the pipeline reads shared mutable configuration.
type ExportOptions struct {
	ServerAdapter           string
	ODataAdapter            string
	UseBatchDeletes         bool
	UseBatchWrites          bool
	UseBatchFunctionImports bool
	ExportCredentials       bool
	ExportSAPClient         bool
	UseRelativeURLs         bool
	ShortWidgetIDs          bool
	GlobalActions           []string

	LinkDepth   int
	VendorRoot  string
	VendorURL   string
	FacadePath  string
	UI5Resource string
}

// Flags are the per-app export switches stored on an app record.
type Flags struct {
	ExportCredentials       bool
	ExportSAPClient         bool
	UseBatchDeletes         bool
	UseBatchWrites          bool
	UseBatchFunctionImports bool
	UseRelativeURLs         bool
	ODataAdapter            string
}

// ExportOptions derives the options for exporting one app. Short widget ids
// are forced on and global actions are cleared because neither works in a
// read-only static bundle.
func (c *Config) ExportOptions(f Flags) ExportOptions {
	opts := ExportOptions{
		ServerAdapter:           c.Export.ServerAdapter,
		ODataAdapter:            c.Export.ODataAdapter,
		UseBatchDeletes:         f.UseBatchDeletes,
		UseBatchWrites:          f.UseBatchWrites,
		UseBatchFunctionImports: f.UseBatchFunctionImports,
		ExportCredentials:       f.ExportCredentials,
		ExportSAPClient:         f.ExportSAPClient,
		UseRelativeURLs:         f.UseRelativeURLs,
		ShortWidgetIDs:          true,
		GlobalActions:           nil,
		LinkDepth:               DefaultLinkDepth,
		VendorRoot:              c.Assets.VendorRoot,
		VendorURL:               c.Assets.VendorURL,
		FacadePath:              c.Assets.FacadePath,
		UI5Resource:             c.Assets.UI5Resource,
	}
	if f.ODataAdapter != "" {
		opts.ODataAdapter = f.ODataAdapter
	}
	if c.Export.LinkDepth != nil {
		opts.LinkDepth = *c.Export.LinkDepth
	}
	return opts
}
