package ingest

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/airbusgeo/alos2-ingester/common"
	"github.com/airbusgeo/alos2-ingester/productize"
	"github.com/airbusgeo/alos2-ingester/service/toolbox"
	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config of the ingestion, loaded from the environment (and .env files)
type Config struct {
	WorkDir string `env:"WORKDIR" envDefault:"."`
	OutDir  string `env:"OUTDIR" envDefault:"."`

	Productizer ProductizerConfig `envPrefix:"PRODUCTIZER_"`
	Docker      DockerConfig      `envPrefix:"DOCKER_"`
	Portals     PortalsConfig
	Catalog     CatalogConfig `envPrefix:"GRQ_"`
	Jobs        JobsConfig    `envPrefix:"JOB_"`
	Export      ExportConfig  `envPrefix:"EXPORT_"`

	// Ledger
	DBConnection string `env:"DB_CONNECTION"`
}

// ProductizerConfig configures the productizer
type ProductizerConfig struct {
	MinZoom         int      `env:"MIN_ZOOM" envDefault:"0"`
	MaxZoom         int      `env:"MAX_ZOOM" envDefault:"8"`
	SettingsFile    string   `env:"SETTINGS"` // settings.json
	Extractor       string   `env:"EXTRACTOR" envDefault:"extract_alos2_md.py"`
	Footprint       string   `env:"FOOTPRINT" envDefault:"convexhull"` // convexhull|mask
	FootprintLevels []string `env:"FOOTPRINT_LEVELS" envDefault:"L21" envSeparator:","`
}

// DockerConfig runs the tools in a docker container if Image is defined
type DockerConfig struct {
	Image            string   `env:"IMAGE"`
	Envs             []string `env:"ENVS" envSeparator:","`
	RegistryServer   string   `env:"REGISTRY_SERVER"`
	RegistryUserName string   `env:"REGISTRY_USERNAME" envDefault:"_json_key"`
	RegistryPassword string   `env:"REGISTRY_PASSWORD"`
	VolumesToMount   string   `env:"MOUNT_VOLUMES"`
}

// PortalsConfig holds the credentials of the portals.
// Credentials that are not defined are read in the AWS SSM Parameter Store if SSMPrefix is defined.
type PortalsConfig struct {
	AUIG2Username        string        `env:"AUIG2_USERNAME"`
	AUIG2Password        string        `env:"AUIG2_PASSWORD"`
	SentinelAsiaUsername string        `env:"SENTINELASIA_USERNAME"`
	SentinelAsiaPassword string        `env:"SENTINELASIA_PASSWORD"`
	SentinelAsiaLogin    string        `env:"SENTINELASIA_LOGIN" envDefault:"sentinelasia"` // sentinelasia|optemis
	GPortalUsername      string        `env:"GPORTAL_USERNAME"`
	GPortalPassword      string        `env:"GPORTAL_PASSWORD"`
	Timeout              time.Duration `env:"PORTAL_TIMEOUT" envDefault:"1m"`
	SSMPrefix            string        `env:"SSM_PREFIX"`
	AWSRegion            string        `env:"AWS_REGION"`
}

// CatalogConfig configures the existence check in GRQ
type CatalogConfig struct {
	URL      string `env:"URL"`
	Index    string `env:"INDEX" envDefault:"grq"`
	Insecure bool   `env:"INSECURE"`
}

// JobsConfig configures the submission of the jobs (Sentinel-Asia fan-out, archive scraping)
type JobsConfig struct {
	MozartURL    string `env:"MOZART_URL"`
	Tag          string `env:"TAG" envDefault:"develop"`
	Queue        string `env:"QUEUE" envDefault:"alos2-job_worker-large"`
	OAuth2URL    string `env:"OAUTH2_TOKEN_URL"`
	ClientID     string `env:"OAUTH2_CLIENT_ID"`
	ClientSecret string `env:"OAUTH2_CLIENT_SECRET"`
	// Publish the jobs on a queue instead of Mozart
	PgqConnection string `env:"PGQ_CONNECTION"`
	PsProject     string `env:"PS_PROJECT"`
	Topic         string `env:"TOPIC"`
	// Queue worker: jobs subscription and results topic
	Subscription string `env:"SUBSCRIPTION"`
	EventTopic   string `env:"EVENT_TOPIC"`
}

// ExportConfig configures the export of the products
type ExportConfig struct {
	StorageURI   string `env:"STORAGE_URI"`
	Concurrency  int    `env:"CONCURRENCY" envDefault:"10"`
	IngestScript string `env:"INGEST_SCRIPT"` // e.g. ~/hysds/scripts/ingest_dataset.py
	DatasetsFile string `env:"DATASETS_FILE" envDefault:"~/hysds/datasets.json"`
	KeepProducts bool   `env:"KEEP_PRODUCTS"`
}

// LoadConfig loads the .env files (if they exist) then parses the environment variables prefixed by ALOS2_
func LoadConfig(envFiles ...string) (Config, error) {
	var existing []string
	for _, f := range envFiles {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) > 0 {
		if err := godotenv.Load(existing...); err != nil {
			return Config{}, fmt.Errorf("LoadConfig: %w", err)
		}
	}
	cfg := Config{}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "ALOS2_"}); err != nil {
		return Config{}, fmt.Errorf("LoadConfig: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("LoadConfig: %w", err)
	}
	return cfg, nil
}

// Validate checks the consistency of the configuration
func (c Config) Validate() error {
	if c.Productizer.MinZoom < 0 || c.Productizer.MaxZoom < c.Productizer.MinZoom {
		return fmt.Errorf("invalid zoom range [%d, %d]", c.Productizer.MinZoom, c.Productizer.MaxZoom)
	}
	switch c.Productizer.Footprint {
	case "convexhull", "mask":
	default:
		return fmt.Errorf("invalid footprint strategy %q, must be one of: convexhull, mask", c.Productizer.Footprint)
	}
	for _, l := range c.Productizer.FootprintLevels {
		if _, err := common.ProductLevelString(l); err != nil {
			return fmt.Errorf("invalid footprint level: %w", err)
		}
	}
	switch c.Portals.SentinelAsiaLogin {
	case "sentinelasia", "optemis":
	default:
		return fmt.Errorf("invalid sentinel-asia login %q, must be one of: sentinelasia, optemis", c.Portals.SentinelAsiaLogin)
	}
	if c.Export.Concurrency <= 0 {
		return fmt.Errorf("export concurrency must be positive, got %d", c.Export.Concurrency)
	}
	return nil
}

// ProductizerConfig returns the configuration of the productizer
func (c Config) ProductizerConfig() (productize.Config, error) {
	pc := productize.DefaultConfig()
	pc.OutDir = c.OutDir
	pc.MinZoom = c.Productizer.MinZoom
	pc.MaxZoom = c.Productizer.MaxZoom
	pc.Extractor = c.Productizer.Extractor
	pc.FootprintLevels = nil
	for _, l := range c.Productizer.FootprintLevels {
		level, err := common.ProductLevelString(l)
		if err != nil {
			return pc, err
		}
		pc.FootprintLevels = append(pc.FootprintLevels, level)
	}
	if c.Productizer.SettingsFile != "" {
		settings, err := productize.LoadSettings(c.Productizer.SettingsFile)
		if err != nil {
			return pc, err
		}
		pc.Settings = settings
	}
	return pc, nil
}

// NewRunner returns the runner of the tools: a DockerRunner if an image is configured, an ExecRunner otherwise
func (c Config) NewRunner(ctx context.Context) (toolbox.Runner, error) {
	if c.Docker.Image == "" {
		return toolbox.NewExecRunner(), nil
	}
	return toolbox.NewDockerRunner(ctx, toolbox.DockerConfig{
		Image:            c.Docker.Image,
		Envs:             c.Docker.Envs,
		RegistryServer:   c.Docker.RegistryServer,
		RegistryUserName: c.Docker.RegistryUserName,
		RegistryPassword: c.Docker.RegistryPassword,
		VolumesToMount:   c.Docker.VolumesToMount,
	})
}

// NewProductizer creates the productizer with the footprint strategy of the configuration
func (c Config) NewProductizer(ctx context.Context) (*productize.Productizer, error) {
	pc, err := c.ProductizerConfig()
	if err != nil {
		return nil, fmt.Errorf("NewProductizer: %w", err)
	}
	runner, err := c.NewRunner(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewProductizer: %w", err)
	}
	pz := productize.NewProductizer(pc, runner)
	if strings.EqualFold(c.Productizer.Footprint, "mask") {
		pz.Footprinter = productize.MaskPolygonizeFootprinter{Runner: runner}
	}
	return pz, nil
}
