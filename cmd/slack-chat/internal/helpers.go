package internal

import (
	"fmt"
	"runtime"

	"github.com/mikesmullin/slack/pkg/bridge"
	"github.com/mikesmullin/slack/pkg/cache"
	"github.com/mikesmullin/slack/pkg/config"
	"github.com/mikesmullin/slack/pkg/logger"
	"github.com/mikesmullin/slack/pkg/store"
)

// DefaultConfigPath is the config file expected in the working
// directory, matching where the watch rules live.
const DefaultConfigPath = "config.yaml"

// ConfigPath is set by the root command's --config flag.
var ConfigPath = DefaultConfigPath

var (
	version   = "dev"
	gitCommit string
	buildTime string
	goVersion string
)

// LoadConfig reads the config file and initializes logging from it.
func LoadConfig() (*config.Config, error) {
	cfg, err := config.Load(ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}
	logger.Init(logger.Options{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Service: "slack-chat",
	})
	return cfg, nil
}

// App bundles the shared backends most commands need.
type App struct {
	Config   *config.Config
	Store    *store.Store
	Cache    *cache.Cache
	Client   *bridge.Client
	Resolver *bridge.Resolver
}

// NewApp loads config and wires storage, cache, and bridge access.
func NewApp() (*App, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	st := store.New(cfg.Storage.Dir)
	ca := cache.New(st.CacheDir())
	client := bridge.NewClient(cfg.Server.URL)
	return &App{
		Config:   cfg,
		Store:    st,
		Cache:    ca,
		Client:   client,
		Resolver: &bridge.Resolver{Client: client, Cache: ca},
	}, nil
}

// FormatVersion returns the version string with optional git commit
func FormatVersion() string {
	v := version
	if gitCommit != "" {
		v += fmt.Sprintf(" (git: %s)", gitCommit)
	}
	return v
}

// FormatBuildInfo returns build time and go version info
func FormatBuildInfo() (string, string) {
	build := buildTime
	goVer := goVersion
	if goVer == "" {
		goVer = runtime.Version()
	}
	return build, goVer
}

// GetVersion returns the version string
func GetVersion() string {
	return version
}
