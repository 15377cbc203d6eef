package config

import (
	"fmt"
	"time"

	"github.com/ark-network/watchtower/internal/core/domain"
	"github.com/urfave/cli/v2"
)

const (
	defaultPort            = 0
	defaultDbFolder        = "./db"
	defaultNetworkInterval = 60 * time.Second
	regtestInterval        = 30 * time.Second
)

// NetworkConfig is the resolved configuration for one enabled network.
type NetworkConfig struct {
	ID       domain.NetworkID
	BaseURL  string // empty means use the chain client's compiled-in default
	Interval time.Duration
}

// Config is the fully-resolved, validated process configuration built
// from CLI flags.
type Config struct {
	Port            uint32
	DbFolder        string
	WithCommitments bool
	Networks        []NetworkConfig
}

var (
	PortFlag = &cli.UintFlag{
		Name:  "port",
		Usage: "HTTP port to listen on, 0 for a random port",
		Value: defaultPort,
	}
	DbFolderFlag = &cli.StringFlag{
		Name:  "db-folder",
		Usage: "folder holding the per-network sqlite files",
		Value: defaultDbFolder,
	}
	DisableBitcoinFlag = &cli.BoolFlag{
		Name:  "disable-bitcoin",
		Usage: "disable monitoring of the bitcoin mainnet",
	}
	DisableTestnetFlag = &cli.BoolFlag{
		Name:  "disable-testnet",
		Usage: "disable monitoring of testnet",
	}
	DisableTapeFlag = &cli.BoolFlag{
		Name:  "disable-tape",
		Usage: "disable monitoring of tape",
	}
	EnableRegtestFlag = &cli.StringFlag{
		Name:  "enable-regtest",
		Usage: "enable monitoring of regtest against the given Esplora-compatible URL",
	}
	WithCommitmentsFlag = &cli.BoolFlag{
		Name:  "with-commitments",
		Usage: "require and verify commitment authorization on registration",
	}
)

// Flags is the full set of flags consumed by FromCLI, exported so
// cmd/watchtower can wire them into the urfave/cli app.
var Flags = []cli.Flag{
	PortFlag, DbFolderFlag, DisableBitcoinFlag, DisableTestnetFlag,
	DisableTapeFlag, EnableRegtestFlag, WithCommitmentsFlag,
}

// FromCLI builds and validates a Config from parsed flags. At least one
// network must end up enabled, or startup fails.
func FromCLI(c *cli.Context) (*Config, error) {
	cfg := &Config{
		Port:            uint32(c.Uint(PortFlag.Name)),
		DbFolder:        c.String(DbFolderFlag.Name),
		WithCommitments: c.Bool(WithCommitmentsFlag.Name),
	}

	if !c.Bool(DisableBitcoinFlag.Name) {
		cfg.Networks = append(cfg.Networks, NetworkConfig{ID: domain.Bitcoin, Interval: defaultNetworkInterval})
	}
	if !c.Bool(DisableTestnetFlag.Name) {
		cfg.Networks = append(cfg.Networks, NetworkConfig{ID: domain.Testnet, Interval: defaultNetworkInterval})
	}
	if !c.Bool(DisableTapeFlag.Name) {
		cfg.Networks = append(cfg.Networks, NetworkConfig{ID: domain.Tape, Interval: defaultNetworkInterval})
	}
	if url := c.String(EnableRegtestFlag.Name); url != "" {
		cfg.Networks = append(cfg.Networks, NetworkConfig{ID: domain.Regtest, BaseURL: url, Interval: regtestInterval})
	}

	if len(cfg.Networks) == 0 {
		return nil, fmt.Errorf("at least one network must be enabled")
	}

	return cfg, nil
}
