package config_test

import (
	"testing"

	"github.com/ark-network/watchtower/internal/config"
	"github.com/ark-network/watchtower/internal/core/domain"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func runWithFlags(t *testing.T, args ...string) (*config.Config, error) {
	t.Helper()
	var cfg *config.Config
	var cfgErr error

	app := &cli.App{
		Name:  "watchtower",
		Flags: config.Flags,
		Action: func(c *cli.Context) error {
			cfg, cfgErr = config.FromCLI(c)
			return nil
		},
	}
	require.NoError(t, app.Run(append([]string{"watchtower"}, args...)))
	return cfg, cfgErr
}

func TestFromCLIDefaultsEnableBitcoinTestnetAndTape(t *testing.T) {
	cfg, err := runWithFlags(t)
	require.NoError(t, err)

	ids := make(map[domain.NetworkID]bool)
	for _, n := range cfg.Networks {
		ids[n.ID] = true
	}
	require.True(t, ids[domain.Bitcoin])
	require.True(t, ids[domain.Testnet])
	require.True(t, ids[domain.Tape])
	require.False(t, ids[domain.Regtest])
	require.False(t, cfg.WithCommitments)
}

func TestFromCLIDisableFlagsRemoveNetworks(t *testing.T) {
	cfg, err := runWithFlags(t, "--disable-bitcoin", "--disable-tape")
	require.NoError(t, err)

	require.Len(t, cfg.Networks, 1)
	require.Equal(t, domain.Testnet, cfg.Networks[0].ID)
}

func TestFromCLIEnableRegtestUsesGivenURL(t *testing.T) {
	cfg, err := runWithFlags(t, "--enable-regtest", "http://localhost:3000")
	require.NoError(t, err)

	var found bool
	for _, n := range cfg.Networks {
		if n.ID == domain.Regtest {
			found = true
			require.Equal(t, "http://localhost:3000", n.BaseURL)
		}
	}
	require.True(t, found)
}

func TestFromCLIRejectsAllNetworksDisabled(t *testing.T) {
	_, err := runWithFlags(t, "--disable-bitcoin", "--disable-testnet", "--disable-tape")
	require.Error(t, err)
}

func TestFromCLIWithCommitmentsFlag(t *testing.T) {
	cfg, err := runWithFlags(t, "--with-commitments")
	require.NoError(t, err)
	require.True(t, cfg.WithCommitments)
}

func TestFromCLIPortAndDbFolder(t *testing.T) {
	cfg, err := runWithFlags(t, "--port", "8080", "--db-folder", "/tmp/wt")
	require.NoError(t, err)
	require.EqualValues(t, 8080, cfg.Port)
	require.Equal(t, "/tmp/wt", cfg.DbFolder)
}
