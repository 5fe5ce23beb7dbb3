package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
log_level: debug
persist_batch_size: 25
snapshot_check_period: 5s
genesis:
  owner: "0x0000000000000000000000000000000000000001"
  token:
    name: Fee Token
    symbol: FEE
    currency: USD
    decimals: 2
  collector:
    address: "0x00000000000000000000000000000000000000fe"
    bound_token: "0x00000000000000000000000000000000000000ff"
    from_whitelist: ["0x000000000000000000000000000000000000000a"]
    to_whitelist: []
    collectors:
      - address: "0x000000000000000000000000000000000000000c"
        weight: 60
    fee_numerator: 3
    fee_denominator: 200
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "feeledger.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	t.Setenv("FEE_PERSIST_BATCH_SIZE", "7")
	t.Setenv("FEE_GRPC_ADDR", ":19090")

	cfg, err := LoadConfig(viper.New(), writeConfig(t, testConfig))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 7, cfg.PersistBatchSize, "environment beats the file")
	assert.Equal(t, ":19090", cfg.GRPCAddr)
	assert.Equal(t, ":8080", cfg.HTTPAddr, "default")
	assert.Equal(t, 5*time.Second, cfg.SnapshotCheckPeriod)
	assert.Equal(t, 10*time.Millisecond, cfg.PersistFlushTimeout)
	require.Len(t, cfg.Genesis.Collector.Collectors, 1)
	assert.Equal(t, uint64(60), cfg.Genesis.Collector.Collectors[0].Weight)
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 50, cfg.PersistBatchSize)
	assert.Equal(t, int64(100_000), cfg.SnapshotInterval)
}

func TestLoadConfig_GenesisFromEnv(t *testing.T) {
	t.Setenv("FEE_GENESIS_OWNER", "0x0000000000000000000000000000000000000009")
	t.Setenv("FEE_GENESIS_COLLECTOR_FEE_NUMERATOR", "5")

	cfg, err := LoadConfig(viper.New(), writeConfig(t, testConfig))
	require.NoError(t, err)
	assert.Equal(t, "0x0000000000000000000000000000000000000009", cfg.Genesis.Owner)
	assert.Equal(t, uint64(5), cfg.Genesis.Collector.FeeNumerator)
	assert.Equal(t, uint64(200), cfg.Genesis.Collector.FeeDenominator, "file value kept")
	assert.Equal(t, "FEE", cfg.Genesis.Token.Symbol)
}

func TestLoadConfig_RejectsBadBatchSize(t *testing.T) {
	t.Setenv("FEE_PERSIST_BATCH_SIZE", "0")
	_, err := LoadConfig(viper.New(), "")
	require.Error(t, err)
}

func TestCoreGenesis(t *testing.T) {
	cfg, err := LoadConfig(viper.New(), writeConfig(t, testConfig))
	require.NoError(t, err)

	g, err := cfg.Genesis.CoreGenesis()
	require.NoError(t, err)

	owner := common.HexToAddress("0x01")
	assert.Equal(t, owner, g.Owner)
	assert.Equal(t, owner, g.Pauser, "pauser defaults to the owner")
	require.NotNil(t, g.Metadata)
	assert.Equal(t, uint8(2), g.Metadata.Decimals)
	assert.Equal(t, common.HexToAddress("0xfe"), g.Collector.Address)
	assert.Equal(t, common.HexToAddress("0xff"), g.Collector.Token)
	assert.Equal(t, []common.Address{common.HexToAddress("0x0a")}, g.Collector.FromWhitelist)
	assert.Empty(t, g.Collector.ToWhitelist)
	assert.Equal(t, []common.Address{common.HexToAddress("0x0c")}, g.Collector.Collectors)
	assert.Equal(t, []uint64{60}, g.Collector.CollectorRatios)
	assert.Equal(t, uint64(3), g.Collector.FeeNumerator)
	assert.Equal(t, uint64(200), g.Collector.FeeDenominator)
}

func TestCoreGenesis_UninitializedWithoutCollector(t *testing.T) {
	g, err := GenesisConfig{Owner: "0x0000000000000000000000000000000000000001"}.CoreGenesis()
	require.NoError(t, err)
	assert.Nil(t, g.Metadata)
	assert.Equal(t, common.Address{}, g.Collector.Address)
}

func TestCoreGenesis_InvalidAddress(t *testing.T) {
	_, err := GenesisConfig{Owner: "alice"}.CoreGenesis()
	require.ErrorContains(t, err, "genesis.owner")

	_, err = GenesisConfig{
		Owner: "0x0000000000000000000000000000000000000001",
		Collector: CollectorConfig{
			Address:    "0x00000000000000000000000000000000000000fe",
			Collectors: []CollectorWeight{{Address: "0x12", Weight: 1}},
		},
	}.CoreGenesis()
	require.ErrorContains(t, err, "collectors[0]")
}

func TestVersionCommand(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "state schema v2")
}
