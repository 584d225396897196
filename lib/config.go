package lib

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/alecthomas/units"
)

/* This file implements the user-controlled global configuration of each module of the validator core */

const (
	ConfigFilePath = "config.json"
	ValKeyPath     = "val_key.json"
	NodeKeyPath    = "node_key.json"
)

// DefaultDataDirPath mirrors the teacher's lib.DefaultDataDirPath: the
// node's working directory when none is given on the command line.
func DefaultDataDirPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".tari-dan")
}

// Config composes every module's sub-config into a single user-facing struct.
type Config struct {
	MainConfig
	ConsensusConfig
	PoolConfig
	SubstateConfig
	CrossShardConfig
}

func DefaultConfig() Config {
	return Config{
		MainConfig:        DefaultMainConfig(),
		ConsensusConfig:   DefaultConsensusConfig(),
		PoolConfig:        DefaultPoolConfig(),
		SubstateConfig:    DefaultSubstateConfig(),
		CrossShardConfig:  DefaultCrossShardConfig(),
	}
}

// WriteToFile persists the config as indented JSON, mirroring the
// teacher's lib.Config.WriteToFile.
func (c Config) WriteToFile(path string) error {
	bz, err := json.MarshalIndent(&c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, bz, 0644)
}

// ConfigFromFile reads back a Config written by WriteToFile.
func ConfigFromFile(path string) (Config, error) {
	var c Config
	bz, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	return c, json.Unmarshal(bz, &c)
}

// MAIN CONFIG BELOW

type MainConfig struct {
	LogLevel    string `json:"logLevel"`    // debug < info < warn < error
	DataDirPath string `json:"dataDirPath"` // root directory for the substate store, block store and logs
}

func DefaultMainConfig() MainConfig {
	return MainConfig{LogLevel: "info", DataDirPath: "./data"}
}

// GetLogLevel() parses the configured log level string into the Logger's level enum
func (m *MainConfig) GetLogLevel() int32 {
	switch {
	case strings.Contains(strings.ToLower(m.LogLevel), "deb"):
		return DebugLevel
	case strings.Contains(strings.ToLower(m.LogLevel), "war"):
		return WarnLevel
	case strings.Contains(strings.ToLower(m.LogLevel), "err"):
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// CONSENSUS CONFIG BELOW

// ConsensusConfig defines the per-phase timeouts and resource caps for the
// chained HotStuff pipeline.
// NOTE: BlockTime = ProposeTimeout + ProposeVoteTimeout + PrecommitTimeout + PrecommitVoteTimeout + CommitTimeout
type ConsensusConfig struct {
	ProposeTimeoutMS       int    `json:"proposeTimeoutMS"`       // time allotted to the leader to assemble and send a Proposal
	ProposeVoteTimeoutMS   int    `json:"proposeVoteTimeoutMS"`   // time allotted for replicas to validate and vote on a Proposal
	PrecommitTimeoutMS     int    `json:"precommitTimeoutMS"`     // time allotted for the leader to aggregate the Propose-vote QC
	PrecommitVoteTimeoutMS int    `json:"precommitVoteTimeoutMS"` // time allotted for replicas to lock and vote Precommit
	CommitTimeoutMS        int    `json:"commitTimeoutMS"`        // time allotted for the leader to aggregate the Precommit-vote QC and commit
	NewViewTimeoutMS       int    `json:"newViewTimeoutMS"`       // time allotted to wait for the next height's first message before pacemaker fallback
	MaxBlockCommands       int    `json:"maxBlockCommands"`       // resource cap: max commands per block, §5
	MaxBlockLeaderFee       uint64 `json:"maxBlockLeaderFee"`      // resource cap: max sum of per-atom leader fees per block, §5
	MaxProposalSizeBytes   int    `json:"maxProposalSizeBytes"`   // resource cap: max serialized proposal size, §5
	EvictionThreshold      uint64 `json:"evictionThreshold"`      // missed_proposals_capped threshold after which EvictNode becomes eligible, §4.4 (policy, see DESIGN.md Open Questions)
	MaxConcurrentVerifications int64 `json:"maxConcurrentVerifications"` // §5 bound on in-flight QC/vote signature verification jobs
}

func DefaultConsensusConfig() ConsensusConfig {
	return ConsensusConfig{
		ProposeTimeoutMS:       3000,
		ProposeVoteTimeoutMS:   2000,
		PrecommitTimeoutMS:     2000,
		PrecommitVoteTimeoutMS: 2000,
		CommitTimeoutMS:        2000,
		NewViewTimeoutMS:       12000,
		MaxBlockCommands:       5000,
		MaxBlockLeaderFee:      1_000_000_000,
		MaxProposalSizeBytes:   int(4 * units.MB),
		EvictionThreshold:      5,
		MaxConcurrentVerifications: 16,
	}
}

// BlockTimeMS() returns the expected block time assuming no round failures.
func (c *ConsensusConfig) BlockTimeMS() int {
	return c.ProposeTimeoutMS + c.ProposeVoteTimeoutMS + c.PrecommitTimeoutMS + c.PrecommitVoteTimeoutMS + c.CommitTimeoutMS
}

// POOL CONFIG BELOW

// PoolConfig bounds the transaction pool's memory footprint and per-block inclusion.
type PoolConfig struct {
	MaxPoolSize       int `json:"maxPoolSize"`       // maximum pooled entries before new submissions are rejected
	MaxReadySetSize   int `json:"maxReadySetSize"`   // §5 resource cap: excess ready transactions are deferred, never dropped
	MaxTxSizeBytes    int `json:"maxTxSizeBytes"`    // maximum size of a single transaction
}

func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxPoolSize:     200_000,
		MaxReadySetSize: 5_000,
		MaxTxSizeBytes:  int(64 * units.KB),
	}
}

// SUBSTATE CONFIG BELOW

type SubstateConfig struct {
	DataDirPath string `json:"substateDataDirPath"` // pebble directory for substates, locks and the state-transition log
}

func DefaultSubstateConfig() SubstateConfig {
	return SubstateConfig{DataDirPath: "./data/substate"}
}

// CROSS-SHARD CONFIG BELOW

// CrossShardConfig tunes the backoff used while parking on missing chain segments or transactions, §7.
type CrossShardConfig struct {
	RetryInitialMS int     `json:"retryInitialMS"`
	RetryMaxMS     int     `json:"retryMaxMS"`
	RetryMultiplier float64 `json:"retryMultiplier"`
}

func DefaultCrossShardConfig() CrossShardConfig {
	return CrossShardConfig{RetryInitialMS: 250, RetryMaxMS: 15_000, RetryMultiplier: 1.6}
}
