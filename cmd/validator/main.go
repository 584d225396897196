package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/leet4tari/tari-dan/blockstore"
	"github.com/leet4tari/tari-dan/consensus"
	"github.com/leet4tari/tari-dan/crossshard"
	"github.com/leet4tari/tari-dan/epoch"
	"github.com/leet4tari/tari-dan/lib"
	"github.com/leet4tari/tari-dan/lib/crypto"
	"github.com/leet4tari/tari-dan/substate"
	"github.com/leet4tari/tari-dan/txpool"
)

/*
main is the minimal wiring example tying Engine, Pool, Store, Coordinator
and Oracle together into a runnable process, mirroring the shape of the
teacher's cmd/main.go Start()/InitializeDataDirectory() but without the
teacher's cobra subcommand tree or RPC server — both are named out-of-scope
collaborators (spec §1), so this entry point is a plain flag-parsed daemon
rather than a CLI framework.
*/

func main() {
	dataDir := flag.String("data-dir", "", "root directory for config, keys, and the consensus/substate/block stores")
	shardGroup := flag.Uint64("shard-group", 0, "this validator's shard group")
	flag.Parse()

	l := lib.NewDefaultLogger()
	cfg, key, singletonsDB := initializeDataDirectory(*dataDir, l)
	defer singletonsDB.Close()

	oracle := epoch.NewStaticOracle(lib.Committee{
		ShardGroup:       *shardGroup,
		PublicKeys:       [][]byte{key.PublicKey()},
		VotingPower:      []uint64{1},
		TotalVotingPower: 1,
		QuorumThreshold:  1,
	}, lib.HexBytes(key.PublicKey()))

	blocks, err := blockstore.Open(filepath.Join(cfg.MainConfig.DataDirPath, "blocks"))
	if err != nil {
		l.Fatalf("opening block store: %s", err.Error())
	}
	defer blocks.Close()

	sub, err := substate.Open(cfg.SubstateConfig.DataDirPath, crypto.DefaultHasher, l)
	if err != nil {
		l.Fatalf("opening substate store: %s", err.Error())
	}
	defer sub.Close()

	pool := txpool.NewPool(cfg.PoolConfig, l)
	verifier := crypto.NewBLSThresholdVerifier()
	cross := crossshard.NewCoordinator(oracle, verifier, pool, l)
	singletons := consensus.NewSingletonStore(singletonsDB)

	tree := substate.NewTree(crypto.DefaultHasher)
	ctrl := &nodeController{oracle: oracle, pool: pool, tree: tree, key: key, log: l}
	engine := consensus.NewEngine(cfg.ConsensusConfig, l, crypto.DefaultHasher, verifier, ctrl, blocks, pool, cross, singletons, sub, tree, *shardGroup)
	if err := engine.Hydrate(0); err != nil {
		l.Fatalf("hydrating safety state: %s", err.Error())
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)
	defer cancel()

	startView := engine.CurrentView()
	l.Infof("validator started, view %s", startView.String())
	if err := engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		l.Warnf("consensus task exited: %s", err.Error())
	}
}

// initializeDataDirectory mirrors the teacher's
// cmd.InitializeDataDirectory: ensure the data directory and config file
// exist, load or create the validator's signing key, and open the Badger
// database under <dataDir>/singletons that backs the consensus singleton
// store. Other stores are opened by the caller.
func initializeDataDirectory(dataDirPath string, log lib.LoggerI) (lib.Config, *crypto.PrivateKey, *badger.DB) {
	if dataDirPath == "" {
		dataDirPath = lib.DefaultDataDirPath()
	}
	log.Infof("using data directory %s", dataDirPath)
	if err := os.MkdirAll(dataDirPath, os.ModePerm); err != nil {
		log.Fatalf("creating data directory: %s", err.Error())
	}

	configPath := filepath.Join(dataDirPath, lib.ConfigFilePath)
	cfg, err := lib.ConfigFromFile(configPath)
	if errors.Is(err, os.ErrNotExist) {
		cfg = lib.DefaultConfig()
		cfg.MainConfig.DataDirPath = dataDirPath
		cfg.SubstateConfig.DataDirPath = filepath.Join(dataDirPath, "substate")
		if werr := cfg.WriteToFile(configPath); werr != nil {
			log.Fatalf("writing default config: %s", werr.Error())
		}
	} else if err != nil {
		log.Fatalf("reading config: %s", err.Error())
	}

	keyPath := filepath.Join(dataDirPath, lib.ValKeyPath)
	key, err := crypto.PrivateKeyFromFile(keyPath)
	if err != nil {
		key, err = crypto.NewBLSPrivateKey()
		if err != nil {
			log.Fatalf("generating validator key: %s", err.Error())
		}
		if werr := crypto.PrivateKeyToFile(key, keyPath); werr != nil {
			log.Fatalf("writing validator key: %s", werr.Error())
		}
	}

	singletonsDB, err := badger.Open(badger.DefaultOptions(filepath.Join(dataDirPath, "singletons")))
	if err != nil {
		log.Fatalf("opening singleton store: %s", err.Error())
	}
	return cfg, key, singletonsDB
}

// nodeController is the smallest possible consensus.Controller
// implementation: it signs with an in-process key, logs the root of the
// in-process substate.Tree on commit (the engine applies the diffs), and logs outbound messages
// instead of gossiping them (wire transport is out of scope, spec §1).
type nodeController struct {
	oracle epoch.Oracle
	pool   *txpool.Pool
	tree   *substate.Tree
	key    *crypto.PrivateKey
	log    lib.LoggerI
}

func (c *nodeController) Oracle() epoch.Oracle { return c.oracle }

func (c *nodeController) ExecuteBlock(block *lib.Block) (substate.Diff, lib.ErrorI) {
	c.log.Debugf("executing block at height %d", block.Header.Height)
	return substate.Diff{}, nil
}

func (c *nodeController) CommitBlock(block *lib.Block) lib.ErrorI {
	c.log.Infof("committed block %x at height %d, state root %x", block.Hash(), block.Header.Height, c.tree.Root())
	return nil
}

func (c *nodeController) SendProposal(msg *lib.ProposalMessage) {
	c.log.Debugf("-> proposal for height %d", msg.Block.Header.Height)
}
func (c *nodeController) SendVote(msg *lib.VoteMessage) {
	c.log.Debugf("-> vote %s for %x", msg.View.Phase, msg.HeaderHash)
}
func (c *nodeController) SendNewView(msg *lib.NewViewMessage) {
	c.log.Debugf("-> new-view for %s", msg.View.String())
}
func (c *nodeController) RequestMissingTransactions(req *lib.MissingTransactionsRequest) {
	c.log.Debugf("-> requesting %d missing transactions for block %x", len(req.TxIDs), req.BlockID)
}

func (c *nodeController) PublicKey() []byte { return c.key.PublicKey() }

func (c *nodeController) Sign(msg []byte) (lib.HexBytes, lib.ErrorI) {
	sig, err := c.key.Sign(msg)
	if err != nil {
		return nil, lib.NewError(lib.CodeInvalidSignature, lib.ConsensusModule, err.Error())
	}
	return sig, nil
}
