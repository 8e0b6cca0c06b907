// Command consumer runs C2/C3: one MessageBus subscriber that normalizes
// every message (pipeline.Decode), folds ERC721 Transfer logs into the
// ownership MerkleEngine and folds vault/relayer logs into the collateral
// Ledger. Grounded on cmd/producer/main.go's urfave/cli App/Flags/Action
// shape and wired against this repository's own store/relayer/oracle
// packages rather than the producer's indexer-specific ones.
package main

import (
	"context"
	"math/big"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	gethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/postgres"
	"github.com/urfave/cli"

	"github.com/chainpipe/chainpipe/bus"
	"github.com/chainpipe/chainpipe/config"
	"github.com/chainpipe/chainpipe/ledger"
	ledgerstore "github.com/chainpipe/chainpipe/ledger/store"
	"github.com/chainpipe/chainpipe/logging"
	"github.com/chainpipe/chainpipe/oracle"
	"github.com/chainpipe/chainpipe/ownership"
	ownershipstore "github.com/chainpipe/chainpipe/ownership/store"
	"github.com/chainpipe/chainpipe/pipeline"
	"github.com/chainpipe/chainpipe/relayer"
)

var logger = logging.Named("cmd.consumer")

func main() {
	app := cli.NewApp()
	app.Name = "consumer"
	app.Usage = "react to chain-events messages: maintain ownership Merkle roots and the collateral ledger"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "dsn", Usage: "postgres DSN override; defaults to DB_* env vars"},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		logger.Fatalw("consumer exited with error", "err", err)
	}
}

func run(c *cli.Context) error {
	dbCfg := config.LoadDB()
	dsn := c.String("dsn")
	if dsn == "" {
		dsn = postgresDSN(dbCfg)
	}
	db, err := gorm.Open("postgres", dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	db.LogMode(dbCfg.Logging)

	ownershipStore := ownershipstore.NewGormStore(db)
	if err := ownershipStore.Migrate(); err != nil {
		return err
	}
	ledgerStore := ledgerstore.NewGormStore(db)
	if err := ledgerStore.Migrate(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	chains, err := loadChainBindings(ctx)
	if err != nil {
		return err
	}

	relayerClient := relayer.New()
	var chainIDs []uint64
	ledgerChains := make(map[uint64]ledger.ChainConfig)
	pools := make(map[string]ledger.LendingPool)
	for _, cb := range chains {
		relayerClient.RegisterChain(cb.chainID, cb.backend, cb.opts, cb.relayerAddr, cb.vaultHandlerAddr)
		chainIDs = append(chainIDs, cb.chainID)
		ledgerChains[cb.chainID] = ledger.ChainConfig{
			VaultHandler: cb.vaultHandlerAddr,
			AssetLTV:     cb.assetLTV,
		}
		for protocol, poolAddr := range cb.lendingPools {
			pools[protocol] = ledger.NewEVMLendingPool(cb.backend, poolAddr)
		}
	}

	engine := ownership.New(ownershipStore, relayerClient, chainIDs, nil)
	if err := engine.Load(ctx); err != nil {
		return err
	}

	priceOracle, err := oracle.NewCachingOracle(oracle.NewAlchemyQuoter(alchemyAPIKey(), ""), 30*time.Second, 1024)
	if err != nil {
		return err
	}

	l := ledger.New(ledgerStore, engine, relayerClient, priceOracle, pools, ledgerChains)
	engine.SetDepositLookup(l)

	subscriber := bus.NewSubscriber(config.LoadRedis())
	if err := subscriber.Connect(); err != nil {
		return err
	}

	handler := func(msg pipeline.BlockchainMessage, variant pipeline.Variant) {
		handleMessage(ctx, engine, l, msg)
	}
	redisCfg := config.LoadRedis()
	if err := subscriber.Subscribe(redisCfg.Channel, handler); err != nil {
		return err
	}

	if err := l.ProcessPendingRequests(ctx); err != nil {
		logger.Errorw("startup pending-request sweep failed", "err", err)
	}

	logger.Infow("consumer started", "channel", redisCfg.Channel, "chains", chainIDs)
	waitForShutdown()
	return subscriber.Unsubscribe()
}

// handleMessage implements the §4.9/§4.8 per-message fan-out: every matched
// log is tried as an ERC721 Transfer (folded into the ownership engine), and
// then the whole message is handed to the Ledger, which decodes its vault
// and relayer logs. Per §7, a single log's
// decode/processing failure is logged and does not stop the rest of the
// message or subsequent messages.
func handleMessage(ctx context.Context, engine *ownership.Engine, l *ledger.Ledger, msg pipeline.BlockchainMessage) {
	tx := msg.Transaction
	for _, log := range tx.Logs {
		transfer, ok, err := ownership.DecodeTransfer(tx.ChainID, tx, log)
		if err != nil {
			logger.Errorw("transfer decode failed", "tx", tx.Hash, "err", err)
			continue
		}
		if ok {
			if err := engine.OnTransfer(ctx, transfer); err != nil {
				logger.Errorw("ownership transfer processing failed", "tx", tx.Hash, "err", err)
			}
		}
	}
	l.HandleMessage(ctx, msg)
}

// chainBinding is this command's view of one configured chain: enough to
// register a relayer.Client binding, a Ledger ChainConfig and any lending
// pools that report utilization for protocols active on that chain.
type chainBinding struct {
	chainID          uint64
	backend          bind.ContractBackend
	opts             *bind.TransactOpts
	relayerAddr      gethcommon.Address
	vaultHandlerAddr gethcommon.Address
	assetLTV         map[string]float64
	lendingPools     map[string]gethcommon.Address // protocol address (lowercase) -> pool contract
}

// loadChainBindings reads the consumer's multi-chain wiring from the
// process environment. §6 states a single-chain RPC_URL/CHAIN_ID pair plus
// a PRIVATE_KEY signer and a per-chain asset table; this repository's
// consumer must additionally reach every chain with a configured relayer
// (§4.8 step 5) or vault handler (§4.9's completeWithdraw), so CHAIN_IDS is
// this command's extension point for that multi-chain list, with each
// chain's RPC endpoint and contract addresses keyed by suffix.
//
//	CHAIN_IDS=1,137
//	RPC_URL_1, RELAYER_CONTRACT_1, VAULT_HANDLER_1, ASSET_LTV_1="0xabc:75,0xdef:50"
//	LENDING_POOLS_1="0xprotocolA:0xpoolA,0xprotocolB:0xpoolB"
func loadChainBindings(ctx context.Context) ([]chainBinding, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(getenv("PRIVATE_KEY", ""), "0x"))
	if err != nil {
		return nil, err
	}

	ids := strings.Split(getenv("CHAIN_IDS", getenv("CHAIN_ID", "1")), ",")
	bindings := make([]chainBinding, 0, len(ids))
	for _, idStr := range ids {
		idStr = strings.TrimSpace(idStr)
		if idStr == "" {
			continue
		}
		chainID, err := strconv.ParseUint(idStr, 10, 64)
		if err != nil {
			return nil, err
		}

		rpcURL := getenv("RPC_URL_"+idStr, getenv("RPC_URL", ""))
		eth, err := ethclient.DialContext(ctx, rpcURL)
		if err != nil {
			return nil, err
		}

		signer, err := bind.NewKeyedTransactorWithChainID(privateKey, new(big.Int).SetUint64(chainID))
		if err != nil {
			return nil, err
		}

		bindings = append(bindings, chainBinding{
			chainID:          chainID,
			backend:          eth,
			opts:             signer,
			relayerAddr:      gethcommon.HexToAddress(getenv("RELAYER_CONTRACT_"+idStr, "")),
			vaultHandlerAddr: gethcommon.HexToAddress(getenv("VAULT_HANDLER_"+idStr, "")),
			assetLTV:         parseAssetLTV(getenv("ASSET_LTV_"+idStr, "")),
			lendingPools:     parseLendingPools(getenv("LENDING_POOLS_"+idStr, "")),
		})
	}
	return bindings, nil
}

// parseAssetLTV parses "addr:percent,addr:percent" into the lowercased
// address -> percent map ledger.ChainConfig.AssetLTV expects. An unparsable
// entry is skipped and logged rather than failing startup, consistent with
// §9's "missing LTV is zero-LTV, never invented" stance: skipping is
// indistinguishable from a genuinely absent entry.
func parseAssetLTV(raw string) map[string]float64 {
	out := make(map[string]float64)
	for _, pair := range splitNonEmpty(raw, ",") {
		kv := strings.SplitN(pair, ":", 2)
		if len(kv) != 2 {
			logger.Warnw("skipping malformed ASSET_LTV entry", "entry", pair)
			continue
		}
		percent, err := strconv.ParseFloat(strings.TrimSpace(kv[1]), 64)
		if err != nil {
			logger.Warnw("skipping malformed ASSET_LTV entry", "entry", pair, "err", err)
			continue
		}
		out[strings.ToLower(gethcommon.HexToAddress(strings.TrimSpace(kv[0])).Hex())] = percent
	}
	return out
}

// parseLendingPools parses "protocolAddr:poolAddr,..." into the lowercased
// protocol-address -> pool-contract-address map used to build
// ledger.LendingPool bindings.
func parseLendingPools(raw string) map[string]gethcommon.Address {
	out := make(map[string]gethcommon.Address)
	for _, pair := range splitNonEmpty(raw, ",") {
		kv := strings.SplitN(pair, ":", 2)
		if len(kv) != 2 {
			logger.Warnw("skipping malformed LENDING_POOLS entry", "entry", pair)
			continue
		}
		protocol := strings.ToLower(gethcommon.HexToAddress(strings.TrimSpace(kv[0])).Hex())
		out[protocol] = gethcommon.HexToAddress(strings.TrimSpace(kv[1]))
	}
	return out
}

func splitNonEmpty(raw, sep string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(raw, sep) {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

func getenv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func alchemyAPIKey() string {
	return getenv("ALCHEMY_API_KEY", "")
}

func postgresDSN(cfg config.DB) string {
	ssl := "disable"
	if cfg.SSL {
		ssl = "require"
	}
	return "host=" + cfg.Host +
		" port=" + strconv.Itoa(cfg.Port) +
		" user=" + cfg.Username +
		" password=" + cfg.Password +
		" dbname=" + cfg.Name +
		" sslmode=" + ssl
}

func waitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
}
