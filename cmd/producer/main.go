// Command producer runs C1: one ChainClient/Indexer pair per configured
// chain, tailing new blocks, extracting topic-matched logs and publishing
// normalized messages to the MessageBus. Grounded on cmd/kcn/main.go's
// urfave/cli App/Flags/Action shape, adapted from a full node's flag surface
// down to this repository's env-driven Config loaders.
package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/postgres"
	"github.com/urfave/cli"

	"github.com/chainpipe/chainpipe/bus"
	"github.com/chainpipe/chainpipe/chain"
	"github.com/chainpipe/chainpipe/chain/topics"
	"github.com/chainpipe/chainpipe/config"
	"github.com/chainpipe/chainpipe/indexer"
	indexerstore "github.com/chainpipe/chainpipe/indexer/store"
	"github.com/chainpipe/chainpipe/ledger"
	"github.com/chainpipe/chainpipe/logging"
	"github.com/chainpipe/chainpipe/ownership"
)

var logger = logging.Named("cmd.producer")

func main() {
	app := cli.NewApp()
	app.Name = "producer"
	app.Usage = "tail EVM chains and publish topic-matched events"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "dsn", Usage: "postgres DSN override; defaults to DB_* env vars"},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		logger.Fatalw("producer exited with error", "err", err)
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

	ledgerStore := indexerstore.NewGormBlockLedger(db)
	if err := ledgerStore.Migrate(); err != nil {
		return err
	}

	chainCfg := config.LoadChain()
	redisCfg := config.LoadRedis()

	publisher := bus.NewPublisher(redisCfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := publisher.Connect(ctx); err != nil {
		return err
	}

	client, err := chain.Dial(ctx, chainCfg.ChainID, chainCfg.RPCURL, chainCfg.WSURL)
	if err != nil {
		return err
	}
	defer client.Close()

	matcher := defaultMatcher()

	cache := chain.NewTxCache(20000)
	limiter := indexer.NewAdaptiveLimiter(
		chainCfg.ConcurrentTransactionLimit,
		chainCfg.MinConcurrentTransactionLimit,
		chainCfg.MaxConcurrentTransactionLimit,
		20, 30*time.Second, "producer.concurrency.limit",
	)
	processor := indexer.NewBlockProcessor(client, cache, limiter)

	ixCfg := indexer.Config{
		ChainName:                  chainCfg.ChainName,
		BlockConfirmations:         chainCfg.BlockConfirmations,
		BatchSize:                  chainCfg.IndexingBatchSize,
		LatestBlockUpdateInterval:  chainCfg.LatestBlockUpdateInterval,
		ContinuousIndexingInterval: chainCfg.ContinuousIndexingInterval,
		HealthCheckInterval:        chainCfg.HealthCheckInterval,
	}
	ix := indexer.New(chainCfg.ChainID, ixCfg, client, publisher, ledgerStore, processor, matcher)
	if err := ix.Start(ctx); err != nil {
		return err
	}

	logger.Infow("producer started", "chain", chainCfg.ChainID, "name", chainCfg.ChainName)
	waitForShutdownOrResume(ix, chainCfg.ChainID)
	ix.Stop()
	return publisher.Disconnect()
}

// defaultMatcher seeds the TopicMatcher with every event signature this
// repository's consumer understands (§4.9/§4.8): the vault, relayer and
// ERC721 Transfer topics. Contract-address scoping is left to live
// TopicFilter management (§4.3) once deployment addresses are known.
func defaultMatcher() *topics.Matcher {
	m := topics.New()
	for _, f := range []topics.Filter{
		{Hash: ledger.DepositTopic0, Description: "Deposit"},
		{Hash: ledger.WithdrawRequestTopic0, Description: "WithdrawRequest"},
		{Hash: ledger.WithdrawTopic0, Description: "Withdraw"},
		{Hash: ledger.CollateralRequestTopic0, Description: "CollateralRequest"},
		{Hash: ledger.CollateralProcessTopic0, Description: "CollateralProcess"},
		{Hash: ledger.RepayTopic0, Description: "Repay"},
		{Hash: ownership.TransferTopic0, Description: "Transfer"},
	} {
		m.Add(f)
	}
	return m
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

// waitForShutdownOrResume blocks until SIGINT/SIGTERM, treating SIGHUP along
// the way as the operator's "external intervention" signal (§4.6) to resume
// an indexer that paused itself on an unbounded reorg.
func waitForShutdownOrResume(ix *indexer.Indexer, chainID uint64) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	for sig := range sigCh {
		if sig == syscall.SIGHUP {
			logger.Infow("SIGHUP received, resuming indexer", "chain", chainID)
			ix.Resume()
			continue
		}
		return
	}
}
