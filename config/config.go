// Package config holds the plain option structs that mirror §6's recognized
// configuration surface. Full configuration loading (files, CLI flags,
// validation UX) is explicitly out of scope for this repository; this
// package only supplies the minimal os.Getenv-based scaffolding every
// component needs in order to be constructed, in the spirit of
// node/cn/gen_config.go's plain option structs.
package config

import (
	"os"
	"strconv"
	"time"
)

// Chain holds the per-chain RPC and indexing tuning options.
type Chain struct {
	RPCURL                      string
	WSURL                       string
	ChainID                     uint64
	ChainName                   string
	BlockConfirmations          uint64
	IndexingBatchSize           int
	ConcurrentTransactionLimit  int
	MinConcurrentTransactionLimit int
	MaxConcurrentTransactionLimit int
	LatestBlockUpdateInterval   time.Duration
	ContinuousIndexingInterval  time.Duration
	RetryDelay                  time.Duration
	MaxRetries                  int
	HealthCheckInterval         time.Duration
}

// Redis holds the pub/sub transport options.
type Redis struct {
	Host     string
	Port     int
	Password string
	Username string
	TLS      bool
	Database int
	Channel  string
}

// DB holds the relational persistence options.
type DB struct {
	Host     string
	Port     int
	Username string
	Password string
	Name     string
	SSL      bool
	Logging  bool
}

// Asset describes one entry of a chain's per-asset LTV table (§6).
type Asset struct {
	Symbol    string
	Address   string
	Decimals  int
	LTVPercent float64
}

// Relayer holds the signer used for on-chain writes and the relayer
// contract addresses keyed by chain ID.
type Relayer struct {
	PrivateKeyHex string
	Contracts     map[uint64]string // chainID -> relayer contract address
	VaultHandler  map[uint64]string // chainID -> vault entry-point address
}

// Config is the top-level process configuration, assembled by Load.
type Config struct {
	Chains         []Chain
	Redis          Redis
	DB             DB
	Relayer        Relayer
	AlchemyAPIKey  string
	Assets         map[uint64][]Asset // chainID -> asset table
}

func getenvDefault(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return def
}

// LoadChain reads the single-chain RPC/indexing options recognized by §6
// from the process environment. Producer processes run one of these per
// configured chain.
func LoadChain() Chain {
	return Chain{
		RPCURL:                        getenvDefault("RPC_URL", ""),
		WSURL:                         getenvDefault("WS_URL", ""),
		ChainID:                       uint64(getenvInt("CHAIN_ID", 1)),
		ChainName:                     getenvDefault("CHAIN_NAME", "mainnet"),
		BlockConfirmations:            uint64(getenvInt("BLOCK_CONFIRMATIONS", 2)),
		IndexingBatchSize:             getenvInt("INDEXING_BATCH_SIZE", 15),
		ConcurrentTransactionLimit:    getenvInt("CONCURRENT_TRANSACTION_LIMIT", 10),
		MinConcurrentTransactionLimit: getenvInt("MIN_CONCURRENT_TRANSACTION_LIMIT", 2),
		MaxConcurrentTransactionLimit: getenvInt("MAX_CONCURRENT_TRANSACTION_LIMIT", 50),
		LatestBlockUpdateInterval:     getenvDuration("LATEST_BLOCK_UPDATE_INTERVAL_MS", 2*time.Second),
		ContinuousIndexingInterval:    getenvDuration("CONTINUOUS_INDEXING_INTERVAL_MS", 1*time.Second),
		RetryDelay:                    getenvDuration("RETRY_DELAY_MS", 500*time.Millisecond),
		MaxRetries:                    getenvInt("MAX_RETRIES", 5),
		HealthCheckInterval:           getenvDuration("HEALTH_CHECK_INTERVAL_MS", 60*time.Second),
	}
}

// LoadRedis reads the REDIS_* options recognized by §6.
func LoadRedis() Redis {
	return Redis{
		Host:     getenvDefault("REDIS_HOST", "127.0.0.1"),
		Port:     getenvInt("REDIS_PORT", 6379),
		Password: getenvDefault("REDIS_PASSWORD", ""),
		Username: getenvDefault("REDIS_USERNAME", ""),
		TLS:      getenvBool("REDIS_TLS", false),
		Database: getenvInt("REDIS_DATABASE", 0),
		Channel:  getenvDefault("REDIS_CHANNEL", "chain-events"),
	}
}

// LoadDB reads the DB_* options recognized by §6.
func LoadDB() DB {
	return DB{
		Host:     getenvDefault("DB_HOST", "127.0.0.1"),
		Port:     getenvInt("DB_PORT", 5432),
		Username: getenvDefault("DB_USERNAME", "postgres"),
		Password: getenvDefault("DB_PASSWORD", ""),
		Name:     getenvDefault("DB_NAME", "chainpipe"),
		SSL:      getenvBool("DB_SSL", false),
		Logging:  getenvBool("DB_LOGGING", false),
	}
}

// LoadRelayer reads PRIVATE_KEY; per-chain contract addresses are supplied
// by the embedding binary (they are not single flat env vars in §6).
func LoadRelayer() Relayer {
	return Relayer{
		PrivateKeyHex: getenvDefault("PRIVATE_KEY", ""),
		Contracts:     map[uint64]string{},
		VaultHandler:  map[uint64]string{},
	}
}
