package params

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Fairness holds the weights and thresholds of the priority score formula.
// All amounts are in asset base units, matching order amounts.
type Fairness struct {
	RetailCeiling          int64 // orders below this size earn the retail boost
	RetailWeightLend       int64
	RetailWeightBorrow     int64
	RetailCapMax           int64 // combined retail boost ceiling
	DiversityBonus         int64 // distinct counterparties
	PriorityBonus          int64 // either side vesting/priority eligible
	ConcentrationThreshold int64 // combined volume above this is penalized
	ConcentrationStep      int64
	ConcentrationCapMax    int64
}

type Attest struct {
	// PrivateKeySeedHex is the 32-byte Ed25519 seed, hex encoded. Empty means
	// the enclave boundary is unprovisioned and every sign attempt fails.
	PrivateKeySeedHex string
	SignTimeout       time.Duration
}

type Oracle struct {
	RedisAddr     string // empty disables the redis oracle
	RedisPassword string
	RedisDB       int
	MaxQuoteAge   time.Duration
}

type Node struct {
	ListenAddr string
	DataDir    string // pebble archive location, empty disables persistence
}

type Config struct {
	Fairness Fairness
	Attest   Attest
	Oracle   Oracle
	Node     Node
}

func Default() Config {
	return Config{
		Fairness: Fairness{
			RetailCeiling:          10_000,
			RetailWeightLend:       20,
			RetailWeightBorrow:     10,
			RetailCapMax:           30,
			DiversityBonus:         15,
			PriorityBonus:          25,
			ConcentrationThreshold: 100_000,
			ConcentrationStep:      10_000,
			ConcentrationCapMax:    20,
		},
		Attest: Attest{
			SignTimeout: 2 * time.Second,
		},
		Oracle: Oracle{
			MaxQuoteAge: 30 * time.Second,
		},
		Node: Node{
			ListenAddr: ":8080",
			DataDir:    "data/fairlend",
		},
	}
}

// LoadFromEnv loads configuration from a .env file (if present) and
// environment variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	cfg.Fairness.RetailCeiling = envInt64("FAIRNESS_RETAIL_CEILING", cfg.Fairness.RetailCeiling)
	cfg.Fairness.RetailWeightLend = envInt64("FAIRNESS_RETAIL_WEIGHT_LEND", cfg.Fairness.RetailWeightLend)
	cfg.Fairness.RetailWeightBorrow = envInt64("FAIRNESS_RETAIL_WEIGHT_BORROW", cfg.Fairness.RetailWeightBorrow)
	cfg.Fairness.RetailCapMax = envInt64("FAIRNESS_RETAIL_CAP_MAX", cfg.Fairness.RetailCapMax)
	cfg.Fairness.DiversityBonus = envInt64("FAIRNESS_DIVERSITY_BONUS", cfg.Fairness.DiversityBonus)
	cfg.Fairness.PriorityBonus = envInt64("FAIRNESS_PRIORITY_BONUS", cfg.Fairness.PriorityBonus)
	cfg.Fairness.ConcentrationThreshold = envInt64("FAIRNESS_CONCENTRATION_THRESHOLD", cfg.Fairness.ConcentrationThreshold)
	cfg.Fairness.ConcentrationStep = envInt64("FAIRNESS_CONCENTRATION_STEP", cfg.Fairness.ConcentrationStep)
	cfg.Fairness.ConcentrationCapMax = envInt64("FAIRNESS_CONCENTRATION_CAP_MAX", cfg.Fairness.ConcentrationCapMax)

	if seed := os.Getenv("ATTEST_KEY_SEED"); seed != "" {
		cfg.Attest.PrivateKeySeedHex = seed
	}
	if ms := envInt64("ATTEST_SIGN_TIMEOUT_MS", 0); ms > 0 {
		cfg.Attest.SignTimeout = time.Duration(ms) * time.Millisecond
	}

	if addr := os.Getenv("ORACLE_REDIS_ADDR"); addr != "" {
		cfg.Oracle.RedisAddr = addr
	}
	if pw := os.Getenv("ORACLE_REDIS_PASSWORD"); pw != "" {
		cfg.Oracle.RedisPassword = pw
	}
	cfg.Oracle.RedisDB = int(envInt64("ORACLE_REDIS_DB", int64(cfg.Oracle.RedisDB)))
	if ms := envInt64("ORACLE_MAX_QUOTE_AGE_MS", 0); ms > 0 {
		cfg.Oracle.MaxQuoteAge = time.Duration(ms) * time.Millisecond
	}

	if addr := os.Getenv("NODE_LISTEN_ADDR"); addr != "" {
		cfg.Node.ListenAddr = addr
	}
	if dir := os.Getenv("NODE_DATA_DIR"); dir != "" {
		cfg.Node.DataDir = dir
	}

	return cfg
}

func envInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}
