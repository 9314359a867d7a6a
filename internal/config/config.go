package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const (
	// ListeningPortKey is the port where the HTTP and WebSocket interfaces
	// listen on
	ListeningPortKey = "LISTENING_PORT"
	// LogLevelKey are the different logging levels. For reference on the values https://godoc.org/github.com/sirupsen/logrus#Level
	LogLevelKey = "LOG_LEVEL"
	// DatadirKey is the local data directory to store the internal state of daemon
	DatadirKey = "DATADIR"
	// NoPersistenceKey makes the daemon keep the instrument catalog in memory
	NoPersistenceKey = "NO_PERSISTENCE"
	// PriceSourceKey is the upstream price source, either "simulated" or
	// "kraken"
	PriceSourceKey = "PRICE_SOURCE"
	// SimulatedInstrumentsKey is the list of instruments of the simulated
	// price source
	SimulatedInstrumentsKey = "SIMULATED_INSTRUMENTS"
	// SimulatedIntervalKey is the interval in milliseconds between two
	// simulated prices
	SimulatedIntervalKey = "SIMULATED_INTERVAL"
	// KrakenRestURLKey is the base url of the kraken REST api
	KrakenRestURLKey = "KRAKEN_REST_URL"
	// KrakenWebSocketURLKey is the url of the kraken websocket api
	KrakenWebSocketURLKey = "KRAKEN_WS_URL"
	// KrakenRequestTimeoutKey are the milliseconds to wait for kraken REST
	// responses before timeouts
	KrakenRequestTimeoutKey = "KRAKEN_REQUEST_TIMEOUT"
	// KrakenRateLimitKey is the max number of REST requests per second
	KrakenRateLimitKey = "KRAKEN_RATE_LIMIT"
	// RegistryShardsKey is the number of shards of the subscriber registry
	RegistryShardsKey = "REGISTRY_SHARDS"
	// SendBufferSizeKey is the number of messages buffered for each client
	// before it's considered too slow and disconnected
	SendBufferSizeKey = "SEND_BUFFER_SIZE"
	// WriteTimeoutKey are the milliseconds to wait for a websocket write
	WriteTimeoutKey = "WRITE_TIMEOUT"
	// PongTimeoutKey are the milliseconds to wait for a client pong before
	// closing its connection
	PongTimeoutKey = "PONG_TIMEOUT"
	// MaxMessageSizeKey is the max size in bytes of a client message
	MaxMessageSizeKey = "MAX_MESSAGE_SIZE"
	// AllowedOriginsKey is the list of origins allowed to open a websocket
	AllowedOriginsKey = "ALLOWED_ORIGINS"
	// EnableProfilerKey enables profiler that can be used to investigate performance issues
	EnableProfilerKey = "ENABLE_PROFILER"
	// StatsIntervalKey defines interval in seconds for printing basic statistics
	StatsIntervalKey = "STATS_INTERVAL"

	PriceSourceSimulated = "simulated"
	PriceSourceKraken    = "kraken"

	envFile = ".env"
)

var vip *viper.Viper
var defaultDatadir = btcutil.AppDataDir("tdex-pricestream", false)

func InitConfig() error {
	// Values from the environment always win over those in the .env file.
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("error while loading %s file: %s", envFile, err)
		}
		log.Debugf("loaded config from %s file", envFile)
	}

	vip = viper.New()
	vip.SetEnvPrefix("PRICESTREAM")
	vip.AutomaticEnv()

	vip.SetDefault(ListeningPortKey, 8080)
	vip.SetDefault(LogLevelKey, 4)
	vip.SetDefault(DatadirKey, defaultDatadir)
	vip.SetDefault(NoPersistenceKey, false)
	vip.SetDefault(PriceSourceKey, PriceSourceSimulated)
	vip.SetDefault(SimulatedInstrumentsKey, "EURUSD,GBPUSD,USDJPY,XBTUSD")
	vip.SetDefault(SimulatedIntervalKey, 1000)
	vip.SetDefault(KrakenRestURLKey, "https://api.kraken.com")
	vip.SetDefault(KrakenWebSocketURLKey, "wss://ws.kraken.com")
	vip.SetDefault(KrakenRequestTimeoutKey, 15000)
	vip.SetDefault(KrakenRateLimitKey, 1)
	vip.SetDefault(RegistryShardsKey, 64)
	vip.SetDefault(SendBufferSizeKey, 256)
	vip.SetDefault(WriteTimeoutKey, 5000)
	vip.SetDefault(PongTimeoutKey, 60000)
	vip.SetDefault(MaxMessageSizeKey, 4096)
	vip.SetDefault(AllowedOriginsKey, "")
	vip.SetDefault(EnableProfilerKey, false)
	vip.SetDefault(StatsIntervalKey, 600)

	if err := validate(); err != nil {
		return fmt.Errorf("error while validating config: %s", err)
	}

	if err := initDatadir(); err != nil {
		return fmt.Errorf("error while creating datadir: %s", err)
	}

	return nil
}

func GetString(key string) string {
	return vip.GetString(key)
}

func GetInt(key string) int {
	return vip.GetInt(key)
}

func GetBool(key string) bool {
	return vip.GetBool(key)
}

// GetStringSlice returns the comma separated list of the given key, without
// empty entries.
func GetStringSlice(key string) []string {
	list := make([]string, 0)
	for _, v := range strings.Split(vip.GetString(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			list = append(list, v)
		}
	}
	return list
}

// GetDuration returns the value of the given key, expressed in the given unit.
func GetDuration(key string, unit time.Duration) time.Duration {
	return time.Duration(vip.GetInt64(key)) * unit
}

// GetDatadir returns the datadir, or an empty string if persistence is
// disabled.
func GetDatadir() string {
	if GetBool(NoPersistenceKey) {
		return ""
	}
	return GetString(DatadirKey)
}

func validate() error {
	if !GetBool(NoPersistenceKey) && len(GetString(DatadirKey)) <= 0 {
		return fmt.Errorf("missing datadir")
	}

	port := GetInt(ListeningPortKey)
	if port <= 0 || port > 65535 {
		return fmt.Errorf("%s must be a valid port number", ListeningPortKey)
	}

	switch source := GetString(PriceSourceKey); source {
	case PriceSourceSimulated:
		if len(GetStringSlice(SimulatedInstrumentsKey)) <= 0 {
			return fmt.Errorf("%s must not be empty", SimulatedInstrumentsKey)
		}
		if GetInt(SimulatedIntervalKey) <= 0 {
			return fmt.Errorf("%s must be greater than 0", SimulatedIntervalKey)
		}
	case PriceSourceKraken:
		if GetString(KrakenRestURLKey) == "" || GetString(KrakenWebSocketURLKey) == "" {
			return fmt.Errorf("kraken price source requires both REST and websocket urls")
		}
		if GetInt(KrakenRateLimitKey) <= 0 {
			return fmt.Errorf("%s must be greater than 0", KrakenRateLimitKey)
		}
	default:
		return fmt.Errorf(
			"unknown price source %s, must be either %s or %s",
			source, PriceSourceSimulated, PriceSourceKraken,
		)
	}

	positiveKeys := []string{
		RegistryShardsKey, SendBufferSizeKey, WriteTimeoutKey, PongTimeoutKey,
		MaxMessageSizeKey,
	}
	for _, key := range positiveKeys {
		if GetInt(key) <= 0 {
			return fmt.Errorf("%s must be greater than 0", key)
		}
	}

	if GetBool(EnableProfilerKey) && GetInt(StatsIntervalKey) <= 0 {
		return fmt.Errorf("%s must be greater than 0", StatsIntervalKey)
	}

	return nil
}

func initDatadir() error {
	datadir := GetDatadir()
	if datadir == "" {
		return nil
	}
	return makeDirectoryIfNotExists(datadir)
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0755)
	}
	return nil
}
