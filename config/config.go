package config

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/zalando/replicator"
	"github.com/zalando/replicator/replication"
	"github.com/zalando/replicator/store"
)

const (
	storePasswordEnv = "REPLICATOR_STORE_PASSWORD"

	defaultStoreDB = "rack-request-replication"

	deprecatedUsage = "*Deprecated*: use %s instead"
)

type Config struct {
	ConfigFile string
	Flags      *flag.FlagSet

	// generic:
	Address         string        `yaml:"address"`
	PrimaryBackend  string        `yaml:"primary-backend"`
	SupportListener string        `yaml:"support-listener"`
	ShutdownTimeout time.Duration `yaml:"shutdown-timeout"`

	// replication:
	DestinationHost      string        `yaml:"host"`
	DestinationPort      int           `yaml:"port"`
	DestinationInsecure  bool          `yaml:"insecure"`
	SessionKey           string        `yaml:"session-key"`
	ReplicationWorkers   int           `yaml:"replication-workers"`
	ReplicationQueueSize int           `yaml:"replication-queue-size"`
	ReplicationTimeout   time.Duration `yaml:"replication-timeout"`
	MaxRequestBody       int64         `yaml:"max-request-body"`
	MaxResponseBody      int64         `yaml:"max-response-body"`

	// store:
	StoreKindString      string        `yaml:"store"`
	StoreKind            store.Kind    `yaml:"-"`
	StoreHost            string        `yaml:"store-host"`
	StorePort            int           `yaml:"store-port"`
	StoreDB              string        `yaml:"store-db"`
	StoreUsername        string        `yaml:"store-username"`
	StorePassword        string        `yaml:"store-password"`
	StoreTimeout         time.Duration `yaml:"store-timeout"`
	StoreMetricsInterval time.Duration `yaml:"store-conn-metrics-interval"`
	RedisDB              string        `yaml:"redis-db"`

	// logging, metrics:
	ApplicationLogLevel          log.Level `yaml:"-"`
	ApplicationLogLevelString    string    `yaml:"application-log-level"`
	ApplicationLogPrefix         string    `yaml:"application-log-prefix"`
	ApplicationLogJSONEnabled    bool      `yaml:"application-log-json-enabled"`
	AccessLogDisabled            bool      `yaml:"access-log-disabled"`
	AccessLogJSONEnabled         bool      `yaml:"access-log-json-enabled"`
	MetricsFlavour               *listFlag `yaml:"metrics-flavour"`
	MetricsPrefix                string    `yaml:"metrics-prefix"`
	RuntimeMetrics               bool      `yaml:"runtime-metrics"`
	DebugGcMetrics               bool      `yaml:"debug-gc-metrics"`
	MetricsUseExpDecaySample     bool      `yaml:"metrics-exp-decay-sample"`
	HistogramMetricBuckets       []float64 `yaml:"-"`
	HistogramMetricBucketsString string    `yaml:"histogram-metric-buckets"`
}

func NewConfig() *Config {
	cfg := new(Config)
	cfg.MetricsFlavour = commaListFlag("codahale", "prometheus")

	flag := flag.NewFlagSet("", flag.ExitOnError)
	flag.StringVar(&cfg.ConfigFile, "config-file", "", "if provided the flags will be loaded/overwritten by the values on the file (yaml)")

	// generic:
	flag.StringVar(&cfg.Address, "address", ":9090", "network address that the replicator should listen on")
	flag.StringVar(&cfg.PrimaryBackend, "primary-backend", "http://localhost:3000", "URL of the primary application, its responses are returned to the clients")
	flag.StringVar(&cfg.SupportListener, "support-listener", ":9911", "network address used for exposing the /metrics and /healthz endpoints. An empty value disables support endpoint.")
	flag.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", 10*time.Second, "maximum time to wait for in-flight requests and queued replications on shutdown")

	// replication:
	flag.StringVar(&cfg.DestinationHost, "host", replication.DefaultHost, "host of the destination the requests are replicated to")
	flag.IntVar(&cfg.DestinationPort, "port", replication.DefaultPort, "port of the destination the requests are replicated to")
	flag.BoolVar(&cfg.DestinationInsecure, "insecure", false, "flag indicating to ignore the verification of the TLS certificates of the destination")
	flag.StringVar(&cfg.SessionKey, "session-key", replication.DefaultSessionKey, "name of the session cookie of the primary application")
	flag.IntVar(&cfg.ReplicationWorkers, "replication-workers", replication.DefaultWorkers, "number of concurrent replications")
	flag.IntVar(&cfg.ReplicationQueueSize, "replication-queue-size", replication.DefaultQueueSize, "number of replications waiting for a worker, more are dropped")
	flag.DurationVar(&cfg.ReplicationTimeout, "replication-timeout", replication.DefaultTimeout, "timeout of a single replication including the store calls")
	flag.Int64Var(&cfg.MaxRequestBody, "max-request-body", replication.DefaultMaxRequestBody, "maximum form body read from the original request")
	flag.Int64Var(&cfg.MaxResponseBody, "max-response-body", replication.DefaultMaxResponseBody, "maximum destination response body scanned for the CSRF token")

	// store:
	flag.StringVar(&cfg.StoreKindString, "store", string(store.RedisKind), "store of the cookie jars and the CSRF tokens, one of redis, valkey or memory")
	flag.StringVar(&cfg.StoreHost, "store-host", "localhost", "host of the store server")
	flag.IntVar(&cfg.StorePort, "store-port", 6379, "port of the store server")
	flag.StringVar(&cfg.StoreDB, "store-db", defaultStoreDB, "database index of the store, a non numeric value is used as key namespace in database 0")
	flag.StringVar(&cfg.StoreUsername, "store-username", "", "username of the store server")
	flag.StringVar(&cfg.StorePassword, "store-password", "", "password of the store server, can be set by the "+storePasswordEnv+" environment variable")
	flag.DurationVar(&cfg.StoreTimeout, "store-timeout", 250*time.Millisecond, "dial, read and write timeout of the store client")
	flag.DurationVar(&cfg.StoreMetricsInterval, "store-conn-metrics-interval", 60*time.Second, "interval of the store connection pool metrics update")
	flag.StringVar(&cfg.RedisDB, "redis-db", "", fmt.Sprintf(deprecatedUsage, "-store-db"))

	// logging, metrics:
	flag.StringVar(&cfg.ApplicationLogLevelString, "application-log-level", "INFO", "log level for application logs, possible values: PANIC, FATAL, ERROR, WARN, INFO, DEBUG")
	flag.StringVar(&cfg.ApplicationLogPrefix, "application-log-prefix", "[APP]", "prefix for each log entry")
	flag.BoolVar(&cfg.ApplicationLogJSONEnabled, "application-log-json-enabled", false, "when this flag is set, log in JSON format is used")
	flag.BoolVar(&cfg.AccessLogDisabled, "access-log-disabled", false, "when this flag is set, no access log is printed")
	flag.BoolVar(&cfg.AccessLogJSONEnabled, "access-log-json-enabled", false, "when this flag is set, log in JSON format is used")
	flag.Var(cfg.MetricsFlavour, "metrics-flavour", "Metrics flavour is used to change the exposed metrics format. Supported metric formats: 'codahale' and 'prometheus', you can select both of them")
	flag.StringVar(&cfg.MetricsPrefix, "metrics-prefix", "replicator.", "allows setting a custom path prefix for the metrics")
	flag.BoolVar(&cfg.RuntimeMetrics, "runtime-metrics", true, "enables reporting the Go runtime statistics")
	flag.BoolVar(&cfg.DebugGcMetrics, "debug-gc-metrics", false, "enables reporting of the Go garbage collector statistics exported in debug.GCStats")
	flag.BoolVar(&cfg.MetricsUseExpDecaySample, "metrics-exp-decay-sample", false, "use exponentially decaying sample in metrics")
	flag.StringVar(&cfg.HistogramMetricBucketsString, "histogram-metric-buckets", "", "use custom buckets for prometheus histograms, must be a comma-separated list of numbers")

	cfg.Flags = flag
	return cfg
}

func validate(c *Config) error {
	_, err := log.ParseLevel(c.ApplicationLogLevelString)
	if err != nil {
		return err
	}
	_, err = store.ParseKind(c.StoreKindString)
	if err != nil {
		return err
	}
	if c.DestinationHost == "" {
		return fmt.Errorf("invalid destination host: empty")
	}
	if c.DestinationPort <= 0 || c.DestinationPort > 65535 {
		return fmt.Errorf("invalid destination port: %d", c.DestinationPort)
	}
	if c.StorePort <= 0 || c.StorePort > 65535 {
		return fmt.Errorf("invalid store port: %d", c.StorePort)
	}
	if c.ReplicationWorkers <= 0 {
		return fmt.Errorf("invalid replication workers: %d", c.ReplicationWorkers)
	}
	if c.ReplicationQueueSize < 0 {
		return fmt.Errorf("invalid replication queue size: %d", c.ReplicationQueueSize)
	}
	_, err = c.parseHistogramBuckets()
	return err
}

func (c *Config) Parse() error {
	return c.ParseArgs(os.Args[0], os.Args[1:])
}

func (c *Config) ParseArgs(progname string, args []string) error {
	c.Flags.Init(progname, flag.ExitOnError)
	err := c.Flags.Parse(args)
	if err != nil {
		return err
	}

	// check if arguments were correctly parsed.
	if len(c.Flags.Args()) != 0 {
		return fmt.Errorf("invalid arguments: %s", c.Flags.Args())
	}

	configKeys := make(map[string]interface{})
	if c.ConfigFile != "" {
		yamlFile, err := os.ReadFile(c.ConfigFile)
		if err != nil {
			return fmt.Errorf("invalid config file: %w", err)
		}

		err = yaml.Unmarshal(yamlFile, c)
		if err != nil {
			return fmt.Errorf("unmarshalling config file error: %w", err)
		}

		_ = yaml.Unmarshal(yamlFile, configKeys)

		err = c.Flags.Parse(args)
		if err != nil {
			return err
		}
	}

	c.checkDeprecated(configKeys, "redis-db")
	if c.RedisDB != "" && !c.isSet(configKeys, "store-db") {
		c.StoreDB = c.RedisDB
	}

	if err := validate(c); err != nil {
		return err
	}

	c.ApplicationLogLevel, _ = log.ParseLevel(c.ApplicationLogLevelString)
	c.StoreKind, _ = store.ParseKind(c.StoreKindString)
	c.HistogramMetricBuckets, _ = c.parseHistogramBuckets()

	c.parseEnv()
	return nil
}

func (c *Config) ToOptions() replicator.Options {
	return replicator.Options{
		// generic:
		Address:         c.Address,
		PrimaryBackend:  c.PrimaryBackend,
		SupportListener: c.SupportListener,
		ShutdownTimeout: c.ShutdownTimeout,

		// replication:
		DestinationHost:      c.DestinationHost,
		DestinationPort:      c.DestinationPort,
		DestinationInsecure:  c.DestinationInsecure,
		SessionKey:           c.SessionKey,
		ReplicationWorkers:   c.ReplicationWorkers,
		ReplicationQueueSize: c.ReplicationQueueSize,
		ReplicationTimeout:   c.ReplicationTimeout,
		MaxRequestBody:       c.MaxRequestBody,
		MaxResponseBody:      c.MaxResponseBody,

		// store:
		StoreKind:            c.StoreKind,
		StoreHost:            c.StoreHost,
		StorePort:            c.StorePort,
		StoreDB:              c.StoreDB,
		StoreUsername:        c.StoreUsername,
		StorePassword:        c.StorePassword,
		StoreTimeout:         c.StoreTimeout,
		StoreMetricsInterval: c.StoreMetricsInterval,

		// logging, metrics:
		ApplicationLogLevel:       c.ApplicationLogLevel,
		ApplicationLogPrefix:      c.ApplicationLogPrefix,
		ApplicationLogJSONEnabled: c.ApplicationLogJSONEnabled,
		AccessLogDisabled:         c.AccessLogDisabled,
		AccessLogJSONEnabled:      c.AccessLogJSONEnabled,
		MetricsFlavours:           c.MetricsFlavour.values,
		MetricsPrefix:             c.MetricsPrefix,
		EnableRuntimeMetrics:      c.RuntimeMetrics,
		EnableDebugGcMetrics:      c.DebugGcMetrics,
		MetricsUseExpDecaySample:  c.MetricsUseExpDecaySample,
		HistogramMetricBuckets:    c.HistogramMetricBuckets,
	}
}

func (c *Config) parseHistogramBuckets() ([]float64, error) {
	if c.HistogramMetricBucketsString == "" {
		return prometheus.DefBuckets, nil
	}

	var result []float64
	thresholds := strings.Split(c.HistogramMetricBucketsString, ",")
	for _, v := range thresholds {
		bucket, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("unable to parse histogram-metric-buckets: %w", err)
		}
		result = append(result, bucket)
	}
	sort.Float64s(result)
	return result, nil
}

func (c *Config) parseEnv() {
	// Set store password from environment variable if not set earlier (flag or configuration file)
	if c.StorePassword == "" {
		c.StorePassword = os.Getenv(storePasswordEnv)
	}
}

func (c *Config) isSet(configKeys map[string]interface{}, name string) bool {
	if _, ok := configKeys[name]; ok {
		return true
	}

	set := false
	c.Flags.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func (c *Config) checkDeprecated(configKeys map[string]interface{}, options ...string) {
	for _, name := range options {
		if c.isSet(configKeys, name) {
			f := c.Flags.Lookup(name)
			log.Warnf("%s: %s", f.Name, f.Usage)
		}
	}
}
