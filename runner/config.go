package runner

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/Tpgainz/sirene-export/export"
	"github.com/Tpgainz/sirene-export/normalize"
	"github.com/Tpgainz/sirene-export/sirene"
)

// DefaultConfigFile is looked up next to the binary, then in the working
// directory.
const DefaultConfigFile = "configuration_json.txt"

const envPrefix = "SIRENE"

// ConfigurationError reports a missing or invalid configuration key. It is
// returned before any network call.
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Key, e.Reason)
}

type Config struct {
	RunMode    int    `mapstructure:"-"`
	Debug      bool   `mapstructure:"-"`
	Proxy      bool   `mapstructure:"-"`
	ConfigFile string `mapstructure:"-"`
	Date       string `mapstructure:"-"`

	ConsumerKey           string   `mapstructure:"consumer_key"`
	ConsumerSecret        string   `mapstructure:"consumer_secret"`
	EndpointToken         string   `mapstructure:"endpoint_token"`
	EndpointEtablissement string   `mapstructure:"endpoint_etablissement"`
	EndpointInformations  string   `mapstructure:"endpoint_informations"`
	HTTPProxy             string   `mapstructure:"http_proxy"`
	HTTPSProxy            string   `mapstructure:"https_proxy"`
	CSVFolder             string   `mapstructure:"csv_folder"`
	Prospects             []string `mapstructure:"prospects"`
	Delimiter             string   `mapstructure:"delimiter"`
	Encoding              string   `mapstructure:"encoding"`
	PageSize              int      `mapstructure:"page_size"`
	RequestsPerMinute     int      `mapstructure:"requests_per_minute"`
	OnRecordError         string   `mapstructure:"on_record_error"`

	PostgresDSN       string `mapstructure:"postgres_dsn"`
	LedgerPath        string `mapstructure:"ledger_path"`
	S3Bucket          string `mapstructure:"s3_bucket"`
	S3Prefix          string `mapstructure:"s3_prefix"`
	S3Region          string `mapstructure:"s3_region"`
	S3Endpoint        string `mapstructure:"s3_endpoint"`
	S3AccessKeyID     string `mapstructure:"s3_access_key_id"`
	S3SecretAccessKey string `mapstructure:"s3_secret_access_key"`
	AMQPURL           string `mapstructure:"amqp_url"`
	AMQPQueue         string `mapstructure:"amqp_queue"`
	CompletionURL     string `mapstructure:"completion_url"`
	PostHogAPIKey     string `mapstructure:"posthog_api_key"`
	PostHogEndpoint   string `mapstructure:"posthog_endpoint"`
	MetricsTextfile   string `mapstructure:"metrics_textfile"`
}

var configKeys = []string{
	"consumer_key", "consumer_secret",
	"endpoint_token", "endpoint_etablissement", "endpoint_informations",
	"http_proxy", "https_proxy",
	"csv_folder", "prospects",
	"delimiter", "encoding", "page_size", "requests_per_minute", "on_record_error",
	"postgres_dsn", "ledger_path",
	"s3_bucket", "s3_prefix", "s3_region", "s3_endpoint", "s3_access_key_id", "s3_secret_access_key",
	"amqp_url", "amqp_queue", "completion_url",
	"posthog_api_key", "posthog_endpoint",
	"metrics_textfile",
}

// Flags are the command line values that shape config loading.
type Flags struct {
	ConfigFile string
	Debug      bool
	Proxy      bool
	Date       string
	Input      string
}

func defaultConfigPath() string {
	if exe, err := os.Executable(); err == nil {
		p := filepath.Join(filepath.Dir(exe), DefaultConfigFile)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return DefaultConfigFile
}

// LoadConfig reads the JSON configuration document, then SIRENE_* environment
// overrides. A missing default file is not an error: every key can come from
// the environment.
func LoadConfig(runMode int, flags Flags) (*Config, error) {
	v := viper.New()

	v.SetDefault("delimiter", ";")
	v.SetDefault("encoding", string(export.UTF8))
	v.SetDefault("page_size", sirene.DefaultPageSize)
	v.SetDefault("requests_per_minute", 30)
	v.SetDefault("on_record_error", normalize.FailOnError.String())

	v.SetEnvPrefix(envPrefix)

	for _, key := range configKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("error binding %s: %w", key, err)
		}
	}

	path := flags.ConfigFile
	explicit := path != ""

	if !explicit {
		path = defaultConfigPath()
	}

	v.SetConfigFile(path)
	v.SetConfigType("json")

	if err := v.ReadInConfig(); err != nil {
		switch {
		case errors.Is(err, fs.ErrNotExist) && !explicit:
		case errors.Is(err, fs.ErrNotExist):
			return nil, &ConfigurationError{Key: path, Reason: "configuration file doesn't exist"}
		default:
			return nil, &ConfigurationError{Key: path, Reason: "invalid JSON configuration file: " + err.Error()}
		}
	}

	cfg := Config{}

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, &ConfigurationError{Key: path, Reason: err.Error()}
	}

	cfg.RunMode = runMode
	cfg.Debug = flags.Debug
	cfg.Proxy = flags.Proxy
	cfg.ConfigFile = path
	cfg.Date = flags.Date

	if flags.Input != "" {
		codes, err := readNAFFile(flags.Input)
		if err != nil {
			return nil, err
		}

		cfg.Prospects = codes
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readNAFFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ConfigurationError{Key: "input", Reason: err.Error()}
	}

	defer f.Close()

	codes, err := ReadNAFCodes(f)
	if err != nil {
		return nil, &ConfigurationError{Key: "input", Reason: err.Error()}
	}

	return codes, nil
}

// ReadNAFCodes reads one NAF code per line. Blank lines and lines starting
// with # are ignored.
func ReadNAFCodes(r io.Reader) ([]string, error) {
	var codes []string

	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		codes = append(codes, line)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return codes, nil
}

func missing(key, reason string) error {
	return &ConfigurationError{Key: key, Reason: reason}
}

// Validate checks the keys needed by the run mode.
func (c *Config) Validate() error {
	if c.Proxy && (c.HTTPProxy == "" || c.HTTPSProxy == "") {
		return missing("http_proxy/https_proxy", "proxies are not defined in the configuration file")
	}

	if c.ConsumerKey == "" || c.ConsumerSecret == "" {
		return missing("consumer_key/consumer_secret", "API credentials are not defined in the configuration file")
	}

	if c.EndpointToken == "" || c.EndpointEtablissement == "" || c.EndpointInformations == "" {
		return missing("endpoint_token/endpoint_etablissement/endpoint_informations",
			"API endpoints are not defined in the configuration file")
	}

	if c.RunMode == RunModeUpdates || c.RunMode == RunModeProspects || c.RunMode == RunModeAwsLambda {
		if c.CSVFolder == "" {
			return missing("csv_folder", "CSV folder is not defined in the configuration file")
		}
	}

	if c.RunMode == RunModeProspects && len(c.Prospects) == 0 {
		return missing("prospects", "Prospects NAF are not defined in the configuration file")
	}

	if c.Date != "" {
		if err := sirene.ValidateDate(c.Date); err != nil {
			return missing("date", err.Error())
		}
	}

	if _, err := export.ParseDelimiter(c.Delimiter); err != nil {
		return missing("delimiter", err.Error())
	}

	if _, err := export.ParseEncoding(c.Encoding); err != nil {
		return missing("encoding", err.Error())
	}

	if _, err := normalize.ParsePolicy(c.OnRecordError); err != nil {
		return missing("on_record_error", err.Error())
	}

	if c.PageSize < 1 {
		return missing("page_size", "must be greater than 0")
	}

	if c.RequestsPerMinute < 0 {
		return missing("requests_per_minute", "must not be negative")
	}

	return nil
}
