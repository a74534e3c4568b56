package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ardanlabs/conf"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tbd54566975/ssi-wallet/internal/util"
)

const (
	DefaultConfigPath = "config/config.toml"
	ConfigFileName    = "config.toml"
	ConfigExtension   = ".toml"
	ServiceName       = "ssi-wallet"
	ServiceVersion    = "0.1.0"

	// EnvPrefix prefixes every environment variable override, e.g. WALLET_STORAGE_PROVIDER.
	EnvPrefix = "WALLET"

	DefaultEnvFile = ".env"
)

type EnvironmentVariable string

const (
	ConfigPath EnvironmentVariable = "CONFIG_PATH"
)

func (e EnvironmentVariable) String() string {
	return string(e)
}

// WalletConfig is the configuration of a wallet instance and the wallet CLI.
type WalletConfig struct {
	conf.Version
	Wallet  WalletSection `toml:"wallet"`
	Storage StorageConfig `toml:"storage"`
	DID     DIDConfig     `toml:"did"`
	HTTP    HTTPConfig    `toml:"http"`

	// Args are the positional command line arguments left after flags.
	Args conf.Args `toml:"-"`
}

// WalletSection holds wallet wide settings.
type WalletSection struct {
	LogLocation string `toml:"log_location" conf:"default:log"`
	LogLevel    string `toml:"log_level" conf:"default:info"`
	// ClientID and RedirectURI identify the wallet to authorization servers in the authorization code flow.
	ClientID    string `toml:"client_id" conf:"default:ssi-wallet"`
	RedirectURI string `toml:"redirect_uri" conf:"default:http://localhost:8765/callback" validate:"omitempty,url"`
	// KeyID is the key issued credentials are bound to. A new key is created when empty.
	KeyID                string `toml:"key_id"`
	DisableVCProofChecks bool   `toml:"disable_vc_proof_checks"`
	JaegerHost           string `toml:"jaeger_host" conf:"default:http://localhost:14268/api/traces"`
	JaegerEnabled        bool   `toml:"jaeger_enabled" conf:"default:false"`
}

// StorageConfig selects and configures the storage provider.
type StorageConfig struct {
	Provider      string `toml:"provider" conf:"default:bolt" validate:"required,oneof=bolt redis memory"`
	BoltPath      string `toml:"bolt_path" conf:"default:wallet.db"`
	RedisAddress  string `toml:"redis_address"`
	RedisPassword string `toml:"redis_password" conf:"noprint"`
	// EncryptionPassword derives the key that encrypts everything the wallet stores. Storage is left unencrypted
	// when empty.
	EncryptionPassword string `toml:"encryption_password" conf:"noprint"`
}

// DIDConfig configures DID resolution.
type DIDConfig struct {
	ResolutionMethods []string      `toml:"resolution_methods" conf:"default:key;jwk;web" validate:"required,min=1"`
	CacheTTL          time.Duration `toml:"cache_ttl" conf:"default:15m"`
}

// HTTPConfig configures the client used to reach issuers and did:web hosts.
type HTTPConfig struct {
	Timeout    time.Duration `toml:"timeout" conf:"default:30s"`
	MaxRetries uint64        `toml:"max_retries" conf:"default:3"`
}

// LoadConfig builds the config from defaults, a .env file, WALLET_ environment variables and args, then overlays
// the TOML file at path if one is given. A nil config and no error means help or version output was printed.
func LoadConfig(path string, args []string) (*WalletConfig, error) {
	if path != "" && filepath.Ext(path) != ConfigExtension {
		return nil, fmt.Errorf("path<%s> did not match the expected TOML format", path)
	}
	if err := loadEnvFile(DefaultEnvFile); err != nil {
		return nil, err
	}

	config := WalletConfig{Version: conf.Version{SVN: ServiceVersion, Desc: "SSI wallet"}}
	if err := conf.Parse(args, EnvPrefix, &config); err != nil {
		switch {
		case errors.Is(err, conf.ErrHelpWanted):
			usage, err := conf.Usage(EnvPrefix, &config)
			if err != nil {
				return nil, errors.Wrap(err, "parsing config")
			}
			fmt.Println(usage)
			return nil, nil

		case errors.Is(err, conf.ErrVersionWanted):
			version, err := conf.VersionString(EnvPrefix, &config)
			if err != nil {
				return nil, errors.Wrap(err, "generating config version")
			}
			fmt.Println(version)
			return nil, nil
		}
		return nil, errors.Wrap(err, "parsing config")
	}

	if path == "" {
		logrus.Info("no config path provided, using defaults")
	} else if _, err := toml.DecodeFile(path, &config); err != nil {
		return nil, errors.Wrapf(err, "could not load config: %s", path)
	}

	if err := util.IsValidStruct(&config); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	if config.Storage.Provider == "redis" && config.Storage.RedisAddress == "" {
		return nil, errors.New("redis storage requires redis_address")
	}
	return &config, nil
}

// loadEnvFile exports the variables of a dotenv file that are not already set. A missing file is fine.
func loadEnvFile(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return errors.Wrapf(err, "loading env file: %s", path)
	}
	return nil
}
