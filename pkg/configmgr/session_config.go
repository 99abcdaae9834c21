package configmgr

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/marcodd23/go-txsession/pkg/errorx"
)

// Connection handling values accepted by JdbcConfig.ConnectionHandling.
const (
	ConnectionHandlingAuto                        = "auto"
	ConnectionHandlingDelayedAcquisitionAndHold   = "delayed-acquisition-and-hold"
	ConnectionHandlingDelayedAfterStatement       = "delayed-acquisition-and-release-after-statement"
	ConnectionHandlingDelayedAfterTransaction     = "delayed-acquisition-and-release-after-transaction"
	ConnectionHandlingImmediateAcquisitionAndHold = "immediate-acquisition-and-hold"
	ConnectionHandlingImmediateAfterTransaction   = "immediate-acquisition-and-release-after-transaction"
)

// Transaction coordinator values accepted by TransactionConfig.Coordinator.
const (
	TransactionCoordinatorJdbc  = "jdbc"
	TransactionCoordinatorJta   = "jta"
	TransactionCoordinatorPlain = "plain"
)

// SessionConfig - configuration of a session factory.
// Expected YAML format:
/*
name: "orders"
environment: "development"
version: "1.0"
logging:
  level: "debug"
  showSql: true
database:
  host: localhost
  port: 5432
  dbName: orders
  user: postgres
  password: secret
  maxConn: 2
jdbc:
  batchSize: 20
  foregoBatching: true
  connectionHandling: auto
  generatedKeysEnabled: true
  scrollableResultSetsEnabled: false
  providerDisablesAutoCommit: false
  defaultTransactionTimeout: 0
transaction:
  coordinator: jdbc
  preferUserTransaction: true
  autoJoin: true
  trackCaller: true
*/
type SessionConfig struct {
	BaseConfig  `mapstructure:",squash"`
	Database    *DatabaseConfig    `mapstructure:"database"`
	Jdbc        *JdbcConfig        `mapstructure:"jdbc"`
	Transaction *TransactionConfig `mapstructure:"transaction"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int32  `mapstructure:"port" validate:"gte=0,lte=65535"`
	DBName   string `mapstructure:"dbName" validate:"required"`
	User     string `mapstructure:"user" validate:"required"`
	Password string `mapstructure:"password" validate:"required"`
	MaxConn  int32  `mapstructure:"maxConn" validate:"gte=0"`
}

type JdbcConfig struct {
	BatchSize                   int    `mapstructure:"batchSize" validate:"gte=0"`
	ForegoBatching              bool   `mapstructure:"foregoBatching"`
	ConnectionHandling          string `mapstructure:"connectionHandling" validate:"omitempty,oneof=auto delayed-acquisition-and-hold delayed-acquisition-and-release-after-statement delayed-acquisition-and-release-after-transaction immediate-acquisition-and-hold immediate-acquisition-and-release-after-transaction"`
	GeneratedKeysEnabled        bool   `mapstructure:"generatedKeysEnabled"`
	ScrollableResultSetsEnabled bool   `mapstructure:"scrollableResultSetsEnabled"`
	ProviderDisablesAutoCommit  bool   `mapstructure:"providerDisablesAutoCommit"`
	DefaultTransactionTimeout   int    `mapstructure:"defaultTransactionTimeout" validate:"gte=0"`
}

type TransactionConfig struct {
	Coordinator           string `mapstructure:"coordinator" validate:"omitempty,oneof=jdbc jta plain"`
	PreferUserTransaction bool   `mapstructure:"preferUserTransaction"`
	AutoJoin              bool   `mapstructure:"autoJoin"`
	TrackCaller           bool   `mapstructure:"trackCaller"`
}

// GetJdbcConfig returns the jdbc section, or its zero value when absent.
func (cfg SessionConfig) GetJdbcConfig() *JdbcConfig {
	if cfg.Jdbc == nil {
		return &JdbcConfig{ConnectionHandling: ConnectionHandlingAuto}
	}

	return cfg.Jdbc
}

// GetTransactionConfig returns the transaction section, defaulting to the jdbc coordinator.
func (cfg SessionConfig) GetTransactionConfig() *TransactionConfig {
	if cfg.Transaction == nil {
		return &TransactionConfig{Coordinator: TransactionCoordinatorJdbc, PreferUserTransaction: true, AutoJoin: true}
	}

	return cfg.Transaction
}

var validate = validator.New()

// Validate applies the `validate` struct tags of cfg.
// Validation failures are returned as *errorx.ConfigError.
func Validate(cfg any) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}

	configErr := &errorx.ConfigError{}
	for _, fieldErr := range validationErrors {
		configErr.Fields = append(configErr.Fields, errorx.ConfigFieldError{
			FailedField: fieldErr.StructNamespace(),
			Tag:         fieldErr.Tag(),
			Value:       fieldErr.Param(),
		})
	}

	return configErr
}
