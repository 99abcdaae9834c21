package configmgr_test

import (
	"os"
	"testing"

	"github.com/marcodd23/go-txsession/pkg/configmgr"
	"github.com/marcodd23/go-txsession/pkg/errorx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Shared configuration content
var configContent = `
name: "TestApp"
environment: "development"
version: "latest"
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
  batchSize: 3
  foregoBatching: true
  connectionHandling: delayed-acquisition-and-release-after-statement
  generatedKeysEnabled: true
transaction:
  coordinator: jta
  preferUserTransaction: false
  autoJoin: true
  trackCaller: true
`

func createTestConfigFile(t *testing.T, content string) string {
	file, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatalf("Failed to create temp config file: %v", err)
	}
	defer file.Close()

	_, err = file.WriteString(content)
	if err != nil {
		t.Fatalf("Failed to write to temp config file: %v", err)
	}

	return file.Name()
}

func TestLoadConfigFromFile(t *testing.T) {
	configFilePath := createTestConfigFile(t, configContent)
	defer os.Remove(configFilePath)

	cfg, err := configmgr.LoadSessionConfig(configFilePath)
	require.NoError(t, err)
	assert.Equal(t, "TestApp", cfg.GetServiceName())
	assert.Equal(t, "development", cfg.GetEnvironment())
	assert.True(t, cfg.IsLocalEnvironment())
	assert.Equal(t, "debug", cfg.GetLoggingConfig().Level)
	assert.True(t, cfg.GetLoggingConfig().ShowSql)

	require.NotNil(t, cfg.Database)
	assert.Equal(t, "orders", cfg.Database.DBName)
	assert.Equal(t, int32(5432), cfg.Database.Port)

	jdbc := cfg.GetJdbcConfig()
	assert.Equal(t, 3, jdbc.BatchSize)
	assert.True(t, jdbc.ForegoBatching)
	assert.True(t, jdbc.GeneratedKeysEnabled)
	assert.Equal(t, configmgr.ConnectionHandlingDelayedAfterStatement, jdbc.ConnectionHandling)

	tx := cfg.GetTransactionConfig()
	assert.Equal(t, configmgr.TransactionCoordinatorJta, tx.Coordinator)
	assert.False(t, tx.PreferUserTransaction)
	assert.True(t, tx.AutoJoin)
	assert.True(t, tx.TrackCaller)
}

func TestEnvVariableOverridesConfig(t *testing.T) {
	configFilePath := createTestConfigFile(t, configContent)
	defer os.Remove(configFilePath)

	t.Setenv("JDBC_BATCHSIZE", "50")

	cfg, err := configmgr.LoadSessionConfig(configFilePath)
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.GetJdbcConfig().BatchSize)
	assert.Equal(t, "TestApp", cfg.GetServiceName())
}

func TestDefaultsWhenSectionsAreMissing(t *testing.T) {
	configFilePath := createTestConfigFile(t, "name: \"Minimal\"\n")
	defer os.Remove(configFilePath)

	cfg, err := configmgr.LoadSessionConfig(configFilePath)
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.GetLoggingConfig().Level)
	assert.Equal(t, configmgr.ConnectionHandlingAuto, cfg.GetJdbcConfig().ConnectionHandling)
	assert.Equal(t, configmgr.TransactionCoordinatorJdbc, cfg.GetTransactionConfig().Coordinator)
	assert.True(t, cfg.GetTransactionConfig().AutoJoin)
}

func TestValidationRejectsUnknownValues(t *testing.T) {
	configFilePath := createTestConfigFile(t, `
name: "Broken"
jdbc:
  batchSize: -1
  connectionHandling: sometimes
transaction:
  coordinator: xa
`)
	defer os.Remove(configFilePath)

	_, err := configmgr.LoadSessionConfig(configFilePath)
	require.Error(t, err)

	var configErr *errorx.ConfigError
	require.ErrorAs(t, err, &configErr)
	assert.Len(t, configErr.Fields, 3)
	assert.Contains(t, err.Error(), "SessionConfig.Jdbc.BatchSize")
	assert.Contains(t, err.Error(), "oneof")
}
