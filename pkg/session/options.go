package session

import (
	"time"

	"github.com/marcodd23/go-txsession/pkg/configmgr"
	"github.com/marcodd23/go-txsession/pkg/observer"
)

// StatementInspector may rewrite SQL before it is prepared. An empty result keeps the original SQL.
type StatementInspector interface {
	Inspect(sql string) string
}

// StatementInspectorFunc adapts a function to StatementInspector.
type StatementInspectorFunc func(sql string) string

func (f StatementInspectorFunc) Inspect(sql string) string {
	return f(sql)
}

// Options - settings shared by every session of a Factory.
//
// Fields:
//   - BatchSize: statements accumulated before a batch executes implicitly. Below 2 disables batching.
//   - ForegoBatching: never batch statements whose expectation cannot be batched.
//   - ConnectionHandling: handling mode name, "auto" or empty for the coordinator default.
//   - GeneratedKeysEnabled: allow preparing statements that return generated keys.
//   - ScrollableResultSetsEnabled: allow preparing scrollable queries.
//   - ProviderDisablesAutoCommit: provider connections are already in manual commit mode.
//   - DefaultTransactionTimeout: transaction timeout, in seconds, of every new session. 0 disables it.
//   - ShowSQL / FormatSQL: SQL logging.
//   - Inspector: optional SQL rewriter.
//   - Observers: instrumentation hooks, shared by every session.
//   - Clock: time source of the transaction timeout. Defaults to time.Now.
type Options struct {
	BatchSize                   int
	ForegoBatching              bool
	ConnectionHandling          string
	GeneratedKeysEnabled        bool
	ScrollableResultSetsEnabled bool
	ProviderDisablesAutoCommit  bool
	DefaultTransactionTimeout   int
	ShowSQL                     bool
	FormatSQL                   bool
	Inspector                   StatementInspector
	Observers                   []observer.Observer
	Clock                       func() time.Time
}

// OptionsFromConfig maps the jdbc and logging sections of cfg into Options.
func OptionsFromConfig(cfg *configmgr.SessionConfig) Options {
	jdbc := cfg.GetJdbcConfig()

	return Options{
		BatchSize:                   jdbc.BatchSize,
		ForegoBatching:              jdbc.ForegoBatching,
		ConnectionHandling:          jdbc.ConnectionHandling,
		GeneratedKeysEnabled:        jdbc.GeneratedKeysEnabled,
		ScrollableResultSetsEnabled: jdbc.ScrollableResultSetsEnabled,
		ProviderDisablesAutoCommit:  jdbc.ProviderDisablesAutoCommit,
		DefaultTransactionTimeout:   jdbc.DefaultTransactionTimeout,
		ShowSQL:                     cfg.GetLoggingConfig().ShowSql,
	}
}

func (o Options) now() time.Time {
	if o.Clock == nil {
		return time.Now()
	}

	return o.Clock()
}

func (o Options) inspect(sql string) string {
	if o.Inspector == nil {
		return sql
	}

	if inspected := o.Inspector.Inspect(sql); inspected != "" {
		return inspected
	}

	return sql
}
