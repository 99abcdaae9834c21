package session

import (
	"context"

	"github.com/google/uuid"
	"github.com/marcodd23/go-txsession/pkg/batch"
	"github.com/marcodd23/go-txsession/pkg/configmgr"
	"github.com/marcodd23/go-txsession/pkg/dbx"
	"github.com/marcodd23/go-txsession/pkg/jta"
	"github.com/marcodd23/go-txsession/pkg/logicalconn"
	"github.com/marcodd23/go-txsession/pkg/logx"
	"github.com/marcodd23/go-txsession/pkg/observer"
	"github.com/marcodd23/go-txsession/pkg/txcoord"
	"github.com/marcodd23/go-txsession/pkg/txcoord/jtatx"
	"github.com/pkg/errors"
)

// contextBuilder is implemented by builders that can use the opening context.
type contextBuilder interface {
	BuildContext(ctx context.Context, owner txcoord.Owner) (txcoord.Coordinator, error)
}

// Factory opens sessions sharing one connection provider, one coordinator builder and one set
// of Options.
type Factory struct {
	provider dbx.ConnectionProvider
	builder  txcoord.Builder
	options  Options
	mode     dbx.HandlingMode
	batches  batch.Factory
	observer observer.Chain
}

// NewFactory - Factory constructor. The connection handling mode is resolved here, "auto"
// meaning the default of the builder.
func NewFactory(provider dbx.ConnectionProvider, builder txcoord.Builder, options Options) (*Factory, error) {
	if builder == nil {
		return nil, errors.New("session factory requires a transaction coordinator builder")
	}

	mode, err := dbx.ParseHandlingMode(options.ConnectionHandling, builder.DefaultHandlingMode())
	if err != nil {
		return nil, err
	}

	return &Factory{
		provider: provider,
		builder:  builder,
		options:  options,
		mode:     mode,
		batches:  batch.NewFactory(options.BatchSize, options.ForegoBatching),
		observer: observer.NewChain(options.Observers...),
	}, nil
}

// NewFactoryFromConfig validates cfg and builds a Factory over provider.
//
// Arguments:
//   - cfg: the session configuration. transaction.coordinator selects jdbc (default), jta or plain.
//   - provider: source of physical connections.
//   - platform: the transaction platform, required by the jta coordinator only.
//   - observers: notified of connection, statement and transaction events.
//
// Returns:
//   - A Factory, or a *errorx.ConfigError when cfg does not validate.
func NewFactoryFromConfig(cfg *configmgr.SessionConfig, provider dbx.ConnectionProvider, platform jta.Platform,
	observers ...observer.Observer,
) (*Factory, error) {
	if err := configmgr.Validate(cfg); err != nil {
		return nil, err
	}

	options := OptionsFromConfig(cfg)
	options.Observers = observers

	txCfg := cfg.GetTransactionConfig()

	var builder txcoord.Builder

	switch txCfg.Coordinator {
	case configmgr.TransactionCoordinatorJta:
		if platform == nil {
			return nil, errors.New("the jta transaction coordinator requires a transaction platform")
		}

		builder = jtatx.NewBuilder(platform, jtatx.Config{
			PreferUserTransaction: txCfg.PreferUserTransaction,
			AutoJoin:              txCfg.AutoJoin,
			TrackCaller:           txCfg.TrackCaller,
		})
	case configmgr.TransactionCoordinatorPlain:
		builder = txcoord.NewPlainConnectionBuilder(nil, options.ProviderDisablesAutoCommit)
	default:
		builder = txcoord.NewResourceLocalBuilder()
	}

	return NewFactory(provider, builder, options)
}

// HandlingMode - the resolved connection handling mode of managed sessions.
func (f *Factory) HandlingMode() dbx.HandlingMode {
	return f.mode
}

// OpenSession opens a session whose connections come from the factory's provider.
func (f *Factory) OpenSession(ctx context.Context) (*Session, error) {
	if f.provider == nil {
		return nil, errors.New("session factory has no connection provider, use OpenSessionWithConnection")
	}

	return f.open(ctx, func(s *Session, opts logicalconn.Options) (logicalconn.LogicalConnection, error) {
		return logicalconn.NewManaged(s.logContext(ctx), f.provider, f.mode, opts)
	})
}

// OpenSessionWithConnection opens a session over a connection supplied by the caller.
// Closing the session hands the connection back instead of closing it.
func (f *Factory) OpenSessionWithConnection(ctx context.Context, conn dbx.Connection) (*Session, error) {
	return f.open(ctx, func(_ *Session, opts logicalconn.Options) (logicalconn.LogicalConnection, error) {
		return logicalconn.NewProvided(conn, opts)
	})
}

func (f *Factory) open(ctx context.Context,
	connect func(s *Session, opts logicalconn.Options) (logicalconn.LogicalConnection, error),
) (*Session, error) {
	s := &Session{
		id:        uuid.NewString(),
		options:   f.options,
		observer:  f.observer,
		batches:   f.batches,
		sqlLogger: logx.SQLLogger{ShowSQL: f.options.ShowSQL, Format: f.options.FormatSQL},
	}

	if f.provider != nil {
		s.isolation = txcoord.NewIsolationDelegate(f.provider, f.options.ProviderDisablesAutoCommit)
	}

	lc, err := connect(s, logicalconn.Options{
		Observer:                   f.observer,
		ProviderDisablesAutoCommit: f.options.ProviderDisablesAutoCommit,
	})
	if err != nil {
		return nil, err
	}

	s.logicalConn = lc

	var coordinator txcoord.Coordinator
	if cb, ok := f.builder.(contextBuilder); ok {
		coordinator, err = cb.BuildContext(s.logContext(ctx), s)
	} else {
		coordinator, err = f.builder.Build(s)
	}

	if err != nil {
		if _, closeErr := lc.Close(ctx); closeErr != nil {
			logx.GetLogger().LogWarning(ctx, "unable to close logical connection of a session that failed to open", closeErr)
		}

		return nil, err
	}

	coordinator.AddObserver(f.observer)

	if f.options.DefaultTransactionTimeout > 0 {
		coordinator.SetTimeout(f.options.DefaultTransactionTimeout)
	}

	s.coordinator = coordinator

	logx.GetLogger().LogDebug(s.logContext(ctx), "opened session, connection handling: "+lc.HandlingMode().String())

	return s, nil
}
