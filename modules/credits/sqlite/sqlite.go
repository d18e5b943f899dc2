// Package sqlite implements the persistent store module: credit balances,
// subscriptions, processed webhook events and conversation transcripts, in
// one SQLite database. It uses modernc.org/sqlite (pure Go, no CGO) in WAL
// mode.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/flemzord/substackulous/internal/billing"
	"github.com/flemzord/substackulous/internal/core"
	"github.com/flemzord/substackulous/internal/credit"
	"github.com/flemzord/substackulous/internal/history"
	"gopkg.in/yaml.v3"
)

// ModuleID is the identifier of the SQLite store module.
const ModuleID core.ModuleID = "credits.sqlite"

// Services registered by the module.
const (
	CreditsService       = "credits.store"
	SubscriptionsService = "billing.subscriptions"
	EventsService        = "billing.events"
	HistoryService       = "history.store"
)

func init() {
	core.RegisterModule(&Module{})
}

// Compile-time interface guards.
var (
	_ credit.Store              = (*creditStore)(nil)
	_ billing.SubscriptionStore = (*billingStore)(nil)
	_ billing.EventLog          = (*billingStore)(nil)
	_ history.Store             = (*conversationStore)(nil)
	_ core.Configurable         = (*Module)(nil)
	_ core.Provisioner          = (*Module)(nil)
	_ core.Validator            = (*Module)(nil)
	_ core.Stopper              = (*Module)(nil)
)

// Module owns the database handle and the stores built on it.
type Module struct {
	config  Config
	db      *sql.DB
	logger  *slog.Logger
	credits *creditStore
	billing *billingStore
	convs   *conversationStore
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  ModuleID,
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("sqlite: decode config: %w", err)
	}
	m.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	m.logger = ctx.Logger

	if m.config.Path == "" {
		m.config.Path = filepath.Join(ctx.DataDir, defaultDBFile)
	}

	db, err := Open(context.Background(), m.config.Path, m.config)
	if err != nil {
		return err
	}

	m.db = db
	m.credits = &creditStore{db: db, signup: m.config.SignupCredits}
	m.billing = &billingStore{db: db}
	m.convs = &conversationStore{db: db}

	ctx.RegisterService(CreditsService, credit.Store(m.credits))
	ctx.RegisterService(SubscriptionsService, billing.SubscriptionStore(m.billing))
	ctx.RegisterService(EventsService, billing.EventLog(m.billing))
	ctx.RegisterService(HistoryService, history.Store(m.convs))

	m.logger.Info("sqlite store provisioned",
		"path", m.config.Path,
		"wal", m.config.walEnabled(),
		"schema_version", schemaVersion,
	)
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	if err := m.config.validate(); err != nil {
		return err
	}
	if err := m.db.PingContext(context.Background()); err != nil {
		return fmt.Errorf("sqlite: ping failed: %w", err)
	}
	return nil
}

// Stop implements core.Stopper.
func (m *Module) Stop(_ context.Context) error {
	if m.db == nil {
		return nil
	}
	m.logger.Info("sqlite store stopping")
	err := m.db.Close()
	m.db = nil
	return err
}

// Credits returns the credit store.
func (m *Module) Credits() credit.Store { return m.credits }

// Billing returns the subscription store, which is also the event log.
func (m *Module) Billing() interface {
	billing.SubscriptionStore
	billing.EventLog
} {
	return m.billing
}

// Conversations returns the transcript store.
func (m *Module) Conversations() history.Store { return m.convs }
