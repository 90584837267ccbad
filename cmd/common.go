package cmd

import (
	"dlsite-manager/catalog"
	"dlsite-manager/config"
	"dlsite-manager/db"
	"dlsite-manager/dlsite"
	"dlsite-manager/download"
	"dlsite-manager/logger"
	"dlsite-manager/query"

	"go.uber.org/zap"
)

// app bundles the shared dependencies every command needs.
type app struct {
	cfg     config.Config
	store   *catalog.Store
	client  *dlsite.Client
	session *query.Session
}

// bootstrap handles shared initialization logic for commands.
func bootstrap(path string) *app {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		logger.Log.Fatalw("Failed to load configuration", zap.Error(err))
	}

	gdb, err := db.Open(cfg.DatabasePath)
	if err != nil {
		logger.Log.Fatalw("Failed to open database", zap.String("path", cfg.DatabasePath), zap.Error(err))
	}
	logger.Log.Infow("Database initialized", zap.String("path", cfg.DatabasePath))

	store, err := catalog.NewStore(gdb)
	if err != nil {
		logger.Log.Fatalw("Failed to load catalog", zap.Error(err))
	}

	client, err := dlsite.NewClient(cfg)
	if err != nil {
		logger.Log.Fatalw("Failed to create storefront client", zap.Error(err))
	}

	return &app{
		cfg:     cfg,
		store:   store,
		client:  client,
		session: query.NewSession(cfg.Languages()),
	}
}

// targetAccounts resolves the --account flag: 0 means every known account.
func (a *app) targetAccounts(accountID int64) []db.Account {
	if accountID != 0 {
		account, err := a.store.GetAccount(accountID)
		if err != nil {
			logger.Log.Fatalw("Unknown account", zap.Int64("account_id", accountID), zap.Error(err))
		}
		return []db.Account{account}
	}
	return a.store.ListAccounts()
}

// downloadOptions builds orchestrator tuning from the loaded configuration.
func (a *app) downloadOptions() download.Options {
	return download.Options{
		MaxRetries: a.cfg.MaxDownloadRetries,
		Timeout:    a.cfg.HTTPTimeout(),
	}
}
