// Package modkit provides module wiring and core deps
package modkit

import (
	"slaledger/internal/modkit/repokit"
	"slaledger/internal/platform/config"
	"slaledger/internal/platform/logger"
	"slaledger/internal/platform/store"
)

// Deps holds core dependencies passed to modules. PG and CH are nil when
// the matching mirror is disabled
type Deps struct {
	Log logger.Logger
	Cfg config.Conf
	PG  repokit.TxRunner
	CH  store.Clickhouse
}
