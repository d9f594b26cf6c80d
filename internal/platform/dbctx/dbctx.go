// Package dbctx threads a context and an optional transaction through the
// repository layer as one value. Services that must commit a job transition
// together with its document advance open a single gorm transaction and pass
// it to every repo call; a zero Tx means the repo runs on its own connection.
package dbctx

import (
	"context"

	"gorm.io/gorm"
)

type Context struct {
	Ctx context.Context
	Tx  *gorm.DB
}

// WithTx returns a copy bound to the given transaction, keeping the context.
func (c Context) WithTx(tx *gorm.DB) Context {
	return Context{Ctx: c.Ctx, Tx: tx}
}
