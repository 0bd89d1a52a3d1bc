package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/glowhub/portal/internal/award"
	"github.com/glowhub/portal/internal/cart"
	"github.com/glowhub/portal/internal/catalog"
	"github.com/glowhub/portal/internal/checkout"
	"github.com/glowhub/portal/internal/clock"
	"github.com/glowhub/portal/internal/config"
	"github.com/glowhub/portal/internal/customer"
	"github.com/glowhub/portal/internal/docstore"
	"github.com/glowhub/portal/internal/feedback"
	"github.com/glowhub/portal/internal/fulfillment"
	"github.com/glowhub/portal/internal/ledger"
	"github.com/glowhub/portal/internal/migration"
	"github.com/glowhub/portal/internal/observability"
	"github.com/glowhub/portal/internal/ratelimit"
	"github.com/glowhub/portal/internal/reconcile"
	"github.com/glowhub/portal/internal/server"
	"github.com/glowhub/portal/internal/session"
	"github.com/glowhub/portal/internal/wallet"
	"github.com/glowhub/portal/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		clock.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		docstore.Module,
		session.Module,
		fx.Provide(wallet.NewCache),

		// Functional domains
		catalog.Module,
		ledger.Module,
		award.Module,
		cart.Module,
		checkout.Module,
		customer.Module,
		feedback.Module,
		fulfillment.Module,
		reconcile.Module,

		// Transport
		ratelimit.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
