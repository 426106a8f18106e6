// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"
)

// LedgerRouteHandler defines the routes shared by purchases and receipts.
type LedgerRouteHandler interface {
	Get(c *gin.Context)
	Delete(c *gin.Context)
	AppendSnapshot(c *gin.Context)
	SettlementRouteHandler
}

// SettlementRouteHandler defines the payment/credit/deposit routes of a ledger.
type SettlementRouteHandler interface {
	AddPayment(c *gin.Context)
	PayInFull(c *gin.Context)
	SetCredit(c *gin.Context)
	SetDeposit(c *gin.Context)
}

// StoreLedgerHandler defines the store-scoped routes of a ledger.
type StoreLedgerHandler interface {
	List(c *gin.Context)
	Create(c *gin.Context)
}

// RegisterLedgerRoutes registers the standard routes of a ledger: store-scoped
// create/list under stores and per-document routes under group.
//
// Usage:
//
//	handler := handlers.NewPurchaseHandler(base, purchases)
//	RegisterLedgerRoutes(stores, api.Group("/purchases"), "/purchases", handler, handler)
func RegisterLedgerRoutes(stores, group *gin.RouterGroup, storePath string, scoped StoreLedgerHandler, handler LedgerRouteHandler) {
	stores.GET("/:storeId"+storePath, scoped.List)
	stores.POST("/:storeId"+storePath, scoped.Create)

	group.GET("/:id", handler.Get)
	group.DELETE("/:id", handler.Delete)
	group.POST("/:id/snapshots", handler.AppendSnapshot)
	RegisterSettlementRoutes(group, handler)
}

// RegisterSettlementRoutes registers payment routes for a ledger.
func RegisterSettlementRoutes(group *gin.RouterGroup, handler SettlementRouteHandler) {
	group.POST("/:id/payments", handler.AddPayment)
	group.POST("/:id/pay-in-full", handler.PayInFull)
	group.PUT("/:id/credit", handler.SetCredit)
	group.PUT("/:id/deposit", handler.SetDeposit)
}
