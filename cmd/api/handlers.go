package main

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/wms-platform/ingredient-stock/internal/app"
	"github.com/wms-platform/ingredient-stock/internal/application"
	"github.com/wms-platform/ingredient-stock/internal/domain"
	"github.com/wms-platform/ingredient-stock/pkg/logging"
	"github.com/wms-platform/ingredient-stock/pkg/middleware"
)

type pageQuery struct {
	Limit  int `form:"limit" binding:"omitempty,min=1,max=500"`
	Offset int `form:"offset" binding:"omitempty,min=0"`
}

type batchesQuery struct {
	All bool `form:"all"`
}

type sufficiencyQuery struct {
	Quantity string `form:"quantity" binding:"required"`
}

// registerRoutes mounts the stock API on router
func registerRoutes(router *gin.Engine, services *app.Services, logger *logging.Logger) {
	stock := services.Stock

	router.GET("/api/v1/stock/:orgId/:siteId", listRecordsHandler(stock, logger))
	router.POST("/api/v1/maintenance/reconcile", reconcileHandler(services.Reconciler, logger))

	item := router.Group("/api/v1/stock/:orgId/:siteId/:itemId")
	{
		item.POST("", command(logger, http.StatusCreated, stock.Initialize,
			func(key domain.StockKey, _ string, cmd *application.InitializeCommand) { cmd.Key = key }))
		item.POST("/receipts", command(logger, http.StatusCreated, stock.ReceiveBatch,
			func(key domain.StockKey, idem string, cmd *application.ReceiveBatchCommand) {
				cmd.Key, cmd.RequestID = key, orDefault(cmd.RequestID, idem)
			}))
		item.POST("/transfers/in", command(logger, http.StatusCreated, stock.ReceiveTransfer,
			func(key domain.StockKey, idem string, cmd *application.ReceiveTransferCommand) {
				cmd.Key, cmd.RequestID = key, orDefault(cmd.RequestID, idem)
			}))
		item.POST("/consumptions", command(logger, http.StatusOK, stock.Consume,
			func(key domain.StockKey, idem string, cmd *application.ConsumeCommand) {
				cmd.Key, cmd.RequestID = key, orDefault(cmd.RequestID, idem)
			}))
		item.POST("/waste", command(logger, http.StatusOK, stock.RecordWaste,
			func(key domain.StockKey, idem string, cmd *application.RecordWasteCommand) {
				cmd.Key, cmd.RequestID = key, orDefault(cmd.RequestID, idem)
			}))
		item.POST("/adjustments", command(logger, http.StatusOK, stock.AdjustQuantity,
			func(key domain.StockKey, idem string, cmd *application.AdjustQuantityCommand) {
				cmd.Key, cmd.RequestID = key, orDefault(cmd.RequestID, idem)
			}))
		item.POST("/transfers/out", command(logger, http.StatusOK, stock.TransferOut,
			func(key domain.StockKey, idem string, cmd *application.TransferOutCommand) {
				cmd.Key, cmd.RequestID = key, orDefault(cmd.RequestID, idem)
			}))
		item.POST("/expiry-writeoffs", command(logger, http.StatusOK, stock.WriteOffExpiredBatches,
			func(key domain.StockKey, _ string, cmd *application.WriteOffExpiredCommand) { cmd.Key = key }))
		item.POST("/reversals", command(logger, http.StatusCreated, stock.ReverseConsumption,
			func(key domain.StockKey, idem string, cmd *application.ReverseConsumptionCommand) {
				cmd.Key, cmd.RequestID = key, orDefault(cmd.RequestID, idem)
			}))

		setKey := func(key domain.StockKey, _ string, cmd *application.SetThresholdCommand) { cmd.Key = key }
		item.PUT("/reorder-point", command(logger, http.StatusOK, stock.SetReorderPoint, setKey))
		item.PUT("/par-level", command(logger, http.StatusOK, stock.SetParLevel, setKey))
		item.PUT("/reserved", command(logger, http.StatusOK, stock.SetReservedQuantity, setKey))
		item.PUT("/details", command(logger, http.StatusOK, stock.UpdateItemDetails,
			func(key domain.StockKey, _ string, cmd *application.UpdateItemDetailsCommand) { cmd.Key = key }))

		item.GET("", query(logger, stock.GetRecord))
		item.GET("/level", query(logger, stock.GetLevelInfo))
		item.GET("/stock-level", query(logger, stock.GetStockLevel))
		item.GET("/value", query(logger, stock.GetInventoryValue))
		item.GET("/batches", getBatchesHandler(stock, logger))
		item.GET("/movements", getMovementsHandler(stock, logger))
		item.GET("/sufficient", sufficiencyHandler(stock, logger))
		item.GET("/ledger", getLedgerHandler(services.Ledger, logger))
	}
}

// command binds the JSON body into C, stamps the key from the path and the
// Idempotency-Key header through apply, and answers with run's result.
// An empty body binds as the zero command.
func command[C any, R any](
	logger *logging.Logger,
	status int,
	run func(context.Context, C) (R, error),
	apply func(key domain.StockKey, idempotencyKey string, cmd *C),
) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger)

		key, err := stockKeyFromPath(c)
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		var cmd C
		if c.Request.ContentLength != 0 {
			if appErr := middleware.BindAndValidate(c, &cmd); appErr != nil {
				responder.RespondWithAppError(appErr)
				return
			}
		}
		apply(key, middleware.GetIdempotencyKey(c), &cmd)

		result, err := run(c.Request.Context(), cmd)
		if err != nil {
			responder.RespondWithError(err)
			return
		}
		c.JSON(status, result)
	}
}

// query answers a read that needs nothing but the key
func query[R any](logger *logging.Logger, run func(context.Context, domain.StockKey) (R, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger)

		key, err := stockKeyFromPath(c)
		if err != nil {
			responder.RespondWithError(err)
			return
		}
		result, err := run(c.Request.Context(), key)
		if err != nil {
			responder.RespondWithError(err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func getBatchesHandler(service *application.StockService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger)

		key, err := stockKeyFromPath(c)
		if err != nil {
			responder.RespondWithError(err)
			return
		}
		var q batchesQuery
		if appErr := middleware.BindQuery(c, &q); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		batches, err := service.GetBatches(c.Request.Context(), key, q.All)
		if err != nil {
			responder.RespondWithError(err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"batches": batches})
	}
}

func getMovementsHandler(service *application.StockService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger)

		key, err := stockKeyFromPath(c)
		if err != nil {
			responder.RespondWithError(err)
			return
		}
		var q pageQuery
		if appErr := middleware.BindQuery(c, &q); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		movements, err := service.GetMovements(c.Request.Context(), key, q.Limit)
		if err != nil {
			responder.RespondWithError(err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"movements": movements})
	}
}

func sufficiencyHandler(service *application.StockService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger)

		key, err := stockKeyFromPath(c)
		if err != nil {
			responder.RespondWithError(err)
			return
		}
		var q sufficiencyQuery
		if appErr := middleware.BindQuery(c, &q); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}
		quantity, err := decimal.NewFromString(q.Quantity)
		if err != nil {
			responder.RespondBadRequest("quantity must be a decimal number")
			return
		}

		result, err := service.HasSufficientStock(c.Request.Context(), key, quantity)
		if err != nil {
			responder.RespondWithError(err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func getLedgerHandler(service *application.LedgerService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger)

		key, err := stockKeyFromPath(c)
		if err != nil {
			responder.RespondWithError(err)
			return
		}
		var q pageQuery
		if appErr := middleware.BindQuery(c, &q); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		ledger, err := service.GetLedger(c.Request.Context(), key, q.Limit)
		if err != nil {
			responder.RespondWithError(err)
			return
		}
		c.JSON(http.StatusOK, ledger)
	}
}

func listRecordsHandler(service *application.StockService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger)

		var q pageQuery
		if appErr := middleware.BindQuery(c, &q); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		records, err := service.ListRecords(c.Request.Context(), application.ListRecordsQuery{
			OrganizationID: c.Param("orgId"),
			SiteID:         c.Param("siteId"),
			Limit:          q.Limit,
			Offset:         q.Offset,
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}
		c.JSON(http.StatusOK, records)
	}
}

func reconcileHandler(reconciler *application.Reconciler, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger)

		var cmd application.ReconcileCommand
		if c.Request.ContentLength != 0 {
			if appErr := middleware.BindAndValidate(c, &cmd); appErr != nil {
				responder.RespondWithAppError(appErr)
				return
			}
		}

		report, err := reconciler.ReconcileAll(c.Request.Context(), cmd)
		if err != nil {
			responder.RespondWithError(err)
			return
		}
		logger.Audit(c.Request.Context(), "reconcile", "stock", "*", logging.UserIDFromContext(c.Request.Context()), map[string]any{
			"dryRun":    report.DryRun,
			"checked":   report.Checked,
			"realigned": report.Realigned,
			"failed":    report.Failed,
		})
		c.JSON(http.StatusOK, report)
	}
}

func stockKeyFromPath(c *gin.Context) (domain.StockKey, error) {
	return domain.NewStockKey(c.Param("orgId"), c.Param("siteId"), c.Param("itemId"))
}

func orDefault(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}
