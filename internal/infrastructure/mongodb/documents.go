package mongodb

import (
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/wms-platform/ingredient-stock/internal/domain"
	mongoutil "github.com/wms-platform/ingredient-stock/pkg/mongodb"
)

// Quantities and costs are stored as Decimal128 so queries and $sum stay exact.

type stockKeyDocument struct {
	OrganizationID string `bson:"organizationId"`
	SiteID         string `bson:"siteId"`
	ItemID         string `bson:"itemId"`
}

type batchDocument struct {
	BatchID           string               `bson:"batchId"`
	BatchNumber       string               `bson:"batchNumber"`
	Origin            string               `bson:"origin"`
	ReceivedAt        time.Time            `bson:"receivedAt"`
	ExpiresAt         *time.Time           `bson:"expiresAt,omitempty"`
	OriginalQuantity  primitive.Decimal128 `bson:"originalQuantity"`
	RemainingQuantity primitive.Decimal128 `bson:"remainingQuantity"`
	UnitCost          primitive.Decimal128 `bson:"unitCost"`
	TotalCost         primitive.Decimal128 `bson:"totalCost"`
	Status            string               `bson:"status"`
	SupplierRef       string               `bson:"supplierRef,omitempty"`
	DeliveryRef       string               `bson:"deliveryRef,omitempty"`
	StorageLocation   string               `bson:"storageLocation,omitempty"`
	Notes             string               `bson:"notes,omitempty"`
}

type lineDocument struct {
	BatchID      string               `bson:"batchId"`
	BatchNumber  string               `bson:"batchNumber"`
	Quantity     primitive.Decimal128 `bson:"quantity"`
	UnitCost     primitive.Decimal128 `bson:"unitCost"`
	ExtendedCost primitive.Decimal128 `bson:"extendedCost"`
}

type movementDocument struct {
	MovementID  string               `bson:"movementId"`
	Type        string               `bson:"type"`
	Quantity    primitive.Decimal128 `bson:"quantity"`
	UnitCost    primitive.Decimal128 `bson:"unitCost"`
	TotalCost   primitive.Decimal128 `bson:"totalCost"`
	Reason      string               `bson:"reason,omitempty"`
	BatchID     string               `bson:"batchId,omitempty"`
	ExternalRef string               `bson:"externalRef,omitempty"`
	PerformedBy string               `bson:"performedBy,omitempty"`
	RequestID   string               `bson:"requestId,omitempty"`
	Lines       []lineDocument       `bson:"lines,omitempty"`
	OccurredAt  time.Time            `bson:"occurredAt"`
}

type stockRecordDocument struct {
	ID                  string               `bson:"_id"`
	Key                 stockKeyDocument     `bson:"key"`
	Name                string               `bson:"name"`
	SKU                 string               `bson:"sku,omitempty"`
	Unit                string               `bson:"unit"`
	Category            string               `bson:"category,omitempty"`
	ReorderPoint        primitive.Decimal128 `bson:"reorderPoint"`
	ParLevel            primitive.Decimal128 `bson:"parLevel"`
	QuantityOnHand      primitive.Decimal128 `bson:"quantityOnHand"`
	QuantityReserved    primitive.Decimal128 `bson:"quantityReserved"`
	QuantityAvailable   primitive.Decimal128 `bson:"quantityAvailable"`
	WeightedAverageCost primitive.Decimal128 `bson:"weightedAverageCost"`
	StockLevel          string               `bson:"stockLevel"`
	Batches             []batchDocument      `bson:"batches"`
	Movements           []movementDocument   `bson:"movements"`
	ReversedMovementIDs []string             `bson:"reversedMovementIds,omitempty"`
	LedgerSequence      int64                `bson:"ledgerSequence"`
	Version             int64                `bson:"version"`
	CreatedAt           time.Time            `bson:"createdAt"`
	UpdatedAt           time.Time            `bson:"updatedAt"`
}

type ledgerDocument struct {
	ID           string               `bson:"_id"`
	Key          stockKeyDocument     `bson:"key"`
	Initialized  bool                 `bson:"initialized"`
	Balance      primitive.Decimal128 `bson:"balance"`
	LastSequence int64                `bson:"lastSequence"`
	Version      int64                `bson:"version"`
	CreatedAt    time.Time            `bson:"createdAt"`
	UpdatedAt    time.Time            `bson:"updatedAt"`
}

type ledgerEntryDocument struct {
	ID             string               `bson:"_id"`
	LedgerID       string               `bson:"ledgerId"`
	Key            stockKeyDocument     `bson:"key"`
	Sequence       int64                `bson:"sequence"`
	Delta          primitive.Decimal128 `bson:"delta"`
	BalanceAfter   primitive.Decimal128 `bson:"balanceAfter"`
	Category       string               `bson:"category"`
	Description    string               `bson:"description,omitempty"`
	Metadata       map[string]string    `bson:"metadata,omitempty"`
	IdempotencyKey string               `bson:"idempotencyKey,omitempty"`
	RecordedAt     time.Time            `bson:"recordedAt"`
}

// decimalReader converts Decimal128 values and keeps the first failure
type decimalReader struct {
	err error
}

func (r *decimalReader) read(d primitive.Decimal128) decimal.Decimal {
	value, err := mongoutil.FromDecimal128(d)
	if err != nil && r.err == nil {
		r.err = err
	}
	return value
}

func d128(d decimal.Decimal) primitive.Decimal128 {
	return mongoutil.MustDecimal128(d)
}

func toKeyDocument(key domain.StockKey) stockKeyDocument {
	return stockKeyDocument{OrganizationID: key.OrganizationID, SiteID: key.SiteID, ItemID: key.ItemID}
}

func (k stockKeyDocument) toDomain() domain.StockKey {
	return domain.StockKey{OrganizationID: k.OrganizationID, SiteID: k.SiteID, ItemID: k.ItemID}
}

func toLineDocuments(lines domain.ConsumptionLines) []lineDocument {
	if len(lines) == 0 {
		return nil
	}
	out := make([]lineDocument, 0, len(lines))
	for _, l := range lines {
		out = append(out, lineDocument{
			BatchID:      l.BatchID,
			BatchNumber:  l.BatchNumber,
			Quantity:     d128(l.Quantity),
			UnitCost:     d128(l.UnitCost),
			ExtendedCost: d128(l.ExtendedCost),
		})
	}
	return out
}

func toStockRecordDocument(record *domain.InventoryRecord) *stockRecordDocument {
	doc := &stockRecordDocument{
		ID:                  record.Key.String(),
		Key:                 toKeyDocument(record.Key),
		Name:                record.Details.Name,
		SKU:                 record.Details.SKU,
		Unit:                record.Details.Unit,
		Category:            record.Details.Category,
		ReorderPoint:        d128(record.ReorderPoint),
		ParLevel:            d128(record.ParLevel),
		QuantityOnHand:      d128(record.QuantityOnHand),
		QuantityReserved:    d128(record.QuantityReserved),
		QuantityAvailable:   d128(record.QuantityAvailable),
		WeightedAverageCost: d128(record.WeightedAverageCost),
		StockLevel:          record.StockLevel.String(),
		Batches:             make([]batchDocument, 0, len(record.Batches)),
		ReversedMovementIDs: record.ReversedMovementIDs,
		LedgerSequence:      record.LedgerSequence,
		Version:             record.Version,
		CreatedAt:           record.CreatedAt,
		UpdatedAt:           record.UpdatedAt,
	}

	for _, b := range record.Batches {
		doc.Batches = append(doc.Batches, batchDocument{
			BatchID:           b.BatchID,
			BatchNumber:       b.BatchNumber,
			Origin:            string(b.Origin),
			ReceivedAt:        b.ReceivedAt,
			ExpiresAt:         b.ExpiresAt,
			OriginalQuantity:  d128(b.OriginalQuantity),
			RemainingQuantity: d128(b.RemainingQuantity),
			UnitCost:          d128(b.UnitCost),
			TotalCost:         d128(b.TotalCost),
			Status:            string(b.Status),
			SupplierRef:       b.SupplierRef,
			DeliveryRef:       b.DeliveryRef,
			StorageLocation:   b.StorageLocation,
			Notes:             b.Notes,
		})
	}

	movements := record.Movements().Items()
	doc.Movements = make([]movementDocument, 0, len(movements))
	for _, m := range movements {
		doc.Movements = append(doc.Movements, movementDocument{
			MovementID:  m.MovementID,
			Type:        string(m.Type),
			Quantity:    d128(m.Quantity),
			UnitCost:    d128(m.UnitCost),
			TotalCost:   d128(m.TotalCost),
			Reason:      m.Reason,
			BatchID:     m.BatchID,
			ExternalRef: m.ExternalRef,
			PerformedBy: m.PerformedBy,
			RequestID:   m.RequestID,
			Lines:       toLineDocuments(m.Lines),
			OccurredAt:  m.OccurredAt,
		})
	}
	return doc
}

func (doc *stockRecordDocument) toDomain() (*domain.InventoryRecord, error) {
	var dr decimalReader
	record := &domain.InventoryRecord{
		Key: doc.Key.toDomain(),
		Details: domain.ItemDetails{
			Name:     doc.Name,
			SKU:      doc.SKU,
			Unit:     doc.Unit,
			Category: doc.Category,
		},
		ReorderPoint:        dr.read(doc.ReorderPoint),
		ParLevel:            dr.read(doc.ParLevel),
		QuantityReserved:    dr.read(doc.QuantityReserved),
		Batches:             make([]domain.StockBatch, 0, len(doc.Batches)),
		ReversedMovementIDs: doc.ReversedMovementIDs,
		LedgerSequence:      doc.LedgerSequence,
		Version:             doc.Version,
		CreatedAt:           doc.CreatedAt,
		UpdatedAt:           doc.UpdatedAt,
		DomainEvents:        make([]domain.DomainEvent, 0),
	}

	for _, b := range doc.Batches {
		record.Batches = append(record.Batches, domain.StockBatch{
			BatchID:           b.BatchID,
			BatchNumber:       b.BatchNumber,
			Origin:            domain.BatchOrigin(b.Origin),
			ReceivedAt:        b.ReceivedAt,
			ExpiresAt:         b.ExpiresAt,
			OriginalQuantity:  dr.read(b.OriginalQuantity),
			RemainingQuantity: dr.read(b.RemainingQuantity),
			UnitCost:          dr.read(b.UnitCost),
			TotalCost:         dr.read(b.TotalCost),
			Status:            domain.BatchStatus(b.Status),
			SupplierRef:       b.SupplierRef,
			DeliveryRef:       b.DeliveryRef,
			StorageLocation:   b.StorageLocation,
			Notes:             b.Notes,
		})
	}

	movements := make([]domain.StockMovement, 0, len(doc.Movements))
	for _, m := range doc.Movements {
		var lines domain.ConsumptionLines
		for _, l := range m.Lines {
			lines = append(lines, domain.ConsumptionLine{
				BatchID:      l.BatchID,
				BatchNumber:  l.BatchNumber,
				Quantity:     dr.read(l.Quantity),
				UnitCost:     dr.read(l.UnitCost),
				ExtendedCost: dr.read(l.ExtendedCost),
			})
		}
		movements = append(movements, domain.StockMovement{
			MovementID:  m.MovementID,
			Type:        domain.MovementType(m.Type),
			Quantity:    dr.read(m.Quantity),
			UnitCost:    dr.read(m.UnitCost),
			TotalCost:   dr.read(m.TotalCost),
			Reason:      m.Reason,
			BatchID:     m.BatchID,
			ExternalRef: m.ExternalRef,
			PerformedBy: m.PerformedBy,
			RequestID:   m.RequestID,
			Lines:       lines,
			OccurredAt:  m.OccurredAt,
		})
	}
	if dr.err != nil {
		return nil, dr.err
	}

	record.Rehydrate(movements)
	return record, nil
}

func toLedgerDocument(ledger *domain.LedgerRecord) *ledgerDocument {
	return &ledgerDocument{
		ID:           ledger.Key.String(),
		Key:          toKeyDocument(ledger.Key),
		Initialized:  ledger.Initialized,
		Balance:      d128(ledger.Balance),
		LastSequence: ledger.LastSequence,
		Version:      ledger.Version,
		CreatedAt:    ledger.CreatedAt,
		UpdatedAt:    ledger.UpdatedAt,
	}
}

func (doc *ledgerDocument) toDomain() (*domain.LedgerRecord, error) {
	var dr decimalReader
	ledger := domain.NewLedgerRecord(doc.Key.toDomain())
	ledger.Initialized = doc.Initialized
	ledger.Balance = dr.read(doc.Balance)
	ledger.LastSequence = doc.LastSequence
	ledger.Version = doc.Version
	ledger.CreatedAt = doc.CreatedAt
	ledger.UpdatedAt = doc.UpdatedAt
	if dr.err != nil {
		return nil, dr.err
	}
	ledger.MarkPersisted()
	return ledger, nil
}

func toLedgerEntryDocument(e domain.LedgerEntry) ledgerEntryDocument {
	return ledgerEntryDocument{
		ID:             e.EntryID,
		LedgerID:       e.Key.String(),
		Key:            toKeyDocument(e.Key),
		Sequence:       e.Sequence,
		Delta:          d128(e.Delta),
		BalanceAfter:   d128(e.BalanceAfter),
		Category:       e.Category.String(),
		Description:    e.Description,
		Metadata:       e.Metadata,
		IdempotencyKey: e.IdempotencyKey(),
		RecordedAt:     e.RecordedAt,
	}
}

func (doc *ledgerEntryDocument) toDomain() (domain.LedgerEntry, error) {
	var dr decimalReader
	entry := domain.LedgerEntry{
		EntryID:      doc.ID,
		Key:          doc.Key.toDomain(),
		Sequence:     doc.Sequence,
		Delta:        dr.read(doc.Delta),
		BalanceAfter: dr.read(doc.BalanceAfter),
		Category:     domain.LedgerCategory(doc.Category),
		Description:  doc.Description,
		Metadata:     doc.Metadata,
		RecordedAt:   doc.RecordedAt,
	}
	return entry, dr.err
}
