package domain

import (
	"fmt"
	"strings"
)

// StockKey identifies one stocked item at one site of one organization.
// The inventory record and its ledger share the same key.
type StockKey struct {
	OrganizationID string `bson:"organizationId" json:"organizationId"`
	SiteID         string `bson:"siteId" json:"siteId"`
	ItemID         string `bson:"itemId" json:"itemId"`
}

// NewStockKey builds a key and validates that every part is present
func NewStockKey(organizationID, siteID, itemID string) (StockKey, error) {
	key := StockKey{
		OrganizationID: strings.TrimSpace(organizationID),
		SiteID:         strings.TrimSpace(siteID),
		ItemID:         strings.TrimSpace(itemID),
	}
	if err := key.Validate(); err != nil {
		return StockKey{}, err
	}
	return key, nil
}

// Validate checks that no part of the key is empty
func (k StockKey) Validate() error {
	if k.OrganizationID == "" || k.SiteID == "" || k.ItemID == "" {
		return fmt.Errorf("%w: organization, site and item are required", ErrInvalidStockKey)
	}
	return nil
}

// String renders the key as org/site/item; used for mailbox lanes and locks.
func (k StockKey) String() string {
	return k.OrganizationID + "/" + k.SiteID + "/" + k.ItemID
}

// IsZero reports whether the key is unset
func (k StockKey) IsZero() bool {
	return k == StockKey{}
}
