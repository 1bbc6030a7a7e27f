package cloudevents

// CloudEvents extension attribute names carried on stock facts
const (
	ExtOrganizationID = "wmsorganizationid"
	ExtSiteID         = "wmssiteid"
	ExtItemID         = "wmsitemid"
	ExtCorrelationID  = "wmscorrelationid"

	// distributed tracing extension, carried as W3C headers
	ExtTraceParent = "traceparent"
	ExtTraceState  = "tracestate"
)

// Kafka header names mirroring the extensions
const (
	HeaderOrganizationID = "ce-wmsorganizationid"
	HeaderSiteID         = "ce-wmssiteid"
	HeaderItemID         = "ce-wmsitemid"
	HeaderCorrelationID  = "ce-wmscorrelationid"
)

// SetStockKey sets the stock key extensions
func (e *StockCloudEvent) SetStockKey(organizationID, siteID, itemID string) {
	e.OrganizationID = organizationID
	e.SiteID = siteID
	e.ItemID = itemID
	e.SetExtension(ExtOrganizationID, organizationID)
	e.SetExtension(ExtSiteID, siteID)
	e.SetExtension(ExtItemID, itemID)
}

// SetExtension stores an extension attribute, ignoring empty values
func (e *StockCloudEvent) SetExtension(name string, value interface{}) {
	if value == nil || value == "" {
		return
	}
	if e.Extensions == nil {
		e.Extensions = make(map[string]interface{})
	}
	e.Extensions[name] = value
}

// Headers returns the extension values as message headers
func (e *StockCloudEvent) Headers() map[string]string {
	headers := map[string]string{
		"ce-specversion": e.SpecVersion,
		"ce-type":        e.Type,
		"ce-source":      e.Source,
		"ce-id":          e.ID,
	}
	if e.Subject != "" {
		headers["ce-subject"] = e.Subject
	}
	if e.OrganizationID != "" {
		headers[HeaderOrganizationID] = e.OrganizationID
	}
	if e.SiteID != "" {
		headers[HeaderSiteID] = e.SiteID
	}
	if e.ItemID != "" {
		headers[HeaderItemID] = e.ItemID
	}
	if e.CorrelationID != "" {
		headers[HeaderCorrelationID] = e.CorrelationID
	}
	for _, name := range []string{ExtTraceParent, ExtTraceState} {
		if value, ok := e.Extensions[name].(string); ok && value != "" {
			headers[name] = value
		}
	}
	return headers
}
