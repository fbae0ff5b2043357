package sugar

import "github.com/alexjbarnes/sugarapi/endpoint"

// Typed wrappers over Dispatch for the built-in catalog. Each returns a
// fresh endpoint ready for Execute.

// Ping resolves the ping endpoint.
func (c *Client) Ping() (endpoint.Endpoint, error) { return c.Dispatch("ping") }

// Me resolves the current-user endpoint.
func (c *Client) Me() (endpoint.Endpoint, error) { return c.Dispatch("me") }

// Search resolves the global search endpoint.
func (c *Client) Search() (endpoint.Endpoint, error) { return c.Dispatch("search") }

// Bulk resolves the bulk request endpoint.
func (c *Client) Bulk() (endpoint.Endpoint, error) { return c.Dispatch("bulk") }

// GetRecord resolves the endpoint that reads one record of module.
func (c *Client) GetRecord(module, id string) (endpoint.Endpoint, error) {
	return c.Dispatch("getRecord", module, id)
}

// CreateRecord resolves the endpoint that creates a record in module.
func (c *Client) CreateRecord(module string) (endpoint.Endpoint, error) {
	return c.Dispatch("createRecord", module)
}

// UpdateRecord resolves the endpoint that updates a record.
func (c *Client) UpdateRecord(module, id string) (endpoint.Endpoint, error) {
	return c.Dispatch("updateRecord", module, id)
}

// DeleteRecord resolves the endpoint that deletes a record.
func (c *Client) DeleteRecord(module, id string) (endpoint.Endpoint, error) {
	return c.Dispatch("deleteRecord", module, id)
}

// FilterRecords resolves the filtered list endpoint for module.
func (c *Client) FilterRecords(module string) (endpoint.Endpoint, error) {
	return c.Dispatch("filterRecords", module)
}

// GetChangeLog resolves the audit log endpoint for a record.
func (c *Client) GetChangeLog(module, id string) (endpoint.Endpoint, error) {
	return c.Dispatch("getChangeLog", module, id)
}

// Favorite resolves the endpoint that marks a record as a favorite.
func (c *Client) Favorite(module, id string) (endpoint.Endpoint, error) {
	return c.Dispatch("favorite", module, id)
}

// Unfavorite resolves the endpoint that removes a record from favorites.
func (c *Client) Unfavorite(module, id string) (endpoint.Endpoint, error) {
	return c.Dispatch("unfavorite", module, id)
}

// GetRelated resolves a related record, or the related collection when
// relatedID is empty.
func (c *Client) GetRelated(module, id, relationship, relatedID string) (endpoint.Endpoint, error) {
	return c.Dispatch("getRelated", module, id, relationship, relatedID)
}

// FilterRelated resolves the filtered list of records linked through relationship.
func (c *Client) FilterRelated(module, id, relationship string) (endpoint.Endpoint, error) {
	return c.Dispatch("filterRelated", module, id, relationship)
}

// CreateRelated resolves the endpoint that creates a record already linked through relationship.
func (c *Client) CreateRelated(module, id, relationship string) (endpoint.Endpoint, error) {
	return c.Dispatch("createRelated", module, id, relationship)
}

// LinkRecords resolves the endpoint that links two existing records.
func (c *Client) LinkRecords(module, id, relationship, relatedID string) (endpoint.Endpoint, error) {
	return c.Dispatch("linkRecords", module, id, relationship, relatedID)
}

// UnlinkRecords resolves the endpoint that removes a link between two records.
func (c *Client) UnlinkRecords(module, id, relationship, relatedID string) (endpoint.Endpoint, error) {
	return c.Dispatch("unlinkRecords", module, id, relationship, relatedID)
}

// AttachFile resolves the upload endpoint for a file field. Execute it
// with an *endpoint.Upload payload.
func (c *Client) AttachFile(module, id, field string) (endpoint.Endpoint, error) {
	return c.Dispatch("attachFile", module, id, field)
}

// GetAttachment resolves the download endpoint for a file field.
func (c *Client) GetAttachment(module, id, field string) (endpoint.Endpoint, error) {
	return c.Dispatch("getAttachment", module, id, field)
}

// DeleteFile resolves the endpoint that removes the file stored in a field.
func (c *Client) DeleteFile(module, id, field string) (endpoint.Endpoint, error) {
	return c.Dispatch("deleteFile", module, id, field)
}
