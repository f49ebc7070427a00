package arcgis

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// adminURL converts a hosted feature service URL into its admin counterpart,
// which exposes updateDefinition and the admin-only service settings.
func adminURL(serviceURL string) string {
	return strings.Replace(serviceURL, "/rest/services/", "/rest/admin/services/", 1)
}

// ServiceDefinition fetches the admin-level definition of a hosted feature
// service (capabilities, cache settings, layer visibility).
func (c *Client) ServiceDefinition(ctx context.Context, serviceURL string) (*ServiceDefinition, error) {
	var def ServiceDefinition
	if err := c.get(ctx, adminURL(serviceURL), nil, &def); err != nil {
		return nil, fmt.Errorf("get service definition: %w", err)
	}
	return &def, nil
}

// UpdateServiceDefinition applies partial updates (capabilities, cacheMaxAge)
// to a hosted feature service through its admin endpoint.
func (c *Client) UpdateServiceDefinition(ctx context.Context, serviceURL string, updates map[string]any) error {
	payload, err := json.Marshal(updates)
	if err != nil {
		return fmt.Errorf("encode definition updates: %w", err)
	}

	form := url.Values{"updateDefinition": {string(payload)}}
	var resp successResponse
	if err := c.post(ctx, adminURL(serviceURL)+"/updateDefinition", form, &resp); err != nil {
		return fmt.Errorf("update service definition: %w", err)
	}
	return checkSuccess("update service definition", resp)
}

// UpdateLayerDefinition applies partial updates (defaultVisibility) to one
// layer of a hosted feature service through the admin endpoint.
func (c *Client) UpdateLayerDefinition(ctx context.Context, serviceURL string, layer int, updates map[string]any) error {
	payload, err := json.Marshal(updates)
	if err != nil {
		return fmt.Errorf("encode layer definition updates: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%d/updateDefinition", adminURL(strings.TrimRight(serviceURL, "/")), layer)
	form := url.Values{"updateDefinition": {string(payload)}}
	var resp successResponse
	if err := c.post(ctx, endpoint, form, &resp); err != nil {
		return fmt.Errorf("update layer %d definition: %w", layer, err)
	}
	return checkSuccess(fmt.Sprintf("update layer %d definition", layer), resp)
}

// QueryTable reads every row of a feature layer or table, paging with
// resultOffset until the service stops reporting a transfer limit. Rows come
// back as raw attribute maps keyed by the requested field names.
func (c *Client) QueryTable(ctx context.Context, serviceURL string, layer int, outFields []string) ([]map[string]any, error) {
	queryURL := fmt.Sprintf("%s/%d/query", strings.TrimRight(serviceURL, "/"), layer)

	var rows []map[string]any
	offset := 0
	for {
		query := url.Values{
			"where":             {"1=1"},
			"outFields":         {strings.Join(outFields, ",")},
			"returnGeometry":    {"false"},
			"resultOffset":      {strconv.Itoa(offset)},
			"resultRecordCount": {strconv.Itoa(pageSize)},
		}
		var resp queryResponse
		if err := c.get(ctx, queryURL, query, &resp); err != nil {
			return nil, fmt.Errorf("query table layer %d: %w", layer, err)
		}
		for _, f := range resp.Features {
			rows = append(rows, f.Attributes)
		}
		if !resp.ExceededTransferLimit || len(resp.Features) == 0 {
			return rows, nil
		}
		offset += len(resp.Features)
	}
}
