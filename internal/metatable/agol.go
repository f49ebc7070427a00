package metatable

import (
	"context"
	"fmt"
	"strings"

	"github.com/agrc/auditor/internal/arcgis"
)

// FeatureQuerier is the slice of the portal client the loader needs to read
// a reference table hosted as a feature service.
type FeatureQuerier interface {
	Item(ctx context.Context, id string) (*arcgis.Item, error)
	QueryTable(ctx context.Context, serviceURL string, layer int, outFields []string) ([]map[string]any, error)
}

// AGOLSource reads reference rows from a hosted table, resolving the item id
// to its service URL first.
type AGOLSource struct {
	label         string
	client        FeatureQuerier
	itemID        string
	layer         int
	authoritative bool
}

func NewAGOLSource(label string, client FeatureQuerier, itemID string, layer int, authoritative bool) *AGOLSource {
	return &AGOLSource{
		label:         label,
		client:        client,
		itemID:        itemID,
		layer:         layer,
		authoritative: authoritative,
	}
}

func (s *AGOLSource) Name() string { return s.label }

func (s *AGOLSource) Load(ctx context.Context) ([]Row, error) {
	item, err := s.client.Item(ctx, s.itemID)
	if err != nil {
		return nil, fmt.Errorf("resolve %s table item: %w", s.label, err)
	}
	if item.URL == "" {
		return nil, fmt.Errorf("item %s has no service url", s.itemID)
	}

	fields := []string{"TABLENAME", "AGOL_ITEM_ID", "AGOL_PUBLISHED_NAME", "CATEGORY"}
	if s.authoritative {
		fields[3] = "AUTHORITATIVE"
	}
	records, err := s.client.QueryTable(ctx, item.URL, s.layer, fields)
	if err != nil {
		return nil, fmt.Errorf("query %s table: %w", s.label, err)
	}

	out := make([]Row, 0, len(records))
	for _, attrs := range records {
		out = append(out, newRow(
			attrString(attrs, fields[0]),
			attrString(attrs, fields[1]),
			attrString(attrs, fields[2]),
			attrString(attrs, fields[3]),
			s.authoritative,
		))
	}
	return out, nil
}

// attrString pulls a field out of a feature attribute map, tolerating
// services that report field names in a different case.
func attrString(attrs map[string]any, key string) string {
	value, ok := attrs[key]
	if !ok {
		for k, v := range attrs {
			if strings.EqualFold(k, key) {
				value, ok = v, true
				break
			}
		}
	}
	if !ok || value == nil {
		return ""
	}
	if s, isString := value.(string); isString {
		return s
	}
	return fmt.Sprint(value)
}
