// Package metatable loads the reference tables that decide which hosted
// items the auditor manages and what their metadata should look like.
package metatable

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

// Category classifies a managed item.
type Category string

const (
	// CategorySGID marks rows from the primary table, which only lists
	// layers currently published from the SGID.
	CategorySGID Category = "SGID"
	// CategoryShelved marks layers removed from the SGID but kept hosted.
	CategoryShelved Category = "shelved"
	// CategoryStatic marks layers maintained by hand outside the SGID.
	CategoryStatic Category = "static"
)

// Precedence values for duplicate ids that appear in both sources.
const (
	PrecedencePrimary   = "primary"
	PrecedenceSecondary = "secondary"
)

// Row is one reference table entry keyed by AGOL item id.
type Row struct {
	TableName     string
	ItemID        string
	PublishedName string
	Category      Category
	Authoritative string
	Source        string
}

// Shelved reports whether the layer was pulled from the SGID but remains hosted.
func (r Row) Shelved() bool { return r.Category == CategoryShelved }

// Static reports whether the layer is maintained by hand rather than synced.
func (r Row) Static() bool { return r.Category == CategoryStatic }

// Duplicate records an item id that appeared more than once during loading.
type Duplicate struct {
	ItemID string `json:"item_id"`
	Winner string `json:"winner"`
	Loser  string `json:"loser"`
}

// Table is the merged view of one or two reference sources.
type Table struct {
	Rows       map[string]Row
	Duplicates []Duplicate
	Skipped    int
}

// Lookup finds the row for an item id, tolerating case differences.
func (t *Table) Lookup(itemID string) (Row, bool) {
	row, ok := t.Rows[strings.ToLower(itemID)]
	return row, ok
}

// Len returns the number of merged rows.
func (t *Table) Len() int { return len(t.Rows) }

// Source yields reference rows from one backing store.
type Source interface {
	Name() string
	Load(ctx context.Context) ([]Row, error)
}

// Options control how rows from multiple sources are merged.
type Options struct {
	// Precedence names the source that wins when an item id appears in
	// both. Empty means primary.
	Precedence string
	Logger     *slog.Logger
}

// Load reads the primary source and, when given, the secondary source, then
// merges them into a single table. A source that cannot be read is fatal.
// Rows with invalid item ids or missing fields are skipped and counted.
func Load(ctx context.Context, primary, secondary Source, opts Options) (*Table, error) {
	if opts.Precedence == "" {
		opts.Precedence = PrecedencePrimary
	}

	table := &Table{Rows: make(map[string]Row)}
	if err := table.merge(ctx, primary, opts); err != nil {
		return nil, err
	}
	if secondary != nil {
		if err := table.merge(ctx, secondary, opts); err != nil {
			return nil, err
		}
	}
	opts.Logger.Info("reference tables loaded",
		"rows", table.Len(), "duplicates", len(table.Duplicates), "skipped", table.Skipped)
	return table, nil
}

func (t *Table) merge(ctx context.Context, src Source, opts Options) error {
	rows, err := src.Load(ctx)
	if err != nil {
		return fmt.Errorf("load %s: %w", src.Name(), err)
	}

	name := src.Name()
	for _, row := range rows {
		if _, err := uuid.Parse(row.ItemID); err != nil {
			opts.Logger.Debug("skipping row without a usable item id",
				"source", name, "table", row.TableName, "item_id", row.ItemID)
			t.Skipped++
			continue
		}
		if row.TableName == "" || row.PublishedName == "" {
			opts.Logger.Warn("skipping incomplete row",
				"source", name, "item_id", row.ItemID, "table", row.TableName)
			t.Skipped++
			continue
		}

		row.Source = name
		existing, ok := t.Rows[row.ItemID]
		if !ok {
			t.Rows[row.ItemID] = row
			continue
		}

		if existing.Source == name {
			// Repeated id within one source: the first row wins.
			opts.Logger.Warn("duplicate item id within source",
				"source", name, "item_id", row.ItemID,
				"kept", existing.TableName, "dropped", row.TableName)
			t.Duplicates = append(t.Duplicates, Duplicate{ItemID: row.ItemID, Winner: name, Loser: name})
			continue
		}

		winner, loser := existing, row
		if opts.Precedence == PrecedenceSecondary {
			winner, loser = row, existing
			t.Rows[row.ItemID] = row
		}
		opts.Logger.Warn("item id appears in both sources",
			"item_id", row.ItemID, "kept", winner.Source, "dropped", loser.Source)
		t.Duplicates = append(t.Duplicates, Duplicate{ItemID: row.ItemID, Winner: winner.Source, Loser: loser.Source})
	}
	return nil
}

// newRow normalizes raw column values into a Row. Primary rows carry the
// authoritative flag in their fourth column and are always SGID; secondary
// rows carry a category instead and are never authoritative.
func newRow(tableName, itemID, publishedName, flag string, authoritative bool) Row {
	row := Row{
		TableName:     strings.TrimSpace(tableName),
		ItemID:        strings.ToLower(strings.TrimSpace(itemID)),
		PublishedName: strings.TrimSpace(publishedName),
	}
	if authoritative {
		row.Category = CategorySGID
		row.Authoritative = strings.ToLower(strings.TrimSpace(flag))
	} else {
		row.Category = Category(strings.ToLower(strings.TrimSpace(flag)))
		row.Authoritative = "n"
	}
	return row
}
