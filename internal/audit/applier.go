package audit

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/agrc/auditor/internal/arcgis"
)

// Platform is the portal surface the auditor reads from and writes through.
type Platform interface {
	Folders(ctx context.Context) ([]arcgis.Folder, error)
	FolderItems(ctx context.Context, folderID string) ([]arcgis.Item, error)
	Item(ctx context.Context, id string) (*arcgis.Item, error)
	ItemGroups(ctx context.Context, id string) ([]string, error)
	SearchGroups(ctx context.Context, query string) ([]arcgis.Group, error)
	ServiceDefinition(ctx context.Context, serviceURL string) (*arcgis.ServiceDefinition, error)
	UpdateItem(ctx context.Context, folderID, itemID string, fields url.Values) error
	UpdateThumbnail(ctx context.Context, folderID, itemID, path string) error
	MoveItem(ctx context.Context, folderID, itemID, targetFolderID string) error
	ProtectItem(ctx context.Context, folderID, itemID string, protect bool) error
	ShareItem(ctx context.Context, folderID, itemID string, everyone, org bool, groups []string) error
	UpdateServiceDefinition(ctx context.Context, serviceURL string, updates map[string]any) error
	UpdateLayerDefinition(ctx context.Context, serviceURL string, layer int, updates map[string]any) error
}

// Outcome pairs a correction with the result of pushing it.
type Outcome struct {
	Correction
	Applied bool
	DryRun  bool
	Err     error
}

// Applier pushes corrections to the platform, one item at a time.
type Applier struct {
	platform Platform
	groups   map[string]string
	folders  map[string]string
	opts     Options
	logger   *slog.Logger
}

// NewApplier builds an applier. groups and folders map titles to ids for the
// share and move calls.
func NewApplier(platform Platform, groups, folders map[string]string, opts Options, logger *slog.Logger) *Applier {
	return &Applier{
		platform: platform,
		groups:   groups,
		folders:  folders,
		opts:     opts,
		logger:   logger,
	}
}

// Apply pushes every correction for one item. During a dry run each outcome
// is marked and the platform is never called. A failed fix is captured in
// its outcome and does not stop the remaining fixes.
func (a *Applier) Apply(ctx context.Context, item *ItemState, corrections []Correction) []Outcome {
	outcomes := make([]Outcome, 0, len(corrections))
	for _, cor := range corrections {
		if a.opts.DryRun {
			outcomes = append(outcomes, Outcome{Correction: cor, DryRun: true})
			continue
		}

		err := a.apply(ctx, item, cor)
		if err != nil {
			a.logger.Error("fix failed", "item", item.ID, "field", cor.Field, "error", err)
		} else {
			a.logger.Debug("fix applied", "item", item.ID, "field", cor.Field)
		}
		outcomes = append(outcomes, Outcome{Correction: cor, Applied: err == nil, Err: err})
	}
	return outcomes
}

func (a *Applier) apply(ctx context.Context, item *ItemState, cor Correction) error {
	switch cor.Field {
	case FieldTitle:
		return a.updateItem(ctx, item, url.Values{"title": {cor.Desired}})

	case FieldTags:
		tags := strings.ReplaceAll(cor.Desired, ", ", ",")
		return a.updateItem(ctx, item, url.Values{"tags": {tags}})

	case FieldDescription:
		return a.updateItem(ctx, item, url.Values{"description": {cor.Desired}})

	case FieldStatus:
		fields := url.Values{"contentStatus": {cor.Desired}}
		if cor.Desired == "" {
			fields.Set("clearEmptyFields", "true")
		}
		return a.updateItem(ctx, item, fields)

	case FieldGroup:
		id, ok := a.groups[cor.Desired]
		if !ok {
			return fmt.Errorf("group %q not found in organization", cor.Desired)
		}
		return a.retry(ctx, func() error {
			return a.platform.ShareItem(ctx, item.FolderID, item.ID, true, true, []string{id})
		})

	case FieldFolder:
		id, ok := a.folders[cor.Desired]
		if !ok {
			return fmt.Errorf("folder %q not found", cor.Desired)
		}
		return a.retry(ctx, func() error {
			return a.platform.MoveItem(ctx, item.FolderID, item.ID, id)
		})

	case FieldThumbnail:
		return a.retry(ctx, func() error {
			return a.platform.UpdateThumbnail(ctx, item.FolderID, item.ID, cor.Desired)
		})

	case FieldProtection:
		return a.retry(ctx, func() error {
			return a.platform.ProtectItem(ctx, item.FolderID, item.ID, true)
		})

	case FieldDownloads:
		return a.retry(ctx, func() error {
			return a.platform.UpdateServiceDefinition(ctx, item.ServiceURL, map[string]any{"capabilities": cor.Desired})
		})

	case FieldCacheAge:
		age, err := strconv.Atoi(cor.Desired)
		if err != nil {
			return fmt.Errorf("bad cache age %q: %w", cor.Desired, err)
		}
		return a.retry(ctx, func() error {
			return a.platform.UpdateServiceDefinition(ctx, item.ServiceURL, map[string]any{"cacheMaxAge": age})
		})

	case FieldVisibility:
		if item.Definition == nil {
			return fmt.Errorf("no service definition for item %s", item.ID)
		}
		for _, layer := range item.Definition.Layers {
			if layer.DefaultVisibility {
				continue
			}
			id := layer.ID
			err := a.retry(ctx, func() error {
				return a.platform.UpdateLayerDefinition(ctx, item.ServiceURL, id, map[string]any{"defaultVisibility": true})
			})
			if err != nil {
				return fmt.Errorf("layer %d: %w", id, err)
			}
		}
		return nil

	default:
		return fmt.Errorf("no fix implemented for field %s", cor.Field)
	}
}

func (a *Applier) updateItem(ctx context.Context, item *ItemState, fields url.Values) error {
	return a.retry(ctx, func() error {
		return a.platform.UpdateItem(ctx, item.FolderID, item.ID, fields)
	})
}

// retry runs fn up to the configured number of attempts, waiting 2^n seconds
// between tries.
func (a *Applier) retry(ctx context.Context, fn func() error) error {
	attempts := a.opts.Retries
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for try := 1; try <= attempts; try++ {
		err = fn()
		if err == nil {
			return nil
		}
		if try == attempts {
			break
		}
		wait := time.Duration(1<<try) * time.Second
		a.logger.Debug("retrying failed call", "wait", wait, "error", err)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
