package audit

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/agrc/auditor/internal/arcgis"
	"github.com/agrc/auditor/internal/metatable"
)

// Run is the complete outcome of one audit pass.
type Run struct {
	StartedAt       time.Time
	FinishedAt      time.Time
	DryRun          bool
	Spot            bool
	Items           []Result
	DuplicateTitles map[string][]string
	Failures        int
}

// FixCounts tallies applied fixes by field.
func (r *Run) FixCounts() map[Field]int {
	counts := make(map[Field]int)
	for _, item := range r.Items {
		for _, out := range item.Outcomes {
			if out.Applied {
				counts[out.Field]++
			}
		}
	}
	return counts
}

// CorrectionCounts tallies needed corrections by field, applied or not.
func (r *Run) CorrectionCounts() map[Field]int {
	counts := make(map[Field]int)
	for _, item := range r.Items {
		for _, cor := range item.Corrections {
			counts[cor.Field]++
		}
	}
	return counts
}

// Auditor drives a full audit: enumerate items, check each against the
// reference table, push the fixes.
type Auditor struct {
	platform Platform
	table    *metatable.Table
	opts     Options
	logger   *slog.Logger
}

func New(platform Platform, table *metatable.Table, opts Options, logger *slog.Logger) *Auditor {
	return &Auditor{platform: platform, table: table, opts: opts, logger: logger}
}

// Run audits every hosted feature service the signed-in user owns.
func (a *Auditor) Run(ctx context.Context) (*Run, error) {
	return a.run(ctx, nil)
}

// RunItems audits only the given item ids. An id that cannot be resolved
// becomes a per-item error, not a fatal one.
func (a *Auditor) RunItems(ctx context.Context, ids []string) (*Run, error) {
	return a.run(ctx, ids)
}

func (a *Auditor) run(ctx context.Context, ids []string) (*Run, error) {
	run := &Run{StartedAt: time.Now(), DryRun: a.opts.DryRun, Spot: len(ids) > 0}

	a.logger.Debug("listing folders")
	folders, err := a.platform.Folders(ctx)
	if err != nil {
		return nil, fmt.Errorf("list folders: %w", err)
	}
	folderTitles := make(map[string]string, len(folders))
	folderIDs := make(map[string]string, len(folders))
	for _, folder := range folders {
		folderTitles[folder.ID] = folder.Title
		folderIDs[folder.Title] = folder.ID
	}

	a.logger.Debug("listing groups")
	groups, err := a.platform.SearchGroups(ctx, "title:*")
	if err != nil {
		return nil, fmt.Errorf("search groups: %w", err)
	}
	groupIDs := make(map[string]string, len(groups))
	for _, group := range groups {
		if _, ok := groupIDs[group.Title]; !ok {
			groupIDs[group.Title] = group.ID
		}
	}

	checker := NewChecker(a.table, a.opts, a.logger)
	applier := NewApplier(a.platform, groupIDs, folderIDs, a.opts, a.logger)

	var states []*ItemState
	if run.Spot {
		for _, id := range ids {
			item, err := a.platform.Item(ctx, id)
			if err != nil {
				a.logger.Error("item lookup failed", "item", id, "error", err)
				run.Items = append(run.Items, Result{ItemID: id, Errors: []string{err.Error()}})
				continue
			}
			title, ok := folderTitles[item.OwnerFolder]
			if item.OwnerFolder != "" && !ok {
				a.logger.Error("item folder not found", "item", id, "folder", item.OwnerFolder)
				run.Items = append(run.Items, Result{
					ItemID: id,
					Title:  item.Title,
					Errors: []string{fmt.Sprintf("folder %s not found, item may belong to another user", item.OwnerFolder)},
				})
				continue
			}
			states = append(states, a.state(ctx, item, title, item.OwnerFolder))
		}
	} else {
		enumerate := func(folderID, title string) error {
			items, err := a.platform.FolderItems(ctx, folderID)
			if err != nil {
				return fmt.Errorf("list items in folder %q: %w", title, err)
			}
			for i := range items {
				item := &items[i]
				if item.Type != "Feature Service" {
					a.logger.Debug("skipping item", "item", item.ID, "type", item.Type)
					continue
				}
				states = append(states, a.state(ctx, item, title, folderID))
			}
			return nil
		}
		if err := enumerate("", ""); err != nil {
			return nil, err
		}
		for _, folder := range folders {
			if err := enumerate(folder.ID, folder.Title); err != nil {
				return nil, err
			}
		}
	}

	a.logger.Info("auditing items", "count", len(states), "dry_run", a.opts.DryRun)
	for i, state := range states {
		a.logger.Debug("checking item", "title", state.Title, "n", i+1, "total", len(states))
		result := checker.Check(state)
		result.Outcomes = applier.Apply(ctx, state, result.Corrections)
		run.Items = append(run.Items, result)
	}

	run.DuplicateTitles = DuplicateTitles(states)

	for _, res := range run.Items {
		if res.Failed() {
			run.Failures++
		}
	}
	run.FinishedAt = time.Now()
	a.logger.Info("audit finished",
		"items", len(run.Items), "failures", run.Failures,
		"elapsed", run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
	return run, nil
}

// state fetches the per-item details the checks need. Group and service
// definition problems are recorded, not fatal.
func (a *Auditor) state(ctx context.Context, item *arcgis.Item, folderTitle, folderID string) *ItemState {
	state := &ItemState{
		ID:            strings.ToLower(item.ID),
		Title:         item.Title,
		Type:          item.Type,
		Tags:          item.Tags,
		Description:   item.Description,
		Thumbnail:     item.Thumbnail,
		Folder:        folderTitle,
		FolderID:      folderID,
		Protected:     item.Protected,
		ContentStatus: item.ContentStatus,
		ServiceURL:    item.URL,
	}

	groups, err := a.platform.ItemGroups(ctx, item.ID)
	if err != nil {
		state.GroupsErr = err
	} else {
		state.Groups = groups
	}

	if item.URL != "" {
		def, err := a.platform.ServiceDefinition(ctx, item.URL)
		if err != nil {
			a.logger.Debug("service definition unavailable", "item", item.ID, "error", err)
		} else {
			state.Definition = def
		}
	}
	return state
}
