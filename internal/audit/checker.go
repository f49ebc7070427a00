package audit

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/agrc/auditor/internal/arcgis"
	"github.com/agrc/auditor/internal/metatable"
)

// Field identifies one audited metadata facet.
type Field string

const (
	FieldTags        Field = "tags"
	FieldTitle       Field = "title"
	FieldFolder      Field = "folder"
	FieldGroup       Field = "group"
	FieldDownloads   Field = "downloads"
	FieldProtection  Field = "delete_protection"
	FieldDescription Field = "description"
	FieldThumbnail   Field = "thumbnail"
	FieldStatus      Field = "content_status"
	FieldVisibility  Field = "visibility"
	FieldCacheAge    Field = "cache_age"
)

// Correction records one metadata drift: what a field holds and what it
// should hold.
type Correction struct {
	Field   Field  `json:"field"`
	Current string `json:"current"`
	Desired string `json:"desired"`
}

// ItemState gathers everything about a hosted item the checks need, fetched
// once up front.
type ItemState struct {
	ID            string
	Title         string
	Type          string
	Tags          []string
	Description   string
	Thumbnail     string
	Folder        string
	FolderID      string
	Groups        []string
	GroupsErr     error
	Protected     bool
	ContentStatus string
	ServiceURL    string
	Definition    *arcgis.ServiceDefinition
}

// Result is the audit outcome for a single item.
type Result struct {
	ItemID      string
	Title       string
	SourceTable string
	Matched     bool
	Corrections []Correction
	Outcomes    []Outcome
	Notes       []string
	Errors      []string
}

// Failed reports whether the item hit any error while checking or fixing.
func (r Result) Failed() bool {
	if len(r.Errors) > 0 {
		return true
	}
	for _, out := range r.Outcomes {
		if out.Err != nil {
			return true
		}
	}
	return false
}

// Options tune the checks and fixes.
type Options struct {
	ThumbnailDir string
	StaticNote   string
	ShelvedNote  string
	CacheMaxAge  int
	Retries      int
	DryRun       bool
}

// Checker computes the corrections for one item at a time. Items with a
// reference row get the full battery; unmatched items still get their tags
// normalized and the flag checks.
type Checker struct {
	table  *metatable.Table
	norm   *TagNormalizer
	opts   Options
	logger *slog.Logger
}

func NewChecker(table *metatable.Table, opts Options, logger *slog.Logger) *Checker {
	return &Checker{table: table, norm: NewTagNormalizer(), opts: opts, logger: logger}
}

// Check compares one item's metadata against its reference row and the
// organization conventions.
func (c *Checker) Check(item *ItemState) Result {
	res := Result{ItemID: item.ID, Title: item.Title}

	row, matched := c.table.Lookup(item.ID)
	res.Matched = matched

	var expectedTitle, group, folder, catTag, status string
	var static bool
	if matched {
		res.SourceTable = row.TableName
		expectedTitle = row.PublishedName
		status = desiredStatus(row.Authoritative)
		static = row.Static()

		var ok bool
		group, folder, ok = deriveGroupFolder(row)
		if !ok {
			c.logger.Warn("source table has no known category",
				"item", item.ID, "table", row.TableName)
			res.Notes = append(res.Notes, fmt.Sprintf("no known category for source table %s", row.TableName))
		} else {
			catTag = groupTag(row, group)
		}
	}

	report := func(field Field, current, desired string) {
		res.Corrections = append(res.Corrections, Correction{Field: field, Current: current, Desired: desired})
	}

	// tags
	titleForTags := item.Title
	if expectedTitle != "" {
		titleForTags = expectedTitle
	}
	desiredTags := c.norm.Normalize(item.Tags, titleForTags, catTag, static)
	if !sameTagSet(item.Tags, desiredTags) {
		report(FieldTags, strings.Join(item.Tags, ", "), strings.Join(desiredTags, ", "))
	}

	// title, including the deprecated prefix
	newTitle := item.Title
	if expectedTitle != "" && expectedTitle != strings.TrimPrefix(item.Title, deprecatedPrefix) {
		newTitle = expectedTitle
	}
	if status == "deprecated" && !strings.Contains(strings.ToLower(newTitle), "deprecated") {
		newTitle = deprecatedPrefix + newTitle
	}
	if newTitle != item.Title {
		report(FieldTitle, item.Title, newTitle)
	}

	// folder
	if folder != "" && folder != item.Folder {
		report(FieldFolder, item.Folder, folder)
	}

	// group
	if item.GroupsErr != nil {
		res.Notes = append(res.Notes, "can't read item groups")
	} else if group != "" && !slices.Contains(item.Groups, group) {
		report(FieldGroup, strings.Join(item.Groups, ", "), group)
	}

	// export capability
	if item.Definition != nil && !strings.Contains(item.Definition.Capabilities, "Extract") {
		desired := "Extract"
		if item.Definition.Capabilities != "" {
			desired = item.Definition.Capabilities + ",Extract"
		}
		report(FieldDownloads, item.Definition.Capabilities, desired)
	}

	// delete protection
	if !item.Protected {
		report(FieldProtection, "false", "true")
	}

	// description note for static and shelved layers
	var note string
	if matched && static {
		note = c.opts.StaticNote
	} else if matched && row.Shelved() {
		note = c.opts.ShelvedNote
	}
	if note != "" && !strings.HasPrefix(item.Description, note) {
		report(FieldDescription, item.Description, note+"<div><br />"+item.Description)
	}

	// thumbnail
	if group != "" {
		name := thumbnailName(group)
		path := filepath.Join(c.opts.ThumbnailDir, name)
		if _, err := os.Stat(path); err != nil {
			res.Notes = append(res.Notes, fmt.Sprintf("thumbnail not found: %s", path))
		} else if filepath.Base(item.Thumbnail) != name {
			report(FieldThumbnail, item.Thumbnail, path)
		}
	}

	// content status
	if matched && item.ContentStatus != status {
		report(FieldStatus, item.ContentStatus, status)
	}

	// layer visibility
	if item.Definition != nil {
		var hidden []string
		for _, layer := range item.Definition.Layers {
			if !layer.DefaultVisibility {
				hidden = append(hidden, strconv.Itoa(layer.ID))
			}
		}
		if len(hidden) > 0 {
			report(FieldVisibility, "hidden layers: "+strings.Join(hidden, ", "), "visible")
		}
	}

	// cache control
	if c.opts.CacheMaxAge > 0 && item.Definition != nil {
		current := item.Definition.AdminServiceInfo.CacheMaxAge
		if current != c.opts.CacheMaxAge {
			report(FieldCacheAge, strconv.Itoa(current), strconv.Itoa(c.opts.CacheMaxAge))
		}
	}

	return res
}

// sameTagSet compares two tag lists ignoring order.
func sameTagSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := slices.Clone(a)
	bs := slices.Clone(b)
	slices.Sort(as)
	slices.Sort(bs)
	return slices.Equal(as, bs)
}
