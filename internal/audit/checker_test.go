package audit

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/agrc/auditor/internal/arcgis"
	"github.com/agrc/auditor/internal/metatable"
)

const (
	idCounties = "3527d7ffa9e34380b4a5e5c8a1b2c3d4"
	idOrphan   = "543fa1f073714198a3dbf8a8a50b8b0a"
	idShelved  = "cbc3a2f150bb4e0d9e3cdaba83ad7dbd"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testTable() *metatable.Table {
	return &metatable.Table{Rows: map[string]metatable.Row{
		idCounties: {
			TableName:     "SGID10.BOUNDARIES.Counties",
			ItemID:        idCounties,
			PublishedName: "Utah Counties",
			Category:      metatable.CategorySGID,
			Authoritative: "y",
			Source:        "sgid",
		},
		idShelved: {
			TableName:     "SGID10.RECREATION.TrailsOld",
			ItemID:        idShelved,
			PublishedName: "Utah Trails Old",
			Category:      metatable.CategoryShelved,
			Authoritative: "n",
			Source:        "shelved",
		},
	}}
}

// thumbnailDir creates a directory holding the named thumbnail files.
func thumbnailDir(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("png"), 0644); err != nil {
			t.Fatalf("write thumbnail: %v", err)
		}
	}
	return dir
}

func testOptions(t *testing.T) Options {
	return Options{
		ThumbnailDir: thumbnailDir(t, "boundaries.png", "shelf.png"),
		StaticNote:   "<i>static note</i>",
		ShelvedNote:  "<i>shelved note</i>",
		CacheMaxAge:  86400,
		Retries:      1,
	}
}

func findCorrection(t *testing.T, res Result, field Field) Correction {
	t.Helper()
	for _, cor := range res.Corrections {
		if cor.Field == field {
			return cor
		}
	}
	t.Fatalf("no %s correction in %+v", field, res.Corrections)
	return Correction{}
}

func hasCorrection(res Result, field Field) bool {
	for _, cor := range res.Corrections {
		if cor.Field == field {
			return true
		}
	}
	return false
}

func TestCheckSyncedItem(t *testing.T) {
	checker := NewChecker(testTable(), testOptions(t), discardLogger())

	res := checker.Check(&ItemState{
		ID:            idCounties,
		Title:         "Utah Counties",
		Type:          "Feature Service",
		Tags:          []string{"Boundaries", "SGID", "UGRC"},
		Description:   "County boundaries for Utah.",
		Thumbnail:     "thumbnail/boundaries.png",
		Folder:        "Boundaries",
		FolderID:      "f1",
		Groups:        []string{"Utah SGID Boundaries"},
		Protected:     true,
		ContentStatus: "public_authoritative",
		ServiceURL:    "https://services.arcgis.com/x/rest/services/Counties/FeatureServer",
		Definition: &arcgis.ServiceDefinition{
			Capabilities:     "Query,Extract",
			AdminServiceInfo: arcgis.AdminServiceInfo{Name: "Counties", CacheMaxAge: 86400},
			Layers:           []arcgis.Layer{{ID: 0, Name: "Counties", DefaultVisibility: true}},
		},
	})

	if !res.Matched {
		t.Error("expected the item to match its reference row")
	}
	if len(res.Corrections) != 0 {
		t.Errorf("expected a synced item to need nothing, got %+v", res.Corrections)
	}
	if res.SourceTable != "SGID10.BOUNDARIES.Counties" {
		t.Errorf("unexpected source table %q", res.SourceTable)
	}
}

func TestCheckDriftedItem(t *testing.T) {
	checker := NewChecker(testTable(), testOptions(t), discardLogger())

	res := checker.Check(&ItemState{
		ID:            idCounties,
		Title:         "counties of utah",
		Tags:          []string{".sd", "counties"},
		Description:   "County boundaries.",
		Thumbnail:     "thumbnail/ago_downloaded.png",
		Folder:        "",
		Groups:        []string{},
		Protected:     false,
		ContentStatus: "",
		ServiceURL:    "https://services.arcgis.com/x/rest/services/Counties/FeatureServer",
		Definition: &arcgis.ServiceDefinition{
			Capabilities:     "Query",
			AdminServiceInfo: arcgis.AdminServiceInfo{CacheMaxAge: 300},
		},
	})

	title := findCorrection(t, res, FieldTitle)
	if title.Desired != "Utah Counties" {
		t.Errorf("title desired = %q, want Utah Counties", title.Desired)
	}

	tags := findCorrection(t, res, FieldTags)
	if tags.Desired != "Boundaries, SGID, UGRC" {
		t.Errorf("tags desired = %q", tags.Desired)
	}

	folder := findCorrection(t, res, FieldFolder)
	if folder.Desired != "Boundaries" || folder.Current != "" {
		t.Errorf("folder correction = %+v", folder)
	}

	group := findCorrection(t, res, FieldGroup)
	if group.Desired != "Utah SGID Boundaries" {
		t.Errorf("group desired = %q", group.Desired)
	}

	downloads := findCorrection(t, res, FieldDownloads)
	if downloads.Desired != "Query,Extract" {
		t.Errorf("downloads desired = %q", downloads.Desired)
	}

	if !hasCorrection(res, FieldProtection) {
		t.Error("expected a delete protection correction")
	}

	thumb := findCorrection(t, res, FieldThumbnail)
	if filepath.Base(thumb.Desired) != "boundaries.png" {
		t.Errorf("thumbnail desired = %q", thumb.Desired)
	}

	status := findCorrection(t, res, FieldStatus)
	if status.Desired != "public_authoritative" {
		t.Errorf("status desired = %q", status.Desired)
	}

	cache := findCorrection(t, res, FieldCacheAge)
	if cache.Current != "300" || cache.Desired != "86400" {
		t.Errorf("cache correction = %+v", cache)
	}
}

func TestCheckDeprecatedTitle(t *testing.T) {
	table := testTable()
	row := table.Rows[idCounties]
	row.Authoritative = "d"
	table.Rows[idCounties] = row

	checker := NewChecker(table, testOptions(t), discardLogger())

	// Title matches the reference but lacks the prefix.
	res := checker.Check(&ItemState{
		ID:        idCounties,
		Title:     "Utah Counties",
		Protected: true,
	})
	title := findCorrection(t, res, FieldTitle)
	if title.Desired != "{Deprecated} Utah Counties" {
		t.Errorf("title desired = %q", title.Desired)
	}

	// Already prefixed: the title needs nothing.
	res = checker.Check(&ItemState{
		ID:        idCounties,
		Title:     "{Deprecated} Utah Counties",
		Protected: true,
	})
	if hasCorrection(res, FieldTitle) {
		t.Errorf("expected no title correction, got %+v", res.Corrections)
	}

	status := findCorrection(t, res, FieldStatus)
	if status.Desired != "deprecated" {
		t.Errorf("status desired = %q", status.Desired)
	}
}

func TestCheckShelvedItem(t *testing.T) {
	checker := NewChecker(testTable(), testOptions(t), discardLogger())

	res := checker.Check(&ItemState{
		ID:          idShelved,
		Title:       "Utah Trails Old",
		Tags:        []string{"Shelved", "SGID", "UGRC"},
		Description: "An old trails dataset.",
		Thumbnail:   "thumbnail/boundaries.png",
		Folder:      "Recreation",
		Groups:      []string{"Utah SGID Recreation"},
		Protected:   true,
	})

	folder := findCorrection(t, res, FieldFolder)
	if folder.Desired != "UGRC_Shelved" {
		t.Errorf("folder desired = %q", folder.Desired)
	}

	group := findCorrection(t, res, FieldGroup)
	if group.Desired != "UGRC Shelf" {
		t.Errorf("group desired = %q", group.Desired)
	}

	desc := findCorrection(t, res, FieldDescription)
	want := "<i>shelved note</i><div><br />An old trails dataset."
	if desc.Desired != want {
		t.Errorf("description desired = %q, want %q", desc.Desired, want)
	}

	thumb := findCorrection(t, res, FieldThumbnail)
	if filepath.Base(thumb.Desired) != "shelf.png" {
		t.Errorf("thumbnail desired = %q", thumb.Desired)
	}
}

func TestCheckUnmatchedItem(t *testing.T) {
	checker := NewChecker(testTable(), testOptions(t), discardLogger())

	res := checker.Check(&ItemState{
		ID:        idOrphan,
		Title:     "Somebody's Scratch Layer",
		Tags:      []string{".sd", "scratch stuff"},
		Folder:    "Experiments",
		Protected: false,
	})

	if res.Matched {
		t.Error("expected no reference row")
	}
	if !hasCorrection(res, FieldTags) {
		t.Error("unmatched items still get tag cleanup")
	}
	if !hasCorrection(res, FieldProtection) {
		t.Error("unmatched items still get delete protection")
	}
	for _, field := range []Field{FieldTitle, FieldFolder, FieldGroup, FieldDescription, FieldThumbnail, FieldStatus} {
		if hasCorrection(res, field) {
			t.Errorf("unmatched item should not get a %s correction", field)
		}
	}
}

func TestCheckGroupsError(t *testing.T) {
	checker := NewChecker(testTable(), testOptions(t), discardLogger())

	res := checker.Check(&ItemState{
		ID:        idCounties,
		Title:     "Utah Counties",
		GroupsErr: errors.New("group query timed out"),
		Protected: true,
	})

	if hasCorrection(res, FieldGroup) {
		t.Error("group correction should be suppressed when groups are unreadable")
	}
	found := false
	for _, note := range res.Notes {
		if note == "can't read item groups" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a groups note, got %v", res.Notes)
	}
}

func TestCheckMissingThumbnail(t *testing.T) {
	opts := testOptions(t)
	opts.ThumbnailDir = t.TempDir()
	checker := NewChecker(testTable(), opts, discardLogger())

	res := checker.Check(&ItemState{
		ID:        idCounties,
		Title:     "Utah Counties",
		Thumbnail: "thumbnail/ago_downloaded.png",
		Protected: true,
	})

	if hasCorrection(res, FieldThumbnail) {
		t.Error("missing thumbnail file should suppress the correction")
	}
	if len(res.Notes) == 0 {
		t.Error("expected a note about the missing thumbnail file")
	}
}

func TestCheckHiddenLayers(t *testing.T) {
	checker := NewChecker(testTable(), testOptions(t), discardLogger())

	res := checker.Check(&ItemState{
		ID:        idCounties,
		Title:     "Utah Counties",
		Protected: true,
		Definition: &arcgis.ServiceDefinition{
			Capabilities:     "Query,Extract",
			AdminServiceInfo: arcgis.AdminServiceInfo{CacheMaxAge: 86400},
			Layers: []arcgis.Layer{
				{ID: 0, DefaultVisibility: true},
				{ID: 1, DefaultVisibility: false},
				{ID: 2, DefaultVisibility: false},
			},
		},
	})

	vis := findCorrection(t, res, FieldVisibility)
	if vis.Current != "hidden layers: 1, 2" || vis.Desired != "visible" {
		t.Errorf("visibility correction = %+v", vis)
	}
}

func TestCheckCacheAgeDisabled(t *testing.T) {
	opts := testOptions(t)
	opts.CacheMaxAge = 0
	checker := NewChecker(testTable(), opts, discardLogger())

	res := checker.Check(&ItemState{
		ID:        idCounties,
		Title:     "Utah Counties",
		Protected: true,
		Definition: &arcgis.ServiceDefinition{
			Capabilities:     "Query,Extract",
			AdminServiceInfo: arcgis.AdminServiceInfo{CacheMaxAge: 300},
		},
	})

	if hasCorrection(res, FieldCacheAge) {
		t.Error("cache check should be disabled when the configured age is zero")
	}
}
