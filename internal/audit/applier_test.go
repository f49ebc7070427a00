package audit

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"testing"

	"github.com/agrc/auditor/internal/arcgis"
)

// fakePlatform records every write so tests can assert what was pushed.
type fakePlatform struct {
	folders   []arcgis.Folder
	byFolder  map[string][]arcgis.Item
	items     map[string]*arcgis.Item
	groups    map[string][]string
	orgGroups []arcgis.Group
	defs      map[string]*arcgis.ServiceDefinition

	updates      map[string][]url.Values
	thumbnails   map[string]string
	moves        map[string]string
	protects     map[string]bool
	shares       map[string][]string
	defChanges   map[string][]map[string]any
	layerChanges map[string][]int

	updateErr error
	writes    int
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		byFolder:     make(map[string][]arcgis.Item),
		items:        make(map[string]*arcgis.Item),
		groups:       make(map[string][]string),
		defs:         make(map[string]*arcgis.ServiceDefinition),
		updates:      make(map[string][]url.Values),
		thumbnails:   make(map[string]string),
		moves:        make(map[string]string),
		protects:     make(map[string]bool),
		shares:       make(map[string][]string),
		defChanges:   make(map[string][]map[string]any),
		layerChanges: make(map[string][]int),
	}
}

func (f *fakePlatform) Folders(context.Context) ([]arcgis.Folder, error) {
	return f.folders, nil
}

func (f *fakePlatform) FolderItems(_ context.Context, folderID string) ([]arcgis.Item, error) {
	return f.byFolder[folderID], nil
}

func (f *fakePlatform) Item(_ context.Context, id string) (*arcgis.Item, error) {
	item, ok := f.items[id]
	if !ok {
		return nil, fmt.Errorf("item %s does not exist", id)
	}
	return item, nil
}

func (f *fakePlatform) ItemGroups(_ context.Context, id string) ([]string, error) {
	return f.groups[id], nil
}

func (f *fakePlatform) SearchGroups(context.Context, string) ([]arcgis.Group, error) {
	return f.orgGroups, nil
}

func (f *fakePlatform) ServiceDefinition(_ context.Context, serviceURL string) (*arcgis.ServiceDefinition, error) {
	def, ok := f.defs[serviceURL]
	if !ok {
		return nil, fmt.Errorf("no definition at %s", serviceURL)
	}
	return def, nil
}

func (f *fakePlatform) UpdateItem(_ context.Context, folderID, itemID string, fields url.Values) error {
	f.writes++
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updates[itemID] = append(f.updates[itemID], fields)
	return nil
}

func (f *fakePlatform) UpdateThumbnail(_ context.Context, folderID, itemID, path string) error {
	f.writes++
	f.thumbnails[itemID] = path
	return nil
}

func (f *fakePlatform) MoveItem(_ context.Context, folderID, itemID, targetFolderID string) error {
	f.writes++
	f.moves[itemID] = targetFolderID
	return nil
}

func (f *fakePlatform) ProtectItem(_ context.Context, folderID, itemID string, protect bool) error {
	f.writes++
	f.protects[itemID] = protect
	return nil
}

func (f *fakePlatform) ShareItem(_ context.Context, folderID, itemID string, everyone, org bool, groups []string) error {
	f.writes++
	if !everyone || !org {
		return errors.New("expected items to be shared publicly")
	}
	f.shares[itemID] = append(f.shares[itemID], groups...)
	return nil
}

func (f *fakePlatform) UpdateServiceDefinition(_ context.Context, serviceURL string, updates map[string]any) error {
	f.writes++
	f.defChanges[serviceURL] = append(f.defChanges[serviceURL], updates)
	return nil
}

func (f *fakePlatform) UpdateLayerDefinition(_ context.Context, serviceURL string, layer int, updates map[string]any) error {
	f.writes++
	f.layerChanges[serviceURL] = append(f.layerChanges[serviceURL], layer)
	return nil
}

func testState() *ItemState {
	return &ItemState{
		ID:         idCounties,
		Title:      "Utah Counties",
		FolderID:   "f1",
		ServiceURL: "https://services.arcgis.com/x/rest/services/Counties/FeatureServer",
	}
}

func TestApplyDryRunTouchesNothing(t *testing.T) {
	platform := newFakePlatform()
	applier := NewApplier(platform, nil, nil, Options{DryRun: true, Retries: 1}, discardLogger())

	corrections := []Correction{
		{Field: FieldTitle, Current: "old", Desired: "new"},
		{Field: FieldProtection, Current: "false", Desired: "true"},
		{Field: FieldGroup, Current: "", Desired: "Utah SGID Boundaries"},
	}
	outcomes := applier.Apply(context.Background(), testState(), corrections)

	if platform.writes != 0 {
		t.Errorf("dry run made %d platform writes", platform.writes)
	}
	if len(outcomes) != len(corrections) {
		t.Fatalf("expected %d outcomes, got %d", len(corrections), len(outcomes))
	}
	for _, out := range outcomes {
		if !out.DryRun || out.Applied || out.Err != nil {
			t.Errorf("unexpected dry run outcome %+v", out)
		}
	}
}

func TestApplyDispatch(t *testing.T) {
	platform := newFakePlatform()
	groups := map[string]string{"Utah SGID Boundaries": "g1"}
	folders := map[string]string{"Boundaries": "f2"}
	applier := NewApplier(platform, groups, folders, Options{Retries: 1}, discardLogger())

	state := testState()
	corrections := []Correction{
		{Field: FieldTitle, Desired: "Utah Counties"},
		{Field: FieldTags, Desired: "Boundaries, SGID, UGRC"},
		{Field: FieldDescription, Desired: "<i>note</i><div><br />text"},
		{Field: FieldStatus, Desired: "public_authoritative"},
		{Field: FieldGroup, Desired: "Utah SGID Boundaries"},
		{Field: FieldFolder, Desired: "Boundaries"},
		{Field: FieldThumbnail, Desired: "thumbnails/boundaries.png"},
		{Field: FieldProtection, Desired: "true"},
		{Field: FieldDownloads, Desired: "Query,Extract"},
		{Field: FieldCacheAge, Desired: "86400"},
	}
	outcomes := applier.Apply(context.Background(), state, corrections)

	for _, out := range outcomes {
		if out.Err != nil || !out.Applied {
			t.Errorf("outcome for %s: applied=%v err=%v", out.Field, out.Applied, out.Err)
		}
	}

	updates := platform.updates[state.ID]
	if len(updates) != 4 {
		t.Fatalf("expected 4 item updates, got %d", len(updates))
	}
	if got := updates[1].Get("tags"); got != "Boundaries,SGID,UGRC" {
		t.Errorf("tags pushed as %q", got)
	}
	if platform.shares[state.ID][0] != "g1" {
		t.Errorf("shared with %v, want [g1]", platform.shares[state.ID])
	}
	if platform.moves[state.ID] != "f2" {
		t.Errorf("moved to %q, want f2", platform.moves[state.ID])
	}
	if platform.thumbnails[state.ID] != "thumbnails/boundaries.png" {
		t.Errorf("thumbnail pushed as %q", platform.thumbnails[state.ID])
	}
	if !platform.protects[state.ID] {
		t.Error("expected the item to be protected")
	}

	defChanges := platform.defChanges[state.ServiceURL]
	if len(defChanges) != 2 {
		t.Fatalf("expected 2 definition updates, got %d", len(defChanges))
	}
	if defChanges[0]["capabilities"] != "Query,Extract" {
		t.Errorf("capabilities pushed as %v", defChanges[0])
	}
	if defChanges[1]["cacheMaxAge"] != 86400 {
		t.Errorf("cacheMaxAge pushed as %v", defChanges[1])
	}
}

func TestApplyClearsContentStatus(t *testing.T) {
	platform := newFakePlatform()
	applier := NewApplier(platform, nil, nil, Options{Retries: 1}, discardLogger())

	state := testState()
	applier.Apply(context.Background(), state, []Correction{
		{Field: FieldStatus, Current: "deprecated", Desired: ""},
	})

	updates := platform.updates[state.ID]
	if len(updates) != 1 {
		t.Fatalf("expected 1 update, got %d", len(updates))
	}
	if updates[0].Get("clearEmptyFields") != "true" {
		t.Errorf("expected clearEmptyFields for an empty status, got %v", updates[0])
	}
}

func TestApplyVisibility(t *testing.T) {
	platform := newFakePlatform()
	applier := NewApplier(platform, nil, nil, Options{Retries: 1}, discardLogger())

	state := testState()
	state.Definition = &arcgis.ServiceDefinition{Layers: []arcgis.Layer{
		{ID: 0, DefaultVisibility: true},
		{ID: 1, DefaultVisibility: false},
		{ID: 2, DefaultVisibility: false},
	}}

	outcomes := applier.Apply(context.Background(), state, []Correction{
		{Field: FieldVisibility, Current: "hidden layers: 1, 2", Desired: "visible"},
	})

	if outcomes[0].Err != nil || !outcomes[0].Applied {
		t.Fatalf("visibility fix not applied: %+v", outcomes[0])
	}
	layers := platform.layerChanges[state.ServiceURL]
	if len(layers) != 2 || layers[0] != 1 || layers[1] != 2 {
		t.Errorf("expected only the hidden layers updated, got %v", layers)
	}
}

func TestApplyVisibilityWithoutDefinition(t *testing.T) {
	applier := NewApplier(newFakePlatform(), nil, nil, Options{Retries: 1}, discardLogger())

	outcomes := applier.Apply(context.Background(), testState(), []Correction{
		{Field: FieldVisibility, Current: "hidden layers: 0", Desired: "visible"},
	})
	if outcomes[0].Err == nil {
		t.Fatal("expected an error when the service definition is missing")
	}
}

func TestApplyUnknownGroup(t *testing.T) {
	platform := newFakePlatform()
	applier := NewApplier(platform, map[string]string{}, nil, Options{Retries: 1}, discardLogger())

	outcomes := applier.Apply(context.Background(), testState(), []Correction{
		{Field: FieldGroup, Desired: "Utah SGID Boundaries"},
	})

	if outcomes[0].Err == nil {
		t.Fatal("expected an error for a group missing from the organization")
	}
	if platform.writes != 0 {
		t.Errorf("missing group still caused %d writes", platform.writes)
	}
}

func TestApplyRecordsFailure(t *testing.T) {
	platform := newFakePlatform()
	platform.updateErr = errors.New("portal is down")
	applier := NewApplier(platform, nil, nil, Options{Retries: 1}, discardLogger())

	outcomes := applier.Apply(context.Background(), testState(), []Correction{
		{Field: FieldTitle, Desired: "Utah Counties"},
		{Field: FieldProtection, Desired: "true"},
	})

	if outcomes[0].Err == nil || outcomes[0].Applied {
		t.Errorf("expected the title fix to fail, got %+v", outcomes[0])
	}
	// A failed fix must not stop the rest.
	if outcomes[1].Err != nil || !outcomes[1].Applied {
		t.Errorf("expected the protection fix to continue, got %+v", outcomes[1])
	}
}

func TestRetryEventuallySucceeds(t *testing.T) {
	applier := NewApplier(newFakePlatform(), nil, nil, Options{Retries: 3}, discardLogger())

	calls := 0
	err := applier.retry(context.Background(), func() error {
		calls++
		if calls < 2 {
			return errors.New("flaky network")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestRetryGivesUp(t *testing.T) {
	applier := NewApplier(newFakePlatform(), nil, nil, Options{Retries: 1}, discardLogger())

	calls := 0
	err := applier.retry(context.Background(), func() error {
		calls++
		return errors.New("still broken")
	})
	if err == nil {
		t.Fatal("expected the final error to surface")
	}
	if calls != 1 {
		t.Errorf("expected exactly 1 call with retries=1, got %d", calls)
	}
}
