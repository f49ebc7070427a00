package arcgis

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const pageSize = 100

// Folders lists the user's content folders. The root folder is not included;
// it is addressed with an empty folder ID.
func (c *Client) Folders(ctx context.Context) ([]Folder, error) {
	var resp userContentResponse
	if err := c.get(ctx, c.restURL("content", "users", c.username), url.Values{"num": {"1"}}, &resp); err != nil {
		return nil, fmt.Errorf("list folders: %w", err)
	}
	return resp.Folders, nil
}

// FolderItems lists every item in one folder, paging until the portal reports
// no further results. An empty folderID addresses the root folder.
func (c *Client) FolderItems(ctx context.Context, folderID string) ([]Item, error) {
	var items []Item
	start := 1
	for {
		query := url.Values{
			"num":   {strconv.Itoa(pageSize)},
			"start": {strconv.Itoa(start)},
		}
		var resp userContentResponse
		if err := c.get(ctx, c.restURL("content", "users", c.username, folderID), query, &resp); err != nil {
			return nil, fmt.Errorf("list items in folder %q: %w", folderID, err)
		}
		items = append(items, resp.Items...)
		if resp.NextStart <= 0 || len(resp.Items) == 0 {
			return items, nil
		}
		start = resp.NextStart
	}
}

// Item fetches a single item by ID.
func (c *Client) Item(ctx context.Context, id string) (*Item, error) {
	var item Item
	if err := c.get(ctx, c.restURL("content", "items", id), nil, &item); err != nil {
		return nil, fmt.Errorf("get item %s: %w", id, err)
	}
	if item.ID == "" {
		return nil, fmt.Errorf("get item %s: not found", id)
	}
	return &item, nil
}

// ItemGroups returns the titles of every group the item is shared with.
func (c *Client) ItemGroups(ctx context.Context, id string) ([]string, error) {
	var resp itemGroupsResponse
	if err := c.get(ctx, c.restURL("content", "items", id, "groups"), nil, &resp); err != nil {
		return nil, fmt.Errorf("get groups for item %s: %w", id, err)
	}

	seen := make(map[string]bool)
	var titles []string
	for _, bucket := range [][]Group{resp.Admin, resp.Member, resp.Other} {
		for _, g := range bucket {
			if !seen[g.Title] {
				seen[g.Title] = true
				titles = append(titles, g.Title)
			}
		}
	}
	return titles, nil
}

// SearchGroups returns every group matching the portal search query that is
// visible to the signed-in user.
func (c *Client) SearchGroups(ctx context.Context, q string) ([]Group, error) {
	var groups []Group
	start := 1
	for {
		query := url.Values{
			"q":     {q},
			"num":   {strconv.Itoa(pageSize)},
			"start": {strconv.Itoa(start)},
		}
		var resp groupSearchResponse
		if err := c.get(ctx, c.restURL("community", "groups"), query, &resp); err != nil {
			return nil, fmt.Errorf("search groups: %w", err)
		}
		groups = append(groups, resp.Results...)
		if resp.NextStart <= 0 || len(resp.Results) == 0 {
			return groups, nil
		}
		start = resp.NextStart
	}
}

// itemURL builds the user-scoped item operation URL. Item mutations go
// through the owning user and folder.
func (c *Client) itemURL(folderID, itemID, op string) string {
	return c.restURL("content", "users", c.username, folderID, "items", itemID, op)
}

// UpdateItem updates item fields (title, tags, description, contentStatus and
// friends) through the item update operation. Tags are passed as a single
// comma-separated value.
func (c *Client) UpdateItem(ctx context.Context, folderID, itemID string, fields url.Values) error {
	var resp successResponse
	if err := c.post(ctx, c.itemURL(folderID, itemID, "update"), fields, &resp); err != nil {
		return fmt.Errorf("update item %s: %w", itemID, err)
	}
	return checkSuccess(fmt.Sprintf("update item %s", itemID), resp)
}

// UpdateThumbnail replaces the item's thumbnail with the image file at path.
func (c *Client) UpdateThumbnail(ctx context.Context, folderID, itemID, path string) error {
	var resp successResponse
	if err := c.postFile(ctx, c.itemURL(folderID, itemID, "update"), "thumbnail", path, &resp); err != nil {
		return fmt.Errorf("update thumbnail for item %s: %w", itemID, err)
	}
	return checkSuccess(fmt.Sprintf("update thumbnail for item %s", itemID), resp)
}

// MoveItem moves the item into another folder. An empty target moves it to
// the root folder.
func (c *Client) MoveItem(ctx context.Context, folderID, itemID, targetFolderID string) error {
	if targetFolderID == "" {
		targetFolderID = "/"
	}
	form := url.Values{"folder": {targetFolderID}}
	var resp successResponse
	if err := c.post(ctx, c.itemURL(folderID, itemID, "move"), form, &resp); err != nil {
		return fmt.Errorf("move item %s: %w", itemID, err)
	}
	return checkSuccess(fmt.Sprintf("move item %s", itemID), resp)
}

// ProtectItem toggles delete protection on the item.
func (c *Client) ProtectItem(ctx context.Context, folderID, itemID string, protect bool) error {
	op := "protect"
	if !protect {
		op = "unprotect"
	}
	var resp successResponse
	if err := c.post(ctx, c.itemURL(folderID, itemID, op), nil, &resp); err != nil {
		return fmt.Errorf("%s item %s: %w", op, itemID, err)
	}
	return checkSuccess(fmt.Sprintf("%s item %s", op, itemID), resp)
}

// ShareItem shares the item with everyone, the organization, or groups, as
// asked. Sharing is additive; groups the item already belongs to keep it.
func (c *Client) ShareItem(ctx context.Context, folderID, itemID string, everyone, org bool, groups []string) error {
	form := url.Values{
		"everyone": {strconv.FormatBool(everyone)},
		"org":      {strconv.FormatBool(org)},
		"groups":   {strings.Join(groups, ",")},
	}
	var resp shareResponse
	if err := c.post(ctx, c.itemURL(folderID, itemID, "share"), form, &resp); err != nil {
		return fmt.Errorf("share item %s: %w", itemID, err)
	}
	if len(resp.NotSharedWith) > 0 {
		return fmt.Errorf("share item %s: not shared with %v", itemID, resp.NotSharedWith)
	}
	return nil
}
