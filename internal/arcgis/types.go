package arcgis

import "fmt"

// Item is the subset of an ArcGIS Online item resource the auditor works with.
type Item struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Type          string   `json:"type"`
	Tags          []string `json:"tags"`
	Description   string   `json:"description"`
	Thumbnail     string   `json:"thumbnail"`
	URL           string   `json:"url"`
	Protected     bool     `json:"protected"`
	ContentStatus string   `json:"contentStatus"`
	OwnerFolder   string   `json:"ownerFolder"`
}

// Folder is a folder in a user's content.
type Folder struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Group is an organization group.
type Group struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// ServiceDefinition holds the admin-level feature service properties the
// auditor checks. Capabilities is a comma-separated list ("Query,Extract").
type ServiceDefinition struct {
	Capabilities     string           `json:"capabilities"`
	AdminServiceInfo AdminServiceInfo `json:"adminServiceInfo"`
	Layers           []Layer          `json:"layers"`
}

// Layer is the admin view of one layer in a hosted feature service.
type Layer struct {
	ID                int    `json:"id"`
	Name              string `json:"name"`
	DefaultVisibility bool   `json:"defaultVisibility"`
}

// AdminServiceInfo carries service settings only exposed on the admin endpoint.
type AdminServiceInfo struct {
	Name        string `json:"name"`
	CacheMaxAge int    `json:"cacheMaxAge"`
}

// Error is an error envelope returned by the sharing API. The portal returns
// these inside HTTP 200 responses, so they are detected by inspecting bodies.
type Error struct {
	Code    int      `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details"`
}

func (e *Error) Error() string {
	if len(e.Details) > 0 {
		return fmt.Sprintf("arcgis: %s (code %d): %s", e.Message, e.Code, e.Details[0])
	}
	return fmt.Sprintf("arcgis: %s (code %d)", e.Message, e.Code)
}

// invalidTokenCode is returned by the portal when a token has expired or been
// invalidated server-side. The client re-authenticates once when it sees it.
const invalidTokenCode = 498

// --- wire envelopes ---

type tokenResponse struct {
	Token   string `json:"token"`
	Expires int64  `json:"expires"` // epoch milliseconds
}

type userContentResponse struct {
	Total     int      `json:"total"`
	Start     int      `json:"start"`
	Num       int      `json:"num"`
	NextStart int      `json:"nextStart"`
	Folders   []Folder `json:"folders"`
	Items     []Item   `json:"items"`
}

type groupSearchResponse struct {
	Total     int     `json:"total"`
	NextStart int     `json:"nextStart"`
	Results   []Group `json:"results"`
}

type itemGroupsResponse struct {
	Admin  []Group `json:"admin"`
	Member []Group `json:"member"`
	Other  []Group `json:"other"`
}

type successResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
}

type shareResponse struct {
	ItemID        string   `json:"itemId"`
	NotSharedWith []string `json:"notSharedWith"`
}

type feature struct {
	Attributes map[string]any `json:"attributes"`
}

type queryResponse struct {
	Features              []feature `json:"features"`
	ExceededTransferLimit bool      `json:"exceededTransferLimit"`
}
