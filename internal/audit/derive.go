package audit

import (
	"strings"

	"github.com/agrc/auditor/internal/metatable"
)

const (
	shelfGroup  = "UGRC Shelf"
	shelfFolder = "UGRC_Shelved"
	groupPrefix = "Utah SGID "

	deprecatedPrefix = "{Deprecated} "
)

// sgidCategories maps the schema portion of a source table name to the word
// used in group titles, folder names and category tags.
var sgidCategories = map[string]string{
	"BIOSCIENCE":     "Bioscience",
	"BOUNDARIES":     "Boundaries",
	"CADASTRE":       "Cadastre",
	"CLIMATE":        "Climate",
	"DEMOGRAPHIC":    "Demographic",
	"ECONOMY":        "Economy",
	"ELEVATION":      "Elevation",
	"ENERGY":         "Energy",
	"ENVIRONMENT":    "Environment",
	"FARMING":        "Farming",
	"GEOSCIENCE":     "Geoscience",
	"HEALTH":         "Health",
	"HISTORY":        "History",
	"INDICES":        "Indices",
	"LOCATION":       "Location",
	"PLANNING":       "Planning",
	"POLITICAL":      "Political",
	"RASTER":         "Raster",
	"RECREATION":     "Recreation",
	"SOCIETY":        "Society",
	"TRANSPORTATION": "Transportation",
	"UTILITIES":      "Utilities",
	"WATER":          "Water",
}

// deriveGroupFolder resolves the group and folder an item belongs in from its
// reference row. Shelved items live on the shelf regardless of their source
// table. ok is false when the table's schema is not a known SGID category.
func deriveGroupFolder(row metatable.Row) (group, folder string, ok bool) {
	if row.Shelved() {
		return shelfGroup, shelfFolder, true
	}
	parts := strings.Split(row.TableName, ".")
	if len(parts) < 2 {
		return "", "", false
	}
	word, known := sgidCategories[strings.ToUpper(parts[1])]
	if !known {
		return "", "", false
	}
	return groupPrefix + word, word, true
}

// groupTag returns the category tag an item should carry: Shelved for shelf
// items, otherwise the group title without its prefix.
func groupTag(row metatable.Row, group string) string {
	if row.Shelved() {
		return "Shelved"
	}
	return strings.TrimPrefix(group, groupPrefix)
}

// desiredStatus translates the reference authoritative flag into a content
// status. Anything besides y or d means the status should be unset.
func desiredStatus(authoritative string) string {
	switch strings.ToLower(authoritative) {
	case "y":
		return "public_authoritative"
	case "d":
		return "deprecated"
	default:
		return ""
	}
}

// thumbnailName returns the expected thumbnail file for a group, the
// lowercased last word plus .png: "Utah SGID Boundaries" -> "boundaries.png".
func thumbnailName(group string) string {
	words := strings.Fields(group)
	if len(words) == 0 {
		return ""
	}
	return strings.ToLower(words[len(words)-1]) + ".png"
}
