package audit

// DuplicateTitles returns titles shared by more than one audited item,
// mapped to the ids that carry them. Duplicate titles break open-data
// harvesting and have no automated fix.
func DuplicateTitles(items []*ItemState) map[string][]string {
	byTitle := make(map[string][]string)
	for _, item := range items {
		byTitle[item.Title] = append(byTitle[item.Title], item.ID)
	}

	duplicates := make(map[string][]string)
	for title, ids := range byTitle {
		if len(ids) > 1 {
			duplicates[title] = ids
		}
	}
	return duplicates
}
