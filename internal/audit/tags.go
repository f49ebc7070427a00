package audit

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// uppercasedTags are acronyms that should be fully uppercased wherever they
// appear in a tag, stored lowercase for comparison.
var uppercasedTags = []string{
	"2g", "3g", "4g", "agol", "aog", "at&t", "atv", "blm", "brat", "caf",
	"cdl", "dabc", "daq", "dem", "dfcm", "dfirm", "dnr", "dogm", "dot",
	"dsl", "dsm", "dtm", "dup", "dwq", "e911", "ems", "epa", "fae", "fcc",
	"fema", "gcdb", "gis", "gnis", "hava", "huc", "lir", "lrs", "lte",
	"luca", "mrrc", "nca", "ng911", "ngda", "nox", "npsbn", "ntia", "nwi",
	"osa", "pli", "plss", "pm10", "ppm", "psap", "sao", "sbdc", "sbi",
	"sgid", "shpo", "sitla", "sligp", "trax", "uca", "udot", "ugrc", "ugs",
	"uhp", "uic", "uipa", "us", "usao", "usdw", "usfs", "usfws", "usps",
	"ustc", "ut", "uta", "utsc", "vcp", "vista", "voc", "wbd", "wre",
}

// articles stay lowercase inside tags.
var articles = []string{"a", "an", "the", "of", "is", "in"}

// deletableTags are junk tags left behind by publishing tools.
var deletableTags = []string{
	".sd",
	"service definition",
	"required: common-use word or phrase used to describe the subject of the data set",
	"002",
	"required: common-use word or phrase used to describe the subject of the data set.",
	"agrc",
}

// TagNormalizer cleans and completes an item's tag list.
type TagNormalizer struct {
	caser      cases.Caser
	uppercased map[string]bool
	articles   map[string]bool
	deletable  map[string]bool
}

func NewTagNormalizer() *TagNormalizer {
	return &TagNormalizer{
		caser:      cases.Title(language.AmericanEnglish),
		uppercased: toSet(uppercasedTags),
		articles:   toSet(articles),
		deletable:  toSet(deletableTags),
	}
}

func toSet(words []string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, word := range words {
		set[word] = true
	}
	return set
}

// Normalize returns the tags an item should carry. title is the name the
// item is supposed to have, used to drop tags that repeat it. groupTag is
// the category tag for matched items, empty otherwise; static marks
// hand-maintained layers. Normalizing an already normalized list returns it
// unchanged.
func (n *TagNormalizer) Normalize(tags []string, title, groupTag string, static bool) []string {
	titleWords := make(map[string]bool)
	titleHasUtah := false
	for _, word := range strings.Fields(title) {
		titleWords[strings.ToLower(word)] = true
		if word == "Utah" {
			titleHasUtah = true
		}
	}
	lowerTitle := strings.ToLower(title)

	var out []string
	keep := func(tag string) {
		for _, existing := range out {
			if existing == tag {
				return
			}
		}
		out = append(out, tag)
	}

	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		lower := strings.ToLower(tag)

		switch {
		case lower == "utah":
			// Utah only earns its keep when the title doesn't already say it.
			if !titleHasUtah {
				keep("Utah")
			}
		case n.deletable[lower]:
		case !strings.Contains(tag, " ") && titleWords[lower]:
			// single word already present in the title
		case strings.Contains(tag, " ") && strings.Contains(lowerTitle, lower):
			// multi-word tag repeating part of the title
		default:
			keep(n.tagCase(tag))
		}
	}

	if groupTag != "" {
		// Replace a stray lowercase category tag with the cased one.
		for i, tag := range out {
			if tag == strings.ToLower(groupTag) && tag != groupTag {
				out = append(out[:i], out[i+1:]...)
				break
			}
		}
		keep(groupTag)

		if static {
			keep("Static")
			for i, tag := range out {
				if tag == "Shelved" {
					out = append(out[:i], out[i+1:]...)
					break
				}
			}
		}

		keep("SGID")
		keep("UGRC")
	}

	return out
}

// tagCase recases one tag word by word, stripping periods: "U.S. bureau Of
// Geoinformation" becomes "US Bureau of Geoinformation". Known acronyms are
// uppercased, articles lowercased, everything else title-cased.
func (n *TagNormalizer) tagCase(tag string) string {
	words := strings.Fields(tag)
	for i, word := range words {
		cleaned := strings.ReplaceAll(word, ".", "")
		lower := strings.ToLower(cleaned)
		switch {
		case n.uppercased[lower]:
			words[i] = strings.ToUpper(cleaned)
		case n.articles[lower]:
			words[i] = lower
		default:
			words[i] = n.caser.String(cleaned)
		}
	}
	return strings.Join(words, " ")
}
