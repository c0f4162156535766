package metadata

import "strings"

// Category is the closed six-way classification used to pick a destination
// folder. String-keyed folder names live in per-target lookup tables, never
// here.
type Category string

const (
	CategoryMovies           Category = "movies"
	CategoryMalayalamMovies  Category = "malayalam_movies"
	CategoryBollywoodMovies  Category = "bollywood_movies"
	CategoryTVShows          Category = "tv_shows"
	CategoryMalayalamTVShows Category = "malayalam_tv_shows"
	CategoryMusic            Category = "music"
)

var allCategories = []Category{
	CategoryMovies,
	CategoryMalayalamMovies,
	CategoryBollywoodMovies,
	CategoryTVShows,
	CategoryMalayalamTVShows,
	CategoryMusic,
}

// AllCategories returns the closed category set.
func AllCategories() []Category {
	cp := make([]Category, len(allCategories))
	copy(cp, allCategories)
	return cp
}

// ParseCategory converts a string into a known Category.
func ParseCategory(value string) (Category, bool) {
	normalized := Category(strings.ToLower(strings.TrimSpace(value)))
	for _, category := range allCategories {
		if category == normalized {
			return category, true
		}
	}
	return "", false
}

// categoryForLanguage maps a primary language signal onto a category.
// English always lands in the general categories; the Hindi film category
// has no TV variant, so Hindi series use the general TV category.
func categoryForLanguage(language string, series bool) Category {
	switch normalizeLanguage(language) {
	case "malayalam":
		if series {
			return CategoryMalayalamTVShows
		}
		return CategoryMalayalamMovies
	case "hindi":
		if series {
			return CategoryTVShows
		}
		return CategoryBollywoodMovies
	default:
		if series {
			return CategoryTVShows
		}
		return CategoryMovies
	}
}

// fallbackCategory is the deliberate default when no source matched.
func fallbackCategory(series bool) Category {
	if series {
		return CategoryMalayalamTVShows
	}
	return CategoryMalayalamMovies
}
