package categorize

import "regexp"

const (
	CategoryFeature     = "feature"
	CategoryFix         = "fix"
	CategoryImprovement = "improvement"
	CategoryBreaking    = "breaking"
)

var categoryEmojis = map[string]string{
	CategoryFeature:     "✨",
	CategoryFix:         "🐛",
	CategoryImprovement: "💅",
	CategoryBreaking:    "⚠️",
}

// Keyword patterns checked in priority order: breaking beats fix beats feature.
var (
	breakingPattern = regexp.MustCompile(`(?i)\b(break|breaking|deprecat|remov|migration)`)
	fixPattern      = regexp.MustCompile(`(?i)\b(fix|bug|patch|hotfix|resolve|issue|error|crash)`)
	featurePattern  = regexp.MustCompile(`(?i)\b(feat|add|new|implement|introduc|creat|launch)`)
)

// EmojiForCategory returns the fixed emoji for a category, defaulting to the
// improvement emoji for anything unknown.
func EmojiForCategory(category string) string {
	emoji, ok := categoryEmojis[category]
	if !ok {
		return categoryEmojis[CategoryImprovement]
	}

	return emoji
}

// Fallback categorizes a PR from its title alone using keyword matching.
// It is pure and total: any input, including the empty string, yields a
// usable categorization. The pipeline leans on this when the AI service
// is unavailable.
func Fallback(title string) Categorization {
	switch {
	case breakingPattern.MatchString(title):
		return Categorization{Category: CategoryBreaking, Summary: title, Emoji: categoryEmojis[CategoryBreaking]}
	case fixPattern.MatchString(title):
		return Categorization{Category: CategoryFix, Summary: title, Emoji: categoryEmojis[CategoryFix]}
	case featurePattern.MatchString(title):
		return Categorization{Category: CategoryFeature, Summary: title, Emoji: categoryEmojis[CategoryFeature]}
	default:
		return Categorization{Category: CategoryImprovement, Summary: title, Emoji: categoryEmojis[CategoryImprovement]}
	}
}
