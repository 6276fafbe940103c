package product

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Slugify lowercases the name and collapses every non-alphanumeric run
// into a single hyphen.
func Slugify(name string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastHyphen = false
		} else if !lastHyphen {
			b.WriteByte('-')
			lastHyphen = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

type slugChecker interface {
	SlugExists(ctx context.Context, slug string, exclude primitive.ObjectID) (bool, error)
}

// uniqueSlug resolves collisions by appending an incrementing numeric
// suffix: "widget", "widget-2", "widget-3", ...
func uniqueSlug(ctx context.Context, repo slugChecker, name string, exclude primitive.ObjectID) (string, error) {
	base := Slugify(name)
	if base == "" {
		base = "item"
	}

	candidate := base
	for i := 2; ; i++ {
		exists, err := repo.SlugExists(ctx, candidate, exclude)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
}
