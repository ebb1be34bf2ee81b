package utils

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == 11000 || e.Code == 11001 {
				return true
			}
		}
	}

	var bwe mongo.BulkWriteException
	if errors.As(err, &bwe) {
		for _, e := range bwe.WriteErrors {
			if e.Code == 11000 || e.Code == 11001 {
				return true
			}
		}
	}

	return strings.Contains(err.Error(), "E11000 duplicate key error")
}

func ParseIntDefault(v string, def int) int {
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// Page is a validated page/limit pair.
type Page struct {
	Page  int
	Limit int
}

func (p Page) Skip() int64 { return int64((p.Page - 1) * p.Limit) }

// ParsePage reads page and limit query values, clamping limit to maxLimit.
func ParsePage(pageStr, limitStr string, maxLimit, defaultLimit int) Page {
	page := ParseIntDefault(pageStr, 1)
	limit := ParseIntDefault(limitStr, defaultLimit)
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return Page{Page: page, Limit: limit}
}

var spaceRun = regexp.MustCompile(`\s+`)

// CleanText composes unicode, trims, and collapses internal whitespace.
func CleanText(s string) string {
	s = norm.NFC.String(s)
	return strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
}

var lower = cases.Lower(language.Und)

// NormalizeUnit canonicalises a unit of measure ("  KG " -> "kg").
func NormalizeUnit(s string) string {
	return lower.String(CleanText(s))
}

// FoldForSearch strips accents and case so "Maïs" matches "mais".
func FoldForSearch(s string) string {
	t := norm.NFD.String(s)
	var b strings.Builder
	for _, r := range t {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return lower.String(CleanText(b.String()))
}
