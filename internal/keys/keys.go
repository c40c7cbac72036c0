// Package keys derives partition keys, sort keys and index sort values for the blog table.
//
// Every item key used by the store, the sweeper and the tests is built here.
package keys

import (
	"fmt"
	"strings"
	"time"
)

const (
	postPrefix = "post#"
	tagPrefix  = "tag#"

	postSK         = "#post"
	publishedSK    = "#post#published"
	publishedTagSK = "#post#published#tag#"
	tagSK          = "#tag"
)

// TimeLayout is the fixed-width ISO-8601 layout used for the index sort value.
// Fixed width keeps lexical order identical to chronological order.
const TimeLayout = "2006-01-02T15:04:05.000000Z07:00"

// PostPK returns the partition key shared by every item of a post.
func PostPK(slug string) string {
	return postPrefix + slug
}

// TagPK returns the partition key of a tag.
func TagPK(name string) string {
	return tagPrefix + name
}

// PostSK returns the sort key of the canonical post item.
func PostSK() string { return postSK }

// PublishedSK returns the sort key of the "all published posts" projection.
func PublishedSK() string { return publishedSK }

// PublishedTagSK returns the sort key of the per-tag published projection.
func PublishedTagSK(tag string) string {
	return publishedTagSK + tag
}

// PublishedPrefix matches both the published projection and every tag projection.
func PublishedPrefix() string { return publishedSK }

// TagSK returns the sort key of the canonical tag item.
func TagSK() string { return tagSK }

// ListingSK returns the index partition value that feeds a post listing.
// With includeUnpublished set the tag filter is ignored: drafts have no tag projections.
func ListingSK(includeUnpublished bool, tag string) string {
	if includeUnpublished {
		return postSK
	}
	if tag != "" {
		return PublishedTagSK(tag)
	}
	return publishedSK
}

// TagFromSK extracts the tag name from a per-tag projection sort key.
func TagFromSK(sk string) (string, bool) {
	if !strings.HasPrefix(sk, publishedTagSK) {
		return "", false
	}
	name := sk[len(publishedTagSK):]
	return name, name != ""
}

// IsPublishedTagSK reports whether sk belongs to a per-tag projection.
func IsPublishedTagSK(sk string) bool {
	_, ok := TagFromSK(sk)
	return ok
}

// SlugFromPK extracts the slug from a post partition key.
func SlugFromPK(pk string) (string, error) {
	return trimPrefix(pk, postPrefix)
}

// NameFromPK extracts the tag name from a tag partition key.
func NameFromPK(pk string) (string, error) {
	return trimPrefix(pk, tagPrefix)
}

// IsCanonicalSK reports whether sk identifies a canonical post or tag item.
func IsCanonicalSK(sk string) bool {
	return sk == postSK || sk == tagSK
}

// FormatTime renders t as the index sort value.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses a value produced by FormatTime.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(TimeLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func trimPrefix(pk, prefix string) (string, error) {
	if !strings.HasPrefix(pk, prefix) || len(pk) == len(prefix) {
		return "", fmt.Errorf("keys: %q is not a %q partition key", pk, strings.TrimSuffix(prefix, "#"))
	}
	return pk[len(prefix):], nil
}
