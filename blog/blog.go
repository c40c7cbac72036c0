// Package blog maps posts and tags onto the single-table layout and exposes typed,
// pageable reads and versioned writes over the store.
package blog

import (
	"time"

	"github.com/jacentio/bloggy/internal/cursor"
	"github.com/jacentio/bloggy/store"
)

// Errors returned by the repository. They are the store's sentinels, so errors.Is works
// against either name.
var (
	ErrNotFound         = store.ErrNotFound
	ErrDuplicateKey     = store.ErrDuplicateKey
	ErrConcurrentUpdate = store.ErrConcurrentUpdate
	ErrMalformedRecord  = store.ErrMalformedRecord
	ErrTooManyItems     = store.ErrTooManyItems
)

// Image is the main image of a post.
type Image struct {
	Src   string `json:"src"`
	Alt   string `json:"alt"`
	Title string `json:"title"`
}

// Tag is a label posts can be filtered by. Name is its unique id.
type Tag struct {
	Name    string `json:"name"`
	Label   string `json:"label"`
	Version int64  `json:"version"`
}

// Post is a blog entry. Slug is its unique id.
type Post struct {
	Slug      string    `json:"slug"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Published bool      `json:"published"`
	Tags      []Tag     `json:"tags"`
	MainImage Image     `json:"main_image"`
	Created   time.Time `json:"created"`
	Version   int64     `json:"version"`
}

// HasTag reports whether the post carries the tag called name.
func (p Post) HasTag(name string) bool {
	for _, t := range p.Tags {
		if t.Name == name {
			return true
		}
	}
	return false
}

// Page is one page of a listing. Next is nil on the last page.
type Page[T any] struct {
	Items []T
	Next  *cursor.Position
}
