package blog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jacentio/bloggy/internal/cursor"
	"github.com/jacentio/bloggy/internal/keys"
	"github.com/jacentio/bloggy/store"
)

// ErrInvalid is returned for a post or tag that cannot be stored as given.
var ErrInvalid = errors.New("bloggy: invalid value")

// Repository reads and writes posts and tags. It is safe for concurrent use.
type Repository struct {
	store  *store.Store
	logger *zap.Logger
	now    func() time.Time
}

// NewRepository creates a repository on top of s. A nil logger discards output.
func NewRepository(s *store.Store, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{store: s, logger: logger, now: time.Now}
}

// --- Posts ---

// ListAllPosts pages through every post, drafts included, newest first.
func (r *Repository) ListAllPosts(ctx context.Context, limit int32, start *cursor.Position) (*Page[Post], error) {
	return r.listPosts(ctx, keys.ListingSK(true, ""), limit, start)
}

// ListPublishedPosts pages through published posts, newest first.
// A non-empty tag restricts the listing to posts carrying that tag.
func (r *Repository) ListPublishedPosts(ctx context.Context, tag string, limit int32, start *cursor.Position) (*Page[Post], error) {
	return r.listPosts(ctx, keys.ListingSK(false, tag), limit, start)
}

func (r *Repository) listPosts(ctx context.Context, sk string, limit int32, start *cursor.Position) (*Page[Post], error) {
	input := store.QueryInput{SortKey: sk, Limit: limit}
	if start != nil && start.Valid() && start.Slug != "" {
		input.StartKey = &store.StartKey{PK: keys.PostPK(start.Slug), SK: sk, Data: start.Created}
	}

	page, err := r.store.Query(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("list posts %s: %w", sk, err)
	}

	out := &Page[Post]{Items: make([]Post, 0, len(page.Items))}
	for _, item := range page.Items {
		post, err := DecodePost(item)
		if err != nil {
			return nil, err
		}
		out.Items = append(out.Items, post)
	}
	if page.Next != nil {
		slug, err := keys.SlugFromPK(page.Next.PK)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
		}
		out.Next = &cursor.Position{Created: page.Next.Data, Slug: slug}
	}
	return out, nil
}

// GetPost returns the post with slug, published or not.
func (r *Repository) GetPost(ctx context.Context, slug string) (Post, error) {
	item, err := r.store.Get(ctx, store.Key{PK: keys.PostPK(slug), SK: keys.PostSK()})
	if err != nil {
		return Post{}, err
	}
	return DecodePost(item)
}

// GetPublishedPost returns the post with slug, or ErrNotFound if it is a draft.
func (r *Repository) GetPublishedPost(ctx context.Context, slug string) (Post, error) {
	post, err := r.GetPost(ctx, slug)
	if err != nil {
		return Post{}, err
	}
	if !post.Published {
		return Post{}, ErrNotFound
	}
	return post, nil
}

// SavePost creates a post at version 1 together with its published projections.
// It fails with ErrDuplicateKey if the slug is taken.
func (r *Repository) SavePost(ctx context.Context, post Post) (Post, error) {
	if post.Slug == "" {
		return Post{}, fmt.Errorf("%w: post has no slug", ErrInvalid)
	}
	post = normalizePost(post, r.now())
	post.Version = 1

	primary, err := EncodePost(post, keys.PostSK())
	if err != nil {
		return Post{}, err
	}
	projections, err := publishedItems(post)
	if err != nil {
		return Post{}, err
	}

	if err := r.store.CreateUnique(ctx, primary, projections...); err != nil {
		return Post{}, fmt.Errorf("save post %s: %w", post.Slug, err)
	}
	r.logger.Info("post saved",
		zap.String("slug", post.Slug),
		zap.Bool("published", post.Published),
		zap.Int("tags", len(post.Tags)),
	)
	return post, nil
}

// UpdatePost replaces a post that was read at post.Version and returns it at the next version.
//
// Published projections are reconciled in the same transaction: projections for removed tags,
// or all of them when the post is no longer published, are deleted and the current ones are
// rewritten. ErrConcurrentUpdate means the post changed since it was read.
func (r *Repository) UpdatePost(ctx context.Context, post Post) (Post, error) {
	if post.Slug == "" {
		return Post{}, fmt.Errorf("%w: post has no slug", ErrInvalid)
	}
	expected := post.Version
	post = normalizePost(post, r.now())
	post.Version = expected + 1

	existing, err := r.store.QueryPartition(ctx, keys.PostPK(post.Slug), keys.PublishedPrefix())
	if err != nil {
		return Post{}, fmt.Errorf("update post %s: %w", post.Slug, err)
	}
	var stale []store.Key
	for _, item := range existing {
		k, err := item.Key()
		if err != nil {
			return Post{}, err
		}
		if isStaleProjection(post, k.SK) {
			stale = append(stale, k)
		}
	}

	primary, err := EncodePost(post, keys.PostSK())
	if err != nil {
		return Post{}, err
	}
	puts, err := publishedItems(post)
	if err != nil {
		return Post{}, err
	}

	if err := r.store.UpdateWithVersionCheck(ctx, expected, primary, puts, stale); err != nil {
		return Post{}, fmt.Errorf("update post %s: %w", post.Slug, err)
	}
	r.logger.Info("post updated",
		zap.String("slug", post.Slug),
		zap.Int64("version", post.Version),
		zap.Int("removedProjections", len(stale)),
	)
	return post, nil
}

// DeletePost removes every item of the post. Deleting a missing post is not an error.
func (r *Repository) DeletePost(ctx context.Context, slug string) error {
	if err := r.store.DeleteAll(ctx, keys.PostPK(slug)); err != nil {
		return err
	}
	r.logger.Info("post deleted", zap.String("slug", slug))
	return nil
}

// publishedItems returns the projections a post needs beyond its canonical item.
func publishedItems(post Post) ([]store.Item, error) {
	if !post.Published {
		return nil, nil
	}
	sks := make([]string, 0, 1+len(post.Tags))
	sks = append(sks, keys.PublishedSK())
	for _, t := range post.Tags {
		sks = append(sks, keys.PublishedTagSK(t.Name))
	}

	items := make([]store.Item, 0, len(sks))
	for _, sk := range sks {
		item, err := EncodePost(post, sk)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// isStaleProjection reports whether the projection at sk must go for post's new state.
func isStaleProjection(post Post, sk string) bool {
	if !post.Published {
		return true
	}
	if tag, ok := keys.TagFromSK(sk); ok {
		return !post.HasTag(tag)
	}
	return false
}

// --- Tags ---

// ListTags pages through tags in label order.
func (r *Repository) ListTags(ctx context.Context, limit int32, start *cursor.Position) (*Page[Tag], error) {
	sk := keys.TagSK()
	input := store.QueryInput{SortKey: sk, Limit: limit, Ascending: true}
	if start != nil && start.Valid() && start.Name != "" {
		input.StartKey = &store.StartKey{PK: keys.TagPK(start.Name), SK: sk, Data: start.Created}
	}

	page, err := r.store.Query(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}

	out := &Page[Tag]{Items: make([]Tag, 0, len(page.Items))}
	for _, item := range page.Items {
		tag, err := DecodeTag(item)
		if err != nil {
			return nil, err
		}
		out.Items = append(out.Items, tag)
	}
	if page.Next != nil {
		name, err := keys.NameFromPK(page.Next.PK)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
		}
		out.Next = &cursor.Position{Created: page.Next.Data, Name: name}
	}
	return out, nil
}

// GetTag returns the tag called name.
func (r *Repository) GetTag(ctx context.Context, name string) (Tag, error) {
	item, err := r.store.Get(ctx, store.Key{PK: keys.TagPK(name), SK: keys.TagSK()})
	if err != nil {
		return Tag{}, err
	}
	return DecodeTag(item)
}

// SaveTag creates a tag at version 1. It fails with ErrDuplicateKey if the name is taken.
func (r *Repository) SaveTag(ctx context.Context, tag Tag) (Tag, error) {
	if err := checkTag(tag); err != nil {
		return Tag{}, err
	}
	tag.Version = 1

	item, err := EncodeTag(tag)
	if err != nil {
		return Tag{}, err
	}
	if err := r.store.CreateUnique(ctx, item); err != nil {
		return Tag{}, fmt.Errorf("save tag %s: %w", tag.Name, err)
	}
	r.logger.Info("tag saved", zap.String("name", tag.Name))
	return tag, nil
}

// UpdateTag replaces a tag that was read at tag.Version and returns it at the next version.
func (r *Repository) UpdateTag(ctx context.Context, tag Tag) (Tag, error) {
	if err := checkTag(tag); err != nil {
		return Tag{}, err
	}
	expected := tag.Version
	tag.Version = expected + 1

	item, err := EncodeTag(tag)
	if err != nil {
		return Tag{}, err
	}
	if err := r.store.UpdateWithVersionCheck(ctx, expected, item, nil, nil); err != nil {
		return Tag{}, fmt.Errorf("update tag %s: %w", tag.Name, err)
	}
	r.logger.Info("tag updated", zap.String("name", tag.Name), zap.Int64("version", tag.Version))
	return tag, nil
}

// DeleteTag removes the tag. Posts keep their copy of it.
func (r *Repository) DeleteTag(ctx context.Context, name string) error {
	if err := r.store.DeleteAll(ctx, keys.TagPK(name)); err != nil {
		return err
	}
	r.logger.Info("tag deleted", zap.String("name", name))
	return nil
}

func checkTag(tag Tag) error {
	if tag.Name == "" {
		return fmt.Errorf("%w: tag has no name", ErrInvalid)
	}
	// The label is the index sort value and DynamoDB rejects empty key attributes.
	if tag.Label == "" {
		return fmt.Errorf("%w: tag %s has no label", ErrInvalid, tag.Name)
	}
	return nil
}
