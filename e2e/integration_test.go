//go:build e2e

// Package e2e runs the blog against a real DynamoDB endpoint, DynamoDB Local by default.
// Run with: go test -tags=e2e -v ./e2e/...
package e2e

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacentio/bloggy/blog"
	"github.com/jacentio/bloggy/internal/config"
	"github.com/jacentio/bloggy/internal/cursor"
	"github.com/jacentio/bloggy/internal/keys"
	"github.com/jacentio/bloggy/store"
)

// Table names are unique per test run to avoid conflicts.
const tablePrefix = "bloggy-e2e-test"

var (
	ddbClient *dynamodb.Client
	testStore *store.Store
	repo      *blog.Repository
)

func TestMain(m *testing.M) {
	if os.Getenv("BLOGGY_ENV") == "" {
		os.Setenv("BLOGGY_ENV", config.EnvDev)
	}
	os.Setenv("BLOGGY_TABLE", fmt.Sprintf("%s-%s", tablePrefix, uuid.New().String()[:8]))

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Table: %s at %s\n", cfg.TableName, cfg.DynamoDBEndpoint)

	ctx := context.Background()
	ddbClient, err = config.NewDynamoDBClient(ctx, cfg)
	if err != nil {
		fmt.Printf("Failed to create client: %v\n", err)
		os.Exit(1)
	}
	if err := store.EnsureTable(ctx, ddbClient, cfg.Store(), 2*time.Minute); err != nil {
		fmt.Printf("Failed to create table: %v\n", err)
		os.Exit(1)
	}

	testStore = store.New(ddbClient, cfg.Store())
	repo = blog.NewRepository(testStore, nil)

	code := m.Run()

	if err := store.DropTable(ctx, ddbClient, cfg.TableName); err != nil {
		fmt.Printf("Warning: %v\n", err)
	}
	os.Exit(code)
}

// reset empties the table before a test.
func reset(t *testing.T) {
	t.Helper()
	require.NoError(t, testStore.Truncate(context.Background()))
}

func newPost(slug string, created time.Time, published bool, tags ...string) blog.Post {
	p := blog.Post{
		Slug:      slug,
		Title:     "Title " + slug,
		Body:      "Body of " + slug,
		Published: published,
		MainImage: blog.Image{Src: "/img/" + slug + ".png", Alt: slug, Title: slug},
		Created:   created,
	}
	for _, name := range tags {
		p.Tags = append(p.Tags, blog.Tag{Name: name, Label: "Label " + name, Version: 1})
	}
	return p
}

func day(n int) time.Time {
	return time.Date(2023, 1, n, 9, 0, 0, 0, time.UTC)
}

func partitionSKs(t *testing.T, pk string) []string {
	t.Helper()
	items, err := testStore.QueryPartition(context.Background(), pk, "")
	require.NoError(t, err)
	var out []string
	for _, item := range items {
		sk, _ := item.String(store.AttrSK)
		out = append(out, sk)
	}
	return out
}

// --- Posts ---

func TestPost_RoundTrip(t *testing.T) {
	reset(t)
	ctx := context.Background()

	want := newPost("round-trip", time.Date(2023, 3, 14, 15, 9, 26, 535897932, time.UTC), true, "go", "aws")
	saved, err := repo.SavePost(ctx, want)
	require.NoError(t, err)

	got, err := repo.GetPost(ctx, "round-trip")
	require.NoError(t, err)
	assert.Equal(t, saved, got)
	assert.Equal(t, int64(1), got.Version)
	assert.Equal(t, 535897000, got.Created.Nanosecond())

	assert.ElementsMatch(t, []string{
		keys.PostSK(), keys.PublishedSK(), keys.PublishedTagSK("go"), keys.PublishedTagSK("aws"),
	}, partitionSKs(t, keys.PostPK("round-trip")))
}

func TestPost_DuplicateSlug(t *testing.T) {
	reset(t)
	ctx := context.Background()

	_, err := repo.SavePost(ctx, newPost("dup", day(1), false))
	require.NoError(t, err)
	_, err = repo.SavePost(ctx, newPost("dup", day(2), true, "go"))
	assert.ErrorIs(t, err, blog.ErrDuplicateKey)

	// The losing write left nothing behind.
	assert.Equal(t, []string{keys.PostSK()}, partitionSKs(t, keys.PostPK("dup")))
}

func TestPost_ConcurrentWriters(t *testing.T) {
	reset(t)
	ctx := context.Background()

	saved, err := repo.SavePost(ctx, newPost("race", day(1), true))
	require.NoError(t, err)

	const writers = 5
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p := saved
			p.Title = fmt.Sprintf("Writer %d", i)
			_, err := repo.UpdatePost(ctx, p)
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, blog.ErrConcurrentUpdate)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	got, err := repo.GetPost(ctx, "race")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
}

func TestPost_ProjectionsFollowUpdates(t *testing.T) {
	reset(t)
	ctx := context.Background()
	pk := keys.PostPK("proj")

	p, err := repo.SavePost(ctx, newPost("proj", day(1), true, "t1"))
	require.NoError(t, err)

	p.Tags = []blog.Tag{{Name: "t2", Label: "T2", Version: 1}}
	p, err = repo.UpdatePost(ctx, p)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{keys.PostSK(), keys.PublishedSK(), keys.PublishedTagSK("t2")}, partitionSKs(t, pk))

	p.Published = false
	p, err = repo.UpdatePost(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, []string{keys.PostSK()}, partitionSKs(t, pk))
	assert.Equal(t, int64(3), p.Version)

	_, err = repo.GetPublishedPost(ctx, "proj")
	assert.ErrorIs(t, err, blog.ErrNotFound)

	require.NoError(t, repo.DeletePost(ctx, "proj"))
	assert.Empty(t, partitionSKs(t, pk))
	_, err = repo.GetPost(ctx, "proj")
	assert.ErrorIs(t, err, blog.ErrNotFound)
}

func TestPost_UpdateMissing(t *testing.T) {
	reset(t)

	_, err := repo.UpdatePost(context.Background(), newPost("ghost", day(1), true))
	assert.ErrorIs(t, err, blog.ErrNotFound)
}

// --- Listings ---

func TestListings_TwentyTwoPosts(t *testing.T) {
	reset(t)
	ctx := context.Background()
	for d := 1; d <= 22; d++ {
		_, err := repo.SavePost(ctx, newPost(fmt.Sprintf("day-%02d", d), day(d), d != 5 && d != 19, "news"))
		require.NoError(t, err)
	}

	count := func(list func(*cursor.Position) (*blog.Page[blog.Post], error)) []int {
		var (
			sizes []int
			start *cursor.Position
		)
		for {
			page, err := list(start)
			require.NoError(t, err)
			sizes = append(sizes, len(page.Items))
			if page.Next == nil {
				return sizes
			}
			start = page.Next
		}
	}

	assert.Equal(t, []int{10, 10}, count(func(start *cursor.Position) (*blog.Page[blog.Post], error) {
		return repo.ListPublishedPosts(ctx, "", 10, start)
	}))
	assert.Equal(t, []int{10, 10}, count(func(start *cursor.Position) (*blog.Page[blog.Post], error) {
		return repo.ListPublishedPosts(ctx, "news", 10, start)
	}))
	assert.Equal(t, []int{10, 10, 2}, count(func(start *cursor.Position) (*blog.Page[blog.Post], error) {
		return repo.ListAllPosts(ctx, 10, start)
	}))

	first, err := repo.ListPublishedPosts(ctx, "", 3, nil)
	require.NoError(t, err)
	assert.Equal(t, "day-22", first.Items[0].Slug)
	assert.Equal(t, "day-20", first.Items[2].Slug)
}

// --- Tags ---

func TestTags(t *testing.T) {
	reset(t)
	ctx := context.Background()

	for _, tag := range []blog.Tag{{Name: "k8s", Label: "Kubernetes"}, {Name: "go", Label: "Go"}, {Name: "aws", Label: "AWS"}} {
		_, err := repo.SaveTag(ctx, tag)
		require.NoError(t, err)
	}
	_, err := repo.SaveTag(ctx, blog.Tag{Name: "go", Label: "Golang"})
	assert.ErrorIs(t, err, blog.ErrDuplicateKey)

	page, err := repo.ListTags(ctx, 2, nil)
	require.NoError(t, err)
	require.NotNil(t, page.Next)
	assert.Equal(t, "AWS", page.Items[0].Label)
	assert.Equal(t, "Go", page.Items[1].Label)

	page, err = repo.ListTags(ctx, 2, page.Next)
	require.NoError(t, err)
	assert.Nil(t, page.Next)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Kubernetes", page.Items[0].Label)

	updated, err := repo.UpdateTag(ctx, blog.Tag{Name: "go", Label: "Golang", Version: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)
	_, err = repo.UpdateTag(ctx, blog.Tag{Name: "go", Label: "Go", Version: 1})
	assert.ErrorIs(t, err, blog.ErrConcurrentUpdate)

	require.NoError(t, repo.DeleteTag(ctx, "go"))
	_, err = repo.GetTag(ctx, "go")
	assert.ErrorIs(t, err, blog.ErrNotFound)
}

// --- Store ---

func TestTruncate(t *testing.T) {
	reset(t)
	ctx := context.Background()
	for i := range 30 {
		_, err := repo.SavePost(ctx, newPost(fmt.Sprintf("bulk-%02d", i), day(1), true, "a", "b"))
		require.NoError(t, err)
	}

	require.NoError(t, testStore.Truncate(ctx))
	for item, err := range testStore.Scan(ctx) {
		require.NoError(t, err)
		t.Fatalf("expected an empty table, found %v", item)
	}
}
