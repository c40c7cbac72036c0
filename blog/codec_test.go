package blog

import (
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacentio/bloggy/internal/keys"
	"github.com/jacentio/bloggy/store"
)

func samplePost() Post {
	return Post{
		Slug:      "hello-world",
		Title:     "Hello, World",
		Body:      "# Hi\n\nFirst post.",
		Published: true,
		Tags: []Tag{
			{Name: "go", Label: "Go", Version: 2},
			{Name: "aws", Label: "AWS", Version: 1},
		},
		MainImage: Image{Src: "/img/hello.png", Alt: "hello", Title: "Hello"},
		Created:   time.Date(2023, 3, 14, 15, 9, 26, 535897932, time.FixedZone("CET", 3600)),
		Version:   3,
	}
}

func TestPostRoundTrip(t *testing.T) {
	post := normalizePost(samplePost(), time.Now())

	for _, sk := range []string{keys.PostSK(), keys.PublishedSK(), keys.PublishedTagSK("go")} {
		t.Run(sk, func(t *testing.T) {
			item, err := EncodePost(post, sk)
			require.NoError(t, err)

			got, err := DecodePost(item)
			require.NoError(t, err)
			assert.Equal(t, post, got)
		})
	}
}

func TestPostRoundTrip_EmptyFields(t *testing.T) {
	post := normalizePost(Post{Slug: "draft", Created: time.Unix(0, 0)}, time.Now())

	item, err := EncodePost(post, keys.PostSK())
	require.NoError(t, err)
	payload := item[attrPost].(*types.AttributeValueMemberM).Value
	assert.IsType(t, &types.AttributeValueMemberL{}, payload["tags"])

	got, err := DecodePost(item)
	require.NoError(t, err)
	assert.Equal(t, post, got)
}

func TestEncodePost_Attributes(t *testing.T) {
	post := normalizePost(samplePost(), time.Now())
	item, err := EncodePost(post, keys.PublishedSK())
	require.NoError(t, err)

	pk, _ := item.String(store.AttrPK)
	sk, _ := item.String(store.AttrSK)
	data, _ := item.String(store.AttrData)
	version, err := item.Version()
	require.NoError(t, err)

	assert.Equal(t, "post#hello-world", pk)
	assert.Equal(t, "#post#published", sk)
	assert.Equal(t, "2023-03-14T14:09:26.535897Z", data)
	assert.Equal(t, int64(3), version)
}

func TestTagRoundTrip(t *testing.T) {
	tag := Tag{Name: "go", Label: "Go", Version: 4}

	item, err := EncodeTag(tag)
	require.NoError(t, err)
	data, _ := item.String(store.AttrData)
	assert.Equal(t, "Go", data)

	got, err := DecodeTag(item)
	require.NoError(t, err)
	assert.Equal(t, tag, got)
}

func TestDecodePost_Malformed(t *testing.T) {
	good, err := EncodePost(normalizePost(samplePost(), time.Now()), keys.PostSK())
	require.NoError(t, err)

	payload := func(item store.Item) map[string]types.AttributeValue {
		return item[attrPost].(*types.AttributeValueMemberM).Value
	}

	tests := []struct {
		name   string
		mutate func(store.Item) store.Item
	}{
		{"missing payload", func(i store.Item) store.Item { delete(i, attrPost); return i }},
		{"missing version", func(i store.Item) store.Item { delete(i, store.AttrVersion); return i }},
		{"unknown attribute", func(i store.Item) store.Item { i["extra"] = store.StringAttr("x"); return i }},
		{"payload not a map", func(i store.Item) store.Item { i[attrPost] = store.StringAttr("x"); return i }},
		{"unknown payload field", func(i store.Item) store.Item {
			payload(i)["author"] = store.StringAttr("me")
			return i
		}},
		{"missing payload field", func(i store.Item) store.Item {
			delete(payload(i), "title")
			return i
		}},
		{"wrong payload type", func(i store.Item) store.Item {
			payload(i)["published"] = store.StringAttr("yes")
			return i
		}},
		{"tag element not a map", func(i store.Item) store.Item {
			payload(i)["tags"] = &types.AttributeValueMemberL{Value: []types.AttributeValue{store.StringAttr("go")}}
			return i
		}},
		{"tag element missing label", func(i store.Item) store.Item {
			payload(i)["tags"] = &types.AttributeValueMemberL{Value: []types.AttributeValue{
				&types.AttributeValueMemberM{Value: map[string]types.AttributeValue{
					"name":    store.StringAttr("go"),
					"version": store.NumberAttr(1),
				}},
			}}
			return i
		}},
		{"image missing alt", func(i store.Item) store.Item {
			img := payload(i)["main_image"].(*types.AttributeValueMemberM).Value
			delete(img, "alt")
			return i
		}},
		{"bad created", func(i store.Item) store.Item {
			payload(i)["created"] = store.StringAttr("yesterday")
			return i
		}},
		{"stored under another slug", func(i store.Item) store.Item {
			i[store.AttrPK] = store.StringAttr("post#other")
			return i
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := tt.mutate(deepCopy(good))
			_, err := DecodePost(item)
			if !errors.Is(err, ErrMalformedRecord) {
				t.Errorf("expected ErrMalformedRecord, got %v", err)
			}
		})
	}
}

func TestDecodeTag_Malformed(t *testing.T) {
	good, err := EncodeTag(Tag{Name: "go", Label: "Go", Version: 1})
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(store.Item) store.Item
	}{
		{"post payload", func(i store.Item) store.Item {
			i[attrPost] = i[attrTag]
			delete(i, attrTag)
			return i
		}},
		{"version as string", func(i store.Item) store.Item {
			i[attrTag].(*types.AttributeValueMemberM).Value["version"] = store.StringAttr("1")
			return i
		}},
		{"stored under another name", func(i store.Item) store.Item {
			i[store.AttrPK] = store.StringAttr("tag#rust")
			return i
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeTag(tt.mutate(deepCopy(good)))
			assert.ErrorIs(t, err, ErrMalformedRecord)
		})
	}
}

func TestNormalizePost(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 6789, time.UTC)

	t.Run("defaults created", func(t *testing.T) {
		got := normalizePost(Post{Slug: "a"}, now)
		assert.Equal(t, now.Truncate(time.Microsecond), got.Created)
	})

	t.Run("converts to UTC", func(t *testing.T) {
		got := normalizePost(samplePost(), now)
		assert.Equal(t, time.UTC, got.Created.Location())
		assert.Equal(t, 535897000, got.Created.Nanosecond())
	})

	t.Run("de-duplicates tags", func(t *testing.T) {
		got := normalizePost(Post{Slug: "a", Tags: []Tag{
			{Name: "go", Label: "Go"},
			{Name: " go ", Label: "Go again"},
			{Name: "", Label: "blank"},
			{Name: "aws", Label: "AWS"},
		}}, now)
		assert.Equal(t, []Tag{{Name: "go", Label: "Go"}, {Name: "aws", Label: "AWS"}}, got.Tags)
	})

	t.Run("empty tags become nil", func(t *testing.T) {
		got := normalizePost(Post{Slug: "a", Tags: []Tag{}}, now)
		assert.Nil(t, got.Tags)
	})
}

// deepCopy copies the nested maps and lists the malformed-record cases mutate.
func deepCopy(item store.Item) store.Item {
	out := make(store.Item, len(item))
	for k, v := range item {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v types.AttributeValue) types.AttributeValue {
	switch tv := v.(type) {
	case *types.AttributeValueMemberM:
		m := make(map[string]types.AttributeValue, len(tv.Value))
		for k, e := range tv.Value {
			m[k] = copyValue(e)
		}
		return &types.AttributeValueMemberM{Value: m}
	case *types.AttributeValueMemberL:
		l := make([]types.AttributeValue, len(tv.Value))
		for i, e := range tv.Value {
			l[i] = copyValue(e)
		}
		return &types.AttributeValueMemberL{Value: l}
	}
	return v
}
