package stream_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacentio/bloggy/blog"
	"github.com/jacentio/bloggy/internal/ddbtest"
	"github.com/jacentio/bloggy/store"
	"github.com/jacentio/bloggy/stream"
)

func TestNewHandler(t *testing.T) {
	// Test with nil store and logger (should not panic)
	h := stream.NewHandler(nil, nil)
	if h == nil {
		t.Fatal("expected non-nil Handler")
	}
}

func TestStreamKey(t *testing.T) {
	tests := []struct {
		name  string
		image map[string]events.DynamoDBAttributeValue
		want  store.Key
		ok    bool
	}{
		{
			name: "composite key",
			image: map[string]events.DynamoDBAttributeValue{
				"pk": events.NewStringAttribute("post#a"),
				"sk": events.NewStringAttribute("#post"),
			},
			want: store.Key{PK: "post#a", SK: "#post"},
			ok:   true,
		},
		{name: "nil", image: nil},
		{
			name: "missing sk",
			image: map[string]events.DynamoDBAttributeValue{
				"pk": events.NewStringAttribute("post#a"),
			},
		},
		{
			name: "number pk",
			image: map[string]events.DynamoDBAttributeValue{
				"pk": events.NewNumberAttribute("1"),
				"sk": events.NewStringAttribute("#post"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := stream.StreamKey(tt.image)
			if ok != tt.ok || got != tt.want {
				t.Errorf("expected (%v, %v), got (%v, %v)", tt.want, tt.ok, got, ok)
			}
		})
	}
}

func item(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		store.AttrPK:      store.StringAttr(pk),
		store.AttrSK:      store.StringAttr(sk),
		store.AttrData:    store.StringAttr("2023-01-01T00:00:00.000000Z"),
		store.AttrVersion: store.NumberAttr(1),
	}
}

func record(eventName, pk, sk string) events.DynamoDBEventRecord {
	return events.DynamoDBEventRecord{
		EventID:   eventName + "-" + pk + sk,
		EventName: eventName,
		Change: events.DynamoDBStreamRecord{
			Keys: map[string]events.DynamoDBAttributeValue{
				"pk": events.NewStringAttribute(pk),
				"sk": events.NewStringAttribute(sk),
			},
		},
	}
}

func seed(t *testing.T) *ddbtest.Client {
	t.Helper()
	client := ddbtest.New()
	for _, it := range []map[string]types.AttributeValue{
		// post#a lost its canonical item half way through a delete
		item("post#a", "#post#published"),
		item("post#a", "#post#published#tag#go"),
		item("post#b", "#post"),
		item("post#b", "#post#published"),
		item("tag#go", "#tag"),
	} {
		require.NoError(t, client.Put(it))
	}
	return client
}

func TestHandleCascadeDelete_SweepsPartition(t *testing.T) {
	client := seed(t)
	h := stream.NewHandler(store.New(client, store.DefaultConfig()), nil)

	err := h.HandleCascadeDelete(context.Background(), events.DynamoDBEvent{
		Records: []events.DynamoDBEventRecord{record("REMOVE", "post#a", "#post")},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"post#b|#post", "post#b|#post#published", "tag#go|#tag"}, client.Keys())

	// Replaying the record is harmless.
	err = h.HandleCascadeDelete(context.Background(), events.DynamoDBEvent{
		Records: []events.DynamoDBEventRecord{record("REMOVE", "post#a", "#post")},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, client.Len())
}

func TestHandleCascadeDelete_IgnoresOtherRecords(t *testing.T) {
	client := seed(t)
	h := stream.NewHandler(store.New(client, store.DefaultConfig()), nil)

	err := h.HandleCascadeDelete(context.Background(), events.DynamoDBEvent{
		Records: []events.DynamoDBEventRecord{
			record("INSERT", "post#b", "#post"),
			record("MODIFY", "post#b", "#post"),
			// A removed projection is part of an update, not a delete.
			record("REMOVE", "post#b", "#post#published#tag#rust"),
			{EventID: "no-keys", EventName: "REMOVE"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 5, client.Len())
	assert.Zero(t, client.Calls("BatchWriteItem"))
}

func TestHandleCascadeDelete_TagRemoval(t *testing.T) {
	client := seed(t)
	require.NoError(t, client.Put(item("tag#go", "#tag#stray")))
	h := stream.NewHandler(store.New(client, store.DefaultConfig()), nil)

	err := h.HandleCascadeDelete(context.Background(), events.DynamoDBEvent{
		Records: []events.DynamoDBEventRecord{record("REMOVE", "tag#go", "#tag")},
	})
	require.NoError(t, err)
	assert.Nil(t, client.Item("tag#go", "#tag"))
	assert.Nil(t, client.Item("tag#go", "#tag#stray"))
}

func TestHandleCascadeDelete_ReturnsErrorForRetry(t *testing.T) {
	client := seed(t)
	client.FailNext("Query", errors.New("throttled"))
	h := stream.NewHandler(store.New(client, store.DefaultConfig()), nil)

	err := h.HandleCascadeDelete(context.Background(), events.DynamoDBEvent{
		Records: []events.DynamoDBEventRecord{
			record("REMOVE", "post#a", "#post"),
			record("REMOVE", "post#b", "#post"),
		},
	})
	require.Error(t, err)
	assert.Equal(t, 5, client.Len())
}

func TestHandleCascadeDelete_SkipsRecreatedPartition(t *testing.T) {
	ctx := context.Background()
	client := ddbtest.New()
	s := store.New(client, store.DefaultConfig())
	repo := blog.NewRepository(s, nil)

	p := blog.Post{Slug: "p1", Title: "First", Body: "b", Published: true, Tags: []blog.Tag{{Name: "go", Label: "Go", Version: 1}}}
	_, err := repo.SavePost(ctx, p)
	require.NoError(t, err)
	require.NoError(t, repo.DeletePost(ctx, "p1"))

	p.Title = "Second"
	_, err = repo.SavePost(ctx, p)
	require.NoError(t, err)
	before := client.Keys()

	// The REMOVE from the first delete arrives late.
	h := stream.NewHandler(s, nil)
	err = h.HandleCascadeDelete(ctx, events.DynamoDBEvent{
		Records: []events.DynamoDBEventRecord{record("REMOVE", "post#p1", "#post")},
	})
	require.NoError(t, err)

	assert.Equal(t, before, client.Keys())
	got, err := repo.GetPost(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Second", got.Title)
}

func TestHandleCascadeDelete_GetErrorIsRetried(t *testing.T) {
	client := seed(t)
	client.FailNext("GetItem", errors.New("throttled"))
	h := stream.NewHandler(store.New(client, store.DefaultConfig()), nil)

	err := h.HandleCascadeDelete(context.Background(), events.DynamoDBEvent{
		Records: []events.DynamoDBEventRecord{record("REMOVE", "post#a", "#post")},
	})
	require.Error(t, err)
	assert.Equal(t, 5, client.Len())
	assert.Zero(t, client.Calls("Query"))
}
