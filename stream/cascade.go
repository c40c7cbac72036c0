// Package stream provides the DynamoDB Streams handler that finishes interrupted deletes.
package stream

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/jacentio/bloggy/internal/keys"
	"github.com/jacentio/bloggy/store"
)

const eventRemove = "REMOVE"

// Handler sweeps up the items left behind when a post or tag's canonical item is removed.
type Handler struct {
	store  *store.Store
	logger *zap.Logger
}

// NewHandler creates a new stream handler.
func NewHandler(s *store.Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		store:  s,
		logger: logger,
	}
}

// HandleCascadeDelete removes every remaining item under the partition of each removed
// canonical item. It is idempotent and intended as an AWS Lambda handler; a returned error
// makes Lambda retry the batch.
func (h *Handler) HandleCascadeDelete(ctx context.Context, event events.DynamoDBEvent) error {
	for _, record := range event.Records {
		if err := h.processRecord(ctx, record); err != nil {
			h.logger.Error("failed to process record",
				zap.String("eventID", record.EventID),
				zap.Error(err),
			)
			return err
		}
	}
	return nil
}

func (h *Handler) processRecord(ctx context.Context, record events.DynamoDBEventRecord) error {
	if record.EventName != eventRemove {
		return nil
	}

	key, ok := StreamKey(record.Change.Keys)
	if !ok {
		h.logger.Warn("ignoring record without pk/sk", zap.String("eventID", record.EventID))
		return nil
	}
	// Projections are removed together with their post; only a canonical removal cascades.
	if !keys.IsCanonicalSK(key.SK) {
		return nil
	}

	// The record may be stale: a post or tag re-created under the same key owns the partition.
	_, err := h.store.Get(ctx, key)
	if err == nil {
		h.logger.Info("partition re-created, not sweeping", zap.String("pk", key.PK))
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("check %s: %w", key.PK, err)
	}

	if err := h.store.DeleteAll(ctx, key.PK); err != nil {
		return fmt.Errorf("sweep %s: %w", key.PK, err)
	}
	h.logger.Info("swept partition", zap.String("pk", key.PK), zap.String("sk", key.SK))
	return nil
}

// StreamKey reads the table key from a stream record's key image.
func StreamKey(image map[string]events.DynamoDBAttributeValue) (store.Key, bool) {
	pk := getStringAttr(image, store.AttrPK)
	sk := getStringAttr(image, store.AttrSK)
	if pk == "" || sk == "" {
		return store.Key{}, false
	}
	return store.Key{PK: pk, SK: sk}, true
}

// getStringAttr extracts a string attribute from a DynamoDB stream image.
func getStringAttr(image map[string]events.DynamoDBAttributeValue, key string) string {
	if v, ok := image[key]; ok && v.DataType() == events.DataTypeString {
		return v.String()
	}
	return ""
}
