package firestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"binday/internal/model"
)

const batchSize = 250 // Stay well under Firestore's 500 operation limit

// Client wraps the Firestore client for bin collection documents.
type Client struct {
	client     *firestore.Client
	collection string
}

// New creates a new Firestore client.
func New(ctx context.Context, projectID, collection string) (*Client, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}
	return &Client{
		client:     client,
		collection: collection,
	}, nil
}

// Close closes the Firestore client.
func (c *Client) Close() error {
	return c.client.Close()
}

// ReplaceCollectionsForProperty replaces the stored schedule of a property.
// It deletes all existing documents for the UPRN, then writes the new ones.
func (c *Client) ReplaceCollectionsForProperty(ctx context.Context, uprn string, collections []model.Collection, batchID string) error {
	coll := c.client.Collection(c.collection)

	if err := c.deleteForProperty(ctx, uprn); err != nil {
		return fmt.Errorf("deleting existing collections: %w", err)
	}

	for i := 0; i < len(collections); i += batchSize {
		end := min(i+batchSize, len(collections))
		batch := c.client.Batch()

		for _, col := range collections[i:end] {
			batch.Set(coll.Doc(generateDocID(uprn, col)), collectionToMap(uprn, col, batchID))
		}

		if _, err := batch.Commit(ctx); err != nil {
			return fmt.Errorf("committing batch: %w", err)
		}
	}

	return nil
}

// deleteForProperty deletes all documents for a given UPRN.
func (c *Client) deleteForProperty(ctx context.Context, uprn string) error {
	query := c.client.Collection(c.collection).Where("uprn", "==", uprn)

	for {
		iter := query.Limit(batchSize).Documents(ctx)
		batch := c.client.Batch()
		numDeleted := 0

		for {
			doc, err := iter.Next()
			if errors.Is(err, iterator.Done) {
				break
			}
			if err != nil {
				iter.Stop()
				return fmt.Errorf("iterating documents: %w", err)
			}
			batch.Delete(doc.Ref)
			numDeleted++
		}
		iter.Stop()

		if numDeleted == 0 {
			return nil
		}

		if _, err := batch.Commit(ctx); err != nil {
			return fmt.Errorf("committing delete batch: %w", err)
		}

		if numDeleted < batchSize {
			return nil
		}
	}
}

// GetCollections retrieves the stored schedule of a property, sorted by date.
func (c *Client) GetCollections(ctx context.Context, uprn string) ([]model.Collection, error) {
	collections := []model.Collection{}

	iter := c.client.Collection(c.collection).Where("uprn", "==", uprn).Documents(ctx)
	defer iter.Stop()
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterating documents: %w", err)
		}

		col, err := mapToCollection(doc.Data(), time.Local)
		if err != nil {
			return nil, fmt.Errorf("parsing document %s: %w", doc.Ref.ID, err)
		}
		collections = append(collections, col)
	}

	model.Sort(collections)
	return collections, nil
}

// generateDocID creates a stable document ID from the property, date and bin.
func generateDocID(uprn string, col model.Collection) string {
	data := fmt.Sprintf("%s|%s|%s", uprn, col.DateString(), col.BinType)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:16])
}

func collectionToMap(uprn string, col model.Collection, batchID string) map[string]interface{} {
	return map[string]interface{}{
		"uprn":     uprn,
		"bin_type": col.BinType,
		"date":     col.DateString(),
		"batch_id": batchID,
	}
}

func mapToCollection(m map[string]interface{}, loc *time.Location) (model.Collection, error) {
	col := model.Collection{}

	if v, ok := m["bin_type"].(string); ok {
		col.BinType = v
	}
	raw, ok := m["date"].(string)
	if !ok {
		return col, errors.New("missing date")
	}
	date, err := model.ParseDate(raw, loc)
	if err != nil {
		return col, err
	}
	col.Date = date

	return col, nil
}
