package services

import (
	"context"
	"time"

	"github.com/brianjwalters/graphrag-service/pkg/dbgateway"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// UseCase is a struct to implement the services methods
type UseCase struct {
	// DB provides resilient access to the remote database gateway.
	DB *dbgateway.Client
}

// Document is a stored source document.
type Document struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateDocumentInput carries the fields needed to register a document.
type CreateDocumentInput struct {
	Title  string `json:"title"`
	Source string `json:"source"`
}

// Entity is a graph node extracted from a document.
type Entity struct {
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	DocumentID string `json:"document_id"`
}

// CreateDocument registers a new document in the client schema.
func (uc *UseCase) CreateDocument(ctx context.Context, input *CreateDocumentInput) (*Document, error) {
	doc := map[string]any{
		"id":         uuid.New().String(),
		"title":      input.Title,
		"source":     input.Source,
		"created_at": time.Now().UTC().Format(time.RFC3339),
	}

	result, err := uc.DB.Schema("client").Table("documents").
		Insert(doc).
		Returning().
		Execute(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create document")
	}

	if len(result.Data) == 0 {
		return nil, errors.New("gateway returned no representation for created document")
	}

	return documentFromRow(result.Data[0])
}

// GetDocumentByID fetches a single document by its identifier.
func (uc *UseCase) GetDocumentByID(ctx context.Context, id string) (*Document, error) {
	result, err := uc.DB.Schema("client").Table("documents").
		Select("id", "title", "source", "created_at").
		Eq("id", id).
		Single().
		Execute(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get document %s", id)
	}

	if len(result.Data) == 0 {
		return nil, errors.Errorf("document %s not found", id)
	}

	return documentFromRow(result.Data[0])
}

// ListChunksByDocument returns the lexical chunks of a document in order.
func (uc *UseCase) ListChunksByDocument(ctx context.Context, documentID string, limit int) ([]map[string]any, error) {
	result, err := uc.DB.Schema("lexical").Table("chunks").
		Select("*").
		Eq("document_id", documentID).
		Order("position", true).
		Limit(limit).
		Execute(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list chunks for document %s", documentID)
	}

	return result.Data, nil
}

// UpsertEntities writes extracted graph entities, merging on name. Entity
// writes require the elevated identity.
func (uc *UseCase) UpsertEntities(ctx context.Context, entities []Entity) (int, error) {
	rows := make([]map[string]any, 0, len(entities))
	for _, e := range entities {
		rows = append(rows, map[string]any{
			"name":        e.Name,
			"kind":        e.Kind,
			"document_id": e.DocumentID,
		})
	}

	result, err := uc.DB.Schema("graph").Table("entities").
		Upsert(rows).
		OnConflict("name").
		Admin().
		Execute(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "failed to upsert entities")
	}

	return len(result.Data), nil
}

// RenameDocument updates a document's title.
func (uc *UseCase) RenameDocument(ctx context.Context, id, title string) error {
	result, err := uc.DB.Schema("client").Table("documents").
		Update(map[string]any{"title": title}).
		Eq("id", id).
		Execute(ctx)
	if err != nil {
		return errors.Wrapf(err, "failed to rename document %s", id)
	}

	if len(result.Data) == 0 {
		return errors.Errorf("document %s not found", id)
	}

	return nil
}

// DeleteDocument removes a document and relies on the gateway's cascading
// rules to clean up dependent rows.
func (uc *UseCase) DeleteDocument(ctx context.Context, id string) error {
	_, err := uc.DB.Schema("client").Table("documents").
		Delete().
		Eq("id", id).
		Execute(ctx)
	if err != nil {
		return errors.Wrapf(err, "failed to delete document %s", id)
	}

	return nil
}

// CountChunks returns the total number of chunks stored for a document.
func (uc *UseCase) CountChunks(ctx context.Context, documentID string) (int64, error) {
	result, err := uc.DB.Schema("lexical").Table("chunks").
		Select("id").
		Eq("document_id", documentID).
		WithCount().
		Limit(1).
		Execute(ctx)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to count chunks for document %s", documentID)
	}

	if result.Count == nil {
		return int64(len(result.Data)), nil
	}

	return *result.Count, nil
}

func documentFromRow(row map[string]any) (*Document, error) {
	doc := &Document{}

	if v, ok := row["id"].(string); ok {
		doc.ID = v
	}

	if v, ok := row["title"].(string); ok {
		doc.Title = v
	}

	if v, ok := row["source"].(string); ok {
		doc.Source = v
	}

	if v, ok := row["created_at"].(string); ok {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, errors.Wrap(err, "failed to parse document timestamp")
		}

		doc.CreatedAt = ts
	}

	return doc, nil
}
