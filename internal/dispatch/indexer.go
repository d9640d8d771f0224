// internal/dispatch/indexer.go
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8"

	"agrimarket-onboarding/internal/common/logger"
	"agrimarket-onboarding/internal/models"
)

// Indexer mirrors application records into Elasticsearch for the admin
// dashboard's free-text search. The SQL store stays authoritative; a stale
// or missing index entry is never an error for the caller path.
type Indexer struct {
	client *elasticsearch.Client
	index  string
	logger logger.Logger
}

func NewIndexer(client *elasticsearch.Client, index string, log logger.Logger) *Indexer {
	return &Indexer{
		client: client,
		index:  index,
		logger: log.WithFields(map[string]interface{}{"component": "search-indexer"}),
	}
}

// Index upserts one application document keyed by the application id.
func (ix *Indexer) Index(ctx context.Context, app *models.Application) error {
	doc := map[string]interface{}{
		"applicationId":   app.ID,
		"applicantId":     app.ApplicantID,
		"applicationType": string(app.Type),
		"status":          string(app.Status),
		"version":         app.Version,
		"displayName":     app.DisplayName(),
		"submittedAt":     app.SubmittedAt,
		"updatedAt":       app.UpdatedAt,
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal index document: %w", err)
	}

	res, err := ix.client.Index(
		ix.index,
		bytes.NewReader(body),
		ix.client.Index.WithDocumentID(app.ID),
		ix.client.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("index application: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("index application: %s", res.String())
	}
	return nil
}
