package vespa

import (
	"context"
	"fmt"

	"github.com/vespauniversity/vespa-ragblueprint/internal/core/domain"
)

// Stats reports the indexed document count for the configured schema.
func (c *Client) Stats(ctx context.Context) (domain.CorpusStats, error) {
	body := map[string]any{
		"yql":     fmt.Sprintf("select * from %s where true", c.schema),
		"hits":    0,
		"timeout": "10s",
	}

	var response queryResponse
	if err := c.postQuery(ctx, body, &response); err != nil {
		return domain.CorpusStats{Schema: c.schema}, err
	}

	documents := 0
	if total, err := response.Root.Fields.TotalCount.Int64(); err == nil {
		documents = int(total)
	}
	return domain.CorpusStats{
		Schema:    c.schema,
		Documents: documents,
		Reachable: true,
	}, nil
}
