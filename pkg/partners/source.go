package partners

import (
	"context"
	"fmt"
	"strings"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/expressions"
	"github.com/Ramsey-B/fern/pkg/httpclient"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Source fetches partner collections over HTTP.
type Source struct {
	client *httpclient.Client
	eval   *expressions.Evaluator
	logger ectologger.Logger
}

func NewSource(client *httpclient.Client, eval *expressions.Evaluator, logger ectologger.Logger) *Source {
	return &Source{
		client: client,
		eval:   eval,
		logger: logger,
	}
}

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

// Fetch returns the records found under itemsExpr in the response for path.
func (s *Source) Fetch(ctx context.Context, p *Partner, path, itemsExpr string) ([]any, error) {
	ctx, span := tracing.StartSpan(ctx, "partners.Source.Fetch")
	defer span.End()

	var body any
	if err := s.client.GetJSON(ctx, joinURL(p.BaseURL, path), p.Headers, &body); err != nil {
		tracing.RecordError(span, err)
		return nil, fmt.Errorf("fetch %s%s: %w", p.Name, path, err)
	}

	if itemsExpr == "" {
		items, ok := body.([]any)
		if !ok {
			return nil, fmt.Errorf("fetch %s%s: expected a JSON array, got %T", p.Name, path, body)
		}
		return items, nil
	}

	items, err := s.eval.EvaluateSlice(itemsExpr, body)
	if err != nil {
		return nil, fmt.Errorf("fetch %s%s: %w", p.Name, path, err)
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"partner": p.Name,
		"path":    path,
		"records": len(items),
	}).Info("Fetched partner collection")

	return items, nil
}
