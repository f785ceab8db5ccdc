// Package pipeline runs finished certificate records through an ordered chain
// of middleware before they are stored.
package pipeline

import (
	"log/slog"

	"github.com/IshaanNene/CertGoat/internal/certificate"
	"github.com/IshaanNene/CertGoat/internal/types"
)

// Middleware processes a record and returns the (possibly modified) record.
// Return nil to drop the record from the pipeline.
type Middleware interface {
	// Name returns the middleware's identifier.
	Name() string

	// Process transforms a record. Return nil to drop it.
	Process(rec *certificate.Record) (*certificate.Record, error)
}

// Pipeline chains middleware processors together.
type Pipeline struct {
	middlewares []Middleware
	logger      *slog.Logger
}

// New creates a new Pipeline.
func New(logger *slog.Logger) *Pipeline {
	return &Pipeline{
		logger: logger.With("component", "pipeline"),
	}
}

// NewDefault builds the standard chain. The single-stock filter is included
// only when excludeSingleStock is set.
func NewDefault(excludeSingleStock bool, classifier StockClassifier, logger *slog.Logger) *Pipeline {
	p := New(logger)
	p.Use(&TrimMiddleware{})
	p.Use(&RequireISINMiddleware{})
	p.Use(NewDedupMiddleware())
	p.Use(&CurrencyNormalizeMiddleware{})
	if excludeSingleStock {
		p.Use(&SingleStockFilterMiddleware{Classifier: classifier})
	}
	p.Use(&ValidateMiddleware{})
	return p
}

// Use adds a middleware to the pipeline chain.
func (p *Pipeline) Use(mw Middleware) {
	p.middlewares = append(p.middlewares, mw)
	p.logger.Debug("middleware added", "name", mw.Name(), "position", len(p.middlewares))
}

// Process runs the record through all middleware in order.
func (p *Pipeline) Process(rec *certificate.Record) (*certificate.Record, error) {
	current := rec

	for _, mw := range p.middlewares {
		result, err := mw.Process(current)
		if err != nil {
			return nil, &types.PipelineError{
				Stage: mw.Name(),
				ISIN:  current.ISIN,
				Err:   err,
			}
		}
		if result == nil {
			p.logger.Debug("record dropped", "stage", mw.Name(), "isin", rec.ISIN)
			return nil, nil
		}
		current = result
	}

	return current, nil
}

// Len returns the number of middleware in the chain.
func (p *Pipeline) Len() int {
	return len(p.middlewares)
}
