// Package classify maps free-text underlying descriptions to categories and
// product names to product families using ordered, data-driven keyword tables.
package classify

import (
	"log/slog"
	"strings"
)

// Reason explains how a category was chosen.
type Reason string

const (
	ReasonKeyword  Reason = "keyword"
	ReasonDenylist Reason = "denylist"
	ReasonDefault  Reason = "default"
	ReasonEmpty    Reason = "empty"
)

// Result is the outcome of classifying one text.
type Result struct {
	Category Category
	Reason   Reason
	Match    string
}

// Classifier evaluates the category and product-type tables.
type Classifier struct {
	rules       *Rules
	categories  []Rule[Category]
	denylist    []Rule[string]
	types       []Rule[string]
	closedWorld bool
	logger      *slog.Logger
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithClosedWorld controls the no-match default. When true (the default) text
// that matches no keyword is classified as stock; when false it is "other"
// unless the stock denylist matches.
func WithClosedWorld(enabled bool) Option {
	return func(c *Classifier) { c.closedWorld = enabled }
}

// New creates a Classifier from rule tables. A nil rules value uses DefaultRules.
func New(rules *Rules, logger *slog.Logger, opts ...Option) *Classifier {
	if rules == nil {
		rules = DefaultRules()
	}
	c := &Classifier{
		rules:       rules,
		closedWorld: true,
		logger:      logger.With("component", "classifier"),
	}
	for _, opt := range opts {
		opt(c)
	}

	// Flatten groups into one ordered rule list; group order is the priority.
	for _, group := range rules.Categories {
		for _, kw := range group.Keywords {
			c.categories = append(c.categories, Rule[Category]{Pattern: kw, Value: group.Category})
		}
	}
	for _, name := range rules.StockDenylist {
		c.denylist = append(c.denylist, Rule[string]{Pattern: name, Value: name})
	}
	for _, tr := range rules.ProductTypes {
		c.types = append(c.types, Rule[string]{Pattern: tr.Pattern, Value: tr.Label})
	}

	c.logger.Debug("classifier ready",
		"rules_version", rules.Version,
		"keywords", len(c.categories),
		"denylist", len(c.denylist),
		"product_types", len(c.types),
	)
	return c
}

// RulesVersion returns the version string of the loaded tables.
func (c *Classifier) RulesVersion() string {
	return c.rules.Version
}

// Classify returns the category for text.
func (c *Classifier) Classify(text string) Category {
	return c.Explain(text).Category
}

// Explain classifies text and reports which rule decided it.
func (c *Classifier) Explain(text string) Result {
	if strings.TrimSpace(text) == "" {
		return Result{Category: CategoryOther, Reason: ReasonEmpty}
	}
	if cat, kw, ok := FirstMatch(text, c.categories); ok {
		return Result{Category: cat, Reason: ReasonKeyword, Match: strings.TrimSpace(kw)}
	}
	if _, name, ok := FirstMatch(text, c.denylist); ok {
		return Result{Category: CategoryStock, Reason: ReasonDenylist, Match: strings.TrimSpace(name)}
	}
	if c.closedWorld {
		return Result{Category: CategoryStock, Reason: ReasonDefault}
	}
	return Result{Category: CategoryOther, Reason: ReasonDefault}
}

// IsSingleStock reports whether a category marks a single-name equity
// certificate. Positive categories are never re-flagged as stocks.
func (c *Classifier) IsSingleStock(cat Category) bool {
	return cat == CategoryStock
}

// ProductType returns the product family for a name or description. The first
// pattern in declared order wins; no match yields the fallback label.
func (c *Classifier) ProductType(text string) string {
	if label, _, ok := FirstMatch(text, c.types); ok {
		return label
	}
	return c.FallbackType()
}

// FallbackType returns the generic product family label.
func (c *Classifier) FallbackType() string {
	if c.rules.FallbackType == "" {
		return FallbackType
	}
	return c.rules.FallbackType
}
