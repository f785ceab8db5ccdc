package classify

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Category is the coarse class of a certificate's underlying.
type Category string

const (
	CategoryIndex        Category = "index"
	CategoryCommodity    Category = "commodity"
	CategoryCurrency     Category = "currency"
	CategoryRate         Category = "rate"
	CategoryCreditLinked Category = "credit_linked"
	CategoryStock        Category = "stock"
	CategoryOther        Category = "other"
)

// IsPositive reports whether c was established by a keyword match rather
// than by a default.
func (c Category) IsPositive() bool {
	switch c {
	case CategoryIndex, CategoryCommodity, CategoryCurrency, CategoryRate, CategoryCreditLinked:
		return true
	}
	return false
}

// FallbackType is the product family used when no type rule matches.
const FallbackType = "Certificate"

// CategoryRule maps a keyword group to a category. Groups are evaluated in
// the order they are declared.
type CategoryRule struct {
	Category Category `mapstructure:"category" yaml:"category"`
	Keywords []string `mapstructure:"keywords" yaml:"keywords"`
}

// TypeRule maps a substring of the product name to a product family.
type TypeRule struct {
	Pattern string `mapstructure:"pattern" yaml:"pattern"`
	Label   string `mapstructure:"label"   yaml:"label"`
}

// Rules is the versioned set of classification tables.
type Rules struct {
	Version       string         `mapstructure:"version"        yaml:"version"`
	Categories    []CategoryRule `mapstructure:"categories"     yaml:"categories"`
	StockDenylist []string       `mapstructure:"stock_denylist" yaml:"stock_denylist"`
	ProductTypes  []TypeRule     `mapstructure:"product_types"  yaml:"product_types"`
	FallbackType  string         `mapstructure:"fallback_type"  yaml:"fallback_type"`
}

// DefaultRules returns the built-in tables for Italian certificate sites.
// Short keywords are padded with spaces so they only match whole words.
func DefaultRules() *Rules {
	return &Rules{
		Version: "2024.1",
		Categories: []CategoryRule{
			{Category: CategoryIndex, Keywords: []string{
				"ftse mib", "ftse", "euro stoxx", "eurostoxx", "stoxx", " dax ", "cac 40", "cac40",
				"ibex", "s&p", "s&p 500", "nasdaq", "dow jones", "nikkei", "hang seng", "msci",
				"russell", " smi ", " aex ", "kospi", "hscei", "indice", " index ",
			}},
			{Category: CategoryCommodity, Keywords: []string{
				" gold ", " oro ", "silver", "argento", "platinum", "platino", "palladium", "palladio",
				" wti ", "brent", "crude", "petrolio", "natural gas", "gas naturale", "copper", " rame ",
				"commodity", "commodities", "materie prime",
			}},
			{Category: CategoryCurrency, Keywords: []string{
				"eur/usd", "usd/jpy", "eur/chf", "eur/gbp", "gbp/usd", "usd/chf", "eur/jpy",
				"tasso di cambio", "exchange rate", "forex", "valute",
			}},
			{Category: CategoryRate, Keywords: []string{
				"euribor", "libor", " sofr ", "€str", " ester ", " cms ", " btp ", " bund ", "treasury",
				"tasso d'interesse", "tassi d'interesse", "interest rate", "swap rate",
			}},
			{Category: CategoryCreditLinked, Keywords: []string{
				"credit linked", "credit-linked", "creditlinked", " cln ", "evento di credito",
				"credit event", "rischio di credito",
			}},
		},
		StockDenylist: []string{
			"apple", "microsoft", "amazon", "alphabet", "google", "meta platforms", "tesla",
			"nvidia", "netflix", " intel ", " amd ", " eni ", " enel ", "intesa sanpaolo", "unicredit",
			"stellantis", "ferrari", "generali", "mediobanca", "leonardo", "telecom italia",
			"banco bpm", "bper", "poste italiane", "saipem", "prysmian", "moncler", "stmicro",
			"volkswagen", "bmw", "mercedes", "siemens", "allianz", " axa ", "bnp paribas",
			"societe generale", "deutsche bank", "commerzbank", "totalenergies", "shell",
			"lvmh", "kering", "nokia", "airbus", "sanofi", "bayer", "basf", "adidas",
		},
		ProductTypes: []TypeRule{
			{Pattern: "phoenix memory", Label: "Phoenix Memory"},
			{Pattern: "cash collect memory", Label: "Cash Collect Memory"},
			{Pattern: "memory cash collect", Label: "Cash Collect Memory"},
			{Pattern: "cash collect", Label: "Cash Collect"},
			{Pattern: "phoenix", Label: "Phoenix"},
			{Pattern: "athena", Label: "Athena"},
			{Pattern: "express", Label: "Express"},
			{Pattern: "autocallable", Label: "Autocallable"},
			{Pattern: "bonus cap", Label: "Bonus Cap"},
			{Pattern: "top bonus", Label: "Top Bonus"},
			{Pattern: "bonus", Label: "Bonus"},
			{Pattern: "twin win", Label: "Twin Win"},
			{Pattern: "airbag", Label: "Airbag"},
			{Pattern: "equity protection", Label: "Equity Protection"},
			{Pattern: "capitale protetto", Label: "Capital Protection"},
			{Pattern: "protezione", Label: "Capital Protection"},
			{Pattern: "digital", Label: "Digital"},
			{Pattern: "credit linked", Label: "Credit Linked"},
			{Pattern: "reverse", Label: "Reverse"},
			{Pattern: "benchmark", Label: "Benchmark"},
			{Pattern: "tracker", Label: "Tracker"},
			{Pattern: "turbo", Label: "Turbo"},
			{Pattern: "leva fissa", Label: "Leverage"},
			{Pattern: "leverage", Label: "Leverage"},
		},
		FallbackType: FallbackType,
	}
}

// LoadRules reads rule tables from a YAML, JSON or TOML file.
func LoadRules(path string) (*Rules, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}

	rules := &Rules{}
	if err := v.Unmarshal(rules); err != nil {
		return nil, fmt.Errorf("unmarshal rules: %w", err)
	}
	if rules.FallbackType == "" {
		rules.FallbackType = FallbackType
	}
	if err := rules.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rules %s: %w", path, err)
	}
	return rules, nil
}

// Validate checks the tables for unknown categories and empty patterns.
func (r *Rules) Validate() error {
	seen := make(map[Category]bool, len(r.Categories))
	for i, cr := range r.Categories {
		if !cr.Category.IsPositive() {
			return fmt.Errorf("categories[%d]: %q is not a keyword category", i, cr.Category)
		}
		if seen[cr.Category] {
			return fmt.Errorf("categories[%d]: %q declared twice", i, cr.Category)
		}
		seen[cr.Category] = true
		for j, kw := range cr.Keywords {
			if strings.TrimSpace(kw) == "" {
				return fmt.Errorf("categories[%d].keywords[%d] is empty", i, j)
			}
		}
	}
	for i, tr := range r.ProductTypes {
		if strings.TrimSpace(tr.Pattern) == "" || strings.TrimSpace(tr.Label) == "" {
			return fmt.Errorf("product_types[%d] needs both pattern and label", i)
		}
	}
	for i, name := range r.StockDenylist {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("stock_denylist[%d] is empty", i)
		}
	}
	return nil
}
