package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Flat-rate pass (Deutschland-Ticket) eligibility constants.
// FlatRateRemarkCode is the authoritative remark code; the product lists are
// the heuristic used when upstream omits that remark.
const (
	FlatRateRemarkCode = "9G"

	ProductRegional = "regional"
	ProductSuburban = "suburban"

	ProductNameBus = "Bus"
)

// FlatRateRules is the eligibility rule set used by the evaluator
type FlatRateRules struct {
	RemarkCode   string   `yaml:"remark_code"`
	Products     []string `yaml:"products"`
	ProductNames []string `yaml:"product_names"`
}

// DefaultFlatRateRules returns the built-in rule set
func DefaultFlatRateRules() FlatRateRules {
	return FlatRateRules{
		RemarkCode:   FlatRateRemarkCode,
		Products:     []string{ProductRegional, ProductSuburban},
		ProductNames: []string{ProductNameBus},
	}
}

// LoadRules reads a YAML rules file. Keys missing from the file keep their defaults.
func LoadRules(path string) (FlatRateRules, error) {
	rules := DefaultFlatRateRules()
	if path == "" {
		return rules, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return rules, fmt.Errorf("failed to read rules file: %w", err)
	}

	var override FlatRateRules
	if err := yaml.Unmarshal(data, &override); err != nil {
		return rules, fmt.Errorf("failed to parse rules file: %w", err)
	}

	if override.RemarkCode != "" {
		rules.RemarkCode = override.RemarkCode
	}
	if override.Products != nil {
		rules.Products = override.Products
	}
	if override.ProductNames != nil {
		rules.ProductNames = override.ProductNames
	}

	return rules, nil
}
