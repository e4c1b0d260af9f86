// Package catalog loads the lists that steer normalization: known brands,
// watched subreddits and the words that mark a post as a sale.
package catalog

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

type Catalog struct {
	Brands              []string `yaml:"brands"`
	Subreddits          []string `yaml:"subreddits"`
	MarketplaceKeywords []string `yaml:"marketplace_keywords"`
}

// Default is the catalog compiled into the binary.
func Default() Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("embedded catalog is invalid: %s", err))
	}
	return c
}

// Load reads a catalog file. An empty path returns [Default].
//
// Lists missing from the file fall back to the default lists.
func Load(path string) (Catalog, error) {
	if path == "" {
		return Default(), nil
	}

	byts, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("error reading catalog: %w", err)
	}
	c, err := Parse(byts)
	if err != nil {
		return Catalog{}, err
	}

	def := Default()
	if len(c.Brands) == 0 {
		c.Brands = def.Brands
	}
	if len(c.Subreddits) == 0 {
		c.Subreddits = def.Subreddits
	}
	if len(c.MarketplaceKeywords) == 0 {
		c.MarketplaceKeywords = def.MarketplaceKeywords
	}

	return c, nil
}

func Parse(byts []byte) (Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(byts, &c); err != nil {
		return Catalog{}, fmt.Errorf("error parsing catalog: %w", err)
	}
	return c, nil
}
