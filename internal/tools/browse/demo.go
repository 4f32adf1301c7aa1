package browse

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed demo.yaml
var demoYAML []byte

// catalog is the embedded demo data set served when no eBay credentials are
// configured.
type catalog struct {
	Items []ItemDetails `yaml:"items"`
}

var (
	demoOnce sync.Once
	demoData *catalog
)

func demoCatalog() *catalog {
	demoOnce.Do(func() {
		demoData = &catalog{}
		if err := yaml.Unmarshal(demoYAML, demoData); err != nil {
			// The file is compiled in; a parse failure is a packaging bug.
			panic(fmt.Sprintf("parsing embedded demo catalog: %v", err))
		}
	})
	return demoData
}

// search returns up to limit items whose title contains every query word,
// case-insensitively.
func (c *catalog) search(query string, limit int) []ItemSummary {
	words := strings.Fields(strings.ToLower(query))
	results := make([]ItemSummary, 0, limit)
	for i := range c.Items {
		title := strings.ToLower(c.Items[i].Title)
		matched := true
		for _, w := range words {
			if !strings.Contains(title, w) {
				matched = false
				break
			}
		}
		if !matched {
			continue
		}
		results = append(results, c.Items[i].ItemSummary)
		if len(results) == limit {
			break
		}
	}
	return results
}

// item returns the demo item with the given ID, or nil.
func (c *catalog) item(id string) *ItemDetails {
	for i := range c.Items {
		if c.Items[i].ItemID == id {
			return &c.Items[i]
		}
	}
	return nil
}
