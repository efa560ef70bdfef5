package guidance

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yanqian/airwise/internal/domain/risk"
)

// Pool names shipped with the default catalog.
const (
	PoolTips    = "tips"
	PoolActions = "actions"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Item is one phrasing of a guidance fact plus the context it applies to.
type Item struct {
	Text       string
	Group      string
	Bands      []risk.Band // empty: any band
	Drivers    []string    // empty: driver-agnostic
	Conditions []string    // empty: unconditional, otherwise any one must be present
	Tags       []string
}

// Pool is a named, ordered collection of guidance items. It is never mutated
// after loading.
type Pool struct {
	Name  string
	Items []Item
}

// Catalog groups the pools loaded at startup.
type Catalog struct {
	pools map[string]*Pool
	order []string
}

// Pool returns the named pool.
func (c *Catalog) Pool(name string) (*Pool, bool) {
	p, ok := c.pools[name]
	return p, ok
}

// Names lists pools in file order.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

type catalogWire struct {
	Pools []struct {
		Name   string `yaml:"name"`
		Groups []struct {
			ID         string   `yaml:"id"`
			Bands      []string `yaml:"bands"`
			Drivers    []string `yaml:"drivers"`
			Conditions []string `yaml:"conditions"`
			Tags       []string `yaml:"tags"`
			Texts      []string `yaml:"texts"`
		} `yaml:"groups"`
	} `yaml:"pools"`
}

// DefaultCatalog parses the catalog compiled into the binary.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalog)
}

// ParseCatalog decodes a YAML catalog and validates it.
func ParseCatalog(data []byte) (*Catalog, error) {
	var wire catalogWire
	if err := yaml.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("parse guidance catalog: %w", err)
	}
	if len(wire.Pools) == 0 {
		return nil, errors.New("guidance catalog has no pools")
	}

	cat := &Catalog{pools: make(map[string]*Pool, len(wire.Pools))}
	for _, wp := range wire.Pools {
		name := strings.TrimSpace(wp.Name)
		if name == "" {
			return nil, errors.New("guidance pool name cannot be empty")
		}
		if _, dup := cat.pools[name]; dup {
			return nil, fmt.Errorf("duplicate guidance pool %q", name)
		}
		pool := &Pool{Name: name}
		groups := make(map[string]struct{}, len(wp.Groups))
		for _, g := range wp.Groups {
			if g.ID == "" {
				return nil, fmt.Errorf("pool %s: group id cannot be empty", name)
			}
			if _, dup := groups[g.ID]; dup {
				return nil, fmt.Errorf("pool %s: duplicate group %q", name, g.ID)
			}
			groups[g.ID] = struct{}{}
			bands, err := parseBands(g.Bands)
			if err != nil {
				return nil, fmt.Errorf("pool %s group %s: %w", name, g.ID, err)
			}
			if len(g.Texts) == 0 {
				return nil, fmt.Errorf("pool %s group %s: no texts", name, g.ID)
			}
			for _, text := range g.Texts {
				text = strings.TrimSpace(text)
				if text == "" {
					return nil, fmt.Errorf("pool %s group %s: empty text", name, g.ID)
				}
				pool.Items = append(pool.Items, Item{
					Text:       text,
					Group:      g.ID,
					Bands:      bands,
					Drivers:    g.Drivers,
					Conditions: g.Conditions,
					Tags:       g.Tags,
				})
			}
		}
		cat.pools[name] = pool
		cat.order = append(cat.order, name)
	}
	return cat, nil
}

func parseBands(raw []string) ([]risk.Band, error) {
	out := make([]risk.Band, 0, len(raw))
	for _, r := range raw {
		b := risk.Band(r)
		switch b {
		case risk.BandLow, risk.BandModerate, risk.BandHigh, risk.BandVeryHigh:
			out = append(out, b)
		default:
			return nil, fmt.Errorf("unknown band %q", r)
		}
	}
	return out, nil
}
