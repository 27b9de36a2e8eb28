// Package material loads the per-process material catalogs.
package material

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/Simplici0/printquote/internal/faults"
)

// Material is one purchasable stock. Costs are optional; a material used for
// costing needs a density and at least one cost figure.
type Material struct {
	ID           string   `json:"id" yaml:"id"`
	Name         string   `json:"name" yaml:"name"`
	Process      string   `json:"process" yaml:"process"`
	Technology   string   `json:"technology,omitempty" yaml:"technology,omitempty"`
	CostPerKg    *float64 `json:"cost_per_kg,omitempty" yaml:"cost_per_kg,omitempty"`
	CostPerLiter *float64 `json:"cost_per_liter,omitempty" yaml:"cost_per_liter,omitempty"`
	Density      float64  `json:"density_g_cm3" yaml:"density_g_cm3"`
}

// Catalog is the immutable set of materials for one process. It is safe for
// concurrent reads.
type Catalog struct {
	process string
	path    string
	items   []Material
	byID    map[string]int
}

// LoadCatalog reads a JSON or YAML array of materials from path, keeping only
// records for process. Records for other processes are skipped with a warning.
func LoadCatalog(path, process string, logger *zap.Logger) (*Catalog, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, faults.Wrap(faults.KindConfiguration, err, "read material catalog %s", filepath.Base(path))
	}

	var records []Material
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &records)
	default:
		err = json.Unmarshal(data, &records)
	}
	if err != nil {
		return nil, faults.Wrap(faults.KindConfiguration, err, "parse material catalog %s", filepath.Base(path))
	}

	c := &Catalog{process: process, path: path, byID: make(map[string]int, len(records))}
	for i, rec := range records {
		rec.ID = strings.TrimSpace(rec.ID)
		switch {
		case rec.Process != process:
			logger.Warn("skipping material for another process",
				zap.String("catalog", path), zap.Int("index", i),
				zap.String("material_id", rec.ID), zap.String("process", rec.Process))
			continue
		case rec.ID == "":
			logger.Warn("skipping material without id", zap.String("catalog", path), zap.Int("index", i))
			continue
		}
		if _, dup := c.byID[rec.ID]; dup {
			logger.Warn("skipping duplicate material id", zap.String("catalog", path), zap.String("material_id", rec.ID))
			continue
		}
		c.byID[rec.ID] = len(c.items)
		c.items = append(c.items, rec)
	}

	if len(c.items) == 0 {
		return nil, faults.New(faults.KindConfiguration, "material catalog %s has no valid materials for process %q", filepath.Base(path), process)
	}
	logger.Info("material catalog loaded",
		zap.String("process", process), zap.String("catalog", path), zap.Int("materials", len(c.items)))
	return c, nil
}

// NewCatalog builds a catalog from in-memory records.
func NewCatalog(process string, items []Material) (*Catalog, error) {
	c := &Catalog{process: process, byID: make(map[string]int, len(items))}
	for _, m := range items {
		if m.Process != process || m.ID == "" {
			continue
		}
		if _, dup := c.byID[m.ID]; dup {
			continue
		}
		c.byID[m.ID] = len(c.items)
		c.items = append(c.items, m)
	}
	if len(c.items) == 0 {
		return nil, faults.New(faults.KindConfiguration, "no valid materials for process %q", process)
	}
	return c, nil
}

// Process returns the process this catalog serves.
func (c *Catalog) Process() string { return c.process }

// Path returns the file the catalog was loaded from, if any.
func (c *Catalog) Path() string { return c.path }

// Lookup returns the material with id. Unknown ids yield a
// MaterialNotFoundError naming every valid id.
func (c *Catalog) Lookup(id string) (Material, error) {
	if i, ok := c.byID[strings.TrimSpace(id)]; ok {
		return c.items[i], nil
	}
	return Material{}, faults.New(faults.KindMaterialNotFound,
		"material %q is not available for %s; valid ids: %s", id, c.process, strings.Join(c.IDs(), ", "))
}

// IDs returns the material ids in sorted order.
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.items))
	for _, m := range c.items {
		ids = append(ids, m.ID)
	}
	sort.Strings(ids)
	return ids
}

// All returns the materials in catalog order.
func (c *Catalog) All() []Material {
	out := make([]Material, len(c.items))
	copy(out, c.items)
	return out
}

// Len returns the number of materials.
func (c *Catalog) Len() int { return len(c.items) }

func (m Material) String() string {
	return fmt.Sprintf("%s (%s)", m.Name, m.ID)
}
