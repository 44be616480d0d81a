// Package catalog provides the static registry of available AI backends.
// The catalog is read-only after load and safe for concurrent readers.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/repopulse/pulseflow/pkg/models"
)

// ErrModelNotFound indicates no descriptor exists for the given model ID.
var ErrModelNotFound = errors.New("model not found in catalog")

// Catalog holds the deployment's model descriptors indexed by ID.
type Catalog struct {
	models  map[string]*models.ModelDescriptor
	ordered []*models.ModelDescriptor
}

// New builds a catalog from descriptors, validating each entry and every
// failover chain reference.
func New(descriptors []*models.ModelDescriptor) (*Catalog, error) {
	validate := validator.New(validator.WithRequiredStructEnabled())
	indexed := make(map[string]*models.ModelDescriptor, len(descriptors))

	for _, descriptor := range descriptors {
		if err := validate.Struct(descriptor); err != nil {
			return nil, fmt.Errorf("invalid model descriptor %q: %w", descriptor.ID, err)
		}

		if _, exists := indexed[descriptor.ID]; exists {
			return nil, fmt.Errorf("duplicate model descriptor: %s", descriptor.ID)
		}

		indexed[descriptor.ID] = descriptor
	}

	for _, descriptor := range descriptors {
		for _, step := range descriptor.FailoverChain {
			if _, exists := indexed[step.ModelID]; !exists {
				return nil, fmt.Errorf("model %s declares unknown failover target %s", descriptor.ID, step.ModelID)
			}
		}
	}

	return &Catalog{models: indexed, ordered: descriptors}, nil
}

// LoadFile reads a JSON catalog file of the form {"models": [...]}.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is operator-supplied configuration
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file %s: %w", path, err)
	}

	var file struct {
		Models []*models.ModelDescriptor `json:"models"`
	}

	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse catalog file %s: %w", path, err)
	}

	return New(file.Models)
}

// ModelByID returns the descriptor for a model ID.
func (c *Catalog) ModelByID(id string) (*models.ModelDescriptor, error) {
	descriptor, ok := c.models[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, id)
	}

	return descriptor, nil
}

// ModelsInTier returns the descriptors of a tier sorted by output cost,
// cheapest first.
func (c *Catalog) ModelsInTier(tier models.ModelTier) []*models.ModelDescriptor {
	var result []*models.ModelDescriptor

	for _, descriptor := range c.ordered {
		if descriptor.Tier == tier {
			result = append(result, descriptor)
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CostPerKTokenOutput < result[j].CostPerKTokenOutput
	})

	return result
}

// Models returns all descriptors in declaration order.
func (c *Catalog) Models() []*models.ModelDescriptor {
	return c.ordered
}
