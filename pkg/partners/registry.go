package partners

import (
	"fmt"
	"sort"

	"github.com/Ramsey-B/fern/pkg/httpclient"
	"github.com/Ramsey-B/fern/pkg/mapping"
)

type Settings struct {
	AtlasBaseURL     string
	AtlasAPIKey      string
	DriftwoodBaseURL string
	DriftwoodAPIKey  string
}

// Registry holds the partners fern can import from.
type Registry struct {
	partners map[string]*Partner
}

func NewRegistry(partners ...*Partner) *Registry {
	r := &Registry{partners: make(map[string]*Partner, len(partners))}
	for _, p := range partners {
		r.partners[p.Name] = p
	}
	return r
}

// Default builds the atlas and driftwood partners and validates their mappings.
func Default(settings Settings, client *httpclient.Client, mapper *mapping.Mapper) (*Registry, error) {
	atlasHeaders := map[string]string{}
	if settings.AtlasAPIKey != "" {
		atlasHeaders["X-Api-Key"] = settings.AtlasAPIKey
	}
	driftwoodHeaders := map[string]string{}
	if settings.DriftwoodAPIKey != "" {
		driftwoodHeaders["Authorization"] = "Bearer " + settings.DriftwoodAPIKey
	}

	atlas := &Partner{
		Name:         Atlas,
		BaseURL:      settings.AtlasBaseURL,
		Headers:      atlasHeaders,
		Collections:  atlasCollections(),
		Images:       atlasImages(),
		Availability: NewAtlasOracle(client, settings.AtlasBaseURL, atlasHeaders),
	}
	driftwood := &Partner{
		Name:        Driftwood,
		BaseURL:     settings.DriftwoodBaseURL,
		Headers:     driftwoodHeaders,
		Collections: driftwoodCollections(),
		Images:      driftwoodImages(),
	}

	for _, p := range []*Partner{atlas, driftwood} {
		if err := p.Validate(mapper); err != nil {
			return nil, fmt.Errorf("invalid partner definition: %w", err)
		}
	}

	return NewRegistry(atlas, driftwood), nil
}

func (r *Registry) Get(name string) (*Partner, bool) {
	p, ok := r.partners[name]
	return p, ok
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.partners))
	for name := range r.partners {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
