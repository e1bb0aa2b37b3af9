package store

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/tutorstack/tutorstack/engine/pkg/models"
)

// seedFile is the on-disk shape of a seed document. Either section may
// be empty; both files share the format so one combined file also works.
type seedFile struct {
	Tenants    []models.TenantConfig    `yaml:"tenants"`
	Assistants []models.AssistantConfig `yaml:"assistants"`
}

// Seed loads tenant and assistant definitions from YAML files into the
// store. Paths may be empty (skipped). Entries overwrite existing ones.
func Seed(ctx context.Context, s Store, paths ...string) error {
	for _, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read seed file %s: %w", path, err)
		}
		var sf seedFile
		if err := yaml.Unmarshal(data, &sf); err != nil {
			return fmt.Errorf("parse seed file %s: %w", path, err)
		}
		for i := range sf.Tenants {
			if err := s.UpsertTenantConfig(ctx, &sf.Tenants[i]); err != nil {
				return fmt.Errorf("seed tenant %s: %w", sf.Tenants[i].Tenant, err)
			}
		}
		for i := range sf.Assistants {
			a := &sf.Assistants[i]
			if _, err := s.GetAssistant(ctx, a.Owner, a.ID); err == nil {
				if err := s.UpdateAssistant(ctx, a); err != nil {
					return fmt.Errorf("seed assistant %s: %w", a.ID, err)
				}
			} else if err := s.CreateAssistant(ctx, a); err != nil {
				return fmt.Errorf("seed assistant %s: %w", a.ID, err)
			}
		}
		log.Info().
			Str("path", path).
			Int("tenants", len(sf.Tenants)).
			Int("assistants", len(sf.Assistants)).
			Msg("Seed file loaded")
	}
	return nil
}
