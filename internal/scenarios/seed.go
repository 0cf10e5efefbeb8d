package scenarios

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/hookflow/hookflow/internal/secrets"
)

// SeedFile is the YAML shape for bootstrapping connections and scenarios,
// for deployments that provision without the builder UI.
type SeedFile struct {
	Connections []SeedConnection `yaml:"connections"`
	Scenarios   []SeedScenario   `yaml:"scenarios"`
}

type SeedConnection struct {
	ID             string            `yaml:"id"`
	OrganizationID string            `yaml:"organization_id"`
	Name           string            `yaml:"name"`
	WebhookSecret  string            `yaml:"webhook_secret"`
	Extra          map[string]string `yaml:"extra"`
}

type SeedScenario struct {
	ID             string     `yaml:"id"`
	OrganizationID string     `yaml:"organization_id"`
	Name           string     `yaml:"name"`
	TriggerKey     string     `yaml:"trigger_key"`
	Status         Status     `yaml:"status"`
	Nodes          []SeedNode `yaml:"nodes"`
}

type SeedNode struct {
	ID       string         `yaml:"id"`
	Type     string         `yaml:"type"`
	Position int            `yaml:"position"`
	Config   map[string]any `yaml:"config"`
}

// Seed loads a YAML seed file and creates any connections and scenarios
// that do not already exist. Records with IDs already present are left
// untouched; seeding never overwrites operator edits.
func Seed(ctx context.Context, path string, store *Store, connStore *secrets.Store) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading seed file: %w", err)
	}

	var seed SeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("parsing seed file: %w", err)
	}

	for _, sc := range seed.Connections {
		if sc.ID != "" {
			if _, err := connStore.Get(ctx, sc.ID); err == nil {
				continue
			} else if !errors.Is(err, secrets.ErrConnectionNotFound) {
				return err
			}
		}

		id, err := connStore.Create(ctx, &secrets.Connection{
			ID:             sc.ID,
			OrganizationID: sc.OrganizationID,
			Name:           sc.Name,
		}, &secrets.Credentials{
			WebhookSecret: sc.WebhookSecret,
			Extra:         sc.Extra,
		})
		if err != nil {
			return fmt.Errorf("seeding connection %q: %w", sc.Name, err)
		}

		log.Info().Str("connection_id", id).Str("name", sc.Name).Msg("Seeded connection")
	}

	for _, ss := range seed.Scenarios {
		if ss.ID != "" {
			if _, err := store.Get(ctx, ss.ID); err == nil {
				continue
			} else if !errors.Is(err, ErrScenarioNotFound) {
				return err
			}
		}

		sc := &Scenario{
			ID:             ss.ID,
			OrganizationID: ss.OrganizationID,
			Name:           ss.Name,
			TriggerKey:     ss.TriggerKey,
			Status:         ss.Status,
		}
		for _, n := range ss.Nodes {
			sc.Nodes = append(sc.Nodes, NodeSpec{
				ID:       n.ID,
				Type:     n.Type,
				Position: n.Position,
				Config:   n.Config,
			})
		}

		id, err := store.Create(ctx, sc)
		if err != nil {
			return fmt.Errorf("seeding scenario %q: %w", ss.Name, err)
		}

		log.Info().
			Str("scenario_id", id).
			Str("name", ss.Name).
			Str("trigger_key", ss.TriggerKey).
			Msg("Seeded scenario")
	}

	return nil
}
