package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/99minutos/identity-system/internal/core/domain"
	"github.com/99minutos/identity-system/internal/core/ports"
	"github.com/99minutos/identity-system/internal/pkg/config"
	"github.com/99minutos/identity-system/pkg/logger"
)

// seedFile is the layout of the file read by the seed command. ${VAR}
// references are expanded from the environment so secrets stay out of it.
type seedFile struct {
	Roles   []seedRole          `yaml:"roles"`
	Clients []domain.AuthClient `yaml:"clients"`
	Users   []seedUser          `yaml:"users"`
}

type seedRole struct {
	Code               string `yaml:"code"`
	Title              string `yaml:"title"`
	Description        string `yaml:"description"`
	IsDefault          bool   `yaml:"isDefault"`
	HasSuperPrivileges bool   `yaml:"hasSuperPrivileges"`
}

type seedUser struct {
	UserName string   `yaml:"userName"`
	Email    string   `yaml:"email"`
	Name     string   `yaml:"name"`
	Password string   `yaml:"password"`
	Roles    []string `yaml:"roles"`
}

func newSeedCommand(cfg *config.Config) *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Upsert roles and auth clients and create initial users",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := loadSeedFile(path)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.close(context.Background())
			return seed(cmd.Context(), a, data)
		},
	}
	cmd.Flags().StringVarP(&path, "file", "f", "seed.yaml", "seed file")
	return cmd
}

func loadSeedFile(path string) (*seedFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var data seedFile
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), &data); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	for i, c := range data.Clients {
		if c.URI == "" {
			return nil, fmt.Errorf("client #%d: uri is required", i)
		}
		if !c.Type.Valid() {
			return nil, fmt.Errorf("client %q: unsupported type %q", c.URI, c.Type)
		}
	}
	for i, r := range data.Roles {
		if r.Code == "" {
			return nil, fmt.Errorf("role #%d: code is required", i)
		}
	}
	return &data, nil
}

func seed(ctx context.Context, a *app, data *seedFile) error {
	log := logger.Get()

	for _, r := range data.Roles {
		role := domain.Role{
			Code:               r.Code,
			Title:              r.Title,
			Description:        r.Description,
			IsDefault:          r.IsDefault,
			HasSuperPrivileges: r.HasSuperPrivileges,
		}
		if err := a.roles.Upsert(ctx, &role); err != nil {
			return err
		}
		log.Info().Str("role", r.Code).Msg("role upserted")
	}

	for i := range data.Clients {
		if err := a.clients.Upsert(ctx, &data.Clients[i]); err != nil {
			return err
		}
		log.Info().Str("client", data.Clients[i].URI).Msg("auth client upserted")
	}

	for _, u := range data.Users {
		_, err := a.users.CreateUser(ctx, ports.NewUser{
			UserName:          u.UserName,
			Email:             u.Email,
			Name:              u.Name,
			Password:          u.Password,
			EmailWasConfirmed: true,
			Roles:             u.Roles,
		})
		switch {
		case errors.Is(err, domain.ErrUserExists):
			log.Info().Str("user", u.UserName).Msg("user exists, skipped")
		case err != nil:
			return fmt.Errorf("create user %q: %w", u.UserName, err)
		default:
			log.Info().Str("user", u.UserName).Msg("user created")
		}
	}
	return nil
}
