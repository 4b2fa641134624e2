package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/veribill/veribill/internal/directory/domain"
	"github.com/veribill/veribill/pkg/repository"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB *gorm.DB
}

type directory struct {
	users      repository.Repository[domain.UserProfile]
	businesses repository.Repository[domain.Business]
	clients    repository.Repository[domain.Client]
	templates  repository.Repository[domain.Template]
}

func Provide(p Params) domain.Directory {
	return &directory{
		users:      repository.ProvideStore[domain.UserProfile](p.DB),
		businesses: repository.ProvideStore[domain.Business](p.DB),
		clients:    repository.ProvideStore[domain.Client](p.DB),
		templates:  repository.ProvideStore[domain.Template](p.DB),
	}
}

func (d *directory) UserProfile(ctx context.Context, id snowflake.ID) (*domain.UserProfile, error) {
	profile, err := d.users.FindOne(ctx, &domain.UserProfile{ID: id})
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, domain.ErrProfileNotFound
	}
	return profile, nil
}

func (d *directory) Business(ctx context.Context, id snowflake.ID) (*domain.Business, error) {
	business, err := d.businesses.FindOne(ctx, &domain.Business{ID: id})
	if err != nil {
		return nil, err
	}
	if business == nil {
		return nil, domain.ErrProfileNotFound
	}
	return business, nil
}

func (d *directory) Client(ctx context.Context, id snowflake.ID) (*domain.Client, error) {
	client, err := d.clients.FindOne(ctx, &domain.Client{ID: id})
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, domain.ErrClientNotFound
	}
	return client, nil
}

func (d *directory) Template(ctx context.Context, id snowflake.ID) (*domain.Template, error) {
	template, err := d.templates.FindOne(ctx, &domain.Template{ID: id})
	if err != nil {
		return nil, err
	}
	if template == nil {
		return nil, domain.ErrTemplateNotFound
	}
	return template, nil
}
