// Package domain exposes read-only lookups of the live party and template
// records that issuance freezes into snapshots. The invoicing core never
// writes these tables.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// UserProfile is an individual issuer's current directory record.
type UserProfile struct {
	ID            snowflake.ID `gorm:"primaryKey"`
	DisplayName   string       `gorm:"type:text;not null"`
	Email         string       `gorm:"type:text;not null"`
	EmailVerified bool         `gorm:"not null;default:false"`
	Address       string       `gorm:"type:text"`
	TaxID         string       `gorm:"type:text"`
	Jurisdiction  string       `gorm:"type:text;not null;default:'US'"`
	UpdatedAt     time.Time    `gorm:"not null"`
}

// TableName sets the database table name.
func (UserProfile) TableName() string { return "user_profiles" }

// Business is a company issuer's current directory record.
type Business struct {
	ID                 snowflake.ID `gorm:"primaryKey"`
	OwnerUserID        snowflake.ID `gorm:"not null;index"`
	Name               string       `gorm:"type:text;not null"`
	Email              string       `gorm:"type:text;not null"`
	Address            string       `gorm:"type:text"`
	RegistrationNumber string       `gorm:"type:text"`
	TaxID              string       `gorm:"type:text"`
	Jurisdiction       string       `gorm:"type:text;not null;default:'US'"`
	UpdatedAt          time.Time    `gorm:"not null"`
}

// TableName sets the database table name.
func (Business) TableName() string { return "businesses" }

// Client is an invoice recipient's current record.
type Client struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	Name      string       `gorm:"type:text;not null"`
	Email     string       `gorm:"type:text"`
	Address   string       `gorm:"type:text"`
	TaxID     string       `gorm:"type:text"`
	UpdatedAt time.Time    `gorm:"not null"`
}

// TableName sets the database table name.
func (Client) TableName() string { return "clients" }

// Template describes a rendering template's capabilities.
type Template struct {
	ID                     snowflake.ID `gorm:"primaryKey"`
	Name                   string       `gorm:"type:text;not null"`
	RequiresWatermark      bool         `gorm:"not null;default:false"`
	SupportsCustomBranding bool         `gorm:"not null;default:false"`
	UpdatedAt              time.Time    `gorm:"not null"`
}

// TableName sets the database table name.
func (Template) TableName() string { return "invoice_templates" }

// Directory is the read-only lookup surface consumed at issuance time.
type Directory interface {
	UserProfile(ctx context.Context, id snowflake.ID) (*UserProfile, error)
	Business(ctx context.Context, id snowflake.ID) (*Business, error)
	Client(ctx context.Context, id snowflake.ID) (*Client, error)
	Template(ctx context.Context, id snowflake.ID) (*Template, error)
}

var (
	ErrProfileNotFound  = errors.New("profile_not_found")
	ErrClientNotFound   = errors.New("client_not_found")
	ErrTemplateNotFound = errors.New("template_not_found")
)
