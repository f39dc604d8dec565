// Package menu manages a tenant's catalog and answers the menu lookups the
// order service needs.
package menu

import (
	"context"
	"net/url"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/tableorder/internal/apperr"
	"github.com/roach88/tableorder/internal/docstore"
	"github.com/roach88/tableorder/internal/model"
)

// Field limits.
const (
	MaxNameLength        = 100
	MaxCategoryLength    = 50
	MaxDescriptionLength = 500
	MaxPrice             = 1_000_000
)

// Input is the full set of fields for a new menu.
type Input struct {
	Name        string
	Price       int
	Description string
	Category    string
	ImageURL    string
	IsAvailable *bool // nil means available
	SortOrder   int
}

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	Name        *string
	Price       *int
	Description *string
	Category    *string
	ImageURL    *string
	IsAvailable *bool
	SortOrder   *int
}

// Service is the menu catalog.
type Service struct {
	store *docstore.Store
	clock model.Clock
	ids   model.IDGenerator
}

// NewService creates a Service.
func NewService(store *docstore.Store, clock model.Clock, ids model.IDGenerator) *Service {
	return &Service{store: store, clock: clock, ids: ids}
}

func (s *Service) menus(tenant string) *docstore.Collection[model.Menu] {
	return docstore.NewCollection(s.store, docstore.Menus, tenant, func(m model.Menu) string { return m.ID })
}

// List returns every menu of tenant ordered by sort_order. Ties keep file order.
func (s *Service) List(ctx context.Context, tenant string) ([]model.Menu, error) {
	menus, err := s.menus(tenant).All(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(menus, func(i, j int) bool {
		return menus[i].SortOrder < menus[j].SortOrder
	})
	return menus, nil
}

// ListByCategory returns the menus in category, ordered like List.
func (s *Service) ListByCategory(ctx context.Context, tenant, category string) ([]model.Menu, error) {
	menus, err := s.List(ctx, tenant)
	if err != nil {
		return nil, err
	}
	out := make([]model.Menu, 0, len(menus))
	for _, m := range menus {
		if m.Category == category {
			out = append(out, m)
		}
	}
	return out, nil
}

// Get returns one menu, or NOT_FOUND.
func (s *Service) Get(ctx context.Context, tenant, id string) (model.Menu, error) {
	return s.menus(tenant).Get(ctx, id)
}

// Create validates in and appends a new menu.
func (s *Service) Create(ctx context.Context, tenant string, in Input) (model.Menu, error) {
	if err := docstore.ValidateTenant(tenant); err != nil {
		return model.Menu{}, err
	}
	in.Name = normalize(in.Name)
	in.Category = normalize(in.Category)
	if err := validateName(in.Name); err != nil {
		return model.Menu{}, err
	}
	if err := validatePrice(in.Price); err != nil {
		return model.Menu{}, err
	}
	if err := validateCategory(in.Category); err != nil {
		return model.Menu{}, err
	}
	if err := validateDescription(in.Description); err != nil {
		return model.Menu{}, err
	}
	if err := validateImageURL(in.ImageURL); err != nil {
		return model.Menu{}, err
	}

	now := model.Timestamp(s.clock.Now())
	m := model.Menu{
		ID:          s.ids.NewID(),
		StoreID:     tenant,
		Name:        in.Name,
		Price:       in.Price,
		Description: in.Description,
		Category:    in.Category,
		ImageURL:    in.ImageURL,
		IsAvailable: in.IsAvailable == nil || *in.IsAvailable,
		SortOrder:   in.SortOrder,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.menus(tenant).Append(ctx, m); err != nil {
		return model.Menu{}, err
	}
	return m, nil
}

// Update applies p to an existing menu. An empty patch returns the menu
// unchanged.
func (s *Service) Update(ctx context.Context, tenant, id string, p Patch) (model.Menu, error) {
	current, err := s.Get(ctx, tenant, id)
	if err != nil {
		return model.Menu{}, err
	}

	fields := docstore.Record{}
	if p.Name != nil {
		name := normalize(*p.Name)
		if err := validateName(name); err != nil {
			return model.Menu{}, err
		}
		fields["name"] = name
	}
	if p.Price != nil {
		if err := validatePrice(*p.Price); err != nil {
			return model.Menu{}, err
		}
		fields["price"] = *p.Price
	}
	if p.Category != nil {
		category := normalize(*p.Category)
		if err := validateCategory(category); err != nil {
			return model.Menu{}, err
		}
		fields["category"] = category
	}
	if p.Description != nil {
		if err := validateDescription(*p.Description); err != nil {
			return model.Menu{}, err
		}
		fields["description"] = *p.Description
	}
	if p.ImageURL != nil {
		if err := validateImageURL(*p.ImageURL); err != nil {
			return model.Menu{}, err
		}
		fields["image_url"] = *p.ImageURL
	}
	if p.IsAvailable != nil {
		fields["is_available"] = *p.IsAvailable
	}
	if p.SortOrder != nil {
		fields["sort_order"] = *p.SortOrder
	}

	if len(fields) == 0 {
		return current, nil
	}
	return s.menus(tenant).Update(ctx, id, fields)
}

// SetAvailability toggles whether a menu can be ordered.
func (s *Service) SetAvailability(ctx context.Context, tenant, id string, available bool) (model.Menu, error) {
	return s.Update(ctx, tenant, id, Patch{IsAvailable: &available})
}

// Delete removes a menu. Orders already holding a snapshot of it are unaffected.
func (s *Service) Delete(ctx context.Context, tenant, id string) error {
	return s.menus(tenant).Delete(ctx, id)
}

func normalize(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}

func validateName(name string) error {
	if name == "" {
		return apperr.Validation("menu name is required")
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return apperr.Validation("menu name must be %d characters or less", MaxNameLength)
	}
	return nil
}

func validatePrice(price int) error {
	if price < 0 || price > MaxPrice {
		return apperr.Validation("menu price must be between 0 and %d", MaxPrice)
	}
	return nil
}

func validateCategory(category string) error {
	if category == "" {
		return apperr.Validation("menu category is required")
	}
	if utf8.RuneCountInString(category) > MaxCategoryLength {
		return apperr.Validation("menu category must be %d characters or less", MaxCategoryLength)
	}
	return nil
}

func validateDescription(desc string) error {
	if utf8.RuneCountInString(desc) > MaxDescriptionLength {
		return apperr.Validation("menu description must be %d characters or less", MaxDescriptionLength)
	}
	return nil
}

func validateImageURL(raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return apperr.Validation("menu image_url must be an http(s) URL")
	}
	return nil
}
