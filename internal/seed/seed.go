// Package seed initializes a data directory from a catalog: the store
// record, an admin user, the menu list and empty collection files.
//
// Seeding is idempotent. Collections that already hold records are left
// alone.
package seed

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/roach88/tableorder/internal/docstore"
	"github.com/roach88/tableorder/internal/model"
)

//go:embed catalog.yaml
var defaultCatalog []byte

//go:embed schema.cue
var schemaCUE string

// Catalog is the seed document. Tags are shared by the YAML decoder and the
// CUE encoder.
type Catalog struct {
	Store StoreSpec  `yaml:"store" json:"store"`
	Admin AdminSpec  `yaml:"admin" json:"admin"`
	Menus []MenuSpec `yaml:"menus" json:"menus"`
}

// StoreSpec describes the seeded tenant.
type StoreSpec struct {
	ID        string `yaml:"id" json:"id"`
	Name      string `yaml:"name" json:"name"`
	CreatedAt string `yaml:"created_at" json:"created_at"`
}

// AdminSpec describes the seeded administrator.
type AdminSpec struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// MenuSpec is one catalog entry. Position in the list becomes sort_order.
type MenuSpec struct {
	Name        string `yaml:"name" json:"name"`
	Price       int    `yaml:"price" json:"price"`
	Category    string `yaml:"category" json:"category"`
	Description string `yaml:"description" json:"description"`
	ImageURL    string `yaml:"image_url" json:"image_url"`
}

// Parse decodes a YAML catalog, rejecting unknown fields, and validates it
// against the catalog schema.
func Parse(data []byte) (*Catalog, error) {
	var cat Catalog
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cat); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if err := Validate(&cat); err != nil {
		return nil, err
	}
	return &cat, nil
}

// Default returns the embedded catalog.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Validate checks cat against the embedded CUE schema.
func Validate(cat *Catalog) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile catalog schema: %w", err)
	}

	def := schema.LookupPath(cue.ParsePath("#Catalog"))
	if !def.Exists() {
		return fmt.Errorf("catalog schema has no #Catalog definition")
	}

	val := ctx.Encode(cat)
	if err := val.Err(); err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}
	if err := def.Unify(val).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid catalog: %w", err)
	}
	return nil
}

// Result reports what a Seed call wrote.
type Result struct {
	StoreCreated bool     `json:"store_created"`
	AdminCreated bool     `json:"admin_created"`
	MenusCreated int      `json:"menus_created"`
	Initialized  []string `json:"initialized"`
}

// Seeder writes catalogs into a document store.
type Seeder struct {
	store    *docstore.Store
	clock    model.Clock
	ids      model.IDGenerator
	hashCost int
}

// NewSeeder creates a Seeder. hashCost is the bcrypt cost for the admin
// password; 0 selects bcrypt.DefaultCost.
func NewSeeder(store *docstore.Store, clock model.Clock, ids model.IDGenerator, hashCost int) *Seeder {
	if hashCost == 0 {
		hashCost = bcrypt.DefaultCost
	}
	return &Seeder{store: store, clock: clock, ids: ids, hashCost: hashCost}
}

// Seed writes cat. Each collection is seeded only when it is empty.
func (s *Seeder) Seed(ctx context.Context, cat *Catalog) (Result, error) {
	var res Result
	tenant := cat.Store.ID
	if err := docstore.ValidateTenant(tenant); err != nil {
		return res, err
	}
	now := model.Timestamp(s.clock.Now())

	created, err := time.Parse(time.RFC3339, cat.Store.CreatedAt)
	if err != nil {
		return res, fmt.Errorf("store created_at: %w", err)
	}
	err = s.store.Transform(ctx, docstore.Stores, "", func(records []docstore.Record) ([]docstore.Record, error) {
		for _, r := range records {
			if r.ID() == tenant {
				return records, nil
			}
		}
		res.StoreCreated = true
		return append(records, docstore.Record{
			"id":         tenant,
			"name":       cat.Store.Name,
			"created_at": model.FormatTimestamp(created),
			"updated_at": model.FormatTimestamp(created),
		}), nil
	})
	if err != nil {
		return res, err
	}
	logSkip("stores", !res.StoreCreated)

	users := docstore.NewCollection(s.store, docstore.Users, tenant, func(u model.User) string { return u.ID })
	existingUsers, err := users.All(ctx)
	if err != nil {
		return res, err
	}
	if len(existingUsers) == 0 {
		hash, err := bcrypt.GenerateFromPassword([]byte(cat.Admin.Password), s.hashCost)
		if err != nil {
			return res, fmt.Errorf("hash admin password: %w", err)
		}
		admin := model.User{
			ID:           s.ids.NewID(),
			StoreID:      tenant,
			Username:     cat.Admin.Username,
			PasswordHash: string(hash),
			Role:         "admin",
			CreatedAt:    now,
		}
		if err := users.Replace(ctx, []model.User{admin}); err != nil {
			return res, err
		}
		res.AdminCreated = true
		slog.Info("seed: admin user created", "tenant", tenant, "username", admin.Username)
	}
	logSkip("users", !res.AdminCreated)

	menus := docstore.NewCollection(s.store, docstore.Menus, tenant, func(m model.Menu) string { return m.ID })
	existingMenus, err := menus.All(ctx)
	if err != nil {
		return res, err
	}
	if len(existingMenus) == 0 {
		list := make([]model.Menu, 0, len(cat.Menus))
		for i, m := range cat.Menus {
			list = append(list, model.Menu{
				ID:          s.ids.NewID(),
				StoreID:     tenant,
				Name:        m.Name,
				Price:       m.Price,
				Description: m.Description,
				Category:    m.Category,
				ImageURL:    m.ImageURL,
				IsAvailable: true,
				SortOrder:   i,
				CreatedAt:   now,
				UpdatedAt:   now,
			})
		}
		if err := menus.Replace(ctx, list); err != nil {
			return res, err
		}
		res.MenusCreated = len(list)
		slog.Info("seed: menus created", "tenant", tenant, "count", len(list))
	}
	logSkip("menus", res.MenusCreated == 0)

	for _, entity := range []docstore.Entity{docstore.Tables, docstore.Sessions, docstore.Orders, docstore.OrderHistory} {
		initialized := false
		err := s.store.Transform(ctx, entity, tenant, func(records []docstore.Record) ([]docstore.Record, error) {
			if len(records) == 0 {
				initialized = true
			}
			return records, nil
		})
		if err != nil {
			return res, err
		}
		if initialized {
			res.Initialized = append(res.Initialized, string(entity))
		}
	}
	return res, nil
}

func logSkip(entity string, skipped bool) {
	if skipped {
		slog.Info("seed: collection already populated, skipping", "entity", entity)
	}
}
