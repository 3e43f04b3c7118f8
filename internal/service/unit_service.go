package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"umbrella-admin/internal/model"
	"umbrella-admin/internal/repository"
	"umbrella-admin/internal/unit"
	"umbrella-admin/internal/util"
	"umbrella-admin/pkg/apierror"
)

// LoadHierarchy builds the unit tree from the directory, creating the root
// unit on first start.
func LoadHierarchy(ctx context.Context, backend repository.Backend, rootName string) (*unit.Hierarchy, error) {
	units, err := backend.Directory().ListUnits(ctx)
	if err != nil {
		return nil, fmt.Errorf("list units: %w", err)
	}

	if len(units) == 0 {
		root := model.Unit{ID: uuid.NewString(), Name: rootName, CreatedAt: time.Now().UTC()}
		err := backend.Atomically(ctx, func(tx repository.Backend) error {
			return tx.Directory().CreateUnit(ctx, root)
		})
		if err != nil {
			return nil, fmt.Errorf("create root unit: %w", err)
		}
		slog.Info("root unit created", "id", root.ID, "name", root.Name)
		units = []model.Unit{root}
	}

	return unit.New(units)
}

const maxUnitNameLength = 120

type UnitService struct {
	backend repository.Backend
	units   *unit.Hierarchy
	mu      sync.Mutex
}

func NewUnitService(backend repository.Backend, units *unit.Hierarchy) *UnitService {
	return &UnitService{backend: backend, units: units}
}

func (s *UnitService) Tree() model.UnitNode {
	return s.units.Tree()
}

func (s *UnitService) List() []model.Unit {
	return s.units.All()
}

func (s *UnitService) NameAvailable(name string) bool {
	return s.units.NameAvailable(util.CleanLine(name, maxUnitNameLength))
}

// Create adds a unit below req.ParentID, or below the root when no parent
// is given.
func (s *UnitService) Create(ctx context.Context, req model.CreateUnitRequest) (model.Unit, error) {
	name := util.CleanLine(req.Name, maxUnitNameLength)
	if name == "" {
		return model.Unit{}, apierror.Validation("the submitted data is invalid", map[string]string{"name": "this field is required"})
	}

	parentID := strings.TrimSpace(req.ParentID)
	if parentID == "" {
		parentID = s.units.Root().ID
	}

	u := model.Unit{ID: uuid.NewString(), ParentID: parentID, Name: name, CreatedAt: time.Now().UTC()}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.units.CanAdd(u); err != nil {
		if errors.Is(err, model.ErrUnitNameTaken) {
			return model.Unit{}, apierror.Validation("the submitted data is invalid", map[string]string{"name": "a unit with this name already exists"})
		}
		return model.Unit{}, err
	}

	err := s.backend.Atomically(ctx, func(tx repository.Backend) error {
		return tx.Directory().CreateUnit(ctx, u)
	})
	if err != nil {
		return model.Unit{}, err
	}
	if err := s.units.Add(u); err != nil {
		return model.Unit{}, fmt.Errorf("add unit to hierarchy: %w", err)
	}
	return u, nil
}
