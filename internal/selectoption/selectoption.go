// Package selectoption serves the compact lists admin forms use for pickers.
package selectoption

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/aolus-software/rbac-api/internal"
	rbacDatamodel "github.com/aolus-software/rbac-api/internal/core/datamodel/rbac"
	"github.com/aolus-software/rbac-api/internal/transport"
	"gorm.io/gorm"
)

type Option struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type PermissionGroup struct {
	Group       string   `json:"group"`
	Permissions []Option `json:"permissions"`
}

type RepositoryAPI interface {
	Permissions(ctx context.Context) ([]rbacDatamodel.Permission, error)
	// Roles excludes the superuser role.
	Roles(ctx context.Context) ([]rbacDatamodel.Role, error)
}

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) RepositoryAPI {
	return &Repository{db: db}
}

func (r *Repository) Permissions(ctx context.Context) ([]rbacDatamodel.Permission, error) {
	var rows []rbacDatamodel.Permission
	err := r.db.WithContext(ctx).Order(`"group"`).Order("name").Find(&rows).Error
	return rows, err
}

func (r *Repository) Roles(ctx context.Context) ([]rbacDatamodel.Role, error) {
	var rows []rbacDatamodel.Role
	err := r.db.WithContext(ctx).Where("name <> ?", rbacDatamodel.SuperuserRole).Order("name").Find(&rows).Error
	return rows, err
}

type Service struct {
	repo   RepositoryAPI
	logger *slog.Logger
}

func NewService(repo RepositoryAPI, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Permissions groups every permission by its group, keeping group order.
func (s *Service) Permissions(ctx context.Context) ([]PermissionGroup, error) {
	rows, err := s.repo.Permissions(ctx)
	if err != nil {
		return nil, internal.NewInternalError("Failed to load permissions", err)
	}

	groups := make([]PermissionGroup, 0)
	index := make(map[string]int)
	for _, p := range rows {
		group := p.Group
		if group == "" {
			group = rbacDatamodel.DefaultPermissionGroup
		}
		i, ok := index[group]
		if !ok {
			i = len(groups)
			index[group] = i
			groups = append(groups, PermissionGroup{Group: group, Permissions: []Option{}})
		}
		groups[i].Permissions = append(groups[i].Permissions, Option{ID: p.ID, Name: p.Name})
	}
	return groups, nil
}

func (s *Service) Roles(ctx context.Context) ([]Option, error) {
	rows, err := s.repo.Roles(ctx)
	if err != nil {
		return nil, internal.NewInternalError("Failed to load roles", err)
	}

	options := make([]Option, len(rows))
	for i, r := range rows {
		options[i] = Option{ID: r.ID, Name: r.Name}
	}
	return options, nil
}

type Handler struct {
	*transport.BaseHandler
	Service *Service
}

func NewHandler(base *transport.BaseHandler, svc *Service) *Handler {
	return &Handler{BaseHandler: base, Service: svc}
}

func (h *Handler) Permissions(w http.ResponseWriter, r *http.Request) {
	groups, err := h.Service.Permissions(r.Context())
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteSuccess(w, http.StatusOK, "Permission options retrieved", groups)
}

func (h *Handler) Roles(w http.ResponseWriter, r *http.Request) {
	options, err := h.Service.Roles(r.Context())
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteSuccess(w, http.StatusOK, "Role options retrieved", options)
}
