package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"travel-booking/internal/auth"
	"travel-booking/internal/catalog"
	"travel-booking/internal/logger"
	"travel-booking/internal/models"
	"travel-booking/internal/utils"
)

type Handler struct {
	Catalog *catalog.Service
	Logger  *logger.Logger
}

func NewHandler(catalogService *catalog.Service, log *logger.Logger) *Handler {
	return &Handler{
		Catalog: catalogService,
		Logger:  log,
	}
}

// CreatePackage handles POST /api/packages (agent only).
func (h *Handler) CreatePackage(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req models.PackageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreatePackage: failed to decode request: %v", err))
		utils.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	pkg, err := h.Catalog.CreatePackage(r.Context(), identity.UserID, req)
	if err != nil {
		if errors.Is(err, catalog.ErrInvalidPackage) {
			utils.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.Logger.Error("API", fmt.Sprintf("CreatePackage: %v", err))
		utils.WriteError(w, http.StatusInternalServerError, "failed to create package")
		return
	}

	utils.WriteSuccess(w, http.StatusCreated, "Package created", pkg)
}

// ListPackages handles GET /api/packages. Customers default to their
// own city; ?city= overrides, ?city=all lists everything.
func (h *Handler) ListPackages(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())

	city := r.URL.Query().Get("city")
	if city == "" {
		city = identity.City
	}
	if city == "all" {
		city = ""
	}

	packages, err := h.Catalog.ListPackages(r.Context(), city)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListPackages: %v", err))
		utils.WriteError(w, http.StatusInternalServerError, "failed to list packages")
		return
	}

	utils.WriteSuccess(w, http.StatusOK, "Packages retrieved", packages)
}

// GetPackage handles GET /api/packages/{packageId}.
func (h *Handler) GetPackage(w http.ResponseWriter, r *http.Request) {
	packageID := chi.URLParam(r, "packageId")

	pkg, err := h.Catalog.GetPackage(r.Context(), packageID)
	if err != nil {
		if errors.Is(err, catalog.ErrPackageNotFound) {
			utils.WriteError(w, http.StatusNotFound, "package not found")
			return
		}
		h.Logger.Error("API", fmt.Sprintf("GetPackage: %v", err))
		utils.WriteError(w, http.StatusInternalServerError, "failed to load package")
		return
	}

	utils.WriteSuccess(w, http.StatusOK, "Package retrieved", pkg)
}

// DeletePackage handles DELETE /api/packages/{packageId} (owning agent
// only).
func (h *Handler) DeletePackage(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	packageID := chi.URLParam(r, "packageId")

	err := h.Catalog.DeletePackage(r.Context(), identity.UserID, packageID)
	switch {
	case errors.Is(err, catalog.ErrPackageNotFound):
		utils.WriteError(w, http.StatusNotFound, "package not found")
	case errors.Is(err, catalog.ErrNotOwner):
		h.Logger.LogSecurity("OWNERSHIP", fmt.Sprintf("Agent %s tried to delete package %s owned by someone else", identity.UserID, packageID))
		utils.WriteError(w, http.StatusForbidden, "access denied")
	case err != nil:
		h.Logger.Error("API", fmt.Sprintf("DeletePackage: %v", err))
		utils.WriteError(w, http.StatusInternalServerError, "failed to delete package")
	default:
		utils.WriteSuccess(w, http.StatusOK, "Package deleted", nil)
	}
}
