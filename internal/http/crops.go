package http

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mzansi-solutions/farm-alert-service/internal/crops"
	"github.com/mzansi-solutions/farm-alert-service/internal/models"
	"github.com/mzansi-solutions/farm-alert-service/internal/session"
)

type cropListResponse struct {
	Crops []models.Crop `json:"crops"`
	Count int           `json:"count"`
}

func userID(r *http.Request) string {
	s, _ := session.FromContext(r.Context())
	return s.UserID
}

func writeCropError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, crops.ErrInvalidCrop):
		writeError(w, r, http.StatusBadRequest, "INVALID_CROP", err.Error())
	case errors.Is(err, crops.ErrCropNotFound):
		writeError(w, r, http.StatusNotFound, "CROP_NOT_FOUND", "crop not found")
	default:
		writeStoreError(w, r, err)
	}
}

func (h *Handler) writeCropList(w http.ResponseWriter, r *http.Request, list []models.Crop, err error) {
	if err != nil {
		writeCropError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cropListResponse{Crops: list, Count: len(list)})
}

// ListCrops handles GET /crops.
func (h *Handler) ListCrops(w http.ResponseWriter, r *http.Request) {
	list, err := h.crops.All(r.Context(), userID(r))
	h.writeCropList(w, r, list, err)
}

// ListActiveCrops handles GET /crops/active.
func (h *Handler) ListActiveCrops(w http.ResponseWriter, r *http.Request) {
	list, err := h.crops.Active(r.Context(), userID(r))
	h.writeCropList(w, r, list, err)
}

// ListHarvestReadyCrops handles GET /crops/harvest.
func (h *Handler) ListHarvestReadyCrops(w http.ResponseWriter, r *http.Request) {
	list, err := h.crops.ReadyForHarvest(r.Context(), userID(r))
	h.writeCropList(w, r, list, err)
}

// GetCropSummary handles GET /crops/summary.
func (h *Handler) GetCropSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.crops.Summarize(r.Context(), userID(r))
	if err != nil {
		writeCropError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// PostCrop handles POST /crops.
func (h *Handler) PostCrop(w http.ResponseWriter, r *http.Request) {
	var c models.Crop
	if !decodeJSON(w, r, &c) {
		return
	}
	added, err := h.crops.Add(r.Context(), userID(r), c)
	if err != nil {
		writeCropError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, added)
}

// PutCrop handles PUT /crops/{id}. The path id wins over any id in the body.
func (h *Handler) PutCrop(w http.ResponseWriter, r *http.Request) {
	var c models.Crop
	if !decodeJSON(w, r, &c) {
		return
	}
	c.ID = mux.Vars(r)["id"]
	updated, err := h.crops.Update(r.Context(), userID(r), c)
	if err != nil {
		writeCropError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// DeleteCrop handles DELETE /crops/{id}.
func (h *Handler) DeleteCrop(w http.ResponseWriter, r *http.Request) {
	if err := h.crops.Delete(r.Context(), userID(r), mux.Vars(r)["id"]); err != nil {
		writeCropError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
