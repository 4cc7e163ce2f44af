package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/irfndi/stock-monitor/internal/middleware"
	"github.com/irfndi/stock-monitor/internal/models"
	"github.com/irfndi/stock-monitor/internal/utils"
)

// WatchlistService is the watchlist and archive surface used by the handlers.
// services.WatchlistService implements it.
type WatchlistService interface {
	Add(ctx context.Context, ticker string) (models.WatchlistItem, bool, error)
	Remove(ctx context.Context, ticker string) error
	RemoveBatch(ctx context.Context, tickers []string) (models.BatchRemoveResult, error)
	SetFavourite(ctx context.Context, ticker string, favourite bool) error
	DeleteArchived(ctx context.Context, ticker string) error
	List(ctx context.Context) ([]models.WatchlistItem, error)
	ListArchive(ctx context.Context) ([]models.ArchivedWatchlistItem, error)
}

// WatchlistHandler serves /monitor/watchlist and /monitor/archive.
type WatchlistHandler struct {
	service WatchlistService
}

// NewWatchlistHandler creates a new watchlist handler
func NewWatchlistHandler(service WatchlistService) *WatchlistHandler {
	return &WatchlistHandler{service: service}
}

// WatchlistResponse is the active list view.
type WatchlistResponse struct {
	Items    []models.WatchlistItem `json:"items"`
	Metadata ListMetadata           `json:"metadata"`
}

// ArchiveResponse is the archive list view.
type ArchiveResponse struct {
	ArchivedItems []models.ArchivedWatchlistItem `json:"archived_items"`
	Metadata      ListMetadata                   `json:"metadata"`
}

// AddResponse is returned by PUT /monitor/watchlist/:ticker.
type AddResponse struct {
	Message string               `json:"message"`
	Item    models.WatchlistItem `json:"item"`
}

// FavouriteRequest is the body of the favourite toggle.
type FavouriteRequest struct {
	IsFavourite *bool `json:"is_favourite"`
}

// BatchRemoveRequest is the body of the batch removal.
type BatchRemoveRequest struct {
	Tickers []string `json:"tickers"`
}

// BatchRemoveResponse reports a batch removal.
type BatchRemoveResponse struct {
	Message string `json:"message"`
	models.BatchRemoveResult
}

// GetWatchlist handles GET /monitor/watchlist.
func (h *WatchlistHandler) GetWatchlist(c *gin.Context) {
	items, err := h.service.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if items == nil {
		items = []models.WatchlistItem{}
	}
	middleware.AddSpanAttribute(c, "watchlist.count", len(items))
	c.JSON(http.StatusOK, WatchlistResponse{Items: items, Metadata: ListMetadata{Count: len(items)}})
}

// AddTicker handles PUT /monitor/watchlist/:ticker.
func (h *WatchlistHandler) AddTicker(c *gin.Context) {
	item, created, err := h.service.Add(c.Request.Context(), c.Param("ticker"))
	if err != nil {
		respondError(c, err)
		return
	}

	markInvalidated(c, models.MutationAdd)
	if !created {
		c.JSON(http.StatusOK, AddResponse{
			Message: fmt.Sprintf("%s is already on the watchlist", item.Ticker),
			Item:    item,
		})
		return
	}
	c.JSON(http.StatusCreated, AddResponse{
		Message: fmt.Sprintf("%s added to watchlist", item.Ticker),
		Item:    item,
	})
}

// RemoveTicker handles DELETE /monitor/watchlist/:ticker.
func (h *WatchlistHandler) RemoveTicker(c *gin.Context) {
	ticker := c.Param("ticker")
	if err := h.service.Remove(c.Request.Context(), ticker); err != nil {
		respondError(c, err)
		return
	}
	markInvalidated(c, models.MutationRemove)
	c.JSON(http.StatusOK, MessageResponse{Message: fmt.Sprintf("%s moved to archive", canonical(ticker))})
}

// SetFavourite handles POST /monitor/watchlist/:ticker/favourite.
func (h *WatchlistHandler) SetFavourite(c *gin.Context) {
	var req FavouriteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.IsFavourite == nil {
		respondError(c, utils.NewValidationError("is_favourite is required"))
		return
	}

	ticker := c.Param("ticker")
	if err := h.service.SetFavourite(c.Request.Context(), ticker, *req.IsFavourite); err != nil {
		respondError(c, err)
		return
	}
	markInvalidated(c, models.MutationToggleFavourite)

	verb := "removed from"
	if *req.IsFavourite {
		verb = "added to"
	}
	c.JSON(http.StatusOK, MessageResponse{Message: fmt.Sprintf("%s %s favourites", canonical(ticker), verb)})
}

// RemoveBatch handles POST /monitor/watchlist/batch/remove.
func (h *WatchlistHandler) RemoveBatch(c *gin.Context) {
	var req BatchRemoveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.Tickers == nil {
		respondError(c, utils.NewValidationError("tickers is required"))
		return
	}

	result, err := h.service.RemoveBatch(c.Request.Context(), req.Tickers)
	if err != nil {
		respondError(c, err)
		return
	}
	markInvalidated(c, models.MutationRemove)
	c.JSON(http.StatusOK, BatchRemoveResponse{
		Message:           fmt.Sprintf("Removed %d ticker(s), %d not found", result.Removed, result.NotFound),
		BatchRemoveResult: result,
	})
}

// GetArchive handles GET /monitor/archive.
func (h *WatchlistHandler) GetArchive(c *gin.Context) {
	items, err := h.service.ListArchive(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if items == nil {
		items = []models.ArchivedWatchlistItem{}
	}
	c.JSON(http.StatusOK, ArchiveResponse{ArchivedItems: items, Metadata: ListMetadata{Count: len(items)}})
}

// DeleteArchived handles DELETE /monitor/archive/:ticker.
func (h *WatchlistHandler) DeleteArchived(c *gin.Context) {
	ticker := c.Param("ticker")
	if err := h.service.DeleteArchived(c.Request.Context(), ticker); err != nil {
		respondError(c, err)
		return
	}
	markInvalidated(c, models.MutationDeleteArchived)
	c.JSON(http.StatusOK, MessageResponse{Message: fmt.Sprintf("%s deleted from archive", canonical(ticker))})
}

// canonical renders a ticker the service already accepted.
func canonical(raw string) string {
	ticker, err := models.NormalizeTicker(raw)
	if err != nil {
		return raw
	}
	return ticker
}
