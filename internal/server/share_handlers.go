package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/safeshare/safeshare/internal/sserror"
	"github.com/safeshare/safeshare/internal/store"
)

// DefaultDownloadLimit applies when a store request omits the limit.
const DefaultDownloadLimit = 5

// share contains all share handlers.
type share struct {
	store *store.Store
}

type storeParams struct {
	Data          []byte `json:"data"`
	Name          string `json:"name"`
	Text          bool   `json:"text"`
	DownloadLimit *int   `json:"download_limit"`
}

///// Store
////
//

// Store deposits an opaque, pre-encrypted blob and returns its handle.
func (h *share) Store(c echo.Context) error {
	// Filter params
	var params storeParams
	if err := c.Bind(&params); err != nil {
		return c.JSON(http.StatusBadRequest, sserror.New("Could not get store params."))
	}

	limit := DefaultDownloadLimit
	if params.DownloadLimit != nil {
		limit = *params.DownloadLimit
	}

	id, err := h.store.Put(params.Data, params.Name, params.Text, limit)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"id": id,
	})
}

///// Info
////
//

// Info returns a record's metadata without counting a download.
func (h *share) Info(c echo.Context) error {
	item, err := h.store.Peek(c.Param("id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, echo.Map{
		"name":                item.Name,
		"text":                item.Text,
		"downloads":           item.Downloads,
		"download_limit":      item.DownloadLimit,
		"remaining_downloads": item.Remaining(),
		"created_at":          item.CreatedAt,
	})
}

///// Retrieve
////
//

// Retrieve consumes a download and returns the blob with its metadata.
func (h *share) Retrieve(c echo.Context) error {
	item, last, err := h.store.Consume(c.Param("id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, echo.Map{
		"data":           item.Payload,
		"name":           item.Name,
		"text":           item.Text,
		"downloads":      item.Downloads,
		"download_limit": item.DownloadLimit,
		"last_download":  last,
	})
}
