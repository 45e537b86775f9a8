package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/camfeed/camfeed-server/internal/domain/stream"
	"github.com/camfeed/camfeed-server/internal/http/dto"
	"github.com/camfeed/camfeed-server/internal/repo"
	"github.com/camfeed/camfeed-server/internal/service"
)

// StreamStore is the registry capability the CRUD handlers need.
// *repo.StreamRepository satisfies it.
type StreamStore interface {
	GenerateID(ctx context.Context) (int64, error)
	Upsert(ctx context.Context, cfg *stream.Config) error
	Delete(ctx context.Context, id int64) error
	GetByID(ctx context.Context, id int64) (*stream.Config, error)
	GetAll(ctx context.Context) ([]*stream.Config, error)
}

// StatusGetter serves the cached status snapshot. *service.StatusService
// satisfies it.
type StatusGetter interface {
	Get(ctx context.Context) (service.StatusResult, error)
	Invalidate()
}

// StreamsHandler provides RESTful HTTP handlers for stream resources.
//
// Supported operations:
//   - GET    /api/streams         → List all streams
//   - POST   /api/streams         → Register a new stream
//   - GET    /api/streams/status  → Per-stream live status snapshot
//   - GET    /api/streams/{id}    → Retrieve a stream by ID
//   - DELETE /api/streams/{id}    → Remove a stream
//
// Notes:
//   - Standard REST semantics (RFC 9110).
type StreamsHandler struct {
	log    *zap.Logger
	store  StreamStore
	status StatusGetter
}

// NewStreamsHandler constructs a StreamsHandler instance.
func NewStreamsHandler(log *zap.Logger, store StreamStore, status StatusGetter) *StreamsHandler {
	return &StreamsHandler{
		log:    log.Named("streams"),
		store:  store,
		status: status,
	}
}

// GetStreamList handles GET /api/streams.
//
// Behavior:
//   - Returns all registered streams.
//   - Adds `X-Total-Count` header.
//
// Status Codes:
//   - 200 OK → JSON array of streams
//   - 500 Internal Server Error
func (h *StreamsHandler) GetStreamList(c *gin.Context) {
	cfgs, err := h.store.GetAll(c.Request.Context())
	if err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}
	if cfgs == nil {
		cfgs = []*stream.Config{}
	}

	c.Header("X-Total-Count", strconv.Itoa(len(cfgs)))
	c.JSON(http.StatusOK, cfgs)
}

// CreateStream handles POST /api/streams.
//
// Behavior:
//   - Validates request body; defaults applied to omitted encoding fields.
//   - Assigns the next registry ID and persists the stream.
//   - Responds with resource location in `Location` header.
//
// Status Codes:
//   - 201 Created → JSON of created stream
//   - 400 Bad Request → Invalid JSON or schema
//   - 422 Unprocessable Entity → Validation failed
//   - 500 Internal Server Error
func (h *StreamsHandler) CreateStream(c *gin.Context) {
	var req dto.StreamCreate
	if err := bind(c.Request, &req); err != nil {
		c.Error(err)
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	cfg, err := req.ToConfig()
	if err != nil {
		c.Error(err)
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	if err := cfg.Validate(); err != nil {
		c.Error(err)
		c.JSON(http.StatusUnprocessableEntity, gin.H{"message": err.Error()})
		return
	}

	id, err := h.store.GenerateID(c.Request.Context())
	if err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}
	cfg.ID = id

	if err := h.store.Upsert(c.Request.Context(), cfg); err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}
	h.status.Invalidate()

	c.Header("Location", fmt.Sprintf("/api/streams/%d", cfg.ID))
	c.JSON(http.StatusCreated, cfg)
}

// GetStream handles GET /api/streams/{id}.
//
// Status Codes:
//   - 200 OK → JSON of stream
//   - 400 Bad Request → Invalid ID format
//   - 404 Not Found → Stream not found
//   - 500 Internal Server Error
func (h *StreamsHandler) GetStream(c *gin.Context) {
	id, _ := strconv.ParseInt(c.Param("id"), 10, 64) // already validated by middleware

	cfg, err := h.store.GetByID(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		if errors.Is(err, repo.ErrStreamNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": repo.ErrStreamNotFound.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, cfg)
}

// DeleteStream handles DELETE /api/streams/{id}.
//
// Behavior:
//   - Removes a stream by ID. Viewers already connected keep their feed;
//     only new lookups miss.
//
// Status Codes:
//   - 200 OK → JSON { "id": deletedID }
//   - 400 Bad Request → Invalid ID
//   - 404 Not Found → Stream not found
//   - 500 Internal Server Error
func (h *StreamsHandler) DeleteStream(c *gin.Context) {
	id, _ := strconv.ParseInt(c.Param("id"), 10, 64) // already validated by middleware

	if err := h.store.Delete(c.Request.Context(), id); err != nil {
		c.Error(err)
		if errors.Is(err, repo.ErrStreamNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": repo.ErrStreamNotFound.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}
	h.status.Invalidate()

	c.JSON(http.StatusOK, gin.H{"id": id})
}

// Status handles GET /api/streams/status.
//
// Behavior:
//   - Returns the cached per-stream status snapshot (registry contents
//     joined with live viewer counts). Safe to poll from the UI.
//   - Cache headers expose hit/miss and snapshot age for debugging.
//
// Status Codes:
//   - 200 OK → JSON array of stream statuses
//   - 500 Internal Server Error
func (h *StreamsHandler) Status(c *gin.Context) {
	res, err := h.status.Get(c.Request.Context())
	if err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}

	c.Header("X-Cache", map[bool]string{true: "HIT", false: "MISS"}[res.CacheHit])
	c.Header("X-Status-Generated-At", strconv.FormatInt(res.GeneratedAt.UnixMilli(), 10))
	c.Header("X-Total-Count", strconv.Itoa(len(res.Data)))

	c.JSON(http.StatusOK, res.Data)
}

//
// ----- Helpers -----

func bind(req *http.Request, obj any) error {
	if req == nil || req.Body == nil {
		return errors.New("invalid request")
	}
	return decodeJSON(req.Body, obj)
}

func decodeJSON(r io.Reader, obj any) error {
	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(obj); err != nil {
		return err
	}
	return nil
}
