package handler

import (
	"fmt"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/useraccounts/user-accounts/internal/api/metrics"
	"github.com/useraccounts/user-accounts/internal/core/domain"
	"github.com/useraccounts/user-accounts/internal/core/ports"
)

// DefaultMaxUploadBytes caps a single media upload.
const DefaultMaxUploadBytes = 5 << 20

var allowedMediaType = regexp.MustCompile(`^.+/(jpg|webp|jpeg|png|gif|mp4|avi)$`)

// UserHandler serves the administrative /users routes.
type UserHandler struct {
	service  ports.UserService
	media    ports.MediaStore
	maxBytes int64
	now      func() time.Time
}

func NewUserHandler(service ports.UserService, media ports.MediaStore, maxUploadBytes int64) *UserHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	return &UserHandler{service: service, media: media, maxBytes: maxUploadBytes, now: time.Now}
}

// Create handles POST /users.
//
// @Summary      Create a user
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      registerRequest  true  "User details"
// @Success      201   {object}  domain.User
// @Failure      400   {object}  errorResponse
// @Failure      403   {object}  errorResponse
// @Failure      409   {object}  errorResponse
// @Router       /users [post]
func (h *UserHandler) Create(c echo.Context) error {
	var req registerRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	user, err := h.service.Create(c.Request().Context(), ports.NewUserInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		return err
	}

	metrics.RegistrationsTotal.WithLabelValues(string(user.Role)).Inc()
	return c.JSON(http.StatusCreated, user)
}

// List handles GET /users.
//
// @Summary      List users
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        name   query     string  false  "Case-insensitive partial name match"
// @Param        page   query     int     false  "1-based page number"
// @Param        limit  query     int     false  "Page size (max 100)"
// @Success      200    {object}  ports.UserPage
// @Failure      400    {object}  errorResponse
// @Failure      403    {object}  errorResponse
// @Router       /users [get]
func (h *UserHandler) List(c echo.Context) error {
	var q listUsersQuery
	if err := bindAndValidate(c, &q); err != nil {
		return err
	}

	page := q.Page
	if page == 0 {
		page = q.Size
	}

	result, err := h.service.List(c.Request().Context(), ports.ListUsersInput{
		Name:  q.Name,
		Page:  page,
		Limit: q.Limit,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// Get handles GET /users/:id.
//
// @Summary      Get a user
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "User id"
// @Success      200  {object}  domain.User
// @Failure      404  {object}  errorResponse
// @Router       /users/{id} [get]
func (h *UserHandler) Get(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}

	user, err := h.service.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, user)
}

// Update handles PATCH /users/:id.
//
// @Summary      Update a user
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      int                true  "User id"
// @Param        body  body      updateUserRequest  true  "Fields to change"
// @Success      200   {object}  domain.User
// @Failure      400   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Failure      409   {object}  errorResponse
// @Router       /users/{id} [patch]
func (h *UserHandler) Update(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}

	var req updateUserRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	user, err := h.service.Update(c.Request().Context(), id, ports.UpdateUserInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
		IsActive: req.IsActive,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, user)
}

// Delete handles DELETE /users/:id.
//
// @Summary      Delete a user
// @Tags         users
// @Security     BearerAuth
// @Param        id   path  int  true  "User id"
// @Success      204
// @Failure      404  {object}  errorResponse
// @Router       /users/{id} [delete]
func (h *UserHandler) Delete(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}

	if err := h.service.Delete(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// UploadMedia handles POST /users/media. Only image and video types are
// accepted and the stored file gets a fresh unique name.
//
// @Summary      Upload a media file
// @Tags         users
// @Accept       multipart/form-data
// @Produce      json
// @Security     BearerAuth
// @Param        file  formData  file  true  "Image or video, at most 5 MiB"
// @Success      201   {object}  mediaResponse
// @Failure      400   {object}  errorResponse
// @Failure      413   {object}  errorResponse
// @Router       /users/media [post]
func (h *UserHandler) UploadMedia(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return domain.NewValidationError("file", "file is required")
	}
	if fh.Size > h.maxBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "File too large")
	}

	contentType := fh.Header.Get(echo.HeaderContentType)
	if !allowedMediaType.MatchString(contentType) {
		return domain.NewValidationError("file", "Only image and video files are allowed")
	}

	src, err := fh.Open()
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	location, err := h.media.Save(c.Request().Context(), h.storedName(fh.Filename), contentType, src, fh.Size)
	if err != nil {
		return fmt.Errorf("store upload: %w", err)
	}

	return c.JSON(http.StatusCreated, mediaResponse{
		Filename: fh.Filename,
		Size:     fh.Size,
		Mimetype: contentType,
		Location: location,
	})
}

// storedName builds file-<unix ms>-<uuid>.<ext> from the client's filename.
func (h *UserHandler) storedName(original string) string {
	name := fmt.Sprintf("file-%d-%s", h.now().UnixMilli(), uuid.NewString())
	if ext := strings.ToLower(filepath.Ext(filepath.Base(original))); ext != "" && ext != "." {
		name += ext
	}
	return name
}
