package handler

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"dropstack/internal/http/middleware"
	"dropstack/internal/service"
)

const documentsPath = "/api/documents"

// owner returns the identity resolved by middleware.Auth.
func owner(c *fiber.Ctx) (string, error) {
	id, ok := middleware.OwnerFromCtx(c)
	if !ok {
		return "", fiber.ErrUnauthorized
	}
	return id, nil
}

// documentID validates the :id path parameter.
func documentID(c *fiber.Ctx) (string, bool) {
	id := c.Params("id")
	_, err := uuid.Parse(id)
	return id, err == nil
}

func queryInt(c *fiber.Ctx, key string) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	return n, err == nil
}

// ListDocuments godoc
// @Summary  List the caller's documents
// @Tags     documents
// @Produce  json
// @Param    page      query int false "1-based page"
// @Param    page_size query int false "page size"
// @Success  200 {object} service.DocumentListResult
// @Router   /api/documents [get]
func ListDocuments(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ownerID, err := owner(c)
		if err != nil {
			return err
		}
		page, ok := queryInt(c, "page")
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_PAGE", "invalid page")
		}
		pageSize, ok := queryInt(c, "page_size")
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_PAGE_SIZE", "invalid page_size")
		}

		res, err := svc.List(c.UserContext(), ownerID, page, pageSize)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(res)
	}
}

// CreateDocument godoc
// @Summary  Upload a document
// @Description multipart/form-data with a "file" part and an optional "metadata" JSON part {Title, MimeType, Tags}.
// @Tags     documents
// @Accept   mpfd
// @Produce  json
// @Success  201 {object} model.Document
// @Router   /api/documents [post]
func CreateDocument(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ownerID, err := owner(c)
		if err != nil {
			return err
		}

		fh, err := c.FormFile("file")
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_REQUIRED", "file is required")
		}

		var meta service.CreateMetadata
		if raw := c.FormValue("metadata"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &meta); err != nil {
				return writeError(c, fiber.StatusBadRequest, "INVALID_METADATA", "metadata must be a JSON object")
			}
		}
		if meta.Title == "" {
			meta.Title = fh.Filename
		}
		if meta.MimeType == "" {
			meta.MimeType = fh.Header.Get(fiber.HeaderContentType)
		}
		if meta.MimeType == "" {
			meta.MimeType = service.DefaultContentType
		}

		f, err := fh.Open()
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_OPEN_ERROR", "cannot open uploaded file")
		}
		defer f.Close()

		doc, err := svc.Create(c.UserContext(), ownerID, meta, service.CreateContent{
			Reader:           f,
			Size:             fh.Size,
			OriginalFilename: fh.Filename,
		})
		if err != nil {
			return writeServiceError(c, err)
		}
		c.Location(documentsPath + "/" + doc.ID)
		return c.Status(fiber.StatusCreated).JSON(doc)
	}
}

// GetDocument godoc
// @Summary  Read one document's metadata
// @Tags     documents
// @Produce  json
// @Param    id path string true "document id"
// @Success  200 {object} model.Document
// @Router   /api/documents/{id} [get]
func GetDocument(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ownerID, err := owner(c)
		if err != nil {
			return err
		}
		id, ok := documentID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		doc, err := svc.Read(c.UserContext(), ownerID, id)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(doc)
	}
}

// DownloadDocument godoc
// @Summary  Stream a document's content
// @Tags     documents
// @Produce  octet-stream
// @Param    id path string true "document id"
// @Success  200 {file} binary
// @Router   /api/documents/{id}/content [get]
func DownloadDocument(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ownerID, err := owner(c)
		if err != nil {
			return err
		}
		id, ok := documentID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		dl, err := svc.Download(c.UserContext(), ownerID, id)
		if err != nil {
			return writeServiceError(c, err)
		}

		c.Set(fiber.HeaderContentType, dl.ContentType)
		c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename*=UTF-8''%s", url.PathEscape(dl.Filename)))
		c.Set(fiber.HeaderCacheControl, "no-cache")
		c.Set(fiber.HeaderPragma, "no-cache")
		c.Set(fiber.HeaderExpires, "0")

		// fasthttp closes the stream once the body is written or the client goes away.
		if dl.ContentLength != nil {
			return c.SendStream(dl.Stream, int(*dl.ContentLength))
		}
		return c.SendStream(dl.Stream)
	}
}

// CheckInDocument godoc
// @Summary  Set a document's category at an expected version
// @Tags     documents
// @Accept   json
// @Produce  json
// @Param    id   path string                 true "document id"
// @Param    body body service.CheckInRequest true "category and expected version"
// @Success  200 {object} model.Document
// @Failure  409 {object} errorPayload
// @Router   /api/documents/{id}/checkin [post]
func CheckInDocument(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ownerID, err := owner(c)
		if err != nil {
			return err
		}
		id, ok := documentID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		var req service.CheckInRequest
		if err := json.Unmarshal(c.Body(), &req); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "request body must be a JSON object")
		}
		doc, err := svc.CheckIn(c.UserContext(), ownerID, id, req)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(doc)
	}
}

// UpdateDocument godoc
// @Summary  Replace a document's title and tags at an expected version
// @Tags     documents
// @Accept   json
// @Produce  json
// @Param    id   path string                true "document id"
// @Param    body body service.UpdateRequest true "new fields and expected version"
// @Success  200 {object} model.Document
// @Failure  409 {object} errorPayload
// @Router   /api/documents/{id} [put]
func UpdateDocument(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ownerID, err := owner(c)
		if err != nil {
			return err
		}
		id, ok := documentID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		var req service.UpdateRequest
		if err := json.Unmarshal(c.Body(), &req); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "request body must be a JSON object")
		}
		doc, err := svc.Update(c.UserContext(), ownerID, id, req)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(doc)
	}
}

// DeleteDocument godoc
// @Summary  Delete a document and its content
// @Tags     documents
// @Param    id path string true "document id"
// @Success  204
// @Router   /api/documents/{id} [delete]
func DeleteDocument(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ownerID, err := owner(c)
		if err != nil {
			return err
		}
		id, ok := documentID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		if err := svc.Delete(c.UserContext(), ownerID, id); err != nil {
			return writeServiceError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// ListDocumentAudits godoc
// @Summary  List a document's audit entries, newest first
// @Tags     documents
// @Produce  json
// @Param    id path string true "document id"
// @Success  200 {array} model.DocumentAudit
// @Router   /api/documents/{id}/audits [get]
func ListDocumentAudits(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ownerID, err := owner(c)
		if err != nil {
			return err
		}
		id, ok := documentID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		audits, err := svc.ListAudits(c.UserContext(), ownerID, id)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(fiber.Map{"data": audits})
	}
}
