package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apperrors "github.com/docvault/docvault-backend/internal/pkg/errors"
	"github.com/docvault/docvault-backend/internal/platform/dbctx"
	"github.com/docvault/docvault-backend/internal/platform/requestdata"
	"github.com/docvault/docvault-backend/internal/services"
)

type DocumentsHandler struct {
	documents services.DocumentService
}

func NewDocumentsHandler(documents services.DocumentService) *DocumentsHandler {
	return &DocumentsHandler{documents: documents}
}

func principal(c *gin.Context) (*requestdata.RequestData, bool) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		RespondError(c, http.StatusForbidden, "forbidden", fmt.Errorf("%w: no principal", apperrors.ErrUnauthorized))
		return nil, false
	}
	return rd, true
}

// POST /api/documents
func (h *DocumentsHandler) Create(c *gin.Context) {
	rd, ok := principal(c)
	if !ok {
		return
	}
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		RespondError(c, http.StatusBadRequest, "missing_file", err)
		return
	}
	defer file.Close()

	title := c.PostForm("title")
	if title == "" && header != nil {
		title = header.Filename
	}
	contentType := ""
	if header != nil {
		contentType = header.Header.Get("Content-Type")
	}

	doc, err := h.documents.Create(dbctx.Context{Ctx: c.Request.Context()}, rd.UserID, services.CreateDocumentInput{
		Title:       title,
		ContentType: contentType,
		Tags:        c.PostForm("tags"),
		Content:     file,
	})
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"document": doc})
}

// GET /api/documents/:id
func (h *DocumentsHandler) Get(c *gin.Context) {
	rd, ok := principal(c)
	if !ok {
		return
	}
	docID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_document_id", err)
		return
	}
	doc, err := h.documents.Get(dbctx.Context{Ctx: c.Request.Context()}, rd.UserID, docID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"document": doc})
}

// GET /api/documents
func (h *DocumentsHandler) List(c *gin.Context) {
	rd, ok := principal(c)
	if !ok {
		return
	}
	docs, err := h.documents.List(dbctx.Context{Ctx: c.Request.Context()}, rd.UserID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"documents": docs})
}

// POST /api/documents/:id/cancel
func (h *DocumentsHandler) Cancel(c *gin.Context) {
	rd, ok := principal(c)
	if !ok {
		return
	}
	docID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_document_id", err)
		return
	}
	doc, err := h.documents.Cancel(dbctx.Context{Ctx: c.Request.Context()}, rd.UserID, docID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"document": doc})
}

// DELETE /api/documents/:id
func (h *DocumentsHandler) Delete(c *gin.Context) {
	rd, ok := principal(c)
	if !ok {
		return
	}
	docID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_document_id", err)
		return
	}
	if err := h.documents.Delete(dbctx.Context{Ctx: c.Request.Context()}, rd.UserID, docID); err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"deleted": true})
}
