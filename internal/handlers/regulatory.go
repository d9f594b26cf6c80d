package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/docvault/docvault-backend/internal/platform/dbctx"
	"github.com/docvault/docvault-backend/internal/services"
)

type RegulatoryHandler struct {
	regulatory services.RegulatoryDocumentService
}

func NewRegulatoryHandler(regulatory services.RegulatoryDocumentService) *RegulatoryHandler {
	return &RegulatoryHandler{regulatory: regulatory}
}

// POST /api/admin/regulatory-documents
func (h *RegulatoryHandler) Ingest(c *gin.Context) {
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

	doc, err := h.regulatory.Ingest(dbctx.Context{Ctx: c.Request.Context()}, services.IngestRegulatoryInput{
		Title:        title,
		Jurisdiction: c.PostForm("jurisdiction"),
		Citation:     c.PostForm("citation"),
		Tags:         c.PostForm("tags"),
		ContentType:  contentType,
		Content:      file,
	})
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"regulatory_document": doc})
}

// GET /api/regulatory-documents
func (h *RegulatoryHandler) List(c *gin.Context) {
	docs, err := h.regulatory.List(dbctx.Context{Ctx: c.Request.Context()}, c.Query("jurisdiction"))
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"regulatory_documents": docs})
}

// GET /api/regulatory-documents/:id
func (h *RegulatoryHandler) Get(c *gin.Context) {
	docID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_document_id", err)
		return
	}
	doc, err := h.regulatory.Get(dbctx.Context{Ctx: c.Request.Context()}, docID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"regulatory_document": doc})
}
