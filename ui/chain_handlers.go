package ui

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"gorecal/domain/core"
	"gorecal/domain/forensic"
)

// handleListChain returns the sealed chain in index order
func (s *Server) handleListChain(c *gin.Context) {
	doc := s.forensic.Export()
	c.JSON(http.StatusOK, gin.H{
		"length":  doc.ChainLength,
		"head":    doc.Head,
		"entries": doc.Entries,
	})
}

// handleGetEntry returns one sealed entry by index
func (s *Server) handleGetEntry(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid entry index"})
		return
	}

	entry, err := s.forensic.Entry(index)
	if err != nil {
		if core.IsNotFoundError(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Entry not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, entry)
}

// handleExportChain returns the versioned export document for offline
// verification
func (s *Server) handleExportChain(c *gin.Context) {
	c.JSON(http.StatusOK, s.forensic.Export())
}

// handleVerifyChain verifies integrity. With an export document in the body
// the supplied chain is verified offline; with no body, the live chain.
// The outcome is always a structured result, never an error status.
func (s *Server) handleVerifyChain(c *gin.Context) {
	if c.Request.ContentLength == 0 {
		c.JSON(http.StatusOK, s.forensic.VerifyChain())
		return
	}

	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read body: " + err.Error()})
		return
	}

	doc, err := forensic.ParseExportDocument(data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid export document: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, doc.Verify())
}

// handleListMutations returns recent weight mutations, optionally filtered
// by the source they adjusted
func (s *Server) handleListMutations(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		limit = parsed
	}

	if source := c.Query("source"); source != "" {
		mutations, err := s.mutations.ListMutationsBySource(c.Request.Context(), core.SourceID(source), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"count": len(mutations), "mutations": mutations})
		return
	}

	mutations, err := s.mutations.ListMutations(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(mutations), "mutations": mutations})
}

// handleLatestReport renders the current audit report as HTML
func (s *Server) handleLatestReport(c *gin.Context) {
	page, err := s.reports.HTML(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Report generation failed: " + err.Error()})
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", page)
}
