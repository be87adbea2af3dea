package mcp

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	DocumentsURI = "pdfrag://documents"

	documentPrefix   = DocumentsURI + "/"
	documentTemplate = documentPrefix + "{id}"
)

// DocumentListEntry is one element of the documents resource.
type DocumentListEntry struct {
	ID         string `json:"id"`
	Source     string `json:"source"`
	URI        string `json:"uri"`
	ChunkCount int    `json:"chunk_count"`
	IngestedAt string `json:"ingested_at"`
}

// DocumentURI is the resource URI holding the text of document id.
func DocumentURI(id string) string {
	return documentPrefix + url.PathEscape(id)
}

func parseDocumentURI(uri string) (string, bool) {
	rest, ok := strings.CutPrefix(uri, documentPrefix)
	if !ok {
		return "", false
	}
	id, err := url.PathUnescape(rest)
	return id, err == nil && id != ""
}

func single(uri, mime, text string) *mcp.ReadResourceResult {
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{URI: uri, MIMEType: mime, Text: text}},
	}
}

// registerResources adds the document list and a template for per-document
// text, so documents indexed after startup are readable too.
func (s *Server) registerResources() {
	s.mcp.AddResource(&mcp.Resource{
		Name:        "documents",
		URI:         DocumentsURI,
		Description: "Indexed documents with their resource URIs",
		MIMEType:    "application/json",
	}, s.handleListDocumentsResource)

	s.mcp.AddResourceTemplate(&mcp.ResourceTemplate{
		Name:        "document",
		URITemplate: documentTemplate,
		Description: "Full extracted text of an indexed document",
		MIMEType:    "text/plain",
	}, s.handleReadDocumentResource)

	s.logger.Debug("mcp_resources_registered", slog.String("template", documentTemplate))
}

func (s *Server) handleListDocumentsResource(ctx context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	docs, err := s.store.ListDocuments(ctx)
	if err != nil {
		return nil, MapError(err)
	}

	list := make([]DocumentListEntry, len(docs))
	for i, d := range docs {
		list[i] = DocumentListEntry{
			ID:         d.ID,
			Source:     d.Source,
			URI:        DocumentURI(d.ID),
			ChunkCount: d.ChunkCount,
			IngestedAt: d.IngestedAt.UTC().Format(time.RFC3339),
		}
	}
	body, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return nil, MapError(err)
	}
	return single(DocumentsURI, "application/json", string(body)), nil
}

func (s *Server) handleReadDocumentResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	var uri string
	if req != nil && req.Params != nil {
		uri = req.Params.URI
	}
	return s.readDocument(ctx, uri)
}

// readDocument returns the document text behind uri. Unknown ids and
// malformed URIs are both reported as a missing resource.
func (s *Server) readDocument(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	id, ok := parseDocumentURI(uri)
	if !ok {
		return nil, mcp.ResourceNotFoundError(uri)
	}
	doc, err := s.store.GetDocument(ctx, id)
	if err != nil {
		if me := MapError(err); me.Code != ErrCodeNotFound {
			return nil, me
		}
		return nil, mcp.ResourceNotFoundError(uri)
	}
	return single(uri, "text/plain", doc.Text), nil
}
