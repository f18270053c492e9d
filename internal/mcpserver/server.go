// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the lectern library to LLM clients via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/haldvard/lectern/internal/library"
	"github.com/haldvard/lectern/internal/models"
)

// readPageSize is the number of runes of chapter text returned per
// read_chapter call. Full chapters can exceed any sane context window,
// so long ones are sliced into pages.
const readPageSize = 8000

// Server wraps the MCP server with lectern tools.
type Server struct {
	mcp *server.MCPServer
	svc *library.Service
}

// New creates a new MCP server with all lectern tools registered.
func New(svc *library.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Lectern",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_books",
		mcp.WithDescription("List all books in the library."),
	), s.listBooks)

	s.mcp.AddTool(mcp.NewTool("read_chapter",
		mcp.WithDescription("Read one chapter of a book as plain text. "+
			"Long chapters are returned one page at a time; follow the trailing page marker to read on."),
		mcp.WithString("book_id", mcp.Required(), mcp.Description("Book ID as returned by list_books")),
		mcp.WithString("chapter", mcp.Required(), mcp.Description("Zero-based spine index or chapter file name")),
		mcp.WithString("page", mcp.Description("Page number starting at 1 (default 1)")),
	), s.readChapter)

	s.mcp.AddTool(mcp.NewTool("list_highlights",
		mcp.WithDescription("List the highlights of a book in spine order, including stored AI responses and comments."),
		mcp.WithString("book_id", mcp.Required(), mcp.Description("Book ID as returned by list_books")),
		mcp.WithString("kind", mcp.Description("Optional filter: fact_check, discussion or comment")),
	), s.listHighlights)

	s.mcp.AddTool(mcp.NewTool("add_comment",
		mcp.WithDescription("Attach a comment to a passage of a chapter. "+
			"selected_text MUST be copied verbatim from read_chapter output so the reader can anchor it; "+
			"read the lectern://annotation-format resource for the full rules."),
		mcp.WithString("book_id", mcp.Required(), mcp.Description("Book ID as returned by list_books")),
		mcp.WithString("chapter", mcp.Required(), mcp.Description("Zero-based spine index or chapter file name")),
		mcp.WithString("selected_text", mcp.Required(), mcp.Description("The passage the comment refers to, verbatim")),
		mcp.WithString("comment", mcp.Required(), mcp.Description("The comment text to store (Markdown)")),
	), s.addComment)

	s.mcp.AddTool(mcp.NewTool("import_book",
		mcp.WithDescription("Import an EPUB into the library from an http(s) URL or a base64 data URI."),
		mcp.WithString("url", mcp.Required(), mcp.Description("Location of the EPUB file")),
		mcp.WithString("filename", mcp.Description("Optional filename override; the book ID is derived from its stem")),
	), s.importBook)

	// Resource: annotation format contract.
	s.mcp.AddResource(
		mcp.NewResource("lectern://annotation-format", "Annotation Contract",
			mcp.WithResourceDescription("How books are addressed and how comments must be structured."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readAnnotationResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

type bookRow struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Author   string `json:"author,omitempty"`
	Chapters int    `json:"chapters"`
}

func (s *Server) listBooks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	books, err := s.svc.Books(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(books) == 0 {
		return mcp.NewToolResultText("the library is empty"), nil
	}

	rows := make([]bookRow, 0, len(books))
	for _, b := range books {
		rows = append(rows, bookRow{ID: b.ID, Title: b.Title, Author: b.Author, Chapters: b.Chapters})
	}
	out, _ := json.MarshalIndent(rows, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readChapter(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	bookID, err := req.RequireString("book_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ref, err := req.RequireString("chapter")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	page := 1
	if p, pErr := req.RequireString("page"); pErr == nil && p != "" {
		page, err = strconv.Atoi(p)
		if err != nil || page < 1 {
			return mcp.NewToolResultError(fmt.Sprintf("invalid page %q", p)), nil
		}
	}

	view, err := s.svc.Chapter(ctx, bookID, ref)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	runes := []rune(view.Chapter.BodyText)
	pages := (len(runes) + readPageSize - 1) / readPageSize
	if pages < 1 {
		pages = 1
	}
	if page > pages {
		return mcp.NewToolResultError(fmt.Sprintf("page %d out of range: chapter has %d page(s)", page, pages)), nil
	}
	start := (page - 1) * readPageSize
	end := min(start+readPageSize, len(runes))

	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s, chapter %d of %d)\n\n", view.Chapter.Title, view.Book.Title,
		view.Chapter.OrderIndex+1, view.Book.Chapters)
	b.WriteString(string(runes[start:end]))
	if pages > 1 {
		if page < pages {
			fmt.Fprintf(&b, "\n\n[page %d of %d; call read_chapter with page=%d to continue]", page, pages, page+1)
		} else {
			fmt.Fprintf(&b, "\n\n[page %d of %d]", page, pages)
		}
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) listHighlights(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	bookID, err := req.RequireString("book_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	kind := models.HighlightKind("")
	if k, kErr := req.RequireString("kind"); kErr == nil && k != "" {
		kind = models.HighlightKind(k)
	}

	items, err := s.svc.BookHighlights(ctx, bookID, kind)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(items) == 0 {
		return mcp.NewToolResultText("no highlights"), nil
	}
	out, _ := json.MarshalIndent(items, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) addComment(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	bookID, err := req.RequireString("book_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ref, err := req.RequireString("chapter")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	selected, err := req.RequireString("selected_text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	comment, err := req.RequireString("comment")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	view, err := s.svc.Chapter(ctx, bookID, ref)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	h := &models.Highlight{
		Kind:         models.KindComment,
		SelectedText: selected,
		Response:     comment,
	}
	if err := s.svc.AddHighlight(ctx, bookID, view.Chapter.OrderIndex, h); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("saved comment %d on %q", h.ID, view.Chapter.Title)), nil
}

func (s *Server) readAnnotationResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "lectern://annotation-format",
			MIMEType: "text/markdown",
			Text:     AnnotationContract,
		},
	}, nil
}
