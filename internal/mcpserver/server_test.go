package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strconv"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/haldvard/lectern/internal/library"
	"github.com/haldvard/lectern/internal/models"
	"github.com/haldvard/lectern/internal/testutil"
)

func testServer(t *testing.T) (*Server, *library.Service) {
	t.Helper()

	db := testutil.TestDB(t)
	_, provider := testutil.TestLibrary(t)
	svc := library.NewService(db, provider, "")
	return New(svc), svc
}

func importSample(t *testing.T, svc *library.Service) *models.Book {
	t.Helper()

	data := testutil.BuildEPUB(t, testutil.EPUBSpec{
		Title:  "Moby Dick",
		Author: "Herman Melville",
		Chapters: []testutil.EPUBChapter{
			{Href: "ch01.xhtml", Title: "Loomings", Body: "<p>Call me Ishmael. Some years ago, never mind how long precisely.</p>"},
			{Href: "ch02.xhtml", Title: "The Carpet-Bag", Body: "<p>I stuffed a shirt or two into my old carpet-bag.</p>"},
		},
	})
	book, _, err := svc.ImportEPUB(context.Background(), "moby-dick.epub", data)
	if err != nil {
		t.Fatal(err)
	}
	return book
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no direct "call tool" test helper, so we dispatch to the
	// handler functions ourselves.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "list_books":
		result, err = srv.listBooks(ctx, req)
	case "read_chapter":
		result, err = srv.readChapter(ctx, req)
	case "list_highlights":
		result, err = srv.listHighlights(ctx, req)
	case "add_comment":
		result, err = srv.addComment(ctx, req)
	case "import_book":
		result, err = srv.importBook(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestListBooksEmpty(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "list_books", map[string]interface{}{})
	if text := resultText(r); text != "the library is empty" {
		t.Errorf("list result = %q", text)
	}
}

func TestListBooks(t *testing.T) {
	srv, svc := testServer(t)
	importSample(t, svc)

	r := callTool(t, srv, "list_books", map[string]interface{}{})
	var rows []bookRow
	if err := json.Unmarshal([]byte(resultText(r)), &rows); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d books, want 1", len(rows))
	}
	if rows[0].ID != "moby-dick" || rows[0].Title != "Moby Dick" || rows[0].Chapters != 2 {
		t.Errorf("row = %+v", rows[0])
	}
}

func TestReadChapter(t *testing.T) {
	srv, svc := testServer(t)
	importSample(t, svc)

	r := callTool(t, srv, "read_chapter", map[string]interface{}{
		"book_id": "moby-dick",
		"chapter": "0",
	})
	text := resultText(r)
	if !strings.Contains(text, "Loomings (Moby Dick, chapter 1 of 2)") {
		t.Errorf("missing header in %q", text)
	}
	if !strings.Contains(text, "Call me Ishmael") {
		t.Errorf("missing body in %q", text)
	}
	if strings.Contains(text, "[page") {
		t.Errorf("short chapter should not be paginated: %q", text)
	}

	// Chapters resolve by file name too.
	r = callTool(t, srv, "read_chapter", map[string]interface{}{
		"book_id": "moby-dick",
		"chapter": "ch02.xhtml",
	})
	if text := resultText(r); !strings.Contains(text, "carpet-bag") {
		t.Errorf("href lookup result = %q", text)
	}
}

func TestReadChapterErrors(t *testing.T) {
	srv, svc := testServer(t)
	importSample(t, svc)

	r := callTool(t, srv, "read_chapter", map[string]interface{}{
		"book_id": "ghost",
		"chapter": "0",
	})
	if !r.IsError {
		t.Error("expected error for missing book")
	}

	r = callTool(t, srv, "read_chapter", map[string]interface{}{
		"book_id": "moby-dick",
		"chapter": "99",
	})
	if !r.IsError {
		t.Error("expected error for missing chapter")
	}

	r = callTool(t, srv, "read_chapter", map[string]interface{}{
		"book_id": "moby-dick",
		"chapter": "0",
		"page":    "nope",
	})
	if !r.IsError {
		t.Error("expected error for non-numeric page")
	}
}

func TestReadChapterPagination(t *testing.T) {
	srv, svc := testServer(t)

	long := strings.Repeat("All work and no play makes Jack a dull boy. ", 500)
	data := testutil.BuildEPUB(t, testutil.EPUBSpec{
		Title: "The Doorstopper",
		Chapters: []testutil.EPUBChapter{
			{Href: "ch01.xhtml", Title: "Intro", Body: "<p>short</p>"},
			{Href: "ch02.xhtml", Title: "The Long One", Body: "<p>" + long + "</p>"},
		},
	})
	book, _, err := svc.ImportEPUB(context.Background(), "doorstopper.epub", data)
	if err != nil {
		t.Fatal(err)
	}

	view, err := svc.Chapter(context.Background(), book.ID, "1")
	if err != nil {
		t.Fatal(err)
	}
	wantPages := (len([]rune(view.Chapter.BodyText)) + readPageSize - 1) / readPageSize
	if wantPages < 2 {
		t.Fatalf("test chapter too short to paginate: %d page(s)", wantPages)
	}

	r := callTool(t, srv, "read_chapter", map[string]interface{}{
		"book_id": book.ID,
		"chapter": "1",
	})
	text := resultText(r)
	if !strings.Contains(text, "[page 1 of "+strconv.Itoa(wantPages)+"; call read_chapter with page=2 to continue]") {
		t.Errorf("missing continuation marker in %q", text[len(text)-120:])
	}

	r = callTool(t, srv, "read_chapter", map[string]interface{}{
		"book_id": book.ID,
		"chapter": "1",
		"page":    strconv.Itoa(wantPages),
	})
	text = resultText(r)
	if !strings.HasSuffix(text, "[page "+strconv.Itoa(wantPages)+" of "+strconv.Itoa(wantPages)+"]") {
		t.Errorf("last page marker missing in %q", text[len(text)-120:])
	}
	if strings.Contains(text, "to continue") {
		t.Error("last page should not advertise a next page")
	}

	r = callTool(t, srv, "read_chapter", map[string]interface{}{
		"book_id": book.ID,
		"chapter": "1",
		"page":    strconv.Itoa(wantPages + 1),
	})
	if !r.IsError {
		t.Error("expected error for page past the end")
	}
}

func TestListHighlights(t *testing.T) {
	srv, svc := testServer(t)
	book := importSample(t, svc)
	ctx := context.Background()

	r := callTool(t, srv, "list_highlights", map[string]interface{}{"book_id": book.ID})
	if text := resultText(r); text != "no highlights" {
		t.Errorf("empty list = %q", text)
	}

	fact := &models.Highlight{Kind: models.KindFactCheck, SelectedText: "Call me Ishmael", Response: "It checks out."}
	if err := svc.AddHighlight(ctx, book.ID, 0, fact); err != nil {
		t.Fatal(err)
	}
	note := &models.Highlight{Kind: models.KindComment, SelectedText: "carpet-bag", Response: "Pack light."}
	if err := svc.AddHighlight(ctx, book.ID, 1, note); err != nil {
		t.Fatal(err)
	}

	r = callTool(t, srv, "list_highlights", map[string]interface{}{"book_id": book.ID})
	var all []models.BookHighlight
	if err := json.Unmarshal([]byte(resultText(r)), &all); err != nil {
		t.Fatalf("unmarshal highlights: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("got %d highlights, want 2", len(all))
	}
	if all[0].ChapterTitle != "Loomings" || all[1].ChapterIndex != 1 {
		t.Errorf("spine order broken: %+v", all)
	}

	r = callTool(t, srv, "list_highlights", map[string]interface{}{
		"book_id": book.ID,
		"kind":    "comment",
	})
	var comments []models.BookHighlight
	if err := json.Unmarshal([]byte(resultText(r)), &comments); err != nil {
		t.Fatalf("unmarshal filtered: %v", err)
	}
	if len(comments) != 1 || comments[0].Kind != models.KindComment {
		t.Errorf("kind filter = %+v", comments)
	}

	r = callTool(t, srv, "list_highlights", map[string]interface{}{
		"book_id": book.ID,
		"kind":    "shouting",
	})
	if !r.IsError {
		t.Error("expected error for unknown kind")
	}
}

func TestAddComment(t *testing.T) {
	srv, svc := testServer(t)
	book := importSample(t, svc)

	r := callTool(t, srv, "add_comment", map[string]interface{}{
		"book_id":       book.ID,
		"chapter":       "0",
		"selected_text": "Call me Ishmael",
		"comment":       "Famous opening line.",
	})
	text := resultText(r)
	if r.IsError || !strings.Contains(text, "saved comment") || !strings.Contains(text, "Loomings") {
		t.Errorf("add result = %q", text)
	}

	hls, err := svc.ChapterHighlights(context.Background(), book.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(hls) != 1 {
		t.Fatalf("got %d highlights, want 1", len(hls))
	}
	if hls[0].Kind != models.KindComment || hls[0].Response != "Famous opening line." {
		t.Errorf("stored highlight = %+v", hls[0])
	}

	r = callTool(t, srv, "add_comment", map[string]interface{}{
		"book_id":       book.ID,
		"chapter":       "9",
		"selected_text": "x",
		"comment":       "y",
	})
	if !r.IsError {
		t.Error("expected error for missing chapter")
	}
}

func epubDataURI(t *testing.T, title string) string {
	t.Helper()
	data := testutil.BuildEPUB(t, testutil.EPUBSpec{
		Title: title,
		Chapters: []testutil.EPUBChapter{
			{Href: "ch01.xhtml", Title: "One", Body: "<p>hello</p>"},
		},
	})
	return "data:application/epub+zip;base64," + base64.StdEncoding.EncodeToString(data)
}

func TestImportBookDataURI(t *testing.T) {
	srv, svc := testServer(t)

	r := callTool(t, srv, "import_book", map[string]interface{}{
		"url":      epubDataURI(t, "Whale Tales"),
		"filename": "whale-tales.epub",
	})
	var res importResult
	if err := json.Unmarshal([]byte(resultText(r)), &res); err != nil {
		t.Fatalf("unmarshal result: %v (%q)", err, resultText(r))
	}
	if res.BookID != "whale-tales" || res.Title != "Whale Tales" || res.Chapters != 1 || !res.Imported {
		t.Errorf("result = %+v", res)
	}

	if _, err := svc.Book(context.Background(), "whale-tales"); err != nil {
		t.Errorf("book not in library: %v", err)
	}

	// Importing identical bytes again is a no-op.
	r = callTool(t, srv, "import_book", map[string]interface{}{
		"url":      epubDataURI(t, "Whale Tales"),
		"filename": "whale-tales.epub",
	})
	if err := json.Unmarshal([]byte(resultText(r)), &res); err != nil {
		t.Fatal(err)
	}
	if res.Imported {
		t.Error("re-import of identical bytes should report imported=false")
	}
}

func TestImportBookGeneratedFilename(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "import_book", map[string]interface{}{
		"url": epubDataURI(t, "Anonymous"),
	})
	var res importResult
	if err := json.Unmarshal([]byte(resultText(r)), &res); err != nil {
		t.Fatalf("unmarshal result: %v (%q)", err, resultText(r))
	}
	// UUID-shaped slug: 36 chars, dashes preserved.
	if len(res.BookID) != 36 || strings.Count(res.BookID, "-") != 4 {
		t.Errorf("book_id = %q, want a uuid", res.BookID)
	}
}

func TestImportBookRejectsBadInput(t *testing.T) {
	srv, _ := testServer(t)

	cases := map[string]string{
		"ftp scheme":   "ftp://example.com/book.epub",
		"loopback":     "http://127.0.0.1:9/book.epub",
		"metadata":     "http://169.254.169.254/latest/meta-data",
		"bad mime":     "data:text/plain;base64,aGVsbG8=",
		"bad base64":   "data:application/epub+zip;base64,!!!",
		"no separator": "data:application/epub+zip",
		"not an epub":  "data:application/epub+zip;base64," + base64.StdEncoding.EncodeToString([]byte("not a zip")),
	}
	for name, rawURL := range cases {
		r := callTool(t, srv, "import_book", map[string]interface{}{"url": rawURL})
		if !r.IsError {
			t.Errorf("%s: expected error for %q", name, rawURL)
		}
	}
}

func TestCheckHost(t *testing.T) {
	if err := checkHost("127.0.0.1"); err == nil {
		t.Error("loopback should be blocked")
	}
	if err := checkHost("169.254.169.254"); err == nil {
		t.Error("metadata IP should be blocked")
	}
	if err := checkHost("metadata.google.internal"); err == nil {
		t.Error("metadata host should be blocked")
	}
	if err := checkHost("203.0.113.9"); err != nil {
		t.Errorf("public address blocked: %v", err)
	}
}

func TestFilenameFromURL(t *testing.T) {
	if got := filenameFromURL("https://example.com/books/moby.epub"); got != "moby.epub" {
		t.Errorf("got %q", got)
	}
	if got := filenameFromURL("https://example.com/download"); !strings.HasSuffix(got, ".epub") {
		t.Errorf("fallback %q should end in .epub", got)
	}
	if got := filenameFromURL("data:application/epub+zip;base64,xx"); !strings.HasSuffix(got, ".epub") {
		t.Errorf("data URI fallback %q should end in .epub", got)
	}
}
