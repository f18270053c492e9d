package mcpserver

// AnnotationContract describes how lectern addresses books and stores
// annotations. LLM consumers should read it before calling add_comment.
const AnnotationContract = `# Lectern Annotation Contract

## Addressing

- Books are identified by the slug IDs returned by ` + "`" + `list_books` + "`" + ` (e.g.
  ` + "`" + `moby-dick` + "`" + `). IDs are derived from the source filename, so re-importing
  the same file updates the same book.
- Chapters are addressed by zero-based spine index (` + "`" + `0` + "`" + `, ` + "`" + `1` + "`" + `, ...) or by
  their file name inside the EPUB (e.g. ` + "`" + `ch01.xhtml` + "`" + `). Both forms work for
  ` + "`" + `read_chapter` + "`" + ` and ` + "`" + `add_comment` + "`" + `.

## Highlight kinds

- ` + "`" + `fact_check` + "`" + ` and ` + "`" + `discussion` + "`" + ` highlights carry AI-generated responses
  created from the reader UI. Do not create them through MCP.
- ` + "`" + `comment` + "`" + ` highlights are authored notes. ` + "`" + `add_comment` + "`" + ` is the only way
  MCP clients create annotations, and it always stores this kind.

## Rules for add_comment

1. **selected_text must be verbatim.** Copy the passage exactly as it
   appears in ` + "`" + `read_chapter` + "`" + ` output, or the reader cannot anchor the
   highlight back onto the chapter.
2. **Keep selections short.** A sentence or two. Never a whole paragraph
   unless the comment is genuinely about the whole paragraph.
3. **comment is Markdown.** It is rendered on the highlights review page,
   so lists, emphasis and links are fine. No raw HTML.
4. **One idea per comment.** Create several comments rather than one
   covering unrelated passages.

## Imports

- ` + "`" + `import_book` + "`" + ` accepts http(s) URLs and base64 data URIs
  (` + "`" + `data:application/epub+zip;base64,...` + "`" + `), capped at 50 MB.
- The book ID comes from the filename stem. Pass ` + "`" + `filename` + "`" + ` to control
  it when the URL has no usable name.
`
