package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"newscraper/internal/pkg/types"
	"newscraper/internal/pkg/utils"
)

const (
	archiveExtension  = ".html"
	maxFilenameLength = 100
)

var illegalFilenameChars = regexp.MustCompile(`[\\/*?:"<>|]`)

// ArchiveSink writes a self-contained local mirror of each fetched
// page: resource links are rebased to absolute URLs and the rewritten
// markup is saved under a name derived from the record's title. The
// stage is best-effort; its failures never drop the record.
type ArchiveSink struct {
	dir string
	// nameCounts suffixes colliding filenames so a later record cannot
	// silently overwrite an earlier one.
	nameCounts map[string]int
}

// NewArchiveSink creates the sink and its output directory.
func NewArchiveSink(dir string) (*ArchiveSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory %s: %w", dir, err)
	}
	return &ArchiveSink{
		dir:        dir,
		nameCounts: make(map[string]int),
	}, nil
}

func (s *ArchiveSink) Name() string { return "archive" }

// BestEffort tells the coordinator to log and discard this stage's
// errors instead of dropping the record.
func (s *ArchiveSink) BestEffort() bool { return true }

func (s *ArchiveSink) Open(ctx context.Context) error { return nil }

func (s *ArchiveSink) Close(ctx context.Context) error { return nil }

// Process rewrites the page's relative links against its source URL and
// saves the result. On success the record learns where its mirror
// lives; on failure it continues through the pipeline without one.
func (s *ArchiveSink) Process(ctx context.Context, record *types.Record) error {
	if len(record.PageContent) == 0 {
		return nil
	}

	rewritten, err := rebaseLinks(record.PageContent, record.URL)
	if err != nil {
		return err
	}

	path := filepath.Join(s.dir, s.deriveFilename(record))
	if err := os.WriteFile(path, rewritten, 0o644); err != nil {
		return fmt.Errorf("failed to write archive file %s: %w", path, err)
	}

	record.HTMLSavedPath = path
	return nil
}

// rebaseLinks resolves every relative img/script src and a/link href in
// the document against the page URL and serializes the tree back to
// markup. Absolute and protocol-relative values stay untouched, as do
// fragment and javascript: anchors.
func rebaseLinks(content []byte, pageURL string) ([]byte, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid page URL %s: %w", pageURL, err)
	}

	doc, err := html.Parse(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page %s: %w", pageURL, err)
	}

	var f func(*html.Node)
	f = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "img", "script":
				rebaseAttr(n, "src", base, false)
			case "a":
				rebaseAttr(n, "href", base, true)
			case "link":
				rebaseAttr(n, "href", base, false)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(doc)

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return nil, fmt.Errorf("failed to serialize page %s: %w", pageURL, err)
	}
	return buf.Bytes(), nil
}

func rebaseAttr(n *html.Node, key string, base *url.URL, isAnchor bool) {
	for i, attr := range n.Attr {
		if attr.Key != key || attr.Val == "" {
			continue
		}
		if utils.IsAbsoluteURL(attr.Val) {
			continue
		}
		if isAnchor && (strings.HasPrefix(attr.Val, "#") || strings.HasPrefix(attr.Val, "javascript:")) {
			continue
		}
		ref, err := url.Parse(attr.Val)
		if err != nil {
			continue
		}
		n.Attr[i].Val = base.ResolveReference(ref).String()
	}
}

// deriveFilename names the mirror after the cleaned title, falling back
// to the last URL path segment before its first dot. Filesystem-illegal
// characters become underscores and the name is capped at 100 runes.
// A repeated name gets a numeric suffix.
func (s *ArchiveSink) deriveFilename(record *types.Record) string {
	name := strings.TrimSpace(types.String(record.Title))
	if name == "" {
		segment := record.URL[strings.LastIndex(record.URL, "/")+1:]
		name, _, _ = strings.Cut(segment, ".")
	}

	name = illegalFilenameChars.ReplaceAllString(name, "_")
	if runes := []rune(name); len(runes) > maxFilenameLength {
		name = string(runes[:maxFilenameLength])
	}

	count := s.nameCounts[name]
	s.nameCounts[name] = count + 1
	if count > 0 {
		return fmt.Sprintf("%s_%d%s", name, count, archiveExtension)
	}
	return name + archiveExtension
}
