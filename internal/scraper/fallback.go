package scraper

import (
	"bytes"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/net/html"

	"charthub/pkg/models"
)

// subjectIDRe pulls the source's own id out of a detail URL.
var subjectIDRe = regexp.MustCompile(`/subject/(\d+)/`)

// parseCards scans the rendered page for repeating chart cards. It is the
// fallback strategy and deliberately forgiving: cards it cannot read are
// skipped, and a skipped card does not consume a rank slot.
func parseCards(doc []byte, baseURL string) []models.ChartItem {
	root, err := html.Parse(bytes.NewReader(doc))
	if err != nil {
		return nil
	}

	base, _ := url.Parse(baseURL)

	var items []models.ChartItem
	position := 0

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if isCardNode(n) {
			if it, ok := parseCard(n, base); ok {
				position++
				if it.Rank == 0 {
					it.Rank = position
				}
				items = append(items, it)
			}
			// cards do not nest
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	return items
}

// isCardNode matches the repeating card containers of the boards we crawl:
// classic "item" grids and hashed content_* hot-board wrappers.
func isCardNode(n *html.Node) bool {
	if n.Type != html.ElementNode || n.Data != "div" {
		return false
	}
	for _, cls := range classList(n) {
		if cls == "item" || strings.HasPrefix(cls, "content_") {
			return true
		}
	}
	return false
}

func parseCard(card *html.Node, base *url.URL) (models.ChartItem, bool) {
	var it models.ChartItem

	// Title: dedicated title element first, any anchor text as a last resort.
	titleNodes := findAllByClass(card, "title")
	if len(titleNodes) == 0 {
		titleNodes = findAllByClass(card, "c-single-text-ellipsis")
	}
	if len(titleNodes) > 0 {
		it.Title = strings.TrimSpace(nodeText(titleNodes[0]))
	}
	anchor := findFirstAnchor(card)
	if it.Title == "" && anchor != nil {
		it.Title = strings.TrimSpace(nodeText(anchor))
	}
	if it.Title == "" {
		return it, false
	}

	// Secondary title line, trimmed of the leading " / " separator.
	if len(titleNodes) > 1 {
		it.OriginalTitle = trimSecondaryTitle(nodeText(titleNodes[1]))
	} else if other := findFirstByClass(card, "other"); other != nil {
		it.OriginalTitle = trimSecondaryTitle(nodeText(other))
	}

	// Link, resolved against the page URL; the detail path may carry the
	// source's own id.
	if anchor != nil {
		if href := attrValue(anchor, "href"); href != "" {
			it.URL = resolveURL(base, href)
			if m := subjectIDRe.FindStringSubmatch(it.URL); m != nil {
				it.ExternalID = m[1]
			}
		}
	}

	// Explicit rank marker; position-based ranks are assigned by the caller.
	if em := findFirstElement(card, "em"); em != nil {
		if n, err := strconv.Atoi(strings.TrimSpace(nodeText(em))); err == nil && n > 0 {
			it.Rank = n
		}
	}

	if rn := findFirstByClass(card, "rating_num"); rn != nil {
		it.Rating = parseRating(nodeText(rn))
	}
	it.Votes = parseVotes(nodeText(card))

	parseCardMeta(card, &it)

	return it, true
}

// parseCardMeta reads the free-text info block of a card. Line one names
// the director (and cast, which we drop); line two is the
// "year / country ... / genre ..." line.
func parseCardMeta(card *html.Node, it *models.ChartItem) {
	p := findFirstElement(card, "p")
	if p == nil {
		return
	}

	lines := splitTextLines(p)
	if len(lines) > 0 {
		it.Director = parseDirector(lines[0])
	}
	if len(lines) > 1 {
		year, tokens := splitMetaTokens(lines[1])
		it.Year = year
		it.Genres, it.Countries = classifyTokens(tokens)
	}
}

// trimSecondaryTitle strips the " / " separator the secondary title line
// starts with; these pages pad it with non-breaking spaces.
func trimSecondaryTitle(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || r == '/'
	})
}

func resolveURL(base *url.URL, href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}

// ───── html.Node helpers ─────

func classList(n *html.Node) []string {
	return strings.Fields(attrValue(n, "class"))
}

func attrValue(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, cls string) bool {
	for _, c := range classList(n) {
		if c == cls {
			return true
		}
	}
	return false
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// splitTextLines returns the text content of a node split at <br> elements,
// one trimmed string per visual line, empties dropped.
func splitTextLines(n *html.Node) []string {
	var lines []string
	var b strings.Builder

	flush := func() {
		if s := strings.TrimSpace(b.String()); s != "" {
			lines = append(lines, s)
		}
		b.Reset()
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "br" {
			flush()
			return
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c)
	}
	flush()

	return lines
}

func findFirstElement(n *html.Node, tag string) *html.Node {
	var result *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if result != nil {
			return
		}
		if n.Type == html.ElementNode && n.Data == tag {
			result = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c)
	}
	return result
}

func findFirstAnchor(n *html.Node) *html.Node {
	var result *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if result != nil {
			return
		}
		if n.Type == html.ElementNode && n.Data == "a" && attrValue(n, "href") != "" {
			result = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return result
}

func findFirstByClass(n *html.Node, cls string) *html.Node {
	var result *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if result != nil {
			return
		}
		if n.Type == html.ElementNode && hasClass(n, cls) {
			result = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c)
	}
	return result
}

func findAllByClass(n *html.Node, cls string) []*html.Node {
	var results []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && hasClass(n, cls) {
			results = append(results, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c)
	}
	return results
}
