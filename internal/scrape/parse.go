package scrape

import (
	"fmt"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/sells-group/outreach-cli/internal/model"
)

// MaxBodyChars caps WebsiteSummary.Body.
const MaxBodyChars = 4000

var aboutSelectors = []string{
	"about", "über-uns", "about-us", "company", "unternehmen",
	"who-we-are", "our-story", "geschichte",
}

var serviceSelectors = []string{
	"services", "leistungen", "products", "produkte",
	"solutions", "lösungen", "portfolio",
}

var addressClasses = []string{"address", "contact-address"}

var skipText = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Svg:      true,
}

// ParseWebsite extracts the summary fields of a company page.
func ParseWebsite(pageURL, rawHTML string) (*model.WebsiteSummary, error) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, eris.Wrap(err, "scrape: parse html")
	}

	ws := &model.WebsiteSummary{URL: pageURL}

	if n := findFirst(doc, func(n *html.Node) bool { return n.DataAtom == atom.Title }); n != nil {
		ws.Title = textOf(n)
	}
	if n := findFirst(doc, func(n *html.Node) bool {
		return n.DataAtom == atom.Meta && strings.EqualFold(attr(n, "name"), "description")
	}); n != nil {
		ws.Description = strings.TrimSpace(attr(n, "content"))
	}
	if body := findFirst(doc, func(n *html.Node) bool { return n.DataAtom == atom.Body }); body != nil {
		ws.Body = truncateRunes(textOf(body), MaxBodyChars)
	}

	ws.About = findAbout(doc)
	ws.Services = findServices(doc)
	ws.Contact = findContact(doc)

	return ws, nil
}

func findAbout(doc *html.Node) string {
	for _, sel := range aboutSelectors {
		n := findFirst(doc, func(n *html.Node) bool {
			return n.Type == html.ElementNode && (attr(n, "id") == sel || hasClass(n, sel))
		})
		if n != nil {
			return textOf(n)
		}
	}
	return ""
}

func findServices(doc *html.Node) []string {
	var services []string
	for _, sel := range serviceSelectors {
		for _, section := range findAll(doc, func(n *html.Node) bool { return hasClass(n, sel) }) {
			for _, li := range findAll(section, func(n *html.Node) bool { return n.DataAtom == atom.Li }) {
				if t := textOf(li); t != "" && !slices.Contains(services, t) {
					services = append(services, t)
				}
			}
		}
	}
	return services
}

func findContact(doc *html.Node) model.Contact {
	var c model.Contact
	if a := findFirst(doc, hrefContains("mailto:")); a != nil {
		c.Email = stripScheme(attr(a, "href"), "mailto:")
	}
	if a := findFirst(doc, hrefContains("tel:")); a != nil {
		c.Phone = stripScheme(attr(a, "href"), "tel:")
	}
	if n := findFirst(doc, func(n *html.Node) bool {
		return slices.ContainsFunc(addressClasses, func(cls string) bool { return hasClass(n, cls) })
	}); n != nil {
		c.Address = textOf(n)
	}
	return c
}

func hrefContains(scheme string) func(*html.Node) bool {
	return func(n *html.Node) bool {
		return n.DataAtom == atom.A && strings.Contains(strings.ToLower(attr(n, "href")), scheme)
	}
}

func stripScheme(href, scheme string) string {
	i := strings.Index(strings.ToLower(href), scheme)
	v := href[i+len(scheme):]
	if q := strings.IndexByte(v, '?'); q >= 0 {
		v = v[:q]
	}
	return strings.TrimSpace(v)
}

func findFirst(n *html.Node, match func(*html.Node) bool) *html.Node {
	if match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, match); found != nil {
			return found
		}
	}
	return nil
}

func findAll(n *html.Node, match func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if match(n) {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	if n.Type != html.ElementNode {
		return false
	}
	return slices.Contains(strings.Fields(attr(n, "class")), class)
}

// textOf returns the visible text under n with whitespace collapsed.
func textOf(n *html.Node) string {
	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skipText[n.DataAtom] {
			return
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// FormatSummary renders a WebsiteSummary as the plain text handed to analysis.
func FormatSummary(ws *model.WebsiteSummary) string {
	if ws == nil {
		return ""
	}
	var b strings.Builder
	line := func(label, v string) {
		if v != "" {
			fmt.Fprintf(&b, "%s: %s\n", label, v)
		}
	}
	line("URL", ws.URL)
	line("Title", ws.Title)
	line("Description", ws.Description)
	line("About", ws.About)
	if len(ws.Services) > 0 {
		line("Services", strings.Join(ws.Services, "; "))
	}
	line("Contact email", ws.Contact.Email)
	line("Contact phone", ws.Contact.Phone)
	line("Address", ws.Contact.Address)
	line("Content", ws.Body)
	return strings.TrimSpace(b.String())
}
