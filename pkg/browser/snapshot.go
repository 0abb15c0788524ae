package browser

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// PageSnapshot is a compact, redacted view of a page used in failure reports.
type PageSnapshot struct {
	Title     string
	Outline   string
	Alerts    []string
	Truncated bool
}

// String renders the snapshot as it is stored in reports.
func (s *PageSnapshot) String() string {
	var b strings.Builder
	if s.Title != "" {
		fmt.Fprintf(&b, "title: %s\n", s.Title)
	}
	for _, a := range s.Alerts {
		fmt.Fprintf(&b, "alert: %s\n", a)
	}
	b.WriteString(s.Outline)
	if s.Truncated {
		b.WriteString("\n[snapshot truncated]")
	}
	return b.String()
}

// snapshotHTML parses raw page markup and keeps only what helps explain a
// failed login: headings, form controls, buttons, alert-like elements and
// text. Input values are dropped and password fields are always redacted.
func snapshotHTML(rawHTML string, maxLength int) (*PageSnapshot, error) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	s := &snapshotter{max: maxLength}
	s.walk(doc, 0)

	return &PageSnapshot{
		Title:     s.title,
		Outline:   strings.TrimRight(s.out.String(), "\n"),
		Alerts:    s.alerts,
		Truncated: s.truncated,
	}, nil
}

type snapshotter struct {
	out       strings.Builder
	max       int
	title     string
	alerts    []string
	truncated bool
}

func (s *snapshotter) walk(n *html.Node, depth int) {
	if s.truncated {
		return
	}

	switch n.Type {
	case html.CommentNode:
		return
	case html.TextNode:
		if text := collapseSpace(n.Data); text != "" {
			s.line(depth, text)
		}
		return
	case html.ElementNode:
		tag := strings.ToLower(n.Data)
		if isNoise(tag) {
			return
		}
		if tag == "head" || tag == "title" {
			if title := findTitle(n); title != "" {
				s.title = title
			}
			return
		}
		if isAlert(n) {
			if text := collapseSpace(textOf(n)); text != "" {
				s.alerts = append(s.alerts, text)
			}
		}
		if desc := describeControl(n, tag); desc != "" {
			s.line(depth, desc)
			if tag != "form" {
				return
			}
		}
		if strings.HasPrefix(tag, "h") && len(tag) == 2 && tag[1] >= '1' && tag[1] <= '6' {
			s.line(depth, "# "+collapseSpace(textOf(n)))
			return
		}
		depth++
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		s.walk(c, depth)
	}
}

func (s *snapshotter) line(depth int, text string) {
	entry := strings.Repeat("  ", min(depth, 8)) + text + "\n"
	if s.max > 0 && s.out.Len()+len(entry) > s.max {
		remaining := s.max - s.out.Len()
		if remaining > 0 {
			s.out.WriteString(entry[:remaining])
		}
		s.truncated = true
		return
	}
	s.out.WriteString(entry)
}

// describeControl returns a one-line description of form controls and
// buttons, or "" for other elements.
func describeControl(n *html.Node, tag string) string {
	switch tag {
	case "form":
		return bracket("form", attrList(n, "id", "action", "method"))
	case "input":
		typ := strings.ToLower(attr(n, "type"))
		if typ == "hidden" {
			return ""
		}
		desc := bracket("input", attrList(n, "type", "id", "name", "placeholder"))
		if typ == "checkbox" {
			if hasAttr(n, "checked") {
				desc += " checked"
			} else {
				desc += " unchecked"
			}
		}
		if typ == "password" && attr(n, "value") != "" {
			desc += " value=[REDACTED]"
		}
		return desc
	case "select", "textarea":
		return bracket(tag, attrList(n, "id", "name"))
	case "button":
		label := collapseSpace(textOf(n))
		desc := bracket("button", attrList(n, "type", "id")) + " " + label
		if hasAttr(n, "disabled") {
			desc += " (disabled)"
		}
		return strings.TrimSpace(desc)
	case "a":
		if href := attr(n, "href"); href != "" {
			return strings.TrimSpace(fmt.Sprintf("[link %s] %s", href, collapseSpace(textOf(n))))
		}
	}
	return ""
}

// isAlert matches elements that typically carry login error messages.
func isAlert(n *html.Node) bool {
	role := strings.ToLower(attr(n, "role"))
	if role == "alert" || role == "alertdialog" {
		return true
	}
	class := strings.ToLower(attr(n, "class"))
	return strings.Contains(class, "error") || strings.Contains(class, "alert")
}

func isNoise(tag string) bool {
	switch tag {
	case "script", "style", "noscript", "iframe", "embed", "object", "svg", "template":
		return true
	}
	return false
}

func textOf(n *html.Node) string {
	var b strings.Builder
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteString(" ")
			return
		}
		if n.Type == html.ElementNode && isNoise(strings.ToLower(n.Data)) {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(n)
	return b.String()
}

func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && strings.EqualFold(n.Data, "title") {
		return collapseSpace(textOf(n))
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if title := findTitle(c); title != "" {
			return title
		}
	}
	return ""
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return true
		}
	}
	return false
}

func attrList(n *html.Node, keys ...string) string {
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		if v := attr(n, k); v != "" {
			parts = append(parts, fmt.Sprintf("%s=%q", k, v))
		}
	}
	return strings.Join(parts, " ")
}

func bracket(kind, attrs string) string {
	if attrs == "" {
		return "[" + kind + "]"
	}
	return "[" + kind + " " + attrs + "]"
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
