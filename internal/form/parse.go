package form

import (
	"fmt"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/autoapply-cli/api/schemas"
)

// FieldAttr is the attribute the extractor stamps on every candidate
// control before snapshotting the DOM.
const FieldAttr = "data-autoapply-id"

// skippedInputTypes are input types that never carry applicant data.
var skippedInputTypes = map[string]bool{
	"hidden": true, "submit": true, "button": true, "reset": true, "image": true, "password": true,
}

// textSkippedTags do not contribute to a label or to the visible page text.
var textSkippedTags = map[string]bool{
	"script": true, "style": true, "noscript": true, "template": true, "head": true,
}

// SelectorFor returns the CSS selector of a tagged control.
func SelectorFor(id string) string {
	return fmt.Sprintf(`[%s="%s"]`, FieldAttr, id)
}

// ParseFields builds descriptors, in document order, for every control in
// doc that carries FieldAttr. Controls without a usable identifier are
// dropped since nothing could be mapped onto them.
func ParseFields(doc string) ([]schemas.FieldDescriptor, error) {
	root, err := htmlquery.Parse(strings.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("could not parse form snapshot: %w", err)
	}

	idx := indexDocument(root)
	fields := make([]schemas.FieldDescriptor, 0, len(idx.tagged))
	for _, n := range idx.tagged {
		kind, ok := kindOf(n)
		if !ok {
			continue
		}

		field := schemas.FieldDescriptor{
			Kind:        kind,
			Name:        strings.TrimSpace(htmlquery.SelectAttr(n, "name")),
			ID:          strings.TrimSpace(htmlquery.SelectAttr(n, "id")),
			Placeholder: strings.TrimSpace(htmlquery.SelectAttr(n, "placeholder")),
			Label:       idx.labelOf(n),
			Required:    hasAttr(n, "required") || strings.EqualFold(htmlquery.SelectAttr(n, "aria-required"), "true"),
			Selector:    SelectorFor(htmlquery.SelectAttr(n, FieldAttr)),
		}
		field.Identifier = identifierOf(field)
		if field.Identifier == "" {
			continue
		}

		switch kind {
		case schemas.KindSelect:
			field.Options = selectOptions(n)
		case schemas.KindCombobox:
			field.Options = idx.listboxOptions(n)
		}
		fields = append(fields, field)
	}
	return fields, nil
}

// identifierOf applies the name > id > placeholder > label precedence.
func identifierOf(f schemas.FieldDescriptor) string {
	for _, candidate := range []string{f.Name, f.ID, f.Placeholder, f.Label} {
		if c := strings.ToLower(strings.TrimSpace(candidate)); c != "" {
			return c
		}
	}
	return ""
}

func kindOf(n *html.Node) (schemas.FieldKind, bool) {
	if strings.EqualFold(htmlquery.SelectAttr(n, "role"), "combobox") {
		return schemas.KindCombobox, true
	}
	switch strings.ToLower(n.Data) {
	case "textarea":
		return schemas.KindTextarea, true
	case "select":
		return schemas.KindSelect, true
	case "input":
	default:
		return "", false
	}

	t := strings.ToLower(strings.TrimSpace(htmlquery.SelectAttr(n, "type")))
	if skippedInputTypes[t] {
		return "", false
	}
	switch t {
	case "email":
		return schemas.KindEmail, true
	case "tel":
		return schemas.KindTel, true
	case "file":
		return schemas.KindFile, true
	case "checkbox":
		return schemas.KindCheckbox, true
	case "radio":
		return schemas.KindRadio, true
	default:
		// text, url, number, date, search and unknown types are typed into.
		return schemas.KindText, true
	}
}

func selectOptions(n *html.Node) []schemas.FieldOption {
	var options []schemas.FieldOption
	for _, opt := range htmlquery.Find(n, ".//option") {
		label := collapse(htmlquery.InnerText(opt))
		value, present := attr(opt, "value")
		if !present {
			value = label
		}
		// An explicit empty value is the "Select..." placeholder.
		if strings.TrimSpace(value) == "" {
			continue
		}
		options = append(options, schemas.FieldOption{Value: value, Label: label})
	}
	return options
}

// docIndex holds lookups that need the whole document.
type docIndex struct {
	byID     map[string]*html.Node
	labelFor map[string]*html.Node
	// tagged lists FieldAttr-bearing elements in pre-order, which is the
	// order the page renders them in.
	tagged []*html.Node
}

func indexDocument(root *html.Node) docIndex {
	idx := docIndex{byID: map[string]*html.Node{}, labelFor: map[string]*html.Node{}}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if hasAttr(n, FieldAttr) {
				idx.tagged = append(idx.tagged, n)
			}
			if id := htmlquery.SelectAttr(n, "id"); id != "" {
				if _, seen := idx.byID[id]; !seen {
					idx.byID[id] = n
				}
			}
			if strings.EqualFold(n.Data, "label") {
				if target := htmlquery.SelectAttr(n, "for"); target != "" {
					if _, seen := idx.labelFor[target]; !seen {
						idx.labelFor[target] = n
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return idx
}

// labelOf resolves a control's label: label[for], a wrapping label,
// aria-label, then aria-labelledby.
func (idx docIndex) labelOf(n *html.Node) string {
	if id := htmlquery.SelectAttr(n, "id"); id != "" {
		if l, ok := idx.labelFor[id]; ok {
			if s := labelText(l); s != "" {
				return s
			}
		}
	}
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && strings.EqualFold(p.Data, "label") {
			if s := labelText(p); s != "" {
				return s
			}
			break
		}
	}
	if s := collapse(htmlquery.SelectAttr(n, "aria-label")); s != "" {
		return s
	}
	if refs := strings.Fields(htmlquery.SelectAttr(n, "aria-labelledby")); len(refs) > 0 {
		parts := make([]string, 0, len(refs))
		for _, ref := range refs {
			if target, ok := idx.byID[ref]; ok {
				if s := labelText(target); s != "" {
					parts = append(parts, s)
				}
			}
		}
		return strings.Join(parts, " ")
	}
	return ""
}

// listboxOptions reads [role=option] entries from the listbox a combobox
// points at through aria-controls or aria-owns.
func (idx docIndex) listboxOptions(n *html.Node) []schemas.FieldOption {
	var options []schemas.FieldOption
	for _, a := range []string{"aria-controls", "aria-owns"} {
		for _, ref := range strings.Fields(htmlquery.SelectAttr(n, a)) {
			box, ok := idx.byID[ref]
			if !ok {
				continue
			}
			for _, opt := range htmlquery.Find(box, ".//*[@role='option']") {
				label := collapse(htmlquery.InnerText(opt))
				value := htmlquery.SelectAttr(opt, "data-value")
				if value == "" {
					value = label
				}
				if value != "" {
					options = append(options, schemas.FieldOption{Value: value, Label: label})
				}
			}
		}
		if len(options) > 0 {
			break
		}
	}
	return options
}

// labelText is the text of a label element without the text of controls
// nested inside it (a wrapping label around a select would otherwise
// swallow every option).
func labelText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			b.WriteByte(' ')
			return
		case html.ElementNode:
			switch strings.ToLower(n.Data) {
			case "select", "option", "textarea", "input":
				return
			}
			if textSkippedTags[strings.ToLower(n.Data)] {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(strings.TrimRight(collapse(b.String()), "*"))
}

// VisibleText returns the human-readable text of doc: script, style and
// hidden subtrees are dropped and whitespace is collapsed, so phrases split
// across inline elements still read as one string.
func VisibleText(doc string) (string, error) {
	root, err := htmlquery.Parse(strings.NewReader(doc))
	if err != nil {
		return "", fmt.Errorf("could not parse page snapshot: %w", err)
	}

	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			b.WriteByte(' ')
			return
		case html.ElementNode:
			if textSkippedTags[strings.ToLower(n.Data)] || hasAttr(n, "hidden") ||
				strings.EqualFold(htmlquery.SelectAttr(n, "aria-hidden"), "true") {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return collapse(b.String()), nil
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val, true
		}
	}
	return "", false
}

func hasAttr(n *html.Node, key string) bool {
	_, ok := attr(n, key)
	return ok
}
