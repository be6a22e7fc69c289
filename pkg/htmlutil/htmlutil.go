package htmlutil

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer)
	return buffer.String()
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		getTextRecursive(child, buffer)
	}
}

// Form is a <form> element found on a page.
type Form struct {
	// Action is the raw action attribute, it is resolved by the caller against
	// the url the page was loaded from.
	Action string
	// Method is uppercased, GET when the attribute is missing.
	Method    string
	Selection *goquery.Selection
}

// FindForm returns the form matched by selector. If the selector matches an
// element inside a form (like its submit button), the closest enclosing form
// is used instead.
func FindForm(doc *goquery.Document, selector string) (Form, error) {
	sel := doc.Find(selector).First()
	if sel.Length() == 0 {
		return Form{}, fmt.Errorf("no element matches '%s'", selector)
	}
	if !sel.Is("form") {
		sel = sel.Closest("form")
		if sel.Length() == 0 {
			return Form{}, fmt.Errorf("element '%s' is not inside a form", selector)
		}
	}

	method := strings.ToUpper(strings.TrimSpace(sel.AttrOr("method", "")))
	if method == "" {
		method = "GET"
	}
	return Form{
		Action:    strings.TrimSpace(sel.AttrOr("action", "")),
		Method:    method,
		Selection: sel,
	}, nil
}

var skippedInputTypes = map[string]bool{
	"submit": true,
	"button": true,
	"image":  true,
	"reset":  true,
	"file":   true,
}

// Serialize collects the successful controls of the form the way jQuery's
// .serialize() does: named, enabled input/select/textarea elements, checkboxes
// and radios only when checked, buttons and file inputs never.
func (f Form) Serialize() url.Values {
	values := url.Values{}
	if f.Selection == nil {
		return values
	}

	f.Selection.Find("input, select, textarea").Each(func(_ int, s *goquery.Selection) {
		name, ok := s.Attr("name")
		if !ok || name == "" {
			return
		}
		if _, disabled := s.Attr("disabled"); disabled {
			return
		}

		switch goquery.NodeName(s) {
		case "input":
			kind := strings.ToLower(s.AttrOr("type", "text"))
			if skippedInputTypes[kind] {
				return
			}
			if kind == "checkbox" || kind == "radio" {
				if _, checked := s.Attr("checked"); !checked {
					return
				}
				values.Add(name, s.AttrOr("value", "on"))
				return
			}
			values.Add(name, s.AttrOr("value", ""))
		case "textarea":
			values.Add(name, s.Text())
		case "select":
			_, multiple := s.Attr("multiple")
			options := s.Find("option")
			selected := options.FilterFunction(func(_ int, o *goquery.Selection) bool {
				_, ok := o.Attr("selected")
				return ok
			})
			if selected.Length() == 0 && !multiple {
				selected = options.First()
			}
			if !multiple {
				selected = selected.Last()
			}
			selected.Each(func(_ int, o *goquery.Selection) {
				if _, disabled := o.Attr("disabled"); disabled {
					return
				}
				value, ok := o.Attr("value")
				if !ok {
					value = strings.TrimSpace(o.Text())
				}
				values.Add(name, value)
			})
		}
	})

	return values
}
