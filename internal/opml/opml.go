// Package opml imports and exports feed subscriptions as OPML.
package opml

import (
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"time"
)

// document is the subset of OPML 2.0 a subscription list needs.
type document struct {
	XMLName xml.Name `xml:"opml"`
	Version string   `xml:"version,attr"`
	Head    struct {
		Title       string `xml:"title,omitempty"`
		DateCreated string `xml:"dateCreated,omitempty"`
	} `xml:"head"`
	Body struct {
		Outlines []outline `xml:"outline"`
	} `xml:"body"`
}

// outline with an xmlUrl is a feed. Without one its text names a tag that
// applies to every feed nested below it.
type outline struct {
	Text     string    `xml:"text,attr"`
	Title    string    `xml:"title,attr,omitempty"`
	Type     string    `xml:"type,attr,omitempty"`
	XMLURL   string    `xml:"xmlUrl,attr,omitempty"`
	HTMLURL  string    `xml:"htmlUrl,attr,omitempty"`
	Outlines []outline `xml:"outline,omitempty"`
}

// Subscription is one feed outline flattened, with the names of the folders
// enclosing it as tags.
type Subscription struct {
	Name   string
	Source string
	Tags   []string
}

// Parse reads an OPML document and returns every outline carrying an xmlUrl.
func Parse(r io.Reader) ([]Subscription, error) {
	var doc document
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode opml: %w", err)
	}
	var subs []Subscription
	var walk func(outlines []outline, path []string)
	walk = func(outlines []outline, path []string) {
		for _, o := range outlines {
			if o.XMLURL != "" {
				name := o.Title
				if name == "" {
					name = o.Text
				}
				if name == "" {
					name = o.XMLURL
				}
				subs = append(subs, Subscription{
					Name:   name,
					Source: o.XMLURL,
					Tags:   append([]string{}, path...),
				})
				continue
			}
			if len(o.Outlines) > 0 {
				folder := o.Text
				if folder == "" {
					folder = o.Title
				}
				next := path
				if folder != "" {
					next = append(append([]string{}, path...), folder)
				}
				walk(o.Outlines, next)
			}
		}
	}
	walk(doc.Body.Outlines, nil)
	return subs, nil
}

// Render writes an OPML document. Subscriptions are grouped in a folder
// named after their first tag; untagged ones sit at the top level.
func Render(w io.Writer, title string, subs []Subscription) error {
	doc := document{Version: "2.0"}
	doc.Head.Title = title
	doc.Head.DateCreated = time.Now().Format(time.RFC1123Z)

	folders := make(map[string]*outline)
	var root []outline
	for _, s := range subs {
		o := outline{Text: s.Name, Title: s.Name, Type: "rss", XMLURL: s.Source}
		if len(s.Tags) == 0 {
			root = append(root, o)
			continue
		}
		folder, ok := folders[s.Tags[0]]
		if !ok {
			folder = &outline{Text: s.Tags[0], Title: s.Tags[0]}
			folders[s.Tags[0]] = folder
		}
		folder.Outlines = append(folder.Outlines, o)
	}

	names := make([]string, 0, len(folders))
	for name := range folders {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		root = append(root, *folders[name])
	}
	doc.Body.Outlines = root

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode opml: %w", err)
	}
	return enc.Flush()
}
