// Package table turns raw page markup into rectangular grids.
//
// It holds the three pure building blocks every source module shares: the
// table extractor (Select, One, Optional, Nth, Parse), the header normalizer
// (Normalize, RemoveDifferential, ForwardFill) and the entity ID extractor
// (ExtractIDs, Frame.AlignIDs). Nothing here fetches or logs.
package table

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	crerr "github.com/cockroachdb/errors"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Load parses markup into a document. Tables that the site ships inside HTML
// comments (sports-reference pages do this for everything below the fold)
// are re-inflated in place so selectors can see them.
func Load(markup string) (*goquery.Document, error) {
	root, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, crerr.Wrap(err, "parse markup")
	}

	var comments []*html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.CommentNode && strings.Contains(n.Data, "<table") {
			comments = append(comments, n)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	for _, comment := range comments {
		if err := inflate(comment); err != nil {
			return nil, err
		}
	}

	return goquery.NewDocumentFromNode(root), nil
}

func inflate(comment *html.Node) error {
	parent := comment.Parent
	if parent == nil {
		return nil
	}

	context := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	nodes, err := html.ParseFragment(strings.NewReader(comment.Data), context)
	if err != nil {
		return crerr.Wrap(err, "parse commented table")
	}
	for _, n := range nodes {
		parent.InsertBefore(n, comment)
	}
	parent.RemoveChild(comment)
	return nil
}
