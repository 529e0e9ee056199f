// Copyright 2025 The PropMap Authors
// SPDX-License-Identifier: Apache-2.0

// Package htmlutils provides utility functions for working with HTML.
package htmlutils

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// AsNode parses an HTML document or fragment.
func AsNode(r io.Reader) (*html.Node, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parsing html: %w", err)
	}

	return doc, nil
}

// Attr returns the value of the attribute key, or "".
func Attr(n *html.Node, key string) string {
	if n == nil {
		return ""
	}

	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}

	return ""
}

// HasAttr returns a predicate matching elements with key=val.
func HasAttr(key, val string) func(*html.Node) bool {
	return func(n *html.Node) bool {
		return n.Type == html.ElementNode && Attr(n, key) == val
	}
}

// Find returns the first node, in document order, matching pred.
func Find(n *html.Node, pred func(*html.Node) bool) *html.Node {
	if n == nil {
		return nil
	}

	if pred(n) {
		return n
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := Find(c, pred); found != nil {
			return found
		}
	}

	return nil
}

// Closest walks from n up to the root and returns the first node matching
// pred. The walk gives up after visiting a node matching stop.
func Closest(n *html.Node, pred, stop func(*html.Node) bool) *html.Node {
	for ; n != nil; n = n.Parent {
		if pred(n) {
			return n
		}

		if stop != nil && stop(n) {
			return nil
		}
	}

	return nil
}

// Text returns the text content of n with runs of whitespace collapsed.
func Text(n *html.Node) string {
	var sb strings.Builder

	node2string(n, &sb)

	return sb.String()
}

func node2string(n *html.Node, sb *strings.Builder) {
	if n == nil {
		return
	}

	if n.Type == html.TextNode {
		for _, word := range strings.Fields(n.Data) {
			if sb.Len() != 0 {
				sb.WriteByte(' ')
			}

			sb.WriteString(word)
		}

		return
	}

	for child := n.FirstChild; child != nil; child = child.NextSibling {
		node2string(child, sb)
	}
}
