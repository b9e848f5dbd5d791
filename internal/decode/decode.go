// Package decode converts fetched response bytes into UTF-8 before parsing.
// Encoding resolution order: byte-order mark, Content-Type charset parameter,
// meta charset prescan of the document head, then the WHATWG fallback.
package decode

import (
	"bytes"
	"fmt"

	"golang.org/x/net/html/charset"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Result is the decoded document plus the source encoding label recorded in
// the persisted frontmatter.
type Result struct {
	HTML     string
	Encoding string
}

// HTML decodes body into UTF-8. Bodies already in UTF-8 pass through without
// a transform pass.
func HTML(body []byte, contentType string) (Result, error) {
	enc, name, _ := charset.DetermineEncoding(body, contentType)
	if name == "utf-8" {
		return Result{HTML: string(bytes.TrimPrefix(body, utf8BOM)), Encoding: name}, nil
	}
	decoded, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return Result{}, fmt.Errorf("decode %s: %w", name, err)
	}
	return Result{HTML: string(decoded), Encoding: name}, nil
}
