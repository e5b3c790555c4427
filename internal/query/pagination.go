package query

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"openlms/internal/apierr"
)

// PageMeta is the pagination envelope of a list response.
type PageMeta struct {
	Total      int
	TotalPages int
}

// Paginate computes page count and enforces the out-of-bounds policy: a page
// beyond the last one is a bad request rather than an empty page, so long as
// there is at least one result.
func Paginate(d Descriptor, total int) (PageMeta, *apierr.Error) {
	meta := PageMeta{Total: total}
	if total > 0 {
		meta.TotalPages = (total + d.PerPage - 1) / d.PerPage
	}
	if total > 0 && d.Page > meta.TotalPages {
		return meta, apierr.BadRequest("out_of_range", fmt.Sprintf("page %d is out of range, there are %d pages", d.Page, meta.TotalPages), "page")
	}
	return meta, nil
}

// Link is one RFC-5988 pagination link relation.
type Link struct {
	Rel string
	URL string
}

// Links computes the first/prev/next/last relations for the current page.
// When there is exactly one page no relations are emitted at all; first is
// skipped on page 1 and last is emitted whenever a prev or next exists. Each
// link preserves all other query parameters from the original request.
func Links(base string, values url.Values, page, totalPages int) []Link {
	prev := page > 1
	next := page < totalPages
	if !prev && !next {
		return nil
	}
	var links []Link
	pageURL := func(p int) string {
		q := url.Values{}
		for k, vs := range values {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		q.Set("page", strconv.Itoa(p))
		return base + "?" + q.Encode()
	}
	if page != 1 {
		links = append(links, Link{Rel: "first", URL: pageURL(1)})
	}
	if prev {
		p := page - 1
		if p > totalPages {
			p = totalPages
		}
		links = append(links, Link{Rel: "prev", URL: pageURL(p)})
	}
	if next {
		links = append(links, Link{Rel: "next", URL: pageURL(page + 1)})
	}
	links = append(links, Link{Rel: "last", URL: pageURL(totalPages)})
	return links
}

// FormatLinkHeader renders links as a single comma-joined Link header value.
func FormatLinkHeader(links []Link) string {
	if len(links) == 0 {
		return ""
	}
	parts := make([]string, 0, len(links))
	for _, l := range links {
		parts = append(parts, fmt.Sprintf("<%s>; rel=%q", l.URL, l.Rel))
	}
	return strings.Join(parts, ", ")
}
