package persistence

import (
	"net/url"
	"strconv"
	"strings"
)

// ParseLinkHeader parses an RFC 5988 Link header into rel -> url.
// Entries without a rel are ignored; the first occurrence of a rel wins.
func ParseLinkHeader(header string) map[string]string {
	links := make(map[string]string)
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if !strings.HasPrefix(part, "<") {
			continue
		}
		end := strings.Index(part, ">")
		if end < 0 {
			continue
		}
		target := strings.TrimSpace(part[1:end])
		for _, param := range strings.Split(part[end+1:], ";") {
			key, value, ok := strings.Cut(strings.TrimSpace(param), "=")
			if !ok || !strings.EqualFold(strings.TrimSpace(key), "rel") {
				continue
			}
			for _, rel := range strings.Fields(strings.Trim(strings.TrimSpace(value), `"`)) {
				if _, seen := links[rel]; !seen {
					links[rel] = target
				}
			}
		}
	}
	return links
}

// ContentQuery holds the query options accepted by content reads.
type ContentQuery struct {
	SinceDate     string
	ContentsLimit int
}

// ParseContentQuery keeps sinceDate and contentsLimit and drops every other key.
func ParseContentQuery(values url.Values) ContentQuery {
	var q ContentQuery
	q.SinceDate = strings.TrimSpace(values.Get("sinceDate"))
	if n, err := strconv.Atoi(strings.TrimSpace(values.Get("contentsLimit"))); err == nil && n > 0 {
		q.ContentsLimit = n
	}
	return q
}

func (q ContentQuery) values() url.Values {
	v := url.Values{}
	if q.SinceDate != "" {
		v.Set("sinceDate", q.SinceDate)
	}
	if q.ContentsLimit > 0 {
		v.Set("contentsLimit", strconv.Itoa(q.ContentsLimit))
	}
	return v
}
