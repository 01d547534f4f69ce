package archive

import (
	"net/url"
	"strings"
)

const detailsSegment = "details"

// Resolve extracts the item identifier from a catalog URL.
//
// Two shapes are accepted: a details path (".../details/<id>/...") and a path
// made of exactly one segment ("https://host/<id>"). Everything else yields
// ErrNoIdentifier.
func Resolve(rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", ErrNoIdentifier
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", ErrNoIdentifier
	}

	var parts []string
	for _, p := range strings.Split(strings.Trim(u.Path, "/"), "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}

	for i, p := range parts {
		if p == detailsSegment {
			if i+1 < len(parts) {
				return unescape(parts[i+1])
			}
			return "", ErrNoIdentifier
		}
	}

	if len(parts) == 1 && u.RawQuery == "" {
		return unescape(parts[0])
	}
	return "", ErrNoIdentifier
}

func unescape(segment string) (string, error) {
	id, err := url.PathUnescape(segment)
	if err != nil || id == "" {
		return "", ErrNoIdentifier
	}
	return id, nil
}
