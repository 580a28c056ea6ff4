// Package stream recognises media fragment requests issued by the reel player
// and remembers the first audio and video stream seen during a capture.
package stream

import (
	"encoding/base64"
	"encoding/json"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// Kind distinguishes the two elementary streams of a reel
type Kind string

const (
	Audio Kind = "audio"
	Video Kind = "video"
)

const (
	fragmentMarker = ".mp4"
	rangeSuffix    = "&bytestart="
	audioMarker    = "_audio"
)

var (
	byteRangePattern = regexp.MustCompile(`bytestart=(\d+)&byteend=(\d+)`)
	tagPattern       = regexp.MustCompile(`efg=([^&]+)`)
)

// InterceptedRequest is the parsed view of one outgoing page request
type InterceptedRequest struct {
	RawURL         string
	ByteRangeStart *int64
	ByteRangeEnd   *int64
	EncodedTag     string
}

// HasByteRange reports whether both range bounds were present
func (r InterceptedRequest) HasByteRange() bool {
	return r.ByteRangeStart != nil && r.ByteRangeEnd != nil
}

// Candidate is a stream URL that can be re-requested in full
type Candidate struct {
	Kind    Kind
	BaseURL string
}

// tagMetadata is the JSON carried inside the efg parameter
type tagMetadata struct {
	VencodeTag *string `json:"vencode_tag"`
}

// Parse extracts the byte range and encoded tag from a request URL
func Parse(rawURL string) InterceptedRequest {
	req := InterceptedRequest{RawURL: rawURL}

	if m := byteRangePattern.FindStringSubmatch(rawURL); m != nil {
		start, errStart := strconv.ParseInt(m[1], 10, 64)
		end, errEnd := strconv.ParseInt(m[2], 10, 64)
		if errStart == nil && errEnd == nil {
			req.ByteRangeStart = &start
			req.ByteRangeEnd = &end
		}
	}

	if m := tagPattern.FindStringSubmatch(rawURL); m != nil {
		req.EncodedTag = m[1]
	}

	return req
}

// Classify decides whether a request is a media fragment and which stream it belongs to.
// Unrelated or malformed requests yield false.
func Classify(rawURL string) (Candidate, bool) {
	if !strings.Contains(rawURL, fragmentMarker) {
		return Candidate{}, false
	}

	req := Parse(rawURL)
	if !req.HasByteRange() || req.EncodedTag == "" {
		return Candidate{}, false
	}

	meta, ok := decodeTag(req.EncodedTag)
	if !ok {
		return Candidate{}, false
	}

	kind := Video
	if strings.Contains(*meta.VencodeTag, audioMarker) {
		kind = Audio
	}

	return Candidate{Kind: kind, BaseURL: BaseURL(rawURL)}, true
}

// BaseURL strips the byte-range suffix from a fragment URL
func BaseURL(rawURL string) string {
	base, _, _ := strings.Cut(rawURL, rangeSuffix)
	return base
}

// FullRangeURL builds the request for the entire stream starting at offset 0
func FullRangeURL(baseURL string) string {
	return baseURL + rangeSuffix + "0"
}

func decodeTag(encoded string) (tagMetadata, bool) {
	unescaped, err := url.PathUnescape(encoded)
	if err != nil {
		return tagMetadata{}, false
	}

	raw, ok := decodeBase64(unescaped)
	if !ok {
		return tagMetadata{}, false
	}

	// a tag without vencode_tag identifies no stream
	var meta tagMetadata
	if err := json.Unmarshal(raw, &meta); err != nil || meta.VencodeTag == nil || *meta.VencodeTag == "" {
		return tagMetadata{}, false
	}
	return meta, true
}

// decodeBase64 accepts both alphabets, padded or not
func decodeBase64(s string) ([]byte, bool) {
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	} {
		if b, err := enc.DecodeString(s); err == nil {
			return b, true
		}
	}
	return nil, false
}
