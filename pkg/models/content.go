package models

// ContentKind is derived from the target URL path
type ContentKind string

const (
	KindPost ContentKind = "post"
	KindReel ContentKind = "reel"
)

// MediaKind is the shape of the payload handed back to the caller
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

// ExtractionRequest is built per API call and discarded after the response
type ExtractionRequest struct {
	TargetURL string      `json:"url"`
	Kind      ContentKind `json:"kind"`
}

// ContentResult is the final payload returned to the caller
type ContentResult struct {
	Kind        MediaKind
	Data        []byte
	ContentType string
}

// ContentRequest is the payload for POST /api/content
type ContentRequest struct {
	URL string `json:"url"`
}

// ErrorResponse is the JSON body written on failure
type ErrorResponse struct {
	Error string `json:"error"`
}
