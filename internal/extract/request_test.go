package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shehryarbajwa/reelgrab/pkg/models"
)

func TestParseRequest(t *testing.T) {
	tests := []struct {
		name string
		url  string
		kind models.ContentKind
	}{
		{"post", "https://www.instagram.com/p/C8abc123/", models.KindPost},
		{"reel", "https://www.instagram.com/reel/C9xyz789/", models.KindReel},
		{"bare host", "https://instagram.com/reel/C9xyz789/?igsh=abc", models.KindReel},
		{"reels tab is not a reel", "https://www.instagram.com/reels/", models.KindPost},
		{"surrounding whitespace", "  https://www.instagram.com/p/C8abc123/ ", models.KindPost},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := ParseRequest(tt.url)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, req.Kind)
		})
	}
}

func TestParseRequestRejects(t *testing.T) {
	for _, raw := range []string{
		"",
		"not a url",
		"ftp://www.instagram.com/p/abc/",
		"https://example.com/p/abc/",
		"https://notinstagram.com/reel/abc/",
		"https://instagram.com.evil.io/reel/abc/",
		"://broken",
	} {
		t.Run(raw, func(t *testing.T) {
			_, err := ParseRequest(raw)
			var invalid *InvalidInputError
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, "invalid_input", Outcome(err))
		})
	}
}
