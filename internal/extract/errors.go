package extract

import (
	"errors"
	"fmt"

	"github.com/shehryarbajwa/reelgrab/internal/browser"
	"github.com/shehryarbajwa/reelgrab/internal/download"
	"github.com/shehryarbajwa/reelgrab/internal/muxer"
	"github.com/shehryarbajwa/reelgrab/internal/session"
)

// InvalidInputError is returned for URLs that are not platform content
type InvalidInputError struct {
	URL    string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid instagram url %q: %s", e.URL, e.Reason)
}

// MissingStreamsError is returned when a reel capture did not see both streams
type MissingStreamsError struct {
	VideoURL string
	AudioURL string
}

func (e *MissingStreamsError) Error() string {
	return fmt.Sprintf("missing either video or audio URL (video found: %t, audio found: %t)",
		e.VideoURL != "", e.AudioURL != "")
}

// Outcome maps an extraction error to a short label for metrics and logs
func Outcome(err error) string {
	var (
		invalidErr  *InvalidInputError
		missingErr  *MissingStreamsError
		loginErr    *session.LoginError
		launchErr   *browser.LaunchError
		timeoutErr  *browser.TimeoutError
		downloadErr *download.DownloadError
		muxErr      *muxer.MuxError
	)

	switch {
	case err == nil:
		return "success"
	case errors.As(err, &invalidErr):
		return "invalid_input"
	case errors.As(err, &loginErr):
		return "login"
	case errors.As(err, &launchErr):
		return "launch"
	case errors.As(err, &missingErr):
		return "missing_streams"
	case errors.As(err, &timeoutErr):
		return "timeout"
	case errors.As(err, &downloadErr):
		return "download"
	case errors.As(err, &muxErr):
		return "mux"
	default:
		return "error"
	}
}
