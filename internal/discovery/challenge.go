package discovery

import (
	"regexp"

	"github.com/segin2005/efgrabber/internal/model"
)

// ChallengeDetector classifies an index-page response as a bot challenge
// using compiled marker patterns plus a minimum-body-length signal. Per
// the standardization decision, a short body is only ever a bot-challenge
// signal, never a successful zero-page result.
type ChallengeDetector struct {
	markers  []*regexp.Regexp
	minBytes int
}

// NewChallengeDetector compiles markers (treated as regexp patterns) and
// remembers minBytes as the "response too short to be real" threshold.
func NewChallengeDetector(markers []string, minBytes int) (*ChallengeDetector, error) {
	compiled := make([]*regexp.Regexp, 0, len(markers))
	for _, m := range markers {
		re, err := regexp.Compile(m)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, re)
	}
	return &ChallengeDetector{markers: compiled, minBytes: minBytes}, nil
}

// Check returns a *model.BotChallengeDetected if body looks like an
// intermediate bot-mitigation response, or nil if it looks like the
// requested resource.
func (d *ChallengeDetector) Check(rawURL string, body []byte) *model.BotChallengeDetected {
	if len(body) < d.minBytes {
		return &model.BotChallengeDetected{URL: rawURL, Reason: "response body under minimum size"}
	}
	for _, m := range d.markers {
		if m.Match(body) {
			return &model.BotChallengeDetected{URL: rawURL, Reason: "matched challenge marker " + m.String()}
		}
	}
	return nil
}
