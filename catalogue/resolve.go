package catalogue

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownProfile is the sentinel behind every profile lookup miss.
var ErrUnknownProfile = errors.New("unknown page profile")

// NoProfileError is returned when a URL contains none of the profile routes.
type NoProfileError struct {
	URL string
}

func (e *NoProfileError) Error() string {
	return fmt.Sprintf("catalogue: no page profile matches %q", e.URL)
}

func (e *NoProfileError) Is(target error) bool { return target == ErrUnknownProfile }

// Resolve maps a URL to its profile: the first profile, in Profiles order,
// whose route is a substring of url.
func Resolve(url string) (Profile, error) {
	for _, p := range Profiles {
		if strings.Contains(url, p.Route()) {
			return p, nil
		}
	}
	return "", &NoProfileError{URL: url}
}
