package replication

import (
	"errors"
	"net"
	"net/url"
	"strconv"
)

var errEmptyHost = errors.New("empty destination host")

// TranslateURI returns the destination URI for s. The port is
// omitted when it is the default port of the snapshot's scheme.
func TranslateURI(s *Snapshot, host string, port int) (*url.URL, error) {
	if host == "" {
		return nil, newError(InvalidDestination, "translate uri", errEmptyHost)
	}

	h := host
	if port != defaultPorts[s.Scheme] {
		h = net.JoinHostPort(host, strconv.Itoa(port))
	}

	u, err := url.Parse(s.Scheme + "://" + h + s.FullPath)
	if err != nil {
		return nil, newError(InvalidDestination, "translate uri", err)
	}
	return u, nil
}
