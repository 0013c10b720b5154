package dispatcher

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyDirectory is returned when a directory would have no endpoints
var ErrEmptyDirectory = errors.New("replica directory is empty")

// Directory is an ordered, immutable list of replica endpoints ("host:port").
// Position is failover priority.
type Directory struct {
	endpoints []string
}

// NewDirectory copies endpoints into a new Directory
func NewDirectory(endpoints []string) (*Directory, error) {
	if len(endpoints) == 0 {
		return nil, ErrEmptyDirectory
	}
	eps := make([]string, len(endpoints))
	for i, ep := range endpoints {
		ep = strings.TrimSpace(ep)
		if ep == "" {
			return nil, fmt.Errorf("replica directory entry %d is empty", i)
		}
		eps[i] = ep
	}
	return &Directory{endpoints: eps}, nil
}

// Len returns the number of endpoints
func (d *Directory) Len() int {
	return len(d.endpoints)
}

// At returns the endpoint for attempt index i, wrapping around the list
func (d *Directory) At(i int) string {
	return d.endpoints[i%len(d.endpoints)]
}

// Endpoints returns a copy of the endpoint list
func (d *Directory) Endpoints() []string {
	out := make([]string, len(d.endpoints))
	copy(out, d.endpoints)
	return out
}

func (d *Directory) String() string {
	return "[" + strings.Join(d.endpoints, " ") + "]"
}
