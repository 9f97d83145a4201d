//go:build (linux || darwin) && !cgo

package native

import (
	"errors"

	"github.com/pitaeeg/sensor-server/pkg/haru"
)

func load(path string) (haru.Transport, error) {
	return nil, errors.New("vendor library support requires cgo on this platform")
}
