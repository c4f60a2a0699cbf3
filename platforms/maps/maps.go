// Package maps renders the static neighborhood map shown on the
// acceptance page. Strictly best-effort: fan-out never blocks on it and
// never fails because of it.
package maps

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

type Saver struct {
	endpoint string
	key      string
	dir      string
	hc       *http.Client
}

func New(endpoint, key, dir string) *Saver {
	return &Saver{
		endpoint: endpoint,
		key:      key,
		dir:      dir,
		hc:       &http.Client{Timeout: 10 * time.Second},
	}
}

// Save fetches a 700x250 map centered on the lead's location and writes
// it to <dir>/<trackingID>.png.
func (s *Saver) Save(trackingID string, lat, lng float64) error {
	center := fmt.Sprintf("%f,%f", lat, lng)
	q := url.Values{}
	q.Set("center", center)
	q.Set("size", "700x250")
	q.Set("zoom", "11")
	q.Set("markers", "color:0x35b78e|"+center)
	q.Set("key", s.key)

	resp, err := s.hc.Get(s.endpoint + "?" + q.Encode())
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("maps: render returned %d", resp.StatusCode)
	}

	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return err
	}
	f, err := os.Create(filepath.Join(s.dir, trackingID+".png"))
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(f, resp.Body)
	return err
}
