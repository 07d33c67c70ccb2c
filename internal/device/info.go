package device

import (
	"errors"
	"fmt"
)

// MaxSlotsPerKind bounds each announced array length. The catalog holds at
// most 15 names of one kind; the rest covers vendor usages outside it.
const MaxSlotsPerKind = 64

var ErrSchemaTooLarge = errors.New("device: announced schema too large")

// Info is the announced schema of one device. It never carries live values.
type Info struct {
	ID              uint32          `json:"id"`
	Name            string          `json:"name"`
	Characteristics Characteristics `json:"characteristics"`
	Haptics         bool            `json:"haptics"`
	Locations       map[string]int  `json:"locations"`
	Lengths         [KindCount]int  `json:"lengths"`
}

// Validate rejects announcements whose array lengths are negative or exceed
// MaxSlotsPerKind.
func (i Info) Validate() error {
	for k, n := range i.Lengths {
		if n < 0 || n > MaxSlotsPerKind {
			return fmt.Errorf("%w: device=%d kind=%s length=%d", ErrSchemaTooLarge, i.ID, Kind(k), n)
		}
	}
	return nil
}

// ValidateInfos returns the first invalid announcement in infos.
func ValidateInfos(infos []Info) error {
	for _, info := range infos {
		if err := info.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (i Info) Schema() Schema {
	return SchemaFromInfo(i.Lengths, i.Locations)
}

// InfoFor describes a device state under the given identity.
func InfoFor(s *State, name string, chars Characteristics, haptics bool) Info {
	schema := s.Schema()
	return Info{
		ID:              s.ID,
		Name:            name,
		Characteristics: chars,
		Haptics:         haptics,
		Locations:       schema.Locations(),
		Lengths:         schema.Lengths(),
	}
}
