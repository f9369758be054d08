package scheme

import (
	"encoding/json"
	"os"

	"github.com/sgct-project/combi/pkg/errs"
	"github.com/sgct-project/combi/pkg/levelvector"
)

// fileEntry mirrors one element of the scheme file's JSON array, per §6:
// array of {level: [int], coeff: number, group: int}.
type fileEntry struct {
	Level []int   `json:"level"`
	Coeff float64 `json:"coeff"`
	Group *int    `json:"group,omitempty"`
}

// LoadFile parses a scheme file per §6/§4.H. If any entry carries a group
// field, every entry must carry one (static assignment mode); otherwise
// every term's Group is set to -1 (dynamic assignment).
func LoadFile(path string) (Scheme, bool, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Scheme{}, false, errs.Wrap(errs.InvalidScheme, err, "reading scheme file")
	}
	var entries []fileEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return Scheme{}, false, errs.Wrap(errs.InvalidScheme, err, "parsing scheme file")
	}
	if len(entries) == 0 {
		return Scheme{}, false, errs.New(errs.InvalidScheme, "scheme file %s has no entries", path)
	}

	nGrouped := 0
	for _, e := range entries {
		if e.Group != nil {
			nGrouped++
		}
	}
	if nGrouped != 0 && nGrouped != len(entries) {
		return Scheme{}, false, errs.New(errs.InvalidScheme, "scheme file %s: group must be present on all entries or none", path)
	}
	static := nGrouped == len(entries)

	dim := len(entries[0].Level)
	s := Scheme{Dim: dim, Terms: make([]Term, len(entries))}
	for i, e := range entries {
		group := -1
		if e.Group != nil {
			group = *e.Group
		}
		s.Terms[i] = Term{Level: levelvector.New(e.Level...), Coeff: e.Coeff, Group: group}
	}
	return s, static, nil
}

// SaveFile writes a scheme back out in the §6 JSON format, used by
// checkpoint/restart tooling and by tests constructing fixtures.
func SaveFile(path string, s Scheme, static bool) error {
	entries := make([]fileEntry, len(s.Terms))
	for i, t := range s.Terms {
		entries[i] = fileEntry{Level: []int(t.Level), Coeff: t.Coeff}
		if static {
			g := t.Group
			entries[i].Group = &g
		}
	}
	raw, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return errs.Wrap(errs.InvalidScheme, err, "marshalling scheme file")
	}
	return os.WriteFile(path, raw, 0o644)
}
