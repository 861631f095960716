package ai

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/lsilvatti/modtranslate/internal/core/domain"
)

// wireUnit is the minified JSON shape sent to and parsed back from the
// model. Short keys keep the payload small across large batches.
type wireUnit struct {
	ID   string `json:"i"`
	Text string `json:"t"`
}

// encodeUnits marshals texts into a deterministically ordered wire payload.
func encodeUnits(texts map[domain.UnitID]string) ([]byte, error) {
	ids := make([]string, 0, len(texts))
	for id := range texts {
		ids = append(ids, string(id))
	}
	sort.Strings(ids)

	units := make([]wireUnit, 0, len(ids))
	for _, id := range ids {
		units = append(units, wireUnit{ID: id, Text: texts[domain.UnitID(id)]})
	}
	return json.Marshal(units)
}

// decodeUnits parses a model's reply back into a UnitID-keyed map.
func decodeUnits(content string) (map[domain.UnitID]string, error) {
	var units []wireUnit
	if err := json.Unmarshal([]byte(content), &units); err != nil {
		return nil, fmt.Errorf("failed to parse translated units: %w", err)
	}

	out := make(map[domain.UnitID]string, len(units))
	for _, u := range units {
		out[domain.UnitID(u.ID)] = u.Text
	}
	return out, nil
}
