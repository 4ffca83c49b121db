// core/scenario_loader.go
package core

import (
	"encoding/json"
	"fmt"
	"io"
)

// Scenario is a small summary of what was loaded from JSON, plus the
// planning parameters the scenario carries. It's mainly useful for
// logging from main() and for seeding the model builder.
type Scenario struct {
	NodeIDs       []string
	LinkIDs       []string
	RequestIDs    []string
	ModulationIDs []string
	ZoneIDs       []string

	GuardBand       int
	SpectrumCeiling int
	SlotCapacity    float64
	K               int
	BigM            float64 // 0 means "size automatically"

	// SlotTable optionally overrides the derived required slot count for
	// specific (request, path index, modulation) triples.
	SlotTable []SlotOverride
}

// SlotOverride pins the required slot count for one (request, candidate
// path, modulation) combination. Path refers to the position in the
// request's generated candidate list, which is deterministic.
type SlotOverride struct {
	Request    string
	Path       int
	Modulation string
	Slots      int
}

// internal JSON shapes – keep them unexported so we're free to evolve them.
type scenarioJSON struct {
	Nodes       []string         `json:"nodes"`
	Links       []linkJSON       `json:"links"`
	Requests    []requestJSON    `json:"requests"`
	Modulations []modulationJSON `json:"modulations"`
	Zones       []zoneJSON       `json:"zones"`

	GuardBand       int           `json:"guard_band"`
	SpectrumCeiling int           `json:"spectrum_ceiling"`
	SlotCapacity    float64       `json:"slot_capacity"`
	K               int           `json:"k"`
	BigM            float64       `json:"big_m"`
	SlotTable       []slotRowJSON `json:"slot_table"`
}

type linkJSON struct {
	ID       string  `json:"id"`
	A        string  `json:"a"`
	B        string  `json:"b"`
	Distance float64 `json:"distance"`
}

type requestJSON struct {
	ID          string  `json:"id"`
	Source      string  `json:"source"`
	Destination string  `json:"destination"`
	Volume      float64 `json:"volume"`
}

type modulationJSON struct {
	ID         string  `json:"id"`
	Reach      float64 `json:"reach"`
	Efficiency float64 `json:"efficiency"`
}

type zoneJSON struct {
	ID       string `json:"id"`
	Capacity int    `json:"capacity"`
}

type slotRowJSON struct {
	Request    string `json:"request"`
	Path       int    `json:"path"`
	Modulation string `json:"modulation"`
	Slots      int    `json:"slots"`
}

// LoadScenario reads a JSON planning scenario from r, populates the
// KnowledgeBase, and returns the scenario summary with its planning
// parameters.
//
// Structural problems (bad JSON, dangling references, nonpositive
// distances or volumes) surface as ErrInputValidation so the pipeline
// can abort before model building with exit code 1.
func LoadScenario(kb *KnowledgeBase, r io.Reader) (*Scenario, error) {
	if kb == nil {
		return nil, fmt.Errorf("LoadScenario: kb is nil")
	}

	var payload scenarioJSON
	dec := json.NewDecoder(r)
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decode failed: %v", ErrInputValidation, err)
	}

	sc := &Scenario{
		NodeIDs:         make([]string, 0, len(payload.Nodes)),
		LinkIDs:         make([]string, 0, len(payload.Links)),
		RequestIDs:      make([]string, 0, len(payload.Requests)),
		ModulationIDs:   make([]string, 0, len(payload.Modulations)),
		ZoneIDs:         make([]string, 0, len(payload.Zones)),
		GuardBand:       payload.GuardBand,
		SpectrumCeiling: payload.SpectrumCeiling,
		SlotCapacity:    payload.SlotCapacity,
		K:               payload.K,
		BigM:            payload.BigM,
	}

	// 1) Nodes
	for _, id := range payload.Nodes {
		if id == "" {
			return nil, fmt.Errorf("%w: node with empty id", ErrInputValidation)
		}
		if err := kb.AddNode(&Node{ID: id}); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInputValidation, err)
		}
		sc.NodeIDs = append(sc.NodeIDs, id)
	}

	// 2) Links
	for _, jsL := range payload.Links {
		if jsL.ID == "" {
			return nil, fmt.Errorf("%w: link with empty id", ErrInputValidation)
		}
		link := &Link{
			ID:       jsL.ID,
			A:        jsL.A,
			B:        jsL.B,
			Distance: jsL.Distance,
		}
		if err := kb.AddLink(link); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInputValidation, err)
		}
		sc.LinkIDs = append(sc.LinkIDs, jsL.ID)
	}

	// 3) Modulations
	for _, jsM := range payload.Modulations {
		if jsM.ID == "" {
			return nil, fmt.Errorf("%w: modulation with empty id", ErrInputValidation)
		}
		efficiency := jsM.Efficiency
		if efficiency == 0 {
			// Omitted efficiency means the baseline format.
			efficiency = 1
		}
		mod := &Modulation{
			ID:         jsM.ID,
			Reach:      jsM.Reach,
			Efficiency: efficiency,
		}
		if err := kb.AddModulation(mod); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInputValidation, err)
		}
		sc.ModulationIDs = append(sc.ModulationIDs, jsM.ID)
	}

	// 4) Traffic requests
	for _, jsR := range payload.Requests {
		if jsR.ID == "" {
			return nil, fmt.Errorf("%w: request with empty id", ErrInputValidation)
		}
		req := &TrafficRequest{
			ID:          jsR.ID,
			Source:      jsR.Source,
			Destination: jsR.Destination,
			Volume:      jsR.Volume,
		}
		if err := kb.AddTrafficRequest(req); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInputValidation, err)
		}
		sc.RequestIDs = append(sc.RequestIDs, jsR.ID)
	}

	// 5) Zones (optional; the whole spectrum acts as one zone when absent)
	for _, jsZ := range payload.Zones {
		if jsZ.ID == "" {
			return nil, fmt.Errorf("%w: zone with empty id", ErrInputValidation)
		}
		if err := kb.AddZone(&Zone{ID: jsZ.ID, Capacity: jsZ.Capacity}); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInputValidation, err)
		}
		sc.ZoneIDs = append(sc.ZoneIDs, jsZ.ID)
	}

	// 6) Planning parameters
	if sc.SpectrumCeiling <= 0 {
		return nil, fmt.Errorf("%w: spectrum_ceiling must be positive, got %d", ErrInputValidation, sc.SpectrumCeiling)
	}
	if sc.GuardBand < 0 {
		return nil, fmt.Errorf("%w: guard_band must not be negative, got %d", ErrInputValidation, sc.GuardBand)
	}
	if sc.K <= 0 {
		return nil, fmt.Errorf("%w: candidate path count k must be positive, got %d", ErrInputValidation, sc.K)
	}
	if sc.SlotCapacity <= 0 && len(payload.SlotTable) == 0 {
		return nil, fmt.Errorf("%w: slot_capacity must be positive when no slot_table is given", ErrInputValidation)
	}

	// 7) Slot overrides
	for _, row := range payload.SlotTable {
		if kb.GetTrafficRequest(row.Request) == nil {
			return nil, fmt.Errorf("%w: slot_table references unknown request %q", ErrInputValidation, row.Request)
		}
		if kb.GetModulation(row.Modulation) == nil {
			return nil, fmt.Errorf("%w: slot_table references unknown modulation %q", ErrInputValidation, row.Modulation)
		}
		if row.Path < 0 || row.Slots <= 0 {
			return nil, fmt.Errorf("%w: slot_table row for request %q has invalid path index or slot count", ErrInputValidation, row.Request)
		}
		sc.SlotTable = append(sc.SlotTable, SlotOverride{
			Request:    row.Request,
			Path:       row.Path,
			Modulation: row.Modulation,
			Slots:      row.Slots,
		})
	}

	return sc, nil
}

// SlotsFor resolves the required slot count for a (request, path index,
// modulation) triple: an explicit override wins, otherwise the count is
// derived from the demand volume and the modulation's efficiency.
func (sc *Scenario) SlotsFor(req *TrafficRequest, pathIndex int, mod *Modulation) (int, error) {
	for _, row := range sc.SlotTable {
		if row.Request == req.ID && row.Path == pathIndex && row.Modulation == mod.ID {
			return row.Slots, nil
		}
	}
	return RequiredSlots(req.Volume, sc.SlotCapacity, mod.Efficiency)
}
