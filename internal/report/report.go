// Package report formats planning outcomes for the batch CLI.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/signalsfoundry/rsa-planner/core"
)

// RequestResult is the reported outcome for one traffic request.
type RequestResult struct {
	Request    string              `json:"request"`
	Accepted   bool                `json:"accepted"`
	Path       []string            `json:"path,omitempty"`
	Links      []string            `json:"links,omitempty"`
	Distance   float64             `json:"distance,omitempty"`
	Modulation string              `json:"modulation,omitempty"`
	Block      *core.SpectrumBlock `json:"block,omitempty"`
	Side       core.Side           `json:"side,omitempty"`
	Zone       string              `json:"zone,omitempty"`
	Reason     core.RejectReason   `json:"reason,omitempty"`
}

// Report is the full outcome of one planning run.
type Report struct {
	Scenario  string          `json:"scenario"`
	Requests  []RequestResult `json:"requests"`
	Accepted  int             `json:"accepted"`
	Rejected  int             `json:"rejected"`
	SMax      int             `json:"s_max"`
	Objective int             `json:"objective"`
	Proven    bool            `json:"proven_optimal"`
}

// Build assembles a Report from the validated assignment and the
// candidate paths the assignment indexes into.
func Build(scenario string, asg *core.Assignment, paths map[string][]core.CandidatePath, proven bool) *Report {
	rep := &Report{
		Scenario: scenario,
		SMax:     asg.SMax,
		Proven:   proven,
	}
	for _, ra := range asg.Requests {
		rr := RequestResult{
			Request:  ra.Request,
			Accepted: ra.Accepted,
			Reason:   ra.Reason,
		}
		if ra.Accepted {
			rep.Accepted++
			candidates := paths[ra.Request]
			if ra.PathIndex >= 0 && ra.PathIndex < len(candidates) {
				p := candidates[ra.PathIndex]
				rr.Path = append([]string(nil), p.Nodes...)
				for _, l := range p.Links {
					rr.Links = append(rr.Links, l.ID)
				}
				rr.Distance = p.Distance
			}
			block := ra.Block
			rr.Block = &block
			rr.Modulation = ra.Modulation
			rr.Side = ra.Side
			rr.Zone = ra.Zone
		} else {
			rep.Rejected++
		}
		rep.Requests = append(rep.Requests, rr)
	}
	rep.Objective = rep.Accepted
	return rep
}

// WriteJSON renders the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteText renders a human-readable summary.
func (r *Report) WriteText(w io.Writer) error {
	status := "optimal"
	if !r.Proven {
		status = "feasible (budget exhausted before proof)"
	}
	if _, err := fmt.Fprintf(w, "Scenario %s: %d accepted, %d rejected, S_max=%d, %s\n",
		r.Scenario, r.Accepted, r.Rejected, r.SMax, status); err != nil {
		return err
	}
	for _, rr := range r.Requests {
		if rr.Accepted {
			zone := ""
			if rr.Zone != "" {
				zone = " zone=" + rr.Zone
			}
			if _, err := fmt.Fprintf(w, "  %-12s ACCEPT path=%s mod=%s slots=[%d,%d) side=%s%s dist=%.1f\n",
				rr.Request, strings.Join(rr.Path, "-"), rr.Modulation,
				rr.Block.Start, rr.Block.End, rr.Side, zone, rr.Distance); err != nil {
				return err
			}
			continue
		}
		if _, err := fmt.Fprintf(w, "  %-12s REJECT reason=%s\n", rr.Request, rr.Reason); err != nil {
			return err
		}
	}
	return nil
}
