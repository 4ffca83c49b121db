package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/signalsfoundry/rsa-planner/core"
)

func sampleInputs() (*core.Assignment, map[string][]core.CandidatePath) {
	l01 := &core.Link{ID: "l01", A: "0", B: "1", Distance: 200}
	l12 := &core.Link{ID: "l12", A: "1", B: "2", Distance: 300}
	paths := map[string][]core.CandidatePath{
		"r1": {{
			Request:  "r1",
			Nodes:    []string{"0", "1", "2"},
			Links:    []*core.Link{l01, l12},
			Distance: 500,
		}},
		"r2": {},
	}
	asg := &core.Assignment{
		Requests: []*core.RequestAssignment{
			{
				Request:    "r1",
				Accepted:   true,
				PathIndex:  0,
				Modulation: "m2",
				Block:      core.SpectrumBlock{Start: 0, End: 8},
				Side:       core.SideLeft,
			},
			{
				Request: "r2",
				Reason:  core.ReasonNoFeasiblePath,
			},
		},
		SMax: 8,
	}
	return asg, paths
}

func TestBuild_CountsAndPerRequestDetail(t *testing.T) {
	asg, paths := sampleInputs()
	rep := Build("demo.json", asg, paths, true)

	if rep.Accepted != 1 || rep.Rejected != 1 || rep.Objective != 1 {
		t.Fatalf("counts wrong: accepted=%d rejected=%d objective=%d",
			rep.Accepted, rep.Rejected, rep.Objective)
	}
	if rep.SMax != 8 || !rep.Proven {
		t.Fatalf("summary wrong: smax=%d proven=%v", rep.SMax, rep.Proven)
	}

	var r1 *RequestResult
	for i := range rep.Requests {
		if rep.Requests[i].Request == "r1" {
			r1 = &rep.Requests[i]
		}
	}
	if r1 == nil {
		t.Fatal("r1 missing from report")
	}
	if strings.Join(r1.Path, "-") != "0-1-2" || r1.Distance != 500 {
		t.Fatalf("r1 path detail wrong: %+v", r1)
	}
	if len(r1.Links) != 2 || r1.Links[0] != "l01" {
		t.Fatalf("r1 link detail wrong: %v", r1.Links)
	}
	if r1.Block == nil || r1.Block.Len() != 8 {
		t.Fatalf("r1 block detail wrong: %+v", r1.Block)
	}
}

func TestWriteJSON_RoundTripsAndOmitsRejectDetail(t *testing.T) {
	asg, paths := sampleInputs()
	rep := Build("demo.json", asg, paths, false)

	var buf bytes.Buffer
	if err := rep.WriteJSON(&buf); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	var decoded Report
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("report JSON does not parse: %v", err)
	}
	if decoded.Scenario != "demo.json" || decoded.Accepted != 1 || decoded.Proven {
		t.Fatalf("decoded report wrong: %+v", decoded)
	}

	// The rejected request must not carry placement fields.
	if strings.Contains(buf.String(), `"r2"`) == false {
		t.Fatal("rejected request missing from JSON")
	}
	var raw map[string]any
	if err := json.Unmarshal(buf.Bytes(), &raw); err != nil {
		t.Fatal(err)
	}
	for _, entry := range raw["requests"].([]any) {
		m := entry.(map[string]any)
		if m["request"] == "r2" {
			if _, ok := m["block"]; ok {
				t.Fatal("rejected request serialized a block")
			}
			if m["reason"] != string(core.ReasonNoFeasiblePath) {
				t.Fatalf("rejected request reason = %v", m["reason"])
			}
		}
	}
}

func TestWriteText_SummaryLines(t *testing.T) {
	asg, paths := sampleInputs()
	rep := Build("demo.json", asg, paths, true)

	var buf bytes.Buffer
	if err := rep.WriteText(&buf); err != nil {
		t.Fatalf("WriteText failed: %v", err)
	}
	out := buf.String()

	if !strings.Contains(out, "Scenario demo.json: 1 accepted, 1 rejected, S_max=8, optimal") {
		t.Fatalf("summary line missing, got:\n%s", out)
	}
	if !strings.Contains(out, "ACCEPT path=0-1-2 mod=m2 slots=[0,8) side=left") {
		t.Fatalf("accept line missing, got:\n%s", out)
	}
	if !strings.Contains(out, "REJECT reason=no_feasible_path") {
		t.Fatalf("reject line missing, got:\n%s", out)
	}

	unproven := Build("demo.json", asg, paths, false)
	buf.Reset()
	if err := unproven.WriteText(&buf); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "budget exhausted") {
		t.Fatalf("unproven status missing, got:\n%s", buf.String())
	}
}
