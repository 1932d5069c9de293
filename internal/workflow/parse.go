package workflow

import (
	"fmt"

	"github.com/goccy/go-yaml"
)

// Parse unmarshals and validates a stageflow script.
func Parse(b []byte) (*Workflow, error) {
	wf := new(Workflow)
	if err := yaml.Unmarshal(b, wf); err != nil {
		return nil, fmt.Errorf("err unmarshaling workflow yaml: %w", err)
	}
	if err := wf.Validate(); err != nil {
		return nil, err
	}
	return wf, nil
}

func (wf *Workflow) Validate() error {
	if len(wf.Stages) == 0 {
		return fmt.Errorf("workflow has no stages")
	}

	names := make(map[string]struct{}, len(wf.Stages))
	for _, s := range wf.Stages {
		if s.Stage == "" {
			return fmt.Errorf("workflow has a stage without a name")
		}
		if _, ok := names[s.Stage]; ok {
			return fmt.Errorf("duplicate stage name %q", s.Stage)
		}
		names[s.Stage] = struct{}{}
	}

	for _, s := range wf.Stages {
		for _, need := range s.Needs {
			if _, ok := names[need]; !ok {
				return fmt.Errorf("stage %q needs unknown stage %q", s.Stage, need)
			}
			if need == s.Stage {
				return fmt.Errorf("stage %q needs itself", s.Stage)
			}
		}
		if s.Matrix != nil {
			for _, ex := range s.Matrix.Exclude {
				if ex.OS == "" || ex.Version == "" {
					return fmt.Errorf(
						"stage %q has a matrix exclusion without both os and version",
						s.Stage,
					)
				}
			}
		}
	}

	if _, err := wf.TopoOrder(); err != nil {
		return err
	}

	return nil
}

// StageByName returns nil when no stage has the given name.
func (wf *Workflow) StageByName(name string) *Stage {
	for i := range wf.Stages {
		if wf.Stages[i].Stage == name {
			return &wf.Stages[i]
		}
	}
	return nil
}

// TopoOrder returns the stages in an order where every stage comes
// after all of its predecessors. The order is deterministic: among
// ready stages, declaration order wins. A dependency cycle is an
// error.
func (wf *Workflow) TopoOrder() ([]*Stage, error) {
	indegree := make(map[string]int, len(wf.Stages))
	for _, s := range wf.Stages {
		indegree[s.Stage] = len(s.Needs)
	}

	order := make([]*Stage, 0, len(wf.Stages))
	done := make(map[string]struct{}, len(wf.Stages))
	for len(order) < len(wf.Stages) {
		progressed := false
		for i := range wf.Stages {
			s := &wf.Stages[i]
			if _, ok := done[s.Stage]; ok {
				continue
			}
			if indegree[s.Stage] > 0 {
				continue
			}
			order = append(order, s)
			done[s.Stage] = struct{}{}
			for j := range wf.Stages {
				for _, need := range wf.Stages[j].Needs {
					if need == s.Stage {
						indegree[wf.Stages[j].Stage]--
					}
				}
			}
			progressed = true
		}
		if !progressed {
			return nil, fmt.Errorf("workflow has a stage dependency cycle")
		}
	}
	return order, nil
}
