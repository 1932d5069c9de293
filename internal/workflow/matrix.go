package workflow

// Cell is one concrete (os, runtime version) execution instance of a
// stage.
type Cell struct {
	OS      string `yaml:"os"`
	Version string `yaml:"version"`
}

func (c Cell) IsZero() bool {
	return c.OS == "" && c.Version == ""
}

// Label is used for cell log headers and artifact object keys.
func (c Cell) Label() string {
	switch {
	case c.IsZero():
		return "default"
	case c.Version == "":
		return c.OS
	default:
		return c.OS + "-" + c.Version
	}
}

// Expand returns the cross product of the matrix dimensions minus the
// declared exclusions, as an explicit set difference. The result is a
// pure function of the declared lists: os-major, version-minor order,
// exclusions removed, never executed. A nil matrix expands to the
// single default cell.
func (m *Matrix) Expand() []Cell {
	if m == nil || (len(m.OS) == 0 && len(m.Version) == 0) {
		return []Cell{{}}
	}

	oses := m.OS
	if len(oses) == 0 {
		oses = []string{""}
	}
	versions := m.Version
	if len(versions) == 0 {
		versions = []string{""}
	}

	excluded := make(map[Cell]struct{}, len(m.Exclude))
	for _, ex := range m.Exclude {
		excluded[ex] = struct{}{}
	}

	cells := make([]Cell, 0, len(oses)*len(versions))
	for _, os := range oses {
		for _, version := range versions {
			cell := Cell{OS: os, Version: version}
			if _, ok := excluded[cell]; ok {
				continue
			}
			cells = append(cells, cell)
		}
	}
	return cells
}
