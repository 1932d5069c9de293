package workflow

// Workflow is the parsed form of a repository's stageflow script. The
// stages form a DAG through their "needs" lists; stages without an
// explicit when-predicate run for every trigger.
type Workflow struct {
	Stages []Stage `yaml:"stages"`
}

type Stage struct {
	Stage          string   `yaml:"stage"`
	Needs          []string `yaml:"needs"`
	When           *When    `yaml:"when"`
	Matrix         *Matrix  `yaml:"matrix"`
	TimeoutSeconds int64    `yaml:"timeout_seconds"`
	Steps          []Step   `yaml:"steps"`
	Cache          *Cache   `yaml:"cache"`
	Secrets        []string `yaml:"secrets"`
	Workers        int64    `yaml:"workers"`
	WindowsWorkers int64    `yaml:"windows_workers"`
	Coverage       string   `yaml:"coverage"`
	CoverageFile   string   `yaml:"coverage_file"`
	Notify         *Notify  `yaml:"notify"`
	Publish        *Publish `yaml:"publish"`
	Artifacts      string   `yaml:"artifacts"`
}

type Step struct {
	Step           string `yaml:"step"`
	Script         string `yaml:"script"`
	TimeoutSeconds int64  `yaml:"timeout_seconds"`
	// Install steps are skipped when the stage's cache key hit. The
	// cache is advisory: skipping an install never changes the outcome
	// of the remaining steps, only their wall clock.
	Install bool `yaml:"install"`
}

type When struct {
	Events   []string `yaml:"events"`
	Branches []string `yaml:"branches"`
	Tags     []string `yaml:"tags"`
}

type Matrix struct {
	OS      []string `yaml:"os"`
	Version []string `yaml:"version"`
	Exclude []Cell   `yaml:"exclude"`
}

type Cache struct {
	Files []string `yaml:"files"`
}

// Notify fires a downstream CI build over HTTP after the stage's
// predecessors succeed.
type Notify struct {
	Branch string `yaml:"branch"`
}

// Publish uploads the distribution files found under Dist (on the
// agent, relative to the repository root) to the package index.
type Publish struct {
	Dist string `yaml:"dist"`
}

// WorkersFor returns the test worker count for a matrix cell,
// reduced on windows agents where forked test isolation is not
// available. A positive override (from settings) wins.
func (s *Stage) WorkersFor(osName string, override int64) int64 {
	if override > 0 {
		return override
	}
	if s.Workers == 0 {
		return 1
	}
	if IsWindows(osName) && s.WindowsWorkers > 0 {
		return s.WindowsWorkers
	}
	return s.Workers
}

func IsWindows(osName string) bool {
	return len(osName) >= 7 && osName[:7] == "windows"
}
