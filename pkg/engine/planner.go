package engine

import (
	"cmp"
	"fmt"
	"math"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
)

// Planner defaults.
const (
	// DefaultChunkSizeTarget bounds chunk file counts. Twenty files keeps
	// per-chunk analysis latency low enough for useful progress feedback.
	DefaultChunkSizeTarget = 20

	// DefaultBaseWeight scales every per-file complexity estimate.
	DefaultBaseWeight = 1.0

	// DefaultDependencyLimit caps how many dependencies of a single file
	// the planner follows while growing a chunk. Deep fan-out past this
	// point stops improving chunk cohesion.
	DefaultDependencyLimit = 8

	// DefaultMediumComplexity and DefaultHighComplexity are the
	// accumulated-complexity thresholds for priority classification.
	DefaultMediumComplexity = 10.0
	DefaultHighComplexity   = 25.0

	// DefaultRedistributeUpper and DefaultRedistributeLower bound the
	// post-planning balancing pass: a chunk above target*upper sheds its
	// excess into an adjacent chunk below target*lower.
	DefaultRedistributeUpper = 1.5
	DefaultRedistributeLower = 0.5
)

// complexitySizeUnit normalizes file sizes before the log10 estimate, so
// a 1 KB file scores zero before flooring.
const complexitySizeUnit = 1000.0

// minFileComplexity floors every measurable file's estimate.
const minFileComplexity = 1.0

// DefaultTypeMultipliers returns the extension weights applied to
// complexity estimates. Unknown extensions weigh 1.0.
func DefaultTypeMultipliers() map[string]float64 {
	return map[string]float64{
		".ts":   1.5,
		".tsx":  1.6,
		".js":   1.3,
		".jsx":  1.4,
		".go":   1.2,
		".py":   1.3,
		".rs":   1.5,
		".java": 1.4,
		".c":    1.3,
		".cpp":  1.5,
		".md":   0.5,
		".json": 0.3,
		".yaml": 0.4,
		".yml":  0.4,
	}
}

// defaultHighPatterns flag entry points and other load-bearing files.
func defaultHighPatterns() []string {
	return []string{"main", "index", "app", "server", "cmd"}
}

// defaultMediumPatterns flag configuration and wiring files.
func defaultMediumPatterns() []string {
	return []string{"config", "settings", "handler", "service", "router"}
}

// PlannerConfig tunes chunk construction. Zero values are replaced by
// defaults during validation where noted.
type PlannerConfig struct {
	// ChunkSizeTarget is the file-count cap per chunk. Must be >= 1.
	ChunkSizeTarget int

	// BaseWeight scales all complexity estimates. Must be > 0.
	BaseWeight float64

	// TypeMultipliers maps lowercase file extensions (".ts") to
	// complexity weights. Missing entries default to 1.0.
	TypeMultipliers map[string]float64

	// MediumComplexity and HighComplexity are the priority thresholds.
	// Medium must not exceed High.
	MediumComplexity float64
	HighComplexity   float64

	// HighPriorityPatterns and MediumPriorityPatterns match against file
	// base names: glob syntax when the pattern contains metacharacters,
	// substring match otherwise.
	HighPriorityPatterns   []string
	MediumPriorityPatterns []string

	// DependencyLimit caps dependencies followed per file. Zero means
	// unlimited.
	DependencyLimit int

	// RedistributeUpper and RedistributeLower are the balancing-pass
	// multipliers. Lower must not exceed Upper.
	RedistributeUpper float64
	RedistributeLower float64

	// FileSizer measures a file's byte size. Defaults to os.Stat. Files
	// it fails on stay in their chunk but contribute nothing to size or
	// complexity.
	FileSizer func(path string) (int64, error)
}

// DefaultPlannerConfig returns the planner defaults.
func DefaultPlannerConfig() PlannerConfig {
	return PlannerConfig{
		ChunkSizeTarget:        DefaultChunkSizeTarget,
		BaseWeight:             DefaultBaseWeight,
		TypeMultipliers:        DefaultTypeMultipliers(),
		MediumComplexity:       DefaultMediumComplexity,
		HighComplexity:         DefaultHighComplexity,
		HighPriorityPatterns:   defaultHighPatterns(),
		MediumPriorityPatterns: defaultMediumPatterns(),
		DependencyLimit:        DefaultDependencyLimit,
		RedistributeUpper:      DefaultRedistributeUpper,
		RedistributeLower:      DefaultRedistributeLower,
	}
}

// validate rejects unusable planner parameters.
func (c PlannerConfig) validate() error {
	if c.ChunkSizeTarget < 1 {
		return fmt.Errorf("%w: chunkSizeTarget must be >= 1, got %d", ErrInvalidConfig, c.ChunkSizeTarget)
	}

	if c.BaseWeight <= 0 {
		return fmt.Errorf("%w: baseWeight must be > 0, got %g", ErrInvalidConfig, c.BaseWeight)
	}

	if c.MediumComplexity > c.HighComplexity {
		return fmt.Errorf("%w: medium complexity threshold %g exceeds high threshold %g",
			ErrInvalidConfig, c.MediumComplexity, c.HighComplexity)
	}

	if c.DependencyLimit < 0 {
		return fmt.Errorf("%w: dependencyLimit must be >= 0, got %d", ErrInvalidConfig, c.DependencyLimit)
	}

	if c.RedistributeLower > c.RedistributeUpper {
		return fmt.Errorf("%w: redistribution lower multiplier %g exceeds upper %g",
			ErrInvalidConfig, c.RedistributeLower, c.RedistributeUpper)
	}

	return nil
}

// Planner groups files into bounded, dependency-aware chunks.
type Planner struct {
	cfg PlannerConfig
}

// NewPlanner validates cfg and returns a planner. A nil FileSizer is
// replaced with os.Stat.
func NewPlanner(cfg PlannerConfig) (*Planner, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if cfg.FileSizer == nil {
		cfg.FileSizer = statSize
	}

	return &Planner{cfg: cfg}, nil
}

// statSize is the default FileSizer.
func statSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}

	return info.Size(), nil
}

// CreateChunks groups files into chunks, estimates their complexity,
// classifies priority, and runs one redistribution pass. Every input
// file lands in exactly one chunk; planning is deterministic for
// identical inputs and file sizes.
//
// A nil lookup falls back to SameDirLookup.
func (p *Planner) CreateChunks(files []string, lookup DependencyLookup) []Chunk {
	if len(files) == 0 {
		return nil
	}

	if lookup == nil {
		lookup = SameDirLookup
	}

	depMap := lookup(files)

	inSet := make(map[string]bool, len(files))
	for _, f := range files {
		inSet[f] = true
	}

	groups := p.groupFiles(files, depMap, inSet)

	chunks := make([]Chunk, 0, len(groups))
	for _, group := range groups {
		chunks = append(chunks, p.buildChunk(group, depMap))
	}

	p.redistribute(chunks)

	// IDs follow the final (complexity-sorted) plan order.
	for i := range chunks {
		chunks[i].ID = fmt.Sprintf("chunk-%d", i)
	}

	return chunks
}

// groupFiles grows chunks breadth-first from each unprocessed seed,
// absorbing in-set dependencies until the chunk hits the size target or
// the frontier empties. Seeds follow input order, which keeps grouping
// deterministic.
func (p *Planner) groupFiles(files []string, depMap map[string][]string, inSet map[string]bool) [][]string {
	processed := make(map[string]bool, len(files))

	var groups [][]string

	for _, seed := range files {
		if processed[seed] {
			continue
		}

		group := make([]string, 0, p.cfg.ChunkSizeTarget)
		queue := []string{seed}

		for len(queue) > 0 && len(group) < p.cfg.ChunkSizeTarget {
			file := queue[0]
			queue = queue[1:]

			if processed[file] {
				continue
			}

			processed[file] = true
			group = append(group, file)

			for i, dep := range depMap[file] {
				if p.cfg.DependencyLimit > 0 && i >= p.cfg.DependencyLimit {
					break
				}

				if inSet[dep] && !processed[dep] {
					queue = append(queue, dep)
				}
			}
		}

		groups = append(groups, group)
	}

	return groups
}

// buildChunk fills in size, complexity, priority and the external
// dependency list for one file group.
func (p *Planner) buildChunk(group []string, depMap map[string][]string) Chunk {
	member := make(map[string]bool, len(group))
	for _, f := range group {
		member[f] = true
	}

	var (
		complexity float64
		totalSize  int64
		external   []string
	)

	seen := make(map[string]bool)

	for _, file := range group {
		size, err := p.cfg.FileSizer(file)
		if err == nil {
			complexity += p.fileComplexity(file, size)
			totalSize += size
		}

		for _, dep := range depMap[file] {
			if !member[dep] && !seen[dep] {
				seen[dep] = true
				external = append(external, dep)
			}
		}
	}

	slices.Sort(external)

	return Chunk{
		Files:               group,
		Priority:            p.classify(group, complexity),
		EstimatedComplexity: complexity,
		Dependencies:        external,
		TotalSize:           totalSize,
	}
}

// fileComplexity estimates one file: log10(size/unit) * baseWeight *
// extension multiplier, floored at minFileComplexity.
func (p *Planner) fileComplexity(file string, size int64) float64 {
	mult, ok := p.cfg.TypeMultipliers[strings.ToLower(filepath.Ext(file))]
	if !ok {
		mult = 1.0
	}

	estimate := math.Log10(float64(size)/complexitySizeUnit) * p.cfg.BaseWeight * mult

	return math.Max(estimate, minFileComplexity)
}

// classify picks the chunk priority from signal patterns and accumulated
// complexity.
func (p *Planner) classify(group []string, complexity float64) Priority {
	if matchesAny(group, p.cfg.HighPriorityPatterns) || complexity > p.cfg.HighComplexity {
		return PriorityHigh
	}

	if matchesAny(group, p.cfg.MediumPriorityPatterns) || complexity > p.cfg.MediumComplexity {
		return PriorityMedium
	}

	return PriorityLow
}

// matchesAny reports whether any file's base name matches any pattern.
func matchesAny(group, patterns []string) bool {
	for _, file := range group {
		base := filepath.Base(file)

		for _, pat := range patterns {
			if matchPattern(base, pat) {
				return true
			}
		}
	}

	return false
}

// matchPattern uses glob semantics when pat carries metacharacters and
// substring match otherwise.
func matchPattern(base, pat string) bool {
	if strings.ContainsAny(pat, "*?[") {
		ok, err := path.Match(pat, base)
		return err == nil && ok
	}

	return strings.Contains(base, pat)
}

// redistribute runs the single post-planning balancing pass: chunks are
// sorted by complexity ascending, then each oversized chunk sheds the
// files beyond the size target into an undersized right neighbor, moving
// a proportional share of its complexity estimate along.
func (p *Planner) redistribute(chunks []Chunk) {
	if len(chunks) < 2 {
		return
	}

	slices.SortStableFunc(chunks, func(a, b Chunk) int {
		return cmp.Compare(a.EstimatedComplexity, b.EstimatedComplexity)
	})

	upper := float64(p.cfg.ChunkSizeTarget) * p.cfg.RedistributeUpper
	lower := float64(p.cfg.ChunkSizeTarget) * p.cfg.RedistributeLower

	for i := 0; i+1 < len(chunks); i++ {
		left, right := &chunks[i], &chunks[i+1]

		if float64(len(left.Files)) <= upper || float64(len(right.Files)) >= lower {
			continue
		}

		excess := len(left.Files) - p.cfg.ChunkSizeTarget
		if excess <= 0 {
			continue
		}

		fraction := float64(excess) / float64(len(left.Files))
		shift := left.EstimatedComplexity * fraction

		right.Files = append(right.Files, left.Files[len(left.Files)-excess:]...)
		left.Files = left.Files[:len(left.Files)-excess]

		left.EstimatedComplexity -= shift
		right.EstimatedComplexity += shift
	}
}

// SameDirLookup is the default dependency heuristic: files depend on
// other input files in the same directory or sharing their basename stem
// (foo.ts and foo.test.ts). Advisory only; callers with a real import
// graph should supply their own lookup.
func SameDirLookup(files []string) map[string][]string {
	byDir := make(map[string][]string)
	byStem := make(map[string][]string)

	for _, f := range files {
		dir := filepath.Dir(f)
		byDir[dir] = append(byDir[dir], f)

		stem := baseStem(f)
		byStem[stem] = append(byStem[stem], f)
	}

	deps := make(map[string][]string, len(files))

	for _, f := range files {
		var related []string

		seen := map[string]bool{f: true}

		for _, other := range byStem[baseStem(f)] {
			if !seen[other] {
				seen[other] = true
				related = append(related, other)
			}
		}

		for _, other := range byDir[filepath.Dir(f)] {
			if !seen[other] {
				seen[other] = true
				related = append(related, other)
			}
		}

		deps[f] = related
	}

	return deps
}

// baseStem strips every extension layer from a file's base name, so
// "store.test.ts" and "store.ts" share the stem "store".
func baseStem(file string) string {
	base := filepath.Base(file)

	if idx := strings.IndexByte(base, '.'); idx > 0 {
		return base[:idx]
	}

	return base
}
