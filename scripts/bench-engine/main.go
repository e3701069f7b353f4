// bench-engine measures worker-pool scaling and peak heap across a
// synthetic chunked analysis run, without touching a real repository.
//
// Usage:
//
//	go run ./scripts/bench-engine --files 5000 --chunk-size 20 \
//	  --workers 1,2,4,8 --cost 2ms --profile-dir /tmp/bench-engine
package main

import (
	"context"
	"flag"
	"fmt"
	"hash/fnv"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"strconv"
	"strings"
	"time"

	"github.com/codescout-dev/codescout/pkg/engine"
)

func main() {
	fileCount := flag.Int("files", 2000, "Number of synthetic files")
	chunkSize := flag.Int("chunk-size", 20, "Files per chunk")
	workersList := flag.String("workers", "1,2,4,0", "Comma-separated worker counts (0 = NumCPU)")
	cost := flag.Duration("cost", 2*time.Millisecond, "Simulated analysis cost per file")
	retries := flag.Int("retries", 1, "Retry attempts per failed chunk")
	profileDir := flag.String("profile-dir", "", "Directory to write pprof profiles (optional)")
	cpuProfile := flag.Bool("cpu-profile", false, "Write CPU profile to profile-dir/cpu.prof")

	flag.Parse()

	if *profileDir != "" {
		if err := os.MkdirAll(*profileDir, 0o755); err != nil {
			log.Fatalf("mkdir profile-dir: %v", err)
		}
	}

	if *cpuProfile {
		if *profileDir == "" {
			log.Fatal("--cpu-profile requires --profile-dir")
		}

		cpuPath := filepath.Join(*profileDir, "cpu.prof")

		cpuFile, cpuErr := os.Create(cpuPath)
		if cpuErr != nil {
			log.Fatalf("create cpu profile: %v", cpuErr)
		}
		defer cpuFile.Close()

		if startErr := pprof.StartCPUProfile(cpuFile); startErr != nil {
			log.Fatalf("start cpu profile: %v", startErr)
		}

		defer pprof.StopCPUProfile()

		log.Printf("CPU profiling enabled -> %s", cpuPath)
	}

	workerCounts, err := parseWorkers(*workersList)
	if err != nil {
		log.Fatalf("parse --workers: %v", err)
	}

	files := synthesizeFiles(*fileCount)
	log.Printf("synthesized %d files", len(files))

	type runResult struct {
		workers int
		report  engine.PerformanceReport
		nodes   int
		heapMB  float64
	}

	var results []runResult

	for _, workers := range workerCounts {
		cfg := engine.DefaultConfig()
		cfg.Planner.ChunkSizeTarget = *chunkSize
		cfg.Planner.FileSizer = syntheticSize
		cfg.Pool.RetryAttempts = *retries

		if workers > 0 {
			cfg.Pool.MaxWorkers = workers
		}

		eng, engErr := engine.New(cfg, engine.Deps{
			Analyze: syntheticAnalyzer(*cost),
		})
		if engErr != nil {
			log.Fatalf("build engine: %v", engErr)
		}

		label := strconv.Itoa(cfg.Pool.MaxWorkers)
		log.Printf("running with %s workers", label)

		combined, report, runErr := eng.Analyze(context.Background(), files)
		if runErr != nil {
			log.Fatalf("analyze with %s workers: %v", label, runErr)
		}

		results = append(results, runResult{
			workers: cfg.Pool.MaxWorkers,
			report:  report,
			nodes:   combined.TotalNodes,
			heapMB:  heapInUseMB(),
		})

		if *profileDir != "" {
			writeHeapProfile(filepath.Join(*profileDir, fmt.Sprintf("heap_workers_%s.prof", label)))
		}
	}

	fmt.Println()
	fmt.Println("=== Worker Pool Scaling ===")
	fmt.Printf("%8s %8s %12s %12s %12s %10s %10s\n",
		"Workers", "Chunks", "WallClock", "AvgChunk", "Efficiency", "Nodes", "Heap(MB)")
	fmt.Println("---------+--------+------------+------------+------------+----------+----------")

	for _, r := range results {
		fmt.Printf("%8d %8d %12s %12s %11.1f%% %10d %10.1f\n",
			r.workers,
			r.report.TotalChunks,
			r.report.WallClock.Round(time.Millisecond),
			r.report.AverageChunkTime.Round(time.Microsecond),
			r.report.ParallelEfficiency*100,
			r.nodes,
			r.heapMB)
	}

	if len(results) > 1 {
		base := results[0].report.WallClock

		fmt.Println()
		fmt.Println("=== Speedup vs First Run ===")

		for _, r := range results[1:] {
			if r.report.WallClock > 0 {
				fmt.Printf("  %d workers: %.2fx\n", r.workers,
					float64(base)/float64(r.report.WallClock))
			}
		}
	}
}

func parseWorkers(s string) ([]int, error) {
	var counts []int

	for _, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("worker count %q: %w", part, err)
		}

		if n < 0 {
			return nil, fmt.Errorf("worker count %d is negative", n)
		}

		counts = append(counts, n)
	}

	if len(counts) == 0 {
		return nil, fmt.Errorf("no worker counts given")
	}

	return counts, nil
}

// synthesizeFiles fabricates a repository-shaped file list. Names cycle
// through directories and extensions so chunk priorities and type
// multipliers vary the way they would on a real tree.
func synthesizeFiles(n int) []string {
	dirs := []string{"api", "core", "storage", "ui", "util"}
	exts := []string{".go", ".ts", ".py", ".js", ".md"}

	files := make([]string, 0, n)

	for i := range n {
		dir := dirs[i%len(dirs)]
		ext := exts[i%len(exts)]

		name := fmt.Sprintf("file_%04d%s", i, ext)
		if i%37 == 0 {
			name = "main" + ext
		} else if i%23 == 0 {
			name = fmt.Sprintf("file_%04d_test%s", i, ext)
		}

		files = append(files, filepath.Join(dir, fmt.Sprintf("mod%02d", i%13), name))
	}

	return files
}

// syntheticSize derives a stable pseudo-size from the path so planning
// stays deterministic across runs.
func syntheticSize(path string) (int64, error) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(path))

	return int64(200 + h.Sum32()%8000), nil
}

// syntheticAnalyzer burns the configured cost per file and emits one
// node and one edge per file so the merger has real work to do.
func syntheticAnalyzer(costPerFile time.Duration) engine.AnalyzeChunk {
	return func(ctx context.Context, chunk engine.Chunk) (engine.AnalysisResult, error) {
		res := engine.AnalysisResult{ChunkID: chunk.ID}

		for _, f := range chunk.Files {
			select {
			case <-ctx.Done():
				return engine.AnalysisResult{}, ctx.Err()
			case <-time.After(costPerFile):
			}

			res.Nodes = append(res.Nodes, engine.GraphNode{
				ID:   "file:" + f,
				Type: "file",
				Name: filepath.Base(f),
			})
			res.Edges = append(res.Edges, engine.GraphEdge{
				Source: "dir:" + filepath.Dir(f),
				Target: "file:" + f,
				Type:   "contains",
			})
		}

		res.Metrics.FilesProcessed = len(chunk.Files)

		return res, nil
	}
}

func heapInUseMB() float64 {
	runtime.GC()
	runtime.GC()

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return float64(m.HeapInuse) / 1e6
}

func writeHeapProfile(path string) {
	runtime.GC()
	runtime.GC()

	f, err := os.Create(path)
	if err != nil {
		log.Printf("warning: create heap profile %s: %v", path, err)

		return
	}
	defer f.Close()

	if err := pprof.WriteHeapProfile(f); err != nil {
		log.Printf("warning: write heap profile %s: %v", path, err)
	}
}
