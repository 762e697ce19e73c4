// SPDX-License-Identifier: MIT

// Command perf times full workspace scans against a synthetic projects folder
// and appends the results to a JSONL history so regressions show up as deltas.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/skaphos/repobar/internal/engine"
)

type scanMetric struct {
	Repos    int     `json:"repos"`
	MinMs    float64 `json:"min_ms"`
	MedianMs float64 `json:"median_ms"`
	MaxMs    float64 `json:"max_ms"`
}

type scanRunRecord struct {
	Timestamp   string                `json:"timestamp"`
	Commit      string                `json:"commit"`
	Runs        int                   `json:"runs"`
	Concurrency int                   `json:"concurrency"`
	Scenarios   map[string]scanMetric `json:"scenarios"`
}

func main() {
	historyPath := flag.String("history", "perf/history.jsonl", "path to scan timing history jsonl")
	workspace := flag.String("workspace", "", "reuse this synthetic workspace instead of a temp dir")
	repos := flag.Int("repos", 40, "number of working copies to generate")
	runs := flag.Int("runs", 5, "scans per scenario")
	concurrency := flag.Int("concurrency", 0, "scan concurrency (0 uses the engine default)")
	flag.Parse()

	root := *workspace
	if root == "" {
		tmp, err := os.MkdirTemp("", "repobar-perf-*")
		if err != nil {
			fail("create workspace: %v", err)
		}
		defer func() { _ = os.RemoveAll(tmp) }()
		root = tmp
	}
	projects, err := seedWorkspace(root, *repos)
	if err != nil {
		fail("seed workspace: %v", err)
	}

	eng := engine.New(engine.Options{Concurrency: *concurrency})
	record := scanRunRecord{
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Commit:      gitShortCommit(),
		Runs:        *runs,
		Concurrency: *concurrency,
		Scenarios:   map[string]scanMetric{},
	}
	for _, scenario := range []struct {
		name string
		req  engine.ScanRequest
	}{
		{name: "classify", req: engine.ScanRequest{Root: projects, MaxDepth: 2}},
		{name: "autosync", req: engine.ScanRequest{Root: projects, MaxDepth: 2, AutoSync: true}},
	} {
		metric, err := timeScans(eng, scenario.req, *runs)
		if err != nil {
			fail("%s scan: %v", scenario.name, err)
		}
		record.Scenarios[scenario.name] = metric
	}

	previous, _ := loadLastRecord(*historyPath)
	if err := appendRecord(*historyPath, record); err != nil {
		fail("append history: %v", err)
	}
	fmt.Printf("updated scan history: %s\n", *historyPath)
	printSummary(record, previous)
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func timeScans(eng *engine.Engine, req engine.ScanRequest, runs int) (scanMetric, error) {
	samples := make([]float64, 0, runs)
	metric := scanMetric{}
	for i := 0; i < runs; i++ {
		start := time.Now()
		snapshot, err := eng.Scan(context.Background(), req)
		if err != nil {
			return metric, err
		}
		samples = append(samples, float64(time.Since(start).Microseconds())/1000)
		metric.Repos = len(snapshot.Statuses)
	}
	return summarize(metric, samples), nil
}

func summarize(metric scanMetric, samples []float64) scanMetric {
	if len(samples) == 0 {
		return metric
	}
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)
	metric.MinMs = sorted[0]
	metric.MaxMs = sorted[len(sorted)-1]
	metric.MedianMs = sorted[len(sorted)/2]
	return metric
}

// seedWorkspace creates one bare origin and n clones of it spread over two
// owner folders, so the scan walks the same depth a real projects folder has.
// An existing workspace is reused as is.
func seedWorkspace(root string, n int) (string, error) {
	projects := filepath.Join(root, "projects")
	if _, err := os.Stat(projects); err == nil {
		return projects, nil
	}
	origin := filepath.Join(root, "origin.git")
	seed := filepath.Join(root, "seed")
	steps := [][]string{
		{"init", "-q", "--bare", "-b", "main", origin},
		{"clone", "-q", origin, seed},
	}
	for _, args := range steps {
		if err := git("", args...); err != nil {
			return "", err
		}
	}
	if err := os.WriteFile(filepath.Join(seed, "README.md"), []byte("seed\n"), 0o644); err != nil {
		return "", err
	}
	for _, args := range [][]string{{"add", "README.md"}, {"commit", "-q", "-m", "seed"}, {"push", "-q", "-u", "origin", "main"}} {
		if err := git(seed, args...); err != nil {
			return "", err
		}
	}
	for i := 0; i < n; i++ {
		dest := filepath.Join(projects, fmt.Sprintf("owner-%d", i%2), fmt.Sprintf("repo-%03d", i))
		if err := git("", "clone", "-q", origin, dest); err != nil {
			return "", err
		}
	}
	return projects, nil
}

func git(dir string, args ...string) error {
	base := []string{"-c", "user.name=perf", "-c", "user.email=perf@example.com", "-c", "commit.gpgsign=false"}
	cmd := exec.Command("git", append(base, args...)...)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("git %s: %w\n%s", strings.Join(args, " "), err, out)
	}
	return nil
}

func gitShortCommit() string {
	out, err := exec.Command("git", "rev-parse", "--short", "HEAD").Output()
	if err != nil {
		return "unknown"
	}
	return strings.TrimSpace(string(out))
}

func appendRecord(path string, record scanRunRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	line, err := json.Marshal(record)
	if err != nil {
		return err
	}
	_, err = f.Write(append(line, '\n'))
	return err
}

func loadLastRecord(path string) (*scanRunRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	scanner := bufio.NewScanner(f)
	var last string
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			last = line
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if last == "" {
		return nil, fmt.Errorf("history file is empty")
	}
	var record scanRunRecord
	if err := json.Unmarshal([]byte(last), &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func printSummary(current scanRunRecord, previous *scanRunRecord) {
	fmt.Println("scan summary (median ms):")
	names := make([]string, 0, len(current.Scenarios))
	for name := range current.Scenarios {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		metric := current.Scenarios[name]
		line := fmt.Sprintf("  %-12s %4d repos  %8.2f", name, metric.Repos, metric.MedianMs)
		if previous != nil {
			if prev, ok := previous.Scenarios[name]; ok && prev.MedianMs > 0 {
				line += fmt.Sprintf(" (%+.2f%% vs previous)", (metric.MedianMs-prev.MedianMs)/prev.MedianMs*100)
			}
		}
		fmt.Println(line)
	}
}
