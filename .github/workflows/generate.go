// Command generate prints the CI workflow for the ext2fs module. Regenerate
// with `go run ./.github/workflows > .github/workflows/ci.yaml`.
package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

type PushTrigger struct {
	Branches []string `yaml:"branches,omitempty"`
	Tags     []string `yaml:"tags,omitempty"`
}

type Trigger struct {
	Push        PushTrigger `yaml:"push,omitempty"`
	PullRequest struct{}    `yaml:"pull_request"`
}

type Args map[string]interface{}

type Step struct {
	Name string `yaml:"name,omitempty"`
	If   string `yaml:"if,omitempty"`
	Uses string `yaml:"uses,omitempty"`
	ID   string `yaml:"id,omitempty"`
	Run  string `yaml:"run,omitempty"`
	With Args   `yaml:"with,omitempty"`
	Env  Args   `yaml:"env,omitempty"`
}

type Strategy struct {
	Matrix map[string][]string `yaml:"matrix"`
}

type Job struct {
	RunsOn   string            `yaml:"runs-on"`
	Needs    []string          `yaml:"needs,omitempty"`
	If       string            `yaml:"if,omitempty"`
	Strategy *Strategy         `yaml:"strategy,omitempty"`
	Services map[string]Args   `yaml:"services,omitempty"`
	Env      map[string]string `yaml:"env,omitempty"`
	Steps    []Step            `yaml:"steps"`
}

type Workflow struct {
	Name string  `yaml:"name"`
	On   Trigger `yaml:"on,omitempty"`
	Jobs map[string]Job
}

// Target is a binary built for every platform in the release matrix.
type Target struct {
	// Name of the release artifact and the binary.
	Name string

	// Package is the main package, relative to the module root.
	Package string
}

func WorkflowCI(targets ...Target) Workflow {
	jobs := map[string]Job{"test": JobTest()}
	for _, target := range targets {
		jobs["release-"+target.Name] = JobRelease(target)
	}
	return Workflow{
		Name: "ci",
		On: Trigger{
			Push: PushTrigger{
				Branches: []string{"*"},
				Tags:     []string{"v*"},
			},
		},
		Jobs: jobs,
	}
}

func setup() []Step {
	return []Step{{
		Name: "Checkout",
		Uses: "actions/checkout@v4",
	}, {
		Name: "Set up Go",
		Uses: "actions/setup-go@v5",
		With: Args{"go-version-file": "go.mod"},
	}}
}

// JobTest runs the unit tests with a postgres service so the postgres
// device tests don't skip.
func JobTest() Job {
	return Job{
		RunsOn: "ubuntu-latest",
		Services: map[string]Args{
			"postgres": {
				"image": "postgres:16",
				"env":   Args{"POSTGRES_PASSWORD": "postgres"},
				"ports": []string{"5432:5432"},
				"options": "--health-cmd pg_isready --health-interval 5s " +
					"--health-timeout 5s --health-retries 10",
			},
		},
		Env: map[string]string{
			"PG_HOST": "localhost",
			"PG_PASS": "postgres",
		},
		Steps: append(setup(), Step{
			Name: "Vet",
			Run:  "go vet ./...",
		}, Step{
			Name: "Test",
			Run:  "go test -race ./...",
		}),
	}
}

func JobRelease(target Target) Job {
	return Job{
		RunsOn: "ubuntu-latest",
		Needs:  []string{"test"},
		If:     "startsWith(github.ref, 'refs/tags/')",
		Strategy: &Strategy{Matrix: map[string][]string{
			"goarch": {"amd64", "arm64"},
		}},
		Steps: append(setup(), Step{
			Name: "Build",
			Run: fmt.Sprintf(
				"go build -o %s-linux-${{ matrix.goarch }} %s",
				target.Name,
				target.Package,
			),
			Env: Args{
				"GOOS":        "linux",
				"GOARCH":      "${{ matrix.goarch }}",
				"CGO_ENABLED": "0",
			},
		}, Step{
			Name: "Upload",
			Uses: "actions/upload-artifact@v4",
			With: Args{
				"name": fmt.Sprintf("%s-linux-${{ matrix.goarch }}", target.Name),
				"path": fmt.Sprintf("%s-linux-${{ matrix.goarch }}", target.Name),
			},
		}),
	}
}

func MarshalToWriter(w io.Writer, v interface{}) error {
	yamlEncoder := yaml.NewEncoder(w)
	yamlEncoder.SetIndent(2)
	if err := yamlEncoder.Encode(v); err != nil {
		return fmt.Errorf("marshaling to YAML: %w", err)
	}
	return nil
}

func main() {
	if err := MarshalToWriter(
		os.Stdout,
		WorkflowCI(Target{Name: "ext2fs", Package: "./cmd/ext2fs"}),
	); err != nil {
		log.Fatalf("marshaling ci workflow: %v", err)
	}
}
