package environment

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"

	"ellipflow/core/models"

	"github.com/kballard/go-shellquote"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// SubmitRequest is one (job, operation) pair to hand to the batch scheduler
type SubmitRequest struct {
	JobID      string
	Operation  string
	Directives models.Directives
	WorkDir    string
	// Command run inside the allocation, e.g. ["ellipflow", "exec", "run", "<id>"]
	Command []string
}

// Submitter renders batch scripts and passes them to sbatch
type Submitter struct {
	Env       *Environment
	Partition string // overrides Env.Partition when set
	Sbatch    string
}

// NewSubmitter creates a submitter for the environment
func NewSubmitter(env *Environment, partition string) *Submitter {
	return &Submitter{
		Env:       env,
		Partition: partition,
		Sbatch:    "sbatch",
	}
}

var submittedRe = regexp.MustCompile(`Submitted batch job (\d+)`)

// Script renders the batch script for a request
func (s *Submitter) Script(req SubmitRequest) string {
	partition := s.Partition
	if partition == "" && s.Env != nil {
		partition = s.Env.Partition
	}

	var b strings.Builder
	b.WriteString("#!/bin/bash\n")
	fmt.Fprintf(&b, "#SBATCH --job-name=%s-%s\n", req.Operation, shortID(req.JobID))
	if partition != "" {
		fmt.Fprintf(&b, "#SBATCH --partition=%s\n", partition)
	}
	if req.Directives.NGPU > 0 {
		fmt.Fprintf(&b, "#SBATCH --gres=gpu:%d\n", req.Directives.NGPU)
	}
	ncpu := req.Directives.NCPU
	if ncpu < 1 {
		ncpu = 1
	}
	fmt.Fprintf(&b, "#SBATCH --ntasks=1\n#SBATCH --cpus-per-task=%d\n", ncpu)
	if req.WorkDir != "" {
		fmt.Fprintf(&b, "#SBATCH --output=%s/%s-%%j.out\n", req.WorkDir, req.Operation)
	}
	b.WriteString("\nset -e\n")
	fmt.Fprintf(&b, "%s\n", shellquote.Join(req.Command...))
	return b.String()
}

// Submit pipes the rendered script to sbatch and returns the scheduler job id
func (s *Submitter) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	script := s.Script(req)

	cmd := exec.CommandContext(ctx, s.Sbatch)
	cmd.Stdin = strings.NewReader(script)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", errors.Wrapf(err, "sbatch failed for %s on job %s: %s", req.Operation, req.JobID, strings.TrimSpace(stderr.String()))
	}

	m := submittedRe.FindStringSubmatch(stdout.String())
	if m == nil {
		return "", errors.Errorf("unexpected sbatch output: %q", strings.TrimSpace(stdout.String()))
	}
	log.WithFields(log.Fields{
		"job_id":    req.JobID,
		"operation": req.Operation,
		"slurm_id":  m[1],
	}).Info("Submitted operation")
	return m[1], nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
