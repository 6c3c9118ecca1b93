package flowermd

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"ellipflow/simulation"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ScriptDir is where rendered drivers and their console output are kept, relative to the job
const ScriptDir = ".ellipflow"

// Engine runs plans through a Python interpreter with flowerMD installed
type Engine struct {
	Python string
	Args   []string
}

// NewEngine creates an engine using the given interpreter
func NewEngine(python string, args []string) *Engine {
	if python == "" {
		python = "python"
	}
	return &Engine{Python: python, Args: args}
}

// Execute renders the driver for plan, runs it in the job directory and parses its result line
func (e *Engine) Execute(ctx context.Context, plan *simulation.Plan) (*simulation.Result, error) {
	script, err := RenderScript(plan)
	if err != nil {
		return nil, err
	}

	dir := filepath.Join(plan.WorkDir, ScriptDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create script directory")
	}
	scriptPath := filepath.Join(dir, plan.RunID+".py")
	if err := os.WriteFile(scriptPath, []byte(script), 0o644); err != nil {
		return nil, errors.Wrap(err, "failed to write driver script")
	}

	console, err := os.Create(filepath.Join(dir, plan.RunID+".out"))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create console log")
	}
	defer console.Close()

	logger := log.WithFields(log.Fields{"run_id": plan.RunID, "workdir": plan.WorkDir})
	stream := logger.WriterLevel(log.DebugLevel)
	defer stream.Close()

	cmd := exec.CommandContext(ctx, e.Python, append(append([]string{}, e.Args...), scriptPath)...)
	cmd.Dir = plan.WorkDir
	cmd.Stderr = io.MultiWriter(console, stream)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "failed to attach to engine output")
	}

	logger.Infof("Starting engine: %s %s", e.Python, strings.Join(cmd.Args[1:], " "))
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "failed to start %s", e.Python)
	}

	result, scanErr := scanResult(io.TeeReader(stdout, io.MultiWriter(console, stream)))
	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrap(ctx.Err(), "engine interrupted")
		}
		return nil, errors.Wrapf(err, "engine failed, see %s", console.Name())
	}
	if scanErr != nil {
		return nil, scanErr
	}
	if result == nil {
		return nil, errors.Errorf("engine exited without a result line, see %s", console.Name())
	}

	logger.Infof("Engine finished (timestep %g %s)", result.RealTimestep, result.RealTimeUnits)
	return result, nil
}

// scanResult reads engine output to EOF and returns the last result line, if any.
// The reader is always drained so the child never blocks on a full pipe.
func scanResult(r io.Reader) (*simulation.Result, error) {
	var result *simulation.Result
	var parseErr error
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, ResultPrefix) {
			continue
		}
		var res simulation.Result
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, ResultPrefix)), &res); err != nil {
			parseErr = errors.Wrap(err, "malformed engine result")
			continue
		}
		result = &res
	}
	if err := scanner.Err(); err != nil {
		_, _ = io.Copy(io.Discard, r)
		return nil, errors.Wrap(err, "failed to read engine output")
	}
	if result == nil && parseErr != nil {
		return nil, parseErr
	}
	return result, nil
}
