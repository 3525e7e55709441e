package runner

import (
	"context"
	"time"

	"conqueroj/internal/judge/sandbox/profile"
	"conqueroj/internal/judge/sandbox/session"
	"conqueroj/pkg/utils/logger"

	"github.com/docker/docker/client"
	"go.uber.org/zap"
)

// Outcome classifies one sandbox execution.
type Outcome string

const (
	OutcomeCompleted    Outcome = "completed"
	OutcomeTimeout      Outcome = "timeout"
	OutcomeRuntimeError Outcome = "runtime_error"
)

// CaseRun is the raw result of executing the program against one input.
type CaseRun struct {
	Outcome    Outcome
	Output     string
	Diagnostic string
	ExitCode   int
}

// SubmissionRun is the result of running a submission against all inputs.
// When CompileFailed is set, Cases is empty.
type SubmissionRun struct {
	CompileFailed bool
	CompileOutput string
	Cases         []CaseRun
}

// Runner executes untrusted source code against a list of inputs.
type Runner interface {
	RunSubmission(ctx context.Context, language, source string, inputs []string) (*SubmissionRun, error)
}

// Config tunes sandbox execution.
type Config struct {
	// CaseTimeout bounds one test case run.
	CaseTimeout time.Duration `yaml:"caseTimeout"`

	// CompileTimeout bounds the build step.
	CompileTimeout time.Duration `yaml:"compileTimeout"`

	// MemoryLimitBytes caps container memory.
	MemoryLimitBytes int64 `yaml:"memoryLimitBytes"`
}

// DefaultConfig returns the standard sandbox limits.
func DefaultConfig() Config {
	return Config{
		CaseTimeout:      5 * time.Second,
		CompileTimeout:   30 * time.Second,
		MemoryLimitBytes: session.DefaultMemoryLimit,
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.CaseTimeout <= 0 {
		c.CaseTimeout = def.CaseTimeout
	}
	if c.CompileTimeout <= 0 {
		c.CompileTimeout = def.CompileTimeout
	}
	if c.MemoryLimitBytes <= 0 {
		c.MemoryLimitBytes = def.MemoryLimitBytes
	}
}

// sandbox is the container surface the runner drives: materialize the source,
// exec commands, tear down.
type sandbox interface {
	WriteFile(ctx context.Context, name string, content []byte) error
	Exec(ctx context.Context, argv []string, stdin string, timeout time.Duration) (session.ExecResult, error)
	Close()
}

// sandboxOpener brings up one container for a language image.
type sandboxOpener func(ctx context.Context, cfg session.Config) (sandbox, error)

// DockerRunner runs submissions in throwaway Docker containers. One container
// serves a whole submission so compiled artifacts carry across test cases; a
// timed-out case recycles the container so a stuck process cannot poison the
// cases after it.
type DockerRunner struct {
	open     sandboxOpener
	registry *profile.Registry
	config   Config
}

// NewDockerRunner creates a runner on an existing Docker client.
func NewDockerRunner(cli *client.Client, registry *profile.Registry, cfg Config) *DockerRunner {
	cfg.applyDefaults()
	if registry == nil {
		registry = profile.DefaultRegistry()
	}
	open := func(ctx context.Context, sc session.Config) (sandbox, error) {
		sess, err := session.Open(ctx, cli, sc)
		if err != nil {
			return nil, err
		}
		return sess, nil
	}
	return &DockerRunner{open: open, registry: registry, config: cfg}
}

// RunSubmission compiles once, then runs every input in order. Sandbox faults
// on a single case degrade to a runtime error for that case only; an error
// return means the sandbox itself could not be brought up.
func (r *DockerRunner) RunSubmission(ctx context.Context, language, source string, inputs []string) (*SubmissionRun, error) {
	spec := r.registry.Resolve(language)
	if !r.registry.Known(language) {
		logger.Warn(ctx, "unknown language, using fallback",
			zap.String("language", language),
			zap.String("fallback", spec.Name))
	}

	sess, compileRun, err := r.openAndBuild(ctx, spec, source)
	if err != nil {
		return nil, err
	}
	defer func() {
		if sess != nil {
			sess.Close()
		}
	}()

	if compileRun != nil {
		return compileRun, nil
	}

	runArgv, err := spec.RunArgv()
	if err != nil {
		return nil, err
	}

	result := &SubmissionRun{Cases: make([]CaseRun, 0, len(inputs))}
	for i, input := range inputs {
		res, execErr := sess.Exec(ctx, runArgv, input, r.config.CaseTimeout)
		switch {
		case execErr != nil:
			// The sandbox faulted, not the program. Count the case as a
			// runtime error and recycle the container for the rest.
			logger.Error(ctx, "sandbox exec fault",
				zap.Int("case_index", i),
				zap.Error(execErr))
			result.Cases = append(result.Cases, CaseRun{
				Outcome:    OutcomeRuntimeError,
				Diagnostic: execErr.Error(),
			})
			sess = r.recycle(ctx, sess, spec, source)
		case res.TimedOut:
			result.Cases = append(result.Cases, CaseRun{Outcome: OutcomeTimeout})
			sess = r.recycle(ctx, sess, spec, source)
		case res.ExitCode != 0:
			result.Cases = append(result.Cases, CaseRun{
				Outcome:    OutcomeRuntimeError,
				Output:     res.Stdout,
				Diagnostic: res.Stderr,
				ExitCode:   res.ExitCode,
			})
		default:
			result.Cases = append(result.Cases, CaseRun{
				Outcome:  OutcomeCompleted,
				Output:   res.Stdout,
				ExitCode: res.ExitCode,
			})
		}
		if sess == nil {
			// Recycling failed; remaining cases cannot run.
			for j := i + 1; j < len(inputs); j++ {
				result.Cases = append(result.Cases, CaseRun{
					Outcome:    OutcomeRuntimeError,
					Diagnostic: "sandbox unavailable",
				})
			}
			break
		}
	}
	return result, nil
}

// openAndBuild starts a session, writes the source file and runs the build
// step. A compile failure is a submission verdict, not an error: it is
// returned as a SubmissionRun with CompileFailed set and no cases.
func (r *DockerRunner) openAndBuild(ctx context.Context, spec profile.LanguageSpec, source string) (sandbox, *SubmissionRun, error) {
	sess, err := r.open(ctx, session.Config{
		Image:       spec.Image,
		MemoryLimit: r.config.MemoryLimitBytes,
	})
	if err != nil {
		return nil, nil, err
	}

	if err := sess.WriteFile(ctx, spec.SourceFile, []byte(source)); err != nil {
		sess.Close()
		return nil, nil, err
	}

	if !spec.Compiled() {
		return sess, nil, nil
	}

	compileArgv, err := spec.CompileArgv()
	if err != nil {
		sess.Close()
		return nil, nil, err
	}
	res, err := sess.Exec(ctx, compileArgv, "", r.config.CompileTimeout)
	if err != nil {
		sess.Close()
		return nil, nil, err
	}
	if res.TimedOut {
		sess.Close()
		return nil, &SubmissionRun{CompileFailed: true, CompileOutput: "compilation timed out"}, nil
	}
	if res.ExitCode != 0 {
		sess.Close()
		out := res.Stderr
		if out == "" {
			out = res.Stdout
		}
		return nil, &SubmissionRun{CompileFailed: true, CompileOutput: out}, nil
	}
	return sess, nil, nil
}

// recycle replaces a session whose container may hold a stuck process.
// Returns nil when a fresh session cannot be brought up.
func (r *DockerRunner) recycle(ctx context.Context, old sandbox, spec profile.LanguageSpec, source string) sandbox {
	old.Close()
	sess, compileRun, err := r.openAndBuild(ctx, spec, source)
	if err != nil {
		logger.Error(ctx, "recycle sandbox session failed", zap.Error(err))
		return nil
	}
	if compileRun != nil {
		// The code compiled before; a failure now is a sandbox fault.
		logger.Error(ctx, "recompile failed during session recycle")
		return nil
	}
	return sess
}

var _ Runner = (*DockerRunner)(nil)
