package session

import (
	"archive/tar"
	"bytes"
	"context"
	"io"
	"time"

	"conqueroj/pkg/errors"
	"conqueroj/pkg/utils/logger"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"
	"go.uber.org/zap"
)

const (
	// DefaultMemoryLimit caps container memory at 512MiB.
	DefaultMemoryLimit int64 = 512 * 1024 * 1024

	// DefaultWorkDir is where source files are materialized inside the container.
	DefaultWorkDir = "/work"

	// outputLimit caps captured stdout/stderr per exec.
	outputLimit = 1 * 1024 * 1024
)

// Config describes one sandbox container.
type Config struct {
	Image       string
	MemoryLimit int64
	WorkDir     string
}

// ExecResult is the raw outcome of one command inside the container.
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	TimedOut bool
}

// NewClient builds a Docker client from the environment.
func NewClient() (*client.Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, errors.Wrapf(err, errors.SandboxError, "create docker client")
	}
	return cli, nil
}

// Session is one running container used for a single submission. The
// container idles on sleep so the caller can copy files in and exec the
// compile and run commands against the same filesystem.
type Session struct {
	cli         *client.Client
	containerID string
	workDir     string
}

// Open pulls the image when missing, then creates and starts the container.
// The container has no network and a hard memory cap.
func Open(ctx context.Context, cli *client.Client, cfg Config) (*Session, error) {
	if cfg.MemoryLimit <= 0 {
		cfg.MemoryLimit = DefaultMemoryLimit
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = DefaultWorkDir
	}

	if err := ensureImage(ctx, cli, cfg.Image); err != nil {
		return nil, err
	}

	created, err := cli.ContainerCreate(ctx,
		&container.Config{
			Image:      cfg.Image,
			Cmd:        []string{"sleep", "infinity"},
			WorkingDir: cfg.WorkDir,
		},
		&container.HostConfig{
			NetworkMode: "none",
			AutoRemove:  true,
			Resources: container.Resources{
				Memory: cfg.MemoryLimit,
			},
		},
		nil, nil, "")
	if err != nil {
		return nil, errors.Wrapf(err, errors.SandboxError, "create container for image %s", cfg.Image)
	}

	if err := cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		_ = cli.ContainerRemove(context.Background(), created.ID, container.RemoveOptions{Force: true})
		return nil, errors.Wrapf(err, errors.SandboxError, "start container %s", created.ID)
	}

	return &Session{cli: cli, containerID: created.ID, workDir: cfg.WorkDir}, nil
}

func ensureImage(ctx context.Context, cli *client.Client, ref string) error {
	_, _, err := cli.ImageInspectWithRaw(ctx, ref)
	if err == nil {
		return nil
	}
	if !errdefs.IsNotFound(err) {
		return errors.Wrapf(err, errors.SandboxError, "inspect image %s", ref)
	}

	logger.Info(ctx, "pulling sandbox image", zap.String("image", ref))
	rc, err := cli.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return errors.Wrapf(err, errors.SandboxError, "pull image %s", ref)
	}
	defer rc.Close()
	// Drain the pull stream so the pull actually completes.
	if _, err := io.Copy(io.Discard, rc); err != nil {
		return errors.Wrapf(err, errors.SandboxError, "pull image %s", ref)
	}
	return nil
}

// WriteFile materializes a file in the container's working directory via a
// tar stream. Source code never touches a shell, so hostile content cannot
// escape into command interpretation.
func (s *Session) WriteFile(ctx context.Context, name string, content []byte) error {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	hdr := &tar.Header{
		Name:    name,
		Mode:    0644,
		Size:    int64(len(content)),
		ModTime: time.Now(),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return errors.Wrapf(err, errors.SandboxError, "write tar header for %s", name)
	}
	if _, err := tw.Write(content); err != nil {
		return errors.Wrapf(err, errors.SandboxError, "write tar body for %s", name)
	}
	if err := tw.Close(); err != nil {
		return errors.Wrapf(err, errors.SandboxError, "finish tar for %s", name)
	}

	if err := s.cli.CopyToContainer(ctx, s.containerID, s.workDir, &buf, container.CopyToContainerOptions{}); err != nil {
		return errors.Wrapf(err, errors.SandboxError, "copy %s into container", name)
	}
	return nil
}

// Exec runs argv inside the container with stdin attached, enforcing timeout.
// A timed-out exec reports TimedOut instead of an error; the caller decides
// the verdict.
func (s *Session) Exec(ctx context.Context, argv []string, stdin string, timeout time.Duration) (ExecResult, error) {
	execCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		execCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	created, err := s.cli.ContainerExecCreate(ctx, s.containerID, container.ExecOptions{
		Cmd:          argv,
		WorkingDir:   s.workDir,
		AttachStdin:  true,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return ExecResult{}, errors.Wrapf(err, errors.SandboxError, "create exec")
	}

	attach, err := s.cli.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return ExecResult{}, errors.Wrapf(err, errors.SandboxError, "attach exec")
	}
	defer attach.Close()

	go func() {
		if stdin != "" {
			_, _ = attach.Conn.Write([]byte(stdin))
		}
		_ = attach.CloseWrite()
	}()

	stdout, stderr, timedOut, copyErr := captureOutput(execCtx, attach.Reader, func() { attach.Close() })
	if timedOut {
		// The process is still running inside the container. Closing the
		// attach stream does not stop it; the caller tears the whole
		// container down afterwards.
		return ExecResult{TimedOut: true, Stdout: stdout, Stderr: stderr}, nil
	}
	if copyErr != nil {
		return ExecResult{}, errors.Wrapf(copyErr, errors.SandboxError, "read exec output")
	}

	inspect, err := s.cli.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return ExecResult{}, errors.Wrapf(err, errors.SandboxError, "inspect exec")
	}

	return ExecResult{
		ExitCode: inspect.ExitCode,
		Stdout:   stdout,
		Stderr:   stderr,
	}, nil
}

// captureOutput demultiplexes the attached exec stream into size-capped
// buffers. On ctx expiry it closes the stream, waits for the copy goroutine
// to stop, and only then reads the buffers, so a timed-out exec never races
// the copier.
func captureOutput(ctx context.Context, r io.Reader, closeStream func()) (stdout, stderr string, timedOut bool, err error) {
	var outBuf, errBuf bytes.Buffer
	done := make(chan error, 1)
	go func() {
		_, copyErr := stdcopy.StdCopy(
			&limitedWriter{w: &outBuf, remaining: outputLimit},
			&limitedWriter{w: &errBuf, remaining: outputLimit},
			r,
		)
		done <- copyErr
	}()

	select {
	case <-ctx.Done():
		closeStream()
		<-done
		return outBuf.String(), errBuf.String(), true, nil
	case copyErr := <-done:
		if copyErr != nil {
			return "", "", false, copyErr
		}
	}
	return outBuf.String(), errBuf.String(), false, nil
}

// Close force-removes the container. Removal failures are logged, not
// returned: teardown must never mask an evaluation result.
func (s *Session) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	err := s.cli.ContainerRemove(ctx, s.containerID, container.RemoveOptions{Force: true})
	if err != nil && !errdefs.IsNotFound(err) {
		logger.Warn(ctx, "remove sandbox container failed",
			zap.String("container_id", s.containerID),
			zap.Error(err))
	}
}

// limitedWriter drops bytes past the cap instead of erroring so a runaway
// process cannot exhaust worker memory.
type limitedWriter struct {
	w         io.Writer
	remaining int64
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	if lw.remaining <= 0 {
		return n, nil
	}
	if int64(n) > lw.remaining {
		if _, err := lw.w.Write(p[:lw.remaining]); err != nil {
			return 0, err
		}
		lw.remaining = 0
		return n, nil
	}
	if _, err := lw.w.Write(p); err != nil {
		return 0, err
	}
	lw.remaining -= int64(n)
	return n, nil
}
