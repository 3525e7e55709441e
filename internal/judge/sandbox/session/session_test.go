package session

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/docker/docker/pkg/stdcopy"
)

func TestCaptureOutputCompletedStream(t *testing.T) {
	var stream bytes.Buffer
	if _, err := stdcopy.NewStdWriter(&stream, stdcopy.Stdout).Write([]byte("42\n")); err != nil {
		t.Fatalf("write stdout frame: %v", err)
	}
	if _, err := stdcopy.NewStdWriter(&stream, stdcopy.Stderr).Write([]byte("warn")); err != nil {
		t.Fatalf("write stderr frame: %v", err)
	}

	stdout, stderr, timedOut, err := captureOutput(context.Background(), &stream, func() {})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if timedOut {
		t.Fatalf("expected no timeout on a finished stream")
	}
	if stdout != "42\n" || stderr != "warn" {
		t.Fatalf("unexpected capture: stdout=%q stderr=%q", stdout, stderr)
	}
}

func TestCaptureOutputTimeoutStopsCopierBeforeRead(t *testing.T) {
	pr, pw := io.Pipe()
	go func() {
		// One complete frame, then the stream hangs like a spinning process.
		_, _ = stdcopy.NewStdWriter(pw, stdcopy.Stdout).Write([]byte("partial"))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	stdout, _, timedOut, err := captureOutput(ctx, pr, func() { _ = pr.Close() })
	if err != nil {
		t.Fatalf("expected nil error on timeout, got %v", err)
	}
	if !timedOut {
		t.Fatalf("expected timeout on a hanging stream")
	}
	if stdout != "partial" {
		t.Fatalf("expected output written before the deadline, got %q", stdout)
	}
}

func TestLimitedWriterDropsPastCap(t *testing.T) {
	var buf bytes.Buffer
	lw := &limitedWriter{w: &buf, remaining: 4}

	n, err := lw.Write([]byte("abcdef"))
	if err != nil || n != 6 {
		t.Fatalf("expected full write reported, got n=%d err=%v", n, err)
	}
	n, err = lw.Write([]byte("gh"))
	if err != nil || n != 2 {
		t.Fatalf("expected silent drop, got n=%d err=%v", n, err)
	}
	if buf.String() != "abcd" {
		t.Fatalf("expected capped capture, got %q", buf.String())
	}
}
