package profile

import "testing"

func TestResolveKnownLanguage(t *testing.T) {
	reg := DefaultRegistry()

	spec := reg.Resolve("java")
	if spec.Image != "openjdk:11-jdk-slim" {
		t.Fatalf("expected java image, got %s", spec.Image)
	}
	if !spec.Compiled() {
		t.Fatalf("expected java to have a compile step")
	}
}

func TestResolveUnknownFallsBackToPython(t *testing.T) {
	reg := DefaultRegistry()

	spec := reg.Resolve("brainfuck")
	if spec.Name != "python" {
		t.Fatalf("expected python fallback, got %s", spec.Name)
	}
	if spec.Image != "python:3.9" {
		t.Fatalf("expected python image, got %s", spec.Image)
	}
	if spec.Compiled() {
		t.Fatalf("expected fallback to be interpreted")
	}
}

func TestCommandTokenization(t *testing.T) {
	spec := LanguageSpec{
		Name:       "c",
		Image:      "gcc:latest",
		SourceFile: "main.c",
		Compile:    "gcc main.c -o main",
		Run:        "./main",
	}

	argv, err := spec.CompileArgv()
	if err != nil {
		t.Fatalf("compile argv: %v", err)
	}
	want := []string{"gcc", "main.c", "-o", "main"}
	if len(argv) != len(want) {
		t.Fatalf("expected %d tokens, got %v", len(want), argv)
	}
	for i := range want {
		if argv[i] != want[i] {
			t.Fatalf("token %d: expected %q, got %q", i, want[i], argv[i])
		}
	}
}

func TestCommandTokenizationQuoting(t *testing.T) {
	spec := LanguageSpec{
		Name:       "custom",
		Image:      "img",
		SourceFile: "main.sh",
		Run:        `sh -c "echo hi"`,
	}
	argv, err := spec.RunArgv()
	if err != nil {
		t.Fatalf("run argv: %v", err)
	}
	if len(argv) != 3 || argv[2] != "echo hi" {
		t.Fatalf("expected quoted token preserved, got %v", argv)
	}
}

func TestNewRegistryRejectsIncompleteSpec(t *testing.T) {
	_, err := NewRegistry([]LanguageSpec{{Name: "x"}}, "x")
	if err == nil {
		t.Fatalf("expected error for incomplete spec")
	}
}

func TestNewRegistryRejectsMissingFallback(t *testing.T) {
	specs := []LanguageSpec{{Name: "go", Image: "golang:1.22", SourceFile: "main.go", Run: "go run main.go"}}
	if _, err := NewRegistry(specs, "python"); err == nil {
		t.Fatalf("expected error for unregistered fallback")
	}
}
