package main

import "testing"

func TestRunReturnsCleanlyOnHelpFlag(t *testing.T) {
	if err := run([]string{"-help"}); err != nil {
		t.Fatalf("expected -help to exit cleanly without an error, got %v", err)
	}
}

func TestRunReportsInvalidFlags(t *testing.T) {
	if err := run([]string{"-bpm=0"}); err == nil {
		t.Fatal("expected an error for an invalid BPM flag")
	}
}
