package main

import "testing"

func TestRunPrintsVersionAndExitsZero(t *testing.T) {
	if code := run([]string{"-v"}); code != 0 {
		t.Fatalf("run(-v) = %d, want 0", code)
	}
}

func TestRunRejectsMissingArgument(t *testing.T) {
	if code := run(nil); code != -1 {
		t.Fatalf("run() = %d, want -1", code)
	}
}

func TestRunFailsOnMissingConfigFile(t *testing.T) {
	if code := run([]string{"/no/such/config.xml"}); code == 0 {
		t.Fatalf("run(missing config) = %d, want nonzero", code)
	}
}
