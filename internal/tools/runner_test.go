package tools

import (
	"context"
	"os/exec"
	"testing"
)

func TestExecRunner(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	r := ExecRunner{}
	res, err := r.Run(context.Background(), "sh", "-c", "echo out; echo err >&2; exit 3")
	if err == nil {
		t.Fatalf("expected exit error")
	}
	if res.ExitCode != 3 || string(res.Stdout) != "out\n" || string(res.Stderr) != "err\n" {
		t.Fatalf("unexpected result: %+v", res)
	}

	res, err = r.Run(context.Background(), "rpcgate-definitely-missing-binary")
	if err == nil || res.ExitCode != 127 {
		t.Fatalf("expected 127 for missing binary, got %d (%v)", res.ExitCode, err)
	}
}
