package main

import (
	"context"
	"os"
	"os/exec"
	"testing"
	"time"

	"rsc.io/script"
	"rsc.io/script/scripttest"
)

// TestMain lets the test binary double as the loom binary: scripts invoke
// it with LOOM_SCRIPT_CHILD=1 and real CLI arguments.
func TestMain(m *testing.M) {
	if os.Getenv("LOOM_SCRIPT_CHILD") == "1" {
		main()
		return
	}
	os.Exit(m.Run())
}

// TestScripts runs the CLI end to end against the scripts in testdata.
// Each script gets a fresh work directory and points HOME inside it, so
// nothing touches the real ~/.loom.
func TestScripts(t *testing.T) {
	exe, err := os.Executable()
	if err != nil {
		t.Fatal(err)
	}

	engine := &script.Engine{
		Cmds:  script.DefaultCmds(),
		Conds: script.DefaultConds(),
		Quiet: !testing.Verbose(),
	}
	engine.Cmds["loom"] = script.Program(exe, func(cmd *exec.Cmd) error { return cmd.Process.Signal(os.Interrupt) }, 5*time.Second)

	env := []string{
		"PATH=" + os.Getenv("PATH"),
		"LOOM_SCRIPT_CHILD=1",
	}
	scripttest.Test(t, context.Background(), engine, env, "testdata/*.txt")
}
