package ulog

import "testing"

func TestNilProgressIgnoresTTYOutput(t *testing.T) {
	cli := &CLI{DisableTTY: true}
	p := cli.NewProgress("scan", 100)

	p.Increment(40)
	p.Increment(60)
	p.Finish(true)
}

func TestLevelGatesSuppressByDefault(t *testing.T) {
	cli := &CLI{}
	if cli.IsDebug {
		t.Fatal("IsDebug should default to false")
	}
	if cli.IsVerbose {
		t.Fatal("IsVerbose should default to false")
	}
}
