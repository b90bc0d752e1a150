package main

import (
	"testing"

	"github.com/spf13/cobra"
)

func parsePage(t *testing.T, args ...string) (*cobra.Command, *pageFlags) {
	t.Helper()
	var p pageFlags
	cmd := &cobra.Command{Use: "list"}
	p.register(cmd)
	if err := cmd.Flags().Parse(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	return cmd, &p
}

func TestPageFlagsDefaultForward(t *testing.T) {
	cmd, p := parsePage(t, "--after", "00ff")
	req := p.request(cmd)
	if req.First == nil || *req.First != 20 || req.After != "00ff" || req.Last != nil {
		t.Fatalf("unexpected request %+v", req)
	}
	if err := req.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestPageFlagsBackward(t *testing.T) {
	cmd, p := parsePage(t, "--last", "5", "--before", "0a")
	req := p.request(cmd)
	if req.Last == nil || *req.Last != 5 || req.Before != "0a" || req.First != nil {
		t.Fatalf("unexpected request %+v", req)
	}
}

func TestPageFlagsFirstAndLastRejected(t *testing.T) {
	cmd, p := parsePage(t, "--first", "2", "--last", "2")
	if err := p.request(cmd).Validate(); err == nil {
		t.Fatalf("expected first+last to be rejected")
	}
}

func TestRootCommandTree(t *testing.T) {
	root := newRootCmd()
	for _, path := range [][]string{
		{"serve"},
		{"feed", "list"},
		{"article", "classify"},
		{"article", "keywords"},
		{"tags"},
		{"topics"},
		{"import"},
	} {
		cmd, _, err := root.Find(path)
		if err != nil || cmd == root {
			t.Fatalf("command %v not registered: %v", path, err)
		}
	}
}
