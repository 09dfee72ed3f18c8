package visualization

import (
	"path/filepath"
	"testing"
)

func TestBrowserCommand(t *testing.T) {
	tests := []struct {
		goos    string
		want    string
		wantErr bool
	}{
		{goos: "linux", want: "xdg-open"},
		{goos: "darwin", want: "open"},
		{goos: "windows", want: "rundll32"},
		{goos: "plan9", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.goos, func(t *testing.T) {
			cmd, err := browserCommand(tt.goos, "http://localhost:1")
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("browserCommand() error = %v", err)
			}
			if got := filepath.Base(cmd.Args[0]); got != tt.want {
				t.Errorf("command = %q, want %q", got, tt.want)
			}
			if cmd.Args[len(cmd.Args)-1] != "http://localhost:1" {
				t.Errorf("url not passed last: %v", cmd.Args)
			}
		})
	}
}
