package main

import (
	"testing"

	"github.com/mcdev12/liveshop/go/internal/livestream/events"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		args    []string
		want    events.ControlType
		wantErr bool
	}{
		{args: []string{"start"}, want: events.ControlStartStream},
		{args: []string{"end"}, want: events.ControlEndStream},
		{args: []string{"chat"}, want: events.ControlBotChat},
		{args: []string{"seek", "30000"}, want: events.ControlSeek},
		{args: []string{"script", "push-goal"}, want: events.ControlOnDemandScript},
		{args: []string{"emoji", "🎉"}, want: events.ControlOnDemandScript},
		{args: []string{"seek"}, wantErr: true},
		{args: []string{"seek", "-5"}, wantErr: true},
		{args: []string{"seek", "soon"}, wantErr: true},
		{args: []string{"rewind"}, wantErr: true},
	}
	for _, tt := range tests {
		cmd, err := parseCommand(tt.args)
		if tt.wantErr {
			if err == nil {
				t.Errorf("%v: expected an error", tt.args)
			}
			continue
		}
		if err != nil {
			t.Errorf("%v: %v", tt.args, err)
			continue
		}
		if cmd.Type != tt.want {
			t.Errorf("%v: type = %s, want %s", tt.args, cmd.Type, tt.want)
		}
	}

	cmd, _ := parseCommand([]string{"seek", "30000"})
	if cmd.Params.PlaybackTime == nil || *cmd.Params.PlaybackTime != 30000 {
		t.Errorf("seek params = %+v", cmd.Params)
	}
}
