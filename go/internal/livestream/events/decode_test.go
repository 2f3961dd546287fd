package events

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDecode_Control(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    ControlType
		wantErr error
	}{
		{name: "start", data: `{"type":"START_STREAM"}`, want: ControlStartStream},
		{name: "seek", data: `{"type":"SEEK","params":{"playbackTime":60000}}`, want: ControlSeek},
		{name: "seek without time", data: `{"type":"SEEK","params":{}}`, wantErr: ErrInvalidPayload},
		{name: "seek negative", data: `{"type":"SEEK","params":{"playbackTime":-5}}`, wantErr: ErrInvalidPayload},
		{name: "on demand", data: `{"type":"ON_DEMAND_SCRIPT","params":{"scriptName":"push-goal"}}`, want: ControlOnDemandScript},
		{name: "on demand empty", data: `{"type":"ON_DEMAND_SCRIPT","params":{}}`, wantErr: ErrInvalidPayload},
		{name: "unknown", data: `{"type":"REWIND"}`, wantErr: ErrUnknownControl},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := Decode(ChannelControl, []byte(tt.data))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			cmd, ok := in.(ControlCommand)
			if !ok {
				t.Fatalf("decoded %T, want ControlCommand", in)
			}
			if cmd.Type != tt.want {
				t.Errorf("type = %s, want %s", cmd.Type, tt.want)
			}
		})
	}
}

func TestDecode_ResultsVersusCloseSignal(t *testing.T) {
	in, err := Decode(ChannelPollResults, []byte(`{"id":501,"correctOption":1,"pollType":"side"}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	sig, ok := in.(PollCloseSignal)
	if !ok {
		t.Fatalf("decoded %T, want PollCloseSignal", in)
	}
	if sig.CorrectOption == nil || *sig.CorrectOption != 1 {
		t.Errorf("correctOption = %v, want 1", sig.CorrectOption)
	}

	in, err = Decode(ChannelPollResults, []byte(`{"id":601,"pollType":"featuredStreamPoll","isFinalSignal":true}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if sig, ok := in.(PollCloseSignal); !ok || !sig.IsFinalSignal {
		t.Fatalf("decoded %#v, want final close signal", in)
	}

	in, err = Decode(ChannelPollResults, []byte(`{"id":601,"options":[],"pollType":"featuredStreamPoll","isFinal":true}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if _, ok := in.(PollResults); !ok {
		t.Fatalf("decoded %T, want PollResults", in)
	}
}

func TestDecode_UnknownChannel(t *testing.T) {
	_, err := Decode(Channel("game.unknown"), []byte(`{}`))
	if !errors.Is(err, ErrUnknownChannel) {
		t.Fatalf("err = %v, want ErrUnknownChannel", err)
	}
}

func TestPollResults_EmptyOptionsMarshalAsArray(t *testing.T) {
	data, err := json.Marshal(PollResults{ID: 1, Options: []OptionScore{}, PollType: PollTypeSide})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	in, err := Decode(ChannelPollResults, data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if _, ok := in.(PollResults); !ok {
		t.Fatalf("own results decoded as %T", in)
	}
}

func TestPublisherOf(t *testing.T) {
	if got := PublisherOf(json.RawMessage(`{"user":"bot-33","text":"hi"}`)); got != "bot-33" {
		t.Errorf("PublisherOf = %q, want bot-33", got)
	}
	if got := PublisherOf(json.RawMessage(`[1,2]`)); got != "" {
		t.Errorf("PublisherOf array = %q, want empty", got)
	}
}
