package bus

import (
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

func TestIsStreamConfigEqual(t *testing.T) {
	base := jetstream.StreamConfig{
		Name:       "LIVESHOP",
		Subjects:   []string{"liveshop.history.>"},
		Storage:    jetstream.FileStorage,
		MaxAge:     time.Hour,
		Replicas:   1,
		Duplicates: 2 * time.Minute,
	}

	tests := []struct {
		name   string
		mutate func(c *jetstream.StreamConfig)
		want   bool
	}{
		{name: "identical", mutate: func(*jetstream.StreamConfig) {}, want: true},
		{name: "subject prefix changed", mutate: func(c *jetstream.StreamConfig) {
			c.Subjects = []string{"shop2.history.>"}
		}, want: false},
		{name: "extra subject", mutate: func(c *jetstream.StreamConfig) {
			c.Subjects = append(c.Subjects, "liveshop.audit.>")
		}, want: false},
		{name: "max age changed", mutate: func(c *jetstream.StreamConfig) {
			c.MaxAge = 2 * time.Hour
		}, want: false},
		{name: "replicas changed", mutate: func(c *jetstream.StreamConfig) {
			c.Replicas = 3
		}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			other := base
			other.Subjects = append([]string(nil), base.Subjects...)
			tt.mutate(&other)
			if got := isStreamConfigEqual(base, other); got != tt.want {
				t.Errorf("isStreamConfigEqual = %v, want %v", got, tt.want)
			}
		})
	}
}
