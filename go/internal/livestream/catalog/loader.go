package catalog

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"

	"github.com/mcdev12/liveshop/go/internal/livestream/events"
	"gopkg.in/yaml.v3"
)

//go:embed data
var embedded embed.FS

var ErrInvalidEvent = errors.New("invalid script event")

const onDemandDir = "on-demand"

// eventFile is the on-disk shape of a script event.
type eventFile struct {
	Events []struct {
		TimeSinceStartMs int64  `yaml:"timeSinceStartMs"`
		Persist          bool   `yaml:"persist"`
		Channel          string `yaml:"channel"`
		Repeat           int    `yaml:"repeat"`
		Payload          any    `yaml:"payload"`
	} `yaml:"events"`
}

type productFile struct {
	Products []map[string]any `yaml:"products"`
}

// Default loads the catalog compiled into the binary.
func Default() (*Catalog, error) {
	sub, err := fs.Sub(embedded, "data")
	if err != nil {
		return nil, fmt.Errorf("open embedded catalog: %w", err)
	}
	return Load(sub)
}

// LoadDir loads a catalog with the same file layout from a directory on disk.
func LoadDir(dir string) (*Catalog, error) {
	return Load(os.DirFS(dir))
}

// Load reads chat.yaml, commentary.yaml, polls.yaml, reactions.yaml, products.yaml
// and every file under on-demand/ from fsys.
func Load(fsys fs.FS) (*Catalog, error) {
	c := &Catalog{OnDemand: make(map[string][]ScriptEvent)}

	var err error
	if c.Chat, err = loadEvents(fsys, "chat.yaml"); err != nil {
		return nil, err
	}
	if c.Commentary, err = loadEvents(fsys, "commentary.yaml"); err != nil {
		return nil, err
	}
	if c.Polls, err = loadEvents(fsys, "polls.yaml"); err != nil {
		return nil, err
	}
	if c.Reactions, err = loadEvents(fsys, "reactions.yaml"); err != nil {
		return nil, err
	}
	if c.Products, err = loadProducts(fsys, "products.yaml"); err != nil {
		return nil, err
	}

	entries, err := fs.ReadDir(fsys, onDemandDir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read on-demand scripts: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".yaml" {
			continue
		}
		evs, err := loadEvents(fsys, path.Join(onDemandDir, entry.Name()))
		if err != nil {
			return nil, err
		}
		name := entry.Name()[:len(entry.Name())-len(".yaml")]
		c.OnDemand[name] = evs
	}

	return c, nil
}

func loadEvents(fsys fs.FS, name string) ([]ScriptEvent, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}

	var file eventFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}

	out := make([]ScriptEvent, 0, len(file.Events))
	for i, raw := range file.Events {
		if raw.TimeSinceStartMs < 0 {
			return nil, fmt.Errorf("%s event %d: %w: negative time", name, i, ErrInvalidEvent)
		}
		if raw.Channel == "" {
			return nil, fmt.Errorf("%s event %d: %w: missing channel", name, i, ErrInvalidEvent)
		}
		payload, err := json.Marshal(raw.Payload)
		if err != nil {
			return nil, fmt.Errorf("%s event %d: encode payload: %w", name, i, err)
		}
		out = append(out, ScriptEvent{
			TimeSinceStartMs: raw.TimeSinceStartMs,
			Persist:          raw.Persist,
			Channel:          events.Channel(raw.Channel),
			Payload:          payload,
			Repeat:           raw.Repeat,
		})
	}
	return out, nil
}

func loadProducts(fsys fs.FS, name string) ([]Product, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}

	var file productFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}

	out := make([]Product, 0, len(file.Products))
	for i, record := range file.Products {
		payload, err := json.Marshal(record)
		if err != nil {
			return nil, fmt.Errorf("%s product %d: encode payload: %w", name, i, err)
		}

		var p struct {
			ID          json.RawMessage `json:"id"`
			StartTimeMs int64           `json:"startTimeMs"`
			EndTimeMs   int64           `json:"endTimeMs"`
		}
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("%s product %d: %w", name, i, err)
		}
		id := productID(p.ID)
		if id == "" || p.EndTimeMs < p.StartTimeMs || p.StartTimeMs < 0 {
			return nil, fmt.Errorf("%s product %d: %w: bad id or time window", name, i, ErrInvalidEvent)
		}

		out = append(out, Product{
			ID:          id,
			StartTimeMs: p.StartTimeMs,
			EndTimeMs:   p.EndTimeMs,
			Payload:     payload,
		})
	}
	return out, nil
}

// productID accepts a string or numeric id and returns it as a string.
func productID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}
