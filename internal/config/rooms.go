package config

import (
	"fmt"
	"image"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/thatsimonsguy/hass-dash/internal/model"
)

const unnamedRoom = "Unnamed Room"

type positionEntry struct {
	X *int `yaml:"x"`
	Y *int `yaml:"y"`
}

type referenceEntry struct {
	EntityID string         `yaml:"entity_id"`
	Name     string         `yaml:"name"`
	Position *positionEntry `yaml:"position"`
}

type roomEntry struct {
	Name        string          `yaml:"name"`
	Temperature *referenceEntry `yaml:"temperature"`
	Humidity    *referenceEntry `yaml:"humidity"`
}

func LoadRooms(path string) ([]model.Room, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: rooms file: %v", ErrConfig, err)
	}
	return ParseRooms(data)
}

// ParseRooms accepts either a mapping with a `rooms` list or a bare list.
func ParseRooms(data []byte) ([]model.Room, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: rooms file: %v", ErrConfig, err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, fmt.Errorf("%w: rooms file is empty", ErrConfig)
	}

	root := doc.Content[0]
	var list *yaml.Node
	switch root.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(root.Content); i += 2 {
			if root.Content[i].Value == "rooms" {
				list = root.Content[i+1]
				break
			}
		}
		if list == nil {
			return nil, fmt.Errorf("%w: rooms file does not contain a 'rooms' key", ErrConfig)
		}
		if list.Kind != yaml.SequenceNode {
			return nil, fmt.Errorf("%w: 'rooms' must be a list (line %d)", ErrConfig, list.Line)
		}
	case yaml.SequenceNode:
		list = root
	default:
		return nil, fmt.Errorf("%w: unexpected YAML structure in rooms file", ErrConfig)
	}

	var entries []roomEntry
	if err := list.Decode(&entries); err != nil {
		return nil, fmt.Errorf("%w: rooms file: %v", ErrConfig, err)
	}

	rooms := make([]model.Room, 0, len(entries))
	for i, e := range entries {
		name := strings.TrimSpace(e.Name)
		if name == "" {
			name = unnamedRoom
		}
		room := model.Room{Name: name}

		var err error
		if e.Temperature != nil {
			room.Temperature, err = e.Temperature.toReference("climate", name)
			if err != nil {
				return nil, fmt.Errorf("%w: room %d (%s) temperature: %v", ErrConfig, i, name, err)
			}
		}
		if e.Humidity != nil {
			room.Humidity, err = e.Humidity.toReference("sensor", name)
			if err != nil {
				return nil, fmt.Errorf("%w: room %d (%s) humidity: %v", ErrConfig, i, name, err)
			}
		}
		rooms = append(rooms, room)
	}
	return rooms, nil
}

func (r *referenceEntry) toReference(domain, roomName string) (*model.EntityReference, error) {
	id := strings.TrimSpace(r.EntityID)
	if id == "" {
		return nil, fmt.Errorf("entity_id is required")
	}
	if !strings.Contains(id, ".") {
		id = domain + "." + id
	}
	if r.Position == nil || r.Position.X == nil || r.Position.Y == nil {
		return nil, fmt.Errorf("position {x, y} is required for %s", id)
	}

	display := r.Name
	if display == "" {
		display = roomName
	}
	return &model.EntityReference{
		EntityID:    id,
		DisplayName: display,
		Position:    image.Pt(*r.Position.X, *r.Position.Y),
	}, nil
}
