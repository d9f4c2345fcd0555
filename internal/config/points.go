package config

import (
	"fmt"
	"os"

	"bookswap/internal/models"

	"gopkg.in/yaml.v3"
)

type meetingPointsFile struct {
	Points []*models.MeetingPoint `yaml:"points"`
}

// LoadMeetingPoints reads a meeting point catalog. Points without an explicit
// enabled flag are enabled.
func LoadMeetingPoints(path string) ([]*models.MeetingPoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read meeting points: %w", err)
	}

	var raw struct {
		Points []map[string]interface{} `yaml:"points"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse meeting points: %w", err)
	}
	var file meetingPointsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse meeting points: %w", err)
	}

	for i, p := range file.Points {
		if p == nil {
			return nil, fmt.Errorf("meeting point %d is empty", i)
		}
		if _, set := raw.Points[i]["enabled"]; !set {
			p.Enabled = true
		}
	}
	return file.Points, nil
}
