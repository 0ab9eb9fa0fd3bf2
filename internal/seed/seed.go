// Package seed loads hardware sets and projects from a YAML file into a fresh
// database. Records that already exist are left untouched, so a seed file can
// be applied on every start.
package seed

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tphummel/hwportal/internal/db"
	"github.com/tphummel/hwportal/internal/models"
)

// File is the layout of a seed document:
//
//	hardware:
//	  - id: hw1
//	    name: Hardware Set 1
//	    capacity: 100
//	projects:
//	  - id: p1
//	    name: Robotics
//	    users: [alice, bob]
type File struct {
	Hardware []Hardware `yaml:"hardware"`
	Projects []Project  `yaml:"projects"`
}

type Hardware struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Capacity int    `yaml:"capacity"`
}

type Project struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Users       []string `yaml:"users"`
}

// Store is the subset of *db.DB that seeding needs.
type Store interface {
	CreateHardware(h *models.HardwareSet) error
	CreateProject(p *models.Project) error
}

// Result counts what Apply did.
type Result struct {
	Created int
	Skipped int
}

// Parse decodes and validates a seed document. Unknown fields are rejected.
func Parse(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return &f, nil
		}
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *File) validate() error {
	seen := make(map[string]bool)
	for i, h := range f.Hardware {
		switch {
		case strings.TrimSpace(h.ID) == "":
			return fmt.Errorf("seed hardware[%d]: id is required", i)
		case h.Capacity < 0:
			return fmt.Errorf("seed hardware %s: capacity must not be negative", h.ID)
		case seen[h.ID]:
			return fmt.Errorf("seed hardware %s: listed twice", h.ID)
		}
		seen[h.ID] = true
	}
	clear(seen)
	for i, p := range f.Projects {
		switch {
		case strings.TrimSpace(p.ID) == "":
			return fmt.Errorf("seed projects[%d]: id is required", i)
		case seen[p.ID]:
			return fmt.Errorf("seed project %s: listed twice", p.ID)
		}
		seen[p.ID] = true
		for _, u := range p.Users {
			if strings.TrimSpace(u) == "" {
				return fmt.Errorf("seed project %s: empty user id", p.ID)
			}
		}
	}
	return nil
}

// Apply writes the seed records to s. Hardware sets start fully available.
func Apply(s Store, f *File, logger *slog.Logger) (Result, error) {
	var res Result
	now := time.Now().UTC()

	count := func(kind, id string, err error) error {
		if errors.Is(err, db.ErrDuplicate) {
			res.Skipped++
			logger.Debug("seed record exists", "kind", kind, "id", id)
			return nil
		}
		if err != nil {
			return fmt.Errorf("seed %s %s: %w", kind, id, err)
		}
		res.Created++
		return nil
	}

	for _, h := range f.Hardware {
		err := s.CreateHardware(&models.HardwareSet{
			ID:        h.ID,
			Name:      h.Name,
			Capacity:  h.Capacity,
			Available: h.Capacity,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err := count("hardware", h.ID, err); err != nil {
			return res, err
		}
	}
	for _, p := range f.Projects {
		err := s.CreateProject(&models.Project{
			ID:              p.ID,
			Name:            p.Name,
			Description:     p.Description,
			AuthorizedUsers: p.Users,
			CreatedAt:       now,
		})
		if err := count("project", p.ID, err); err != nil {
			return res, err
		}
	}
	return res, nil
}

// LoadFile parses the seed file at path and applies it to s.
func LoadFile(s Store, path string, logger *slog.Logger) (Result, error) {
	fh, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("open seed: %w", err)
	}
	defer fh.Close()

	f, err := Parse(fh)
	if err != nil {
		return Result{}, err
	}
	res, err := Apply(s, f, logger)
	if err != nil {
		return res, err
	}
	logger.Info("seed applied", "path", path, "created", res.Created, "skipped", res.Skipped)
	return res, nil
}
