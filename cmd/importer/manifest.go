package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"

	"github.com/samirrijal/placefinder/internal/workflows"
)

// Manifest lists places to register in bulk.
type Manifest struct {
	Places []PlaceEntry `json:"places"`
}

// PlaceEntry is one place in a manifest. Image is a path relative to the
// manifest file unless absolute.
type PlaceEntry struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	Image       string  `json:"image"`
}

// parseManifest decodes a manifest and resolves image paths against baseDir.
func parseManifest(r io.Reader, baseDir string) (*Manifest, error) {
	var m Manifest
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if len(m.Places) == 0 {
		return nil, errors.New("manifest lists no places")
	}
	for i := range m.Places {
		p := &m.Places[i]
		if p.Image == "" {
			return nil, fmt.Errorf("place %d (%s): image is required", i, p.Name)
		}
		if !filepath.IsAbs(p.Image) {
			p.Image = filepath.Join(baseDir, p.Image)
		}
	}
	return &m, nil
}

// Input converts the entry into workflow input.
func (e PlaceEntry) Input() workflows.RegistrationInput {
	return workflows.RegistrationInput{
		Name:        e.Name,
		Description: e.Description,
		Lat:         e.Lat,
		Lng:         e.Lng,
		ImageSource: e.Image,
	}
}

// WorkflowID is stable for the same name and coordinate, so re-running an
// import does not register a place twice while its workflow is retained.
func (e PlaceEntry) WorkflowID() string {
	key := e.Name + "|" + strconv.FormatFloat(e.Lat, 'f', -1, 64) + "|" + strconv.FormatFloat(e.Lng, 'f', -1, 64)
	return "place-import-" + uuid.NewSHA1(uuid.NameSpaceOID, []byte(key)).String()
}
