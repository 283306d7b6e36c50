package smiley

import (
	"context"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

type seedFile struct {
	Smileys []Smiley `yaml:"smileys"`
}

// ParseSeed decodes a YAML smiley list:
//
//	smileys:
//	  - code: ":)"
//	    path: /smileys/smile.gif
//	    sort_order: 1001
func ParseSeed(r io.Reader) ([]Smiley, error) {
	var doc seedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("decode smiley seed: %w", err)
	}
	return doc.Smileys, nil
}

// FileSource reads smileys from a YAML seed file on every List.
type FileSource struct {
	Path string
}

func (s FileSource) List(_ context.Context) ([]Smiley, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseSeed(f)
}
