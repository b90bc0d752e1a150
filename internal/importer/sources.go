package importer

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultRequestDelayMs = 500

// Source is a feed to import, declared in the sources file.
type Source struct {
	ID             string            `json:"id" yaml:"id"`
	Name           string            `json:"name" yaml:"name"`
	URL            string            `json:"source_url" yaml:"source_url"`
	RequestDelayMs int               `json:"request_delay_ms" yaml:"request_delay_ms"`
	Headers        map[string]string `json:"headers" yaml:"headers"`
	// ScrapeSummary fills empty entry summaries from the linked page.
	ScrapeSummary bool `json:"scrape_summary" yaml:"scrape_summary"`
}

type sourcesFile struct {
	Sources []Source `json:"sources" yaml:"sources"`
}

// LoadSources reads and validates a YAML/JSON sources file.
func LoadSources(path string) ([]Source, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sources file path is empty")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sources file: %w", err)
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}

	reg, err := parseSources(raw, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	if len(reg.Sources) == 0 {
		return nil, errors.New("sources file contains no sources entries")
	}

	seen := make(map[string]struct{}, len(reg.Sources))
	for i := range reg.Sources {
		src := sanitizeSource(reg.Sources[i])
		if err := validateSource(src); err != nil {
			return nil, fmt.Errorf("sources[%d]: %w", i, err)
		}
		if _, exists := seen[src.ID]; exists {
			return nil, fmt.Errorf("duplicate source id %q", src.ID)
		}
		seen[src.ID] = struct{}{}
		reg.Sources[i] = src
	}
	return reg.Sources, nil
}

func parseSources(data []byte, ext string) (sourcesFile, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))

	decoders := []struct {
		ext string
		fn  func([]byte, any) error
	}{
		{ext: ".yaml", fn: yaml.Unmarshal},
		{ext: ".yml", fn: yaml.Unmarshal},
		{ext: ".json", fn: json.Unmarshal},
	}

	for _, d := range decoders {
		if ext != "" && ext != d.ext {
			continue
		}
		var reg sourcesFile
		if err := d.fn(data, &reg); err == nil {
			return reg, nil
		}
	}
	return sourcesFile{}, errors.New("sources file format not recognized (expected YAML or JSON)")
}

func sanitizeSource(s Source) Source {
	s.ID = strings.TrimSpace(s.ID)
	s.Name = strings.TrimSpace(s.Name)
	s.URL = strings.TrimSpace(s.URL)
	if s.ID == "" {
		s.ID = s.URL
	}
	if s.RequestDelayMs <= 0 {
		s.RequestDelayMs = defaultRequestDelayMs
	}

	headers := make(map[string]string, len(s.Headers))
	for k, v := range s.Headers {
		if k, v = strings.TrimSpace(k), strings.TrimSpace(v); k != "" && v != "" {
			headers[k] = v
		}
	}
	s.Headers = headers
	return s
}

func validateSource(s Source) error {
	if s.URL == "" {
		return errors.New("source_url is required")
	}
	if !strings.HasPrefix(s.URL, "http://") && !strings.HasPrefix(s.URL, "https://") {
		return fmt.Errorf("source %q: source_url must be http(s)", s.ID)
	}
	return nil
}

// RequestDelay returns the pause between consecutive sources.
func (s Source) RequestDelay() time.Duration {
	if s.RequestDelayMs <= 0 {
		return time.Duration(defaultRequestDelayMs) * time.Millisecond
	}
	return time.Duration(s.RequestDelayMs) * time.Millisecond
}
