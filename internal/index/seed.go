package index

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"rangecraft/internal/logging"
	"rangecraft/internal/schema"
)

// IndexScenario stores retrieval documents derived from an accepted scenario:
// one overview document plus one per vulnerability and service. Flag values
// are never indexed; the guide workflow redacts on top of that.
func (ix *Index) IndexScenario(ctx context.Context, s *schema.Scenario) ([]string, error) {
	entries := []Entry{{
		Content: strings.TrimSpace(fmt.Sprintf(
			"Scenario: %s\nDescription: %s\nLearning Objectives: %s\nBackground: %s\nObjectives: %s",
			s.Metadata.Name,
			s.Metadata.Description,
			strings.Join(s.Metadata.LearningObjectives, ", "),
			s.Narrative.ScenarioBackground,
			strings.Join(s.Narrative.Objectives, ", "))),
		Metadata: map[string]string{
			"type":          "scenario_overview",
			"scenario_name": s.Metadata.Name,
		},
	}}

	for _, vuln := range s.Vulnerabilities {
		entries = append(entries, Entry{
			Content: strings.TrimSpace(fmt.Sprintf(
				"Vulnerability: %s\nType: %s\nSeverity: %s\nDescription: %s\nExploitation: %s\nRemediation: %s",
				vuln.Name, vuln.Type, vuln.Severity, vuln.Description,
				orNA(vuln.ExploitationNotes), orNA(vuln.Remediation))),
			Metadata: map[string]string{
				"type":      "vulnerability",
				"vuln_type": string(vuln.Type),
			},
		})
	}

	for _, svc := range s.Services {
		entries = append(entries, Entry{
			Content: strings.TrimSpace(fmt.Sprintf(
				"Service: %s\nType: %s\nVersion: %s",
				svc.Name, svc.Type, svc.Version)),
			Metadata: map[string]string{
				"type":         "service",
				"service_type": svc.Type,
			},
		})
	}

	ids, err := ix.AddBatch(ctx, entries)
	if err != nil {
		return nil, err
	}
	logging.Index("Indexed scenario %q as %d documents", s.Metadata.Name, len(ids))
	return ids, nil
}

// IndexKnowledgeBase bulk-indexes every markdown file under dir and returns
// the number of documents added. A missing directory indexes nothing.
func (ix *Index) IndexKnowledgeBase(ctx context.Context, dir string) (int, error) {
	if _, err := os.Stat(dir); err != nil {
		return 0, nil
	}

	var entries []Entry
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".md") {
			return nil
		}
		entry, err := knowledgeEntry(path)
		if err != nil {
			logging.Get(logging.CategoryIndex).Warn("Skipping %s: %v", path, err)
			return nil
		}
		entries = append(entries, entry)
		return nil
	})
	if err != nil {
		return 0, err
	}

	if len(entries) == 0 {
		return 0, nil
	}
	if _, err := ix.AddBatch(ctx, entries); err != nil {
		return 0, err
	}
	logging.Index("Indexed knowledge base %s: %d documents", dir, len(entries))
	return len(entries), nil
}

// knowledgeEntry builds an Entry from one markdown file. The id is derived
// from the file path, not the content, so re-indexing an edited file
// overwrites its prior document instead of accumulating stale versions.
func knowledgeEntry(path string) (Entry, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Entry{}, err
	}
	return Entry{
		ID:      knowledgeID(path),
		Content: string(content),
		Metadata: map[string]string{
			"type":     "knowledge_base",
			"filename": filepath.Base(path),
			"path":     path,
		},
	}, nil
}

// knowledgeID returns a stable id for a knowledge-base file keyed by its
// path.
func knowledgeID(path string) string {
	return "kb-" + deriveID(path)
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
