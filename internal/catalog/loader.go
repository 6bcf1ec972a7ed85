// Package catalog loads and serves the content catalogs: topics, subjects
// and achievement definitions. Catalogs are read once at startup and are
// immutable afterwards; a content change means a reload and rebuild.
package catalog

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Loader loads and caches catalog content from the filesystem.
type Loader struct {
	rootDir  string
	topics   map[string]Topic
	subjects map[string]Subject
	mu       sync.RWMutex
}

// NewLoader creates a catalog loader and loads all topic and subject content
// under rootDir. Topic files are YAML with an `id` field; a `subjects.yaml`
// (or `subjects.yml`) file declares the subject list.
func NewLoader(rootDir string) (*Loader, error) {
	l := &Loader{
		rootDir:  rootDir,
		topics:   make(map[string]Topic),
		subjects: make(map[string]Subject),
	}

	if err := l.loadAll(); err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}

	if len(l.subjects) == 0 {
		l.inferSubjects()
	}

	slog.Info("catalog loaded", "topics", len(l.topics), "subjects", len(l.subjects))
	return l, nil
}

// NewStaticLoader builds a loader from already-parsed topics, bypassing
// the filesystem. Subjects are inferred from the topics.
func NewStaticLoader(topics []Topic) *Loader {
	l := &Loader{
		topics:   make(map[string]Topic, len(topics)),
		subjects: make(map[string]Subject),
	}
	for _, t := range topics {
		if t.ID != "" {
			l.topics[t.ID] = t
		}
	}
	l.inferSubjects()
	return l
}

// GetTopic returns a topic by ID.
func (l *Loader) GetTopic(id string) (Topic, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, ok := l.topics[id]
	return t, ok
}

// GetSubject returns a subject by ID.
func (l *Loader) GetSubject(id string) (Subject, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, ok := l.subjects[id]
	return s, ok
}

// AllTopics returns all loaded topics ordered by subject then order index.
func (l *Loader) AllTopics() []Topic {
	l.mu.RLock()
	defer l.mu.RUnlock()
	topics := make([]Topic, 0, len(l.topics))
	for _, t := range l.topics {
		topics = append(topics, t)
	}
	sort.Slice(topics, func(i, j int) bool {
		if topics[i].SubjectID != topics[j].SubjectID {
			return topics[i].SubjectID < topics[j].SubjectID
		}
		if topics[i].OrderIndex != topics[j].OrderIndex {
			return topics[i].OrderIndex < topics[j].OrderIndex
		}
		return topics[i].ID < topics[j].ID
	})
	return topics
}

// SubjectTopics returns the topics of one subject, ordered by order index.
func (l *Loader) SubjectTopics(subjectID string) []Topic {
	var topics []Topic
	for _, t := range l.AllTopics() {
		if t.SubjectID == subjectID {
			topics = append(topics, t)
		}
	}
	return topics
}

// AllSubjects returns all subjects ordered by ID.
func (l *Loader) AllSubjects() []Subject {
	l.mu.RLock()
	defer l.mu.RUnlock()
	subjects := make([]Subject, 0, len(l.subjects))
	for _, s := range l.subjects {
		subjects = append(subjects, s)
	}
	sort.Slice(subjects, func(i, j int) bool { return subjects[i].ID < subjects[j].ID })
	return subjects
}

func (l *Loader) loadAll() error {
	return filepath.Walk(l.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}

		if !strings.HasSuffix(path, ".yaml") && !strings.HasSuffix(path, ".yml") {
			return nil
		}

		base := filepath.Base(path)
		if base == "subjects.yaml" || base == "subjects.yml" {
			return l.loadSubjects(path)
		}
		return l.loadTopic(path)
	})
}

func (l *Loader) loadTopic(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var topic Topic
	if err := yaml.Unmarshal(data, &topic); err != nil {
		slog.Warn("skipping invalid topic YAML", "path", path, "error", err)
		return nil
	}

	if topic.ID == "" {
		return nil // Not a topic file
	}

	l.mu.Lock()
	l.topics[topic.ID] = topic
	l.mu.Unlock()

	return nil
}

func (l *Loader) loadSubjects(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var doc struct {
		Subjects []Subject `yaml:"subjects"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	l.mu.Lock()
	for _, s := range doc.Subjects {
		if s.ID != "" {
			l.subjects[s.ID] = s
		}
	}
	l.mu.Unlock()

	return nil
}

// inferSubjects derives subjects from topic subject_id fields when no
// subjects.yaml was provided.
func (l *Loader) inferSubjects() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, t := range l.topics {
		if t.SubjectID == "" {
			continue
		}
		s, ok := l.subjects[t.SubjectID]
		if !ok {
			s = Subject{ID: t.SubjectID, Name: t.SubjectID}
		}
		s.TopicIDs = append(s.TopicIDs, t.ID)
		l.subjects[t.SubjectID] = s
	}
	for id, s := range l.subjects {
		sort.Strings(s.TopicIDs)
		l.subjects[id] = s
	}
}
