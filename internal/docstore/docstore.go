// Package docstore implements the Agent File Store (C3): each agent is
// persisted as one self-describing JSON document with a metadata header and
// an ordered list of ConversationMessages, per spec.md §4.2 and the
// canonical layout of spec.md §6.
package docstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/agentworkbench/workbench/internal/hostapi"
	"github.com/agentworkbench/workbench/internal/model"
)

// Metadata is the document's header (spec.md §6 canonical layout).
type Metadata struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	CreatedAt    time.Time `json:"createdAt"`
	ParentID     string    `json:"parentId,omitempty"`
	AllowedPaths []string  `json:"allowedPaths"`
	TaskFinished bool      `json:"taskFinished"`
	Model        string    `json:"model,omitempty"`
	ChildrenList []string  `json:"childrenList"`
}

// Document is the full on-disk shape: {metadata, context}.
type Document struct {
	Metadata Metadata        `json:"metadata"`
	Context  []model.Message `json:"context"`
}

// Patch describes a partial metadata update (spec.md §4.2
// updateMetadata: "patch may include name, taskFinished, parentId,
// childrenList, model").
type Patch struct {
	Name         *string
	TaskFinished *bool
	ParentID     *string
	ChildrenList []string
	Model        *string
}

// Store persists agent documents via a hostapi.FileSystem.
type Store struct {
	fs   hostapi.FileSystem
	root string
}

// New constructs a Store rooted at root on fs.
func New(fs hostapi.FileSystem, root string) *Store {
	return &Store{fs: fs, root: root}
}

func (s *Store) locationFor(id string) string {
	return fmt.Sprintf("%s/%s.agent.json", s.root, id)
}

// LocationForID reconstructs the canonical document location for id
// without requiring a prior Create call, used by tree hydration (spec.md
// §4.9) when an ancestor or child is referenced only by id.
func (s *Store) LocationForID(id string) string {
	return s.locationFor(id)
}

// Create writes a brand-new document for id and returns its location
// (spec.md §4.2 create).
func (s *Store) Create(id, parentID, prompt string, allowedPaths []string, model_ string, childrenList []string) (string, error) {
	doc := Document{
		Metadata: Metadata{
			ID:           id,
			Name:         "New Agent",
			CreatedAt:    time.Now().UTC(),
			ParentID:     parentID,
			AllowedPaths: allowedPaths,
			TaskFinished: false,
			Model:        model_,
			ChildrenList: childrenList,
		},
	}
	if prompt != "" {
		doc.Context = []model.Message{{Role: model.RoleUser, Content: prompt}}
	}
	location := s.locationFor(id)
	if err := s.write(location, &doc); err != nil {
		return "", err
	}
	return location, nil
}

// Load reads and decodes the document at location (spec.md §4.2 load).
func (s *Store) Load(location string) (*Document, error) {
	raw, err := s.fs.ReadFile(location)
	if err != nil {
		return nil, fmt.Errorf("read agent document %s: %w", location, err)
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode agent document %s: %w", location, err)
	}
	return &doc, nil
}

// UpdateMetadata applies patch to the document at location as a total
// replacement of the metadata header (spec.md §4.2: "Writes must be total
// replacement of the document's metadata").
func (s *Store) UpdateMetadata(location string, patch Patch) error {
	doc, err := s.Load(location)
	if err != nil {
		return err
	}
	if patch.Name != nil {
		doc.Metadata.Name = *patch.Name
	}
	if patch.TaskFinished != nil {
		doc.Metadata.TaskFinished = *patch.TaskFinished
	}
	if patch.ParentID != nil {
		doc.Metadata.ParentID = *patch.ParentID
	}
	if patch.ChildrenList != nil {
		doc.Metadata.ChildrenList = patch.ChildrenList
	}
	if patch.Model != nil {
		doc.Metadata.Model = *patch.Model
	}
	return s.write(location, doc)
}

// UpdateCellInteraction replaces the messages attached to cellIndex with
// newMessages (spec.md §4.2 updateCellInteraction). This implementation
// keeps a flat ordered context list and treats cellIndex as the offset at
// which the new turns begin, truncating anything previously recorded past
// that point — "total replacement of ... the targeted cell's attached
// interaction".
func (s *Store) UpdateCellInteraction(location string, cellIndex int, newMessages []model.Message) error {
	doc, err := s.Load(location)
	if err != nil {
		return err
	}
	if cellIndex < 0 {
		cellIndex = 0
	}
	if cellIndex > len(doc.Context) {
		cellIndex = len(doc.Context)
	}
	doc.Context = append(doc.Context[:cellIndex:cellIndex], newMessages...)
	return s.write(location, doc)
}

func (s *Store) write(location string, doc *Document) error {
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode agent document: %w", err)
	}
	if err := s.fs.WriteFile(location, raw); err != nil {
		return fmt.Errorf("write agent document %s: %w", location, err)
	}
	return nil
}

// Delete removes the document at location from the host filesystem.
func (s *Store) Delete(location string) error {
	return s.fs.DeleteFile(location)
}
