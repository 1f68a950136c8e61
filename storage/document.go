package storage

import (
	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// document is the persisted form of a Storage. Every slot is kept, free or
// not, so handles held elsewhere still resolve after a reload.
type document[T any] struct {
	Tag            uint16            `json:"tag" yaml:"tag"`
	Size           int               `json:"size" yaml:"size"`
	FirstAvailable uint32            `json:"first_available" yaml:"first_available"`
	Nodes          []nodeDocument[T] `json:"nodes" yaml:"nodes"`
}

type nodeDocument[T any] struct {
	Name       string `json:"name,omitempty" yaml:"name,omitempty"`
	Generation uint16 `json:"generation" yaml:"generation"`
	Next       uint32 `json:"next_index" yaml:"next_index"`
	Item       *T     `json:"item" yaml:"item"`
}

func (s *Storage[T]) document() document[T] {
	doc := document[T]{
		Tag:            s.tag,
		Size:           s.size,
		FirstAvailable: s.firstAvailable,
		Nodes:          make([]nodeDocument[T], len(s.nodes)),
	}
	for i, n := range s.nodes {
		doc.Nodes[i] = nodeDocument[T]{
			Generation: n.generation,
			Next:       n.next,
			Item:       n.item,
		}
		if owner, ok := s.names[n.name]; ok && owner == uint32(i) && n.item != nil {
			doc.Nodes[i].Name = n.name
		}
	}
	return doc
}

func (s *Storage[T]) MarshalJSON() ([]byte, error) {
	bz, err := json.Marshal(s.document())
	if err != nil {
		return nil, eris.Wrap(err, "encode storage")
	}
	return bz, nil
}

func (s *Storage[T]) UnmarshalJSON(bz []byte) error {
	var doc document[T]
	if err := json.Unmarshal(bz, &doc); err != nil {
		return s.reject(eris.Wrapf(ErrCorruptDocument, "decode: %v", err))
	}
	return s.load(doc)
}

func (s *Storage[T]) MarshalYAML() (any, error) {
	return s.document(), nil
}

func (s *Storage[T]) UnmarshalYAML(value *yaml.Node) error {
	var doc document[T]
	if err := value.Decode(&doc); err != nil {
		return s.reject(eris.Wrapf(ErrCorruptDocument, "decode: %v", err))
	}
	return s.load(doc)
}

func (s *Storage[T]) reject(err error) error {
	l := s.log
	if l == nil {
		l = Logger()
	}
	l.Warn("storage document rejected", zap.Uint16("tag", s.tag), zap.Error(err))
	return err
}

// load replaces the contents of s with doc after checking that doc describes a
// consistent slot map. s keeps its options; a storage that was created with New
// only accepts documents with its own tag.
func (s *Storage[T]) load(doc document[T]) error {
	if s.nodes != nil && doc.Tag != s.tag {
		return s.reject(eris.Wrapf(ErrCorruptDocument, "document tag %d, storage tag %d", doc.Tag, s.tag))
	}
	capacity := len(doc.Nodes)
	if capacity == 0 {
		return s.reject(eris.Wrap(ErrCorruptDocument, "document has no slots"))
	}

	nodes := make([]node[T], capacity)
	names := make(map[string]uint32)
	occupied := 0
	for i, nd := range doc.Nodes {
		nodes[i] = node[T]{item: nd.Item, next: nd.Next, generation: nd.Generation}
		if nd.Item == nil {
			if nd.Name != "" {
				return s.reject(eris.Wrapf(ErrCorruptDocument, "free slot %d is named %q", i, nd.Name))
			}
			continue
		}
		occupied++
		if nd.Generation == 0 {
			return s.reject(eris.Wrapf(ErrCorruptDocument, "occupied slot %d has generation 0", i))
		}
		if nd.Name == "" {
			continue
		}
		if prev, dup := names[nd.Name]; dup {
			return s.reject(eris.Wrapf(ErrCorruptDocument, "name %q used by slots %d and %d", nd.Name, prev, i))
		}
		names[nd.Name] = uint32(i)
		nodes[i].name = nd.Name
	}
	if occupied != doc.Size {
		return s.reject(eris.Wrapf(ErrCorruptDocument, "size %d, but %d slots are occupied", doc.Size, occupied))
	}

	// The free list must visit every free slot exactly once and end at the
	// capacity marker.
	visited := 0
	seen := make([]bool, capacity)
	for cur := doc.FirstAvailable; int(cur) != capacity; cur = nodes[cur].next {
		if int(cur) > capacity {
			return s.reject(eris.Wrapf(ErrCorruptDocument, "free list index %d out of range", cur))
		}
		if nodes[cur].item != nil {
			return s.reject(eris.Wrapf(ErrCorruptDocument, "free list reaches occupied slot %d", cur))
		}
		if seen[cur] {
			return s.reject(eris.Wrapf(ErrCorruptDocument, "free list cycles at slot %d", cur))
		}
		seen[cur] = true
		visited++
	}
	if visited != capacity-occupied {
		return s.reject(eris.Wrapf(ErrCorruptDocument, "free list covers %d of %d free slots", visited, capacity-occupied))
	}

	if s.nodes != nil {
		if err := s.Close(); err != nil {
			return err
		}
	}
	if s.log == nil {
		s.log = Logger()
	}
	s.tag = doc.Tag
	s.nodes = nodes
	s.names = names
	s.size = occupied
	s.firstAvailable = doc.FirstAvailable

	s.log.Debug("storage loaded",
		zap.Uint16("tag", s.tag),
		zap.Int("size", s.size),
		zap.Int("capacity", capacity))
	return nil
}
