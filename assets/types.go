package assets

import (
	"github.com/goccy/go-json"
	"github.com/plus3/slotmap/handle"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Handle tags of the catalog's storages.
const (
	ShaderTag  uint16 = 1
	TextureTag uint16 = 2
	SpriteTag  uint16 = 3
	TileMapTag uint16 = 4
)

type Shader struct {
	VertexPath   string `json:"vertex_path" yaml:"vertex_path"`
	FragmentPath string `json:"fragment_path" yaml:"fragment_path"`
}

type Texture struct {
	Path   string `json:"path" yaml:"path"`
	Width  uint32 `json:"width" yaml:"width"`
	Height uint32 `json:"height" yaml:"height"`
}

// Bounds is a sprite's rectangle within its texture, in pixels, plus the
// sprite's origin offset. It is persisted as [x, y, w, h, ox, oy].
type Bounds struct {
	X, Y   uint32
	W, H   uint32
	OX, OY uint32
}

func (b Bounds) tuple() [6]uint32 {
	return [6]uint32{b.X, b.Y, b.W, b.H, b.OX, b.OY}
}

func boundsFrom(t [6]uint32) Bounds {
	return Bounds{X: t[0], Y: t[1], W: t[2], H: t[3], OX: t[4], OY: t[5]}
}

func (b Bounds) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.tuple())
}

func (b *Bounds) UnmarshalJSON(bz []byte) error {
	var t [6]uint32
	if err := json.Unmarshal(bz, &t); err != nil {
		return eris.Wrap(err, "decode sprite bounds")
	}
	*b = boundsFrom(t)
	return nil
}

func (b Bounds) MarshalYAML() (any, error) {
	node := &yaml.Node{}
	if err := node.Encode(b.tuple()); err != nil {
		return nil, eris.Wrap(err, "encode sprite bounds")
	}
	node.Style = yaml.FlowStyle
	return node, nil
}

func (b *Bounds) UnmarshalYAML(value *yaml.Node) error {
	var t []uint32
	if err := value.Decode(&t); err != nil {
		return eris.Wrap(err, "decode sprite bounds")
	}
	if len(t) != 6 {
		return eris.Errorf("sprite bounds need 6 values, got %d", len(t))
	}
	*b = boundsFrom([6]uint32(t))
	return nil
}

type Sprite struct {
	Texture handle.Handle `json:"texture" yaml:"texture"`
	Bounds  Bounds        `json:"rect" yaml:"rect"`
}

// UVs returns the sprite's texture coordinates as [x1, x2, y1, y2] for a
// texture of the given size.
func (s Sprite) UVs(textureWidth, textureHeight uint32) [4]float32 {
	w, h := float32(textureWidth), float32(textureHeight)
	return [4]float32{
		float32(s.Bounds.X) / w,
		float32(s.Bounds.X+s.Bounds.W) / w,
		float32(s.Bounds.Y) / h,
		float32(s.Bounds.Y+s.Bounds.H) / h,
	}
}

// TileMap is a grid of sprites, stored row by row. A null handle marks an
// empty tile.
type TileMap struct {
	Texture handle.Handle   `json:"texture" yaml:"texture"`
	Width   uint32          `json:"width" yaml:"width"`
	Height  uint32          `json:"height" yaml:"height"`
	Sprites []handle.Handle `json:"sprites" yaml:"sprites"`
}

// At returns the sprite at column x, row y.
func (m *TileMap) At(x, y uint32) (handle.Handle, bool) {
	if x >= m.Width || y >= m.Height {
		return handle.Null(SpriteTag), false
	}
	i := int(y*m.Width + x)
	if i >= len(m.Sprites) {
		return handle.Null(SpriteTag), false
	}
	return m.Sprites[i], true
}
