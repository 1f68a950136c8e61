package assets

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/plus3/slotmap/handle"
	"github.com/plus3/slotmap/storage"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// File stems of the catalog's storages.
const (
	ShadersFile  = "shaders"
	TexturesFile = "textures"
	SpritesFile  = "sprites"
	TileMapsFile = "tilemaps"
)

// Catalog holds the named asset storages of a game. Sprites and tile maps
// refer to textures and sprites by handle, so the handles written to disk stay
// meaningful across a save and load.
type Catalog struct {
	Shaders  *storage.Storage[Shader]
	Textures *storage.Storage[Texture]
	Sprites  *storage.Storage[Sprite]
	TileMaps *storage.Storage[TileMap]

	capacity int
	log      *zap.Logger
}

// NewCatalog creates an empty catalog whose storages start with capacity slots.
func NewCatalog(capacity int) (*Catalog, error) {
	c := &Catalog{capacity: capacity, log: Logger()}
	if err := c.reset(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) reset() error {
	var err error
	if c.Shaders, err = storage.New[Shader](ShaderTag, c.capacity); err != nil {
		return err
	}
	if c.Textures, err = storage.New[Texture](TextureTag, c.capacity); err != nil {
		return err
	}
	if c.Sprites, err = storage.New[Sprite](SpriteTag, c.capacity); err != nil {
		return err
	}
	c.TileMaps, err = storage.New[TileMap](TileMapTag, c.capacity)
	return err
}

// Validate checks that every handle stored inside an asset refers to a live
// asset of the right kind. All problems are reported together.
func (c *Catalog) Validate() error {
	var errs []error
	for h, s := range c.Sprites.All() {
		if !c.Textures.Has(s.Texture) {
			errs = append(errs, dangling("sprite", label(c.Sprites.NameOf(h)), "texture", s.Texture))
		}
	}
	for h, m := range c.TileMaps.All() {
		if !c.Textures.Has(m.Texture) {
			errs = append(errs, dangling("tile map", label(c.TileMaps.NameOf(h)), "texture", m.Texture))
		}
		if uint64(len(m.Sprites)) != uint64(m.Width)*uint64(m.Height) {
			errs = append(errs, eris.Wrapf(ErrInvalidTileMap, "tile map %s is %dx%d with %d tiles",
				label(c.TileMaps.NameOf(h)), m.Width, m.Height, len(m.Sprites)))
		}
		for _, tile := range m.Sprites {
			if !tile.IsNull() && !c.Sprites.Has(tile) {
				errs = append(errs, dangling("tile map", label(c.TileMaps.NameOf(h)), "sprite", tile))
			}
		}
	}
	return errors.Join(errs...)
}

func dangling(kind, name, target string, ref handle.Handle) error {
	return eris.Wrapf(ErrDanglingReference, "%s %s refers to missing %s %s", kind, name, target, ref)
}

func label(name string, ok bool) string {
	if !ok {
		return "<unnamed>"
	}
	return name
}

// Save writes one file per storage into dir, creating dir if needed.
func (c *Catalog) Save(dir string, format Format) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "create %s", dir)
	}
	files := []struct {
		stem string
		v    any
	}{
		{ShadersFile, c.Shaders},
		{TexturesFile, c.Textures},
		{SpritesFile, c.Sprites},
		{TileMapsFile, c.TileMaps},
	}
	for _, f := range files {
		bz, err := format.marshal(f.v)
		if err != nil {
			return eris.Wrapf(err, "encode %s", f.stem)
		}
		path := filepath.Join(dir, f.stem+format.Ext())
		if err := os.WriteFile(path, bz, 0o644); err != nil {
			return eris.Wrapf(err, "write %s", path)
		}
	}
	c.log.Info("catalog saved",
		zap.String("dir", dir),
		zap.Stringer("format", format),
		zap.Int("shaders", c.Shaders.Size()),
		zap.Int("textures", c.Textures.Size()),
		zap.Int("sprites", c.Sprites.Size()),
		zap.Int("tilemaps", c.TileMaps.Size()))
	return nil
}

// findFile returns the catalog file for stem in dir, trying each known
// extension.
func findFile(dir, stem string) (string, error) {
	for _, ext := range []string{".json", ".yaml", ".yml"} {
		path := filepath.Join(dir, stem+ext)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", eris.Wrapf(os.ErrNotExist, "no %s file in %s", stem, dir)
}

func decodeFile[T any](path string, tag uint16, capacity int) (*storage.Storage[T], error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	bz, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read %s", path)
	}
	s, err := storage.New[T](tag, capacity)
	if err != nil {
		return nil, err
	}
	if err := format.unmarshal(bz, s); err != nil {
		return nil, eris.Wrapf(err, "load %s", path)
	}
	return s, nil
}

// Load replaces the catalog's contents with the files in dir. Each storage may
// be stored as JSON or YAML. The loaded set must validate; otherwise the
// catalog is left unchanged.
func (c *Catalog) Load(dir string) error {
	next := &Catalog{capacity: c.capacity, log: c.log}

	path, err := findFile(dir, ShadersFile)
	if err != nil {
		return err
	}
	if next.Shaders, err = decodeFile[Shader](path, ShaderTag, c.capacity); err != nil {
		return err
	}
	if path, err = findFile(dir, TexturesFile); err != nil {
		return err
	}
	if next.Textures, err = decodeFile[Texture](path, TextureTag, c.capacity); err != nil {
		return err
	}
	if path, err = findFile(dir, SpritesFile); err != nil {
		return err
	}
	if next.Sprites, err = decodeFile[Sprite](path, SpriteTag, c.capacity); err != nil {
		return err
	}
	if path, err = findFile(dir, TileMapsFile); err != nil {
		return err
	}
	if next.TileMaps, err = decodeFile[TileMap](path, TileMapTag, c.capacity); err != nil {
		return err
	}
	if err := next.Validate(); err != nil {
		return err
	}

	if err := c.Close(); err != nil {
		return err
	}
	c.Shaders, c.Textures, c.Sprites, c.TileMaps = next.Shaders, next.Textures, next.Sprites, next.TileMaps
	c.log.Info("catalog loaded", zap.String("dir", dir))
	return nil
}

// Reload replaces the one storage that path holds. The result must validate
// against the rest of the catalog; otherwise the catalog is left unchanged.
func (c *Catalog) Reload(path string) error {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	next := *c
	var err error
	var old interface{ Close() error }
	switch stem {
	case ShadersFile:
		old = c.Shaders
		next.Shaders, err = decodeFile[Shader](path, ShaderTag, c.capacity)
	case TexturesFile:
		old = c.Textures
		next.Textures, err = decodeFile[Texture](path, TextureTag, c.capacity)
	case SpritesFile:
		old = c.Sprites
		next.Sprites, err = decodeFile[Sprite](path, SpriteTag, c.capacity)
	case TileMapsFile:
		old = c.TileMaps
		next.TileMaps, err = decodeFile[TileMap](path, TileMapTag, c.capacity)
	default:
		return eris.Wrapf(ErrUnknownFile, "%s", path)
	}
	if err != nil {
		return err
	}
	if err := next.Validate(); err != nil {
		return err
	}

	if err := old.Close(); err != nil {
		return err
	}
	*c = next
	c.log.Info("catalog file reloaded", zap.String("path", path))
	return nil
}

// Close releases every asset in the catalog.
func (c *Catalog) Close() error {
	return errors.Join(
		c.TileMaps.Close(),
		c.Sprites.Close(),
		c.Textures.Close(),
		c.Shaders.Close(),
	)
}
