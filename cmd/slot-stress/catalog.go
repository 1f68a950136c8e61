package main

import (
	"fmt"

	"github.com/plus3/slotmap/assets"
	"github.com/plus3/slotmap/handle"
)

// buildCatalog fills a catalog with one atlas texture cut into count sprites
// laid out in a square grid, plus a tile map using all of them.
func buildCatalog(count int) (*assets.Catalog, []handle.Handle, error) {
	c, err := assets.NewCatalog(16)
	if err != nil {
		return nil, nil, err
	}
	c.Shaders.Insert("sprite", assets.Shader{VertexPath: "shaders/sprite.vert", FragmentPath: "shaders/sprite.frag"})

	side := uint32(1)
	for int(side*side) < count {
		side++
	}
	const tile = 16
	atlas := c.Textures.Insert("atlas", assets.Texture{Path: "textures/atlas.png", Width: side * tile, Height: side * tile})

	sprites := make([]handle.Handle, count)
	tiles := make([]handle.Handle, side*side)
	for i := range tiles {
		tiles[i] = handle.Null(assets.SpriteTag)
	}
	for i := range sprites {
		x, y := uint32(i)%side, uint32(i)/side
		sprites[i] = c.Sprites.Insert(fmt.Sprintf("tile-%d", i), assets.Sprite{
			Texture: atlas,
			Bounds:  assets.Bounds{X: x * tile, Y: y * tile, W: tile, H: tile},
		})
		tiles[i] = sprites[i]
	}
	c.TileMaps.Insert("atlas-map", assets.TileMap{Texture: atlas, Width: side, Height: side, Sprites: tiles})

	if err := c.Validate(); err != nil {
		return nil, nil, err
	}
	return c, sprites, nil
}
