package ecs

// WorldStats provides a snapshot of a world's occupancy.
type WorldStats struct {
	EntityCount int
	Components  []ComponentStats
}

// ComponentStats describes one component storage.
type ComponentStats struct {
	Tag        uint16
	Type       string
	Size       int
	Capacity   int
	RecordSize uintptr
}

// CollectStats gathers per-storage sizes. Storages are listed in tag order.
func (w *World) CollectStats() WorldStats {
	stats := WorldStats{
		EntityCount: w.masks.Len(),
		Components:  make([]ComponentStats, len(w.storages)),
	}
	for i, cs := range w.storages {
		stats.Components[i] = ComponentStats{
			Tag:        cs.Tag(),
			Type:       cs.Type().String(),
			Size:       cs.Size(),
			Capacity:   cs.Capacity(),
			RecordSize: cs.Type().Size(),
		}
	}
	return stats
}
