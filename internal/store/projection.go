package store

// SlotStatusView is the per-slot shape exposed to polling clients: the
// original filename for identification plus the status string, never
// attempt counts or error detail.
type SlotStatusView struct {
	OriginalName string     `json:"original_name"`
	Status       SlotStatus `json:"status"`
}

type StatusProjection struct {
	Slots        []SlotStatusView `json:"media"`
	AllProcessed bool             `json:"all_processed"`
}

// ProjectStatus derives the polling view from a post's current slot list.
// A post with no media is vacuously all-processed.
func ProjectStatus(p *Post) StatusProjection {
	proj := StatusProjection{
		Slots:        make([]SlotStatusView, 0, len(p.Media)),
		AllProcessed: true,
	}

	for _, slot := range p.Media {
		proj.Slots = append(proj.Slots, SlotStatusView{
			OriginalName: slot.OriginalName,
			Status:       slot.Status,
		})
		if slot.Status != SlotProcessed {
			proj.AllProcessed = false
		}
	}
	return proj
}
