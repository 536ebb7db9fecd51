package store

import (
	"testing"
)

func TestProjectStatus(t *testing.T) {
	tests := []struct {
		name             string
		slots            []MediaSlot
		wantAllProcessed bool
	}{
		{
			name:             "no media is vacuously processed",
			slots:            nil,
			wantAllProcessed: true,
		},
		{
			name: "all slots processed",
			slots: []MediaSlot{
				{OriginalName: "a.jpg", Status: SlotProcessed},
				{OriginalName: "b.mp4", Status: SlotProcessed},
			},
			wantAllProcessed: true,
		},
		{
			name: "pending slot blocks completion",
			slots: []MediaSlot{
				{OriginalName: "a.jpg", Status: SlotProcessed},
				{OriginalName: "b.mp4", Status: SlotProcessing},
			},
			wantAllProcessed: false,
		},
		{
			name: "failed slot blocks completion",
			slots: []MediaSlot{
				{OriginalName: "a.jpg", Status: SlotFailed},
			},
			wantAllProcessed: false,
		},
		{
			name: "uploading slot blocks completion",
			slots: []MediaSlot{
				{OriginalName: "a.jpg", Status: SlotUploading},
			},
			wantAllProcessed: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proj := ProjectStatus(&Post{Media: tt.slots})
			if proj.AllProcessed != tt.wantAllProcessed {
				t.Errorf("AllProcessed = %v, want %v", proj.AllProcessed, tt.wantAllProcessed)
			}
			if len(proj.Slots) != len(tt.slots) {
				t.Fatalf("slots: got %d, want %d", len(proj.Slots), len(tt.slots))
			}
			for i, slot := range tt.slots {
				if proj.Slots[i].OriginalName != slot.OriginalName {
					t.Errorf("slot %d name: got %q, want %q", i, proj.Slots[i].OriginalName, slot.OriginalName)
				}
				if proj.Slots[i].Status != slot.Status {
					t.Errorf("slot %d status: got %q, want %q", i, proj.Slots[i].Status, slot.Status)
				}
			}
		})
	}
}
