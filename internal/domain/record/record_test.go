package record

import (
	"encoding/json"
	"testing"

	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/domain/geo"
)

func ptr(v int64) *int64 { return &v }

var charleston = geo.BBox{West: -80, South: 32, East: -79, North: 33}

func TestNew_TitleFallsBackToID(t *testing.T) {
	r, err := New("noaa-6328", "", charleston, "https://example.com/6328/ept.json", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Title() != "noaa-6328" {
		t.Errorf("Title() = %q", r.Title())
	}
	if _, ok := r.PointCount(); ok {
		t.Error("expected unknown point count")
	}
	if r.RankKey() != 0 {
		t.Errorf("RankKey() = %d, want 0", r.RankKey())
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		id   string
		bbox geo.BBox
		pc   *int64
	}{
		{"empty id", "", charleston, nil},
		{"inverted bbox", "a", geo.BBox{West: -79, South: 32, East: -80, North: 33}, nil},
		{"out of range", "a", geo.BBox{West: -190, South: 32, East: -79, North: 33}, nil},
		{"negative count", "a", charleston, ptr(-1)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(tc.id, "", tc.bbox, "", tc.pc); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestJSON(t *testing.T) {
	r, err := New("noaa-6328", "Charleston", charleston, "https://example.com/6328/ept.json", ptr(1000000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"id":"noaa-6328","title":"Charleston","bbox":[-80,32,-79,33],` +
		`"dataUrl":"https://example.com/6328/ept.json","pointCount":1000000}`
	if string(data) != want {
		t.Fatalf("unexpected json:\ngot:  %s\nwant: %s", data, want)
	}

	var back Record
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back != r {
		t.Fatalf("round trip mismatch: %+v vs %+v", back, r)
	}
}

func TestJSON_RejectsInvalid(t *testing.T) {
	var r Record
	if err := json.Unmarshal([]byte(`{"id":"","bbox":[0,0,1,1]}`), &r); err == nil {
		t.Fatal("expected error for empty id")
	}
	if err := json.Unmarshal([]byte(`{"id":"a","bbox":[0,0,1]}`), &r); err == nil {
		t.Fatal("expected error for short bbox")
	}
}
