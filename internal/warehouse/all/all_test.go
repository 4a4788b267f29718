package all

import (
	"testing"

	"tfletl/internal/warehouse"
)

func TestAllKindsRegistered(t *testing.T) {
	got := map[string]bool{}
	for _, k := range warehouse.ListKinds() {
		got[k] = true
	}
	for _, want := range []string{"bigquery", "postgres", "sqlite"} {
		if !got[want] {
			t.Errorf("kind %q not registered; have %v", want, warehouse.ListKinds())
		}
	}
}
