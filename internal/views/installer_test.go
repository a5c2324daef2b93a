package views

import (
	"testing"

	"freight-cloud/internal/query"
)

func TestDefinitionsDependencyOrder(t *testing.T) {
	defs := Definitions()
	if len(defs) != 3 {
		t.Fatalf("got %d definitions, want 3", len(defs))
	}

	position := map[string]int{}
	for i, def := range defs {
		position[def.Name] = i
	}

	combined, ok := position[query.ViewOffersWithPriceLists]
	if !ok {
		t.Fatalf("combined view missing from definitions")
	}
	for _, def := range defs {
		if def.Name != query.ViewOffersWithPriceLists {
			continue
		}
		source, ok := position[def.ViewOn]
		if !ok {
			t.Fatalf("combined view reads from %s, which is not installed", def.ViewOn)
		}
		if source >= combined {
			t.Fatalf("view %s installed at %d after its reader at %d", def.ViewOn, source, combined)
		}
	}

	for _, def := range defs {
		if len(def.Pipeline) == 0 {
			t.Fatalf("view %s has an empty pipeline", def.Name)
		}
	}
}
