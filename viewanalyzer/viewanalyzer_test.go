package viewanalyzer

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/SocketCluster/sc-crud-rethink/schema"
)

func testAnalyzer() *Analyzer {
	reg := schema.New(map[string]schema.Model{
		"Product": {
			Fields: []string{"id", "name", "categoryId", "price"},
			Views: map[string]schema.View{
				"byCat": {
					ParamFields:     []string{"categoryId"},
					AffectingFields: []string{"price"},
				},
			},
		},
	})

	return New(reg)
}

func TestAffectedAssumeAllFieldsChanged(t *testing.T) {
	a := testAnalyzer()
	got := a.Affected(Mutation{
		Type:     "Product",
		Resource: schema.Document{"id": "p1", "categoryId": "c1", "price": 9},
		Fields:   nil,
	})
	if len(got) != 1 {
		t.Fatalf("got %d affected views, want 1", len(got))
	}
	if diff := cmp.Diff(map[string]any{"categoryId": "c1"}, got[0].Params); diff != "" {
		t.Errorf("Params mismatch (-want +got):\n%s", diff)
	}
}

func TestAffectedByParamField(t *testing.T) {
	a := testAnalyzer()
	got := a.Affected(Mutation{
		Type:     "Product",
		Resource: schema.Document{"id": "p1", "categoryId": "c2"},
		Fields:   []string{"categoryId"},
	})
	if len(got) != 1 {
		t.Fatalf("expected byCat affected, got %v", got)
	}
}

func TestAffectedByAffectingField(t *testing.T) {
	a := testAnalyzer()
	got := a.Affected(Mutation{
		Type:     "Product",
		Resource: schema.Document{"id": "p1", "categoryId": "c1", "price": 5},
		Fields:   []string{"price"},
	})
	if len(got) != 1 {
		t.Fatalf("expected byCat affected on price change, got %v", got)
	}
}

func TestAffectedByIDAlwaysAffecting(t *testing.T) {
	a := testAnalyzer()
	got := a.Affected(Mutation{
		Type:     "Product",
		Resource: schema.Document{"id": "p1", "categoryId": "c1"},
		Fields:   []string{"id"},
	})
	if len(got) != 1 {
		t.Fatalf("expected byCat affected on id change (create/delete), got %v", got)
	}
}

func TestNotAffectedByUnrelatedField(t *testing.T) {
	a := testAnalyzer()
	got := a.Affected(Mutation{
		Type:     "Product",
		Resource: schema.Document{"id": "p1", "categoryId": "c1", "name": "A"},
		Fields:   []string{"name"},
	})
	if len(got) != 0 {
		t.Errorf("expected no affected views, got %v", got)
	}
}

func TestAnalyzeUpdateParamChange(t *testing.T) {
	a := testAnalyzer()
	oldAffected, newAffected := a.AnalyzeUpdate("Product",
		schema.Document{"id": "p1", "categoryId": "c1"},
		schema.Document{"id": "p1", "categoryId": "c2"},
		[]string{"categoryId"},
	)
	if len(oldAffected) != 1 || len(newAffected) != 1 {
		t.Fatalf("expected exactly one affected view on each side, got old=%v new=%v", oldAffected, newAffected)
	}
	if oldAffected[0].Params["categoryId"] == newAffected[0].Params["categoryId"] {
		t.Errorf("expected params to differ across old/new sides")
	}
}
