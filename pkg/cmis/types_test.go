package cmis

import "testing"

func TestPropertyString(t *testing.T) {
	tests := []struct {
		name string
		prop Property
		want string
	}{
		{name: "string", prop: Property{Type: "string", Value: "hello"}, want: "hello"},
		{name: "nil", prop: Property{}, want: ""},
		{name: "integral number", prop: Property{Type: "integer", Value: float64(42)}, want: "42"},
		{name: "fractional number", prop: Property{Type: "decimal", Value: 1.5}, want: "1.5"},
		{name: "bool true", prop: Property{Type: "boolean", Value: true}, want: "true"},
		{name: "bool false", prop: Property{Type: "boolean", Value: false}, want: "false"},
		{name: "list", prop: Property{Type: "string", Value: []any{"a", "b"}}, want: `["a","b"]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.prop.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNodeHelpers(t *testing.T) {
	n := &Node{
		Properties: map[string]Property{
			PropObjectID:   {Type: "id", Value: "obj-1"},
			PropName:       {Type: "string", Value: "report.txt"},
			PropBaseTypeID: {Type: "id", Value: BaseTypeDocument},
		},
		AllowableActions: map[string]bool{"canCheckOut": true},
	}
	if n.ObjectID() != "obj-1" {
		t.Errorf("ObjectID() = %q", n.ObjectID())
	}
	if n.IsFolder() {
		t.Error("document reported as folder")
	}
	if !n.Allowed("canCheckOut") {
		t.Error("expected canCheckOut to be allowed")
	}
	if n.Allowed("canDeleteObject") {
		t.Error("absent action reported as allowed")
	}
	if n.Prop("cmis:missing") != "" {
		t.Error("absent property should render empty")
	}
}
