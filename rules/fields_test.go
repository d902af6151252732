package rules

import "testing"

// TestOperatorTable verifies the field-type to operator mapping: boolean
// fields only compare for equality, numeric fields order, text fields
// substring-match.
func TestOperatorTable(t *testing.T) {
	testCases := []struct {
		fieldType FieldType
		op        Operator
		allowed   bool
	}{
		{FieldBoolean, OpEquals, true},
		{FieldBoolean, OpNotEquals, true},
		{FieldBoolean, OpContains, false},
		{FieldBoolean, OpGreaterThan, false},
		{FieldNumber, OpGreaterThan, true},
		{FieldNumber, OpLessThan, true},
		{FieldNumber, OpEquals, true},
		{FieldNumber, OpContains, false},
		{FieldText, OpContains, true},
		{FieldText, OpEquals, true},
		{FieldText, OpGreaterThan, false},
		{FieldDate, OpGreaterThan, true},
		{FieldDate, OpLessThan, true},
		{FieldDate, OpContains, false},
		{FieldPicklist, OpEquals, true},
		{FieldPicklist, OpContains, true},
		{FieldPicklist, OpLessThan, false},
	}

	for _, tc := range testCases {
		if got := OperatorAllowed(tc.fieldType, tc.op); got != tc.allowed {
			t.Errorf("OperatorAllowed(%s, %s) = %v, want %v", tc.fieldType, tc.op, got, tc.allowed)
		}
	}
}

// TestFieldSchemaLookup verifies name lookup and declaration order.
func TestFieldSchemaLookup(t *testing.T) {
	schema := NewFieldSchema([]FieldSpec{
		{Name: "alpha", Label: "Alpha", Type: FieldText},
		{Name: "beta", Label: "Beta", Type: FieldNumber},
	})

	spec, ok := schema.Field("beta")
	if !ok {
		t.Fatal("Field(beta) should exist")
	}
	if spec.Type != FieldNumber {
		t.Errorf("Field(beta).Type = %s, want %s", spec.Type, FieldNumber)
	}

	if _, ok := schema.Field("gamma"); ok {
		t.Error("Field(gamma) should not exist")
	}

	fields := schema.Fields()
	if len(fields) != 2 || fields[0].Name != "alpha" || fields[1].Name != "beta" {
		t.Errorf("Fields() = %v, want declaration order alpha, beta", fields)
	}
}

// TestDefaultFieldSchemaCoversBuiltins verifies the built-in record fields
// are queryable by condition rules.
func TestDefaultFieldSchemaCoversBuiltins(t *testing.T) {
	schema := DefaultFieldSchema()

	for _, name := range []string{"queue_status", "contributor_name"} {
		if _, ok := schema.Field(name); !ok {
			t.Errorf("default schema is missing built-in field %q", name)
		}
	}
}
