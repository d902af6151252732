package rules

// FieldType is the closed set of type tags a queryable contributor-project
// field may declare. Operator applicability is derived from this tag alone.
type FieldType string

const (
	FieldText     FieldType = "text"
	FieldNumber   FieldType = "number"
	FieldDate     FieldType = "date"
	FieldBoolean  FieldType = "boolean"
	FieldPicklist FieldType = "picklist"
)

// FieldSpec describes one queryable field of a contributor project.
type FieldSpec struct {
	Name  string    `json:"name"`
	Label string    `json:"label"`
	Type  FieldType `json:"type"`
}

// FieldSchema is the static schema-description lookup used when validating
// and compiling condition-based rules. It preserves declaration order for
// listing.
type FieldSchema struct {
	fields []FieldSpec
	byName map[string]FieldSpec
}

// NewFieldSchema builds a schema from the given specs. Later specs with a
// duplicate name override earlier ones.
func NewFieldSchema(specs []FieldSpec) FieldSchema {
	s := FieldSchema{
		fields: make([]FieldSpec, 0, len(specs)),
		byName: make(map[string]FieldSpec, len(specs)),
	}
	for _, spec := range specs {
		if _, dup := s.byName[spec.Name]; !dup {
			s.fields = append(s.fields, spec)
		}
		s.byName[spec.Name] = spec
	}
	return s
}

// Field looks up a spec by field name.
func (s FieldSchema) Field(name string) (FieldSpec, bool) {
	spec, ok := s.byName[name]
	return spec, ok
}

// Fields returns all specs in declaration order.
func (s FieldSchema) Fields() []FieldSpec {
	out := make([]FieldSpec, len(s.fields))
	copy(out, s.fields)
	return out
}

// operatorTable maps each field type to its permitted operators. Checked at
// rule-save time so the evaluator never sees an incompatible pairing.
var operatorTable = map[FieldType][]Operator{
	FieldText:     {OpEquals, OpNotEquals, OpContains},
	FieldNumber:   {OpEquals, OpNotEquals, OpGreaterThan, OpLessThan},
	FieldDate:     {OpEquals, OpGreaterThan, OpLessThan},
	FieldBoolean:  {OpEquals, OpNotEquals},
	FieldPicklist: {OpEquals, OpNotEquals, OpContains},
}

// OperatorsFor returns the operators permitted for a field type.
func OperatorsFor(t FieldType) []Operator {
	ops := operatorTable[t]
	out := make([]Operator, len(ops))
	copy(out, ops)
	return out
}

// OperatorAllowed reports whether op may be applied to a field of type t.
func OperatorAllowed(t FieldType, op Operator) bool {
	for _, allowed := range operatorTable[t] {
		if allowed == op {
			return true
		}
	}
	return false
}

// DefaultFieldSchema returns the queryable contributor-project fields the
// engine ships with. Deployments mirroring a different CRM layout construct
// their own schema via NewFieldSchema.
func DefaultFieldSchema() FieldSchema {
	return NewFieldSchema([]FieldSpec{
		{Name: "queue_status", Label: "Queue Status", Type: FieldPicklist},
		{Name: "contributor_name", Label: "Contributor Name", Type: FieldText},
		{Name: "email", Label: "Email", Type: FieldText},
		{Name: "hours_worked", Label: "Hours Worked", Type: FieldNumber},
		{Name: "tasks_completed", Label: "Tasks Completed", Type: FieldNumber},
		{Name: "accuracy_score", Label: "Accuracy Score", Type: FieldNumber},
		{Name: "active", Label: "Active", Type: FieldBoolean},
		{Name: "onboarding_complete", Label: "Onboarding Complete", Type: FieldBoolean},
		{Name: "start_date", Label: "Start Date", Type: FieldDate},
		{Name: "last_activity_date", Label: "Last Activity Date", Type: FieldDate},
	})
}
