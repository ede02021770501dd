package schemas

// FieldKind is the closed set of form controls the filler knows how to drive.
type FieldKind string

const (
	KindText     FieldKind = "text"
	KindEmail    FieldKind = "email"
	KindTel      FieldKind = "tel"
	KindTextarea FieldKind = "textarea"
	KindFile     FieldKind = "file"
	KindSelect   FieldKind = "select"
	KindCheckbox FieldKind = "checkbox"
	KindRadio    FieldKind = "radio"
	KindCombobox FieldKind = "combobox"
)

// AllFieldKinds lists every supported kind in a stable order.
var AllFieldKinds = []FieldKind{
	KindText, KindEmail, KindTel, KindTextarea, KindFile,
	KindSelect, KindCheckbox, KindRadio, KindCombobox,
}

// IsTextual reports whether values for this kind are typed in as free text.
func (k FieldKind) IsTextual() bool {
	switch k {
	case KindText, KindEmail, KindTel, KindTextarea:
		return true
	}
	return false
}

// FieldOption is one choice offered by a select-like control.
type FieldOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// FieldDescriptor is an immutable snapshot of one discovered form control.
// The DOM stays the source of truth; Selector is how the control is found again.
type FieldDescriptor struct {
	Identifier  string        `json:"identifier"`
	Kind        FieldKind     `json:"kind"`
	Required    bool          `json:"required"`
	Options     []FieldOption `json:"options,omitempty"`
	Label       string        `json:"label,omitempty"`
	Name        string        `json:"name,omitempty"`
	ID          string        `json:"id,omitempty"`
	Placeholder string        `json:"placeholder,omitempty"`
	Selector    string        `json:"-"`
}

// Provenance records which mapping tier produced a value.
type Provenance string

const (
	ProvenanceDirect     Provenance = "direct"
	ProvenanceStructural Provenance = "structural"
	ProvenanceHeuristic  Provenance = "heuristic"
	ProvenanceSemantic   Provenance = "semantic"
	ProvenanceUnresolved Provenance = "unresolved"
)

// MappingResult is the resolved value for one field. Group is the heuristic
// semantic group the field belongs to, when one matched, regardless of which
// tier produced the value.
type MappingResult struct {
	Identifier  string     `json:"identifier"`
	Value       string     `json:"value,omitempty"`
	Provenance  Provenance `json:"provenance"`
	Group       string     `json:"group,omitempty"`
	Explanation string     `json:"explanation,omitempty"`
}

// Resolved reports whether a value was produced by any tier.
func (m MappingResult) Resolved() bool {
	return m.Provenance != ProvenanceUnresolved && m.Provenance != ""
}

// FillOutcome is the per-field result of a fill pass.
type FillOutcome struct {
	Identifier    string    `json:"identifier"`
	Kind          FieldKind `json:"kind"`
	Attempted     bool      `json:"attempted"`
	Succeeded     bool      `json:"succeeded"`
	FailureReason ErrorCode `json:"failure_reason,omitempty"`
	Detail        string    `json:"detail,omitempty"`
}
