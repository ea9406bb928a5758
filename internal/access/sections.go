// Package access maps staff identities to roles and answers which patient
// detail sections a role may view or edit. It is a pure access-control
// predicate: it never decides what a section contains.
package access

// Role is a staff member's resolved role.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleDoctor Role = "doctor"
	RoleNurse  Role = "nurse"
	RoleStaff  Role = "staff"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleDoctor, RoleNurse, RoleStaff:
		return true
	}
	return false
}

// Section is one block of a patient detail view.
type Section string

const (
	SectionOverview      Section = "overview"
	SectionScreening     Section = "screening"
	SectionComplaints    Section = "complaints"
	SectionPrescriptions Section = "prescriptions"
	SectionECG           Section = "ecg"
	SectionOptician      Section = "optician"
	SectionDental        Section = "dental"
	SectionPapSmears     Section = "pap_smears"
	SectionImmunizations Section = "immunizations"
	SectionHistory       Section = "history"
	SectionQueueAdmin    Section = "queue_admin"
)

// Sections lists every known section in display order.
var Sections = []Section{
	SectionOverview,
	SectionScreening,
	SectionComplaints,
	SectionPrescriptions,
	SectionECG,
	SectionOptician,
	SectionDental,
	SectionPapSmears,
	SectionImmunizations,
	SectionHistory,
	SectionQueueAdmin,
}

// Capability is the per-section access a role holds.
type Capability struct {
	CanView bool `json:"can_view"`
	CanEdit bool `json:"can_edit"`
}

func view() Capability     { return Capability{CanView: true} }
func viewEdit() Capability { return Capability{CanView: true, CanEdit: true} }

// capabilityTable is the static role -> section -> capability mapping.
// Unknown roles and sections fail closed.
var capabilityTable = map[Role]map[Section]Capability{
	RoleAdmin: {
		SectionOverview:      viewEdit(),
		SectionScreening:     viewEdit(),
		SectionComplaints:    viewEdit(),
		SectionPrescriptions: viewEdit(),
		SectionECG:           viewEdit(),
		SectionOptician:      viewEdit(),
		SectionDental:        viewEdit(),
		SectionPapSmears:     viewEdit(),
		SectionImmunizations: viewEdit(),
		SectionHistory:       viewEdit(),
		SectionQueueAdmin:    viewEdit(),
	},
	RoleDoctor: {
		SectionOverview:      view(),
		SectionScreening:     view(),
		SectionComplaints:    viewEdit(),
		SectionPrescriptions: viewEdit(),
		SectionECG:           viewEdit(),
		SectionOptician:      view(),
		SectionDental:        view(),
		SectionPapSmears:     view(),
		SectionImmunizations: view(),
		SectionHistory:       viewEdit(),
	},
	RoleNurse: {
		SectionOverview:      view(),
		SectionScreening:     viewEdit(),
		SectionComplaints:    view(),
		SectionECG:           view(),
		SectionImmunizations: viewEdit(),
		SectionHistory:       view(),
	},
	RoleStaff: {
		SectionOverview: viewEdit(),
	},
}

// CanView reports whether the role may see the section.
func CanView(role Role, section Section) bool {
	return capabilityTable[role][section].CanView
}

// CanEdit reports whether the role may change the section.
func CanEdit(role Role, section Section) bool {
	return capabilityTable[role][section].CanEdit
}

// Capabilities returns the role's capability for every known section, so the
// presentation layer can iterate the table instead of branching per section.
func Capabilities(role Role) map[Section]Capability {
	out := make(map[Section]Capability, len(Sections))
	for _, s := range Sections {
		out[s] = capabilityTable[role][s]
	}
	return out
}
