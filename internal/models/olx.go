package models

// Action is the kind of change a diff record describes.
type Action string

const (
	ActionAdd    Action = "ADD"
	ActionDelete Action = "DELETE"
	ActionModify Action = "MODIFY"
)

// Actions lists every valid action in report order.
var Actions = []Action{ActionAdd, ActionDelete, ActionModify}

// StatSuffix is the CHANGESTAT attribute suffix used for the action.
func (a Action) StatSuffix() string {
	switch a {
	case ActionAdd:
		return "ADD"
	case ActionDelete:
		return "DEL"
	case ActionModify:
		return "MOD"
	}
	return ""
}

// Valid reports whether a is one of the three change actions.
func (a Action) Valid() bool {
	return a == ActionAdd || a == ActionDelete || a == ActionModify
}

// Object type tags used as OLXDBTABLE names and OBJTYPE attributes.
const (
	ObjBus       = "BUS"
	ObjGen       = "GEN"
	ObjGenUnit   = "GENUNIT"
	ObjLoad      = "LOAD"
	ObjLoadUnit  = "LOADUNIT"
	ObjShunt     = "SHUNT"
	ObjShuntUnit = "SHUNTUNIT"
	ObjSVD       = "SVD"
	ObjLine      = "LINE"
	ObjDCLine    = "DCLINE2"
	ObjSwitch    = "SWITCH"
	ObjShifter   = "PS"
	ObjCoordPair = "COORDPAIR"
	ObjXfmr      = "XFMR"
	ObjXfmr3     = "XFMR3"
	ObjLTC       = "LTC"
	ObjLTC3      = "LTC3"
	ObjZCorrect  = "ZCORRECT"
	ObjBreaker   = "BREAKER"
	ObjMutual    = "MU"
	ObjArea      = "AREA"
	ObjZone      = "ZONE"
	ObjRelayOCG  = "RLYOCG"
	ObjRelayOCP  = "RLYOCP"
	ObjRelayDSG  = "RLYDSG"
	ObjRelayDSP  = "RLYDSP"
	ObjRelayGrp  = "RLYGROUP"
	ObjFuse      = "FUSE"
	ObjRecloser  = "RECLSR"
	ObjRelayD    = "RLYD"
	ObjRelayV    = "RLYV"
	ObjScheme    = "SCHEME"
)

// ObjectTypes lists every object type tag the toolkit knows.
var ObjectTypes = []string{
	ObjBus, ObjGen, ObjGenUnit, ObjLoad, ObjLoadUnit, ObjShunt, ObjShuntUnit, ObjSVD,
	ObjLine, ObjDCLine, ObjSwitch, ObjShifter, ObjCoordPair, ObjXfmr, ObjXfmr3,
	ObjLTC, ObjLTC3, ObjZCorrect, ObjBreaker, ObjMutual, ObjArea, ObjZone,
	ObjRelayOCG, ObjRelayOCP, ObjRelayDSG, ObjRelayDSP, ObjRelayGrp, ObjFuse,
	ObjRecloser, ObjRelayD, ObjRelayV, ObjScheme,
}

// IsObjectType reports whether t is a known object type tag.
func IsObjectType(t string) bool {
	for _, o := range ObjectTypes {
		if o == t {
			return true
		}
	}
	return false
}
