package model

import (
	"strings"

	"hermannm.dev/enumnames"
)

// Variable identifies one of the TerraClimate variables. Each variable is
// served as its own remote dataset.
type Variable uint8

const (
	VariableAET Variable = iota + 1
	VariableDEF
	VariablePET
	VariablePPT
	VariableQ
	VariableSoil
	VariableSRad
	VariableSWE
	VariableTMax
	VariableTMin
	VariableVap
	VariableWS
	VariableVPD
	VariablePDSI
)

// Names are the dataset variable codes and must match the remote store exactly.
var variableMap = enumnames.NewMap(map[Variable]string{
	VariableAET:  "aet",
	VariableDEF:  "def",
	VariablePET:  "pet",
	VariablePPT:  "ppt",
	VariableQ:    "q",
	VariableSoil: "soil",
	VariableSRad: "srad",
	VariableSWE:  "swe",
	VariableTMax: "tmax",
	VariableTMin: "tmin",
	VariableVap:  "vap",
	VariableWS:   "ws",
	VariableVPD:  "vpd",
	VariablePDSI: "PDSI",
})

var allVariables = []Variable{
	VariableAET, VariableDEF, VariablePET, VariablePPT, VariableQ, VariableSoil, VariableSRad,
	VariableSWE, VariableTMax, VariableTMin, VariableVap, VariableWS, VariableVPD, VariablePDSI,
}

type variableInfo struct {
	unit        string
	description string
}

var variableInfos = map[Variable]variableInfo{
	VariableAET:  {"mm", "actual evapotranspiration"},
	VariableDEF:  {"mm", "climatic water deficit"},
	VariablePET:  {"mm", "reference evapotranspiration"},
	VariablePPT:  {"mm", "precipitation accumulation"},
	VariableQ:    {"mm", "runoff"},
	VariableSoil: {"mm", "soil moisture at end of month"},
	VariableSRad: {"W/m^2", "downward surface shortwave radiation"},
	VariableSWE:  {"mm", "snow water equivalent at end of month"},
	VariableTMax: {"degC", "maximum 2-m temperature"},
	VariableTMin: {"degC", "minimum 2-m temperature"},
	VariableVap:  {"kPa", "2-m vapor pressure"},
	VariableWS:   {"m/s", "10-m wind speed"},
	VariableVPD:  {"kPa", "vapor pressure deficit"},
	VariablePDSI: {"", "Palmer Drought Severity Index"},
}

// ParseVariable matches s against the supported variable codes, ignoring case.
func ParseVariable(s string) (Variable, error) {
	trimmed := strings.TrimSpace(s)
	for _, v := range allVariables {
		if strings.EqualFold(v.String(), trimmed) {
			return v, nil
		}
	}
	return 0, &UnsupportedValueError{Kind: "variable", Value: s, Allowed: VariableNames()}
}

// Variables returns every supported variable in declaration order.
func Variables() []Variable {
	out := make([]Variable, len(allVariables))
	copy(out, allVariables)
	return out
}

// VariableNames returns the canonical codes of all supported variables.
func VariableNames() []string {
	names := make([]string, len(allVariables))
	for i, v := range allVariables {
		names[i] = v.String()
	}
	return names
}

func (v Variable) IsValid() bool {
	return variableMap.GetNameOrFallback(v, "") != ""
}

// String returns the dataset variable code, e.g. "ppt" or "PDSI".
func (v Variable) String() string {
	return variableMap.GetNameOrFallback(v, "INVALID_VARIABLE")
}

// Unit returns the physical unit of the variable's values.
func (v Variable) Unit() string {
	return variableInfos[v].unit
}

func (v Variable) Description() string {
	return variableInfos[v].description
}

func (v Variable) MarshalJSON() ([]byte, error) {
	return variableMap.MarshalToNameJSON(v)
}

func (v *Variable) UnmarshalJSON(bytes []byte) error {
	return variableMap.UnmarshalFromNameJSON(bytes, v)
}
