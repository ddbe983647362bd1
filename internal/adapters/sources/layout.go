package sources

import (
	"strings"

	"go.trai.ch/symcache/internal/core/domain"
)

// NormalizeDebugID returns the breakpad spelling of a debug id: upper case
// hex without dashes, with the age appended ("0" when absent).
func NormalizeDebugID(id string) string {
	id = strings.ToUpper(strings.ReplaceAll(id, "-", ""))
	if len(id) == 32 {
		id += "0"
	}
	return id
}

// NormalizeCodeID returns a code id as lower case hex without dashes.
func NormalizeCodeID(id string) string {
	return strings.ToLower(strings.ReplaceAll(id, "-", ""))
}

// breakpadSymbolName derives "<stem>.sym" from a debug file name.
func breakpadSymbolName(debugName string) string {
	lower := strings.ToLower(debugName)
	if strings.HasSuffix(lower, ".pdb") {
		return debugName[:len(debugName)-len(".pdb")] + ".sym"
	}
	return debugName + ".sym"
}

// CandidatePaths lists the object paths, in preference order, under which a
// source using layout may store debug information for m.
func CandidatePaths(layout domain.SourceLayout, m domain.ModuleDescriptor) []string {
	debugName := m.DebugBaseName()
	debugID := NormalizeDebugID(m.DebugID)
	codeID := NormalizeCodeID(m.CodeID)

	var out []string
	switch layout {
	case domain.LayoutBreakpad:
		if debugName != "" && debugID != "" {
			out = append(out, debugName+"/"+debugID+"/"+breakpadSymbolName(debugName))
		}
	case domain.LayoutNative:
		if len(codeID) > 2 {
			out = append(out,
				".build-id/"+codeID[:2]+"/"+codeID[2:]+".debug",
				".build-id/"+codeID[:2]+"/"+codeID[2:],
			)
		}
	case domain.LayoutDebuginfod:
		if codeID != "" {
			out = append(out, "buildid/"+codeID+"/debuginfo", "buildid/"+codeID+"/executable")
		}
	case domain.LayoutSymstore:
		if debugName != "" && debugID != "" {
			out = append(out, debugName+"/"+debugID+"/"+debugName)
		}
		if codeName := m.BaseName(); codeName != "" && m.CodeID != "" {
			out = append(out, codeName+"/"+strings.ToUpper(codeID)+"/"+codeName)
		}
	case domain.LayoutSymbolAPI:
		if debugName != "" && m.DebugID != "" {
			out = append(out, strings.ToLower(strings.ReplaceAll(m.DebugID, "-", ""))+"/"+debugName)
		}
	}
	return out
}
