package contract

// Stage identifies one of the four ordered pipeline steps. The wire ids
// (WF_A..WF_D) are fixed by the stage executors; ordering is strict and
// stages are never invoked out of order.
type Stage string

const (
	// StageSubdomainEnum enumerates subdomains for the product type.
	StageSubdomainEnum Stage = "WF_A"

	// StagePortScanImport imports Nmap port-scan results.
	StagePortScanImport Stage = "WF_B"

	// StageTargetSync synchronizes scanner targets from live endpoints.
	StageTargetSync Stage = "WF_C"

	// StageVulnScanImport runs the vulnerability scan and imports findings.
	StageVulnScanImport Stage = "WF_D"
)

// Stages lists the pipeline steps in execution order.
var Stages = []Stage{
	StageSubdomainEnum,
	StagePortScanImport,
	StageTargetSync,
	StageVulnScanImport,
}

// FinalStage is the last step of the pipeline; its success marks a fully
// completed run.
const FinalStage = StageVulnScanImport

// FirstStage is the entry point of the pipeline.
const FirstStage = StageSubdomainEnum

// Next returns the stage after s, or false when s is the final stage or
// not a known stage.
func (s Stage) Next() (Stage, bool) {
	for i, stage := range Stages {
		if stage == s && i < len(Stages)-1 {
			return Stages[i+1], true
		}
	}
	return "", false
}

// Valid reports whether s is one of the known pipeline stages.
func (s Stage) Valid() bool {
	for _, stage := range Stages {
		if stage == s {
			return true
		}
	}
	return false
}

// Describe returns the human name of the stage for logs and summaries.
func (s Stage) Describe() string {
	switch s {
	case StageSubdomainEnum:
		return "subdomain-enumeration"
	case StagePortScanImport:
		return "portscan-import"
	case StageTargetSync:
		return "target-sync"
	case StageVulnScanImport:
		return "vuln-scan-import"
	}
	return string(s)
}
