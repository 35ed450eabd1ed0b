package backfill

const (
	WorkflowName  = "barcode_backfill"
	ActivityIssue = "barcode_backfill_issue"

	// chunkSize bounds how many assemblies one activity attempt touches.
	chunkSize = 200
	// scanLimit is the page size when the workflow is started without ids.
	scanLimit = 500
)

type Input struct {
	AssemblyIDs []string `json:"assembly_ids,omitempty"`
	Limit       int      `json:"limit,omitempty"`
}

type ActivityInput struct {
	AssemblyIDs []string `json:"assembly_ids,omitempty"`
	Limit       int      `json:"limit,omitempty"`
}

type Result struct {
	Scanned int `json:"scanned"`
	Issued  int `json:"issued"`
}

func (r *Result) add(o Result) {
	r.Scanned += o.Scanned
	r.Issued += o.Issued
}
